package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
	"github.com/labstack/echo/v4"
)

const (
	ctxUserID = "user_id"
	ctxToken  = "token"
)

// authMiddleware checks for valid session token
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Get token from Authorization header
		auth := c.Request().Header.Get("Authorization")
		if auth == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authorization required"})
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid authorization format"})
		}

		// Validate session
		sess := model.Session{Token: token}
		var expires string
		err := s.db.QueryRowContext(c.Request().Context(), s.store.Rebind(`
			SELECT id, user_id, expires_at FROM sessions WHERE token = ?`),
			token,
		).Scan(&sess.ID, &sess.UserID, &expires)
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		}
		if err != nil {
			s.log.Error("session lookup failed", logger.Err(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}

		sess.ExpiresAt, err = time.Parse(time.RFC3339Nano, expires)
		if err != nil || sess.IsExpired(s.now()) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "token expired"})
		}

		// Add user ID to context
		c.Set(ctxUserID, sess.UserID)
		c.Set(ctxToken, token)
		return next(c)
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}

// formatTime renders server timestamps the same way the store does
func formatTime(t time.Time) string {
	return store.FormatTime(t)
}
