package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	UserID    string `json:"user_id"`
}

// handleRegister handles user registration
func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	// Validate
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "username, email, and password required"})
	}

	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "password must be at least 8 characters"})
	}

	// Hash password
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error("bcrypt failed", logger.Err(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	ctx := c.Request().Context()
	userID := uuid.NewString()
	_, err = s.db.ExecContext(ctx, s.store.Rebind(`
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		userID, req.Username, req.Email, string(hash), formatTime(s.now()),
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return c.JSON(http.StatusConflict, map[string]string{"error": "username or email already exists", "code": "conflict"})
		}
		s.log.Error("user insert failed", logger.Err(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	// Create session
	token, expiresAt, err := s.createSession(ctx, userID)
	if err != nil {
		s.log.Error("session create failed", logger.Err(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	s.log.Info("user registered", logger.F("username", req.Username), logger.F("user_id", userID))

	return c.JSON(http.StatusOK, authResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		UserID:    userID,
	})
}

// handleLogin handles user login
func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	ctx := c.Request().Context()

	// Find user
	var userID, passwordHash string
	err := s.db.QueryRowContext(ctx, s.store.Rebind(`
		SELECT id, password_hash FROM users WHERE username = ?`),
		strings.TrimSpace(req.Username),
	).Scan(&userID, &passwordHash)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Error("user lookup failed", logger.Err(err))
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}

	// Create session
	token, expiresAt, err := s.createSession(ctx, userID)
	if err != nil {
		s.log.Error("session create failed", logger.Err(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	s.log.Info("user logged in", logger.F("username", req.Username))

	return c.JSON(http.StatusOK, authResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		UserID:    userID,
	})
}

// handleLogout revokes the calling session
func (s *Server) handleLogout(c echo.Context) error {
	token, _ := c.Get(ctxToken).(string)
	_, err := s.db.ExecContext(c.Request().Context(), s.store.Rebind(`
		DELETE FROM sessions WHERE token = ?`), token)
	if err != nil {
		s.log.Error("session delete failed", logger.Err(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.NoContent(http.StatusNoContent)
}

// handleMe returns current user info
func (s *Server) handleMe(c echo.Context) error {
	id := userID(c)

	var username, email, createdAt string
	err := s.db.QueryRowContext(c.Request().Context(), s.store.Rebind(`
		SELECT username, email, created_at FROM users WHERE id = ?`),
		id,
	).Scan(&username, &email, &createdAt)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found", "code": "not_found"})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"id":         id,
		"username":   username,
		"email":      email,
		"created_at": createdAt,
	})
}

// createSession creates a new session for a user
func (s *Server) createSession(ctx context.Context, userID string) (string, time.Time, error) {
	// Generate token
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", time.Time{}, err
	}
	token := hex.EncodeToString(tokenBytes)

	now := s.now()
	expiresAt := now.Add(s.opts.SessionTTL).UTC()

	_, err := s.db.ExecContext(ctx, s.store.Rebind(`
		INSERT INTO sessions (id, user_id, token, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		uuid.NewString(), userID, token, formatTime(expiresAt), formatTime(now),
	)

	return token, expiresAt, err
}
