package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/store"
	"github.com/labstack/echo/v4"
)

// handleChanges streams committed changes to a table as server-sent
// events named "change". A heartbeat keeps idle connections open.
func (s *Server) handleChanges(c echo.Context) error {
	table := c.Param("table")
	where, err := store.DecodeFilter(c.QueryParam("where"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Request().Context()
	events, err := s.store.Subscribe(ctx, table, where)
	if err != nil {
		return s.storeError(c, err)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := s.log.WithFields(logger.F("table", table), logger.F("user_id", userID(c)))
	if err := writeSSE(w, "connected", map[string]string{"table": table}); err != nil {
		log.Debug("change stream write failed", logger.Err(err))
		return nil
	}
	w.Flush()
	log.Debug("change stream opened")
	defer log.Debug("change stream closed")

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeSSE(w, "change", ev); err != nil {
				log.Debug("change stream write failed", logger.Err(err))
				return nil
			}
			w.Flush()
		case <-heartbeat.C:
			if err := writeSSE(w, "heartbeat", map[string]string{
				"timestamp": s.now().UTC().Format(time.RFC3339),
			}); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func writeSSE(w io.Writer, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
