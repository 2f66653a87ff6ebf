package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/existflow/hearth/internal/board"
	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/store"
	"github.com/robfig/cron/v3"
)

// materializeTimeout bounds one scheduled pass over all boards
const materializeTimeout = 5 * time.Minute

func (s *Server) startScheduler() error {
	spec := strings.TrimSpace(s.opts.MaterializeSpec)
	if spec == "" || spec == "off" {
		s.log.Info("routine scheduler disabled")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, s.materializeJob); err != nil {
		return fmt.Errorf("invalid materialize schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Info("routine scheduler started", logger.F("schedule", spec))
	return nil
}

func (s *Server) materializeJob() {
	ctx, cancel := context.WithTimeout(context.Background(), materializeTimeout)
	defer cancel()
	if _, err := s.MaterializeAll(ctx, s.now()); err != nil {
		s.log.Error("scheduled materialization failed", logger.Err(err))
	}
}

// MaterializeAll fills the week containing ref on every board that has an
// active routine and returns the number of instances created. Boards are
// independent: one failing board does not stop the others.
func (s *Server) MaterializeAll(ctx context.Context, ref time.Time) (int, error) {
	rows, err := s.store.Select(ctx, store.TableCards, store.Query{
		Where: store.And(
			store.Eq("is_recurring_template", true),
			store.Or(store.IsNull("is_active"), store.Eq("is_active", true)),
			store.NotNull("board_id"),
		),
		Order: []store.Order{store.Asc("created_at")},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list routines: %w", err)
	}

	var boards []string
	seen := make(map[string]bool)
	for _, r := range rows {
		id, _ := r["board_id"].(string)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		boards = append(boards, id)
	}

	created, failed := 0, 0
	for _, id := range boards {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		snap, err := board.NewMaterializer(s.store, id, "", s.log).Run(ctx, ref)
		if err != nil {
			failed++
			continue
		}
		created += snap.Created
	}

	s.log.Info("materialization pass finished",
		logger.F("boards", len(boards)),
		logger.F("failed", failed),
		logger.F("created", created))
	if failed > 0 {
		return created, fmt.Errorf("%d of %d boards failed", failed, len(boards))
	}
	return created, nil
}
