package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/existflow/hearth/internal/board"
	"github.com/existflow/hearth/internal/chain"
	"github.com/existflow/hearth/internal/client"
	"github.com/existflow/hearth/internal/config"
	"github.com/existflow/hearth/internal/listable"
	"github.com/existflow/hearth/internal/logger"
)

// cfg is loaded once by the root command before any subcommand runs
var cfg *config.Config

// now is the clock used for "today"
var now = time.Now

// session bundles the server connection and the selected board
type session struct {
	client  *client.Client
	boardID string
	log     *logger.Logger
}

// newClient opens the saved server session
func newClient() (*client.Client, error) {
	return client.New(cfg.ServerURL, cfg.SessionPath(), logger.WithFields(logger.F("component", "client")))
}

// openSession requires a login and a selected board
func openSession() (*session, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	if !c.IsLoggedIn() {
		return nil, client.ErrNotLoggedIn
	}
	boardID, err := cfg.Board()
	if err != nil {
		return nil, err
	}
	return &session{client: c, boardID: boardID, log: logger.Default()}, nil
}

// board returns the selected board loaded on the week containing ref
func (s *session) board(ctx context.Context, ref time.Time) (*board.Board, error) {
	b := board.New(s.client, s.boardID, board.Options{
		UserID: s.client.UserID(),
		Logger: s.log,
		Now:    now,
	})
	if _, err := b.Load(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to load board: %w", err)
	}
	return b, nil
}

func (s *session) categories() *listable.Service {
	return listable.New(s.client, s.boardID, s.log)
}

func (s *session) chains() *chain.Service {
	return chain.New(s.client, cfg.Group(s.boardID), s.log).WithClock(now)
}

// shortID trims an id for display
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
