// Package board keeps one household board in memory: it materializes the
// routines of the viewed week and applies card mutations optimistically.
package board

import (
	"context"
	"sync"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
)

// Options configures a Board
type Options struct {
	UserID   string           // stamped as created_by, may be empty
	Logger   *logger.Logger   // nil discards
	Now      func() time.Time // clock for completed_at, defaults to time.Now
	Debounce time.Duration    // realtime burst window, defaults to 250ms
}

// Board is the client-side view of one board
type Board struct {
	id       string
	userID   string
	store    store.Store
	state    *State
	exec     *Executor
	mat      *Materializer
	log      *logger.Logger
	now      func() time.Time
	debounce time.Duration

	mu      sync.Mutex
	week    Week
	loaded  bool
	loadGen uint64
}

// New creates a board backed by s
func New(s store.Store, boardID string, opts Options) *Board {
	log := opts.Logger.WithFields(logger.F("board", boardID))
	state := NewState()
	b := &Board{
		id:       boardID,
		userID:   opts.UserID,
		store:    s,
		state:    state,
		exec:     NewExecutor(state, log),
		mat:      NewMaterializer(s, boardID, opts.UserID, opts.Logger),
		log:      log,
		now:      opts.Now,
		debounce: opts.Debounce,
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.debounce <= 0 {
		b.debounce = 250 * time.Millisecond
	}
	return b
}

// ID returns the board id
func (b *Board) ID() string { return b.id }

// Load materializes the week containing ref and makes it the tracked week.
// On failure the current state is left as it was.
func (b *Board) Load(ctx context.Context, ref time.Time) (Snapshot, error) {
	return b.loadWeek(ctx, WeekOf(ref))
}

// Refresh reloads the tracked week, or the current week before any Load
func (b *Board) Refresh(ctx context.Context) (Snapshot, error) {
	b.mu.Lock()
	week, loaded := b.week, b.loaded
	b.mu.Unlock()
	if !loaded {
		week = WeekOf(b.now())
	}
	return b.loadWeek(ctx, week)
}

func (b *Board) loadWeek(ctx context.Context, week Week) (Snapshot, error) {
	b.mu.Lock()
	b.loadGen++
	gen := b.loadGen
	b.mu.Unlock()

	snap, err := b.mat.RunWeek(ctx, week)
	if err != nil {
		return Snapshot{}, err
	}

	// a newer load owns the state
	b.mu.Lock()
	stale := gen != b.loadGen
	if !stale {
		b.week, b.loaded = week, true
	}
	b.mu.Unlock()
	if stale {
		b.log.Debug("dropped superseded load", logger.F("week", week))
		return snap, nil
	}

	b.state.Replace(snap)
	return snap, nil
}

// Week returns the tracked week
func (b *Board) Week() Week {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded {
		return WeekOf(b.now())
	}
	return b.week
}

// View returns a copy of the board state
func (b *Board) View() View {
	return b.state.View()
}

// OnChange registers fn to receive a view after every state change
func (b *Board) OnChange(fn func(View)) {
	b.state.OnChange(fn)
}

// Resolve finds a card by id or unique id prefix
func (b *Board) Resolve(prefix string) (model.Card, error) {
	return b.state.Resolve(prefix)
}
