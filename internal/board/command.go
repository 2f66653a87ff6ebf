package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/existflow/hearth/internal/logger"
)

var (
	// ErrUnknownCard is returned for ids the board does not hold
	ErrUnknownCard = errors.New("unknown card")
	// ErrAmbiguousID is returned when an id prefix matches several cards
	ErrAmbiguousID = errors.New("ambiguous card id")
	// ErrPendingCard is returned when a card is still being created
	ErrPendingCard = errors.New("card is still being saved")
)

// MutationError reports a failed remote write whose local change was rolled back
type MutationError struct {
	Op  string
	ID  string
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// Command is one optimistic mutation of a single record.
// Forward, Inverse, Confirm and Commit run with the state locked; Remote
// runs without it. Forward may refuse the command by returning an error,
// in which case nothing else runs. Commit records a successful remote
// effect in the record's baseline and runs even for stale responses.
type Command struct {
	Op      string
	ID      string
	Forward func(s *State) error
	Remote  func(ctx context.Context) error
	Inverse func(s *State)
	Confirm func(s *State)
	Commit  func(s *State)
}

// Executor applies commands to a state
type Executor struct {
	state *State
	log   *logger.Logger
}

// NewExecutor creates an executor for state
func NewExecutor(state *State, log *logger.Logger) *Executor {
	return &Executor{state: state, log: log}
}

// Run applies the command locally, performs the remote effect and then
// confirms or reverts. A response that arrives after a newer operation on
// the same record started is dropped, except that the last operation to
// settle on a record resets it to its baseline when any of them failed.
func (e *Executor) Run(ctx context.Context, cmd Command) error {
	s := e.state

	s.mu.Lock()
	if cmd.Forward != nil {
		if err := cmd.Forward(s); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	version := s.begin(cmd.ID)
	s.mu.Unlock()
	s.notify()

	remoteErr := cmd.Remote(ctx)

	s.mu.Lock()
	current, settled := s.end(cmd.ID, version)
	if remoteErr != nil {
		s.failed[cmd.ID] = true
	} else if cmd.Commit != nil {
		cmd.Commit(s)
	}

	changed := current
	switch {
	case !current:
		e.log.Debug("dropped stale response", logger.F("op", cmd.Op), logger.F("id", cmd.ID), logger.F("failed", remoteErr != nil))
	case remoteErr != nil:
		if cmd.Inverse != nil {
			cmd.Inverse(s)
		}
	case cmd.Confirm != nil:
		cmd.Confirm(s)
	}
	rebased := false
	if settled {
		if s.failed[cmd.ID] {
			rebased = s.rebase(cmd.ID)
			changed = changed || rebased
		}
		delete(s.failed, cmd.ID)
	}
	s.mu.Unlock()

	if remoteErr != nil {
		e.log.Warn("mutation failed", logger.F("op", cmd.Op), logger.F("id", cmd.ID), logger.F("rolled_back", current || rebased), logger.Err(remoteErr))
		s.notify()
		return &MutationError{Op: cmd.Op, ID: cmd.ID, Err: remoteErr}
	}
	if changed {
		s.notify()
	}
	return nil
}
