package board

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
)

// Add creates a card. It shows up at once under a temporary id and is
// replaced by the stored record when the store confirms it.
func (b *Board) Add(ctx context.Context, card model.Card) (model.Card, error) {
	card.ID = TempIDPrefix + uuid.NewString()
	if card.BoardID == "" {
		card.BoardID = b.id
	}
	if card.CreatedBy == nil {
		card.CreatedBy = model.String(b.userID)
	}
	if card.Status == "" {
		card.Status = model.StatusTodo
	}
	if card.IsRecurringTemplate {
		card.Date = nil
	}
	row, err := card.InsertRow()
	if err != nil {
		return model.Card{}, err
	}

	var stored model.Card
	err = b.exec.Run(ctx, Command{
		Op: "add",
		ID: card.ID,
		Forward: func(s *State) error {
			s.put(card)
			return nil
		},
		Remote: func(ctx context.Context) error {
			rows, err := b.store.Insert(ctx, store.TableCards, store.Row(row))
			if err != nil {
				return err
			}
			if len(rows) != 1 {
				return fmt.Errorf("insert returned %d rows", len(rows))
			}
			stored, err = model.CardFromRow(rows[0])
			return err
		},
		Inverse: func(s *State) {
			s.remove(card.ID)
		},
		Confirm: func(s *State) {
			s.swap(card.ID, stored)
		},
		Commit: func(s *State) {
			s.stored(stored)
		},
	})
	if err != nil {
		return model.Card{}, err
	}
	return stored, nil
}

// Update applies patch to a card. On failure the card is restored exactly
// as it was before the call.
func (b *Board) Update(ctx context.Context, id string, patch model.Patch) error {
	return b.patch(ctx, "update", id, patch)
}

// Complete marks a card completed now
func (b *Board) Complete(ctx context.Context, id string) error {
	return b.patch(ctx, "complete", id, model.Patch{"completed_at": b.now().UTC()})
}

// Uncomplete clears a card's completion mark
func (b *Board) Uncomplete(ctx context.Context, id string) error {
	return b.patch(ctx, "uncomplete", id, model.Patch{"completed_at": nil})
}

// ToggleStatus sets the checkbox state, leaving completed_at alone
func (b *Board) ToggleStatus(ctx context.Context, id string, done bool) error {
	status := model.StatusTodo
	if done {
		status = model.StatusDone
	}
	return b.patch(ctx, "toggle", id, model.Patch{"status": string(status)})
}

func (b *Board) patch(ctx context.Context, op, id string, patch model.Patch) error {
	if _, ok := patch["id"]; ok {
		return fmt.Errorf("cannot change the id of card %s", id)
	}

	var (
		prev model.Card
		loc  location
	)
	return b.exec.Run(ctx, Command{
		Op: op,
		ID: id,
		Forward: func(s *State) error {
			cur, err := s.mutable(id)
			if err != nil {
				return err
			}
			next, err := cur.Apply(patch)
			if err != nil {
				return err
			}
			prev, loc = cur.Clone(), s.locate(id)
			s.put(next)
			return nil
		},
		Remote: func(ctx context.Context) error {
			n, err := b.store.Update(ctx, store.TableCards, store.Eq("id", id), store.Row(patch))
			if err != nil {
				return err
			}
			if n == 0 {
				return store.ErrNotFound
			}
			return nil
		},
		Inverse: func(s *State) {
			s.putAt(prev, loc)
		},
		Commit: func(s *State) {
			s.storedPatch(id, patch)
		},
	})
}

// Delete removes a card. Routine instances are cancelled in place so the
// slot is never materialized again; everything else is deleted.
func (b *Board) Delete(ctx context.Context, id string) error {
	var (
		prev model.Card
		loc  location
	)
	return b.exec.Run(ctx, Command{
		Op: "delete",
		ID: id,
		Forward: func(s *State) error {
			cur, err := s.mutable(id)
			if err != nil {
				return err
			}
			prev, loc = cur.Clone(), s.locate(id)
			s.remove(id)
			return nil
		},
		Remote: func(ctx context.Context) error {
			var (
				n   int64
				err error
			)
			if prev.IsFromTemplate() {
				n, err = b.store.Update(ctx, store.TableCards, store.Eq("id", id),
					store.Row{"status": string(model.StatusCancelled)})
			} else {
				n, err = b.store.Delete(ctx, store.TableCards, store.Eq("id", id))
			}
			if err != nil {
				return err
			}
			if n == 0 {
				b.log.Debug("card already gone", logger.F("id", id))
			}
			return nil
		},
		Inverse: func(s *State) {
			s.putAt(prev, loc)
		},
		Commit: func(s *State) {
			s.storedGone(id)
		},
	})
}

// mutable returns the record for a new operation. Expects mu held.
func (s *State) mutable(id string) (model.Card, error) {
	cur, ok := s.get(id)
	if !ok {
		return model.Card{}, ErrUnknownCard
	}
	if IsTempID(id) {
		return model.Card{}, ErrPendingCard
	}
	return cur, nil
}
