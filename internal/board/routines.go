package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
)

// ErrEmptyRule is returned when a routine would repeat on no day
var ErrEmptyRule = errors.New("routine needs at least one weekday")

// Routines lists every template of the board, paused ones included, newest first
func (b *Board) Routines(ctx context.Context) ([]model.Card, error) {
	rows, err := b.store.Select(ctx, store.TableCards, store.Query{
		Where: store.And(
			store.Eq("board_id", b.id),
			store.Eq("is_recurring_template", true),
		),
		Order: []store.Order{store.Desc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch routines: %w", err)
	}
	return decodeCards(rows)
}

// AddRoutine creates a template repeating on the days of rule. Title,
// description, tags, assignment and time are taken from routine.
func (b *Board) AddRoutine(ctx context.Context, routine model.Card, rule model.Rule) (model.Card, error) {
	if rule.IsEmpty() {
		return model.Card{}, ErrEmptyRule
	}
	routine.IsRecurringTemplate = true
	routine.RecurrenceRule = model.String(rule.String())
	routine.IsActive = model.Bool(true)
	routine.TemplateID = nil
	routine.Date = nil
	return b.Add(ctx, routine)
}

// SetRoutineDays changes the weekdays a routine repeats on. Instances
// already materialized are kept.
func (b *Board) SetRoutineDays(ctx context.Context, id string, rule model.Rule) error {
	if rule.IsEmpty() {
		return ErrEmptyRule
	}
	return b.routinePatch(ctx, id, model.Patch{"recurrence_rule": rule.String()})
}

// SetRoutineActive pauses or resumes a routine. A paused routine creates
// no new instances; existing ones stay.
func (b *Board) SetRoutineActive(ctx context.Context, id string, active bool) error {
	return b.routinePatch(ctx, id, model.Patch{"is_active": active})
}

// routinePatch updates a routine through the board when it is loaded, and
// directly otherwise since paused routines are not part of the week.
func (b *Board) routinePatch(ctx context.Context, id string, patch model.Patch) error {
	if c, ok := b.state.Get(id); ok {
		if !c.IsRecurringTemplate {
			return fmt.Errorf("card %s is not a routine", id)
		}
		return b.Update(ctx, id, patch)
	}

	n, err := b.store.Update(ctx, store.TableCards,
		store.And(
			store.Eq("id", id),
			store.Eq("board_id", b.id),
			store.Eq("is_recurring_template", true),
		),
		store.Row(patch))
	if err != nil {
		return &MutationError{Op: "update", ID: id, Err: err}
	}
	if n == 0 {
		return ErrUnknownCard
	}
	return nil
}

// DeleteRoutine removes a template. Its past instances stay on the board.
func (b *Board) DeleteRoutine(ctx context.Context, id string) error {
	if _, ok := b.state.Get(id); ok {
		return b.Delete(ctx, id)
	}
	n, err := b.store.Delete(ctx, store.TableCards,
		store.And(
			store.Eq("id", id),
			store.Eq("board_id", b.id),
			store.Eq("is_recurring_template", true),
		))
	if err != nil {
		return &MutationError{Op: "delete", ID: id, Err: err}
	}
	if n == 0 {
		return ErrUnknownCard
	}
	return nil
}
