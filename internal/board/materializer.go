package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
)

// Snapshot is the board content for one week after materialization
type Snapshot struct {
	Week     Week
	Cards    []model.Card // active dated instances in the week
	Backlog  []model.Card // undated, not cancelled
	Routines []model.Card // active templates
	Created  int          // instances created by this pass
}

// Materializer fills the gaps a board's routines leave in a week
type Materializer struct {
	store   store.Store
	boardID string
	userID  string
	log     *logger.Logger
}

// NewMaterializer creates a materializer for one board. userID is stamped
// as created_by on generated instances and may be empty.
func NewMaterializer(s store.Store, boardID, userID string, log *logger.Logger) *Materializer {
	return &Materializer{
		store:   s,
		boardID: boardID,
		userID:  userID,
		log:     log.WithFields(logger.F("board", boardID)),
	}
}

// Run materializes the week containing ref
func (m *Materializer) Run(ctx context.Context, ref time.Time) (Snapshot, error) {
	return m.RunWeek(ctx, WeekOf(ref))
}

// RunWeek fetches the week, creates the missing routine instances and
// returns the resulting snapshot. A fetch failure returns an error and no
// snapshot; a failed creation is logged and skipped.
func (m *Materializer) RunWeek(ctx context.Context, week Week) (Snapshot, error) {
	cards, err := m.fetch(ctx, week)
	if err != nil {
		m.log.Error("failed to fetch week", logger.F("week", week), logger.Err(err))
		return Snapshot{}, err
	}

	snap := Snapshot{Week: week}
	var instances []model.Card
	for _, c := range cards {
		switch {
		case c.IsRecurringTemplate:
			if c.IsActiveTemplate() {
				snap.Routines = append(snap.Routines, c)
			}
		case c.Date != nil:
			instances = append(instances, c)
			if !c.IsCancelled() {
				snap.Cards = append(snap.Cards, c)
			}
		case !c.IsCancelled():
			snap.Backlog = append(snap.Backlog, c)
		}
	}

	for _, inst := range Plan(week, snap.Routines, instances) {
		inst.CreatedBy = model.String(m.userID)
		created, err := m.create(ctx, inst)
		if err != nil {
			fields := []logger.Field{
				logger.F("template", *inst.TemplateID),
				logger.F("date", inst.Date.String()),
				logger.Err(err),
			}
			if errors.Is(err, store.ErrConflict) {
				m.log.Debug("slot already filled", fields...)
			} else {
				m.log.Warn("failed to create instance", fields...)
			}
			continue
		}
		snap.Cards = append(snap.Cards, created)
		snap.Created++
	}

	if snap.Created > 0 {
		m.log.Info("materialized week", logger.F("week", week), logger.F("created", snap.Created))
	}
	return snap, nil
}

func (m *Materializer) fetch(ctx context.Context, week Week) ([]model.Card, error) {
	rows, err := m.store.Select(ctx, store.TableCards, store.Query{
		Where: store.And(
			store.Eq("board_id", m.boardID),
			store.Or(
				store.And(
					store.Gte("date", week.Start.String()),
					store.Lte("date", week.End.String()),
				),
				store.IsNull("date"),
				store.Eq("is_recurring_template", true),
			),
		),
		Order: []store.Order{store.Asc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cards: %w", err)
	}
	return decodeCards(rows)
}

func (m *Materializer) create(ctx context.Context, inst model.Card) (model.Card, error) {
	row, err := inst.InsertRow()
	if err != nil {
		return model.Card{}, err
	}
	rows, err := m.store.Insert(ctx, store.TableCards, store.Row(row))
	if err != nil {
		return model.Card{}, err
	}
	if len(rows) != 1 {
		return model.Card{}, fmt.Errorf("insert returned %d rows", len(rows))
	}
	return model.CardFromRow(rows[0])
}

// Plan returns the instances missing from week, template-major and
// day-minor. A slot is occupied by any instance with the same template
// and date, whatever its status.
func Plan(week Week, templates, instances []model.Card) []model.Card {
	occupied := make(map[slot]bool, len(instances))
	for _, c := range instances {
		if c.IsFromTemplate() && c.Date != nil {
			occupied[slot{*c.TemplateID, *c.Date}] = true
		}
	}

	var planned []model.Card
	for _, t := range templates {
		if !t.IsActiveTemplate() || t.ID == "" {
			continue
		}
		rule := t.Rule()
		for _, day := range week.Days() {
			if !rule.Includes(day.Weekday()) {
				continue
			}
			key := slot{t.ID, day}
			if occupied[key] {
				continue
			}
			occupied[key] = true
			planned = append(planned, instanceOf(t, day))
		}
	}
	return planned
}

type slot struct {
	templateID string
	date       model.Date
}

func instanceOf(t model.Card, day model.Date) model.Card {
	src := t.Clone()
	return model.Card{
		BoardID:        src.BoardID,
		Title:          src.Title,
		Description:    src.Description,
		Tags:           src.Tags,
		AssignedTo:     src.AssignedTo,
		AssignedToBoth: src.AssignedToBoth,
		ScheduledTime:  src.ScheduledTime,
		TemplateID:     model.String(t.ID),
		Date:           day.Ptr(),
		Status:         model.StatusTodo,
	}
}

func decodeCards(rows []store.Row) ([]model.Card, error) {
	cards := make([]model.Card, 0, len(rows))
	for _, r := range rows {
		c, err := model.CardFromRow(r)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}
