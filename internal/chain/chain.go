// Package chain manages event chains: ordered steps where finishing one
// card suggests the next.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
)

var (
	// ErrNoSteps is returned when a chain is created without steps
	ErrNoSteps = errors.New("a chain needs at least one step")
	// ErrUnknownChain is returned for chains outside the group
	ErrUnknownChain = errors.New("unknown chain")
)

// Placement is where the next step of a chain goes
type Placement string

const (
	PlaceToday   Placement = "today"   // a card dated today
	PlaceBacklog Placement = "backlog" // an undated card
	PlaceLater   Placement = "later"   // no card, the step is marked pending
)

// ParsePlacement validates a placement name
func ParsePlacement(s string) (Placement, error) {
	switch p := Placement(strings.ToLower(strings.TrimSpace(s))); p {
	case PlaceToday, PlaceBacklog, PlaceLater:
		return p, nil
	}
	return "", fmt.Errorf("invalid choice %q (use today, backlog or later)", s)
}

// Board receives the cards of scheduled steps
type Board interface {
	ID() string
	Add(ctx context.Context, card model.Card) (model.Card, error)
}

// StepSpec describes a step to create
type StepSpec struct {
	Title      string
	DelayHours *int
}

// PendingStep is a step put aside for later, with its chain's name
type PendingStep struct {
	model.ChainStep
	ChainName string
}

// Service reads and writes the chains of one household group
type Service struct {
	store   store.Store
	groupID string
	log     *logger.Logger
	now     func() time.Time
}

// New creates a service for groupID
func New(s store.Store, groupID string, log *logger.Logger) *Service {
	return &Service{
		store:   s,
		groupID: groupID,
		log:     log.WithFields(logger.F("group", groupID)),
		now:     time.Now,
	}
}

// WithClock makes the service date today's steps by now
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// List returns the group's chains, newest first, each with its steps in order
func (s *Service) List(ctx context.Context) ([]model.Chain, error) {
	rows, err := s.store.Select(ctx, store.TableChains, store.Query{
		Where: store.Eq("group_id", s.groupID),
		Order: []store.Order{store.Desc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	chains := make([]model.Chain, 0, len(rows))
	ids := make([]any, 0, len(rows))
	for _, r := range rows {
		c, err := model.ChainFromRow(r)
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
		ids = append(ids, c.ID)
	}

	steps, err := s.steps(ctx, store.In("chain_id", ids...))
	if err != nil {
		return nil, err
	}
	byChain := make(map[string][]model.ChainStep)
	for _, st := range steps {
		byChain[st.ChainID] = append(byChain[st.ChainID], st)
	}
	for i := range chains {
		chains[i].Steps = byChain[chains[i].ID]
	}
	return chains, nil
}

// Get returns one chain with its steps
func (s *Service) Get(ctx context.Context, id string) (model.Chain, error) {
	rows, err := s.store.Select(ctx, store.TableChains, store.Query{Where: s.byID(id)})
	if err != nil {
		return model.Chain{}, fmt.Errorf("failed to fetch chain: %w", err)
	}
	if len(rows) == 0 {
		return model.Chain{}, fmt.Errorf("chain %s: %w", id, ErrUnknownChain)
	}
	c, err := model.ChainFromRow(rows[0])
	if err != nil {
		return model.Chain{}, err
	}
	c.Steps, err = s.steps(ctx, store.Eq("chain_id", id))
	return c, err
}

// Resolve finds a chain by id, id prefix or case-insensitive name
func (s *Service) Resolve(ctx context.Context, ref string) (model.Chain, error) {
	all, err := s.List(ctx)
	if err != nil {
		return model.Chain{}, err
	}
	var matches []model.Chain
	for _, c := range all {
		if c.ID == ref || strings.EqualFold(c.Name, ref) {
			return c, nil
		}
		if strings.HasPrefix(c.ID, ref) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return model.Chain{}, fmt.Errorf("chain %q is ambiguous", ref)
	}
	return model.Chain{}, fmt.Errorf("chain %q: %w", ref, ErrUnknownChain)
}

func (s *Service) steps(ctx context.Context, where store.Filter) ([]model.ChainStep, error) {
	rows, err := s.store.Select(ctx, store.TableChainSteps, store.Query{
		Where: where,
		Order: []store.Order{store.Asc("step_order")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain steps: %w", err)
	}
	out := make([]model.ChainStep, 0, len(rows))
	for _, r := range rows {
		st, err := model.ChainStepFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Create adds a chain with steps numbered from 1. If the steps cannot be
// stored the chain is still returned along with the error.
func (s *Service) Create(ctx context.Context, name string, specs []StepSpec) (model.Chain, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Chain{}, errors.New("chain name is required")
	}
	if len(specs) == 0 {
		return model.Chain{}, ErrNoSteps
	}

	rows, err := s.store.Insert(ctx, store.TableChains, store.Row{"group_id": s.groupID, "name": name})
	if err != nil {
		return model.Chain{}, fmt.Errorf("failed to create chain: %w", err)
	}
	c, err := model.ChainFromRow(rows[0])
	if err != nil {
		return model.Chain{}, err
	}

	stepRows := make([]store.Row, 0, len(specs))
	for i, sp := range specs {
		row, err := model.ChainStep{
			ChainID:           c.ID,
			StepOrder:         i + 1,
			Title:             sp.Title,
			DefaultDelayHours: sp.DelayHours,
		}.InsertRow()
		if err != nil {
			return c, err
		}
		stepRows = append(stepRows, store.Row(row))
	}
	stored, err := s.store.Insert(ctx, store.TableChainSteps, stepRows...)
	if err != nil {
		s.log.Error("failed to create chain steps", logger.F("chain", c.ID), logger.Err(err))
		return c, fmt.Errorf("failed to create chain steps: %w", err)
	}
	for _, r := range stored {
		st, err := model.ChainStepFromRow(r)
		if err != nil {
			return c, err
		}
		c.Steps = append(c.Steps, st)
	}
	return c, nil
}

// Update renames a chain or changes its description; empty values are left alone
func (s *Service) Update(ctx context.Context, id, name, description string) error {
	patch := store.Row{}
	if name != "" {
		patch["name"] = name
	}
	if description != "" {
		patch["description"] = description
	}
	if len(patch) == 0 {
		return nil
	}
	n, err := s.store.Update(ctx, store.TableChains, s.byID(id), patch)
	if err != nil {
		return fmt.Errorf("failed to update chain: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("chain %s: %w", id, ErrUnknownChain)
	}
	return nil
}

// Delete removes a chain and its steps. Cards created from it keep their
// chain reference.
func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.store.Delete(ctx, store.TableChains, s.byID(id))
	if err != nil {
		return fmt.Errorf("failed to delete chain: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("chain %s: %w", id, ErrUnknownChain)
	}
	return nil
}

// AddStep appends a step after the chain's last one
func (s *Service) AddStep(ctx context.Context, chainID, title string, delayHours *int) (model.ChainStep, error) {
	c, err := s.Get(ctx, chainID)
	if err != nil {
		return model.ChainStep{}, err
	}
	row, err := model.ChainStep{
		ChainID:           chainID,
		StepOrder:         c.MaxStepOrder() + 1,
		Title:             title,
		DefaultDelayHours: delayHours,
	}.InsertRow()
	if err != nil {
		return model.ChainStep{}, err
	}
	rows, err := s.store.Insert(ctx, store.TableChainSteps, store.Row(row))
	if err != nil {
		return model.ChainStep{}, fmt.Errorf("failed to add step: %w", err)
	}
	return model.ChainStepFromRow(rows[0])
}

// UpdateStep patches a step; title, default_delay_hours and pending_since may change
func (s *Service) UpdateStep(ctx context.Context, stepID string, patch store.Row) error {
	for k := range patch {
		switch k {
		case "title", "default_delay_hours", "pending_since":
		default:
			return fmt.Errorf("step field %q cannot be changed", k)
		}
	}
	n, err := s.store.Update(ctx, store.TableChainSteps, store.Eq("id", stepID), patch)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("step %s: %w", stepID, store.ErrNotFound)
	}
	return nil
}

// DeleteStep removes a step. Later steps keep their order numbers.
func (s *Service) DeleteStep(ctx context.Context, stepID string) error {
	n, err := s.store.Delete(ctx, store.TableChainSteps, store.Eq("id", stepID))
	if err != nil {
		return fmt.Errorf("failed to delete step: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("step %s: %w", stepID, store.ErrNotFound)
	}
	return nil
}

// NextStep returns the step following order in the chain, false at the end
func (s *Service) NextStep(ctx context.Context, chainID string, order int) (model.ChainStep, bool, error) {
	c, err := s.Get(ctx, chainID)
	if err != nil {
		return model.ChainStep{}, false, err
	}
	next, ok := c.Next(order)
	return next, ok, nil
}

// After returns the step following a completed card, false when the card
// is not part of a chain or ends it
func (s *Service) After(ctx context.Context, card model.Card) (model.ChainStep, bool, error) {
	if card.ChainID == nil || card.StepOrder == nil {
		return model.ChainStep{}, false, nil
	}
	next, ok, err := s.NextStep(ctx, *card.ChainID, *card.StepOrder)
	if errors.Is(err, ErrUnknownChain) {
		return model.ChainStep{}, false, nil
	}
	return next, ok, err
}

// Defer puts a step aside until someone picks it up
func (s *Service) Defer(ctx context.Context, stepID string) error {
	return s.UpdateStep(ctx, stepID, store.Row{"pending_since": s.now().UTC()})
}

// Release clears a step's pending mark
func (s *Service) Release(ctx context.Context, stepID string) error {
	return s.UpdateStep(ctx, stepID, store.Row{"pending_since": nil})
}

// Pending lists the group's deferred steps, most recently deferred first
func (s *Service) Pending(ctx context.Context) ([]PendingStep, error) {
	chains, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(chains) == 0 {
		return nil, nil
	}
	names := make(map[string]string, len(chains))
	ids := make([]any, 0, len(chains))
	for _, c := range chains {
		names[c.ID] = c.Name
		ids = append(ids, c.ID)
	}

	rows, err := s.store.Select(ctx, store.TableChainSteps, store.Query{
		Where: store.And(store.In("chain_id", ids...), store.NotNull("pending_since")),
		Order: []store.Order{store.Desc("pending_since")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending steps: %w", err)
	}
	out := make([]PendingStep, 0, len(rows))
	for _, r := range rows {
		st, err := model.ChainStepFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, PendingStep{ChainStep: st, ChainName: names[st.ChainID]})
	}
	return out, nil
}

// Schedule places step on b or sets it aside. A pending step placed on the
// board is released first. The added card is returned for today and backlog.
func (s *Service) Schedule(ctx context.Context, b Board, step model.ChainStep, where Placement) (model.Card, error) {
	if _, err := ParsePlacement(string(where)); err != nil {
		return model.Card{}, err
	}
	if where == PlaceLater {
		return model.Card{}, s.Defer(ctx, step.ID)
	}
	if step.IsPending() {
		if err := s.Release(ctx, step.ID); err != nil {
			return model.Card{}, err
		}
	}

	var day *model.Date
	if where == PlaceToday {
		day = model.DateOf(s.now()).Ptr()
	}
	card, err := b.Add(ctx, FollowUp(step, b.ID(), day))
	if err != nil {
		return model.Card{}, fmt.Errorf("failed to add step %q: %w", step.Title, err)
	}
	s.log.Debug("chain step scheduled", logger.F("step", step.ID), logger.F("where", string(where)))
	return card, nil
}

// FollowUp builds the card for a step, dated on day or in the backlog when
// day is nil
func FollowUp(step model.ChainStep, boardID string, day *model.Date) model.Card {
	c := model.Card{
		BoardID:   boardID,
		Title:     step.Title,
		Tags:      []string{},
		ChainID:   model.String(step.ChainID),
		StepOrder: model.Int(step.StepOrder),
		Status:    model.StatusTodo,
		ItemType:  model.ItemTask,
		Priority:  model.PriorityNormal,
	}
	if day != nil {
		d := *day
		c.Date = &d
	}
	return c
}

func (s *Service) byID(id string) store.Filter {
	return store.And(store.Eq("id", id), store.Eq("group_id", s.groupID))
}
