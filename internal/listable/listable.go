// Package listable manages the categories a board's cards can be filed under.
package listable

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
)

// ErrNameRequired is returned when a category has no name
var ErrNameRequired = errors.New("category name is required")

// Service reads and writes the categories of one board
type Service struct {
	store   store.Store
	boardID string
	log     *logger.Logger
}

// New creates a service for boardID
func New(s store.Store, boardID string, log *logger.Logger) *Service {
	return &Service{store: s, boardID: boardID, log: log.WithFields(logger.F("board", boardID))}
}

// List returns the board's categories ordered by name
func (s *Service) List(ctx context.Context) ([]model.Listable, error) {
	rows, err := s.store.Select(ctx, store.TableListables, store.Query{
		Where: store.Eq("board_id", s.boardID),
		Order: []store.Order{store.Asc("name")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	out := make([]model.Listable, 0, len(rows))
	for _, r := range rows {
		l, err := model.ListableFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Create adds a category. An empty color uses the default.
func (s *Service) Create(ctx context.Context, name, color string) (model.Listable, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Listable{}, ErrNameRequired
	}
	if color == "" {
		color = model.DefaultListableColor
	}
	rows, err := s.store.Insert(ctx, store.TableListables, store.Row{
		"board_id": s.boardID,
		"name":     name,
		"color":    color,
	})
	if err != nil {
		return model.Listable{}, fmt.Errorf("failed to create category: %w", err)
	}
	if len(rows) != 1 {
		return model.Listable{}, fmt.Errorf("insert returned %d rows", len(rows))
	}
	return model.ListableFromRow(rows[0])
}

// Update changes the name and/or color of a category; empty values are left alone
func (s *Service) Update(ctx context.Context, id, name, color string) error {
	patch := store.Row{}
	if name = strings.TrimSpace(name); name != "" {
		patch["name"] = name
	}
	if color != "" {
		patch["color"] = color
	}
	if len(patch) == 0 {
		return nil
	}
	n, err := s.store.Update(ctx, store.TableListables, s.byID(id), patch)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("category %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// Delete removes a category and files its cards under no category
func (s *Service) Delete(ctx context.Context, id string) error {
	cleared, err := s.store.Update(ctx, store.TableCards,
		store.And(store.Eq("board_id", s.boardID), store.Eq("listable_id", id)),
		store.Row{"listable_id": nil})
	if err != nil {
		return fmt.Errorf("failed to detach cards: %w", err)
	}
	n, err := s.store.Delete(ctx, store.TableListables, s.byID(id))
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("category %s: %w", id, store.ErrNotFound)
	}
	s.log.Info("category deleted", logger.F("id", id), logger.F("cards", cleared))
	return nil
}

// Resolve finds a category by id, id prefix or case-insensitive name
func (s *Service) Resolve(ctx context.Context, ref string) (model.Listable, error) {
	all, err := s.List(ctx)
	if err != nil {
		return model.Listable{}, err
	}
	var matches []model.Listable
	for _, l := range all {
		if l.ID == ref || strings.EqualFold(l.Name, ref) {
			return l, nil
		}
		if strings.HasPrefix(l.ID, ref) {
			matches = append(matches, l)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return model.Listable{}, fmt.Errorf("category %q is ambiguous", ref)
	}
	return model.Listable{}, fmt.Errorf("category %q: %w", ref, store.ErrNotFound)
}

func (s *Service) byID(id string) store.Filter {
	return store.And(store.Eq("id", id), store.Eq("board_id", s.boardID))
}
