// Package memstore is an in-memory store.Store for tests. It enforces the
// same schema and slot uniqueness as the SQL store and can inject failures.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/existflow/hearth/internal/store"
)

// Op names a store operation passed to hooks
type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Call records one store call
type Call struct {
	Op    Op
	Table string
	Where store.Filter
	Row   store.Row // inserted row or update patch
}

// Store keeps rows per table in insertion order
type Store struct {
	mu     sync.Mutex
	tables map[string][]store.Row
	calls  []Call
	clock  time.Time
	hub    *store.Hub

	// Hook runs before every call without the lock held. A non-nil error
	// fails the call. Tests use it to fail or block chosen operations.
	Hook func(c Call) error
}

// New creates an empty store
func New() *Store {
	return &Store{
		tables: make(map[string][]store.Row),
		clock:  time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		hub:    store.NewHub(),
	}
}

// Seed inserts rows as they are, keeping given ids, without hooks or events
func (s *Store) Seed(table string, rows ...store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		r = r.Clone()
		if r.ID() == "" {
			r["id"] = uuid.NewString()
		}
		if _, ok := r["created_at"]; !ok {
			r["created_at"] = s.tick()
		}
		s.tables[table] = append(s.tables[table], r)
	}
}

// Rows returns a copy of every row of table
func (s *Store) Rows(table string) []store.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, r.Clone())
	}
	return out
}

// Calls returns the calls made so far, optionally only of the given ops
func (s *Store) Calls(ops ...Op) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if len(ops) == 0 || containsOp(ops, c.Op) {
			out = append(out, c)
		}
	}
	return out
}

func containsOp(ops []Op, op Op) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func (s *Store) tick() string {
	s.clock = s.clock.Add(time.Second)
	return store.FormatTime(s.clock)
}

func (s *Store) enter(c Call) error {
	if _, err := store.Lookup(c.Table); err != nil {
		return err
	}
	if err := c.Where.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.calls = append(s.calls, c)
	hook := s.Hook
	s.mu.Unlock()
	if hook != nil {
		return hook(c)
	}
	return nil
}

// Select implements store.Store
func (s *Store) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	if err := s.enter(Call{Op: OpSelect, Table: table, Where: q.Where}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Row
	for _, r := range s.tables[table] {
		if q.Where.Match(r) {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.Order {
			c := compareValues(out[i][o.Column], out[j][o.Column])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out, nil
}

// Insert implements store.Store
func (s *Store) Insert(ctx context.Context, table string, rows ...store.Row) ([]store.Row, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := t.CheckColumns(keys(r)...); err != nil {
			return nil, err
		}
		if err := s.enter(Call{Op: OpInsert, Table: table, Row: r.Clone()}); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	var stored []store.Row
	before := len(s.tables[table])
	for _, r := range rows {
		r = r.Clone()
		delete(r, "id")
		r["id"] = uuid.NewString()
		r["created_at"] = s.tick()
		if table == store.TableCards {
			if _, ok := r["status"]; !ok {
				r["status"] = "todo"
			}
			if s.slotTaken(r) {
				s.tables[table] = s.tables[table][:before]
				s.mu.Unlock()
				return nil, fmt.Errorf("insert %s: %w", table, store.ErrConflict)
			}
		}
		s.tables[table] = append(s.tables[table], r)
		stored = append(stored, r.Clone())
	}
	s.mu.Unlock()

	for _, r := range stored {
		s.hub.Publish(store.Event{Table: table, Type: store.EventInsert, Record: r.Clone()})
	}
	return stored, nil
}

func (s *Store) slotTaken(r store.Row) bool {
	tmpl := store.Normalize(r["template_id"])
	date := store.Normalize(r["date"])
	if tmpl == nil || date == nil {
		return false
	}
	for _, other := range s.tables[store.TableCards] {
		if store.Normalize(other["template_id"]) == tmpl && store.Normalize(other["date"]) == date {
			return true
		}
	}
	return false
}

// Update implements store.Store
func (s *Store) Update(ctx context.Context, table string, where store.Filter, patch store.Row) (int64, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return 0, err
	}
	if where.IsEmpty() {
		return 0, fmt.Errorf("update %s: a filter is required", table)
	}
	if _, ok := patch["id"]; ok {
		return 0, fmt.Errorf("update %s: id cannot change", table)
	}
	if err := t.CheckColumns(keys(patch)...); err != nil {
		return 0, err
	}
	if err := s.enter(Call{Op: OpUpdate, Table: table, Where: where, Row: patch.Clone()}); err != nil {
		return 0, err
	}

	s.mu.Lock()
	var changed []store.Row
	for _, r := range s.tables[table] {
		if !where.Match(r) {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		changed = append(changed, r.Clone())
	}
	s.mu.Unlock()

	for _, r := range changed {
		s.hub.Publish(store.Event{Table: table, Type: store.EventUpdate, Record: r})
	}
	return int64(len(changed)), nil
}

// Delete implements store.Store
func (s *Store) Delete(ctx context.Context, table string, where store.Filter) (int64, error) {
	if where.IsEmpty() {
		return 0, fmt.Errorf("delete %s: a filter is required", table)
	}
	if err := s.enter(Call{Op: OpDelete, Table: table, Where: where}); err != nil {
		return 0, err
	}

	s.mu.Lock()
	var kept, gone []store.Row
	for _, r := range s.tables[table] {
		if where.Match(r) {
			gone = append(gone, r)
		} else {
			kept = append(kept, r)
		}
	}
	s.tables[table] = kept
	if table == store.TableChains {
		s.cascade(gone)
	}
	s.mu.Unlock()

	for _, r := range gone {
		s.hub.Publish(store.Event{Table: table, Type: store.EventDelete, Record: r})
	}
	return int64(len(gone)), nil
}

// cascade drops the steps of deleted chains like the SQL foreign key does
func (s *Store) cascade(chains []store.Row) {
	ids := make(map[string]bool, len(chains))
	for _, c := range chains {
		ids[c.ID()] = true
	}
	var kept []store.Row
	for _, r := range s.tables[store.TableChainSteps] {
		if id, _ := r["chain_id"].(string); !ids[id] {
			kept = append(kept, r)
		}
	}
	s.tables[store.TableChainSteps] = kept
}

// Subscribe implements store.Store
func (s *Store) Subscribe(ctx context.Context, table string, where store.Filter) (<-chan store.Event, error) {
	if _, err := store.Lookup(table); err != nil {
		return nil, err
	}
	if err := where.Validate(); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, table, where), nil
}

// compareValues orders numbers numerically and everything else as text,
// with nulls first
func compareValues(a, b any) int {
	na, nb := store.Normalize(a), store.Normalize(b)
	switch {
	case na == nil && nb == nil:
		return 0
	case na == nil:
		return -1
	case nb == nil:
		return 1
	}
	fa, aok := na.(float64)
	fb, bok := nb.(float64)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(na), fmt.Sprint(nb))
}

func keys(r store.Row) []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	return out
}

var _ store.Store = (*Store)(nil)
