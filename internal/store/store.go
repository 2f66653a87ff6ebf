// Package store defines the contract between the board logic and the
// relational store that holds cards, categories and chains.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Table names
const (
	TableCards      = "cards"
	TableListables  = "listables"
	TableChains     = "event_chains"
	TableChainSteps = "chain_steps"
)

var (
	// ErrNotFound is returned when a required row does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a unique constraint
	ErrConflict = errors.New("already exists")
	// ErrUnknownTable is returned for tables outside the schema
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownColumn is returned for columns outside a table's schema
	ErrUnknownColumn = errors.New("unknown column")
	// ErrInvalidValue is returned when a value does not fit its column
	ErrInvalidValue = errors.New("invalid value")
)

// Row is one record keyed by column name
type Row map[string]any

// ID returns the row's id column as a string
func (r Row) ID() string {
	if s, ok := r["id"].(string); ok {
		return s
	}
	return ""
}

// Clone returns a shallow copy of the row
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Order sorts a select by one column
type Order struct {
	Column string
	Desc   bool
}

// Asc orders ascending by column
func Asc(column string) Order { return Order{Column: column} }

// Desc orders descending by column
func Desc(column string) Order { return Order{Column: column, Desc: true} }

func (o Order) String() string {
	if o.Desc {
		return o.Column + ".desc"
	}
	return o.Column + ".asc"
}

// FormatOrder encodes orders as "col.asc,col2.desc"
func FormatOrder(orders []Order) string {
	parts := make([]string, len(orders))
	for i, o := range orders {
		parts[i] = o.String()
	}
	return strings.Join(parts, ",")
}

// ParseOrder decodes "col.asc,col2.desc"; a bare column sorts ascending
func ParseOrder(s string) ([]Order, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var orders []Order
	for _, part := range strings.Split(s, ",") {
		col, dir, _ := strings.Cut(strings.TrimSpace(part), ".")
		if col == "" {
			return nil, fmt.Errorf("invalid order %q", part)
		}
		switch dir {
		case "", "asc":
			orders = append(orders, Asc(col))
		case "desc":
			orders = append(orders, Desc(col))
		default:
			return nil, fmt.Errorf("invalid order direction %q", dir)
		}
	}
	return orders, nil
}

// Query selects rows
type Query struct {
	Where Filter
	Order []Order
}

// EventType is the kind of change carried by an Event
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	// EventResync tells subscribers that events may have been missed,
	// for example after a dropped connection. Record is empty.
	EventResync EventType = "RESYNC"
)

// Event reports a committed change. Record holds the new row, or the
// deleted row for EventDelete.
type Event struct {
	Table  string    `json:"table"`
	Type   EventType `json:"type"`
	Record Row       `json:"record"`
}

// Store is a remote relational store. Identifiers and created_at are
// assigned by the store.
type Store interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, rows ...Row) ([]Row, error)
	Update(ctx context.Context, table string, where Filter, patch Row) (int64, error)
	Delete(ctx context.Context, table string, where Filter) (int64, error)
	// Subscribe streams committed changes to table matching where. The
	// channel is closed when ctx is done.
	Subscribe(ctx context.Context, table string, where Filter) (<-chan Event, error)
}
