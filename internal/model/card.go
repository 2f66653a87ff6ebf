package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Status of a card
type Status string

const (
	StatusTodo Status = "todo"
	StatusDone Status = "done"
	// StatusCancelled marks a deleted routine instance. The row stays so the
	// materializer never recreates its slot, but it is never listed.
	StatusCancelled Status = "cancelled"
)

// Priority of a card
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ItemType distinguishes actionable tasks from plain notes
type ItemType string

const (
	ItemTask ItemType = "task"
	ItemNote ItemType = "note"
)

// Kind is the role a card plays on the board
type Kind int

const (
	KindInstance Kind = iota // dated card on the weekly board
	KindBacklog              // undated card waiting for triage
	KindTemplate             // routine definition
)

func (k Kind) String() string {
	switch k {
	case KindInstance:
		return "instance"
	case KindBacklog:
		return "backlog"
	case KindTemplate:
		return "template"
	default:
		return "unknown"
	}
}

// Card is the unit of work: a dated instance, a backlog item or a routine template
type Card struct {
	ID                  string     `json:"id,omitempty"`
	BoardID             string     `json:"board_id,omitempty"`
	Title               string     `json:"title"`
	Description         *string    `json:"description"`
	Date                *Date      `json:"date"`
	IsRecurringTemplate bool       `json:"is_recurring_template"`
	RecurrenceRule      *string    `json:"recurrence_rule"`
	TemplateID          *string    `json:"template_id"`
	Status              Status     `json:"status,omitempty"`
	IsActive            *bool      `json:"is_active"`
	CompletedAt         *time.Time `json:"completed_at"`
	Priority            Priority   `json:"priority,omitempty"`
	DueDate             *Date      `json:"due_date"`
	Tags                []string   `json:"tags"`
	ListableID          *string    `json:"listable_id"`
	ItemType            ItemType   `json:"item_type,omitempty"`
	AssignedTo          *string    `json:"assigned_to"`
	AssignedToBoth      bool       `json:"assigned_to_both"`
	ScheduledTime       *string    `json:"scheduled_time"`
	ChainID             *string    `json:"chain_id"`
	StepOrder           *int       `json:"step_order"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
	CreatedBy           *string    `json:"created_by"`
}

// Patch is a partial update keyed by column name
type Patch map[string]any

// Kind classifies the card
func (c Card) Kind() Kind {
	if c.IsRecurringTemplate {
		return KindTemplate
	}
	if c.Date == nil {
		return KindBacklog
	}
	return KindInstance
}

// IsCancelled reports whether the card is a cancellation tombstone
func (c Card) IsCancelled() bool {
	return c.Status == StatusCancelled
}

// Visible reports whether the card belongs in a user-facing task list
func (c Card) Visible() bool {
	return !c.IsCancelled() && !c.IsRecurringTemplate
}

// IsActiveTemplate reports whether the card is a routine that still generates instances.
// A missing is_active counts as active.
func (c Card) IsActiveTemplate() bool {
	return c.IsRecurringTemplate && (c.IsActive == nil || *c.IsActive)
}

// IsFromTemplate reports whether the card was materialized from a routine
func (c Card) IsFromTemplate() bool {
	return c.TemplateID != nil && *c.TemplateID != ""
}

// IsDone reports the checkbox state
func (c Card) IsDone() bool {
	return c.Status == StatusDone
}

// IsCompleted reports the explicit completion mark
func (c Card) IsCompleted() bool {
	return c.CompletedAt != nil
}

// Rule returns the parsed recurrence rule, empty for non-templates
func (c Card) Rule() Rule {
	if c.RecurrenceRule == nil {
		return Rule{}
	}
	return ParseRule(*c.RecurrenceRule)
}

// Row converts the card to a column map
func (c Card) Row() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode card: %w", err)
	}
	return decodeRow(data)
}

// InsertRow converts the card to a column map without the store-assigned columns
func (c Card) InsertRow() (map[string]any, error) {
	row, err := c.Row()
	if err != nil {
		return nil, err
	}
	delete(row, "id")
	delete(row, "created_at")
	return row, nil
}

// Apply returns a copy of the card with the patch applied
func (c Card) Apply(p Patch) (Card, error) {
	row, err := c.Row()
	if err != nil {
		return Card{}, err
	}
	for k, v := range p {
		row[k] = v
	}
	return CardFromRow(row)
}

// Clone returns a deep copy of the card
func (c Card) Clone() Card {
	out := c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	out.Description = clonePtr(c.Description)
	out.Date = clonePtr(c.Date)
	out.RecurrenceRule = clonePtr(c.RecurrenceRule)
	out.TemplateID = clonePtr(c.TemplateID)
	out.IsActive = clonePtr(c.IsActive)
	out.CompletedAt = clonePtr(c.CompletedAt)
	out.DueDate = clonePtr(c.DueDate)
	out.ListableID = clonePtr(c.ListableID)
	out.AssignedTo = clonePtr(c.AssignedTo)
	out.ScheduledTime = clonePtr(c.ScheduledTime)
	out.ChainID = clonePtr(c.ChainID)
	out.StepOrder = clonePtr(c.StepOrder)
	out.CreatedAt = clonePtr(c.CreatedAt)
	out.CreatedBy = clonePtr(c.CreatedBy)
	return out
}

// CardFromRow decodes a column map into a card
func CardFromRow(row map[string]any) (Card, error) {
	var c Card
	if err := fromRow(row, &c); err != nil {
		return Card{}, fmt.Errorf("failed to decode card: %w", err)
	}
	return c, nil
}

// String returns a pointer to s, nil when s is empty
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Bool returns a pointer to b
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to n
func Int(n int) *int {
	return &n
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func decodeRow(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}

func fromRow(row map[string]any, v any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func toRow(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeRow(data)
}
