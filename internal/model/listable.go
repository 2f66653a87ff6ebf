package model

import (
	"fmt"
	"time"
)

// DefaultListableColor is used when a category is created without a color
const DefaultListableColor = "#4ECDC4"

// Listable is a board category that cards can reference through listable_id
type Listable struct {
	ID        string     `json:"id,omitempty"`
	BoardID   string     `json:"board_id"`
	Name      string     `json:"name"`
	Color     string     `json:"color"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ListableFromRow decodes a listables row
func ListableFromRow(row map[string]any) (Listable, error) {
	var l Listable
	if err := fromRow(row, &l); err != nil {
		return Listable{}, fmt.Errorf("failed to decode listable: %w", err)
	}
	return l, nil
}
