package model

import (
	"fmt"
	"time"
)

// Chain is an ordered flow of steps; finishing one step suggests the next
type Chain struct {
	ID          string      `json:"id,omitempty"`
	GroupID     string      `json:"group_id"`
	Name        string      `json:"name"`
	Description *string     `json:"description"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
	Steps       []ChainStep `json:"-"`
}

// ChainStep is one step of a chain. StepOrder starts at 1.
type ChainStep struct {
	ID                string     `json:"id,omitempty"`
	ChainID           string     `json:"chain_id"`
	StepOrder         int        `json:"step_order"`
	Title             string     `json:"title"`
	DefaultDelayHours *int       `json:"default_delay_hours"`
	PendingSince      *time.Time `json:"pending_since"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
}

// IsPending reports whether the step was put aside for later
func (s ChainStep) IsPending() bool {
	return s.PendingSince != nil
}

// Next returns the step that follows order, if any
func (c Chain) Next(order int) (ChainStep, bool) {
	for _, s := range c.Steps {
		if s.StepOrder == order+1 {
			return s, true
		}
	}
	return ChainStep{}, false
}

// MaxStepOrder returns the highest step order in the chain, 0 when empty
func (c Chain) MaxStepOrder() int {
	highest := 0
	for _, s := range c.Steps {
		if s.StepOrder > highest {
			highest = s.StepOrder
		}
	}
	return highest
}

// ChainFromRow decodes an event_chains row
func ChainFromRow(row map[string]any) (Chain, error) {
	var c Chain
	if err := fromRow(row, &c); err != nil {
		return Chain{}, fmt.Errorf("failed to decode chain: %w", err)
	}
	return c, nil
}

// ChainStepFromRow decodes a chain_steps row
func ChainStepFromRow(row map[string]any) (ChainStep, error) {
	var s ChainStep
	if err := fromRow(row, &s); err != nil {
		return ChainStep{}, fmt.Errorf("failed to decode chain step: %w", err)
	}
	return s, nil
}

// InsertRow converts the step to a column map without store-assigned columns
func (s ChainStep) InsertRow() (map[string]any, error) {
	row, err := toRow(s)
	if err != nil {
		return nil, err
	}
	delete(row, "id")
	delete(row, "created_at")
	return row, nil
}
