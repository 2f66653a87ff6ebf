// Package tui is the interactive weekly board.
package tui

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/existflow/hearth/internal/board"
	"github.com/existflow/hearth/internal/chain"
	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/model"
)

// Pane represents which pane is focused
type Pane int

const (
	PaneDays Pane = iota
	PaneCards
)

// Mode represents the current UI mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAddCard
	ModeEditCard
	ModeFilter
	ModeNextStep
	ModeConfirmDelete
	ModeHelp
)

// backlogSlot is the sidebar entry after the seven days
const backlogSlot = 7

// doneDelay keeps a freshly ticked card in place before it sinks
const doneDelay = 10 * time.Second

// Model is the main TUI model
type Model struct {
	ctx     context.Context
	board   *board.Board
	chains  *chain.Service
	now     func() time.Time
	changes chan board.View

	view board.View

	// UI state
	width  int
	height int
	pane   Pane
	mode   Mode
	slot   int // 0-6 Monday to Sunday, backlogSlot for the backlog
	cursor int

	// Input
	input textinput.Model

	// Sorting state
	recentlyDone map[string]time.Time

	// Filter (vim-style)
	filterText  string
	matches     []match
	matchCursor int

	// step offered after completing a chain card
	next *model.ChainStep

	live    bool // change feed connected
	saving  int  // mutations in flight
	message string
}

// match is a card found by the filter and where it lives
type match struct {
	slot int
	card model.Card
}

// NewModel creates the board UI for an already loaded board
func NewModel(ctx context.Context, b *board.Board, chains *chain.Service, now func() time.Time) Model {
	logger.Info("Initializing TUI model", logger.F("board", b.ID()))
	if now == nil {
		now = time.Now
	}

	ti := textinput.New()
	ti.Placeholder = "Card title..."
	ti.CharLimit = 256
	ti.Width = 50

	m := Model{
		ctx:          ctx,
		board:        b,
		chains:       chains,
		now:          now,
		changes:      make(chan board.View, 1),
		view:         b.View(),
		pane:         PaneDays,
		mode:         ModeNormal,
		input:        ti,
		recentlyDone: make(map[string]time.Time),
	}
	m.slot = m.todaySlot()

	changes := m.changes
	b.OnChange(func(v board.View) {
		// keep only the newest view
		for {
			select {
			case changes <- v:
				return
			default:
			}
			select {
			case <-changes:
			default:
			}
		}
	})

	logger.Debug("TUI model initialized",
		logger.F("week", m.view.Week),
		logger.F("cards", len(m.view.Cards)),
		logger.F("backlog", len(m.view.Backlog)))
	return m
}

// todaySlot returns today's slot in the viewed week, Monday when today is
// outside it
func (m Model) todaySlot() int {
	today := model.DateOf(m.now())
	for i, d := range m.view.Week.Days() {
		if d == today {
			return i
		}
	}
	return 0
}

// slotCards returns the cards of a sidebar slot in display order: open
// cards first, each group by scheduled time
func (m Model) slotCards(slot int) []model.Card {
	var cards []model.Card
	if slot == backlogSlot {
		cards = append(cards, m.view.Backlog...)
	} else {
		cards = m.view.On(m.view.Week.Days()[slot])
	}

	now := m.now()
	sinks := func(c model.Card) bool {
		if !c.IsDone() {
			return false
		}
		if at, ok := m.recentlyDone[c.ID]; ok && now.Sub(at) < doneDelay {
			return false
		}
		return true
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return !sinks(cards[i]) && sinks(cards[j])
	})
	return cards
}

func (m Model) cards() []model.Card {
	return m.slotCards(m.slot)
}

func (m Model) currentCard() (model.Card, bool) {
	cards := m.cards()
	if m.cursor < len(cards) {
		return cards[m.cursor], true
	}
	return model.Card{}, false
}

// clamp keeps the cursor inside the current list
func (m *Model) clamp() {
	n := len(m.cards())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// slotDate returns the day of a slot, nil for the backlog
func (m Model) slotDate(slot int) *model.Date {
	if slot == backlogSlot {
		return nil
	}
	return m.view.Week.Days()[slot].Ptr()
}
