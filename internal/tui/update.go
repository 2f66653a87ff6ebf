package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/existflow/hearth/internal/board"
	"github.com/existflow/hearth/internal/chain"
	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/model"
)

// tickMsg is sent every second for time updates
type tickMsg time.Time

// viewMsg carries the board state after a change
type viewMsg board.View

// watchMsg reports whether the change feed connected
type watchMsg struct{ err error }

// opMsg reports the end of a mutation
type opMsg struct {
	text string
	err  error
}

// completedMsg follows a completion, with the chain step it unlocks
type completedMsg struct {
	card model.Card
	step model.ChainStep
	ok   bool
	err  error
}

// Init starts the clock, the change listener and the change feed
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.waitForChange(), m.watch())
}

func tickCmd() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForChange delivers the next board view
func (m Model) waitForChange() tea.Cmd {
	changes := m.changes
	return func() tea.Msg {
		return viewMsg(<-changes)
	}
}

func (m Model) watch() tea.Cmd {
	b, ctx := m.board, m.ctx
	return func() tea.Msg {
		return watchMsg{err: b.Watch(ctx)}
	}
}

// run performs a mutation off the UI loop
func (m *Model) run(fn func() (string, error)) tea.Cmd {
	m.saving++
	return func() tea.Msg {
		text, err := fn()
		return opMsg{text: text, err: err}
	}
}

// describe turns a failed mutation into a status line
func describe(err error) string {
	var me *board.MutationError
	switch {
	case errors.Is(err, board.ErrPendingCard):
		return "Card is still being saved, try again in a moment"
	case errors.As(err, &me):
		return fmt.Sprintf("Could not %s card, change undone: %v", me.Op, me.Err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		// let ticked cards sink once their delay is over
		for id, at := range m.recentlyDone {
			if m.now().Sub(at) >= doneDelay {
				delete(m.recentlyDone, id)
			}
		}
		return m, tickCmd()

	case viewMsg:
		m.view = board.View(msg)
		m.clamp()
		return m, m.waitForChange()

	case watchMsg:
		if msg.err != nil {
			logger.Warn("change feed unavailable", logger.Err(msg.err))
			m.message = "Live updates unavailable, press r to refresh"
		} else {
			m.live = true
		}
		return m, nil

	case opMsg:
		m.saving--
		if msg.err != nil {
			logger.Error("board operation failed", logger.Err(msg.err))
			m.message = describe(msg.err)
		} else if msg.text != "" {
			m.message = msg.text
		}
		return m, nil

	case completedMsg:
		m.saving--
		if msg.err != nil {
			logger.Error("complete failed", logger.Err(msg.err))
			m.message = describe(msg.err)
			return m, nil
		}
		m.message = fmt.Sprintf("Completed: %s", msg.card.Title)
		if msg.ok {
			step := msg.step
			m.next = &step
			m.mode = ModeNextStep
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		// Handle mode-specific input
		switch m.mode {
		case ModeAddCard, ModeEditCard:
			return m.updateInput(msg)
		case ModeFilter:
			return m.updateFilter(msg)
		case ModeNextStep:
			return m.updateNextStep(msg)
		case ModeConfirmDelete:
			return m.updateConfirmDelete(msg)
		case ModeHelp:
			m.mode = ModeNormal
			return m, nil
		}

		// Normal mode key handling
		return m.handleNormalKeys(msg)
	}

	return m, nil
}

// handleNormalKeys handles key presses in normal mode
func (m Model) handleNormalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Tab):
		if m.pane == PaneDays {
			m.pane = PaneCards
		} else {
			m.pane = PaneDays
		}

	case key.Matches(msg, keys.Left):
		m.pane = PaneDays

	case key.Matches(msg, keys.Right):
		m.pane = PaneCards

	case key.Matches(msg, keys.Up):
		m.handleUp()

	case key.Matches(msg, keys.Down):
		m.handleDown()

	case msg.String() == "G":
		m.handleGoBottom()

	case msg.String() == "1", msg.String() == "2", msg.String() == "3":
		cmd := m.handlePriority(msg.String())
		return m, cmd

	case key.Matches(msg, keys.Add):
		return m.startAddCard()

	case key.Matches(msg, keys.Edit):
		return m.startEditCard()

	case key.Matches(msg, keys.Enter):
		if m.pane == PaneDays {
			m.pane = PaneCards
			return m, nil
		}
		cmd := m.handleToggleDone()
		return m, cmd

	case key.Matches(msg, keys.Done):
		cmd := m.handleToggleDone()
		return m, cmd

	case key.Matches(msg, keys.Complete):
		cmd := m.handleComplete()
		return m, cmd

	case key.Matches(msg, keys.Move):
		cmd := m.handleMove()
		return m, cmd

	case key.Matches(msg, keys.Delete):
		if _, ok := m.currentCard(); ok && m.pane == PaneCards {
			m.mode = ModeConfirmDelete
		}

	case key.Matches(msg, keys.PrevWeek):
		cmd := m.loadWeek(m.view.Week.Prev())
		return m, cmd

	case key.Matches(msg, keys.NextWeek):
		cmd := m.loadWeek(m.view.Week.Next())
		return m, cmd

	case key.Matches(msg, keys.ThisWeek):
		week := board.WeekOf(m.now())
		if week != m.view.Week {
			m.slot = (int(m.now().Weekday()) + 6) % 7
			m.cursor = 0
			cmd := m.loadWeek(week)
			return m, cmd
		}
		m.slot = m.todaySlot()
		m.cursor = 0

	case key.Matches(msg, keys.Search):
		return m.startFilter()

	case msg.String() == "n":
		m.handleNextMatch()

	case msg.String() == "N":
		m.handlePrevMatch()

	case key.Matches(msg, keys.Escape):
		if m.filterText != "" {
			m.filterText = ""
			m.matches = nil
			m.message = "Filter cleared"
		}

	case key.Matches(msg, keys.Help):
		m.mode = ModeHelp

	case key.Matches(msg, keys.Refresh):
		cmd := m.handleRefresh()
		return m, cmd
	}

	return m, nil
}

func (m *Model) handleUp() {
	if m.pane == PaneDays {
		if m.slot > 0 {
			m.slot--
			m.cursor = 0
		}
	} else if m.cursor > 0 {
		m.cursor--
	}
}

func (m *Model) handleDown() {
	if m.pane == PaneDays {
		if m.slot < backlogSlot {
			m.slot++
			m.cursor = 0
		}
	} else if m.cursor < len(m.cards())-1 {
		m.cursor++
	}
}

func (m *Model) handleGoBottom() {
	if m.pane == PaneDays {
		m.slot = backlogSlot
		m.cursor = 0
	} else {
		m.cursor = len(m.cards()) - 1
		m.clamp()
	}
}

func (m *Model) handlePriority(k string) tea.Cmd {
	if m.pane != PaneCards {
		return nil
	}
	card, ok := m.currentCard()
	if !ok {
		return nil
	}
	p := map[string]model.Priority{"1": model.PriorityHigh, "2": model.PriorityNormal, "3": model.PriorityLow}[k]
	b, ctx := m.board, m.ctx
	return m.run(func() (string, error) {
		if err := b.Update(ctx, card.ID, model.Patch{"priority": string(p)}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Priority set to %s", p), nil
	})
}

func (m *Model) handleToggleDone() tea.Cmd {
	if m.pane != PaneCards {
		return nil
	}
	card, ok := m.currentCard()
	if !ok {
		return nil
	}
	done := !card.IsDone()
	if done {
		m.recentlyDone[card.ID] = m.now()
	} else {
		delete(m.recentlyDone, card.ID)
	}
	b, ctx := m.board, m.ctx
	return m.run(func() (string, error) {
		return "", b.ToggleStatus(ctx, card.ID, done)
	})
}

// handleComplete marks the card completed and looks up the chain step it
// unlocks. A completed card is reopened instead.
func (m *Model) handleComplete() tea.Cmd {
	if m.pane != PaneCards {
		return nil
	}
	card, ok := m.currentCard()
	if !ok {
		return nil
	}
	b, chains, ctx := m.board, m.chains, m.ctx
	if card.IsCompleted() {
		return m.run(func() (string, error) {
			if err := b.Uncomplete(ctx, card.ID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Not completed: %s", card.Title), nil
		})
	}
	m.saving++
	return func() tea.Msg {
		if err := b.Complete(ctx, card.ID); err != nil {
			return completedMsg{card: card, err: err}
		}
		if chains == nil {
			return completedMsg{card: card}
		}
		step, ok, err := chains.After(ctx, card)
		if err != nil {
			logger.Warn("failed to look up next chain step", logger.Err(err))
		}
		return completedMsg{card: card, step: step, ok: ok}
	}
}

// handleMove sends a dated card to the backlog and a backlog card to the
// selected day of the week pane
func (m *Model) handleMove() tea.Cmd {
	if m.pane != PaneCards {
		return nil
	}
	card, ok := m.currentCard()
	if !ok {
		return nil
	}
	patch := model.Patch{"date": nil}
	text := fmt.Sprintf("Moved to backlog: %s", card.Title)
	if card.Date == nil {
		day := model.DateOf(m.now())
		if !m.view.Week.Contains(day) {
			day = m.view.Week.Start
		}
		patch["date"] = day.String()
		text = fmt.Sprintf("Scheduled %s: %s", day.Weekday().String()[:3], card.Title)
	}
	b, ctx := m.board, m.ctx
	return m.run(func() (string, error) {
		if err := b.Update(ctx, card.ID, patch); err != nil {
			return "", err
		}
		return text, nil
	})
}

func (m *Model) loadWeek(week board.Week) tea.Cmd {
	b, ctx := m.board, m.ctx
	m.message = fmt.Sprintf("Loading %s...", week)
	return m.run(func() (string, error) {
		snap, err := b.Load(ctx, week.Start.Time())
		if err != nil {
			return "", err
		}
		if snap.Created > 0 {
			return fmt.Sprintf("Week %s (%d routine card(s) added)", week, snap.Created), nil
		}
		return fmt.Sprintf("Week %s", week), nil
	})
}

func (m *Model) handleRefresh() tea.Cmd {
	b, ctx := m.board, m.ctx
	return m.run(func() (string, error) {
		if _, err := b.Refresh(ctx); err != nil {
			return "", err
		}
		return "Refreshed", nil
	})
}

func (m Model) startAddCard() (tea.Model, tea.Cmd) {
	m.mode = ModeAddCard
	m.input.SetValue("")
	m.input.Placeholder = "Card title..."
	m.input.Focus()
	return m, textinput.Blink
}

func (m Model) startEditCard() (tea.Model, tea.Cmd) {
	if m.pane != PaneCards {
		return m, nil
	}
	card, ok := m.currentCard()
	if !ok {
		return m, nil
	}
	m.mode = ModeEditCard
	m.input.SetValue(card.Title)
	m.input.Placeholder = "Edit title..."
	m.input.Focus()
	m.input.CursorEnd()
	return m, textinput.Blink
}

func (m Model) startFilter() (tea.Model, tea.Cmd) {
	m.mode = ModeFilter
	m.input.SetValue(m.filterText)
	m.input.Placeholder = "/"
	m.input.Focus()
	return m, textinput.Blink
}

func (m *Model) jumpTo(mt match) {
	m.slot = mt.slot
	m.pane = PaneCards
	for i, c := range m.cards() {
		if c.ID == mt.card.ID {
			m.cursor = i
			return
		}
	}
}

func (m *Model) handleNextMatch() {
	if len(m.matches) > 0 {
		m.matchCursor = (m.matchCursor + 1) % len(m.matches)
		m.jumpTo(m.matches[m.matchCursor])
		m.message = fmt.Sprintf("[%d/%d] matches", m.matchCursor+1, len(m.matches))
	}
}

func (m *Model) handlePrevMatch() {
	if len(m.matches) > 0 {
		m.matchCursor--
		if m.matchCursor < 0 {
			m.matchCursor = len(m.matches) - 1
		}
		m.jumpTo(m.matches[m.matchCursor])
		m.message = fmt.Sprintf("[%d/%d] matches", m.matchCursor+1, len(m.matches))
	}
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		m.mode = ModeNormal
		return m, nil

	case msg.Type == tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = ModeNormal
		if value == "" {
			return m, nil
		}

		b, ctx := m.board, m.ctx
		switch mode {
		case ModeAddCard:
			card := model.Card{
				Title:    value,
				Date:     m.slotDate(m.slot),
				Tags:     []string{},
				Priority: model.PriorityNormal,
				ItemType: model.ItemTask,
			}
			m.pane = PaneCards
			cmd := m.run(func() (string, error) {
				if _, err := b.Add(ctx, card); err != nil {
					return "", err
				}
				return fmt.Sprintf("Added: %s", value), nil
			})
			return m, cmd
		case ModeEditCard:
			card, ok := m.currentCard()
			if !ok {
				return m, nil
			}
			cmd := m.run(func() (string, error) {
				if err := b.Update(ctx, card.ID, model.Patch{"title": value}); err != nil {
					return "", err
				}
				return fmt.Sprintf("Updated: %s", value), nil
			})
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		m.mode = ModeNormal
		m.filterText = ""
		m.matches = nil
		return m, nil

	case msg.Type == tea.KeyUp:
		if m.matchCursor > 0 {
			m.matchCursor--
		}
		return m, nil

	case msg.Type == tea.KeyDown:
		if m.matchCursor < len(m.matches)-1 {
			m.matchCursor++
		}
		return m, nil

	case msg.Type == tea.KeyEnter:
		// Jump to selected match
		if m.matchCursor < len(m.matches) {
			m.jumpTo(m.matches[m.matchCursor])
		}
		m.mode = ModeNormal
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	// Live filter as user types
	m.filterText = m.input.Value()
	m.applyFilter()
	return m, cmd
}

// applyFilter matches titles and tags over the week and the backlog
func (m *Model) applyFilter() {
	m.matches = nil
	m.matchCursor = 0
	if m.filterText == "" {
		return
	}

	filter := strings.ToLower(m.filterText)
	for slot := 0; slot <= backlogSlot; slot++ {
		for _, c := range m.slotCards(slot) {
			if matchesCard(c, filter) {
				m.matches = append(m.matches, match{slot: slot, card: c})
			}
		}
	}
}

func matchesCard(c model.Card, filter string) bool {
	if strings.Contains(strings.ToLower(c.Title), filter) {
		return true
	}
	for _, t := range c.Tags {
		if strings.Contains(strings.ToLower(t), strings.TrimPrefix(filter, "#")) {
			return true
		}
	}
	return false
}

// updateNextStep asks where the unlocked chain step goes
func (m Model) updateNextStep(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var where chain.Placement
	switch msg.String() {
	case "t":
		where = chain.PlaceToday
	case "b":
		where = chain.PlaceBacklog
	case "l":
		where = chain.PlaceLater
	case "esc", "q":
		m.mode = ModeNormal
		m.next = nil
		m.message = "Next step skipped"
		return m, nil
	default:
		return m, nil
	}

	step := *m.next
	m.mode = ModeNormal
	m.next = nil
	b, chains, ctx := m.board, m.chains, m.ctx
	cmd := m.run(func() (string, error) {
		if _, err := chains.Schedule(ctx, b, step, where); err != nil {
			return "", err
		}
		switch where {
		case chain.PlaceToday:
			return fmt.Sprintf("Next step added for today: %s", step.Title), nil
		case chain.PlaceBacklog:
			return fmt.Sprintf("Next step added to backlog: %s", step.Title), nil
		default:
			return fmt.Sprintf("Set aside: %s", step.Title), nil
		}
	})
	return m, cmd
}

func (m Model) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mode = ModeNormal
	if msg.String() != "y" && msg.String() != "Y" {
		m.message = "Delete cancelled"
		return m, nil
	}
	card, ok := m.currentCard()
	if !ok {
		return m, nil
	}
	b, ctx := m.board, m.ctx
	cmd := m.run(func() (string, error) {
		if err := b.Delete(ctx, card.ID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted: %s", card.Title), nil
	})
	return m, cmd
}
