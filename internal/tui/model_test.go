package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/existflow/hearth/internal/board"
	"github.com/existflow/hearth/internal/chain"
	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
	"github.com/existflow/hearth/internal/store/memstore"
)

// Wednesday
var fixedNow = time.Date(2024, time.June, 5, 18, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func cardRow(id, title string, date any, at string) store.Row {
	r := store.Row{
		"id":                    id,
		"board_id":              "b1",
		"title":                 title,
		"is_recurring_template": false,
		"status":                "todo",
		"priority":              "normal",
		"date":                  date,
	}
	if at != "" {
		r["scheduled_time"] = at
	}
	return r
}

type harness struct {
	store *memstore.Store
	board *board.Board
	chain model.Chain
}

func newHarness(t *testing.T) (Model, *harness) {
	t.Helper()
	ctx := context.Background()
	ms := memstore.New()

	chains := chain.New(ms, "b1", nil).WithClock(clock)
	laundry, err := chains.Create(ctx, "Laundry", []chain.StepSpec{{Title: "Wash"}, {Title: "Fold"}})
	if err != nil {
		t.Fatalf("Create chain: %v", err)
	}

	wash := cardRow("wash", "Wash", "2024-06-05", "10:00")
	wash["chain_id"] = laundry.ID
	wash["step_order"] = 1
	ms.Seed(store.TableCards,
		cardRow("groceries", "Groceries", "2024-06-05", "09:00"),
		wash,
		cardRow("shelf", "Fix shelf", nil, ""),
	)

	b := board.New(ms, "b1", board.Options{UserID: "u1", Now: clock})
	if _, err := b.Load(ctx, fixedNow); err != nil {
		t.Fatalf("Load: %v", err)
	}

	m := NewModel(ctx, b, chains, clock)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model), &harness{store: ms, board: b, chain: laundry}
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
}

// press sends keys and returns the model with the last command
func press(m Model, ks ...string) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range ks {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m, cmd
}

// settle runs a mutation command to completion and delivers the latest view
func settle(t *testing.T, m Model, h *harness, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	next, _ := m.Update(cmd())
	next, _ = next.(Model).Update(viewMsg(h.board.View()))
	return next.(Model)
}

func titles(cards []model.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Title
	}
	return out
}

func TestNewModelSelectsToday(t *testing.T) {
	m, _ := newHarness(t)

	if m.slot != 2 {
		t.Errorf("slot = %d, want 2 (Wednesday)", m.slot)
	}
	if got := titles(m.cards()); strings.Join(got, ",") != "Groceries,Wash" {
		t.Errorf("cards = %v, want [Groceries Wash]", got)
	}
	if got := titles(m.slotCards(backlogSlot)); len(got) != 1 || got[0] != "Fix shelf" {
		t.Errorf("backlog = %v", got)
	}
}

func TestNavigation(t *testing.T) {
	m, _ := newHarness(t)

	m, _ = press(m, "k", "k")
	if m.slot != 0 {
		t.Errorf("slot after k,k = %d, want 0", m.slot)
	}
	m, _ = press(m, "G")
	if m.slot != backlogSlot {
		t.Errorf("slot after G = %d, want backlog", m.slot)
	}
	m, _ = press(m, "t")
	if m.slot != 2 {
		t.Errorf("slot after t = %d, want 2", m.slot)
	}

	m, _ = press(m, "tab", "j")
	if m.pane != PaneCards || m.cursor != 1 {
		t.Errorf("pane %v cursor %d, want cards/1", m.pane, m.cursor)
	}
	m, _ = press(m, "j")
	if m.cursor != 1 {
		t.Errorf("cursor moved past the last card: %d", m.cursor)
	}
}

func TestAddCard(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		wantDate string
	}{
		{"selected day", nil, "2024-06-05"},
		{"monday", []string{"k", "k"}, "2024-06-03"},
		{"backlog", []string{"G"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, h := newHarness(t)
			m, _ = press(m, tt.keys...)
			m, _ = press(m, "a")
			if m.mode != ModeAddCard {
				t.Fatalf("mode = %v, want add", m.mode)
			}
			m, cmd := press(m, "Water plants", "enter")
			m = settle(t, m, h, cmd)

			if m.message != "Added: Water plants" {
				t.Errorf("message = %q", m.message)
			}
			if m.saving != 0 {
				t.Errorf("saving = %d after completion", m.saving)
			}
			var found *model.Card
			for _, c := range m.cards() {
				if c.Title == "Water plants" {
					c := c
					found = &c
				}
			}
			if found == nil {
				t.Fatalf("card not in slot %d: %v", m.slot, titles(m.cards()))
			}
			if board.IsTempID(found.ID) {
				t.Errorf("card still has temp id %s", found.ID)
			}
			got := ""
			if found.Date != nil {
				got = found.Date.String()
			}
			if got != tt.wantDate {
				t.Errorf("date = %q, want %q", got, tt.wantDate)
			}
		})
	}
}

func TestAddCancelled(t *testing.T) {
	m, h := newHarness(t)
	m, _ = press(m, "a", "Nope", "esc")
	if m.mode != ModeNormal {
		t.Errorf("mode = %v after esc", m.mode)
	}
	if n := len(h.store.Rows(store.TableCards)); n != 3 {
		t.Errorf("rows = %d, want 3", n)
	}
}

func TestToggleDoneKeepsCardInPlace(t *testing.T) {
	m, h := newHarness(t)
	m, cmd := press(m, "l", "x")
	m = settle(t, m, h, cmd)

	cards := m.cards()
	if !cards[0].IsDone() || cards[0].Title != "Groceries" {
		t.Fatalf("first card = %+v, want done Groceries", cards[0])
	}

	// once the delay is over the done card sinks
	m.now = func() time.Time { return fixedNow.Add(doneDelay) }
	next, _ := m.Update(tickMsg(fixedNow.Add(doneDelay)))
	m = next.(Model)
	if got := titles(m.cards()); strings.Join(got, ",") != "Wash,Groceries" {
		t.Errorf("cards after delay = %v, want [Wash Groceries]", got)
	}
}

func TestCompleteOffersNextStep(t *testing.T) {
	m, h := newHarness(t)
	m, _ = press(m, "l", "j")
	if c, _ := m.currentCard(); c.Title != "Wash" {
		t.Fatalf("current card = %s", c.Title)
	}

	m, cmd := press(m, "c")
	m = settle(t, m, h, cmd)
	if m.mode != ModeNextStep || m.next == nil || m.next.Title != "Fold" {
		t.Fatalf("mode = %v next = %+v, want Fold offered", m.mode, m.next)
	}
	if !strings.Contains(m.View(), "Next step") {
		t.Error("next step prompt not rendered")
	}

	m, cmd = press(m, "t")
	m = settle(t, m, h, cmd)
	if m.mode != ModeNormal {
		t.Errorf("mode = %v after choosing", m.mode)
	}
	var fold *model.Card
	for _, c := range m.cards() {
		if c.Title == "Fold" {
			c := c
			fold = &c
		}
	}
	if fold == nil {
		t.Fatalf("Fold not added today: %v", titles(m.cards()))
	}
	if fold.ChainID == nil || *fold.ChainID != h.chain.ID || *fold.StepOrder != 2 {
		t.Errorf("Fold chain link = %v/%v", fold.ChainID, fold.StepOrder)
	}

	wash, _ := h.board.View().Find("wash")
	if !wash.IsCompleted() {
		t.Error("Wash not completed")
	}
}

func TestCompleteLaterDefersStep(t *testing.T) {
	m, h := newHarness(t)
	m, cmd := press(m, "l", "j", "c")
	m = settle(t, m, h, cmd)
	m, cmd = press(m, "l")
	m = settle(t, m, h, cmd)

	if m.message != "Set aside: Fold" {
		t.Errorf("message = %q", m.message)
	}
	pending, err := chain.New(h.store, "b1", nil).Pending(context.Background())
	if err != nil || len(pending) != 1 || pending[0].Title != "Fold" {
		t.Errorf("pending = %+v, %v", pending, err)
	}
}

func TestCompleteWithoutChain(t *testing.T) {
	m, h := newHarness(t)
	m, cmd := press(m, "l", "c")
	m = settle(t, m, h, cmd)
	if m.mode != ModeNormal {
		t.Errorf("mode = %v, want normal for a card outside a chain", m.mode)
	}

	// a second c reopens it
	m, cmd = press(m, "c")
	m = settle(t, m, h, cmd)
	if c, _ := m.currentCard(); c.IsCompleted() {
		t.Error("card still completed after second c")
	}
}

func TestDeleteAsksFirst(t *testing.T) {
	m, h := newHarness(t)
	m, _ = press(m, "l", "d")
	if m.mode != ModeConfirmDelete {
		t.Fatalf("mode = %v, want confirm", m.mode)
	}
	m, cmd := press(m, "n")
	if cmd != nil || m.message != "Delete cancelled" {
		t.Errorf("cancel gave cmd %v message %q", cmd, m.message)
	}

	m, _ = press(m, "d")
	m, cmd = press(m, "y")
	m = settle(t, m, h, cmd)
	if got := titles(m.cards()); len(got) != 1 || got[0] != "Wash" {
		t.Errorf("cards after delete = %v", got)
	}
}

func TestMoveBetweenDayAndBacklog(t *testing.T) {
	m, h := newHarness(t)
	m, cmd := press(m, "l", "m")
	m = settle(t, m, h, cmd)
	if got := titles(m.slotCards(backlogSlot)); len(got) != 2 {
		t.Fatalf("backlog = %v, want 2 cards", got)
	}

	m, _ = press(m, "h", "G", "l")
	for range m.cards() {
		if c, _ := m.currentCard(); c.Title == "Fix shelf" {
			break
		}
		m, _ = press(m, "j")
	}
	m, cmd = press(m, "m")
	m = settle(t, m, h, cmd)
	if !strings.HasPrefix(m.message, "Scheduled Wed") {
		t.Errorf("message = %q", m.message)
	}
	if got := titles(m.slotCards(2)); len(got) != 2 || got[1] != "Fix shelf" {
		t.Errorf("wednesday = %v", got)
	}
}

func TestFilterJumpsToMatch(t *testing.T) {
	m, _ := newHarness(t)
	m, _ = press(m, "/", "shelf")
	if len(m.matches) != 1 || m.matches[0].slot != backlogSlot {
		t.Fatalf("matches = %+v", m.matches)
	}
	m, _ = press(m, "enter")
	if m.mode != ModeNormal || m.slot != backlogSlot || m.pane != PaneCards {
		t.Errorf("after enter: mode %v slot %d pane %v", m.mode, m.slot, m.pane)
	}
	if c, _ := m.currentCard(); c.Title != "Fix shelf" {
		t.Errorf("current card = %s", c.Title)
	}
}

func TestFailedMutationIsReported(t *testing.T) {
	m, h := newHarness(t)
	h.store.Hook = func(c memstore.Call) error {
		if c.Op == memstore.OpUpdate {
			return errors.New("server unavailable")
		}
		return nil
	}

	m, cmd := press(m, "l", "1")
	m = settle(t, m, h, cmd)
	if !strings.HasPrefix(m.message, "Could not") {
		t.Errorf("message = %q", m.message)
	}
	if c, _ := m.currentCard(); c.Priority != model.PriorityNormal {
		t.Errorf("priority = %s, want rollback to normal", c.Priority)
	}
}

func TestWeekNavigationLoads(t *testing.T) {
	m, h := newHarness(t)
	m, cmd := press(m, "]")
	m = settle(t, m, h, cmd)
	if m.view.Week.Start.String() != "2024-06-10" {
		t.Errorf("week = %s, want 2024-06-10..", m.view.Week)
	}
	if len(m.cards()) != 0 {
		t.Errorf("next week cards = %v", titles(m.cards()))
	}

	m, cmd = press(m, "t")
	m = settle(t, m, h, cmd)
	if m.view.Week.Start.String() != "2024-06-03" || m.slot != 2 {
		t.Errorf("after t: week %s slot %d", m.view.Week, m.slot)
	}
}

func TestViewRendersBoard(t *testing.T) {
	m, _ := newHarness(t)
	out := m.View()
	for _, want := range []string{"Hearth", "Wednesday 2024-06-05", "Groceries", "09:00", "⛓1", "Backlog"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m, _ = press(m, "?")
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Error("help not rendered")
	}
}
