package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/existflow/hearth/internal/model"
)

const sidebarWidth = 26

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	sidebar := m.renderSidebar()
	cardList := m.renderCardList()
	statusBar := m.renderStatusBar()

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, cardList)

	var modal string
	switch m.mode {
	case ModeAddCard, ModeEditCard:
		modal = m.renderModal()
	case ModeFilter:
		modal = m.renderFilterModal()
	case ModeNextStep:
		modal = m.renderNextStepModal()
	case ModeConfirmDelete:
		modal = m.renderDeleteModal()
	case ModeHelp:
		mainContent = m.renderHelp()
	}
	if modal != "" {
		mainContent = lipgloss.Place(
			m.width, m.height-2,
			lipgloss.Center, lipgloss.Center,
			modal,
			lipgloss.WithWhitespaceChars(" "),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, statusBar)
}

// slotLabel names a sidebar slot
func (m Model) slotLabel(slot int) string {
	if slot == backlogSlot {
		return "Backlog"
	}
	d := m.view.Week.Days()[slot]
	return fmt.Sprintf("%s %02d", d.Weekday().String()[:3], d.Time().Day())
}

func (m Model) renderSidebar() string {
	var s string

	// Header with week and time
	s += lipgloss.NewStyle().Bold(true).Foreground(Primary).Render("Hearth") + "  "
	s += HelpStyle.Render(m.now().Format("15:04:05")) + "\n"
	s += HelpStyle.Render(m.view.Week.Start.Time().Format("Jan 2")+" – "+m.view.Week.End.Time().Format("Jan 2")) + "\n"
	s += lipgloss.NewStyle().Foreground(Border).Render(strings.Repeat("─", sidebarWidth-5)) + "\n\n"

	today := model.DateOf(m.now())
	for slot := 0; slot <= backlogSlot; slot++ {
		if slot == backlogSlot {
			s += "\n"
		}
		cards := m.slotCards(slot)
		pending := 0
		for _, c := range cards {
			if !c.IsDone() {
				pending++
			}
		}

		cursor := "  "
		style := DayItemStyle
		if slot == m.slot {
			cursor = "❯ "
			if m.pane == PaneDays {
				style = DayItemSelectedStyle
			}
		}

		label := fmt.Sprintf("%-8s", m.slotLabel(slot))
		if d := m.slotDate(slot); d != nil && *d == today {
			label = TodayStyle.Render(label)
		}
		line := fmt.Sprintf("%s%s %d/%d", cursor, label, pending, len(cards))
		s += style.Render(line) + "\n"
	}

	s += "\n" + lipgloss.NewStyle().Foreground(Border).Render(strings.Repeat("─", sidebarWidth-5)) + "\n"
	s += HelpStyle.Render("[ ] week  t today")

	return SidebarStyle.Width(sidebarWidth).Height(m.height - 2).Render(s)
}

func (m Model) renderCardList() string {
	width := m.width - sidebarWidth - 2
	var s string

	cards := m.cards()
	pending := 0
	for _, c := range cards {
		if !c.IsDone() {
			pending++
		}
	}

	title := "Backlog"
	if d := m.slotDate(m.slot); d != nil {
		title = d.Weekday().String() + " " + d.String()
	}
	header := fmt.Sprintf("%s (%d pending)", title, pending)
	s += lipgloss.NewStyle().Bold(true).Foreground(Primary).Render(header) + "\n"
	s += lipgloss.NewStyle().Foreground(Border).Render(strings.Repeat("─", max(width-4, 0))) + "\n\n"

	if len(cards) == 0 {
		s += HelpStyle.Render("  Nothing here. Press 'a' to add a card.")
	}

	matched := make(map[string]bool, len(m.matches))
	for _, mt := range m.matches {
		matched[mt.card.ID] = true
	}

	titleWidth := max(width-28, 10)
	for i, c := range cards {
		cursor := "  "
		style := CardItemStyle
		if i == m.cursor && m.pane == PaneCards {
			cursor = "❯ "
			style = CardItemSelectedStyle
		}
		if matched[c.ID] && i != m.cursor {
			style = lipgloss.NewStyle().Foreground(Highlight)
		}

		icon := "[ ]"
		if c.IsDone() {
			icon = "[x]"
			style = CardDoneStyle
		}
		if c.ItemType == model.ItemNote {
			icon = " • "
		}

		at := "     "
		if c.ScheduledTime != nil {
			at = fmt.Sprintf("%-5s", *c.ScheduledTime)
		}

		check := style.Render(cursor + icon)
		text := style.Render(fmt.Sprintf(" %s %-*s ", at, titleWidth, truncate(c.Title, titleWidth)))
		s += check + text + FormatPriority(c.Priority) + " " + decorations(c) + "\n"
	}

	return CardListStyle.Width(width).Height(m.height - 2).Render(s)
}

// decorations renders the markers after a card title
func decorations(c model.Card) string {
	var parts []string
	if c.IsCompleted() {
		parts = append(parts, CompleteStyle.Render("✓"))
	}
	if c.IsFromTemplate() {
		parts = append(parts, RoutineStyle.Render("↻"))
	}
	if c.ChainID != nil && c.StepOrder != nil {
		parts = append(parts, RoutineStyle.Render(fmt.Sprintf("⛓%d", *c.StepOrder)))
	}
	if c.AssignedToBoth {
		parts = append(parts, TagStyle.Render("@both"))
	} else if c.AssignedTo != nil && *c.AssignedTo != "" {
		parts = append(parts, TagStyle.Render("@"+*c.AssignedTo))
	}
	for _, t := range c.Tags {
		parts = append(parts, TagStyle.Render("#"+t))
	}
	return strings.Join(parts, " ")
}

func (m Model) renderStatusBar() string {
	// When in filter mode, show inline search input (like vim)
	if m.mode == ModeFilter {
		matches := ""
		if len(m.matches) > 0 {
			matches = fmt.Sprintf(" [%d/%d]", m.matchCursor+1, len(m.matches))
		} else if m.filterText != "" {
			matches = " [no match]"
		}
		return StatusBarStyle.Width(m.width).Render("/" + m.input.View() + matches)
	}

	help := "a:add  e:edit  x:done  c:complete  m:move  d:del  /:search  ?:help  q:quit"
	if m.filterText != "" {
		if len(m.matches) > 0 {
			help = fmt.Sprintf("/%s  [%d/%d matches]  n:next  N:prev  Esc:clear",
				m.filterText, m.matchCursor+1, len(m.matches))
		} else {
			help = fmt.Sprintf("/%s  [no matches]  Esc:clear", m.filterText)
		}
	} else if m.message != "" {
		help = m.message
	}

	// Connection state (right aligned)
	var state string
	switch {
	case m.saving > 0:
		state = lipgloss.NewStyle().Foreground(Saving).Render("Saving...")
	case m.live:
		state = lipgloss.NewStyle().Foreground(LiveOK).Render("● live")
	default:
		state = lipgloss.NewStyle().Foreground(Offline).Render("○ offline")
	}

	avail := m.width - lipgloss.Width(help) - lipgloss.Width(state) - 2
	if avail > 0 {
		help += strings.Repeat(" ", avail) + state
	} else {
		help += " " + state
	}

	return StatusBarStyle.Width(m.width).Render(help)
}

func (m Model) renderModal() string {
	title := "Edit Card"
	if m.mode == ModeAddCard {
		title = "Add Card to: " + m.slotLabel(m.slot)
	}

	content := lipgloss.NewStyle().Bold(true).Render(title) + "\n\n"
	content += m.input.View() + "\n\n"
	content += HelpStyle.Render("Enter:save  Esc:cancel")

	return ModalStyle.Render(content)
}

func (m Model) renderFilterModal() string {
	modalWidth := 55
	maxResults := 8

	var content string
	content += lipgloss.NewStyle().Bold(true).Foreground(Primary).Render("Search") + "  "
	content += HelpStyle.Render("this week and backlog") + "\n\n"
	content += "/" + m.input.View() + "\n\n"
	content += lipgloss.NewStyle().Foreground(Border).Render(strings.Repeat("─", modalWidth-6)) + "\n\n"

	switch {
	case m.filterText == "":
		content += HelpStyle.Render("Type to search titles and #tags...") + "\n"
	case len(m.matches) == 0:
		content += HelpStyle.Render("No matches found") + "\n"
	default:
		content += fmt.Sprintf("%d matches\n\n", len(m.matches))
		for i, mt := range m.matches {
			if i >= maxResults {
				content += HelpStyle.Render(fmt.Sprintf("... +%d more", len(m.matches)-maxResults)) + "\n"
				break
			}
			icon := "[ ]"
			if mt.card.IsDone() {
				icon = "[x]"
			}

			marker := "  "
			style := lipgloss.NewStyle()
			if i == m.matchCursor {
				marker = "❯ "
				style = lipgloss.NewStyle().Bold(true).Foreground(Primary)
			}

			line := fmt.Sprintf("%s%s %-8s %s", marker, icon, m.slotLabel(mt.slot), truncate(mt.card.Title, modalWidth-22))
			content += style.Render(line) + "\n"
		}
	}

	content += "\n" + HelpStyle.Render("↑↓:nav  Enter:select  Esc:close")

	return ModalStyle.Width(modalWidth).Render(content)
}

func (m Model) renderNextStepModal() string {
	if m.next == nil {
		return ""
	}
	content := lipgloss.NewStyle().Bold(true).Foreground(Primary).Render("⛓ Next step") + "\n\n"
	content += lipgloss.NewStyle().Bold(true).Render(m.next.Title) + "\n"
	if m.next.DefaultDelayHours != nil {
		content += HelpStyle.Render(fmt.Sprintf("usually %dh after the previous step", *m.next.DefaultDelayHours)) + "\n"
	}
	content += "\n"
	content += "[t] Today\n"
	content += "[b] Backlog\n"
	content += "[l] Later\n\n"
	content += HelpStyle.Render("Esc:skip")
	return ModalStyle.Width(44).Render(content)
}

func (m Model) renderDeleteModal() string {
	card, ok := m.currentCard()
	if !ok {
		return ""
	}
	content := lipgloss.NewStyle().Bold(true).Render("Delete card?") + "\n\n"
	content += truncate(card.Title, 40) + "\n"
	if card.IsFromTemplate() {
		content += HelpStyle.Render("The routine will not bring it back.") + "\n"
	}
	content += "\n" + HelpStyle.Render("y:delete  any other key:cancel")
	return ModalStyle.Render(content)
}

func (m Model) renderHelp() string {
	help := `
╭─── Keyboard Shortcuts ────╮
│                           │
│  Navigation               │
│  ──────────               │
│  j/↓     Move down        │
│  k/↑     Move up          │
│  h/l     Switch pane      │
│  Tab     Switch pane      │
│  G       Go to bottom     │
│  [ / ]   Previous/next wk │
│  t       Today            │
│                           │
│  Cards                    │
│  ─────                    │
│  a       Add card         │
│  e       Edit title       │
│  x/Enter Toggle done      │
│  c       Complete         │
│  m       Move to/from     │
│          backlog          │
│  d       Delete           │
│  1-3     Set priority     │
│                           │
│  Other                    │
│  ─────                    │
│  /       Search           │
│  r       Refresh          │
│  ?       Toggle help      │
│  q       Quit             │
│                           │
╰───────────────────────────╯

     Press any key to close
`
	return lipgloss.Place(m.width, m.height-2, lipgloss.Center, lipgloss.Center, help)
}

// truncate shortens s to n runes with an ellipsis
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
