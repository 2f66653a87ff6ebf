package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/existflow/hearth/internal/board"
	"github.com/existflow/hearth/internal/model"
	"github.com/spf13/cobra"
)

var weekCmd = &cobra.Command{
	Use:     "week [date]",
	Aliases: []string{"ls"},
	Short:   "Show the weekly board",
	Long: `Show the cards of a week, Monday to Sunday. Routines are filled in
for the week before it is shown.

Examples:
  hearth week
  hearth week friday
  hearth week 2024-06-05
  hearth week +7`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWeek,
}

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "List undated cards",
	RunE:  runBacklog,
}

var weekShowDone bool

func init() {
	weekCmd.Flags().BoolVar(&weekShowDone, "done", true, "Include done cards")
}

func runWeek(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		weekRef = args[0]
	}
	ref, err := refTime()
	if err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	b, err := s.board(cmd.Context(), ref)
	if err != nil {
		return err
	}
	printWeek(os.Stdout, b.View(), model.DateOf(now()), weekShowDone)
	return nil
}

func runBacklog(cmd *cobra.Command, args []string) error {
	ref, err := refTime()
	if err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	b, err := s.board(cmd.Context(), ref)
	if err != nil {
		return err
	}
	v := b.View()
	if len(v.Backlog) == 0 {
		fmt.Println("Backlog is empty. Add one with: hearth add --backlog \"Your card\"")
		return nil
	}
	fmt.Printf("\n📥 Backlog (%d)\n", len(v.Backlog))
	fmt.Println(strings.Repeat("─", 60))
	for _, c := range v.Backlog {
		printCard(os.Stdout, c)
	}
	fmt.Println()
	return nil
}

func printWeek(w io.Writer, v board.View, today model.Date, showDone bool) {
	fmt.Fprintf(w, "\n📅 Week %s\n", v.Week)
	for _, day := range v.Week.Days() {
		cards := v.On(day)
		marker := "  "
		if day == today {
			marker = "❯ "
		}
		pending := 0
		for _, c := range cards {
			if !c.IsDone() {
				pending++
			}
		}
		fmt.Fprintf(w, "\n%s%s %s (%d pending)\n", marker, day.Weekday().String()[:3], day, pending)
		fmt.Fprintln(w, strings.Repeat("─", 60))
		shown := 0
		for _, c := range cards {
			if !showDone && c.IsDone() {
				continue
			}
			printCard(w, c)
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(w, "  (nothing)")
		}
	}
	if n := len(v.Backlog); n > 0 {
		fmt.Fprintf(w, "\n📥 %d in backlog\n", n)
	}
	fmt.Fprintln(w)
}

func printCard(w io.Writer, c model.Card) {
	// Status icon
	icon := "[ ]"
	if c.IsDone() {
		icon = "[x]"
	}
	if c.IsCompleted() {
		icon += "✓"
	} else {
		icon += " "
	}

	at := ""
	if c.ScheduledTime != nil {
		at = *c.ScheduledTime
	}

	var extra []string
	if c.IsFromTemplate() {
		extra = append(extra, "↻")
	}
	if c.ChainID != nil && c.StepOrder != nil {
		extra = append(extra, fmt.Sprintf("⛓%d", *c.StepOrder))
	}
	if c.AssignedToBoth {
		extra = append(extra, "@both")
	} else if c.AssignedTo != nil {
		extra = append(extra, "@"+*c.AssignedTo)
	}
	for _, t := range c.Tags {
		extra = append(extra, "#"+t)
	}
	if c.Priority == model.PriorityHigh {
		extra = append(extra, "▲")
	}

	fmt.Fprintf(w, "  %s %-8s  %-5s  %-36s  %s\n", icon, shortID(c.ID), at, truncate(c.Title, 36), strings.Join(extra, " "))
}
