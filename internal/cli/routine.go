package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/existflow/hearth/internal/board"
	"github.com/existflow/hearth/internal/model"
	"github.com/spf13/cobra"
)

var routineCmd = &cobra.Command{
	Use:     "routine",
	Aliases: []string{"routines"},
	Short:   "Manage routines",
	Long: `Routines are cards that repeat on chosen weekdays. Each week is filled
with one card per routine and day when the week is viewed.`,
}

var routineAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Create a routine",
	Long: `Create a routine repeating on the given weekdays.

Examples:
  hearth routine add "Take out trash" --days mo,th
  hearth routine add "Water plants" --days sat --at 09:00 --both`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRoutineAdd,
}

var routineListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List routines, paused ones included",
	RunE:    runRoutineList,
}

var routinePauseCmd = &cobra.Command{
	Use:   "pause [routine-id]",
	Short: "Stop a routine from filling new weeks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRoutineActive(cmd, args[0], false)
	},
}

var routineResumeCmd = &cobra.Command{
	Use:   "resume [routine-id]",
	Short: "Resume a paused routine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRoutineActive(cmd, args[0], true)
	},
}

var routineDaysCmd = &cobra.Command{
	Use:   "days [routine-id] [days]",
	Short: "Change the weekdays of a routine",
	Long: `Change the weekdays of a routine. Cards already made are kept.

Examples:
  hearth routine days abc123 mo,we,fr`,
	Args: cobra.ExactArgs(2),
	RunE: runRoutineDays,
}

var routineDeleteCmd = &cobra.Command{
	Use:     "delete [routine-id]",
	Aliases: []string{"rm"},
	Short:   "Delete a routine; cards it already made stay",
	Args:    cobra.ExactArgs(1),
	RunE:    runRoutineDelete,
}

var (
	routineDays   string
	routineAt     string
	routineTags   string
	routineAssign string
	routineBoth   bool
)

func init() {
	routineAddCmd.Flags().StringVar(&routineDays, "days", "", "Weekdays, e.g. mo,we or monday,friday")
	routineAddCmd.Flags().StringVar(&routineAt, "at", "", "Scheduled time (HH:MM)")
	routineAddCmd.Flags().StringVarP(&routineTags, "tags", "t", "", "Comma separated tags")
	routineAddCmd.Flags().StringVarP(&routineAssign, "assign", "a", "", "Household member the routine is for")
	routineAddCmd.Flags().BoolVar(&routineBoth, "both", false, "Routine is for everyone")
	_ = routineAddCmd.MarkFlagRequired("days")

	routineCmd.AddCommand(routineAddCmd)
	routineCmd.AddCommand(routineListCmd)
	routineCmd.AddCommand(routinePauseCmd)
	routineCmd.AddCommand(routineResumeCmd)
	routineCmd.AddCommand(routineDaysCmd)
	routineCmd.AddCommand(routineDeleteCmd)
}

func runRoutineAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rule, err := model.ParseDayList(routineDays)
	if err != nil {
		return err
	}

	routine := model.Card{
		Title:          strings.TrimSpace(strings.Join(args, " ")),
		Tags:           splitList(routineTags),
		AssignedTo:     model.String(routineAssign),
		AssignedToBoth: routineBoth,
		Priority:       model.PriorityNormal,
		ItemType:       model.ItemTask,
	}
	if routine.Tags == nil {
		routine.Tags = []string{}
	}
	if routineAt != "" {
		at, err := parseClock(routineAt)
		if err != nil {
			return err
		}
		routine.ScheduledTime = &at
	}

	b, err := routineBoard(cmd)
	if err != nil {
		return err
	}
	stored, err := b.AddRoutine(ctx, routine, rule)
	if err != nil {
		return fmt.Errorf("failed to create routine: %w", err)
	}

	// fill the current week right away
	snap, err := b.Refresh(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("↻ Created routine: \"%s\" on %s (%s)\n", stored.Title, strings.Join(rule.Codes(), ","), shortID(stored.ID))
	if snap.Created > 0 {
		fmt.Printf("  %d card(s) added to this week\n", snap.Created)
	}
	return nil
}

func runRoutineList(cmd *cobra.Command, args []string) error {
	b, err := routineBoard(cmd)
	if err != nil {
		return err
	}

	routines, err := b.Routines(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list routines: %w", err)
	}
	if len(routines) == 0 {
		fmt.Println("No routines yet. Add one with: hearth routine add \"Take out trash\" --days mo,th")
		return nil
	}

	fmt.Println()
	fmt.Printf("  %-8s  %-30s  %-20s  %-5s  %s\n", "ID", "Title", "Days", "At", "State")
	fmt.Println(strings.Repeat("─", 76))
	for _, r := range routines {
		state := "active"
		if !r.IsActiveTemplate() {
			state = "paused"
		}
		at := ""
		if r.ScheduledTime != nil {
			at = *r.ScheduledTime
		}
		fmt.Printf("  %-8s  %-30s  %-20s  %-5s  %s\n", shortID(r.ID), truncate(r.Title, 30), strings.Join(r.Rule().Codes(), ","), at, state)
	}
	fmt.Println()
	return nil
}

func routineBoard(cmd *cobra.Command) (*board.Board, error) {
	s, err := openSession()
	if err != nil {
		return nil, err
	}
	return s.board(cmd.Context(), now())
}

// resolveRoutine finds a routine, paused or not, by id or unique id prefix
func resolveRoutine(ctx context.Context, b *board.Board, ref string) (model.Card, error) {
	routines, err := b.Routines(ctx)
	if err != nil {
		return model.Card{}, fmt.Errorf("failed to list routines: %w", err)
	}
	var found []model.Card
	for _, r := range routines {
		if r.ID == ref {
			return r, nil
		}
		if strings.HasPrefix(r.ID, ref) {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return model.Card{}, fmt.Errorf("routine %s: %w", ref, board.ErrUnknownCard)
	case 1:
		return found[0], nil
	default:
		return model.Card{}, fmt.Errorf("routine %s: %w", ref, board.ErrAmbiguousID)
	}
}

func setRoutineActive(cmd *cobra.Command, ref string, active bool) error {
	ctx := cmd.Context()
	b, err := routineBoard(cmd)
	if err != nil {
		return err
	}
	r, err := resolveRoutine(ctx, b, ref)
	if err != nil {
		return err
	}
	if err := b.SetRoutineActive(ctx, r.ID, active); err != nil {
		return fmt.Errorf("failed to update routine: %w", err)
	}
	if active {
		fmt.Printf("▶ Resumed: \"%s\"\n", r.Title)
	} else {
		fmt.Printf("⏸  Paused: \"%s\"\n", r.Title)
	}
	return nil
}

func runRoutineDays(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rule, err := model.ParseDayList(args[1])
	if err != nil {
		return err
	}
	b, err := routineBoard(cmd)
	if err != nil {
		return err
	}
	r, err := resolveRoutine(ctx, b, args[0])
	if err != nil {
		return err
	}
	if err := b.SetRoutineDays(ctx, r.ID, rule); err != nil {
		return fmt.Errorf("failed to update routine: %w", err)
	}
	fmt.Printf("↻ \"%s\" now repeats on %s\n", r.Title, strings.Join(rule.Codes(), ","))
	return nil
}

func runRoutineDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := routineBoard(cmd)
	if err != nil {
		return err
	}
	r, err := resolveRoutine(ctx, b, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("About to delete routine: \"%s\" (ID: %s)\n", r.Title, shortID(r.ID))
	if !confirm("Are you sure?") {
		fmt.Println("Cancelled.")
		return nil
	}
	if err := b.DeleteRoutine(ctx, r.ID); err != nil {
		return fmt.Errorf("failed to delete routine: %w", err)
	}
	fmt.Printf("🗑️  Deleted routine: \"%s\"\n", r.Title)
	return nil
}
