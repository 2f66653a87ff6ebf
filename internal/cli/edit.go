package cli

import (
	"fmt"

	"github.com/existflow/hearth/internal/model"
	"github.com/spf13/cobra"
)

var editCmd = &cobra.Command{
	Use:   "edit [card-id]",
	Short: "Change a card",
	Long: `Change the fields of a card. Only the flags given are changed.

Examples:
  hearth edit abc123 --title "Buy groceries and bread"
  hearth edit abc123 --date tomorrow --at 18:00
  hearth edit abc123 --backlog
  hearth edit abc123 --category none`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

var (
	editTitle    string
	editDesc     string
	editDate     string
	editBacklog  bool
	editTags     string
	editAssign   string
	editBoth     bool
	editAt       string
	editCategory string
	editPriority string
)

func init() {
	editCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	editCmd.Flags().StringVar(&editDesc, "desc", "", "New description (empty clears)")
	editCmd.Flags().StringVarP(&editDate, "date", "d", "", "Move to a day")
	editCmd.Flags().BoolVarP(&editBacklog, "backlog", "b", false, "Move to the backlog")
	editCmd.Flags().StringVarP(&editTags, "tags", "t", "", "Replace tags (comma separated, empty clears)")
	editCmd.Flags().StringVarP(&editAssign, "assign", "a", "", "Assign to a member (empty clears)")
	editCmd.Flags().BoolVar(&editBoth, "both", false, "Card is for everyone")
	editCmd.Flags().StringVar(&editAt, "at", "", "Scheduled time (HH:MM, empty clears)")
	editCmd.Flags().StringVarP(&editCategory, "category", "c", "", "Category name or id, none clears")
	editCmd.Flags().StringVarP(&editPriority, "priority", "p", "", "Priority (high, normal, low)")
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	s, err := openSession()
	if err != nil {
		return err
	}

	patch := model.Patch{}
	if flags.Changed("title") {
		if editTitle == "" {
			return fmt.Errorf("title cannot be empty")
		}
		patch["title"] = editTitle
	}
	if flags.Changed("desc") {
		patch["description"] = model.String(editDesc)
	}
	switch {
	case editBacklog:
		patch["date"] = nil
	case flags.Changed("date"):
		day, err := parseDay(editDate, model.DateOf(now()))
		if err != nil {
			return err
		}
		patch["date"] = day.String()
	}
	if flags.Changed("tags") {
		tags := splitList(editTags)
		if tags == nil {
			tags = []string{}
		}
		patch["tags"] = tags
	}
	if flags.Changed("assign") {
		patch["assigned_to"] = model.String(editAssign)
	}
	if flags.Changed("both") {
		patch["assigned_to_both"] = editBoth
	}
	if flags.Changed("at") {
		if editAt == "" {
			patch["scheduled_time"] = nil
		} else {
			at, err := parseClock(editAt)
			if err != nil {
				return err
			}
			patch["scheduled_time"] = at
		}
	}
	if flags.Changed("priority") {
		p, err := parsePriority(editPriority)
		if err != nil {
			return err
		}
		patch["priority"] = string(p)
	}
	if flags.Changed("category") {
		id, err := resolveCategory(ctx, s, editCategory)
		if err != nil {
			return err
		}
		patch["listable_id"] = id
	}
	if len(patch) == 0 {
		return fmt.Errorf("nothing to change, see 'hearth edit --help'")
	}

	ref, err := refTime()
	if err != nil {
		return err
	}
	b, err := s.board(ctx, ref)
	if err != nil {
		return err
	}
	card, err := b.Resolve(args[0])
	if err != nil {
		return fmt.Errorf("card %s: %w", args[0], err)
	}
	if err := b.Update(ctx, card.ID, patch); err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}

	fmt.Printf("✓ Updated: \"%s\"\n", card.Title)
	return nil
}
