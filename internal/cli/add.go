package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/existflow/hearth/internal/model"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a card",
	Long: `Add a card to the board, dated today unless told otherwise.

Examples:
  hearth add "Buy groceries"
  hearth add "Call plumber" --date friday --at 09:30
  hearth add "Paint the fence" --backlog --tags garden,summer
  hearth add "Vet appointment" --date 2024-06-05 --both`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var (
	addDate     string
	addBacklog  bool
	addTags     string
	addAssign   string
	addBoth     bool
	addAt       string
	addCategory string
	addPriority string
	addDesc     string
	addNote     bool
)

func init() {
	addCmd.Flags().StringVarP(&addDate, "date", "d", "today", "Day of the card (today, tomorrow, a weekday, YYYY-MM-DD)")
	addCmd.Flags().BoolVarP(&addBacklog, "backlog", "b", false, "Add to the backlog without a date")
	addCmd.Flags().StringVarP(&addTags, "tags", "t", "", "Comma separated tags")
	addCmd.Flags().StringVarP(&addAssign, "assign", "a", "", "Household member the card is for")
	addCmd.Flags().BoolVar(&addBoth, "both", false, "Card is for everyone")
	addCmd.Flags().StringVar(&addAt, "at", "", "Scheduled time (HH:MM)")
	addCmd.Flags().StringVarP(&addCategory, "category", "c", "", "Category name or id")
	addCmd.Flags().StringVarP(&addPriority, "priority", "p", "normal", "Priority (high, normal, low)")
	addCmd.Flags().StringVar(&addDesc, "desc", "", "Description")
	addCmd.Flags().BoolVar(&addNote, "note", false, "Add a note instead of a task")
}

func parsePriority(s string) (model.Priority, error) {
	switch p := model.Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case model.PriorityHigh, model.PriorityNormal, model.PriorityLow:
		return p, nil
	}
	return "", fmt.Errorf("invalid priority %q (use high, normal or low)", s)
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		return fmt.Errorf("title required")
	}

	priority, err := parsePriority(addPriority)
	if err != nil {
		return err
	}

	card := model.Card{
		Title:          title,
		Description:    model.String(addDesc),
		Tags:           splitList(addTags),
		AssignedTo:     model.String(addAssign),
		AssignedToBoth: addBoth,
		Priority:       priority,
		ItemType:       model.ItemTask,
	}
	if card.Tags == nil {
		card.Tags = []string{}
	}
	if addNote {
		card.ItemType = model.ItemNote
	}
	if addAt != "" {
		at, err := parseClock(addAt)
		if err != nil {
			return err
		}
		card.ScheduledTime = &at
	}

	ref := now()
	if !addBacklog {
		day, err := parseDay(addDate, model.DateOf(now()))
		if err != nil {
			return err
		}
		card.Date = day.Ptr()
		ref = day.Time()
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	if addCategory != "" {
		id, err := resolveCategory(ctx, s, addCategory)
		if err != nil {
			return err
		}
		card.ListableID = id
	}

	b, err := s.board(ctx, ref)
	if err != nil {
		return err
	}
	stored, err := b.Add(ctx, card)
	if err != nil {
		return fmt.Errorf("failed to add card: %w", err)
	}

	where := "backlog"
	if stored.Date != nil {
		where = stored.Date.Weekday().String()[:3] + " " + stored.Date.String()
	}
	fmt.Printf("✓ Added to [%s]: \"%s\" (%s)\n", where, stored.Title, shortID(stored.ID))
	return nil
}

// resolveCategory maps a name or id to a listable id; "none" clears it
func resolveCategory(ctx context.Context, s *session, ref string) (*string, error) {
	if strings.EqualFold(ref, "none") {
		return nil, nil
	}
	l, err := s.categories().Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("category %q: %w", ref, err)
	}
	return &l.ID, nil
}
