package cli

import (
	"context"
	"fmt"

	"github.com/existflow/hearth/internal/board"
	"github.com/existflow/hearth/internal/chain"
	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/model"
	"github.com/spf13/cobra"
)

var doneCmd = &cobra.Command{
	Use:   "done [card-id]",
	Short: "Tick a card's checkbox",
	Long: `Toggle the checkbox of a card. This is independent of 'complete'.

Examples:
  hearth done abc123
  hearth done abc123 --undo`,
	Args: cobra.ExactArgs(1),
	RunE: runDone,
}

var completeCmd = &cobra.Command{
	Use:   "complete [card-id]",
	Short: "Mark a card as completed",
	Long: `Record that a card was completed. When the card is a step of a chain,
the next step is offered.

Examples:
  hearth complete abc123
  hearth complete abc123 --next today
  hearth complete abc123 --undo`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

var (
	doneUndo     bool
	completeUndo bool
	completeNext string
)

func init() {
	doneCmd.Flags().BoolVar(&doneUndo, "undo", false, "Clear the checkbox")
	completeCmd.Flags().BoolVar(&completeUndo, "undo", false, "Clear the completion mark")
	completeCmd.Flags().StringVar(&completeNext, "next", "", "Schedule the next chain step: today, backlog or later")
}

func loadCard(cmd *cobra.Command, ref string) (*session, *board.Board, model.Card, error) {
	s, err := openSession()
	if err != nil {
		return nil, nil, model.Card{}, err
	}
	at, err := refTime()
	if err != nil {
		return nil, nil, model.Card{}, err
	}
	b, err := s.board(cmd.Context(), at)
	if err != nil {
		return nil, nil, model.Card{}, err
	}
	card, err := b.Resolve(ref)
	if err != nil {
		return nil, nil, model.Card{}, fmt.Errorf("card %s: %w", ref, err)
	}
	return s, b, card, nil
}

func runDone(cmd *cobra.Command, args []string) error {
	_, b, card, err := loadCard(cmd, args[0])
	if err != nil {
		return err
	}

	done := !doneUndo
	if err := b.ToggleStatus(cmd.Context(), card.ID, done); err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}

	if done {
		fmt.Printf("✓ Done: \"%s\"\n", card.Title)
	} else {
		fmt.Printf("○ Reopened: \"%s\"\n", card.Title)
	}
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, b, card, err := loadCard(cmd, args[0])
	if err != nil {
		return err
	}

	if completeUndo {
		if err := b.Uncomplete(ctx, card.ID); err != nil {
			return fmt.Errorf("failed to update card: %w", err)
		}
		fmt.Printf("○ Not completed: \"%s\"\n", card.Title)
		return nil
	}

	if err := b.Complete(ctx, card.ID); err != nil {
		return fmt.Errorf("failed to complete card: %w", err)
	}
	fmt.Printf("✓ Completed: \"%s\"\n", card.Title)

	chains := s.chains()
	step, ok, err := chains.After(ctx, card)
	if err != nil {
		logger.Warn("failed to look up next chain step", logger.Err(err))
		return nil
	}
	if !ok {
		return nil
	}

	fmt.Printf("⛓  Next step: \"%s\"\n", step.Title)
	switch completeNext {
	case "":
		fmt.Printf("   Schedule it with: hearth chain next %s --today|--backlog|--later\n", shortID(card.ID))
		return nil
	default:
		return scheduleStep(ctx, b, chains, step, completeNext)
	}
}

// scheduleStep places a chain step: as a card today, in the backlog, or
// set aside as pending
func scheduleStep(ctx context.Context, b *board.Board, chains *chain.Service, step model.ChainStep, where string) error {
	place, err := chain.ParsePlacement(where)
	if err != nil {
		return err
	}
	stored, err := chains.Schedule(ctx, b, step, place)
	if err != nil {
		return err
	}
	switch place {
	case chain.PlaceToday:
		fmt.Printf("✓ Added for today: \"%s\" (%s)\n", stored.Title, shortID(stored.ID))
	case chain.PlaceBacklog:
		fmt.Printf("✓ Added to backlog: \"%s\" (%s)\n", stored.Title, shortID(stored.ID))
	case chain.PlaceLater:
		fmt.Printf("⏸  Set aside: \"%s\" (see 'hearth chain pending')\n", step.Title)
	}
	return nil
}
