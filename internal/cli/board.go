package cli

import (
	"errors"
	"fmt"

	"github.com/existflow/hearth/internal/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Select the household board",
	Long: `Show or change the board this client works on.

A board is shared by everyone who selects the same id. The selection is
read from HEARTH_BOARD_ID first, then from the saved selection, then from
board_id in the config.

Examples:
  hearth board              # Show the current board
  hearth board new          # Start a new board and select it
  hearth board set 4f0c...  # Join an existing board
  hearth board clear        # Forget the saved selection`,
	RunE: runBoardShow,
}

var boardNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new board and select it",
	RunE:  runBoardNew,
}

var boardSetCmd = &cobra.Command{
	Use:   "set [board-id]",
	Short: "Select a board",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoardSet,
}

var boardClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the saved board selection",
	RunE:  runBoardClear,
}

func init() {
	boardCmd.AddCommand(boardNewCmd)
	boardCmd.AddCommand(boardSetCmd)
	boardCmd.AddCommand(boardClearCmd)
}

func runBoardShow(cmd *cobra.Command, args []string) error {
	id, err := cfg.Board()
	if errors.Is(err, config.ErrNoBoard) {
		fmt.Println("📋 No board selected. Start one with: hearth board new")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("📋 Current board: %s\n", id)
	if group := cfg.Group(id); group != id {
		fmt.Printf("   Chains shared with group: %s\n", group)
	}

	s, err := openSession()
	if err != nil {
		// selection is still useful without a login
		return nil
	}
	b, err := s.board(cmd.Context(), now())
	if err != nil {
		return err
	}
	v := b.View()
	fmt.Printf("   %s: %d card(s), %d in backlog, %d routine(s)\n", b.Week(), len(v.Cards), len(v.Backlog), len(v.Routines))
	return nil
}

func runBoardNew(cmd *cobra.Command, args []string) error {
	id := uuid.NewString()
	if err := cfg.SetBoard(id); err != nil {
		return fmt.Errorf("failed to save board: %w", err)
	}
	fmt.Printf("✓ Started board %s\n", id)
	fmt.Println("  Share this id so others can join with: hearth board set <id>")
	return nil
}

func runBoardSet(cmd *cobra.Command, args []string) error {
	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid board id %q: %w", args[0], err)
	}
	if err := cfg.SetBoard(args[0]); err != nil {
		return fmt.Errorf("failed to save board: %w", err)
	}
	fmt.Printf("✓ Board set to %s\n", args[0])
	return nil
}

func runBoardClear(cmd *cobra.Command, args []string) error {
	if err := cfg.ClearBoard(); err != nil {
		return err
	}
	fmt.Println("✓ Board selection cleared")
	return nil
}
