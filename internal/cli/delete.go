package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete [card-id]",
	Aliases: []string{"rm"},
	Short:   "Delete a card",
	Long: `Delete a card by its id or a unique id prefix. A card made by a
routine is cancelled instead, so the routine does not bring it back.

Examples:
  hearth delete abc123
  hearth rm abc123 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var deleteYes bool

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip confirmation")
}

// confirm asks a yes/no question when the config requires it
func confirm(question string) bool {
	if deleteYes || !cfg.ConfirmDelete {
		return true
	}
	fmt.Print(question + " [y/N]: ")
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y"
}

func runDelete(cmd *cobra.Command, args []string) error {
	_, b, card, err := loadCard(cmd, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("About to delete: \"%s\" (ID: %s)\n", card.Title, shortID(card.ID))
	if !confirm("Are you sure?") {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := b.Delete(cmd.Context(), card.ID); err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}

	fmt.Printf("🗑️  Deleted: \"%s\"\n", card.Title)
	return nil
}
