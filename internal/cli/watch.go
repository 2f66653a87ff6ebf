package cli

import (
	"fmt"
	"os"

	"github.com/existflow/hearth/internal/board"
	"github.com/existflow/hearth/internal/model"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the week whenever someone changes the board",
	Long: `Follow the board's change feed and print the week again after every
change made by any member. Stop with Ctrl+C.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession()
	if err != nil {
		return err
	}
	ref, err := refTime()
	if err != nil {
		return err
	}
	b, err := s.board(ctx, ref)
	if err != nil {
		return err
	}

	today := model.DateOf(now())
	printWeek(os.Stdout, b.View(), today, false)

	b.OnChange(func(v board.View) {
		fmt.Printf("\n🔄 Updated at %s\n", now().Format("15:04:05"))
		printWeek(os.Stdout, v, model.DateOf(now()), false)
	})
	if err := b.Watch(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	fmt.Println("👀 Watching for changes (Ctrl+C to stop)")
	<-ctx.Done()
	return nil
}
