package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/existflow/hearth/internal/config"
	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/tui"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	logFile    string
	logConsole bool
	weekRef    string
)

var rootCmd = &cobra.Command{
	Use:   "hearth",
	Short: "Hearth - shared household task board",
	Long: `Hearth is a terminal client for a shared household board: a weekly
view of dated cards, a backlog of undated ones, and routines that fill
the week on their own.

Run 'hearth' without arguments to launch the interactive board.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config from file (or defaults if not exists)
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		// Override with CLI flags if provided
		configChanged := false
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
			configChanged = true
		}
		if cmd.Flags().Changed("log-file") {
			cfg.LogFile = logFile
			configChanged = true
		}
		if cmd.Flags().Changed("log-console") {
			cfg.LogConsole = logConsole
			configChanged = true
		}

		// Save config if changed via CLI flags
		if configChanged {
			if err := cfg.Save(); err != nil {
				fmt.Printf("⚠️  Failed to save config: %v\n", err)
			}
		}

		if err := logger.Init(cfg.Logger()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		logger.Info("hearth started", logger.F("command", cmd.Name()))
		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		ref, err := refTime()
		if err != nil {
			return err
		}

		b, err := s.board(cmd.Context(), ref)
		if err != nil {
			return err
		}

		logger.Info("Launching TUI", logger.F("board", s.boardID))
		m := tui.NewModel(cmd.Context(), b, s.chains(), now)
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

		if _, err := p.Run(); err != nil {
			logger.Error("TUI error", logger.Err(err))
			return fmt.Errorf("failed to run TUI: %w", err)
		}

		logger.Info("TUI exited normally")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Info("hearth exiting", logger.F("command", cmd.Name()))
		logger.Close()
	},
}

// Execute runs the root command; ctx is cancelled on interrupt
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Add logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVar(&logConsole, "log-console", false, "Enable console logging")
	rootCmd.PersistentFlags().StringVarP(&weekRef, "week", "w", "", "Any day of the week to work on (default: this week)")

	// Add subcommands
	rootCmd.AddCommand(weekCmd)
	rootCmd.AddCommand(backlogCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(routineCmd)
	rootCmd.AddCommand(categoryCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(watchCmd)
}
