package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/existflow/hearth/internal/chain"
	"github.com/existflow/hearth/internal/model"
	"github.com/spf13/cobra"
)

var chainCmd = &cobra.Command{
	Use:     "chain",
	Aliases: []string{"chains"},
	Short:   "Manage event chains",
	Long: `A chain is an ordered list of steps. Completing a card made from one
step offers the next, which can go on today, into the backlog, or be set
aside for later.`,
}

var chainNewCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create a chain",
	Long: `Create a chain with its steps in order. A step may carry a default
delay in hours after a colon.

Examples:
  hearth chain new "Laundry" --step Wash --step "Dry:2" --step Fold`,
	Args: cobra.ExactArgs(1),
	RunE: runChainNew,
}

var chainListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List chains and their steps",
	RunE:    runChainList,
}

var chainDeleteCmd = &cobra.Command{
	Use:     "delete [chain]",
	Aliases: []string{"rm"},
	Short:   "Delete a chain and its steps",
	Args:    cobra.ExactArgs(1),
	RunE:    runChainDelete,
}

var chainStepCmd = &cobra.Command{
	Use:   "step",
	Short: "Add or remove chain steps",
}

var chainStepAddCmd = &cobra.Command{
	Use:   "add [chain] [title]",
	Short: "Append a step to a chain",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runChainStepAdd,
}

var chainStepDeleteCmd = &cobra.Command{
	Use:     "delete [step-id]",
	Aliases: []string{"rm"},
	Short:   "Remove a step",
	Args:    cobra.ExactArgs(1),
	RunE:    runChainStepDelete,
}

var chainNextCmd = &cobra.Command{
	Use:   "next [card-id]",
	Short: "Schedule the step after a completed card",
	Long: `Schedule the step that follows a card of a chain.

Examples:
  hearth chain next abc123 --today
  hearth chain next abc123 --later`,
	Args: cobra.ExactArgs(1),
	RunE: runChainNext,
}

var chainPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List steps set aside for later",
	RunE:  runChainPending,
}

var chainPickCmd = &cobra.Command{
	Use:   "pick [step-id]",
	Short: "Schedule a step that was set aside",
	Args:  cobra.ExactArgs(1),
	RunE:  runChainPick,
}

var (
	chainSteps   []string
	chainDesc    string
	chainDelay   int
	chainToday   bool
	chainBacklog bool
	chainLater   bool
)

func init() {
	chainNewCmd.Flags().StringArrayVarP(&chainSteps, "step", "s", nil, "Step title, optionally title:hours (repeatable)")
	chainNewCmd.Flags().StringVar(&chainDesc, "desc", "", "Description")
	chainStepAddCmd.Flags().IntVar(&chainDelay, "delay", 0, "Default delay in hours")

	for _, c := range []*cobra.Command{chainNextCmd, chainPickCmd} {
		c.Flags().BoolVar(&chainToday, "today", false, "Add the step as a card today")
		c.Flags().BoolVar(&chainBacklog, "backlog", false, "Add the step to the backlog")
		c.MarkFlagsMutuallyExclusive("today", "backlog")
	}
	chainNextCmd.Flags().BoolVar(&chainLater, "later", false, "Set the step aside")
	chainNextCmd.MarkFlagsMutuallyExclusive("today", "backlog", "later")

	chainStepCmd.AddCommand(chainStepAddCmd)
	chainStepCmd.AddCommand(chainStepDeleteCmd)

	chainCmd.AddCommand(chainNewCmd)
	chainCmd.AddCommand(chainListCmd)
	chainCmd.AddCommand(chainDeleteCmd)
	chainCmd.AddCommand(chainStepCmd)
	chainCmd.AddCommand(chainNextCmd)
	chainCmd.AddCommand(chainPendingCmd)
	chainCmd.AddCommand(chainPickCmd)
}

// parseStep reads "title" or "title:hours"
func parseStep(s string) (chain.StepSpec, error) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, ":"); i > 0 {
		if h, err := strconv.Atoi(strings.TrimSpace(s[i+1:])); err == nil {
			if h < 0 {
				return chain.StepSpec{}, fmt.Errorf("step %q: delay must not be negative", s)
			}
			return chain.StepSpec{Title: strings.TrimSpace(s[:i]), DelayHours: model.Int(h)}, nil
		}
	}
	if s == "" {
		return chain.StepSpec{}, fmt.Errorf("step title required")
	}
	return chain.StepSpec{Title: s}, nil
}

// placement reads the --today/--backlog/--later flags
func placement() string {
	switch {
	case chainToday:
		return "today"
	case chainBacklog:
		return "backlog"
	case chainLater:
		return "later"
	}
	return ""
}

func runChainNew(cmd *cobra.Command, args []string) error {
	specs := make([]chain.StepSpec, 0, len(chainSteps))
	for _, raw := range chainSteps {
		sp, err := parseStep(raw)
		if err != nil {
			return err
		}
		specs = append(specs, sp)
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	svc := s.chains()
	c, err := svc.Create(cmd.Context(), args[0], specs)
	if err != nil {
		return err
	}
	if chainDesc != "" {
		if err := svc.Update(cmd.Context(), c.ID, "", chainDesc); err != nil {
			return err
		}
	}
	fmt.Printf("⛓  Created chain: %s with %d step(s) (ID: %s)\n", c.Name, len(c.Steps), shortID(c.ID))
	return nil
}

func runChainList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	chains, err := s.chains().List(cmd.Context())
	if err != nil {
		return err
	}
	if len(chains) == 0 {
		fmt.Println("No chains yet. Create one with: hearth chain new \"Laundry\" --step Wash --step Fold")
		return nil
	}

	fmt.Println()
	for _, c := range chains {
		fmt.Printf("⛓  %s (%s)\n", c.Name, shortID(c.ID))
		if c.Description != nil {
			fmt.Printf("   %s\n", *c.Description)
		}
		for _, st := range c.Steps {
			line := fmt.Sprintf("   %d. %s", st.StepOrder, st.Title)
			if st.DefaultDelayHours != nil {
				line += fmt.Sprintf(" (+%dh)", *st.DefaultDelayHours)
			}
			if st.IsPending() {
				line += " ⏸"
			}
			fmt.Printf("%s  [%s]\n", line, shortID(st.ID))
		}
		fmt.Println()
	}
	return nil
}

func runChainDelete(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	svc := s.chains()
	c, err := svc.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("About to delete chain: %s with %d step(s)\n", c.Name, len(c.Steps))
	if !confirm("Are you sure?") {
		fmt.Println("Cancelled.")
		return nil
	}
	if err := svc.Delete(cmd.Context(), c.ID); err != nil {
		return err
	}
	fmt.Printf("🗑️  Deleted chain: %s\n", c.Name)
	return nil
}

func runChainStepAdd(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	svc := s.chains()
	c, err := svc.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	title := strings.TrimSpace(strings.Join(args[1:], " "))
	var delay *int
	if cmd.Flags().Changed("delay") {
		delay = model.Int(chainDelay)
	}
	st, err := svc.AddStep(cmd.Context(), c.ID, title, delay)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Added step %d to %s: %s\n", st.StepOrder, c.Name, st.Title)
	return nil
}

// findStep looks a step up by id or unique id prefix across the group's chains
func findStep(ctx context.Context, svc *chain.Service, ref string) (model.ChainStep, error) {
	chains, err := svc.List(ctx)
	if err != nil {
		return model.ChainStep{}, err
	}
	var found []model.ChainStep
	for _, c := range chains {
		for _, st := range c.Steps {
			if st.ID == ref {
				return st, nil
			}
			if strings.HasPrefix(st.ID, ref) {
				found = append(found, st)
			}
		}
	}
	switch len(found) {
	case 0:
		return model.ChainStep{}, fmt.Errorf("step %q not found", ref)
	case 1:
		return found[0], nil
	default:
		return model.ChainStep{}, fmt.Errorf("step %q is ambiguous", ref)
	}
}

func runChainStepDelete(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	svc := s.chains()
	st, err := findStep(cmd.Context(), svc, args[0])
	if err != nil {
		return err
	}
	if err := svc.DeleteStep(cmd.Context(), st.ID); err != nil {
		return err
	}
	fmt.Printf("🗑️  Removed step: %s\n", st.Title)
	return nil
}

func runChainNext(cmd *cobra.Command, args []string) error {
	where := placement()
	if where == "" {
		return fmt.Errorf("choose one of --today, --backlog or --later")
	}
	s, b, card, err := loadCard(cmd, args[0])
	if err != nil {
		return err
	}
	chains := s.chains()
	step, ok, err := chains.After(cmd.Context(), card)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("\"%s\" has no next step.\n", card.Title)
		return nil
	}
	return scheduleStep(cmd.Context(), b, chains, step, where)
}

func runChainPending(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	pending, err := s.chains().Pending(cmd.Context())
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("Nothing set aside.")
		return nil
	}

	fmt.Println()
	fmt.Printf("  %-8s  %-20s  %-30s  %s\n", "ID", "Chain", "Step", "Since")
	fmt.Println(strings.Repeat("─", 76))
	for _, p := range pending {
		since := ""
		if p.PendingSince != nil {
			since = p.PendingSince.Local().Format("Mon Jan 2 15:04")
		}
		fmt.Printf("  %-8s  %-20s  %-30s  %s\n", shortID(p.ID), truncate(p.ChainName, 20), truncate(p.Title, 30), since)
	}
	fmt.Println()
	return nil
}

func runChainPick(cmd *cobra.Command, args []string) error {
	where := placement()
	if where == "" {
		return fmt.Errorf("choose --today or --backlog")
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	chains := s.chains()
	step, err := findStep(cmd.Context(), chains, args[0])
	if err != nil {
		return err
	}
	b, err := s.board(cmd.Context(), now())
	if err != nil {
		return err
	}
	return scheduleStep(cmd.Context(), b, chains, step, where)
}
