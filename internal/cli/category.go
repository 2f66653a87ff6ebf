package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var categoryCmd = &cobra.Command{
	Use:     "category",
	Aliases: []string{"cat"},
	Short:   "Manage categories",
	Long:    `Create, list, and manage the categories cards can be filed under.`,
}

var categoryNewCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create a new category",
	Long: `Create a new category on the current board.

Examples:
  hearth category new "Groceries"
  hearth category new "Garden" --color "#7BC950"`,
	Args: cobra.ExactArgs(1),
	RunE: runCategoryNew,
}

var categoryListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all categories",
	RunE:    runCategoryList,
}

var categoryEditCmd = &cobra.Command{
	Use:   "edit [category]",
	Short: "Rename or recolor a category",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoryEdit,
}

var categoryDeleteCmd = &cobra.Command{
	Use:     "delete [category]",
	Aliases: []string{"rm"},
	Short:   "Delete a category; its cards are kept without one",
	Args:    cobra.ExactArgs(1),
	RunE:    runCategoryDelete,
}

var (
	categoryColor string
	categoryName  string
)

func init() {
	categoryNewCmd.Flags().StringVarP(&categoryColor, "color", "c", "", "Category color (hex)")
	categoryEditCmd.Flags().StringVarP(&categoryColor, "color", "c", "", "New color (hex)")
	categoryEditCmd.Flags().StringVarP(&categoryName, "name", "n", "", "New name")

	categoryCmd.AddCommand(categoryNewCmd)
	categoryCmd.AddCommand(categoryListCmd)
	categoryCmd.AddCommand(categoryEditCmd)
	categoryCmd.AddCommand(categoryDeleteCmd)
}

func runCategoryNew(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	l, err := s.categories().Create(cmd.Context(), args[0], categoryColor)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Created category: %s (ID: %s)\n", l.Name, shortID(l.ID))
	return nil
}

func runCategoryList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	all, err := s.categories().List(cmd.Context())
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("No categories yet. Create one with: hearth category new \"Groceries\"")
		return nil
	}

	fmt.Println()
	fmt.Printf("  %-8s  %-24s  %s\n", "ID", "Name", "Color")
	fmt.Println(strings.Repeat("─", 44))
	for _, l := range all {
		fmt.Printf("  %-8s  %-24s  %s\n", shortID(l.ID), truncate(l.Name, 24), l.Color)
	}
	fmt.Println()
	return nil
}

func runCategoryEdit(cmd *cobra.Command, args []string) error {
	if categoryName == "" && categoryColor == "" {
		return fmt.Errorf("nothing to change, use --name or --color")
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	svc := s.categories()
	l, err := svc.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := svc.Update(cmd.Context(), l.ID, categoryName, categoryColor); err != nil {
		return err
	}
	fmt.Printf("✓ Updated category: %s\n", l.Name)
	return nil
}

func runCategoryDelete(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	svc := s.categories()
	l, err := svc.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("About to delete category: %s (ID: %s)\n", l.Name, shortID(l.ID))
	if !confirm("Are you sure?") {
		fmt.Println("Cancelled.")
		return nil
	}
	if err := svc.Delete(cmd.Context(), l.ID); err != nil {
		return err
	}
	fmt.Printf("🗑️  Deleted category: %s\n", l.Name)
	return nil
}
