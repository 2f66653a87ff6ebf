package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication",
	Long:  `Manage your account on the hearth server.`,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to the hearth server",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logout from the hearth server",
	RunE:  runLogout,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account on the hearth server",
	RunE:  runRegister,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in account",
	RunE:  runWhoami,
}

var authServer string

func init() {
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(registerCmd)
	authCmd.AddCommand(whoamiCmd)

	authCmd.PersistentFlags().StringVar(&authServer, "server", "", "Server URL, saved to the config")
}

// useServer saves a --server override before the client is created
func useServer(cmd *cobra.Command) error {
	if !cmd.Flags().Changed("server") {
		return nil
	}
	cfg.ServerURL = strings.TrimRight(authServer, "/")
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func readPassword(prompt string) string {
	fmt.Print(prompt)
	b, _ := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	return string(b)
}

func runLogin(cmd *cobra.Command, args []string) error {
	if err := useServer(cmd); err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	password := readPassword("Password: ")

	fmt.Printf("🔄 Logging in to %s...\n", c.ServerURL())
	if err := c.Login(cmd.Context(), username, password); err != nil {
		return err
	}

	fmt.Println("✅ Logged in successfully!")
	if _, err := cfg.Board(); err != nil {
		fmt.Println("   Pick a board with: hearth board set <board-id>")
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	if !c.IsLoggedIn() {
		fmt.Println("Not logged in.")
		return nil
	}

	fmt.Println("🔄 Logging out...")
	if err := c.Logout(cmd.Context()); err != nil {
		return err
	}

	fmt.Println("✅ Logged out successfully.")
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	if err := useServer(cmd); err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)

	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	password := readPassword("Password: ")
	if readPassword("Confirm Password: ") != password {
		return fmt.Errorf("passwords do not match")
	}

	fmt.Println("🔄 Creating account...")
	if err := c.Register(cmd.Context(), username, email, password); err != nil {
		return err
	}

	fmt.Println("✅ Account created and logged in!")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if !c.IsLoggedIn() {
		fmt.Println("Not logged in.")
		return nil
	}
	u, err := c.Me(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> on %s\n", u.Username, u.Email, c.ServerURL())
	fmt.Printf("  ID: %s\n", u.ID)
	return nil
}
