package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driving"
	"github.com/custodia-labs/graphrelay/internal/logger"
)

var (
	challengeStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
	codeStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in a user with a device login",
	Long: `Start a device login for delegated mode. Open the printed address on any
device, enter the code and sign in. The session is stored in the configured
state file and refreshed automatically afterwards.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the signed-in user session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the delegated session",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

// Flags for session commands.
var (
	loginOpenBrowser bool
	statusJSON       bool
)

func init() {
	loginCmd.Flags().BoolVar(&loginOpenBrowser, "open", false, "open the verification page in a browser")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the status as JSON")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errNotConfigured
	}

	out := cmd.OutOrStdout()
	acct, err := sessionService.Login(cmd.Context(), func(c domain.DeviceChallenge) {
		printChallenge(out, c, isTerminal(out))
		if loginOpenBrowser {
			target := c.VerificationURIComplete
			if target == "" {
				target = c.VerificationURI
			}
			if err := browser.OpenURL(target); err != nil {
				logger.Warn("failed to open browser: %v", err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("device login: %w", err)
	}

	cmd.Printf("Signed in as %s\n", acct.Username)
	return nil
}

func printChallenge(w io.Writer, c domain.DeviceChallenge, styled bool) {
	if !styled {
		_, _ = fmt.Fprintln(w, c.Message)
		return
	}

	body := fmt.Sprintf("Open %s\nand enter the code %s\n\n%s",
		c.VerificationURI,
		codeStyle.Render(c.UserCode),
		mutedStyle.Render("Code expires at "+c.ExpiresAt.Local().Format(time.Kitchen)),
	)
	_, _ = fmt.Fprintln(w, challengeStyle.Render(body))
}

func runLogout(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errNotConfigured
	}
	if err := sessionService.Logout(cmd.Context()); err != nil {
		return err
	}
	cmd.Println("Signed out.")
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errNotConfigured
	}

	status := sessionService.Status()
	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	printStatus(cmd, status)
	return nil
}

func printStatus(cmd *cobra.Command, s driving.SessionStatus) {
	if !s.SignedIn {
		cmd.Println("Not signed in. Run 'graphrelay login' to start a device login.")
	} else {
		cmd.Printf("Signed in as:   %s\n", s.Username)
		cmd.Printf("Account:        %s\n", s.HomeAccountID)
		if s.TokenExpiresAt != nil {
			cmd.Printf("Token expires:  %s\n", s.TokenExpiresAt.Local().Format(time.RFC1123))
		}
		cmd.Printf("Refreshable:    %t\n", s.Refreshable)
	}
	if s.PendingLogin != nil {
		cmd.Printf("Pending login:  code %s at %s\n", s.PendingLogin.UserCode, s.PendingLogin.VerificationURI)
	}
	if s.StatePath != "" {
		cmd.Printf("State file:     %s\n", s.StatePath)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
