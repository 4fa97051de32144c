package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/graphrelay/internal/config"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driving"
	"github.com/custodia-labs/graphrelay/internal/logger"
)

var (
	// Version is set by goreleaser ldflags.
	version = "dev"

	// Verbose enables debug logging.
	verbose bool

	// configPath overrides the default config file location.
	configPath string

	// Services holds injected service implementations for CLI commands.
	graphService   driving.GraphService
	sessionService driving.SessionService
	dispatcher     driving.CredentialDispatcher
	relayConfig    *config.Config
	watchSession   func(ctx context.Context) error

	// bootstrap builds the services once flags are parsed.
	bootstrap Bootstrap
)

// Services holds configuration for CLI commands.
type Services struct {
	Graph      driving.GraphService
	Session    driving.SessionService
	Dispatcher driving.CredentialDispatcher
	Config     *config.Config
	// WatchSession reloads the delegated session whenever another process
	// changes the state store, until ctx is done. Nil when the store
	// backend cannot be watched.
	WatchSession func(ctx context.Context) error
}

// Bootstrap loads configuration from configPath and wires the services.
// The returned cleanup releases resources held by the services.
type Bootstrap func(ctx context.Context, configPath string, verbose bool) (*Services, func(), error)

// SetServices injects service implementations for CLI commands.
func SetServices(s *Services) {
	if s == nil {
		return
	}
	graphService = s.Graph
	sessionService = s.Session
	dispatcher = s.Dispatcher
	relayConfig = s.Config
	watchSession = s.WatchSession
}

// SetBootstrap registers the function that wires services before a command runs.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// cleanup is set by PersistentPreRunE and run by PersistentPostRun.
var cleanup func()

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "graphrelay",
	Short: "Token-managing relay for Microsoft Graph",
	Long: `graphrelay acquires and caches Microsoft identity platform tokens and relays
calls to Microsoft Graph on behalf of local tools.

Application mode uses the app registration's client credentials. Delegated
mode uses a signed-in user, obtained once with a device login and kept
refreshed in a local session file.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx as the command context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string for the CLI.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose debug output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default ~/.graphrelay/config.toml)")

	// Use PersistentPreRunE to set verbose mode and wire services before any command executes
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if bootstrap == nil {
			return nil
		}

		services, done, err := bootstrap(cmd.Context(), configPath, verbose)
		if err != nil {
			return err
		}
		SetServices(services)
		cleanup = done
		return nil
	}
	rootCmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if cleanup != nil {
			cleanup()
			cleanup = nil
		}
	}
}

// errNotConfigured is returned when a command runs without wired services.
var errNotConfigured = errors.New("services not configured")
