package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/graphrelay/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/graphrelay/internal/logger"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay HTTP server",
	Long: `Serve the relay API. Local tools call it without credentials; the relay
attaches application or delegated tokens and forwards the call to Microsoft
Graph. A delegated session can be started with POST /auth/device-login.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveListen string

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if graphService == nil || sessionService == nil || relayConfig == nil {
		return errNotConfigured
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	addr := relayConfig.HTTP.Listen
	if serveListen != "" {
		addr = serveListen
	}

	if relayConfig.Store.Watch && watchSession != nil {
		if err := watchSession(ctx); err != nil {
			logger.Warn("session reload disabled: %v", err)
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(graphService, sessionService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("graphrelay %s listening on %s", version, addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
