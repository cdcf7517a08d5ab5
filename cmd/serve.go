package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/api"
	"github.com/scoutlabs/scout/internal/app"
)

// newServeCmd creates the 'serve' subcommand, which runs discovery on the
// configured interval and exposes health probes, Prometheus metrics, and run
// reporting over HTTP.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run discovery on an interval and serve the HTTP API",

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if interval := a.Cfg.PollInterval(); interval > 0 {
				go pollDiscovery(ctx, a, interval)
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.Cfg.Server.Port),
				Handler:           api.NewServer(a.History, a.Logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.Logger.Info("http server listening", zap.String("addr", srv.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			a.Logger.Info("http server stopped")
			return nil
		},
	}
}

// pollDiscovery runs one discovery pass immediately and then on every tick
// until the context ends. Run outcomes land in the run history and logs; a
// failed pass never stops the loop.
func pollDiscovery(ctx context.Context, a *app.App, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		summary, err := a.Discover(ctx, app.DiscoverOptions{})
		if err != nil {
			a.Logger.Error("scheduled discovery run failed", zap.Error(err))
		} else {
			a.Logger.Info("scheduled discovery run finished",
				zap.String("run_id", summary.RunID),
				zap.String("status", string(summary.Status)),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
