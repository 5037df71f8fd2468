package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"datasync/internal/config"
	"datasync/internal/server"
	apperrors "datasync/pkg/errors"
)

var serveFlags struct {
	listen          string
	prefix          string
	origins         []string
	shutdownTimeout time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sync API and run the auto-sync schedule",
	Long: `Serve the HTTP API, push on the configured auto-sync interval and watch
the sync record for external edits. SIGINT or SIGTERM shuts the server down
and restores any remote URL still carrying the credential.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.listen, "listen", ":8000", "address to listen on")
	serveCmd.Flags().StringVar(&serveFlags.prefix, "prefix", "/", "path prefix the API is mounted under")
	serveCmd.Flags().StringSliceVar(&serveFlags.origins, "allow-origin", nil, "extra origin patterns accepted on /events")
	serveCmd.Flags().DurationVar(&serveFlags.shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")

	bindFlags(serveCmd.Flags(), "listen", "prefix")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd, appOptions{withHub: true, origins: serveFlags.origins})
	if err != nil {
		return err
	}
	defer a.close()

	hub := a.hub
	go hub.Run(ctx)

	watcher := config.NewWatcher(a.store, a.svc.OnConfigChange)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			a.logger.WarnWithFields("Config watcher stopped", map[string]interface{}{"error": err})
		}
	}()

	a.svc.Start()

	listen := viper.GetString("listen")
	prefix := viper.GetString("prefix")
	srv := &http.Server{
		Addr:              listen,
		Handler:           server.New(a.svc, a.system, hub, prefix).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	a.logger.InfoWithFields("DataSync listening", map[string]interface{}{
		"addr":     listen,
		"prefix":   prefix,
		"data_dir": a.settings.DataDir,
	})

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "HTTP server failed").
				WithContext("addr", listen)
		}
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveFlags.shutdownTimeout)
	defer cancel()

	var errs error
	if serveErr == nil {
		errs = multierr.Append(errs, srv.Shutdown(shutdownCtx))
	}
	hub.Close()
	errs = multierr.Append(errs, a.svc.Shutdown(shutdownCtx))
	errs = multierr.Append(serveErr, errs)

	if errs != nil {
		return errs
	}
	a.logger.Info("DataSync stopped")
	return nil
}
