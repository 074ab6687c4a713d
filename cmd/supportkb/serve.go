package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/lifecycle"
	"github.com/TylerDurden17/support-agent/internal/server"
	"github.com/TylerDurden17/support-agent/internal/watcher"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the retrieval HTTP API",
		Long: `Serve the retrieval HTTP API.

The knowledge base is built or loaded before the server starts listening.
With --watch the corpus directory is watched and the knowledge base is rebuilt
and swapped in after documents change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, mgr, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := mgr.Store(ctx); err != nil {
				_ = mgr.Close(context.Background())
				return err
			}

			if watch || cfg.Watch.Enabled {
				w := watcher.NewWatcher(
					cfg.Corpus.Directory,
					cfg.Corpus.Extensions,
					cfg.Corpus.RecursiveOrDefault(),
					rebuildOnChange(mgr, logger),
					watcher.WithLogger(logger),
					watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMillis)*time.Millisecond),
				)
				if err := w.Start(ctx); err != nil {
					_ = mgr.Close(context.Background())
					return err
				}
				defer w.Stop()
				logger.Info("watching corpus", zap.String("dir", cfg.Corpus.Directory))
			}

			srv := server.NewServer(mgr, &cfg.Server, &cfg.Retrieval, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err = <-errCh:
			case <-ctx.Done():
				logger.Info("Shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				err = srv.Stop(shutdownCtx)
			}
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			return errors.Join(err, mgr.Close(context.Background()))
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "rebuild when the corpus changes")
	return cmd
}

// rebuildOnChange returns a watcher callback that rebuilds the knowledge base.
// A failed rebuild leaves the current store serving.
func rebuildOnChange(mgr *lifecycle.Manager, logger *zap.Logger) watcher.ChangeFunc {
	return func(ctx context.Context, paths []string) {
		logger.Info("corpus changed, rebuilding", zap.Int("changed", len(paths)))
		if _, err := mgr.Rebuild(ctx); err != nil {
			logger.Warn("rebuild after corpus change failed", zap.Error(err))
		}
	}
}
