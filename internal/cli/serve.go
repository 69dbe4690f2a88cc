package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/autoboard/internal/api"
	"github.com/roach88/autoboard/internal/board"
	"github.com/roach88/autoboard/internal/engine"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the due-date poller",
		Long: `Run the automation engine as a long-lived service.

The HTTP API accepts board events and card mutations, and a poller fires
due-date rules every poll interval. SIGINT or SIGTERM shuts both down
gracefully.

Example:
  autoboard serve --db ./board.db --http-addr :8080 --poll-interval 30s
  autoboard serve --config autoboard.yaml --redis-addr localhost:6379`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}

	cmd.Flags().String("http-addr", ":8080", "HTTP listen address")
	cmd.Flags().Duration("poll-interval", time.Minute, "due-date poll interval")
	cmd.Flags().Duration("dedup-window", 12*time.Hour, "lookback for due-rule dedup")
	cmd.Flags().Duration("action-timeout", 10*time.Second, "per-action timeout")
	cmd.Flags().Duration("rule-cache-ttl", 0, "cache board rules for this long (0 disables)")
	cmd.Flags().String("redis-addr", "", "redis address(es) for a shared poll lease")
	cmd.Flags().String("redis-namespace", "autoboard", "redis key namespace")
	cmd.Flags().Duration("redis-lease-ttl", 2*time.Minute, "poll lease expiry")

	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	rt, err := opts.openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	// Parent context is the command's (cancelled by tests), else background.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	cards := board.New(rt.store, engine.NewEmitter(rt.engine, logger), engine.SystemClock{})
	handler := &api.Handler{
		Engine: rt.engine,
		Rules:  rt.store,
		Cards:  cards,
		DB:     rt.store.DB(),
		Logger: logger,
	}
	srv := &http.Server{
		Addr:    rt.cfg.HTTPAddr,
		Handler: api.NewRouter(handler, logger),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var wg sync.WaitGroup
	poller := engine.NewTickWorker("due-poller", rt.cfg.Poller.Interval, func() {
		if _, err := rt.engine.PollDue(ctx); err != nil && ctx.Err() == nil {
			logger.Error("poll tick failed", zap.Error(err))
		}
	}, &wg, logger)
	poller.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Fprintf(cmd.OutOrStdout(), "autoboard listening on %s\n", srv.Addr)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("shutdown initiated", zap.String("reason", sig.String()))
	case <-ctx.Done():
		logger.Info("shutdown initiated", zap.String("reason", "context cancelled"))
	case err, ok := <-serveErr:
		if ok {
			runErr = WrapExitError(ExitFailure, "server error", err)
		}
	}

	cancel()
	poller.Stop()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down server", zap.Error(err))
	} else {
		logger.Info("HTTP server shut down gracefully")
	}

	return runErr
}
