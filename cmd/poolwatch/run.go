package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/poolwatch/internal/httpapi"
	apimw "github.com/hamed0406/poolwatch/internal/httpapi/middleware"
	"github.com/hamed0406/poolwatch/internal/scheduler"
)

var runNow bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run health-check cycles on the configured schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sched := &scheduler.Scheduler{
			Logger:     a.logger,
			Runner:     a.runner,
			Spec:       a.cfg.Schedule,
			Location:   a.cfg.Location(),
			RunOnStart: runNow || os.Getenv("DEBUG") != "",
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return sched.Run(gctx) })
		if a.cfg.HTTP.Addr != "" {
			g.Go(func() error { return serveAPI(gctx, a) })
		}
		err = g.Wait()

		// scheduler and API are down; a manual cycle that outlived the API
		// shutdown timeout gets its restarts refused
		if derr := a.dispatch.Close(); derr != nil {
			a.logger.Warn("restarts_failed_before_shutdown", zap.Error(derr))
		}
		return err
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNow, "now", false, "run one cycle immediately instead of waiting for the schedule")
}

func serveAPI(ctx context.Context, a *app) error {
	srv := httpapi.NewServer(a.logger, a.runner, httpapi.Targets{
		Webs:     a.cfg.Webs,
		Stratums: a.cfg.Stratums,
	}, a.registry)
	keys := apimw.Keys{Public: a.cfg.HTTP.PublicKeys, Admin: a.cfg.HTTP.AdminKeys}

	hs := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           srv.Router(keys, a.cfg.HTTP.AllowedOrigins, a.cfg.HTTP.RPM, a.cfg.HTTP.Burst),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("api_listen", zap.String("addr", hs.Addr))
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("api_shutdown", zap.Error(err))
		}
		return nil
	}
}
