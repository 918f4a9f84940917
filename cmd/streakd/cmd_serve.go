package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"streakd/internal/api"
	"streakd/internal/runner"
	"streakd/internal/schedule"
)

// serveCmd runs the long-lived daemon: HTTP control API plus daily scheduler
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled daemon with the HTTP control API",
	Long: `Starts the streakd daemon. A run fires automatically every day at the
configured schedule time, and the HTTP API can trigger runs and manage the
contact roster at any time. Runs are serialized: a trigger arriving while a
run is in progress is rejected, never queued.`,
	RunE: serve,
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Watch(ctx); err != nil {
		return err
	}

	trigger := runner.NewTrigger(runner.New(cfg, logger, newSink(), store), logger)
	srv := api.NewServer(cfg, logger, trigger, store)
	trigger.OnComplete = srv.Metrics().RecordRun

	sched, err := schedule.New(logger, trigger, cfg.ScheduleTime,
		runner.Options{Headless: cfg.Headless})
	if err != nil {
		return err
	}
	sched.OnOutcome = func(accepted bool) {
		srv.Metrics().RecordTrigger("schedule", accepted)
	}

	pterm.DefaultHeader.Println("streakd daemon")
	pterm.Info.Printfln("Control API on %s, daily run at %s", cfg.ListenAddr, cfg.ScheduleTime)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
