package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/campus-events/internal/handler"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the payment reconciliation worker",
	Long: `Periodically settles pending registrations whose payment finished at the
provider without the client confirming it.`,
	RunE: runWorker,
}

var runOnce bool

func init() {
	workerCmd.Flags().BoolVar(&runOnce, "once", false, "run a single sweep and exit")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sweep := func(ctx context.Context) {
		res, err := a.payments.ReconcilePending(ctx, cfg.Reconcile.BatchSize)
		if err != nil {
			log.Error().Err(err).Msg("reconciliation sweep failed")
			return
		}
		log.Info().
			Int("checked", res.Checked).
			Int("completed", res.Completed).
			Int("failed", res.Failed).
			Int("errors", res.Errors).
			Msg("reconciliation sweep finished")
	}

	if runOnce {
		sweep(ctx)
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return errors.Wrap(err, "failed to create scheduler")
		}
		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Reconcile.Interval),
			gocron.NewTask(func() { sweep(ctx) }),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return errors.Wrap(err, "failed to schedule reconciliation")
		}

		log.Info().Dur("interval", cfg.Reconcile.Interval).Msg("reconciliation worker started")
		scheduler.Start()
		<-ctx.Done()
		return scheduler.Shutdown()
	})

	if addr := cfg.Reconcile.HealthAddress; addr != "" {
		g.Go(func() error {
			return serveHealth(ctx, addr)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker error")
		return err
	}
	log.Info().Msg("worker shutting down gracefully")
	return nil
}

// serveHealth exposes GET /health for the worker until ctx is done.
func serveHealth(ctx context.Context, addr string) error {
	r := chi.NewRouter()
	r.Get("/health", handler.HealthCheck)
	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Msg("worker health listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "health listener error")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
