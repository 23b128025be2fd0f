package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/campus-events/internal/checkin"
	"github.com/Shivanand-hulikatti/campus-events/internal/config"
	"github.com/Shivanand-hulikatti/campus-events/internal/database"
	"github.com/Shivanand-hulikatti/campus-events/internal/notify"
	"github.com/Shivanand-hulikatti/campus-events/internal/payment"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
	"github.com/Shivanand-hulikatti/campus-events/internal/service"
)

// app holds every wired dependency shared by the serve and worker commands.
type app struct {
	store    repository.EventStore
	dispatch *notify.Dispatcher

	events   *service.EventService
	regs     *service.RegistrationService
	payments *service.PaymentService
	checkins *service.CheckInService

	closers []func()
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	provider, err := payment.NewProvider(cfg.Payment)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to initialize payment provider")
	}
	if cfg.Payment.TestMode {
		log.Warn().Str("provider", provider.Name()).Msg("payment test mode is on; do not use in production")
	}

	a.dispatch = notify.NewDispatcher(a.notifier(cfg), a.emailSender(cfg), 5*time.Second)

	opts := service.Options{Retry: service.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
	}}
	codec := checkin.NewCodec(cfg.CheckIn.Secret, cfg.CheckIn.TTL, nil)

	a.events = service.NewEventService(store, opts)
	a.regs = service.NewRegistrationService(store, a.dispatch, opts)
	a.payments = service.NewPaymentService(store, provider, a.dispatch, cfg.Payment.Currency, opts)
	a.checkins = service.NewCheckInService(store, codec, cfg.CheckIn.QRSize, opts)
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg config.Config) (repository.EventStore, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("using in-memory event store; data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)
	return repository.NewPostgresStore(pool), nil
}

func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	log.Info().Msg("connected to PostgreSQL")
	return pool, nil
}

// notifier falls back to the log when Redis is disabled or unreachable.
func (a *app) notifier(cfg config.Config) notify.Notifier {
	if !cfg.Redis.Enabled {
		return notify.LogNotifier{}
	}
	n, err := notify.NewRedisNotifier(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize Redis notifier, continuing with log notifications")
		return notify.LogNotifier{}
	}
	a.closers = append(a.closers, func() { _ = n.Close() })
	return n
}

// emailSender falls back to the log when Service Bus is not configured or unreachable.
func (a *app) emailSender(cfg config.Config) notify.EmailSender {
	if cfg.Email.Provider != "servicebus" {
		return notify.LogEmailSender{}
	}
	s, err := notify.NewServiceBusEmailSender(cfg.Email)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize Service Bus email sender, continuing with log emails")
		return notify.LogEmailSender{}
	}
	a.closers = append(a.closers, func() { _ = s.Close() })
	return s
}

// Close waits for in-flight side effects, then releases connections in reverse order.
func (a *app) Close() {
	a.dispatch.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
