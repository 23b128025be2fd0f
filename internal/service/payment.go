package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/notify"
	"github.com/Shivanand-hulikatti/campus-events/internal/payment"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

// PaymentService gates paid registrations on the payment provider.
type PaymentService struct {
	store    repository.EventStore
	provider payment.Provider
	dispatch *notify.Dispatcher
	currency string
	opts     Options
}

// NewPaymentService constructs a PaymentService. dispatch may be nil.
func NewPaymentService(store repository.EventStore, provider payment.Provider, dispatch *notify.Dispatcher, currency string, opts Options) *PaymentService {
	if currency == "" {
		currency = "usd"
	}
	return &PaymentService{
		store:    store,
		provider: provider,
		dispatch: dispatch,
		currency: strings.ToLower(currency),
		opts:     opts.withDefaults(),
	}
}

// CreateIntent opens a provider intent for the event's fee, scoped to (event, actor).
// Event and registration state are left untouched.
func (s *PaymentService) CreateIntent(ctx context.Context, actor model.Actor, eventID string) (*model.PaymentIntent, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	ev, err := loadEvent(ctx, s.store, s.opts.Retry, eventID)
	if err != nil {
		return nil, err
	}
	if ev.IsFree() {
		return nil, fmt.Errorf("event %s is free: %w", ev.ID, model.ErrInvalidState)
	}

	// Early rejections so nobody is charged for a seat they cannot get. The binding
	// check is the capacity-checked insert in ConfirmPayment.
	if reg, ok := ev.Registration(actor.UserID); ok {
		if reg.PaymentStatus == model.PaymentCompleted {
			return nil, fmt.Errorf("registration already paid: %w", model.ErrConflict)
		}
	} else if ev.IsFull() {
		return nil, fmt.Errorf("event %s: %w", ev.ID, model.ErrCapacityExceeded)
	}

	intent, err := s.provider.CreateIntent(ctx, ev.Fees, s.currency, map[string]string{
		payment.MetaEventID: ev.ID,
		payment.MetaUserID:  actor.UserID,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("event_id", ev.ID).
		Str("user_id", actor.UserID).
		Str("intent_id", intent.ID).
		Str("provider", s.provider.Name()).
		Int64("amount", intent.Amount).
		Msg("payment intent created")

	return &model.PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		EventID:      ev.ID,
		UserID:       actor.UserID,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
	}, nil
}

// ConfirmPayment verifies intentID with the provider and settles the actor's registration.
//
// A succeeded intent completes an existing pending registration or inserts a completed
// one through the same capacity-checked path as Register. Any other status fails with
// model.ErrPaymentNotCompleted; a canceled intent also marks the registration failed.
func (s *PaymentService) ConfirmPayment(ctx context.Context, actor model.Actor, eventID, intentID string) (*model.Registration, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, fmt.Errorf("payment intent id is required: %w", model.ErrValidation)
	}
	ev, err := loadEvent(ctx, s.store, s.opts.Retry, eventID)
	if err != nil {
		return nil, err
	}
	if ev.IsFree() {
		return nil, fmt.Errorf("event %s is free: %w", ev.ID, model.ErrInvalidState)
	}

	intent, err := s.provider.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if err := matchIntent(intent, ev, actor.UserID); err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Str("user_id", actor.UserID).Str("intent_id", intentID).Msg("intent rejected")
		return nil, err
	}

	upsertActor(ctx, s.store, actor)

	settled, reg, err := s.apply(ctx, ev, actor.UserID, intent)
	if err != nil {
		return nil, err
	}
	if reg.PaymentStatus != model.PaymentCompleted {
		return nil, fmt.Errorf("payment %s is %s: %w", intent.ID, intent.Status, model.ErrPaymentNotCompleted)
	}

	s.dispatch.Notify(notify.Message{
		Type:      MessagePayment,
		EventID:   settled.ID,
		Message:   fmt.Sprintf("Payment confirmed for %s", settled.Name),
		SpotsLeft: settled.AvailableSpots(),
		At:        s.opts.Now(),
	})
	return reg, nil
}

// ReconcileResult counts what one reconciliation sweep did.
type ReconcileResult struct {
	Checked   int
	Completed int
	Failed    int
	Errors    int
}

// ReconcilePending settles pending registrations whose payment attempt finished
// without the client confirming it. Per-item failures are logged and counted.
func (s *PaymentService) ReconcilePending(ctx context.Context, limit int) (ReconcileResult, error) {
	var res ReconcileResult
	pending, err := withRetry(ctx, s.opts.Retry, "list pending payments", func() ([]model.PendingPayment, error) {
		return s.store.ListPendingPayments(ctx, limit)
	})
	if err != nil {
		return res, err
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++

		logger := log.With().Str("event_id", p.EventID).Str("user_id", p.UserID).Str("intent_id", p.PaymentID).Logger()

		intent, err := s.provider.RetrieveIntent(ctx, p.PaymentID)
		if err != nil {
			res.Errors++
			logger.Warn().Err(err).Msg("retrieve intent failed")
			continue
		}
		ev := &model.Event{ID: p.EventID, Fees: p.Fees}
		if err := matchIntent(intent, ev, p.UserID); err != nil {
			res.Errors++
			logger.Warn().Err(err).Msg("intent does not match registration")
			continue
		}

		_, reg, err := s.apply(ctx, ev, p.UserID, intent)
		switch {
		case err != nil:
			res.Errors++
			logger.Warn().Err(err).Msg("apply payment failed")
		case reg.PaymentStatus == model.PaymentCompleted:
			res.Completed++
			logger.Info().Msg("payment reconciled")
		case reg.PaymentStatus == model.PaymentFailed:
			res.Failed++
			logger.Info().Msg("payment marked failed")
		}
	}
	return res, nil
}

// apply maps the provider status onto the registration. The returned event is the
// state after the write; it is nil when an unsuccessful attempt had nothing to record on.
func (s *PaymentService) apply(ctx context.Context, ev *model.Event, userID string, intent *payment.Intent) (*model.Event, *model.Registration, error) {
	upd := repository.PaymentUpdate{PaymentID: intent.ID, At: s.opts.Now()}
	switch {
	case intent.Status == payment.StatusSucceeded:
		upd.Status = model.PaymentCompleted
	case intent.Status.Terminal():
		upd.Status = model.PaymentFailed
	default:
		upd.Status = model.PaymentPending
	}

	settled, err := withRetry(ctx, s.opts.Retry, "apply payment", func() (*model.Event, error) {
		return s.store.ApplyPayment(ctx, ev.ID, userID, upd)
	})
	if err != nil {
		// Recording an unsuccessful attempt needs a registration to record it on.
		if upd.Status != model.PaymentCompleted && errors.Is(err, model.ErrNotFound) {
			return nil, &model.Registration{UserID: userID, PaymentStatus: upd.Status, PaymentID: intent.ID}, nil
		}
		return nil, nil, err
	}
	reg, ok := settled.Registration(userID)
	if !ok {
		return nil, nil, fmt.Errorf("registration for user %s on event %s: %w", userID, ev.ID, model.ErrNotFound)
	}

	log.Info().
		Str("event_id", ev.ID).
		Str("user_id", userID).
		Str("intent_id", intent.ID).
		Str("intent_status", string(intent.Status)).
		Str("payment_status", string(reg.PaymentStatus)).
		Msg("payment applied")
	return settled, reg, nil
}

// matchIntent checks that the intent was opened for this event, this user and this fee.
func matchIntent(intent *payment.Intent, ev *model.Event, userID string) error {
	if intent.Metadata[payment.MetaEventID] != ev.ID || intent.Metadata[payment.MetaUserID] != userID {
		return fmt.Errorf("intent %s belongs to another registration: %w", intent.ID, model.ErrPaymentNotCompleted)
	}
	if intent.Amount != ev.Fees {
		return fmt.Errorf("intent %s amount %d does not match fee %d: %w", intent.ID, intent.Amount, ev.Fees, model.ErrPaymentNotCompleted)
	}
	return nil
}
