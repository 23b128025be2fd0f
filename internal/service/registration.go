package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/notify"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

const (
	MessageRegistration = "registration"
	MessageCancellation = "cancellation"
	MessagePayment      = "payment"
)

// RegistrationService owns seat allocation: register, cancel and the per-user listing.
type RegistrationService struct {
	store    repository.EventStore
	dispatch *notify.Dispatcher
	opts     Options
}

// NewRegistrationService constructs a RegistrationService. dispatch may be nil.
func NewRegistrationService(store repository.EventStore, dispatch *notify.Dispatcher, opts Options) *RegistrationService {
	return &RegistrationService{store: store, dispatch: dispatch, opts: opts.withDefaults()}
}

// Register claims a seat on eventID for the actor.
//
// The duplicate and capacity checks run against the locked event inside the store,
// so concurrent calls for the same event can never overshoot capacity. A free event
// yields a completed registration; a paid one stays pending until confirmPayment.
func (s *RegistrationService) Register(ctx context.Context, actor model.Actor, eventID string) (*model.Registration, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("event id is required: %w", model.ErrValidation)
	}

	upsertActor(ctx, s.store, actor)

	ev, err := withRetry(ctx, s.opts.Retry, "register", func() (*model.Event, error) {
		return s.store.AddRegistration(ctx, eventID, model.Registration{
			UserID:       actor.UserID,
			RegisteredAt: s.opts.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	reg, ok := ev.Registration(actor.UserID)
	if !ok {
		return nil, fmt.Errorf("registration for user %s missing after insert", actor.UserID)
	}

	log.Info().
		Str("event_id", ev.ID).
		Str("user_id", actor.UserID).
		Str("payment_status", string(reg.PaymentStatus)).
		Int("spots_left", ev.AvailableSpots()).
		Msg("registration created")

	s.dispatch.Notify(notify.Message{
		Type:      MessageRegistration,
		EventID:   ev.ID,
		Message:   fmt.Sprintf("New registration for %s", ev.Name),
		SpotsLeft: ev.AvailableSpots(),
		At:        reg.RegisteredAt,
	})
	s.dispatch.Email(confirmationEmail(actor.Email, ev))

	out := *reg
	return &out, nil
}

// Cancel removes the actor's registration. Cancelling a registration that does not
// exist fails with model.ErrNotFound. Payments are not refunded.
func (s *RegistrationService) Cancel(ctx context.Context, actor model.Actor, eventID string) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("event id is required: %w", model.ErrValidation)
	}

	ev, err := withRetry(ctx, s.opts.Retry, "cancel registration", func() (*model.Event, error) {
		return s.store.RemoveRegistration(ctx, eventID, actor.UserID)
	})
	if err != nil {
		return err
	}

	log.Info().Str("event_id", ev.ID).Str("user_id", actor.UserID).Msg("registration cancelled")

	s.dispatch.Notify(notify.Message{
		Type:      MessageCancellation,
		EventID:   ev.ID,
		Message:   fmt.Sprintf("A spot opened up for %s", ev.Name),
		SpotsLeft: ev.AvailableSpots(),
		At:        s.opts.Now(),
	})
	return nil
}

// ListMyRegistrations returns every event the actor is registered for, each paired
// with the actor's own registration, newest first.
func (s *RegistrationService) ListMyRegistrations(ctx context.Context, actor model.Actor) ([]model.UserRegistration, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	regs, err := withRetry(ctx, s.opts.Retry, "list registrations", func() ([]model.UserRegistration, error) {
		return s.store.ListByUser(ctx, actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	if regs == nil {
		regs = []model.UserRegistration{}
	}
	return regs, nil
}

// upsertActor mirrors the actor into the user directory so an admin can later
// check the user in by ID. Failures are only logged.
func upsertActor(ctx context.Context, store repository.EventStore, actor model.Actor) {
	err := store.UpsertUser(ctx, model.User{ID: actor.UserID, Email: actor.Email, Role: actor.Role})
	if err != nil {
		log.Warn().Err(err).Str("user_id", actor.UserID).Msg("mirror user failed")
	}
}

func confirmationEmail(to string, ev *model.Event) notify.Email {
	body := fmt.Sprintf("You have successfully registered for %s", ev.Name)
	if !ev.StartsAt.IsZero() {
		body += fmt.Sprintf(" on %s", ev.StartsAt.Format("Mon, 02 Jan 2006 15:04 MST"))
	}
	if ev.Location != "" {
		body += fmt.Sprintf(" at %s", ev.Location)
	}
	body += "."
	if !ev.IsFree() {
		body += " Your seat is reserved; complete the payment to confirm it."
	}
	return notify.Email{
		To:      to,
		Subject: fmt.Sprintf("Registration Confirmed: %s", ev.Name),
		Body:    body,
	}
}
