// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

// Options carries the knobs shared by every service.
type Options struct {
	Retry RetryPolicy
	Now   func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Retry.MaxAttempts == 0 {
		o.Retry = DefaultRetryPolicy
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// EventService orchestrates event administration and read operations.
type EventService struct {
	store repository.EventStore
	opts  Options
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(store repository.EventStore, opts Options) *EventService {
	return &EventService{store: store, opts: opts.withDefaults()}
}

// CreateEvent validates the request and stores a new event.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.EventSummary, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("event name is required: %w", model.ErrValidation)
	}
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be a positive integer: %w", model.ErrValidation)
	}
	if req.Capacity > 100_000 {
		return nil, fmt.Errorf("capacity cannot exceed 100,000: %w", model.ErrValidation)
	}
	if req.Fees < 0 {
		return nil, fmt.Errorf("fees cannot be negative: %w", model.ErrValidation)
	}

	event := model.Event{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		StartsAt:    req.StartsAt.UTC(),
		Capacity:    req.Capacity,
		Fees:        req.Fees,
		CreatedAt:   s.opts.Now(),
	}
	_, err := withRetry(ctx, s.opts.Retry, "create event", func() (struct{}, error) {
		return struct{}{}, s.store.CreateEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	summary := event.Summary()
	return &summary, nil
}

// UpdateEvent edits an event's details. Capacity cannot change, and fees cannot change
// once anyone is registered.
func (s *EventService) UpdateEvent(ctx context.Context, id string, req model.UpdateEventRequest) (*model.EventSummary, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("event id is required: %w", model.ErrValidation)
	}

	patch := repository.EventPatch{Capacity: req.Capacity, Fees: req.Fees}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("event name cannot be empty: %w", model.ErrValidation)
		}
		patch.Name = &name
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		patch.Description = &description
	}
	if req.Location != nil {
		location := strings.TrimSpace(*req.Location)
		patch.Location = &location
	}
	if req.StartsAt != nil {
		startsAt := req.StartsAt.UTC()
		patch.StartsAt = &startsAt
	}
	if req.Fees != nil && *req.Fees < 0 {
		return nil, fmt.Errorf("fees cannot be negative: %w", model.ErrValidation)
	}
	if patch == (repository.EventPatch{}) {
		return nil, fmt.Errorf("no fields to update: %w", model.ErrValidation)
	}

	event, err := withRetry(ctx, s.opts.Retry, "update event", func() (*model.Event, error) {
		return s.store.UpdateEvent(ctx, id, patch)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("event_id", id).Msg("event updated")
	summary := event.Summary()
	return &summary, nil
}

// DeleteEvent removes an event together with its registrations.
func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("event id is required: %w", model.ErrValidation)
	}
	event, err := withRetry(ctx, s.opts.Retry, "delete event", func() (*model.Event, error) {
		return s.store.DeleteEvent(ctx, id)
	})
	if err != nil {
		return err
	}

	paid := 0
	for _, reg := range event.Registrations {
		if reg.PaymentStatus == model.PaymentCompleted && reg.AmountPaid > 0 {
			paid++
		}
	}
	logger := log.Info()
	if paid > 0 {
		logger = log.Warn()
	}
	logger.
		Str("event_id", id).
		Int("registrations", event.RegisteredCount()).
		Int("paid_registrations", paid).
		Msg("event deleted")
	return nil
}

// ListEvents returns all events with their derived counts.
func (s *EventService) ListEvents(ctx context.Context) ([]model.EventSummary, error) {
	events, err := withRetry(ctx, s.opts.Retry, "list events", func() ([]model.EventSummary, error) {
		return s.store.ListEvents(ctx)
	})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.EventSummary{}
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.EventSummary, error) {
	event, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := event.Summary()
	return &summary, nil
}

// ListEventRegistrations returns an event's registrations in arrival order.
func (s *EventService) ListEventRegistrations(ctx context.Context, id string) ([]model.Registration, error) {
	event, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.Registrations == nil {
		return []model.Registration{}, nil
	}
	return event.Registrations, nil
}

func (s *EventService) load(ctx context.Context, id string) (*model.Event, error) {
	return loadEvent(ctx, s.store, s.opts.Retry, id)
}

// loadEvent reads one event, retrying transient failures.
func loadEvent(ctx context.Context, store repository.EventStore, p RetryPolicy, id string) (*model.Event, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("event id is required: %w", model.ErrValidation)
	}
	return withRetry(ctx, p, "get event", func() (*model.Event, error) {
		return store.GetEvent(ctx, id)
	})
}

func requireUser(actor model.Actor) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return fmt.Errorf("no authenticated user: %w", model.ErrUnauthorized)
	}
	return nil
}
