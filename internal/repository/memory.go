package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

// MemoryStore is an in-process EventStore.
//
// Each event carries its own mutex, so registrations on the same event are
// serialized while different events never contend. The store-wide lock only
// guards the map itself and is never held while an event is being mutated.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*memoryEvent
	order  []string

	usersMu sync.RWMutex
	users   map[string]model.User
}

type memoryEvent struct {
	mu      sync.Mutex
	event   model.Event
	deleted bool
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]*memoryEvent),
		users:  make(map[string]model.User),
	}
}

func (s *MemoryStore) lookup(id string) (*memoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	me, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, model.ErrNotFound)
	}
	return me, nil
}

// withEvent runs fn while holding the event's lock.
func (s *MemoryStore) withEvent(ctx context.Context, id string, fn func(ev *model.Event) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	me, err := s.lookup(id)
	if err != nil {
		return err
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	// A caller that waited on the lock while the event was deleted must not write to it.
	if me.deleted {
		return fmt.Errorf("event %s: %w", id, model.ErrNotFound)
	}
	return fn(&me.event)
}

// CreateEvent stores a new event.
func (s *MemoryStore) CreateEvent(ctx context.Context, event model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("event %s already exists", event.ID)
	}
	event.Registrations = cloneRegistrations(event.Registrations)
	s.events[event.ID] = &memoryEvent{event: event}
	s.order = append(s.order, event.ID)
	return nil
}

// GetEvent returns a copy of the event with its registrations.
func (s *MemoryStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var out model.Event
	err := s.withEvent(ctx, id, func(ev *model.Event) error {
		out = cloneEvent(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEvents returns all events, most recently created first.
func (s *MemoryStore) ListEvents(ctx context.Context) ([]model.EventSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := append([]string(nil), s.order...)
	s.mu.RUnlock()

	summaries := make([]model.EventSummary, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		ev, err := s.GetEvent(ctx, ids[i])
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ev.Summary())
	}
	return summaries, nil
}

// UpdateEvent applies patch under the event lock.
func (s *MemoryStore) UpdateEvent(ctx context.Context, id string, patch EventPatch) (*model.Event, error) {
	var out model.Event
	err := s.withEvent(ctx, id, func(ev *model.Event) error {
		if err := revise(ev, patch); err != nil {
			return err
		}
		out = cloneEvent(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteEvent removes the event while holding its lock, so no registration can
// land on it concurrently.
func (s *MemoryStore) DeleteEvent(ctx context.Context, id string) (*model.Event, error) {
	var out model.Event
	err := s.withEvent(ctx, id, func(ev *model.Event) error {
		out = cloneEvent(ev)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.events[id].deleted = true
		delete(s.events, id)
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AddRegistration appends reg under the event lock.
func (s *MemoryStore) AddRegistration(ctx context.Context, eventID string, reg model.Registration) (*model.Event, error) {
	var out model.Event
	err := s.withEvent(ctx, eventID, func(ev *model.Event) error {
		if _, err := admit(ev, reg); err != nil {
			return err
		}
		out = cloneEvent(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveRegistration deletes the user's registration under the event lock.
func (s *MemoryStore) RemoveRegistration(ctx context.Context, eventID, userID string) (*model.Event, error) {
	var out model.Event
	err := s.withEvent(ctx, eventID, func(ev *model.Event) error {
		if _, err := withdraw(ev, userID); err != nil {
			return err
		}
		out = cloneEvent(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyPayment records a payment outcome under the event lock.
func (s *MemoryStore) ApplyPayment(ctx context.Context, eventID, userID string, upd PaymentUpdate) (*model.Event, error) {
	var out model.Event
	err := s.withEvent(ctx, eventID, func(ev *model.Event) error {
		if _, _, err := settle(ev, userID, upd); err != nil {
			return err
		}
		out = cloneEvent(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckIn marks the user's registration as attended under the event lock.
func (s *MemoryStore) CheckIn(ctx context.Context, eventID, userID string, at time.Time) (*model.Registration, error) {
	var out model.Registration
	err := s.withEvent(ctx, eventID, func(ev *model.Event) error {
		reg, _, err := markAttended(ev, userID, at)
		if err != nil {
			return err
		}
		out = cloneRegistration(*reg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByUser returns every event the user is registered for, most recent registration first.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]model.UserRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := append([]string(nil), s.order...)
	s.mu.RUnlock()

	var out []model.UserRegistration
	for _, id := range ids {
		ev, err := s.GetEvent(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if reg, ok := ev.Registration(userID); ok {
			out = append(out, model.UserRegistration{Event: ev.Summary(), Registration: *reg})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Registration.RegisteredAt.After(out[j].Registration.RegisteredAt)
	})
	return out, nil
}

// ListPendingPayments returns pending registrations that already carry a payment reference.
func (s *MemoryStore) ListPendingPayments(ctx context.Context, limit int) ([]model.PendingPayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := append([]string(nil), s.order...)
	s.mu.RUnlock()

	var out []model.PendingPayment
	for _, id := range ids {
		ev, err := s.GetEvent(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, reg := range ev.Registrations {
			if reg.PaymentStatus != model.PaymentPending || reg.PaymentID == "" {
				continue
			}
			out = append(out, model.PendingPayment{EventID: ev.ID, UserID: reg.UserID, PaymentID: reg.PaymentID, Fees: ev.Fees})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// UpsertUser records or refreshes a user mirrored from the identity provider.
func (s *MemoryStore) UpsertUser(ctx context.Context, user model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	if prev, ok := s.users[user.ID]; ok {
		if user.Email == "" {
			user.Email = prev.Email
		}
		if user.Name == "" {
			user.Name = prev.Name
		}
	}
	s.users[user.ID] = user
	return nil
}

// GetUser returns a user or ErrNotFound.
func (s *MemoryStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	return &u, nil
}

// GetUsers returns the known users among ids.
func (s *MemoryStore) GetUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	out := make(map[string]model.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func cloneEvent(ev *model.Event) model.Event {
	out := *ev
	out.Registrations = cloneRegistrations(ev.Registrations)
	return out
}

func cloneRegistrations(regs []model.Registration) []model.Registration {
	if regs == nil {
		return nil
	}
	out := make([]model.Registration, len(regs))
	for i, r := range regs {
		out[i] = cloneRegistration(r)
	}
	return out
}

func cloneRegistration(r model.Registration) model.Registration {
	if r.CheckInTime != nil {
		t := *r.CheckInTime
		r.CheckInTime = &t
	}
	return r
}
