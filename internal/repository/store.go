// Package repository implements the durable event store.
//
// Every mutation of an event's registration list runs as lock → load → decide → write
// against exactly one event. The decision rules live in rules.go and are shared by the
// Postgres store (row lock via SELECT … FOR UPDATE) and the in-memory store (per-event
// mutex), so both backends enforce the same capacity and duplicate invariants.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

// ErrTransient marks a storage failure that may succeed on retry
// (timeouts, dropped connections, serialization failures).
var ErrTransient = errors.New("transient storage failure")

// PaymentUpdate describes the outcome of a payment attempt for one registration.
type PaymentUpdate struct {
	PaymentID string
	Status    model.PaymentStatus
	At        time.Time
}

// EventPatch lists the event fields to change. Nil fields are left alone.
type EventPatch struct {
	Name        *string
	Description *string
	Location    *string
	StartsAt    *time.Time
	Capacity    *int
	Fees        *int64
}

// EventStore is the durable collection of events and their registrations.
type EventStore interface {
	CreateEvent(ctx context.Context, event model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.EventSummary, error)

	// UpdateEvent applies patch under the event lock and returns the updated event.
	UpdateEvent(ctx context.Context, id string, patch EventPatch) (*model.Event, error)

	// DeleteEvent removes the event and its registrations under the event lock.
	// It returns the event as it stood just before removal.
	DeleteEvent(ctx context.Context, id string) (*model.Event, error)

	// AddRegistration appends reg iff the user is not yet registered and a seat is free.
	// It returns the event as it stands after the insert.
	AddRegistration(ctx context.Context, eventID string, reg model.Registration) (*model.Event, error)

	// RemoveRegistration hard-deletes the user's registration and returns the event after removal.
	RemoveRegistration(ctx context.Context, eventID, userID string) (*model.Event, error)

	// ApplyPayment records a payment outcome. A completed payment for a user with no
	// registration inserts one through the same capacity-checked path as AddRegistration.
	// It returns the event as it stands after the write.
	ApplyPayment(ctx context.Context, eventID, userID string, upd PaymentUpdate) (*model.Event, error)

	// CheckIn marks the user's registration as attended. The first check-in time is kept.
	CheckIn(ctx context.Context, eventID, userID string, at time.Time) (*model.Registration, error)

	ListByUser(ctx context.Context, userID string) ([]model.UserRegistration, error)
	ListPendingPayments(ctx context.Context, limit int) ([]model.PendingPayment, error)

	UpsertUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	// GetUsers returns the known users among ids, keyed by ID. Unknown IDs are skipped.
	GetUsers(ctx context.Context, ids []string) (map[string]model.User, error)
}
