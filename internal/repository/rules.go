package repository

import (
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

// The functions below decide a mutation against an event that the caller has locked.
// They either fail without touching ev or apply the change to ev in place.

// admit appends reg to the event if the user holds no seat and one is free.
// A zero PaymentStatus is derived from the event: completed when free, pending otherwise.
func admit(ev *model.Event, reg model.Registration) (*model.Registration, error) {
	if _, ok := ev.Registration(reg.UserID); ok {
		return nil, fmt.Errorf("event %s, user %s: %w", ev.ID, reg.UserID, model.ErrConflict)
	}
	if ev.IsFull() {
		return nil, fmt.Errorf("event %s: %w", ev.ID, model.ErrCapacityExceeded)
	}
	if reg.PaymentStatus == "" {
		reg.PaymentStatus = model.PaymentPending
		if ev.IsFree() {
			reg.PaymentStatus = model.PaymentCompleted
		}
	}
	ev.Registrations = append(ev.Registrations, reg)
	return &ev.Registrations[len(ev.Registrations)-1], nil
}

// revise applies an administrative edit. Capacity never changes, and the fee is
// frozen once anyone holds a seat.
func revise(ev *model.Event, patch EventPatch) error {
	if patch.Capacity != nil && *patch.Capacity != ev.Capacity {
		return fmt.Errorf("event %s capacity cannot be changed: %w", ev.ID, model.ErrInvalidState)
	}
	if patch.Fees != nil && *patch.Fees != ev.Fees && ev.RegisteredCount() > 0 {
		return fmt.Errorf("event %s has registrations, fees cannot be changed: %w", ev.ID, model.ErrInvalidState)
	}
	if patch.Name != nil {
		ev.Name = *patch.Name
	}
	if patch.Description != nil {
		ev.Description = *patch.Description
	}
	if patch.Location != nil {
		ev.Location = *patch.Location
	}
	if patch.StartsAt != nil {
		ev.StartsAt = *patch.StartsAt
	}
	if patch.Fees != nil {
		ev.Fees = *patch.Fees
	}
	return nil
}

// withdraw removes the user's registration, preserving the order of the rest.
func withdraw(ev *model.Event, userID string) (model.Registration, error) {
	for i, reg := range ev.Registrations {
		if reg.UserID == userID {
			ev.Registrations = append(ev.Registrations[:i], ev.Registrations[i+1:]...)
			return reg, nil
		}
	}
	return model.Registration{}, fmt.Errorf("registration for user %s on event %s: %w", userID, ev.ID, model.ErrNotFound)
}

// settle applies a payment outcome. inserted is true when a completed payment
// created the registration.
func settle(ev *model.Event, userID string, upd PaymentUpdate) (reg *model.Registration, inserted bool, err error) {
	if ev.IsFree() {
		return nil, false, fmt.Errorf("event %s is free: %w", ev.ID, model.ErrInvalidState)
	}

	existing, ok := ev.Registration(userID)
	switch upd.Status {
	case model.PaymentCompleted:
		if !ok {
			reg, err := admit(ev, model.Registration{
				UserID:        userID,
				RegisteredAt:  upd.At,
				PaymentStatus: model.PaymentCompleted,
				PaymentID:     upd.PaymentID,
				AmountPaid:    ev.Fees,
			})
			return reg, err == nil, err
		}
		if existing.PaymentStatus == model.PaymentCompleted {
			if existing.PaymentID == upd.PaymentID {
				return existing, false, nil
			}
			return nil, false, fmt.Errorf("registration already paid with %s: %w", existing.PaymentID, model.ErrConflict)
		}
		existing.PaymentStatus = model.PaymentCompleted
		existing.PaymentID = upd.PaymentID
		existing.AmountPaid = ev.Fees
		return existing, false, nil

	case model.PaymentFailed:
		if !ok {
			return nil, false, fmt.Errorf("registration for user %s on event %s: %w", userID, ev.ID, model.ErrNotFound)
		}
		if existing.PaymentStatus == model.PaymentCompleted {
			return nil, false, fmt.Errorf("registration already paid: %w", model.ErrInvalidState)
		}
		existing.PaymentStatus = model.PaymentFailed
		existing.PaymentID = upd.PaymentID
		existing.AmountPaid = 0
		return existing, false, nil

	case model.PaymentPending:
		// Records an in-flight attempt so the reconciliation sweep can pick it up.
		// A new attempt after a failed one reopens the registration.
		if !ok {
			return nil, false, fmt.Errorf("registration for user %s on event %s: %w", userID, ev.ID, model.ErrNotFound)
		}
		if existing.PaymentStatus == model.PaymentCompleted {
			return existing, false, nil
		}
		existing.PaymentStatus = model.PaymentPending
		existing.PaymentID = upd.PaymentID
		existing.AmountPaid = 0
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("unknown payment status %q: %w", upd.Status, model.ErrInvalidState)
}

// markAttended sets checkedIn once. changed is false when the user was already checked in.
func markAttended(ev *model.Event, userID string, at time.Time) (reg *model.Registration, changed bool, err error) {
	existing, ok := ev.Registration(userID)
	if !ok {
		return nil, false, fmt.Errorf("user %s on event %s: %w", userID, ev.ID, model.ErrNotRegistered)
	}
	if existing.CheckedIn {
		return existing, false, nil
	}
	existing.CheckedIn = true
	t := at
	existing.CheckInTime = &t
	return existing, true, nil
}
