// Package model defines the core domain types for the campus event registration system.
package model

import "time"

// PaymentStatus is the payment sub-state of a registration.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Role is the role the identity provider asserts for a user.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Event is a schedulable campus activity with a fixed capacity and an optional fee.
// Fees are expressed in minor currency units (cents).
type Event struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Location      string         `json:"location"`
	StartsAt      time.Time      `json:"starts_at"`
	Capacity      int            `json:"capacity"`
	Fees          int64          `json:"fees"`
	CreatedAt     time.Time      `json:"created_at"`
	Registrations []Registration `json:"registrations,omitempty"`
}

// RegisteredCount is derived from the registration list and never stored.
func (e *Event) RegisteredCount() int {
	return len(e.Registrations)
}

// AvailableSpots returns the number of seats left.
func (e *Event) AvailableSpots() int {
	return e.Capacity - len(e.Registrations)
}

// IsFull returns true when no seats remain.
func (e *Event) IsFull() bool {
	return len(e.Registrations) >= e.Capacity
}

// IsFree reports whether the event skips the payment flow.
func (e *Event) IsFree() bool {
	return e.Fees == 0
}

// Registration returns the registration held by userID, if any.
func (e *Event) Registration(userID string) (*Registration, bool) {
	for i := range e.Registrations {
		if e.Registrations[i].UserID == userID {
			return &e.Registrations[i], true
		}
	}
	return nil, false
}

// Summary returns the public view of the event, without the registration list.
func (e *Event) Summary() EventSummary {
	return EventSummary{
		ID:              e.ID,
		Name:            e.Name,
		Description:     e.Description,
		Location:        e.Location,
		StartsAt:        e.StartsAt,
		Capacity:        e.Capacity,
		Fees:            e.Fees,
		CreatedAt:       e.CreatedAt,
		RegisteredCount: e.RegisteredCount(),
		AvailableSpots:  e.AvailableSpots(),
	}
}

// EventSummary is the event as shown to clients, with derived counts filled in.
type EventSummary struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	StartsAt        time.Time `json:"starts_at"`
	Capacity        int       `json:"capacity"`
	Fees            int64     `json:"fees"`
	CreatedAt       time.Time `json:"created_at"`
	RegisteredCount int       `json:"registered_count"`
	AvailableSpots  int       `json:"available_spots"`
}

// Registration is a user's claim on one seat of an event.
type Registration struct {
	UserID        string        `json:"user_id"`
	RegisteredAt  time.Time     `json:"registered_at"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentID     string        `json:"payment_id,omitempty"`
	AmountPaid    int64         `json:"amount_paid"`
	CheckedIn     bool          `json:"checked_in"`
	CheckInTime   *time.Time    `json:"check_in_time,omitempty"`
}

// UserRegistration pairs an event with the caller's own registration on it.
type UserRegistration struct {
	Event        EventSummary `json:"event"`
	Registration Registration `json:"registration"`
}

// PendingPayment identifies a pending registration that already carries a payment reference.
type PendingPayment struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	PaymentID string `json:"payment_id"`
	Fees      int64  `json:"fees"`
}

// User is the subset of an identity-provider user the core needs.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Actor is the verified identity attached to an incoming request.
type Actor struct {
	UserID string
	Email  string
	Role   Role
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// PaymentIntent is the client-facing handle for an in-progress payment.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret,omitempty"`
	EventID      string `json:"event_id"`
	UserID       string `json:"user_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// CheckInCredential is the scannable credential issued for an event.
type CheckInCredential struct {
	EventID  string    `json:"event_id"`
	Payload  string    `json:"payload"`
	IssuedAt time.Time `json:"issued_at"`
	QRCode   string    `json:"qr_code,omitempty"`
}

// CheckedInUser is one row of the check-in stats.
type CheckedInUser struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	CheckInTime time.Time `json:"check_in_time"`
}

// CheckInStats is the read-only attendance view of an event.
type CheckInStats struct {
	EventID         string          `json:"event_id"`
	EventName       string          `json:"event_name"`
	TotalRegistered int             `json:"total_registered"`
	CheckedIn       int             `json:"checked_in"`
	CheckInRate     float64         `json:"check_in_rate"`
	CheckedInUsers  []CheckedInUser `json:"checked_in_users"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name        string    `json:"name" validate:"required,max=100"`
	Description string    `json:"description" validate:"max=1000"`
	Location    string    `json:"location" validate:"max=200"`
	StartsAt    time.Time `json:"starts_at"`
	Capacity    int       `json:"capacity" validate:"required,min=1,max=100000"`
	Fees        int64     `json:"fees" validate:"min=0"`
}

// UpdateEventRequest is the payload for editing an event. Omitted fields keep their value.
// Capacity is accepted only when it matches the stored capacity.
type UpdateEventRequest struct {
	Name        *string    `json:"name" validate:"omitempty,max=100"`
	Description *string    `json:"description" validate:"omitempty,max=1000"`
	Location    *string    `json:"location" validate:"omitempty,max=200"`
	StartsAt    *time.Time `json:"starts_at"`
	Capacity    *int       `json:"capacity"`
	Fees        *int64     `json:"fees" validate:"omitempty,min=0"`
}

// ConfirmPaymentRequest is the payload for confirming a payment.
type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

// CheckInRequest is the payload for processing a scanned credential.
type CheckInRequest struct {
	Payload string `json:"payload" validate:"required"`
	UserID  string `json:"user_id"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a standard JSON acknowledgement envelope.
type MessageResponse struct {
	Message string `json:"message"`
}
