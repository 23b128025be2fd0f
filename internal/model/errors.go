package model

import "errors"

// Domain errors. Every layer wraps these with context; callers match with errors.Is.
var (
	// ErrNotFound is returned when a referenced event, user, or registration does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the same user registers twice for an event.
	ErrConflict = errors.New("already registered for this event")

	// ErrCapacityExceeded is returned when an event has no remaining capacity.
	ErrCapacityExceeded = errors.New("event is fully booked")

	// ErrInvalidState is returned when an operation does not apply to the current state.
	ErrInvalidState = errors.New("operation not applicable")

	// ErrPaymentNotCompleted is returned when the provider has not settled the payment.
	ErrPaymentNotCompleted = errors.New("payment not completed")

	// ErrInvalidPayload is returned for a malformed, tampered, or expired check-in credential.
	ErrInvalidPayload = errors.New("invalid check-in credential")

	// ErrNotRegistered is returned when checking in a user with no registration.
	ErrNotRegistered = errors.New("user not registered for this event")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrUnavailable is returned when storage or the payment provider keeps failing.
	ErrUnavailable = errors.New("service temporarily unavailable")

	// ErrValidation is returned for requests that fail input validation.
	ErrValidation = errors.New("invalid request")
)

// IsDomainError reports whether err carries one of the expected, caller-recoverable errors.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrConflict, ErrCapacityExceeded, ErrInvalidState,
		ErrPaymentNotCompleted, ErrInvalidPayload, ErrNotRegistered,
		ErrUnauthorized, ErrForbidden, ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
