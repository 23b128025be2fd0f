// Package payment abstracts the external payment provider used to settle paid registrations.
package payment

import (
	"context"
	"fmt"

	"github.com/Shivanand-hulikatti/campus-events/internal/config"
)

// Status is the provider-reported state of a payment intent.
type Status string

const (
	StatusSucceeded             Status = "succeeded"
	StatusProcessing            Status = "processing"
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusRequiresConfirmation  Status = "requires_confirmation"
	StatusRequiresAction        Status = "requires_action"
	StatusRequiresCapture       Status = "requires_capture"
	StatusCanceled              Status = "canceled"
)

// Terminal reports whether the intent can no longer succeed.
func (s Status) Terminal() bool {
	return s == StatusCanceled
}

// Metadata keys attached to every intent so a confirmation can be matched to its scope.
const (
	MetaEventID = "eventId"
	MetaUserID  = "userId"
)

// Intent is the provider's handle for an in-progress payment.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       Status
	Metadata     map[string]string
}

// Provider creates and retrieves payment intents.
// Implementations wrap model.ErrUnavailable for failures worth retrying.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}

// NewProvider builds the provider selected by configuration.
// The mock provider is refused unless test mode is switched on explicitly.
func NewProvider(cfg config.PaymentConfig) (Provider, error) {
	switch cfg.Provider {
	case "stripe":
		return NewStripeProvider(cfg.StripeSecretKey), nil
	case "mock":
		if !cfg.TestMode {
			return nil, fmt.Errorf("mock payment provider requires test mode")
		}
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %s", cfg.Provider)
	}
}
