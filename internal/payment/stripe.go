package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

// StripeProvider talks to the Stripe PaymentIntents API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider constructs a StripeProvider using the given secret key.
func NewStripeProvider(secretKey string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api}
}

func (p *StripeProvider) Name() string { return "stripe" }

// CreateIntent creates a PaymentIntent for amount minor units.
func (p *StripeProvider) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyStripe("create payment intent", err)
	}
	return fromStripe(pi), nil
}

// RetrieveIntent fetches a PaymentIntent by id.
func (p *StripeProvider) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, classifyStripe("retrieve payment intent", err)
	}
	return fromStripe(pi), nil
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       Status(pi.Status),
		Metadata:     pi.Metadata,
	}
}

// classifyStripe separates caller mistakes from provider outages.
func classifyStripe(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: unknown intent: %w", op, model.ErrPaymentNotCompleted)
		case se.HTTPStatusCode == http.StatusTooManyRequests, se.HTTPStatusCode >= 500:
			return fmt.Errorf("%s: %w: %v", op, model.ErrUnavailable, err)
		case se.HTTPStatusCode >= 400:
			return fmt.Errorf("%s: %w: %v", op, model.ErrPaymentNotCompleted, se.Msg)
		}
	}
	// Anything without a Stripe envelope is a transport failure.
	return fmt.Errorf("%s: %w: %v", op, model.ErrUnavailable, err)
}
