package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/Shivanand-hulikatti/campus-events/internal/config"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.PaymentConfig{Provider: "stripe", StripeSecretKey: "sk_test_x"})
	require.NoError(t, err)
	require.Equal(t, "stripe", p.Name())

	_, err = NewProvider(config.PaymentConfig{Provider: "mock"})
	require.Error(t, err)

	p, err = NewProvider(config.PaymentConfig{Provider: "mock", TestMode: true})
	require.NoError(t, err)
	require.Equal(t, "mock", p.Name())

	_, err = NewProvider(config.PaymentConfig{Provider: "paypal"})
	require.Error(t, err)
}

func TestMockProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMockProvider()

	in, err := p.CreateIntent(ctx, 1000, "usd", map[string]string{MetaEventID: "e1", MetaUserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, in.Status)

	p.SetStatus(in.ID, StatusProcessing)
	got, err := p.RetrieveIntent(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, got.Status)
	require.Equal(t, "e1", got.Metadata[MetaEventID])

	_, err = p.RetrieveIntent(ctx, "mock_payment_123")
	require.ErrorIs(t, err, model.ErrPaymentNotCompleted)

	p.SetUnavailable(true)
	_, err = p.RetrieveIntent(ctx, in.ID)
	require.ErrorIs(t, err, model.ErrUnavailable)
}

func TestClassifyStripe(t *testing.T) {
	notFound := &stripe.Error{HTTPStatusCode: 404, Msg: "No such payment_intent"}
	require.ErrorIs(t, classifyStripe("get", notFound), model.ErrPaymentNotCompleted)

	outage := &stripe.Error{HTTPStatusCode: 503}
	require.ErrorIs(t, classifyStripe("get", outage), model.ErrUnavailable)

	limited := &stripe.Error{HTTPStatusCode: 429}
	require.ErrorIs(t, classifyStripe("get", limited), model.ErrUnavailable)

	require.ErrorIs(t, classifyStripe("get", errors.New("dial tcp: connection refused")), model.ErrUnavailable)
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, StatusCanceled.Terminal())
	require.False(t, StatusProcessing.Terminal())
	require.False(t, StatusSucceeded.Terminal())
}
