package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

// MockProvider is an in-process provider for test and demo environments.
// Intents succeed as soon as they are created unless a test overrides the status.
type MockProvider struct {
	mu      sync.Mutex
	intents map[string]Intent
	down    bool
}

// NewMockProvider constructs an empty MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{intents: make(map[string]Intent)}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return nil, fmt.Errorf("create payment intent: %w", model.ErrUnavailable)
	}

	id := "mock_pi_" + uuid.New().String()
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	in := Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       amount,
		Currency:     currency,
		Status:       StatusSucceeded,
		Metadata:     meta,
	}
	p.intents[id] = in
	return &in, nil
}

func (p *MockProvider) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return nil, fmt.Errorf("retrieve payment intent: %w", model.ErrUnavailable)
	}
	in, ok := p.intents[id]
	if !ok {
		return nil, fmt.Errorf("retrieve payment intent %s: unknown intent: %w", id, model.ErrPaymentNotCompleted)
	}
	return &in, nil
}

// SetStatus overrides the status of a previously created intent.
func (p *MockProvider) SetStatus(id string, status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if in, ok := p.intents[id]; ok {
		in.Status = status
		p.intents[id] = in
	}
}

// SetUnavailable simulates a provider outage.
func (p *MockProvider) SetUnavailable(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = down
}
