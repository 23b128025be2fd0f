package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

// RetryPolicy bounds how often a transient storage failure is retried.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, InitialInterval: 50 * time.Millisecond}

// withRetry runs op, retrying only failures marked repository.ErrTransient.
// A failure that stays transient surfaces as model.ErrUnavailable; it is never
// read as "the capacity check passed".
func withRetry[T any](ctx context.Context, p RetryPolicy, name string, op func() (T, error)) (T, error) {
	if p.MaxAttempts == 0 {
		p = DefaultRetryPolicy
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err != nil && !errors.Is(err, repository.ErrTransient) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.MaxAttempts))

	if err != nil && errors.Is(err, repository.ErrTransient) {
		log.Error().Err(err).Str("op", name).Int("attempts", attempt).Msg("storage unavailable")
		var zero T
		return zero, fmt.Errorf("%s: %w", name, model.ErrUnavailable)
	}
	return res, err
}
