package store

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
	"github.com/couchcryptid/flood-risk-engine/internal/observability"
)

// RetryPolicy bounds how hard a write is retried before it is given up.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the pipeline's own backoff: 200ms doubling to 5s.
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      maxRetries,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Retrying decorates an EntityStore with exponential backoff on transient
// failures. Not-found, conflicts and client errors fail immediately.
type Retrying struct {
	inner   EntityStore
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewRetrying(inner EntityStore, policy RetryPolicy, logger *slog.Logger, metrics *observability.Metrics) *Retrying {
	return &Retrying{inner: inner, policy: policy, logger: logger, metrics: metrics}
}

func (r *Retrying) Create(ctx context.Context, e ngsi.Entity) error {
	return r.do(ctx, "create", func() error { return r.inner.Create(ctx, e) })
}

func (r *Retrying) Patch(ctx context.Context, id string, attrs ngsi.Entity) error {
	return r.do(ctx, "patch", func() error { return r.inner.Patch(ctx, id, attrs) })
}

func (r *Retrying) Get(ctx context.Context, id string) (ngsi.Entity, error) {
	var out ngsi.Entity
	err := r.do(ctx, "get", func() error {
		e, err := r.inner.Get(ctx, id)
		out = e
		return err
	})
	return out, err
}

func (r *Retrying) Query(ctx context.Context, q Query) ([]ngsi.Entity, error) {
	var out []ngsi.Entity
	err := r.do(ctx, "query", func() error {
		es, err := r.inner.Query(ctx, q)
		out = es
		return err
	})
	return out, err
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = backoff.WithMaxRetries(b, uint64(max(r.policy.MaxRetries, 0)))

	operation := func() error {
		err := fn()
		if err != nil && !Retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.metrics.StoreRetries.Inc()
		r.logger.Warn("entity store request failed, retrying",
			"op", op, "error", err, "wait", wait)
	}

	return backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
}

// Retryable reports whether err is worth another attempt.
func Retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}
