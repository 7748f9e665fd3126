package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/togglecache/togglecache/core/pkg/logger"
	"github.com/togglecache/togglecache/core/pkg/store"
	"github.com/togglecache/togglecache/core/pkg/telemetry"
)

const (
	DefaultAttempts        = 3
	DefaultInitialInterval = 2 * time.Second

	operationCheck = "check"
	operationFetch = "fetch"
)

// RetryPolicy bounds how often a single source call is attempted.
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	Multiplier      float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:        DefaultAttempts,
		InitialInterval: DefaultInitialInterval,
		Multiplier:      2,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMultiplier(p.Multiplier),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
	retries := max(p.Attempts-1, 0)
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

type Option func(*Client)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

func WithLogger(l log.FieldLogger) Option {
	return func(c *Client) {
		c.logger = logger.WithComponent(l, "source")
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client adapts a Transport to Source with bounded retry.
type Client struct {
	transport Transport
	policy    RetryPolicy
	logger    log.FieldLogger
	metrics   *telemetry.Metrics
}

func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		policy:    DefaultRetryPolicy(),
		logger:    logger.WithComponent(nil, "source"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckChanged never fails because of the backend. Exhausted retries are
// reported as "unchanged" so the previous manifest stays in use.
func (c *Client) CheckChanged(ctx context.Context, fingerprint []byte) (bool, error) {
	if len(fingerprint) == 0 {
		return true, nil
	}

	remote, err := retry(ctx, c, operationCheck, c.transport.Check)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		c.logger.WithError(err).Warnf(
			"Failed to check feature toggles after %d attempts. Previously retrieved feature toggle values will continue to be used.",
			c.policy.Attempts,
		)
		return false, nil
	}

	return !bytes.Equal(remote, fingerprint), nil
}

// FetchManifest returns nil, nil when the backend answered without a usable
// manifest and ErrSourceUnavailable once transient failures exhaust the
// retry budget.
func (c *Client) FetchManifest(ctx context.Context) (*store.Snapshot, error) {
	snapshot, err := retry(ctx, c, operationFetch, c.transport.Fetch)
	switch {
	case err == nil:
		return snapshot, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case IsPermanent(err):
		c.logger.WithError(err).Warn("Source returned no usable feature manifest")
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
}

func retry[T any](ctx context.Context, c *Client, operation string, call func(context.Context) (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryNotifyWithData[T](
		func() (T, error) {
			attempt++
			res, err := call(ctx)
			switch {
			case err == nil:
				c.metrics.RecordSourceRequest(operation, "success")
				return res, nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				c.metrics.RecordSourceRequest(operation, "canceled")
				return res, backoff.Permanent(err)
			case IsPermanent(err):
				c.metrics.RecordSourceRequest(operation, "rejected")
				return res, backoff.Permanent(err)
			default:
				c.metrics.RecordSourceRequest(operation, "error")
				return res, err
			}
		},
		c.policy.backOff(ctx),
		func(err error, next time.Duration) {
			c.logger.WithError(err).Tracef(
				"Error %s feature toggles. Retrying in %s (attempt %d out of %d).",
				operation+"ing", next, attempt, c.policy.Attempts,
			)
		},
	)
}
