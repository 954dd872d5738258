package common

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	defaultMaxAttempts = 10
	defaultBaseDelay   = time.Millisecond * 500
	defaultMaxDelay    = time.Second * 30
)

var (
	ErrRetryTimeout = errors.New("retry attempts exhausted")
	defaultLogger   = hclog.NewNullLogger()
)

// BackoffConfig describes an exponential backoff policy with full jitter.
type BackoffConfig struct {
	BaseDelay time.Duration `json:"baseDelay"`
	MaxDelay  time.Duration `json:"maxDelay"`
}

// Delay returns the wait time before the given zero-based retry attempt.
// The deterministic upper bound doubles each attempt and is capped at MaxDelay;
// the returned value is drawn uniformly from (0, bound].
func (bc BackoffConfig) Delay(attempt int) time.Duration {
	base, cap_ := bc.BaseDelay, bc.MaxDelay
	if base <= 0 {
		base = defaultBaseDelay
	}

	if cap_ <= 0 {
		cap_ = defaultMaxDelay
	}

	bound := base
	for i := 0; i < attempt && bound < cap_; i++ {
		bound *= 2
	}

	if bound > cap_ {
		bound = cap_
	}

	return time.Duration(rand.Int63n(int64(bound))) + 1 //nolint:gosec
}

// RetryConfig defines ExecuteWithRetry configuration
type RetryConfig struct {
	maxAttempts      int
	backoff          BackoffConfig
	isRetryableError func(err error) bool
	logger           hclog.Logger
}

// RetryConfigOption defines ExecuteWithRetry configuration option
type RetryConfigOption func(c *RetryConfig)

func WithMaxAttempts(maxAttempts int) RetryConfigOption {
	return func(c *RetryConfig) {
		c.maxAttempts = maxAttempts
	}
}

func WithBackoff(backoff BackoffConfig) RetryConfigOption {
	return func(c *RetryConfig) {
		c.backoff = backoff
	}
}

func WithIsRetryableError(fn func(err error) bool) RetryConfigOption {
	return func(c *RetryConfig) {
		c.isRetryableError = fn
	}
}

func WithLogger(logger hclog.Logger) RetryConfigOption {
	return func(c *RetryConfig) {
		c.logger = logger
	}
}

// ExecuteWithRetry attempts to execute a provided handler function multiple
// times in case of failure, waiting an exponentially growing, jittered delay
// between attempts.
func ExecuteWithRetry[T any](
	ctx context.Context, handler func(context.Context) (T, error), options ...RetryConfigOption,
) (result T, err error) {
	config := RetryConfig{
		maxAttempts:      defaultMaxAttempts,
		isRetryableError: isRetryableErrorDefault,
		logger:           defaultLogger,
	}

	for _, opt := range options {
		opt(&config)
	}

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		result, err = handler(ctx)
		if err == nil {
			return result, nil
		}

		if !config.isRetryableError(err) {
			return result, err
		}

		config.logger.Info("ExecuteWithRetry failed. Retrying...", "attempt", attempt+1, "err", err)

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(config.backoff.Delay(attempt)):
		}
	}

	return result, errors.Join(ErrRetryTimeout, err)
}

// IsContextDoneErr returns true if the error is due to the context being cancelled
// or expired. This is useful for determining if a function should retry.
func IsContextDoneErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isRetryableErrorDefault(err error) bool {
	// context was explicitly canceled or deadline exceeded; not retryable
	if IsContextDoneErr(err) {
		return false
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}
