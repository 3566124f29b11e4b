// Package retry wraps external-API calls with classification-aware
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// Defaults shared by both service adapters.
const (
	DefaultBaseDelay  = 1000 * time.Millisecond
	DefaultMaxDelay   = 30000 * time.Millisecond
	DefaultMaxRetries = 3
	DefaultMultiplier = 2.0
)

// retryableStatus holds the HTTP status codes worth retrying. Everything
// else fails closed rather than retrying unknown failure modes.
var retryableStatus = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// transientPatterns are message fragments the upstream services emit for
// recoverable failures that do not always carry a useful status code.
var transientPatterns = []string{
	"quotaExceeded",
	"rateLimitExceeded",
	"backendError",
	"ETIMEDOUT",
	"ECONNRESET",
	"ENOTFOUND",
	"socket hang up",
}

// Config tunes an Executor.
type Config struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Multiplier float64
}

// DefaultConfig returns the defaults used by both adapters.
func DefaultConfig() Config {
	return Config{
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		MaxRetries: DefaultMaxRetries,
		Multiplier: DefaultMultiplier,
	}
}

// Executor runs operations with bounded retries and jittered backoff.
type Executor struct {
	cfg    Config
	logger zerolog.Logger

	// sleep and jitter are swappable for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewExecutor builds an Executor; a zero-valued field in cfg falls back to
// its default.
func NewExecutor(cfg Config, logger zerolog.Logger) *Executor {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = DefaultMultiplier
	}
	return &Executor{
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
		jitter: rand.Float64,
	}
}

// Execute runs op up to MaxRetries times, backing off between retryable
// failures. Non-retryable errors propagate immediately; on exhaustion the
// last error is returned.
func (e *Executor) Execute(ctx context.Context, label string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == e.cfg.MaxRetries-1 {
			break
		}

		delay := e.backoff(attempt)
		e.logger.Warn().
			Str("operation", label).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(lastErr).
			Msg("transient failure, backing off")
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// backoff computes the jittered delay for the given zero-based attempt:
// min(base * multiplier^attempt, max) scaled by a uniform factor in
// [0.5, 1.0] so parallel tasks do not retry in lockstep.
func (e *Executor) backoff(attempt int) time.Duration {
	delay := float64(e.cfg.BaseDelay) * math.Pow(e.cfg.Multiplier, float64(attempt))
	if delay > float64(e.cfg.MaxDelay) {
		delay = float64(e.cfg.MaxDelay)
	}
	factor := 0.5 + 0.5*e.jitter()
	return time.Duration(delay * factor)
}

// Retryable classifies an error as transient (worth another attempt) or
// terminal. Status codes are read from googleapi errors; anything else is
// matched against known transient message fragments.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if retryableStatus[apiErr.Code] {
			return true
		}
		// 403s carry quota errors distinguishable only by reason text.
		return matchesTransient(apiErr.Message) || matchesTransient(err.Error())
	}

	return matchesTransient(err.Error())
}

func matchesTransient(msg string) bool {
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
