// Package retry runs operations with jittered exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"
)

// ExponentialPolicy retries with delays of base·2^attempt plus up to half
// that again as jitter, capped at maxDelay.
type ExponentialPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialPolicy builds a policy. Non-positive values fall back to
// 3 attempts, a 1s base and a 30s cap.
func NewExponentialPolicy(maxAttempts int, base, maxDelay time.Duration) *ExponentialPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if base <= 0 {
		base = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &ExponentialPolicy{maxAttempts: maxAttempts, baseDelay: base, maxDelay: maxDelay}
}

// ShouldRetry decides whether another attempt follows a failed one. attempt
// counts the attempts made so far.
func (p *ExponentialPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay) + randomJitter(time.Duration(delay)/2)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Do calls op until it succeeds, the policy gives up, or ctx ends. onRetry,
// when set, is told about each failed attempt before the wait.
func Do(ctx context.Context, p *ExponentialPolicy, op func(context.Context) error, onRetry func(attempt int, wait time.Duration, err error)) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(err, attempt) {
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		wait := p.Backoff(attempt - 1)
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
