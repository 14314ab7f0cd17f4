package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy controls backoff behavior. Zero values fall back to defaults.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// RetryableFunc decides whether an error is worth retrying.
	// Nil means retry everything.
	RetryableFunc func(error) bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 200 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 5 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
	return p
}

// Do runs operation up to MaxRetries+1 times with jittered exponential
// backoff, honoring ctx between attempts.
func Do(ctx context.Context, policy Policy, operation func() error) error {
	p := policy.normalized()
	backoff := p.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if p.RetryableFunc != nil && !p.RetryableFunc(lastErr) {
			return lastErr
		}
		if attempt == p.MaxRetries {
			break
		}

		sleep := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return errors.Join(ErrMaxRetriesExceeded, lastErr)
}
