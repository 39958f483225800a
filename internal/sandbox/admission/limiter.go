// Package admission bounds the number of in-flight pipeline runs.
package admission

import (
	"context"
	"time"

	appErr "execbox/pkg/errors"
)

// TokenLimiter is a counting limiter for in-flight requests.
type TokenLimiter struct {
	tokens chan struct{}
	wait   time.Duration
}

// NewTokenLimiter creates a limiter with a fixed capacity. Acquire gives up
// after wait; zero means wait for as long as ctx allows.
func NewTokenLimiter(size int, wait time.Duration) *TokenLimiter {
	if size <= 0 {
		size = 1
	}
	tokens := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		tokens <- struct{}{}
	}
	return &TokenLimiter{tokens: tokens, wait: wait}
}

// Acquire blocks until a token is available, the wait elapses or ctx is
// canceled. Both failures are TooManyRequests.
func (l *TokenLimiter) Acquire(ctx context.Context) error {
	select {
	case <-l.tokens:
		return nil
	default:
	}

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-l.tokens:
		return nil
	case <-timeout:
		return appErr.New(appErr.TooManyRequests).WithMessage("too many submissions in flight")
	case <-ctx.Done():
		return appErr.Wrapf(ctx.Err(), appErr.TooManyRequests, "gave up waiting for a sandbox slot")
	}
}

// Release returns a token to the limiter.
func (l *TokenLimiter) Release() {
	select {
	case l.tokens <- struct{}{}:
	default:
	}
}

// Available returns the number of free tokens.
func (l *TokenLimiter) Available() int {
	return len(l.tokens)
}

// Capacity returns the limiter size.
func (l *TokenLimiter) Capacity() int {
	return cap(l.tokens)
}
