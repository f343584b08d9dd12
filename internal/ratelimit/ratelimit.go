// Package ratelimit wraps golang.org/x/time/rate for per-minute API quotas.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

// Limiter throttles calls to an external API.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerMinute, with a burst of 10% of
// the rate. A non-positive rate disables limiting.
func New(requestsPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}

	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
	}
}

// Wait blocks until a token is available. A deadline that would expire
// before the token arrives fails fast with RATE_LIMIT_EXCEEDED.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err))
	}
	return nil
}

// Allow reports whether a call may happen now without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Tokens returns the currently available tokens.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}
