// Package app contains application services and port definitions for the pricing context.
package app

import (
	"context"

	"github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
)

// ExchangeFeed polls one exchange for pair prices.
type ExchangeFeed interface {
	Name() string
	Network() string
	PollQuote(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error)
}

// QuoteRecorder persists observed quotes.
type QuoteRecorder interface {
	RecordQuote(ctx context.Context, q domain.PriceQuote) error
}
