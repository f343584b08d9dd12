// Package domain contains the core domain types for the pricing context.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

// Pair is a BASE-QUOTE token pair. Prices are quote units per one base unit.
type Pair struct {
	Base  string
	Quote string
}

// ParsePair parses "WETH-USDC".
func ParsePair(s string) (Pair, error) {
	base, quote, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "-") {
		return Pair{}, apperror.Validation(apperror.CodeInvalidInput, fmt.Sprintf("invalid pair %q, expected BASE-QUOTE", s))
	}
	return Pair{Base: strings.ToUpper(base), Quote: strings.ToUpper(quote)}, nil
}

// MustParsePair is ParsePair for literals.
func MustParsePair(s string) Pair {
	p, err := ParsePair(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pair symbol (e.g., "WETH-USDC").
func (p Pair) String() string {
	return p.Base + "-" + p.Quote
}

// PriceQuote is one observation of a pair on one exchange. Quotes are
// superseded by newer ones, never mutated.
type PriceQuote struct {
	Exchange   string          `json:"exchange"`
	Network    string          `json:"network"`
	Pair       Pair            `json:"-"`
	PairSymbol string          `json:"pair"`
	Price      decimal.Decimal `json:"price"`
	Liquidity  decimal.Decimal `json:"liquidity"` // quote-side depth available to a trade
	ObservedAt time.Time       `json:"observed_at"`
	Stale      bool            `json:"stale"`
}

// NewPriceQuote builds a fresh quote.
func NewPriceQuote(exchange, network string, pair Pair, price, liquidity decimal.Decimal, at time.Time) PriceQuote {
	return PriceQuote{
		Exchange:   exchange,
		Network:    network,
		Pair:       pair,
		PairSymbol: pair.String(),
		Price:      price,
		Liquidity:  liquidity,
		ObservedAt: at,
	}
}

// Validate rejects quotes that cannot be compared.
func (q PriceQuote) Validate() error {
	switch {
	case !q.Price.IsPositive():
		return apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("%s %s: non-positive price %s", q.Exchange, q.Pair, q.Price)))
	case q.Liquidity.IsNegative():
		return apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("%s %s: negative liquidity %s", q.Exchange, q.Pair, q.Liquidity)))
	case q.ObservedAt.IsZero():
		return apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("%s %s: missing observation time", q.Exchange, q.Pair)))
	}
	return nil
}

// AsStale returns a copy flagged stale.
func (q PriceQuote) AsStale() PriceQuote {
	q.Stale = true
	return q
}

// Age returns how old the quote is at now.
func (q PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.ObservedAt)
}

// Fresh reports whether the quote may be used for comparisons. Only age
// decides; a quote flagged Stale by a failed poll stays usable until it
// outlives maxAge.
func (q PriceQuote) Fresh(now time.Time, maxAge time.Duration) bool {
	return q.Age(now) <= maxAge
}

// FeedStatus reports the health of one (exchange, pair) poller.
type FeedStatus struct {
	Exchange            string    `json:"exchange"`
	Network             string    `json:"network"`
	Pair                string    `json:"pair"`
	LastSuccess         time.Time `json:"last_success"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int64     `json:"consecutive_failures"`
	Down                bool      `json:"down"`
}
