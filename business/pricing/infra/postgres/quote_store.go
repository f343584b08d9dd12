// Package postgres persists observed price quotes.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fd1az/flashloan-arbitrage/business/pricing/app"
	"github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

var _ app.QuoteRecorder = (*QuoteStore)(nil)

// QuoteStore implements app.QuoteRecorder using PostgreSQL.
type QuoteStore struct {
	pool *pgxpool.Pool
}

// NewQuoteStore creates a new QuoteStore.
func NewQuoteStore(pool *pgxpool.Pool) *QuoteStore {
	return &QuoteStore{pool: pool}
}

// RecordQuote inserts one observation.
func (s *QuoteStore) RecordQuote(ctx context.Context, q domain.PriceQuote) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_quotes (exchange, network, pair, price, liquidity, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		q.Exchange, q.Network, q.Pair.String(), q.Price, q.Liquidity, q.ObservedAt,
	)
	if err != nil {
		return apperror.New(apperror.CodePersistenceFailed,
			apperror.WithCause(err),
			apperror.WithContext("insert price_quote"))
	}
	return nil
}
