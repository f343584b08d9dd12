// Package postgres persists execution records.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

var _ app.ExecutionStore = (*ExecutionStore)(nil)

const upsertExecution = `
	INSERT INTO execution_records (
		id, fingerprint, route_key, status, amount_in, notional, tx_hash,
		actual_profit, gas_used, gas_cost, error, attempts, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO UPDATE SET
		status        = EXCLUDED.status,
		tx_hash       = EXCLUDED.tx_hash,
		actual_profit = EXCLUDED.actual_profit,
		gas_used      = EXCLUDED.gas_used,
		gas_cost      = EXCLUDED.gas_cost,
		error         = EXCLUDED.error,
		attempts      = EXCLUDED.attempts,
		updated_at    = EXCLUDED.updated_at`

const selectRecent = `
	SELECT id::text, fingerprint, route_key, status, amount_in, notional,
		COALESCE(tx_hash, ''), COALESCE(actual_profit, 0), COALESCE(gas_used, 0),
		COALESCE(gas_cost, 0), COALESCE(error, ''), attempts, created_at, updated_at
	FROM execution_records
	ORDER BY created_at DESC
	LIMIT $1`

// ExecutionStore implements app.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// SaveExecution upserts rec. Records are saved on every transition, so
// later writes replace the mutable columns.
func (s *ExecutionStore) SaveExecution(ctx context.Context, rec domain.ExecutionRecord) error {
	_, err := s.pool.Exec(ctx, upsertExecution,
		rec.ID, rec.Fingerprint, string(rec.RouteKey), string(rec.Status),
		rec.AmountIn, rec.Notional, nullable(rec.TxHash),
		rec.ActualProfit, int64(rec.GasUsed), rec.GasCost, nullable(rec.Error),
		rec.Attempts, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return apperror.New(apperror.CodePersistenceFailed,
			apperror.WithCause(err),
			apperror.WithContext("upsert execution_record "+rec.ID))
	}
	return nil
}

// RecentExecutions returns up to limit records, newest first.
func (s *ExecutionStore) RecentExecutions(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, apperror.New(apperror.CodePersistenceFailed,
			apperror.WithCause(err),
			apperror.WithContext("query execution_records"))
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, apperror.New(apperror.CodePersistenceFailed,
			apperror.WithCause(err),
			apperror.WithContext("scan execution_records"))
	}
	return records, nil
}

func scanRecord(row pgx.CollectableRow) (domain.ExecutionRecord, error) {
	var (
		rec                                       domain.ExecutionRecord
		routeKey, status                          string
		amountIn, notional, actualProfit, gasCost decimal.Decimal
		gasUsed                                   int64
	)
	err := row.Scan(
		&rec.ID, &rec.Fingerprint, &routeKey, &status, &amountIn, &notional,
		&rec.TxHash, &actualProfit, &gasUsed, &gasCost, &rec.Error,
		&rec.Attempts, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	rec.RouteKey = domain.RouteKey(routeKey)
	rec.Status = domain.ExecutionStatus(status)
	rec.AmountIn = amountIn
	rec.Notional = notional
	rec.ActualProfit = actualProfit
	rec.GasCost = gasCost
	rec.GasUsed = uint64(gasUsed)
	return rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
