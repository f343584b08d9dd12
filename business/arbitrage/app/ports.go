// Package app contains application services and port definitions for the arbitrage context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	blockchainDomain "github.com/fd1az/flashloan-arbitrage/business/blockchain/domain"
	pricingDomain "github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
)

// QuoteSource serves fresh quotes per pair.
type QuoteSource interface {
	Pairs() []pricingDomain.Pair
	Snapshot(pair pricingDomain.Pair) []pricingDomain.PriceQuote
	LatestPrice(network string, pair pricingDomain.Pair) (pricingDomain.PriceQuote, bool)
}

// ChainState reads gas prices and congestion.
type ChainState interface {
	GasPrice(ctx context.Context, network string) (*blockchainDomain.GasPrice, error)
	Congestion(ctx context.Context, networks ...string) (blockchainDomain.Congestion, error)
}

// Score is the scoring service's view of a route. All values are in [0,1].
type Score struct {
	Confidence   float64 `json:"confidence"`
	SuccessRate  float64 `json:"success_rate"`
	FrontRunRisk float64 `json:"front_run_risk"`
	ModelScore   float64 `json:"model_score"`
}

// Scorer supplies confidence and historical success inputs per route.
type Scorer interface {
	Score(ctx context.Context, route domain.Route) (Score, error)
}

// BridgeEstimator quotes cross-chain transfers.
type BridgeEstimator interface {
	Quote(ctx context.Context, from, to string) (domain.BridgeQuote, error)
}

// Validator decides whether an opportunity is worth executing.
type Validator interface {
	Validate(ctx context.Context, opp domain.Opportunity, vctx domain.ValidationContext) domain.Verdict
}

// FlashLoanExecutor submits a flash-loan-backed trade and waits for its
// confirmation or ctx expiry. Await keeps waiting on a transaction an
// earlier Execute already broadcast, without sending anything new.
type FlashLoanExecutor interface {
	Execute(ctx context.Context, opp domain.Opportunity, amountIn decimal.Decimal) (domain.ExecutionResult, error)
	Await(ctx context.Context, opp domain.Opportunity, txHash string) (domain.ExecutionResult, error)
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, rec domain.ExecutionRecord) error
	RecentExecutions(ctx context.Context, limit int) ([]domain.ExecutionRecord, error)
}

// EventPublisher delivers execution events to an external channel.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.ExecutionEvent) error
}
