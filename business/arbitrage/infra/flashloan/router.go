package flashloan

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

var _ app.FlashLoanExecutor = (*Router)(nil)

// Router sends each opportunity to the executor of the network it settles on.
type Router struct {
	executors map[string]app.FlashLoanExecutor
}

// NewRouter creates a router over per-network executors.
func NewRouter(executors map[string]app.FlashLoanExecutor) *Router {
	return &Router{executors: executors}
}

// Execute runs opp on its network's executor. A flash loan cannot span two
// chains, so cross-chain routes fail without submitting anything.
func (r *Router) Execute(ctx context.Context, opp domain.Opportunity, amountIn decimal.Decimal) (domain.ExecutionResult, error) {
	ex, err := r.route(opp)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	return ex.Execute(ctx, opp, amountIn)
}

// Await resumes waiting on txHash with the executor that sent it.
func (r *Router) Await(ctx context.Context, opp domain.Opportunity, txHash string) (domain.ExecutionResult, error) {
	ex, err := r.route(opp)
	if err != nil {
		return domain.ExecutionResult{TxHash: txHash}, err
	}
	return ex.Await(ctx, opp, txHash)
}

func (r *Router) route(opp domain.Opportunity) (app.FlashLoanExecutor, error) {
	if opp.CrossChain() {
		return nil, apperror.New(apperror.CodeExecutionFailed,
			apperror.WithContext("cross-chain route "+string(opp.Key())+" has no atomic executor"))
	}
	ex, ok := r.executors[opp.SourceNetwork]
	if !ok {
		return nil, apperror.New(apperror.CodeExecutionFailed,
			apperror.WithContext("no executor configured for "+opp.SourceNetwork))
	}
	return ex, nil
}
