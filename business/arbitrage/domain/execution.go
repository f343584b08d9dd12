package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

// ExecutionStatus is the lifecycle state of an execution record.
type ExecutionStatus string

const (
	StatusPending    ExecutionStatus = "pending"
	StatusExecuting  ExecutionStatus = "executing"
	StatusSucceeded  ExecutionStatus = "succeeded"
	StatusFailed     ExecutionStatus = "failed"
	StatusRolledBack ExecutionStatus = "rolled_back"
)

var transitions = map[ExecutionStatus][]ExecutionStatus{
	StatusPending:   {StatusExecuting, StatusFailed},
	StatusExecuting: {StatusSucceeded, StatusFailed, StatusRolledBack},
}

// Terminal reports whether no further transition is possible.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusRolledBack
}

// InFlight reports whether the record holds its route key.
func (s ExecutionStatus) InFlight() bool {
	return s == StatusPending || s == StatusExecuting
}

// CanTransition reports whether s -> to is a forward transition.
func (s ExecutionStatus) CanTransition(to ExecutionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ExecutionRecord tracks one admitted opportunity through execution.
type ExecutionRecord struct {
	ID           string          `json:"id"`
	Fingerprint  string          `json:"fingerprint"`
	RouteKey     RouteKey        `json:"route_key"`
	Status       ExecutionStatus `json:"status"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	Notional     decimal.Decimal `json:"notional"`
	TxHash       string          `json:"tx_hash,omitempty"`
	ActualProfit decimal.Decimal `json:"actual_profit"`
	GasUsed      uint64          `json:"gas_used,omitempty"`
	GasCost      decimal.Decimal `json:"gas_cost"`
	Error        string          `json:"error,omitempty"`
	Attempts     int             `json:"attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewExecutionRecord creates a Pending record.
func NewExecutionRecord(id string, opp Opportunity, amountIn, notional decimal.Decimal, at time.Time) *ExecutionRecord {
	return &ExecutionRecord{
		ID:          id,
		Fingerprint: opp.Fingerprint,
		RouteKey:    opp.Key(),
		Status:      StatusPending,
		AmountIn:    amountIn,
		Notional:    notional,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// Transition moves the record forward. Revisiting a state is an error.
func (r *ExecutionRecord) Transition(to ExecutionStatus, at time.Time) error {
	if !r.Status.CanTransition(to) {
		return apperror.New(apperror.CodeInvalidTransition,
			apperror.WithContext(fmt.Sprintf("%s: %s -> %s", r.ID, r.Status, to)))
	}
	r.Status = to
	r.UpdatedAt = at
	return nil
}

// ExecutionResult is what the executor observed on-chain.
type ExecutionResult struct {
	TxHash        string
	Reverted      bool
	NoSideEffects bool // revert left no state behind besides gas
	ActualProfit  decimal.Decimal
	GasUsed       uint64
	GasCost       decimal.Decimal // quote units
}

// Event types published on the execution stream.
const (
	EventExecutionStarted   = "execution.started"
	EventExecutionSucceeded = "execution.succeeded"
	EventExecutionFailed    = "execution.failed"
	EventExecutionRolled    = "execution.rolled_back"
)

// ExecutionEvent is published for every lifecycle change worth alerting on.
type ExecutionEvent struct {
	Type        string          `json:"type"`
	Record      ExecutionRecord `json:"record"`
	Pair        string          `json:"pair"`
	Source      string          `json:"source"`
	Target      string          `json:"target"`
	Expected    decimal.Decimal `json:"expected_profit"`
	PublishedAt time.Time       `json:"published_at"`
}

// NewExecutionEvent snapshots rec for publishing.
func NewExecutionEvent(rec ExecutionRecord, opp Opportunity, at time.Time) ExecutionEvent {
	typ := EventExecutionStarted
	switch rec.Status {
	case StatusSucceeded:
		typ = EventExecutionSucceeded
	case StatusFailed:
		typ = EventExecutionFailed
	case StatusRolledBack:
		typ = EventExecutionRolled
	}
	return ExecutionEvent{
		Type:        typ,
		Record:      rec,
		Pair:        opp.Pair.String(),
		Source:      opp.SourceExchange,
		Target:      opp.TargetExchange,
		Expected:    opp.ExpectedProfit,
		PublishedAt: at,
	}
}
