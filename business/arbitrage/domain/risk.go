package domain

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// RiskState is the guard's accounting for the current daily window.
type RiskState struct {
	WindowStart     time.Time                  `json:"window_start"`
	DailyVolume     decimal.Decimal            `json:"daily_volume"`
	DailyTradeCount int                        `json:"daily_trade_count"`
	RealizedProfit  decimal.Decimal            `json:"realized_profit"`
	LastTradeAt     map[RouteKey]time.Time     `json:"last_trade_at"`
	CooldownUntil   map[RouteKey]time.Time     `json:"cooldown_until"`
	Exposure        map[string]decimal.Decimal `json:"exposure"` // asset -> reserved notional
	HaltedUntil     time.Time                  `json:"halted_until,omitzero"`
}

// NewRiskState returns an empty state for the window starting at start.
func NewRiskState(start time.Time) RiskState {
	return RiskState{
		WindowStart:   start,
		LastTradeAt:   make(map[RouteKey]time.Time),
		CooldownUntil: make(map[RouteKey]time.Time),
		Exposure:      make(map[string]decimal.Decimal),
	}
}

// Clone deep-copies the maps.
func (s RiskState) Clone() RiskState {
	s.LastTradeAt = maps.Clone(s.LastTradeAt)
	s.CooldownUntil = maps.Clone(s.CooldownUntil)
	s.Exposure = maps.Clone(s.Exposure)
	return s
}

// Halted reports whether admissions are stopped at now.
func (s RiskState) Halted(now time.Time) bool {
	return !s.HaltedUntil.IsZero() && now.Before(s.HaltedUntil)
}

// ExposureFractions converts reserved notional into fractions of capacity.
func (s RiskState) ExposureFractions(capacity decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.Exposure))
	if capacity.Sign() <= 0 {
		return out
	}
	for asset, notional := range s.Exposure {
		if notional.Sign() > 0 {
			out[asset] = notional.Div(capacity)
		}
	}
	return out
}

// WindowStart returns the start of the daily window containing now: UTC
// midnight shifted by offset.
func WindowStart(now time.Time, offset time.Duration) time.Time {
	t := now.UTC().Add(-offset)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.Add(offset)
}

// AdmitRequest describes a trade asking for budget.
type AdmitRequest struct {
	Route        Route
	Fingerprint  string
	Notional     decimal.Decimal
	GasPriceGwei decimal.Decimal
	Contracts    []string // exchanges and token addresses the trade touches
}

// Admission is a reservation granted by the guard. It must be settled or
// released exactly once.
type Admission struct {
	ID          string          `json:"id"`
	Key         RouteKey        `json:"route_key"`
	Fingerprint string          `json:"fingerprint"`
	Notional    decimal.Decimal `json:"notional"`
	Assets      []string        `json:"assets"`
	WindowStart time.Time       `json:"window_start"`
	AdmittedAt  time.Time       `json:"admitted_at"`
}

// Outcome is what happened to an admitted trade.
type Outcome struct {
	Status       ExecutionStatus
	Confirmed    bool // a transaction was mined
	Unresolved   bool // a transaction was broadcast but its receipt never arrived
	ActualProfit decimal.Decimal
	GasCost      decimal.Decimal
}
