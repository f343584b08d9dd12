package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Thresholds is a complete set of validator limits.
type Thresholds struct {
	MaxSlippage          decimal.Decimal `json:"max_slippage"`
	MaxFrontRunRisk      decimal.Decimal `json:"max_front_run_risk"`
	MaxCongestion        decimal.Decimal `json:"max_congestion"`
	MaxBridgeFeePct      decimal.Decimal `json:"max_bridge_fee_pct"`
	MaxBridgeTime        time.Duration   `json:"max_bridge_time"`
	MinBridgeReliability decimal.Decimal `json:"min_bridge_reliability"`
	MinProfit            decimal.Decimal `json:"min_profit"`
	MinProfitAfterGasPct decimal.Decimal `json:"min_profit_after_gas_pct"`
	MinScore             decimal.Decimal `json:"min_score"`
}

// ThresholdOverride is a partial threshold set. Nil fields inherit from
// the layer below.
type ThresholdOverride struct {
	MaxSlippage          *decimal.Decimal
	MaxFrontRunRisk      *decimal.Decimal
	MaxCongestion        *decimal.Decimal
	MaxBridgeFeePct      *decimal.Decimal
	MaxBridgeTime        *time.Duration
	MinBridgeReliability *decimal.Decimal
	MinProfit            *decimal.Decimal
	MinProfitAfterGasPct *decimal.Decimal
	MinScore             *decimal.Decimal
}

// Apply returns t with every field set in o replaced.
func (t Thresholds) Apply(o ThresholdOverride) Thresholds {
	set := func(dst *decimal.Decimal, src *decimal.Decimal) {
		if src != nil {
			*dst = *src
		}
	}
	set(&t.MaxSlippage, o.MaxSlippage)
	set(&t.MaxFrontRunRisk, o.MaxFrontRunRisk)
	set(&t.MaxCongestion, o.MaxCongestion)
	set(&t.MaxBridgeFeePct, o.MaxBridgeFeePct)
	if o.MaxBridgeTime != nil {
		t.MaxBridgeTime = *o.MaxBridgeTime
	}
	set(&t.MinBridgeReliability, o.MinBridgeReliability)
	set(&t.MinProfit, o.MinProfit)
	set(&t.MinProfitAfterGasPct, o.MinProfitAfterGasPct)
	set(&t.MinScore, o.MinScore)
	return t
}

// ThresholdLayers is the layered lookup: pair override, then DEX override
// (source exchange, then target), then network override (source, then
// target), then the global default. Keys are case-insensitive.
type ThresholdLayers struct {
	Default Thresholds
	Pair    map[string]ThresholdOverride
	DEX     map[string]ThresholdOverride
	Network map[string]ThresholdOverride
}

// NewThresholdLayers builds layers with lowercased keys.
func NewThresholdLayers(def Thresholds, pair, dex, network map[string]ThresholdOverride) ThresholdLayers {
	fold := func(m map[string]ThresholdOverride) map[string]ThresholdOverride {
		out := make(map[string]ThresholdOverride, len(m))
		for k, v := range m {
			out[strings.ToLower(k)] = v
		}
		return out
	}
	return ThresholdLayers{
		Default: def,
		Pair:    fold(pair),
		DEX:     fold(dex),
		Network: fold(network),
	}
}

// Resolve returns the effective thresholds for r and the names of the
// layers that contributed, most specific first.
func (l ThresholdLayers) Resolve(r Route) (Thresholds, []string) {
	type layer struct {
		name string
		m    map[string]ThresholdOverride
		key  string
	}
	// Lowest precedence first; later layers win.
	stack := []layer{
		{"network:" + r.TargetNetwork, l.Network, r.TargetNetwork},
		{"network:" + r.SourceNetwork, l.Network, r.SourceNetwork},
		{"dex:" + r.TargetExchange, l.DEX, r.TargetExchange},
		{"dex:" + r.SourceExchange, l.DEX, r.SourceExchange},
		{"pair:" + r.Pair.String(), l.Pair, r.Pair.String()},
	}

	t := l.Default
	var applied []string
	seen := make(map[string]bool, len(stack))
	for _, ly := range stack {
		if seen[ly.name] {
			continue
		}
		seen[ly.name] = true
		o, ok := ly.m[strings.ToLower(ly.key)]
		if !ok {
			continue
		}
		t = t.Apply(o)
		applied = append([]string{ly.name}, applied...)
	}
	return t, append(applied, "default")
}
