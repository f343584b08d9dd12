package domain

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	pricingDomain "github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

func ptr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func testRoute() Route {
	return Route{
		Pair:           pricingDomain.MustParsePair("WETH-USDC"),
		PairSymbol:     "WETH-USDC",
		SourceExchange: "uniswap",
		TargetExchange: "sushiswap",
		SourceNetwork:  "ethereum",
		TargetNetwork:  "ethereum",
	}
}

func TestThresholdLayers_Resolve(t *testing.T) {
	def := Thresholds{
		MinProfit:   decimal.NewFromInt(10),
		MinScore:    decimal.RequireFromString("0.5"),
		MaxSlippage: decimal.RequireFromString("0.01"),
	}

	tests := []struct {
		name          string
		pair          map[string]ThresholdOverride
		dex           map[string]ThresholdOverride
		network       map[string]ThresholdOverride
		wantMinProfit string
		wantMinScore  string
		wantLayers    []string
	}{
		{
			name:          "default_only",
			wantMinProfit: "10",
			wantMinScore:  "0.5",
			wantLayers:    []string{"default"},
		},
		{
			name:          "network_overrides_default",
			network:       map[string]ThresholdOverride{"Ethereum": {MinProfit: ptr("20")}},
			wantMinProfit: "20",
			wantMinScore:  "0.5",
			wantLayers:    []string{"network:ethereum", "default"},
		},
		{
			name:          "dex_beats_network",
			network:       map[string]ThresholdOverride{"ethereum": {MinProfit: ptr("20")}},
			dex:           map[string]ThresholdOverride{"sushiswap": {MinProfit: ptr("30")}},
			wantMinProfit: "30",
			wantMinScore:  "0.5",
			wantLayers:    []string{"dex:sushiswap", "network:ethereum", "default"},
		},
		{
			name: "source_dex_beats_target_dex",
			dex: map[string]ThresholdOverride{
				"sushiswap": {MinProfit: ptr("30")},
				"uniswap":   {MinProfit: ptr("40")},
			},
			wantMinProfit: "40",
			wantMinScore:  "0.5",
			wantLayers:    []string{"dex:uniswap", "dex:sushiswap", "default"},
		},
		{
			name:          "pair_beats_all_and_partial_inherits",
			pair:          map[string]ThresholdOverride{"weth-usdc": {MinScore: ptr("0.8")}},
			dex:           map[string]ThresholdOverride{"uniswap": {MinProfit: ptr("40")}},
			wantMinProfit: "40",
			wantMinScore:  "0.8",
			wantLayers:    []string{"pair:WETH-USDC", "dex:uniswap", "default"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layers := NewThresholdLayers(def, tt.pair, tt.dex, tt.network)
			got, applied := layers.Resolve(testRoute())

			if !got.MinProfit.Equal(decimal.RequireFromString(tt.wantMinProfit)) {
				t.Errorf("MinProfit = %s, want %s", got.MinProfit, tt.wantMinProfit)
			}
			if !got.MinScore.Equal(decimal.RequireFromString(tt.wantMinScore)) {
				t.Errorf("MinScore = %s, want %s", got.MinScore, tt.wantMinScore)
			}
			if !got.MaxSlippage.Equal(def.MaxSlippage) {
				t.Errorf("MaxSlippage = %s, want inherited %s", got.MaxSlippage, def.MaxSlippage)
			}
			if len(applied) != len(tt.wantLayers) {
				t.Fatalf("layers = %v, want %v", applied, tt.wantLayers)
			}
			for i := range applied {
				if applied[i] != tt.wantLayers[i] {
					t.Errorf("layers = %v, want %v", applied, tt.wantLayers)
					break
				}
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	cfg := FingerprintConfig{AmountPrecision: 2, TimeBucket: 10 * time.Second}
	r := testRoute()
	at := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)

	base := Fingerprint(r, decimal.RequireFromString("1.234"), at, cfg)

	if got := Fingerprint(r, decimal.RequireFromString("1.231"), at.Add(5*time.Second), cfg); got != base {
		t.Error("same rounded amount in the same bucket must share a fingerprint")
	}
	if got := Fingerprint(r, decimal.RequireFromString("1.25"), at, cfg); got == base {
		t.Error("different rounded amount must change the fingerprint")
	}
	if got := Fingerprint(r, decimal.RequireFromString("1.234"), at.Add(10*time.Second), cfg); got == base {
		t.Error("next time bucket must change the fingerprint")
	}
	reversed := r
	reversed.SourceExchange, reversed.TargetExchange = r.TargetExchange, r.SourceExchange
	if got := Fingerprint(reversed, decimal.RequireFromString("1.234"), at, cfg); got == base {
		t.Error("direction must be part of the fingerprint")
	}
	if len(base) != 66 {
		t.Errorf("fingerprint %q is not a hex bytes32", base)
	}
}

func TestLess_Ordering(t *testing.T) {
	mk := func(fp, profit, conf, impact string) Opportunity {
		return Opportunity{
			Fingerprint:    fp,
			ExpectedProfit: decimal.RequireFromString(profit),
			Confidence:     decimal.RequireFromString(conf),
			PriceImpact:    decimal.RequireFromString(impact),
		}
	}
	opps := []Opportunity{
		mk("e", "10", "0.5", "0.001"),
		mk("d", "50", "0.5", "0.002"),
		mk("c", "50", "0.5", "0.001"),
		mk("b", "50", "0.9", "0.004"),
		mk("a", "50", "0.5", "0.001"),
	}
	sort.Slice(opps, func(i, j int) bool { return Less(opps[i], opps[j]) })

	want := []string{"b", "a", "c", "d", "e"}
	for i, o := range opps {
		if o.Fingerprint != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, o.Fingerprint, want[i])
		}
	}
}

func TestExecutionRecord_Transitions(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		path    []ExecutionStatus
		wantErr bool
	}{
		{name: "success", path: []ExecutionStatus{StatusExecuting, StatusSucceeded}},
		{name: "revert", path: []ExecutionStatus{StatusExecuting, StatusFailed}},
		{name: "rollback", path: []ExecutionStatus{StatusExecuting, StatusRolledBack}},
		{name: "dispatch_failure", path: []ExecutionStatus{StatusFailed}},
		{name: "skip_executing", path: []ExecutionStatus{StatusSucceeded}, wantErr: true},
		{name: "revisit_executing", path: []ExecutionStatus{StatusExecuting, StatusExecuting}, wantErr: true},
		{name: "leave_terminal", path: []ExecutionStatus{StatusExecuting, StatusFailed, StatusSucceeded}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewExecutionRecord("id", Opportunity{Route: testRoute()}, decimal.NewFromInt(1), decimal.NewFromInt(2000), now)
			var err error
			for _, to := range tt.path {
				if err = rec.Transition(to, now); err != nil {
					break
				}
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && apperror.GetCode(err) != apperror.CodeInvalidTransition {
				t.Errorf("code = %s", apperror.GetCode(err))
			}
			var appErr *apperror.AppError
			if err != nil && !errors.As(err, &appErr) {
				t.Errorf("error %T is not an AppError", err)
			}
		})
	}
}

func TestWindowStart(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		offset time.Duration
		want   time.Time
	}{
		{
			name: "utc_midnight",
			now:  time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "before_offset_belongs_to_previous_day",
			now:    time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC),
			offset: 2 * time.Hour,
			want:   time.Date(2026, 2, 28, 2, 0, 0, 0, time.UTC),
		},
		{
			name:   "after_offset",
			now:    time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC),
			offset: 2 * time.Hour,
			want:   time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "non_utc_input",
			now:  time.Date(2026, 3, 1, 20, 0, 0, 0, time.FixedZone("EST", -5*3600)),
			want: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WindowStart(tt.now, tt.offset); !got.Equal(tt.want) {
				t.Errorf("WindowStart() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidationContext_Digest(t *testing.T) {
	a := ValidationContext{
		Congestion: decimal.RequireFromString("0.4"),
		Exposure: map[string]decimal.Decimal{
			"WETH": decimal.RequireFromString("0.1"),
			"USDC": decimal.RequireFromString("0.2"),
		},
	}
	b := a
	b.Exposure = map[string]decimal.Decimal{
		"USDC": decimal.RequireFromString("0.2"),
		"WETH": decimal.RequireFromString("0.1"),
	}
	if a.Digest() != b.Digest() {
		t.Error("digest must not depend on map order")
	}

	c := a
	c.Congestion = decimal.RequireFromString("0.8")
	if a.Digest() == c.Digest() {
		t.Error("digest must change with congestion")
	}

	if got := a.MaxExposure("WETH", "USDC"); !got.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("MaxExposure() = %s", got)
	}
}
