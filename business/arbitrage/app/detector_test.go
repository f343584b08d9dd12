package app

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	pricingDomain "github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
)

func TestSizeTrade_NeverExceedsImpactCap(t *testing.T) {
	tests := []struct {
		name      string
		buy       Leg
		sell      Leg
		maxSize   string
		maxImpact string
	}{
		{name: "deep_pools", buy: Leg{dec("2000"), dec("100000000")}, sell: Leg{dec("2010"), dec("100000000")}, maxSize: "10", maxImpact: "0.01"},
		{name: "shallow_buy", buy: Leg{dec("2000"), dec("50000")}, sell: Leg{dec("2010"), dec("100000000")}, maxSize: "10", maxImpact: "0.01"},
		{name: "shallow_both", buy: Leg{dec("1.0001"), dec("2500")}, sell: Leg{dec("1.003"), dec("1800")}, maxSize: "100000", maxImpact: "0.005"},
		{name: "tight_cap", buy: Leg{dec("30000"), dec("1000000")}, sell: Leg{dec("30100"), dec("900000")}, maxSize: "5", maxImpact: "0.0001"},
		{name: "zero_liquidity", buy: Leg{dec("2000"), decimal.Zero}, sell: Leg{dec("2010"), dec("100000")}, maxSize: "10", maxImpact: "0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maxImpact := dec(tt.maxImpact)
			got := SizeTrade(tt.buy, tt.sell, dec(tt.maxSize), maxImpact, 40, 6)

			if got.IsNegative() || got.GreaterThan(dec(tt.maxSize)) {
				t.Fatalf("SizeTrade() = %s, outside [0, %s]", got, tt.maxSize)
			}
			if impact := MaxImpact(got, tt.buy, tt.sell); impact.GreaterThan(maxImpact) {
				t.Errorf("impact at %s = %s, exceeds cap %s", got, impact, maxImpact)
			}
		})
	}
}

func TestSizeTrade_UsesMaxSizeWhenUnderCap(t *testing.T) {
	got := SizeTrade(Leg{dec("2000"), dec("100000000")}, Leg{dec("2010"), dec("100000000")}, dec("10"), dec("0.01"), 32, 4)
	if !got.Equal(dec("10")) {
		t.Errorf("SizeTrade() = %s, want 10", got)
	}
}

func TestDetector_Evaluate(t *testing.T) {
	tests := []struct {
		name    string
		buy     string
		sell    string
		liq     string
		gwei    int64
		wantOpp bool
	}{
		{name: "wide_spread_is_profitable", buy: "2000", sell: "2010", liq: "100000000", gwei: 30, wantOpp: true},
		{name: "spread_below_minimum", buy: "2000", sell: "2000.5", liq: "100000000", gwei: 30},
		{name: "gas_eats_profit", buy: "2000", sell: "2010", liq: "100000000", gwei: 300},
		{name: "illiquid_quotes_ignored", buy: "2000", sell: "2010", liq: "500", gwei: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := quotesOf(
				quote("uniswap", "ethereum", tt.buy, tt.liq),
				quote("sushiswap", "ethereum", tt.sell, tt.liq),
			)
			d := scenarioDetector(q, &fakeChain{gwei: tt.gwei}, scenarioScore)

			opps := d.Evaluate(context.Background(), wethUSDC, q.Snapshot(wethUSDC))
			if got := len(opps) > 0; got != tt.wantOpp {
				t.Errorf("Evaluate() found = %v, want %v", got, tt.wantOpp)
			}
		})
	}
}

func TestDetector_EvaluateEmitsEveryRoute(t *testing.T) {
	q := quotesOf(
		quote("uniswap", "ethereum", "2000", "100000000"),
		quote("sushiswap", "ethereum", "2010", "100000000"),
		quote("curve", "ethereum", "2020", "100000000"),
	)
	d := scenarioDetector(q, &fakeChain{gwei: 30}, scenarioScore)

	opps := d.Detect(context.Background())
	if len(opps) != 3 {
		t.Fatalf("Detect() returned %d opportunities, want 3", len(opps))
	}

	routes := make(map[string]bool)
	prints := make(map[string]bool)
	for _, opp := range opps {
		routes[opp.SourceExchange+">"+opp.TargetExchange] = true
		prints[opp.Fingerprint] = true
	}
	for _, want := range []string{"uniswap>curve", "uniswap>sushiswap", "sushiswap>curve"} {
		if !routes[want] {
			t.Errorf("route %s missing from %v", want, routes)
		}
	}
	if len(prints) != 3 {
		t.Errorf("fingerprints not unique per route: %v", prints)
	}
	if opps[0].SourceExchange != "uniswap" || opps[0].TargetExchange != "curve" {
		t.Errorf("first route = %s, want widest spread uniswap to curve", opps[0].Key())
	}
	for i := 1; i < len(opps); i++ {
		if opps[i].ExpectedProfit.GreaterThan(opps[i-1].ExpectedProfit) {
			t.Errorf("opportunity %d out of order", i)
		}
	}
}

func TestDetector_ProfitableSpread(t *testing.T) {
	opp := scenarioOpportunity()

	if opp.SourceExchange != "uniswap" || opp.TargetExchange != "sushiswap" {
		t.Errorf("route = %s, want buy uniswap sell sushiswap", opp.Key())
	}
	if !opp.AmountIn.Equal(dec("10")) {
		t.Errorf("AmountIn = %s, want 10", opp.AmountIn)
	}
	if !opp.GrossProfit.Equal(dec("100")) {
		t.Errorf("GrossProfit = %s, want 100", opp.GrossProfit)
	}
	if !opp.Costs.Gas.Equal(dec("25.2")) {
		t.Errorf("gas cost = %s, want 25.2", opp.Costs.Gas)
	}
	if !opp.Costs.FlashLoanFee.Equal(dec("10")) {
		t.Errorf("flash loan fee = %s, want 10", opp.Costs.FlashLoanFee)
	}
	if opp.Costs.Slippage.LessThan(dec("8")) || opp.Costs.Slippage.GreaterThan(dec("8.05")) {
		t.Errorf("slippage = %s, want about 8.02", opp.Costs.Slippage)
	}
	if opp.ExpectedProfit.LessThan(dec("56.7")) || opp.ExpectedProfit.GreaterThan(dec("56.9")) {
		t.Errorf("ExpectedProfit = %s, want about 56.8", opp.ExpectedProfit)
	}
	if !opp.Confidence.Equal(dec("0.8")) {
		t.Errorf("Confidence = %s, want 0.8", opp.Confidence)
	}
	if len(opp.Fingerprint) != 66 {
		t.Errorf("fingerprint %q is not a 32-byte hex hash", opp.Fingerprint)
	}
}

func TestDetector_Detect_OrdersByProfit(t *testing.T) {
	small := quote("uniswap", "ethereum", "2000", "100000000")
	small.Pair = pricingDomain.MustParsePair("WBTC-USDC")
	small.PairSymbol = small.Pair.String()
	smallSell := quote("sushiswap", "ethereum", "2006", "100000000")
	smallSell.Pair, smallSell.PairSymbol = small.Pair, small.PairSymbol

	q := quotesOf(
		small, smallSell,
		quote("uniswap", "ethereum", "2000", "100000000"),
		quote("sushiswap", "ethereum", "2010", "100000000"),
	)
	d := scenarioDetector(q, &fakeChain{gwei: 30}, scenarioScore)

	opps := d.Detect(context.Background())
	if len(opps) != 2 {
		t.Fatalf("Detect() returned %d opportunities, want 2", len(opps))
	}
	if !opps[0].ExpectedProfit.GreaterThan(opps[1].ExpectedProfit) {
		t.Errorf("opportunities not ordered by expected profit: %s then %s", opps[0].ExpectedProfit, opps[1].ExpectedProfit)
	}
	if opps[0].PairSymbol != "WETH-USDC" {
		t.Errorf("first pair = %s, want WETH-USDC", opps[0].PairSymbol)
	}
}
