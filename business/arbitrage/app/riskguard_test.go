package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
)

func baseRiskConfig() RiskConfig {
	return RiskConfig{
		MaxTradeSize:    dec("100000"),
		MaxDailyVolume:  dec("1000000"),
		MaxDailyTrades:  100,
		Cooldown:        30 * time.Second,
		MaxGasPriceGwei: dec("100"),
	}
}

func mustGuard(t *testing.T, cfg RiskConfig, clk *clock) *RiskGuard {
	t.Helper()
	g, err := newRiskGuard(cfg, nopLogger(), clk.Now)
	if err != nil {
		t.Fatalf("newRiskGuard() error = %v", err)
	}
	return g
}

func routeN(i int) domain.Route {
	return domain.Route{
		Pair:           wethUSDC,
		PairSymbol:     wethUSDC.String(),
		SourceExchange: fmt.Sprintf("dex%d", i),
		TargetExchange: "sushiswap",
		SourceNetwork:  "ethereum",
		TargetNetwork:  "ethereum",
	}
}

func admitReq(route domain.Route, notional string) domain.AdmitRequest {
	return domain.AdmitRequest{
		Route:        route,
		Fingerprint:  string(route.Key()),
		Notional:     dec(notional),
		GasPriceGwei: dec("30"),
		Contracts:    []string{route.SourceExchange, route.TargetExchange},
	}
}

func TestRiskGuard_Checks(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(*RiskConfig)
		req       domain.AdmitRequest
		wantCheck string
	}{
		{name: "admitted", req: admitReq(routeN(1), "20000")},
		{name: "trade_size", req: admitReq(routeN(1), "150000"), wantCheck: CheckTradeSize},
		{
			name:      "confirmation_required",
			mutateCfg: func(c *RiskConfig) { c.RequireConfirmationAbove = dec("10000") },
			req:       admitReq(routeN(1), "20000"),
			wantCheck: CheckConfirmation,
		},
		{
			name:      "gas_price",
			req:       domain.AdmitRequest{Route: routeN(1), Notional: dec("1000"), GasPriceGwei: dec("250")},
			wantCheck: CheckGasPrice,
		},
		{
			name:      "network_gas_cap",
			mutateCfg: func(c *RiskConfig) { c.NetworkGasCaps = map[string]decimal.Decimal{"ethereum": dec("25")} },
			req:       admitReq(routeN(1), "1000"),
			wantCheck: CheckGasPrice,
		},
		{
			name:      "looser_network_cap_ignored",
			mutateCfg: func(c *RiskConfig) { c.NetworkGasCaps = map[string]decimal.Decimal{"ethereum": dec("500")} },
			req:       domain.AdmitRequest{Route: routeN(1), Notional: dec("1000"), GasPriceGwei: dec("250")},
			wantCheck: CheckGasPrice,
		},
		{
			name:      "blacklisted_exchange",
			mutateCfg: func(c *RiskConfig) { c.Blacklist = []string{"DEX1"} },
			req:       admitReq(routeN(1), "1000"),
			wantCheck: CheckBlacklist,
		},
		{
			name: "not_whitelisted",
			mutateCfg: func(c *RiskConfig) {
				c.WhitelistOnly = true
				c.Whitelist = []string{"dex1"}
			},
			req:       admitReq(routeN(1), "1000"),
			wantCheck: CheckWhitelist,
		},
		{
			name: "whitelisted",
			mutateCfg: func(c *RiskConfig) {
				c.WhitelistOnly = true
				c.Whitelist = []string{"dex1", "SushiSwap"}
			},
			req: admitReq(routeN(1), "1000"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseRiskConfig()
			if tt.mutateCfg != nil {
				tt.mutateCfg(&cfg)
			}
			g := mustGuard(t, cfg, newClock(epoch))

			_, err := g.Admit(context.Background(), tt.req)
			if got := RiskCheck(err); got != tt.wantCheck {
				t.Errorf("RiskCheck() = %q, want %q (err %v)", got, tt.wantCheck, err)
			}
			if tt.wantCheck != "" && g.Snapshot().DailyTradeCount != 0 {
				t.Error("rejected admission reserved a trade")
			}
		})
	}
}

func TestRiskGuard_ConcurrentAdmissionsRespectCeilings(t *testing.T) {
	tests := []struct {
		name         string
		maxTrades    int
		maxVolume    string
		notional     string
		wantAdmitted int64
	}{
		{name: "trade_count", maxTrades: 10, maxVolume: "100000000", notional: "1000", wantAdmitted: 10},
		{name: "volume", maxTrades: 100, maxVolume: "50000", notional: "20000", wantAdmitted: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseRiskConfig()
			cfg.MaxDailyTrades = tt.maxTrades
			cfg.MaxDailyVolume = dec(tt.maxVolume)
			g := mustGuard(t, cfg, newClock(epoch))

			var admitted atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if _, err := g.Admit(context.Background(), admitReq(routeN(i), tt.notional)); err == nil {
						admitted.Add(1)
					}
				}(i)
			}
			wg.Wait()

			if got := admitted.Load(); got != tt.wantAdmitted {
				t.Errorf("admitted = %d, want %d", got, tt.wantAdmitted)
			}
			s := g.Snapshot()
			if s.DailyTradeCount > tt.maxTrades {
				t.Errorf("DailyTradeCount = %d exceeds %d", s.DailyTradeCount, tt.maxTrades)
			}
			if s.DailyVolume.GreaterThan(dec(tt.maxVolume)) {
				t.Errorf("DailyVolume = %s exceeds %s", s.DailyVolume, tt.maxVolume)
			}
		})
	}
}

func TestRiskGuard_Cooldown(t *testing.T) {
	clk := newClock(epoch)
	g := mustGuard(t, baseRiskConfig(), clk)
	ctx := context.Background()
	req := admitReq(routeN(1), "1000")

	adm, err := g.Admit(ctx, req)
	if err != nil {
		t.Fatalf("first Admit() error = %v", err)
	}
	g.Settle(ctx, adm, domain.Outcome{Status: domain.StatusSucceeded, Confirmed: true, ActualProfit: dec("5")})

	clk.Advance(10 * time.Second)
	if _, err := g.Admit(ctx, req); RiskCheck(err) != CheckCooldown {
		t.Fatalf("Admit() within cooldown error = %v, want cooldown", err)
	}
	if _, err := g.Admit(ctx, admitReq(routeN(2), "1000")); err != nil {
		t.Errorf("other route blocked by cooldown: %v", err)
	}

	clk.Advance(25 * time.Second)
	if _, err := g.Admit(ctx, req); err != nil {
		t.Errorf("Admit() after cooldown error = %v", err)
	}
}

func TestRiskGuard_WindowReset(t *testing.T) {
	clk := newClock(epoch)
	cfg := baseRiskConfig()
	cfg.MaxDailyTrades = 2
	g := mustGuard(t, cfg, clk)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := g.Admit(ctx, admitReq(routeN(i), "1000")); err != nil {
			t.Fatalf("Admit(%d) error = %v", i, err)
		}
	}
	if _, err := g.Admit(ctx, admitReq(routeN(5), "1000")); RiskCheck(err) != CheckHalted {
		t.Fatalf("Admit() at ceiling error = %v, want halted", err)
	}

	clk.Advance(12 * time.Hour)
	if _, err := g.Admit(ctx, admitReq(routeN(5), "1000")); err != nil {
		t.Fatalf("Admit() in new window error = %v", err)
	}
	s := g.Snapshot()
	if s.DailyTradeCount != 1 || !s.DailyVolume.Equal(dec("1000")) {
		t.Errorf("new window state = %d trades, %s volume", s.DailyTradeCount, s.DailyVolume)
	}
	if !s.WindowStart.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("WindowStart = %s", s.WindowStart)
	}
}

func TestRiskGuard_VolumeOverrunHaltsWindow(t *testing.T) {
	clk := newClock(epoch)
	cfg := baseRiskConfig()
	cfg.MaxDailyVolume = dec("50000")
	g := mustGuard(t, cfg, clk)
	ctx := context.Background()

	if _, err := g.Admit(ctx, admitReq(routeN(1), "40000")); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if _, err := g.Admit(ctx, admitReq(routeN(2), "20000")); RiskCheck(err) != CheckDailyVolume {
		t.Fatalf("Admit() over volume error = %v, want %s", err, CheckDailyVolume)
	}
	// A candidate that would still fit is refused for the rest of the window.
	if _, err := g.Admit(ctx, admitReq(routeN(3), "1000")); RiskCheck(err) != CheckHalted {
		t.Fatalf("Admit() after overrun error = %v, want halted", err)
	}
	if s := g.Snapshot(); !s.DailyVolume.Equal(dec("40000")) || s.DailyTradeCount != 1 {
		t.Errorf("state = %d trades, %s volume", s.DailyTradeCount, s.DailyVolume)
	}

	clk.Advance(24 * time.Hour)
	if _, err := g.Admit(ctx, admitReq(routeN(3), "1000")); err != nil {
		t.Errorf("Admit() in new window error = %v", err)
	}
}

func TestRiskGuard_SettleRevertBooksGasOnly(t *testing.T) {
	g := mustGuard(t, baseRiskConfig(), newClock(epoch))
	ctx := context.Background()

	adm, err := g.Admit(ctx, admitReq(routeN(1), "20000"))
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if s := g.Snapshot(); !s.Exposure["WETH"].Equal(dec("20000")) {
		t.Errorf("WETH exposure = %s after admission", s.Exposure["WETH"])
	}

	g.Settle(ctx, adm, domain.Outcome{
		Status:       domain.StatusFailed,
		Confirmed:    true,
		ActualProfit: dec("-25.2"),
		GasCost:      dec("25.2"),
	})

	s := g.Snapshot()
	if !s.DailyVolume.Equal(dec("25.2")) {
		t.Errorf("DailyVolume = %s, want 25.2", s.DailyVolume)
	}
	if s.DailyTradeCount != 1 {
		t.Errorf("DailyTradeCount = %d, want 1", s.DailyTradeCount)
	}
	if !s.RealizedProfit.Equal(dec("-25.2")) {
		t.Errorf("RealizedProfit = %s, want -25.2", s.RealizedProfit)
	}
	if len(s.Exposure) != 0 {
		t.Errorf("exposure not released: %v", s.Exposure)
	}
}

func TestRiskGuard_Release(t *testing.T) {
	cfg := baseRiskConfig()
	cfg.MaxDailyTrades = 1
	g := mustGuard(t, cfg, newClock(epoch))
	ctx := context.Background()
	req := admitReq(routeN(1), "20000")

	adm, err := g.Admit(ctx, req)
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	g.Release(ctx, adm)

	s := g.Snapshot()
	if s.DailyTradeCount != 0 || !s.DailyVolume.IsZero() || s.Halted(epoch) {
		t.Errorf("state after release = %+v", s)
	}
	if _, err := g.Admit(ctx, req); err != nil {
		t.Errorf("Admit() after release error = %v", err)
	}
}

func TestRiskGuard_CheckDoesNotReserve(t *testing.T) {
	g := mustGuard(t, baseRiskConfig(), newClock(epoch))
	req := admitReq(routeN(1), "20000")

	for i := 0; i < 3; i++ {
		if err := g.Check(context.Background(), req); err != nil {
			t.Fatalf("Check() error = %v", err)
		}
	}
	if s := g.Snapshot(); s.DailyTradeCount != 0 || !s.DailyVolume.IsZero() {
		t.Errorf("Check() reserved budget: %+v", s)
	}
}
