package app

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

type scannerFixture struct {
	scanner *Scanner
	guard   *RiskGuard
	coord   *Coordinator
	store   *memoryStore
	seen    *recordingObserver
}

type recordingObserver struct {
	mu     sync.Mutex
	cycles [][]PendingOpportunity
}

func (o *recordingObserver) ObserveCycle(_ context.Context, view []PendingOpportunity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles = append(o.cycles, view)
}

func (o *recordingObserver) Cycles() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.cycles)
}

func newScannerFixture(t *testing.T, sell string, dryRun bool) *scannerFixture {
	t.Helper()
	chain := &fakeChain{gwei: 30, congestion: 0.2}
	return newScannerFixtureWith(t, sell, dryRun, scenarioValidatorConfig(), chain, scenarioScore)
}

// newScannerFixtureWith lets a test replace the chain and scorer the scanner
// reads validation inputs from. Detection always sees a healthy chain.
func newScannerFixtureWith(t *testing.T, sell string, dryRun bool, vcfg ValidatorConfig, chain ChainState, scorer Scorer) *scannerFixture {
	t.Helper()
	q := quotesOf(
		quote("uniswap", "ethereum", "2000", "100000000"),
		quote("sushiswap", "ethereum", sell, "100000000"),
	)

	f := &scannerFixture{
		guard: mustGuard(t, baseRiskConfig(), newClock(epoch)),
		store: newMemoryStore(),
		seen:  &recordingObserver{},
	}
	hub, err := NewEventHub(8)
	if err != nil {
		t.Fatalf("NewEventHub() error = %v", err)
	}
	coord, err := NewCoordinator(baseCoordinatorConfig(), &scriptedExecutor{
		results: []executorResult{{res: domain.ExecutionResult{TxHash: "0x01", ActualProfit: dec("55"), GasCost: dec("25.2")}}},
	}, f.guard, f.store, nopLogger(), hub)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	f.coord = coord

	s, err := NewScanner(ScannerConfig{
		Interval:          10 * time.Millisecond,
		PortfolioEnabled:  true,
		PortfolioCapacity: dec("1000000"),
		DryRun:            dryRun,
	}, ScannerDeps{
		Detector:    scenarioDetector(q, &fakeChain{gwei: 30, congestion: 0.2}, scenarioScore),
		Validator:   mustValidator(t, vcfg, nil),
		Guard:       f.guard,
		Coordinator: coord,
		Hub:         hub,
		Chain:       chain,
		Scorer:      scorer,
		Observers:   []CycleObserver{f.seen},
	}, nopLogger())
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}
	f.scanner = s
	return f
}

func TestScanner_Cycle(t *testing.T) {
	tests := []struct {
		name         string
		sell         string
		dryRun       bool
		wantOutcomes []string
		wantTrades   int
	}{
		{name: "profitable_spread_dispatched", sell: "2010", wantOutcomes: []string{OutcomeDispatched}, wantTrades: 1},
		{name: "dry_run_only_checks", sell: "2010", dryRun: true, wantOutcomes: []string{OutcomeApproved}},
		{name: "flat_market_has_no_opportunities", sell: "2000.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newScannerFixture(t, tt.sell, tt.dryRun)

			view := f.scanner.Cycle(context.Background())
			f.coord.Wait()

			if len(view) != len(tt.wantOutcomes) {
				t.Fatalf("cycle produced %d entries, want %d", len(view), len(tt.wantOutcomes))
			}
			for i, p := range view {
				if p.Decision.Outcome != tt.wantOutcomes[i] {
					t.Errorf("entry %d outcome = %s, want %s (reasons %v)", i, p.Decision.Outcome, tt.wantOutcomes[i], p.Decision.Reasons)
				}
			}
			if got := f.guard.Snapshot().DailyTradeCount; got != tt.wantTrades {
				t.Errorf("DailyTradeCount = %d, want %d", got, tt.wantTrades)
			}
			if got := len(f.scanner.PendingOpportunities()); got != len(view) {
				t.Errorf("PendingOpportunities() len = %d, want %d", got, len(view))
			}
			if got := f.seen.Cycles(); got != 1 {
				t.Errorf("observer saw %d cycles, want 1", got)
			}
		})
	}
}

func TestScanner_CooldownBlocksRepeat(t *testing.T) {
	f := newScannerFixture(t, "2010", false)
	ctx := context.Background()

	first := f.scanner.Cycle(ctx)
	f.coord.Wait()
	if first[0].Decision.Outcome != OutcomeDispatched {
		t.Fatalf("first outcome = %s", first[0].Decision.Outcome)
	}
	rec := f.store.Get(first[0].Decision.ExecutionID)
	if rec.Status != domain.StatusSucceeded {
		t.Errorf("execution status = %s, want succeeded", rec.Status)
	}

	second := f.scanner.Cycle(ctx)
	if second[0].Decision.Outcome != OutcomeRiskRejected {
		t.Errorf("second outcome = %s, want risk_rejected", second[0].Decision.Outcome)
	}
}

func TestScanner_StartStop(t *testing.T) {
	f := newScannerFixture(t, "2010", true)

	f.scanner.StartScanning(context.Background())
	f.scanner.StartScanning(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for len(f.scanner.PendingOpportunities()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no cycle ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.scanner.StopScanning()
	f.scanner.StopScanning()
}

func TestScanner_PendingViewIsCopy(t *testing.T) {
	f := newScannerFixture(t, "2010", true)
	f.scanner.Cycle(context.Background())

	view := f.scanner.PendingOpportunities()
	view[0].Verdict.Layers[0] = "mutated"

	if got := f.scanner.PendingOpportunities()[0].Verdict.Layers[0]; got == "mutated" {
		t.Error("caller mutation leaked into the pending view")
	}
}

func TestScanner_MissingInputsNeverLoosenValidation(t *testing.T) {
	// 56.8 expected profit clears the floor only once the low band halves it.
	strict := scenarioValidatorConfig()
	thresholds := defaultThresholds()
	thresholds.MinProfit = dec("80")
	strict.Layers = domain.NewThresholdLayers(thresholds, nil, nil, nil)
	strict.Adaptive = AdaptiveConfig{
		Enabled: true,
		High:    CongestionBand{Level: dec("0.7"), MinProfitMultiplier: dec("2"), MinProfitAfterGasMultiplier: dec("2")},
		Low:     CongestionBand{Level: dec("0.3"), MinProfitMultiplier: dec("0.5"), MinProfitAfterGasMultiplier: dec("0.5")},
	}
	rpcDown := apperror.New(apperror.CodeEthereumRPCError, apperror.WithContext("header"))

	tests := []struct {
		name       string
		chain      ChainState
		scorer     Scorer
		wantReason domain.ReasonCode
	}{
		{
			name:       "congestion_read_fails",
			chain:      &fakeChain{gwei: 30, congestionErr: rpcDown},
			scorer:     scenarioScore,
			wantReason: domain.ReasonCongestionMissing,
		},
		{
			name:       "scorer_fails",
			chain:      &fakeChain{gwei: 30, congestion: 0.5},
			scorer:     failingScorer{err: apperror.New(apperror.CodeServiceUnavailable)},
			wantReason: domain.ReasonScoreMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newScannerFixtureWith(t, "2010", true, strict, tt.chain, tt.scorer)

			view := f.scanner.Cycle(context.Background())
			if len(view) != 1 {
				t.Fatalf("cycle produced %d entries, want 1", len(view))
			}
			p := view[0]
			if p.Decision.Outcome != OutcomeRejected {
				t.Errorf("outcome = %s, want rejected (reasons %v)", p.Decision.Outcome, p.Decision.Reasons)
			}
			if !slices.Contains(reasonCodes(p.Verdict), tt.wantReason) {
				t.Errorf("reasons = %v, want %s", reasonCodes(p.Verdict), tt.wantReason)
			}
			if p.Verdict.Thresholds.MinProfit.LessThan(dec("80")) {
				t.Errorf("min profit floor lowered to %s", p.Verdict.Thresholds.MinProfit)
			}
		})
	}
}
