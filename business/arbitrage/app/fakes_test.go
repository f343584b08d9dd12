package app

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	blockchainDomain "github.com/fd1az/flashloan-arbitrage/business/blockchain/domain"
	pricingDomain "github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

var (
	wethUSDC = pricingDomain.MustParsePair("WETH-USDC")
	epoch    = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
)

func nopLogger() logger.LoggerInterface { return logger.NewNop() }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeQuotes struct {
	pairs  []pricingDomain.Pair
	quotes map[string][]pricingDomain.PriceQuote
}

func quotesOf(qs ...pricingDomain.PriceQuote) *fakeQuotes {
	f := &fakeQuotes{quotes: make(map[string][]pricingDomain.PriceQuote)}
	for _, q := range qs {
		if _, ok := f.quotes[q.PairSymbol]; !ok {
			f.pairs = append(f.pairs, q.Pair)
		}
		f.quotes[q.PairSymbol] = append(f.quotes[q.PairSymbol], q)
	}
	return f
}

func (f *fakeQuotes) Pairs() []pricingDomain.Pair { return f.pairs }

func (f *fakeQuotes) Snapshot(pair pricingDomain.Pair) []pricingDomain.PriceQuote {
	return f.quotes[pair.String()]
}

func (f *fakeQuotes) LatestPrice(string, pricingDomain.Pair) (pricingDomain.PriceQuote, bool) {
	return pricingDomain.PriceQuote{}, false
}

func quote(exchange, network, price, liquidity string) pricingDomain.PriceQuote {
	return pricingDomain.NewPriceQuote(exchange, network, wethUSDC, dec(price), dec(liquidity), epoch)
}

type fakeChain struct {
	gwei          int64
	congestion    float64
	err           error
	congestionErr error // fails only Congestion
}

func (f *fakeChain) GasPrice(_ context.Context, network string) (*blockchainDomain.GasPrice, error) {
	if f.err != nil {
		return nil, f.err
	}
	wei := new(big.Int).Mul(big.NewInt(f.gwei), big.NewInt(1_000_000_000))
	return blockchainDomain.NewGasPrice(network, wei, epoch), nil
}

func (f *fakeChain) Congestion(context.Context, ...string) (blockchainDomain.Congestion, error) {
	if f.congestionErr != nil {
		return blockchainDomain.Congestion{}, f.congestionErr
	}
	return blockchainDomain.Congestion{Level: f.congestion}, f.err
}

type staticScore Score

func (s staticScore) Score(context.Context, domain.Route) (Score, error) { return Score(s), nil }

type failingScorer struct{ err error }

func (s failingScorer) Score(context.Context, domain.Route) (Score, error) { return Score{}, s.err }

// scriptedExecutor replays results in order across Execute and Await calls
// and repeats the last one.
type scriptedExecutor struct {
	mu      sync.Mutex
	results []executorResult
	calls   int
	sends   int
	awaited []string
	gate    chan struct{} // when set, Execute blocks until it is closed
}

type executorResult struct {
	res domain.ExecutionResult
	err error
}

func (e *scriptedExecutor) Execute(ctx context.Context, _ domain.Opportunity, _ decimal.Decimal) (domain.ExecutionResult, error) {
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sends++
	return e.next()
}

func (e *scriptedExecutor) Await(_ context.Context, _ domain.Opportunity, txHash string) (domain.ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.awaited = append(e.awaited, txHash)
	return e.next()
}

func (e *scriptedExecutor) next() (domain.ExecutionResult, error) {
	i := e.calls
	if i >= len(e.results) {
		i = len(e.results) - 1
	}
	e.calls++
	return e.results[i].res, e.results[i].err
}

func (e *scriptedExecutor) Sends() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sends
}

func (e *scriptedExecutor) Awaited() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.awaited...)
}

func (e *scriptedExecutor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type memoryStore struct {
	mu      sync.Mutex
	records map[string]domain.ExecutionRecord
	saves   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]domain.ExecutionRecord)}
}

func (m *memoryStore) SaveExecution(_ context.Context, rec domain.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	m.saves++
	return nil
}

func (m *memoryStore) RecentExecutions(context.Context, int) ([]domain.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ExecutionRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryStore) Get(id string) domain.ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

// scenarioDetector is configured so that 2000 vs 2010 on ethereum with
// 100M liquidity and 30 gwei gas yields amount 10, gas cost 25.2 and
// expected profit of about 56.8.
func scenarioDetector(quotes QuoteSource, chain ChainState, scorer Scorer) *Detector {
	costs := NewCostModel(map[string]NetworkCost{
		"ethereum": {GasUnits: 300_000, GasBuffer: dec("1.4"), NativePair: wethUSDC, NativePrice: dec("2000")},
	}, chain, quotes)
	d, err := NewDetector(DetectorConfig{
		MinSpread:        dec("0.001"),
		MinLiquidity:     dec("1000"),
		MaxTradeSize:     dec("10"),
		MinTradeSize:     dec("0.01"),
		MaxPriceImpact:   dec("0.01"),
		SizingIterations: 32,
		FlashLoanFeeBps:  dec("5"),
		Fingerprint:      domain.FingerprintConfig{AmountPrecision: 4, TimeBucket: time.Second},
	}, quotes, costs, scorer, nil, nopLogger())
	if err != nil {
		panic(err)
	}
	d.now = func() time.Time { return epoch }
	return d
}

func defaultThresholds() domain.Thresholds {
	return domain.Thresholds{
		MaxSlippage:          dec("0.01"),
		MaxFrontRunRisk:      dec("0.5"),
		MaxCongestion:        dec("0.9"),
		MaxBridgeFeePct:      dec("0.01"),
		MaxBridgeTime:        10 * time.Minute,
		MinBridgeReliability: dec("0.9"),
		MinProfit:            dec("10"),
		MinProfitAfterGasPct: dec("0.001"),
		MinScore:             dec("0.5"),
	}
}

func scenarioValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		Layers:          domain.NewThresholdLayers(defaultThresholds(), nil, nil, nil),
		Weights:         ScoreWeights{Confidence: dec("0.4"), SuccessRate: dec("0.3"), Profit: dec("0.3")},
		ReferenceProfit: dec("100"),
		MinTradeSize:    dec("0.01"),
		AmountPrecision: 4,
		CacheTTL:        5 * time.Second,
	}
}

var scenarioScore = staticScore{Confidence: 0.8, SuccessRate: 0.7, FrontRunRisk: 0.1, ModelScore: 0.9}

func scenarioOpportunity() domain.Opportunity {
	q := quotesOf(
		quote("uniswap", "ethereum", "2000", "100000000"),
		quote("sushiswap", "ethereum", "2010", "100000000"),
	)
	d := scenarioDetector(q, &fakeChain{gwei: 30}, scenarioScore)
	opps := d.Detect(context.Background())
	if len(opps) != 1 {
		panic("scenario opportunity not detected")
	}
	return opps[0]
}
