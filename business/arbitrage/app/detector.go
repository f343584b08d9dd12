package app

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

// DetectorConfig holds opportunity construction parameters.
type DetectorConfig struct {
	MinSpread        decimal.Decimal
	MinLiquidity     decimal.Decimal
	MaxTradeSize     decimal.Decimal
	MinTradeSize     decimal.Decimal
	MaxPriceImpact   decimal.Decimal
	SizingIterations int
	FlashLoanFeeBps  decimal.Decimal
	Fingerprint      domain.FingerprintConfig
}

// Detector compares fresh quotes across exchanges and builds sized,
// costed opportunities.
type Detector struct {
	cfg     DetectorConfig
	quotes  QuoteSource
	costs   *CostModel
	scorer  Scorer
	bridges BridgeEstimator
	logger  logger.LoggerInterface
	now     func() time.Time

	tracer    trace.Tracer
	telemetry *telemetry
}

// NewDetector creates a detector. bridges may be nil when every exchange
// shares one network.
func NewDetector(cfg DetectorConfig, quotes QuoteSource, costs *CostModel, scorer Scorer, bridges BridgeEstimator, log logger.LoggerInterface) (*Detector, error) {
	tel, err := newTelemetry()
	if err != nil {
		return nil, err
	}
	return &Detector{
		cfg:       cfg,
		quotes:    quotes,
		costs:     costs,
		scorer:    scorer,
		bridges:   bridges,
		logger:    log,
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
		telemetry: tel,
	}, nil
}

// Detect evaluates every monitored pair and returns opportunities in
// processing order.
func (d *Detector) Detect(ctx context.Context) []domain.Opportunity {
	ctx, span := d.tracer.Start(ctx, "Detector.Detect")
	defer span.End()

	var out []domain.Opportunity
	for _, pair := range d.quotes.Pairs() {
		out = append(out, d.Evaluate(ctx, pair, d.quotes.Snapshot(pair))...)
	}

	sort.Slice(out, func(i, j int) bool { return domain.Less(out[i], out[j]) })

	span.SetAttributes(attribute.Int("opportunities", len(out)))
	for _, opp := range out {
		d.telemetry.opportunities.Add(ctx, 1, metric.WithAttributes(attribute.String("pair", opp.Pair.String())))
	}
	return out
}

// Evaluate builds one opportunity for every profitable route between the
// fresh quotes of pair. Ordering is left to the caller.
func (d *Detector) Evaluate(ctx context.Context, pair pricingDomain.Pair, quotes []pricingDomain.PriceQuote) []domain.Opportunity {
	liquid := quotes[:0:0]
	for _, q := range quotes {
		if q.Liquidity.GreaterThanOrEqual(d.cfg.MinLiquidity) {
			liquid = append(liquid, q)
		}
	}
	if len(liquid) < 2 {
		return nil
	}

	var out []domain.Opportunity
	for _, spread := range pricingDomain.Spreads(liquid) {
		if spread.Ratio.LessThanOrEqual(d.cfg.MinSpread) {
			break
		}
		if opp, ok := d.build(ctx, pair, spread); ok {
			out = append(out, opp)
		}
	}
	return out
}

// build sizes and costs the route described by spread.
func (d *Detector) build(ctx context.Context, pair pricingDomain.Pair, spread pricingDomain.Spread) (domain.Opportunity, bool) {
	buy := Leg{Price: spread.Buy.Price, Liquidity: spread.Buy.Liquidity}
	sell := Leg{Price: spread.Sell.Price, Liquidity: spread.Sell.Liquidity}
	amount := SizeTrade(buy, sell, d.cfg.MaxTradeSize, d.cfg.MaxPriceImpact, d.cfg.SizingIterations, d.cfg.Fingerprint.AmountPrecision)
	if amount.Sign() <= 0 || amount.LessThan(d.cfg.MinTradeSize) {
		d.logger.Debug(ctx, "trade size below minimum", "pair", pair.String(), "amount", amount.String())
		return domain.Opportunity{}, false
	}

	route := domain.NewRoute(pair, spread.Buy, spread.Sell)
	now := d.now()

	opp := domain.Opportunity{
		Fingerprint: domain.Fingerprint(route, amount, now, d.cfg.Fingerprint),
		Route:       route,
		BuyPrice:    buy.Price,
		SellPrice:   sell.Price,
		Spread:      spread.Ratio,
		AmountIn:    amount,
		Notional:    amount.Mul(buy.Price),
		BuyImpact:   buy.Impact(amount),
		SellImpact:  sell.Impact(amount),
		DetectedAt:  now,
	}
	opp.PriceImpact = decimal.Max(opp.BuyImpact, opp.SellImpact)
	opp.GrossProfit = amount.Mul(sell.Price.Sub(buy.Price))

	gas, err := d.costs.RouteGas(ctx, route)
	if err != nil {
		d.logger.Warn(ctx, "gas estimate unavailable", "route", string(route.Key()), "error", err)
		return domain.Opportunity{}, false
	}
	opp.GasPriceGwei = gas.MaxGwei
	opp.Costs = domain.Costs{
		Gas:          gas.Cost,
		Slippage:     opp.Notional.Mul(opp.BuyImpact.Add(opp.SellImpact)),
		FlashLoanFee: domain.FlashLoanFee(opp.Notional, d.cfg.FlashLoanFeeBps),
		BridgeFee:    decimal.Zero,
	}

	if route.CrossChain() {
		if d.bridges == nil {
			return domain.Opportunity{}, false
		}
		bq, err := d.bridges.Quote(ctx, route.SourceNetwork, route.TargetNetwork)
		if err != nil {
			d.logger.Debug(ctx, "no bridge quote", "route", string(route.Key()), "error", err)
			return domain.Opportunity{}, false
		}
		opp.Costs.BridgeFee = opp.Notional.Mul(bq.FeePct)
	}

	opp.ExpectedProfit = opp.GrossProfit.Sub(opp.Costs.Total())
	if opp.ExpectedProfit.Sign() <= 0 {
		return domain.Opportunity{}, false
	}

	score, err := d.scorer.Score(ctx, route)
	if err != nil {
		d.logger.Warn(ctx, "scorer unavailable", "route", string(route.Key()), "error", err)
	}
	opp.Confidence = decimal.NewFromFloat(score.Confidence)

	return opp, true
}
