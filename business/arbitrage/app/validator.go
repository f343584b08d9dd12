package app

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/cache"
)

// ScoreWeights weighs the composite score factors. They sum to 1.
type ScoreWeights struct {
	Confidence  decimal.Decimal
	SuccessRate decimal.Decimal
	Profit      decimal.Decimal
}

// CongestionBand scales profit floors once congestion crosses Level.
type CongestionBand struct {
	Level                       decimal.Decimal
	MinProfitMultiplier         decimal.Decimal
	MinProfitAfterGasMultiplier decimal.Decimal
}

// AdaptiveConfig enables congestion-aware profit floors. High applies at
// or above High.Level, Low at or below Low.Level.
type AdaptiveConfig struct {
	Enabled bool
	High    CongestionBand
	Low     CongestionBand
}

// ValidatorConfig holds everything the profitability gate reads besides
// the per-call ValidationContext.
type ValidatorConfig struct {
	Layers           domain.ThresholdLayers
	Weights          ScoreWeights
	ReferenceProfit  decimal.Decimal
	Adaptive         AdaptiveConfig
	PortfolioEnabled bool
	MinTradeSize     decimal.Decimal
	AmountPrecision  int32
	CacheTTL         time.Duration
}

// ProfitabilityValidator is the multi-factor accept/reject gate. Apart from
// its verdict cache it holds no state between calls.
type ProfitabilityValidator struct {
	cfg   ValidatorConfig
	cache *cache.Cache[string, domain.Verdict]
	now   func() time.Time

	tracer    trace.Tracer
	telemetry *telemetry
}

var _ Validator = (*ProfitabilityValidator)(nil)

// NewProfitabilityValidator creates the validator and its verdict cache.
func NewProfitabilityValidator(cfg ValidatorConfig) (*ProfitabilityValidator, error) {
	return newProfitabilityValidator(cfg, time.Now)
}

func newProfitabilityValidator(cfg ValidatorConfig, now func() time.Time) (*ProfitabilityValidator, error) {
	tel, err := newTelemetry()
	if err != nil {
		return nil, err
	}
	return &ProfitabilityValidator{
		cfg:       cfg,
		cache:     cache.NewWithClock[string, domain.Verdict](cfg.CacheTTL*4, now),
		now:       now,
		tracer:    otel.Tracer(tracerName),
		telemetry: tel,
	}, nil
}

// Close stops the cache janitor.
func (v *ProfitabilityValidator) Close() {
	v.cache.Close()
}

// Validate resolves thresholds for opp and returns a verdict, reusing a
// cached one for the same fingerprint and context within the cache TTL.
func (v *ProfitabilityValidator) Validate(ctx context.Context, opp domain.Opportunity, vctx domain.ValidationContext) domain.Verdict {
	return v.ValidateVariant(ctx, opp, vctx, domain.VariantDefault, nil)
}

// ValidateVariant is Validate with an extra override layer on top of the
// resolved thresholds. The variant name tags the verdict and the cache key.
func (v *ProfitabilityValidator) ValidateVariant(ctx context.Context, opp domain.Opportunity, vctx domain.ValidationContext, variant string, override *domain.ThresholdOverride) domain.Verdict {
	ctx, span := v.tracer.Start(ctx, "ProfitabilityValidator.Validate",
		trace.WithAttributes(
			attribute.String("fingerprint", opp.Fingerprint),
			attribute.String("variant", variant),
		))
	defer span.End()

	key := variant + "|" + opp.Fingerprint + "|" + vctx.Digest()
	if cached, ok := v.cache.Get(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		v.telemetry.cacheHits.Add(ctx, 1)
		return cached.Clone()
	}

	verdict := v.Evaluate(opp, vctx, variant, override)
	v.cache.Set(ctx, key, verdict.Clone(), v.cfg.CacheTTL)

	span.SetAttributes(attribute.Bool("passed", verdict.Passed), attribute.String("score", verdict.Score.String()))
	v.telemetry.verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("passed", verdict.Passed),
		attribute.String("variant", variant),
	))
	return verdict
}

// Evaluate computes a verdict without touching the cache. Identical inputs
// give identical verdicts apart from ComputedAt.
func (v *ProfitabilityValidator) Evaluate(opp domain.Opportunity, vctx domain.ValidationContext, variant string, override *domain.ThresholdOverride) domain.Verdict {
	t, layers := v.cfg.Layers.Resolve(opp.Route)
	if override != nil {
		t = t.Apply(*override)
		layers = append([]string{"variant:" + variant}, layers...)
	}

	verdict := domain.Verdict{
		Fingerprint:    opp.Fingerprint,
		Passed:         true,
		ApprovedAmount: opp.AmountIn,
		ApprovedProfit: opp.ExpectedProfit,
		Layers:         layers,
		Variant:        variant,
		ComputedAt:     v.now(),
	}

	checkHardLimits(&verdict, opp, vctx, t)
	if !verdict.Passed {
		verdict.Thresholds = t
		verdict.ApprovedAmount = decimal.Zero
		verdict.ApprovedProfit = decimal.Zero
		return verdict
	}

	verdict.Score = v.score(opp, vctx)

	t.MinProfit, t.MinProfitAfterGasPct = v.adaptiveFloors(t, vctx.Congestion)
	verdict.Thresholds = t

	if v.cfg.PortfolioEnabled {
		v.adjustForPortfolio(&verdict, opp, vctx)
	}

	if verdict.ApprovedProfit.LessThan(t.MinProfit) {
		verdict.Reject(domain.ReasonMinProfit,
			fmt.Sprintf("profit %s < %s", verdict.ApprovedProfit.StringFixed(4), t.MinProfit))
	}
	if pct := opp.ProfitPct(); pct.LessThan(t.MinProfitAfterGasPct) {
		verdict.Reject(domain.ReasonMinProfitAfterGas,
			fmt.Sprintf("profit after gas %s < %s", pct.StringFixed(6), t.MinProfitAfterGasPct))
	}
	if verdict.Score.LessThan(t.MinScore) {
		verdict.Reject(domain.ReasonMinScore,
			fmt.Sprintf("score %s < %s", verdict.Score.StringFixed(4), t.MinScore))
	}

	if !verdict.Passed {
		verdict.ApprovedAmount = decimal.Zero
		verdict.ApprovedProfit = decimal.Zero
	}
	return verdict
}

func checkHardLimits(verdict *domain.Verdict, opp domain.Opportunity, vctx domain.ValidationContext, t domain.Thresholds) {
	if opp.PriceImpact.GreaterThan(t.MaxSlippage) {
		verdict.Reject(domain.ReasonSlippage,
			fmt.Sprintf("impact %s > %s", opp.PriceImpact.StringFixed(6), t.MaxSlippage))
	}
	if vctx.ScoreMissing {
		verdict.Reject(domain.ReasonScoreMissing, "success rate and front-running risk unknown")
	}
	if vctx.CongestionMissing {
		verdict.Reject(domain.ReasonCongestionMissing, "network congestion unknown")
	}
	if vctx.FrontRunRisk.GreaterThan(t.MaxFrontRunRisk) {
		verdict.Reject(domain.ReasonFrontRunRisk,
			fmt.Sprintf("risk %s > %s", vctx.FrontRunRisk, t.MaxFrontRunRisk))
	}
	if vctx.Congestion.GreaterThan(t.MaxCongestion) {
		verdict.Reject(domain.ReasonCongestion,
			fmt.Sprintf("congestion %s > %s", vctx.Congestion, t.MaxCongestion))
	}

	if !opp.CrossChain() {
		return
	}
	b := vctx.Bridge
	if b == nil {
		verdict.Reject(domain.ReasonBridgeQuote, opp.SourceNetwork+" -> "+opp.TargetNetwork)
		return
	}
	if b.FeePct.GreaterThan(t.MaxBridgeFeePct) {
		verdict.Reject(domain.ReasonBridgeFee, fmt.Sprintf("fee %s > %s", b.FeePct, t.MaxBridgeFeePct))
	}
	if b.TransferTime > t.MaxBridgeTime {
		verdict.Reject(domain.ReasonBridgeTime, fmt.Sprintf("time %s > %s", b.TransferTime, t.MaxBridgeTime))
	}
	if b.Reliability.LessThan(t.MinBridgeReliability) {
		verdict.Reject(domain.ReasonBridgeReliability,
			fmt.Sprintf("reliability %s < %s", b.Reliability, t.MinBridgeReliability))
	}
}

// score is wc·confidence + ws·successRate + wp·min(profit/reference, 1).
func (v *ProfitabilityValidator) score(opp domain.Opportunity, vctx domain.ValidationContext) decimal.Decimal {
	normalized := decimal.Zero
	if v.cfg.ReferenceProfit.Sign() > 0 && opp.ExpectedProfit.Sign() > 0 {
		normalized = decimal.Min(opp.ExpectedProfit.Div(v.cfg.ReferenceProfit), decimal.NewFromInt(1))
	}
	w := v.cfg.Weights
	return w.Confidence.Mul(opp.Confidence).
		Add(w.SuccessRate.Mul(vctx.SuccessRate)).
		Add(w.Profit.Mul(normalized))
}

func (v *ProfitabilityValidator) adaptiveFloors(t domain.Thresholds, congestion decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	a := v.cfg.Adaptive
	switch {
	case !a.Enabled:
		return t.MinProfit, t.MinProfitAfterGasPct
	case congestion.GreaterThanOrEqual(a.High.Level):
		return t.MinProfit.Mul(a.High.MinProfitMultiplier), t.MinProfitAfterGasPct.Mul(a.High.MinProfitAfterGasMultiplier)
	case congestion.LessThanOrEqual(a.Low.Level):
		return t.MinProfit.Mul(a.Low.MinProfitMultiplier), t.MinProfitAfterGasPct.Mul(a.Low.MinProfitAfterGasMultiplier)
	default:
		return t.MinProfit, t.MinProfitAfterGasPct
	}
}

// adjustForPortfolio shrinks the approved amount by the largest exposure
// fraction of either token and scales profit in proportion.
func (v *ProfitabilityValidator) adjustForPortfolio(verdict *domain.Verdict, opp domain.Opportunity, vctx domain.ValidationContext) {
	frac := vctx.MaxExposure(opp.Assets()...)
	if frac.Sign() <= 0 || opp.AmountIn.Sign() <= 0 {
		return
	}

	approved := opp.AmountIn.Mul(decimal.NewFromInt(1).Sub(frac)).RoundFloor(v.cfg.AmountPrecision)
	verdict.ApprovedAmount = approved
	verdict.ApprovedProfit = opp.ExpectedProfit.Mul(approved).Div(opp.AmountIn)

	if approved.Sign() <= 0 || approved.LessThan(v.cfg.MinTradeSize) {
		verdict.Reject(domain.ReasonPortfolioExposure,
			fmt.Sprintf("exposure %s leaves %s below minimum %s", frac.StringFixed(4), approved, v.cfg.MinTradeSize))
	}
}

// ABValidator routes each fingerprint deterministically to variant A
// (resolved thresholds) or variant B (resolved thresholds plus the
// variant-B override).
type ABValidator struct {
	base         *ProfitabilityValidator
	splitPercent int
	variantB     domain.ThresholdOverride
}

var _ Validator = (*ABValidator)(nil)

// NewABValidator sends splitPercent% of fingerprints to variant B.
func NewABValidator(base *ProfitabilityValidator, splitPercent int, variantB domain.ThresholdOverride) *ABValidator {
	return &ABValidator{base: base, splitPercent: splitPercent, variantB: variantB}
}

// Assign returns the variant for fingerprint.
func (a *ABValidator) Assign(fingerprint string) string {
	h := common.HexToHash(fingerprint)
	if int(binary.BigEndian.Uint32(h[:4])%100) < a.splitPercent {
		return domain.VariantB
	}
	return domain.VariantA
}

func (a *ABValidator) Validate(ctx context.Context, opp domain.Opportunity, vctx domain.ValidationContext) domain.Verdict {
	if a.Assign(opp.Fingerprint) == domain.VariantB {
		return a.base.ValidateVariant(ctx, opp, vctx, domain.VariantB, &a.variantB)
	}
	return a.base.ValidateVariant(ctx, opp, vctx, domain.VariantA, nil)
}

// MLValidator requires the external model score to clear a floor on top of
// the wrapped validator's verdict.
type MLValidator struct {
	next     Validator
	minScore decimal.Decimal
}

var _ Validator = (*MLValidator)(nil)

// NewMLValidator wraps next.
func NewMLValidator(next Validator, minScore decimal.Decimal) *MLValidator {
	return &MLValidator{next: next, minScore: minScore}
}

func (m *MLValidator) Validate(ctx context.Context, opp domain.Opportunity, vctx domain.ValidationContext) domain.Verdict {
	verdict := m.next.Validate(ctx, opp, vctx).Clone()
	if vctx.ModelScore.LessThan(m.minScore) {
		verdict.Reject(domain.ReasonModelScore,
			fmt.Sprintf("model score %s < %s", vctx.ModelScore, m.minScore))
		verdict.ApprovedAmount = decimal.Zero
		verdict.ApprovedProfit = decimal.Zero
	}
	return verdict
}
