package arbitrage

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/asset"
	"github.com/fd1az/flashloan-arbitrage/internal/config"
)

func networkCosts(cfg *config.Config) (map[string]app.NetworkCost, error) {
	out := make(map[string]app.NetworkCost, len(cfg.Networks))
	for _, n := range cfg.Networks {
		pair, err := pricingDomain.ParsePair(n.NativePair)
		if err != nil {
			return nil, err
		}
		out[n.Name] = app.NetworkCost{
			GasUnits:    n.GasUnits,
			GasBuffer:   config.Decimal(n.GasBuffer),
			NativePair:  pair,
			NativePrice: config.Decimal(n.NativePrice),
		}
	}
	return out, nil
}

func detectorConfig(cfg *config.Config) app.DetectorConfig {
	d := cfg.Detector
	return app.DetectorConfig{
		MinSpread:        config.Decimal(d.MinSpread),
		MinLiquidity:     config.Decimal(d.MinLiquidity),
		MaxTradeSize:     config.Decimal(d.MaxTradeSize),
		MinTradeSize:     config.Decimal(d.MinTradeSize),
		MaxPriceImpact:   config.Decimal(d.MaxPriceImpact),
		SizingIterations: d.SizingIterations,
		FlashLoanFeeBps:  config.Decimal(d.FlashLoanFeeBps),
		Fingerprint: domain.FingerprintConfig{
			AmountPrecision: d.AmountPrecision,
			TimeBucket:      d.TimeBucket,
		},
	}
}

func thresholds(t config.ThresholdConfig) domain.Thresholds {
	return domain.Thresholds{
		MaxSlippage:          config.Decimal(t.MaxSlippage),
		MaxFrontRunRisk:      config.Decimal(t.MaxFrontRunRisk),
		MaxCongestion:        config.Decimal(t.MaxCongestion),
		MaxBridgeFeePct:      config.Decimal(t.MaxBridgeFeePct),
		MaxBridgeTime:        t.MaxBridgeTime,
		MinBridgeReliability: config.Decimal(t.MinBridgeReliability),
		MinProfit:            config.Decimal(t.MinProfit),
		MinProfitAfterGasPct: config.Decimal(t.MinProfitAfterGasPct),
		MinScore:             config.Decimal(t.MinScore),
	}
}

func override(o config.ThresholdOverride) domain.ThresholdOverride {
	return domain.ThresholdOverride{
		MaxSlippage:          decPtr(o.MaxSlippage),
		MaxFrontRunRisk:      decPtr(o.MaxFrontRunRisk),
		MaxCongestion:        decPtr(o.MaxCongestion),
		MaxBridgeFeePct:      decPtr(o.MaxBridgeFeePct),
		MaxBridgeTime:        o.MaxBridgeTime,
		MinBridgeReliability: decPtr(o.MinBridgeReliability),
		MinProfit:            decPtr(o.MinProfit),
		MinProfitAfterGasPct: decPtr(o.MinProfitAfterGasPct),
		MinScore:             decPtr(o.MinScore),
	}
}

func overrides(m map[string]config.ThresholdOverride) map[string]domain.ThresholdOverride {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]domain.ThresholdOverride, len(m))
	for k, o := range m {
		out[k] = override(o)
	}
	return out
}

func band(b config.CongestionBand) app.CongestionBand {
	return app.CongestionBand{
		Level:                       config.Decimal(b.Level),
		MinProfitMultiplier:         config.Decimal(b.MinProfitMultiplier),
		MinProfitAfterGasMultiplier: config.Decimal(b.MinProfitAfterGasMultiplier),
	}
}

func validatorConfig(cfg *config.Config) app.ValidatorConfig {
	v := cfg.Validator
	return app.ValidatorConfig{
		Layers: domain.NewThresholdLayers(thresholds(v.Defaults),
			overrides(v.PairOverrides), overrides(v.DEXOverrides), overrides(v.NetworkOverrides)),
		Weights: app.ScoreWeights{
			Confidence:  config.Decimal(v.Weights.Confidence),
			SuccessRate: config.Decimal(v.Weights.SuccessRate),
			Profit:      config.Decimal(v.Weights.Profit),
		},
		ReferenceProfit: config.Decimal(v.ReferenceProfit),
		Adaptive: app.AdaptiveConfig{
			Enabled: v.Adaptive.Enabled,
			High:    band(v.Adaptive.High),
			Low:     band(v.Adaptive.Low),
		},
		PortfolioEnabled: v.Portfolio.Enabled,
		MinTradeSize:     config.Decimal(cfg.Detector.MinTradeSize),
		AmountPrecision:  cfg.Detector.AmountPrecision,
		CacheTTL:         v.CacheTTL,
	}
}

func riskConfig(cfg *config.Config) app.RiskConfig {
	r := cfg.Risk
	caps := make(map[string]decimal.Decimal, len(cfg.Networks))
	for _, n := range cfg.Networks {
		if n.MaxGasPriceGwei > 0 {
			caps[n.Name] = config.Decimal(n.MaxGasPriceGwei)
		}
	}
	return app.RiskConfig{
		MaxTradeSize:             config.Decimal(r.MaxTradeSize),
		MaxDailyVolume:           config.Decimal(r.MaxDailyVolume),
		MaxDailyTrades:           r.MaxDailyTrades,
		Cooldown:                 r.Cooldown,
		MaxGasPriceGwei:          config.Decimal(r.MaxGasPriceGwei),
		NetworkGasCaps:           caps,
		Blacklist:                r.Blacklist,
		Whitelist:                r.Whitelist,
		WhitelistOnly:            r.WhitelistOnly,
		RequireConfirmationAbove: config.Decimal(r.RequireConfirmationAbove),
		DailyResetOffset:         r.DailyResetOffset,
	}
}

func coordinatorConfig(cfg *config.Config) app.CoordinatorConfig {
	e := cfg.Execution
	return app.CoordinatorConfig{
		MaxConcurrent:       e.MaxConcurrent,
		ConfirmTimeout:      e.ConfirmTimeout,
		MaxAttempts:         e.MaxAttempts,
		RetryInitialBackoff: e.RetryInitialBackoff,
		RetryMaxBackoff:     e.RetryMaxBackoff,
		QuarantineWindow:    e.QuarantineWindow,
		ReportRollbacks:     e.ReportRollbacks,
	}
}

func scannerConfig(cfg *config.Config) app.ScannerConfig {
	return app.ScannerConfig{
		Interval:          cfg.Scanner.Interval,
		PortfolioEnabled:  cfg.Validator.Portfolio.Enabled,
		PortfolioCapacity: config.Decimal(cfg.Validator.Portfolio.Capacity),
		DryRun:            !cfg.Execution.Enabled,
	}
}

// contractResolver lists the exchanges of a route plus the addresses of
// its tokens on both legs, so the risk lists can name either.
func contractResolver(tokens *asset.Registry) app.ContractResolver {
	return func(route domain.Route) []string {
		out := []string{route.SourceExchange, route.TargetExchange}
		seen := map[string]bool{}
		for _, network := range route.Networks() {
			for _, symbol := range []string{route.Pair.Base, route.Pair.Quote} {
				t, err := tokens.Lookup(network, symbol)
				if err != nil {
					continue
				}
				addr := strings.ToLower(t.Address.Hex())
				if !seen[addr] {
					seen[addr] = true
					out = append(out, addr)
				}
			}
		}
		return out
	}
}

func decPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := config.Decimal(*f)
	return &d
}
