package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Opportunity is a detected, not yet executed, arbitrage between two
// exchanges for one pair. Immutable once built.
type Opportunity struct {
	Fingerprint string `json:"fingerprint"`
	Route

	BuyPrice       decimal.Decimal `json:"buy_price"`
	SellPrice      decimal.Decimal `json:"sell_price"`
	Spread         decimal.Decimal `json:"spread"`
	AmountIn       decimal.Decimal `json:"amount_in"` // base units
	Notional       decimal.Decimal `json:"notional"`  // quote units at the buy price
	Costs          Costs           `json:"costs"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	ExpectedProfit decimal.Decimal `json:"expected_profit"`
	Confidence     decimal.Decimal `json:"confidence"`
	BuyImpact      decimal.Decimal `json:"buy_impact"`
	SellImpact     decimal.Decimal `json:"sell_impact"`
	PriceImpact    decimal.Decimal `json:"price_impact"` // max of both legs
	GasPriceGwei   decimal.Decimal `json:"gas_price_gwei"`
	DetectedAt     time.Time       `json:"detected_at"`
}

// FingerprintConfig controls how coarse the identity of an opportunity is.
type FingerprintConfig struct {
	AmountPrecision int32
	TimeBucket      time.Duration
}

// Fingerprint hashes (pair, source, target, rounded amountIn, time bucket)
// into a hex bytes32. The same value is the on-chain opportunity id.
func Fingerprint(r Route, amountIn decimal.Decimal, detectedAt time.Time, cfg FingerprintConfig) string {
	bucket := detectedAt.UTC()
	if cfg.TimeBucket > 0 {
		bucket = bucket.Truncate(cfg.TimeBucket)
	}
	id := r.Pair.String() + "|" + r.SourceExchange + "|" + r.TargetExchange + "|" +
		amountIn.Round(cfg.AmountPrecision).String() + "|" + bucket.Format(time.RFC3339Nano)
	return crypto.Keccak256Hash([]byte(id)).Hex()
}

// ID returns the fingerprint as bytes32.
func (o *Opportunity) ID() [32]byte {
	return common.HexToHash(o.Fingerprint)
}

// ProfitPct is expected profit as a fraction of notional.
func (o *Opportunity) ProfitPct() decimal.Decimal {
	if o.Notional.Sign() <= 0 {
		return decimal.Zero
	}
	return o.ExpectedProfit.Div(o.Notional)
}

// Less orders opportunities for processing: expected profit desc,
// confidence desc, price impact asc, fingerprint asc.
func Less(a, b Opportunity) bool {
	if c := a.ExpectedProfit.Cmp(b.ExpectedProfit); c != 0 {
		return c > 0
	}
	if c := a.Confidence.Cmp(b.Confidence); c != 0 {
		return c > 0
	}
	if c := a.PriceImpact.Cmp(b.PriceImpact); c != 0 {
		return c < 0
	}
	return a.Fingerprint < b.Fingerprint
}
