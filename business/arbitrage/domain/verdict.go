package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// ReasonCode names a failed validation check.
type ReasonCode string

const (
	ReasonSlippage          ReasonCode = "slippage"
	ReasonFrontRunRisk      ReasonCode = "front_run_risk"
	ReasonCongestion        ReasonCode = "congestion"
	ReasonCongestionMissing ReasonCode = "congestion_unavailable"
	ReasonScoreMissing      ReasonCode = "score_unavailable"
	ReasonBridgeQuote       ReasonCode = "bridge_quote_missing"
	ReasonBridgeFee         ReasonCode = "bridge_fee"
	ReasonBridgeTime        ReasonCode = "bridge_time"
	ReasonBridgeReliability ReasonCode = "bridge_reliability"
	ReasonPortfolioExposure ReasonCode = "portfolio_exposure"
	ReasonMinProfit         ReasonCode = "min_profit"
	ReasonMinProfitAfterGas ReasonCode = "min_profit_after_gas"
	ReasonMinScore          ReasonCode = "min_score"
	ReasonModelScore        ReasonCode = "model_score"
)

// Reason is one failed check with the values that failed it.
type Reason struct {
	Code   ReasonCode `json:"code"`
	Detail string     `json:"detail"`
}

func (r Reason) String() string {
	return string(r.Code) + ": " + r.Detail
}

// Validator variants.
const (
	VariantDefault = "default"
	VariantA       = "A"
	VariantB       = "B"
)

// Verdict is the validator's decision. A rejection is a Verdict with
// Passed=false and ordered Reasons, never an error.
type Verdict struct {
	Fingerprint    string          `json:"fingerprint"`
	Passed         bool            `json:"passed"`
	Reasons        []Reason        `json:"reasons,omitempty"`
	Score          decimal.Decimal `json:"score"`
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
	ApprovedProfit decimal.Decimal `json:"approved_profit"`
	Thresholds     Thresholds      `json:"thresholds"`
	Layers         []string        `json:"layers"`
	Variant        string          `json:"variant"`
	ComputedAt     time.Time       `json:"computed_at"`
}

// Clone returns a copy whose slices can be modified independently.
func (v Verdict) Clone() Verdict {
	v.Reasons = append([]Reason(nil), v.Reasons...)
	v.Layers = append([]string(nil), v.Layers...)
	return v
}

// Reject appends a reason and marks the verdict failed.
func (v *Verdict) Reject(code ReasonCode, detail string) {
	v.Passed = false
	v.Reasons = append(v.Reasons, Reason{Code: code, Detail: detail})
}

// ReasonStrings renders reasons for logs.
func (v Verdict) ReasonStrings() []string {
	out := make([]string, len(v.Reasons))
	for i, r := range v.Reasons {
		out[i] = r.String()
	}
	return out
}

// BridgeQuote estimates moving funds between two networks.
type BridgeQuote struct {
	From         string          `json:"from"`
	To           string          `json:"to"`
	FeePct       decimal.Decimal `json:"fee_pct"`
	TransferTime time.Duration   `json:"transfer_time"`
	Reliability  decimal.Decimal `json:"reliability"`
}

// ValidationContext carries every input besides the opportunity itself.
// Validation reads nothing else.
// A reading that could not be taken is flagged missing, never left at zero.
type ValidationContext struct {
	Congestion        decimal.Decimal
	CongestionMissing bool
	SuccessRate       decimal.Decimal
	FrontRunRisk      decimal.Decimal
	ScoreMissing      bool // SuccessRate, FrontRunRisk and ModelScore are unknown
	Bridge            *BridgeQuote
	Exposure          map[string]decimal.Decimal // asset -> fraction of portfolio capacity
	ModelScore        decimal.Decimal
}

// MaxExposure returns the largest exposure fraction across assets, clamped to [0,1].
func (c ValidationContext) MaxExposure(assets ...string) decimal.Decimal {
	top := decimal.Zero
	for _, a := range assets {
		if f, ok := c.Exposure[a]; ok && f.GreaterThan(top) {
			top = f
		}
	}
	if top.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return top
}

// Digest is a stable hash of the context, used in verdict cache keys.
func (c ValidationContext) Digest() string {
	var b strings.Builder
	b.WriteString(c.Congestion.String())
	b.WriteByte('|')
	b.WriteString(c.SuccessRate.String())
	b.WriteByte('|')
	b.WriteString(c.FrontRunRisk.String())
	b.WriteByte('|')
	b.WriteString(c.ModelScore.String())
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(c.CongestionMissing) + "," + strconv.FormatBool(c.ScoreMissing))
	b.WriteByte('|')
	if c.Bridge != nil {
		b.WriteString(c.Bridge.From + ">" + c.Bridge.To + ":" + c.Bridge.FeePct.String() + ":" +
			strconv.FormatInt(int64(c.Bridge.TransferTime), 10) + ":" + c.Bridge.Reliability.String())
	}
	b.WriteByte('|')

	assets := make([]string, 0, len(c.Exposure))
	for a := range c.Exposure {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	for _, a := range assets {
		b.WriteString(a + "=" + c.Exposure[a].String() + ";")
	}
	return crypto.Keccak256Hash([]byte(b.String())).Hex()
}
