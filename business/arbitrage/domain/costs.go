package domain

import (
	"github.com/shopspring/decimal"
)

// Costs are the deductions from gross profit, all in quote units.
type Costs struct {
	Gas          decimal.Decimal `json:"gas"`
	Slippage     decimal.Decimal `json:"slippage"`
	FlashLoanFee decimal.Decimal `json:"flash_loan_fee"`
	BridgeFee    decimal.Decimal `json:"bridge_fee"`
}

// Total sums every cost component.
func (c Costs) Total() decimal.Decimal {
	return c.Gas.Add(c.Slippage).Add(c.FlashLoanFee).Add(c.BridgeFee)
}

// PriceImpact estimates the fractional price move of trading notional
// against liquidity: n / (L + n). Zero liquidity is full impact.
func PriceImpact(notional, liquidity decimal.Decimal) decimal.Decimal {
	if notional.Sign() <= 0 {
		return decimal.Zero
	}
	denom := liquidity.Add(notional)
	if liquidity.Sign() <= 0 || denom.Sign() <= 0 {
		return decimal.NewFromInt(1)
	}
	return notional.Div(denom)
}

// FlashLoanFee returns the premium charged on notional at bps basis points.
func FlashLoanFee(notional, bps decimal.Decimal) decimal.Decimal {
	return notional.Mul(bps).Div(decimal.NewFromInt(10000))
}
