package asset

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToDecimal converts raw on-chain units into a decimal amount.
func ToDecimal(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

// ToRaw converts a decimal amount into raw units, truncating dust below
// the token's precision.
func ToRaw(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// WeiToGwei converts wei into gwei.
func WeiToGwei(wei *big.Int) decimal.Decimal {
	return ToDecimal(wei, 9)
}

// WeiToNative converts wei into whole native coin units.
func WeiToNative(wei *big.Int) decimal.Decimal {
	return ToDecimal(wei, 18)
}

// ToDecimal converts raw units of t into a decimal amount.
func (t Token) ToDecimal(raw *big.Int) decimal.Decimal {
	return ToDecimal(raw, t.Decimals)
}

// ToRaw converts a decimal amount of t into raw units.
func (t Token) ToRaw(amount decimal.Decimal) *big.Int {
	return ToRaw(amount, t.Decimals)
}
