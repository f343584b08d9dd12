package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// GasPrice is the suggested gas price on one network.
type GasPrice struct {
	Network    string
	Wei        *big.Int
	ObservedAt time.Time
}

// NewGasPrice creates a GasPrice from wei.
func NewGasPrice(network string, wei *big.Int, at time.Time) *GasPrice {
	return &GasPrice{
		Network:    network,
		Wei:        new(big.Int).Set(wei),
		ObservedAt: at,
	}
}

// Gwei returns the price in gwei.
func (g *GasPrice) Gwei() decimal.Decimal {
	return decimal.NewFromBigInt(g.Wei, -9)
}

// CostNative returns units × price × buffer in whole native coin (18 decimals).
func (g *GasPrice) CostNative(units uint64, buffer decimal.Decimal) decimal.Decimal {
	wei := decimal.NewFromBigInt(g.Wei, 0).Mul(decimal.NewFromInt(int64(units)))
	return wei.Mul(buffer).Shift(-18)
}
