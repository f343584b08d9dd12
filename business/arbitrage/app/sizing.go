package app

import (
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
)

var two = decimal.NewFromInt(2)

// Leg is one side of a trade: the price paid or received and the quote-side
// depth behind it.
type Leg struct {
	Price     decimal.Decimal
	Liquidity decimal.Decimal
}

// Impact is the price impact of trading amount base units on the leg.
func (l Leg) Impact(amount decimal.Decimal) decimal.Decimal {
	return domain.PriceImpact(amount.Mul(l.Price), l.Liquidity)
}

// MaxImpact returns the worse of the two legs' impacts at amount.
func MaxImpact(amount decimal.Decimal, buy, sell Leg) decimal.Decimal {
	return decimal.Max(buy.Impact(amount), sell.Impact(amount))
}

// SizeTrade finds the largest amount in [0, maxSize] whose impact on both
// legs stays within maxImpact, by bisection bounded to iterations. The
// result is rounded down to precision decimal places so it never crosses
// the cap.
func SizeTrade(buy, sell Leg, maxSize, maxImpact decimal.Decimal, iterations int, precision int32) decimal.Decimal {
	if maxSize.Sign() <= 0 {
		return decimal.Zero
	}
	if MaxImpact(maxSize, buy, sell).LessThanOrEqual(maxImpact) {
		return maxSize.RoundFloor(precision)
	}

	lo, hi := decimal.Zero, maxSize
	for i := 0; i < iterations; i++ {
		mid := lo.Add(hi).Div(two)
		if MaxImpact(mid, buy, sell).LessThanOrEqual(maxImpact) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo.RoundFloor(precision)
}
