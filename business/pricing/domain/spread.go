package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Spread pairs a buy-side quote with a higher priced sell-side quote.
type Spread struct {
	Buy   PriceQuote
	Sell  PriceQuote
	Ratio decimal.Decimal // (sell - buy) / buy
}

// SpreadRatio returns (high - low) / low, or zero when low is not positive.
func SpreadRatio(low, high decimal.Decimal) decimal.Decimal {
	if !low.IsPositive() {
		return decimal.Zero
	}
	return high.Sub(low).Div(low)
}

// BasisPoints returns the ratio in bps.
func (s Spread) BasisPoints() decimal.Decimal {
	return s.Ratio.Mul(decimal.NewFromInt(10000))
}

// Spreads returns every (buy, sell) pairing of quotes from different venues
// where sell is priced above buy, widest first. Ties break on exchange names
// so the order is deterministic.
func Spreads(quotes []PriceQuote) []Spread {
	var out []Spread
	for _, buy := range quotes {
		for _, sell := range quotes {
			if buy.Exchange == sell.Exchange && buy.Network == sell.Network {
				continue
			}
			if !sell.Price.GreaterThan(buy.Price) {
				continue
			}
			out = append(out, Spread{Buy: buy, Sell: sell, Ratio: SpreadRatio(buy.Price, sell.Price)})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Ratio.Cmp(out[j].Ratio); c != 0 {
			return c > 0
		}
		if out[i].Buy.Exchange != out[j].Buy.Exchange {
			return out[i].Buy.Exchange < out[j].Buy.Exchange
		}
		return out[i].Sell.Exchange < out[j].Sell.Exchange
	})
	return out
}
