package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

// NetworkCost is the worst-case gas profile of one network.
type NetworkCost struct {
	GasUnits    uint64
	GasBuffer   decimal.Decimal
	NativePair  pricingDomain.Pair
	NativePrice decimal.Decimal // used when NativePair has no fresh quote
}

// GasEstimate is the worst-case gas cost of a route.
type GasEstimate struct {
	Cost    decimal.Decimal // quote units
	MaxGwei decimal.Decimal // highest gas price among the route's networks
}

// CostModel values gas in quote units from live gas prices and native
// coin quotes.
type CostModel struct {
	networks map[string]NetworkCost
	chain    ChainState
	quotes   QuoteSource
}

// NewCostModel creates a cost model over the configured networks.
func NewCostModel(networks map[string]NetworkCost, chain ChainState, quotes QuoteSource) *CostModel {
	return &CostModel{networks: networks, chain: chain, quotes: quotes}
}

// NativePrice values one native coin on network in quote units.
func (m *CostModel) NativePrice(network string) decimal.Decimal {
	nc, ok := m.networks[network]
	if !ok {
		return decimal.Zero
	}
	if m.quotes != nil && nc.NativePair.Base != "" {
		if q, ok := m.quotes.LatestPrice(network, nc.NativePair); ok {
			return q.Price
		}
	}
	return nc.NativePrice
}

// NativeToQuote converts a native coin amount on network into quote units.
func (m *CostModel) NativeToQuote(network string, native decimal.Decimal) decimal.Decimal {
	return native.Mul(m.NativePrice(network))
}

// GasPriceGwei returns the current gas price on network.
func (m *CostModel) GasPriceGwei(ctx context.Context, network string) (decimal.Decimal, error) {
	gp, err := m.chain.GasPrice(ctx, network)
	if err != nil {
		return decimal.Zero, err
	}
	return gp.Gwei(), nil
}

// RouteGas sums the worst-case gas of every network the route touches.
func (m *CostModel) RouteGas(ctx context.Context, r domain.Route) (GasEstimate, error) {
	var est GasEstimate
	for _, network := range r.Networks() {
		nc, ok := m.networks[network]
		if !ok {
			return GasEstimate{}, apperror.NotFound(apperror.CodeNotFound, "no cost profile for network "+network)
		}
		gp, err := m.chain.GasPrice(ctx, network)
		if err != nil {
			return GasEstimate{}, err
		}
		native := gp.CostNative(nc.GasUnits, nc.GasBuffer)
		est.Cost = est.Cost.Add(m.NativeToQuote(network, native))
		if g := gp.Gwei(); g.GreaterThan(est.MaxGwei) {
			est.MaxGwei = g
		}
	}
	return est, nil
}
