// Package domain contains the core domain types for the arbitrage context.
package domain

import (
	pricingDomain "github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
)

// RouteKey identifies a (pair, source exchange, target exchange) route.
// At most one execution per key is in flight.
type RouteKey string

// Route is where an opportunity buys and where it sells.
type Route struct {
	Pair           pricingDomain.Pair `json:"-"`
	PairSymbol     string             `json:"pair"`
	SourceExchange string             `json:"source_exchange"`
	TargetExchange string             `json:"target_exchange"`
	SourceNetwork  string             `json:"source_network"`
	TargetNetwork  string             `json:"target_network"`
}

// NewRoute builds a route buying on buy and selling on sell.
func NewRoute(pair pricingDomain.Pair, buy, sell pricingDomain.PriceQuote) Route {
	return Route{
		Pair:           pair,
		PairSymbol:     pair.String(),
		SourceExchange: buy.Exchange,
		TargetExchange: sell.Exchange,
		SourceNetwork:  buy.Network,
		TargetNetwork:  sell.Network,
	}
}

// Key returns "PAIR:source>target".
func (r Route) Key() RouteKey {
	return RouteKey(r.Pair.String() + ":" + r.SourceExchange + ">" + r.TargetExchange)
}

// CrossChain reports whether the legs settle on different networks.
func (r Route) CrossChain() bool {
	return r.SourceNetwork != r.TargetNetwork
}

// Networks returns the distinct networks the route touches.
func (r Route) Networks() []string {
	if r.CrossChain() {
		return []string{r.SourceNetwork, r.TargetNetwork}
	}
	return []string{r.SourceNetwork}
}

// Assets returns the two tokens the route is exposed to.
func (r Route) Assets() []string {
	return []string{r.Pair.Base, r.Pair.Quote}
}
