// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/fd1az/flashloan-arbitrage/business/pricing/app"
	"github.com/fd1az/flashloan-arbitrage/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Collector = di.NewToken[*app.Collector]("pricing.Collector")
)

// Private dependency tokens - internal to pricing module
var (
	Feeds         = di.NewToken[[]app.ExchangeFeed]("pricing:feeds")
	QuoteRecorder = di.NewToken[app.QuoteRecorder]("pricing:quoteRecorder")
)

// Helper functions for type-safe access
func GetCollector(c di.ServiceRegistry) *app.Collector {
	return di.GetToken(c, Collector)
}

func GetFeeds(c di.ServiceRegistry) []app.ExchangeFeed {
	return di.GetToken(c, Feeds)
}

// GetQuoteRecorder returns nil when quote persistence is disabled.
func GetQuoteRecorder(c di.ServiceRegistry) app.QuoteRecorder {
	v, _ := c.Get(QuoteRecorder.Name()).(app.QuoteRecorder)
	return v
}
