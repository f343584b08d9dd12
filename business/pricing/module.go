// Package pricing implements the pricing bounded context: concurrent
// polling of every configured exchange for every monitored pair.
package pricing

import (
	"context"

	"github.com/fd1az/flashloan-arbitrage/business/pricing/app"
	pricingDI "github.com/fd1az/flashloan-arbitrage/business/pricing/di"
	"github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/business/pricing/infra/aggregator"
	"github.com/fd1az/flashloan-arbitrage/business/pricing/infra/postgres"
	"github.com/fd1az/flashloan-arbitrage/business/pricing/infra/uniswap"
	"github.com/fd1az/flashloan-arbitrage/internal/asset"
	"github.com/fd1az/flashloan-arbitrage/internal/config"
	"github.com/fd1az/flashloan-arbitrage/internal/di"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
	"github.com/fd1az/flashloan-arbitrage/internal/monolith"
	db "github.com/fd1az/flashloan-arbitrage/internal/postgres"
)

// Exchange kinds accepted in configuration.
const (
	KindUniswapV3  = "uniswap_v3"
	KindAggregator = "aggregator"
)

// Module implements the pricing bounded context.
type Module struct{}

// RegisterServices registers all pricing services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, pricingDI.Feeds, func(sr di.ServiceRegistry) []app.ExchangeFeed {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		clients := sr.Get(monolith.ServiceEthClients).(monolith.EthClients)
		tokens := sr.Get(monolith.ServiceTokens).(*asset.Registry)

		feeds := make([]app.ExchangeFeed, 0, len(cfg.Exchanges))
		for _, ex := range cfg.Exchanges {
			switch ex.Kind {
			case KindUniswapV3:
				client, ok := clients[ex.Network]
				if !ok {
					panic("no RPC client for network " + ex.Network)
				}
				provider, err := uniswap.NewProvider(client, ex, tokens, log)
				if err != nil {
					panic("failed to create uniswap feed: " + err.Error())
				}
				feeds = append(feeds, provider)
			case KindAggregator:
				feed, err := aggregator.NewFeed(ex, log)
				if err != nil {
					panic("failed to create aggregator feed: " + err.Error())
				}
				feeds = append(feeds, feed)
			}
		}
		return feeds
	})

	di.RegisterToken(c, pricingDI.QuoteRecorder, func(sr di.ServiceRegistry) app.QuoteRecorder {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		client := sr.Get(monolith.ServicePostgres).(*db.Client)
		if client == nil || !cfg.Feeds.RecordQuotes {
			return nil
		}
		return postgres.NewQuoteStore(client.Pool())
	})

	di.RegisterToken(c, pricingDI.Collector, func(sr di.ServiceRegistry) *app.Collector {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)

		pairs := make([]domain.Pair, 0, len(cfg.Pairs))
		for _, p := range cfg.Pairs {
			pair, err := domain.ParsePair(p)
			if err != nil {
				panic(err.Error())
			}
			pairs = append(pairs, pair)
		}

		collector, err := app.NewCollector(app.CollectorConfig{
			PollInterval:           cfg.Feeds.PollInterval,
			PollTimeout:            cfg.Feeds.PollTimeout,
			StaleAfter:             cfg.Feeds.StaleAfter(),
			MaxConsecutiveFailures: cfg.Feeds.MaxConsecutiveFailures,
		}, pricingDI.GetFeeds(sr), pairs, pricingDI.GetQuoteRecorder(sr), log)
		if err != nil {
			panic("failed to create collector: " + err.Error())
		}
		return collector
	})

	return nil
}

// Startup launches one polling goroutine per (exchange, pair).
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	collector := pricingDI.GetCollector(mono.Services())
	collector.Start(ctx)

	log.Info(ctx, "pricing module started",
		"feeds", len(pricingDI.GetFeeds(mono.Services())),
		"pairs", len(collector.Pairs()),
		"record_quotes", pricingDI.GetQuoteRecorder(mono.Services()) != nil,
	)
	return nil
}

// Shutdown stops every poller and waits for in-flight polls.
func (m *Module) Shutdown(mono monolith.Monolith) {
	pricingDI.GetCollector(mono.Services()).Stop()
}
