// Package arbitrage implements the arbitrage bounded context: detection,
// validation, risk admission and flash-loan execution.
package arbitrage

import (
	"context"
	"math/big"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	arbitrageDI "github.com/fd1az/flashloan-arbitrage/business/arbitrage/di"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/api"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/bridge"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/console"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/flashloan"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/memory"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/postgres"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/redis"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/scoring"
	blockchainDI "github.com/fd1az/flashloan-arbitrage/business/blockchain/di"
	pricingDI "github.com/fd1az/flashloan-arbitrage/business/pricing/di"
	"github.com/fd1az/flashloan-arbitrage/internal/asset"
	"github.com/fd1az/flashloan-arbitrage/internal/config"
	"github.com/fd1az/flashloan-arbitrage/internal/di"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
	"github.com/fd1az/flashloan-arbitrage/internal/monolith"
	db "github.com/fd1az/flashloan-arbitrage/internal/postgres"
)

const (
	eventHubBuffer  = 64
	memoryStoreSize = 1000
	reporterRows    = 10
)

// Module implements the arbitrage bounded context.
type Module struct{}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbitrageDI.CostModel, func(sr di.ServiceRegistry) *app.CostModel {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		networks, err := networkCosts(cfg)
		if err != nil {
			panic("invalid network native pair: " + err.Error())
		}
		return app.NewCostModel(networks, blockchainDI.GetBlockchainService(sr), pricingDI.GetCollector(sr))
	})

	di.RegisterToken(c, arbitrageDI.HTTPScorer, func(sr di.ServiceRegistry) *scoring.HTTPScorer {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		if cfg.Scorer.URL == "" {
			return nil
		}
		s, err := scoring.NewHTTPScorer(cfg.Scorer, log)
		if err != nil {
			panic("failed to create scorer: " + err.Error())
		}
		return s
	})

	di.RegisterToken(c, arbitrageDI.Scorer, func(sr di.ServiceRegistry) app.Scorer {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		if s := arbitrageDI.GetHTTPScorer(sr); s != nil {
			return s
		}
		return scoring.Defaults(cfg.Scorer)
	})

	di.RegisterToken(c, arbitrageDI.Bridges, func(sr di.ServiceRegistry) app.BridgeEstimator {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		return bridge.NewEstimator(cfg.Bridges)
	})

	di.RegisterToken(c, arbitrageDI.Detector, func(sr di.ServiceRegistry) *app.Detector {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		d, err := app.NewDetector(detectorConfig(cfg),
			pricingDI.GetCollector(sr),
			arbitrageDI.GetCostModel(sr),
			arbitrageDI.GetScorer(sr),
			arbitrageDI.GetBridges(sr),
			log)
		if err != nil {
			panic("failed to create detector: " + err.Error())
		}
		return d
	})

	di.RegisterToken(c, arbitrageDI.Validator, func(sr di.ServiceRegistry) app.Validator {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		base, err := app.NewProfitabilityValidator(validatorConfig(cfg))
		if err != nil {
			panic("failed to create validator: " + err.Error())
		}

		var v app.Validator = base
		if cfg.Validator.ABTesting.Enabled {
			v = app.NewABValidator(base, cfg.Validator.ABTesting.SplitPercent, override(cfg.Validator.ABTesting.VariantB))
		}
		if cfg.Validator.ML.Enabled {
			v = app.NewMLValidator(v, config.Decimal(cfg.Validator.ML.MinScore))
		}
		return v
	})

	di.RegisterToken(c, arbitrageDI.RiskGuard, func(sr di.ServiceRegistry) *app.RiskGuard {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		g, err := app.NewRiskGuard(riskConfig(cfg), log)
		if err != nil {
			panic("failed to create risk guard: " + err.Error())
		}
		return g
	})

	di.RegisterToken(c, arbitrageDI.EventHub, func(sr di.ServiceRegistry) *app.EventHub {
		hub, err := app.NewEventHub(eventHubBuffer)
		if err != nil {
			panic("failed to create event hub: " + err.Error())
		}
		return hub
	})

	di.RegisterToken(c, arbitrageDI.ExecutionStore, func(sr di.ServiceRegistry) app.ExecutionStore {
		if client := sr.Get(monolith.ServicePostgres).(*db.Client); client != nil {
			return postgres.NewExecutionStore(client.Pool())
		}
		return memory.NewExecutionStore(memoryStoreSize)
	})

	di.RegisterToken(c, arbitrageDI.Reporter, func(sr di.ServiceRegistry) *console.Reporter {
		return console.NewReporter(reporterRows)
	})

	di.RegisterToken(c, arbitrageDI.RedisPublisher, func(sr di.ServiceRegistry) *redis.Publisher {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		if !cfg.Redis.Enabled {
			return nil
		}
		p, err := redis.NewPublisher(context.Background(), redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			panic("failed to connect redis: " + err.Error())
		}
		return p
	})

	di.RegisterToken(c, arbitrageDI.Executor, func(sr di.ServiceRegistry) app.FlashLoanExecutor {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		if !cfg.Execution.Enabled {
			return nil
		}
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		clients := sr.Get(monolith.ServiceEthClients).(monolith.EthClients)
		tokens := sr.Get(monolith.ServiceTokens).(*asset.Registry)

		key, err := flashloan.ParsePrivateKey(cfg.Execution.PrivateKey)
		if err != nil {
			panic(err.Error())
		}

		executors := make(map[string]app.FlashLoanExecutor, len(cfg.Networks))
		for _, n := range cfg.Networks {
			client, ok := clients[n.Name]
			if !ok {
				panic("no RPC client for network " + n.Name)
			}
			e, err := flashloan.NewExecutor(flashloan.Config{
				Network:     n.Name,
				ChainID:     new(big.Int).SetUint64(n.ChainID),
				Contract:    n.ExecutorAddressHex(),
				PrivateKey:  key,
				GasLimit:    cfg.Execution.GasLimit,
				ReceiptPoll: cfg.Execution.ReceiptPoll,
			}, client, tokens, arbitrageDI.GetCostModel(sr), log)
			if err != nil {
				panic("failed to create executor: " + err.Error())
			}
			executors[n.Name] = e
		}
		return flashloan.NewRouter(executors)
	})

	di.RegisterToken(c, arbitrageDI.Coordinator, func(sr di.ServiceRegistry) *app.Coordinator {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		executor := arbitrageDI.GetExecutor(sr)
		if executor == nil {
			return nil
		}

		publishers := []app.EventPublisher{arbitrageDI.GetEventHub(sr), arbitrageDI.GetReporter(sr)}
		if p := arbitrageDI.GetRedisPublisher(sr); p != nil {
			publishers = append(publishers, p)
		}

		coord, err := app.NewCoordinator(coordinatorConfig(cfg), executor,
			arbitrageDI.GetRiskGuard(sr), arbitrageDI.GetExecutionStore(sr), log, publishers...)
		if err != nil {
			panic("failed to create coordinator: " + err.Error())
		}
		return coord
	})

	di.RegisterToken(c, arbitrageDI.Scanner, func(sr di.ServiceRegistry) *app.Scanner {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		tokens := sr.Get(monolith.ServiceTokens).(*asset.Registry)

		s, err := app.NewScanner(scannerConfig(cfg), app.ScannerDeps{
			Detector:    arbitrageDI.GetDetector(sr),
			Validator:   arbitrageDI.GetValidator(sr),
			Guard:       arbitrageDI.GetRiskGuard(sr),
			Coordinator: arbitrageDI.GetCoordinator(sr),
			Hub:         arbitrageDI.GetEventHub(sr),
			Chain:       blockchainDI.GetBlockchainService(sr),
			Scorer:      arbitrageDI.GetScorer(sr),
			Bridges:     arbitrageDI.GetBridges(sr),
			Contracts:   contractResolver(tokens),
			Observers:   []app.CycleObserver{arbitrageDI.GetReporter(sr)},
		}, log)
		if err != nil {
			panic("failed to create scanner: " + err.Error())
		}
		return s
	})

	di.RegisterToken(c, arbitrageDI.API, func(sr di.ServiceRegistry) *api.Server {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		if !cfg.API.Enabled {
			return nil
		}
		return api.NewServer(cfg.API.Port,
			arbitrageDI.GetScanner(sr),
			arbitrageDI.GetExecutionStore(sr),
			arbitrageDI.GetRiskGuard(sr),
			log)
	})

	return nil
}

// Startup starts the detection loop and the query API.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	sr := mono.Services()

	scanner := arbitrageDI.GetScanner(sr)
	scanner.StartScanning(ctx)

	if srv := arbitrageDI.GetAPI(sr); srv != nil {
		srv.Start()
	}

	cfg := mono.Config()
	log.Info(ctx, "arbitrage module started",
		"dry_run", !cfg.Execution.Enabled,
		"api", cfg.API.Enabled,
		"redis", arbitrageDI.GetRedisPublisher(sr) != nil,
		"scorer", arbitrageDI.GetHTTPScorer(sr) != nil,
	)
	return nil
}

// Shutdown stops scanning, lets in-flight executions finish and closes
// outbound connections.
func (m *Module) Shutdown(mono monolith.Monolith) {
	sr := mono.Services()
	ctx := context.Background()

	if srv := arbitrageDI.GetAPI(sr); srv != nil {
		if err := srv.Stop(ctx); err != nil {
			mono.Logger().Warn(ctx, "api shutdown failed", "error", err)
		}
	}

	arbitrageDI.GetScanner(sr).StopScanning()
	if coord := arbitrageDI.GetCoordinator(sr); coord != nil {
		coord.Wait()
	}
	arbitrageDI.GetEventHub(sr).Close()

	if p := arbitrageDI.GetRedisPublisher(sr); p != nil {
		_ = p.Close()
	}
	if s := arbitrageDI.GetHTTPScorer(sr); s != nil {
		s.Close()
	}
}
