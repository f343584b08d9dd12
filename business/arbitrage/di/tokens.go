// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/api"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/console"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/redis"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/infra/scoring"
	"github.com/fd1az/flashloan-arbitrage/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Scanner   = di.NewToken[*app.Scanner]("arbitrage.Scanner")
	RiskGuard = di.NewToken[*app.RiskGuard]("arbitrage.RiskGuard")
	EventHub  = di.NewToken[*app.EventHub]("arbitrage.EventHub")
)

// Private dependency tokens - internal to arbitrage module
var (
	CostModel      = di.NewToken[*app.CostModel]("arbitrage:costModel")
	Detector       = di.NewToken[*app.Detector]("arbitrage:detector")
	Validator      = di.NewToken[app.Validator]("arbitrage:validator")
	Scorer         = di.NewToken[app.Scorer]("arbitrage:scorer")
	HTTPScorer     = di.NewToken[*scoring.HTTPScorer]("arbitrage:httpScorer")
	Bridges        = di.NewToken[app.BridgeEstimator]("arbitrage:bridges")
	ExecutionStore = di.NewToken[app.ExecutionStore]("arbitrage:executionStore")
	Reporter       = di.NewToken[*console.Reporter]("arbitrage:reporter")
	RedisPublisher = di.NewToken[*redis.Publisher]("arbitrage:redisPublisher")
	Executor       = di.NewToken[app.FlashLoanExecutor]("arbitrage:executor")
	Coordinator    = di.NewToken[*app.Coordinator]("arbitrage:coordinator")
	API            = di.NewToken[*api.Server]("arbitrage:api")
)

// Helper functions for type-safe access
func GetScanner(c di.ServiceRegistry) *app.Scanner {
	return di.GetToken(c, Scanner)
}

func GetRiskGuard(c di.ServiceRegistry) *app.RiskGuard {
	return di.GetToken(c, RiskGuard)
}

func GetEventHub(c di.ServiceRegistry) *app.EventHub {
	return di.GetToken(c, EventHub)
}

func GetCostModel(c di.ServiceRegistry) *app.CostModel {
	return di.GetToken(c, CostModel)
}

func GetDetector(c di.ServiceRegistry) *app.Detector {
	return di.GetToken(c, Detector)
}

func GetValidator(c di.ServiceRegistry) app.Validator {
	return di.GetToken(c, Validator)
}

func GetScorer(c di.ServiceRegistry) app.Scorer {
	return di.GetToken(c, Scorer)
}

func GetBridges(c di.ServiceRegistry) app.BridgeEstimator {
	return di.GetToken(c, Bridges)
}

func GetExecutionStore(c di.ServiceRegistry) app.ExecutionStore {
	return di.GetToken(c, ExecutionStore)
}

func GetReporter(c di.ServiceRegistry) *console.Reporter {
	return di.GetToken(c, Reporter)
}

// GetHTTPScorer returns nil when no scoring service URL is configured.
func GetHTTPScorer(c di.ServiceRegistry) *scoring.HTTPScorer {
	return di.GetToken(c, HTTPScorer)
}

// GetRedisPublisher returns nil when Redis publishing is disabled.
func GetRedisPublisher(c di.ServiceRegistry) *redis.Publisher {
	return di.GetToken(c, RedisPublisher)
}

// GetExecutor returns nil when execution is disabled.
func GetExecutor(c di.ServiceRegistry) app.FlashLoanExecutor {
	v, _ := c.Get(Executor.Name()).(app.FlashLoanExecutor)
	return v
}

// GetCoordinator returns nil when execution is disabled.
func GetCoordinator(c di.ServiceRegistry) *app.Coordinator {
	return di.GetToken(c, Coordinator)
}

// GetAPI returns nil when the query API is disabled.
func GetAPI(c di.ServiceRegistry) *api.Server {
	return di.GetToken(c, API)
}
