// Package blockchain implements the blockchain bounded context: per-network
// gas prices and congestion readings.
package blockchain

import (
	"context"

	"github.com/fd1az/flashloan-arbitrage/business/blockchain/app"
	blockchainDI "github.com/fd1az/flashloan-arbitrage/business/blockchain/di"
	"github.com/fd1az/flashloan-arbitrage/business/blockchain/infra/ethereum"
	"github.com/fd1az/flashloan-arbitrage/internal/config"
	"github.com/fd1az/flashloan-arbitrage/internal/di"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
	"github.com/fd1az/flashloan-arbitrage/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, blockchainDI.GasOracles, func(sr di.ServiceRegistry) []*ethereum.GasOracle {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		clients := sr.Get(monolith.ServiceEthClients).(monolith.EthClients)

		oracles := make([]*ethereum.GasOracle, 0, len(cfg.Networks))
		for _, n := range cfg.Networks {
			oracle, err := ethereum.NewGasOracle(ethereum.DefaultGasOracleConfig(n.Name), clients[n.Name], log)
			if err != nil {
				panic("failed to create gas oracle: " + err.Error())
			}
			oracles = append(oracles, oracle)
		}
		return oracles
	})

	di.RegisterToken(c, blockchainDI.CongestionMonitors, func(sr di.ServiceRegistry) []*ethereum.CongestionMonitor {
		cfg := sr.Get(monolith.ServiceConfig).(*config.Config)
		log := sr.Get(monolith.ServiceLogger).(logger.LoggerInterface)
		clients := sr.Get(monolith.ServiceEthClients).(monolith.EthClients)

		monitors := make([]*ethereum.CongestionMonitor, 0, len(cfg.Networks))
		for _, n := range cfg.Networks {
			mon, err := ethereum.NewCongestionMonitor(ethereum.DefaultCongestionConfig(n.Name), clients[n.Name], log)
			if err != nil {
				panic("failed to create congestion monitor: " + err.Error())
			}
			monitors = append(monitors, mon)
		}
		return monitors
	})

	di.RegisterToken(c, blockchainDI.BlockchainService, func(sr di.ServiceRegistry) *app.BlockchainService {
		var oracles []app.GasOracle
		for _, o := range blockchainDI.GetGasOracles(sr) {
			oracles = append(oracles, o)
		}
		var monitors []app.CongestionMonitor
		for _, mon := range blockchainDI.GetCongestionMonitors(sr) {
			monitors = append(monitors, mon)
		}
		return app.NewBlockchainService(oracles, monitors)
	})

	return nil
}

// Startup begins congestion polling on every network.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	for _, mon := range blockchainDI.GetCongestionMonitors(mono.Services()) {
		mon.Start(ctx)
	}

	log.Info(ctx, "blockchain module started", "networks", blockchainDI.GetBlockchainService(mono.Services()).Networks())
	return nil
}

// Shutdown stops background polling.
func (m *Module) Shutdown(mono monolith.Monolith) {
	for _, mon := range blockchainDI.GetCongestionMonitors(mono.Services()) {
		mon.Stop()
	}
	for _, o := range blockchainDI.GetGasOracles(mono.Services()) {
		o.Close()
	}
}
