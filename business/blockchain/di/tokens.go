// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"github.com/fd1az/flashloan-arbitrage/business/blockchain/app"
	"github.com/fd1az/flashloan-arbitrage/business/blockchain/infra/ethereum"
	"github.com/fd1az/flashloan-arbitrage/internal/di"
)

// Public service tokens - exposed to other modules
var (
	BlockchainService = di.NewToken[*app.BlockchainService]("blockchain.BlockchainService")
)

// Private dependency tokens - internal to blockchain module
var (
	GasOracles         = di.NewToken[[]*ethereum.GasOracle]("blockchain:gasOracles")
	CongestionMonitors = di.NewToken[[]*ethereum.CongestionMonitor]("blockchain:congestionMonitors")
)

// Helper functions for type-safe access
func GetBlockchainService(c di.ServiceRegistry) *app.BlockchainService {
	return di.GetToken(c, BlockchainService)
}

func GetGasOracles(c di.ServiceRegistry) []*ethereum.GasOracle {
	return di.GetToken(c, GasOracles)
}

func GetCongestionMonitors(c di.ServiceRegistry) []*ethereum.CongestionMonitor {
	return di.GetToken(c, CongestionMonitors)
}
