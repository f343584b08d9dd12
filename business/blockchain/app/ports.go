// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"

	"github.com/fd1az/flashloan-arbitrage/business/blockchain/domain"
)

// GasOracle reports the current gas price of one network.
type GasOracle interface {
	Network() string
	GasPrice(ctx context.Context) (*domain.GasPrice, error)
}

// CongestionMonitor reports the load of one network.
type CongestionMonitor interface {
	Network() string
	Congestion(ctx context.Context) (domain.Congestion, error)
}
