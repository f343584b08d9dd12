// Package ethereum provides Ethereum blockchain infrastructure adapters.
package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

const (
	tracerName = "github.com/fd1az/flashloan-arbitrage/business/blockchain/infra/ethereum"
	meterName  = "github.com/fd1az/flashloan-arbitrage/business/blockchain/infra/ethereum"
)

// GasClient is the subset of ethclient.Client used by the gas oracle.
type GasClient interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// HeaderClient is the subset of ethclient.Client used by the congestion monitor.
type HeaderClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}
