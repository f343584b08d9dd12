// Package domain contains the core domain types for the blockchain context.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Block is the subset of a header used to gauge network load.
type Block struct {
	Network   string
	Number    uint64
	Hash      common.Hash
	Timestamp time.Time
	GasLimit  uint64
	GasUsed   uint64
	BaseFee   *big.Int
}

// Utilization returns gasUsed/gasLimit clamped to [0,1].
func (b *Block) Utilization() float64 {
	if b == nil || b.GasLimit == 0 {
		return 0
	}
	u := float64(b.GasUsed) / float64(b.GasLimit)
	if u > 1 {
		return 1
	}
	return u
}

// Congestion is a network load reading in [0,1].
type Congestion struct {
	Network    string
	Level      float64
	Block      uint64
	ObservedAt time.Time
}
