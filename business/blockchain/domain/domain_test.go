package domain

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBlockUtilization(t *testing.T) {
	tests := []struct {
		name  string
		block *Block
		want  float64
	}{
		{name: "nil", block: nil, want: 0},
		{name: "zero_limit", block: &Block{GasLimit: 0, GasUsed: 10}, want: 0},
		{name: "half", block: &Block{GasLimit: 30_000_000, GasUsed: 15_000_000}, want: 0.5},
		{name: "over_full_clamped", block: &Block{GasLimit: 100, GasUsed: 150}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.block.Utilization(); got != tt.want {
				t.Errorf("Utilization() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGasPrice(t *testing.T) {
	gp := NewGasPrice("ethereum", big.NewInt(30_000_000_000), time.Now())

	if !gp.Gwei().Equal(decimal.NewFromInt(30)) {
		t.Errorf("Gwei() = %s", gp.Gwei())
	}

	// 350000 gas * 30 gwei * 1.2 = 0.0126 ETH
	got := gp.CostNative(350000, decimal.RequireFromString("1.2"))
	if !got.Equal(decimal.RequireFromString("0.0126")) {
		t.Errorf("CostNative() = %s, want 0.0126", got)
	}
}
