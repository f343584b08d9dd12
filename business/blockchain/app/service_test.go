package app

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/fd1az/flashloan-arbitrage/business/blockchain/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

type fakeOracle struct {
	network string
	gwei    int64
}

func (f *fakeOracle) Network() string { return f.network }

func (f *fakeOracle) GasPrice(context.Context) (*domain.GasPrice, error) {
	wei := new(big.Int).Mul(big.NewInt(f.gwei), big.NewInt(1_000_000_000))
	return domain.NewGasPrice(f.network, wei, time.Now()), nil
}

type fakeMonitor struct {
	network string
	level   float64
	err     error
}

func (f *fakeMonitor) Network() string { return f.network }

func (f *fakeMonitor) Congestion(context.Context) (domain.Congestion, error) {
	return domain.Congestion{Network: f.network, Level: f.level}, f.err
}

func TestBlockchainService_Congestion(t *testing.T) {
	svc := NewBlockchainService(
		[]GasOracle{&fakeOracle{network: "ethereum", gwei: 30}, &fakeOracle{network: "arbitrum", gwei: 1}},
		[]CongestionMonitor{&fakeMonitor{network: "ethereum", level: 0.4}, &fakeMonitor{network: "arbitrum", level: 0.8}},
	)
	ctx := context.Background()

	tests := []struct {
		name     string
		networks []string
		want     float64
		wantCode apperror.Code
	}{
		{name: "single", networks: []string{"ethereum"}, want: 0.4},
		{name: "cross_chain_takes_max", networks: []string{"ethereum", "arbitrum"}, want: 0.8},
		{name: "unknown_network", networks: []string{"base"}, wantCode: apperror.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Congestion(ctx, tt.networks...)
			if tt.wantCode != "" {
				if apperror.GetCode(err) != tt.wantCode {
					t.Fatalf("code = %s, want %s", apperror.GetCode(err), tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Congestion() error = %v", err)
			}
			if got.Level != tt.want {
				t.Errorf("Level = %v, want %v", got.Level, tt.want)
			}
		})
	}

	gp, err := svc.GasPrice(ctx, "ethereum")
	if err != nil || gp.Gwei().IntPart() != 30 {
		t.Errorf("GasPrice(ethereum) = %v, %v", gp, err)
	}
	if got := svc.Networks(); len(got) != 2 || got[0] != "arbitrum" {
		t.Errorf("Networks() = %v", got)
	}
}

func TestBlockchainService_Healthy(t *testing.T) {
	svc := NewBlockchainService(
		[]GasOracle{&fakeOracle{network: "ethereum"}},
		[]CongestionMonitor{&fakeMonitor{network: "ethereum", err: errors.New("rpc down")}},
	)
	if err := svc.Healthy(context.Background()); err == nil {
		t.Error("expected unhealthy")
	}
}
