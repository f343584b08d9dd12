package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/fd1az/flashloan-arbitrage/business/blockchain/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

// BlockchainService exposes per-network gas and congestion readings.
type BlockchainService struct {
	oracles  map[string]GasOracle
	monitors map[string]CongestionMonitor
}

// NewBlockchainService indexes oracles and monitors by network.
func NewBlockchainService(oracles []GasOracle, monitors []CongestionMonitor) *BlockchainService {
	s := &BlockchainService{
		oracles:  make(map[string]GasOracle, len(oracles)),
		monitors: make(map[string]CongestionMonitor, len(monitors)),
	}
	for _, o := range oracles {
		s.oracles[o.Network()] = o
	}
	for _, m := range monitors {
		s.monitors[m.Network()] = m
	}
	return s
}

// GasPrice returns the current gas price on network.
func (s *BlockchainService) GasPrice(ctx context.Context, network string) (*domain.GasPrice, error) {
	o, ok := s.oracles[network]
	if !ok {
		return nil, apperror.NotFound(apperror.CodeNotFound, fmt.Sprintf("gas oracle for network %q", network))
	}
	return o.GasPrice(ctx)
}

// Congestion returns the worst load across networks. A route touching
// two chains is as congested as the busier one.
func (s *BlockchainService) Congestion(ctx context.Context, networks ...string) (domain.Congestion, error) {
	var worst domain.Congestion
	for i, n := range networks {
		m, ok := s.monitors[n]
		if !ok {
			return domain.Congestion{}, apperror.NotFound(apperror.CodeNotFound, fmt.Sprintf("congestion monitor for network %q", n))
		}
		c, err := m.Congestion(ctx)
		if err != nil {
			return domain.Congestion{}, err
		}
		if i == 0 || c.Level > worst.Level {
			worst = c
		}
	}
	return worst, nil
}

// Networks returns the networks with a gas oracle, sorted.
func (s *BlockchainService) Networks() []string {
	out := make([]string, 0, len(s.oracles))
	for n := range s.oracles {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Healthy returns an error when any monitor cannot produce a reading.
func (s *BlockchainService) Healthy(ctx context.Context) error {
	for _, n := range s.Networks() {
		if m, ok := s.monitors[n]; ok {
			if _, err := m.Congestion(ctx); err != nil {
				return fmt.Errorf("%s: %w", n, err)
			}
		}
	}
	return nil
}
