package ethereum

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arbitrage/business/blockchain/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

// CongestionConfig holds configuration for the congestion monitor.
type CongestionConfig struct {
	Network      string
	PollInterval time.Duration // header polling interval
	MaxAge       time.Duration // readings older than this trigger a synchronous fetch
}

// DefaultCongestionConfig returns sensible defaults.
func DefaultCongestionConfig(network string) CongestionConfig {
	return CongestionConfig{
		Network:      network,
		PollInterval: 12 * time.Second,
		MaxAge:       30 * time.Second,
	}
}

type congestionMetrics struct {
	blocksPolled metric.Int64Counter
	pollErrors   metric.Int64Counter
	utilization  metric.Float64Gauge
}

// CongestionMonitor polls the latest header of one network and derives
// congestion from gasUsed/gasLimit.
type CongestionMonitor struct {
	config CongestionConfig
	logger logger.LoggerInterface
	client HeaderClient
	now    func() time.Time

	latest atomic.Pointer[domain.Block]
	cb     *circuitbreaker.CircuitBreaker[*types.Header]

	done    chan struct{}
	stopped atomic.Bool

	tracer  trace.Tracer
	metrics *congestionMetrics
}

// NewCongestionMonitor creates a monitor. Call Start to begin polling.
func NewCongestionMonitor(cfg CongestionConfig, client HeaderClient, log logger.LoggerInterface) (*CongestionMonitor, error) {
	m := &CongestionMonitor{
		config: cfg,
		logger: log,
		client: client,
		now:    time.Now,
		cb:     circuitbreaker.New[*types.Header](circuitbreaker.DefaultConfig("congestion-" + cfg.Network)),
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return m, nil
}

func (m *CongestionMonitor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	m.metrics = &congestionMetrics{}

	m.metrics.blocksPolled, err = meter.Int64Counter(
		"congestion_blocks_polled_total",
		metric.WithDescription("Headers fetched for congestion readings"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	m.metrics.pollErrors, err = meter.Int64Counter(
		"congestion_poll_errors_total",
		metric.WithDescription("Failed header fetches"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	m.metrics.utilization, err = meter.Float64Gauge(
		"congestion_level",
		metric.WithDescription("Latest block gas utilization"),
		metric.WithUnit("1"),
	)
	return err
}

// Network returns the network this monitor reads.
func (m *CongestionMonitor) Network() string {
	return m.config.Network
}

// Start polls headers until ctx is done or Stop is called.
func (m *CongestionMonitor) Start(ctx context.Context) {
	if _, err := m.poll(ctx); err != nil {
		m.logger.Warn(ctx, "initial header poll failed", "network", m.config.Network, "error", err)
	}

	go func() {
		ticker := time.NewTicker(m.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.poll(ctx); err != nil {
					m.logger.Warn(ctx, "header poll failed", "network", m.config.Network, "error", err)
				}
			}
		}
	}()
}

// Stop ends polling. Safe to call more than once.
func (m *CongestionMonitor) Stop() {
	if m.stopped.CompareAndSwap(false, true) {
		close(m.done)
	}
}

// Congestion returns the latest reading, fetching synchronously when the
// cached block is missing or older than MaxAge.
func (m *CongestionMonitor) Congestion(ctx context.Context) (domain.Congestion, error) {
	block := m.latest.Load()
	if block == nil || m.now().Sub(block.Timestamp) > m.config.MaxAge {
		fresh, err := m.poll(ctx)
		if err != nil {
			if block == nil {
				return domain.Congestion{}, err
			}
			m.logger.Debug(ctx, "using previous congestion reading", "network", m.config.Network, "error", err)
		} else {
			block = fresh
		}
	}

	return domain.Congestion{
		Network:    m.config.Network,
		Level:      block.Utilization(),
		Block:      block.Number,
		ObservedAt: block.Timestamp,
	}, nil
}

func (m *CongestionMonitor) poll(ctx context.Context) (*domain.Block, error) {
	ctx, span := m.tracer.Start(ctx, "eth.poll.header",
		trace.WithAttributes(attribute.String("network", m.config.Network)))
	defer span.End()

	header, err := m.cb.Execute(func() (*types.Header, error) {
		return m.client.HeaderByNumber(ctx, nil) // nil = latest
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "poll failed")
		m.metrics.pollErrors.Add(ctx, 1)
		if apperror.IsAppError(err) {
			return nil, err
		}
		return nil, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext(m.config.Network+": latest header"))
	}

	block := m.headerToBlock(header)
	m.latest.Store(block)

	m.metrics.blocksPolled.Add(ctx, 1)
	m.metrics.utilization.Record(ctx, block.Utilization(),
		metric.WithAttributes(attribute.String("network", m.config.Network)))

	span.SetAttributes(
		attribute.Int64("block_number", int64(block.Number)),
		attribute.Float64("utilization", block.Utilization()),
	)
	span.SetStatus(codes.Ok, "polled")
	return block, nil
}

// headerToBlock stamps the block with local receive time so staleness
// does not depend on the chain's clock.
func (m *CongestionMonitor) headerToBlock(h *types.Header) *domain.Block {
	var number uint64
	if h.Number != nil {
		number = h.Number.Uint64()
	}
	return &domain.Block{
		Network:   m.config.Network,
		Number:    number,
		Hash:      h.Hash(),
		Timestamp: m.now(),
		GasLimit:  h.GasLimit,
		GasUsed:   h.GasUsed,
		BaseFee:   h.BaseFee,
	}
}
