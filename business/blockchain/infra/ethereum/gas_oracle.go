package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arbitrage/business/blockchain/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/cache"
	"github.com/fd1az/flashloan-arbitrage/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

// GasOracleConfig holds configuration for the gas oracle.
type GasOracleConfig struct {
	Network  string
	CacheTTL time.Duration // How long to cache gas prices
}

// DefaultGasOracleConfig returns sensible defaults.
func DefaultGasOracleConfig(network string) GasOracleConfig {
	return GasOracleConfig{
		Network:  network,
		CacheTTL: 12 * time.Second, // ~1 block
	}
}

type gasOracleMetrics struct {
	gasPriceFetches metric.Int64Counter
	gasPriceGwei    metric.Float64Gauge
	cacheHits       metric.Int64Counter
}

// GasOracle reads the suggested gas price from one network.
type GasOracle struct {
	config GasOracleConfig
	logger logger.LoggerInterface
	client GasClient
	now    func() time.Time

	priceCache *cache.Cache[string, *domain.GasPrice]
	cb         *circuitbreaker.CircuitBreaker[*big.Int]

	tracer  trace.Tracer
	metrics *gasOracleMetrics
}

// NewGasOracle creates a new gas oracle instance.
func NewGasOracle(cfg GasOracleConfig, client GasClient, log logger.LoggerInterface) (*GasOracle, error) {
	g := &GasOracle{
		config:     cfg,
		logger:     log,
		client:     client,
		now:        time.Now,
		priceCache: cache.New[string, *domain.GasPrice](5 * time.Minute),
		cb:         circuitbreaker.New[*big.Int](circuitbreaker.DefaultConfig("gas-oracle-" + cfg.Network)),
		tracer:     otel.Tracer(tracerName),
	}

	if err := g.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return g, nil
}

func (g *GasOracle) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	g.metrics = &gasOracleMetrics{}

	g.metrics.gasPriceFetches, err = meter.Int64Counter(
		"gas_price_fetches_total",
		metric.WithDescription("Total gas price fetch attempts"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	g.metrics.gasPriceGwei, err = meter.Float64Gauge(
		"gas_price_gwei",
		metric.WithDescription("Current gas price in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheHits, err = meter.Int64Counter(
		"gas_cache_hits_total",
		metric.WithDescription("Gas price cache hits"),
		metric.WithUnit("{hit}"),
	)
	return err
}

// Network returns the network this oracle reads.
func (g *GasOracle) Network() string {
	return g.config.Network
}

// GasPrice retrieves the current gas price with caching. The price is
// never clamped: risk limits decide whether it is acceptable.
func (g *GasOracle) GasPrice(ctx context.Context) (*domain.GasPrice, error) {
	netAttr := attribute.String("network", g.config.Network)

	ctx, span := g.tracer.Start(ctx, "gas.get_price", trace.WithAttributes(netAttr))
	defer span.End()

	if price, found := g.priceCache.Get(ctx, g.config.Network); found {
		g.metrics.cacheHits.Add(ctx, 1, metric.WithAttributes(netAttr))
		span.AddEvent("cache_hit")
		return price, nil
	}

	g.metrics.gasPriceFetches.Add(ctx, 1, metric.WithAttributes(netAttr))

	wei, err := g.cb.Execute(func() (*big.Int, error) {
		return g.client.SuggestGasPrice(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		if apperror.IsAppError(err) {
			return nil, err
		}
		return nil, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext(g.config.Network+": failed to get gas price"))
	}

	price := domain.NewGasPrice(g.config.Network, wei, g.now())
	g.priceCache.Set(ctx, g.config.Network, price, g.config.CacheTTL)

	gwei, _ := price.Gwei().Float64()
	g.metrics.gasPriceGwei.Record(ctx, gwei, metric.WithAttributes(netAttr))

	span.SetAttributes(attribute.Float64("gwei", gwei))
	span.SetStatus(codes.Ok, "fetched")

	return price, nil
}

// Close stops the cache janitor.
func (g *GasOracle) Close() error {
	g.priceCache.Close()
	return nil
}
