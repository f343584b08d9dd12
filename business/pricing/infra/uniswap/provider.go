// Package uniswap implements an ExchangeFeed over the Uniswap V3 QuoterV2.
package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arbitrage/business/pricing/app"
	"github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/asset"
	"github.com/fd1az/flashloan-arbitrage/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arbitrage/internal/config"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

const (
	tracerName = "uniswap"
	meterName  = "uniswap"
)

var _ app.ExchangeFeed = (*Provider)(nil)

type providerMetrics struct {
	quotesTotal  metric.Int64Counter
	quoteLatency metric.Float64Histogram
	quoteErrors  metric.Int64Counter
}

// Provider quotes a fixed probe amount of the base token through the
// QuoterV2 and reads quote-token depth from the configured pool.
type Provider struct {
	name     string
	network  string
	client   ethereum.ContractCaller
	quoter   common.Address
	feeTiers []int
	probe    decimal.Decimal
	pools    func(pair string) (string, bool)

	quoterABI abi.ABI
	erc20ABI  abi.ABI

	tokens *asset.Registry
	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]
	now    func() time.Time

	tracer  trace.Tracer
	metrics *providerMetrics
}

// NewProvider creates a Uniswap V3 feed for one exchange config entry.
func NewProvider(client ethereum.ContractCaller, cfg config.ExchangeConfig, tokens *asset.Registry, log logger.LoggerInterface) (*Provider, error) {
	quoterABI, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}

	feeTiers := []int{FeeTier005, FeeTier030, FeeTier100}
	if cfg.FeeTier > 0 {
		feeTiers = []int{cfg.FeeTier}
	}

	probe := decimal.NewFromFloat(cfg.ProbeAmount)
	if !probe.IsPositive() {
		probe = decimal.NewFromInt(1)
	}

	p := &Provider{
		name:      cfg.Name,
		network:   cfg.Network,
		client:    client,
		quoter:    cfg.QuoterAddressHex(),
		feeTiers:  feeTiers,
		probe:     probe,
		pools:     cfg.Pool,
		quoterABI: quoterABI,
		erc20ABI:  erc20ABI,
		tokens:    tokens,
		logger:    log,
		cb:        circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("uniswap-" + cfg.Name)),
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	return p, nil
}

func (p *Provider) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	p.metrics = &providerMetrics{}

	p.metrics.quotesTotal, err = meter.Int64Counter(
		"uniswap_quotes_total",
		metric.WithDescription("Total quote requests"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteLatency, err = meter.Float64Histogram(
		"uniswap_quote_latency_ms",
		metric.WithDescription("Quote request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteErrors, err = meter.Int64Counter(
		"uniswap_quote_errors_total",
		metric.WithDescription("Total quote errors"),
	)
	return err
}

func (p *Provider) Name() string    { return p.name }
func (p *Provider) Network() string { return p.network }

// PollQuote returns the base price in quote units and the pool's quote depth.
func (p *Provider) PollQuote(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	ctx, span := p.tracer.Start(ctx, "uniswap.poll_quote",
		trace.WithAttributes(
			attribute.String("exchange", p.name),
			attribute.String("pair", pair.String()),
		),
	)
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("exchange", p.name))
	start := time.Now()
	p.metrics.quotesTotal.Add(ctx, 1, attrs)

	q, err := p.pollQuote(ctx, pair)

	p.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil {
		p.metrics.quoteErrors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "quote failed")
		return domain.PriceQuote{}, err
	}

	span.SetAttributes(
		attribute.String("price", q.Price.String()),
		attribute.String("liquidity", q.Liquidity.String()),
	)
	span.SetStatus(codes.Ok, "quote received")
	return q, nil
}

func (p *Provider) pollQuote(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	base, err := p.tokens.Lookup(p.network, pair.Base)
	if err != nil {
		return domain.PriceQuote{}, apperror.Wrap(err, apperror.CodeInvalidInput, p.name)
	}
	quote, err := p.tokens.Lookup(p.network, pair.Quote)
	if err != nil {
		return domain.PriceQuote{}, apperror.Wrap(err, apperror.CodeInvalidInput, p.name)
	}

	amountIn := base.ToRaw(p.probe)

	var best *QuoteResult
	var bestTier int
	var lastErr error
	for _, tier := range p.feeTiers {
		res, err := p.quoteForFeeTier(ctx, base.Address, quote.Address, amountIn, tier)
		if err != nil {
			lastErr = err
			continue
		}
		if best == nil || res.AmountOut.Cmp(best.AmountOut) > 0 {
			best, bestTier = res, tier
		}
	}
	if best == nil {
		return domain.PriceQuote{}, apperror.New(apperror.CodeFeedPollFailed,
			apperror.WithCause(lastErr),
			apperror.WithContext(fmt.Sprintf("%s: no pool quote for %s", p.name, pair)))
	}

	price := quote.ToDecimal(best.AmountOut).Div(p.probe)

	liquidity := decimal.Zero
	if poolAddr, ok := p.pools(pair.String()); ok {
		raw, err := p.balanceOf(ctx, quote.Address, common.HexToAddress(poolAddr))
		if err != nil {
			return domain.PriceQuote{}, err
		}
		liquidity = quote.ToDecimal(raw)
	} else {
		p.logger.Debug(ctx, "no pool configured, liquidity unknown", "exchange", p.name, "pair", pair.String())
	}

	p.logger.Debug(ctx, "uniswap quote",
		"exchange", p.name,
		"pair", pair.String(),
		"price", price.String(),
		"liquidity", liquidity.String(),
		"fee_tier", bestTier,
	)

	return domain.NewPriceQuote(p.name, p.network, pair, price, liquidity, p.now()), nil
}

// quoteForFeeTier calls QuoterV2.quoteExactInputSingle for a specific fee tier.
func (p *Provider) quoteForFeeTier(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, feeTier int) (*QuoteResult, error) {
	callData, err := p.quoterABI.Pack("quoteExactInputSingle", QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(feeTier)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}

	result, err := p.cb.Execute(func() ([]byte, error) {
		return p.client.CallContract(ctx, ethereum.CallMsg{To: &p.quoter, Data: callData}, nil)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("quoter call failed for fee tier %d", feeTier)))
	}

	outputs, err := p.quoterABI.Unpack("quoteExactInputSingle", result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	if len(outputs) < 4 {
		return nil, fmt.Errorf("unexpected output length: %d", len(outputs))
	}

	return &QuoteResult{
		AmountOut:   outputs[0].(*big.Int),
		GasEstimate: outputs[3].(*big.Int),
	}, nil
}

func (p *Provider) balanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	callData, err := p.erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("failed to encode balanceOf: %w", err)
	}

	result, err := p.cb.Execute(func() ([]byte, error) {
		return p.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("balanceOf "+holder.Hex()))
	}

	outputs, err := p.erc20ABI.Unpack("balanceOf", result)
	if err != nil || len(outputs) != 1 {
		return nil, fmt.Errorf("failed to decode balanceOf: %w", err)
	}
	return outputs[0].(*big.Int), nil
}
