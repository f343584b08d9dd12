// Package aggregator implements an ExchangeFeed over a DEX aggregator's
// HTTP price API.
package aggregator

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arbitrage/business/pricing/app"
	"github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arbitrage/internal/config"
	"github.com/fd1az/flashloan-arbitrage/internal/httpclient"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
	"github.com/fd1az/flashloan-arbitrage/internal/ratelimit"
)

const (
	tracerName = "aggregator"

	quoteEndpoint = "/v1/quote"
	httpTimeout   = 5 * time.Second
)

var _ app.ExchangeFeed = (*Feed)(nil)

// QuoteResponse is the aggregator's price payload. Decimals travel as
// strings to avoid float rounding.
type QuoteResponse struct {
	Base      string `json:"base"`
	Quote     string `json:"quote"`
	Price     string `json:"price"`
	Liquidity string `json:"liquidity"`
	Timestamp int64  `json:"timestamp"` // unix millis, 0 when absent
}

// Feed polls one aggregator endpoint.
type Feed struct {
	name    string
	network string
	client  *httpclient.Client
	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[*QuoteResponse]
	logger  logger.LoggerInterface
	tracer  trace.Tracer
	now     func() time.Time
}

// NewFeed creates an aggregator feed for one exchange config entry.
func NewFeed(cfg config.ExchangeConfig, log logger.LoggerInterface) (*Feed, error) {
	opts := []httpclient.Option{
		httpclient.WithProviderName(cfg.Name),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithTimeout(httpTimeout),
	}
	if cfg.APIKey != "" {
		opts = append(opts, httpclient.WithHeader("X-API-Key", cfg.APIKey))
	}

	client, err := httpclient.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Feed{
		name:    cfg.Name,
		network: cfg.Network,
		client:  client,
		limiter: ratelimit.New(cfg.RateLimitPerMinute),
		cb:      circuitbreaker.New[*QuoteResponse](circuitbreaker.DefaultConfig("aggregator-" + cfg.Name)),
		logger:  log,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}, nil
}

func (f *Feed) Name() string    { return f.name }
func (f *Feed) Network() string { return f.network }

// PollQuote fetches the current price and depth for pair.
func (f *Feed) PollQuote(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	ctx, span := f.tracer.Start(ctx, "aggregator.poll_quote",
		trace.WithAttributes(
			attribute.String("exchange", f.name),
			attribute.String("pair", pair.String()),
		),
	)
	defer span.End()

	if err := f.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return domain.PriceQuote{}, err
	}

	resp, err := f.cb.Execute(func() (*QuoteResponse, error) {
		var out QuoteResponse
		query := url.Values{
			"base":    {pair.Base},
			"quote":   {pair.Quote},
			"network": {f.network},
		}
		if err := f.client.GetJSON(ctx, quoteEndpoint, query, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quote failed")
		return domain.PriceQuote{}, apperror.Wrap(err, apperror.CodeFeedPollFailed, f.name)
	}

	q, err := f.toQuote(pair, resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid quote")
		return domain.PriceQuote{}, err
	}

	span.SetAttributes(attribute.String("price", q.Price.String()))
	span.SetStatus(codes.Ok, "quote received")

	f.logger.Debug(ctx, "aggregator quote",
		"exchange", f.name,
		"pair", pair.String(),
		"price", q.Price.String(),
		"liquidity", q.Liquidity.String())

	return q, nil
}

func (f *Feed) toQuote(pair domain.Pair, resp *QuoteResponse) (domain.PriceQuote, error) {
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return domain.PriceQuote{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s: price %q", f.name, resp.Price)))
	}

	liquidity := decimal.Zero
	if resp.Liquidity != "" {
		liquidity, err = decimal.NewFromString(resp.Liquidity)
		if err != nil {
			return domain.PriceQuote{}, apperror.New(apperror.CodeInvalidQuote,
				apperror.WithCause(err),
				apperror.WithContext(fmt.Sprintf("%s: liquidity %q", f.name, resp.Liquidity)))
		}
	}

	at := f.now()
	if resp.Timestamp > 0 {
		at = time.UnixMilli(resp.Timestamp)
	}

	q := domain.NewPriceQuote(f.name, f.network, pair, price, liquidity, at)
	if err := q.Validate(); err != nil {
		return domain.PriceQuote{}, err
	}
	return q, nil
}
