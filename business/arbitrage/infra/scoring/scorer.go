// Package scoring adapts the external route scoring service.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/cache"
	"github.com/fd1az/flashloan-arbitrage/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arbitrage/internal/config"
	"github.com/fd1az/flashloan-arbitrage/internal/httpclient"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

const (
	tracerName = "scoring"

	scoreEndpoint  = "/v1/score"
	defaultTimeout = 2 * time.Second
)

var (
	_ app.Scorer = Static{}
	_ app.Scorer = (*HTTPScorer)(nil)
)

// Static returns the same score for every route.
type Static app.Score

// Score implements app.Scorer.
func (s Static) Score(context.Context, domain.Route) (app.Score, error) {
	return app.Score(s), nil
}

// Defaults builds the fallback score from config.
func Defaults(cfg config.ScorerConfig) Static {
	return Static{
		Confidence:   cfg.DefaultConfidence,
		SuccessRate:  cfg.DefaultSuccessRate,
		FrontRunRisk: cfg.DefaultFrontRunRisk,
		ModelScore:   cfg.DefaultModelScore,
	}
}

// ScoreRequest is the route sent to the scoring service.
type ScoreRequest struct {
	Pair           string `json:"pair"`
	SourceExchange string `json:"source_exchange"`
	TargetExchange string `json:"target_exchange"`
	SourceNetwork  string `json:"source_network"`
	TargetNetwork  string `json:"target_network"`
}

// HTTPScorer queries the scoring service, caches answers per route and
// falls back to static defaults while the service is failing.
type HTTPScorer struct {
	client   *httpclient.Client
	cb       *circuitbreaker.CircuitBreaker[app.Score]
	cache    *cache.Cache[domain.RouteKey, app.Score]
	ttl      time.Duration
	fallback Static
	logger   logger.LoggerInterface
	tracer   trace.Tracer
}

// NewHTTPScorer creates a scorer for cfg.URL.
func NewHTTPScorer(cfg config.ScorerConfig, log logger.LoggerInterface) (*HTTPScorer, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client, err := httpclient.New(
		httpclient.WithProviderName("scorer"),
		httpclient.WithBaseURL(cfg.URL),
		httpclient.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	ttl := cfg.CacheTTL
	cleanup := ttl
	if cleanup <= 0 {
		cleanup = time.Minute
	}

	return &HTTPScorer{
		client:   client,
		cb:       circuitbreaker.New[app.Score](circuitbreaker.DefaultConfig("scorer")),
		cache:    cache.New[domain.RouteKey, app.Score](cleanup),
		ttl:      ttl,
		fallback: Defaults(cfg),
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Score implements app.Scorer. Upstream failures degrade to the fallback
// score and are not returned.
func (s *HTTPScorer) Score(ctx context.Context, route domain.Route) (app.Score, error) {
	key := route.Key()
	if sc, ok := s.cache.Get(ctx, key); ok {
		return sc, nil
	}

	ctx, span := s.tracer.Start(ctx, "scoring.score",
		trace.WithAttributes(attribute.String("route", string(key))),
	)
	defer span.End()

	sc, err := s.cb.Execute(func() (app.Score, error) {
		var out app.Score
		req := ScoreRequest{
			Pair:           route.Pair.String(),
			SourceExchange: route.SourceExchange,
			TargetExchange: route.TargetExchange,
			SourceNetwork:  route.SourceNetwork,
			TargetNetwork:  route.TargetNetwork,
		}
		if err := s.client.PostJSON(ctx, scoreEndpoint, req, &out); err != nil {
			return app.Score{}, err
		}
		return out, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "score failed")
		s.logger.Warn(ctx, "scorer degraded to defaults",
			"route", string(key),
			"code", string(apperror.GetCode(err)),
			"error", err)
		return app.Score(s.fallback), nil
	}

	sc = clamp(sc)
	if s.ttl > 0 {
		s.cache.Set(ctx, key, sc, s.ttl)
	}
	span.SetStatus(codes.Ok, "scored")
	return sc, nil
}

// Close stops the cache janitor.
func (s *HTTPScorer) Close() {
	s.cache.Close()
}

func clamp(sc app.Score) app.Score {
	unit := func(v float64) float64 {
		if math.IsNaN(v) {
			return 0
		}
		return math.Max(0, math.Min(1, v))
	}
	return app.Score{
		Confidence:   unit(sc.Confidence),
		SuccessRate:  unit(sc.SuccessRate),
		FrontRunRisk: unit(sc.FrontRunRisk),
		ModelScore:   unit(sc.ModelScore),
	}
}
