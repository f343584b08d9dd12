package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

const (
	tracerName = "github.com/fd1az/flashloan-arbitrage/business/pricing/app"
	meterName  = "github.com/fd1az/flashloan-arbitrage/business/pricing/app"
)

// CollectorConfig controls polling cadence and staleness.
type CollectorConfig struct {
	PollInterval           time.Duration
	PollTimeout            time.Duration
	StaleAfter             time.Duration
	MaxConsecutiveFailures int
}

// slot holds the latest quote for one (feed, pair). The poller is the
// only writer; readers load the pointer without locking.
type slot struct {
	feed ExchangeFeed
	pair domain.Pair

	latest      atomic.Pointer[domain.PriceQuote]
	lastErr     atomic.Pointer[string]
	lastSuccess atomic.Int64 // unix nanos
	failures    atomic.Int64
	down        atomic.Bool
}

type collectorMetrics struct {
	quotes      metric.Int64Counter
	failures    metric.Int64Counter
	pollLatency metric.Float64Histogram
	feedsDown   metric.Int64UpDownCounter
}

// Collector polls every (feed, pair) on its own goroutine and keeps the
// latest quote per slot.
type Collector struct {
	cfg      CollectorConfig
	slots    []*slot
	recorder QuoteRecorder
	logger   logger.LoggerInterface
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group

	tracer  trace.Tracer
	metrics *collectorMetrics
}

// NewCollector creates a slot for every feed × pair. recorder may be nil.
func NewCollector(cfg CollectorConfig, feeds []ExchangeFeed, pairs []domain.Pair, recorder QuoteRecorder, log logger.LoggerInterface) (*Collector, error) {
	if cfg.PollInterval <= 0 || cfg.PollTimeout <= 0 || cfg.StaleAfter <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("collector intervals must be > 0"))
	}

	c := &Collector{
		cfg:      cfg,
		recorder: recorder,
		logger:   log,
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
	}
	for _, f := range feeds {
		for _, p := range pairs {
			c.slots = append(c.slots, &slot{feed: f, pair: p})
		}
	}

	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Collector) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &collectorMetrics{}

	c.metrics.quotes, err = meter.Int64Counter(
		"price_quotes_total",
		metric.WithDescription("Successful price polls"),
		metric.WithUnit("{quote}"),
	)
	if err != nil {
		return err
	}

	c.metrics.failures, err = meter.Int64Counter(
		"price_poll_failures_total",
		metric.WithDescription("Failed or timed out price polls"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return err
	}

	c.metrics.pollLatency, err = meter.Float64Histogram(
		"price_poll_latency_ms",
		metric.WithDescription("Price poll latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	c.metrics.feedsDown, err = meter.Int64UpDownCounter(
		"price_feeds_down",
		metric.WithDescription("Feeds past the consecutive failure limit"),
		metric.WithUnit("{feed}"),
	)
	return err
}

// Start launches one poller per slot. Calling Start twice is a no-op.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	c.cancel = cancel
	c.group = g

	for _, s := range c.slots {
		g.Go(func() error {
			c.run(ctx, s)
			return nil
		})
	}

	c.logger.Info(ctx, "price collector started", "slots", len(c.slots), "interval", c.cfg.PollInterval)
}

// Stop cancels all pollers and waits for them to exit.
func (c *Collector) Stop() {
	c.mu.Lock()
	cancel, g := c.cancel, c.group
	c.cancel, c.group = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	g.Wait()
}

func (c *Collector) run(ctx context.Context, s *slot) {
	c.poll(ctx, s)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx, s)
		}
	}
}

// PollAll polls every slot once, concurrently, and waits.
func (c *Collector) PollAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range c.slots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.poll(ctx, s)
		}()
	}
	wg.Wait()
}

func (c *Collector) poll(ctx context.Context, s *slot) {
	attrs := metric.WithAttributes(
		attribute.String("exchange", s.feed.Name()),
		attribute.String("pair", s.pair.String()),
	)

	ctx, span := c.tracer.Start(ctx, "pricing.poll",
		trace.WithAttributes(
			attribute.String("exchange", s.feed.Name()),
			attribute.String("pair", s.pair.String()),
		))
	defer span.End()

	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	start := time.Now()
	q, err := s.feed.PollQuote(pollCtx, s.pair)
	c.metrics.pollLatency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	if err == nil {
		if q.ObservedAt.IsZero() {
			q.ObservedAt = c.now()
		}
		err = q.Validate()
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "poll failed")
		c.metrics.failures.Add(ctx, 1, attrs)
		c.onFailure(ctx, s, err)
		return
	}

	q.Stale = false
	q.PairSymbol = s.pair.String()
	s.latest.Store(&q)
	s.lastSuccess.Store(c.now().UnixNano())
	s.failures.Store(0)
	if s.down.CompareAndSwap(true, false) {
		c.metrics.feedsDown.Add(ctx, -1)
		c.logger.Info(ctx, "price feed recovered", "exchange", s.feed.Name(), "pair", s.pair.String())
	}
	c.metrics.quotes.Add(ctx, 1, attrs)
	span.SetStatus(codes.Ok, "polled")

	if c.recorder != nil {
		if err := c.recorder.RecordQuote(ctx, q); err != nil {
			c.logger.Warn(ctx, "record quote failed", "exchange", s.feed.Name(), "error", err)
		}
	}
}

// onFailure keeps the last good quote but flags it stale.
func (c *Collector) onFailure(ctx context.Context, s *slot, err error) {
	msg := err.Error()
	s.lastErr.Store(&msg)
	n := s.failures.Add(1)

	if prev := s.latest.Load(); prev != nil && !prev.Stale {
		stale := prev.AsStale()
		s.latest.Store(&stale)
	}

	c.logger.Debug(ctx, "price poll failed",
		"exchange", s.feed.Name(),
		"pair", s.pair.String(),
		"consecutive_failures", n,
		"error", err)

	if c.cfg.MaxConsecutiveFailures > 0 && n >= int64(c.cfg.MaxConsecutiveFailures) && s.down.CompareAndSwap(false, true) {
		c.metrics.feedsDown.Add(ctx, 1)
		c.logger.Warn(ctx, "price feed down",
			"exchange", s.feed.Name(),
			"pair", s.pair.String(),
			"consecutive_failures", n,
			"error", err)
	}
}

// Snapshot returns the quotes for pair no older than StaleAfter, sorted by
// exchange. A quote kept after a failed poll is served until it expires.
func (c *Collector) Snapshot(pair domain.Pair) []domain.PriceQuote {
	now := c.now()
	var out []domain.PriceQuote
	for _, s := range c.slots {
		if s.pair != pair {
			continue
		}
		if q := s.latest.Load(); q != nil && q.Fresh(now, c.cfg.StaleAfter) {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out
}

// Pairs returns the monitored pairs in configuration order.
func (c *Collector) Pairs() []domain.Pair {
	seen := make(map[domain.Pair]bool)
	var out []domain.Pair
	for _, s := range c.slots {
		if !seen[s.pair] {
			seen[s.pair] = true
			out = append(out, s.pair)
		}
	}
	return out
}

// LatestPrice returns the most recent unexpired price for pair on network.
func (c *Collector) LatestPrice(network string, pair domain.Pair) (domain.PriceQuote, bool) {
	var best *domain.PriceQuote
	for _, q := range c.Snapshot(pair) {
		if q.Network != network {
			continue
		}
		if best == nil || q.ObservedAt.After(best.ObservedAt) {
			q := q
			best = &q
		}
	}
	if best == nil {
		return domain.PriceQuote{}, false
	}
	return *best, true
}

// Statuses reports every slot, sorted by exchange then pair.
func (c *Collector) Statuses() []domain.FeedStatus {
	out := make([]domain.FeedStatus, 0, len(c.slots))
	for _, s := range c.slots {
		st := domain.FeedStatus{
			Exchange:            s.feed.Name(),
			Network:             s.feed.Network(),
			Pair:                s.pair.String(),
			ConsecutiveFailures: s.failures.Load(),
			Down:                s.down.Load(),
		}
		if ns := s.lastSuccess.Load(); ns > 0 {
			st.LastSuccess = time.Unix(0, ns)
		}
		if e := s.lastErr.Load(); e != nil {
			st.LastError = *e
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exchange != out[j].Exchange {
			return out[i].Exchange < out[j].Exchange
		}
		return out[i].Pair < out[j].Pair
	})
	return out
}

// Healthy fails only when every feed is down.
func (c *Collector) Healthy(context.Context) error {
	if len(c.slots) == 0 {
		return apperror.New(apperror.CodeServiceUnavailable, apperror.WithContext("no price feeds configured"))
	}
	for _, s := range c.slots {
		if !s.down.Load() {
			return nil
		}
	}
	return apperror.New(apperror.CodeServiceUnavailable, apperror.WithContext("all price feeds are down"))
}
