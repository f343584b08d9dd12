package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

// Risk checks, used as rejection labels.
const (
	CheckHalted       = "halted"
	CheckTradeSize    = "max_trade_size"
	CheckDailyVolume  = "max_daily_volume"
	CheckDailyTrades  = "max_daily_trades"
	CheckCooldown     = "cooldown"
	CheckGasPrice     = "max_gas_price"
	CheckBlacklist    = "blacklist"
	CheckWhitelist    = "whitelist"
	CheckConfirmation = "require_confirmation"
)

// RiskConfig is the hard safety envelope.
type RiskConfig struct {
	MaxTradeSize             decimal.Decimal // notional
	MaxDailyVolume           decimal.Decimal
	MaxDailyTrades           int
	Cooldown                 time.Duration
	MaxGasPriceGwei          decimal.Decimal
	NetworkGasCaps           map[string]decimal.Decimal // tighter per-network caps
	Blacklist                []string
	Whitelist                []string
	WhitelistOnly            bool
	RequireConfirmationAbove decimal.Decimal // zero disables
	DailyResetOffset         time.Duration
}

// RiskGuard enforces the envelope independently of the validator. Admit is
// the single serialized admission point; every state change happens under
// its mutex.
type RiskGuard struct {
	cfg       RiskConfig
	blacklist map[string]bool
	whitelist map[string]bool
	logger    logger.LoggerInterface
	now       func() time.Time
	telemetry *telemetry

	mu    sync.Mutex
	state domain.RiskState
}

// NewRiskGuard creates a guard with an empty window.
func NewRiskGuard(cfg RiskConfig, log logger.LoggerInterface) (*RiskGuard, error) {
	return newRiskGuard(cfg, log, time.Now)
}

func newRiskGuard(cfg RiskConfig, log logger.LoggerInterface, now func() time.Time) (*RiskGuard, error) {
	tel, err := newTelemetry()
	if err != nil {
		return nil, err
	}
	fold := func(list []string) map[string]bool {
		m := make(map[string]bool, len(list))
		for _, s := range list {
			m[strings.ToLower(s)] = true
		}
		return m
	}
	return &RiskGuard{
		cfg:       cfg,
		blacklist: fold(cfg.Blacklist),
		whitelist: fold(cfg.Whitelist),
		logger:    log,
		now:       now,
		telemetry: tel,
		state:     domain.NewRiskState(domain.WindowStart(now(), cfg.DailyResetOffset)),
	}, nil
}

// Check evaluates req against the envelope without reserving anything.
func (g *RiskGuard) Check(ctx context.Context, req domain.AdmitRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollWindow(ctx, now)
	check, detail := g.evaluate(req, now)
	if check == "" {
		return nil
	}
	return rejection(check, detail)
}

// Admit checks req and, if it fits, reserves its notional, a trade count,
// its exposure and its route's cooldown in one step.
func (g *RiskGuard) Admit(ctx context.Context, req domain.AdmitRequest) (domain.Admission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollWindow(ctx, now)

	if check, detail := g.evaluate(req, now); check != "" {
		if check == CheckDailyVolume || check == CheckDailyTrades {
			g.halt(ctx, check)
		}
		g.telemetry.riskRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("check", check)))
		return domain.Admission{}, rejection(check, detail)
	}

	key := req.Route.Key()
	s := &g.state
	s.DailyVolume = s.DailyVolume.Add(req.Notional)
	s.DailyTradeCount++
	s.LastTradeAt[key] = now
	s.CooldownUntil[key] = now.Add(g.cfg.Cooldown)
	for _, asset := range req.Route.Assets() {
		s.Exposure[asset] = s.Exposure[asset].Add(req.Notional)
	}
	if s.DailyTradeCount >= g.cfg.MaxDailyTrades || s.DailyVolume.GreaterThanOrEqual(g.cfg.MaxDailyVolume) {
		g.halt(ctx, "daily ceiling reached")
	}

	g.telemetry.admissions.Add(ctx, 1)
	return domain.Admission{
		ID:          uuid.NewString(),
		Key:         key,
		Fingerprint: req.Fingerprint,
		Notional:    req.Notional,
		Assets:      req.Route.Assets(),
		WindowStart: s.WindowStart,
		AdmittedAt:  now,
	}, nil
}

// Settle applies an admitted trade's outcome. Success keeps the notional in
// daily volume and books actual profit. An unresolved broadcast may still
// be mined, so its notional stays reserved. Any other failure replaces the
// reserved notional with the gas actually spent. Trade count never decreases.
func (g *RiskGuard) Settle(ctx context.Context, adm domain.Admission, out domain.Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollWindow(ctx, g.now())
	g.releaseExposure(adm)

	s := &g.state
	sameWindow := adm.WindowStart.Equal(s.WindowStart)

	switch out.Status {
	case domain.StatusSucceeded:
		s.RealizedProfit = s.RealizedProfit.Add(out.ActualProfit)
	default:
		if out.Unresolved {
			break
		}
		if sameWindow {
			s.DailyVolume = s.DailyVolume.Sub(adm.Notional)
		}
		s.DailyVolume = s.DailyVolume.Add(out.GasCost)
		s.RealizedProfit = s.RealizedProfit.Sub(out.GasCost)
	}
	if s.DailyVolume.Sign() < 0 {
		s.DailyVolume = decimal.Zero
	}
}

// Release rolls back a reservation whose trade was never dispatched.
func (g *RiskGuard) Release(ctx context.Context, adm domain.Admission) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollWindow(ctx, g.now())
	g.releaseExposure(adm)

	s := &g.state
	if !adm.WindowStart.Equal(s.WindowStart) {
		return
	}
	s.DailyVolume = s.DailyVolume.Sub(adm.Notional)
	if s.DailyVolume.Sign() < 0 {
		s.DailyVolume = decimal.Zero
	}
	if s.DailyTradeCount > 0 {
		s.DailyTradeCount--
	}
	if t, ok := s.LastTradeAt[adm.Key]; ok && t.Equal(adm.AdmittedAt) {
		delete(s.LastTradeAt, adm.Key)
		delete(s.CooldownUntil, adm.Key)
	}
	if s.DailyTradeCount < g.cfg.MaxDailyTrades && s.DailyVolume.LessThan(g.cfg.MaxDailyVolume) {
		s.HaltedUntil = time.Time{}
	}
}

// Snapshot returns a copy of the current state.
func (g *RiskGuard) Snapshot() domain.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollWindow(context.Background(), g.now())
	return g.state.Clone()
}

func (g *RiskGuard) evaluate(req domain.AdmitRequest, now time.Time) (string, string) {
	s := &g.state
	key := req.Route.Key()

	switch {
	case s.Halted(now):
		return CheckHalted, "admissions halted until " + s.HaltedUntil.Format(time.RFC3339)
	case req.Notional.GreaterThan(g.cfg.MaxTradeSize):
		return CheckTradeSize, fmt.Sprintf("notional %s > %s", req.Notional.StringFixed(2), g.cfg.MaxTradeSize)
	case g.cfg.RequireConfirmationAbove.Sign() > 0 && req.Notional.GreaterThan(g.cfg.RequireConfirmationAbove):
		return CheckConfirmation, fmt.Sprintf("notional %s requires confirmation above %s", req.Notional.StringFixed(2), g.cfg.RequireConfirmationAbove)
	case s.DailyTradeCount+1 > g.cfg.MaxDailyTrades:
		return CheckDailyTrades, fmt.Sprintf("%d trades today", s.DailyTradeCount)
	case s.DailyVolume.Add(req.Notional).GreaterThan(g.cfg.MaxDailyVolume):
		return CheckDailyVolume, fmt.Sprintf("volume %s + %s > %s", s.DailyVolume.StringFixed(2), req.Notional.StringFixed(2), g.cfg.MaxDailyVolume)
	}
	if limit := g.gasCap(req.Route); limit.Sign() > 0 && req.GasPriceGwei.GreaterThan(limit) {
		return CheckGasPrice, fmt.Sprintf("gas %s gwei > %s", req.GasPriceGwei.StringFixed(2), limit)
	}

	if until, ok := s.CooldownUntil[key]; ok && now.Before(until) {
		return CheckCooldown, fmt.Sprintf("%s cooling down until %s", key, until.Format(time.RFC3339))
	}

	for _, c := range req.Contracts {
		c = strings.ToLower(c)
		if g.blacklist[c] {
			return CheckBlacklist, c + " is blacklisted"
		}
		if g.cfg.WhitelistOnly && !g.whitelist[c] {
			return CheckWhitelist, c + " is not whitelisted"
		}
	}
	return "", ""
}

// gasCap is the lowest positive cap among the global limit and the
// route's networks. Zero means unlimited.
func (g *RiskGuard) gasCap(route domain.Route) decimal.Decimal {
	limit := g.cfg.MaxGasPriceGwei
	for _, n := range route.Networks() {
		c, ok := g.cfg.NetworkGasCaps[n]
		if !ok || c.Sign() <= 0 {
			continue
		}
		if limit.Sign() <= 0 || c.LessThan(limit) {
			limit = c
		}
	}
	return limit
}

func (g *RiskGuard) rollWindow(ctx context.Context, now time.Time) {
	start := domain.WindowStart(now, g.cfg.DailyResetOffset)
	if !start.After(g.state.WindowStart) {
		return
	}

	prev := g.state
	next := domain.NewRiskState(start)
	next.LastTradeAt = prev.LastTradeAt
	next.CooldownUntil = prev.CooldownUntil
	next.Exposure = prev.Exposure
	g.state = next

	g.logger.Info(ctx, "risk window reset",
		"window_start", start,
		"previous_volume", prev.DailyVolume.String(),
		"previous_trades", prev.DailyTradeCount,
		"previous_profit", prev.RealizedProfit.String(),
	)
}

func (g *RiskGuard) halt(ctx context.Context, reason string) {
	next := domain.WindowStart(g.now(), g.cfg.DailyResetOffset).Add(24 * time.Hour)
	if g.state.HaltedUntil.Equal(next) {
		return
	}
	g.state.HaltedUntil = next
	g.logger.Warn(ctx, "admissions halted for the rest of the window", "reason", reason, "until", next)
}

func (g *RiskGuard) releaseExposure(adm domain.Admission) {
	for _, asset := range adm.Assets {
		left := g.state.Exposure[asset].Sub(adm.Notional)
		if left.Sign() <= 0 {
			delete(g.state.Exposure, asset)
			continue
		}
		g.state.Exposure[asset] = left
	}
}

func rejection(check, detail string) error {
	return apperror.New(apperror.CodeRiskLimitExceeded,
		apperror.WithContext(check+": "+detail))
}

// RiskCheck extracts the failed check label from a rejection.
func RiskCheck(err error) string {
	if !apperror.HasCode(err, apperror.CodeRiskLimitExceeded) {
		return ""
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return ""
	}
	check, _, _ := strings.Cut(appErr.Context, ":")
	return check
}
