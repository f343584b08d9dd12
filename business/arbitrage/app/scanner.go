package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

// Decision outcomes.
const (
	OutcomeRejected     = "rejected"
	OutcomeQuarantined  = "quarantined"
	OutcomeRouteBusy    = "route_busy"
	OutcomeRiskRejected = "risk_rejected"
	OutcomeSaturated    = "saturated"
	OutcomeDispatched   = "dispatched"
	OutcomeApproved     = "approved" // dry run: would have been dispatched
)

// Decision is the terminal pipeline outcome for one opportunity.
type Decision struct {
	Outcome     string   `json:"outcome"`
	Reasons     []string `json:"reasons,omitempty"`
	ExecutionID string   `json:"execution_id,omitempty"`
}

// PendingOpportunity is one entry of the latest cycle's view.
type PendingOpportunity struct {
	Opportunity domain.Opportunity `json:"opportunity"`
	Verdict     domain.Verdict     `json:"verdict"`
	Decision    Decision           `json:"decision"`
}

// ContractResolver lists the exchanges and token addresses a route touches.
type ContractResolver func(route domain.Route) []string

// CycleObserver receives each cycle's view after it is published.
type CycleObserver interface {
	ObserveCycle(ctx context.Context, view []PendingOpportunity)
}

// ScannerConfig controls the detection loop.
type ScannerConfig struct {
	Interval          time.Duration
	PortfolioEnabled  bool
	PortfolioCapacity decimal.Decimal
	DryRun            bool // validate and check risk without admitting or executing
}

// Scanner runs the ordered pipeline detect -> validate -> admit -> dispatch
// on a single goroutine.
type Scanner struct {
	cfg         ScannerConfig
	detector    *Detector
	validator   Validator
	guard       *RiskGuard
	coordinator *Coordinator
	hub         *EventHub
	chain       ChainState
	scorer      Scorer
	bridges     BridgeEstimator
	contracts   ContractResolver
	observers   []CycleObserver
	logger      logger.LoggerInterface

	pending atomic.Pointer[[]PendingOpportunity]

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group

	tracer    trace.Tracer
	telemetry *telemetry
}

// ScannerDeps groups the scanner's collaborators. Bridges, Contracts and
// Observers may be nil.
type ScannerDeps struct {
	Detector    *Detector
	Validator   Validator
	Guard       *RiskGuard
	Coordinator *Coordinator
	Hub         *EventHub
	Chain       ChainState
	Scorer      Scorer
	Bridges     BridgeEstimator
	Contracts   ContractResolver
	Observers   []CycleObserver
}

// NewScanner creates a scanner.
func NewScanner(cfg ScannerConfig, deps ScannerDeps, log logger.LoggerInterface) (*Scanner, error) {
	if cfg.Interval <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("scanner interval must be positive"))
	}
	tel, err := newTelemetry()
	if err != nil {
		return nil, err
	}
	s := &Scanner{
		cfg:         cfg,
		detector:    deps.Detector,
		validator:   deps.Validator,
		guard:       deps.Guard,
		coordinator: deps.Coordinator,
		hub:         deps.Hub,
		chain:       deps.Chain,
		scorer:      deps.Scorer,
		bridges:     deps.Bridges,
		contracts:   deps.Contracts,
		observers:   deps.Observers,
		logger:      log,
		tracer:      otel.Tracer(tracerName),
		telemetry:   tel,
	}
	empty := []PendingOpportunity{}
	s.pending.Store(&empty)
	return s, nil
}

// StartScanning launches the detection loop. Calling it twice is a no-op.
func (s *Scanner) StartScanning(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	s.cancel = cancel
	s.group = g

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.Cycle(ctx)
			}
		}
	})
	s.logger.Info(ctx, "scanner started", "interval", s.cfg.Interval, "dry_run", s.cfg.DryRun)
}

// StopScanning stops the loop and waits for the current cycle. Dispatched
// executions keep running to a terminal state.
func (s *Scanner) StopScanning() {
	s.mu.Lock()
	cancel, g := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	_ = g.Wait()
}

// PendingOpportunities returns the latest cycle's opportunities with their
// verdicts and decisions.
func (s *Scanner) PendingOpportunities() []PendingOpportunity {
	cur := *s.pending.Load()
	out := make([]PendingOpportunity, len(cur))
	for i, p := range cur {
		p.Verdict = p.Verdict.Clone()
		p.Decision.Reasons = append([]string(nil), p.Decision.Reasons...)
		out[i] = p
	}
	return out
}

// Subscribe streams execution events. Slow subscribers miss events.
func (s *Scanner) Subscribe() (<-chan domain.ExecutionEvent, func()) {
	return s.hub.Subscribe()
}

// Cycle runs one detection pass and returns its view.
func (s *Scanner) Cycle(ctx context.Context) []PendingOpportunity {
	ctx, span := s.tracer.Start(ctx, "Scanner.Cycle")
	defer span.End()
	start := time.Now()

	opps := s.detector.Detect(ctx)
	view := make([]PendingOpportunity, 0, len(opps))
	for _, opp := range opps {
		if ctx.Err() != nil {
			break
		}
		vctx := s.validationContext(ctx, opp)
		verdict := s.validator.Validate(ctx, opp, vctx)
		decision := s.decide(ctx, opp, verdict)

		s.telemetry.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", decision.Outcome)))
		s.logger.Info(ctx, "opportunity decided",
			"fingerprint", opp.Fingerprint,
			"route", string(opp.Key()),
			"expected_profit", opp.ExpectedProfit.StringFixed(2),
			"score", verdict.Score.StringFixed(3),
			"variant", verdict.Variant,
			"outcome", decision.Outcome,
			"reasons", decision.Reasons,
		)
		view = append(view, PendingOpportunity{Opportunity: opp, Verdict: verdict, Decision: decision})
	}

	s.pending.Store(&view)
	for _, o := range s.observers {
		o.ObserveCycle(ctx, view)
	}
	span.SetAttributes(attribute.Int("opportunities", len(view)))
	s.telemetry.cycleDuration.Record(ctx, time.Since(start).Seconds())
	return view
}

func (s *Scanner) decide(ctx context.Context, opp domain.Opportunity, verdict domain.Verdict) Decision {
	if !verdict.Passed {
		return Decision{Outcome: OutcomeRejected, Reasons: verdict.ReasonStrings()}
	}
	if s.coordinator != nil && s.coordinator.Quarantined(opp.Fingerprint) {
		return Decision{Outcome: OutcomeQuarantined}
	}
	if s.coordinator != nil && s.coordinator.Busy(opp.Key()) {
		return Decision{Outcome: OutcomeRouteBusy, Reasons: []string{string(opp.Key()) + " has an execution in flight"}}
	}

	req := domain.AdmitRequest{
		Route:        opp.Route,
		Fingerprint:  opp.Fingerprint,
		Notional:     verdict.ApprovedAmount.Mul(opp.BuyPrice),
		GasPriceGwei: opp.GasPriceGwei,
		Contracts:    s.contractsFor(opp.Route),
	}

	if s.cfg.DryRun || s.coordinator == nil {
		if err := s.guard.Check(ctx, req); err != nil {
			return Decision{Outcome: OutcomeRiskRejected, Reasons: []string{riskReason(err)}}
		}
		return Decision{Outcome: OutcomeApproved}
	}

	adm, err := s.guard.Admit(ctx, req)
	if err != nil {
		return Decision{Outcome: OutcomeRiskRejected, Reasons: []string{riskReason(err)}}
	}

	rec, err := s.coordinator.Dispatch(ctx, opp, verdict, adm)
	switch {
	case apperror.HasCode(err, apperror.CodeRouteBusy):
		return Decision{Outcome: OutcomeRouteBusy, Reasons: []string{err.Error()}}
	case err != nil:
		return Decision{Outcome: OutcomeSaturated, Reasons: []string{err.Error()}}
	}
	return Decision{Outcome: OutcomeDispatched, ExecutionID: rec.ID}
}

// validationContext gathers the per-call inputs the validator reads. A
// failed read is flagged missing so the validator rejects instead of
// treating the input as zero.
func (s *Scanner) validationContext(ctx context.Context, opp domain.Opportunity) domain.ValidationContext {
	var vctx domain.ValidationContext

	if s.chain != nil {
		if c, err := s.chain.Congestion(ctx, opp.Networks()...); err != nil {
			s.logger.Warn(ctx, "congestion unavailable", "route", string(opp.Key()), "error", err)
			vctx.CongestionMissing = true
		} else {
			vctx.Congestion = decimal.NewFromFloat(c.Level)
		}
	}

	if s.scorer != nil {
		if sc, err := s.scorer.Score(ctx, opp.Route); err != nil {
			s.logger.Warn(ctx, "scorer unavailable", "route", string(opp.Key()), "error", err)
			vctx.ScoreMissing = true
		} else {
			vctx.SuccessRate = decimal.NewFromFloat(sc.SuccessRate)
			vctx.FrontRunRisk = decimal.NewFromFloat(sc.FrontRunRisk)
			vctx.ModelScore = decimal.NewFromFloat(sc.ModelScore)
		}
	}

	if opp.CrossChain() && s.bridges != nil {
		if bq, err := s.bridges.Quote(ctx, opp.SourceNetwork, opp.TargetNetwork); err == nil {
			vctx.Bridge = &bq
		}
	}

	if s.cfg.PortfolioEnabled {
		vctx.Exposure = s.guard.Snapshot().ExposureFractions(s.cfg.PortfolioCapacity)
	}
	return vctx
}

func (s *Scanner) contractsFor(route domain.Route) []string {
	if s.contracts != nil {
		return s.contracts(route)
	}
	return []string{route.SourceExchange, route.TargetExchange}
}

func riskReason(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Context != "" {
		return appErr.Context
	}
	return err.Error()
}
