package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

// CoordinatorConfig controls execution concurrency and retries.
type CoordinatorConfig struct {
	MaxConcurrent       int
	ConfirmTimeout      time.Duration
	MaxAttempts         int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	QuarantineWindow    time.Duration
	ReportRollbacks     bool
}

// Coordinator drives admitted opportunities through execution with at
// most one in-flight record per route key and a bounded worker pool.
type Coordinator struct {
	cfg        CoordinatorConfig
	executor   FlashLoanExecutor
	guard      *RiskGuard
	store      ExecutionStore
	publishers []EventPublisher
	logger     logger.LoggerInterface
	now        func() time.Time
	sleep      func(time.Duration)

	locks *KeyLock
	sem   chan struct{}
	wg    sync.WaitGroup

	qmu        sync.Mutex
	quarantine map[string]time.Time

	tracer    trace.Tracer
	telemetry *telemetry
}

// NewCoordinator creates a coordinator. store may be nil.
func NewCoordinator(cfg CoordinatorConfig, executor FlashLoanExecutor, guard *RiskGuard, store ExecutionStore, log logger.LoggerInterface, publishers ...EventPublisher) (*Coordinator, error) {
	if cfg.MaxConcurrent < 1 || cfg.MaxAttempts < 1 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("coordinator requires max_concurrent and max_attempts >= 1"))
	}
	tel, err := newTelemetry()
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		cfg:        cfg,
		executor:   executor,
		guard:      guard,
		store:      store,
		publishers: publishers,
		logger:     log,
		now:        time.Now,
		sleep:      time.Sleep,
		locks:      NewKeyLock(),
		sem:        make(chan struct{}, cfg.MaxConcurrent),
		quarantine: make(map[string]time.Time),
		tracer:     otel.Tracer(tracerName),
		telemetry:  tel,
	}, nil
}

// Quarantined reports whether fingerprint is barred after exhausting retries.
func (c *Coordinator) Quarantined(fingerprint string) bool {
	c.qmu.Lock()
	defer c.qmu.Unlock()

	until, ok := c.quarantine[fingerprint]
	if !ok {
		return false
	}
	if !c.now().Before(until) {
		delete(c.quarantine, fingerprint)
		return false
	}
	return true
}

// Busy reports whether key has a record in Pending or Executing.
func (c *Coordinator) Busy(key domain.RouteKey) bool {
	_, busy := c.locks.Holder(key)
	return busy
}

// InFlight returns the number of records in Pending or Executing.
func (c *Coordinator) InFlight() int {
	return c.locks.Len()
}

// Dispatch takes the route lock and a worker slot, then executes opp in the
// background. On a busy route or a full pool the admission is released and
// the opportunity is dropped. Execution outlives ctx cancellation.
func (c *Coordinator) Dispatch(ctx context.Context, opp domain.Opportunity, verdict domain.Verdict, adm domain.Admission) (domain.ExecutionRecord, error) {
	id := uuid.NewString()
	key := opp.Key()

	if !c.locks.TryLock(key, id) {
		c.guard.Release(ctx, adm)
		return domain.ExecutionRecord{}, apperror.New(apperror.CodeRouteBusy, apperror.WithContext(string(key)))
	}

	select {
	case c.sem <- struct{}{}:
	default:
		c.locks.Unlock(key, id)
		c.guard.Release(ctx, adm)
		return domain.ExecutionRecord{}, apperror.New(apperror.CodeExecutorSaturated, apperror.WithContext(string(key)))
	}

	rec := domain.NewExecutionRecord(id, opp, verdict.ApprovedAmount, adm.Notional, c.now())
	c.save(ctx, *rec)

	c.wg.Add(1)
	go c.run(context.WithoutCancel(ctx), rec, opp, adm)

	return *rec, nil
}

// Wait blocks until every dispatched execution is terminal.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) run(ctx context.Context, rec *domain.ExecutionRecord, opp domain.Opportunity, adm domain.Admission) {
	defer c.wg.Done()
	defer func() { <-c.sem }()
	defer c.locks.Unlock(rec.RouteKey, rec.ID)

	ctx, span := c.tracer.Start(ctx, "Coordinator.Execute",
		trace.WithAttributes(
			attribute.String("execution.id", rec.ID),
			attribute.String("route", string(rec.RouteKey)),
			attribute.String("amount_in", rec.AmountIn.String()),
		))
	defer span.End()

	start := c.now()
	if err := rec.Transition(domain.StatusExecuting, start); err != nil {
		c.logger.Error(ctx, "execution state", "id", rec.ID, "error", err)
		return
	}
	c.save(ctx, *rec)
	c.publish(ctx, *rec, opp)

	outcome := c.execute(ctx, rec, opp)
	c.guard.Settle(ctx, adm, outcome)

	c.save(ctx, *rec)
	c.publish(ctx, *rec, opp)

	attrs := metric.WithAttributes(attribute.String("status", string(rec.Status)))
	c.telemetry.executions.Add(ctx, 1, attrs)
	c.telemetry.executionTime.Record(ctx, c.now().Sub(start).Seconds(), attrs)
	if rec.GasUsed > 0 {
		c.telemetry.gasUsed.Record(ctx, int64(rec.GasUsed), attrs)
	}
	c.telemetry.profit.Add(ctx, outcome.ActualProfit.InexactFloat64())

	span.SetAttributes(attribute.String("status", string(rec.Status)), attribute.Int("attempts", rec.Attempts))
	if rec.Status != domain.StatusSucceeded {
		span.SetStatus(codes.Error, rec.Error)
		c.logger.Warn(ctx, "execution failed",
			"id", rec.ID, "route", string(rec.RouteKey), "status", string(rec.Status),
			"attempts", rec.Attempts, "tx", rec.TxHash, "error", rec.Error)
		return
	}
	c.logger.Info(ctx, "execution succeeded",
		"id", rec.ID, "route", string(rec.RouteKey), "tx", rec.TxHash,
		"profit", rec.ActualProfit.String(), "expected", opp.ExpectedProfit.String(), "gas_used", rec.GasUsed)
}

// execute runs attempts until a terminal state and returns the outcome for
// the risk guard. At most one transaction is broadcast per record: once the
// executor reports a hash, later attempts only wait for its receipt.
func (c *Coordinator) execute(ctx context.Context, rec *domain.ExecutionRecord, opp domain.Opportunity) domain.Outcome {
	backoff := c.cfg.RetryInitialBackoff
	for {
		rec.Attempts++
		c.telemetry.attempts.Add(ctx, 1)

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
		var (
			res domain.ExecutionResult
			err error
		)
		if rec.TxHash == "" {
			res, err = c.executor.Execute(attemptCtx, opp, rec.AmountIn)
		} else {
			res, err = c.executor.Await(attemptCtx, opp, rec.TxHash)
		}
		cancel()

		if rec.TxHash == "" && res.TxHash != "" {
			rec.TxHash = res.TxHash
		}
		rec.GasUsed = res.GasUsed
		rec.GasCost = res.GasCost

		switch {
		case err == nil && !res.Reverted:
			rec.ActualProfit = res.ActualProfit
			rec.Error = ""
			c.finish(rec, domain.StatusSucceeded)
			return domain.Outcome{Status: rec.Status, Confirmed: true, ActualProfit: res.ActualProfit, GasCost: res.GasCost}

		case err == nil || apperror.HasCode(err, apperror.CodeExecutionReverted):
			// Confirmed revert: the opportunity is gone, retrying only burns gas.
			status := domain.StatusFailed
			if c.cfg.ReportRollbacks && res.NoSideEffects {
				status = domain.StatusRolledBack
			}
			rec.Error = "transaction reverted"
			if err != nil {
				rec.Error = err.Error()
			}
			rec.ActualProfit = res.GasCost.Neg()
			c.finish(rec, status)
			return domain.Outcome{Status: rec.Status, Confirmed: true, ActualProfit: rec.ActualProfit, GasCost: res.GasCost}
		}

		rec.Error = err.Error()
		retryable := apperror.IsRetryable(err)
		if !retryable || rec.Attempts >= c.cfg.MaxAttempts {
			if retryable {
				c.quarantineFingerprint(ctx, rec.Fingerprint)
			}
			// A timed-out broadcast has no receipt yet and may still be mined.
			unresolved := rec.TxHash != "" && apperror.HasCode(err, apperror.CodeExecutionTimeout)
			if unresolved {
				rec.Error = "transaction " + rec.TxHash + " unresolved: " + err.Error()
			}
			rec.ActualProfit = res.GasCost.Neg()
			c.finish(rec, domain.StatusFailed)
			return domain.Outcome{Status: rec.Status, Unresolved: unresolved, ActualProfit: rec.ActualProfit, GasCost: res.GasCost}
		}

		c.logger.Warn(ctx, "execution attempt failed, retrying",
			"id", rec.ID, "attempt", rec.Attempts, "tx", rec.TxHash, "backoff", backoff, "error", err)
		c.sleep(backoff)
		backoff = nextBackoff(backoff, c.cfg.RetryMaxBackoff)
	}
}

func (c *Coordinator) finish(rec *domain.ExecutionRecord, status domain.ExecutionStatus) {
	if err := rec.Transition(status, c.now()); err != nil {
		c.logger.Error(context.Background(), "execution state", "id", rec.ID, "error", err)
	}
}

func (c *Coordinator) quarantineFingerprint(ctx context.Context, fingerprint string) {
	if c.cfg.QuarantineWindow <= 0 {
		return
	}
	until := c.now().Add(c.cfg.QuarantineWindow)

	c.qmu.Lock()
	c.quarantine[fingerprint] = until
	c.qmu.Unlock()

	c.logger.Warn(ctx, "fingerprint quarantined", "fingerprint", fingerprint, "until", until)
}

func (c *Coordinator) save(ctx context.Context, rec domain.ExecutionRecord) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveExecution(ctx, rec); err != nil {
		c.logger.Error(ctx, "failed to persist execution", "id", rec.ID, "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, rec domain.ExecutionRecord, opp domain.Opportunity) {
	ev := domain.NewExecutionEvent(rec, opp, c.now())
	for _, p := range c.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			c.logger.Warn(ctx, "failed to publish execution event", "type", ev.Type, "error", err)
		}
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if limit > 0 && next > limit {
		return limit
	}
	return next
}
