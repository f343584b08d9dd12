package app

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	tracerName = "github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	meterName  = "github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
)

type telemetry struct {
	opportunities  metric.Int64Counter
	verdicts       metric.Int64Counter
	cacheHits      metric.Int64Counter
	decisions      metric.Int64Counter
	riskRejections metric.Int64Counter
	admissions     metric.Int64Counter
	executions     metric.Int64Counter
	attempts       metric.Int64Counter
	profit         metric.Float64UpDownCounter
	gasUsed        metric.Int64Histogram
	executionTime  metric.Float64Histogram
	eventsDropped  metric.Int64Counter
	cycleDuration  metric.Float64Histogram
}

func newTelemetry() (*telemetry, error) {
	meter := otel.Meter(meterName)
	t := &telemetry{}
	var err error

	if t.opportunities, err = meter.Int64Counter("arb_opportunities_detected_total",
		metric.WithDescription("Opportunities produced by the detector"),
		metric.WithUnit("{opportunity}")); err != nil {
		return nil, err
	}
	if t.verdicts, err = meter.Int64Counter("arb_verdicts_total",
		metric.WithDescription("Validator verdicts by outcome and variant"),
		metric.WithUnit("{verdict}")); err != nil {
		return nil, err
	}
	if t.cacheHits, err = meter.Int64Counter("arb_verdict_cache_hits_total",
		metric.WithDescription("Verdicts served from cache"),
		metric.WithUnit("{verdict}")); err != nil {
		return nil, err
	}
	if t.decisions, err = meter.Int64Counter("arb_decisions_total",
		metric.WithDescription("Terminal pipeline decisions by outcome"),
		metric.WithUnit("{decision}")); err != nil {
		return nil, err
	}
	if t.riskRejections, err = meter.Int64Counter("arb_risk_rejections_total",
		metric.WithDescription("Admissions refused by the risk guard, by check"),
		metric.WithUnit("{rejection}")); err != nil {
		return nil, err
	}
	if t.admissions, err = meter.Int64Counter("arb_admissions_total",
		metric.WithDescription("Admissions granted by the risk guard"),
		metric.WithUnit("{admission}")); err != nil {
		return nil, err
	}
	if t.executions, err = meter.Int64Counter("arb_executions_total",
		metric.WithDescription("Terminal executions by status"),
		metric.WithUnit("{execution}")); err != nil {
		return nil, err
	}
	if t.attempts, err = meter.Int64Counter("arb_execution_attempts_total",
		metric.WithDescription("Executor attempts including retries"),
		metric.WithUnit("{attempt}")); err != nil {
		return nil, err
	}
	if t.profit, err = meter.Float64UpDownCounter("arb_realized_profit",
		metric.WithDescription("Realized profit net of gas, quote units"),
		metric.WithUnit("{quote}")); err != nil {
		return nil, err
	}
	if t.gasUsed, err = meter.Int64Histogram("arb_execution_gas_used",
		metric.WithDescription("Gas used per execution"),
		metric.WithUnit("{gas}")); err != nil {
		return nil, err
	}
	if t.executionTime, err = meter.Float64Histogram("arb_execution_duration_seconds",
		metric.WithDescription("Time from dispatch to terminal state"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if t.eventsDropped, err = meter.Int64Counter("arb_events_dropped_total",
		metric.WithDescription("Execution events dropped for slow subscribers"),
		metric.WithUnit("{event}")); err != nil {
		return nil, err
	}
	if t.cycleDuration, err = meter.Float64Histogram("arb_scan_cycle_duration_seconds",
		metric.WithDescription("Detection cycle latency"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return t, nil
}
