// Package console renders scanner cycles and execution events on a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
)

var (
	_ app.EventPublisher = (*Reporter)(nil)
	_ app.CycleObserver  = (*Reporter)(nil)
)

// Reporter prints each cycle's opportunity table and every execution event.
type Reporter struct {
	mu      sync.Mutex
	out     io.Writer
	maxRows int
	cycles  uint64
	now     func() time.Time
}

// NewReporter writes to stdout. maxRows bounds the table; zero means 10.
func NewReporter(maxRows int) *Reporter {
	return newReporter(os.Stdout, maxRows)
}

func newReporter(out io.Writer, maxRows int) *Reporter {
	if maxRows <= 0 {
		maxRows = 10
	}
	return &Reporter{out: out, maxRows: maxRows, now: time.Now}
}

// ObserveCycle prints the opportunities a cycle produced. Empty cycles only
// advance the counter.
func (r *Reporter) ObserveCycle(_ context.Context, view []app.PendingOpportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cycles++
	if len(view) == 0 {
		return
	}

	rows := view
	if len(rows) > r.maxRows {
		rows = rows[:r.maxRows]
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("CYCLE #%d  %s  %d opportunities",
		r.cycles, r.now().Format("15:04:05"), len(view))))
	b.WriteString("\n")
	b.WriteString("┌──────────────┬──────────────────────────────┬──────────┬──────────┬───────┬───────────────┐\n")
	b.WriteString("│ Pair         │ Route                        │   Amount │   Profit │ Score │ Outcome       │\n")
	b.WriteString("├──────────────┼──────────────────────────────┼──────────┼──────────┼───────┼───────────────┤\n")
	for _, p := range rows {
		opp := p.Opportunity
		route := opp.SourceExchange + " -> " + opp.TargetExchange
		if opp.CrossChain() {
			route = opp.SourceNetwork + "/" + opp.SourceExchange + " -> " + opp.TargetNetwork + "/" + opp.TargetExchange
		}
		fmt.Fprintf(&b, "│ %-12s │ %-28s │ %8s │ %8s │ %5s │ %s │\n",
			truncate(opp.Pair.String(), 12),
			truncate(route, 28),
			opp.AmountIn.StringFixed(4),
			"$"+opp.ExpectedProfit.StringFixed(2),
			p.Verdict.Score.StringFixed(2),
			outcomeStyle(p.Decision.Outcome).Render(fmt.Sprintf("%-13s", p.Decision.Outcome)),
		)
	}
	b.WriteString("└──────────────┴──────────────────────────────┴──────────┴──────────┴───────┴───────────────┘\n")

	for _, p := range rows {
		if len(p.Decision.Reasons) == 0 {
			continue
		}
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s: %s", p.Opportunity.Key(), strings.Join(p.Decision.Reasons, "; "))))
		b.WriteString("\n")
	}

	fmt.Fprint(r.out, b.String())
}

// Publish prints one execution event line.
func (r *Reporter) Publish(_ context.Context, ev domain.ExecutionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := ev.Record
	line := fmt.Sprintf("[%s] %-22s %s %s -> %s id=%s",
		ev.PublishedAt.Format("15:04:05"), ev.Type, ev.Pair, ev.Source, ev.Target, rec.ID)

	switch rec.Status {
	case domain.StatusSucceeded:
		line += " profit=" + signed(rec.ActualProfit)
		if rec.TxHash != "" {
			line += " tx=" + rec.TxHash
		}
	case domain.StatusFailed, domain.StatusRolledBack:
		line += " gas=" + rec.GasCost.StringFixed(2)
		if rec.Error != "" {
			line += " error=" + rec.Error
		}
	default:
		line += " expected=" + ev.Expected.StringFixed(2)
	}

	fmt.Fprintln(r.out, statusStyle(rec.Status).Render(line))
	return nil
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case app.OutcomeDispatched, app.OutcomeApproved:
		return positiveStyle
	case app.OutcomeRejected, app.OutcomeRiskRejected:
		return negativeStyle
	default:
		return warningStyle
	}
}

func statusStyle(s domain.ExecutionStatus) lipgloss.Style {
	switch s {
	case domain.StatusSucceeded:
		return positiveStyle
	case domain.StatusFailed:
		return negativeStyle
	case domain.StatusRolledBack:
		return warningStyle
	default:
		return mutedStyle
	}
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "+$" + d.StringFixed(2)
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
