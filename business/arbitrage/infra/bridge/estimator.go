// Package bridge quotes cross-chain transfers from configured estimates.
package bridge

import (
	"context"
	"strings"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/config"
)

var _ app.BridgeEstimator = (*Estimator)(nil)

type lane struct{ from, to string }

// Estimator serves static bridge quotes. A lane configured in one
// direction also answers for the reverse direction unless that direction
// has its own entry.
type Estimator struct {
	lanes map[lane]domain.BridgeQuote
}

// NewEstimator builds an estimator from config entries.
func NewEstimator(entries []config.BridgeConfig) *Estimator {
	e := &Estimator{lanes: make(map[lane]domain.BridgeQuote, len(entries)*2)}
	for _, b := range entries {
		from, to := strings.ToLower(b.From), strings.ToLower(b.To)
		q := domain.BridgeQuote{
			From:         from,
			To:           to,
			FeePct:       config.Decimal(b.FeePct),
			TransferTime: b.TransferTime,
			Reliability:  config.Decimal(b.Reliability),
		}
		e.lanes[lane{from, to}] = q

		rev := lane{to, from}
		if _, ok := e.lanes[rev]; !ok {
			q.From, q.To = to, from
			e.lanes[rev] = q
		}
	}
	return e
}

// Quote implements app.BridgeEstimator.
func (e *Estimator) Quote(_ context.Context, from, to string) (domain.BridgeQuote, error) {
	q, ok := e.lanes[lane{strings.ToLower(from), strings.ToLower(to)}]
	if !ok {
		return domain.BridgeQuote{}, apperror.New(apperror.CodeBridgeQuoteFailed,
			apperror.WithContext("no bridge from "+from+" to "+to))
	}
	return q, nil
}
