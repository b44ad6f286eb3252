package broker

import (
	"context"
	"math"

	"factorlab/internal/domain"
	"factorlab/internal/indicator"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker is the daily-debit accounting model. Every day a non-zero
// position is held is booked as a fresh trade of the full size at that
// day's close:
//
//	holdings[t] = position[t] * size[t] * close[t]
//	cash[t]     = capital - sum_{k<=t}(size[k] * close[k] * position[k] + cost[k])
//	total[t]    = cash[t] + holdings[t]
//
// cost[k] is costRate * |size[k] * close[k] * position[k]|. With costRate 0
// this reproduces the reference results exactly. Cash is debited on held
// days, not only on position changes; MarkToMarketBroker is the
// trade-only alternative.
type SimulatorBroker struct {
	capital  float64
	costRate float64
}

// NewSimulatorBroker creates a daily-debit broker.
func NewSimulatorBroker(capital, costRate float64) *SimulatorBroker {
	return &SimulatorBroker{
		capital:  capital,
		costRate: costRate,
	}
}

// Name returns "daily-debit".
func (b *SimulatorBroker) Name() string {
	return ModeDailyDebit
}

// Settle runs the daily-debit ledger.
func (b *SimulatorBroker) Settle(ctx context.Context, rows []domain.SignalRow, bars []domain.Bar) ([]domain.PositionRow, error) {
	if err := checkAligned(rows, bars); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.PositionRow, len(rows))
	totals := make([]float64, len(rows))
	var debited float64

	for t := range rows {
		pos, size := lagged(rows, t)
		closePx := bars[t].Close

		flow := float64(size) * closePx * float64(pos)
		debited += flow + b.costRate*math.Abs(flow)

		holdings := float64(pos) * float64(size) * closePx
		cash := b.capital - debited

		out[t] = domain.PositionRow{
			Timestamp:    bars[t].Timestamp,
			Position:     pos,
			PositionSize: size,
			Close:        closePx,
			Holdings:     holdings,
			Cash:         cash,
			Total:        cash + holdings,
		}
		totals[t] = out[t].Total
	}

	for t, r := range indicator.EquityReturns(totals) {
		out[t].Returns = r
	}
	return out, nil
}
