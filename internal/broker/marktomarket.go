package broker

import (
	"context"
	"math"

	"factorlab/internal/domain"
	"factorlab/internal/indicator"
)

// Compile-time interface check.
var _ Broker = (*MarkToMarketBroker)(nil)

// MarkToMarketBroker is the trade-only accounting model. The held quantity
// on day t is position[t] * size[t]; cash moves only by the change in that
// quantity, and holdings carry the unrealised value:
//
//	delta[t]    = qty[t] - qty[t-1]
//	cash[t]     = cash[t-1] - delta[t] * close[t] - costRate * |delta[t] * close[t]|
//	holdings[t] = qty[t] * close[t]
type MarkToMarketBroker struct {
	capital  float64
	costRate float64
}

// NewMarkToMarketBroker creates a trade-only broker.
func NewMarkToMarketBroker(capital, costRate float64) *MarkToMarketBroker {
	return &MarkToMarketBroker{
		capital:  capital,
		costRate: costRate,
	}
}

// Name returns "trade-only".
func (b *MarkToMarketBroker) Name() string {
	return ModeTradeOnly
}

// Settle runs the trade-only ledger.
func (b *MarkToMarketBroker) Settle(ctx context.Context, rows []domain.SignalRow, bars []domain.Bar) ([]domain.PositionRow, error) {
	if err := checkAligned(rows, bars); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.PositionRow, len(rows))
	totals := make([]float64, len(rows))
	cash := b.capital
	var held int64

	for t := range rows {
		pos, size := lagged(rows, t)
		closePx := bars[t].Close

		qty := int64(pos) * size
		notional := float64(qty-held) * closePx
		cash -= notional + b.costRate*math.Abs(notional)
		held = qty

		holdings := float64(qty) * closePx
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
