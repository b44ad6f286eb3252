// Package broker turns a sized signal table into a daily portfolio table.
// Each Broker is an accounting model: how cash and holdings evolve when the
// previous day's signal is executed at today's close.
package broker

import (
	"context"
	"errors"
	"fmt"

	"factorlab/internal/domain"
)

var (
	// ErrUnknownMode is returned by New for an unrecognised accounting mode.
	ErrUnknownMode = errors.New("unknown accounting mode")

	// ErrLengthMismatch is returned when the signal and bar tables differ in
	// length.
	ErrLengthMismatch = errors.New("signal and bar tables differ in length")
)

// Accounting modes accepted by New.
const (
	ModeDailyDebit = "daily-debit"
	ModeTradeOnly  = "trade-only"
)

// Broker settles a sized signal table against closing prices.
type Broker interface {
	// Name returns the accounting mode identifier.
	Name() string

	// Settle returns one PositionRow per bar. The position held on day t is
	// the signal of day t-1; day 0 is always flat.
	Settle(ctx context.Context, rows []domain.SignalRow, bars []domain.Bar) ([]domain.PositionRow, error)
}

// New returns the Broker for mode, starting from capital and charging
// costRate (a fraction of traded notional) on every booked trade.
func New(mode string, capital, costRate float64) (Broker, error) {
	switch mode {
	case ModeDailyDebit, "":
		return NewSimulatorBroker(capital, costRate), nil
	case ModeTradeOnly:
		return NewMarkToMarketBroker(capital, costRate), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// lagged returns the position and size executed on day t: yesterday's
// signal and yesterday's size.
func lagged(rows []domain.SignalRow, t int) (domain.Signal, int64) {
	if t == 0 {
		return domain.SignalFlat, 0
	}
	return rows[t-1].Signal, rows[t-1].PositionSize
}

func checkAligned(rows []domain.SignalRow, bars []domain.Bar) error {
	if len(rows) != len(bars) {
		return fmt.Errorf("%w: %d signals, %d bars", ErrLengthMismatch, len(rows), len(bars))
	}
	return nil
}
