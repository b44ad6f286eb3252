// Package builtins provides built-in strategy implementations that ship with
// factorlab.
package builtins

import (
	"context"
	"fmt"

	"factorlab/internal/domain"
	"factorlab/internal/indicator"
	"factorlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// TieBreak decides the signal when the short and long averages are equal.
type TieBreak int

const (
	// TieBreakShort sends equality to -1, the result of a strict
	// greater-than comparison.
	TieBreakShort TieBreak = iota
	// TieBreakLong sends equality to +1.
	TieBreakLong
	// TieBreakFlat sends equality to 0.
	TieBreakFlat
)

// Tie-break policy names accepted by ParseTieBreak.
const (
	TieBreakNameShort = "short"
	TieBreakNameLong  = "long"
	TieBreakNameFlat  = "flat"
)

// ParseTieBreak maps a policy name to a TieBreak. The empty name is short.
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case TieBreakNameShort, "":
		return TieBreakShort, nil
	case TieBreakNameLong:
		return TieBreakLong, nil
	case TieBreakNameFlat:
		return TieBreakFlat, nil
	default:
		return 0, fmt.Errorf("unknown tie break %q", s)
	}
}

// SMACross implements a simple moving average crossover strategy. After the
// first shortPeriod bars it is long while the short-period SMA is above the
// long-period SMA and short otherwise. Before that it is flat.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	tieBreak    TieBreak
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods. Equal averages resolve to short.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		tieBreak:    TieBreakShort,
	}
}

// WithTieBreak returns s configured with the given tie-break policy.
func (s *SMACross) WithTieBreak(tb TieBreak) *SMACross {
	s.tieBreak = tb
	return s
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init rejects non-positive periods. short < long is not required.
func (s *SMACross) Init(_ context.Context) error {
	if s.shortPeriod <= 0 || s.longPeriod <= 0 {
		return fmt.Errorf("sma-cross short=%d long=%d: %w", s.shortPeriod, s.longPeriod, strategy.ErrInvalidWindow)
	}
	return nil
}

// Generate computes both averages over the close, the crossover signal and
// its first difference. An empty bar slice yields an empty table.
func (s *SMACross) Generate(ctx context.Context, bars []domain.Bar) ([]domain.SignalRow, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	shortMA := indicator.RollingMean(closes, s.shortPeriod)
	longMA := indicator.RollingMean(closes, s.longPeriod)

	rows := make([]domain.SignalRow, len(bars))
	for i, b := range bars {
		rows[i] = domain.SignalRow{
			Timestamp: b.Timestamp,
			Price:     b.Close,
			ShortMA:   shortMA[i],
			LongMA:    longMA[i],
		}
		if i >= s.shortPeriod {
			rows[i].Signal = s.decide(shortMA[i], longMA[i])
		}
		if i > 0 {
			rows[i].Positions = int(rows[i].Signal) - int(rows[i-1].Signal)
		}
	}
	return rows, nil
}

func (s *SMACross) decide(short, long float64) domain.Signal {
	switch {
	case short > long:
		return domain.SignalLong
	case short < long:
		return domain.SignalShort
	}
	switch s.tieBreak {
	case TieBreakLong:
		return domain.SignalLong
	case TieBreakFlat:
		return domain.SignalFlat
	default:
		return domain.SignalShort
	}
}
