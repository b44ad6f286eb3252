package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"factorlab/internal/broker"
	"factorlab/internal/domain"
	"factorlab/internal/indicator"
	"factorlab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Sizer = (*RiskManager)(nil)

// RiskManager sizes positions so that each trade risks a fixed fraction of
// initial capital per unit of volatility. Volatility is the simplified ATR:
// the rolling high-low range over atrWindow bars.
type RiskManager struct {
	initialCapital float64
	riskPerTrade   float64
	atrWindow      int
	atrEpsilon     float64
	maxPositionPct float64
	log            *slog.Logger
}

// NewRiskManager creates a RiskManager.
//
//   - riskPerTrade: fraction of initialCapital risked per unit of ATR
//     (e.g. 0.01 for 1%).
//   - atrWindow: lookback for the rolling high/low range (14 by default).
//   - atrEpsilon: added to ATR before dividing; 1e-6 reproduces the
//     reference sizes.
func NewRiskManager(initialCapital, riskPerTrade float64, atrWindow int, atrEpsilon float64, log *slog.Logger) *RiskManager {
	if log == nil {
		log = slog.Default()
	}
	return &RiskManager{
		initialCapital: initialCapital,
		riskPerTrade:   riskPerTrade,
		atrWindow:      atrWindow,
		atrEpsilon:     atrEpsilon,
		log:            log.With("component", "risk"),
	}
}

// WithMaxPositionPct caps each position's notional (size * close) at pct of
// initial capital. Zero disables the cap.
func (rm *RiskManager) WithMaxPositionPct(pct float64) *RiskManager {
	rm.maxPositionPct = pct
	return rm
}

// Size fills in ATR and PositionSize on every row.
//
// ATR[t] = max(High[t-w+1..t]) - min(Low[t-w+1..t]), back-filled over the
// first w-1 rows. With fewer than w bars ATR is undefined everywhere; every
// ATR and size is then set to zero and the report is marked degenerate.
func (rm *RiskManager) Size(_ context.Context, rows []domain.SignalRow, bars []domain.Bar) (strategy.SizingReport, error) {
	if len(rows) != len(bars) {
		return strategy.SizingReport{}, fmt.Errorf("%w: %d signals, %d bars", broker.ErrLengthMismatch, len(rows), len(bars))
	}
	if rm.atrWindow <= 0 {
		return strategy.SizingReport{}, fmt.Errorf("atr window %d: %w", rm.atrWindow, strategy.ErrInvalidWindow)
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}

	hi := indicator.RollingMax(highs, rm.atrWindow)
	lo := indicator.RollingMin(lows, rm.atrWindow)
	raw := make([]float64, len(bars))
	for i := range raw {
		raw[i] = hi[i] - lo[i]
	}

	atr, ok := indicator.BackFill(raw)
	if !ok {
		for i := range rows {
			rows[i].ATR = 0
			rows[i].PositionSize = 0
		}
		if len(rows) > 0 {
			rm.log.Warn("not enough bars to measure volatility, sizing all positions to zero",
				"bars", len(bars), "atr_window", rm.atrWindow)
		}
		return strategy.SizingReport{Degenerate: len(rows) > 0}, nil
	}

	budget := rm.initialCapital * rm.riskPerTrade
	for i := range rows {
		rows[i].ATR = atr[i]
		rows[i].PositionSize = rm.capped(shares(budget, atr[i]+rm.atrEpsilon), bars[i].Close)
	}
	return strategy.SizingReport{}, nil
}

// shares truncates budget/unitRisk toward zero. A zero unit risk yields 0.
func shares(budget, unitRisk float64) int64 {
	q, ok := indicator.SafeDiv(budget, unitRisk)
	if !ok {
		return 0
	}
	if q >= math.MaxInt64 {
		return math.MaxInt64
	}
	if q <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(q)
}

func (rm *RiskManager) capped(size int64, closePx float64) int64 {
	if rm.maxPositionPct <= 0 {
		return size
	}
	limit := shares(rm.initialCapital*rm.maxPositionPct, math.Abs(closePx))
	if size > limit {
		return limit
	}
	return size
}
