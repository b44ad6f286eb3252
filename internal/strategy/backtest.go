package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"factorlab/internal/broker"
	"factorlab/internal/domain"
)

// BacktestResult holds the summary metrics produced by a backtest run.
type BacktestResult struct {
	domain.Performance

	Strategy string
	Broker   string
	Bars     int
	// TotalTrades counts signal crossovers (non-zero Positions).
	TotalTrades int
	// Degenerate is set when the sizer could not measure volatility and
	// every position size is zero.
	Degenerate bool
	// Ruined is set when the portfolio total fell to zero or below.
	// Returns from RuinedAt on are -1 then 0, so the statistics report a
	// total loss.
	Ruined   bool
	RuinedAt time.Time
}

// Backtester replays a bar series through a strategy, a sizer and a broker,
// and evaluates the resulting returns. A Backtester keeps the tables of its
// most recent run; it is not safe for concurrent use.
type Backtester struct {
	strategy     Strategy
	sizer        Sizer
	broker       broker.Broker
	statsEpsilon float64
	log          *slog.Logger

	signals []domain.SignalRow
	results []domain.PositionRow
}

// NewBacktester wires the three stages together. statsEpsilon is added to
// the return volatility when computing the Sharpe ratio.
func NewBacktester(s Strategy, sizer Sizer, b broker.Broker, statsEpsilon float64, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		strategy:     s,
		sizer:        sizer,
		broker:       b,
		statsEpsilon: statsEpsilon,
		log:          log.With("strategy", s.Name(), "broker", b.Name()),
	}
}

// Run executes the pipeline over bars. Tables from a previous run are
// discarded first, so a failed run leaves no results behind.
func (bt *Backtester) Run(ctx context.Context, bars []domain.Bar) (*BacktestResult, error) {
	bt.signals, bt.results = nil, nil

	if err := bt.strategy.Init(ctx); err != nil {
		return nil, fmt.Errorf("initialising %s: %w", bt.strategy.Name(), err)
	}

	signals, err := bt.strategy.Generate(ctx, bars)
	if err != nil {
		return nil, fmt.Errorf("generating signals: %w", err)
	}
	bt.log.Info("signals generated", "rows", len(signals))

	sizing, err := bt.sizer.Size(ctx, signals, bars)
	if err != nil {
		return nil, fmt.Errorf("sizing positions: %w", err)
	}
	bt.log.Info("position sizing calculated", "degenerate", sizing.Degenerate)

	positions, err := bt.broker.Settle(ctx, signals, bars)
	if err != nil {
		return nil, fmt.Errorf("settling positions: %w", err)
	}
	bt.signals, bt.results = signals, positions
	bt.log.Info("backtest completed", "rows", len(positions))

	perf, _ := bt.Performance()

	trades := 0
	for _, s := range signals {
		if s.Positions != 0 {
			trades++
		}
	}

	res := &BacktestResult{
		Performance: perf,
		Strategy:    bt.strategy.Name(),
		Broker:      bt.broker.Name(),
		Bars:        len(bars),
		TotalTrades: trades,
		Degenerate:  sizing.Degenerate,
	}
	if i := RuinIndex(positions); i >= 0 {
		res.Ruined = true
		res.RuinedAt = positions[i].Timestamp
		bt.log.Warn("portfolio ruined, later returns are zero",
			"date", res.RuinedAt.Format(time.DateOnly), "total", positions[i].Total)
	}
	return res, nil
}

// Performance evaluates the returns of the most recent run. It reports false
// when no run has completed.
func (bt *Backtester) Performance() (domain.Performance, bool) {
	if bt.results == nil {
		bt.log.Error("no results to calculate performance")
		return domain.Performance{}, false
	}
	perf := Evaluate(Returns(bt.results), bt.statsEpsilon)
	bt.log.Info("performance calculated",
		"sharpe", perf.SharpeRatio,
		"max_drawdown", perf.MaxDrawdown,
		"total_return", perf.TotalReturn,
	)
	return perf, true
}

// Signals returns the signal table of the most recent run. Callers must not
// modify it.
func (bt *Backtester) Signals() []domain.SignalRow {
	return bt.signals
}

// Results returns the position table of the most recent run, or nil.
// Callers must not modify it.
func (bt *Backtester) Results() []domain.PositionRow {
	return bt.results
}
