// Package engine wires a configured data source, strategy, sizer and broker
// into a single backtest run and writes its optional outputs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"factorlab/internal/broker"
	"factorlab/internal/config"
	"factorlab/internal/domain"
	"factorlab/internal/gather"
	"factorlab/internal/gather/us"
	"factorlab/internal/report"
	"factorlab/internal/store"
	"factorlab/internal/strategy"
	"factorlab/internal/strategy/builtins"
)

var (
	// ErrNoData is returned by Run when the source yields no bars.
	ErrNoData = errors.New("no market data available")

	// ErrUnknownStrategy is returned when the configured strategy name is
	// not registered.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// RunRequest describes one backtest. Empty output paths disable that output.
type RunRequest struct {
	Symbol     string
	Start      time.Time
	End        time.Time
	PlotPath   string
	PlotTitle  string
	EquityPath string
}

// NewRunRequest builds a RunRequest from the data and report sections of
// cfg.
func NewRunRequest(cfg *config.Config) (RunRequest, error) {
	start, end, err := cfg.Data.Range()
	if err != nil {
		return RunRequest{}, err
	}
	return RunRequest{
		Symbol:     cfg.Data.Symbol,
		Start:      start,
		End:        end,
		PlotPath:   cfg.Report.PlotPath,
		PlotTitle:  report.DefaultPlotTitle,
		EquityPath: cfg.Report.EquityPath,
	}, nil
}

// Outcome is the result of a successful run.
type Outcome struct {
	Symbol    string
	Source    string
	Result    *strategy.BacktestResult
	Signals   []domain.SignalRow
	Positions []domain.PositionRow
}

// Engine runs backtests against a single data source.
type Engine struct {
	cfg    *config.Config
	source gather.Source
	runs   store.RunStore
	log    *slog.Logger
}

// NewEngine creates an Engine. runs may be nil to skip the run history.
func NewEngine(cfg *config.Config, source gather.Source, runs store.RunStore, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		source: source,
		runs:   runs,
		log:    log.With("component", "engine"),
	}
}

// NewSource returns the bar source selected by cfg.Data.Source.
func NewSource(cfg *config.Config) (gather.Source, error) {
	switch cfg.Data.Source {
	case config.SourceSample, "":
		return gather.NewSampleSource(cfg.Data.NumDays, cfg.Data.Seed), nil
	case config.SourceAlpaca:
		return us.NewAlpacaSource(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed,
			cfg.Data.BatchSize, cfg.Data.RateLimitPerMin, cfg.Data.MaxAttempts,
		), nil
	case config.SourceParquet:
		return gather.NewStoreSource(store.NewParquetStore(cfg.Storage.DataDir), domain.MarketUS), nil
	default:
		return nil, fmt.Errorf("%w: unknown data source %q", config.ErrInvalid, cfg.Data.Source)
	}
}

// NewRegistry returns the built-in strategies configured from sc.
func NewRegistry(sc config.StrategyConfig) (*strategy.Registry, error) {
	tb, err := builtins.ParseTieBreak(sc.TieBreak)
	if err != nil {
		return nil, err
	}
	reg := strategy.NewRegistry()
	reg.Register(builtins.NewSMACross(sc.ShortWindow, sc.LongWindow).WithTieBreak(tb))
	return reg, nil
}

// NewBacktester assembles the configured strategy, risk manager and broker.
func (e *Engine) NewBacktester() (*strategy.Backtester, error) {
	sc := e.cfg.Strategy

	reg, err := NewRegistry(sc)
	if err != nil {
		return nil, err
	}
	s, ok := reg.Get(sc.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownStrategy, sc.Name, reg.List())
	}

	b, err := broker.New(sc.AccountingMode, sc.InitialCapital, sc.TransactionCosts)
	if err != nil {
		return nil, err
	}

	sizer := NewRiskManager(sc.InitialCapital, sc.RiskPerTrade, sc.ATRWindow, sc.ATREpsilon, e.log).
		WithMaxPositionPct(sc.MaxPositionPct)

	return strategy.NewBacktester(s, sizer, b, e.cfg.Report.StatsEpsilon, e.log), nil
}

// Run loads bars for req.Symbol and backtests them. It returns ErrNoData
// when the source has nothing for the symbol. Failures writing the optional
// outputs are logged and do not fail the run.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*Outcome, error) {
	log := e.log.With("symbol", req.Symbol)

	data := gather.Fetch(ctx, e.source, log, []string{req.Symbol}, req.Start, req.End)
	bars := data[req.Symbol]
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s from %s: %w", req.Symbol, e.source.Name(), ErrNoData)
	}

	bt, err := e.NewBacktester()
	if err != nil {
		return nil, err
	}
	res, err := bt.Run(ctx, bars)
	if err != nil {
		return nil, fmt.Errorf("backtesting %s: %w", req.Symbol, err)
	}

	log.Info("run complete",
		"strategy", res.Strategy,
		"broker", res.Broker,
		"bars", res.Bars,
		"trades", res.TotalTrades,
		"degenerate", res.Degenerate,
		"ruined", res.Ruined,
		"sharpe", res.SharpeRatio,
		"max_drawdown", res.MaxDrawdown,
		"total_return", res.TotalReturn,
	)

	out := &Outcome{
		Symbol:    req.Symbol,
		Source:    e.source.Name(),
		Result:    res,
		Signals:   bt.Signals(),
		Positions: bt.Results(),
	}
	e.writeOutputs(ctx, log, req, out)
	return out, nil
}

func (e *Engine) writeOutputs(ctx context.Context, log *slog.Logger, req RunRequest, out *Outcome) {
	if req.EquityPath != "" {
		if err := store.WriteEquityCurve(req.EquityPath, out.Symbol, out.Positions); err != nil {
			log.Error("writing equity curve", "path", req.EquityPath, "err", err)
		} else {
			log.Info("equity curve written", "path", req.EquityPath)
		}
	}

	if e.runs != nil {
		rec := e.runRecord(out)
		if err := e.runs.SaveRun(ctx, rec); err != nil {
			log.Error("saving run history", "err", err)
		} else {
			log.Info("run recorded", "id", rec.ID)
		}
	}

	if req.PlotPath != "" {
		title := req.PlotTitle
		if title == "" {
			title = out.Symbol + " Strategy Portfolio Value"
		}
		if err := report.PlotEquity(out.Positions, title, req.PlotPath); err != nil {
			log.Error("plotting portfolio", "path", req.PlotPath, "err", err)
		} else {
			log.Info("plot written", "path", req.PlotPath)
		}
	}
}

func (e *Engine) runRecord(out *Outcome) *store.RunRecord {
	sc := e.cfg.Strategy
	rec := &store.RunRecord{
		Strategy:         out.Result.Strategy,
		Symbol:           out.Symbol,
		Source:           out.Source,
		Bars:             out.Result.Bars,
		ShortWindow:      sc.ShortWindow,
		LongWindow:       sc.LongWindow,
		RiskPerTrade:     sc.RiskPerTrade,
		InitialCapital:   sc.InitialCapital,
		AccountingMode:   out.Result.Broker,
		TransactionCosts: sc.TransactionCosts,
		SharpeRatio:      out.Result.SharpeRatio,
		MaxDrawdown:      out.Result.MaxDrawdown,
		TotalReturn:      out.Result.TotalReturn,
		TotalTrades:      out.Result.TotalTrades,
	}
	if n := len(out.Positions); n > 0 {
		rec.Start = out.Positions[0].Timestamp
		rec.End = out.Positions[n-1].Timestamp
	}
	return rec
}
