// Package store defines storage interfaces for persisting and retrieving
// bars, equity curves and the backtest run history.
package store

import (
	"context"
	"time"

	"factorlab/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market stamped from
	// start through the end of the end date.
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// RunRecord is one completed backtest in the run history.
type RunRecord struct {
	ID               int64
	Strategy         string
	Symbol           string
	Source           string
	Start            time.Time
	End              time.Time
	Bars             int
	ShortWindow      int
	LongWindow       int
	RiskPerTrade     float64
	InitialCapital   float64
	AccountingMode   string
	TransactionCosts float64
	SharpeRatio      float64
	MaxDrawdown      float64
	TotalReturn      float64
	TotalTrades      int
	CreatedAt        time.Time
}

// RunStore persists and retrieves the backtest run history.
type RunStore interface {
	// SaveRun inserts a run and sets its ID.
	SaveRun(ctx context.Context, run *RunRecord) error

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
