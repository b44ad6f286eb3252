// Package domain defines the core value types shared across factorlab: price
// bars, per-day signal rows, per-day portfolio rows, and the performance
// summary.
package domain

import "time"

// Market identifies the venue a bar belongs to. It is used as a path segment
// by the Parquet bar cache.
type Market string

const (
	MarketUS     Market = "us"
	MarketSample Market = "sample"
)

// Bar is one trading day's OHLCV observation.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Signal is a directional trading decision.
type Signal int8

const (
	SignalShort Signal = -1
	SignalFlat  Signal = 0
	SignalLong  Signal = 1
)

// String returns "long", "short" or "flat".
func (s Signal) String() string {
	switch s {
	case SignalLong:
		return "long"
	case SignalShort:
		return "short"
	default:
		return "flat"
	}
}

// SignalRow is the output of signal generation and position sizing for a
// single bar. Rows are aligned one-to-one with the input bars.
type SignalRow struct {
	Timestamp time.Time
	Price     float64
	ShortMA   float64
	LongMA    float64
	Signal    Signal
	// Positions is Signal minus the previous row's Signal; it marks
	// crossovers and is not consumed by accounting.
	Positions    int
	ATR          float64
	PositionSize int64
}

// PositionRow is the portfolio state for a single bar after lag-1 execution.
type PositionRow struct {
	Timestamp    time.Time
	Position     Signal
	PositionSize int64
	Close        float64
	Holdings     float64
	Cash         float64
	Total        float64
	Returns      float64
}

// Performance summarises a daily returns series.
type Performance struct {
	SharpeRatio float64
	MaxDrawdown float64
	TotalReturn float64
}

// Metric keys, in report order.
const (
	KeySharpeRatio = "Sharpe Ratio"
	KeyMaxDrawdown = "Max Drawdown"
	KeyTotalReturn = "Total Return"
)

// MetricKeys lists the performance keys in the order they are reported.
var MetricKeys = []string{KeySharpeRatio, KeyMaxDrawdown, KeyTotalReturn}

// Map returns the summary keyed by its display names.
func (p Performance) Map() map[string]float64 {
	return map[string]float64{
		KeySharpeRatio: p.SharpeRatio,
		KeyMaxDrawdown: p.MaxDrawdown,
		KeyTotalReturn: p.TotalReturn,
	}
}
