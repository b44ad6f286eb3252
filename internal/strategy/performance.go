package strategy

import (
	"math"

	"factorlab/internal/domain"
	"factorlab/internal/indicator"
)

// TradingDaysPerYear annualises the daily Sharpe ratio.
const TradingDaysPerYear = 252

// DefaultStatsEpsilon is added to the return volatility before dividing.
const DefaultStatsEpsilon = 1e-6

// Evaluate reduces a daily returns series to Sharpe ratio, max drawdown and
// total return. The Sharpe denominator is the sample standard deviation plus
// epsilon; when that sum is zero the ratio is 0. A return below -1 counts
// as -1, so the compounded value never drops under zero and max drawdown
// and total return stay within [-1, 0] and [-1, +Inf). An empty series
// yields the zero Performance.
func Evaluate(returns []float64, epsilon float64) domain.Performance {
	if len(returns) == 0 {
		return domain.Performance{}
	}

	mean := indicator.Mean(returns)
	std := indicator.SampleStd(returns)
	sharpe, _ := indicator.SafeDiv(math.Sqrt(TradingDaysPerYear)*mean, std+epsilon)

	growth := make([]float64, len(returns))
	for i, r := range returns {
		growth[i] = math.Max(0, 1+r)
	}
	cum := indicator.CumProd(growth)
	peak := indicator.CumMax(cum)

	drawdown := make([]float64, len(cum))
	for i := range cum {
		drawdown[i], _ = indicator.SafeDiv(cum[i]-peak[i], peak[i])
	}

	return domain.Performance{
		SharpeRatio: sharpe,
		MaxDrawdown: indicator.Min(drawdown),
		TotalReturn: cum[len(cum)-1] - 1,
	}
}

// RuinIndex returns the first row whose return wipes out the account, or -1
// when the account stays solvent.
func RuinIndex(rows []domain.PositionRow) int {
	for i, r := range rows {
		if r.Returns <= -1 {
			return i
		}
	}
	return -1
}

// Returns extracts the Returns column from a position table.
func Returns(rows []domain.PositionRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Returns
	}
	return out
}
