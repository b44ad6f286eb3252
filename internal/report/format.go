// Package report renders backtest results for people: the text summary
// printed after a run and the portfolio value chart.
package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"factorlab/internal/domain"
)

// FormatPerformance returns one "<Key>: <value>" line per metric in the
// order of domain.MetricKeys. A negative precision prints the shortest
// representation that round-trips.
func FormatPerformance(p domain.Performance, precision int) []string {
	values := p.Map()
	lines := make([]string, 0, len(domain.MetricKeys))
	for _, k := range domain.MetricKeys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, FormatFloat(values[k], precision)))
	}
	return lines
}

// FormatFloat renders v with a fixed number of decimal places, or in
// shortest form when precision is negative. Non-finite values print as
// NaN, +Inf or -Inf.
func FormatFloat(v float64, precision int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	d := decimal.NewFromFloat(v)
	if precision < 0 {
		return d.String()
	}
	return d.StringFixed(int32(precision))
}

// FormatMoney formats a dollar amount as 1,234,567.89 with a leading minus
// for negative values.
func FormatMoney(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := decimal.NewFromFloat(v).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	start := len(whole) % 3
	if start > 0 {
		b.WriteString(whole[:start])
	}
	for i := start; i < len(whole); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatPct formats a fraction as a signed percentage with two decimals,
// e.g. 0.0123 -> "+1.23%".
func FormatPct(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := decimal.NewFromFloat(v).Shift(2).StringFixed(2)
	if !strings.HasPrefix(s, "-") {
		s = "+" + s
	}
	return s + "%"
}
