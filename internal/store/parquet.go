package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"factorlab/internal/domain"
	"factorlab/internal/util"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
	// Market is the directory WriteBars files bars under.
	Market domain.Market
}

// NewParquetStore creates a new ParquetStore rooted at the given data
// directory. WriteBars files bars under the "us" market.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, Market: domain.MarketUS}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// EquityRecord is the Parquet schema for one day of a backtest's portfolio.
type EquityRecord struct {
	Symbol       string  `parquet:"symbol"`
	Timestamp    int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Position     int32   `parquet:"position"`
	PositionSize int64   `parquet:"position_size"`
	Close        float64 `parquet:"close"`
	Holdings     float64 `parquet:"holdings"`
	Cash         float64 `parquet:"cash"`
	Total        float64 `parquet:"total"`
	Returns      float64 `parquet:"returns"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	market := s.Market
	if market == "" {
		market = domain.MarketUS
	}
	return s.WriteBarsForMarket(bars, string(market))
}

// WriteBarsForMarket writes bars to Parquet grouped by symbol and year under
// the given market directory, merging with what is already on disk.
func (s *ParquetStore) WriteBarsForMarket(bars []domain.Bar, market string) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		k := key{symbol: strings.ToUpper(b.Symbol), year: ts.Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     k.symbol,
			Timestamp:  ts.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol, from
// start through the whole of the end date. Bars come back in timestamp
// order; missing years are skipped.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	limit := util.DayAfter(end)
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		path := s.barPath(symbol, market, year)

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || !ts.Before(limit) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:     r.Symbol,
				Timestamp:  ts,
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Close:      r.Close,
				Volume:     r.Volume,
				TradeCount: r.TradeCount,
				VWAP:       r.VWAP,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Equity curves
// ---------------------------------------------------------------------------

// WriteEquityCurve writes a position table to a single Parquet file at path,
// replacing any existing file.
func WriteEquityCurve(path, symbol string, rows []domain.PositionRow) error {
	records := make([]EquityRecord, len(rows))
	for i, r := range rows {
		records[i] = EquityRecord{
			Symbol:       symbol,
			Timestamp:    r.Timestamp.UnixMilli(),
			Position:     int32(r.Position),
			PositionSize: r.PositionSize,
			Close:        r.Close,
			Holdings:     r.Holdings,
			Cash:         r.Cash,
			Total:        r.Total,
			Returns:      r.Returns,
		}
	}
	if err := writeParquetFile(path, records); err != nil {
		return fmt.Errorf("writing equity curve %s: %w", path, err)
	}
	return nil
}

// ReadEquityCurve reads a file written by WriteEquityCurve.
func ReadEquityCurve(path string) (string, []domain.PositionRow, error) {
	records, err := readParquetFile[EquityRecord](path)
	if err != nil {
		return "", nil, fmt.Errorf("reading equity curve %s: %w", path, err)
	}

	var symbol string
	rows := make([]domain.PositionRow, len(records))
	for i, r := range records {
		symbol = r.Symbol
		rows[i] = domain.PositionRow{
			Timestamp:    time.UnixMilli(r.Timestamp).UTC(),
			Position:     domain.Signal(r.Position),
			PositionSize: r.PositionSize,
			Close:        r.Close,
			Holdings:     r.Holdings,
			Cash:         r.Cash,
			Total:        r.Total,
			Returns:      r.Returns,
		}
	}
	return symbol, rows, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
