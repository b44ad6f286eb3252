// Package gather loads daily bars from a market-data source. Fetch is the
// boundary where source failures become an absent result.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"factorlab/internal/domain"
	"factorlab/internal/store"
)

// Source produces daily bars for a set of symbols.
type Source interface {
	// Name returns the source identifier.
	Name() string
	// FetchBars returns bars keyed by symbol, each slice in timestamp order.
	// Symbols with no data may be absent from the map.
	FetchBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Bar, error)
}

// Fetch loads bars from src. Any error, and a result with no bars at all,
// is logged and reported as nil; callers treat nil as "data unavailable".
func Fetch(ctx context.Context, src Source, log *slog.Logger, symbols []string, start, end time.Time) map[string][]domain.Bar {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("source", src.Name())

	bars, err := src.FetchBars(ctx, symbols, start, end)
	if err != nil {
		log.Error("error loading data", "symbols", symbols, "err", err)
		return nil
	}

	n := 0
	for _, b := range bars {
		n += len(b)
	}
	if n == 0 {
		log.Error("no data returned", "symbols", symbols,
			"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
		return nil
	}

	log.Info("data loaded", "symbols", len(bars), "bars", n)
	return bars
}

// Cache fetches bars from src and writes them to dst. It returns the number
// of bars written.
func Cache(ctx context.Context, src Source, dst store.BarStore, log *slog.Logger, symbols []string, start, end time.Time) (int, error) {
	if log == nil {
		log = slog.Default()
	}

	bars, err := src.FetchBars(ctx, symbols, start, end)
	if err != nil {
		return 0, fmt.Errorf("fetching from %s: %w", src.Name(), err)
	}

	written := 0
	for _, sym := range symbols {
		b := bars[sym]
		if len(b) == 0 {
			log.Warn("no bars for symbol", "symbol", sym, "source", src.Name())
			continue
		}
		if err := dst.WriteBars(ctx, b); err != nil {
			return written, fmt.Errorf("writing %s: %w", sym, err)
		}
		written += len(b)
		log.Info("bars cached", "symbol", sym, "bars", len(b))
	}
	return written, nil
}

// Missing returns the symbols that have no bars cached in dst for market,
// in their original order.
func Missing(ctx context.Context, dst store.BarStore, market domain.Market, symbols []string) ([]string, error) {
	existing, err := dst.ListSymbols(ctx, string(market))
	if err != nil {
		return nil, fmt.Errorf("listing cached symbols: %w", err)
	}
	skip := make(map[string]struct{}, len(existing))
	for _, sym := range existing {
		skip[sym] = struct{}{}
	}

	var missing []string
	for _, sym := range symbols {
		if _, ok := skip[sym]; ok {
			continue
		}
		missing = append(missing, sym)
	}
	return missing, nil
}

// ---------------------------------------------------------------------------
// StoreSource
// ---------------------------------------------------------------------------

// Compile-time interface check.
var _ Source = (*StoreSource)(nil)

// StoreSource reads bars previously cached in a BarStore.
type StoreSource struct {
	store  store.BarStore
	market domain.Market
}

// NewStoreSource reads bars for market from s.
func NewStoreSource(s store.BarStore, market domain.Market) *StoreSource {
	return &StoreSource{store: s, market: market}
}

// Name returns "parquet".
func (s *StoreSource) Name() string { return "parquet" }

// FetchBars reads each symbol from the store. Symbols with no cached bars
// are left out of the result.
func (s *StoreSource) FetchBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	out := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		bars, err := s.store.ReadBars(ctx, sym, string(s.market), start, end)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", sym, err)
		}
		if len(bars) > 0 {
			out[sym] = bars
		}
	}
	return out, nil
}
