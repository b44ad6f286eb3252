// Package us fetches daily bars for US equities from the Alpaca market-data
// API.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"factorlab/internal/domain"
	"factorlab/internal/gather"
	"factorlab/internal/util"
)

// Compile-time interface check.
var _ gather.Source = (*AlpacaSource)(nil)

// multiBarsFunc is the shape of marketdata.Client.GetMultiBars.
type multiBarsFunc func(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)

// AlpacaSource fetches split- and dividend-adjusted daily bars for US
// equities. Symbols are requested in batches; each batch waits on the rate
// limiter and is retried with exponential backoff.
type AlpacaSource struct {
	getMultiBars multiBarsFunc
	feed         string
	batchSize    int
	maxAttempts  int
	retryDelay   time.Duration
	limiter      *util.RateLimiter
	log          *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource with the given credentials. An
// empty dataURL uses the SDK default; an empty feed lets the API choose.
func NewAlpacaSource(apiKey, apiSecret, dataURL, feed string, batchSize, rateLimitPerMin, maxAttempts int) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	client := marketdata.NewClient(opts)

	return &AlpacaSource{
		getMultiBars: client.GetMultiBars,
		feed:         feed,
		batchSize:    max(batchSize, 1),
		maxAttempts:  maxAttempts,
		retryDelay:   time.Second,
		limiter:      util.NewRateLimiter(rateLimitPerMin),
		log:          slog.Default().With("source", "alpaca"),
	}
}

// Name returns "alpaca".
func (s *AlpacaSource) Name() string { return "alpaca" }

// FetchBars fetches daily bars for symbols from start through the end date.
// Alpaca stamps daily bars at the New York midnight, 04:00 or 05:00 UTC, so
// the request runs to the following midnight to keep the end date's bar.
// Symbols the API has no data for are absent from the result.
func (s *AlpacaSource) FetchBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	out := make(map[string][]domain.Bar, len(symbols))
	limit := util.DayAfter(end)
	batches := (len(symbols) + s.batchSize - 1) / s.batchSize

	for i := 0; i < len(symbols); i += s.batchSize {
		batch := symbols[i:min(i+s.batchSize, len(symbols))]
		n := i/s.batchSize + 1

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var multiBars map[string][]marketdata.Bar
		err := util.Retry(ctx, s.log, s.maxAttempts, s.retryDelay, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var err error
			multiBars, err = s.getMultiBars(batch, marketdata.GetBarsRequest{
				TimeFrame:  marketdata.OneDay,
				Start:      start,
				End:        limit,
				Adjustment: marketdata.All,
				Feed:       marketdata.Feed(s.feed),
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("GetMultiBars batch %d/%d: %w", n, batches, err)
		}

		for symbol, alpacaBars := range multiBars {
			sym := strings.ToUpper(symbol)
			for _, ab := range alpacaBars {
				if !ab.Timestamp.Before(limit) {
					continue
				}
				out[sym] = append(out[sym], convertBar(sym, ab))
			}
		}
		s.log.Debug("batch done", "batch", fmt.Sprintf("%d/%d", n, batches), "symbols", len(multiBars))
	}

	for sym := range out {
		bars := out[sym]
		sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	}
	return out, nil
}

func convertBar(symbol string, ab marketdata.Bar) domain.Bar {
	return domain.Bar{
		Symbol:     symbol,
		Timestamp:  ab.Timestamp.UTC(),
		Open:       ab.Open,
		High:       ab.High,
		Low:        ab.Low,
		Close:      ab.Close,
		Volume:     int64(ab.Volume),
		TradeCount: int64(ab.TradeCount),
		VWAP:       ab.VWAP,
	}
}
