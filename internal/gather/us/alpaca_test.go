package us

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

func testSource(fn multiBarsFunc, batchSize, maxAttempts int) *AlpacaSource {
	s := NewAlpacaSource("key", "secret", "https://data.alpaca.markets", "iex", batchSize, 0, maxAttempts)
	s.getMultiBars = fn
	s.retryDelay = time.Millisecond
	s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	return s
}

func TestAlpacaSourceName(t *testing.T) {
	s := NewAlpacaSource("key", "secret", "", "", 100, 200, 3)
	if got := s.Name(); got != "alpaca" {
		t.Errorf("AlpacaSource.Name() = %q, want %q", got, "alpaca")
	}
}

func TestAlpacaSourceBatches(t *testing.T) {
	var calls [][]string
	fn := func(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error) {
		calls = append(calls, symbols)
		if req.TimeFrame != marketdata.OneDay {
			t.Errorf("TimeFrame = %v, want OneDay", req.TimeFrame)
		}
		out := make(map[string][]marketdata.Bar)
		for _, sym := range symbols {
			out[sym] = []marketdata.Bar{
				{Timestamp: time.Date(2023, 1, 4, 5, 0, 0, 0, time.UTC), Close: 2},
				{Timestamp: time.Date(2023, 1, 3, 5, 0, 0, 0, time.UTC), Close: 1},
			}
		}
		return out, nil
	}

	s := testSource(fn, 2, 1)
	got, err := s.FetchBars(context.Background(), []string{"KO", "PEP", "MSFT"}, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchBars returned error: %v", err)
	}
	if len(calls) != 2 || len(calls[0]) != 2 || len(calls[1]) != 1 {
		t.Errorf("batches = %v, want [[KO PEP] [MSFT]]", calls)
	}
	if len(got) != 3 {
		t.Fatalf("FetchBars returned %d symbols, want 3", len(got))
	}
	ko := got["KO"]
	if len(ko) != 2 || ko[0].Close != 1 || ko[1].Close != 2 {
		t.Errorf("KO bars not sorted by timestamp: %+v", ko)
	}
	if ko[0].Symbol != "KO" {
		t.Errorf("Symbol = %q, want KO", ko[0].Symbol)
	}
}

func TestAlpacaSourceIncludesEndDate(t *testing.T) {
	end := time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)
	fn := func(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error) {
		if want := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC); !req.End.Equal(want) {
			t.Errorf("request End = %v, want %v", req.End, want)
		}
		return map[string][]marketdata.Bar{"KO": {
			{Timestamp: time.Date(2023, 1, 31, 5, 0, 0, 0, time.UTC), Close: 1},
			{Timestamp: time.Date(2023, 2, 1, 5, 0, 0, 0, time.UTC), Close: 2},
		}}, nil
	}

	got, err := testSource(fn, 10, 1).FetchBars(context.Background(), []string{"KO"}, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), end)
	if err != nil {
		t.Fatalf("FetchBars returned error: %v", err)
	}
	if ko := got["KO"]; len(ko) != 1 || ko[0].Close != 1 {
		t.Errorf("KO bars = %+v, want only the end-date bar", ko)
	}
}

func TestAlpacaSourceRetries(t *testing.T) {
	attempts := 0
	fn := func(symbols []string, _ marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("429 too many requests")
		}
		return map[string][]marketdata.Bar{"ko": {{Timestamp: time.Date(2023, 1, 3, 5, 0, 0, 0, time.UTC), Close: 60}}}, nil
	}

	got, err := testSource(fn, 10, 3).FetchBars(context.Background(), []string{"KO"}, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 1, 6, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchBars returned error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(got["KO"]) != 1 {
		t.Errorf("lower-case symbol not normalised: %v", got)
	}
}

func TestAlpacaSourceGivesUp(t *testing.T) {
	apiErr := errors.New("forbidden")
	fn := func([]string, marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error) {
		return nil, apiErr
	}
	_, err := testSource(fn, 10, 2).FetchBars(context.Background(), []string{"KO"}, time.Now(), time.Now())
	if !errors.Is(err, apiErr) {
		t.Errorf("FetchBars error = %v, want wrapping %v", err, apiErr)
	}
}

// fakeCalendar serves a fixed list of trading days.
type fakeCalendar []alpaca.CalendarDay

func (f fakeCalendar) GetCalendar(alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error) {
	return f, nil
}

func TestLatestFinishedTradingDay(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("no tz database: %v", err)
	}
	cal := fakeCalendar{{Date: "2024-06-13"}, {Date: "2024-06-14"}, {Date: "2024-06-17"}}

	// Monday afternoon: the session is still open, so Friday is the latest.
	got, err := LatestFinishedTradingDay(cal, time.Date(2024, 6, 17, 15, 0, 0, 0, et))
	if err != nil {
		t.Fatalf("LatestFinishedTradingDay returned error: %v", err)
	}
	if got.Format(time.DateOnly) != "2024-06-14" {
		t.Errorf("before cutoff = %s, want 2024-06-14", got.Format(time.DateOnly))
	}

	// Monday night: Monday has finished.
	got, err = LatestFinishedTradingDay(cal, time.Date(2024, 6, 17, 21, 0, 0, 0, et))
	if err != nil {
		t.Fatalf("LatestFinishedTradingDay returned error: %v", err)
	}
	if got.Format(time.DateOnly) != "2024-06-17" {
		t.Errorf("after cutoff = %s, want 2024-06-17", got.Format(time.DateOnly))
	}

	if _, err := LatestFinishedTradingDay(fakeCalendar{}, time.Now()); err == nil {
		t.Error("empty calendar returned nil error")
	}
}
