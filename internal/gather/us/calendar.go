package us

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// calendarClient is the part of alpaca.Client used to read the market
// calendar.
type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// NewCalendarClient returns an Alpaca trading client for calendar lookups.
func NewCalendarClient(apiKey, apiSecret, baseURL string) *alpaca.Client {
	return alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
}

// LatestFinishedTradingDay returns the most recent trading day whose session
// had ended by now (after 20:05 ET, so extended-hours bars have settled).
// The returned time is midnight UTC of that date.
func LatestFinishedTradingDay(client calendarClient, now time.Time) (time.Time, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	now = now.In(et)

	calendar, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	if len(calendar) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	today := now.Format(time.DateOnly)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, et)

	for i := len(calendar) - 1; i >= 0; i-- {
		day := calendar[i]
		if day.Date == today {
			if now.After(cutoff) {
				return time.Parse(time.DateOnly, day.Date)
			}
			continue
		}
		d, err := time.Parse(time.DateOnly, day.Date)
		if err != nil {
			continue
		}
		if day.Date < today {
			return d, nil
		}
	}

	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
