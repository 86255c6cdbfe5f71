package us

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// CalendarClient is the part of the Alpaca trading client used to find the
// last finished session.
type CalendarClient interface {
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

// newYork is US market time. The fixed fallback ignores DST and only applies
// when the tz database is missing.
var newYork = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}()

// LatestFinishedTradingDay returns the most recent trading day whose session
// has ended, counting today only after 20:05 ET so extended-hours bars have
// settled. The result is midnight UTC of that date.
func LatestFinishedTradingDay(client CalendarClient, now time.Time) (time.Time, error) {
	now = now.In(newYork)
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

	today := now.Format("2006-01-02")
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, newYork)

	for i := len(calendar) - 1; i >= 0; i-- {
		day, err := time.Parse("2006-01-02", calendar[i].Date)
		if err != nil {
			continue
		}
		if calendar[i].Date == today {
			if now.After(cutoff) {
				return day, nil
			}
			continue
		}
		if calendar[i].Date < today {
			return day, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}

// sessionDate maps a bar timestamp to midnight UTC of its New York trading
// date, so stored daily bars line up with inclusive YYYY-MM-DD ranges.
func sessionDate(ts time.Time) time.Time {
	y, m, d := ts.In(newYork).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
