// Package crawler defines the crawl capability and the reference
// implementation fetching windowed event listings from a JSON source.
// Adding a source means adding another Crawler implementation; the ingestion
// pipeline never changes.
package crawler

import (
	"context"
	"time"

	"github.com/mfriedel/whatson/internal/event"
)

// Crawler fetches external data for its configured time horizon and returns
// the union of all discovered records, fully mapped with fingerprints
// computed. Fetch errors propagate; fault policy is the pipeline's call.
type Crawler interface {
	// Name identifies the source in logs and metrics.
	Name() string
	Crawl(ctx context.Context) ([]event.Record, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Window is a half-open [From, To) date range covering one calendar month.
type Window struct {
	From time.Time
	To   time.Time
}

// MonthWindows returns n consecutive calendar-month windows, starting with
// the month containing now. Month arithmetic runs in UTC so a window
// boundary never depends on the host timezone.
func MonthWindows(now time.Time, n int) []Window {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	windows := make([]Window, 0, n)
	for i := 0; i < n; i++ {
		windows = append(windows, Window{
			From: first.AddDate(0, i, 0),
			To:   first.AddDate(0, i+1, 0),
		})
	}
	return windows
}
