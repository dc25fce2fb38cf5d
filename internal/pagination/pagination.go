// Package pagination implements keyset (cursor-based) pagination over the
// event collection. The sort order is fixed to start date descending with the
// store id descending as tiebreaker; without the secondary key, rows sharing a
// start date would be ordered nondeterministically across pages.
package pagination

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfriedel/whatson/internal/event"
)

const (
	// MinLimit and MaxLimit bound the page size; DefaultLimit applies when
	// the client sends nothing usable.
	MinLimit     = 1
	MaxLimit     = 100
	DefaultLimit = 20
)

// ErrInvalidCursor marks a malformed cursor token. Handlers map it to a
// client-facing validation failure; it must never degrade into an unfiltered
// first page or a silent empty result.
var ErrInvalidCursor = errors.New("invalid cursor")

// Position is the decoded sort position a cursor points at.
type Position struct {
	StartDate time.Time
	ID        uuid.UUID
}

// Query is the store query derived from a request: an optional keyset
// position and an effective limit. A nil Before means first page.
type Query struct {
	Before *Position
	Limit  int
}

// ClampLimit converts the raw limit parameter into the effective page size.
// Absent or non-numeric input yields DefaultLimit; numeric input is clamped
// into [MinLimit, MaxLimit].
func ClampLimit(raw string) int {
	if raw == "" {
		return DefaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultLimit
	}
	if n < MinLimit {
		return MinLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// ParseCursor decodes a cursor token of the form
// "<start date epoch millis>_<store id>". Both halves are required.
func ParseCursor(token string) (Position, error) {
	millisPart, idPart, found := strings.Cut(token, "_")
	if !found || millisPart == "" || idPart == "" {
		return Position{}, fmt.Errorf("%w: %q", ErrInvalidCursor, token)
	}
	millis, err := strconv.ParseInt(millisPart, 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidCursor, millisPart)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return Position{}, fmt.Errorf("%w: bad id %q", ErrInvalidCursor, idPart)
	}
	return Position{StartDate: time.UnixMilli(millis).UTC(), ID: id}, nil
}

// BuildQuery derives the store query from the raw request parameters. An
// empty cursor selects the first page; a malformed one fails with
// ErrInvalidCursor.
func BuildQuery(cursor, limit string) (Query, error) {
	q := Query{Limit: ClampLimit(limit)}
	if cursor == "" {
		return q, nil
	}
	pos, err := ParseCursor(cursor)
	if err != nil {
		return Query{}, err
	}
	q.Before = &pos
	return q, nil
}

// NextCursor builds the follow-up cursor from a result page. An empty page
// returns "": the end of the collection, the caller stops paginating. The
// cursor is built from the last item, which under descending sort is the
// smallest (start date, id) pair in the page.
func NextCursor(page []event.Record) string {
	if len(page) == 0 {
		return ""
	}
	last := page[len(page)-1]
	return Encode(last.StartDate, last.ID)
}

// Encode renders a cursor token for the given sort position.
func Encode(startDate time.Time, id uuid.UUID) string {
	return fmt.Sprintf("%d_%s", startDate.UnixMilli(), id)
}
