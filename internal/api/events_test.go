package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mfriedel/whatson/internal/event"
	"github.com/mfriedel/whatson/internal/pagination"
	"github.com/mfriedel/whatson/internal/store"
)

// memoryStore implements the keyset semantics the real store provides, so
// handler tests can exercise full pagination walks.
type memoryStore struct {
	records   []event.Record
	listErr   error
	pingErr   error
	lastQuery pagination.Query
}

func (m *memoryStore) BulkInsert(context.Context, []event.Record) (store.BulkResult, error) {
	panic("read path only")
}

func (m *memoryStore) ListEvents(_ context.Context, q pagination.Query) ([]event.Record, error) {
	m.lastQuery = q
	if m.listErr != nil {
		return nil, m.listErr
	}
	sorted := append([]event.Record(nil), m.records...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].StartDate.Equal(sorted[j].StartDate) {
			return sorted[i].StartDate.After(sorted[j].StartDate)
		}
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) > 0
	})
	var page []event.Record
	for _, rec := range sorted {
		if q.Before != nil {
			after := rec.StartDate.Before(q.Before.StartDate) ||
				(rec.StartDate.Equal(q.Before.StartDate) && bytes.Compare(rec.ID[:], q.Before.ID[:]) < 0)
			if !after {
				continue
			}
		}
		page = append(page, rec)
		if len(page) == q.Limit {
			break
		}
	}
	return page, nil
}

func (m *memoryStore) Ping(context.Context) error { return m.pingErr }

func (m *memoryStore) Close() {}

func newTestServer(st *memoryStore) *Server {
	return NewServer(st, time.Second, zap.NewNop())
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func storedRecord(title string, start time.Time, id uuid.UUID) event.Record {
	return event.Record{
		ID:          id,
		StartDate:   start,
		EndDate:     start.Add(2 * time.Hour),
		Title:       title,
		Fingerprint: "fp-" + title,
	}
}

func TestListEventsStripsInternalFields(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	start := time.Date(2026, 7, 4, 21, 0, 0, 0, time.UTC)
	st := &memoryStore{records: []event.Record{storedRecord("Fireworks", start, id)}}
	rec := get(t, newTestServer(st), "/v1/events")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, pagination.Encode(start, id), rec.Header().Get("X-Pagination-Next"))

	var payload []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload, 1)
	require.Equal(t, "Fireworks", payload[0]["title"])
	require.NotContains(t, payload[0], "id")
	require.NotContains(t, payload[0], "fingerprint")
	require.NotContains(t, rec.Body.String(), id.String())
	require.NotContains(t, rec.Body.String(), "fp-Fireworks")
}

func TestListEventsTieBrokenByID(t *testing.T) {
	t.Parallel()

	start := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	idA := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	idB := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	st := &memoryStore{records: []event.Record{
		storedRecord("B", start, idB),
		storedRecord("A", start, idA),
	}}
	s := newTestServer(st)

	// Sorted page order is [A, B]: same start date, ids descending.
	rec := get(t, s, "/v1/events?limit=2")
	var page []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Equal(t, "A", page[0]["title"])
	require.Equal(t, "B", page[1]["title"])

	// A cursor built from A yields the page containing B.
	rec = get(t, s, "/v1/events?limit=1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Equal(t, "A", page[0]["title"])

	next := rec.Header().Get("X-Pagination-Next")
	require.Equal(t, pagination.Encode(start, idA), next)

	rec = get(t, s, "/v1/events?limit=1&next="+next)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page, 1)
	require.Equal(t, "B", page[0]["title"])
}

func TestPaginationWalkHasNoOverlapOrGaps(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	st := &memoryStore{}
	for i := 0; i < 7; i++ {
		st.records = append(st.records, storedRecord(
			string(rune('a'+i)),
			base.Add(time.Duration(i)*time.Hour),
			uuid.New(),
		))
	}
	s := newTestServer(st)

	seen := map[string]bool{}
	next := ""
	for hops := 0; hops < 10; hops++ {
		target := "/v1/events?limit=3"
		if next != "" {
			target += "&next=" + next
		}
		rec := get(t, s, target)
		require.Equal(t, http.StatusOK, rec.Code)

		var page []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		if len(page) == 0 {
			require.Empty(t, rec.Header().Get("X-Pagination-Next"), "empty page ends pagination")
			break
		}
		for _, item := range page {
			title := item["title"].(string)
			require.False(t, seen[title], "item %q served twice", title)
			seen[title] = true
		}
		next = rec.Header().Get("X-Pagination-Next")
		require.NotEmpty(t, next)
	}
	require.Len(t, seen, 7, "every record is served exactly once")
}

func TestListEventsMalformedCursor(t *testing.T) {
	t.Parallel()

	st := &memoryStore{records: []event.Record{
		storedRecord("hidden", time.Now().UTC(), uuid.New()),
	}}
	for _, cursor := range []string{"abc", "1614556800000", "x_y"} {
		rec := get(t, newTestServer(st), "/v1/events?next="+cursor)
		require.Equal(t, http.StatusBadRequest, rec.Code, "cursor=%q", cursor)
		require.JSONEq(t, `{"error":"invalid cursor"}`, rec.Body.String())
	}
}

func TestListEventsStoreFailureIsGeneric(t *testing.T) {
	t.Parallel()

	st := &memoryStore{listErr: errors.New("pg: connection refused on 10.0.0.3")}
	rec := get(t, newTestServer(st), "/v1/events")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "10.0.0.3", "internal detail must not leak")
}

func TestListEventsLimitClamping(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"?limit=500": 100,
		"?limit=0":   1,
		"?limit=-5":  1,
		"?limit=abc": 20,
		"":           20,
	}
	for raw, want := range cases {
		st := &memoryStore{}
		rec := get(t, newTestServer(st), "/v1/events"+raw)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, want, st.lastQuery.Limit, "query=%q", raw)
	}
}

func TestListEventsEmptyPageOmitsHeader(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(&memoryStore{}), "/v1/events")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("X-Pagination-Next"))
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestReadyzReflectsStoreHealth(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(&memoryStore{}), "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, newTestServer(&memoryStore{pingErr: errors.New("down")}), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSHeaders(t *testing.T) {
	t.Parallel()

	s := newTestServer(&memoryStore{})

	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	req.Header.Set("Origin", "https://listings.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, "https://listings.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	require.Equal(t, "X-Pagination-Next", rec.Header().Get("Access-Control-Expose-Headers"))

	req = httptest.NewRequest(http.MethodOptions, "/v1/events", nil)
	req.Header.Set("Origin", "https://listings.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}
