package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mfriedel/whatson/internal/event"
	"github.com/mfriedel/whatson/internal/pagination"
)

// paginationHeader carries the next-page cursor so pagination state lives
// client-side and the API stays stateless.
const paginationHeader = "X-Pagination-Next"

// listEvents handles GET /v1/events?next=&limit=. It returns a JSON array of
// events ordered by (start date DESC, id DESC) with the next cursor in the
// X-Pagination-Next header; the header is absent on the final page. Malformed
// cursors fail with 400, store failures with 500; in both cases the body is
// a generic envelope and the detail is only logged.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	query, err := pagination.BuildQuery(r.URL.Query().Get("next"), r.URL.Query().Get("limit"))
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			s.logger.Debug("rejected cursor", zap.Error(err))
			s.writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		s.logger.Error("build query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	page, err := s.store.ListEvents(ctx, query)
	if err != nil {
		s.logger.Error("list events failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if next := pagination.NextCursor(page); next != "" {
		w.Header().Set(paginationHeader, next)
	}
	s.writeJSON(w, http.StatusOK, toEventDTOs(page))
}

// eventDTO is the public shape of an event. The store id and the fingerprint
// are internal-only and never serialized.
type eventDTO struct {
	StartDate   time.Time         `json:"startDate"`
	EndDate     time.Time         `json:"endDate"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Schedule    string            `json:"eventSchedule,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	Image       *event.Image      `json:"image,omitempty"`
	Location    string            `json:"location"`
	Coordinate  *event.Coordinate `json:"locationCoord,omitempty"`
}

func toEventDTOs(in []event.Record) []eventDTO {
	out := make([]eventDTO, 0, len(in))
	for _, rec := range in {
		out = append(out, eventDTO{
			StartDate:   rec.StartDate,
			EndDate:     rec.EndDate,
			Title:       rec.Title,
			Description: rec.Description,
			Schedule:    rec.Schedule,
			Extra:       rec.Extra,
			Image:       rec.Image,
			Location:    rec.Location,
			Coordinate:  rec.Coordinate,
		})
	}
	return out
}
