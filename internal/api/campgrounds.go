package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neexbeast/campwatch/internal/availability"
	"github.com/neexbeast/campwatch/internal/difficulty"
)

func (h *Handlers) month(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	month, err := availability.ParseMonth(r.URL.Query().Get("month"), h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, false
	}
	return month, true
}

// fetch loads one campground-month and writes the error response on failure.
// With refresh=true the cached month is dropped and fetched again.
func (h *Handlers) fetch(w http.ResponseWriter, r *http.Request) (*availability.Payload, bool) {
	month, ok := h.month(w, r)
	if !ok {
		return nil, false
	}

	refresh := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		var err error
		if refresh, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "refresh must be a boolean")
			return nil, false
		}
	}

	id := chi.URLParam(r, "id")
	var (
		p   *availability.Payload
		err error
	)
	if rf, ok := h.fetcher.(Refresher); ok && refresh {
		p, err = rf.Refresh(r.Context(), id, month)
	} else {
		p, err = h.fetcher.Fetch(r.Context(), id, month)
	}
	if err != nil {
		h.log.Error("availability fetch failed", "campground_id", id, "month", availability.FormatMonth(month), "err", err)
		writeError(w, fetchStatus(err), "failed to fetch availability")
		return nil, false
	}
	return p, true
}

// SearchCampgrounds handles GET /api/v1/campgrounds?query=&lat=&lon=.
func (h *Handlers) SearchCampgrounds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.searcher.Search(r.Context(), query, q.Get("lat"), q.Get("lon"))
	if err != nil {
		h.log.Error("campground search failed", "query", query, "err", err)
		writeError(w, http.StatusBadGateway, "failed to search campgrounds")
		return
	}
	if results == nil {
		results = []availability.Campground{}
	}

	writeJSON(w, http.StatusOK, results)
}

// GetDifficulty handles GET /api/v1/campgrounds/{id}/difficulty.
func (h *Handlers) GetDifficulty(w http.ResponseWriter, r *http.Request) {
	p, ok := h.fetch(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"campground_id": p.CampgroundID,
		"month":         availability.FormatMonth(p.Month),
		"score":         difficulty.Score(p),
	})
}

// GetSiteRanking handles GET /api/v1/campgrounds/{id}/sites/ranking.
// Sites are listed scarcest first.
func (h *Handlers) GetSiteRanking(w http.ResponseWriter, r *http.Request) {
	p, ok := h.fetch(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"campground_id": p.CampgroundID,
		"month":         availability.FormatMonth(p.Month),
		"sites":         difficulty.RankSites(p),
	})
}

// GetWeekends handles GET /api/v1/campgrounds/{id}/weekends.
func (h *Handlers) GetWeekends(w http.ResponseWriter, r *http.Request) {
	p, ok := h.fetch(w, r)
	if !ok {
		return
	}

	records := availability.AvailableWeekends(p.Records())
	if records == nil {
		records = []availability.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"campground_id": p.CampgroundID,
		"month":         availability.FormatMonth(p.Month),
		"records":       records,
	})
}

// RankCampgrounds handles GET /api/v1/campgrounds/ranking?ids=a,b,c.
// Campgrounds are listed hardest to book first.
func (h *Handlers) RankCampgrounds(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	month, ok := h.month(w, r)
	if !ok {
		return
	}

	scores, err := difficulty.RankCampgrounds(r.Context(), h.fetcher, ids, month)
	if err != nil {
		h.log.Error("campground ranking failed", "ids", ids, "err", err)
		writeError(w, fetchStatus(err), "failed to rank campgrounds")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"month":       availability.FormatMonth(month),
		"campgrounds": scores,
	})
}
