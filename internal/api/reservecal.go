package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/neexbeast/campwatch/internal/reservecal"
)

func reserveCalStatus(err error) int {
	if errors.Is(err, reservecal.ErrUpstream) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// GetReserveCalAvailability handles
// GET /api/v1/reservecal/availability?park_id=&facility_id=&start_date=.
// The upstream document is returned unchanged.
func (h *Handlers) GetReserveCalAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	parkID := strings.TrimSpace(q.Get("park_id"))
	facilityID := strings.TrimSpace(q.Get("facility_id"))
	startDate := strings.TrimSpace(q.Get("start_date"))
	if parkID == "" || facilityID == "" || startDate == "" {
		writeError(w, http.StatusBadRequest, "park_id, facility_id and start_date are required")
		return
	}

	start, err := time.Parse(time.DateOnly, startDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}

	doc, err := h.reservecal.Availability(r.Context(), parkID, facilityID, start)
	if err != nil {
		h.log.Error("reservecal availability failed", "park_id", parkID, "facility_id", facilityID, "err", err)
		writeError(w, reserveCalStatus(err), "failed to fetch reservecal availability")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// GetReserveCalUpdateTime handles
// GET /api/v1/reservecal/update-time?park_id=&facility_id=.
// next_update_time is null when the park page does not publish one.
func (h *Handlers) GetReserveCalUpdateTime(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	parkID := strings.TrimSpace(q.Get("park_id"))
	facilityID := strings.TrimSpace(q.Get("facility_id"))
	if parkID == "" || facilityID == "" {
		writeError(w, http.StatusBadRequest, "park_id and facility_id are required")
		return
	}

	next, err := h.reservecal.NextUpdate(r.Context(), parkID, facilityID)
	if err != nil {
		h.log.Error("reservecal update time failed", "park_id", parkID, "facility_id", facilityID, "err", err)
		writeError(w, reserveCalStatus(err), "failed to fetch reservecal update time")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"park_id":          parkID,
		"facility_id":      facilityID,
		"next_update_time": next,
	})
}
