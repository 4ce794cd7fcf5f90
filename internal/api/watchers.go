package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gookit/validate"

	"github.com/neexbeast/campwatch/internal/scheduler"
	"github.com/neexbeast/campwatch/internal/watcher"
)

type watcherRequest struct {
	CampgroundID string `json:"campground_id" validate:"required"`
	SiteType     string `json:"site_type"`
	TentOnly     bool   `json:"tent_only"`
	NoRV         bool   `json:"no_rv"`
	Loop         string `json:"loop"`
	CheckTime    string `json:"check_time" validate:"required"`
	Email        string `json:"email" validate:"email"`
}

func (req watcherRequest) toWatcher() (*watcher.Watcher, error) {
	v := validate.Struct(&req)
	if !v.Validate() {
		return nil, errors.New(v.Errors.One())
	}

	clock, err := watcher.ParseClock(req.CheckTime)
	if err != nil {
		return nil, err
	}

	w := &watcher.Watcher{
		CampgroundID: req.CampgroundID,
		SiteType:     req.SiteType,
		TentOnly:     req.TentOnly,
		NoRV:         req.NoRV,
		Loop:         req.Loop,
		CheckTime:    clock,
		Email:        req.Email,
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

type watcherResponse struct {
	*watcher.Watcher
	NextCheck *time.Time `json:"next_check,omitempty"`
}

func (h *Handlers) respond(w *watcher.Watcher) watcherResponse {
	resp := watcherResponse{Watcher: w}
	if next, ok := h.engine.Next(w.ID); ok {
		resp.NextCheck = &next
	}
	return resp
}

func decodeWatcher(r *http.Request) (*watcher.Watcher, error) {
	var req watcherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("malformed JSON body")
	}
	return req.toWatcher()
}

// CreateWatcher handles POST /api/v1/watchers.
// Stores the watcher and schedules its daily check.
func (h *Handlers) CreateWatcher(w http.ResponseWriter, r *http.Request) {
	in, err := decodeWatcher(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.repo.Create(r.Context(), in)
	if err != nil {
		h.log.Error("watcher insert failed", "campground_id", in.CampgroundID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store watcher")
		return
	}

	if err := h.engine.Schedule(created.ID, created.CheckTime); err != nil {
		h.log.Error("watcher schedule failed", "watcher_id", created.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to schedule watcher")
		return
	}

	writeJSON(w, http.StatusCreated, h.respond(created))
}

// ListWatchers handles GET /api/v1/watchers.
func (h *Handlers) ListWatchers(w http.ResponseWriter, r *http.Request) {
	ws, err := h.repo.List(r.Context())
	if err != nil {
		h.log.Error("watcher list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]watcherResponse, 0, len(ws))
	for _, wt := range ws {
		out = append(out, h.respond(wt))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetWatcher handles GET /api/v1/watchers/{id}.
func (h *Handlers) GetWatcher(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid watcher id")
		return
	}

	found, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.log.Error("watcher get failed", "watcher_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "watcher not found")
		return
	}

	writeJSON(w, http.StatusOK, h.respond(found))
}

// UpdateWatcher handles PUT /api/v1/watchers/{id}.
// Overwrites the stored watcher and moves its trigger to the new check time.
func (h *Handlers) UpdateWatcher(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid watcher id")
		return
	}

	in, err := decodeWatcher(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.ID = id

	updated, err := h.repo.Update(r.Context(), in)
	if err != nil {
		h.log.Error("watcher update failed", "watcher_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store watcher")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "watcher not found")
		return
	}

	if err := h.engine.Schedule(updated.ID, updated.CheckTime); err != nil {
		h.log.Error("watcher reschedule failed", "watcher_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to schedule watcher")
		return
	}

	writeJSON(w, http.StatusOK, h.respond(updated))
}

// DeleteWatcher handles DELETE /api/v1/watchers/{id}.
func (h *Handlers) DeleteWatcher(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid watcher id")
		return
	}

	deleted, err := h.repo.Delete(r.Context(), id)
	if err != nil {
		h.log.Error("watcher delete failed", "watcher_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "watcher not found")
		return
	}

	h.engine.Cancel(id)
	w.WriteHeader(http.StatusNoContent)
}

type runResponse struct {
	scheduler.TickResult
	Error string `json:"error,omitempty"`
}

// RunWatcher handles POST /api/v1/watchers/{id}/run.
// Runs one check synchronously and returns its result.
func (h *Handlers) RunWatcher(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid watcher id")
		return
	}

	res := h.engine.RunOnce(r.Context(), id)
	resp := runResponse{TickResult: res}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}

	status := http.StatusOK
	switch res.Outcome {
	case scheduler.OutcomeNotFound:
		status = http.StatusNotFound
	case scheduler.OutcomeFetchFailed:
		status = http.StatusBadGateway
	case scheduler.OutcomeStoreFailed, scheduler.OutcomePanicked:
		status = http.StatusInternalServerError
	case scheduler.OutcomeAborted:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
