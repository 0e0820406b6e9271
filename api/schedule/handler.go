// Package schedule exposes the day schedule, manual placement and sync
// status over HTTP.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/runsheet/core/docsync"
	"github.com/kilianp07/runsheet/core/model"
	coreschedule "github.com/kilianp07/runsheet/core/schedule"
	"github.com/kilianp07/runsheet/core/schedule/runlog"
	"github.com/kilianp07/runsheet/core/scheduler"
)

// Planner is the service behind the API.
type Planner interface {
	ActiveDay() model.Day
	RunSheet(ctx context.Context, day model.Day) (coreschedule.RunSheet, error)
	Unscheduled(ctx context.Context, day model.Day) ([]string, error)
	Place(ctx context.Context, day model.Day, jobID string) (model.Placement, error)
	Recompute(ctx context.Context, day model.Day) (coreschedule.RunSheet, error)
	SyncStatus() docsync.Status
	EnableSync(ctx context.Context) error
	DisableSync(ctx context.Context) error
}

// PlaceRequest is the body of POST /api/schedule/place.
type PlaceRequest struct {
	JobID string `json:"jobId"`
	Day   string `json:"day"`
}

// NewHandler routes the schedule API. Requests must carry
// "Authorization: Bearer <token>" when token is non-empty.
func NewHandler(p Planner, runs runlog.Store, token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/schedule", func(w http.ResponseWriter, r *http.Request) {
		day, ok := dayParam(w, r, p)
		if !ok {
			return
		}
		sheet, err := p.RunSheet(r.Context(), day)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sheet)
	})
	mux.HandleFunc("GET /api/schedule/unscheduled", func(w http.ResponseWriter, r *http.Request) {
		day, ok := dayParam(w, r, p)
		if !ok {
			return
		}
		ids, err := p.Unscheduled(r.Context(), day)
		if err != nil {
			writeError(w, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusOK, ids)
	})
	mux.HandleFunc("POST /api/schedule/place", func(w http.ResponseWriter, r *http.Request) {
		var req PlaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if req.JobID == "" {
			http.Error(w, "jobId is required", http.StatusBadRequest)
			return
		}
		day := p.ActiveDay()
		if req.Day != "" {
			d, err := model.ParseDay(req.Day)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			day = d
		}
		placed, err := p.Place(r.Context(), day, req.JobID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, placed)
	})
	mux.HandleFunc("POST /api/schedule/recompute", func(w http.ResponseWriter, r *http.Request) {
		day, ok := dayParam(w, r, p)
		if !ok {
			return
		}
		sheet, err := p.Recompute(r.Context(), day)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sheet)
	})
	mux.HandleFunc("GET /api/sync/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.SyncStatus())
	})
	mux.HandleFunc("POST /api/sync/enable", func(w http.ResponseWriter, r *http.Request) {
		if err := p.EnableSync(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, p.SyncStatus())
	})
	mux.HandleFunc("POST /api/sync/disable", func(w http.ResponseWriter, r *http.Request) {
		if err := p.DisableSync(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p.SyncStatus())
	})
	if runs != nil {
		mux.Handle("GET /api/schedule/runs", NewRunsHandler(runs))
	}
	return requireToken(token, mux)
}

func requireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func dayParam(w http.ResponseWriter, r *http.Request, p Planner) (model.Day, bool) {
	s := r.URL.Query().Get("day")
	if s == "" {
		return p.ActiveDay(), true
	}
	d, err := model.ParseDay(s)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return d, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrNoCapacity), errors.Is(err, coreschedule.ErrOverlap):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, coreschedule.ErrUnknownJob):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, docsync.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
