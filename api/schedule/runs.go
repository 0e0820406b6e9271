package schedule

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kilianp07/runsheet/core/model"
	"github.com/kilianp07/runsheet/core/schedule/runlog"
)

// NewRunsHandler exposes the schedule run history via
// GET /api/schedule/runs?start=&end=&day=&trigger=. Times are RFC3339;
// invalid filters are ignored.
func NewRunsHandler(store runlog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := runlog.Query{}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		if s := r.URL.Query().Get("day"); s != "" {
			if d, err := model.ParseDay(s); err == nil {
				q.Day = d
			}
		}
		switch tr := runlog.Trigger(r.URL.Query().Get("trigger")); tr {
		case runlog.TriggerAuto, runlog.TriggerForce, runlog.TriggerManual:
			q.Trigger = tr
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []runlog.Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
