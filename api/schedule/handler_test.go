package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/runsheet/core/docsync"
	"github.com/kilianp07/runsheet/core/model"
	coreschedule "github.com/kilianp07/runsheet/core/schedule"
	"github.com/kilianp07/runsheet/core/schedule/runlog"
	"github.com/kilianp07/runsheet/core/scheduler"
)

type mockPlanner struct{ mock.Mock }

func (m *mockPlanner) ActiveDay() model.Day { return model.Monday }

func (m *mockPlanner) RunSheet(ctx context.Context, day model.Day) (coreschedule.RunSheet, error) {
	args := m.Called(day)
	return args.Get(0).(coreschedule.RunSheet), args.Error(1)
}

func (m *mockPlanner) Unscheduled(ctx context.Context, day model.Day) ([]string, error) {
	args := m.Called(day)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockPlanner) Place(ctx context.Context, day model.Day, jobID string) (model.Placement, error) {
	args := m.Called(day, jobID)
	return args.Get(0).(model.Placement), args.Error(1)
}

func (m *mockPlanner) Recompute(ctx context.Context, day model.Day) (coreschedule.RunSheet, error) {
	args := m.Called(day)
	return args.Get(0).(coreschedule.RunSheet), args.Error(1)
}

func (m *mockPlanner) SyncStatus() docsync.Status {
	return docsync.Status{State: docsync.StatusConnected, WriterID: "w1"}
}

func (m *mockPlanner) EnableSync(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *mockPlanner) DisableSync(ctx context.Context) error {
	return m.Called().Error(0)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestGetSchedule(t *testing.T) {
	p := &mockPlanner{}
	p.On("RunSheet", model.Tuesday).Return(coreschedule.RunSheet{Day: model.Tuesday}, nil)
	p.On("RunSheet", model.Monday).Return(coreschedule.RunSheet{Day: model.Monday}, nil)
	h := NewHandler(p, nil, "")

	rr := do(h, http.MethodGet, "/api/schedule?day=tue", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sheet coreschedule.RunSheet
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sheet))
	assert.Equal(t, model.Tuesday, sheet.Day)

	rr = do(h, http.MethodGet, "/api/schedule", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(h, http.MethodGet, "/api/schedule?day=Sun", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	p.AssertExpectations(t)
}

func TestGetUnscheduled(t *testing.T) {
	p := &mockPlanner{}
	p.On("Unscheduled", model.Friday).Return([]string{"j9"}, nil)
	p.On("Unscheduled", model.Monday).Return(nil, nil)
	h := NewHandler(p, nil, "")

	rr := do(h, http.MethodGet, "/api/schedule/unscheduled?day=Fri", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `["j9"]`, rr.Body.String())

	rr = do(h, http.MethodGet, "/api/schedule/unscheduled", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestPlace(t *testing.T) {
	truck, start, end := "t1", 420, 480
	p := &mockPlanner{}
	p.On("Place", model.Monday, "j1").Return(model.Placement{ID: "p1", Day: model.Monday, JobID: "j1", TruckID: &truck, Start: &start, End: &end}, nil)
	p.On("Place", model.Monday, "full").Return(model.Placement{}, scheduler.ErrNoCapacity)
	p.On("Place", model.Monday, "ghost").Return(model.Placement{}, fmt.Errorf("ghost: %w", coreschedule.ErrUnknownJob))
	h := NewHandler(p, nil, "")

	rr := do(h, http.MethodPost, "/api/schedule/place", `{"jobId":"j1","day":"Mon"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var placed model.Placement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &placed))
	assert.Equal(t, "t1", placed.Truck())

	rr = do(h, http.MethodPost, "/api/schedule/place", `{"jobId":"full"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "no capacity")

	rr = do(h, http.MethodPost, "/api/schedule/place", `{"jobId":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(h, http.MethodPost, "/api/schedule/place", `{"day":"Mon"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(h, http.MethodPost, "/api/schedule/place", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(h, http.MethodGet, "/api/schedule/place", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRecomputeAndStatus(t *testing.T) {
	p := &mockPlanner{}
	p.On("Recompute", model.Wednesday).Return(coreschedule.RunSheet{Day: model.Wednesday}, nil)
	h := NewHandler(p, nil, "")

	rr := do(h, http.MethodPost, "/api/schedule/recompute?day=Wed", "")
	require.Equal(t, http.StatusOK, rr.Code)
	p.AssertCalled(t, "Recompute", model.Wednesday)

	rr = do(h, http.MethodGet, "/api/sync/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var st docsync.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, docsync.StatusConnected, st.State)
}

func TestSyncToggle(t *testing.T) {
	p := &mockPlanner{}
	p.On("EnableSync").Return(nil).Once()
	p.On("DisableSync").Return(nil).Once()
	p.On("EnableSync").Return(fmt.Errorf("enable sync: %w", docsync.ErrStopped))
	h := NewHandler(p, nil, "")

	rr := do(h, http.MethodPost, "/api/sync/enable", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	var st docsync.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, "w1", st.WriterID)

	rr = do(h, http.MethodPost, "/api/sync/disable", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(h, http.MethodPost, "/api/sync/enable", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = do(h, http.MethodGet, "/api/sync/enable", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	p.AssertNumberOfCalls(t, "EnableSync", 2)
	p.AssertNumberOfCalls(t, "DisableSync", 1)
}

func TestTokenRequired(t *testing.T) {
	h := NewHandler(&mockPlanner{}, nil, "tok")
	rr := do(h, http.MethodGet, "/api/sync/status", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

type memRuns struct{ recs []runlog.Record }

func (m *memRuns) Append(_ context.Context, r runlog.Record) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memRuns) Query(_ context.Context, q runlog.Query) ([]runlog.Record, error) {
	var res []runlog.Record
	for _, r := range m.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *memRuns) Close() error { return nil }

func TestRunsHandler(t *testing.T) {
	runs := &memRuns{}
	now := time.Now().UTC()
	require.NoError(t, runs.Append(context.Background(), runlog.Record{Timestamp: now, Day: model.Monday, Trigger: runlog.TriggerAuto}))
	require.NoError(t, runs.Append(context.Background(), runlog.Record{Timestamp: now, Day: model.Tuesday, Trigger: runlog.TriggerManual, JobID: "j1"}))
	h := NewHandler(&mockPlanner{}, runs, "")

	rr := do(h, http.MethodGet, "/api/schedule/runs?day=Tue&trigger=manual", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var out []runlog.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "j1", out[0].JobID)

	rr = do(h, http.MethodGet, "/api/schedule/runs?start="+now.Add(time.Hour).Format(time.RFC3339), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}
