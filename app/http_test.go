package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/runsheet/core/docsync"
	"github.com/kilianp07/runsheet/core/model"
)

func TestService_Handler(t *testing.T) {
	s := start(t, testConfig(), docsync.NewMemoryStore())
	trucks := []model.Truck{{ID: "t1"}}
	jobs := []model.Job{{ID: "j1", Kind: model.KindDelivery, Onsite: 60, Day: model.Wednesday}}
	require.NoError(t, s.Import(context.Background(), model.Document{Trucks: &trucks, Jobs: &jobs}))

	h := s.Handler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/schedule/place", strings.NewReader(`{"jobId":"j1","day":"Wed"}`)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var st docsync.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, docsync.StatusDisabled, st.State)
	assert.Equal(t, s.Sync.WriterID(), st.WriterID)
}

// bootStore fails the first Read, like a broker that is not up yet.
type bootStore struct {
	*docsync.MemoryStore
	mu     sync.Mutex
	failed bool
}

func (b *bootStore) Read(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	first := !b.failed
	b.failed = true
	b.mu.Unlock()
	if first {
		return nil, errors.New("broker not ready")
	}
	return b.MemoryStore.Read(ctx, key)
}

func TestService_SyncRetryOverHTTP(t *testing.T) {
	store := &bootStore{MemoryStore: docsync.NewMemoryStore()}
	cfg := testConfig()
	cfg.Sync.Enabled = true
	s := start(t, cfg, store)
	require.Eventually(t, func() bool { return s.SyncStatus().State == docsync.StatusError }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, s.SyncStatus().Message, "broker not ready")

	h := s.Handler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sync/enable", nil))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Eventually(t, func() bool { return s.SyncStatus().State == docsync.StatusConnected }, 2*time.Second, 10*time.Millisecond)
	// the empty store is seeded once connected
	require.Eventually(t, func() bool {
		_, err := store.MemoryStore.Read(context.Background(), cfg.Sync.Key)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sync/disable", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Eventually(t, func() bool { return s.SyncStatus().State == docsync.StatusDisabled }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.EnableSync(context.Background()))
	require.Eventually(t, func() bool { return s.SyncStatus().State == docsync.StatusConnected }, 2*time.Second, 10*time.Millisecond)
}
