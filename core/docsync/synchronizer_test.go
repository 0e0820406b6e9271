package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kilianp07/runsheet/core/model"
	"github.com/kilianp07/runsheet/internal/eventbus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testKey = "plan"

type fakeSource struct {
	mu   sync.Mutex
	jobs []model.Job
}

func (f *fakeSource) setJobs(jobs ...model.Job) {
	f.mu.Lock()
	f.jobs = jobs
	f.mu.Unlock()
}

func (f *fakeSource) Snapshot() model.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobs := append([]model.Job{}, f.jobs...)
	scheduled := []model.Placement{model.Unplaced("p", model.Monday, "j")}
	return model.Document{Jobs: &jobs, Scheduled: &scheduled}
}

type recApplier struct {
	mu   sync.Mutex
	docs []model.Document
}

func (r *recApplier) ApplyRemote(doc model.Document) {
	r.mu.Lock()
	r.docs = append(r.docs, doc)
	r.mu.Unlock()
}

func (r *recApplier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

func (r *recApplier) last() model.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[len(r.docs)-1]
}

// countingStore wraps a MemoryStore and records upserts.
type countingStore struct {
	*MemoryStore
	mu      sync.Mutex
	upserts [][]byte
	readErr error
	block   chan struct{}
}

func (c *countingStore) Read(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	err := c.readErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.MemoryStore.Read(ctx, key)
}

func (c *countingStore) Upsert(ctx context.Context, key string, blob []byte) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	c.upserts = append(c.upserts, blob)
	c.mu.Unlock()
	return c.MemoryStore.Upsert(ctx, key, blob)
}

func (c *countingStore) writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.upserts...)
}

func peerDoc(t *testing.T, writer string, trucks ...model.Truck) []byte {
	t.Helper()
	b, err := json.Marshal(model.Document{Trucks: &trucks, Meta: model.Meta{WriterID: writer}})
	require.NoError(t, err)
	return b
}

func start(t *testing.T, s *Synchronizer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func newSync(store DocumentStore, src Source, dst Applier, share bool) *Synchronizer {
	return New(store, src, dst, Config{Key: testKey, Debounce: 30 * time.Millisecond, Timeout: time.Second, ShareSchedule: share}, nil, nil, nil)
}

func waitState(t *testing.T, s *Synchronizer, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Status().State == want }, 2*time.Second, 5*time.Millisecond,
		"status stuck at %+v", s.Status())
}

func TestEnableAppliesRemoteDocument(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, mem.Upsert(context.Background(), testKey, peerDoc(t, "peer", model.Truck{ID: "t1"})))
	dst := &recApplier{}
	s := newSync(mem, &fakeSource{}, dst, false)
	start(t, s)

	assert.Equal(t, StatusDisabled, s.Status().State)
	require.NoError(t, s.Enable(context.Background()))
	waitState(t, s, StatusConnected)

	require.Equal(t, 1, dst.count())
	doc := dst.last()
	require.NotNil(t, doc.Trucks)
	assert.Equal(t, "t1", (*doc.Trucks)[0].ID)
	assert.Nil(t, doc.Jobs, "absent fields stay absent")
}

// racingStore lets a peer write land right after the first Read returns.
type racingStore struct {
	*MemoryStore
	once      sync.Once
	afterRead func()
}

func (r *racingStore) Read(ctx context.Context, key string) ([]byte, error) {
	b, err := r.MemoryStore.Read(ctx, key)
	r.once.Do(r.afterRead)
	return b, err
}

func TestWriteDuringEnableIsDelivered(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, mem.Upsert(context.Background(), testKey, peerDoc(t, "peer", model.Truck{ID: "t1"})))
	store := &racingStore{MemoryStore: mem}
	next := peerDoc(t, "peer", model.Truck{ID: "t2"})
	store.afterRead = func() {
		assert.NoError(t, mem.Upsert(context.Background(), testKey, next))
	}
	dst := &recApplier{}
	s := newSync(store, &fakeSource{}, dst, false)
	start(t, s)
	require.NoError(t, s.Enable(context.Background()))
	waitState(t, s, StatusConnected)

	require.Eventually(t, func() bool {
		if dst.count() < 2 {
			return false
		}
		trucks := dst.last().Trucks
		return trucks != nil && len(*trucks) == 1 && (*trucks)[0].ID == "t2"
	}, 2*time.Second, 5*time.Millisecond, "write made between read and subscribe was lost")
}

func TestNotifyDebouncesToLatestSnapshot(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, store.MemoryStore.Upsert(context.Background(), testKey, peerDoc(t, "peer")))
	src := &fakeSource{}
	s := newSync(store, src, &recApplier{}, false)
	start(t, s)
	require.NoError(t, s.Enable(context.Background()))
	waitState(t, s, StatusConnected)

	for i := 0; i < 5; i++ {
		src.setJobs(model.Job{ID: "j", Onsite: i})
		s.Notify()
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return len(store.writes()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	writes := store.writes()
	require.Len(t, writes, 1, "bursts collapse into one write")

	var doc model.Document
	require.NoError(t, json.Unmarshal(writes[0], &doc))
	assert.Equal(t, s.WriterID(), doc.Meta.WriterID)
	assert.False(t, doc.Meta.Timestamp.IsZero())
	require.NotNil(t, doc.Jobs)
	assert.Equal(t, 4, (*doc.Jobs)[0].Onsite)
	assert.Nil(t, doc.Scheduled, "placements are not shared by default")
}

func TestOwnWritesAreNotApplied(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, mem.Upsert(context.Background(), testKey, peerDoc(t, "peer")))
	dst := &recApplier{}
	s := newSync(mem, &fakeSource{}, dst, false)
	start(t, s)
	require.NoError(t, s.Enable(context.Background()))
	waitState(t, s, StatusConnected)
	require.Equal(t, 1, dst.count())

	s.Notify()
	require.Eventually(t, func() bool { return !s.Status().LastWrite.IsZero() }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, dst.count(), "echo must be discarded")

	require.NoError(t, mem.Upsert(context.Background(), testKey, peerDoc(t, "peer", model.Truck{ID: "t9"})))
	require.Eventually(t, func() bool { return dst.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "t9", (*dst.last().Trucks)[0].ID)
}

func TestDisableCancelsPendingWrite(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, store.MemoryStore.Upsert(context.Background(), testKey, peerDoc(t, "peer")))
	s := newSync(store, &fakeSource{}, &recApplier{}, false)
	start(t, s)
	require.NoError(t, s.Enable(context.Background()))
	waitState(t, s, StatusConnected)

	s.Notify()
	require.NoError(t, s.Disable(context.Background()))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, store.writes())
	assert.Equal(t, StatusDisabled, s.Status().State)

	s.Notify()
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, store.writes(), "notifications are ignored while disabled")
}

func TestLateWriteDoesNotReactivate(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore(), block: make(chan struct{})}
	require.NoError(t, store.MemoryStore.Upsert(context.Background(), testKey, peerDoc(t, "peer")))
	s := newSync(store, &fakeSource{}, &recApplier{}, false)
	start(t, s)
	require.NoError(t, s.Enable(context.Background()))
	waitState(t, s, StatusConnected)

	s.Notify()
	time.Sleep(80 * time.Millisecond)
	require.NoError(t, s.Disable(context.Background()))
	close(store.block)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StatusDisabled, s.Status().State)
	assert.True(t, s.Status().LastWrite.IsZero())
}

func TestReadErrorSetsStatusAndReenableRetries(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore(), readErr: errors.New("unauthorized")}
	bus := eventbus.NewTyped[Status]()
	defer bus.Close()
	statuses := bus.SubscribeBuffered(32)
	s := New(store, &fakeSource{}, &recApplier{}, Config{Key: testKey, Debounce: 20 * time.Millisecond}, nil, nil, bus)
	start(t, s)

	require.NoError(t, s.Enable(context.Background()))
	waitState(t, s, StatusError)
	assert.Contains(t, s.Status().Message, "unauthorized")

	s.Notify()
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, store.writes(), "failed session does not write")

	store.mu.Lock()
	store.readErr = nil
	store.mu.Unlock()
	require.NoError(t, s.Enable(context.Background()))
	waitState(t, s, StatusConnected)

	var seen []State
	for len(statuses) > 0 {
		seen = append(seen, (<-statuses).State)
	}
	assert.Equal(t, []State{StatusConnecting, StatusError, StatusConnecting, StatusConnected}, seen[:4])
}

func TestEnableSeedsEmptyStore(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	src := &fakeSource{}
	src.setJobs(model.Job{ID: "j1"})
	s := newSync(store, src, &recApplier{}, true)
	start(t, s)
	require.NoError(t, s.Enable(context.Background()))
	require.Eventually(t, func() bool { return len(store.writes()) == 1 }, 2*time.Second, 5*time.Millisecond)

	var doc model.Document
	require.NoError(t, json.Unmarshal(store.writes()[0], &doc))
	require.NotNil(t, doc.Scheduled, "placements are shared when enabled")
	assert.Len(t, *doc.Scheduled, 1)
}

func TestCommandsAfterStop(t *testing.T) {
	s := newSync(NewMemoryStore(), &fakeSource{}, &recApplier{}, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	cancel()
	<-done
	assert.ErrorIs(t, s.Enable(context.Background()), ErrStopped)
	assert.Error(t, s.Run(context.Background()))
	s.Notify()
}
