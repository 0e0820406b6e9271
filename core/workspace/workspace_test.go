package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/runsheet/core/events"
	"github.com/kilianp07/runsheet/core/model"
	"github.com/kilianp07/runsheet/core/schedule"
	"github.com/kilianp07/runsheet/internal/eventbus"
)

func newWorkspace(t *testing.T) (*Workspace, *schedule.State, <-chan events.Change) {
	t.Helper()
	st := schedule.NewState()
	bus := eventbus.NewTyped[events.Change]()
	t.Cleanup(bus.Close)
	ch := bus.SubscribeBuffered(64)
	return New(st, bus), st, ch
}

func drain(ch <-chan events.Change) []events.ChangeKind {
	var out []events.ChangeKind
	for {
		select {
		case c := <-ch:
			out = append(out, c.Kind)
		default:
			return out
		}
	}
}

func TestWorkspace_RemoveTruckCascades(t *testing.T) {
	ws, st, ch := newWorkspace(t)
	ws.UpsertTruck(model.Truck{ID: "t1", Name: "Scania"})
	ws.UpsertTruck(model.Truck{ID: "t2"})
	ws.UpsertJob(model.Job{ID: "j1", Onsite: 60, TruckID: "t1", Day: model.Monday})
	ws.UpsertJob(model.Job{ID: "j2", Onsite: 60, Day: model.Tuesday})
	st.Load([]model.Placement{
		model.Placed("a", model.Monday, "j1", "t1", 420, 480),
		model.Placed("b", model.Tuesday, "j2", "t1", 420, 480),
		model.Placed("c", model.Tuesday, "x", "t2", 500, 560),
	})

	require.NoError(t, ws.RemoveTruck("t1"))

	j, ok := ws.Job("j1")
	require.True(t, ok)
	assert.False(t, j.Pinned())
	assert.Empty(t, st.Day(model.Monday))
	assert.Len(t, st.Day(model.Tuesday), 1)
	assert.Len(t, ws.Trucks(), 1)
	assert.ErrorIs(t, ws.RemoveTruck("t1"), ErrNotFound)

	kinds := drain(ch)
	assert.Equal(t, events.TruckRemoved, kinds[len(kinds)-1])
}

func TestWorkspace_RemoveClientClearsJobs(t *testing.T) {
	ws, _, _ := newWorkspace(t)
	ws.UpsertClient(model.Client{ID: "c1", Name: "Acme"})
	ws.UpsertJob(model.Job{ID: "j1", ClientID: "c1"})
	require.NoError(t, ws.RemoveClient("c1"))
	j, _ := ws.Job("j1")
	assert.Empty(t, j.ClientID)
	assert.Empty(t, ws.Clients())
}

func TestWorkspace_NewJobTakesClientDefaults(t *testing.T) {
	ws, _, _ := newWorkspace(t)
	ws.UpsertClient(model.Client{ID: "c1", DefaultTravel: 40, DefaultOnsite: 25})
	j := ws.UpsertJob(model.Job{ID: "j1", ClientID: "c1", Onsite: 10})
	assert.Equal(t, 40, j.Travel)
	assert.Equal(t, 10, j.Onsite)
	assert.Equal(t, model.KindDelivery, j.Kind)

	generated := ws.UpsertJob(model.Job{Title: "no id"})
	assert.NotEmpty(t, generated.ID)
}

func TestWorkspace_JobEditInvalidatesPlacements(t *testing.T) {
	ws, st, _ := newWorkspace(t)
	ws.UpsertJob(model.Job{ID: "j1", Onsite: 60, Day: model.Monday})
	require.NoError(t, st.Upsert(model.Placed("a", model.Monday, "j1", "t1", 420, 480)))

	ws.UpsertJob(model.Job{ID: "j1", Onsite: 60, Day: model.Monday, Notes: "gate code 1234"})
	assert.Len(t, st.Day(model.Monday), 1, "display-only edit keeps the placement")

	ws.UpsertJob(model.Job{ID: "j1", Onsite: 90, Day: model.Monday})
	assert.Empty(t, st.Day(model.Monday))
}

func TestWorkspace_RemoveJob(t *testing.T) {
	ws, st, ch := newWorkspace(t)
	ws.UpsertJob(model.Job{ID: "j1", Day: model.Friday})
	require.NoError(t, st.Upsert(model.Unplaced("a", model.Friday, "j1")))
	require.NoError(t, ws.RemoveJob("j1"))
	assert.Empty(t, st.All())
	assert.Equal(t, []events.ChangeKind{events.JobUpserted, events.JobRemoved}, drain(ch))
	assert.ErrorIs(t, ws.RemoveJob("j1"), ErrNotFound)
}

func TestWorkspace_ApplyPresentFieldsOnly(t *testing.T) {
	ws, st, ch := newWorkspace(t)
	ws.UpsertTruck(model.Truck{ID: "t1"})
	ws.UpsertClient(model.Client{ID: "c1"})
	ws.UpsertJob(model.Job{ID: "j1", Onsite: 30, Day: model.Monday})
	ws.UpsertJob(model.Job{ID: "j2", Onsite: 30, Day: model.Monday})
	st.Load([]model.Placement{
		model.Placed("a", model.Monday, "j1", "t1", 420, 450),
		model.Placed("b", model.Monday, "j2", "t1", 450, 480),
	})
	drain(ch)

	jobs := []model.Job{{ID: "j1", Onsite: 45, Day: model.Monday}}
	ws.Apply(model.Document{Jobs: &jobs, Meta: model.Meta{WriterID: "peer"}})

	assert.Len(t, ws.Trucks(), 1)
	assert.Len(t, ws.Clients(), 1)
	require.Len(t, ws.Jobs(), 1)
	assert.Equal(t, 45, ws.Jobs()[0].Onsite)
	assert.Empty(t, st.All(), "j2 pruned and j1 invalidated")
	assert.Equal(t, []events.ChangeKind{events.RemoteApplied}, drain(ch))

	settings := model.Settings{DayStart: "06:00", DayEnd: "14:00", Gap: -5, ActiveDay: "Sun"}
	trucks := []model.Truck{}
	ws.Apply(model.Document{Settings: &settings, Trucks: &trucks})
	assert.Equal(t, 1, ws.Settings().Gap)
	assert.Equal(t, model.Monday, ws.Settings().ActiveDay)
	assert.Empty(t, ws.Trucks())
}

func TestWorkspace_SnapshotIsDeepCopy(t *testing.T) {
	ws, _, _ := newWorkspace(t)
	prio := 3
	ws.UpsertJob(model.Job{ID: "j1", Priority: &prio})
	snap := ws.Snapshot()
	require.NotNil(t, snap.Jobs)
	*(*snap.Jobs)[0].Priority = 9
	(*snap.Jobs)[0].Title = "mutated"

	j, _ := ws.Job("j1")
	assert.Equal(t, 3, *j.Priority)
	assert.Empty(t, j.Title)
	assert.NotNil(t, snap.Trucks)
	assert.NotNil(t, snap.Settings)
	assert.Nil(t, snap.Scheduled)
}
