// Package workspace holds the editable records: trucks, clients, jobs and
// settings. Mutations apply their cascades synchronously and publish a
// change event.
package workspace

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/runsheet/core/events"
	"github.com/kilianp07/runsheet/core/model"
	"github.com/kilianp07/runsheet/internal/eventbus"
)

// ErrNotFound is returned when a record id is unknown.
var ErrNotFound = errors.New("record not found")

// Placements is the part of the schedule state kept consistent with the
// records. *schedule.State implements it.
type Placements interface {
	RemoveJob(jobID string)
	RemoveTruck(truckID string)
	Prune(jobIDs []string)
	RetainTrucks(truckIDs []string)
}

// Workspace stores the records of one planning session. It is safe for
// concurrent use.
type Workspace struct {
	mu       sync.RWMutex
	trucks   []model.Truck
	clients  []model.Client
	jobs     []model.Job
	settings model.Settings

	placements Placements
	bus        *eventbus.TypedBus[events.Change]
	now        func() time.Time
}

// New returns an empty workspace with default settings. placements and bus
// may be nil.
func New(placements Placements, bus *eventbus.TypedBus[events.Change]) *Workspace {
	return &Workspace{
		settings:   model.DefaultSettings(),
		placements: placements,
		bus:        bus,
		now:        time.Now,
	}
}

// UpsertTruck inserts or replaces a truck. An empty id is replaced by a
// generated one, which is returned.
func (w *Workspace) UpsertTruck(t model.Truck) model.Truck {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	w.mu.Lock()
	if i := indexOf(w.trucks, t.ID, func(x model.Truck) string { return x.ID }); i >= 0 {
		w.trucks[i] = t
	} else {
		w.trucks = append(w.trucks, t)
	}
	w.mu.Unlock()
	w.publish(events.TruckUpserted, t.ID, "")
	return t
}

// RemoveTruck deletes a truck. Jobs pinned to it lose their pin and its
// placements are dropped on every day.
func (w *Workspace) RemoveTruck(id string) error {
	w.mu.Lock()
	i := indexOf(w.trucks, id, func(x model.Truck) string { return x.ID })
	if i < 0 {
		w.mu.Unlock()
		return ErrNotFound
	}
	w.trucks = append(w.trucks[:i], w.trucks[i+1:]...)
	for j := range w.jobs {
		if w.jobs[j].TruckID == id {
			w.jobs[j].TruckID = ""
		}
	}
	if w.placements != nil {
		w.placements.RemoveTruck(id)
	}
	w.mu.Unlock()
	w.publish(events.TruckRemoved, id, "")
	return nil
}

// UpsertClient inserts or replaces a client.
func (w *Workspace) UpsertClient(c model.Client) model.Client {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	w.mu.Lock()
	if i := indexOf(w.clients, c.ID, func(x model.Client) string { return x.ID }); i >= 0 {
		w.clients[i] = c
	} else {
		w.clients = append(w.clients, c)
	}
	w.mu.Unlock()
	w.publish(events.ClientUpserted, c.ID, "")
	return c
}

// RemoveClient deletes a client and clears it from the jobs that named it.
func (w *Workspace) RemoveClient(id string) error {
	w.mu.Lock()
	i := indexOf(w.clients, id, func(x model.Client) string { return x.ID })
	if i < 0 {
		w.mu.Unlock()
		return ErrNotFound
	}
	w.clients = append(w.clients[:i], w.clients[i+1:]...)
	for j := range w.jobs {
		if w.jobs[j].ClientID == id {
			w.jobs[j].ClientID = ""
		}
	}
	w.mu.Unlock()
	w.publish(events.ClientRemoved, id, "")
	return nil
}

// UpsertJob inserts or replaces a job. A new job takes the travel and
// on-site defaults of its client. Replacing a job with different placement
// inputs drops its placements.
func (w *Workspace) UpsertJob(j model.Job) model.Job {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Kind == "" {
		j.Kind = model.KindDelivery
	}
	w.mu.Lock()
	i := indexOf(w.jobs, j.ID, func(x model.Job) string { return x.ID })
	if i < 0 {
		if c := indexOf(w.clients, j.ClientID, func(x model.Client) string { return x.ID }); c >= 0 && j.ClientID != "" {
			j.ApplyClientDefaults(w.clients[c])
		}
		w.jobs = append(w.jobs, j)
	} else {
		if !model.PlacementInputsEqual(w.jobs[i], j) && w.placements != nil {
			w.placements.RemoveJob(j.ID)
		}
		w.jobs[i] = j
	}
	w.mu.Unlock()
	w.publish(events.JobUpserted, j.ID, j.Day)
	return j
}

// RemoveJob deletes a job and its placements.
func (w *Workspace) RemoveJob(id string) error {
	w.mu.Lock()
	i := indexOf(w.jobs, id, func(x model.Job) string { return x.ID })
	if i < 0 {
		w.mu.Unlock()
		return ErrNotFound
	}
	day := w.jobs[i].Day
	w.jobs = append(w.jobs[:i], w.jobs[i+1:]...)
	if w.placements != nil {
		w.placements.RemoveJob(id)
	}
	w.mu.Unlock()
	w.publish(events.JobRemoved, id, day)
	return nil
}

// SetSettings replaces the settings after normalizing them.
func (w *Workspace) SetSettings(s model.Settings) model.Settings {
	s = s.Normalized()
	w.mu.Lock()
	w.settings = s
	w.mu.Unlock()
	w.publish(events.SettingsChanged, "", s.ActiveDay)
	return s
}

// Apply overwrites every record list present in doc and leaves the others
// untouched. Placements of jobs or trucks that no longer exist, and of jobs
// whose placement inputs changed, are dropped.
// The scheduled field is not handled here.
func (w *Workspace) Apply(doc model.Document) {
	w.mu.Lock()
	if doc.Trucks != nil {
		w.trucks = append([]model.Truck(nil), (*doc.Trucks)...)
	}
	if doc.Clients != nil {
		w.clients = append([]model.Client(nil), (*doc.Clients)...)
	}
	var changed []string
	if doc.Jobs != nil {
		old := make(map[string]model.Job, len(w.jobs))
		for _, j := range w.jobs {
			old[j.ID] = j
		}
		w.jobs = cloneJobs(*doc.Jobs)
		for _, j := range w.jobs {
			if prev, ok := old[j.ID]; ok && !model.PlacementInputsEqual(prev, j) {
				changed = append(changed, j.ID)
			}
		}
	}
	if doc.Settings != nil {
		w.settings = doc.Settings.Normalized()
	}
	if w.placements != nil {
		if doc.Jobs != nil {
			w.placements.Prune(jobIDs(w.jobs))
			for _, id := range changed {
				w.placements.RemoveJob(id)
			}
		}
		if doc.Trucks != nil {
			ids := make([]string, len(w.trucks))
			for i, t := range w.trucks {
				ids[i] = t.ID
			}
			w.placements.RetainTrucks(ids)
		}
	}
	w.mu.Unlock()
	w.publish(events.RemoteApplied, doc.Meta.WriterID, "")
}

// Snapshot returns a deep copy of every record list and the settings.
func (w *Workspace) Snapshot() model.Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	trucks := append([]model.Truck{}, w.trucks...)
	clients := append([]model.Client{}, w.clients...)
	jobs := cloneJobs(w.jobs)
	settings := w.settings
	return model.Document{Trucks: &trucks, Clients: &clients, Jobs: &jobs, Settings: &settings}
}

// Trucks returns a copy of the fleet in insertion order.
func (w *Workspace) Trucks() []model.Truck {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]model.Truck(nil), w.trucks...)
}

// Clients returns a copy of the clients.
func (w *Workspace) Clients() []model.Client {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]model.Client(nil), w.clients...)
}

// Jobs returns a copy of the jobs.
func (w *Workspace) Jobs() []model.Job {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return cloneJobs(w.jobs)
}

// Job returns the job with id.
func (w *Workspace) Job(id string) (model.Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if i := indexOf(w.jobs, id, func(x model.Job) string { return x.ID }); i >= 0 {
		return cloneJobs(w.jobs[i : i+1])[0], true
	}
	return model.Job{}, false
}

// Settings returns the current settings.
func (w *Workspace) Settings() model.Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.settings
}

func (w *Workspace) publish(kind events.ChangeKind, id string, day model.Day) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(events.Change{Kind: kind, ID: id, Day: day, Time: w.now()})
}

func indexOf[T any](items []T, id string, key func(T) string) int {
	for i, it := range items {
		if key(it) == id {
			return i
		}
	}
	return -1
}

func cloneJobs(in []model.Job) []model.Job {
	out := make([]model.Job, len(in))
	for i, j := range in {
		if j.Priority != nil {
			p := *j.Priority
			j.Priority = &p
		}
		out[i] = j
	}
	return out
}

func jobIDs(jobs []model.Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}
