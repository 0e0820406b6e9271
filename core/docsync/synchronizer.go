package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/runsheet/core/logger"
	"github.com/kilianp07/runsheet/core/metrics"
	"github.com/kilianp07/runsheet/core/model"
	"github.com/kilianp07/runsheet/core/monitoring"
	"github.com/kilianp07/runsheet/internal/eventbus"
)

// ErrStopped is returned by commands sent after Run returned.
var ErrStopped = errors.New("synchronizer stopped")

// Source provides the local document written on each debounce.
type Source interface {
	Snapshot() model.Document
}

// Applier receives remote documents. Nil fields of doc must leave the
// matching local state untouched.
type Applier interface {
	ApplyRemote(doc model.Document)
}

type phase int

const (
	phaseOff phase = iota
	phaseConnecting
	phaseLive
	// phaseFailed waits for an explicit re-enable.
	phaseFailed
)

type command int

const (
	cmdEnable command = iota
	cmdDisable
)

// readDone carries the initial read. ch is the subscription opened before
// the read, so no write lands between the two unseen.
type readDone struct {
	gen  uint64
	ch   <-chan []byte
	blob []byte
	err  error
}

type subscribeFailed struct {
	gen uint64
	err error
}

type remoteBlob struct {
	gen  uint64
	blob []byte
}

type subClosed struct {
	gen uint64
}

type writeDone struct {
	gen   uint64
	bytes int
	err   error
}

// Synchronizer is an actor owning the store connection. Commands, local
// change notifications and remote documents are serialized on the goroutine
// running Run.
type Synchronizer struct {
	store    DocumentStore
	src      Source
	dst      Applier
	cfg      Config
	writerID string
	log      logger.Logger
	sink     metrics.MetricsSink
	bus      *eventbus.TypedBus[Status]
	now      func() time.Time

	status  atomic.Pointer[Status]
	cmds    chan command
	notify  chan struct{}
	msgs    chan any
	stopped chan struct{}
	started atomic.Bool
	wg      sync.WaitGroup

	// actor state, owned by Run
	gen     uint64
	phase   phase
	session context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	timerC  <-chan time.Time
	writing bool
	dirty   bool
	pending bool
	runCtx  context.Context
}

// New returns a disabled Synchronizer with a fresh writer id. log, sink and
// bus may be nil.
func New(store DocumentStore, src Source, dst Applier, cfg Config, log logger.Logger, sink metrics.MetricsSink, bus *eventbus.TypedBus[Status]) *Synchronizer {
	cfg.SetDefaults()
	s := &Synchronizer{
		store:    store,
		src:      src,
		dst:      dst,
		cfg:      cfg,
		writerID: uuid.NewString(),
		log:      logger.OrNop(log).With("component", "docsync"),
		sink:     metrics.OrNop(sink),
		bus:      bus,
		now:      time.Now,
		cmds:     make(chan command),
		notify:   make(chan struct{}, 1),
		msgs:     make(chan any),
		stopped:  make(chan struct{}),
	}
	s.status.Store(&Status{State: StatusDisabled, WriterID: s.writerID, Since: s.now()})
	return s
}

// WriterID returns the id stamped on every outgoing document.
func (s *Synchronizer) WriterID() string { return s.writerID }

// Status returns the latest connection status.
func (s *Synchronizer) Status() Status { return *s.status.Load() }

// Enable starts sharing: the key is subscribed, then the remote document is
// read and applied. Enabling an enabled synchronizer restarts it, which is
// also how a failed session is retried.
func (s *Synchronizer) Enable(ctx context.Context) error { return s.send(ctx, cmdEnable) }

// Disable stops sharing. A pending write is dropped and results of the
// current session that arrive later are ignored.
func (s *Synchronizer) Disable(ctx context.Context) error { return s.send(ctx, cmdDisable) }

func (s *Synchronizer) send(ctx context.Context, c command) error {
	select {
	case s.cmds <- c:
		return nil
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify reports a local change. It never blocks; notifications arriving
// while one is queued are merged.
func (s *Synchronizer) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run processes events until ctx ends. It may only be called once.
func (s *Synchronizer) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("synchronizer already running")
	}
	s.runCtx = ctx
	defer func() {
		s.teardown()
		close(s.stopped)
		s.wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-s.cmds:
			switch c {
			case cmdEnable:
				s.enable()
			case cmdDisable:
				s.teardown()
				s.setStatus(StatusDisabled, "")
			}
		case <-s.notify:
			s.arm()
		case <-s.timerC:
			s.timerC = nil
			s.fire()
		case m := <-s.msgs:
			s.handle(m)
		}
	}
}

func (s *Synchronizer) enable() {
	s.teardown()
	s.phase = phaseConnecting
	s.session, s.cancel = context.WithCancel(s.runCtx)
	s.setStatus(StatusConnecting, "")
	gen, sess := s.gen, s.session
	s.spawn(func() {
		ch, err := s.store.Subscribe(sess, s.cfg.Key)
		if err != nil {
			s.deliver(sess, subscribeFailed{gen: gen, err: err})
			return
		}
		ctx, cancel := context.WithTimeout(sess, s.cfg.Timeout)
		defer cancel()
		blob, err := s.store.Read(ctx, s.cfg.Key)
		s.deliver(sess, readDone{gen: gen, ch: ch, blob: blob, err: err})
	})
}

// teardown cancels the session and bumps the generation.
func (s *Synchronizer) teardown() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.stopTimer()
	s.phase = phaseOff
	s.writing, s.dirty, s.pending = false, false, false
}

func (s *Synchronizer) arm() {
	if s.phase != phaseConnecting && s.phase != phaseLive {
		return
	}
	s.stopTimer()
	s.timer = time.NewTimer(s.cfg.Debounce)
	s.timerC = s.timer.C
}

func (s *Synchronizer) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerC = nil
}

func (s *Synchronizer) fire() {
	s.timer = nil
	switch s.phase {
	case phaseLive:
		s.write()
	case phaseConnecting:
		s.pending = true
	}
}

func (s *Synchronizer) handle(m any) {
	switch m := m.(type) {
	case readDone:
		if m.gen == s.gen {
			s.onRead(m)
		}
	case subscribeFailed:
		if m.gen == s.gen {
			s.fail(fmt.Errorf("subscribe %s: %w", s.cfg.Key, m.err), "subscribe")
		}
	case remoteBlob:
		if m.gen == s.gen {
			s.onRemote(m.blob)
		}
	case subClosed:
		if m.gen == s.gen && s.phase == phaseLive {
			s.fail(errors.New("subscription closed by store"), "subscribe")
		}
	case writeDone:
		if m.gen == s.gen {
			s.onWrite(m)
		}
	}
}

func (s *Synchronizer) onRead(m readDone) {
	switch {
	case errors.Is(m.err, ErrNotFound):
		s.log.Infof("no shared document under %q, seeding it", s.cfg.Key)
		s.pending = true
	case m.err != nil:
		s.fail(fmt.Errorf("read %s: %w", s.cfg.Key, m.err), "read")
		return
	default:
		if err := s.applyBlob(m.blob); err != nil {
			s.fail(err, "read")
			return
		}
	}
	s.phase = phaseLive
	s.setStatus(StatusConnected, "")
	gen, sess := s.gen, s.session
	s.spawn(func() {
		for {
			select {
			case <-sess.Done():
				return
			case blob, ok := <-m.ch:
				if !ok {
					s.deliver(sess, subClosed{gen: gen})
					return
				}
				s.deliver(sess, remoteBlob{gen: gen, blob: blob})
			}
		}
	})
	if s.pending {
		s.pending = false
		s.write()
	}
}

func (s *Synchronizer) onRemote(blob []byte) {
	if err := s.applyBlob(blob); err != nil {
		s.log.Warnf("discard remote document: %v", err)
		monitoring.CaptureException(err, map[string]string{"component": "docsync", "op": "remote"})
		s.record(metrics.SyncInbound, len(blob), err)
	}
}

// applyBlob decodes a remote document and hands it to the applier unless
// it is an echo of this session's own write.
func (s *Synchronizer) applyBlob(blob []byte) error {
	var doc model.Document
	if err := json.Unmarshal(blob, &doc); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if doc.Meta.WriterID == s.writerID {
		s.record(metrics.SyncEcho, len(blob), nil)
		return nil
	}
	if !s.cfg.ShareSchedule {
		doc.Scheduled = nil
	}
	s.dst.ApplyRemote(doc)
	s.record(metrics.SyncInbound, len(blob), nil)
	st := s.Status()
	st.LastRemote = s.now()
	s.status.Store(&st)
	s.log.Debugw("remote document applied", map[string]any{"writer": doc.Meta.WriterID})
	return nil
}

func (s *Synchronizer) write() {
	if s.writing {
		s.dirty = true
		return
	}
	doc := s.src.Snapshot()
	if !s.cfg.ShareSchedule {
		doc.Scheduled = nil
	}
	doc.Meta = model.Meta{WriterID: s.writerID, Timestamp: s.now().UTC()}
	blob, err := json.Marshal(doc)
	if err != nil {
		s.log.Errorf("encode document: %v", err)
		return
	}
	s.writing = true
	gen, sess := s.gen, s.session
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(sess, s.cfg.Timeout)
		defer cancel()
		err := s.store.Upsert(ctx, s.cfg.Key, blob)
		s.deliver(sess, writeDone{gen: gen, bytes: len(blob), err: err})
	})
}

func (s *Synchronizer) onWrite(m writeDone) {
	s.writing = false
	s.record(metrics.SyncOutbound, m.bytes, m.err)
	if m.err != nil {
		err := fmt.Errorf("write %s: %w", s.cfg.Key, m.err)
		s.log.Errorf("%v", err)
		monitoring.CaptureException(err, map[string]string{"component": "docsync", "op": "write"})
		s.setStatus(StatusError, err.Error())
	} else {
		s.setStatus(StatusConnected, "")
		st := s.Status()
		st.LastWrite = s.now()
		s.status.Store(&st)
	}
	if s.dirty {
		s.dirty = false
		s.write()
	}
}

// fail records err and leaves the session idle until the next Enable.
func (s *Synchronizer) fail(err error, op string) {
	s.log.Errorf("%v", err)
	monitoring.CaptureException(err, map[string]string{"component": "docsync", "op": op})
	s.teardown()
	s.phase = phaseFailed
	s.setStatus(StatusError, err.Error())
}

func (s *Synchronizer) setStatus(state State, msg string) {
	prev := s.Status()
	if prev.State == state && prev.Message == msg {
		return
	}
	next := prev
	next.State, next.Message, next.Since = state, msg, s.now()
	s.status.Store(&next)
	if s.bus != nil {
		s.bus.Publish(next)
	}
}

func (s *Synchronizer) record(dir metrics.SyncDirection, n int, err error) {
	rec, ok := s.sink.(metrics.SyncRecorder)
	if !ok {
		return
	}
	ev := metrics.SyncEvent{Direction: dir, Bytes: n, Time: s.now()}
	if err != nil {
		ev.Err = err.Error()
	}
	if rerr := rec.RecordSync(ev); rerr != nil {
		s.log.Warnf("record sync: %v", rerr)
	}
}

func (s *Synchronizer) spawn(f func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
}

// deliver hands a result to the actor unless the session ended first.
func (s *Synchronizer) deliver(sess context.Context, m any) {
	select {
	case s.msgs <- m:
	case <-sess.Done():
	}
}
