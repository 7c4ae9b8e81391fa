package tracker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nozo-moto/tcpcount/internal/filter"
	"github.com/nozo-moto/tcpcount/internal/notice"
	"github.com/nozo-moto/tcpcount/pkg/types"
)

//go:generate mockgen -source=engine.go -destination=mock_engine_test.go -package=tracker

// Source enumerates the currently open TCP sockets.
type Source interface {
	Snapshot(ctx context.Context) ([]types.RawSocket, error)
}

// LivenessProber reports whether a process still exists.
type LivenessProber interface {
	Alive(ctx context.Context, pid int32) bool
}

// TickStats summarizes one completed tick for metrics.
type TickStats struct {
	Opened   int
	Closed   int
	Live     int
	Global   types.GroupStats
	Duration time.Duration
}

// Recorder receives pipeline measurements.
type Recorder interface {
	ObserveTick(TickStats)
	SnapshotFailed()
	InvariantViolated(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTick(TickStats) {}
func (nopRecorder) SnapshotFailed()       {}
func (nopRecorder) InvariantViolated(int) {}

// State is one published, immutable view of the pipeline. Readers must not
// modify it.
type State struct {
	Session  string
	Tick     uint64
	Time     time.Time
	Interval time.Duration
	Filter   filter.Predicate

	// Rows are the filtered aggregates; Canonical is the unfiltered global row.
	Rows      Rows
	Canonical types.GroupStats
	Live      int
	History   []types.HistorySample

	// Faults counts invariant violations since the last reset.
	Faults int
	// Err is the failure of the most recent tick, nil when it succeeded.
	Err error
}

type Options struct {
	Interval    time.Duration
	HistorySize int
	Filter      filter.Predicate
	Logger      *zap.SugaredLogger
	Notices     *notice.Board
	Recorder    Recorder
	Prober      LivenessProber
}

// Engine drives Source -> Resolver -> Store -> History on a fixed interval.
// The polling goroutine is the only writer of tracking state; everything
// else reads the State published after each tick.
type Engine struct {
	source   Source
	interval time.Duration
	log      *zap.SugaredLogger
	notices  *notice.Board
	recorder Recorder
	prober   LivenessProber
	now      func() time.Time

	resolver *Resolver
	store    *Store
	view     *View
	history  *History
	filter   filter.Predicate
	session  string
	faults   int

	current       atomic.Pointer[State]
	pendingFilter atomic.Pointer[filter.Predicate]
	pendingReset  atomic.Bool
	wake          chan struct{}
}

func NewEngine(source Source, opt Options) *Engine {
	if opt.Interval <= 0 {
		opt.Interval = time.Second
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop().Sugar()
	}
	if opt.Notices == nil {
		opt.Notices = notice.NewBoard(16)
	}
	if opt.Recorder == nil {
		opt.Recorder = nopRecorder{}
	}

	e := &Engine{
		source:   source,
		interval: opt.Interval,
		log:      opt.Logger,
		notices:  opt.Notices,
		recorder: opt.Recorder,
		prober:   opt.Prober,
		now:      time.Now,
		resolver: NewResolver(),
		store:    NewStore(),
		view:     NewView(),
		history:  NewHistory(opt.HistorySize),
		filter:   opt.Filter,
		session:  uuid.NewString(),
		wake:     make(chan struct{}, 1),
	}
	e.publish(Rows{}, e.now(), nil)
	return e
}

// Current returns the most recently published state. It never returns nil.
func (e *Engine) Current() *State {
	return e.current.Load()
}

// Notices returns the board the engine posts status messages to.
func (e *Engine) Notices() *notice.Board {
	return e.notices
}

// SetFilter asks the poller to switch predicates. It never blocks.
func (e *Engine) SetFilter(p filter.Predicate) {
	e.pendingFilter.Store(&p)
	e.poke()
}

// Reset asks the poller to clear all tracking state and restart from an
// empty baseline. It never blocks.
func (e *Engine) Reset() {
	e.pendingReset.Store(true)
	e.poke()
}

func (e *Engine) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. The first tick happens immediately and
// ticks never overlap.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Infof("tracking session %s started, interval %s", e.session, e.interval)
	e.applyPending(ctx)
	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Infof("tracking session %s stopped after %d ticks", e.session, e.resolver.Tick())
			return nil
		case <-e.wake:
			e.applyPending(ctx)
		case <-ticker.C:
			e.applyPending(ctx)
			e.tick(ctx)
		}
	}
}

// applyPending handles filter and reset requests, republishing when either
// changed anything. It does not take a snapshot or record history.
func (e *Engine) applyPending(ctx context.Context) {
	changed := false

	if e.pendingReset.Swap(false) {
		e.reset()
		changed = true
	}
	if p := e.pendingFilter.Swap(nil); p != nil && *p != e.filter {
		e.log.Infof("filter changed: %s -> %s", e.filter, *p)
		e.filter = *p
		changed = true
	}

	if changed {
		e.publish(e.compute(ctx), e.now(), nil)
	}
}

func (e *Engine) reset() {
	old := e.session
	e.resolver.Reset()
	e.store.Reset()
	e.view.Reset()
	e.history.Reset()
	e.faults = 0
	e.session = uuid.NewString()
	e.log.Infof("tracking reset: session %s replaced by %s", old, e.session)
	e.notices.Post(notice.KindInfo, notice.SeverityInfo, "statistics reset", map[string]interface{}{
		"session": e.session,
	})
}

func (e *Engine) tick(ctx context.Context) {
	start := e.now()

	sctx, cancel := context.WithTimeout(ctx, e.interval)
	sockets, err := e.source.Snapshot(sctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.skip(err)
		return
	}

	ev := e.resolver.Diff(sockets, start)
	if ev.Duplicates > 0 {
		e.log.Debugf("tick %d: dropped %d duplicate socket entries", e.resolver.Tick(), ev.Duplicates)
	}

	if faults := e.store.Apply(ev); len(faults) > 0 {
		e.faults += len(faults)
		e.recorder.InvariantViolated(len(faults))
		for _, f := range faults {
			e.log.Errorf("invariant violation at tick %d: %s", e.resolver.Tick(), f)
			e.notices.Post(notice.KindInvariantViolation, notice.SeverityCritical, f.String(), map[string]interface{}{
				"dimension": f.Dimension,
				"group":     f.Group,
				"tick":      e.resolver.Tick(),
			})
		}
	}

	rows := e.compute(ctx)
	e.history.Push(types.HistorySample{Time: start, Active: rows.Global.Active})
	e.publish(rows, start, nil)

	e.log.Debugf("tick %d: %d opened, %d closed, %d live", e.resolver.Tick(), len(ev.Opened), len(ev.Closed), e.resolver.Len())
	e.recorder.ObserveTick(TickStats{
		Opened:   len(ev.Opened),
		Closed:   len(ev.Closed),
		Live:     e.resolver.Len(),
		Global:   e.store.Global(),
		Duration: e.now().Sub(start),
	})
}

// skip republishes the previous state unchanged apart from the error.
func (e *Engine) skip(err error) {
	if !errors.Is(err, types.ErrSnapshotUnavailable) {
		err = errors.Wrap(types.ErrSnapshotUnavailable, err.Error())
	}
	e.log.Warnf("tick skipped: %v", err)
	e.recorder.SnapshotFailed()
	e.notices.Post(notice.KindSnapshotUnavailable, notice.SeverityWarning, err.Error(), nil)

	prev := *e.current.Load()
	prev.Err = err
	e.current.Store(&prev)
}

func (e *Engine) compute(ctx context.Context) Rows {
	rows := e.view.Compute(e.filter, e.resolver, e.store)
	for i := range rows.Processes {
		r := &rows.Processes[i]
		switch {
		case r.Stats.Active > 0:
			r.Alive = true
		case r.Key.PID == 0:
			r.Alive = false
		case e.prober == nil:
			r.Alive = true
		default:
			r.Alive = e.prober.Alive(ctx, r.Key.PID)
		}
	}
	return rows
}

func (e *Engine) publish(rows Rows, now time.Time, err error) {
	e.current.Store(&State{
		Session:   e.session,
		Tick:      e.resolver.Tick(),
		Time:      now,
		Interval:  e.interval,
		Filter:    e.filter,
		Rows:      rows,
		Canonical: e.store.Global(),
		Live:      e.resolver.Len(),
		History:   e.history.Samples(),
		Faults:    e.faults,
		Err:       err,
	})
}
