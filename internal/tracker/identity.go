package tracker

import (
	"time"

	"github.com/google/uuid"

	"github.com/nozo-moto/tcpcount/pkg/types"
)

// Events is the outcome of matching one snapshot against the retained records.
// The three lists are disjoint.
type Events struct {
	Opened    []*types.ConnectionRecord
	Closed    []*types.ConnectionRecord
	Continued []Continuation

	// Duplicates counts snapshot entries dropped because their key was
	// already present in the same snapshot.
	Duplicates int
}

// Continuation is a record present in both the previous and the current snapshot.
type Continuation struct {
	Record          *types.ConnectionRecord
	PrevProcessName string
}

// Renamed reports whether the refresh changed the record's process name,
// which moves it to different process-keyed groups.
func (c Continuation) Renamed() bool {
	return c.PrevProcessName != c.Record.ProcessName
}

// Resolver turns raw snapshots into stable connection records. It owns
// every live ConnectionRecord and is not safe for concurrent use.
type Resolver struct {
	records map[types.ConnectionKey]*types.ConnectionRecord
	tick    uint64
	newID   func() string
}

func NewResolver() *Resolver {
	return &Resolver{
		records: make(map[types.ConnectionKey]*types.ConnectionRecord),
		newID:   uuid.NewString,
	}
}

// Diff advances the tick counter and matches sockets against the records
// retained from the previous call. Keys absent from sockets are closed and
// forgotten, so a key that comes back later opens a new record.
func (r *Resolver) Diff(sockets []types.RawSocket, now time.Time) Events {
	r.tick++

	var ev Events
	seen := make(map[types.ConnectionKey]struct{}, len(sockets))

	for i := range sockets {
		s := &sockets[i]
		key := s.Key()
		if _, dup := seen[key]; dup {
			ev.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		name := s.ProcessName
		if name == "" {
			name = types.UnknownProcess
		}

		if rec, ok := r.records[key]; ok {
			prev := rec.ProcessName
			rec.LastSeen = r.tick
			rec.State = s.State
			// A failed lookup on a later tick never overwrites a resolved name.
			if name != types.UnknownProcess {
				rec.ProcessName = name
			}
			if s.Hostname != "" {
				rec.Hostname = s.Hostname
			}
			ev.Continued = append(ev.Continued, Continuation{Record: rec, PrevProcessName: prev})
			continue
		}

		rec := &types.ConnectionRecord{
			ID:          r.newID(),
			Key:         key,
			LocalAddr:   s.LocalAddr,
			ProcessName: name,
			Hostname:    s.Hostname,
			State:       s.State,
			FirstSeen:   r.tick,
			LastSeen:    r.tick,
			OpenedAt:    now,
		}
		r.records[key] = rec
		ev.Opened = append(ev.Opened, rec)
	}

	for key, rec := range r.records {
		if _, ok := seen[key]; ok {
			continue
		}
		delete(r.records, key)
		ev.Closed = append(ev.Closed, rec)
	}

	return ev
}

// Tick returns the number of the last processed snapshot.
func (r *Resolver) Tick() uint64 { return r.tick }

// Len returns the number of live records.
func (r *Resolver) Len() int { return len(r.records) }

func (r *Resolver) Lookup(key types.ConnectionKey) (*types.ConnectionRecord, bool) {
	rec, ok := r.records[key]
	return rec, ok
}

// Each calls fn for every live record in unspecified order.
func (r *Resolver) Each(fn func(*types.ConnectionRecord)) {
	for _, rec := range r.records {
		fn(rec)
	}
}

// Reset forgets every record. The tick counter keeps running.
func (r *Resolver) Reset() {
	r.records = make(map[types.ConnectionKey]*types.ConnectionRecord)
}
