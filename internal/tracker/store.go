package tracker

import (
	"fmt"

	"github.com/nozo-moto/tcpcount/pkg/types"
)

// Dimension names used in rows and invariant reports.
const (
	DimGlobal      = "global"
	DimHost        = "host"
	DimProcess     = "process"
	DimProcessHost = "process-host"
)

func openStats(s *types.GroupStats) {
	s.Total++
	s.Active++
	if s.Active > s.Max {
		s.Max = s.Active
	}
}

// closeStats decrements Active, clamping at zero. It returns false when the
// decrement would have gone negative.
func closeStats(s *types.GroupStats) bool {
	if s.Active <= 0 {
		s.Active = 0
		return false
	}
	s.Active--
	return true
}

type table[K comparable] struct {
	dim  string
	rows map[K]*types.GroupStats
}

func newTable[K comparable](dim string) *table[K] {
	return &table[K]{dim: dim, rows: make(map[K]*types.GroupStats)}
}

func (t *table[K]) open(k K) {
	s, ok := t.rows[k]
	if !ok {
		s = &types.GroupStats{}
		t.rows[k] = s
	}
	openStats(s)
}

func (t *table[K]) close(k K, rec types.ConnectionKey) *types.InvariantViolation {
	s, ok := t.rows[k]
	if !ok {
		return &types.InvariantViolation{
			Dimension: t.dim,
			Group:     fmt.Sprint(k),
			Record:    rec,
			Message:   "close for a group that was never opened",
		}
	}
	if !closeStats(s) {
		return &types.InvariantViolation{
			Dimension: t.dim,
			Group:     fmt.Sprint(k),
			Record:    rec,
			Message:   "active count would drop below zero",
		}
	}
	return nil
}

func (t *table[K]) get(k K) (types.GroupStats, bool) {
	s, ok := t.rows[k]
	if !ok {
		return types.GroupStats{}, false
	}
	return *s, true
}

func (t *table[K]) each(fn func(K, types.GroupStats)) {
	for k, s := range t.rows {
		fn(k, *s)
	}
}

// Store holds the canonical, unfiltered counters for the global row and the
// three grouping dimensions. Rows are never deleted: a group whose last
// connection closed keeps Total and Max with Active at zero.
type Store struct {
	global       types.GroupStats
	hosts        *table[types.HostKey]
	processes    *table[types.ProcessKey]
	processHosts *table[types.ProcessHostKey]
}

func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

func (s *Store) Reset() {
	s.global = types.GroupStats{}
	s.hosts = newTable[types.HostKey](DimHost)
	s.processes = newTable[types.ProcessKey](DimProcess)
	s.processHosts = newTable[types.ProcessHostKey](DimProcessHost)
}

// Apply folds one tick of events into the counters. Closes are applied
// before opens so Max reflects the concurrency of the snapshot itself, not
// a transient mix of the previous and current one. Counting inconsistencies
// are clamped and returned rather than propagated.
func (s *Store) Apply(ev Events) []types.InvariantViolation {
	var faults []types.InvariantViolation
	report := func(v *types.InvariantViolation) {
		if v != nil {
			faults = append(faults, *v)
		}
	}

	for _, rec := range ev.Closed {
		if !closeStats(&s.global) {
			report(&types.InvariantViolation{
				Dimension: DimGlobal,
				Group:     DimGlobal,
				Record:    rec.Key,
				Message:   "active count would drop below zero",
			})
		}
		report(s.hosts.close(rec.HostKey(), rec.Key))
		report(s.processes.close(rec.ProcessKey(), rec.Key))
		report(s.processHosts.close(rec.ProcessHostKey(), rec.Key))
	}

	for _, c := range ev.Continued {
		if !c.Renamed() {
			continue
		}
		rec := c.Record
		report(s.processes.close(types.ProcessKey{Name: c.PrevProcessName, PID: rec.Key.PID}, rec.Key))
		report(s.processHosts.close(types.ProcessHostKey{
			Name: c.PrevProcessName,
			Addr: rec.Key.RemoteAddr,
			Port: rec.Key.RemotePort,
		}, rec.Key))
		s.processes.open(rec.ProcessKey())
		s.processHosts.open(rec.ProcessHostKey())
	}

	for _, rec := range ev.Opened {
		openStats(&s.global)
		s.hosts.open(rec.HostKey())
		s.processes.open(rec.ProcessKey())
		s.processHosts.open(rec.ProcessHostKey())
	}

	return faults
}

func (s *Store) Global() types.GroupStats { return s.global }

func (s *Store) Host(k types.HostKey) (types.GroupStats, bool) { return s.hosts.get(k) }

func (s *Store) Process(k types.ProcessKey) (types.GroupStats, bool) { return s.processes.get(k) }

func (s *Store) ProcessHost(k types.ProcessHostKey) (types.GroupStats, bool) {
	return s.processHosts.get(k)
}

// Rows copies the canonical counters into display rows.
func (s *Store) Rows(hostnames map[string]string) Rows {
	rows := Rows{
		Global:       s.global,
		Hosts:        make([]HostRow, 0, len(s.hosts.rows)),
		Processes:    make([]ProcessRow, 0, len(s.processes.rows)),
		ProcessHosts: make([]ProcessHostRow, 0, len(s.processHosts.rows)),
	}
	s.hosts.each(func(k types.HostKey, st types.GroupStats) {
		rows.Hosts = append(rows.Hosts, HostRow{Key: k, Hostname: hostnames[k.Addr], Stats: st})
	})
	s.processes.each(func(k types.ProcessKey, st types.GroupStats) {
		rows.Processes = append(rows.Processes, ProcessRow{Key: k, Stats: st})
	})
	s.processHosts.each(func(k types.ProcessHostKey, st types.GroupStats) {
		rows.ProcessHosts = append(rows.ProcessHosts, ProcessHostRow{Key: k, Hostname: hostnames[k.Addr], Stats: st})
	})
	return rows
}
