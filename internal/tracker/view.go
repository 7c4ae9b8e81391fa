package tracker

import (
	"github.com/nozo-moto/tcpcount/internal/filter"
	"github.com/nozo-moto/tcpcount/pkg/types"
)

// Attributes extracts the properties a filter predicate looks at.
func Attributes(rec *types.ConnectionRecord) filter.Attributes {
	return filter.Attributes{
		PID:         rec.Key.PID,
		ProcessName: rec.ProcessName,
		RemoteAddr:  rec.Key.RemoteAddr,
		Hostname:    rec.Hostname,
		RemotePort:  rec.Key.RemotePort,
	}
}

type peaks[K comparable] map[K]*types.GroupStats

func (p peaks[K]) row(k K) *types.GroupStats {
	s, ok := p[k]
	if !ok {
		s = &types.GroupStats{}
		p[k] = s
	}
	return s
}

func (p peaks[K]) zeroActive() {
	for _, s := range p {
		s.Active = 0
	}
}

func (p peaks[K]) updateMax() {
	for _, s := range p {
		if s.Active > s.Max {
			s.Max = s.Active
		}
	}
}

// View is the read path that produces displayed rows. With an empty
// predicate it returns the canonical store rows. Otherwise active counts are
// recomputed from the live records on every pass, while Total and Max are
// accumulated only for as long as the same predicate stays in effect: a
// predicate change starts them over from the live records that pass it.
type View struct {
	pred filter.Predicate

	global       types.GroupStats
	hosts        peaks[types.HostKey]
	processes    peaks[types.ProcessKey]
	processHosts peaks[types.ProcessHostKey]

	// counted maps the IDs of live records already included in Total to the
	// process name they were counted under.
	counted map[string]string

	hostnames map[string]string
}

func NewView() *View {
	v := &View{hostnames: make(map[string]string)}
	v.reseed(filter.Predicate{})
	return v
}

func (v *View) reseed(pred filter.Predicate) {
	v.pred = pred
	v.global = types.GroupStats{}
	v.hosts = make(peaks[types.HostKey])
	v.processes = make(peaks[types.ProcessKey])
	v.processHosts = make(peaks[types.ProcessHostKey])
	v.counted = make(map[string]string)
}

// Reset drops all accumulated state, including remembered hostnames.
func (v *View) Reset() {
	v.reseed(v.pred)
	v.hostnames = make(map[string]string)
}

// Predicate returns the predicate the accumulators currently belong to.
func (v *View) Predicate() filter.Predicate { return v.pred }

// Compute runs one read pass over the live records.
func (v *View) Compute(pred filter.Predicate, live *Resolver, store *Store) Rows {
	live.Each(func(rec *types.ConnectionRecord) {
		if rec.Hostname != "" {
			v.hostnames[rec.Key.RemoteAddr] = rec.Hostname
		}
	})

	if pred.IsEmpty() {
		if !v.pred.IsEmpty() {
			v.reseed(pred)
		}
		return store.Rows(v.hostnames)
	}
	if pred != v.pred {
		v.reseed(pred)
	}

	v.global.Active = 0
	v.hosts.zeroActive()
	v.processes.zeroActive()
	v.processHosts.zeroActive()

	counted := make(map[string]string, len(v.counted))
	live.Each(func(rec *types.ConnectionRecord) {
		if !pred.Match(Attributes(rec)) {
			return
		}
		host := v.hosts.row(rec.HostKey())
		proc := v.processes.row(rec.ProcessKey())
		procHost := v.processHosts.row(rec.ProcessHostKey())

		v.global.Active++
		host.Active++
		proc.Active++
		procHost.Active++

		name, seen := v.counted[rec.ID]
		if !seen {
			v.global.Total++
			host.Total++
		}
		if !seen || name != rec.ProcessName {
			proc.Total++
			procHost.Total++
		}
		counted[rec.ID] = rec.ProcessName
	})
	v.counted = counted

	if v.global.Active > v.global.Max {
		v.global.Max = v.global.Active
	}
	v.hosts.updateMax()
	v.processes.updateMax()
	v.processHosts.updateMax()

	rows := Rows{
		Global:       v.global,
		Hosts:        make([]HostRow, 0, len(v.hosts)),
		Processes:    make([]ProcessRow, 0, len(v.processes)),
		ProcessHosts: make([]ProcessHostRow, 0, len(v.processHosts)),
	}
	for k, s := range v.hosts {
		rows.Hosts = append(rows.Hosts, HostRow{Key: k, Hostname: v.hostnames[k.Addr], Stats: *s})
	}
	for k, s := range v.processes {
		rows.Processes = append(rows.Processes, ProcessRow{Key: k, Stats: *s})
	}
	for k, s := range v.processHosts {
		rows.ProcessHosts = append(rows.ProcessHosts, ProcessHostRow{Key: k, Hostname: v.hostnames[k.Addr], Stats: *s})
	}
	return rows
}
