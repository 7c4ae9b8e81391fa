package tracker

import (
	"time"

	"github.com/nozo-moto/tcpcount/pkg/types"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sock(pid int32, name, addr string, rport, lport uint16) types.RawSocket {
	return types.RawSocket{
		LocalAddr:   "192.168.1.10",
		LocalPort:   lport,
		RemoteAddr:  addr,
		RemotePort:  rport,
		State:       "ESTABLISHED",
		PID:         pid,
		ProcessName: name,
	}
}

// pipeline runs the resolver and store the way the engine does, without the
// source and publishing around them.
type pipeline struct {
	resolver *Resolver
	store    *Store
	view     *View
	faults   []types.InvariantViolation
	tick     int
}

func newPipeline() *pipeline {
	return &pipeline{resolver: NewResolver(), store: NewStore(), view: NewView()}
}

func (p *pipeline) step(sockets ...types.RawSocket) Events {
	p.tick++
	ev := p.resolver.Diff(sockets, epoch.Add(time.Duration(p.tick)*time.Second))
	p.faults = append(p.faults, p.store.Apply(ev)...)
	return ev
}
