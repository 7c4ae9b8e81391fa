package tracker

import "github.com/nozo-moto/tcpcount/pkg/types"

type HostRow struct {
	Key      types.HostKey
	Hostname string
	Stats    types.GroupStats
}

// Label is the hostname when one is known, the address otherwise.
func (r HostRow) Label() string {
	if r.Hostname != "" {
		return r.Hostname
	}
	return r.Key.Addr
}

type ProcessRow struct {
	Key   types.ProcessKey
	Alive bool
	Stats types.GroupStats
}

type ProcessHostRow struct {
	Key      types.ProcessHostKey
	Hostname string
	Stats    types.GroupStats
}

func (r ProcessHostRow) Label() string {
	if r.Hostname != "" {
		return r.Hostname
	}
	return r.Key.Addr
}

// Rows is one complete set of displayed aggregates. Slices are in
// unspecified order; ordering is a presentation concern.
type Rows struct {
	Global       types.GroupStats
	Hosts        []HostRow
	Processes    []ProcessRow
	ProcessHosts []ProcessHostRow
}
