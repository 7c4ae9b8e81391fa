package collector

import (
	"context"
	"net"

	"github.com/pkg/errors"
	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/nozo-moto/tcpcount/pkg/types"
)

// connectionsFunc matches psnet.ConnectionsWithContext.
type connectionsFunc func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error)

// NameLookup resolves the owning process name of a pid.
type NameLookup interface {
	Name(ctx context.Context, pid int32) string
}

// HostLookup returns the known hostname of an address without blocking.
type HostLookup interface {
	Lookup(addr string) string
}

// NetworkCollector is the snapshot source backed by the OS socket table.
type NetworkCollector struct {
	connections connectionsFunc
	names       NameLookup
	hosts       HostLookup
}

// NewNetworkCollector returns a collector that names sockets through names
// and, when hosts is non-nil, attaches cached hostnames.
func NewNetworkCollector(names NameLookup, hosts HostLookup) *NetworkCollector {
	return &NetworkCollector{
		connections: psnet.ConnectionsWithContext,
		names:       names,
		hosts:       hosts,
	}
}

// Snapshot enumerates the current TCP sockets. Listening sockets and sockets
// without a remote peer are left out. Every failure wraps
// types.ErrSnapshotUnavailable.
func (nc *NetworkCollector) Snapshot(ctx context.Context) ([]types.RawSocket, error) {
	conns, err := nc.connections(ctx, "tcp")
	if err != nil {
		return nil, errors.Wrapf(types.ErrSnapshotUnavailable, "failed to get connections: %v", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(types.ErrSnapshotUnavailable, "failed to get connections: %v", err)
	}

	sockets := make([]types.RawSocket, 0, len(conns))
	names := make(map[int32]string)

	for _, conn := range conns {
		if conn.Status == "LISTEN" || !hasPeer(conn.Raddr) {
			continue
		}

		name, ok := names[conn.Pid]
		if !ok {
			name = types.UnknownProcess
			if conn.Pid > 0 && nc.names != nil {
				if n := nc.names.Name(ctx, conn.Pid); n != "" {
					name = n
				}
			}
			names[conn.Pid] = name
		}

		s := types.RawSocket{
			LocalAddr:   conn.Laddr.IP,
			LocalPort:   uint16(conn.Laddr.Port),
			RemoteAddr:  conn.Raddr.IP,
			RemotePort:  uint16(conn.Raddr.Port),
			State:       conn.Status,
			PID:         conn.Pid,
			ProcessName: name,
		}
		if nc.hosts != nil {
			s.Hostname = nc.hosts.Lookup(s.RemoteAddr)
		}
		sockets = append(sockets, s)
	}

	return sockets, nil
}

func hasPeer(a psnet.Addr) bool {
	if a.IP == "" || a.Port == 0 {
		return false
	}
	ip := net.ParseIP(a.IP)
	return ip == nil || !ip.IsUnspecified()
}
