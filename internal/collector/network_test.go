package collector

import (
	"context"
	"errors"
	"testing"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozo-moto/tcpcount/pkg/types"
)

type fakeNames struct {
	names map[int32]string
	calls map[int32]int
}

func (f *fakeNames) Name(_ context.Context, pid int32) string {
	if f.calls == nil {
		f.calls = make(map[int32]int)
	}
	f.calls[pid]++
	return f.names[pid]
}

type fakeHosts map[string]string

func (f fakeHosts) Lookup(addr string) string { return f[addr] }

func conn(pid int32, status, lip string, lport uint32, rip string, rport uint32) psnet.ConnectionStat {
	return psnet.ConnectionStat{
		Status: status,
		Laddr:  psnet.Addr{IP: lip, Port: lport},
		Raddr:  psnet.Addr{IP: rip, Port: rport},
		Pid:    pid,
	}
}

func collectorWith(conns []psnet.ConnectionStat, err error, names NameLookup, hosts HostLookup) *NetworkCollector {
	nc := NewNetworkCollector(names, hosts)
	nc.connections = func(context.Context, string) ([]psnet.ConnectionStat, error) {
		return conns, err
	}
	return nc
}

func TestSnapshotConvertsSockets(t *testing.T) {
	names := &fakeNames{names: map[int32]string{10: "curl"}}
	nc := collectorWith([]psnet.ConnectionStat{
		conn(10, "ESTABLISHED", "192.168.1.10", 50000, "1.2.3.4", 443),
		conn(10, "ESTABLISHED", "192.168.1.10", 50001, "1.2.3.4", 443),
	}, nil, names, fakeHosts{"1.2.3.4": "example.com"})

	got, err := nc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.RawSocket{
		LocalAddr:   "192.168.1.10",
		LocalPort:   50000,
		RemoteAddr:  "1.2.3.4",
		RemotePort:  443,
		State:       "ESTABLISHED",
		PID:         10,
		ProcessName: "curl",
		Hostname:    "example.com",
	}, got[0])
	// one name lookup per pid per snapshot
	assert.Equal(t, 1, names.calls[10])
}

func TestSnapshotSkipsNonConnections(t *testing.T) {
	nc := collectorWith([]psnet.ConnectionStat{
		conn(10, "LISTEN", "0.0.0.0", 8080, "", 0),
		conn(10, "LISTEN", "::", 8080, "::", 0),
		conn(10, "CLOSE", "0.0.0.0", 8081, "0.0.0.0", 0),
		conn(10, "SYN_SENT", "192.168.1.10", 50000, "1.2.3.4", 443),
		conn(10, "TIME_WAIT", "192.168.1.10", 50001, "1.2.3.4", 443),
	}, nil, &fakeNames{names: map[int32]string{10: "curl"}}, nil)

	got, err := nc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SYN_SENT", got[0].State)
	assert.Equal(t, "TIME_WAIT", got[1].State)
	assert.Empty(t, got[0].Hostname)
}

func TestSnapshotUnknownOwners(t *testing.T) {
	names := &fakeNames{}
	nc := collectorWith([]psnet.ConnectionStat{
		conn(0, "ESTABLISHED", "192.168.1.10", 50000, "1.2.3.4", 443),
		conn(77, "ESTABLISHED", "192.168.1.10", 50001, "1.2.3.4", 443),
	}, nil, names, nil)

	got, err := nc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int32(0), got[0].PID)
	assert.Equal(t, types.UnknownProcess, got[0].ProcessName)
	assert.Equal(t, types.UnknownProcess, got[1].ProcessName)
	assert.Zero(t, names.calls[0], "pid 0 is never looked up")
}

func TestSnapshotFailureIsUnavailable(t *testing.T) {
	nc := collectorWith(nil, errors.New("open /proc/net/tcp: permission denied"), &fakeNames{}, nil)

	_, err := nc.Snapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSnapshotUnavailable)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestSnapshotHonoursCancellation(t *testing.T) {
	nc := collectorWith([]psnet.ConnectionStat{
		conn(10, "ESTABLISHED", "192.168.1.10", 50000, "1.2.3.4", 443),
	}, nil, &fakeNames{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := nc.Snapshot(ctx)
	assert.ErrorIs(t, err, types.ErrSnapshotUnavailable)
}
