package types

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// UnknownProcess is the placeholder name for sockets whose owner could not be resolved.
const UnknownProcess = "unknown"

// ErrSnapshotUnavailable is wrapped by every Snapshot Source failure.
var ErrSnapshotUnavailable = errors.New("socket snapshot unavailable")

// RawSocket is one entry of a socket table snapshot.
type RawSocket struct {
	LocalAddr   string
	LocalPort   uint16
	RemoteAddr  string
	RemotePort  uint16
	State       string
	PID         int32
	ProcessName string
	Hostname    string
}

// Key returns the identity used to match the socket across ticks.
func (s RawSocket) Key() ConnectionKey {
	return ConnectionKey{
		RemoteAddr: s.RemoteAddr,
		RemotePort: s.RemotePort,
		LocalPort:  s.LocalPort,
		PID:        s.PID,
	}
}

type ConnectionKey struct {
	RemoteAddr string
	RemotePort uint16
	LocalPort  uint16
	PID        int32
}

func (k ConnectionKey) String() string {
	return fmt.Sprintf("pid %d :%d -> %s", k.PID, k.LocalPort, JoinHostPort(k.RemoteAddr, k.RemotePort))
}

// ConnectionRecord is the lifecycle of one connection instance. FirstSeen and
// LastSeen are tick numbers.
type ConnectionRecord struct {
	ID          string
	Key         ConnectionKey
	LocalAddr   string
	ProcessName string
	Hostname    string
	State       string
	FirstSeen   uint64
	LastSeen    uint64
	OpenedAt    time.Time
}

func (r *ConnectionRecord) HostKey() HostKey {
	return HostKey{Addr: r.Key.RemoteAddr, Port: r.Key.RemotePort}
}

func (r *ConnectionRecord) ProcessKey() ProcessKey {
	return ProcessKey{Name: r.ProcessName, PID: r.Key.PID}
}

func (r *ConnectionRecord) ProcessHostKey() ProcessHostKey {
	return ProcessHostKey{Name: r.ProcessName, Addr: r.Key.RemoteAddr, Port: r.Key.RemotePort}
}

type HostKey struct {
	Addr string
	Port uint16
}

func (k HostKey) String() string { return JoinHostPort(k.Addr, k.Port) }

type ProcessKey struct {
	Name string
	PID  int32
}

func (k ProcessKey) String() string { return fmt.Sprintf("%s/%d", k.Name, k.PID) }

type ProcessHostKey struct {
	Name string
	Addr string
	Port uint16
}

func (k ProcessHostKey) String() string {
	return fmt.Sprintf("%s -> %s", k.Name, JoinHostPort(k.Addr, k.Port))
}

// GroupStats holds the running counters of one aggregation bucket.
// Total and Max never decrease.
type GroupStats struct {
	Active int
	Total  int
	Max    int
}

type HistorySample struct {
	Time   time.Time
	Active int
}

// InvariantViolation describes a counting inconsistency detected by the store.
type InvariantViolation struct {
	Dimension string
	Group     string
	Record    ConnectionKey
	Message   string
}

func (v InvariantViolation) String() string {
	return fmt.Sprintf("%s[%s]: %s (%s)", v.Dimension, v.Group, v.Message, v.Record)
}

func JoinHostPort(addr string, port uint16) string {
	return net.JoinHostPort(addr, strconv.Itoa(int(port)))
}
