// Package filter implements the user-settable connection predicate.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Predicate is a conjunction of optional conditions. The zero value matches
// everything. Predicates are comparable, so == detects a filter change.
type Predicate struct {
	PID    int32
	HasPID bool

	ProcessName    string
	HasProcessName bool

	Host    string
	HasHost bool

	Port    uint16
	HasPort bool
}

// Attributes are the connection properties a Predicate looks at.
type Attributes struct {
	PID         int32
	ProcessName string
	RemoteAddr  string
	Hostname    string
	RemotePort  uint16
}

func (p Predicate) IsEmpty() bool {
	return !p.HasPID && !p.HasProcessName && !p.HasHost && !p.HasPort
}

// Match reports whether a passes every set condition. Substring checks are
// case-sensitive; the host condition accepts a hit on either the resolved
// hostname or the address text.
func (p Predicate) Match(a Attributes) bool {
	if p.HasPID && a.PID != p.PID {
		return false
	}
	if p.HasProcessName && !strings.Contains(a.ProcessName, p.ProcessName) {
		return false
	}
	if p.HasHost && !strings.Contains(a.RemoteAddr, p.Host) &&
		(a.Hostname == "" || !strings.Contains(a.Hostname, p.Host)) {
		return false
	}
	if p.HasPort && a.RemotePort != p.Port {
		return false
	}
	return true
}

func (p Predicate) WithPID(pid int32) Predicate {
	p.PID, p.HasPID = pid, true
	return p
}

func (p Predicate) WithProcessName(name string) Predicate {
	p.ProcessName, p.HasProcessName = name, true
	return p
}

func (p Predicate) WithHost(host string) Predicate {
	p.Host, p.HasHost = host, true
	return p
}

func (p Predicate) WithPort(port uint16) Predicate {
	p.Port, p.HasPort = port, true
	return p
}

func (p Predicate) String() string {
	var parts []string
	if p.HasPID {
		parts = append(parts, fmt.Sprintf("PID: %d", p.PID))
	}
	if p.HasProcessName {
		parts = append(parts, "Process: "+p.ProcessName)
	}
	if p.HasHost {
		parts = append(parts, "Host: "+p.Host)
	}
	if p.HasPort {
		parts = append(parts, fmt.Sprintf("Port: %d", p.Port))
	}
	if len(parts) == 0 {
		return "No filters"
	}
	return strings.Join(parts, ", ")
}

// FieldError reports a malformed filter value.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Parse builds a Predicate from text values. Empty (or blank) values leave
// the condition unset.
func Parse(pid, processName, host, port string) (Predicate, error) {
	var p Predicate

	if s := strings.TrimSpace(pid); s != "" {
		v, err := ParsePID(s)
		if err != nil {
			return Predicate{}, err
		}
		p = p.WithPID(v)
	}
	if processName != "" {
		p = p.WithProcessName(processName)
	}
	if host != "" {
		p = p.WithHost(host)
	}
	if s := strings.TrimSpace(port); s != "" {
		v, err := ParsePort(s)
		if err != nil {
			return Predicate{}, err
		}
		p = p.WithPort(v)
	}
	return p, nil
}

func ParsePID(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, &FieldError{Field: "pid", Value: s, Err: numError(err)}
	}
	if v < 0 {
		return 0, &FieldError{Field: "pid", Value: s, Err: errors.New("must not be negative")}
	}
	return int32(v), nil
}

func ParsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, &FieldError{Field: "port", Value: s, Err: numError(err)}
	}
	return uint16(v), nil
}

// numError strips the strconv prefix, which repeats the input.
func numError(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return ne.Err
	}
	return err
}
