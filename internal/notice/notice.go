// Package notice carries transient status messages from the poll pipeline
// to the dashboard status bar.
package notice

import (
	"fmt"
	"sync"
	"time"
)

type Kind string

const (
	KindSnapshotUnavailable Kind = "SNAPSHOT_UNAVAILABLE"
	KindInvariantViolation  Kind = "INVARIANT_VIOLATION"
	KindInfo                Kind = "INFO"
)

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Notice is one status event.
type Notice struct {
	Time     time.Time
	Kind     Kind
	Severity Severity
	Message  string
	Details  map[string]interface{}
}

func (n Notice) String() string {
	return fmt.Sprintf("%s %s: %s", n.Time.Format("15:04:05"), n.Severity, n.Message)
}

// Board is a bounded queue of notices. When the queue is full the oldest
// notice is dropped to make room, so posting never blocks the poller.
type Board struct {
	mu     sync.Mutex
	ch     chan Notice
	total  int
	byKind map[Kind]int
	now    func() time.Time
}

func NewBoard(capacity int) *Board {
	if capacity < 1 {
		capacity = 1
	}
	return &Board{
		ch:     make(chan Notice, capacity),
		byKind: make(map[Kind]int),
		now:    time.Now,
	}
}

func (b *Board) Post(kind Kind, severity Severity, message string, details map[string]interface{}) {
	b.Send(Notice{
		Time:     b.now(),
		Kind:     kind,
		Severity: severity,
		Message:  message,
		Details:  details,
	})
}

func (b *Board) Send(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	b.byKind[n.Kind]++

	select {
	case b.ch <- n:
	default:
		select {
		case <-b.ch:
		default:
		}
		b.ch <- n
	}
}

// C returns the channel notices are delivered on.
func (b *Board) C() <-chan Notice {
	return b.ch
}

// Drain returns every queued notice without blocking, oldest first.
func (b *Board) Drain() []Notice {
	var out []Notice
	for {
		select {
		case n := <-b.ch:
			out = append(out, n)
		default:
			return out
		}
	}
}

// Count returns how many notices of kind were posted since creation.
func (b *Board) Count(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byKind[kind]
}

func (b *Board) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
