package collector

import (
	"context"
	"strconv"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	defaultNameTTL    = 30 * time.Second
	nameCleanupPeriod  = time.Minute
)

// ProcessCollector looks up process names and liveness. Names are cached
// per pid for a short while, since a snapshot asks for the same pids every tick.
type ProcessCollector struct {
	names *cache.Cache

	lookupName func(ctx context.Context, pid int32) (string, error)
	pidExists  func(ctx context.Context, pid int32) (bool, error)
}

func NewProcessCollector(ttl time.Duration) *ProcessCollector {
	if ttl <= 0 {
		ttl = defaultNameTTL
	}
	return &ProcessCollector{
		names:      cache.New(ttl, nameCleanupPeriod),
		lookupName: processName,
		pidExists:  process.PidExistsWithContext,
	}
}

func processName(ctx context.Context, pid int32) (string, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	return proc.NameWithContext(ctx)
}

// Name returns the process name of pid, or "" when it cannot be resolved
// (typically because the process already exited). Failures are not cached,
// so a later tick can still pick up the name.
func (pc *ProcessCollector) Name(ctx context.Context, pid int32) string {
	key := strconv.Itoa(int(pid))
	if v, ok := pc.names.Get(key); ok {
		return v.(string)
	}

	name, err := pc.lookupName(ctx, pid)
	if err != nil || name == "" {
		return ""
	}
	pc.names.SetDefault(key, name)
	return name
}

// Alive reports whether pid still exists. A dead pid is dropped from the
// name cache so a reused pid is looked up again.
func (pc *ProcessCollector) Alive(ctx context.Context, pid int32) bool {
	if pid <= 0 {
		return false
	}
	ok, err := pc.pidExists(ctx, pid)
	if err != nil || !ok {
		pc.names.Delete(strconv.Itoa(int(pid)))
		return false
	}
	return true
}
