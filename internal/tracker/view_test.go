package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozo-moto/tcpcount/internal/filter"
	"github.com/nozo-moto/tcpcount/pkg/types"
)

func processRow(t *testing.T, rows Rows, k types.ProcessKey) types.GroupStats {
	t.Helper()
	for _, r := range rows.Processes {
		if r.Key == k {
			return r.Stats
		}
	}
	require.Failf(t, "missing process row", "%s", k)
	return types.GroupStats{}
}

func TestViewEmptyPredicateIsCanonical(t *testing.T) {
	p := newPipeline()
	p.step(sock(10, "curl", "1.2.3.4", 443, 50000), sock(11, "wget", "5.6.7.8", 80, 50001))

	got := p.view.Compute(filter.Predicate{}, p.resolver, p.store)
	want := p.store.Rows(nil)

	assert.Equal(t, want.Global, got.Global)
	assert.ElementsMatch(t, want.Hosts, got.Hosts)
	assert.ElementsMatch(t, want.Processes, got.Processes)
	assert.ElementsMatch(t, want.ProcessHosts, got.ProcessHosts)
}

func TestViewFilterAfterHistory(t *testing.T) {
	p := newPipeline()
	a := sock(10, "curl", "1.2.3.4", 443, 50000)
	b := sock(10, "curl", "1.2.3.4", 443, 50001)
	p.step(a)
	p.step(a, b)
	p.step(b)
	p.step()

	pred := filter.Predicate{}.WithPID(10)
	rows := p.view.Compute(pred, p.resolver, p.store)
	assert.Equal(t, types.GroupStats{}, rows.Global)

	c := sock(10, "curl", "1.2.3.4", 443, 50002)
	p.step(c)
	rows = p.view.Compute(pred, p.resolver, p.store)

	assert.Equal(t, stats(1, 1, 1), rows.Global)
	assert.Equal(t, stats(1, 1, 1), processRow(t, rows, types.ProcessKey{Name: "curl", PID: 10}))

	canonical, ok := p.store.Process(types.ProcessKey{Name: "curl", PID: 10})
	require.True(t, ok)
	assert.Equal(t, stats(1, 3, 2), canonical)
}

func TestViewFilterExcludesNonMatching(t *testing.T) {
	p := newPipeline()
	p.step(
		sock(10, "curl", "1.2.3.4", 443, 50000),
		sock(11, "wget", "1.2.3.4", 443, 50001),
		sock(12, "curl", "5.6.7.8", 80, 50002),
	)

	rows := p.view.Compute(filter.Predicate{}.WithProcessName("curl"), p.resolver, p.store)
	assert.Equal(t, stats(2, 2, 2), rows.Global)
	assert.Len(t, rows.Processes, 2)
	assert.Len(t, rows.Hosts, 2)

	rows = p.view.Compute(filter.Predicate{}.WithProcessName("curl").WithPort(443), p.resolver, p.store)
	assert.Equal(t, stats(1, 1, 1), rows.Global)
	require.Len(t, rows.Hosts, 1)
	assert.Equal(t, types.HostKey{Addr: "1.2.3.4", Port: 443}, rows.Hosts[0].Key)
}

func TestViewAccumulatesWhilePredicateHolds(t *testing.T) {
	p := newPipeline()
	pred := filter.Predicate{}.WithHost("1.2.3.4")
	a := sock(10, "curl", "1.2.3.4", 443, 50000)
	b := sock(10, "curl", "1.2.3.4", 443, 50001)

	p.step(a)
	p.view.Compute(pred, p.resolver, p.store)
	p.step(a, b)
	p.view.Compute(pred, p.resolver, p.store)
	p.step(b)
	rows := p.view.Compute(pred, p.resolver, p.store)
	assert.Equal(t, stats(1, 2, 2), rows.Global)

	p.step()
	rows = p.view.Compute(pred, p.resolver, p.store)
	assert.Equal(t, stats(0, 2, 2), rows.Global)
	// groups seen under the predicate stay listed
	assert.Len(t, rows.Hosts, 1)
}

func TestViewReseedsOnPredicateChange(t *testing.T) {
	p := newPipeline()
	p.step(sock(10, "curl", "1.2.3.4", 443, 50000), sock(10, "curl", "1.2.3.4", 443, 50001))

	rows := p.view.Compute(filter.Predicate{}.WithPID(10), p.resolver, p.store)
	assert.Equal(t, stats(2, 2, 2), rows.Global)

	p.step(sock(10, "curl", "1.2.3.4", 443, 50000))
	rows = p.view.Compute(filter.Predicate{}.WithPort(443), p.resolver, p.store)
	assert.Equal(t, stats(1, 1, 1), rows.Global)
	assert.Equal(t, filter.Predicate{}.WithPort(443), p.view.Predicate())

	// back to no filter and then the first predicate again: seeded fresh
	p.view.Compute(filter.Predicate{}, p.resolver, p.store)
	rows = p.view.Compute(filter.Predicate{}.WithPID(10), p.resolver, p.store)
	assert.Equal(t, stats(1, 1, 1), rows.Global)
}

func TestViewHostFilterMatchesHostname(t *testing.T) {
	p := newPipeline()
	s := sock(10, "curl", "93.184.216.34", 443, 50000)
	s.Hostname = "example.com"
	p.step(s, sock(11, "curl", "1.2.3.4", 443, 50001))

	rows := p.view.Compute(filter.Predicate{}.WithHost("example.com"), p.resolver, p.store)
	assert.Equal(t, 1, rows.Global.Active)
	require.Len(t, rows.Hosts, 1)
	assert.Equal(t, "example.com", rows.Hosts[0].Label())
}

func TestViewRenameCountsInNewProcessGroup(t *testing.T) {
	p := newPipeline()
	pred := filter.Predicate{}.WithPID(42)
	s := sock(42, "", "1.2.3.4", 443, 50000)
	p.step(s)
	p.view.Compute(pred, p.resolver, p.store)

	s.ProcessName = "firefox"
	p.step(s)
	rows := p.view.Compute(pred, p.resolver, p.store)

	assert.Equal(t, stats(1, 1, 1), rows.Global)
	assert.Equal(t, stats(0, 1, 1), processRow(t, rows, types.ProcessKey{Name: types.UnknownProcess, PID: 42}))
	assert.Equal(t, stats(1, 1, 1), processRow(t, rows, types.ProcessKey{Name: "firefox", PID: 42}))
}

func TestViewReset(t *testing.T) {
	p := newPipeline()
	s := sock(10, "curl", "1.2.3.4", 443, 50000)
	s.Hostname = "example.com"
	p.step(s)
	p.view.Compute(filter.Predicate{}.WithPID(10), p.resolver, p.store)

	p.view.Reset()
	p.resolver.Reset()
	p.store.Reset()

	rows := p.view.Compute(filter.Predicate{}.WithPID(10), p.resolver, p.store)
	assert.Equal(t, types.GroupStats{}, rows.Global)
	assert.Empty(t, rows.Hosts)
	assert.Empty(t, p.view.hostnames)
}
