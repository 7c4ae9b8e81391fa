package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nozo-moto/tcpcount/internal/tracker"
	"github.com/nozo-moto/tcpcount/pkg/types"
)

func TestMonitorRecordsTicks(t *testing.T) {
	m := New()
	m.ObserveTick(tracker.TickStats{
		Opened:   3,
		Closed:   1,
		Live:     2,
		Global:   types.GroupStats{Active: 2, Total: 3, Max: 3},
		Duration: 4 * time.Millisecond,
	})
	m.ObserveTick(tracker.TickStats{
		Opened: 1,
		Global: types.GroupStats{Active: 3, Total: 4, Max: 3},
	})
	m.SnapshotFailed()
	m.InvariantViolated(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.active))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.peak))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.opened))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.violations))

	expected := `
# HELP tcpcount_connections_opened_total TCP connections seen opening
# TYPE tcpcount_connections_opened_total counter
tcpcount_connections_opened_total 4
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "tcpcount_connections_opened_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestMonitorServe(t *testing.T) {
	m := New()
	m.ObserveTick(tracker.TickStats{Opened: 1, Global: types.GroupStats{Active: 1, Total: 1, Max: 1}})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.serve(ctx, ln, zap.NewNop().Sugar()) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, "tcpcount_connections_active 1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeBadAddress(t *testing.T) {
	err := New().Serve(context.Background(), "256.0.0.1:bad", zap.NewNop().Sugar())
	assert.Error(t, err)
}
