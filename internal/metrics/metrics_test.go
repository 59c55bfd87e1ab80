package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/wadash"
	"github.com/luciancaetano/wadash/internal/rpc"
)

func TestRPCMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewRPC(reg)

	m.CallFinished("status", rpc.OutcomeOK, 10*time.Millisecond)
	m.CallFinished("status", rpc.OutcomeOK, 20*time.Millisecond)
	m.CallFinished("send", rpc.OutcomeTimeout, 30*time.Second)
	m.CallFinished("send", rpc.OutcomeNotConnected, 0)
	m.SetPendingCalls(3)
	m.EventReceived("message")
	m.FrameDropped(rpc.DropParse)
	m.StateChanged(wadash.StateConnected)
	m.ConnectAttempt(true)
	m.ConnectAttempt(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.calls.WithLabelValues("status", rpc.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("send", rpc.OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("send", rpc.OutcomeNotConnected)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues(rpc.DropParse)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectAttempts.WithLabelValues("false")))

	// Not-connected calls are not timed.
	assert.Equal(t, 2, testutil.CollectAndCount(m.callDuration))

	m.StateChanged(wadash.StateDisconnected)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewHTTP(reg)

	m.RecordRequest(http.MethodGet, "/api/status", http.StatusOK, 5*time.Millisecond)
	m.RecordRequest(http.MethodGet, "/api/status", http.StatusOK, 5*time.Millisecond)
	m.RecordRateLimited("recipient")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/status", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.limited.WithLabelValues("recipient")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRegisterTwicePanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	NewRPC(reg)
	assert.Panics(t, func() { NewRPC(reg) })
}
