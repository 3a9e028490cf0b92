package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetActive(3)
		m.SessionStarted()
		m.SessionEnded(ReasonCancel)
		m.Answer("yes")
		m.EngineCall("answer", nil, time.Second)
		m.Evicted(2)
		m.GateRejected("locked")
		m.ObserveUpdate("message", nil)
	})
}

func TestCollectors(t *testing.T) {
	m := New(nil)

	m.SetActive(2)
	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded(ReasonVictory)
	m.SessionEnded(ReasonExpired)
	m.SessionEnded(ReasonExpired)
	m.Answer("yes")
	m.EngineCall("answer", nil, 10*time.Millisecond)
	m.EngineCall("answer", errors.New("boom"), 10*time.Millisecond)
	m.Evicted(3)
	m.Evicted(0)
	m.GateRejected("locked")
	m.ObserveUpdate("callback", errors.New("x"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.active))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.started))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ended.WithLabelValues(ReasonVictory)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ended.WithLabelValues(ReasonExpired)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.answers.WithLabelValues("yes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.engineCalls.WithLabelValues("answer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.engineCalls.WithLabelValues("answer", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateRejections.WithLabelValues("locked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("callback", "error")))
}

func TestRegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SessionStarted()

	n, err := testutil.GatherAndCount(reg, "akibot_sessions_started_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expected := `
# HELP akibot_sessions_started_total Game sessions created.
# TYPE akibot_sessions_started_total counter
akibot_sessions_started_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "akibot_sessions_started_total"))
}

func TestServerHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).SetActive(4)
	srv := NewServer("127.0.0.1:0", reg)
	assert.Equal(t, "metrics", srv.Name())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "akibot_sessions_active 4")

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerRunBadAddress(t *testing.T) {
	srv := NewServer("256.0.0.1:bad", prometheus.NewRegistry())
	assert.Error(t, srv.Run(context.Background()))
}
