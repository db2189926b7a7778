package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry("emojid", "")
	c := r.RegisterCounter("events_total", "help", nil)
	c.Inc()
	c.Add(4)
	assert.Equal(t, uint64(5), c.Value())
	assert.Equal(t, "emojid_events_total", c.Name())

	// Registering twice returns the same metric.
	assert.Same(t, c, r.RegisterCounter("events_total", "other", nil))

	g := r.RegisterGauge("running", "help", nil)
	g.SetBool(true)
	assert.Equal(t, int64(1), g.Value())
	g.Dec()
	g.Dec()
	assert.Equal(t, int64(-1), g.Value())
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry("", "")
	h := r.RegisterHistogram("lat", "help", nil, []float64{1, 0.1})

	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(0.5)
	h.Observe(3)

	assert.Equal(t, uint64(4), h.Count())
	assert.InDelta(t, 4.05, h.Sum(), 1e-9)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()
	assert.Contains(t, out, `lat_bucket{le="0.1"} 1`)
	assert.Contains(t, out, `lat_bucket{le="1"} 3`)
	assert.Contains(t, out, `lat_bucket{le="+Inf"} 4`)
	assert.Contains(t, out, "lat_count 4")
}

func TestWritePrometheusSorted(t *testing.T) {
	r := NewRegistry("emojid", "")
	r.RegisterCounter("zeta_total", "z", nil)
	r.RegisterCounter("alpha_total", "a", Labels{"source": "hook"})

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Less(t, strings.Index(out, "emojid_alpha_total"), strings.Index(out, "emojid_zeta_total"))
	assert.Contains(t, out, `emojid_alpha_total{source="hook"} 0`)
	assert.Contains(t, out, "# TYPE emojid_zeta_total counter")
}

func TestEngineMetrics(t *testing.T) {
	r := NewRegistry("emojid", "")
	m := NewEngineMetrics(r)

	m.Started()
	m.SessionOpened()
	assert.Equal(t, int64(1), m.SessionActive.Value())
	m.SessionClosed("accept")
	m.SessionOpened()
	m.SessionClosed("space")
	m.SessionOpened()
	m.SessionClosed("complete")

	assert.Equal(t, uint64(3), m.SessionsTotal.Value())
	assert.Equal(t, uint64(1), m.AcceptsTotal.Value())
	assert.Equal(t, uint64(1), m.CancelsTotal.Value())
	assert.Equal(t, uint64(1), m.CompletesTotal.Value())
	assert.Equal(t, int64(0), m.SessionActive.Value())

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap["running"])

	m.Stopped()
	assert.Equal(t, int64(0), m.Running.Value())
}

func TestHTTPHandler(t *testing.T) {
	r := NewRegistry("emojid", "")
	r.RegisterCounter("events_total", "help", nil).Add(3)

	rec := httptest.NewRecorder()
	r.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "emojid_events_total 3")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/json")
	r.HTTPHandler().ServeHTTP(rec, req)

	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.EqualValues(t, 3, snap["emojid_events_total"])
}

func TestServe(t *testing.T) {
	r := NewRegistry("emojid", "")
	r.RegisterGauge("running", "help", nil).Set(1)

	ctx, cancel := context.WithCancel(context.Background())
	addr, errc, err := Serve(ctx, "127.0.0.1:0", r)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "emojid_running 1")

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeBusyPort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, _, err := Serve(ctx, "127.0.0.1:0", NewRegistry("", ""))
	require.NoError(t, err)

	_, _, err = Serve(ctx, addr.String(), NewRegistry("", ""))
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	r := NewRegistry("", "")
	c := r.RegisterCounter("c", "", nil)
	h := r.RegisterHistogram("h", "", nil, nil)
	c.Inc()
	h.ObserveDuration(time.Millisecond)

	r.Reset()
	assert.Zero(t, c.Value())
	assert.Zero(t, h.Count())
	assert.Zero(t, h.Mean())
}
