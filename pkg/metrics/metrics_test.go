package metrics

import (
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	t.Run("without labels", func(t *testing.T) {
		r := NewRegistry()
		c := r.NewCounter("test_counter", "A test counter")

		require.NoError(t, c.Inc())
		require.NoError(t, c.Add(3))
		assert.ErrorIs(t, c.Add(-1), ErrNegativeCounterValue)

		samples := c.Collect()
		require.Len(t, samples, 1)
		assert.Equal(t, 4.0, samples[0].Value)
	})

	t.Run("with labels", func(t *testing.T) {
		r := NewRegistry()
		c := r.NewCounter("frames", "Frames", "command")

		for _, cmd := range []string{"SEND", "SEND", "CONNECT"} {
			vec, err := c.WithLabels(cmd)
			require.NoError(t, err)
			require.NoError(t, vec.Inc())
		}

		found := map[string]float64{}
		for _, s := range c.Collect() {
			found[s.Labels["command"]] = s.Value
		}
		assert.Equal(t, map[string]float64{"SEND": 2, "CONNECT": 1}, found)
	})

	t.Run("label count mismatch", func(t *testing.T) {
		r := NewRegistry()
		c := r.NewCounter("frames", "Frames", "command")
		_, err := c.WithLabels()
		assert.ErrorIs(t, err, ErrLabelCountMismatch)
		assert.ErrorIs(t, c.Inc(), ErrLabelCountMismatch)
	})
}

func TestGauge(t *testing.T) {
	r := NewRegistry()
	g := r.NewGauge("conns", "Connections", "transport")

	vec, err := g.WithLabels("tcp")
	require.NoError(t, err)
	vec.Inc()
	vec.Inc()
	vec.Dec()
	vec.Add(2.5)

	samples := g.Collect()
	require.Len(t, samples, 1)
	assert.Equal(t, 3.5, samples[0].Value)

	vec.Set(0)
	assert.Equal(t, 0.0, g.Collect()[0].Value)
}

func TestHistogram(t *testing.T) {
	r := NewRegistry()
	h := r.NewHistogram("latency", "Latency", []float64{1, 0.1})

	require.NoError(t, h.Observe(0.05))
	require.NoError(t, h.Observe(0.5))
	require.NoError(t, h.Observe(5))

	byLe := map[string]float64{}
	var sum, count float64
	for _, s := range h.Collect() {
		switch s.Name {
		case "latency_bucket":
			byLe[s.Labels["le"]] = s.Value
		case "latency_sum":
			sum = s.Value
		case "latency_count":
			count = s.Value
		}
	}
	assert.Equal(t, map[string]float64{"0.1": 1, "1": 2, "+Inf": 3}, byLe)
	assert.InDelta(t, 5.55, sum, 1e-9)
	assert.Equal(t, 3.0, count)
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("dup", "first")
	assert.Panics(t, func() { r.NewGauge("dup", "second") })
}

func TestRegistryHandler(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("stompd_frames_received_total", "Frames received", "command")
	vec, err := c.WithLabels("SEND")
	require.NoError(t, err)
	require.NoError(t, vec.Add(2))
	r.NewGauge("unused", "never set")

	scraped := 0
	r.OnScrape(func() { scraped++ })

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Equal(t, "text/plain; version=0.0.4; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, out, "# HELP stompd_frames_received_total Frames received\n")
	assert.Contains(t, out, "# TYPE stompd_frames_received_total counter\n")
	assert.Contains(t, out, `stompd_frames_received_total{command="SEND"} 2`)
	assert.NotContains(t, out, "unused")
	assert.Equal(t, 1, scraped)
}

func TestConcurrency(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("hits", "Hits", "k")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				IncCounter(c, "a")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5000.0, c.Collect()[0].Value)
}

func TestDefaultMetrics(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	IncCounter(FramesReceived, "SEND")

	reg := Init()
	require.NotNil(t, reg)
	assert.Same(t, reg, Init())
	assert.Same(t, reg, DefaultRegistry())

	IncCounter(FramesReceived, "SEND")
	AddGauge(ConnectionsActive, 1, "tcp")
	Observe(FrameDuration, 0.002, "SEND")
	IncCounter(MessagesPublished)

	var b strings.Builder
	_, err := reg.WriteTo(&b)
	require.NoError(t, err)
	out := b.String()

	assert.Contains(t, out, `stompd_frames_received_total{command="SEND"} 1`)
	assert.Contains(t, out, `stompd_connections_active{transport="tcp"} 1`)
	assert.Contains(t, out, "stompd_messages_published_total 1")
	assert.Contains(t, out, "go_goroutines ")
	assert.Contains(t, out, "stompd_uptime_seconds ")
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{42, "42"},
		{0.25, "0.25"},
		{math.Inf(1), "+Inf"},
		{math.Inf(-1), "-Inf"},
		{math.NaN(), "NaN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFloat(tt.in))
	}
}

func TestEscapeLabelValue(t *testing.T) {
	assert.Equal(t, `a\"b\\c\nd`, escapeLabelValue("a\"b\\c\nd"))
}
