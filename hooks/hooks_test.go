package hooks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/variant-cache/core"
	"github.com/Skryldev/variant-cache/hooks"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := hooks.NewSlogLogger(hooks.NewLogger("debug", "json", &buf))
	log.Info("served", "request_id", "abc", "outcome", "generate")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "served", rec["msg"])
	assert.Equal(t, "abc", rec["request_id"])
	assert.Equal(t, "generate", rec["outcome"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := hooks.NewLogger("warn", "text", &buf)
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, hooks.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, hooks.ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, hooks.ParseLevel("bogus"))
}

func TestLoggingHook(t *testing.T) {
	var buf bytes.Buffer
	h := hooks.NewLoggingHook(hooks.NewSlogLogger(hooks.NewLogger("debug", "json", &buf)))
	img := &core.ImageData{Format: core.FormatPNG, Meta: core.Metadata{Width: 3, Height: 2}}

	h.BeforeStep(context.Background(), "fit", img)
	h.AfterStep(context.Background(), "fit", img, time.Millisecond, nil)
	h.AfterStep(context.Background(), "encode", nil, time.Millisecond, errors.New("bad"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "transform.step.start")
	assert.Contains(t, lines[1], "3x2 png")
	assert.Contains(t, lines[2], "transform.step.error")
}

func TestInMemoryMetrics(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	h := hooks.NewMetricsHook(m)

	h.AfterStep(context.Background(), "encode", &core.ImageData{Meta: core.Metadata{SizeBytes: 100}}, 2*time.Second, nil)
	h.AfterStep(context.Background(), "fit", &core.ImageData{Meta: core.Metadata{SizeBytes: 999}}, time.Second, nil)
	m.RecordError("decode", "decode")
	m.RecordDecision("generate")
	m.RecordDecision("generate")

	snap := m.Snapshot()
	assert.Equal(t, int64(2000), snap.StepDurationsMs["encode"])
	assert.Equal(t, int64(1), snap.StepCalls["fit"])
	assert.Equal(t, int64(1), snap.StepErrors["decode"])
	assert.Equal(t, int64(2), snap.Decisions["generate"])
	assert.Equal(t, int64(100), snap.TotalThroughputB)
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	mem := hooks.NewInMemoryMetrics()
	all := hooks.Collectors{hooks.NewPrometheusCollector(reg), mem}

	all.RecordDecision("serve_cached")
	all.RecordDecision("serve_cached")
	all.RecordError("encode", "encode")
	all.RecordThroughput(42)
	all.RecordProcessingTime("fit", time.Millisecond)

	assert.Equal(t, float64(2), gathered(t, reg, "variantcache_decisions_total"))
	assert.Equal(t, float64(42), gathered(t, reg, "variantcache_encoded_bytes_total"))
	assert.Equal(t, float64(1), gathered(t, reg, "variantcache_step_errors_total"))
	assert.Equal(t, int64(2), mem.Snapshot().Decisions["serve_cached"])
}

// gathered returns the value of the first counter series named name.
func gathered(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestLatencyTracker(t *testing.T) {
	lt := hooks.NewLatencyTracker(0.01)
	h := hooks.NewLatencyHook(lt)
	for i := 1; i <= 100; i++ {
		h.AfterStep(context.Background(), "cover", nil, time.Duration(i)*time.Millisecond, nil)
	}
	h.AfterStep(context.Background(), "cover", nil, time.Hour, errors.New("ignored"))

	s, err := lt.Stats("cover")
	require.NoError(t, err)
	assert.Equal(t, int64(100), s.Count)
	assert.InDelta(t, 50, s.P50, 2)
	assert.InDelta(t, 100, s.Max, 2)
	assert.Contains(t, s.String(), "cover (n=100)")

	_, err = lt.Stats("missing")
	assert.Error(t, err)

	lt.Record("alpha", time.Millisecond)
	all := lt.AllStats()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Operation)
}
