package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/Skryldev/variant-cache/core"
)

// LatencyTracker tracks latency quantiles per operation using DDSketch.
type LatencyTracker struct {
	mu               sync.Mutex
	sketches         map[string]*ddsketch.DDSketch
	relativeAccuracy float64
}

// NewLatencyTracker creates a tracker. relativeAccuracy bounds the quantile
// error, e.g. 0.01 for 1%.
func NewLatencyTracker(relativeAccuracy float64) *LatencyTracker {
	return &LatencyTracker{
		sketches:         make(map[string]*ddsketch.DDSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record adds one observation, in milliseconds, for operation.
func (lt *LatencyTracker) Record(operation string, d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	sketch, ok := lt.sketches[operation]
	if !ok {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(lt.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(0.01)
		}
		lt.sketches[operation] = sketch
	}
	_ = sketch.Add(float64(d.Microseconds()) / 1000.0)
}

// Stats summarises one operation.
type Stats struct {
	Operation string
	Count     int64
	Min       float64
	P50       float64
	P90       float64
	P99       float64
	Max       float64
}

func (s Stats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("%s: no data", s.Operation)
	}
	return fmt.Sprintf("%s (n=%d): min=%.2fms p50=%.2fms p90=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Min, s.P50, s.P90, s.P99, s.Max)
}

// Stats returns the summary for operation.
func (lt *LatencyTracker) Stats(operation string) (Stats, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.statsLocked(operation)
}

func (lt *LatencyTracker) statsLocked(operation string) (Stats, error) {
	sketch, ok := lt.sketches[operation]
	if !ok {
		return Stats{}, fmt.Errorf("no data for operation: %s", operation)
	}
	count := sketch.GetCount()
	if count == 0 {
		return Stats{Operation: operation}, nil
	}
	s := Stats{Operation: operation, Count: int64(count)}
	s.Min, _ = sketch.GetMinValue()
	s.P50, _ = sketch.GetValueAtQuantile(0.50)
	s.P90, _ = sketch.GetValueAtQuantile(0.90)
	s.P99, _ = sketch.GetValueAtQuantile(0.99)
	s.Max, _ = sketch.GetMaxValue()
	return s, nil
}

// AllStats returns every operation's summary sorted by name.
func (lt *LatencyTracker) AllStats() []Stats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	ops := make([]string, 0, len(lt.sketches))
	for op := range lt.sketches {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	out := make([]Stats, 0, len(ops))
	for _, op := range ops {
		if s, err := lt.statsLocked(op); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// LatencyHook records every step duration into a LatencyTracker.
type LatencyHook struct {
	tracker *LatencyTracker
}

func NewLatencyHook(t *LatencyTracker) *LatencyHook { return &LatencyHook{tracker: t} }

func (h *LatencyHook) BeforeStep(context.Context, string, *core.ImageData) {}

func (h *LatencyHook) AfterStep(_ context.Context, stepName string, _ *core.ImageData, d time.Duration, err error) {
	if err == nil {
		h.tracker.Record(stepName, d)
	}
}

var _ core.Hook = (*LatencyHook)(nil)
