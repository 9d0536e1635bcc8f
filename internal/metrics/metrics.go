package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry is an in-memory metrics store exposed at /metrics. It is not a
// time series database; it keeps current counter values and timer summaries
// so operators can see duplicate-suppression and failure counts without
// extra infrastructure.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*CounterSnapshot
	timers    map[string]*TimerSnapshot
	startTime time.Time
}

type CounterSnapshot struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels,omitempty"`
	LastUpdate time.Time         `json:"last_update"`
}

type TimerSnapshot struct {
	Name    string            `json:"name"`
	Count   int64             `json:"count"`
	SumMs   float64           `json:"sum_ms"`
	MinMs   float64           `json:"min_ms"`
	MaxMs   float64           `json:"max_ms"`
	AvgMs   float64           `json:"avg_ms"`
	Labels  map[string]string `json:"labels,omitempty"`
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*CounterSnapshot),
		timers:    make(map[string]*TimerSnapshot),
		startTime: time.Now(),
	}
}

var globalRegistry = NewRegistry()

// GetRegistry returns the process-wide registry.
func GetRegistry() *Registry {
	return globalRegistry
}

func (r *Registry) IncrementCounter(name string, labels map[string]string) {
	r.AddToCounter(name, 1, labels)
}

func (r *Registry) AddToCounter(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	counter, ok := r.counters[key]
	if !ok {
		counter = &CounterSnapshot{Name: name, Labels: labels}
		r.counters[key] = counter
	}
	counter.Value += value
	counter.LastUpdate = time.Now()
}

func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	timer, ok := r.timers[key]
	if !ok {
		timer = &TimerSnapshot{Name: name, Labels: labels, MinMs: -1}
		r.timers[key] = timer
	}

	ms := float64(duration.Microseconds()) / 1000.0
	timer.Count++
	timer.SumMs += ms
	if timer.MinMs < 0 || ms < timer.MinMs {
		timer.MinMs = ms
	}
	if ms > timer.MaxMs {
		timer.MaxMs = ms
	}
	timer.AvgMs = timer.SumMs / float64(timer.Count)
}

// Snapshot returns a copy of all current metrics for serialization.
func (r *Registry) Snapshot() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counters := make([]*CounterSnapshot, 0, len(r.counters))
	for _, c := range r.counters {
		copied := *c
		counters = append(counters, &copied)
	}
	timers := make([]*TimerSnapshot, 0, len(r.timers))
	for _, t := range r.timers {
		copied := *t
		timers = append(timers, &copied)
	}

	sort.Slice(counters, func(i, j int) bool { return counters[i].Name < counters[j].Name })
	sort.Slice(timers, func(i, j int) bool { return timers[i].Name < timers[j].Name })

	return map[string]interface{}{
		"uptime_seconds": time.Since(r.startTime).Seconds(),
		"counters":       counters,
		"timers":         timers,
	}
}

// CounterValue returns the current value of a counter, 0 when unset.
// Exposed for tests.
func (r *Registry) CounterValue(name string, labels map[string]string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if counter, ok := r.counters[metricKey(name, labels)]; ok {
		return counter.Value
	}
	return 0
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

// Package-level helpers against the global registry.

func IncrementCounter(name string, labels map[string]string) {
	globalRegistry.IncrementCounter(name, labels)
}

func AddToCounter(name string, value float64, labels map[string]string) {
	globalRegistry.AddToCounter(name, value, labels)
}

func RecordTimer(name string, duration time.Duration, labels map[string]string) {
	globalRegistry.RecordTimer(name, duration, labels)
}
