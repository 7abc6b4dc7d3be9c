// Package series keeps a fixed-capacity rolling history of scalar metrics
// for trend charts. Readers only ever receive copies.
package series

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the default window length: 60 samples of history plus
// the current one.
const DefaultCapacity = 61

// Scalar metric names pushed by the monitor.
const (
	CPUPercent = "cpu_percent"
	MemPercent = "mem_percent"
)

// ErrInvalidCapacity is returned by New for a capacity below 1.
var ErrInvalidCapacity = errors.New("series: capacity must be positive")

// Point is one value in a snapshot. Index runs 0..len-1, oldest first.
type Point struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// Snapshots maps metric name to its points, oldest first.
type Snapshots map[string][]Point

// Values returns the bare values of a metric in chronological order.
func (s Snapshots) Values(metric string) []float64 {
	pts := s[metric]
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Value
	}
	return out
}

// ring is a fixed-size FIFO. Once full, each push overwrites the oldest slot.
type ring struct {
	data []float64
	head int // index of the oldest value
	n    int
}

func newRing(capacity int) *ring {
	return &ring{data: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	if r.n < len(r.data) {
		r.data[(r.head+r.n)%len(r.data)] = v
		r.n++
		return
	}
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
}

func (r *ring) points() []Point {
	out := make([]Point, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = Point{Index: i, Value: r.data[(r.head+i)%len(r.data)]}
	}
	return out
}

// Buffer holds one ring per metric. It is safe for concurrent use: Push and
// Snapshot are serialized, and snapshots never alias the live rings.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*ring
	order    []string
}

// New creates a Buffer with the given per-metric capacity. The listed
// metrics are registered up front so they appear in snapshots before their
// first push; other names are registered on first Push.
func New(capacity int, metrics ...string) (*Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCapacity, capacity)
	}
	b := &Buffer{
		capacity: capacity,
		rings:    make(map[string]*ring, len(metrics)),
	}
	for _, m := range metrics {
		b.register(m)
	}
	return b, nil
}

// register adds a ring for metric if missing. Callers hold b.mu.
func (b *Buffer) register(metric string) *ring {
	if r, ok := b.rings[metric]; ok {
		return r
	}
	r := newRing(b.capacity)
	b.rings[metric] = r
	b.order = append(b.order, metric)
	return r
}

// Push appends value to metric's history, evicting the oldest value once
// the window is full.
func (b *Buffer) Push(metric string, value float64) {
	b.mu.Lock()
	b.register(metric).push(value)
	b.mu.Unlock()
}

// Snapshot returns a copy of metric's history, oldest first. Unknown
// metrics yield an empty slice.
func (b *Buffer) Snapshot(metric string) []Point {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rings[metric]
	if !ok {
		return []Point{}
	}
	return r.points()
}

// Snapshots copies every metric under one lock, so all series in the result
// reflect the same set of pushes.
func (b *Buffer) Snapshots() Snapshots {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(Snapshots, len(b.rings))
	for name, r := range b.rings {
		out[name] = r.points()
	}
	return out
}

// Len returns the number of values currently held for metric.
func (b *Buffer) Len(metric string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if r, ok := b.rings[metric]; ok {
		return r.n
	}
	return 0
}

// Cap returns the fixed per-metric capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Metrics returns the registered metric names in registration order.
func (b *Buffer) Metrics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}
