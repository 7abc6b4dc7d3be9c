// Package monitor drives the sample-and-store cycle. One goroutine ticks at
// a fixed interval, takes a sysmetrics.Sample, pushes the scalar metrics
// into a series.Buffer, and hands both to the registered tick handlers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/tinyland/lab/sysmon-pulse/collectors/sysmetrics"
	"gitlab.com/tinyland/lab/sysmon-pulse/series"
)

const (
	// DefaultInterval is the tick period used until Configure is called.
	DefaultInterval = time.Second

	// DefaultWindow is the series capacity used until Configure is called.
	DefaultWindow = series.DefaultCapacity
)

var (
	// ErrInvalidConfig is returned by Configure for a non-positive interval
	// or window.
	ErrInvalidConfig = errors.New("monitor: invalid configuration")

	// ErrRunning is returned by Start and Configure while the engine runs.
	ErrRunning = errors.New("monitor: already running")
)

// Sampler produces one Sample per call. *sysmetrics.Sampler satisfies it.
type Sampler interface {
	Sample(ctx context.Context) sysmetrics.Sample
}

// breakerSampler is implemented by samplers that suspend hung subgroups,
// *sysmetrics.Sampler among them.
type breakerSampler interface {
	Suspended() []string
	ResetBreakers()
}

// Tick is the payload delivered to handlers once per cycle.
type Tick struct {
	// Seq counts ticks from 1 within a run.
	Seq uint64

	// RunID identifies the Start call that produced this tick. It changes
	// on every restart, together with the series history.
	RunID string

	Sample sysmetrics.Sample

	// Series is a copy of the rolling windows taken after this tick's
	// pushes.
	Series series.Snapshots
}

// Handler receives ticks. Handlers run on the engine goroutine in
// registration order and must not call Stop.
type Handler func(Tick)

// Stats is a point-in-time view of engine activity.
type Stats struct {
	RunID       string
	Running     bool
	StartedAt   time.Time
	Ticks       uint64
	Skipped     uint64
	LastTick    time.Time
	LastLatency time.Duration

	// Failures counts failed reads per sysmetrics subgroup.
	Failures map[string]uint64

	// Suspended lists subgroups the sampler is currently skipping because
	// their queries kept hanging. Empty for samplers without breakers.
	Suspended []string
}

// Engine runs the tick loop. Configure it, register handlers with OnTick,
// then Start; Stop halts it and waits for any in-flight tick.
type Engine struct {
	sampler Sampler
	logger  *slog.Logger
	newID   func() string

	mu       sync.Mutex
	interval time.Duration
	window   int
	handlers []Handler
	buffer   *series.Buffer
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}

	statsMu sync.Mutex
	stats   Stats

	errs *errTracker
}

// New creates an Engine with DefaultInterval and DefaultWindow.
// If logger is nil, a no-op logger is used.
func New(sampler Sampler, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		sampler:  sampler,
		logger:   logger,
		newID:    func() string { return uuid.NewString() },
		interval: DefaultInterval,
		window:   DefaultWindow,
		errs:     newErrTracker(logger),
		stats:    Stats{Failures: make(map[string]uint64)},
	}
}

// Configure sets the tick period and the series capacity. It must be
// called before Start.
func (e *Engine) Configure(interval time.Duration, window int) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, interval)
	}
	if window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %d", ErrInvalidConfig, window)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrRunning
	}
	e.interval = interval
	e.window = window
	return nil
}

// OnTick registers h to be called after every tick.
func (e *Engine) OnTick(h Handler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	e.mu.Unlock()
}

// Start launches the tick loop and returns immediately. The first tick
// fires one interval after Start. Each Start begins a fresh series window
// and RunID. Cancelling ctx stops the loop like Stop does, but only Stop
// waits for it to exit.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrRunning
	}

	buf, err := series.New(e.window, series.CPUPercent, series.MemPercent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// A new run gets another chance at subgroups suspended by the last one.
	if bs, ok := e.sampler.(breakerSampler); ok {
		bs.ResetBreakers()
	}

	runID := e.newID()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.buffer = buf
	e.cancel = cancel
	e.done = done
	e.running = true

	e.statsMu.Lock()
	e.stats = Stats{
		RunID:     runID,
		Running:   true,
		StartedAt: time.Now(),
		Failures:  make(map[string]uint64),
	}
	e.statsMu.Unlock()

	e.logger.Info("monitor started",
		"run_id", runID,
		"interval", e.interval,
		"window", e.window,
	)

	go e.run(ctx, runID, buf, e.interval, done)
	return nil
}

// Stop cancels the loop and blocks until it has exited. A tick that is
// in flight when Stop is called completes, handlers included, before Stop
// returns; no tick starts afterwards. Stop is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
}

// finish marks the run that owns done as stopped. It runs on the loop
// goroutine, so cancelling the Start context alone also leaves the engine
// ready for another Start.
func (e *Engine) finish(done chan struct{}) {
	e.mu.Lock()
	current := e.running && e.done == done
	if current {
		e.running = false
		e.cancel()
	}
	e.mu.Unlock()
	if !current {
		return
	}

	e.statsMu.Lock()
	e.stats.Running = false
	stats := e.stats
	e.statsMu.Unlock()

	e.logger.Info("monitor stopped",
		"run_id", stats.RunID,
		"ticks", stats.Ticks,
		"skipped", stats.Skipped,
	)
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Buffer returns the series buffer of the current or most recent run, or
// nil before the first Start. Collaborators may call Snapshot on it from
// any goroutine.
func (e *Engine) Buffer() *series.Buffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer
}

// Stats returns a copy of the engine statistics.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	out := e.stats
	out.Failures = make(map[string]uint64, len(e.stats.Failures))
	for k, v := range e.stats.Failures {
		out.Failures[k] = v
	}
	e.statsMu.Unlock()

	if bs, ok := e.sampler.(breakerSampler); ok {
		out.Suspended = bs.Suspended()
	}
	return out
}

// run is the loop goroutine. It owns all pushes into buf.
func (e *Engine) run(ctx context.Context, runID string, buf *series.Buffer, interval time.Duration, done chan struct{}) {
	defer func() {
		e.finish(done)
		close(done)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// A tick already due alongside cancellation is dropped.
		if ctx.Err() != nil {
			return
		}

		seq++
		start := time.Now()
		e.tick(ctx, runID, seq, buf)
		latency := time.Since(start)

		// Ticks that came due while this one ran are skipped, never
		// queued: drain the one the ticker may have buffered.
		var skipped uint64
		if latency >= interval {
			skipped = uint64(latency / interval)
			select {
			case <-ticker.C:
			default:
			}
			e.logger.Warn("tick overran interval",
				"run_id", runID,
				"seq", seq,
				"latency", latency,
				"skipped", skipped,
			)
		}

		e.statsMu.Lock()
		e.stats.Ticks++
		e.stats.Skipped += skipped
		e.stats.LastTick = start
		e.stats.LastLatency = latency
		e.statsMu.Unlock()
	}
}

// tick performs one sample-and-store cycle and notifies handlers.
func (e *Engine) tick(ctx context.Context, runID string, seq uint64, buf *series.Buffer) {
	// An in-flight tick is allowed to finish after Stop.
	smp := e.sampler.Sample(context.WithoutCancel(ctx))

	e.recordFailures(smp)

	if smp.CPU.Err == nil && !smp.CPU.Baseline {
		buf.Push(series.CPUPercent, smp.CPU.Percent)
	}
	if smp.Memory.Err == nil {
		buf.Push(series.MemPercent, smp.Memory.Percent)
	}

	t := Tick{
		Seq:    seq,
		RunID:  runID,
		Sample: smp,
		Series: buf.Snapshots(),
	}

	e.mu.Lock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for i, h := range handlers {
		e.dispatch(i, h, t)
	}
}

// dispatch calls one handler, recovering a panic so a broken collaborator
// cannot kill the loop.
func (e *Engine) dispatch(i int, h Handler, t Tick) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tick handler panicked",
				"run_id", t.RunID,
				"seq", t.Seq,
				"handler", i,
				"panic", r,
			)
		}
	}()
	h(t)
}

// recordFailures counts failed subgroups and logs them through the
// repeat-suppressing tracker.
func (e *Engine) recordFailures(smp sysmetrics.Sample) {
	errs := smp.Errors()
	if len(errs) == 0 {
		return
	}

	e.statsMu.Lock()
	for group := range errs {
		e.stats.Failures[group]++
	}
	e.statsMu.Unlock()

	for group, err := range errs {
		e.errs.log(group, err)
	}
}
