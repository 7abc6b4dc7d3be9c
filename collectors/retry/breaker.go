// Package retry provides a circuit breaker for OS queries that hang. When a
// query times out repeatedly its breaker opens and callers skip it for a
// growing interval instead of stacking up more blocked goroutines.
package retry

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is normal operation; calls pass through.
	StateClosed State = iota
	// StateOpen means failures reached the threshold; calls are skipped.
	StateOpen
	// StateHalfOpen lets a single trial call through to test recovery.
	StateHalfOpen
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config configures a Breaker.
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the
	// circuit. Values below 1 are treated as 1.
	MaxFailures int
	// ResetTimeout is the first wait before a trial call is allowed.
	ResetTimeout time.Duration
	// MaxResetTimeout caps the backoff.
	MaxResetTimeout time.Duration
	// BackoffMultiplier grows the wait each time a trial call fails.
	BackoffMultiplier float64
	// Logger for state changes. Nil is safe (a discard logger is used).
	Logger *slog.Logger
}

// DefaultConfig returns defaults sized for a one-second sampling loop.
func DefaultConfig() Config {
	return Config{
		MaxFailures:       3,
		ResetTimeout:      10 * time.Second,
		MaxResetTimeout:   5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// Stats holds breaker statistics for external inspection.
type Stats struct {
	State            State
	ConsecutiveFails int
	TotalFailures    int
	TotalSuccesses   int
	LastFailure      time.Time
	LastSuccess      time.Time
	CurrentTimeout   time.Duration
	ConsecutiveSkips int
}

// Breaker tracks consecutive failures of one named operation. Callers ask
// Allow before the call and report the outcome with Success or Failure.
type Breaker struct {
	name   string
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            State
	trialing         bool
	failures         int
	lastFailure      time.Time
	lastSuccess      time.Time
	currentTimeout   time.Duration
	totalFailures    int
	totalSuccesses   int
	consecutiveSkips int
}

// New creates a closed Breaker for the named operation.
func New(name string, cfg Config) *Breaker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	if cfg.MaxResetTimeout < cfg.ResetTimeout {
		cfg.MaxResetTimeout = cfg.ResetTimeout
	}
	return &Breaker{
		name:           name,
		config:         cfg,
		logger:         logger,
		now:            time.Now,
		state:          StateClosed,
		currentTimeout: cfg.ResetTimeout,
	}
}

// Allow reports whether the caller may run the operation now. When it
// returns false, retryIn is the time left before the next trial call. In the
// half-open state only one caller at a time is allowed through.
func (b *Breaker) Allow() (ok bool, retryIn time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, 0

	case StateOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed < b.currentTimeout {
			b.consecutiveSkips++
			return false, b.currentTimeout - elapsed
		}
		b.state = StateHalfOpen
		b.trialing = true
		b.logger.Info("circuit breaker transitioning to half-open",
			"operation", b.name,
		)
		return true, 0

	case StateHalfOpen:
		if b.trialing {
			b.consecutiveSkips++
			return false, 0
		}
		b.trialing = true
		return true, 0

	default:
		return true, 0
	}
}

// Success records a completed call. A successful trial closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		b.logger.Info("circuit breaker closed after successful trial",
			"operation", b.name,
			"skipped", b.consecutiveSkips,
		)
	}

	b.state = StateClosed
	b.trialing = false
	b.failures = 0
	b.consecutiveSkips = 0
	b.totalSuccesses++
	b.lastSuccess = b.now()
	b.currentTimeout = b.config.ResetTimeout
}

// Failure records a failed call. Reaching MaxFailures opens the circuit; a
// failed trial reopens it with a longer timeout.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.totalFailures++
	b.lastFailure = b.now()

	switch b.state {
	case StateHalfOpen:
		b.trialing = false
		b.currentTimeout = time.Duration(float64(b.currentTimeout) * b.config.BackoffMultiplier)
		if b.currentTimeout > b.config.MaxResetTimeout {
			b.currentTimeout = b.config.MaxResetTimeout
		}
		b.state = StateOpen
		b.logger.Warn("circuit breaker re-opened after half-open failure",
			"operation", b.name,
			"failures", b.failures,
			"next_timeout", b.currentTimeout,
		)

	case StateClosed:
		if b.failures >= b.config.MaxFailures {
			b.state = StateOpen
			b.currentTimeout = b.config.ResetTimeout
			b.logger.Warn("circuit breaker opened",
				"operation", b.name,
				"failures", b.failures,
				"timeout", b.currentTimeout,
			)
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker statistics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:            b.state,
		ConsecutiveFails: b.failures,
		TotalFailures:    b.totalFailures,
		TotalSuccesses:   b.totalSuccesses,
		LastFailure:      b.lastFailure,
		LastSuccess:      b.lastSuccess,
		CurrentTimeout:   b.currentTimeout,
		ConsecutiveSkips: b.consecutiveSkips,
	}
}

// Reset forces the breaker back to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		b.logger.Info("circuit breaker manually reset",
			"operation", b.name,
			"was", b.state,
		)
	}
	b.state = StateClosed
	b.trialing = false
	b.failures = 0
	b.consecutiveSkips = 0
	b.currentTimeout = b.config.ResetTimeout
}
