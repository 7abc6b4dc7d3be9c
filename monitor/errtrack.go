package monitor

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/sysmon-pulse/collectors/sysmetrics"
)

const (
	// repeatWindow is how long an identical error stays suppressed.
	repeatWindow = time.Hour

	// repeatSummaryEvery logs a summary line every N suppressed repeats.
	repeatSummaryEvery = 100
)

// errTracker deduplicates repeated identical errors per subgroup. A
// subgroup that fails the same way every tick is logged once, then
// summarized every repeatSummaryEvery repeats.
type errTracker struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	groups map[string]*errState
}

type errState struct {
	lastMsg    string
	lastTime   time.Time
	suppressed int64
}

func newErrTracker(logger *slog.Logger) *errTracker {
	return &errTracker{
		logger: logger,
		now:    time.Now,
		groups: make(map[string]*errState),
	}
}

// log records err for group and reports whether a line was written.
func (t *errTracker) log(group string, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.groups[group]
	if st == nil {
		st = &errState{}
		t.groups[group] = st
	}

	msg := err.Error()
	now := t.now()
	if msg == st.lastMsg && now.Sub(st.lastTime) < repeatWindow {
		st.suppressed++
		if st.suppressed%repeatSummaryEvery == 0 {
			t.logger.Warn("metric still failing",
				"group", group,
				"repeated", st.suppressed,
				"error", err,
			)
			return true
		}
		return false
	}

	if st.suppressed > 0 {
		t.logger.Info("previous metric error repeated",
			"group", group,
			"repeated", st.suppressed,
		)
	}

	if errors.Is(err, sysmetrics.ErrUnsupportedPlatform) {
		t.logger.Info("metric unsupported on this platform", "group", group, "error", err)
	} else {
		t.logger.Warn("metric query failed", "group", group, "error", err)
	}

	st.lastMsg = msg
	st.lastTime = now
	st.suppressed = 0
	return true
}
