package sysmetrics

import (
	"errors"
	"fmt"
)

var (
	// ErrMetricQueryFailed marks a transient failure reading one subgroup,
	// e.g. permission denied on disk counters. The next tick retries it.
	ErrMetricQueryFailed = errors.New("metric query failed")

	// ErrUnsupportedPlatform marks a metric the host OS has no concept of,
	// such as load average on Windows.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrQueryTimeout marks a subgroup whose query exceeded the per-query
	// bound. It wraps ErrMetricQueryFailed.
	ErrQueryTimeout = fmt.Errorf("%w: timed out", ErrMetricQueryFailed)

	// ErrQuerySuspended marks a subgroup skipped because its query kept
	// timing out. It wraps ErrMetricQueryFailed.
	ErrQuerySuspended = fmt.Errorf("%w: suspended after repeated timeouts", ErrMetricQueryFailed)
)

// groupError tags err with the subgroup name. Errors that are not already
// classified are wrapped as ErrMetricQueryFailed.
func groupError(group string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrMetricQueryFailed) || errors.Is(err, ErrUnsupportedPlatform) {
		return fmt.Errorf("%s: %w", group, err)
	}
	return fmt.Errorf("%s: %w: %w", group, ErrMetricQueryFailed, err)
}

// notImplementedMsg is the text of gopsutil's ErrNotImplementedError.
const notImplementedMsg = "not implemented yet"

// isNotImplemented reports whether err, or an error it wraps, is gopsutil's
// not-implemented error. The sentinel lives in an internal package, so
// compare whole messages along the chain.
func isNotImplemented(err error) bool {
	for err != nil {
		if err.Error() == notImplementedMsg {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
