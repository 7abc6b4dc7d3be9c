package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"

	"gitlab.com/tinyland/lab/sysmon-pulse/collectors/sysmetrics"
	"gitlab.com/tinyland/lab/sysmon-pulse/internal/format"
	"gitlab.com/tinyland/lab/sysmon-pulse/monitor"
	"gitlab.com/tinyland/lab/sysmon-pulse/series"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// onceGap separates the baseline and reported samples of -once so the CPU
// figure covers a real interval.
const onceGap = 500 * time.Millisecond

// tickLogger returns a handler that writes one debug line per tick. Failed
// subgroups are left out; the engine already logs them.
func tickLogger(logger *slog.Logger) monitor.Handler {
	return func(t monitor.Tick) {
		if !logger.Enabled(context.Background(), slog.LevelDebug) {
			return
		}
		s := t.Sample

		attrs := []any{
			"seq", t.Seq,
			"cpu_window", len(t.Series[series.CPUPercent]),
		}
		if s.CPU.Err == nil && !s.CPU.Baseline {
			attrs = append(attrs, "cpu", format.Percent(s.CPU.Percent))
		}
		if s.Memory.Err == nil {
			attrs = append(attrs,
				"mem", format.Percent(s.Memory.Percent),
				"mem_used", format.Bytes(s.Memory.Used),
			)
		}
		if s.DiskUsage.Err == nil {
			attrs = append(attrs,
				"disk", format.Percent(s.DiskUsage.Percent),
				"disk_free", format.Bytes(s.DiskUsage.Free),
			)
		}
		if s.Network.Err == nil {
			attrs = append(attrs,
				"net_sent", format.Bytes(s.Network.BytesSent),
				"net_recv", format.Bytes(s.Network.BytesRecv),
			)
		}
		if s.Battery.Err == nil && s.Battery.Present {
			attrs = append(attrs, "battery", format.Percent(s.Battery.Percent), "plugged", s.Battery.Plugged)
		}
		if s.Processes.Err == nil {
			attrs = append(attrs, "procs", s.Processes.Count)
		}
		if s.LoadAvg.Err == nil {
			attrs = append(attrs, "load1", s.LoadAvg.Load1)
		}

		logger.Debug("tick", attrs...)
	}
}

// onceReport is the -once output: the sample plus failed subgroups with
// their error text.
type onceReport struct {
	sysmetrics.Sample
	Failures map[string]string `json:"errors,omitempty"`
}

func newOnceReport(s sysmetrics.Sample) onceReport {
	r := onceReport{Sample: s}
	errs := s.Errors()
	if len(errs) == 0 {
		return r
	}

	r.Failures = make(map[string]string, len(errs))
	for name, err := range errs {
		r.Failures[name] = err.Error()
	}
	return r
}

// runOnce takes a baseline sample, waits gap, then writes a second sample to
// w as indented JSON.
func runOnce(ctx context.Context, sampler monitor.Sampler, w io.Writer, gap time.Duration) error {
	sampler.Sample(ctx)

	timer := time.NewTimer(gap)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	data, err := json.MarshalIndent(newOnceReport(sampler.Sample(ctx)), "", "  ")
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
