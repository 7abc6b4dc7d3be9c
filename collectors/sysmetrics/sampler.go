package sysmetrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"

	"gitlab.com/tinyland/lab/sysmon-pulse/collectors/retry"
)

const (
	// DefaultQueryTimeout bounds each subgroup query.
	DefaultQueryTimeout = 2 * time.Second

	// DefaultDiskPath is the filesystem whose usage is reported.
	DefaultDiskPath = "/"
)

// Config configures a Sampler.
type Config struct {
	// DiskPath is the mount point reported in Sample.DiskUsage.
	DiskPath string

	// QueryTimeout bounds every subgroup query. Zero uses DefaultQueryTimeout.
	QueryTimeout time.Duration

	// Breaker configures the per-subgroup circuit breakers that suspend a
	// query after repeated timeouts. The zero value uses
	// retry.DefaultConfig.
	Breaker retry.Config

	// Logger for sampling events. Nil is safe (a discard logger is used).
	Logger *slog.Logger
}

// DefaultConfig returns the sampler defaults.
func DefaultConfig() Config {
	return Config{
		DiskPath:     DefaultDiskPath,
		QueryTimeout: DefaultQueryTimeout,
		Breaker:      retry.DefaultConfig(),
	}
}

// Sampler reads one Sample per call from the host OS. It is safe for
// concurrent use. The only state it keeps is the previous CPU time reading
// used to compute utilisation deltas.
type Sampler struct {
	logger   *slog.Logger
	diskPath string
	timeout  time.Duration
	goos     string
	breakers map[string]*retry.Breaker

	mu        sync.Mutex
	prevBusy  float64
	prevTotal float64
	primed    bool

	// Overridable OS readers for testing.
	cpuTimes      func(ctx context.Context) (cpu.TimesStat, error)
	cpuInfo       func(ctx context.Context) (CPUInfo, error)
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	swapMemory    func(ctx context.Context) (*mem.SwapMemoryStat, error)
	netCounters   func(ctx context.Context) ([]net.IOCountersStat, error)
	diskCounters  func(ctx context.Context) (map[string]disk.IOCountersStat, error)
	diskUsage     func(ctx context.Context, path string) (DiskUsage, error)
	battery       func(ctx context.Context) (Battery, error)
	pids          func(ctx context.Context) ([]int32, error)
	loadAvg       func(ctx context.Context) (*load.AvgStat, error)
}

// NewSampler creates a Sampler backed by gopsutil and platform readers.
func NewSampler(cfg Config) *Sampler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = DefaultDiskPath
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.Breaker.MaxFailures == 0 && cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker = retry.DefaultConfig()
	}
	if cfg.Breaker.Logger == nil {
		cfg.Breaker.Logger = logger
	}

	breakers := make(map[string]*retry.Breaker, len(Groups))
	for _, g := range Groups {
		breakers[g] = retry.New(g, cfg.Breaker)
	}

	return &Sampler{
		logger:   logger,
		diskPath: cfg.DiskPath,
		timeout:  cfg.QueryTimeout,
		goos:     runtime.GOOS,
		breakers: breakers,

		cpuTimes:      readCPUTimes,
		cpuInfo:       readCPUInfo,
		virtualMemory: mem.VirtualMemoryWithContext,
		swapMemory:    mem.SwapMemoryWithContext,
		netCounters: func(ctx context.Context) ([]net.IOCountersStat, error) {
			return net.IOCountersWithContext(ctx, false)
		},
		diskCounters: func(ctx context.Context) (map[string]disk.IOCountersStat, error) {
			return disk.IOCountersWithContext(ctx)
		},
		diskUsage: readDiskUsage,
		battery:   readBattery,
		pids:      process.PidsWithContext,
		loadAvg:   load.AvgWithContext,
	}
}

// Sample queries every subgroup concurrently and returns the combined
// result. It never fails as a whole: each subgroup records its own error.
func (s *Sampler) Sample(ctx context.Context) Sample {
	smp := Sample{Timestamp: time.Now()}

	var g errgroup.Group
	g.Go(func() error { smp.CPU = s.sampleCPU(ctx); return nil })
	g.Go(func() error { smp.CPUInfo = s.sampleCPUInfo(ctx); return nil })
	g.Go(func() error { smp.Memory = s.sampleMemory(ctx); return nil })
	g.Go(func() error { smp.Swap = s.sampleSwap(ctx); return nil })
	g.Go(func() error { smp.Network = s.sampleNetwork(ctx); return nil })
	g.Go(func() error { smp.DiskIO = s.sampleDiskIO(ctx); return nil })
	g.Go(func() error { smp.DiskUsage = s.sampleDiskUsage(ctx); return nil })
	g.Go(func() error { smp.Battery = s.sampleBattery(ctx); return nil })
	g.Go(func() error { smp.Processes = s.sampleProcesses(ctx); return nil })
	g.Go(func() error { smp.LoadAvg = s.sampleLoadAvg(ctx); return nil })
	_ = g.Wait()

	s.logger.Debug("sysmetrics sampled",
		"cpu", fmt.Sprintf("%.1f%%", smp.CPU.Percent),
		"mem", fmt.Sprintf("%.1f%%", smp.Memory.Percent),
		"disk", fmt.Sprintf("%.1f%%", smp.DiskUsage.Percent),
		"load", fmt.Sprintf("%.2f %.2f %.2f", smp.LoadAvg.Load1, smp.LoadAvg.Load5, smp.LoadAvg.Load15),
		"failed", len(smp.Errors()),
	)

	return smp
}

// sampleCPU computes utilisation from the delta between this and the
// previous cpu.Times reading. The first reading seeds the counters and
// reports a zero Baseline value.
func (s *Sampler) sampleCPU(ctx context.Context) CPUUsage {
	times, err := guardedQuery(ctx, s, GroupCPU, s.cpuTimes)
	if err != nil {
		return CPUUsage{Err: groupError(GroupCPU, err)}
	}

	busy, total := busyTotal(times)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		s.prevBusy, s.prevTotal = busy, total
		s.primed = true
		return CPUUsage{Baseline: true}
	}

	deltaBusy := busy - s.prevBusy
	deltaTotal := total - s.prevTotal
	s.prevBusy, s.prevTotal = busy, total

	if deltaTotal <= 0 {
		return CPUUsage{}
	}
	return CPUUsage{Percent: clampPercent(deltaBusy / deltaTotal * 100.0)}
}

// busyTotal splits a cpu.Times reading into busy and total seconds.
// Guest time is already counted in User on Linux and is left out.
func busyTotal(t cpu.TimesStat) (busy, total float64) {
	total = t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
	busy = total - t.Idle - t.Iowait
	return busy, total
}

func (s *Sampler) sampleCPUInfo(ctx context.Context) CPUInfo {
	info, err := guardedQuery(ctx, s, GroupCPUInfo, s.cpuInfo)
	if err != nil {
		return CPUInfo{Err: groupError(GroupCPUInfo, err)}
	}
	return info
}

func (s *Sampler) sampleMemory(ctx context.Context) MemoryUsage {
	vm, err := guardedQuery(ctx, s, GroupMemory, s.virtualMemory)
	if err != nil {
		return MemoryUsage{Err: groupError(GroupMemory, err)}
	}
	return MemoryUsage{
		Total:     vm.Total,
		Used:      vm.Used,
		Available: vm.Available,
		Percent:   clampPercent(vm.UsedPercent),
	}
}

func (s *Sampler) sampleSwap(ctx context.Context) SwapUsage {
	sw, err := guardedQuery(ctx, s, GroupSwap, s.swapMemory)
	if err != nil {
		return SwapUsage{Err: groupError(GroupSwap, err)}
	}
	return SwapUsage{Total: sw.Total, Used: sw.Used, Free: sw.Free}
}

func (s *Sampler) sampleNetwork(ctx context.Context) NetworkCounters {
	stats, err := guardedQuery(ctx, s, GroupNetwork, s.netCounters)
	if err != nil {
		return NetworkCounters{Err: groupError(GroupNetwork, err)}
	}
	// pernic=false yields a single "all" entry; sum anyway in case a
	// platform returns per-interface rows.
	var out NetworkCounters
	for _, st := range stats {
		out.BytesSent += st.BytesSent
		out.BytesRecv += st.BytesRecv
	}
	return out
}

func (s *Sampler) sampleDiskIO(ctx context.Context) DiskIOCounters {
	stats, err := guardedQuery(ctx, s, GroupDiskIO, s.diskCounters)
	if err != nil {
		return DiskIOCounters{Err: groupError(GroupDiskIO, err)}
	}
	var out DiskIOCounters
	for _, st := range stats {
		out.ReadBytes += st.ReadBytes
		out.WriteBytes += st.WriteBytes
	}
	return out
}

func (s *Sampler) sampleDiskUsage(ctx context.Context) DiskUsage {
	usage, err := guardedQuery(ctx, s, GroupDiskUsage, func(ctx context.Context) (DiskUsage, error) {
		return s.diskUsage(ctx, s.diskPath)
	})
	if err != nil {
		return DiskUsage{Path: s.diskPath, Err: groupError(GroupDiskUsage, err)}
	}
	return usage
}

func (s *Sampler) sampleBattery(ctx context.Context) Battery {
	bat, err := guardedQuery(ctx, s, GroupBattery, s.battery)
	if err != nil {
		return Battery{Err: groupError(GroupBattery, err)}
	}
	if bat.Present {
		bat.Percent = clampPercent(bat.Percent)
	}
	return bat
}

func (s *Sampler) sampleProcesses(ctx context.Context) ProcessCount {
	pids, err := guardedQuery(ctx, s, GroupProcesses, s.pids)
	if err != nil {
		return ProcessCount{Err: groupError(GroupProcesses, err)}
	}
	return ProcessCount{Count: len(pids)}
}

func (s *Sampler) sampleLoadAvg(ctx context.Context) LoadAverage {
	if s.goos == "windows" {
		return LoadAverage{Err: groupError(GroupLoadAvg, fmt.Errorf("%w: no load average on %s", ErrUnsupportedPlatform, s.goos))}
	}

	avg, err := guardedQuery(ctx, s, GroupLoadAvg, s.loadAvg)
	if err != nil {
		if isNotImplemented(err) {
			err = fmt.Errorf("%w: %v", ErrUnsupportedPlatform, err)
		}
		return LoadAverage{Err: groupError(GroupLoadAvg, err)}
	}
	return LoadAverage{
		Load1:  nonNegative(avg.Load1),
		Load5:  nonNegative(avg.Load5),
		Load15: nonNegative(avg.Load15),
	}
}

// readCPUTimes returns the aggregate cpu.Times row.
func readCPUTimes(ctx context.Context) (cpu.TimesStat, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return cpu.TimesStat{}, err
	}
	if len(times) == 0 {
		return cpu.TimesStat{}, fmt.Errorf("cpu times: no rows")
	}
	return times[0], nil
}

// readCPUInfo reads logical and physical core counts and the first CPU's
// clock. A missing frequency is not an error.
func readCPUInfo(ctx context.Context) (CPUInfo, error) {
	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return CPUInfo{}, fmt.Errorf("logical count: %w", err)
	}
	physical, err := cpu.CountsWithContext(ctx, false)
	if err != nil {
		return CPUInfo{}, fmt.Errorf("physical count: %w", err)
	}

	info := CPUInfo{Logical: logical, Physical: physical}
	if stats, err := cpu.InfoWithContext(ctx); err == nil && len(stats) > 0 {
		info.MHz = stats[0].Mhz
	}
	return info, nil
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Suspended lists the subgroups whose breaker is not closed, in Groups
// order. Their queries are being skipped or retried on a trial basis.
func (s *Sampler) Suspended() []string {
	var out []string
	for _, g := range Groups {
		if b, ok := s.breakers[g]; ok && b.State() != retry.StateClosed {
			out = append(out, g)
		}
	}
	return out
}

// BreakerStats returns a snapshot of every subgroup breaker.
func (s *Sampler) BreakerStats() map[string]retry.Stats {
	out := make(map[string]retry.Stats, len(s.breakers))
	for g, b := range s.breakers {
		out[g] = b.Stats()
	}
	return out
}

// ResetBreakers closes every breaker so suspended subgroups are queried
// again on the next Sample.
func (s *Sampler) ResetBreakers() {
	for _, b := range s.breakers {
		b.Reset()
	}
}
