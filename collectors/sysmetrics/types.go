// Package sysmetrics samples local operating-system metrics: CPU, memory,
// swap, network and disk I/O counters, disk usage, battery, process count
// and load average. Each metric subgroup is read independently so a failure
// in one never hides the values of the others.
package sysmetrics

import "time"

// Subgroup names, used as log keys and in Sample.Errors.
const (
	GroupCPU       = "cpu"
	GroupCPUInfo   = "cpu_info"
	GroupMemory    = "memory"
	GroupSwap      = "swap"
	GroupNetwork   = "network"
	GroupDiskIO    = "disk_io"
	GroupDiskUsage = "disk_usage"
	GroupBattery   = "battery"
	GroupProcesses = "processes"
	GroupLoadAvg   = "load_avg"
)

// Groups lists every subgroup in sampling order.
var Groups = []string{
	GroupCPU,
	GroupCPUInfo,
	GroupMemory,
	GroupSwap,
	GroupNetwork,
	GroupDiskIO,
	GroupDiskUsage,
	GroupBattery,
	GroupProcesses,
	GroupLoadAvg,
}

// Sample is one measurement round. A subgroup whose Err is non-nil carries
// zero values and must not be displayed as data.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`

	CPU       CPUUsage        `json:"cpu"`
	CPUInfo   CPUInfo         `json:"cpu_info"`
	Memory    MemoryUsage     `json:"memory"`
	Swap      SwapUsage       `json:"swap"`
	Network   NetworkCounters `json:"network"`
	DiskIO    DiskIOCounters  `json:"disk_io"`
	DiskUsage DiskUsage       `json:"disk_usage"`
	Battery   Battery         `json:"battery"`
	Processes ProcessCount    `json:"processes"`
	LoadAvg   LoadAverage     `json:"load_avg"`
}

// CPUUsage is aggregate CPU utilisation since the previous reading.
type CPUUsage struct {
	// Percent is in [0, 100].
	Percent float64 `json:"percent"`

	// Baseline is set on the first reading of a Sampler. Percent is then
	// meaningless and should be left out of any trend.
	Baseline bool `json:"baseline"`

	Err error `json:"-"`
}

// CPUInfo describes CPU topology and clock.
type CPUInfo struct {
	Logical  int     `json:"logical"`
	Physical int     `json:"physical"`
	MHz      float64 `json:"mhz"`
	Err      error   `json:"-"`
}

// MemoryUsage is virtual memory usage in bytes.
type MemoryUsage struct {
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	Available uint64 `json:"available"`

	// Percent is in [0, 100].
	Percent float64 `json:"percent"`

	Err error `json:"-"`
}

// SwapUsage is swap space usage in bytes.
type SwapUsage struct {
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
	Err   error  `json:"-"`
}

// NetworkCounters are cumulative byte counters across all interfaces.
// They never decrease within one boot.
type NetworkCounters struct {
	BytesSent uint64 `json:"bytes_sent"`
	BytesRecv uint64 `json:"bytes_recv"`
	Err       error  `json:"-"`
}

// DiskIOCounters are cumulative byte counters across all block devices.
type DiskIOCounters struct {
	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
	Err        error  `json:"-"`
}

// DiskUsage is filesystem usage for Path. Used + Free == Total, where Total
// is the capacity visible to unprivileged users (blocks reserved for root
// are excluded).
type DiskUsage struct {
	Path    string  `json:"path"`
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Free    uint64  `json:"free"`
	Percent float64 `json:"percent"`
	Err     error   `json:"-"`
}

// Battery is the primary battery state. A host without a battery reports
// Present == false and a nil Err.
type Battery struct {
	Present bool    `json:"present"`
	Percent float64 `json:"percent"`
	Plugged bool    `json:"plugged"`
	Err     error   `json:"-"`
}

// ProcessCount is the number of processes on the host.
type ProcessCount struct {
	Count int   `json:"count"`
	Err   error `json:"-"`
}

// LoadAverage holds the 1, 5 and 15 minute load averages.
type LoadAverage struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
	Err    error   `json:"-"`
}

// Errors returns the failed subgroups keyed by name. The map is empty when
// every subgroup succeeded.
func (s Sample) Errors() map[string]error {
	errs := make(map[string]error)
	for name, err := range map[string]error{
		GroupCPU:       s.CPU.Err,
		GroupCPUInfo:   s.CPUInfo.Err,
		GroupMemory:    s.Memory.Err,
		GroupSwap:      s.Swap.Err,
		GroupNetwork:   s.Network.Err,
		GroupDiskIO:    s.DiskIO.Err,
		GroupDiskUsage: s.DiskUsage.Err,
		GroupBattery:   s.Battery.Err,
		GroupProcesses: s.Processes.Err,
		GroupLoadAvg:   s.LoadAvg.Err,
	} {
		if err != nil {
			errs[name] = err
		}
	}
	return errs
}
