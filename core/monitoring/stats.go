package monitoring

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	// StatsRefreshInterval is the minimum time between stats refreshes
	StatsRefreshInterval = 2 * time.Second
)

// SystemStats holds host and process metrics for the health endpoint
type SystemStats struct {
	Hostname      string       `json:"hostname"`
	Platform      string       `json:"platform"`
	OS            string       `json:"os"`
	KernelVersion string       `json:"kernel_version"`
	CPUCores      int          `json:"cpu_cores"`
	CPUPercent    float64      `json:"cpu_percent"`
	Memory        MemoryInfo   `json:"memory"`
	Disk          DiskInfo     `json:"disk"`
	Runtime       RuntimeStats `json:"runtime"`
	Process       ProcessInfo  `json:"process"`
	StartTime     time.Time    `json:"start_time"`
	UptimeSecs    int64        `json:"uptime_secs"`
}

// MemoryInfo is virtual memory usage
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskInfo is usage of the filesystem holding the data directory
type DiskInfo struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// RuntimeStats holds Go runtime statistics
type RuntimeStats struct {
	NumGoroutines  int    `json:"num_goroutines"`
	AllocatedBytes uint64 `json:"allocated_bytes"`
	HeapObjects    uint64 `json:"heap_objects"`
	NumGC          uint32 `json:"num_gc"`
}

// ProcessInfo holds process-specific information
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	RSS        uint64  `json:"rss"`
	NumThreads int32   `json:"num_threads"`
}

type statsCollector struct {
	mu            sync.Mutex
	lastCollected time.Time
	cachedStats   *SystemStats
}

var collector = &statsCollector{}

// CollectSystemStats gathers system statistics, reusing the previous result
// for StatsRefreshInterval. Probe failures are joined into the returned error
// alongside partial stats.
func CollectSystemStats(ctx context.Context, startTime time.Time, diskPath string) (*SystemStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewTimeoutError("collect_system_stats", err.Error())
	}

	collector.mu.Lock()
	defer collector.mu.Unlock()

	if time.Since(collector.lastCollected) < StatsRefreshInterval && collector.cachedStats != nil {
		return collector.cachedStats, nil
	}

	var errs []error
	stats := &SystemStats{
		StartTime:  startTime,
		UptimeSecs: int64(time.Since(startTime).Seconds()),
		CPUCores:   runtime.NumCPU(),
		Runtime:    CollectRuntimeStats(),
	}

	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		stats.Hostname = hostInfo.Hostname
		stats.Platform = hostInfo.Platform
		stats.OS = hostInfo.OS
		stats.KernelVersion = hostInfo.KernelVersion
	} else {
		errs = append(errs, NewSystemError("host_info", "failed to read host info", err))
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	} else if err != nil {
		errs = append(errs, NewSystemError("cpu_percent", "failed to read cpu usage", err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.Memory = MemoryInfo{Total: vm.Total, Used: vm.Used, UsedPercent: vm.UsedPercent}
	} else {
		errs = append(errs, NewSystemError("memory", "failed to read memory usage", err))
	}

	if diskPath == "" {
		diskPath = "/"
	}
	if usage, err := disk.UsageWithContext(ctx, diskPath); err == nil {
		stats.Disk = DiskInfo{
			Path:        diskPath,
			Total:       usage.Total,
			Used:        usage.Used,
			Free:        usage.Free,
			UsedPercent: usage.UsedPercent,
		}
	} else {
		errs = append(errs, NewSystemError("disk_usage", "failed to read disk usage", err))
	}

	procInfo, err := CollectProcessInfo(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	stats.Process = procInfo

	if err := ctx.Err(); err != nil {
		return nil, NewTimeoutError("collect_system_stats", err.Error())
	}

	collector.cachedStats = stats
	collector.lastCollected = time.Now()

	return stats, errors.Join(errs...)
}

// CollectRuntimeStats gathers Go runtime metrics
func CollectRuntimeStats() RuntimeStats {
	var rtStats runtime.MemStats
	runtime.ReadMemStats(&rtStats)

	return RuntimeStats{
		NumGoroutines:  runtime.NumGoroutine(),
		AllocatedBytes: rtStats.Alloc,
		HeapObjects:    rtStats.HeapObjects,
		NumGC:          rtStats.NumGC,
	}
}

// CollectProcessInfo gathers current process info
func CollectProcessInfo(ctx context.Context) (ProcessInfo, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return ProcessInfo{}, NewSystemError("process_info", "failed to open own process", err)
	}

	result := ProcessInfo{PID: proc.Pid}
	var errs []error

	if cpuPercent, err := proc.CPUPercentWithContext(ctx); err == nil {
		result.CPUPercent = cpuPercent
	} else {
		errs = append(errs, err)
	}

	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil {
		result.RSS = memInfo.RSS
	} else {
		errs = append(errs, err)
	}

	if numThreads, err := proc.NumThreadsWithContext(ctx); err == nil {
		result.NumThreads = numThreads
	} else {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return result, NewSystemError("process_info", "partial process info", errors.Join(errs...))
	}
	return result, nil
}
