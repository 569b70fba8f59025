// Package sysinfo collects a point-in-time snapshot of the host and the
// dashboard process, served by the status endpoint.
package sysinfo

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HostInfo describes the machine the dashboard runs on.
type HostInfo struct {
	Hostname      string  `json:"hostname"`
	OS            string  `json:"os"`
	Platform      string  `json:"platform"`
	Architecture  string  `json:"architecture"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
	CPUCores      int     `json:"cpu_cores"`
	CPUModel      string  `json:"cpu_model"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	MemoryUsedPct float64 `json:"memory_used_pct"`
	DiskUsedPct   float64 `json:"disk_used_pct"`
}

// ProcessInfo describes the dashboard process itself.
type ProcessInfo struct {
	PID         int32   `json:"pid"`
	RSSMB       float64 `json:"rss_mb"`
	CPUPercent  float64 `json:"cpu_percent"`
	Goroutines  int     `json:"goroutines"`
	GoVersion   string  `json:"go_version"`
	StartedAt   int64   `json:"started_at_ms"`
	OpenedConns int     `json:"open_connections"`
}

// Snapshot bundles the host and process views.
type Snapshot struct {
	Host        HostInfo    `json:"host"`
	Process     ProcessInfo `json:"process"`
	CollectedAt time.Time   `json:"collected_at"`
}

// Collector produces snapshots for one process. Collection is best-effort:
// probes that fail leave their fields zero instead of failing the snapshot.
type Collector struct {
	proc *process.Process
}

// NewCollector creates a collector bound to the current process.
func NewCollector() (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Collector{proc: proc}, nil
}

// Collect gathers a snapshot of the host and the process.
func (c *Collector) Collect() *Snapshot {
	snapshot := &Snapshot{
		Host: HostInfo{
			OS:           runtime.GOOS,
			Architecture: runtime.GOARCH,
			CPUCores:     runtime.NumCPU(),
		},
		Process: ProcessInfo{
			PID:        c.proc.Pid,
			Goroutines: runtime.NumGoroutine(),
			GoVersion:  runtime.Version(),
		},
		CollectedAt: time.Now(),
	}

	if info, err := host.Info(); err == nil {
		snapshot.Host.Hostname = info.Hostname
		snapshot.Host.Platform = info.Platform
		snapshot.Host.UptimeSeconds = info.Uptime
	}

	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		snapshot.Host.CPUModel = cpuInfo[0].ModelName
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snapshot.Host.CPUPercent = percents[0]
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		snapshot.Host.MemoryTotalMB = float64(memInfo.Total) / 1024 / 1024
		snapshot.Host.MemoryUsedPct = memInfo.UsedPercent
	}

	if wd, err := os.Getwd(); err == nil {
		if usage, err := disk.Usage(wd); err == nil {
			snapshot.Host.DiskUsedPct = usage.UsedPercent
		}
	}

	if procMem, err := c.proc.MemoryInfo(); err == nil {
		snapshot.Process.RSSMB = float64(procMem.RSS) / 1024 / 1024
	}

	if cpuPercent, err := c.proc.CPUPercent(); err == nil {
		snapshot.Process.CPUPercent = cpuPercent
	}

	if createTime, err := c.proc.CreateTime(); err == nil {
		snapshot.Process.StartedAt = createTime
	}

	if conns, err := c.proc.Connections(); err == nil {
		snapshot.Process.OpenedConns = len(conns)
	}

	return snapshot
}
