// Package diagnostics collects best-effort system resource metrics for
// the operational health surface.
package diagnostics

import (
	"runtime"
	"strings"
	"sync"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics holds system-wide resource usage.
type SystemMetrics struct {
	// CPU
	CPUCores   int     `json:"cpu_cores"`
	CPUPercent float64 `json:"cpu_percent"`

	// Memory (in MB)
	MemTotalMB float64 `json:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent"`

	// Load Average (Unix)
	LoadAvg1  float64 `json:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15"`

	// Process
	Goroutines int `json:"goroutines"`

	// GPUs, if any were detected
	GPUs []GPUInfo `json:"gpus,omitempty"`
}

// GPUInfo describes one detected graphics card.
type GPUInfo struct {
	Name string `json:"name"`
}

// SystemMetricsCollector collects system-wide statistics. CPU usage is
// computed from the delta between consecutive Collect calls, so the
// first call reports zero.
type SystemMetricsCollector struct {
	mu           sync.Mutex
	lastCPUTotal float64
	lastCPUIdle  float64

	gpuOnce sync.Once
	gpus    []GPUInfo
}

// NewSystemMetricsCollector creates a new system metrics collector.
func NewSystemMetricsCollector() *SystemMetricsCollector {
	return &SystemMetricsCollector{}
}

// Collect gathers current system statistics. Every probe is best-effort;
// a failed probe leaves its fields zero.
func (c *SystemMetricsCollector) Collect() SystemMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := SystemMetrics{
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	c.collectMemoryInfo(&stats)
	c.collectCPUInfo(&stats)
	c.collectLoadAvg(&stats)
	c.collectGPUInfo(&stats)

	return stats
}

func (c *SystemMetricsCollector) collectMemoryInfo(stats *SystemMetrics) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}

	stats.MemTotalMB = float64(vm.Total) / 1024 / 1024
	stats.MemUsedMB = float64(vm.Used) / 1024 / 1024
	stats.MemPercent = vm.UsedPercent
}

func (c *SystemMetricsCollector) collectCPUInfo(stats *SystemMetrics) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return
	}

	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	idleTime := t.Idle + t.Iowait

	if c.lastCPUTotal > 0 {
		totalDelta := total - c.lastCPUTotal
		idleDelta := idleTime - c.lastCPUIdle
		if totalDelta > 0 {
			stats.CPUPercent = (1 - idleDelta/totalDelta) * 100
		}
	}

	c.lastCPUTotal = total
	c.lastCPUIdle = idleTime
}

func (c *SystemMetricsCollector) collectLoadAvg(stats *SystemMetrics) {
	avg, err := load.Avg()
	if err != nil {
		return
	}
	stats.LoadAvg1 = avg.Load1
	stats.LoadAvg5 = avg.Load5
	stats.LoadAvg15 = avg.Load15
}

// collectGPUInfo probes once and caches; installed cards do not change
// while the process runs.
func (c *SystemMetricsCollector) collectGPUInfo(stats *SystemMetrics) {
	c.gpuOnce.Do(func() {
		info, err := ghw.GPU()
		if err != nil || info == nil {
			return
		}
		for _, card := range info.GraphicsCards {
			name := ""
			if card.DeviceInfo != nil {
				switch {
				case card.DeviceInfo.Vendor != nil && card.DeviceInfo.Product != nil:
					name = strings.TrimSpace(card.DeviceInfo.Vendor.Name + " " + card.DeviceInfo.Product.Name)
				case card.DeviceInfo.Product != nil:
					name = strings.TrimSpace(card.DeviceInfo.Product.Name)
				case card.DeviceInfo.Vendor != nil:
					name = strings.TrimSpace(card.DeviceInfo.Vendor.Name)
				}
			}
			if name == "" {
				continue
			}
			c.gpus = append(c.gpus, GPUInfo{Name: name})
		}
	})
	stats.GPUs = c.gpus
}
