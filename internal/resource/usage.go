// Package resource samples process and system memory and vetoes scheduling when memory runs short.
package resource

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
)

// Usage is one sample of process and system resource usage
type Usage struct {
	AllocMB              int64   `json:"alloc_mb"`
	SysMB                int64   `json:"sys_mb"`
	Goroutines           int     `json:"goroutines"`
	SystemMemUsedMB      int64   `json:"system_mem_used_mb"`
	SystemMemTotalMB     int64   `json:"system_mem_total_mb"`
	SystemMemUsedPercent float64 `json:"system_mem_used_percent"`
}

// UsageReader samples the current usage
type UsageReader func() (Usage, error)

// ReadUsage samples the Go runtime and the system memory via gopsutil
func ReadUsage() (Usage, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	usage := Usage{
		AllocMB:    int64(m.Alloc / 1024 / 1024),
		SysMB:      int64(m.Sys / 1024 / 1024),
		Goroutines: runtime.NumGoroutine(),
	}

	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return usage, fmt.Errorf("failed to get system memory stats: %w", err)
	}
	usage.SystemMemUsedMB = int64(vmStat.Used / 1024 / 1024)
	usage.SystemMemTotalMB = int64(vmStat.Total / 1024 / 1024)
	usage.SystemMemUsedPercent = vmStat.UsedPercent
	return usage, nil
}
