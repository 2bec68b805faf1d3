package fetch

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// Metrics snapshots pool load and system memory for status displays.
type Metrics struct {
	WorkersActive int     `json:"workers_active"`
	WorkersTotal  int     `json:"workers_total"`
	TasksQueued   int     `json:"tasks_queued"`
	TasksDone     int     `json:"tasks_done"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// RecommendedWorkers derives a worker count from free system memory,
// assuming roughly one concurrent fetch per 2 GiB available. Stays
// within [1, 8]; an unreadable memory state recommends 1.
func RecommendedWorkers() int {
	v, err := mem.VirtualMemory()
	if err != nil || v.Total == 0 {
		return 1
	}
	workers := int(v.Available / (2 << 30))
	if workers < 1 {
		return 1
	}
	if workers > 8 {
		return 8
	}
	return workers
}

// Metrics returns current pool and system resource usage. Memory reads
// degrade to zeros if the platform query fails.
func (p *Pool) Metrics() Metrics {
	var memUsedGB, memTotalGB, memPercent float64
	if v, err := mem.VirtualMemory(); err == nil && v.Total > 0 {
		memTotalGB = float64(v.Total) / 1024 / 1024 / 1024
		memUsedGB = float64(v.Total-v.Available) / 1024 / 1024 / 1024
		memPercent = (memUsedGB / memTotalGB) * 100
	}

	p.mu.Lock()
	active := p.active
	processed := p.processed
	p.mu.Unlock()

	return Metrics{
		WorkersActive: active,
		WorkersTotal:  p.workers,
		TasksQueued:   len(p.tasks),
		TasksDone:     processed,
		MemoryUsedGB:  memUsedGB,
		MemoryTotalGB: memTotalGB,
		MemoryPercent: memPercent,
	}
}
