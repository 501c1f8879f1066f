package utils

import (
	"runtime"

	"market-analytics/src/models"

	"github.com/dustin/go-humanize"
)

// MemoryUsage reads the runtime memory statistics. Snapshots hold every
// dataset's history in memory, so heap size tracks loaded datasets.
func MemoryUsage() models.MMemoryUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return models.MMemoryUsage{
		HeapAlloc:  m.HeapAlloc,
		HeapHuman:  humanize.IBytes(m.HeapAlloc),
		Sys:        m.Sys,
		SysHuman:   humanize.IBytes(m.Sys),
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}
