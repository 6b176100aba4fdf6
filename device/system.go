package device

import (
	"os"
	"runtime"
	"syscall"
)

// RuntimeMonitor is the default SystemMonitor. Heap figures come from the
// Go runtime, the sketch figures from the executable and the file system it
// lives on, and the file system figures from the device's data directory.
type RuntimeMonitor struct {
	dataDir        string
	executablePath string
	executableSize uint64
}

// NewRuntimeMonitor returns a monitor reporting file-system usage for
// dataDir. An empty dataDir leaves the file-system figures at zero.
func NewRuntimeMonitor(dataDir string) *RuntimeMonitor {
	m := &RuntimeMonitor{dataDir: dataDir}
	if path, err := os.Executable(); err == nil {
		m.executablePath = path
		if info, err := os.Stat(path); err == nil {
			m.executableSize = uint64(info.Size())
		}
	}
	return m
}

// Stats implements the SystemMonitor interface. All values are read at call
// time.
func (m *RuntimeMonitor) Stats() SystemStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := SystemStats{
		HeapUsedBytes:        ms.HeapAlloc,
		HeapFreeBytes:        ms.HeapSys - ms.HeapAlloc,
		HeapMaxAllocBytes:    ms.HeapSys,
		SketchSpaceUsedBytes: m.executableSize,
	}

	if m.executablePath != "" {
		if used, total, ok := fsUsage(m.executablePath); ok {
			stats.FlashChipSizeBytes = total
			stats.SketchSpaceTotalBytes = total - used
		}
	}
	if m.dataDir != "" {
		if used, total, ok := fsUsage(m.dataDir); ok {
			stats.FileSystemUsedBytes = used
			stats.FileSystemTotalBytes = total
		}
	}
	return stats
}

func fsUsage(path string) (used, total uint64, ok bool) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return 0, 0, false
	}
	total = fs.Blocks * uint64(fs.Bsize)
	free := fs.Bavail * uint64(fs.Bsize)
	return total - free, total, true
}
