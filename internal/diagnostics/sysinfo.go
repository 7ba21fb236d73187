package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/syncwave/syncwave/internal/logger"
)

const (
	sysinfoStart = "======== DEBUG INFO START ========"
	sysinfoEnd   = "======== DEBUG INFO END ========"
)

// CaptureSystemInfo gathers host and runtime statistics around an abnormal
// event. When dir is not empty the report is also written to
// dir/debug_<timestamp>.txt.
func CaptureSystemInfo(reason, dir string) string {
	var info strings.Builder

	fmt.Fprintf(&info, "%s\n", sysinfoStart)
	fmt.Fprintf(&info, "Event: %s\n", reason)
	fmt.Fprintf(&info, "Time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&info, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if hi, err := host.Info(); err == nil {
		fmt.Fprintf(&info, "Host: %s %s (%s), kernel %s\n", hi.Platform, hi.PlatformVersion, hi.OS, hi.KernelVersion)
	}

	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		fmt.Fprintf(&info, "CPU Utilization: %.2f%%\n", cpuPercent[0])
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(&info, "RAM Usage: %.2f%%\n", vmStat.UsedPercent)
	}

	if swapStat, err := mem.SwapMemory(); err == nil {
		fmt.Fprintf(&info, "Swap Usage: %.2f%%\n", swapStat.UsedPercent)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Fprintf(&info, "Go Runtime: Alloc = %v MiB, TotalAlloc = %v MiB, Sys = %v MiB, NumGC = %v, Goroutines = %d\n",
		bToMb(m.Alloc), bToMb(m.TotalAlloc), bToMb(m.Sys), m.NumGC, runtime.NumGoroutine())

	fmt.Fprintf(&info, "%s\n", sysinfoEnd)

	report := info.String()
	if dir == "" {
		return report
	}

	debugFileName := fmt.Sprintf("debug_%s.txt", time.Now().Format("2006-01-02_15-04-05"))
	debugFilePath := filepath.Join(dir, debugFileName)
	log := GetLogger()
	if err := os.WriteFile(debugFilePath, []byte(report), 0o600); err != nil {
		log.Warn("failed to write debug file",
			logger.String("path", debugFilePath),
			logger.Error(err))
	} else {
		log.Info("debug information written",
			logger.String("path", debugFilePath),
			logger.String("reason", reason))
	}
	return report
}

// bToMb converts bytes to megabytes
func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
