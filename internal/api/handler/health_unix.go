//go:build !windows

package handler

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// CPU tracking state for calculating delta between polls
var (
	cpuMu          sync.Mutex
	lastCPUTime    time.Duration // user + system time
	lastWallTime   time.Time
	cpuInitialized bool
)

func rusageTime(who int) time.Duration {
	var rusage unix.Rusage
	if err := unix.Getrusage(who, &rusage); err != nil {
		return 0
	}
	user := time.Duration(rusage.Utime.Nano())
	sys := time.Duration(rusage.Stime.Nano())
	return user + sys
}

// getChildCPUTime returns the CPU time used by reaped child processes, which
// covers the extractor and transcoder of finished sessions.
func getChildCPUTime() time.Duration {
	return rusageTime(unix.RUSAGE_CHILDREN)
}

// getCPUUsage returns the CPU usage percentage for this process since last call.
func getCPUUsage() float64 {
	totalCPUTime := rusageTime(unix.RUSAGE_SELF)
	now := time.Now()

	cpuMu.Lock()
	defer cpuMu.Unlock()

	if !cpuInitialized {
		lastCPUTime = totalCPUTime
		lastWallTime = now
		cpuInitialized = true
		return 0 // First call, no delta yet
	}

	cpuDelta := totalCPUTime - lastCPUTime
	wallDelta := now.Sub(lastWallTime)

	lastCPUTime = totalCPUTime
	lastWallTime = now

	if wallDelta <= 0 {
		return 0
	}

	// Single-core equivalent, capped at 100.
	pct := float64(cpuDelta) / float64(wallDelta) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	return pct
}
