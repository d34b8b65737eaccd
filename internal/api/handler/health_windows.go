//go:build windows

package handler

import "time"

// getCPUUsage returns the CPU usage percentage for this process.
// On Windows, this is a stub that returns zero.
func getCPUUsage() float64 {
	return 0
}

// getChildCPUTime is not tracked on Windows.
func getChildCPUTime() time.Duration {
	return 0
}
