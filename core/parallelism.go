package core

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

// AvailableParallelism returns the number of logical CPUs, falling back to
// runtime.NumCPU when the host cannot be queried. It is never below 1.
func AvailableParallelism() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	return max(min(n, runtime.GOMAXPROCS(0)), 1)
}

// PhysicalCores returns the number of physical cores, or 0 when unknown.
func PhysicalCores() int {
	n, err := cpu.Counts(false)
	if err != nil {
		return 0
	}
	return n
}
