// Package guard reads OS resource limits and live usage so the pool can
// size itself and workers can recycle browsers before the kernel starts
// refusing forks.
package guard

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const (
	// DriverRAMGB is the rough resident footprint of one headless Chrome.
	DriverRAMGB = 0.5
	// HardCapWorkers bounds auto-sizing no matter how large the host is.
	HardCapWorkers = 250
	// DefaultRAMGB is assumed when the host memory cannot be read.
	DefaultRAMGB = 8.0

	// procsPerDriver is how many OS processes one browser tends to spawn.
	procsPerDriver = 6
	// pidSafetyMargin is kept free for everything that is not a browser.
	pidSafetyMargin = 32
)

// Guard checks live resource usage against recycle thresholds.
type Guard struct {
	fdThreshold    int
	childThreshold int
	procPath       string
	logger         *slog.Logger
}

// New builds a Guard. Thresholds <= 0 disable the corresponding check.
func New(fdThreshold, childThreshold int, logger *slog.Logger) *Guard {
	return &Guard{
		fdThreshold:    fdThreshold,
		childThreshold: childThreshold,
		procPath:       "/proc",
		logger:         logger.With("component", "resource_guard"),
	}
}

// OpenFDs counts this process's open file descriptors. Returns 0 on
// platforms without /proc.
func (g *Guard) OpenFDs() int {
	entries, err := os.ReadDir(filepath.Join(g.procPath, "self", "fd"))
	if err != nil {
		return 0
	}
	return len(entries)
}

// ChildProcs counts live processes whose parent is this process.
func (g *Guard) ChildProcs() int {
	return countChildren(g.procPath, os.Getpid())
}

// UnderPressure reports whether either threshold is exceeded, with the
// reason for the recycle log line.
func (g *Guard) UnderPressure() (bool, string) {
	if g.fdThreshold > 0 {
		if fds := g.OpenFDs(); fds > g.fdThreshold {
			return true, "open_fds " + strconv.Itoa(fds)
		}
	}
	if g.childThreshold > 0 {
		if children := g.ChildProcs(); children > g.childThreshold {
			return true, "child_procs " + strconv.Itoa(children)
		}
	}
	return false, ""
}

func countChildren(procPath string, ppid int) int {
	entries, err := os.ReadDir(procPath)
	if err != nil {
		return 0
	}
	want := strconv.Itoa(ppid)
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}
		status, err := os.ReadFile(filepath.Join(procPath, entry.Name(), "status"))
		if err != nil {
			continue
		}
		if parentPid(string(status)) == want {
			count++
		}
	}
	return count
}

func parentPid(status string) string {
	for _, line := range strings.Split(status, "\n") {
		if rest, ok := strings.CutPrefix(line, "PPid:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// PidsLimit returns the effective process budget: the cgroup v2 pids.max
// when bounded, else the kernel pid_max, else a conservative default.
func PidsLimit() int {
	return pidsLimit("/sys/fs/cgroup/pids.max", "/proc/sys/kernel/pid_max")
}

func pidsLimit(cgroupPath, kernelPath string) int {
	if raw, err := os.ReadFile(cgroupPath); err == nil {
		value := strings.TrimSpace(string(raw))
		if value != "max" {
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				return n
			}
		}
	}
	if raw, err := os.ReadFile(kernelPath); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil && n > 0 {
			return n
		}
	}
	return 4096
}

// SystemRAMGB reads total host memory. ramOverrideGB short-circuits the
// probe (containers often misreport /proc/meminfo).
func SystemRAMGB(ramOverrideGB float64) float64 {
	if ramOverrideGB > 0 {
		return ramOverrideGB
	}
	if gb := ramFromMeminfo("/proc/meminfo"); gb > 0 {
		return gb
	}
	return DefaultRAMGB
}

func ramFromMeminfo(path string) float64 {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(raw), "\n") {
		rest, ok := strings.CutPrefix(line, "MemTotal:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		kb, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0
		}
		return kb / (1024 * 1024)
	}
	return 0
}

// AutoWorkers sizes the pool: an explicit override wins; otherwise the
// minimum of the RAM budget, 4x the CPU count, the PID headroom divided
// across browser process trees, and the hard cap.
func AutoWorkers(explicit int, ramOverrideGB float64) int {
	if explicit > 0 {
		return explicit
	}
	ramLimited := int(SystemRAMGB(ramOverrideGB) / DriverRAMGB)
	cpuLimited := runtime.NumCPU() * 4
	pidLimited := (PidsLimit() - countChildren("/proc", os.Getpid()) - pidSafetyMargin) / procsPerDriver

	workers := ramLimited
	for _, limit := range []int{cpuLimited, pidLimited, HardCapWorkers} {
		if limit < workers {
			workers = limit
		}
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
