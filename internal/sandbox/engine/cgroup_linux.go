//go:build linux

package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"execbox/internal/sandbox/spec"
)

// cgroupControllers are delegated to run groups when the root allows it.
var cgroupControllers = []string{"pids", "memory"}

// prepareCgroupRoot creates root and, when it is a cgroup2 directory, enables
// the run-group controllers in its subtree_control.
func prepareCgroupRoot(root string) error {
	if root == "" {
		return fmt.Errorf("cgroup root is required")
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return fmt.Errorf("create cgroup root: %w", err)
	}
	control := filepath.Join(root, "cgroup.subtree_control")
	current, err := os.ReadFile(control)
	if err != nil {
		return nil
	}
	enabled := strings.Fields(string(current))
	for _, name := range cgroupControllers {
		if slices.Contains(enabled, name) {
			continue
		}
		if err := os.WriteFile(control, []byte("+"+name), 0640); err != nil {
			return fmt.Errorf("enable %s controller: %w", name, err)
		}
	}
	return nil
}

func createRunCgroup(root, submissionID string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("cgroup root is required")
	}
	runDir := fmt.Sprintf("%s-%d", submissionID, time.Now().UnixNano())
	cgroupPath := filepath.Join(root, runDir)
	if err := os.Mkdir(cgroupPath, 0750); err != nil {
		return "", fmt.Errorf("create cgroup path: %w", err)
	}
	return cgroupPath, nil
}

func applyCgroupLimits(cgroupPath string, limits spec.ResourceLimit) error {
	pidsValue := "max"
	if limits.PIDs > 0 {
		pidsValue = strconv.FormatInt(limits.PIDs, 10)
	}
	if err := writeCgroupValue(cgroupPath, "pids.max", pidsValue); err != nil {
		return err
	}
	if limits.MemoryMB > 0 {
		if err := writeCgroupValue(cgroupPath, "memory.max", strconv.FormatInt(limits.MemoryMB*1024*1024, 10)); err != nil {
			return err
		}
		// Swap would let the program outgrow memory.max unnoticed.
		if _, err := os.Stat(filepath.Join(cgroupPath, "memory.swap.max")); err == nil {
			if err := writeCgroupValue(cgroupPath, "memory.swap.max", "0"); err != nil {
				return err
			}
		}
	}
	return nil
}

func addProcessToCgroup(cgroupPath string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid")
	}
	return writeCgroupValue(cgroupPath, "cgroup.procs", strconv.Itoa(pid))
}

// killCgroup kills every process in the group, including ones that left the
// helper's process group with setsid.
func killCgroup(cgroupPath string) error {
	killPath := filepath.Join(cgroupPath, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

// removeCgroup waits up to delay for the group to drain, then removes it.
func removeCgroup(cgroupPath string, delay time.Duration) error {
	deadline := time.Now().Add(delay)
	for cgroupPopulated(cgroupPath) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	return os.RemoveAll(cgroupPath)
}

func cgroupPopulated(cgroupPath string) bool {
	val, ok := readCgroupKey(cgroupPath, "cgroup.events", "populated")
	return ok && val > 0
}

func wasOomKilled(cgroupPath string) bool {
	if cgroupPath == "" {
		return false
	}
	val, ok := readCgroupKey(cgroupPath, "memory.events", "oom_kill")
	return ok && val > 0
}

func memoryPeakKB(cgroupPath string, state *os.ProcessState) int64 {
	if cgroupPath != "" {
		if val, err := readCgroupInt(cgroupPath, "memory.peak"); err == nil && val > 0 {
			return val / 1024
		}
	}
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}

// readCgroupKey reads one "key value" line from a flat-keyed cgroup file.
func readCgroupKey(cgroupPath, name, key string) (int64, bool) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, name))
	if err != nil {
		return 0, false
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 || fields[0] != key {
			continue
		}
		val, err := strconv.ParseInt(fields[1], 10, 64)
		return val, err == nil
	}
	return 0, false
}

func readCgroupInt(cgroupPath, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, name))
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(string(data))
	return strconv.ParseInt(value, 10, 64)
}

func writeCgroupValue(cgroupPath, name, value string) error {
	path := filepath.Join(cgroupPath, name)
	return os.WriteFile(path, []byte(value), 0640)
}
