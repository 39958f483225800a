//go:build !linux

package compiler

import (
	"os"
	"syscall"
)

func groupAttr() *syscall.SysProcAttr {
	return nil
}

func killGroup(pid int) {
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
}
