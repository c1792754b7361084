package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// PIDManager tracks the PID of a running node so that `start` can refuse
// to run twice and `stop` can signal the right process.
type PIDManager struct {
	dir string
	cm  *ConfigManager
}

func NewPIDManager(cm *ConfigManager) (*PIDManager, error) {
	paths := GetAppPaths("")
	return &PIDManager{
		dir: paths.DataDir,
		cm:  cm,
	}, nil
}

func (p *PIDManager) pidPath() string {
	pidFileName := p.cm.GetConfigWithDefault("pid_path", "flowdeck-node.pid")
	return filepath.Join(p.dir, pidFileName)
}

func (p *PIDManager) WritePID(pid int) error {
	path := p.pidPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for PID file: %v", err)
	}

	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644)
}

func (p *PIDManager) ReadPID() (int, error) {
	data, err := os.ReadFile(p.pidPath())
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file contents: %v", err)
	}

	return pid, nil
}

func (p *PIDManager) RemovePIDFile() error {
	err := os.Remove(p.pidPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// IsProcessRunning reports whether a process with the given PID exists.
func (p *PIDManager) IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	if runtime.GOOS == "windows" {
		// FindProcess only succeeds for live processes on Windows
		return true
	}

	// Signal 0 probes for existence without delivering a signal
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// StopProcess sends SIGTERM to the given PID.
func (p *PIDManager) StopProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Signal(syscall.SIGTERM)
}
