// Package utils holds small process-level helpers shared by the daemon and
// the CLI: pid files and the NATS connection.
package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// pidPath picks the runtime directory for pid files: XDG runtime dir when
// set, ~/ovnd when it exists, the system temp dir otherwise.
func pidPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	home := filepath.Join(os.Getenv("HOME"), "ovnd")
	if fi, err := os.Stat(home); err == nil && fi.IsDir() {
		return home
	}
	return os.TempDir()
}

// GeneratePidFile returns the pid file path for a service name.
func GeneratePidFile(name string) (string, error) {
	if name == "" {
		return "", errors.New("name is required")
	}
	return filepath.Join(pidPath(), fmt.Sprintf("%s.pid", name)), nil
}

// WritePidFile records a service pid.
func WritePidFile(name string, pid int) error {
	pidFilename, err := GeneratePidFile(name)
	if err != nil {
		return err
	}
	return os.WriteFile(pidFilename, []byte(strconv.Itoa(pid)), 0o644)
}

// ReadPidFile returns the recorded pid for a service.
func ReadPidFile(name string) (int, error) {
	pidFilename, err := GeneratePidFile(name)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(pidFilename)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(bytes.TrimSpace(data)))
}

// RemovePidFile deletes a service pid file.
func RemovePidFile(name string) error {
	pidFilename, err := GeneratePidFile(name)
	if err != nil {
		return err
	}
	return os.Remove(pidFilename)
}

// StopProcess terminates the recorded process for a service and cleans up
// its pid file. SIGTERM first; SIGKILL if it ignores that.
func StopProcess(name string) error {
	pid, err := ReadPidFile(name)
	if err != nil {
		return err
	}
	if err := killProcess(pid); err != nil {
		return err
	}
	return RemovePidFile(name)
}

func killProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}

	// Give it a moment before escalating.
	for i := 0; i < 10; i++ {
		time.Sleep(200 * time.Millisecond)
		if err := process.Signal(syscall.Signal(0)); err != nil {
			return nil
		}
	}
	return process.Signal(syscall.SIGKILL)
}
