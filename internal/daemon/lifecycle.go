package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
)

// LifecycleManager owns the PID file of a running daemon.
type LifecycleManager struct {
	pidFile string
	logger  zerolog.Logger
}

// NewLifecycleManager creates a lifecycle manager. An empty pidFile disables
// PID tracking.
func NewLifecycleManager(pidFile string, logger zerolog.Logger) *LifecycleManager {
	return &LifecycleManager{
		pidFile: pidFile,
		logger:  logger,
	}
}

// PIDFile returns the managed PID file path.
func (l *LifecycleManager) PIDFile() string {
	return l.pidFile
}

// Start writes the PID file, refusing when another live process owns it.
func (l *LifecycleManager) Start() error {
	if l.pidFile == "" {
		return nil
	}

	if IsRunning(l.pidFile) {
		return fmt.Errorf("action server is already running (PID file: %s)", l.pidFile)
	}

	if err := os.MkdirAll(filepath.Dir(l.pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}

	if err := os.WriteFile(l.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	l.logger.Info().
		Str("pid_file", l.pidFile).
		Int("pid", os.Getpid()).
		Msg("Lifecycle manager started")

	return nil
}

// Stop removes the PID file
func (l *LifecycleManager) Stop() error {
	if l.pidFile == "" {
		return nil
	}

	if err := os.Remove(l.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	l.logger.Info().Msg("Lifecycle manager stopped")
	return nil
}

// ReadPID returns the process id stored in pidFile.
func ReadPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}

	return pid, nil
}

// IsRunning reports whether the process named in pidFile is alive.
func IsRunning(pidFile string) bool {
	pid, err := ReadPID(pidFile)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so probe with signal 0
	return process.Signal(syscall.Signal(0)) == nil
}
