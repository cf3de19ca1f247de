// Package daemon manages the PID and state files through which the
// background scheduler is supervised.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyRunning is returned when a live daemon owns the PID file
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNotRunning is returned when stopping a daemon that is not running
	ErrNotRunning = errors.New("daemon is not running")
)

// State is what the running daemon reports about itself
type State struct {
	PID             int       `json:"pid"`
	StartedAt       time.Time `json:"started_at"`
	ActiveSchedules int       `json:"active_schedules"`
	Fingerprint     string    `json:"fingerprint"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Status answers "is it running" and "how many schedules are active"
type Status struct {
	Running         bool       `json:"running"`
	PID             int        `json:"pid,omitempty"`
	Stale           bool       `json:"stale,omitempty"`
	ActiveSchedules int        `json:"active_schedules"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	MemoryRSS       uint64     `json:"memory_rss,omitempty"`
	CPUPercent      float64    `json:"cpu_percent,omitempty"`
}

// Supervisor reads and writes the daemon's PID and state files
type Supervisor struct {
	logger    *zap.Logger
	pidFile   string
	stateFile string
	now       func() time.Time
}

// NewSupervisor creates a new supervisor for the given files
func NewSupervisor(logger *zap.Logger, pidFile, stateFile string) *Supervisor {
	return &Supervisor{
		logger:    logger.Named("daemon"),
		pidFile:   pidFile,
		stateFile: stateFile,
		now:       time.Now,
	}
}

// Acquire records the current process as the daemon. A stale PID file left
// by a dead process is replaced.
func (s *Supervisor) Acquire(ctx context.Context) error {
	pid, err := s.readPID()
	if err == nil && pid != os.Getpid() {
		alive, err := process.PidExistsWithContext(ctx, int32(pid))
		if err != nil {
			return fmt.Errorf("failed to check pid %d: %w", pid, err)
		}
		if alive {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		s.logger.Warn("Replacing stale PID file", zap.Int("pid", pid))
	}

	if err := writeFileAtomic(s.pidFile, []byte(strconv.Itoa(os.Getpid())+"\n")); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// Release removes the PID and state files if they belong to this process
func (s *Supervisor) Release() error {
	pid, err := s.readPID()
	if err != nil || pid != os.Getpid() {
		return nil
	}

	for _, path := range []string{s.pidFile, s.stateFile} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// WriteState records the daemon's current view of its timers
func (s *Supervisor) WriteState(startedAt time.Time, active int, fingerprint string) error {
	data, err := json.MarshalIndent(State{
		PID:             os.Getpid(),
		StartedAt:       startedAt,
		ActiveSchedules: active,
		Fingerprint:     fingerprint,
		UpdatedAt:       s.now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := writeFileAtomic(s.stateFile, data); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Status inspects the PID file and the process table
func (s *Supervisor) Status(ctx context.Context) (*Status, error) {
	pid, err := s.readPID()
	if err != nil {
		if os.IsNotExist(err) {
			return &Status{Running: false}, nil
		}
		return nil, err
	}

	alive, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to check pid %d: %w", pid, err)
	}
	if !alive {
		return &Status{Running: false, PID: pid, Stale: true}, nil
	}

	status := &Status{Running: true, PID: pid}
	s.collectUsage(ctx, status)

	state, err := s.readState()
	if err != nil {
		s.logger.Debug("Daemon state unavailable", zap.Error(err))
		return status, nil
	}
	if state.PID == pid {
		status.ActiveSchedules = state.ActiveSchedules
		status.StartedAt = &state.StartedAt
		status.UpdatedAt = &state.UpdatedAt
	}
	return status, nil
}

// Stop asks the daemon to shut down and waits until it exits or the timeout
// passes
func (s *Supervisor) Stop(ctx context.Context, timeout time.Duration) error {
	status, err := s.Status(ctx)
	if err != nil {
		return err
	}
	if !status.Running {
		return ErrNotRunning
	}

	proc, err := process.NewProcessWithContext(ctx, int32(status.PID))
	if err != nil {
		return fmt.Errorf("failed to find pid %d: %w", status.PID, err)
	}
	if err := proc.SendSignalWithContext(ctx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal pid %d: %w", status.PID, err)
	}
	s.logger.Info("Sent SIGTERM to daemon", zap.Int("pid", status.PID))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon (pid %d) did not exit within %s", status.PID, timeout)
		case <-ticker.C:
			alive, err := process.PidExistsWithContext(ctx, int32(status.PID))
			if err == nil && !alive {
				return nil
			}
		}
	}
}

// collectUsage fills in the daemon's resident memory and CPU share. Usage is
// best effort; a process that cannot be inspected reports zero.
func (s *Supervisor) collectUsage(ctx context.Context, status *Status) {
	proc, err := process.NewProcessWithContext(ctx, int32(status.PID))
	if err != nil {
		return
	}

	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
		status.MemoryRSS = mem.RSS
	} else {
		s.logger.Debug("Failed to read daemon memory", zap.Error(err))
	}
	if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
		status.CPUPercent = pct
	} else {
		s.logger.Debug("Failed to read daemon CPU usage", zap.Error(err))
	}
}

func (s *Supervisor) readPID() (int, error) {
	data, err := os.ReadFile(s.pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", s.pidFile)
	}
	return pid, nil
}

func (s *Supervisor) readState() (*State, error) {
	data, err := os.ReadFile(s.stateFile)
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &state, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
