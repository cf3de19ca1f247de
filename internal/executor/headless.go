package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/promptcron/internal/model"
)

// watchdogSlack is added on top of timeout and grace before the watchdog
// resolves a run that the process wait has not resolved
const watchdogSlack = 2 * time.Second

// HeadlessRunner runs the configured command as a child process with the
// prompt as its final argument. No shell is involved.
type HeadlessRunner struct {
	logger    *zap.Logger
	command   string
	args      []string
	timeout   time.Duration
	killGrace time.Duration
}

// NewHeadlessRunner creates a new headless runner
func NewHeadlessRunner(logger *zap.Logger, command string, args []string, timeout, killGrace time.Duration) *HeadlessRunner {
	return &HeadlessRunner{
		logger:    logger.Named("headless"),
		command:   command,
		args:      args,
		timeout:   timeout,
		killGrace: killGrace,
	}
}

// Argv returns the command and arguments used for a prompt
func (r *HeadlessRunner) Argv(prompt string) []string {
	argv := make([]string, 0, len(r.args)+2)
	argv = append(argv, r.command)
	argv = append(argv, r.args...)
	return append(argv, prompt)
}

// completion resolves a run exactly once; later resolutions are dropped
type completion struct {
	once   sync.Once
	result chan model.DispatchResult
}

func newCompletion() *completion {
	return &completion{result: make(chan model.DispatchResult, 1)}
}

func (c *completion) resolve(r model.DispatchResult) bool {
	resolved := false
	c.once.Do(func() {
		c.result <- r
		resolved = true
	})
	return resolved
}

// Run executes the prompt and returns a normalized result. Whichever of spawn
// failure, process exit or the watchdog comes first decides the result.
func (r *HeadlessRunner) Run(ctx context.Context, prompt, workingDir string) model.DispatchResult {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	argv := r.Argv(prompt)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	// The child leads its own process group so signals reach its children too.
	// On timeout ask politely first; WaitDelay escalates to SIGKILL.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = r.killGrace

	var stdout, stderr syncBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	done := newCompletion()
	timedOut := func() model.DispatchResult {
		msg := fmt.Sprintf("timed out after %s", r.timeout)
		if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
			msg += ": " + errOut
		}
		return model.DispatchResult{
			Success:  false,
			Output:   stdout.String(),
			Error:    msg,
			TimedOut: true,
		}
	}

	r.logger.Info("Starting headless run",
		zap.String("command", r.command),
		zap.String("working_directory", workingDir))

	if err := cmd.Start(); err != nil {
		done.resolve(model.DispatchResult{
			Success: false,
			Error:   fmt.Sprintf("failed to start %s: %v", r.command, err),
		})
		return <-done.result
	}

	go func() {
		err := cmd.Wait()
		if runCtx.Err() != nil {
			// Sweep whatever the leader left behind in its group
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		if runCtx.Err() == context.DeadlineExceeded {
			done.resolve(timedOut())
			return
		}
		done.resolve(exitResult(err, stdout.String(), stderr.String()))
	}()

	watchdog := time.NewTimer(r.timeout + r.killGrace + watchdogSlack)
	defer watchdog.Stop()

	select {
	case res := <-done.result:
		return res
	case <-watchdog.C:
		if done.resolve(timedOut()) {
			r.logger.Warn("Headless run did not exit after kill, abandoning it",
				zap.Int("pid", cmd.Process.Pid))
		}
		return <-done.result
	}
}

func exitResult(err error, stdout, stderr string) model.DispatchResult {
	if err == nil {
		code := 0
		return model.DispatchResult{Success: true, Output: stdout, ExitCode: &code}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = fmt.Sprintf("exited with code %d", code)
		}
		return model.DispatchResult{Success: false, Output: stdout, Error: msg, ExitCode: &code}
	}

	return model.DispatchResult{Success: false, Output: stdout, Error: err.Error()}
}
