package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// sessionDeliveryTimeout bounds each tmux invocation
const sessionDeliveryTimeout = 30 * time.Second

// SessionNotifier delivers a message into a running terminal session
type SessionNotifier interface {
	Deliver(ctx context.Context, target, message string) error
}

// TmuxNotifier sends keystrokes into a tmux pane
type TmuxNotifier struct {
	logger *zap.Logger
	binary string
}

// NewTmuxNotifier creates a new tmux notifier
func NewTmuxNotifier(logger *zap.Logger) *TmuxNotifier {
	return &TmuxNotifier{
		logger: logger.Named("tmux"),
		binary: "tmux",
	}
}

// DefaultTarget returns the well-known pane coordinate for a session
func DefaultTarget(session string) string {
	return fmt.Sprintf("%s:0.0", session)
}

// Deliver types the message literally into the target pane and submits it
func (n *TmuxNotifier) Deliver(ctx context.Context, target, message string) error {
	if err := n.run(ctx, "send-keys", "-t", target, "-l", message); err != nil {
		return err
	}
	if err := n.run(ctx, "send-keys", "-t", target, "Enter"); err != nil {
		return err
	}

	n.logger.Info("Delivered message to tmux", zap.String("target", target))
	return nil
}

func (n *TmuxNotifier) run(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, sessionDeliveryTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, n.binary, args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s %s (exit code %d): %s",
				n.binary, strings.Join(args[:3], " "), exitErr.ExitCode(), strings.TrimSpace(string(output)))
		}
		return fmt.Errorf("%s %s: %w", n.binary, strings.Join(args[:3], " "), err)
	}
	return nil
}
