package notifier

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity classifies a notification
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Notification is a short message shown to the user
type Notification struct {
	Title    string
	Message  string
	Severity Severity
}

// NotificationChannel represents a channel for sending notifications
type NotificationChannel interface {
	Send(ctx context.Context, n *Notification) error
}

// Notifier fans a notification out to every registered channel. Channel
// failures are logged and never returned.
type Notifier struct {
	logger   *zap.Logger
	enabled  bool
	mu       sync.RWMutex
	channels map[string]NotificationChannel
}

// New creates a new notifier. A disabled notifier drops everything.
func New(logger *zap.Logger, enabled bool) *Notifier {
	return &Notifier{
		logger:   logger.Named("notifier"),
		enabled:  enabled,
		channels: make(map[string]NotificationChannel),
	}
}

// AddChannel registers a channel under a name, replacing any previous one
func (n *Notifier) AddChannel(name string, ch NotificationChannel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels[name] = ch
}

// Notify sends the notification through every channel
func (n *Notifier) Notify(ctx context.Context, note *Notification) {
	if !n.enabled {
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	for name, ch := range n.channels {
		if err := ch.Send(ctx, note); err != nil {
			n.logger.Warn("Failed to send notification",
				zap.String("channel", name),
				zap.String("title", note.Title),
				zap.Error(err))
		}
	}
}

// DesktopChannel shows notifications through the platform notification tool
type DesktopChannel struct {
	command string
	timeout time.Duration
}

// DefaultDesktopCommand returns the notification tool for the current platform
func DefaultDesktopCommand() string {
	if runtime.GOOS == "darwin" {
		return "osascript"
	}
	return "notify-send"
}

// NewDesktopChannel creates a new desktop channel. An empty command selects
// the platform default.
func NewDesktopChannel(command string) *DesktopChannel {
	if command == "" {
		command = DefaultDesktopCommand()
	}
	return &DesktopChannel{command: command, timeout: 10 * time.Second}
}

// Send implements NotificationChannel
func (c *DesktopChannel) Send(ctx context.Context, n *Notification) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, c.command, c.args(n)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to run %s: %w: %s", c.command, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (c *DesktopChannel) args(n *Notification) []string {
	switch c.command {
	case "osascript":
		script := fmt.Sprintf("display notification %s with title %s",
			strconv.Quote(n.Message), strconv.Quote(n.Title))
		return []string{"-e", script}
	case "notify-send":
		urgency := "normal"
		if n.Severity == SeverityError {
			urgency = "critical"
		}
		return []string{"-a", "promptcron", "-u", urgency, n.Title, n.Message}
	default:
		return []string{n.Title, n.Message}
	}
}

// NopChannel discards notifications
type NopChannel struct{}

// Send implements NotificationChannel
func (NopChannel) Send(context.Context, *Notification) error {
	return nil
}
