package notifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingChannel struct {
	sent []*Notification
	err  error
}

func (c *recordingChannel) Send(_ context.Context, n *Notification) error {
	c.sent = append(c.sent, n)
	return c.err
}

func TestNotifier_Notify(t *testing.T) {
	ctx := context.Background()
	note := &Notification{Title: "promptcron", Message: "done", Severity: SeverityInfo}

	t.Run("Fans out to every channel", func(t *testing.T) {
		n := New(zap.NewNop(), true)
		first, second := &recordingChannel{}, &recordingChannel{err: errors.New("unavailable")}
		n.AddChannel("first", first)
		n.AddChannel("second", second)
		n.AddChannel("nop", NopChannel{})

		n.Notify(ctx, note)
		assert.Len(t, first.sent, 1)
		assert.Len(t, second.sent, 1)
	})

	t.Run("Disabled drops notifications", func(t *testing.T) {
		n := New(zap.NewNop(), false)
		ch := &recordingChannel{}
		n.AddChannel("desktop", ch)

		n.Notify(ctx, note)
		assert.Empty(t, ch.sent)
	})
}

func TestDesktopChannel_Args(t *testing.T) {
	note := &Notification{Title: "Run failed", Message: `say "hi"`, Severity: SeverityError}

	assert.Equal(t,
		[]string{"-a", "promptcron", "-u", "critical", "Run failed", `say "hi"`},
		NewDesktopChannel("notify-send").args(note))
	assert.Equal(t,
		[]string{"-e", `display notification "say \"hi\"" with title "Run failed"`},
		NewDesktopChannel("osascript").args(note))
	assert.Equal(t, []string{"Run failed", `say "hi"`}, NewDesktopChannel("my-notifier").args(note))
}

func TestDesktopChannel_Send(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	script := filepath.Join(dir, "notify")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$1|$2\" > "+out+"\n"), 0o755))

	err := NewDesktopChannel(script).Send(context.Background(), &Notification{Title: "t", Message: "m"})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "t|m\n", string(data))

	err = NewDesktopChannel(filepath.Join(dir, "missing")).Send(context.Background(), &Notification{})
	assert.Error(t, err)
}
