package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/t77yq/promptcron/internal/model"
	"github.com/t77yq/promptcron/internal/parser"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("TZ", "")
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "")

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(home))
	t.Cleanup(func() { os.Chdir(wd) })
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Notifications.Enabled)
	assert.Equal(t, "claude", cfg.Execution.Command)
	assert.Equal(t, []string{"-p"}, cfg.Execution.Args)
	assert.Equal(t, 10*time.Minute, cfg.Execution.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Execution.KillGrace)
	assert.Equal(t, 1, cfg.Execution.MaxAttempts)
	assert.Equal(t, "claude", cfg.Tmux.Session)
	assert.Equal(t, 30*time.Second, cfg.Daemon.PollInterval)
	assert.Equal(t, filepath.Join(home, ".promptcron", "promptcron.db"), cfg.Storage.Path)
	assert.Equal(t, filepath.Join(home, ".promptcron", "daemon.pid"), cfg.Daemon.PidFile)

	mode, err := cfg.DefaultMode()
	require.NoError(t, err)
	assert.Equal(t, model.ModeHeadless, mode)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
	assert.Equal(t, parser.LocaleEnglish, cfg.ResolvedLocale())
}

func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)

	dir := filepath.Join(home, ".promptcron")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
timezone: Asia/Tokyo
execution:
  default_mode: notify
  timeout: 2m
tmux:
  session: work
`), 0o644))

	t.Run("File overrides defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)

		loc, err := cfg.Location()
		require.NoError(t, err)
		assert.Equal(t, "Asia/Tokyo", loc.String())
		assert.Equal(t, 2*time.Minute, cfg.Execution.Timeout)
		assert.Equal(t, "work", cfg.Tmux.Session)

		mode, err := cfg.DefaultMode()
		require.NoError(t, err)
		assert.Equal(t, model.ModeNotify, mode)
	})

	t.Run("Environment overrides file", func(t *testing.T) {
		t.Setenv("PROMPTCRON_TIMEZONE", "Europe/Paris")
		t.Setenv("PROMPTCRON_TMUX_SESSION", "ops")
		t.Setenv("PROMPTCRON_LOCALE", "ja")

		cfg, err := Load("")
		require.NoError(t, err)

		loc, err := cfg.Location()
		require.NoError(t, err)
		assert.Equal(t, "Europe/Paris", loc.String())
		assert.Equal(t, "ops", cfg.Tmux.Session)
		assert.Equal(t, parser.LocaleJapanese, cfg.ResolvedLocale())
	})
}

func TestLoad_InheritedTimezone(t *testing.T) {
	isolate(t)
	t.Setenv("TZ", "America/New_York")

	cfg, err := Load("")
	require.NoError(t, err)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("PROMPTCRON_TIMEZONE", "Mars/Olympus_Mons")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoad_InvalidMode(t *testing.T) {
	isolate(t)
	t.Setenv("PROMPTCRON_EXECUTION_DEFAULT_MODE", "carrier")

	_, err := Load("")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home := isolate(t)

	got, err := ExpandHome("~/x/y.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y.db"), got)

	got, err = ExpandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}
