package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/promptcron/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(zap.NewNop(), filepath.Join(t.TempDir(), "nested", "promptcron.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newSchedule(name string) *model.Schedule {
	return &model.Schedule{
		Name:           name,
		ScheduleText:   "every day at 9:00",
		CronExpression: "0 9 * * *",
		HumanReadable:  "Every day at 09:00",
		Prompt:         "summarize the inbox",
		Mode:           model.ModeHeadless,
		Enabled:        true,
	}
}

func TestSQLiteStore_ScheduleLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	schedule := newSchedule("morning")
	next := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	schedule.NextRunAt = &next
	require.NoError(t, store.CreateSchedule(ctx, schedule))
	require.NotEmpty(t, schedule.ID)
	require.False(t, schedule.CreatedAt.IsZero())

	t.Run("Get by id and name", func(t *testing.T) {
		byID, err := store.GetSchedule(ctx, schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, "morning", byID.Name)
		assert.Equal(t, model.ModeHeadless, byID.Mode)
		require.NotNil(t, byID.NextRunAt)
		assert.True(t, next.Equal(*byID.NextRunAt))
		assert.Nil(t, byID.LastRunAt)

		byName, err := store.GetScheduleByName(ctx, "morning")
		require.NoError(t, err)
		assert.Equal(t, schedule.ID, byName.ID)
	})

	t.Run("Resolve prefers id then name", func(t *testing.T) {
		resolved, err := store.ResolveSchedule(ctx, schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, schedule.ID, resolved.ID)

		resolved, err = store.ResolveSchedule(ctx, "morning")
		require.NoError(t, err)
		assert.Equal(t, schedule.ID, resolved.ID)

		_, err = store.ResolveSchedule(ctx, "missing")
		assert.ErrorIs(t, err, ErrScheduleNotFound)
	})

	t.Run("Duplicate name", func(t *testing.T) {
		err := store.CreateSchedule(ctx, newSchedule("morning"))
		assert.ErrorIs(t, err, ErrDuplicateName)
	})

	t.Run("Update", func(t *testing.T) {
		schedule.CronExpression = "30 10 * * 1"
		schedule.Mode = model.ModeNotify
		schedule.TmuxTarget = "work:1.0"
		require.NoError(t, store.UpdateSchedule(ctx, schedule))

		updated, err := store.GetSchedule(ctx, schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, "30 10 * * 1", updated.CronExpression)
		assert.Equal(t, model.ModeNotify, updated.Mode)
		assert.Equal(t, "work:1.0", updated.TmuxTarget)

		missing := newSchedule("ghost")
		missing.ID = "does-not-exist"
		assert.ErrorIs(t, store.UpdateSchedule(ctx, missing), ErrScheduleNotFound)
	})

	t.Run("Enabled filter", func(t *testing.T) {
		paused := newSchedule("paused")
		require.NoError(t, store.CreateSchedule(ctx, paused))
		require.NoError(t, store.SetEnabled(ctx, paused.ID, false))

		all, err := store.ListSchedules(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		enabled, err := store.ListEnabledSchedules(ctx)
		require.NoError(t, err)
		require.Len(t, enabled, 1)
		assert.Equal(t, schedule.ID, enabled[0].ID)
	})
}

func TestSQLiteStore_RecordRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	schedule := newSchedule("counter")
	require.NoError(t, store.CreateSchedule(ctx, schedule))

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordRun(ctx, schedule.ID, true, at))
	require.NoError(t, store.RecordRun(ctx, schedule.ID, true, at))
	require.NoError(t, store.RecordRun(ctx, schedule.ID, false, at.Add(time.Hour)))

	got, err := store.GetSchedule(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RunCount)
	assert.Equal(t, 1, got.ErrorCount)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, at.Add(time.Hour).Equal(*got.LastRunAt))

	assert.ErrorIs(t, store.RecordRun(ctx, "missing", true, at), ErrScheduleNotFound)
}

func TestSQLiteStore_Logs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	schedule := newSchedule("logged")
	require.NoError(t, store.CreateSchedule(ctx, schedule))

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var logs []*model.ExecutionLog
	for i := 0; i < 3; i++ {
		log := &model.ExecutionLog{ScheduleID: schedule.ID, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, store.CreateLog(ctx, log))
		assert.Equal(t, model.LogStatusRunning, log.Status)
		logs = append(logs, log)
	}

	t.Run("Complete exactly once", func(t *testing.T) {
		output := "done"
		require.NoError(t, store.CompleteLog(ctx, logs[0].ID, model.LogStatusSuccess, &output, nil, base.Add(time.Minute)))

		got, err := store.GetLog(ctx, logs[0].ID)
		require.NoError(t, err)
		assert.Equal(t, model.LogStatusSuccess, got.Status)
		require.NotNil(t, got.Output)
		assert.Equal(t, "done", *got.Output)
		assert.Nil(t, got.Error)
		require.NotNil(t, got.CompletedAt)

		errText := "late"
		err = store.CompleteLog(ctx, logs[0].ID, model.LogStatusFailed, nil, &errText, base.Add(2*time.Minute))
		assert.ErrorIs(t, err, ErrLogNotRunning)

		err = store.CompleteLog(ctx, "missing", model.LogStatusFailed, nil, &errText, base)
		assert.ErrorIs(t, err, ErrLogNotFound)

		assert.Error(t, store.CompleteLog(ctx, logs[1].ID, model.LogStatusRunning, nil, nil, base))
	})

	t.Run("List newest first with limit", func(t *testing.T) {
		listed, err := store.ListLogs(ctx, schedule.ID, 2)
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, logs[2].ID, listed[0].ID)
		assert.Equal(t, logs[1].ID, listed[1].ID)

		all, err := store.ListLogs(ctx, "", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("Delete before cutoff", func(t *testing.T) {
		deleted, err := store.DeleteLogsBefore(ctx, base.Add(90*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		remaining, err := store.ListLogs(ctx, schedule.ID, 10)
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, logs[2].ID, remaining[0].ID)
	})

	t.Run("Delete schedule cascades", func(t *testing.T) {
		require.NoError(t, store.DeleteSchedule(ctx, schedule.ID))

		remaining, err := store.ListLogs(ctx, schedule.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, remaining)

		assert.ErrorIs(t, store.DeleteSchedule(ctx, schedule.ID), ErrScheduleNotFound)
	})
}

func TestSQLiteStore_Fingerprint(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	empty, err := store.Fingerprint(ctx)
	require.NoError(t, err)

	schedule := newSchedule("fp")
	require.NoError(t, store.CreateSchedule(ctx, schedule))

	created, err := store.Fingerprint(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, empty, created)

	t.Run("Bookkeeping does not change it", func(t *testing.T) {
		next := time.Now().Add(time.Hour)
		require.NoError(t, store.SetNextRun(ctx, schedule.ID, &next))
		require.NoError(t, store.RecordRun(ctx, schedule.ID, true, time.Now()))
		require.NoError(t, store.CreateLog(ctx, &model.ExecutionLog{ScheduleID: schedule.ID}))

		fp, err := store.Fingerprint(ctx)
		require.NoError(t, err)
		assert.Equal(t, created, fp)
	})

	t.Run("Out-of-band edit changes it", func(t *testing.T) {
		_, err := store.db.ExecContext(ctx, "UPDATE schedules SET cron_expression = '*/5 * * * *' WHERE id = ?", schedule.ID)
		require.NoError(t, err)

		fp, err := store.Fingerprint(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, created, fp)
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "promptcron.db")

	store, err := NewSQLiteStore(zap.NewNop(), path)
	require.NoError(t, err)
	require.NoError(t, store.CreateSchedule(ctx, newSchedule("durable")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(zap.NewNop(), path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetScheduleByName(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * *", got.CronExpression)
	assert.Equal(t, path, reopened.Path())
}
