package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/promptcron/internal/model"
)

const scheduleColumns = `id, name, description, schedule_text, cron_expression, human_readable,
	prompt, working_directory, mode, tmux_target, enabled, one_shot,
	next_run_at, last_run_at, run_count, error_count, created_at, updated_at`

const logColumns = `id, schedule_id, status, output, error, started_at, completed_at`

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	logger *zap.Logger
	db     *sql.DB
	path   string
	now    func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath
func NewSQLiteStore(logger *zap.Logger, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		logger: logger.Named("storage"),
		db:     db,
		path:   dbPath,
		now:    time.Now,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Path returns the database file location
func (s *SQLiteStore) Path() string {
	return s.path
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			schedule_text TEXT NOT NULL,
			cron_expression TEXT NOT NULL,
			human_readable TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL,
			working_directory TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL DEFAULT 'headless',
			tmux_target TEXT NOT NULL DEFAULT '',
			enabled INTEGER NOT NULL DEFAULT 1,
			one_shot INTEGER NOT NULL DEFAULT 0,
			next_run_at DATETIME,
			last_run_at DATETIME,
			run_count INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS execution_logs (
			id TEXT PRIMARY KEY,
			schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			output TEXT,
			error TEXT,
			started_at DATETIME NOT NULL,
			completed_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_schedules_enabled ON schedules(enabled);
		CREATE INDEX IF NOT EXISTS idx_execution_logs_schedule_id ON execution_logs(schedule_id);
		CREATE INDEX IF NOT EXISTS idx_execution_logs_started_at ON execution_logs(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// CreateSchedule implements Store.CreateSchedule
func (s *SQLiteStore) CreateSchedule(ctx context.Context, schedule *model.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	now := s.now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		schedule.Name,
		schedule.Description,
		schedule.ScheduleText,
		schedule.CronExpression,
		schedule.HumanReadable,
		schedule.Prompt,
		schedule.WorkingDirectory,
		schedule.Mode,
		schedule.TmuxTarget,
		schedule.Enabled,
		schedule.OneShot,
		nullTime(schedule.NextRunAt),
		nullTime(schedule.LastRunAt),
		schedule.RunCount,
		schedule.ErrorCount,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, schedule.Name)
		}
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

// GetSchedule implements Store.GetSchedule
func (s *SQLiteStore) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+scheduleColumns+" FROM schedules WHERE id = ?", id)
	return scanScheduleRow(row, id)
}

// GetScheduleByName implements Store.GetScheduleByName
func (s *SQLiteStore) GetScheduleByName(ctx context.Context, name string) (*model.Schedule, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+scheduleColumns+" FROM schedules WHERE name = ?", name)
	return scanScheduleRow(row, name)
}

// ResolveSchedule implements Store.ResolveSchedule
func (s *SQLiteStore) ResolveSchedule(ctx context.Context, idOrName string) (*model.Schedule, error) {
	schedule, err := s.GetSchedule(ctx, idOrName)
	if err == nil {
		return schedule, nil
	}
	if !errors.Is(err, ErrScheduleNotFound) {
		return nil, err
	}
	return s.GetScheduleByName(ctx, idOrName)
}

// ListSchedules implements Store.ListSchedules
func (s *SQLiteStore) ListSchedules(ctx context.Context) ([]*model.Schedule, error) {
	return s.querySchedules(ctx, "SELECT "+scheduleColumns+" FROM schedules ORDER BY created_at, name")
}

// ListEnabledSchedules implements Store.ListEnabledSchedules
func (s *SQLiteStore) ListEnabledSchedules(ctx context.Context) ([]*model.Schedule, error) {
	return s.querySchedules(ctx, "SELECT "+scheduleColumns+" FROM schedules WHERE enabled = 1 ORDER BY created_at, name")
}

// UpdateSchedule implements Store.UpdateSchedule
func (s *SQLiteStore) UpdateSchedule(ctx context.Context, schedule *model.Schedule) error {
	schedule.UpdatedAt = s.now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET
			name = ?,
			description = ?,
			schedule_text = ?,
			cron_expression = ?,
			human_readable = ?,
			prompt = ?,
			working_directory = ?,
			mode = ?,
			tmux_target = ?,
			enabled = ?,
			one_shot = ?,
			next_run_at = ?,
			updated_at = ?
		WHERE id = ?`,
		schedule.Name,
		schedule.Description,
		schedule.ScheduleText,
		schedule.CronExpression,
		schedule.HumanReadable,
		schedule.Prompt,
		schedule.WorkingDirectory,
		schedule.Mode,
		schedule.TmuxTarget,
		schedule.Enabled,
		schedule.OneShot,
		nullTime(schedule.NextRunAt),
		schedule.UpdatedAt,
		schedule.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, schedule.Name)
		}
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return expectAffected(result, ErrScheduleNotFound, schedule.ID)
}

// DeleteSchedule implements Store.DeleteSchedule
func (s *SQLiteStore) DeleteSchedule(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM execution_logs WHERE schedule_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete execution logs: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if err := expectAffected(result, ErrScheduleNotFound, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordRun implements Store.RecordRun. It leaves updated_at untouched.
func (s *SQLiteStore) RecordRun(ctx context.Context, id string, success bool, at time.Time) error {
	query := "UPDATE schedules SET run_count = run_count + 1, last_run_at = ? WHERE id = ?"
	if !success {
		query = "UPDATE schedules SET error_count = error_count + 1, last_run_at = ? WHERE id = ?"
	}

	result, err := s.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return expectAffected(result, ErrScheduleNotFound, id)
}

// SetNextRun implements Store.SetNextRun. It leaves updated_at untouched.
func (s *SQLiteStore) SetNextRun(ctx context.Context, id string, next *time.Time) error {
	result, err := s.db.ExecContext(ctx, "UPDATE schedules SET next_run_at = ? WHERE id = ?", nullTime(next), id)
	if err != nil {
		return fmt.Errorf("failed to set next run: %w", err)
	}
	return expectAffected(result, ErrScheduleNotFound, id)
}

// SetEnabled implements Store.SetEnabled
func (s *SQLiteStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE schedules SET enabled = ?, updated_at = ? WHERE id = ?",
		enabled, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set enabled: %w", err)
	}
	return expectAffected(result, ErrScheduleNotFound, id)
}

// CreateLog implements Store.CreateLog
func (s *SQLiteStore) CreateLog(ctx context.Context, log *model.ExecutionLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.Status == "" {
		log.Status = model.LogStatusRunning
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = s.now()
	}
	log.StartedAt = log.StartedAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_logs (id, schedule_id, status, started_at)
		VALUES (?, ?, ?, ?)`,
		log.ID,
		log.ScheduleID,
		log.Status,
		log.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution log: %w", err)
	}
	return nil
}

// CompleteLog implements Store.CompleteLog
func (s *SQLiteStore) CompleteLog(ctx context.Context, id string, status model.LogStatus, output, errText *string, at time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("cannot complete execution log with status %q", status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE execution_logs SET
			status = ?,
			output = ?,
			error = ?,
			completed_at = ?
		WHERE id = ? AND status = ?`,
		status,
		nullString(output),
		nullString(errText),
		at.UTC(),
		id,
		model.LogStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to complete execution log: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := s.GetLog(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrLogNotRunning, id)
}

// GetLog implements Store.GetLog
func (s *SQLiteStore) GetLog(ctx context.Context, id string) (*model.ExecutionLog, error) {
	log, err := scanLog(s.db.QueryRowContext(ctx, "SELECT "+logColumns+" FROM execution_logs WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrLogNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan execution log: %w", err)
	}
	return log, nil
}

// ListLogs implements Store.ListLogs. A non-positive limit returns everything.
func (s *SQLiteStore) ListLogs(ctx context.Context, scheduleID string, limit int) ([]*model.ExecutionLog, error) {
	if limit <= 0 {
		limit = -1
	}

	query := "SELECT " + logColumns + " FROM execution_logs"
	args := make([]interface{}, 0, 2)
	if scheduleID != "" {
		query += " WHERE schedule_id = ?"
		args = append(args, scheduleID)
	}
	query += " ORDER BY started_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*model.ExecutionLog, 0)
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return logs, nil
}

// DeleteLogsBefore implements Store.DeleteLogsBefore
func (s *SQLiteStore) DeleteLogsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM execution_logs WHERE started_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete execution logs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old execution logs",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Fingerprint implements Store.Fingerprint. It covers the fields that decide
// what and when a schedule runs, so bookkeeping writes never change it.
func (s *SQLiteStore) Fingerprint(ctx context.Context) (string, error) {
	var count int
	var latest, digest sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(updated_at), GROUP_CONCAT(row_digest, char(30))
		FROM (
			SELECT updated_at,
				id || char(31) || cron_expression || char(31) || enabled || char(31) ||
				mode || char(31) || prompt || char(31) || working_directory || char(31) ||
				tmux_target AS row_digest
			FROM schedules
			ORDER BY id
		)`).Scan(&count, &latest, &digest)
	if err != nil {
		return "", fmt.Errorf("failed to compute fingerprint: %w", err)
	}

	sum := sha256.Sum256([]byte(digest.String))
	return fmt.Sprintf("%d:%s:%x", count, latest.String, sum[:8]), nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) querySchedules(ctx context.Context, query string, args ...interface{}) ([]*model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]*model.Schedule, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return schedules, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanScheduleRow(row scanner, key string) (*model.Schedule, error) {
	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, key)
		}
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}
	return schedule, nil
}

func scanSchedule(row scanner) (*model.Schedule, error) {
	var schedule model.Schedule
	var nextRunAt, lastRunAt sql.NullTime

	err := row.Scan(
		&schedule.ID,
		&schedule.Name,
		&schedule.Description,
		&schedule.ScheduleText,
		&schedule.CronExpression,
		&schedule.HumanReadable,
		&schedule.Prompt,
		&schedule.WorkingDirectory,
		&schedule.Mode,
		&schedule.TmuxTarget,
		&schedule.Enabled,
		&schedule.OneShot,
		&nextRunAt,
		&lastRunAt,
		&schedule.RunCount,
		&schedule.ErrorCount,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if nextRunAt.Valid {
		schedule.NextRunAt = &nextRunAt.Time
	}
	if lastRunAt.Valid {
		schedule.LastRunAt = &lastRunAt.Time
	}
	return &schedule, nil
}

func scanLog(row scanner) (*model.ExecutionLog, error) {
	var log model.ExecutionLog
	var output, errText sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&log.ID,
		&log.ScheduleID,
		&log.Status,
		&output,
		&errText,
		&log.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if output.Valid {
		log.Output = &output.String
	}
	if errText.Valid {
		log.Error = &errText.String
	}
	if completedAt.Valid {
		log.CompletedAt = &completedAt.Time
	}
	return &log, nil
}

func expectAffected(result sql.Result, notFound error, key string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", notFound, key)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
