package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanschultz/rz/internal/app"
	"github.com/evanschultz/rz/internal/domain"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Singleton row keys.
const (
	keySettings = "settings"
	keyGuide    = "guide"
	keyMetrics  = "metrics"
)

// Repository persists the state tree in a single sqlite file.
type Repository struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path, creating parent
// directories as needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a throwaway in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			resistance INTEGER,
			level TEXT NOT NULL DEFAULT 'unspecified',
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			marked INTEGER NOT NULL DEFAULT 0,
			last_marked_on TEXT NOT NULL DEFAULT '',
			touches INTEGER NOT NULL DEFAULT 0,
			scan_count INTEGER NOT NULL DEFAULT 0,
			marked_count INTEGER NOT NULL DEFAULT 0,
			reentries INTEGER NOT NULL DEFAULT 0,
			parent_id TEXT NOT NULL DEFAULT '',
			child_ids_json TEXT NOT NULL DEFAULT '[]',
			is_collapsed INTEGER NOT NULL DEFAULT 0,
			time_logs_json TEXT NOT NULL DEFAULT '[]',
			touch_logs_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT,
			archived_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS list_entries (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL,
			actioned_at TEXT,
			FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS daily_stats (
			day TEXT PRIMARY KEY,
			scans INTEGER NOT NULL DEFAULT 0,
			marks INTEGER NOT NULL DEFAULT 0,
			minutes REAL NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS singletons (
			key TEXT PRIMARY KEY,
			value_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_list_entries_status_position ON list_entries(status, position);`,
		`CREATE INDEX IF NOT EXISTS idx_list_entries_task ON list_entries(task_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	// tags_json arrived after the first schema shipped.
	if _, err := r.db.ExecContext(ctx, `ALTER TABLE tasks ADD COLUMN tags_json TEXT NOT NULL DEFAULT '[]'`); err != nil && !isDuplicateColumnErr(err) {
		return fmt.Errorf("migrate sqlite add tasks.tags_json: %w", err)
	}
	return nil
}

// CreateTask inserts one task row.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	tagsJSON, childIDsJSON, timeLogsJSON, touchLogsJSON, err := encodeTaskJSON(t)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks(
			id, text, resistance, level, notes, tags_json, status, marked, last_marked_on,
			touches, scan_count, marked_count, reentries, parent_id, child_ids_json, is_collapsed,
			time_logs_json, touch_logs_json, created_at, updated_at, completed_at, archived_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.Text,
		nullableInt(t.Resistance),
		string(t.Level),
		t.Notes,
		tagsJSON,
		string(t.Status),
		boolToInt(t.Marked),
		t.LastMarkedOn,
		t.Touches,
		t.ScanCount,
		t.MarkedCount,
		t.Reentries,
		t.ParentID,
		childIDsJSON,
		boolToInt(t.IsCollapsed),
		timeLogsJSON,
		touchLogsJSON,
		ts(t.CreatedAt),
		ts(t.UpdatedAt),
		nullableTS(t.CompletedAt),
		nullableTS(t.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTask rewrites one task row.
func (r *Repository) UpdateTask(ctx context.Context, t domain.Task) error {
	tagsJSON, childIDsJSON, timeLogsJSON, touchLogsJSON, err := encodeTaskJSON(t)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET text = ?, resistance = ?, level = ?, notes = ?, tags_json = ?, status = ?, marked = ?,
		    last_marked_on = ?, touches = ?, scan_count = ?, marked_count = ?, reentries = ?,
		    parent_id = ?, child_ids_json = ?, is_collapsed = ?, time_logs_json = ?, touch_logs_json = ?,
		    updated_at = ?, completed_at = ?, archived_at = ?
		WHERE id = ?
	`,
		t.Text,
		nullableInt(t.Resistance),
		string(t.Level),
		t.Notes,
		tagsJSON,
		string(t.Status),
		boolToInt(t.Marked),
		t.LastMarkedOn,
		t.Touches,
		t.ScanCount,
		t.MarkedCount,
		t.Reentries,
		t.ParentID,
		childIDsJSON,
		boolToInt(t.IsCollapsed),
		timeLogsJSON,
		touchLogsJSON,
		ts(t.UpdatedAt),
		nullableTS(t.CompletedAt),
		nullableTS(t.ArchivedAt),
		t.ID,
	)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetTask returns one task or app.ErrNotFound.
func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasks returns every task row.
func (r *Repository) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, taskSelect+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// CreateListEntry inserts one appearance row.
func (r *Repository) CreateListEntry(ctx context.Context, e domain.ListEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO list_entries(id, task_id, position, status, created_at, actioned_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.TaskID, e.Position, string(e.Status), ts(e.CreatedAt), nullableTS(e.ActionedAt))
	if err != nil {
		return fmt.Errorf("insert list entry: %w", err)
	}
	return nil
}

// UpdateListEntry rewrites one appearance row.
func (r *Repository) UpdateListEntry(ctx context.Context, e domain.ListEntry) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE list_entries
		SET task_id = ?, position = ?, status = ?, actioned_at = ?
		WHERE id = ?
	`, e.TaskID, e.Position, string(e.Status), nullableTS(e.ActionedAt), e.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// ListEntries returns every appearance row in list order.
func (r *Repository) ListEntries(ctx context.Context) ([]domain.ListEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, position, status, created_at, actioned_at
		FROM list_entries
		ORDER BY position ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ListEntry{}
	for rows.Next() {
		var (
			e           domain.ListEntry
			status      string
			createdRaw  string
			actionedRaw sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Position, &status, &createdRaw, &actionedRaw); err != nil {
			return nil, err
		}
		e.Status = domain.ListEntryStatus(status)
		e.CreatedAt = parseTS(createdRaw)
		e.ActionedAt = parseNullTS(actionedRaw)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetDay returns one day's aggregate, zeroed for unknown days.
func (r *Repository) GetDay(ctx context.Context, day string) (domain.DayStats, error) {
	var stats domain.DayStats
	err := r.db.QueryRowContext(ctx, `
		SELECT scans, marks, minutes FROM daily_stats WHERE day = ?
	`, day).Scan(&stats.Scans, &stats.Marks, &stats.Minutes)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DayStats{}, nil
	}
	if err != nil {
		return domain.DayStats{}, err
	}
	return stats, nil
}

// UpsertDay writes one day's aggregate.
func (r *Repository) UpsertDay(ctx context.Context, day string, stats domain.DayStats) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_stats(day, scans, marks, minutes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET scans = excluded.scans, marks = excluded.marks, minutes = excluded.minutes
	`, day, stats.Scans, stats.Marks, stats.Minutes)
	if err != nil {
		return fmt.Errorf("upsert daily stats: %w", err)
	}
	return nil
}

// ListDays returns the full ledger.
func (r *Repository) ListDays(ctx context.Context) (domain.DailyLedger, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT day, scans, marks, minutes FROM daily_stats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := domain.DailyLedger{}
	for rows.Next() {
		var (
			day   string
			stats domain.DayStats
		)
		if err := rows.Scan(&day, &stats.Scans, &stats.Marks, &stats.Minutes); err != nil {
			return nil, err
		}
		out[day] = stats
	}
	return out, rows.Err()
}

// GetSettings returns the persisted settings or app.ErrNotFound.
func (r *Repository) GetSettings(ctx context.Context) (domain.Settings, error) {
	var settings domain.Settings
	if err := r.getSingleton(ctx, keySettings, &settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// SaveSettings persists the settings singleton.
func (r *Repository) SaveSettings(ctx context.Context, settings domain.Settings) error {
	return r.putSingleton(ctx, keySettings, settings)
}

// GetGuideProgress returns the guide position or app.ErrNotFound.
func (r *Repository) GetGuideProgress(ctx context.Context) (domain.GuideProgress, error) {
	var progress domain.GuideProgress
	if err := r.getSingleton(ctx, keyGuide, &progress); err != nil {
		return domain.GuideProgress{}, err
	}
	return progress, nil
}

// SaveGuideProgress persists the guide singleton.
func (r *Repository) SaveGuideProgress(ctx context.Context, progress domain.GuideProgress) error {
	return r.putSingleton(ctx, keyGuide, progress)
}

// GetMetrics returns the lifetime counters or app.ErrNotFound.
func (r *Repository) GetMetrics(ctx context.Context) (domain.Metrics, error) {
	var metrics domain.Metrics
	if err := r.getSingleton(ctx, keyMetrics, &metrics); err != nil {
		return domain.Metrics{}, err
	}
	return metrics, nil
}

// SaveMetrics persists the metrics singleton.
func (r *Repository) SaveMetrics(ctx context.Context, metrics domain.Metrics) error {
	return r.putSingleton(ctx, keyMetrics, metrics)
}

// Reset drops every row. Used by snapshot import.
func (r *Repository) Reset(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, table := range []string{"list_entries", "tasks", "daily_stats", "singletons"} {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	err = tx.Commit()
	return err
}

func (r *Repository) getSingleton(ctx context.Context, key string, out any) error {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value_json FROM singletons WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return app.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode singleton %s: %w", key, err)
	}
	return nil
}

func (r *Repository) putSingleton(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode singleton %s: %w", key, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO singletons(key, value_json)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json
	`, key, string(raw))
	if err != nil {
		return fmt.Errorf("upsert singleton %s: %w", key, err)
	}
	return nil
}

const taskSelect = `
	SELECT
		id, text, resistance, level, notes, tags_json, status, marked, last_marked_on,
		touches, scan_count, marked_count, reentries, parent_id, child_ids_json, is_collapsed,
		time_logs_json, touch_logs_json, created_at, updated_at, completed_at, archived_at
	FROM tasks
`

// timeLogRow is the stored shape of a work interval.
type timeLogRow struct {
	ID         string  `json:"id"`
	StartedAt  string  `json:"started_at"`
	EndedAt    *string `json:"ended_at,omitempty"`
	DurationMS int64   `json:"duration_ms"`
	Notes      string  `json:"notes,omitempty"`
}

// touchLogRow is the stored shape of an audit record.
type touchLogRow struct {
	Timestamp   string `json:"timestamp"`
	Context     string `json:"context"`
	Action      string `json:"action,omitempty"`
	TouchNumber int    `json:"touch_number"`
}

func encodeTaskJSON(t domain.Task) (tags, childIDs, timeLogs, touchLogs string, err error) {
	tagsRaw, err := json.Marshal(emptySlice(t.Tags))
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode tags: %w", err)
	}
	childRaw, err := json.Marshal(emptySlice(t.ChildIDs))
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode child ids: %w", err)
	}

	timeRows := make([]timeLogRow, 0, len(t.TimeLogs))
	for _, log := range t.TimeLogs {
		row := timeLogRow{
			ID:         log.ID,
			StartedAt:  ts(log.StartedAt),
			DurationMS: log.Duration.Milliseconds(),
			Notes:      log.Notes,
		}
		if log.EndedAt != nil {
			ended := ts(*log.EndedAt)
			row.EndedAt = &ended
		}
		timeRows = append(timeRows, row)
	}
	timeRaw, err := json.Marshal(timeRows)
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode time logs: %w", err)
	}

	touchRows := make([]touchLogRow, 0, len(t.TouchLogs))
	for _, log := range t.TouchLogs {
		touchRows = append(touchRows, touchLogRow{
			Timestamp:   ts(log.Timestamp),
			Context:     string(log.Context),
			Action:      log.Action,
			TouchNumber: log.TouchNumber,
		})
	}
	touchRaw, err := json.Marshal(touchRows)
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode touch logs: %w", err)
	}
	return string(tagsRaw), string(childRaw), string(timeRaw), string(touchRaw), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t            domain.Task
		resistance   sql.NullInt64
		level        string
		tagsRaw      string
		status       string
		marked       int
		collapsed    int
		childIDsRaw  string
		timeLogsRaw  string
		touchLogsRaw string
		createdRaw   string
		updatedRaw   string
		completedRaw sql.NullString
		archivedRaw  sql.NullString
	)
	if err := s.Scan(
		&t.ID,
		&t.Text,
		&resistance,
		&level,
		&t.Notes,
		&tagsRaw,
		&status,
		&marked,
		&t.LastMarkedOn,
		&t.Touches,
		&t.ScanCount,
		&t.MarkedCount,
		&t.Reentries,
		&t.ParentID,
		&childIDsRaw,
		&collapsed,
		&timeLogsRaw,
		&touchLogsRaw,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
		&archivedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, app.ErrNotFound
		}
		return domain.Task{}, err
	}
	if resistance.Valid {
		value := int(resistance.Int64)
		t.Resistance = &value
	}
	t.Level = domain.Level(level)
	t.Status = domain.Status(status)
	t.Marked = marked != 0
	t.IsCollapsed = collapsed != 0
	t.CreatedAt = parseTS(createdRaw)
	t.UpdatedAt = parseTS(updatedRaw)
	t.CompletedAt = parseNullTS(completedRaw)
	t.ArchivedAt = parseNullTS(archivedRaw)

	if err := json.Unmarshal([]byte(orDefault(tagsRaw, "[]")), &t.Tags); err != nil {
		return domain.Task{}, fmt.Errorf("decode tags_json: %w", err)
	}
	if err := json.Unmarshal([]byte(orDefault(childIDsRaw, "[]")), &t.ChildIDs); err != nil {
		return domain.Task{}, fmt.Errorf("decode child_ids_json: %w", err)
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	if len(t.ChildIDs) == 0 {
		t.ChildIDs = nil
	}

	var timeRows []timeLogRow
	if err := json.Unmarshal([]byte(orDefault(timeLogsRaw, "[]")), &timeRows); err != nil {
		return domain.Task{}, fmt.Errorf("decode time_logs_json: %w", err)
	}
	for _, row := range timeRows {
		log := domain.TimeLog{
			ID:        row.ID,
			StartedAt: parseTS(row.StartedAt),
			Duration:  time.Duration(row.DurationMS) * time.Millisecond,
			Notes:     row.Notes,
		}
		if row.EndedAt != nil {
			ended := parseTS(*row.EndedAt)
			log.EndedAt = &ended
		}
		t.TimeLogs = append(t.TimeLogs, log)
	}

	var touchRows []touchLogRow
	if err := json.Unmarshal([]byte(orDefault(touchLogsRaw, "[]")), &touchRows); err != nil {
		return domain.Task{}, fmt.Errorf("decode touch_logs_json: %w", err)
	}
	for _, row := range touchRows {
		t.TouchLogs = append(t.TouchLogs, domain.TouchLog{
			Timestamp:   parseTS(row.Timestamp),
			Context:     domain.TouchContext(row.Context),
			Action:      row.Action,
			TouchNumber: row.TouchNumber,
		})
	}
	return t, nil
}

func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func emptySlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func orDefault(raw, fallback string) string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	return raw
}

func isDuplicateColumnErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
