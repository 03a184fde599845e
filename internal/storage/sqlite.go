package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Jay-Tejada/malunita/internal/task"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for captures, tasks,
// corrections, signals, preferences, focus history, and the job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "malunita.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying connection for tests and migrations tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Captures ---

// SaveCapture is idempotent on id so the pipeline's persistence retry is
// safe to replay.
func (s *Store) SaveCapture(c task.Capture) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO captures (id, user_id, text, input_method, bucket_hint, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Text, string(c.InputMethod), c.BucketHint,
		c.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetCapture(id string) (task.Capture, error) {
	var c task.Capture
	var method, createdAt string
	err := s.db.QueryRow(`
		SELECT id, user_id, text, input_method, bucket_hint, created_at
		FROM captures WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.Text, &method, &c.BucketHint, &createdAt)
	if err == sql.ErrNoRows {
		return task.Capture{}, ErrNotFound
	}
	if err != nil {
		return task.Capture{}, err
	}
	c.InputMethod = task.InputMethod(method)
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return task.Capture{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return c, nil
}

func (s *Store) RecentCaptures(userID string, limit int) ([]task.Capture, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, text, input_method, bucket_hint, created_at
		FROM captures WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []task.Capture
	for rows.Next() {
		var c task.Capture
		var method, createdAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Text, &method, &c.BucketHint, &createdAt); err != nil {
			return nil, err
		}
		c.InputMethod = task.InputMethod(method)
		if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// --- Tasks ---

const taskColumns = `id, capture_id, user_id, title, category, custom_category_id,
	reminder_time, priority, effort, fiesta_ready, big_task, bucket, score, created_at`

// SaveTasks persists all records in one transaction so a failed write never
// leaves a partial pipeline result behind.
func (s *Store) SaveTasks(records []TaskRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range records {
		var reminder any
		if t.ReminderTime != nil {
			reminder = t.ReminderTime.UTC().Format(time.RFC3339)
		}
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.CaptureID, t.UserID, t.Title, t.Category, t.CustomCategoryID,
			reminder, t.Priority, t.Effort, boolToInt(t.FiestaReady), boolToInt(t.BigTask),
			t.Bucket, t.Score, t.CreatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting task %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetTask(id string) (TaskRecord, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return TaskRecord{}, ErrNotFound
	}
	return t, err
}

func (s *Store) TasksByBucket(userID, bucket string) ([]TaskRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE user_id = ? AND bucket = ? ORDER BY score DESC, created_at ASC`, userID, bucket,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *Store) TasksByCapture(captureID string) ([]TaskRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE capture_id = ? ORDER BY created_at ASC, id ASC`, captureID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *Store) RecentTasks(userID string, limit int) ([]TaskRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (TaskRecord, error) {
	var t TaskRecord
	var reminder sql.NullString
	var fiesta, big int
	var createdAt string
	err := row.Scan(&t.ID, &t.CaptureID, &t.UserID, &t.Title, &t.Category, &t.CustomCategoryID,
		&reminder, &t.Priority, &t.Effort, &fiesta, &big, &t.Bucket, &t.Score, &createdAt)
	if err != nil {
		return TaskRecord{}, err
	}
	t.FiestaReady = fiesta != 0
	t.BigTask = big != 0
	if reminder.Valid {
		r, err := time.Parse(time.RFC3339, reminder.String)
		if err != nil {
			return TaskRecord{}, fmt.Errorf("parsing reminder_time: %w", err)
		}
		t.ReminderTime = &r
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return TaskRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]TaskRecord, error) {
	var results []TaskRecord
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Corrections ---

// RecordCorrection increments the per-word/per-category counter used by the
// heuristic matcher's learned overrides.
func (s *Store) RecordCorrection(userID, word, category string) error {
	_, err := s.db.Exec(`
		INSERT INTO corrections (user_id, word, category, count, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(user_id, word, category)
		DO UPDATE SET count = count + 1, updated_at = excluded.updated_at`,
		userID, word, category, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// CorrectionCounts returns, for each given word, the correction counts per
// category. Words with no corrections are absent from the result.
func (s *Store) CorrectionCounts(userID string, words []string) (map[string]map[string]int, error) {
	if len(words) == 0 {
		return map[string]map[string]int{}, nil
	}

	placeholders := strings.Repeat(",?", len(words)-1)
	args := make([]any, 0, len(words)+1)
	args = append(args, userID)
	for _, w := range words {
		args = append(args, w)
	}

	rows, err := s.db.Query(`
		SELECT word, category, count FROM corrections
		WHERE user_id = ? AND word IN (?`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]map[string]int)
	for rows.Next() {
		var word, category string
		var count int
		if err := rows.Scan(&word, &category, &count); err != nil {
			return nil, err
		}
		if result[word] == nil {
			result[word] = make(map[string]int)
		}
		result[word][category] = count
	}
	return result, rows.Err()
}

// --- Signals ---

func (s *Store) AppendSignal(sig task.Signal) error {
	payload := string(sig.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO signals (id, user_id, type, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sig.ID, sig.UserID, string(sig.Type), payload,
		sig.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// SignalsSince returns all of a user's signals created at or after the given
// time, oldest first.
func (s *Store) SignalsSince(userID string, since time.Time) ([]task.Signal, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, type, payload_json, created_at FROM signals
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC, id ASC`,
		userID, since.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []task.Signal
	for rows.Next() {
		var sig task.Signal
		var typ, payload, createdAt string
		if err := rows.Scan(&sig.ID, &sig.UserID, &typ, &payload, &createdAt); err != nil {
			return nil, err
		}
		sig.Type = task.SignalType(typ)
		sig.Payload = json.RawMessage(payload)
		if sig.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, sig)
	}
	return results, rows.Err()
}

// PruneSignals deletes signals older than the given cutoff and returns the
// number removed.
func (s *Store) PruneSignals(userID string, before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM signals WHERE user_id = ? AND created_at < ?`,
		userID, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Preferences ---

// LoadPreferences returns the user's learned preferences, or ErrNotFound if
// aggregation has never produced a record.
func (s *Store) LoadPreferences(userID string) (task.Preferences, error) {
	var prefsJSON, computedAt string
	err := s.db.QueryRow(`SELECT prefs_json, computed_at FROM preferences WHERE user_id = ?`, userID).
		Scan(&prefsJSON, &computedAt)
	if err == sql.ErrNoRows {
		return task.Preferences{}, ErrNotFound
	}
	if err != nil {
		return task.Preferences{}, err
	}

	var prefs task.Preferences
	if err := json.Unmarshal([]byte(prefsJSON), &prefs); err != nil {
		return task.Preferences{}, fmt.Errorf("parsing preferences: %w", err)
	}
	if prefs.ComputedAt, err = time.Parse(time.RFC3339, computedAt); err != nil {
		return task.Preferences{}, fmt.Errorf("parsing computed_at: %w", err)
	}
	return prefs, nil
}

// UpsertPreferences overwrites the user's preferences record wholesale.
// Last writer wins; the aggregator recomputes from the full signal window so
// a lost intermediate write is recovered on the next run.
func (s *Store) UpsertPreferences(userID string, prefs task.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshalling preferences: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO preferences (user_id, prefs_json, computed_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET prefs_json = excluded.prefs_json, computed_at = excluded.computed_at`,
		userID, string(data), prefs.ComputedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// --- Focus history ---

func (s *Store) SaveFocusChoice(fc FocusChoice) error {
	_, err := s.db.Exec(`
		INSERT INTO focus_choices (id, user_id, title, chosen_at) VALUES (?, ?, ?, ?)`,
		fc.ID, fc.UserID, fc.Title, fc.ChosenAt.UTC().Format(time.RFC3339),
	)
	return err
}

// RecentFocusTitles returns the titles of the user's most recent focus
// choices, newest first.
func (s *Store) RecentFocusTitles(userID string, limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT title FROM focus_choices WHERE user_id = ?
		ORDER BY chosen_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}
