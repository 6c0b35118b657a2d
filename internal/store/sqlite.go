package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gwlsn/trimsilence/internal/ffmpeg"
	"github.com/gwlsn/trimsilence/internal/jobs"
	"github.com/gwlsn/trimsilence/internal/progress"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// InterruptedError is recorded on jobs found mid-run at startup.
const InterruptedError = "interrupted: process exited before the job finished"

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	input_path TEXT NOT NULL,
	output_path TEXT NOT NULL,
	temp_dir TEXT,
	quality TEXT NOT NULL,
	normalize_audio INTEGER NOT NULL DEFAULT 0,
	threshold_db REAL NOT NULL,
	min_silence_duration REAL NOT NULL,
	padding REAL NOT NULL,
	encoder TEXT NOT NULL,
	is_hardware INTEGER NOT NULL DEFAULT 0,
	threads INTEGER,
	state TEXT NOT NULL,
	phase TEXT DEFAULT '',
	progress REAL NOT NULL DEFAULT 0,
	eta TEXT,
	error TEXT,
	input_duration REAL NOT NULL DEFAULT 0,
	output_duration REAL NOT NULL DEFAULT 0,
	silence_count INTEGER NOT NULL DEFAULT 0,
	segment_count INTEGER NOT NULL DEFAULT 0,
	input_size INTEGER NOT NULL DEFAULT 0,
	output_size INTEGER,
	created_at TEXT NOT NULL,
	started_at TEXT,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

const jobColumns = `id, input_path, output_path, temp_dir, quality, normalize_audio,
	threshold_db, min_silence_duration, padding, encoder, is_hardware, threads,
	state, phase, progress, eta, error, input_duration, output_duration,
	silence_count, segment_count, input_size, output_size,
	created_at, started_at, completed_at`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex // Protects concurrent access
	path string
}

// NewSQLiteStore creates a new SQLite-backed store.
// The database file is created if it doesn't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL lets the web UI read history while a job writes progress
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("insert schema version: %w", err)
		}
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	case version > schemaVersion:
		db.Close()
		return nil, fmt.Errorf("database schema v%d is newer than supported v%d", version, schemaVersion)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// SaveJob persists a job using INSERT OR REPLACE.
func (s *SQLiteStore) SaveJob(job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.InputPath, job.OutputPath, nullString(job.TempDir),
		string(job.Quality), boolToInt(job.NormalizeAudio),
		job.ThresholdDB, job.MinSilenceDuration, job.Padding,
		job.Encoder, boolToInt(job.IsHardware), nullInt(job.Threads),
		string(job.State), string(job.Phase), job.Progress, nullString(job.ETA), nullString(job.Error),
		job.InputDuration, job.OutputDuration, job.SilenceCount, job.SegmentCount,
		job.InputSize, nullInt64(job.OutputSize),
		formatTime(job.CreatedAt), formatTimePtr(job.StartedAt), formatTimePtr(job.CompletedAt),
	)
	return err
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(id string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// ListJobs returns jobs newest first.
func (s *SQLiteStore) ListJobs(limit int) ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.Query(`
		SELECT `+jobColumns+`
		FROM jobs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobList []*jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobList = append(jobList, job)
	}

	return jobList, rows.Err()
}

// DeleteJob removes a job by ID.
func (s *SQLiteStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM jobs WHERE id = ?", id)
	return err
}

// MarkInterrupted fails every non-terminal job.
func (s *SQLiteStore) MarkInterrupted() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE jobs
		SET state = ?, error = ?, eta = NULL, completed_at = ?
		WHERE state NOT IN (?, ?, ?)
	`, string(jobs.StateFailed), InterruptedError, formatTime(time.Now()),
		string(jobs.StateDone), string(jobs.StateFailed), string(jobs.StateCancelled))
	if err != nil {
		return 0, err
	}

	count, err := result.RowsAffected()
	return int(count), err
}

// Stats returns history totals.
func (s *SQLiteStore) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	var removed sql.NullFloat64
	row := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
			SUM(CASE WHEN state = ? AND output_duration < input_duration
				THEN input_duration - output_duration ELSE 0 END)
		FROM jobs
	`, string(jobs.StateDone), string(jobs.StateFailed), string(jobs.StateCancelled), string(jobs.StateDone))

	if err := row.Scan(&stats.Total, &stats.Done, &stats.Failed, &stats.Cancelled, &removed); err != nil {
		return stats, err
	}
	stats.RemovedSeconds = removed.Float64
	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Helper functions for scanning rows

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var job jobs.Job
	var tempDir, phase, eta, errStr sql.NullString
	var threads, outputSize sql.NullInt64
	var normalize, isHardware int
	var quality, state string
	var createdAt, startedAt, completedAt sql.NullString

	err := row.Scan(
		&job.ID, &job.InputPath, &job.OutputPath, &tempDir, &quality, &normalize,
		&job.ThresholdDB, &job.MinSilenceDuration, &job.Padding,
		&job.Encoder, &isHardware, &threads,
		&state, &phase, &job.Progress, &eta, &errStr,
		&job.InputDuration, &job.OutputDuration, &job.SilenceCount, &job.SegmentCount,
		&job.InputSize, &outputSize,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.TempDir = tempDir.String
	job.Quality = ffmpeg.Quality(quality)
	job.NormalizeAudio = normalize != 0
	job.IsHardware = isHardware != 0
	job.Threads = int(threads.Int64)
	job.State = jobs.State(state)
	job.Phase = progress.Phase(phase.String)
	job.ETA = eta.String
	job.Error = errStr.String
	job.OutputSize = outputSize.Int64
	job.CreatedAt = parseTime(createdAt.String)
	job.StartedAt = parseTime(startedAt.String)
	job.CompletedAt = parseTime(completedAt.String)

	return &job, nil
}

// Helper functions for SQL values

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int) interface{} {
	if i == 0 {
		return nil
	}
	return i
}

func nullInt64(i int64) interface{} {
	if i == 0 {
		return nil
	}
	return i
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
