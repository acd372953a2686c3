package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"jobharvest/models"
)

// SQLiteStore holds the daemon's operational state: run locks, the
// command queue, run mirrors and per-source stats. Domain data lives in
// Postgres; this file must work even when Postgres is unreachable so
// the lock and audit trail survive outages.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_locks (
		job_name TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		acquired_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		remote_id INTEGER,
		trigger_name TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		fetched INTEGER DEFAULT 0,
		validated INTEGER DEFAULT 0,
		deduped INTEGER DEFAULT 0,
		stored INTEGER DEFAULT 0,
		updated INTEGER DEFAULT 0,
		expired INTEGER DEFAULT 0,
		errored INTEGER DEFAULT 0,
		error_summary TEXT,
		duration_sec INTEGER,
		metadata JSON
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		source_id TEXT,
		snapshot_ref TEXT
	);

	CREATE TABLE IF NOT EXISTS source_stats (
		source_id TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		total_fetched INTEGER DEFAULT 0,
		total_stored INTEGER DEFAULT 0,
		total_errored INTEGER DEFAULT 0,
		consecutive_failures INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Run Locks
// =============================================================================

// AcquireRunLock takes the persisted lock for a job. The insert only
// succeeds when no row exists or the current holder is older than
// staleAfter, so a crashed run's lock is taken over rather than held
// forever. Returns false when another live run holds the lock.
func (s *SQLiteStore) AcquireRunLock(jobName, owner string, staleAfter time.Duration) (bool, error) {
	cutoff := time.Now().Add(-staleAfter)
	result, err := s.db.Exec(`
		INSERT INTO run_locks (job_name, owner, acquired_at)
		VALUES (?, ?, ?)
		ON CONFLICT(job_name) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at
		WHERE run_locks.acquired_at < ?`,
		jobName, owner, time.Now(), cutoff)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseRunLock frees the lock, but only for its owner: a takeover
// must not be undone by the stale holder finally exiting.
func (s *SQLiteStore) ReleaseRunLock(jobName, owner string) error {
	_, err := s.db.Exec(`DELETE FROM run_locks WHERE job_name = ? AND owner = ?`, jobName, owner)
	return err
}

func (s *SQLiteStore) GetRunLock(jobName string) (*models.RunLock, error) {
	row := s.db.QueryRow(`SELECT job_name, owner, acquired_at FROM run_locks WHERE job_name = ?`, jobName)

	var lock models.RunLock
	err := row.Scan(&lock.JobName, &lock.Owner, &lock.AcquiredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

// =============================================================================
// Runs (local mirror)
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun, remoteID int64) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO scrape_runs (remote_id, trigger_name, started_at, status)
		VALUES (?, ?, ?, ?)`,
		remoteID, run.Trigger, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(localID int64, run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, fetched = ?, validated = ?,
			deduped = ?, stored = ?, updated = ?, expired = ?, errored = ?,
			error_summary = ?, duration_sec = ?, metadata = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.Fetched, run.Validated,
		run.Deduped, run.Stored, run.Updated, run.Expired, run.Errored,
		run.ErrorSummary, run.DurationSec, string(run.Metadata), localID)
	return err
}

func (s *SQLiteStore) UpdateSourceStats(sourceID string, stats *models.SourceStats, runAt time.Time) error {
	failure := 0
	if stats.Status == "aborted" {
		failure = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO source_stats (source_id, last_run_at, last_run_status,
			total_fetched, total_stored, total_errored, consecutive_failures)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			total_fetched = total_fetched + excluded.total_fetched,
			total_stored = total_stored + excluded.total_stored,
			total_errored = total_errored + excluded.total_errored,
			consecutive_failures = CASE WHEN ? = 1 THEN consecutive_failures + 1 ELSE 0 END`,
		sourceID, runAt, stats.Status, stats.Fetched, stats.Stored, stats.Errored, failure, failure)
	return err
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, sourceID, snapshotRef string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message, source_id, snapshot_ref)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, sourceID, snapshotRef)
	return err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if len(cmd.Params) == 0 {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

func (s *SQLiteStore) EnqueueCommand(cmdType models.CommandType, params *models.CommandParams) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO commands (command, params) VALUES (?, ?)`, cmdType, string(data))
	return err
}
