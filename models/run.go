package models

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Trigger names for the two scheduled cadences plus manual invocation.
const (
	JobWeeklyComprehensive = "weekly_comprehensive"
	JobDailyIncremental    = "daily_incremental"
	JobManual              = "manual"
)

// ScrapeRun is the audit record for one orchestration run. It is created
// when the run starts and finalized exactly once when the run ends;
// rows are never touched again after finalization.
type ScrapeRun struct {
	ID           int64           `json:"id" db:"id"`
	Trigger      string          `json:"trigger" db:"trigger"`
	StartedAt    time.Time       `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at" db:"finished_at"`
	Status       RunStatus       `json:"status" db:"status"`
	Fetched      int             `json:"fetched" db:"fetched"`
	Validated    int             `json:"validated" db:"validated"`
	Deduped      int             `json:"deduped" db:"deduped"`
	Stored       int             `json:"stored" db:"stored"`
	Updated      int             `json:"updated" db:"updated"`
	Expired      int             `json:"expired" db:"expired"`
	Errored      int             `json:"errored" db:"errored"`
	ErrorSummary string          `json:"error_summary" db:"error_summary"`
	DurationSec  int             `json:"duration_sec" db:"duration_sec"`
	Metadata     json.RawMessage `json:"metadata" db:"metadata"` // per-source breakdown
}

// SourceStats tracks the pipeline counters for one source within a run.
type SourceStats struct {
	Fetched   int    `json:"fetched"`
	Validated int    `json:"validated"`
	Deduped   int    `json:"deduped"`
	Stored    int    `json:"stored"`
	Updated   int    `json:"updated"`
	Expired   int    `json:"expired"`
	Errored   int    `json:"errored"`
	Pages     int    `json:"pages"`
	Status    string `json:"status"` // ok, partial, aborted, skipped
	Failure   string `json:"failure,omitempty"`
}

// Aggregate folds per-source counters into the run totals.
func (r *ScrapeRun) Aggregate(s *SourceStats) {
	r.Fetched += s.Fetched
	r.Validated += s.Validated
	r.Deduped += s.Deduped
	r.Stored += s.Stored
	r.Updated += s.Updated
	r.Expired += s.Expired
	r.Errored += s.Errored
}

// SourceStatsJSON serializes the per-source breakdown for the run's
// metadata column.
func SourceStatsJSON(stats map[string]*SourceStats) json.RawMessage {
	data, _ := json.Marshal(stats)
	return data
}

// RunLock is the persisted run lock keyed by job name. It lives in the
// operational store so a process restart cannot silently double-run; a
// stale holder is only taken over after the crash-recovery timeout.
type RunLock struct {
	JobName    string    `json:"job_name" db:"job_name"`
	Owner      string    `json:"owner" db:"owner"`
	AcquiredAt time.Time `json:"acquired_at" db:"acquired_at"`
}
