package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobharvest/config"
	"jobharvest/identity"
	"jobharvest/models"
	"jobharvest/ratelimit"
	"jobharvest/services"
	"jobharvest/storage"
)

// Orchestrator drives a full scrape run: lock acquisition, per-source
// walks, ingest, soft-expiry and the audit record. One orchestrator
// serves both scheduled cadences and manual triggers.
type Orchestrator struct {
	cfg      *config.Config
	ops      *storage.SQLiteStore
	pg       *storage.PostgresStore
	ingest   *services.IngestService
	limiter  *ratelimit.Limiter
	identity *identity.Controller
	adapters map[string]Adapter

	// snapshots is optional; without it structural failures are logged
	// but the offending page is not archived.
	snapshots *storage.SnapshotStore

	mu     sync.Mutex
	paused bool
}

func NewOrchestrator(cfg *config.Config, ops *storage.SQLiteStore, pg *storage.PostgresStore, ingest *services.IngestService, limiter *ratelimit.Limiter, ctrl *identity.Controller) (*Orchestrator, error) {
	adapters := make(map[string]Adapter)
	for id, srcCfg := range cfg.Sources {
		adapter, err := NewAdapter(srcCfg)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", id, err)
		}
		adapters[id] = adapter
		limiter.SetRate(id, srcCfg.RequestsPerMinute, cfg.Scrape.CooldownWindow)
	}

	return &Orchestrator{
		cfg:      cfg,
		ops:      ops,
		pg:       pg,
		ingest:   ingest,
		limiter:  limiter,
		identity: ctrl,
		adapters: adapters,
	}, nil
}

func (o *Orchestrator) SetSnapshotStore(s *storage.SnapshotStore) {
	o.snapshots = s
}

// RunJob executes one named job end to end. onlySource, when non-empty,
// restricts the run to a single source for targeted manual reruns.
func (o *Orchestrator) RunJob(ctx context.Context, jobName, trigger, onlySource string) error {
	if o.IsPaused() {
		log.Printf("harvester is paused, skipping %s", jobName)
		return nil
	}

	job, ok := o.cfg.Jobs[jobName]
	if !ok {
		return fmt.Errorf("unknown job: %s", jobName)
	}

	owner := uuid.New().String()
	acquired, err := o.ops.AcquireRunLock(jobName, owner, o.cfg.Scrape.RunBudget)
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		log.Printf("job %s: %v", jobName, ErrRunLocked)
		return ErrRunLocked
	}
	defer func() {
		if err := o.ops.ReleaseRunLock(jobName, owner); err != nil {
			log.Printf("release run lock %s: %v", jobName, err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Scrape.RunBudget)
	defer cancel()

	run := &models.ScrapeRun{
		Trigger:   trigger,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if err := o.pg.CreateScrapeRun(ctx, run); err != nil {
		return fmt.Errorf("create run record: %w", err)
	}
	localID, err := o.ops.CreateRun(run, run.ID)
	if err != nil {
		log.Printf("Warning: failed to mirror run locally: %v", err)
	}

	o.log(&localID, models.LogLevelInfo, fmt.Sprintf("Starting %s run (job %s)", trigger, jobName), "")

	stats := make(map[string]*models.SourceStats)
	var failures []string

	for _, sourceID := range o.sourceIDs(onlySource) {
		srcStats := &models.SourceStats{}
		stats[sourceID] = srcStats

		if ctx.Err() != nil {
			srcStats.Status = "skipped"
			srcStats.Failure = "run budget exhausted"
			continue
		}

		if err := o.runSource(ctx, localID, run, sourceID, job.Queries, srcStats); err != nil {
			srcStats.Status = "aborted"
			srcStats.Failure = err.Error()
			failures = append(failures, fmt.Sprintf("%s: %v", sourceID, err))
			o.log(&localID, models.LogLevelError, fmt.Sprintf("Source aborted: %v", err), sourceID)
		}
		run.Aggregate(srcStats)
	}

	o.finalize(ctx, localID, run, stats, failures)
	return nil
}

func (o *Orchestrator) sourceIDs(only string) []string {
	if only != "" {
		if _, ok := o.cfg.Sources[only]; ok {
			return []string{only}
		}
		return nil
	}
	ids := make([]string, 0, len(o.cfg.Sources))
	for id := range o.cfg.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// runSource walks every query of the job against one source with a
// fresh identity and fetcher. Soft-expiry only applies when every query
// walked to its natural end: a partial walk must not count untouched
// listings as missing.
func (o *Orchestrator) runSource(ctx context.Context, localID int64, run *models.ScrapeRun, sourceID string, queries []config.QueryConfig, srcStats *models.SourceStats) error {
	srcCfg := o.cfg.Sources[sourceID]
	adapter := o.adapters[sourceID]

	id := o.identity.NextIdentity()

	var fetcher Fetcher
	if adapter.RequiresAuth() {
		bf := NewBrowserFetcher(srcCfg, id)
		if err := bf.Start(ctx); err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
		defer bf.Close()
		if err := bf.Login(ctx); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		fetcher = bf
	} else {
		hf := NewHTTPFetcher(id, o.cfg.Scrape.FetchTimeout)
		defer hf.Close()
		fetcher = hf
	}

	paginator := NewPaginator(adapter, fetcher, o.limiter, o.identity, o.cfg.Scrape, srcCfg)

	exhaustedAll := true
	for _, query := range queries {
		result, err := paginator.Walk(ctx, query)
		srcStats.Pages += result.Pages

		if len(result.Records) > 0 {
			if ingestErr := o.ingest.ProcessBatch(ctx, adapter.Source(), result.Records, result.Warnings, srcStats); ingestErr != nil {
				return ingestErr
			}
		}

		if err != nil {
			if errors.Is(err, ErrStructuralFailure) {
				o.archiveFailure(ctx, localID, sourceID, result.LastPage, err)
			}
			if abortsSource(err) || ctx.Err() != nil {
				return err
			}
			// Retries are spent on one page; keep what the walk
			// produced and move on to the next query.
			o.log(&localID, models.LogLevelWarn,
				fmt.Sprintf("Query %v stopped early: %v", query.Keywords, err), sourceID)
			exhaustedAll = false
			continue
		}
		if !result.Exhausted {
			exhaustedAll = false
		}
	}

	if exhaustedAll {
		expired, err := o.pg.ExpireUnseen(ctx, adapter.Source(), run.StartedAt, o.cfg.Scrape.ExpireMissedRuns)
		if err != nil {
			o.log(&localID, models.LogLevelError, fmt.Sprintf("Expiry pass failed: %v", err), sourceID)
		} else {
			srcStats.Expired = expired
		}
		srcStats.Status = "ok"
	} else {
		srcStats.Status = "partial"
	}

	o.log(&localID, models.LogLevelInfo,
		fmt.Sprintf("Source done: %d pages, %d fetched, %d stored, %d updated, %d expired, %d errored",
			srcStats.Pages, srcStats.Fetched, srcStats.Stored, srcStats.Updated, srcStats.Expired, srcStats.Errored),
		sourceID)
	return nil
}

// abortsSource reports whether a walk error ends the whole source for
// this run. Challenge escalation and structural failures do; ordinary
// fetch errors end only their query's walk.
func abortsSource(err error) bool {
	return errors.Is(err, ErrChallenge) || errors.Is(err, ErrStructuralFailure)
}

// archiveFailure uploads the page that defeated extraction and records
// the reference so the selector break can be diagnosed later.
func (o *Orchestrator) archiveFailure(ctx context.Context, localID int64, sourceID string, page *Page, cause error) {
	if o.snapshots == nil || page == nil {
		o.log(&localID, models.LogLevelError, fmt.Sprintf("Structural failure (no snapshot store): %v", cause), sourceID)
		return
	}
	key, err := o.snapshots.PutSnapshot(ctx, sourceID, page.URL, page.Body)
	if err != nil {
		o.log(&localID, models.LogLevelError, fmt.Sprintf("Structural failure, snapshot upload failed: %v", err), sourceID)
		return
	}
	log.Printf("[error] %s: structural failure, page archived at %s", sourceID, o.snapshots.PublicURL(key))
	o.ops.Log(&localID, models.LogLevelError, fmt.Sprintf("Structural failure: %v", cause), sourceID, key)
}

// classifyRun maps per-source outcomes to a run status. Sources the
// wall-clock budget skipped make the run partial; failed is reserved
// for runs where every attempted source aborted.
func classifyRun(stats map[string]*models.SourceStats, failures []string) models.RunStatus {
	okCount, skipped := 0, 0
	for _, s := range stats {
		switch s.Status {
		case "ok", "partial":
			okCount++
		case "skipped":
			skipped++
		}
	}
	switch {
	case len(stats) == 0 || (okCount == 0 && skipped == 0):
		return models.RunStatusFailed
	case len(failures) > 0 || skipped > 0:
		return models.RunStatusPartial
	default:
		return models.RunStatusCompleted
	}
}

// finalize classifies the run and writes the audit record exactly once.
func (o *Orchestrator) finalize(ctx context.Context, localID int64, run *models.ScrapeRun, stats map[string]*models.SourceStats, failures []string) {
	// The audit write must land even when the run's wall-clock budget
	// expired; detach from the timed context but stay bounded.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	now := time.Now()
	run.FinishedAt = &now
	run.DurationSec = int(now.Sub(run.StartedAt).Seconds())
	run.ErrorSummary = strings.Join(failures, "; ")
	run.Metadata = models.SourceStatsJSON(stats)
	run.Status = classifyRun(stats, failures)

	if err := o.pg.FinalizeScrapeRun(ctx, run); err != nil {
		log.Printf("Warning: failed to finalize run %d: %v", run.ID, err)
	}
	if err := o.ops.UpdateRun(localID, run); err != nil {
		log.Printf("Warning: failed to update local run: %v", err)
	}
	for sourceID, s := range stats {
		if err := o.ops.UpdateSourceStats(sourceID, s, run.StartedAt); err != nil {
			log.Printf("Warning: failed to update stats for %s: %v", sourceID, err)
		}
	}

	o.log(&localID, models.LogLevelInfo,
		fmt.Sprintf("Run %s: %d fetched, %d stored, %d updated, %d expired, %d errored in %ds",
			run.Status, run.Fetched, run.Stored, run.Updated, run.Expired, run.Errored, run.DurationSec), "")
}

func (o *Orchestrator) HandleCommand(cmd *models.Command) error {
	params, err := o.ops.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()

	switch cmd.Command {
	case models.CmdScrapeNow:
		job := params.Job
		if job == "" {
			job = models.JobDailyIncremental
		}
		return o.RunJob(ctx, job, models.JobManual, "")
	case models.CmdScrapeSource:
		job := params.Job
		if job == "" {
			job = models.JobDailyIncremental
		}
		return o.RunJob(ctx, job, models.JobManual, params.Source)
	case models.CmdPause:
		o.setPaused(true)
		log.Println("Harvester paused")
	case models.CmdResume:
		o.setPaused(false)
		log.Println("Harvester resumed")
	}

	return nil
}

func (o *Orchestrator) setPaused(v bool) {
	o.mu.Lock()
	o.paused = v
	o.mu.Unlock()
}

func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// Adapter exposes a source's adapter for the enrichment worker.
func (o *Orchestrator) Adapter(sourceID string) Adapter {
	return o.adapters[sourceID]
}

func (o *Orchestrator) log(runID *int64, level models.LogLevel, message, sourceID string) {
	if sourceID != "" {
		log.Printf("[%s] %s: %s", level, sourceID, message)
	} else {
		log.Printf("[%s] %s", level, message)
	}
	o.ops.Log(runID, level, message, sourceID, "")
}
