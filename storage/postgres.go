package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobharvest/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// =============================================================================
// Job Listings
// =============================================================================

func (s *PostgresStore) GetListing(ctx context.Context, source models.Source, sourceJobID string) (*models.JobListing, error) {
	query := `
		SELECT id, source, source_job_id, title, company_name, salary_min, salary_max,
			salary_currency, salary_type, has_salary_data, location, employment_type,
			seniority_level, skills, benefits, description, requirements, url,
			posted_at, scraped_at, last_seen_at, missed_runs, is_active, raw_data
		FROM job_listings WHERE source = $1 AND source_job_id = $2`

	var l models.JobListing
	err := s.pool.QueryRow(ctx, query, source, sourceJobID).Scan(
		&l.ID, &l.Source, &l.SourceJobID, &l.Title, &l.CompanyName, &l.SalaryMin, &l.SalaryMax,
		&l.SalaryCurrency, &l.SalaryType, &l.HasSalaryData, &l.Location, &l.EmploymentType,
		&l.SeniorityLevel, &l.Skills, &l.Benefits, &l.Description, &l.Requirements, &l.URL,
		&l.PostedAt, &l.ScrapedAt, &l.LastSeenAt, &l.MissedRuns, &l.IsActive, &l.RawData,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpsertListing inserts or refreshes a listing on its natural key.
// A re-seen listing gets its mutable fields replaced, last_seen_at
// bumped and its expiry counter reset; scraped_at keeps the first-seen
// timestamp.
func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.JobListing) error {
	query := `
		INSERT INTO job_listings (
			source, source_job_id, title, company_name, salary_min, salary_max,
			salary_currency, salary_type, has_salary_data, location, employment_type,
			seniority_level, skills, benefits, description, requirements, url,
			posted_at, scraped_at, last_seen_at, missed_runs, is_active, raw_data
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, 0, TRUE, $21
		)
		ON CONFLICT (source, source_job_id) DO UPDATE SET
			title = EXCLUDED.title,
			company_name = EXCLUDED.company_name,
			salary_min = COALESCE(EXCLUDED.salary_min, job_listings.salary_min),
			salary_max = COALESCE(EXCLUDED.salary_max, job_listings.salary_max),
			salary_currency = COALESCE(NULLIF(EXCLUDED.salary_currency, ''), job_listings.salary_currency),
			salary_type = EXCLUDED.salary_type,
			has_salary_data = job_listings.has_salary_data OR EXCLUDED.has_salary_data,
			location = COALESCE(NULLIF(EXCLUDED.location, ''), job_listings.location),
			employment_type = COALESCE(NULLIF(EXCLUDED.employment_type, ''), job_listings.employment_type),
			seniority_level = COALESCE(NULLIF(EXCLUDED.seniority_level, ''), job_listings.seniority_level),
			skills = COALESCE(EXCLUDED.skills, job_listings.skills),
			benefits = COALESCE(EXCLUDED.benefits, job_listings.benefits),
			description = COALESCE(NULLIF(EXCLUDED.description, ''), job_listings.description),
			requirements = COALESCE(NULLIF(EXCLUDED.requirements, ''), job_listings.requirements),
			url = COALESCE(NULLIF(EXCLUDED.url, ''), job_listings.url),
			posted_at = COALESCE(EXCLUDED.posted_at, job_listings.posted_at),
			last_seen_at = EXCLUDED.last_seen_at,
			missed_runs = 0,
			is_active = TRUE,
			raw_data = EXCLUDED.raw_data
		RETURNING id, scraped_at`

	return s.pool.QueryRow(ctx, query,
		l.Source, l.SourceJobID, l.Title, l.CompanyName, l.SalaryMin, l.SalaryMax,
		l.SalaryCurrency, l.SalaryType, l.HasSalaryData, l.Location, l.EmploymentType,
		l.SeniorityLevel, l.Skills, l.Benefits, l.Description, l.Requirements, l.URL,
		l.PostedAt, l.ScrapedAt, l.LastSeenAt, l.RawData,
	).Scan(&l.ID, &l.ScrapedAt)
}

// ExpireUnseen increments the expiry counter for active listings of a
// source that the run did not touch, then deactivates the ones whose
// counter crossed the threshold. Rows are never deleted. Returns how
// many listings were deactivated.
func (s *PostgresStore) ExpireUnseen(ctx context.Context, source models.Source, runStarted time.Time, missThreshold int) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE job_listings SET missed_runs = missed_runs + 1
		WHERE source = $1 AND is_active = TRUE AND last_seen_at < $2`,
		source, runStarted)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE job_listings SET is_active = FALSE
		WHERE source = $1 AND is_active = TRUE AND missed_runs >= $2`,
		source, missThreshold)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// GetListingsMissingDetail returns active listings that have never had
// a detail page fetched, oldest first, for the enrichment worker.
func (s *PostgresStore) GetListingsMissingDetail(ctx context.Context, source models.Source, limit int) ([]models.JobListing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, source_job_id, title, company_name, url, raw_data
		FROM job_listings
		WHERE source = $1 AND is_active = TRUE AND description = '' AND url <> ''
		ORDER BY scraped_at ASC
		LIMIT $2`, source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.JobListing
	for rows.Next() {
		var l models.JobListing
		if err := rows.Scan(&l.ID, &l.Source, &l.SourceJobID, &l.Title, &l.CompanyName, &l.URL, &l.RawData); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) UpdateListingDetail(ctx context.Context, id int64, d *models.DetailFields) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE job_listings SET
			description = $2,
			requirements = $3,
			skills = CASE WHEN cardinality($4::text[]) > 0 THEN $4 ELSE skills END,
			benefits = CASE WHEN cardinality($5::text[]) > 0 THEN $5 ELSE benefits END
		WHERE id = $1`,
		id, d.Description, d.Requirements, d.Skills, d.Benefits)
	return err
}

// =============================================================================
// Scrape Runs
// =============================================================================

func (s *PostgresStore) CreateScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO scrape_runs (trigger_name, started_at, status)
		VALUES ($1, $2, $3)
		RETURNING id`,
		run.Trigger, run.StartedAt, run.Status,
	).Scan(&run.ID)
}

func (s *PostgresStore) FinalizeScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scrape_runs SET
			finished_at = $2, status = $3, fetched = $4, validated = $5, deduped = $6,
			stored = $7, updated = $8, expired = $9, errored = $10,
			error_summary = $11, duration_sec = $12, metadata = $13
		WHERE id = $1 AND finished_at IS NULL`,
		run.ID, run.FinishedAt, run.Status, run.Fetched, run.Validated, run.Deduped,
		run.Stored, run.Updated, run.Expired, run.Errored,
		run.ErrorSummary, run.DurationSec, run.Metadata)
	return err
}

// =============================================================================
// Company Aggregates
// =============================================================================

// RefreshCompanyAggregates rebuilds the per-company rollup from
// job_listings in one statement. Returns the number of companies.
func (s *PostgresStore) RefreshCompanyAggregates(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE company_aggregates`); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO company_aggregates (
			company_name, active_count, total_count, avg_salary_min, avg_salary_max,
			last_posted_at, rebuilt_at
		)
		SELECT
			company_name,
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*),
			AVG(salary_min) FILTER (WHERE is_active AND has_salary_data),
			AVG(salary_max) FILTER (WHERE is_active AND has_salary_data),
			MAX(posted_at),
			NOW()
		FROM job_listings
		GROUP BY company_name`)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// TopCompanies returns the companies with the most active listings.
func (s *PostgresStore) TopCompanies(ctx context.Context, limit int) ([]models.CompanyAggregate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT company_name, active_count, total_count, avg_salary_min, avg_salary_max,
			last_posted_at, rebuilt_at
		FROM company_aggregates
		ORDER BY active_count DESC, company_name
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CompanyAggregate
	for rows.Next() {
		var a models.CompanyAggregate
		if err := rows.Scan(&a.CompanyName, &a.ActiveCount, &a.TotalCount,
			&a.AvgSalaryMin, &a.AvgSalaryMax, &a.LastPostedAt, &a.RebuiltAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
