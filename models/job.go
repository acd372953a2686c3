package models

import (
	"encoding/json"
	"time"
)

type Source string

const (
	SourceMCF       Source = "mcf"
	SourceGlassdoor Source = "glassdoor"
)

type SalaryType string

const (
	SalaryActual    SalaryType = "actual"
	SalaryEstimated SalaryType = "estimated"
)

// RawJob is what an adapter extracts from one listing card, before
// validation. Fields the page did not expose stay zero/nil; a record is
// only dropped later if title or company is missing.
type RawJob struct {
	SourceJobID    string          `json:"source_job_id"`
	Title          string          `json:"title"`
	CompanyName    string          `json:"company_name"`
	SalaryText     string          `json:"salary_text"`
	SalaryMin      *int            `json:"salary_min"`
	SalaryMax      *int            `json:"salary_max"`
	SalaryCurrency string          `json:"salary_currency"`
	SalaryType     SalaryType      `json:"salary_type"`
	Location       string          `json:"location"`
	EmploymentType string          `json:"employment_type"`
	SeniorityLevel string          `json:"seniority_level"`
	Skills         []string        `json:"skills"`
	Benefits       []string        `json:"benefits"`
	PostedText     string          `json:"posted_text"` // possibly relative ("3 days ago")
	URL            string          `json:"url"`
	Data           json.RawMessage `json:"data"`
}

// FieldWarning is a non-fatal selector miss for one record: the field
// stays null and the warning is logged, but the record survives.
type FieldWarning struct {
	SourceJobID string
	Field       string
	Reason      string
}

// DetailFields holds the long-text fields only available from a
// listing's own detail page.
type DetailFields struct {
	Description  string   `json:"description"`
	Requirements string   `json:"requirements"`
	Skills       []string `json:"skills"`
	Benefits     []string `json:"benefits"`
}

// JobListing is the validated, persisted unit. (source, source_job_id)
// is the natural key; re-ingesting the same listing updates mutable
// fields and last_seen_at, never creates a second row.
type JobListing struct {
	ID             int64           `json:"id" db:"id"`
	Source         Source          `json:"source" db:"source"`
	SourceJobID    string          `json:"source_job_id" db:"source_job_id"`
	Title          string          `json:"title" db:"title"`
	CompanyName    string          `json:"company_name" db:"company_name"`
	SalaryMin      *int            `json:"salary_min" db:"salary_min"`
	SalaryMax      *int            `json:"salary_max" db:"salary_max"`
	SalaryCurrency string          `json:"salary_currency" db:"salary_currency"`
	SalaryType     SalaryType      `json:"salary_type" db:"salary_type"`
	HasSalaryData  bool            `json:"has_salary_data" db:"has_salary_data"`
	Location       string          `json:"location" db:"location"`
	EmploymentType string          `json:"employment_type" db:"employment_type"`
	SeniorityLevel string          `json:"seniority_level" db:"seniority_level"`
	Skills         []string        `json:"skills" db:"skills"`
	Benefits       []string        `json:"benefits" db:"benefits"`
	Description    string          `json:"description" db:"description"`
	Requirements   string          `json:"requirements" db:"requirements"`
	URL            string          `json:"url" db:"url"`
	PostedAt       *time.Time      `json:"posted_at" db:"posted_at"`
	ScrapedAt      time.Time       `json:"scraped_at" db:"scraped_at"`
	LastSeenAt     time.Time       `json:"last_seen_at" db:"last_seen_at"`
	MissedRuns     int             `json:"missed_runs" db:"missed_runs"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	RawData        json.RawMessage `json:"raw_data" db:"raw_data"`
}

// Key returns the natural key used for in-batch deduplication.
func (j *JobListing) Key() string {
	return string(j.Source) + "|" + j.SourceJobID
}

// CompanyAggregate is derived from job_listings by a periodic rebuild,
// never written by the scrape pipeline directly.
type CompanyAggregate struct {
	CompanyName  string     `json:"company_name" db:"company_name"`
	ActiveCount  int        `json:"active_count" db:"active_count"`
	TotalCount   int        `json:"total_count" db:"total_count"`
	AvgSalaryMin *float64   `json:"avg_salary_min" db:"avg_salary_min"`
	AvgSalaryMax *float64   `json:"avg_salary_max" db:"avg_salary_max"`
	LastPostedAt *time.Time `json:"last_posted_at" db:"last_posted_at"`
	RebuiltAt    time.Time  `json:"rebuilt_at" db:"rebuilt_at"`
}
