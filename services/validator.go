package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"jobharvest/models"
)

// ValidationError marks a record that cannot be persisted. The run
// counts it and moves on; one bad card never fails a batch.
type ValidationError struct {
	SourceJobID string
	Field       string
	Reason      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %q: %s: %s", e.SourceJobID, e.Field, e.Reason)
}

// locationAliases folds the common district spellings into canonical
// names. Unknown locations pass through unchanged.
var locationAliases = map[string]string{
	"cbd":              "Central Business District",
	"central":          "Central Business District",
	"downtown core":    "Central Business District",
	"raffles place":    "Central Business District",
	"islandwide":       "Islandwide",
	"island-wide":      "Islandwide",
	"work from home":   "Remote",
	"wfh":              "Remote",
	"remote":           "Remote",
	"hybrid":           "Hybrid",
	"east region":      "East",
	"west region":      "West",
	"north region":     "North",
	"north-east":       "North-East",
	"northeast region": "North-East",
}

// Validator normalizes adapter output into persistable listings. now is
// injected so relative posted dates resolve deterministically in tests.
type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate converts one raw record. Title and company are the only hard
// requirements; everything else degrades to empty or nil.
func (v *Validator) Validate(source models.Source, raw *models.RawJob) (*models.JobListing, error) {
	if strings.TrimSpace(raw.SourceJobID) == "" {
		return nil, &ValidationError{Field: "source_job_id", Reason: "missing"}
	}
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return nil, &ValidationError{SourceJobID: raw.SourceJobID, Field: "title", Reason: "missing"}
	}
	company := strings.TrimSpace(raw.CompanyName)
	if company == "" {
		return nil, &ValidationError{SourceJobID: raw.SourceJobID, Field: "company_name", Reason: "missing"}
	}

	now := v.now()
	listing := &models.JobListing{
		Source:         source,
		SourceJobID:    strings.TrimSpace(raw.SourceJobID),
		Title:          title,
		CompanyName:    company,
		SalaryCurrency: raw.SalaryCurrency,
		SalaryType:     raw.SalaryType,
		Location:       CanonicalLocation(raw.Location),
		EmploymentType: strings.TrimSpace(raw.EmploymentType),
		SeniorityLevel: strings.TrimSpace(raw.SeniorityLevel),
		Skills:         raw.Skills,
		Benefits:       raw.Benefits,
		URL:            raw.URL,
		ScrapedAt:      now,
		LastSeenAt:     now,
		IsActive:       true,
		RawData:        raw.Data,
	}

	// API sources pre-parse salary into numbers; HTML sources only give
	// us display text.
	if raw.SalaryMin != nil || raw.SalaryMax != nil {
		listing.SalaryMin = raw.SalaryMin
		listing.SalaryMax = raw.SalaryMax
	} else if raw.SalaryText != "" {
		listing.SalaryMin, listing.SalaryMax = ParseSalary(raw.SalaryText)
	}
	listing.HasSalaryData = listing.SalaryMin != nil || listing.SalaryMax != nil

	if posted := ResolvePostedAt(raw.PostedText, now); !posted.IsZero() {
		listing.PostedAt = &posted
	}

	return listing, nil
}

// CanonicalLocation maps known aliases to their canonical form and
// passes everything else through trimmed.
func CanonicalLocation(loc string) string {
	loc = strings.TrimSpace(loc)
	if canonical, ok := locationAliases[strings.ToLower(loc)]; ok {
		return canonical
	}
	return loc
}

var salaryNumRe = regexp.MustCompile(`\$?\s*([\d,]+(?:\.\d+)?)\s*([kK])?`)

// ParseSalary extracts a numeric range from display text like
// "$5,000 - $7,000", "$6K", or "$70K - $90K (Employer est.)". Text with
// no numbers ("Competitive") yields nil, nil. A single figure becomes a
// degenerate range.
func ParseSalary(text string) (*int, *int) {
	matches := salaryNumRe.FindAllStringSubmatch(text, 2)
	if len(matches) == 0 {
		return nil, nil
	}

	parse := func(m []string) (int, bool) {
		n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return 0, false
		}
		if m[2] != "" {
			n *= 1000
		}
		return int(n), true
	}

	lo, ok := parse(matches[0])
	if !ok {
		return nil, nil
	}
	hi := lo
	if len(matches) > 1 {
		if h, ok := parse(matches[1]); ok {
			hi = h
		}
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return &lo, &hi
}
