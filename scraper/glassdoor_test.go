package scraper

import (
	"errors"
	"strings"
	"testing"

	"jobharvest/config"
	"jobharvest/models"
)

func glassdoorTestConfig() *config.SourceConfig {
	return &config.SourceConfig{
		ID:       "glassdoor",
		Adapter:  "glassdoor",
		PageSize: 30,
		Currency: "SGD",
		Endpoints: map[string]string{
			"base":   "https://www.glassdoor.example",
			"search": "https://www.glassdoor.example/Job/jobs.htm",
		},
	}
}

func TestGlassdoorExtractListings(t *testing.T) {
	adapter := NewGlassdoorAdapter(glassdoorTestConfig())
	page := &Page{URL: "https://www.glassdoor.example/Job/jobs.htm", Status: 200, Body: loadFixture(t, "glassdoor_page.html")}

	jobs, warnings, err := adapter.ExtractListings(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	first := jobs[0]
	if first.SourceJobID != "1009349" {
		t.Fatalf("unexpected source job id %s", first.SourceJobID)
	}
	if first.Title != "Software Engineer" {
		t.Fatalf("unexpected title %s", first.Title)
	}
	if first.CompanyName != "Initech" {
		t.Fatalf("rating widget should be stripped from employer, got %q", first.CompanyName)
	}
	if first.Location != "CBD" {
		t.Fatalf("unexpected location %s", first.Location)
	}
	if first.SalaryText != "$70K - $90K (Employer est.)" {
		t.Fatalf("unexpected salary text %q", first.SalaryText)
	}
	if first.SalaryType != models.SalaryEstimated {
		t.Fatalf("expected estimated salary type, got %s", first.SalaryType)
	}
	if first.PostedText != "3d" {
		t.Fatalf("unexpected posted text %q", first.PostedText)
	}
	if !strings.HasPrefix(first.URL, "https://www.glassdoor.example/job-listing/") {
		t.Fatalf("expected absolute URL, got %s", first.URL)
	}
	if len(first.Benefits) != 2 || first.Benefits[0] != "Health insurance" {
		t.Fatalf("unexpected benefits %v", first.Benefits)
	}

	// Second card has no salary element: kept, with a warning.
	second := jobs[1]
	if second.SalaryText != "" {
		t.Fatalf("expected empty salary text, got %q", second.SalaryText)
	}
	var salaryWarn bool
	for _, w := range warnings {
		if w.SourceJobID == "1009422" && w.Field == "salary" {
			salaryWarn = true
		}
	}
	if !salaryWarn {
		t.Fatalf("expected a salary warning for second card, got %v", warnings)
	}
}

func TestGlassdoorStructuralFailure(t *testing.T) {
	adapter := NewGlassdoorAdapter(glassdoorTestConfig())

	// Page chrome present but the card selectors match nothing: the
	// layout changed under us.
	page := &Page{Body: loadFixture(t, "glassdoor_redesigned.html")}
	_, _, err := adapter.ExtractListings(page)
	if !errors.Is(err, ErrStructuralFailure) {
		t.Fatalf("expected structural failure on redesigned page, got %v", err)
	}

	// A page with neither chrome nor cards is simply empty.
	empty := &Page{Body: []byte(`<html><body><div data-test="no-results">No jobs found</div></body></html>`)}
	jobs, _, err := adapter.ExtractListings(empty)
	if err != nil {
		t.Fatalf("empty result page should not error: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}
}

func TestGlassdoorHasNextPage(t *testing.T) {
	adapter := NewGlassdoorAdapter(glassdoorTestConfig())

	if !adapter.HasNextPage(&Page{Body: loadFixture(t, "glassdoor_page.html")}, 1) {
		t.Fatalf("expected next page with enabled button")
	}
	if adapter.HasNextPage(&Page{Body: loadFixture(t, "glassdoor_last_page.html")}, 1) {
		t.Fatalf("expected no next page with disabled button")
	}
}

func TestGlassdoorBuildSearchRequest(t *testing.T) {
	adapter := NewGlassdoorAdapter(glassdoorTestConfig())
	req, err := adapter.BuildSearchRequest(config.QueryConfig{Keywords: []string{"data engineer"}, Locations: []string{"Singapore"}}, 2)
	if err != nil {
		t.Fatalf("build search request failed: %v", err)
	}
	if req.Method != "GET" {
		t.Fatalf("expected GET, got %s", req.Method)
	}
	if !strings.Contains(req.URL, "p=2") {
		t.Fatalf("expected page param in URL %s", req.URL)
	}
	if !strings.Contains(req.URL, "sc.keyword=data+engineer") {
		t.Fatalf("expected keyword param in URL %s", req.URL)
	}
}

func TestGlassdoorJobIDFromURL(t *testing.T) {
	id := jobIDFromURL("https://www.glassdoor.example/job-listing/x.htm?jl=1009349&src=feed")
	if id != "1009349" {
		t.Fatalf("expected 1009349, got %q", id)
	}
	if jobIDFromURL("https://www.glassdoor.example/job-listing/x.htm") != "" {
		t.Fatalf("expected empty id when no jl param")
	}
}
