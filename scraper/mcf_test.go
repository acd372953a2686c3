package scraper

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"jobharvest/config"
	"jobharvest/models"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func mcfTestConfig() *config.SourceConfig {
	return &config.SourceConfig{
		ID:       "mcf",
		Adapter:  "mcf",
		PageSize: 20,
		Currency: "SGD",
		Endpoints: map[string]string{
			"search": "https://api.example.gov.sg/v2/search",
			"detail": "https://api.example.gov.sg/v2/jobs/{uuid}",
		},
	}
}

func TestMCFExtractListings(t *testing.T) {
	adapter := NewMCFAdapter(mcfTestConfig())
	page := &Page{URL: "https://api.example.gov.sg/v2/search", Status: 200, Body: loadFixture(t, "mcf_page.json")}

	jobs, warnings, err := adapter.ExtractListings(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	first := jobs[0]
	if first.SourceJobID != "a1b2c3d4e5f60718293a4b5c6d7e8f90" {
		t.Fatalf("unexpected source job id %s", first.SourceJobID)
	}
	if first.Title != "Senior Software Engineer" {
		t.Fatalf("unexpected title %s", first.Title)
	}
	if first.CompanyName != "ACME TECHNOLOGIES PTE. LTD." {
		t.Fatalf("unexpected company %s", first.CompanyName)
	}
	if first.SalaryMin == nil || *first.SalaryMin != 7000 {
		t.Fatalf("expected salary min 7000, got %v", first.SalaryMin)
	}
	if first.SalaryMax == nil || *first.SalaryMax != 10500 {
		t.Fatalf("expected salary max 10500, got %v", first.SalaryMax)
	}
	if first.SalaryType != models.SalaryActual {
		t.Fatalf("expected actual salary type, got %s", first.SalaryType)
	}
	if first.Location != "Queenstown" {
		t.Fatalf("unexpected location %s", first.Location)
	}
	if first.EmploymentType != "Full Time" {
		t.Fatalf("unexpected employment type %s", first.EmploymentType)
	}
	if first.SeniorityLevel != "Senior Executive" {
		t.Fatalf("unexpected seniority %s", first.SeniorityLevel)
	}
	if len(first.Skills) != 3 || first.Skills[0] != "Go" {
		t.Fatalf("unexpected skills %v", first.Skills)
	}
	if first.PostedText != "2026-08-28" {
		t.Fatalf("unexpected posted text %s", first.PostedText)
	}

	// Second record has no salary and no address: it must survive with
	// warnings rather than be dropped.
	second := jobs[1]
	if second.SalaryMin != nil || second.SalaryMax != nil {
		t.Fatalf("expected nil salary, got %v / %v", second.SalaryMin, second.SalaryMax)
	}
	if second.Location != "" {
		t.Fatalf("expected empty location, got %s", second.Location)
	}

	var salaryWarn, locationWarn bool
	for _, w := range warnings {
		if w.SourceJobID == second.SourceJobID && w.Field == "salary" {
			salaryWarn = true
		}
		if w.SourceJobID == second.SourceJobID && w.Field == "location" {
			locationWarn = true
		}
	}
	if !salaryWarn || !locationWarn {
		t.Fatalf("expected salary and location warnings, got %v", warnings)
	}
}

func TestMCFStructuralFailure(t *testing.T) {
	adapter := NewMCFAdapter(mcfTestConfig())

	page := &Page{Body: loadFixture(t, "mcf_empty_with_total.json")}
	_, _, err := adapter.ExtractListings(page)
	if !errors.Is(err, ErrStructuralFailure) {
		t.Fatalf("expected structural failure for empty results with total > 0, got %v", err)
	}

	page = &Page{Body: []byte("<html>maintenance</html>")}
	_, _, err = adapter.ExtractListings(page)
	if !errors.Is(err, ErrStructuralFailure) {
		t.Fatalf("expected structural failure for undecodable body, got %v", err)
	}
}

func TestMCFHasNextPage(t *testing.T) {
	adapter := NewMCFAdapter(mcfTestConfig())

	body, _ := json.Marshal(map[string]interface{}{
		"total":   45,
		"results": make([]map[string]interface{}, 20),
	})
	page := &Page{Body: body}

	if !adapter.HasNextPage(page, 1) {
		t.Fatalf("expected next page after page 1 of 45 results")
	}
	if !adapter.HasNextPage(page, 2) {
		t.Fatalf("expected next page after page 2 of 45 results")
	}
	if adapter.HasNextPage(page, 3) {
		t.Fatalf("expected no next page after page 3 of 45 results")
	}

	short, _ := json.Marshal(map[string]interface{}{
		"total":   45,
		"results": make([]map[string]interface{}, 5),
	})
	if adapter.HasNextPage(&Page{Body: short}, 1) {
		t.Fatalf("short page should end pagination regardless of total")
	}
}

func TestMCFBuildRequests(t *testing.T) {
	adapter := NewMCFAdapter(mcfTestConfig())

	req, err := adapter.BuildSearchRequest(config.QueryConfig{Keywords: []string{"software", "engineer"}, Locations: []string{"Singapore"}}, 1)
	if err != nil {
		t.Fatalf("build search request failed: %v", err)
	}
	if req.Method != "POST" {
		t.Fatalf("expected POST, got %s", req.Method)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("request body not JSON: %v", err)
	}
	if body["search"] != "software engineer" {
		t.Fatalf("unexpected search term %v", body["search"])
	}
	if body["page"] != float64(0) {
		t.Fatalf("page 1 should map to API page 0, got %v", body["page"])
	}

	detail, err := adapter.BuildDetailRequest(&models.RawJob{SourceJobID: "abc123"})
	if err != nil {
		t.Fatalf("build detail request failed: %v", err)
	}
	if detail.URL != "https://api.example.gov.sg/v2/jobs/abc123" {
		t.Fatalf("unexpected detail URL %s", detail.URL)
	}
}

func TestMCFExtractDetail(t *testing.T) {
	adapter := NewMCFAdapter(mcfTestConfig())
	body := []byte(`{
		"description": "<p>Build and run services.</p>",
		"otherRequirements": "5 years of backend experience.",
		"skills": [{"skill": "Go"}, {"skill": ""}]
	}`)

	detail, err := adapter.ExtractDetail(&Page{Body: body})
	if err != nil {
		t.Fatalf("extract detail failed: %v", err)
	}
	if detail.Description != "<p>Build and run services.</p>" {
		t.Fatalf("unexpected description %q", detail.Description)
	}
	if detail.Requirements != "5 years of backend experience." {
		t.Fatalf("unexpected requirements %q", detail.Requirements)
	}
	if len(detail.Skills) != 1 || detail.Skills[0] != "Go" {
		t.Fatalf("unexpected skills %v", detail.Skills)
	}
}
