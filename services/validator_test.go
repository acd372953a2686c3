package services

import (
	"errors"
	"testing"
	"time"

	"jobharvest/models"
)

func testValidator(now time.Time) *Validator {
	v := NewValidator()
	v.now = func() time.Time { return now }
	return v
}

func TestValidateRequiredFields(t *testing.T) {
	v := testValidator(time.Now())

	_, err := v.Validate(models.SourceMCF, &models.RawJob{SourceJobID: "1", CompanyName: "Co"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}

	_, err = v.Validate(models.SourceMCF, &models.RawJob{SourceJobID: "1", Title: "Engineer"})
	if !errors.As(err, &verr) || verr.Field != "company_name" {
		t.Fatalf("expected company validation error, got %v", err)
	}

	_, err = v.Validate(models.SourceMCF, &models.RawJob{Title: "Engineer", CompanyName: "Co"})
	if !errors.As(err, &verr) || verr.Field != "source_job_id" {
		t.Fatalf("expected source_job_id validation error, got %v", err)
	}
}

func TestValidateSalary(t *testing.T) {
	v := testValidator(time.Now())

	// Pre-parsed numbers win over display text.
	min, max := 7000, 10500
	listing, err := v.Validate(models.SourceMCF, &models.RawJob{
		SourceJobID: "1", Title: "Engineer", CompanyName: "Co",
		SalaryMin: &min, SalaryMax: &max, SalaryText: "$1 - $2",
	})
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if *listing.SalaryMin != 7000 || *listing.SalaryMax != 10500 {
		t.Fatalf("expected pre-parsed salary, got %v / %v", listing.SalaryMin, listing.SalaryMax)
	}
	if !listing.HasSalaryData {
		t.Fatalf("expected has_salary_data")
	}

	// Display text parsed when no numbers came through.
	listing, err = v.Validate(models.SourceGlassdoor, &models.RawJob{
		SourceJobID: "2", Title: "Engineer", CompanyName: "Co",
		SalaryText: "$70K - $90K (Employer est.)",
	})
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if *listing.SalaryMin != 70000 || *listing.SalaryMax != 90000 {
		t.Fatalf("expected 70000/90000, got %v / %v", listing.SalaryMin, listing.SalaryMax)
	}

	// No salary at all: record survives, flag stays false.
	listing, err = v.Validate(models.SourceGlassdoor, &models.RawJob{
		SourceJobID: "3", Title: "Engineer", CompanyName: "Co",
		SalaryText: "Competitive",
	})
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if listing.SalaryMin != nil || listing.SalaryMax != nil || listing.HasSalaryData {
		t.Fatalf("expected no salary data, got %v / %v", listing.SalaryMin, listing.SalaryMax)
	}
}

func TestParseSalary(t *testing.T) {
	cases := []struct {
		text string
		min  int
		max  int
		none bool
	}{
		{text: "$5,000 - $7,000", min: 5000, max: 7000},
		{text: "$70K - $90K (Employer est.)", min: 70000, max: 90000},
		{text: "$6K", min: 6000, max: 6000},
		{text: "8000", min: 8000, max: 8000},
		{text: "$90K - $70K", min: 70000, max: 90000},
		{text: "Competitive", none: true},
		{text: "", none: true},
	}

	for _, c := range cases {
		min, max := ParseSalary(c.text)
		if c.none {
			if min != nil || max != nil {
				t.Fatalf("%q: expected nil range, got %v / %v", c.text, min, max)
			}
			continue
		}
		if min == nil || max == nil {
			t.Fatalf("%q: expected %d-%d, got nil", c.text, c.min, c.max)
		}
		if *min != c.min || *max != c.max {
			t.Fatalf("%q: expected %d-%d, got %d-%d", c.text, c.min, c.max, *min, *max)
		}
	}
}

func TestCanonicalLocation(t *testing.T) {
	if got := CanonicalLocation("CBD"); got != "Central Business District" {
		t.Fatalf("expected canonical CBD mapping, got %q", got)
	}
	if got := CanonicalLocation("  wfh "); got != "Remote" {
		t.Fatalf("expected Remote, got %q", got)
	}
	if got := CanonicalLocation("Jurong East"); got != "Jurong East" {
		t.Fatalf("unknown locations must pass through, got %q", got)
	}
}

func TestValidatePostedAt(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	v := testValidator(now)

	listing, err := v.Validate(models.SourceGlassdoor, &models.RawJob{
		SourceJobID: "1", Title: "Engineer", CompanyName: "Co", PostedText: "3d",
	})
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	want := now.AddDate(0, 0, -3)
	if listing.PostedAt == nil || !listing.PostedAt.Equal(want) {
		t.Fatalf("expected posted_at %v, got %v", want, listing.PostedAt)
	}

	listing, err = v.Validate(models.SourceGlassdoor, &models.RawJob{
		SourceJobID: "2", Title: "Engineer", CompanyName: "Co", PostedText: "???",
	})
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if listing.PostedAt != nil {
		t.Fatalf("unparseable posted text should leave posted_at nil, got %v", listing.PostedAt)
	}
}
