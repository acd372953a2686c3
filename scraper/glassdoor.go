package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobharvest/config"
	"jobharvest/identity"
	"jobharvest/models"
)

// GlassdoorAdapter scrapes a Glassdoor-style HTML listing site. The
// source requires an authenticated browser session before extraction,
// publishes estimated salary bands, and gets the strict delay profile
// and a lower default page limit for its tighter defenses.
type GlassdoorAdapter struct {
	cfg *config.SourceConfig
}

func NewGlassdoorAdapter(cfg *config.SourceConfig) *GlassdoorAdapter {
	return &GlassdoorAdapter{cfg: cfg}
}

func (a *GlassdoorAdapter) ID() string                    { return a.cfg.ID }
func (a *GlassdoorAdapter) Source() models.Source         { return models.SourceGlassdoor }
func (a *GlassdoorAdapter) RequiresAuth() bool            { return true }
func (a *GlassdoorAdapter) DelayKind() identity.DelayKind { return identity.DelayStrict }

func (a *GlassdoorAdapter) BuildSearchRequest(q config.QueryConfig, page int) (*Request, error) {
	endpoint := a.cfg.Endpoints["search"]
	if endpoint == "" {
		return nil, fmt.Errorf("source %s: no search endpoint configured", a.cfg.ID)
	}

	params := url.Values{}
	params.Set("sc.keyword", strings.Join(q.Keywords, " "))
	if len(q.Locations) > 0 {
		params.Set("locKeyword", q.Locations[0])
	}
	if page > 1 {
		params.Set("p", fmt.Sprintf("%d", page))
	}

	return &Request{
		Method: http.MethodGet,
		URL:    endpoint + "?" + params.Encode(),
	}, nil
}

// ExtractListings walks the job cards in the rendered document. Selector
// misses on optional fields degrade to warnings; a document with page
// chrome but zero recognizable cards is a structural failure.
func (a *GlassdoorAdapter) ExtractListings(page *Page) ([]models.RawJob, []models.FieldWarning, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	var jobs []models.RawJob
	var warnings []models.FieldWarning

	doc.Find("li[data-test='jobListing']").Each(func(i int, s *goquery.Selection) {
		jobID, _ := s.Attr("data-jobid")
		if jobID == "" {
			jobID, _ = s.Attr("data-id")
		}

		job := models.RawJob{
			SourceJobID:    jobID,
			Title:          strings.TrimSpace(s.Find("[data-test='job-title']").Text()),
			CompanyName:    cleanCompanyName(s.Find("[data-test='employer-name']").Text()),
			Location:       strings.TrimSpace(s.Find("[data-test='emp-location']").Text()),
			SalaryText:     strings.TrimSpace(s.Find("[data-test='detailSalary']").Text()),
			SalaryCurrency: a.cfg.Currency,
			SalaryType:     models.SalaryEstimated,
			PostedText:     strings.TrimSpace(s.Find("[data-test='job-age']").Text()),
		}

		if href, ok := s.Find("a[data-test='job-link']").Attr("href"); ok {
			job.URL = absoluteURL(a.cfg.Endpoints["base"], href)
		}
		if job.SourceJobID == "" && job.URL != "" {
			// Fall back to the listing id embedded in the URL.
			job.SourceJobID = jobIDFromURL(job.URL)
		}
		if job.SalaryText == "" {
			warnings = append(warnings, models.FieldWarning{
				SourceJobID: job.SourceJobID, Field: "salary", Reason: "no salary element",
			})
		}
		if job.Location == "" {
			warnings = append(warnings, models.FieldWarning{
				SourceJobID: job.SourceJobID, Field: "location", Reason: "no location element",
			})
		}

		s.Find("[data-test='job-benefit']").Each(func(_ int, b *goquery.Selection) {
			if text := strings.TrimSpace(b.Text()); text != "" {
				job.Benefits = append(job.Benefits, text)
			}
		})

		data, _ := json.Marshal(map[string]string{
			"job_id":   job.SourceJobID,
			"title":    job.Title,
			"employer": job.CompanyName,
			"url":      job.URL,
		})
		job.Data = data
		jobs = append(jobs, job)
	})

	if len(jobs) == 0 && looksLikeListingPage(doc) {
		return nil, nil, ErrStructuralFailure
	}

	return jobs, warnings, nil
}

// looksLikeListingPage distinguishes a changed layout from a genuinely
// empty result set: if the page still carries search chrome but no
// cards matched, the selectors are stale.
func looksLikeListingPage(doc *goquery.Document) bool {
	if doc.Find("[data-test='no-results']").Length() > 0 {
		return false
	}
	return doc.Find("#JobResults, [data-test='jlGrid'], [data-test='search-results']").Length() > 0
}

func (a *GlassdoorAdapter) HasNextPage(page *Page, pageNum int) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return false
	}
	next := doc.Find("button[data-test='pagination-next'], a[data-test='pagination-next']").First()
	if next.Length() == 0 {
		return false
	}
	if _, disabled := next.Attr("disabled"); disabled {
		return false
	}
	if class, _ := next.Attr("class"); strings.Contains(class, "disabled") {
		return false
	}
	return true
}

func (a *GlassdoorAdapter) BuildDetailRequest(raw *models.RawJob) (*Request, error) {
	if raw.URL == "" {
		return nil, fmt.Errorf("source %s: record %q has no detail URL", a.cfg.ID, raw.SourceJobID)
	}
	return &Request{Method: http.MethodGet, URL: raw.URL}, nil
}

func (a *GlassdoorAdapter) ExtractDetail(page *Page) (*models.DetailFields, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	detail := &models.DetailFields{
		Description: strings.TrimSpace(doc.Find("[data-test='jobDescriptionContent']").Text()),
	}

	// Requirements are usually a labelled section inside the description
	// body rather than their own container.
	doc.Find("[data-test='jobDescriptionContent'] h3, [data-test='jobDescriptionContent'] strong").Each(func(_ int, h *goquery.Selection) {
		heading := strings.ToLower(strings.TrimSpace(h.Text()))
		if strings.Contains(heading, "requirement") || strings.Contains(heading, "qualification") {
			if text := strings.TrimSpace(h.Parent().Text()); detail.Requirements == "" && text != "" {
				detail.Requirements = text
			}
		}
	})

	doc.Find("[data-test='skill-tag']").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			detail.Skills = append(detail.Skills, text)
		}
	})

	return detail, nil
}

// cleanCompanyName strips the trailing rating widget text some employer
// cells carry ("Acme Corp 4.1 ★").
func cleanCompanyName(raw string) string {
	name := strings.TrimSpace(raw)
	if idx := strings.IndexRune(name, '★'); idx >= 0 {
		name = strings.TrimSpace(name[:idx])
		name = strings.TrimRight(name, "0123456789. ")
	}
	return strings.TrimSpace(name)
}

func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimSuffix(base, "/") + href
}

func jobIDFromURL(u string) string {
	// .../job-listing/...-JV_IC123_KO0,9.htm?jl=1009349 → 1009349
	if idx := strings.Index(u, "jl="); idx >= 0 {
		id := u[idx+3:]
		if amp := strings.IndexAny(id, "&#"); amp >= 0 {
			id = id[:amp]
		}
		return id
	}
	return ""
}
