package scraper

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"jobharvest/config"
	"jobharvest/identity"
	"jobharvest/models"
)

// MCFAdapter consumes an MCF-style public job search API: JSON search
// endpoint, numeric salaries straight from the payload (salary_type
// "actual"), no authentication.
type MCFAdapter struct {
	cfg *config.SourceConfig
}

func NewMCFAdapter(cfg *config.SourceConfig) *MCFAdapter {
	return &MCFAdapter{cfg: cfg}
}

func (a *MCFAdapter) ID() string                    { return a.cfg.ID }
func (a *MCFAdapter) Source() models.Source         { return models.SourceMCF }
func (a *MCFAdapter) RequiresAuth() bool            { return false }
func (a *MCFAdapter) DelayKind() identity.DelayKind { return identity.DelayPaginate }

func (a *MCFAdapter) BuildSearchRequest(q config.QueryConfig, page int) (*Request, error) {
	endpoint := a.cfg.Endpoints["search"]
	if endpoint == "" {
		return nil, fmt.Errorf("source %s: no search endpoint configured", a.cfg.ID)
	}

	reqBody := map[string]interface{}{
		"search":    strings.Join(q.Keywords, " "),
		"locations": q.Locations,
		"limit":     a.cfg.PageSize,
		"page":      page - 1, // API pages are zero-based
		"sortBy":    []string{"new_posting_date"},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")

	return &Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s?limit=%d&page=%d", endpoint, a.cfg.PageSize, page-1),
		Body:   body,
		Header: header,
	}, nil
}

type mcfSearchResponse struct {
	Results []mcfResult `json:"results"`
	Total   int         `json:"total"`
}

type mcfResult struct {
	UUID          string `json:"uuid"`
	Title         string `json:"title"`
	PostedCompany struct {
		Name string `json:"name"`
	} `json:"postedCompany"`
	Salary struct {
		Minimum int `json:"minimum"`
		Maximum int `json:"maximum"`
		Type    struct {
			SalaryType string `json:"salaryType"`
		} `json:"type"`
	} `json:"salary"`
	Address struct {
		Block    string `json:"block"`
		Street   string `json:"street"`
		District string `json:"districtName"`
	} `json:"address"`
	EmploymentTypes []struct {
		EmploymentType string `json:"employmentType"`
	} `json:"employmentTypes"`
	PositionLevels []struct {
		Position string `json:"position"`
	} `json:"positionLevels"`
	Skills []struct {
		Skill string `json:"skill"`
	} `json:"skills"`
	NewPostingDate string `json:"newPostingDate"`
	Metadata       struct {
		JobDetailsURL string `json:"jobDetailsUrl"`
	} `json:"metadata"`
}

// ExtractListings parses one API page. Records missing optional fields
// are kept with nulls; a payload that decodes but carries an empty
// results array against a non-trivial body is a structural failure.
func (a *MCFAdapter) ExtractListings(page *Page) ([]models.RawJob, []models.FieldWarning, error) {
	var resp mcfSearchResponse
	if err := json.Unmarshal(page.Body, &resp); err != nil {
		if len(page.Body) > 0 {
			return nil, nil, fmt.Errorf("%w: %v", ErrStructuralFailure, err)
		}
		return nil, nil, err
	}

	if len(resp.Results) == 0 && resp.Total > 0 {
		return nil, nil, ErrStructuralFailure
	}

	var jobs []models.RawJob
	var warnings []models.FieldWarning
	for i := range resp.Results {
		r := &resp.Results[i]

		job := models.RawJob{
			SourceJobID:    r.UUID,
			Title:          r.Title,
			CompanyName:    r.PostedCompany.Name,
			SalaryCurrency: a.cfg.Currency,
			SalaryType:     models.SalaryActual,
			Location:       r.Address.District,
			PostedText:     r.NewPostingDate,
			URL:            r.Metadata.JobDetailsURL,
		}

		if r.Salary.Minimum > 0 {
			min := r.Salary.Minimum
			job.SalaryMin = &min
		}
		if r.Salary.Maximum > 0 {
			max := r.Salary.Maximum
			job.SalaryMax = &max
		}
		if job.SalaryMin == nil && job.SalaryMax == nil {
			warnings = append(warnings, models.FieldWarning{
				SourceJobID: r.UUID, Field: "salary", Reason: "absent from payload",
			})
		}

		if len(r.EmploymentTypes) > 0 {
			job.EmploymentType = r.EmploymentTypes[0].EmploymentType
		}
		if len(r.PositionLevels) > 0 {
			job.SeniorityLevel = r.PositionLevels[0].Position
		}
		for _, s := range r.Skills {
			if s.Skill != "" {
				job.Skills = append(job.Skills, s.Skill)
			}
		}
		if job.Location == "" {
			job.Location = strings.TrimSpace(r.Address.Block + " " + r.Address.Street)
			if job.Location == "" {
				warnings = append(warnings, models.FieldWarning{
					SourceJobID: r.UUID, Field: "location", Reason: "no address in payload",
				})
			}
		}

		data, _ := json.Marshal(r)
		job.Data = data
		jobs = append(jobs, job)
	}

	return jobs, warnings, nil
}

// HasNextPage is answered by the payload's total count against how many
// records the pages so far could have carried.
func (a *MCFAdapter) HasNextPage(page *Page, pageNum int) bool {
	var resp mcfSearchResponse
	if err := json.Unmarshal(page.Body, &resp); err != nil {
		return false
	}
	if len(resp.Results) < a.cfg.PageSize {
		return false
	}
	return pageNum*a.cfg.PageSize < resp.Total
}

func (a *MCFAdapter) BuildDetailRequest(raw *models.RawJob) (*Request, error) {
	detail := a.cfg.Endpoints["detail"]
	if detail == "" || raw.SourceJobID == "" {
		return nil, fmt.Errorf("source %s: no detail request for %q", a.cfg.ID, raw.SourceJobID)
	}
	header := http.Header{}
	header.Set("Accept", "application/json")
	return &Request{
		Method: http.MethodGet,
		URL:    strings.Replace(detail, "{uuid}", raw.SourceJobID, 1),
		Header: header,
	}, nil
}

func (a *MCFAdapter) ExtractDetail(page *Page) (*models.DetailFields, error) {
	var resp struct {
		Description       string `json:"description"`
		OtherRequirements string `json:"otherRequirements"`
		Skills            []struct {
			Skill string `json:"skill"`
		} `json:"skills"`
	}
	if err := json.Unmarshal(page.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode detail: %w", err)
	}

	detail := &models.DetailFields{
		Description:  strings.TrimSpace(resp.Description),
		Requirements: strings.TrimSpace(resp.OtherRequirements),
	}
	for _, s := range resp.Skills {
		if s.Skill != "" {
			detail.Skills = append(detail.Skills, s.Skill)
		}
	}
	return detail, nil
}
