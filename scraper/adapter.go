package scraper

import (
	"fmt"

	"jobharvest/config"
	"jobharvest/identity"
	"jobharvest/models"
)

// Adapter translates one source's raw pages into candidate records and
// knows how to build next-page and detail-page requests. Page markup is
// never assumed stable: a missing field is a warning, an entire page
// yielding nothing is a structural failure.
type Adapter interface {
	ID() string
	Source() models.Source
	RequiresAuth() bool
	DelayKind() identity.DelayKind

	BuildSearchRequest(q config.QueryConfig, page int) (*Request, error)
	ExtractListings(page *Page) ([]models.RawJob, []models.FieldWarning, error)
	HasNextPage(page *Page, pageNum int) bool
	BuildDetailRequest(raw *models.RawJob) (*Request, error)
	ExtractDetail(page *Page) (*models.DetailFields, error)
}

func NewAdapter(cfg *config.SourceConfig) (Adapter, error) {
	switch cfg.Adapter {
	case "mcf":
		return NewMCFAdapter(cfg), nil
	case "glassdoor":
		return NewGlassdoorAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown adapter %q for source %s", cfg.Adapter, cfg.ID)
	}
}
