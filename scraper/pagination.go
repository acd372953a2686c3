package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"jobharvest/config"
	"jobharvest/identity"
	"jobharvest/models"
	"jobharvest/ratelimit"
)

// PageResult is what a single query walk produces: the accumulated
// records across pages, extraction warnings, and whether the walk
// reached the natural end of results or stopped early.
type PageResult struct {
	Records   []models.RawJob
	Warnings  []models.FieldWarning
	Pages     int
	Exhausted bool
	LastPage  *Page
}

// Paginator drives one adapter through a query's result pages,
// coordinating the rate limiter, politeness delays and retries. A
// budget of challenge responses is tolerated per walk before the source
// is abandoned for the run.
type Paginator struct {
	adapter  Adapter
	fetcher  Fetcher
	limiter  *ratelimit.Limiter
	identity *identity.Controller
	scrape   config.ScrapeConfig
	source   *config.SourceConfig

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPaginator(adapter Adapter, fetcher Fetcher, limiter *ratelimit.Limiter, ctrl *identity.Controller, scrape config.ScrapeConfig, source *config.SourceConfig) *Paginator {
	return &Paginator{
		adapter:  adapter,
		fetcher:  fetcher,
		limiter:  limiter,
		identity: ctrl,
		scrape:   scrape,
		source:   source,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Walk pages through a single query until the adapter reports no next
// page, the configured page limit is hit, the challenge budget is
// exhausted, or the context expires. Structural failures abort
// immediately so the caller can snapshot the offending page.
func (p *Paginator) Walk(ctx context.Context, query config.QueryConfig) (*PageResult, error) {
	result := &PageResult{}

	pageLimit := p.source.PageLimit
	if query.PageLimit > 0 && query.PageLimit < pageLimit {
		pageLimit = query.PageLimit
	}

	challenges := 0
	for pageNum := 1; pageNum <= pageLimit; pageNum++ {
		req, err := p.adapter.BuildSearchRequest(query, pageNum)
		if err != nil {
			return result, err
		}

		if err := p.limiter.Acquire(ctx, p.source.ID); err != nil {
			return result, err
		}
		if pageNum > 1 {
			if err := p.sleep(ctx, p.identity.PolitenessDelay(p.adapter.DelayKind())); err != nil {
				return result, err
			}
		}

		page, err := p.fetchWithRetry(ctx, req, &challenges)
		if err != nil {
			if errors.Is(err, ErrChallenge) && challenges >= p.scrape.ChallengeThreshold {
				log.Printf("[%s] challenge threshold reached after %d pages, backing off", p.source.ID, result.Pages)
				return result, err
			}
			return result, err
		}

		records, warnings, err := p.adapter.ExtractListings(page)
		if err != nil {
			result.LastPage = page
			if errors.Is(err, ErrStructuralFailure) {
				return result, fmt.Errorf("page %d: %w", pageNum, err)
			}
			return result, fmt.Errorf("extract page %d: %w", pageNum, err)
		}

		result.Records = append(result.Records, records...)
		result.Warnings = append(result.Warnings, warnings...)
		result.Pages++
		result.LastPage = page

		if len(records) == 0 || !p.adapter.HasNextPage(page, pageNum) {
			result.Exhausted = true
			return result, nil
		}
	}

	// Page limit reached with more results available.
	return result, nil
}

// fetchWithRetry retries transient fetch failures with a doubling
// backoff. Challenge responses report into the limiter so subsequent
// acquires slow down; they count against the walk's challenge budget
// rather than the retry budget.
func (p *Paginator) fetchWithRetry(ctx context.Context, req *Request, challenges *int) (*Page, error) {
	backoff := 2 * time.Second
	var lastErr error

	for attempt := 0; attempt <= p.scrape.FetchRetries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
		}

		page, err := p.fetcher.Fetch(ctx, req)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if errors.Is(err, ErrChallenge) {
			*challenges++
			p.limiter.ReportThrottled(p.source.ID)
			log.Printf("[%s] challenge response (%d/%d): %v", p.source.ID, *challenges, p.scrape.ChallengeThreshold, err)
			if *challenges >= p.scrape.ChallengeThreshold {
				return nil, err
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("fetch %s: %w", req.URL, lastErr)
}

// FetchDetail performs a single rate-limited detail fetch for the
// enrichment pass. No retry ladder: missing detail is tolerable and the
// record gets picked up again next cycle.
func (p *Paginator) FetchDetail(ctx context.Context, raw *models.RawJob) (*models.DetailFields, error) {
	req, err := p.adapter.BuildDetailRequest(raw)
	if err != nil {
		return nil, err
	}
	if err := p.limiter.Acquire(ctx, p.source.ID); err != nil {
		return nil, err
	}
	if err := p.sleep(ctx, p.identity.PolitenessDelay(identity.DelayPage)); err != nil {
		return nil, err
	}
	page, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.adapter.ExtractDetail(page)
}
