package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"jobharvest/config"
	"jobharvest/identity"
	"jobharvest/models"
	"jobharvest/ratelimit"
)

// fakeAdapter serves a fixed number of pages with a fixed number of
// records each, without touching the network.
type fakeAdapter struct {
	pages      int
	perPage    int
	extractErr error
}

func (a *fakeAdapter) ID() string                    { return "fake" }
func (a *fakeAdapter) Source() models.Source         { return models.SourceMCF }
func (a *fakeAdapter) RequiresAuth() bool            { return false }
func (a *fakeAdapter) DelayKind() identity.DelayKind { return identity.DelayPaginate }

func (a *fakeAdapter) BuildSearchRequest(q config.QueryConfig, page int) (*Request, error) {
	return &Request{Method: "GET", URL: fmt.Sprintf("https://fake.example/search?p=%d", page)}, nil
}

func (a *fakeAdapter) ExtractListings(page *Page) ([]models.RawJob, []models.FieldWarning, error) {
	if a.extractErr != nil {
		return nil, nil, a.extractErr
	}
	var jobs []models.RawJob
	for i := 0; i < a.perPage; i++ {
		jobs = append(jobs, models.RawJob{
			SourceJobID: fmt.Sprintf("%s-%d", page.URL, i),
			Title:       "Job",
			CompanyName: "Co",
		})
	}
	return jobs, nil, nil
}

func (a *fakeAdapter) HasNextPage(page *Page, pageNum int) bool {
	return pageNum < a.pages
}

func (a *fakeAdapter) BuildDetailRequest(raw *models.RawJob) (*Request, error) {
	return &Request{Method: "GET", URL: raw.URL}, nil
}

func (a *fakeAdapter) ExtractDetail(page *Page) (*models.DetailFields, error) {
	return &models.DetailFields{}, nil
}

type fakeFetcher struct {
	fetches  int
	fetchErr error
	failN    int // first failN fetches fail with fetchErr
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *Request) (*Page, error) {
	f.fetches++
	if f.fetchErr != nil && (f.failN == 0 || f.fetches <= f.failN) {
		return nil, f.fetchErr
	}
	return &Page{URL: req.URL, Status: 200, Body: []byte("ok")}, nil
}

func (f *fakeFetcher) Close() {}

func newTestPaginator(adapter Adapter, fetcher Fetcher) *Paginator {
	limiter := ratelimit.New()
	limiter.SetRate("fake", 60000, time.Minute)

	srcCfg := &config.SourceConfig{ID: "fake", PageLimit: 10, PageSize: 10}
	scrapeCfg := config.ScrapeConfig{
		FetchRetries:       2,
		ChallengeThreshold: 3,
		CooldownWindow:     time.Minute,
	}

	p := NewPaginator(adapter, fetcher, limiter, identity.NewController(nil), scrapeCfg, srcCfg)
	p.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return p
}

func TestPaginatorWalksAllPages(t *testing.T) {
	adapter := &fakeAdapter{pages: 3, perPage: 10}
	fetcher := &fakeFetcher{}
	p := newTestPaginator(adapter, fetcher)

	result, err := p.Walk(context.Background(), config.QueryConfig{Keywords: []string{"go"}})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	if len(result.Records) != 30 {
		t.Fatalf("expected 30 records, got %d", len(result.Records))
	}
	if result.Pages != 3 {
		t.Fatalf("expected 3 pages, got %d", result.Pages)
	}
	if !result.Exhausted {
		t.Fatalf("expected walk to report exhaustion")
	}
	if fetcher.fetches != 3 {
		t.Fatalf("expected 3 fetches, got %d", fetcher.fetches)
	}
}

func TestPaginatorRespectsPageLimit(t *testing.T) {
	adapter := &fakeAdapter{pages: 100, perPage: 5}
	p := newTestPaginator(adapter, &fakeFetcher{})

	result, err := p.Walk(context.Background(), config.QueryConfig{PageLimit: 4})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	if result.Pages != 4 {
		t.Fatalf("expected 4 pages, got %d", result.Pages)
	}
	if result.Exhausted {
		t.Fatalf("a limit-capped walk must not report exhaustion")
	}
}

func TestPaginatorStructuralFailure(t *testing.T) {
	adapter := &fakeAdapter{pages: 3, perPage: 10, extractErr: ErrStructuralFailure}
	p := newTestPaginator(adapter, &fakeFetcher{})

	result, err := p.Walk(context.Background(), config.QueryConfig{})
	if !errors.Is(err, ErrStructuralFailure) {
		t.Fatalf("expected structural failure, got %v", err)
	}
	if result.LastPage == nil {
		t.Fatalf("expected the failing page to be returned for archival")
	}
	if len(result.Records) != 0 {
		t.Fatalf("expected no records, got %d", len(result.Records))
	}
}

func TestPaginatorChallengeThreshold(t *testing.T) {
	fetcher := &fakeFetcher{fetchErr: ErrChallenge}
	p := newTestPaginator(&fakeAdapter{pages: 3, perPage: 10}, fetcher)

	_, err := p.Walk(context.Background(), config.QueryConfig{})
	if !errors.Is(err, ErrChallenge) {
		t.Fatalf("expected challenge error, got %v", err)
	}
	if fetcher.fetches != 3 {
		t.Fatalf("expected walk to stop at the challenge threshold, got %d fetches", fetcher.fetches)
	}
}

func TestPaginatorRetriesTransientFailures(t *testing.T) {
	fetcher := &fakeFetcher{fetchErr: &FetchError{URL: "x", Status: 500}, failN: 2}
	adapter := &fakeAdapter{pages: 1, perPage: 2}
	p := newTestPaginator(adapter, fetcher)

	result, err := p.Walk(context.Background(), config.QueryConfig{})
	if err != nil {
		t.Fatalf("walk should survive transient failures, got %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if fetcher.fetches != 3 {
		t.Fatalf("expected 2 failures then success, got %d fetches", fetcher.fetches)
	}
}

func TestPaginatorExhaustsRetries(t *testing.T) {
	fetcher := &fakeFetcher{fetchErr: &FetchError{URL: "x", Status: 500}}
	p := newTestPaginator(&fakeAdapter{pages: 1, perPage: 2}, fetcher)

	_, err := p.Walk(context.Background(), config.QueryConfig{})
	if err == nil {
		t.Fatalf("expected error after retries exhausted")
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected a fetch error, got %v", err)
	}
	// FetchRetries=2 means one initial attempt plus two retries.
	if fetcher.fetches != 3 {
		t.Fatalf("expected 3 attempts, got %d", fetcher.fetches)
	}
}
