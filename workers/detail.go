package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"jobharvest/config"
	"jobharvest/identity"
	"jobharvest/models"
	"jobharvest/ratelimit"
	"jobharvest/scraper"
	"jobharvest/storage"
)

// DetailWorker backfills description and requirements for listings that
// were stored from list pages alone. Only sources that serve detail
// pages without a login are enriched here; authenticated sources get
// their detail during the scrape run's browser session or not at all.
type DetailWorker struct {
	cfg       *config.Config
	store     *storage.PostgresStore
	adapters  map[string]scraper.Adapter
	limiter   *ratelimit.Limiter
	identity  *identity.Controller
	triggerCh chan struct{}
	logFunc   LogFunc
}

func NewDetailWorker(cfg *config.Config, store *storage.PostgresStore, adapters map[string]scraper.Adapter, limiter *ratelimit.Limiter, ctrl *identity.Controller) *DetailWorker {
	return &DetailWorker{
		cfg:       cfg,
		store:     store,
		adapters:  adapters,
		limiter:   limiter,
		identity:  ctrl,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *DetailWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *DetailWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *DetailWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Detail worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.triggerCh:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *DetailWorker) processBatch(ctx context.Context, batchSize int) {
	for sourceID, adapter := range w.adapters {
		if adapter.RequiresAuth() {
			continue
		}
		if err := w.enrichSource(ctx, sourceID, adapter, batchSize); err != nil {
			log.Printf("Detail worker: %s: %v", sourceID, err)
		}
	}
}

func (w *DetailWorker) enrichSource(ctx context.Context, sourceID string, adapter scraper.Adapter, batchSize int) error {
	listings, err := w.store.GetListingsMissingDetail(ctx, adapter.Source(), batchSize)
	if err != nil {
		return fmt.Errorf("query listings: %w", err)
	}
	if len(listings) == 0 {
		return nil
	}

	log.Printf("Detail worker: enriching %d listings from %s", len(listings), sourceID)

	fetcher := scraper.NewHTTPFetcher(w.identity.NextIdentity(), w.cfg.Scrape.FetchTimeout)
	defer fetcher.Close()

	src := w.cfg.Sources[sourceID]
	paginator := scraper.NewPaginator(adapter, fetcher, w.limiter, w.identity, w.cfg.Scrape, src)

	enriched := 0
	for i := range listings {
		l := &listings[i]
		if ctx.Err() != nil {
			break
		}

		raw := &models.RawJob{SourceJobID: l.SourceJobID, URL: l.URL}
		detail, err := paginator.FetchDetail(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logFunc(models.LogLevelWarn, sourceID, fmt.Sprintf("detail fetch for %s: %v", l.SourceJobID, err))
			continue
		}
		if detail.Description == "" {
			continue
		}

		if err := w.store.UpdateListingDetail(ctx, l.ID, detail); err != nil {
			w.logFunc(models.LogLevelError, sourceID, fmt.Sprintf("detail update for %s: %v", l.SourceJobID, err))
			continue
		}
		enriched++
	}

	if enriched > 0 {
		log.Printf("Detail worker: %s: enriched %d/%d", sourceID, enriched, len(listings))
	}
	return nil
}
