package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"jobharvest/models"
	"jobharvest/storage"
)

// AggregatesWorker rebuilds the per-company rollup table on a timer and
// on demand after a run finishes.
type AggregatesWorker struct {
	store     *storage.PostgresStore
	triggerCh chan struct{}
	logFunc   LogFunc
}

func NewAggregatesWorker(store *storage.PostgresStore) *AggregatesWorker {
	return &AggregatesWorker{
		store:     store,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *AggregatesWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *AggregatesWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *AggregatesWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Aggregates worker stopping")
			return
		case <-ticker.C:
			w.rebuild(ctx)
		case <-w.triggerCh:
			w.rebuild(ctx)
		}
	}
}

func (w *AggregatesWorker) rebuild(ctx context.Context) {
	start := time.Now()
	companies, err := w.store.RefreshCompanyAggregates(ctx)
	if err != nil {
		log.Printf("Aggregates worker: rebuild failed: %v", err)
		w.logFunc(models.LogLevelError, "", fmt.Sprintf("aggregate rebuild failed: %v", err))
		return
	}
	log.Printf("Aggregates worker: rebuilt %d companies in %s", companies, time.Since(start).Round(time.Millisecond))

	top, err := w.store.TopCompanies(ctx, 5)
	if err != nil {
		log.Printf("Aggregates worker: top companies query failed: %v", err)
		return
	}
	for _, c := range top {
		log.Printf("Aggregates worker: %s has %d active listings (%d total)", c.CompanyName, c.ActiveCount, c.TotalCount)
	}
}
