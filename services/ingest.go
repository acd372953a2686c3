package services

import (
	"context"
	"errors"
	"log"

	"jobharvest/models"
)

// ListingStore is the slice of the persistence layer ingest needs.
type ListingStore interface {
	GetListing(ctx context.Context, source models.Source, sourceJobID string) (*models.JobListing, error)
	UpsertListing(ctx context.Context, listing *models.JobListing) error
}

// IngestService runs the validate → dedupe → upsert pipeline for one
// source's batch. Records fail individually; a bad card or a failed
// upsert increments the error counter and the batch continues.
type IngestService struct {
	store     ListingStore
	validator *Validator
}

func NewIngestService(store ListingStore) *IngestService {
	return &IngestService{store: store, validator: NewValidator()}
}

// ProcessBatch consumes one query walk's records and updates the
// source's counters in place.
func (s *IngestService) ProcessBatch(ctx context.Context, source models.Source, raws []models.RawJob, warnings []models.FieldWarning, stats *models.SourceStats) error {
	stats.Fetched += len(raws)
	for _, w := range warnings {
		log.Printf("[%s] field warning: record %q field %s: %s", source, w.SourceJobID, w.Field, w.Reason)
	}

	validated := make([]*models.JobListing, 0, len(raws))
	for i := range raws {
		listing, err := s.validator.Validate(source, &raws[i])
		if err != nil {
			stats.Errored++
			var verr *ValidationError
			if errors.As(err, &verr) {
				log.Printf("[%s] dropped record: %v", source, verr)
				continue
			}
			log.Printf("[%s] validation error: %v", source, err)
			continue
		}
		validated = append(validated, listing)
	}
	stats.Validated += len(validated)

	deduped := Dedupe(validated)
	stats.Deduped += len(validated) - len(deduped)

	for _, listing := range deduped {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		existing, err := s.store.GetListing(ctx, listing.Source, listing.SourceJobID)
		if err != nil {
			stats.Errored++
			log.Printf("[%s] lookup %q failed: %v", source, listing.SourceJobID, err)
			continue
		}
		if existing != nil {
			// Detail fields only come from the enrichment pass; never
			// blank them out on a list-page re-ingest.
			listing.Description = existing.Description
			listing.Requirements = existing.Requirements
			listing.ScrapedAt = existing.ScrapedAt
		}

		if err := s.store.UpsertListing(ctx, listing); err != nil {
			stats.Errored++
			log.Printf("[%s] upsert %q failed: %v", source, listing.SourceJobID, err)
			continue
		}
		if existing == nil {
			stats.Stored++
		} else {
			stats.Updated++
		}
	}

	return nil
}
