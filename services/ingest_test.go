package services

import (
	"context"
	"errors"
	"testing"

	"jobharvest/models"
)

type memStore struct {
	listings  map[string]*models.JobListing
	upsertErr map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		listings:  make(map[string]*models.JobListing),
		upsertErr: make(map[string]error),
	}
}

func (s *memStore) GetListing(ctx context.Context, source models.Source, sourceJobID string) (*models.JobListing, error) {
	l, ok := s.listings[string(source)+"|"+sourceJobID]
	if !ok {
		return nil, nil
	}
	copied := *l
	return &copied, nil
}

func (s *memStore) UpsertListing(ctx context.Context, l *models.JobListing) error {
	if err := s.upsertErr[l.SourceJobID]; err != nil {
		return err
	}
	copied := *l
	s.listings[l.Key()] = &copied
	return nil
}

func TestProcessBatchCounters(t *testing.T) {
	store := newMemStore()
	svc := NewIngestService(store)

	raws := []models.RawJob{
		{SourceJobID: "1", Title: "Engineer", CompanyName: "Acme"},
		{SourceJobID: "2", Title: "", CompanyName: "Acme"}, // dropped: no title
		{SourceJobID: "3", Title: "Analyst", CompanyName: "Globex"},
		{SourceJobID: "1", Title: "Engineer II", CompanyName: "Acme"}, // duplicate, last wins
	}

	stats := &models.SourceStats{}
	if err := svc.ProcessBatch(context.Background(), models.SourceMCF, raws, nil, stats); err != nil {
		t.Fatalf("process batch failed: %v", err)
	}

	if stats.Fetched != 4 {
		t.Fatalf("expected 4 fetched, got %d", stats.Fetched)
	}
	if stats.Validated != 3 {
		t.Fatalf("expected 3 validated, got %d", stats.Validated)
	}
	if stats.Deduped != 1 {
		t.Fatalf("expected 1 collapsed duplicate, got %d", stats.Deduped)
	}
	if stats.Stored != 2 {
		t.Fatalf("expected 2 stored, got %d", stats.Stored)
	}
	if stats.Errored != 1 {
		t.Fatalf("expected 1 errored, got %d", stats.Errored)
	}

	stored := store.listings["mcf|1"]
	if stored == nil || stored.Title != "Engineer II" {
		t.Fatalf("expected last duplicate to win, got %+v", stored)
	}
}

func TestProcessBatchUpdatesExisting(t *testing.T) {
	store := newMemStore()
	store.listings["mcf|1"] = &models.JobListing{
		Source: models.SourceMCF, SourceJobID: "1",
		Title: "Engineer", CompanyName: "Acme",
		Description: "existing detail", Requirements: "existing reqs",
	}
	svc := NewIngestService(store)

	stats := &models.SourceStats{}
	raws := []models.RawJob{{SourceJobID: "1", Title: "Senior Engineer", CompanyName: "Acme"}}
	if err := svc.ProcessBatch(context.Background(), models.SourceMCF, raws, nil, stats); err != nil {
		t.Fatalf("process batch failed: %v", err)
	}

	if stats.Stored != 0 || stats.Updated != 1 {
		t.Fatalf("expected 0 stored / 1 updated, got %d / %d", stats.Stored, stats.Updated)
	}
	got := store.listings["mcf|1"]
	if got.Title != "Senior Engineer" {
		t.Fatalf("expected title refresh, got %q", got.Title)
	}
	if got.Description != "existing detail" || got.Requirements != "existing reqs" {
		t.Fatalf("list-page re-ingest must not blank detail fields, got %+v", got)
	}
}

func TestProcessBatchIsolatesUpsertErrors(t *testing.T) {
	store := newMemStore()
	store.upsertErr["1"] = errors.New("deadlock")
	svc := NewIngestService(store)

	stats := &models.SourceStats{}
	raws := []models.RawJob{
		{SourceJobID: "1", Title: "Engineer", CompanyName: "Acme"},
		{SourceJobID: "2", Title: "Analyst", CompanyName: "Globex"},
	}
	if err := svc.ProcessBatch(context.Background(), models.SourceMCF, raws, nil, stats); err != nil {
		t.Fatalf("one failed upsert must not fail the batch: %v", err)
	}
	if stats.Stored != 1 || stats.Errored != 1 {
		t.Fatalf("expected 1 stored / 1 errored, got %d / %d", stats.Stored, stats.Errored)
	}
}
