package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"jobharvest/config"
	"jobharvest/models"
	"jobharvest/scraper"
	"jobharvest/storage"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	store        *storage.SQLiteStore
	cron         *cron.Cron
	stopCh       chan struct{}

	detailWorker     Triggerable
	aggregatesWorker Triggerable
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator, store *storage.SQLiteStore) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		store:        store,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

// SetWorkers registers background workers for manual triggering
func (s *Scheduler) SetWorkers(detail, aggregates Triggerable) {
	s.detailWorker = detail
	s.aggregatesWorker = aggregates
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	log.Printf("Scheduling %s at %q", models.JobWeeklyComprehensive, s.cfg.Scheduler.WeeklyCron)
	_, err := s.cron.AddFunc(s.cfg.Scheduler.WeeklyCron, func() {
		if err := s.orchestrator.RunJob(ctx, models.JobWeeklyComprehensive, models.JobWeeklyComprehensive, ""); err != nil {
			log.Printf("Weekly run error: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid weekly cron expression: %w", err)
	}

	log.Printf("Scheduling %s at %q", models.JobDailyIncremental, s.cfg.Scheduler.DailyCron)
	_, err = s.cron.AddFunc(s.cfg.Scheduler.DailyCron, func() {
		if err := s.orchestrator.RunJob(ctx, models.JobDailyIncremental, models.JobDailyIncremental, ""); err != nil {
			log.Printf("Daily run error: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid daily cron expression: %w", err)
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(&cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdRunDetail:
		if s.detailWorker != nil {
			s.detailWorker.Trigger()
			log.Println("Detail worker triggered via command")
		}
		return nil
	case models.CmdRunAggregates:
		if s.aggregatesWorker != nil {
			s.aggregatesWorker.Trigger()
			log.Println("Aggregates worker triggered via command")
		}
		return nil
	default:
		return s.orchestrator.HandleCommand(cmd)
	}
}

func (s *Scheduler) TriggerNow(ctx context.Context, jobName string) error {
	return s.orchestrator.RunJob(ctx, jobName, models.JobManual, "")
}
