package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobharvest/config"
	"jobharvest/identity"
	"jobharvest/logging"
	"jobharvest/models"
	"jobharvest/ratelimit"
	"jobharvest/scheduler"
	"jobharvest/scraper"
	"jobharvest/services"
	"jobharvest/storage"
	"jobharvest/workers"
)

var (
	scrapeNow = flag.Bool("scrape", false, "Run one scrape job and exit")
	scrapeJob = flag.String("job", models.JobDailyIncremental, "Job name for -scrape")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("harvester.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting jobharvest...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d source configs", len(cfg.Sources))
	for id, src := range cfg.Sources {
		log.Printf("  - %s (%s, %d req/min)", src.Name, id, src.RequestsPerMinute)
	}
	log.Printf("Loaded %d jobs, %d identities", len(cfg.Jobs), len(cfg.Identities))

	ctx := context.Background()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	limiter := ratelimit.New()
	identityCtrl := identity.NewController(cfg.Identities)
	ingest := services.NewIngestService(pgStore)

	orchestrator, err := scraper.NewOrchestrator(cfg, sqliteStore, pgStore, ingest, limiter, identityCtrl)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	if cfg.Snapshots.Bucket != "" {
		snapshots, err := storage.NewSnapshotStore(ctx, storage.SnapshotConfig{
			Bucket:          cfg.Snapshots.Bucket,
			Region:          cfg.Snapshots.Region,
			Endpoint:        cfg.Snapshots.Endpoint,
			Prefix:          cfg.Snapshots.Prefix,
			AccessKeyID:     cfg.Snapshots.AccessKeyID,
			SecretAccessKey: cfg.Snapshots.SecretAccessKey,
		})
		if err != nil {
			log.Printf("Warning: snapshot store unavailable: %v", err)
		} else {
			orchestrator.SetSnapshotStore(snapshots)
			log.Printf("Snapshot archive: s3://%s/%s", cfg.Snapshots.Bucket, cfg.Snapshots.Prefix)
		}
	}

	sched := scheduler.New(cfg, orchestrator, sqliteStore)

	// Handle one-shot invocation
	if *scrapeNow {
		log.Printf("Running job %s...", *scrapeJob)
		if err := sched.TriggerNow(ctx, *scrapeJob); err != nil {
			log.Fatalf("Scrape failed: %v", err)
		}
		log.Println("Scrape complete!")
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerLog := func(level models.LogLevel, source, message string) {
		sqliteStore.Log(nil, level, message, source, "")
	}

	adapters := make(map[string]scraper.Adapter, len(cfg.Sources))
	for id := range cfg.Sources {
		adapters[id] = orchestrator.Adapter(id)
	}

	detailWorker := workers.NewDetailWorker(cfg, pgStore, adapters, limiter, identityCtrl)
	detailWorker.SetLogger(workerLog)
	go detailWorker.Run(ctx, 25, 10*time.Minute) // batch of 25 every 10 min
	log.Println("Detail worker started")

	aggregatesWorker := workers.NewAggregatesWorker(pgStore)
	aggregatesWorker.SetLogger(workerLog)
	go aggregatesWorker.Run(ctx, 6*time.Hour)
	log.Println("Aggregates worker started")

	sched.SetWorkers(detailWorker, aggregatesWorker)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
