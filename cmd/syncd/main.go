package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cartera/internal/domain/cardsync"
	"cartera/internal/infrastructure/aggregator"
	"cartera/internal/infrastructure/crypto"
	"cartera/internal/infrastructure/postgres"
	"cartera/internal/scheduler"
	"cartera/internal/shared/config"
	"cartera/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("syncd: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		})
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Printf("Telemetry shutdown: %v", err)
			}
		}()
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return fmt.Errorf("initializing encryptor: %w", err)
	}

	client := aggregator.NewClient(cfg.Aggregator.BaseURL, cfg.Aggregator.ClientID, cfg.Aggregator.Secret)

	connections := postgres.NewConnectionRepository(db)
	retry := cardsync.NewExecutor(cardsync.RetryConfig{})
	fetcher := cardsync.NewFetcher(client, retry, cfg.Sync.InterChunkDelay)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "syncd"
	}

	service := cardsync.NewService(cardsync.ServiceParams{
		Connections:    connections,
		Cards:          postgres.NewCardRepository(db),
		APRs:           postgres.NewAPRRepository(db),
		Transactions:   postgres.NewTransactionRepository(db),
		Cycles:         postgres.NewBillingCycleRepository(db),
		Leases:         postgres.NewSyncLeaseRepository(db),
		Client:         client,
		Encryptor:      encryptor,
		Classifier:     cardsync.NewClassifier(),
		Fetcher:        fetcher,
		Retry:          retry,
		LookbackMonths: cfg.Sync.LookbackMonths,
		LeaseTTL:       cfg.Sync.LeaseTTL,
		Holder:         fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	})

	if !cfg.Scheduler.Enabled {
		log.Println("Scheduler disabled, nothing to run")
		return nil
	}

	sched, err := scheduler.New(scheduler.Config{
		ScheduleTimes: cfg.Scheduler.ScheduleTimes,
		WorkerCount:   cfg.Scheduler.WorkerCount,
		JobDelay:      cfg.Scheduler.JobDelay,
		QueueSize:     cfg.Scheduler.QueueSize,
		RunOnStartup:  cfg.Scheduler.RunOnStartup,
		JobProvider:   scheduler.SyncJobProvider(connections, service),
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	sched.Start()
	log.Printf("Next scheduled run: %s", sched.NextScheduledTime().Format(time.RFC3339))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received %s, shutting down", sig)

	sched.Shutdown(30 * time.Second)
	return nil
}
