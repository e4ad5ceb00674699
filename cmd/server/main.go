// Package main is the entry point for the Sandogh ledger server.
// It wires the two-database architecture (ledger.db for the financial
// audit trail, cache.db for ephemeral report snapshots), the event bus,
// the account and transaction services, and the background scheduler,
// then serves the HTTP API until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sandoghapp/sandogh/internal/backup"
	"github.com/sandoghapp/sandogh/internal/config"
	"github.com/sandoghapp/sandogh/internal/database"
	"github.com/sandoghapp/sandogh/internal/events"
	"github.com/sandoghapp/sandogh/internal/modules/accounts"
	"github.com/sandoghapp/sandogh/internal/modules/ledger"
	"github.com/sandoghapp/sandogh/internal/modules/reports"
	"github.com/sandoghapp/sandogh/internal/scheduler"
	"github.com/sandoghapp/sandogh/internal/server"
	"github.com/sandoghapp/sandogh/pkg/logger"
)

func main() {
	// Load configuration first to get the log level.
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Sandogh")

	// ledger.db holds the append-only financial record and must survive
	// crashes, so it runs with the strictest durability profile. cache.db
	// only holds recomputable report snapshots and favors speed.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := ledgerDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate ledger database")
	}
	if err := cacheDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate cache database")
	}

	// Event bus feeds the SSE/WebSocket streams and the snapshot cache
	// invalidation watcher.
	eventBus := events.NewBus()
	eventManager := events.NewManager(eventBus, log)

	accountsRepo := accounts.NewRepository(ledgerDB.Conn(), log)
	transactionRepo := ledger.NewTransactionRepository(ledgerDB.Conn(), log)
	ledgerService := ledger.NewService(ledgerDB, transactionRepo, accountsRepo, eventManager, log)

	snapshotCache := reports.NewSnapshotCache(cacheDB, eventBus, log)
	defer snapshotCache.Close()
	reportsService := reports.NewService(ledgerService, snapshotCache, log)

	backupService := backup.NewService(ledgerDB, cacheDB, cfg.Backup, cfg.DataDir, eventManager, log)

	// Background jobs: hourly balance reconciliation, nightly integrity
	// check, nightly backup. Schedules come from the environment.
	reconcileJob := scheduler.NewReconcileBalancesJob(ledgerService, accountsRepo, eventManager, log)
	checkDatabaseJob := scheduler.NewCheckDatabaseJob(ledgerDB, cacheDB, log)
	backupJob := scheduler.NewBackupJob(backupService, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.ReconcileSchedule, reconcileJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule balance reconciliation")
	}
	if err := sched.AddJob(cfg.IntegritySchedule, checkDatabaseJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule database check")
	}
	if err := sched.AddJob(cfg.BackupSchedule, backupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule backup")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:            log,
		LedgerDB:       ledgerDB,
		CacheDB:        cacheDB,
		Config:         cfg,
		EventBus:       eventBus,
		EventManager:   eventManager,
		AccountsRepo:   accountsRepo,
		LedgerService:  ledgerService,
		ReportsService: reportsService,
	})
	srv.SetJobs(reconcileJob, checkDatabaseJob, backupJob)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started")

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()
	log.Info().Msg("Scheduler stopped")

	// Give the HTTP server up to 10 seconds to finish in-flight requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
