package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandoghapp/sandogh/internal/database"
)

// CheckDatabaseJob runs integrity checks and WAL checkpoints on the
// databases
type CheckDatabaseJob struct {
	ledgerDB *database.DB
	cacheDB  *database.DB
	log      zerolog.Logger
}

// NewCheckDatabaseJob creates a new database check job
func NewCheckDatabaseJob(ledgerDB, cacheDB *database.DB, log zerolog.Logger) *CheckDatabaseJob {
	return &CheckDatabaseJob{
		ledgerDB: ledgerDB,
		cacheDB:  cacheDB,
		log:      log.With().Str("job", "check_database").Logger(),
	}
}

// Name returns the job name
func (j *CheckDatabaseJob) Name() string {
	return "check_database"
}

// Run checks both databases. A corrupt cache is dropped and rebuilt lazily;
// a corrupt ledger is only reported, recovery there is a manual decision.
func (j *CheckDatabaseJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := j.ledgerDB.HealthCheck(ctx); err != nil {
		return fmt.Errorf("ledger integrity check failed: %w", err)
	}
	if err := j.ledgerDB.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("Ledger WAL checkpoint failed")
	}

	if err := j.cacheDB.HealthCheck(ctx); err != nil {
		j.log.Warn().Err(err).Msg("Cache integrity check failed, clearing snapshots")
		if _, derr := j.cacheDB.Exec("DELETE FROM report_snapshots"); derr != nil {
			return fmt.Errorf("failed to clear corrupt snapshot cache: %w", derr)
		}
	}
	if err := j.cacheDB.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("Cache WAL checkpoint failed")
	}

	j.log.Debug().Msg("Database checks passed")
	return nil
}
