package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sandoghapp/sandogh/internal/events"
	"github.com/sandoghapp/sandogh/internal/modules/accounts"
	"github.com/sandoghapp/sandogh/internal/modules/ledger"
)

// ReconcileBalancesJob recomputes every account balance from transaction
// history and compares it against the incrementally maintained value. Drift
// means a bug or manual database surgery; the job reports it, it never
// rewrites balances on its own.
type ReconcileBalancesJob struct {
	ledger       *ledger.Service
	accounts     *accounts.Repository
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewReconcileBalancesJob creates a new balance reconciliation job
func NewReconcileBalancesJob(ledgerService *ledger.Service, accountsRepo *accounts.Repository, eventManager *events.Manager, log zerolog.Logger) *ReconcileBalancesJob {
	return &ReconcileBalancesJob{
		ledger:       ledgerService,
		accounts:     accountsRepo,
		eventManager: eventManager,
		log:          log.With().Str("job", "reconcile_balances").Logger(),
	}
}

// Name returns the job name
func (j *ReconcileBalancesJob) Name() string {
	return "reconcile_balances"
}

// Run checks every account, inactive ones included
func (j *ReconcileBalancesJob) Run() error {
	list, err := j.accounts.List(false)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	var drifted int
	for _, account := range list {
		computed, err := j.ledger.RecomputeBalance(account.ID)
		if err != nil {
			return fmt.Errorf("failed to recompute balance of account %d: %w", account.ID, err)
		}

		if computed == account.CurrentBalance {
			continue
		}

		drifted++
		drift := account.CurrentBalance - computed
		j.log.Error().
			Int64("account_id", account.ID).
			Str("name", account.Name).
			Int64("stored", account.CurrentBalance).
			Int64("computed", computed).
			Int64("drift", drift).
			Msg("Balance drift detected")

		if j.eventManager != nil {
			j.eventManager.EmitTyped(events.BalanceDriftDetected, "scheduler", &events.BalanceDriftData{
				AccountID: account.ID,
				Stored:    account.CurrentBalance,
				Computed:  computed,
				Drift:     drift,
			})
		}
	}

	if drifted == 0 {
		j.log.Debug().Int("accounts", len(list)).Msg("All balances reconcile")
	}

	return nil
}
