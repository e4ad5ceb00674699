package server

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/sandoghapp/sandogh/internal/database"
	"github.com/sandoghapp/sandogh/internal/scheduler"
)

// SystemHandlers serves the status and maintenance endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	ledgerDB  *database.DB
	cacheDB   *database.DB
	startedAt time.Time

	reconcileJob     scheduler.Job
	checkDatabaseJob scheduler.Job
	backupJob        scheduler.Job
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(log zerolog.Logger, dataDir string, ledgerDB, cacheDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		dataDir:   dataDir,
		ledgerDB:  ledgerDB,
		cacheDB:   cacheDB,
		startedAt: time.Now(),
	}
}

// SetJobs registers the background jobs for manual triggering
func (h *SystemHandlers) SetJobs(reconcile, checkDatabase, backup scheduler.Job) {
	h.reconcileJob = reconcile
	h.checkDatabaseJob = checkDatabase
	h.backupJob = backup
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.systemStats()

	h.writeJSON(w, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"cpu_percent":    cpuPercent,
		"memory_percent": memPercent,
		"goroutines":     runtime.NumGoroutine(),
		"data_dir":       h.dataDir,
	})
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"ledger": h.databaseStats(h.ledgerDB, "accounts", "transactions", "reversal_links"),
		"cache":  h.databaseStats(h.cacheDB, "report_snapshots"),
	}
	h.writeJSON(w, stats)
}

// databaseStats collects the file size and row counts of one database
func (h *SystemHandlers) databaseStats(db *database.DB, tables ...string) map[string]interface{} {
	stats := map[string]interface{}{"path": db.Path()}

	if info, err := os.Stat(db.Path()); err == nil {
		stats["size_bytes"] = info.Size()
	}

	rows := make(map[string]int64, len(tables))
	for _, table := range tables {
		var count int64
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			h.log.Warn().Err(err).Str("table", table).Msg("Failed to count rows")
			continue
		}
		rows[table] = count
	}
	stats["rows"] = rows

	return stats
}

// systemStats reads CPU and RAM usage percentages. The 100ms sampling window
// keeps the status endpoint fast.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// HandleTriggerReconcile handles POST /api/system/jobs/reconcile-balances
func (h *SystemHandlers) HandleTriggerReconcile(w http.ResponseWriter, r *http.Request) {
	h.triggerJob(w, h.reconcileJob, "Balance reconciliation")
}

// HandleTriggerCheckDatabase handles POST /api/system/jobs/check-database
func (h *SystemHandlers) HandleTriggerCheckDatabase(w http.ResponseWriter, r *http.Request) {
	h.triggerJob(w, h.checkDatabaseJob, "Database check")
}

// HandleTriggerBackup handles POST /api/system/jobs/backup
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	h.triggerJob(w, h.backupJob, "Backup")
}

func (h *SystemHandlers) triggerJob(w http.ResponseWriter, job scheduler.Job, label string) {
	if job == nil {
		h.writeJSON(w, map[string]string{
			"status":  "error",
			"message": label + " job not registered",
		})
		return
	}

	h.log.Info().Str("job", job.Name()).Msg("Manual job trigger")

	if err := job.Run(); err != nil {
		h.log.Error().Err(err).Str("job", job.Name()).Msg("Manually triggered job failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": label + " completed",
	})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
