package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandoghapp/sandogh/internal/backup"
)

// BackupJob runs the backup service on schedule
type BackupJob struct {
	service *backup.Service
	log     zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *backup.Service, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run performs one backup cycle
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	return j.service.Run(ctx)
}
