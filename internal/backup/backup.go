// Package backup snapshots the databases and ships them to S3-compatible
// storage.
package backup

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/sandoghapp/sandogh/internal/config"
	"github.com/sandoghapp/sandogh/internal/database"
	"github.com/sandoghapp/sandogh/internal/events"
)

// Service snapshots the databases with VACUUM INTO, zips the snapshots and
// uploads the archive. VACUUM INTO reads through SQLite itself, so the copy
// is consistent even while the ledger is being written.
type Service struct {
	ledgerDB     *database.DB
	cacheDB      *database.DB
	cfg          *config.BackupConfig
	dataDir      string
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewService creates a new backup service
func NewService(ledgerDB, cacheDB *database.DB, cfg *config.BackupConfig, dataDir string, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		ledgerDB:     ledgerDB,
		cacheDB:      cacheDB,
		cfg:          cfg,
		dataDir:      dataDir,
		eventManager: eventManager,
		log:          log.With().Str("component", "backup").Logger(),
	}
}

// Run performs a full backup cycle: snapshot, zip, upload, cleanup.
// The local archive is kept under dataDir/backups even when upload is
// disabled or fails.
func (s *Service) Run(ctx context.Context) error {
	stamp := time.Now().Format("2006-01-02-150405")

	snapshotDir, err := os.MkdirTemp("", "sandogh-backup-")
	if err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	defer os.RemoveAll(snapshotDir)

	for _, db := range []*database.DB{s.ledgerDB, s.cacheDB} {
		dest := filepath.Join(snapshotDir, db.Name()+".db")
		if err := db.VacuumInto(dest); err != nil {
			return fmt.Errorf("failed to snapshot %s database: %w", db.Name(), err)
		}
	}

	backupDir := filepath.Join(s.dataDir, "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	archivePath := filepath.Join(backupDir, "sandogh-"+stamp+".zip")
	size, err := zipDir(snapshotDir, archivePath)
	if err != nil {
		return fmt.Errorf("failed to build backup archive: %w", err)
	}

	s.log.Info().Str("archive", archivePath).Int64("bytes", size).Msg("Backup archive created")

	if s.cfg == nil || !s.cfg.Enabled {
		return nil
	}

	key := s.cfg.Prefix + "/sandogh-" + stamp + ".zip"
	if err := s.upload(ctx, archivePath, key); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().Str("bucket", s.cfg.Bucket).Str("key", key).Msg("Backup uploaded")

	if s.eventManager != nil {
		s.eventManager.EmitTyped(events.BackupCompleted, "backup", &events.BackupCompletedData{
			ObjectKey: key,
			SizeBytes: size,
		})
	}

	return nil
}

// upload ships the archive via the S3 multipart uploader
func (s *Service) upload(ctx context.Context, path, key string) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to build aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client)

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	return err
}

// zipDir zips every file in srcDir into destZip and returns the archive size
func zipDir(srcDir, destZip string) (int64, error) {
	zipFile, err := os.Create(destZip)
	if err != nil {
		return 0, err
	}
	defer zipFile.Close()

	writer := zip.NewWriter(zipFile)

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		writer.Close()
		return 0, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		dst, err := writer.Create(entry.Name())
		if err != nil {
			writer.Close()
			return 0, err
		}

		src, err := os.Open(filepath.Join(srcDir, entry.Name()))
		if err != nil {
			writer.Close()
			return 0, err
		}

		_, err = io.Copy(dst, src)
		src.Close()
		if err != nil {
			writer.Close()
			return 0, err
		}
	}

	if err := writer.Close(); err != nil {
		return 0, err
	}

	info, err := zipFile.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
