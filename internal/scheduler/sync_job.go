package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/events"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/storage"
)

// StrategySyncJob pulls strategy files from object storage on a schedule
type StrategySyncJob struct {
	syncer  *storage.S3Syncer
	manager *events.Manager
	bucket  string
	log     zerolog.Logger
}

// NewStrategySyncJob creates a strategy sync job
func NewStrategySyncJob(syncer *storage.S3Syncer, manager *events.Manager, bucket string, log zerolog.Logger) *StrategySyncJob {
	return &StrategySyncJob{
		syncer:  syncer,
		manager: manager,
		bucket:  bucket,
		log:     log.With().Str("job", "strategy_sync").Logger(),
	}
}

// Name returns the job name
func (j *StrategySyncJob) Name() string {
	return "strategy_file_sync"
}

// Run syncs strategy files once
func (j *StrategySyncJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := j.syncer.Sync(ctx)
	if err != nil {
		return err
	}

	if j.manager != nil {
		j.manager.EmitTyped(events.StrategyFilesSynced, "scheduler", &events.StrategyFilesSyncedData{
			Bucket:     j.bucket,
			Downloaded: result.Downloaded,
			Skipped:    result.Skipped,
		})
	}
	return nil
}
