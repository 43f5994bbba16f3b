package scheduler

import (
	"context"
	"time"

	"github.com/chainsight/chainsight/internal/database"
	"github.com/chainsight/chainsight/internal/engine"
	"github.com/chainsight/chainsight/internal/modules/analytics"
)

// Per-run ceiling for a full model retrain.
const retrainTimeout = 10 * time.Minute

// RetrainJob reloads the dataset and retrains every model.
type RetrainJob struct {
	engine *engine.Engine
}

// NewRetrainJob creates the nightly retrain job.
func NewRetrainJob(e *engine.Engine) *RetrainJob {
	return &RetrainJob{engine: e}
}

// Name implements Job.
func (j *RetrainJob) Name() string { return "model-retrain" }

// Run implements Job.
func (j *RetrainJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), retrainTimeout)
	defer cancel()
	return j.engine.TrainAll(ctx)
}

// CachePurgeJob evicts expired analytics cache entries.
type CachePurgeJob struct {
	cache *analytics.Cache
}

// NewCachePurgeJob creates the cache maintenance job.
func NewCachePurgeJob(c *analytics.Cache) *CachePurgeJob {
	return &CachePurgeJob{cache: c}
}

// Name implements Job.
func (j *CachePurgeJob) Name() string { return "cache-purge" }

// Run implements Job.
func (j *CachePurgeJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := j.cache.PurgeExpired(ctx)
	return err
}

// CheckpointJob forces WAL checkpoints so database files stay compact.
type CheckpointJob struct {
	dbs []*database.DB
}

// NewCheckpointJob creates the WAL maintenance job.
func NewCheckpointJob(dbs ...*database.DB) *CheckpointJob {
	return &CheckpointJob{dbs: dbs}
}

// Name implements Job.
func (j *CheckpointJob) Name() string { return "wal-checkpoint" }

// Run implements Job.
func (j *CheckpointJob) Run() error {
	for _, db := range j.dbs {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			return err
		}
	}
	return nil
}
