package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/dsl"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/engine"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/events"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/groupcache"
)

// Checkpointer flushes a database's write-ahead log after heavy writes.
// *database.DB satisfies it.
type Checkpointer interface {
	WALCheckpoint(mode string) error
}

// BackfillJob refreshes the group return cache for the default strategy so
// the next evaluation reads warm data instead of backfilling inline.
type BackfillJob struct {
	resolver     *engine.Resolver
	backfiller   *groupcache.Backfiller
	manager      *events.Manager
	checkpoint   Checkpointer
	strategyID   string
	lookbackDays int
	log          zerolog.Logger
}

// NewBackfillJob creates a backfill job for one strategy
func NewBackfillJob(
	resolver *engine.Resolver,
	backfiller *groupcache.Backfiller,
	manager *events.Manager,
	strategyID string,
	lookbackDays int,
	log zerolog.Logger,
) *BackfillJob {
	return &BackfillJob{
		resolver:     resolver,
		backfiller:   backfiller,
		manager:      manager,
		strategyID:   strategyID,
		lookbackDays: lookbackDays,
		log:          log.With().Str("job", "backfill").Logger(),
	}
}

// SetCheckpointer registers the cache database for a WAL checkpoint after
// each run; the batch writes leave a log worth truncating.
func (j *BackfillJob) SetCheckpointer(c Checkpointer) {
	j.checkpoint = c
}

// Name returns the job name
func (j *BackfillJob) Name() string {
	return "group_return_backfill"
}

// Run backfills every filter-targeted group in the strategy
func (j *BackfillJob) Run() error {
	started := time.Now()

	path, found := j.resolver.Resolve(j.strategyID)
	if !found {
		return fmt.Errorf("strategy %q not found", j.strategyID)
	}

	ast, err := dsl.ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	groups := groupcache.DiscoverFilterGroups(ast)
	endDate := time.Now().UTC()

	if j.manager != nil {
		j.manager.EmitTyped(events.BackfillStarted, "scheduler", &events.BackfillStartedData{
			StrategyID:   j.strategyID,
			Groups:       len(groups),
			LookbackDays: j.lookbackDays,
			EndDate:      endDate.Format("2006-01-02"),
		})
	}

	summary, err := j.backfiller.Run(ast, j.lookbackDays, endDate)
	if err != nil {
		return err
	}

	if j.checkpoint != nil {
		if err := j.checkpoint.WALCheckpoint(""); err != nil {
			j.log.Warn().Err(err).Msg("WAL checkpoint after backfill failed")
		}
	}

	failed := 0
	for _, g := range summary.Groups {
		failed += g.Failed
	}

	if j.manager != nil {
		j.manager.EmitTyped(events.BackfillCompleted, "scheduler", &events.BackfillCompletedData{
			StrategyID: j.strategyID,
			Written:    summary.TotalWritten(),
			Failed:     failed,
			Duration:   time.Since(started).Seconds(),
		})
	}

	return nil
}
