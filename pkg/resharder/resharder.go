package resharder

import (
	"context"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quiverdb/quiver/pkg/config"
	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/hashring"
	"github.com/quiverdb/quiver/pkg/log"
	"github.com/quiverdb/quiver/pkg/metrics"
	"github.com/quiverdb/quiver/pkg/shardclient"
	"github.com/quiverdb/quiver/pkg/types"
)

// ClientSource hands out wire clients per shard. Satisfied by
// shardclient.Pool.
type ClientSource interface {
	Client(shard *types.Shard) shardclient.Client
}

// Resharder migrates vectors onto newly added shards. It is driven from a
// config diff: every shard in the new config that the old one lacks takes
// over the arc between its ring predecessor and itself, and the vectors
// on that arc are copied over in batches and deleted from the source.
//
// The engine is at-least-once. Copy-then-delete means a crash can leave a
// vector on both shards, which the coordinator's merge deduplicates, or
// leave it only on the source, where the candidate walk still finds it
// and read repair moves it. A restarted run rescans from the beginning
// and converges.
type Resharder struct {
	clients ClientSource
	cfg     config.ReshardingConfig
	logger  zerolog.Logger
}

// New creates a resharding engine
func New(clients ClientSource, cfg config.ReshardingConfig) *Resharder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 2
	}
	return &Resharder{
		clients: clients,
		cfg:     cfg,
		logger:  log.WithComponent("resharder"),
	}
}

// Apply migrates data for every shard added between prev and next.
// Distinct (source, target) pairs run in parallel up to MaxParallel;
// databases within one pair run serially. Cancelling ctx stops the run at
// the next batch boundary.
func (r *Resharder) Apply(ctx context.Context, prev, next *types.ClusterConfig) error {
	pairs := planPairs(prev, next)
	if len(pairs) == 0 {
		r.logger.Info().Msg("config change requires no data movement")
		return nil
	}

	for _, p := range pairs {
		r.logger.Info().
			Str("source_shard", p.Source.ID).
			Str("target_shard", p.Target.ID).
			Uint64("range_start", p.Start).
			Uint64("range_end", p.End).
			Msg("migration pair planned")
	}

	// A plain group: one pair failing must not cancel its siblings, only
	// ctx stops the whole run.
	var g errgroup.Group
	g.SetLimit(r.cfg.MaxParallel)
	for i := range pairs {
		pair := pairs[i]
		g.Go(func() error {
			if err := r.migratePair(ctx, pair); err != nil {
				r.logger.Error().Err(err).
					Str("source_shard", pair.Source.ID).
					Str("target_shard", pair.Target.ID).
					Msg("migration pair failed, remaining pairs continue")
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.ReshardingJobsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.ReshardingJobsTotal.WithLabelValues("ok").Inc()
	r.logger.Info().Int("pairs", len(pairs)).Msg("resharding complete")
	return nil
}

func (r *Resharder) migratePair(ctx context.Context, p Pair) error {
	source := r.clients.Client(&p.Source)
	target := r.clients.Client(&p.Target)

	databases, err := source.ListDatabases(ctx)
	if err != nil {
		return fault.Wrap(fault.KindUnavailable, "cannot enumerate databases on source "+p.Source.ID, err)
	}

	for i := range databases {
		db := databases[i]
		if err := target.CreateDatabase(ctx, &db); err != nil && !fault.Is(err, fault.KindConflict) {
			r.logger.Warn().Err(err).
				Str("target_shard", p.Target.ID).
				Str("database_id", db.ID).
				Msg("create database on target failed, skipping database")
			continue
		}
		if err := r.migrateDatabase(ctx, source, target, p, db.ID); err != nil {
			return err
		}
	}
	return nil
}

// migrateDatabase walks the source's id space for one database and moves
// every vector whose hash falls on the pair's arc. The cursor is the last
// id of the previous batch, so a failed batch is retried on the next run
// rather than skipped silently.
func (r *Resharder) migrateDatabase(ctx context.Context, source, target shardclient.Client, p Pair, databaseID string) error {
	after := int64(math.MinInt64)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().
				Str("source_shard", p.Source.ID).
				Str("target_shard", p.Target.ID).
				Str("database_id", databaseID).
				Msg("resharding stopped at batch boundary")
			return ctx.Err()
		default:
		}

		batch, err := source.ScanRange(ctx, databaseID, after, math.MaxInt64, r.cfg.BatchSize)
		if err != nil {
			return fault.Wrap(fault.KindUnavailable, "scan failed on source "+p.Source.ID, err)
		}
		if len(batch) == 0 {
			return nil
		}
		after = batch[len(batch)-1].ID

		var moving []types.Vector
		for _, v := range batch {
			if hashring.Between(hashring.KeyHash(v.ID), p.Start, p.End) {
				moving = append(moving, v)
			}
		}
		if len(moving) > 0 {
			r.moveBatch(ctx, source, target, p, databaseID, moving)
		}

		if len(batch) < r.cfg.BatchSize {
			return nil
		}
	}
}

// moveBatch copies one batch to the target, reshuffles the replica copies
// and deletes the originals. Failures are logged and the batch is left
// for the next run; the delete is skipped when the copy failed so data is
// never lost.
func (r *Resharder) moveBatch(ctx context.Context, source, target shardclient.Client, p Pair, databaseID string, moving []types.Vector) {
	if err := target.PutBatch(ctx, databaseID, moving); err != nil {
		metrics.ReshardingBatchFailures.Inc()
		r.logger.Warn().Err(err).
			Str("target_shard", p.Target.ID).
			Str("database_id", databaseID).
			Int("batch", len(moving)).
			Msg("batch copy failed, batch left on source")
		return
	}

	r.reshuffleReplicas(ctx, p, databaseID, moving)

	ids := make([]int64, len(moving))
	for i, v := range moving {
		ids[i] = v.ID
	}
	if err := source.DeleteBatch(ctx, databaseID, ids); err != nil {
		metrics.ReshardingBatchFailures.Inc()
		r.logger.Warn().Err(err).
			Str("source_shard", p.Source.ID).
			Str("database_id", databaseID).
			Int("batch", len(ids)).
			Msg("source cleanup failed, duplicates remain until next run")
	}

	metrics.ReshardingVectorsMoved.Add(float64(len(moving)))
}

// reshuffleReplicas moves the replica copies of migrated vectors: the
// copy tagged with the source shard on the source's old successor is
// replaced by a copy tagged with the target on the target's new
// successor. Both sides are best effort; a missed copy is healed by the
// next write or read repair.
func (r *Resharder) reshuffleReplicas(ctx context.Context, p Pair, databaseID string, moving []types.Vector) {
	if p.NewReplicaHolder != nil {
		holder := r.clients.Client(p.NewReplicaHolder)
		for i := range moving {
			if err := holder.AddVectorReplica(ctx, &moving[i], p.Target.ID); err != nil {
				r.logger.Warn().Err(err).
					Str("replica_shard", p.NewReplicaHolder.ID).
					Int64("vector_id", moving[i].ID).
					Msg("replica placement failed during resharding")
			}
		}
	}
	if p.OldReplicaHolder != nil {
		holder := r.clients.Client(p.OldReplicaHolder)
		for i := range moving {
			if _, err := holder.DeleteVectorReplica(ctx, databaseID, moving[i].ID, p.Source.ID); err != nil {
				r.logger.Warn().Err(err).
					Str("replica_shard", p.OldReplicaHolder.ID).
					Int64("vector_id", moving[i].ID).
					Msg("stale replica cleanup failed during resharding")
			}
		}
	}
}
