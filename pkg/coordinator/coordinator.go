package coordinator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/log"
	"github.com/quiverdb/quiver/pkg/metrics"
	"github.com/quiverdb/quiver/pkg/router"
	"github.com/quiverdb/quiver/pkg/shardclient"
	"github.com/quiverdb/quiver/pkg/types"
	"github.com/quiverdb/quiver/pkg/workerpool"
)

// ClientSource hands out wire clients per shard. Satisfied by
// shardclient.Pool.
type ClientSource interface {
	Client(shard *types.Shard) shardclient.Client
}

// HealthSource classifies shards and absorbs passive failure signals.
// Satisfied by health.Monitor.
type HealthSource interface {
	Partition(shards []types.Shard) (available, unavailable []types.Shard)
	ReportFailure(shardID string)
	ReportSuccess(shardID string)
}

// IDSource produces new vector ids. Satisfied by idgen.Generator.
type IDSource interface {
	Next() int64
}

// Options tunes coordinator timeouts
type Options struct {
	// SearchTimeout is the shared deadline for a search fan-out when the
	// caller context carries none
	SearchTimeout time.Duration

	// ReplicaTimeout bounds each async replication or read-repair call
	ReplicaTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = 10 * time.Second
	}
	if o.ReplicaTimeout <= 0 {
		o.ReplicaTimeout = 5 * time.Second
	}
}

// Coordinator implements the read/write protocol of the front door:
// synchronous primary writes with asynchronous replication, failover
// reads with read repair, and scatter-gather search.
type Coordinator struct {
	router     *router.Router
	clients    ClientSource
	monitor    HealthSource
	ids        IDSource
	replicator *workerpool.Pool
	opts       Options
	logger     zerolog.Logger

	dims dimensionCache
}

// New creates a coordinator. The replicator pool carries async replica
// writes and read repairs; it must be distinct from any resharding pool to
// avoid head-of-line blocking.
func New(rt *router.Router, clients ClientSource, monitor HealthSource, ids IDSource, replicator *workerpool.Pool, opts Options) *Coordinator {
	opts.applyDefaults()
	return &Coordinator{
		router:     rt,
		clients:    clients,
		monitor:    monitor,
		ids:        ids,
		replicator: replicator,
		opts:       opts,
		logger:     log.WithComponent("coordinator"),
	}
}

// AddVector writes a vector to its primary shard and schedules async
// replication. A missing id is assigned from the generator. The caller
// sees primary failures; replica failures are logged as eventual
// inconsistency only.
func (c *Coordinator) AddVector(ctx context.Context, v *types.Vector) (int64, error) {
	if v.ID == 0 {
		v.ID = c.ids.Next()
	}
	if v.CreatedAt == 0 {
		v.CreatedAt = types.NowMillis()
	}
	if err := v.Validate(0); err != nil {
		return 0, fault.Wrap(fault.KindProtocol, "invalid vector", err)
	}
	if dim := c.dims.get(v.DatabaseID); dim > 0 && len(v.Embedding) != dim {
		return 0, fault.Newf(fault.KindDimensionMismatch, "embedding length %d does not match database dimension %d", len(v.Embedding), dim)
	}

	route, err := c.router.RouteForWrite(v.ID)
	if err != nil {
		metrics.VectorOpsTotal.WithLabelValues("add", "unavailable").Inc()
		return 0, err
	}

	id, err := c.clients.Client(route.Primary).AddVector(ctx, v)
	if err != nil {
		c.observeShardError(route.Primary.ID, err)
		metrics.VectorOpsTotal.WithLabelValues("add", "error").Inc()
		return 0, err
	}
	c.monitor.ReportSuccess(route.Primary.ID)
	metrics.VectorOpsTotal.WithLabelValues("add", "ok").Inc()

	if route.Replica.ID != route.Primary.ID {
		c.scheduleReplicaAdd(*v, route.Primary.ID, *route.Replica)
	}

	return id, nil
}

// GetVector walks the candidate shards for a vector: primary, then the
// tagged replica, then every remaining shard in config order to recover
// keys stranded by a resharding gap. A hit off the primary schedules a
// read repair.
func (c *Coordinator) GetVector(ctx context.Context, databaseID string, id int64) (*types.Vector, error) {
	route, err := c.router.RouteForWrite(id)
	if err != nil {
		metrics.VectorOpsTotal.WithLabelValues("get", "unavailable").Inc()
		return nil, err
	}

	// Primary first
	v, err := c.clients.Client(route.Primary).GetVector(ctx, databaseID, id)
	if err == nil {
		c.monitor.ReportSuccess(route.Primary.ID)
		metrics.VectorOpsTotal.WithLabelValues("get", "ok").Inc()
		return v, nil
	}
	if !fault.Is(err, fault.KindNotFound) {
		c.observeShardError(route.Primary.ID, err)
		c.logger.Debug().Err(err).Str("shard_id", route.Primary.ID).Int64("vector_id", id).Msg("primary read failed, trying replica")
	}

	// Tagged replica copy
	if route.Replica.ID != route.Primary.ID {
		v, err = c.clients.Client(route.Replica).GetVectorReplica(ctx, databaseID, id, route.Primary.ID)
		if err == nil {
			c.monitor.ReportSuccess(route.Replica.ID)
			c.scheduleReadRepair(*v, route.Replica.ID, *route.Primary)
			metrics.VectorOpsTotal.WithLabelValues("get", "ok").Inc()
			return v, nil
		}
		if !fault.Is(err, fault.KindNotFound) {
			c.observeShardError(route.Replica.ID, err)
		}
	}

	// Remaining shards, stable order: keys can be stranded on an old
	// primary while a resharding is in flight.
	rest := c.router.Snapshot().AllShards()
	for i := range rest {
		shard := rest[i]
		if shard.ID == route.Primary.ID || shard.ID == route.Replica.ID || !shard.Readable() {
			continue
		}
		v, err = c.clients.Client(&shard).GetVector(ctx, databaseID, id)
		if err == nil {
			c.monitor.ReportSuccess(shard.ID)
			c.scheduleReadRepair(*v, shard.ID, *route.Primary)
			metrics.VectorOpsTotal.WithLabelValues("get", "ok").Inc()
			return v, nil
		}
		if !fault.Is(err, fault.KindNotFound) {
			c.observeShardError(shard.ID, err)
		}
	}

	metrics.VectorOpsTotal.WithLabelValues("get", "miss").Inc()
	return nil, fault.Newf(fault.KindNotFound, "vector %d not found in %s", id, databaseID)
}

// DeleteVector deletes best-effort across the same candidate list as
// GetVector. The first successful delete wins; a primary delete also
// schedules the replica delete.
func (c *Coordinator) DeleteVector(ctx context.Context, databaseID string, id int64) (bool, error) {
	route, err := c.router.RouteForWrite(id)
	if err != nil {
		metrics.VectorOpsTotal.WithLabelValues("delete", "unavailable").Inc()
		return false, err
	}

	deleted, err := c.clients.Client(route.Primary).DeleteVector(ctx, databaseID, id)
	if err != nil {
		c.observeShardError(route.Primary.ID, err)
	} else {
		c.monitor.ReportSuccess(route.Primary.ID)
	}
	if deleted {
		if route.Replica.ID != route.Primary.ID {
			c.scheduleReplicaDelete(databaseID, id, route.Primary.ID, *route.Replica)
		}
		metrics.VectorOpsTotal.WithLabelValues("delete", "ok").Inc()
		return true, nil
	}

	if route.Replica.ID != route.Primary.ID {
		deleted, err = c.clients.Client(route.Replica).DeleteVectorReplica(ctx, databaseID, id, route.Primary.ID)
		if err != nil {
			c.observeShardError(route.Replica.ID, err)
		} else if deleted {
			metrics.VectorOpsTotal.WithLabelValues("delete", "ok").Inc()
			return true, nil
		}
	}

	rest := c.router.Snapshot().AllShards()
	for i := range rest {
		shard := rest[i]
		if shard.ID == route.Primary.ID || shard.ID == route.Replica.ID || !shard.Readable() {
			continue
		}
		deleted, err = c.clients.Client(&shard).DeleteVector(ctx, databaseID, id)
		if err != nil {
			c.observeShardError(shard.ID, err)
			continue
		}
		if deleted {
			metrics.VectorOpsTotal.WithLabelValues("delete", "ok").Inc()
			return true, nil
		}
	}

	metrics.VectorOpsTotal.WithLabelValues("delete", "miss").Inc()
	return false, nil
}

// scheduleReplicaAdd enqueues the async replica write for a primary add
func (c *Coordinator) scheduleReplicaAdd(v types.Vector, primaryID string, replica types.Shard) {
	c.replicator.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ReplicaTimeout)
		defer cancel()

		if err := c.clients.Client(&replica).AddVectorReplica(ctx, &v, primaryID); err != nil {
			metrics.ReplicationTasksTotal.WithLabelValues("add", "error").Inc()
			c.logger.Warn().Err(err).
				Str("replica_shard", replica.ID).
				Str("primary_shard", primaryID).
				Int64("vector_id", v.ID).
				Msg("replica write failed, eventual inconsistency")
			return
		}
		metrics.ReplicationTasksTotal.WithLabelValues("add", "ok").Inc()
	})
}

// scheduleReplicaDelete enqueues the async replica delete after a
// successful primary delete
func (c *Coordinator) scheduleReplicaDelete(databaseID string, id int64, primaryID string, replica types.Shard) {
	c.replicator.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ReplicaTimeout)
		defer cancel()

		if _, err := c.clients.Client(&replica).DeleteVectorReplica(ctx, databaseID, id, primaryID); err != nil {
			metrics.ReplicationTasksTotal.WithLabelValues("delete", "error").Inc()
			c.logger.Warn().Err(err).
				Str("replica_shard", replica.ID).
				Int64("vector_id", id).
				Msg("replica delete failed, eventual inconsistency")
			return
		}
		metrics.ReplicationTasksTotal.WithLabelValues("delete", "ok").Inc()
	})
}

// scheduleReadRepair reconciles a record read off its expected primary by
// writing it back as a replica entry tagged with the shard it was read
// from.
func (c *Coordinator) scheduleReadRepair(v types.Vector, readFromID string, primary types.Shard) {
	metrics.ReadRepairsTotal.Inc()
	c.replicator.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ReplicaTimeout)
		defer cancel()

		if err := c.clients.Client(&primary).AddVectorReplica(ctx, &v, readFromID); err != nil {
			metrics.ReplicationTasksTotal.WithLabelValues("repair", "error").Inc()
			c.logger.Warn().Err(err).
				Str("primary_shard", primary.ID).
				Str("read_from", readFromID).
				Int64("vector_id", v.ID).
				Msg("read repair failed")
			return
		}
		metrics.ReplicationTasksTotal.WithLabelValues("repair", "ok").Inc()
	})
}

// observeShardError feeds transport-level failures into the health
// monitor. Application errors like NotFound do not count against a shard.
func (c *Coordinator) observeShardError(shardID string, err error) {
	switch fault.KindOf(err) {
	case fault.KindUnavailable, fault.KindTimeout:
		c.monitor.ReportFailure(shardID)
	}
}
