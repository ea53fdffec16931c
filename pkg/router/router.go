package router

import (
	"github.com/quiverdb/quiver/pkg/cluster"
	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/hashring"
	"github.com/quiverdb/quiver/pkg/types"
)

// SnapshotSource supplies the current cluster snapshot. Satisfied by
// cluster.Store.
type SnapshotSource interface {
	Snapshot() *cluster.Snapshot
}

// Router maps vector ids onto shards using the current write ring and
// ownership map. Stateless; every call pins one snapshot so primary and
// replica always come from the same view.
type Router struct {
	snapshots SnapshotSource
}

// New creates a router over the given snapshot source
func New(snapshots SnapshotSource) *Router {
	return &Router{snapshots: snapshots}
}

// Route is a resolved write destination. Replica equals Primary on a
// single-shard ring; callers skip replica I/O in that case.
type Route struct {
	Primary *types.Shard
	Replica *types.Shard
}

// RouteForWrite resolves the primary and replica shards for a vector id
func (r *Router) RouteForWrite(id int64) (*Route, error) {
	snap := r.snapshots.Snapshot()

	primary, err := snap.WriteRing.Locate(hashring.KeyHash(id))
	if err != nil {
		return nil, fault.Wrap(fault.KindUnavailable, "no writable shards", err)
	}

	route := &Route{Primary: primary, Replica: primary}
	if replicaID, ok := snap.Ownership.ReplicaLocation(primary.ID); ok {
		if replica := snap.Config.ShardByID(replicaID); replica != nil {
			route.Replica = replica
		}
	}
	return route, nil
}

// ReadableShards returns the read-ring shards of the current snapshot
func (r *Router) ReadableShards() []types.Shard {
	return r.snapshots.Snapshot().ReadRing.Shards()
}

// Snapshot exposes the pinned cluster view for callers that need the
// ownership map alongside the rings
func (r *Router) Snapshot() *cluster.Snapshot {
	return r.snapshots.Snapshot()
}
