package cluster

import (
	"github.com/quiverdb/quiver/pkg/hashring"
	"github.com/quiverdb/quiver/pkg/types"
)

// Snapshot is an immutable, internally consistent view of the cluster:
// the config it was built from plus every derived structure. A Snapshot is
// produced whole by one refresh and published atomically, so readers never
// observe a ring that disagrees with its ownership map.
type Snapshot struct {
	Config    *types.ClusterConfig
	ReadRing  *hashring.Ring
	WriteRing *hashring.Ring
	Ownership *Ownership
}

// BuildSnapshot derives rings and ownership from a config. The read ring
// carries ACTIVE and DRAINING shards, the write ring NEW and ACTIVE ones.
// Ownership follows the write ring: that is the ring replicas were placed
// against when the vectors were written.
func BuildSnapshot(cfg *types.ClusterConfig) *Snapshot {
	var readable, writable []types.Shard
	for _, s := range cfg.Shards {
		if s.Readable() {
			readable = append(readable, s)
		}
		if s.Writable() {
			writable = append(writable, s)
		}
	}

	writeRing := hashring.New(writable)
	return &Snapshot{
		Config:    cfg,
		ReadRing:  hashring.New(readable),
		WriteRing: writeRing,
		Ownership: NewOwnership(writeRing),
	}
}

// EmptySnapshot returns the snapshot for a cluster with no shards
func EmptySnapshot() *Snapshot {
	return BuildSnapshot(&types.ClusterConfig{})
}

// ActiveShards returns the descriptors of all ACTIVE shards in config order
func (s *Snapshot) ActiveShards() []types.Shard {
	var active []types.Shard
	for _, sh := range s.Config.Shards {
		if sh.Status == types.ShardStatusActive {
			active = append(active, sh)
		}
	}
	return active
}

// AllShards returns every shard in the config, whatever its status, in a
// stable order. Used by the coordinator's candidate walk to recover keys
// stranded on old primaries.
func (s *Snapshot) AllShards() []types.Shard {
	return s.Config.Shards
}
