package resharder

import (
	"github.com/quiverdb/quiver/pkg/hashring"
	"github.com/quiverdb/quiver/pkg/types"
)

// Pair is one migration stream: the arc of the key space a newly added
// shard takes over, and the old shard that currently holds it.
type Pair struct {
	Source types.Shard
	Target types.Shard

	// (Start, End] is the arc moving to Target, with wrap past the top of
	// the key space
	Start uint64
	End   uint64

	// OldReplicaHolder carries Source's replica copies before the change,
	// NewReplicaHolder carries Target's after it. Nil when the respective
	// ring is too small to replicate.
	OldReplicaHolder *types.Shard
	NewReplicaHolder *types.Shard
}

// planPairs derives the migration streams from a config change. A shard is
// a migration target when the previous config lacked it, or when it is
// still marked NEW: an interrupted migration leaves the shard NEW in the
// persisted config, and re-applying that config must resume moving its
// arc. NEW shards flip ACTIVE through a follow-up config change once their
// arc has drained. Removed shards produce no pairs: draining a shard out
// is handled by the DRAINING status, which keeps it readable while writes
// land elsewhere.
func planPairs(prev, next *types.ClusterConfig) []Pair {
	existing := make(map[string]bool, len(prev.Shards))
	for _, s := range prev.Shards {
		existing[s.ID] = true
	}

	targets := make(map[string]bool)
	for _, s := range next.Shards {
		if s.Writable() && (!existing[s.ID] || s.Status == types.ShardStatusNew) {
			targets[s.ID] = true
		}
	}
	if len(targets) == 0 {
		return nil
	}

	// The source ring is the topology before the change: the previously
	// writable shards minus the targets themselves, so a resumed run
	// locates the arc's old owner instead of the half-filled target.
	var oldShards []types.Shard
	for _, s := range writable(prev) {
		if !targets[s.ID] {
			oldShards = append(oldShards, s)
		}
	}
	oldRing := hashring.New(oldShards)
	newRing := hashring.New(writable(next))
	if oldRing.Len() == 0 || newRing.Len() < 2 {
		// Bootstrap or single-shard target: nothing to move
		return nil
	}

	var pairs []Pair
	for _, target := range next.Shards {
		if !targets[target.ID] {
			continue
		}
		pred := newRing.Predecessor(target.ID)
		if pred == nil || pred.ID == target.ID {
			continue
		}

		// The first hash past the predecessor identifies the old owner of
		// the whole arc. uint64 wrap takes MaxUint64+1 to 0.
		source, err := oldRing.Locate(pred.HashKey + 1)
		if err != nil {
			continue
		}

		p := Pair{
			Source: *source,
			Target: target,
			Start:  pred.HashKey,
			End:    target.HashKey,
		}
		if h := oldRing.Successor(source.ID); h != nil && h.ID != source.ID {
			p.OldReplicaHolder = h
		}
		if h := newRing.Successor(target.ID); h != nil && h.ID != target.ID {
			p.NewReplicaHolder = h
		}
		pairs = append(pairs, p)
	}
	return pairs
}

func writable(cfg *types.ClusterConfig) []types.Shard {
	out := make([]types.Shard, 0, len(cfg.Shards))
	for _, s := range cfg.Shards {
		if s.Writable() {
			out = append(out, s)
		}
	}
	return out
}
