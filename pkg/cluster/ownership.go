package cluster

import (
	"github.com/quiverdb/quiver/pkg/hashring"
)

// Ownership is the primary-to-replica relation derived from a ring. For
// each ring member s_i, the replica of s_i lives on s_{i+1} (wrapping), and
// s_{i+1} holds replicas sourced from exactly s_i. On a single-shard ring a
// shard replicates to itself and callers skip replica I/O.
type Ownership struct {
	replicaOf map[string]string
	sourcesOf map[string][]string
}

// NewOwnership derives the ownership map from the given ring
func NewOwnership(ring *hashring.Ring) *Ownership {
	o := &Ownership{
		replicaOf: make(map[string]string, ring.Len()),
		sourcesOf: make(map[string][]string, ring.Len()),
	}

	shards := ring.Shards()
	n := len(shards)
	for i := range shards {
		next := shards[(i+1)%n].ID
		o.replicaOf[shards[i].ID] = next
		o.sourcesOf[next] = append(o.sourcesOf[next], shards[i].ID)
	}

	return o
}

// ReplicaLocation returns the shard id holding replicas for the given
// primary. ok is false when the shard is not on the ring.
func (o *Ownership) ReplicaLocation(shardID string) (string, bool) {
	loc, ok := o.replicaOf[shardID]
	return loc, ok
}

// ReplicaSources returns the shard ids whose replicas the given shard holds
func (o *Ownership) ReplicaSources(shardID string) []string {
	return o.sourcesOf[shardID]
}
