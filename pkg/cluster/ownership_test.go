package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverdb/quiver/pkg/hashring"
	"github.com/quiverdb/quiver/pkg/types"
)

func ringOf(ids ...string) *hashring.Ring {
	shards := make([]types.Shard, len(ids))
	for i, id := range ids {
		shards[i] = types.Shard{ID: id, BaseURL: "http://" + id, HashKey: uint64(i+1) * 100, Status: types.ShardStatusActive}
	}
	return hashring.New(shards)
}

func TestReplicaLocationCircular(t *testing.T) {
	o := NewOwnership(ringOf("shard-a", "shard-b", "shard-c"))

	tests := []struct {
		shard   string
		replica string
	}{
		{"shard-a", "shard-b"},
		{"shard-b", "shard-c"},
		{"shard-c", "shard-a"},
	}
	for _, tt := range tests {
		loc, ok := o.ReplicaLocation(tt.shard)
		require.True(t, ok)
		assert.Equal(t, tt.replica, loc)
	}

	_, ok := o.ReplicaLocation("not-a-shard")
	assert.False(t, ok)
}

func TestReplicaSourcesInverse(t *testing.T) {
	// For every shard s, replica_sources(replica_location(s)) contains s.
	o := NewOwnership(ringOf("shard-a", "shard-b", "shard-c", "shard-d"))

	for _, id := range []string{"shard-a", "shard-b", "shard-c", "shard-d"} {
		loc, ok := o.ReplicaLocation(id)
		require.True(t, ok)
		assert.Contains(t, o.ReplicaSources(loc), id)
	}
}

func TestSingleShardReplicatesToItself(t *testing.T) {
	o := NewOwnership(ringOf("only"))

	loc, ok := o.ReplicaLocation("only")
	require.True(t, ok)
	assert.Equal(t, "only", loc)
	assert.Equal(t, []string{"only"}, o.ReplicaSources("only"))
}
