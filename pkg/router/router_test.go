package router

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverdb/quiver/pkg/cluster"
	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/hashring"
	"github.com/quiverdb/quiver/pkg/types"
)

type staticSnapshots struct {
	snap *cluster.Snapshot
}

func (s *staticSnapshots) Snapshot() *cluster.Snapshot {
	return s.snap
}

func snapshotOf(shards ...types.Shard) SnapshotSource {
	return &staticSnapshots{snap: cluster.BuildSnapshot(&types.ClusterConfig{Shards: shards})}
}

func active(id string, key uint64) types.Shard {
	return types.Shard{ID: id, BaseURL: "http://" + id, HashKey: key, Status: types.ShardStatusActive}
}

func TestRouteForWriteDeterministic(t *testing.T) {
	r := New(snapshotOf(
		active("shard1", 0),
		active("shard2", 4611686018427387903),
	))

	first, err := r.RouteForWrite(100)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		route, err := r.RouteForWrite(100)
		require.NoError(t, err)
		assert.Equal(t, first.Primary.ID, route.Primary.ID)
		assert.Equal(t, first.Replica.ID, route.Replica.ID)
	}
}

func TestRouteReplicaIsRingSuccessor(t *testing.T) {
	src := snapshotOf(
		active("shard-a", 100),
		active("shard-b", 200),
		active("shard-c", 300),
	)
	r := New(src)
	snap := src.Snapshot()

	// Check many ids: the replica must always be the write-ring successor
	// of the primary.
	for id := int64(1); id <= 200; id++ {
		route, err := r.RouteForWrite(id)
		require.NoError(t, err)

		expected := snap.WriteRing.Successor(route.Primary.ID)
		require.NotNil(t, expected)
		assert.Equal(t, expected.ID, route.Replica.ID)
		assert.NotEqual(t, route.Primary.ID, route.Replica.ID)
	}
}

func TestRouteSingleShardReplicaEqualsPrimary(t *testing.T) {
	r := New(snapshotOf(active("only", 500)))

	route, err := r.RouteForWrite(42)
	require.NoError(t, err)
	assert.Equal(t, "only", route.Primary.ID)
	assert.Equal(t, "only", route.Replica.ID)
}

func TestRouteEmptyClusterUnavailable(t *testing.T) {
	r := New(snapshotOf())

	_, err := r.RouteForWrite(42)
	assert.True(t, fault.Is(err, fault.KindUnavailable))
}

func TestRouteUsesWriteRingOnly(t *testing.T) {
	// A DRAINING shard is readable but must never be selected as primary.
	draining := types.Shard{ID: "shard-d", BaseURL: "http://shard-d", HashKey: 0, Status: types.ShardStatusDraining}
	r := New(snapshotOf(draining, active("shard-a", math.MaxUint64/2)))

	for id := int64(1); id <= 100; id++ {
		route, err := r.RouteForWrite(id)
		require.NoError(t, err)
		assert.Equal(t, "shard-a", route.Primary.ID)
	}

	assert.Equal(t, []string{"shard-d", "shard-a"}, shardIDs(r.ReadableShards()))
}

func TestHashMatchesKeyHash(t *testing.T) {
	src := snapshotOf(active("a", 1<<32), active("b", 1<<48))
	r := New(src)

	route, err := r.RouteForWrite(12345)
	require.NoError(t, err)

	expected, err := src.Snapshot().WriteRing.Locate(hashring.KeyHash(12345))
	require.NoError(t, err)
	assert.Equal(t, expected.ID, route.Primary.ID)
}

func shardIDs(shards []types.Shard) []string {
	ids := make([]string, 0, len(shards))
	for _, s := range shards {
		ids = append(ids, s.ID)
	}
	return ids
}
