package operator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverdb/quiver/pkg/cluster"
	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/types"
)

type fakeStore struct {
	mu      sync.Mutex
	snap    *cluster.Snapshot
	updates int
	err     error
}

func newFakeStore(cfg *types.ClusterConfig) *fakeStore {
	return &fakeStore{snap: cluster.BuildSnapshot(cfg)}
}

func (f *fakeStore) Snapshot() *cluster.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeStore) Update(_ context.Context, cfg *types.ClusterConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates++
	f.snap = cluster.BuildSnapshot(cfg)
	return nil
}

type fakeEngine struct {
	mu      sync.Mutex
	calls   int
	prev    *types.ClusterConfig
	next    *types.ClusterConfig
	err     error
	blockCh chan struct{} // when set, Apply blocks until closed
}

func (f *fakeEngine) Apply(ctx context.Context, prev, next *types.ClusterConfig) error {
	f.mu.Lock()
	f.calls++
	f.prev = prev
	f.next = next
	block := f.blockCh
	err := f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func shardDef(id string, key uint64) types.Shard {
	return types.Shard{ID: id, BaseURL: "http://" + id, HashKey: key, Status: types.ShardStatusActive}
}

func TestApplyPersistsThenMigrates(t *testing.T) {
	prev := &types.ClusterConfig{Shards: []types.Shard{shardDef("shard-a", 100)}}
	next := &types.ClusterConfig{Shards: []types.Shard{shardDef("shard-a", 100), shardDef("shard-b", 200)}}

	store := newFakeStore(prev)
	engine := &fakeEngine{}
	op := New(store, engine, false)

	require.NoError(t, op.Apply(context.Background(), next))

	assert.Equal(t, 1, store.updates)
	assert.Equal(t, 1, engine.calls)
	assert.Len(t, engine.prev.Shards, 1)
	assert.Len(t, engine.next.Shards, 2)
	assert.Len(t, op.CurrentConfig().Shards, 2)
}

func TestApplyRejectsInvalidConfig(t *testing.T) {
	store := newFakeStore(&types.ClusterConfig{})
	engine := &fakeEngine{}
	op := New(store, engine, false)

	bad := &types.ClusterConfig{Shards: []types.Shard{
		shardDef("dup", 1),
		shardDef("dup", 2),
	}}
	err := op.Apply(context.Background(), bad)
	assert.True(t, fault.Is(err, fault.KindInvalidConfig))
	assert.Zero(t, store.updates, "invalid config must not be persisted")
	assert.Zero(t, engine.calls)
}

func TestApplyDoesNotMigrateWhenPersistFails(t *testing.T) {
	store := newFakeStore(&types.ClusterConfig{})
	store.err = fault.New(fault.KindUnavailable, "etcd down")
	engine := &fakeEngine{}
	op := New(store, engine, false)

	err := op.Apply(context.Background(), &types.ClusterConfig{Shards: []types.Shard{shardDef("shard-a", 1)}})
	assert.True(t, fault.Is(err, fault.KindUnavailable))
	assert.Zero(t, engine.calls)

	// The operator is not left locked by the failed attempt
	store.err = nil
	require.NoError(t, op.Apply(context.Background(), &types.ClusterConfig{Shards: []types.Shard{shardDef("shard-a", 1)}}))
}

func TestApplyRejectsOverlappingMigration(t *testing.T) {
	store := newFakeStore(&types.ClusterConfig{Shards: []types.Shard{shardDef("shard-a", 100)}})
	engine := &fakeEngine{blockCh: make(chan struct{})}
	op := New(store, engine, true)

	next := &types.ClusterConfig{Shards: []types.Shard{shardDef("shard-a", 100), shardDef("shard-b", 200)}}
	require.NoError(t, op.Apply(context.Background(), next), "background apply returns once persisted")

	err := op.Apply(context.Background(), next)
	assert.True(t, fault.Is(err, fault.KindConflict))

	close(engine.blockCh)
	op.Stop()

	// With the migration done, the next apply is accepted again
	require.NoError(t, op.Apply(context.Background(), next))
	op.Stop()
}

func TestStopCancelsBackgroundMigration(t *testing.T) {
	store := newFakeStore(&types.ClusterConfig{Shards: []types.Shard{shardDef("shard-a", 100)}})
	engine := &fakeEngine{blockCh: make(chan struct{})}
	op := New(store, engine, true)

	next := &types.ClusterConfig{Shards: []types.Shard{shardDef("shard-a", 100), shardDef("shard-b", 200)}}
	require.NoError(t, op.Apply(context.Background(), next))

	done := make(chan struct{})
	go func() {
		op.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop must cancel the in-flight migration")
	}
	assert.Equal(t, 1, engine.calls)
}

func TestSyncApplySurfacesMigrationFailure(t *testing.T) {
	store := newFakeStore(&types.ClusterConfig{Shards: []types.Shard{shardDef("shard-a", 100)}})
	engine := &fakeEngine{err: fault.New(fault.KindUnavailable, "source shard down")}
	op := New(store, engine, false)

	next := &types.ClusterConfig{Shards: []types.Shard{shardDef("shard-a", 100), shardDef("shard-b", 200)}}
	err := op.Apply(context.Background(), next)
	require.Error(t, err)

	// The config write already happened; the caller is told to reapply
	assert.Equal(t, 1, store.updates)
	assert.Len(t, op.CurrentConfig().Shards, 2)
}
