package operator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quiverdb/quiver/pkg/cluster"
	"github.com/quiverdb/quiver/pkg/events"
	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/log"
	"github.com/quiverdb/quiver/pkg/types"
)

// ConfigStore persists cluster configs and serves the current snapshot.
// Satisfied by cluster.Store.
type ConfigStore interface {
	Snapshot() *cluster.Snapshot
	Update(ctx context.Context, cfg *types.ClusterConfig) error
}

// MigrationEngine moves data after a topology change. Satisfied by
// resharder.Resharder.
type MigrationEngine interface {
	Apply(ctx context.Context, prev, next *types.ClusterConfig) error
}

// Operator is the control surface behind config changes: it persists the
// new topology and drives the data migration that makes it true. One
// migration runs at a time; a config change submitted while one is in
// flight is rejected so overlapping moves cannot race.
type Operator struct {
	store      ConfigStore
	engine     MigrationEngine
	background bool
	logger     zerolog.Logger

	// Events, if set, receives config.applied and migration lifecycle
	Events *events.Broker

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an operator. With background set, Apply returns as soon as
// the config is persisted and the migration continues behind it.
func New(store ConfigStore, engine MigrationEngine, background bool) *Operator {
	return &Operator{
		store:      store,
		engine:     engine,
		background: background,
		logger:     log.WithComponent("operator"),
	}
}

// Apply validates and persists a new cluster config, then migrates data
// onto any added shards. The config write is the commit point: routing
// flips to the new topology immediately and the migration catches the
// data up behind it.
func (o *Operator) Apply(ctx context.Context, next *types.ClusterConfig) error {
	if err := next.Validate(); err != nil {
		return fault.Wrap(fault.KindInvalidConfig, "rejected cluster config", err)
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fault.New(fault.KindConflict, "a data migration is already in flight")
	}
	o.running = true
	o.mu.Unlock()

	release := func() {
		o.mu.Lock()
		o.running = false
		o.cancel = nil
		o.mu.Unlock()
	}

	prev := o.store.Snapshot().Config
	if err := o.store.Update(ctx, next); err != nil {
		release()
		return err
	}
	o.logger.Info().
		Int("prev_shards", len(prev.Shards)).
		Int("next_shards", len(next.Shards)).
		Msg("cluster config persisted")
	o.Events.Publish(&events.Event{
		Type:    events.EventConfigApplied,
		Message: fmt.Sprintf("cluster config applied with %d shards", len(next.Shards)),
	})

	if o.background {
		migCtx, cancel := context.WithCancel(context.Background())
		o.mu.Lock()
		o.cancel = cancel
		o.mu.Unlock()

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			defer release()
			if err := o.migrate(migCtx, prev, next); err != nil {
				o.logger.Error().Err(err).Msg("background data migration failed, rerun the config apply to resume")
			}
		}()
		return nil
	}

	defer release()
	if err := o.migrate(ctx, prev, next); err != nil {
		return fault.Wrap(fault.KindInternal, "config persisted but data migration failed, reapply to resume", err)
	}
	return nil
}

// migrate runs the engine and wraps it in lifecycle events
func (o *Operator) migrate(ctx context.Context, prev, next *types.ClusterConfig) error {
	o.Events.Publish(&events.Event{Type: events.EventMigrationStarted, Message: "data migration started"})
	if err := o.engine.Apply(ctx, prev, next); err != nil {
		o.Events.Publish(&events.Event{
			Type:     events.EventMigrationFailed,
			Message:  "data migration failed",
			Metadata: map[string]string{"error": err.Error()},
		})
		return err
	}
	o.Events.Publish(&events.Event{Type: events.EventMigrationCompleted, Message: "data migration completed"})
	return nil
}

// CurrentConfig returns the config of the store's current snapshot
func (o *Operator) CurrentConfig() *types.ClusterConfig {
	return o.store.Snapshot().Config
}

// Stop cancels any background migration and waits for it to reach a batch
// boundary
func (o *Operator) Stop() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}
