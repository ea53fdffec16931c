package coordinator

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/types"
)

// dimensionCache remembers database dimensions so dimension mismatches can
// be rejected before any shard RPC. Filled by CreateDatabase and lazily by
// ListDatabases lookups.
type dimensionCache struct {
	mu   sync.RWMutex
	dims map[string]int
}

func (d *dimensionCache) get(databaseID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dims[databaseID]
}

func (d *dimensionCache) put(databaseID string, dimension int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dims == nil {
		d.dims = make(map[string]int)
	}
	d.dims[databaseID] = dimension
}

func (d *dimensionCache) forget(databaseID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.dims, databaseID)
}

// checkDimension validates a probe length against the database dimension.
// An unknown dimension is resolved through one catalog lookup and cached;
// if the lookup fails the check is skipped and the shards enforce it.
func (c *Coordinator) checkDimension(ctx context.Context, databaseID string, length int) error {
	dim := c.dims.get(databaseID)
	if dim == 0 {
		dbs, err := c.ListDatabases(ctx)
		if err != nil {
			return nil
		}
		for _, db := range dbs {
			c.dims.put(db.ID, db.Dimension)
			if db.ID == databaseID {
				dim = db.Dimension
			}
		}
	}
	if dim > 0 && length != dim {
		return fault.Newf(fault.KindDimensionMismatch, "probe length %d does not match database dimension %d", length, dim)
	}
	return nil
}

// CreateDatabase creates the database on every writable shard. The call
// succeeds when at least one shard accepts; AlreadyExists on a shard is
// idempotent, a dimension conflict surfaces as Conflict.
func (c *Coordinator) CreateDatabase(ctx context.Context, db *types.Database) error {
	if db.ID == "" {
		return fault.New(fault.KindProtocol, "database id must not be empty")
	}
	if db.Dimension <= 0 {
		return fault.New(fault.KindProtocol, "database dimension must be positive")
	}
	if db.CreatedAt == 0 {
		db.CreatedAt = types.NowMillis()
	}

	shards := c.writableShards()
	if len(shards) == 0 {
		return fault.New(fault.KindUnavailable, "no writable shards")
	}

	var (
		mu        sync.Mutex
		accepted  int
		conflict  error
		firstFail error
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := range shards {
		shard := shards[i]
		g.Go(func() error {
			err := c.clients.Client(&shard).CreateDatabase(gctx, db)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil, fault.Is(err, fault.KindConflict) && isAlreadyExists(err):
				accepted++
			case fault.Is(err, fault.KindConflict):
				conflict = err
			default:
				c.observeShardError(shard.ID, err)
				if firstFail == nil {
					firstFail = err
				}
				c.logger.Warn().Err(err).Str("shard_id", shard.ID).Str("database_id", db.ID).Msg("create database failed on shard")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fault.Wrap(fault.KindTimeout, "create database interrupted", err)
	}

	if conflict != nil {
		return conflict
	}
	if accepted == 0 {
		if firstFail != nil {
			return firstFail
		}
		return fault.New(fault.KindUnavailable, "no shard accepted the database")
	}

	c.dims.put(db.ID, db.Dimension)
	c.logger.Info().Str("database_id", db.ID).Int("dimension", db.Dimension).Int("shards", accepted).Msg("database created")
	return nil
}

// isAlreadyExists distinguishes a same-definition re-create from a
// dimension conflict. Shards report both as Conflict; a dimension clash
// carries a mismatch mention in the message.
func isAlreadyExists(err error) bool {
	return fault.Is(err, fault.KindConflict) && !strings.Contains(err.Error(), "mismatch")
}

// DropDatabase removes the database from every writable shard. NotFound
// from a shard is idempotent success.
func (c *Coordinator) DropDatabase(ctx context.Context, databaseID string) error {
	shards := c.writableShards()
	if len(shards) == 0 {
		return fault.New(fault.KindUnavailable, "no writable shards")
	}

	var (
		mu        sync.Mutex
		firstFail error
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := range shards {
		shard := shards[i]
		g.Go(func() error {
			err := c.clients.Client(&shard).DropDatabase(gctx, databaseID)
			if err != nil && !fault.Is(err, fault.KindNotFound) {
				c.observeShardError(shard.ID, err)
				mu.Lock()
				if firstFail == nil {
					firstFail = err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fault.Wrap(fault.KindTimeout, "drop database interrupted", err)
	}
	if firstFail != nil {
		return firstFail
	}

	c.dims.forget(databaseID)
	c.logger.Info().Str("database_id", databaseID).Msg("database dropped")
	return nil
}

// ListDatabases reads the catalog from the first reachable read shard.
// Every shard carries the full catalog, so one answer suffices.
func (c *Coordinator) ListDatabases(ctx context.Context) ([]types.Database, error) {
	shards := c.router.ReadableShards()
	if len(shards) == 0 {
		return nil, fault.New(fault.KindUnavailable, "no readable shards")
	}

	available, _ := c.monitor.Partition(shards)
	if len(available) == 0 {
		available = shards
	}

	var lastErr error
	for i := range available {
		dbs, err := c.clients.Client(&available[i]).ListDatabases(ctx)
		if err != nil {
			c.observeShardError(available[i].ID, err)
			lastErr = err
			continue
		}
		c.monitor.ReportSuccess(available[i].ID)
		return dbs, nil
	}
	return nil, fault.Wrap(fault.KindUnavailable, "no shard answered the catalog read", lastErr)
}

// writableShards returns the shards that accept writes in the current
// snapshot, config order
func (c *Coordinator) writableShards() []types.Shard {
	cfg := c.router.Snapshot().Config
	out := make([]types.Shard, 0, len(cfg.Shards))
	for _, s := range cfg.Shards {
		if s.Writable() {
			out = append(out, s)
		}
	}
	return out
}
