package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/metrics"
	"github.com/quiverdb/quiver/pkg/types"
)

// deadlineMargin is shaved off the caller deadline so the merge and
// response encoding still fit inside it
const deadlineMargin = 100 * time.Millisecond

// Search fans a similarity query out to every readable shard and merges
// the partial top-k lists. Shards the monitor considers unavailable are
// covered by querying their replica holders instead. Partial failures
// shrink the result set but do not fail the search.
func (c *Coordinator) Search(ctx context.Context, databaseID string, probe []float32, k int) ([]types.SearchResult, error) {
	if k <= 0 {
		return nil, fault.New(fault.KindProtocol, "k must be positive")
	}
	if err := c.checkDimension(ctx, databaseID, len(probe)); err != nil {
		return nil, err
	}

	snap := c.router.Snapshot()
	shards := snap.ReadRing.Shards()
	if len(shards) == 0 {
		return nil, fault.New(fault.KindUnavailable, "no readable shards")
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SearchDuration)

	searchCtx, cancel := c.searchContext(ctx)
	defer cancel()

	available, unavailable := c.monitor.Partition(shards)
	availableSet := make(map[string]bool, len(available))
	for _, s := range available {
		availableSet[s.ID] = true
	}

	var (
		mu      sync.Mutex
		partial []types.SearchResult
	)
	collect := func(results []types.SearchResult) {
		mu.Lock()
		partial = append(partial, results...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(searchCtx)

	for i := range available {
		shard := available[i]
		g.Go(func() error {
			results, err := c.clients.Client(&shard).Search(gctx, databaseID, probe, k)
			if err != nil {
				c.observeShardError(shard.ID, err)
				metrics.SearchShardMisses.Inc()
				c.logger.Warn().Err(err).Str("shard_id", shard.ID).Msg("shard search failed, partial results")
				return nil
			}
			collect(results)
			return nil
		})
	}

	// Cover down shards through the replica copies their successor holds
	for i := range unavailable {
		down := unavailable[i]
		holderID, ok := snap.Ownership.ReplicaLocation(down.ID)
		if !ok || holderID == down.ID || !availableSet[holderID] {
			metrics.SearchShardMisses.Inc()
			c.logger.Warn().Str("shard_id", down.ID).Msg("shard down with no reachable replica, partial results")
			continue
		}
		holder := snap.Config.ShardByID(holderID)
		if holder == nil {
			metrics.SearchShardMisses.Inc()
			continue
		}
		g.Go(func() error {
			results, err := c.clients.Client(holder).SearchReplicas(gctx, databaseID, probe, k, down.ID)
			if err != nil {
				c.observeShardError(holder.ID, err)
				metrics.SearchShardMisses.Inc()
				c.logger.Warn().Err(err).
					Str("shard_id", down.ID).
					Str("replica_shard", holder.ID).
					Msg("replica search failed, partial results")
				return nil
			}
			collect(results)
			return nil
		})
	}

	// Shard errors are absorbed above, so Wait only propagates ctx errors
	if err := g.Wait(); err != nil {
		return nil, fault.Wrap(fault.KindTimeout, "search fan-out interrupted", err)
	}

	return mergeTopK(partial, k), nil
}

// searchContext derives the shared fan-out deadline: the caller deadline
// minus a margin when one is set, the configured timeout otherwise
func (c *Coordinator) searchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining > 2*deadlineMargin {
			return context.WithDeadline(ctx, deadline.Add(-deadlineMargin))
		}
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.SearchTimeout)
}

// mergeTopK deduplicates by vector id keeping the smallest distance, then
// orders by ascending distance with id as tiebreaker and truncates to k
func mergeTopK(results []types.SearchResult, k int) []types.SearchResult {
	best := make(map[int64]types.SearchResult, len(results))
	for _, r := range results {
		cur, seen := best[r.Vector.ID]
		if !seen || r.Distance < cur.Distance {
			best[r.Vector.ID] = r
		}
	}

	merged := make([]types.SearchResult, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Distance != merged[j].Distance {
			return merged[i].Distance < merged[j].Distance
		}
		return merged[i].Vector.ID < merged[j].Vector.ID
	})

	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}
