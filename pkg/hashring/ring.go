package hashring

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/quiverdb/quiver/pkg/log"
	"github.com/quiverdb/quiver/pkg/types"
)

// ErrEmptyRing is returned by Locate on a ring with no shards
var ErrEmptyRing = errors.New("hashring: empty ring")

// Ring is an ordered view of shards by hash key with wrap-around lookup.
// A Ring is immutable once built and safe for concurrent use.
type Ring struct {
	shards []types.Shard // sorted by (HashKey, ID)
}

// New builds a ring from the given shard descriptors. Shards with identical
// hash keys are resolved in favor of the lexicographically smaller shard id;
// the loser is logged and dropped from the ring.
func New(shards []types.Shard) *Ring {
	sorted := make([]types.Shard, len(shards))
	copy(sorted, shards)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].HashKey != sorted[j].HashKey {
			return sorted[i].HashKey < sorted[j].HashKey
		}
		return sorted[i].ID < sorted[j].ID
	})

	logger := log.WithComponent("hashring")
	deduped := sorted[:0]
	for i := range sorted {
		if i > 0 && sorted[i].HashKey == sorted[i-1].HashKey {
			logger.Warn().
				Str("shard_id", sorted[i].ID).
				Str("winner", deduped[len(deduped)-1].ID).
				Uint64("hash_key", sorted[i].HashKey).
				Msg("duplicate hash key, shard ignored")
			continue
		}
		deduped = append(deduped, sorted[i])
	}

	return &Ring{shards: deduped}
}

// Len returns the number of shards on the ring
func (r *Ring) Len() int {
	return len(r.shards)
}

// Shards returns the ring members in ring order. Callers must not mutate
// the returned slice.
func (r *Ring) Shards() []types.Shard {
	return r.shards
}

// Locate returns the shard owning the given hash: the first shard whose
// hash key is >= h, wrapping to the first shard past the top of the key space.
func (r *Ring) Locate(h uint64) (*types.Shard, error) {
	if len(r.shards) == 0 {
		return nil, ErrEmptyRing
	}
	i := sort.Search(len(r.shards), func(i int) bool {
		return r.shards[i].HashKey >= h
	})
	if i == len(r.shards) {
		i = 0
	}
	return &r.shards[i], nil
}

// Successor returns the shard immediately following the shard with the
// given id in ring order, wrapping at the end. On a single-shard ring the
// shard is its own successor. Returns nil if the id is not on the ring.
func (r *Ring) Successor(shardID string) *types.Shard {
	for i := range r.shards {
		if r.shards[i].ID == shardID {
			return &r.shards[(i+1)%len(r.shards)]
		}
	}
	return nil
}

// Predecessor returns the shard immediately preceding the shard with the
// given id in ring order, wrapping at the start. Returns nil if the id is
// not on the ring.
func (r *Ring) Predecessor(shardID string) *types.Shard {
	for i := range r.shards {
		if r.shards[i].ID == shardID {
			return &r.shards[(i-1+len(r.shards))%len(r.shards)]
		}
	}
	return nil
}

// KeyHash maps a vector id to its ring position. The id is serialized
// big-endian before hashing so the result is identical across processes
// and architectures.
func KeyHash(id int64) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return xxhash.Sum64(buf[:])
}

// Between reports whether h falls in the half-open arc (start, end] on the
// ring, handling the wrap past the top of the key space.
func Between(h, start, end uint64) bool {
	if start < end {
		return h > start && h <= end
	}
	return h > start || h <= end
}
