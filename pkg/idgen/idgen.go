package idgen

import (
	"math"
	"math/rand"
)

const (
	// MinID is the smallest id the generator hands out. Keeping ids above
	// 2^32 leaves the low range free for caller-assigned ids.
	MinID int64 = 1 << 32

	// MaxID is the largest id the generator hands out
	MaxID int64 = math.MaxInt64
)

// Generator produces positive 64-bit vector ids. Ids are drawn uniformly
// from [MinID, MaxID] so their hashes spread evenly over the ring; the
// generator is deliberately not monotonic, since monotone ids would
// concentrate on one shard.
type Generator struct{}

// New creates a new id generator
func New() *Generator {
	return &Generator{}
}

// Next returns a new vector id. Safe for concurrent use.
func (g *Generator) Next() int64 {
	// rand.Int63n is backed by the runtime-seeded global source, which is
	// safe for concurrent callers.
	return MinID + rand.Int63n(MaxID-MinID+1)
}
