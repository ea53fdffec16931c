package types

import (
	"fmt"
	"time"
)

// Vector is a single embedding record. Vectors are immutable once written;
// an upsert with the same ID replaces the record atomically on the shard.
type Vector struct {
	ID           int64     `json:"id"`
	Embedding    []float32 `json:"embedding"`
	OriginalData []byte    `json:"originalData,omitempty"`
	DatabaseID   string    `json:"databaseId"`
	CreatedAt    int64     `json:"createdAt"` // milliseconds since epoch
}

// Validate checks vector fields against the owning database dimension.
// dimension <= 0 skips the dimension check.
func (v *Vector) Validate(dimension int) error {
	if v.ID < 0 {
		return fmt.Errorf("vector id must be positive, got %d", v.ID)
	}
	if v.DatabaseID == "" {
		return fmt.Errorf("vector database id must not be empty")
	}
	if dimension > 0 && len(v.Embedding) != dimension {
		return fmt.Errorf("embedding length %d does not match dimension %d", len(v.Embedding), dimension)
	}
	return nil
}

// Database describes a logical vector database
type Database struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Dimension   int    `json:"dimension"`
	VectorCount int64  `json:"vectorCount"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// ShardStatus represents the lifecycle state of a shard
type ShardStatus string

const (
	ShardStatusNew            ShardStatus = "NEW"
	ShardStatusActive         ShardStatus = "ACTIVE"
	ShardStatusDraining       ShardStatus = "DRAINING"
	ShardStatusDecommissioned ShardStatus = "DECOMMISSIONED"
)

// Shard describes one storage node and its position on the hash ring
type Shard struct {
	ID      string      `json:"shardId"`
	BaseURL string      `json:"baseUrl"`
	HashKey uint64      `json:"hashKey"`
	Status  ShardStatus `json:"status"`
}

// Readable reports whether the shard may serve reads
func (s *Shard) Readable() bool {
	return s.Status == ShardStatusActive || s.Status == ShardStatusDraining
}

// Writable reports whether the shard may accept writes
func (s *Shard) Writable() bool {
	return s.Status == ShardStatusNew || s.Status == ShardStatusActive
}

// Validate checks shard descriptor fields
func (s *Shard) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("shard id must not be empty")
	}
	if s.BaseURL == "" {
		return fmt.Errorf("shard %s: base url must not be empty", s.ID)
	}
	switch s.Status {
	case ShardStatusNew, ShardStatusActive, ShardStatusDraining, ShardStatusDecommissioned:
	default:
		return fmt.Errorf("shard %s: unknown status %q", s.ID, s.Status)
	}
	return nil
}

// ClusterConfig is the durable record of cluster membership. It is the
// single source of truth; rings and the ownership map are derived from it.
type ClusterConfig struct {
	Shards   []Shard           `json:"shards"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks the whole config. Duplicate hash keys are allowed here
// (ring construction resolves them) but duplicate shard ids are not.
func (c *ClusterConfig) Validate() error {
	seen := make(map[string]bool, len(c.Shards))
	for i := range c.Shards {
		s := &c.Shards[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate shard id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// ShardByID returns the shard with the given id, or nil
func (c *ClusterConfig) ShardByID(id string) *Shard {
	for i := range c.Shards {
		if c.Shards[i].ID == id {
			return &c.Shards[i]
		}
	}
	return nil
}

// SearchResult is one entry of a top-K response. Distance is the sort key;
// similarity is passed through from the index unchanged.
type SearchResult struct {
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
	Vector     Vector  `json:"vector"`
}

// NowMillis returns the current time in milliseconds since epoch
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
