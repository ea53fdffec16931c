package shardclient

import (
	"context"

	"github.com/quiverdb/quiver/pkg/types"
)

// Client is the wire interface the coordinator speaks to one storage
// shard. Implementations must be safe for concurrent use. All calls fail
// with a fault kind: NotFound, DimensionMismatch, Conflict, Timeout,
// Unavailable, Protocol, or Internal.
type Client interface {
	// Vector operations
	AddVector(ctx context.Context, v *types.Vector) (int64, error)
	GetVector(ctx context.Context, databaseID string, id int64) (*types.Vector, error)
	DeleteVector(ctx context.Context, databaseID string, id int64) (bool, error)
	Search(ctx context.Context, databaseID string, probe []float32, k int) ([]types.SearchResult, error)

	// Database admin
	CreateDatabase(ctx context.Context, db *types.Database) error
	DropDatabase(ctx context.Context, databaseID string) error
	ListDatabases(ctx context.Context) ([]types.Database, error)

	// Range scan and batch mutation, used by the resharding engine.
	// ScanRange returns vectors with id in (fromExclusive, toInclusive],
	// ascending, at most limit entries.
	ScanRange(ctx context.Context, databaseID string, fromExclusive, toInclusive int64, limit int) ([]types.Vector, error)
	PutBatch(ctx context.Context, databaseID string, vectors []types.Vector) error
	DeleteBatch(ctx context.Context, databaseID string, ids []int64) error

	// Replica variants, keyed by the source shard whose primary data the
	// replica copies mirror
	AddVectorReplica(ctx context.Context, v *types.Vector, sourceShardID string) error
	GetVectorReplica(ctx context.Context, databaseID string, id int64, sourceShardID string) (*types.Vector, error)
	DeleteVectorReplica(ctx context.Context, databaseID string, id int64, sourceShardID string) (bool, error)
	SearchReplicas(ctx context.Context, databaseID string, probe []float32, k int, sourceShardID string) ([]types.SearchResult, error)

	// Ping is the cheap liveness probe used by the health monitor
	Ping(ctx context.Context) error
}
