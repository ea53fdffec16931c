/*
Package types defines the core data structures used throughout Quiver.

This package contains the domain model shared by all other packages: vector
records, database descriptors, shard descriptors with their lifecycle status,
the cluster config, and search results.

# Core Types

Vector:
  - ID: positive 64-bit integer, unique within a database
  - Embedding: dense float32 slice, length equals the database dimension
  - OriginalData: opaque payload stored alongside the embedding
  - DatabaseID: owning logical database
  - CreatedAt: millisecond timestamp

Database:
  - Dimension is immutable after creation
  - VectorCount moves with inserts, deletes, and resharding

Shard:
  - ID: stable identifier, never reused
  - BaseURL: address of the storage node
  - HashKey: position on the 64-bit hash ring
  - Status: NEW, ACTIVE, DRAINING, or DECOMMISSIONED

Status drives participation: a shard is readable in ACTIVE and DRAINING,
writable in NEW and ACTIVE.

ClusterConfig:
  - Ordered set of shard descriptors plus free-form metadata
  - JSON shape: {"shards":[{"shardId","baseUrl","hashKey","status"}],"metadata":{}}
  - Source of truth; rings and ownership are derived views

# Thread Safety

Types here are plain values. They are read-safe once published; mutation is
the responsibility of the owner. The cluster packages publish derived state
as immutable snapshots, so config values handed out are never written again.
*/
package types
