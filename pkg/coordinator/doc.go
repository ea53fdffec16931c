// Package coordinator implements the request protocol of the cluster
// front door.
//
// Writes go synchronously to the primary shard chosen by the write ring;
// the caller gets the primary's answer. A copy is then replicated
// asynchronously to the primary's ring successor, tagged with the primary
// shard id so it can be told apart from the successor's own data. Replica
// failures never fail the write; they are logged and surface as eventual
// inconsistency until a read repair or the next write heals them.
//
// Reads walk a fixed candidate order: the primary, then the tagged
// replica copy on the successor, then every remaining readable shard in
// config order. The long tail exists because an interrupted resharding
// can leave a key on its old primary; finding one there triggers a read
// repair that copies the record back to where the ring says it belongs.
//
// Search is scatter-gather: every readable shard gets the probe in
// parallel under a shared deadline, and shards the health monitor marks
// unavailable are covered by querying the replica copies their successor
// holds. Partial failures shrink the candidate set instead of failing the
// query. The merge deduplicates by vector id keeping the closest copy,
// orders by distance, and truncates to k.
//
// Database create and drop fan out to every writable shard; a database
// exists as soon as one shard accepts it, and its dimension is immutable
// from then on.
package coordinator
