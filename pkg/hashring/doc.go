/*
Package hashring implements the consistent hash ring that maps vector ids
to shards.

The ring is physical placement only: each shard occupies exactly one
position, set by the operator through its hash key. There are no virtual
nodes; the system relies on a handful of shards with well-spaced keys.

Locate(h) returns the first shard whose hash key is >= h, wrapping past the
top of the 64-bit key space. Ties on equal hash key resolve to the
lexicographically smaller shard id; the losing shard is logged and ignored.

KeyHash maps a vector id to its ring position using xxhash over the fixed
big-endian encoding of the id, making placement deterministic across
processes and architectures.

Rings are immutable values. The cluster package rebuilds them whenever the
config changes and publishes them inside an atomic snapshot.
*/
package hashring
