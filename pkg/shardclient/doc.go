/*
Package shardclient implements the wire protocol between the Quiver
gateway and the storage shards.

Each shard exposes per-database vector operations, admin operations for
range scan and batch mutation, and replica variants keyed by the source
shard id. Clients are small value types holding the endpoint and a
reusable HTTP transport; the Pool hands out one client per shard with lazy,
idempotent creation.

Every failure is classified into a fault kind so callers can branch on
NotFound versus Unavailable without inspecting transport details.

Search responses arrive either as JSON or as the length-prefixed binary
encoding (see codec.go), negotiated with the Accept header. The binary
form uses varint prefixes for counts and lengths, big-endian IEEE-754
doubles for distance and similarity, float32 embeddings, and UTF-8 strings
prefixed by byte length.
*/
package shardclient
