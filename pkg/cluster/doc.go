/*
Package cluster maintains the watched, etcd-backed cluster configuration
and the views derived from it.

# Architecture

The config lives at a single etcd key, <base>/cluster/config, as a JSON
payload. Every gateway process holds a Store that loads the record at
startup, registers a watch, and rebuilds its local Snapshot whenever the
record changes:

	etcd <base>/cluster/config
	        │ watch
	        ▼
	   Store.load ──► BuildSnapshot ──► atomic.Pointer swap
	                      │
	                      ├─ ReadRing   (ACTIVE, DRAINING)
	                      ├─ WriteRing  (NEW, ACTIVE)
	                      └─ Ownership  (write-ring successor relation)

A Snapshot is immutable. Routing a request pins one Snapshot, so the ring a
write was routed against always agrees with the ownership map used for its
replica, even while a refresh is in flight.

# Failure policy

  - Missing or empty record: empty cluster, all lookups fail upstream with
    Unavailable.
  - Payload fails to parse: logged, previous snapshot retained.
  - Watch breaks: re-established with exponential backoff while the last
    known snapshot keeps serving.

Updates are last-writer-wins with no CAS; the control surface serializes
config changes.
*/
package cluster
