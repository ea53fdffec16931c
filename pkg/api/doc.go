// Package api exposes the gateway's HTTP surface.
//
// The data plane lives under /v1/databases: database lifecycle, vector
// add/get/delete and similarity search, all routed through the
// coordinator. The control surface is /v1/cluster/config, where GET
// returns the topology currently in effect and PUT submits a new one,
// triggering a data migration for any added shards.
//
// /healthz answers as long as the process runs; /readyz reports whether
// a cluster config is loaded and at least one shard is reachable, which
// is what load balancers should gate on. /metrics serves the prometheus
// registry.
//
// Every response error uses one envelope: {"error": {"kind", "message"}},
// with the kind string taken from the fault taxonomy and mapped onto the
// obvious status code.
package api
