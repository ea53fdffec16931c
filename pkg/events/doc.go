// Package events provides the in-memory broker behind the gateway's
// event stream.
//
// Components publish topology and health occurrences (config applied,
// shard down or recovered, migration lifecycle) and the API streams them
// to watching clients. Delivery is best effort and non-blocking: a slow
// subscriber skips events instead of stalling the publisher, and nothing
// in the request path depends on an event arriving.
package events
