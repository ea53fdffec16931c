package shardclient

import (
	"sync"

	"github.com/quiverdb/quiver/pkg/types"
)

// Pool hands out one logical client per shard, keyed by shard id.
// Creation is lazy and idempotent: concurrent callers for the same shard
// get the same client.
type Pool struct {
	opts    Options
	mu      sync.RWMutex
	clients map[string]Client
}

// NewPool creates an empty client pool
func NewPool(opts Options) *Pool {
	return &Pool{
		opts:    opts,
		clients: make(map[string]Client),
	}
}

// Client returns the client for the given shard, creating it on first use
func (p *Pool) Client(shard *types.Shard) Client {
	p.mu.RLock()
	c, ok := p.clients[shard.ID]
	p.mu.RUnlock()
	if ok {
		return c
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[shard.ID]; ok {
		return c
	}
	c = NewHTTPClient(shard.ID, shard.BaseURL, p.opts)
	p.clients[shard.ID] = c
	return c
}

// Forget drops the cached client for a shard, typically after the shard
// leaves the config
func (p *Pool) Forget(shardID string) {
	p.mu.Lock()
	delete(p.clients, shardID)
	p.mu.Unlock()
}
