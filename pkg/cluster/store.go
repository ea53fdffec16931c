package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/quiverdb/quiver/pkg/config"
	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/log"
	"github.com/quiverdb/quiver/pkg/metrics"
	"github.com/quiverdb/quiver/pkg/types"
)

const (
	configPath       = "/cluster/config"
	rebalancePath    = "/rebalance"
	coordinatorsPath = "/coordinators/main"

	opTimeout       = 5 * time.Second
	maxWatchBackoff = 30 * time.Second
)

// Store maintains the process-wide cluster config snapshot, backed by a
// single record in etcd. The snapshot is refreshed by a watch on the config
// key and swapped atomically; readers always see a consistent tuple of
// (config, read ring, write ring, ownership).
//
// Writes go through Update and are single-writer by convention: the
// operator serializes config changes, there is no CAS.
type Store struct {
	client   *clientv3.Client
	basePath string
	logger   zerolog.Logger

	snap   atomic.Pointer[Snapshot]
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewStore connects to etcd, loads the current config, and starts watching
// for changes. It blocks until the connection is established or the dial
// timeout expires.
func NewStore(cfg config.EtcdConfig) (*Store, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	s := &Store{
		client:   client,
		basePath: cfg.BasePath,
		logger:   log.WithComponent("cluster"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.snap.Store(EmptySnapshot())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout.Std())
	defer cancel()

	// The dial is lazy; a Status round-trip proves the coordination
	// service is actually reachable before we start serving.
	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("etcd not reachable at %v: %w", cfg.Endpoints, err)
	}

	if err := s.ensureNamespaces(ctx); err != nil {
		client.Close()
		return nil, err
	}

	if err := s.load(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("initial config load failed, starting with empty config")
	}

	go s.watchLoop()

	return s, nil
}

// ensureNamespaces creates the reserved keys under the base path
func (s *Store) ensureNamespaces(ctx context.Context) error {
	for _, suffix := range []string{rebalancePath, coordinatorsPath} {
		key := s.basePath + suffix
		resp, err := s.client.Get(ctx, key, clientv3.WithCountOnly())
		if err != nil {
			return fmt.Errorf("failed to check namespace %s: %w", key, err)
		}
		if resp.Count == 0 {
			if _, err := s.client.Put(ctx, key, ""); err != nil {
				return fmt.Errorf("failed to create namespace %s: %w", key, err)
			}
		}
	}
	return nil
}

func (s *Store) configKey() string {
	return s.basePath + configPath
}

// load fetches the config record and swaps in a fresh snapshot. A missing
// or empty record means an empty cluster. A payload that fails to parse is
// logged and the previous snapshot is retained.
func (s *Store) load(ctx context.Context) error {
	resp, err := s.client.Get(ctx, s.configKey())
	if err != nil {
		return fmt.Errorf("failed to get cluster config: %w", err)
	}

	var payload []byte
	if len(resp.Kvs) > 0 {
		payload = resp.Kvs[0].Value
	}

	if len(payload) == 0 {
		s.publish(EmptySnapshot())
		return nil
	}

	var cfg types.ClusterConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		metrics.ConfigParseFailuresTotal.Inc()
		s.logger.Error().Err(err).Msg("cluster config payload is not valid JSON, keeping previous snapshot")
		return nil
	}

	s.publish(BuildSnapshot(&cfg))
	return nil
}

func (s *Store) publish(snap *Snapshot) {
	s.snap.Store(snap)
	metrics.ConfigRefreshesTotal.Inc()

	metrics.ShardsTotal.Reset()
	for _, sh := range snap.Config.Shards {
		metrics.ShardsTotal.WithLabelValues(string(sh.Status)).Inc()
	}

	s.logger.Info().
		Int("shards", len(snap.Config.Shards)).
		Int("read_ring", snap.ReadRing.Len()).
		Int("write_ring", snap.WriteRing.Len()).
		Msg("cluster config snapshot refreshed")
}

// watchLoop re-loads the snapshot on every change to the config key. A
// broken watch is re-established with exponential backoff; the last known
// snapshot keeps serving meanwhile.
func (s *Store) watchLoop() {
	defer close(s.doneCh)

	backoff := time.Second
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-s.stopCh
			cancel()
		}()

		wch := s.client.Watch(ctx, s.configKey())
		for wresp := range wch {
			if err := wresp.Err(); err != nil {
				s.logger.Warn().Err(err).Msg("config watch error")
				break
			}
			backoff = time.Second

			loadCtx, loadCancel := context.WithTimeout(ctx, opTimeout)
			if err := s.load(loadCtx); err != nil {
				s.logger.Error().Err(err).Msg("failed to reload config after change")
			}
			loadCancel()
		}
		cancel()

		select {
		case <-s.stopCh:
			return
		case <-time.After(backoff):
		}
		if backoff < maxWatchBackoff {
			backoff *= 2
		}
	}
}

// Snapshot returns the current immutable cluster snapshot
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Current returns the latest successfully parsed cluster config
func (s *Store) Current() *types.ClusterConfig {
	return s.Snapshot().Config
}

// Shards returns all ACTIVE shard descriptors
func (s *Store) Shards() []types.Shard {
	return s.Snapshot().ActiveShards()
}

// Update validates the config, writes it to etcd (last writer wins), and
// refreshes the local snapshot so the caller immediately observes its own
// write.
func (s *Store) Update(ctx context.Context, cfg *types.ClusterConfig) error {
	if err := cfg.Validate(); err != nil {
		return fault.Wrap(fault.KindInvalidConfig, "rejected cluster config", err)
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fault.Wrap(fault.KindInternal, "failed to encode cluster config", err)
	}

	if _, err := s.client.Put(ctx, s.configKey(), string(payload)); err != nil {
		return fmt.Errorf("failed to write cluster config: %w", err)
	}

	s.publish(BuildSnapshot(cfg))
	s.logger.Info().Int("shards", len(cfg.Shards)).Msg("cluster config updated")
	return nil
}

// Close stops the watch loop and closes the etcd client
func (s *Store) Close() error {
	close(s.stopCh)
	<-s.doneCh
	return s.client.Close()
}
