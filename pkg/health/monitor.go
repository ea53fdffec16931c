package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quiverdb/quiver/pkg/config"
	"github.com/quiverdb/quiver/pkg/events"
	"github.com/quiverdb/quiver/pkg/log"
	"github.com/quiverdb/quiver/pkg/metrics"
	"github.com/quiverdb/quiver/pkg/shardclient"
	"github.com/quiverdb/quiver/pkg/types"
)

// ClientSource hands out wire clients for probing. Satisfied by
// shardclient.Pool.
type ClientSource interface {
	Client(shard *types.Shard) shardclient.Client
}

// Monitor classifies shards as available or unavailable. It combines
// periodic cheap liveness probes with passive signals from RPC failures:
// a shard that fails FailureThreshold consecutive times inside
// FailureWindow is unavailable until a probe recovers it.
//
// Health is advisory only. There is no quorum; the classification is used
// to route replica reads when a primary is down.
type Monitor struct {
	cfg     config.HealthConfig
	clients ClientSource
	shards  func() []types.Shard
	logger  zerolog.Logger

	// Events, if set before Start, receives shard.down and shard.recovered
	Events *events.Broker

	mu     sync.RWMutex
	states map[string]*shardState

	stopCh chan struct{}
	doneCh chan struct{}
}

type shardState struct {
	consecutiveFailures int
	firstFailure        time.Time
	unavailable         bool
}

// NewMonitor creates a monitor. shards supplies the current shard set on
// every probe cycle, typically backed by the cluster config snapshot.
func NewMonitor(cfg config.HealthConfig, clients ClientSource, shards func() []types.Shard) *Monitor {
	return &Monitor{
		cfg:     cfg,
		clients: clients,
		shards:  shards,
		logger:  log.WithComponent("health"),
		states:  make(map[string]*shardState),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the probe loop
func (m *Monitor) Start() {
	go m.probeLoop()
}

// Stop stops the probe loop
func (m *Monitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *Monitor) probeLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.ProbeInterval.Std())
	defer ticker.Stop()

	// Probe once immediately so startup does not wait a full interval
	m.probeAll()

	for {
		select {
		case <-ticker.C:
			m.probeAll()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) probeAll() {
	for _, shard := range m.shards() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout.Std())
		err := m.clients.Client(&shard).Ping(ctx)
		cancel()

		if err != nil {
			m.ReportFailure(shard.ID)
		} else {
			m.ReportSuccess(shard.ID)
		}
	}
}

// ReportFailure records a failed probe or RPC against a shard. Crossing
// the consecutive-failure threshold inside the window marks the shard
// unavailable.
func (m *Monitor) ReportFailure(shardID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.states[shardID]
	if st == nil {
		st = &shardState{}
		m.states[shardID] = st
	}

	now := time.Now()
	if st.consecutiveFailures == 0 || now.Sub(st.firstFailure) > m.cfg.FailureWindow.Std() {
		st.firstFailure = now
		st.consecutiveFailures = 0
	}
	st.consecutiveFailures++

	if !st.unavailable && st.consecutiveFailures >= m.cfg.FailureThreshold {
		st.unavailable = true
		metrics.ShardHealthy.WithLabelValues(shardID).Set(0)
		m.logger.Warn().
			Str("shard_id", shardID).
			Int("consecutive_failures", st.consecutiveFailures).
			Msg("shard marked unavailable")
		m.Events.Publish(&events.Event{
			Type:     events.EventShardDown,
			Message:  "shard " + shardID + " marked unavailable",
			Metadata: map[string]string{"shard_id": shardID},
		})
	}
}

// ReportSuccess records a successful probe or RPC, recovering the shard
func (m *Monitor) ReportSuccess(shardID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.states[shardID]
	if st == nil {
		st = &shardState{}
		m.states[shardID] = st
	}

	wasUnavailable := st.unavailable
	st.consecutiveFailures = 0
	st.unavailable = false
	metrics.ShardHealthy.WithLabelValues(shardID).Set(1)

	if wasUnavailable {
		m.logger.Info().Str("shard_id", shardID).Msg("shard recovered")
		m.Events.Publish(&events.Event{
			Type:     events.EventShardRecovered,
			Message:  "shard " + shardID + " recovered",
			Metadata: map[string]string{"shard_id": shardID},
		})
	}
}

// Available reports whether a shard is currently considered reachable.
// Shards never seen before are assumed available.
func (m *Monitor) Available(shardID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := m.states[shardID]
	return st == nil || !st.unavailable
}

// Partition splits the input into available and unavailable shards,
// preserving order
func (m *Monitor) Partition(shards []types.Shard) (available, unavailable []types.Shard) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range shards {
		st := m.states[s.ID]
		if st != nil && st.unavailable {
			unavailable = append(unavailable, s)
		} else {
			available = append(available, s)
		}
	}
	return available, unavailable
}
