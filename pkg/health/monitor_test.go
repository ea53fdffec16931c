package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quiverdb/quiver/pkg/config"
	"github.com/quiverdb/quiver/pkg/types"
)

func testMonitor() *Monitor {
	cfg := config.HealthConfig{
		ProbeInterval:    config.Duration(time.Hour), // probes driven manually in tests
		ProbeTimeout:     config.Duration(time.Second),
		FailureThreshold: 3,
		FailureWindow:    config.Duration(30 * time.Second),
	}
	return NewMonitor(cfg, nil, func() []types.Shard { return nil })
}

func TestUnknownShardIsAvailable(t *testing.T) {
	m := testMonitor()
	assert.True(t, m.Available("never-seen"))
}

func TestThresholdFlipsToUnavailable(t *testing.T) {
	m := testMonitor()

	m.ReportFailure("shard-1")
	m.ReportFailure("shard-1")
	assert.True(t, m.Available("shard-1"), "below threshold must stay available")

	m.ReportFailure("shard-1")
	assert.False(t, m.Available("shard-1"))
}

func TestSuccessRecovers(t *testing.T) {
	m := testMonitor()

	for i := 0; i < 5; i++ {
		m.ReportFailure("shard-1")
	}
	assert.False(t, m.Available("shard-1"))

	m.ReportSuccess("shard-1")
	assert.True(t, m.Available("shard-1"))

	// Recovery resets the failure streak
	m.ReportFailure("shard-1")
	m.ReportFailure("shard-1")
	assert.True(t, m.Available("shard-1"))
}

func TestPartition(t *testing.T) {
	m := testMonitor()
	shards := []types.Shard{
		{ID: "shard-a"},
		{ID: "shard-b"},
		{ID: "shard-c"},
	}

	for i := 0; i < 3; i++ {
		m.ReportFailure("shard-b")
	}

	available, unavailable := m.Partition(shards)
	assert.Equal(t, []string{"shard-a", "shard-c"}, ids(available))
	assert.Equal(t, []string{"shard-b"}, ids(unavailable))
}

func TestStaleFailuresOutsideWindowRestartStreak(t *testing.T) {
	m := testMonitor()

	m.ReportFailure("shard-1")
	m.ReportFailure("shard-1")

	// Simulate the first failure having happened outside the window
	m.mu.Lock()
	m.states["shard-1"].firstFailure = time.Now().Add(-time.Minute)
	m.mu.Unlock()

	m.ReportFailure("shard-1")
	assert.True(t, m.Available("shard-1"), "stale streak must not count toward threshold")
}

func ids(shards []types.Shard) []string {
	out := make([]string, 0, len(shards))
	for _, s := range shards {
		out = append(out, s.ID)
	}
	return out
}
