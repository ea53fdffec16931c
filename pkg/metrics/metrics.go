package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	ShardsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quiver_shards_total",
			Help: "Total number of shards in the cluster config by status",
		},
		[]string{"status"},
	)

	ShardHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quiver_shard_healthy",
			Help: "Whether a shard is currently considered available (1 = available)",
		},
		[]string{"shard_id"},
	)

	ConfigRefreshesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_config_refreshes_total",
			Help: "Total number of cluster config snapshot refreshes",
		},
	)

	ConfigParseFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_config_parse_failures_total",
			Help: "Total number of cluster config payloads that failed to parse",
		},
	)

	// Coordinator metrics
	VectorOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_vector_ops_total",
			Help: "Total number of coordinator vector operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiver_search_duration_seconds",
			Help:    "End-to-end search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SearchShardMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_search_shard_misses_total",
			Help: "Total number of shard search calls skipped due to errors or deadline",
		},
	)

	// Replication metrics
	ReplicationTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_replication_tasks_total",
			Help: "Total number of async replication tasks by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ReplicationQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiver_replication_queue_depth",
			Help: "Current depth of the async replication queue",
		},
	)

	ReadRepairsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_read_repairs_total",
			Help: "Total number of read repairs scheduled",
		},
	)

	// Resharding metrics
	ReshardingJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_resharding_jobs_total",
			Help: "Total number of resharding jobs by outcome",
		},
		[]string{"outcome"},
	)

	ReshardingVectorsMoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_resharding_vectors_moved_total",
			Help: "Total number of vectors migrated between shards",
		},
	)

	ReshardingBatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiver_resharding_batch_failures_total",
			Help: "Total number of migration batches that failed and were skipped",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiver_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiver_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(ShardsTotal)
	prometheus.MustRegister(ShardHealthy)
	prometheus.MustRegister(ConfigRefreshesTotal)
	prometheus.MustRegister(ConfigParseFailuresTotal)
	prometheus.MustRegister(VectorOpsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchShardMisses)
	prometheus.MustRegister(ReplicationTasksTotal)
	prometheus.MustRegister(ReplicationQueueDepth)
	prometheus.MustRegister(ReadRepairsTotal)
	prometheus.MustRegister(ReshardingJobsTotal)
	prometheus.MustRegister(ReshardingVectorsMoved)
	prometheus.MustRegister(ReshardingBatchFailures)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
