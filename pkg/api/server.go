package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/quiverdb/quiver/pkg/cluster"
	"github.com/quiverdb/quiver/pkg/events"
	"github.com/quiverdb/quiver/pkg/log"
	"github.com/quiverdb/quiver/pkg/metrics"
	"github.com/quiverdb/quiver/pkg/types"
)

// VectorService is the data-plane surface the gateway exposes. Satisfied
// by coordinator.Coordinator.
type VectorService interface {
	AddVector(ctx context.Context, v *types.Vector) (int64, error)
	GetVector(ctx context.Context, databaseID string, id int64) (*types.Vector, error)
	DeleteVector(ctx context.Context, databaseID string, id int64) (bool, error)
	Search(ctx context.Context, databaseID string, probe []float32, k int) ([]types.SearchResult, error)
	CreateDatabase(ctx context.Context, db *types.Database) error
	DropDatabase(ctx context.Context, databaseID string) error
	ListDatabases(ctx context.Context) ([]types.Database, error)
}

// ConfigService is the control surface. Satisfied by operator.Operator.
type ConfigService interface {
	Apply(ctx context.Context, cfg *types.ClusterConfig) error
	CurrentConfig() *types.ClusterConfig
}

// SnapshotSource supplies the cluster view for readiness checks.
// Satisfied by cluster.Store.
type SnapshotSource interface {
	Snapshot() *cluster.Snapshot
}

// ShardHealth classifies shards for the readiness report. Satisfied by
// health.Monitor.
type ShardHealth interface {
	Partition(shards []types.Shard) (available, unavailable []types.Shard)
}

// Server is the HTTP front door: vector and database endpoints routed
// through the coordinator, the cluster config control surface, and the
// health and metrics endpoints.
type Server struct {
	vectors  VectorService
	configs  ConfigService
	snapshot SnapshotSource
	shards   ShardHealth
	events   *events.Broker
	logger   zerolog.Logger

	router *mux.Router
	http   *http.Server
}

// NewServer wires the routes. All dependencies except the broker are
// interfaces so tests run against fakes; a nil broker disables the event
// stream endpoint.
func NewServer(vectors VectorService, configs ConfigService, snapshot SnapshotSource, shards ShardHealth, broker *events.Broker) *Server {
	s := &Server{
		vectors:  vectors,
		configs:  configs,
		snapshot: snapshot,
		shards:   shards,
		events:   broker,
		logger:   log.WithComponent("api"),
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.instrument)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/databases", s.handleCreateDatabase).Methods(http.MethodPost)
	v1.HandleFunc("/databases", s.handleListDatabases).Methods(http.MethodGet)
	v1.HandleFunc("/databases/{db}", s.handleDropDatabase).Methods(http.MethodDelete)

	v1.HandleFunc("/databases/{db}/vectors", s.handleAddVector).Methods(http.MethodPost)
	v1.HandleFunc("/databases/{db}/vectors/{id:-?[0-9]+}", s.handleGetVector).Methods(http.MethodGet)
	v1.HandleFunc("/databases/{db}/vectors/{id:-?[0-9]+}", s.handleDeleteVector).Methods(http.MethodDelete)
	v1.HandleFunc("/databases/{db}/search", s.handleSearch).Methods(http.MethodPost)

	v1.HandleFunc("/cluster/config", s.handleGetConfig).Methods(http.MethodGet)
	v1.HandleFunc("/cluster/config", s.handlePutConfig).Methods(http.MethodPut)
	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// Handler returns the routing handler, used directly by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving on addr and blocks until the listener closes
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("api listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
