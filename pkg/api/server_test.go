package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverdb/quiver/pkg/cluster"
	"github.com/quiverdb/quiver/pkg/events"
	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/types"
)

type fakeVectors struct {
	vectors   map[int64]types.Vector
	databases []types.Database
	applyErr  error
	lastAdd   *types.Vector
	lastQuery []float32
	lastK     int
}

func (f *fakeVectors) AddVector(_ context.Context, v *types.Vector) (int64, error) {
	if f.applyErr != nil {
		return 0, f.applyErr
	}
	if v.ID == 0 {
		v.ID = 4242
	}
	f.lastAdd = v
	return v.ID, nil
}

func (f *fakeVectors) GetVector(_ context.Context, databaseID string, id int64) (*types.Vector, error) {
	if v, ok := f.vectors[id]; ok {
		return &v, nil
	}
	return nil, fault.Newf(fault.KindNotFound, "vector %d not found in %s", id, databaseID)
}

func (f *fakeVectors) DeleteVector(_ context.Context, _ string, id int64) (bool, error) {
	_, ok := f.vectors[id]
	delete(f.vectors, id)
	return ok, nil
}

func (f *fakeVectors) Search(_ context.Context, _ string, probe []float32, k int) ([]types.SearchResult, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.lastQuery = probe
	f.lastK = k
	out := make([]types.SearchResult, 0, len(f.vectors))
	for _, v := range f.vectors {
		out = append(out, types.SearchResult{Vector: v})
	}
	return out, nil
}

func (f *fakeVectors) CreateDatabase(_ context.Context, db *types.Database) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.databases = append(f.databases, *db)
	return nil
}

func (f *fakeVectors) DropDatabase(_ context.Context, _ string) error { return nil }

func (f *fakeVectors) ListDatabases(_ context.Context) ([]types.Database, error) {
	return f.databases, nil
}

type fakeConfigs struct {
	current *types.ClusterConfig
	applied *types.ClusterConfig
	err     error
}

func (f *fakeConfigs) Apply(_ context.Context, cfg *types.ClusterConfig) error {
	if f.err != nil {
		return f.err
	}
	f.applied = cfg
	f.current = cfg
	return nil
}

func (f *fakeConfigs) CurrentConfig() *types.ClusterConfig { return f.current }

type fakeSnapshots struct{ snap *cluster.Snapshot }

func (f *fakeSnapshots) Snapshot() *cluster.Snapshot { return f.snap }

type allHealthy struct{}

func (allHealthy) Partition(shards []types.Shard) ([]types.Shard, []types.Shard) {
	return shards, nil
}

func testServer(vectors *fakeVectors, configs *fakeConfigs, cfg *types.ClusterConfig) *Server {
	if cfg == nil {
		cfg = &types.ClusterConfig{}
	}
	return NewServer(vectors, configs, &fakeSnapshots{snap: cluster.BuildSnapshot(cfg)}, allHealthy{}, nil)
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAddVector(t *testing.T) {
	vectors := &fakeVectors{}
	s := testServer(vectors, &fakeConfigs{current: &types.ClusterConfig{}}, nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/databases/db1/vectors", addVectorRequest{
		Embedding: []float32{1, 2, 3},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp addVectorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(4242), resp.ID)

	require.NotNil(t, vectors.lastAdd)
	assert.Equal(t, "db1", vectors.lastAdd.DatabaseID, "database id comes from the path")
	assert.Equal(t, []float32{1, 2, 3}, vectors.lastAdd.Embedding)
}

func TestGetVectorNotFound(t *testing.T) {
	s := testServer(&fakeVectors{}, &fakeConfigs{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/v1/databases/db1/vectors/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "not_found", envelope.Error.Kind)
}

func TestGetVectorBadID(t *testing.T) {
	s := testServer(&fakeVectors{}, &fakeConfigs{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/v1/databases/db1/vectors/abc", nil)
	// The id pattern does not match, so the router never hits the handler
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteVector(t *testing.T) {
	vectors := &fakeVectors{vectors: map[int64]types.Vector{7: {ID: 7, DatabaseID: "db1"}}}
	s := testServer(vectors, &fakeConfigs{}, nil)

	rec := doRequest(t, s, http.MethodDelete, "/v1/databases/db1/vectors/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp deleteVectorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Deleted)

	rec = doRequest(t, s, http.MethodDelete, "/v1/databases/db1/vectors/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Deleted)
}

func TestSearch(t *testing.T) {
	vectors := &fakeVectors{vectors: map[int64]types.Vector{1: {ID: 1, DatabaseID: "db1"}}}
	s := testServer(vectors, &fakeConfigs{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/databases/db1/search", searchRequest{
		Embedding: []float32{0.5, 0.5},
		K:         10,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var results []types.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Len(t, results, 1)
	assert.Equal(t, []float32{0.5, 0.5}, vectors.lastQuery)
	assert.Equal(t, 10, vectors.lastK)
}

func TestSearchDimensionMismatchStatus(t *testing.T) {
	vectors := &fakeVectors{applyErr: fault.New(fault.KindDimensionMismatch, "probe length 3 does not match database dimension 4")}
	s := testServer(vectors, &fakeConfigs{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/databases/db1/search", searchRequest{Embedding: []float32{1, 2, 3}, K: 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDatabase(t *testing.T) {
	vectors := &fakeVectors{}
	s := testServer(vectors, &fakeConfigs{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/databases", createDatabaseRequest{ID: "db1", Dimension: 128})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, vectors.databases, 1)
	assert.Equal(t, 128, vectors.databases[0].Dimension)
}

func TestPutClusterConfig(t *testing.T) {
	configs := &fakeConfigs{current: &types.ClusterConfig{}}
	s := testServer(&fakeVectors{}, configs, nil)

	next := types.ClusterConfig{Shards: []types.Shard{
		{ID: "shard-a", BaseURL: "http://shard-a:9000", HashKey: 42, Status: types.ShardStatusActive},
	}}
	rec := doRequest(t, s, http.MethodPut, "/v1/cluster/config", next)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, configs.applied)
	require.Len(t, configs.applied.Shards, 1)
	assert.Equal(t, "shard-a", configs.applied.Shards[0].ID)

	rec = doRequest(t, s, http.MethodGet, "/v1/cluster/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got types.ClusterConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint64(42), got.Shards[0].HashKey)
}

func TestPutClusterConfigRejected(t *testing.T) {
	configs := &fakeConfigs{err: fault.New(fault.KindInvalidConfig, "duplicate shard id")}
	s := testServer(&fakeVectors{}, configs, nil)

	rec := doRequest(t, s, http.MethodPut, "/v1/cluster/config", types.ClusterConfig{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := testServer(&fakeVectors{}, &fakeConfigs{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzWithoutConfig(t *testing.T) {
	s := testServer(&fakeVectors{}, &fakeConfigs{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyzWithShards(t *testing.T) {
	cfg := &types.ClusterConfig{Shards: []types.Shard{
		{ID: "shard-a", BaseURL: "http://shard-a", HashKey: 1, Status: types.ShardStatusActive},
	}}
	s := testServer(&fakeVectors{}, &fakeConfigs{}, cfg)

	rec := doRequest(t, s, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp readyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ShardsAvailable)
}

func TestRequestIDHeader(t *testing.T) {
	s := testServer(&fakeVectors{}, &fakeConfigs{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "caller-chosen")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "caller-chosen", rec.Header().Get("X-Request-Id"))
}

func TestEventStreamDisabled(t *testing.T) {
	s := testServer(&fakeVectors{}, &fakeConfigs{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/v1/events", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventStream(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	s := NewServer(&fakeVectors{}, &fakeConfigs{}, &fakeSnapshots{snap: cluster.BuildSnapshot(&types.ClusterConfig{})}, allHealthy{}, broker)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Keep publishing until the subscriber is registered and a line arrives
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				broker.Publish(&events.Event{Type: events.EventShardDown, Message: "shard-a unreachable"})
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()

	reader := bufio.NewReader(resp.Body)
	lineCh := make(chan string, 1)
	go func() {
		line, err := reader.ReadString('\n')
		if err == nil {
			lineCh <- line
		}
	}()

	select {
	case line := <-lineCh:
		assert.Contains(t, line, "shard.down")
	case <-time.After(5 * time.Second):
		t.Fatal("no event received on the stream")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(&fakeVectors{}, &fakeConfigs{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quiver_")
}
