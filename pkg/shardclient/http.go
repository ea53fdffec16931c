package shardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/types"
)

// Options configures HTTP shard clients
type Options struct {
	// RequestTimeout bounds every call except Search
	RequestTimeout time.Duration

	// SearchTimeout bounds Search and SearchReplicas
	SearchTimeout time.Duration

	// BinaryResults negotiates the length-prefixed binary encoding for
	// search responses via the Accept header
	BinaryResults bool

	// Transport overrides the shared HTTP transport, mainly for tests
	Transport http.RoundTripper
}

func (o *Options) applyDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 5 * time.Second
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = 10 * time.Second
	}
}

// HTTPClient speaks the storage node wire protocol over HTTP. It is a
// small value type holding the shard endpoint and a reusable transport.
type HTTPClient struct {
	shardID string
	baseURL string
	opts    Options
	http    *http.Client
}

// NewHTTPClient creates a client for one shard endpoint
func NewHTTPClient(shardID, baseURL string, opts Options) *HTTPClient {
	opts.applyDefaults()

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	return &HTTPClient{
		shardID: shardID,
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		http:    &http.Client{Transport: transport},
	}
}

// ShardID returns the shard this client talks to
func (c *HTTPClient) ShardID() string {
	return c.shardID
}

type addResponse struct {
	ID int64 `json:"id"`
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

type searchRequest struct {
	Embedding []float32 `json:"embedding"`
	K         int       `json:"k"`
}

type vectorsResponse struct {
	Vectors []types.Vector `json:"vectors"`
}

type databasesResponse struct {
	Databases []types.Database `json:"databases"`
}

type resultsResponse struct {
	Results []types.SearchResult `json:"results"`
}

type batchPutRequest struct {
	Vectors []types.Vector `json:"vectors"`
}

type batchDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (c *HTTPClient) AddVector(ctx context.Context, v *types.Vector) (int64, error) {
	var resp addResponse
	path := fmt.Sprintf("/databases/%s/vectors", url.PathEscape(v.DatabaseID))
	if err := c.do(ctx, http.MethodPost, path, v, &resp, c.opts.RequestTimeout); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *HTTPClient) GetVector(ctx context.Context, databaseID string, id int64) (*types.Vector, error) {
	var v types.Vector
	path := fmt.Sprintf("/databases/%s/vectors/%d", url.PathEscape(databaseID), id)
	if err := c.do(ctx, http.MethodGet, path, nil, &v, c.opts.RequestTimeout); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *HTTPClient) DeleteVector(ctx context.Context, databaseID string, id int64) (bool, error) {
	var resp deleteResponse
	path := fmt.Sprintf("/databases/%s/vectors/%d", url.PathEscape(databaseID), id)
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp, c.opts.RequestTimeout); err != nil {
		if fault.Is(err, fault.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return resp.Deleted, nil
}

func (c *HTTPClient) Search(ctx context.Context, databaseID string, probe []float32, k int) ([]types.SearchResult, error) {
	path := fmt.Sprintf("/databases/%s/search", url.PathEscape(databaseID))
	return c.search(ctx, path, probe, k)
}

func (c *HTTPClient) CreateDatabase(ctx context.Context, db *types.Database) error {
	return c.do(ctx, http.MethodPost, "/databases", db, nil, c.opts.RequestTimeout)
}

func (c *HTTPClient) DropDatabase(ctx context.Context, databaseID string) error {
	path := fmt.Sprintf("/databases/%s", url.PathEscape(databaseID))
	return c.do(ctx, http.MethodDelete, path, nil, nil, c.opts.RequestTimeout)
}

func (c *HTTPClient) ListDatabases(ctx context.Context) ([]types.Database, error) {
	var resp databasesResponse
	if err := c.do(ctx, http.MethodGet, "/databases", nil, &resp, c.opts.RequestTimeout); err != nil {
		return nil, err
	}
	return resp.Databases, nil
}

func (c *HTTPClient) ScanRange(ctx context.Context, databaseID string, fromExclusive, toInclusive int64, limit int) ([]types.Vector, error) {
	var resp vectorsResponse
	path := fmt.Sprintf("/databases/%s/scan?after=%d&to=%d&limit=%d",
		url.PathEscape(databaseID), fromExclusive, toInclusive, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, c.opts.RequestTimeout); err != nil {
		return nil, err
	}
	return resp.Vectors, nil
}

func (c *HTTPClient) PutBatch(ctx context.Context, databaseID string, vectors []types.Vector) error {
	path := fmt.Sprintf("/databases/%s/vectors/batch", url.PathEscape(databaseID))
	return c.do(ctx, http.MethodPost, path, &batchPutRequest{Vectors: vectors}, nil, c.opts.RequestTimeout)
}

func (c *HTTPClient) DeleteBatch(ctx context.Context, databaseID string, ids []int64) error {
	path := fmt.Sprintf("/databases/%s/vectors/batch-delete", url.PathEscape(databaseID))
	return c.do(ctx, http.MethodPost, path, &batchDeleteRequest{IDs: ids}, nil, c.opts.RequestTimeout)
}

func (c *HTTPClient) AddVectorReplica(ctx context.Context, v *types.Vector, sourceShardID string) error {
	path := fmt.Sprintf("/databases/%s/replicas/%s/vectors",
		url.PathEscape(v.DatabaseID), url.PathEscape(sourceShardID))
	return c.do(ctx, http.MethodPost, path, v, nil, c.opts.RequestTimeout)
}

func (c *HTTPClient) GetVectorReplica(ctx context.Context, databaseID string, id int64, sourceShardID string) (*types.Vector, error) {
	var v types.Vector
	path := fmt.Sprintf("/databases/%s/replicas/%s/vectors/%d",
		url.PathEscape(databaseID), url.PathEscape(sourceShardID), id)
	if err := c.do(ctx, http.MethodGet, path, nil, &v, c.opts.RequestTimeout); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *HTTPClient) DeleteVectorReplica(ctx context.Context, databaseID string, id int64, sourceShardID string) (bool, error) {
	var resp deleteResponse
	path := fmt.Sprintf("/databases/%s/replicas/%s/vectors/%d",
		url.PathEscape(databaseID), url.PathEscape(sourceShardID), id)
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp, c.opts.RequestTimeout); err != nil {
		if fault.Is(err, fault.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return resp.Deleted, nil
}

func (c *HTTPClient) SearchReplicas(ctx context.Context, databaseID string, probe []float32, k int, sourceShardID string) ([]types.SearchResult, error) {
	path := fmt.Sprintf("/databases/%s/replicas/%s/search",
		url.PathEscape(databaseID), url.PathEscape(sourceShardID))
	return c.search(ctx, path, probe, k)
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, c.opts.RequestTimeout)
}

// search posts a probe and decodes either encoding of the result list
func (c *HTTPClient) search(ctx context.Context, path string, probe []float32, k int) ([]types.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.SearchTimeout)
	defer cancel()

	body, err := json.Marshal(&searchRequest{Embedding: probe, K: k})
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to encode search request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to build search request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.BinaryResults {
		req.Header.Set("Accept", ContentTypeBinary)
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), ContentTypeBinary) {
		results, err := DecodeResults(resp.Body)
		if err != nil {
			return nil, fault.Wrap(fault.KindProtocol, "malformed binary search response", err)
		}
		return results, nil
	}

	var out resultsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fault.Wrap(fault.KindProtocol, "malformed search response", err)
	}
	return out.Results, nil
}

// do performs a JSON request/response round trip
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fault.Wrap(fault.KindInternal, "failed to encode request", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fault.Wrap(fault.KindInternal, "failed to build request", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fault.Wrap(fault.KindProtocol, "malformed response body", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return nil
}

func (c *HTTPClient) transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.KindTimeout, "shard "+c.shardID+" timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.KindTimeout, "request to shard "+c.shardID+" canceled", err)
	}
	return fault.Wrap(fault.KindUnavailable, "shard "+c.shardID+" unreachable", err)
}

// errorBody is the JSON error envelope storage nodes return
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) statusError(resp *http.Response) error {
	var eb errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	_ = json.Unmarshal(data, &eb)

	msg := eb.Error.Message
	if msg == "" {
		msg = "shard " + c.shardID + " returned " + strconv.Itoa(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fault.New(fault.KindNotFound, msg)
	case resp.StatusCode == http.StatusConflict:
		return fault.New(fault.KindConflict, msg)
	case resp.StatusCode == http.StatusBadRequest && eb.Error.Kind == string(fault.KindDimensionMismatch):
		return fault.New(fault.KindDimensionMismatch, msg)
	case resp.StatusCode == http.StatusBadRequest:
		return fault.New(fault.KindProtocol, msg)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return fault.New(fault.KindUnavailable, msg)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return fault.New(fault.KindTimeout, msg)
	default:
		return fault.New(fault.KindInternal, msg)
	}
}
