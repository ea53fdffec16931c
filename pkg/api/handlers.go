package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/quiverdb/quiver/pkg/fault"
	"github.com/quiverdb/quiver/pkg/types"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a fault as the wire error envelope. The kind decides
// the status code; unknown errors surface as 500 internal.
func writeError(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindDimensionMismatch, fault.KindProtocol, fault.KindInvalidConfig:
		status = http.StatusBadRequest
	case fault.KindConflict:
		status = http.StatusConflict
	case fault.KindUnavailable:
		status = http.StatusServiceUnavailable
	case fault.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorEnvelope{Error: errorBody{Kind: string(kind), Message: err.Error()}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, fault.Wrap(fault.KindProtocol, "malformed request body", err))
		return false
	}
	return true
}

type createDatabaseRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Dimension   int    `json:"dimension"`
}

func (s *Server) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	var req createDatabaseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	db := &types.Database{ID: req.ID, DisplayName: req.DisplayName, Dimension: req.Dimension}
	if err := s.vectors.CreateDatabase(r.Context(), db); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, db)
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	dbs, err := s.vectors.ListDatabases(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if dbs == nil {
		dbs = []types.Database{}
	}
	writeJSON(w, http.StatusOK, dbs)
}

func (s *Server) handleDropDatabase(w http.ResponseWriter, r *http.Request) {
	if err := s.vectors.DropDatabase(r.Context(), mux.Vars(r)["db"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addVectorRequest struct {
	ID           int64     `json:"id,omitempty"`
	Embedding    []float32 `json:"embedding"`
	OriginalData []byte    `json:"originalData,omitempty"`
}

type addVectorResponse struct {
	ID int64 `json:"id"`
}

func (s *Server) handleAddVector(w http.ResponseWriter, r *http.Request) {
	var req addVectorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v := &types.Vector{
		ID:           req.ID,
		Embedding:    req.Embedding,
		OriginalData: req.OriginalData,
		DatabaseID:   mux.Vars(r)["db"],
	}
	id, err := s.vectors.AddVector(r.Context(), v)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, addVectorResponse{ID: id})
}

func (s *Server) handleGetVector(w http.ResponseWriter, r *http.Request) {
	id, ok := vectorID(w, r)
	if !ok {
		return
	}
	v, err := s.vectors.GetVector(r.Context(), mux.Vars(r)["db"], id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type deleteVectorResponse struct {
	Deleted bool `json:"deleted"`
}

func (s *Server) handleDeleteVector(w http.ResponseWriter, r *http.Request) {
	id, ok := vectorID(w, r)
	if !ok {
		return
	}
	deleted, err := s.vectors.DeleteVector(r.Context(), mux.Vars(r)["db"], id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteVectorResponse{Deleted: deleted})
}

type searchRequest struct {
	Embedding []float32 `json:"embedding"`
	K         int       `json:"k"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	results, err := s.vectors.Search(r.Context(), mux.Vars(r)["db"], req.Embedding, req.K)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []types.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configs.CurrentConfig())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.ClusterConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	if err := s.configs.Apply(r.Context(), &cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &cfg)
}

func vectorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, fault.Wrap(fault.KindProtocol, "invalid vector id", err))
		return 0, false
	}
	return id, true
}
