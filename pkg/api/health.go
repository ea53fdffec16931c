package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type readyResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	ShardsTotal       int       `json:"shardsTotal"`
	ShardsAvailable   int       `json:"shardsAvailable"`
	UnavailableShards []string  `json:"unavailableShards,omitempty"`
	Message           string    `json:"message,omitempty"`
}

// handleHealthz is the liveness check: the process is up and routing
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: time.Now()})
}

// handleReadyz reports whether the gateway can actually serve traffic: a
// cluster config is loaded and at least one shard answers probes
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot.Snapshot()
	shards := snap.Config.Shards

	resp := readyResponse{Timestamp: time.Now(), ShardsTotal: len(shards)}

	if len(shards) == 0 {
		resp.Status = "not ready"
		resp.Message = "no cluster config published"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	available, unavailable := s.shards.Partition(shards)
	resp.ShardsAvailable = len(available)
	for _, sh := range unavailable {
		resp.UnavailableShards = append(resp.UnavailableShards, sh.ID)
	}

	if len(available) == 0 {
		resp.Status = "not ready"
		resp.Message = "no shard reachable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Status = "ready"
	writeJSON(w, http.StatusOK, resp)
}
