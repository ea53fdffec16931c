package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/quiverdb/quiver/pkg/fault"
)

// handleEvents streams cluster events as server-sent events until the
// client disconnects. Delivery is best effort; a slow client skips
// events rather than backing up the broker.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, fault.New(fault.KindUnavailable, "event stream not enabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fault.New(fault.KindInternal, "streaming unsupported by connection"))
		return
	}

	sub := s.events.Subscribe()
	defer s.events.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
