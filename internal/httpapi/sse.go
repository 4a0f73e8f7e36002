package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/skywave-radar/coverage/internal/orchestrator"
)

// streamSSE writes one "coverage" Server-Sent Event per result as it
// arrives, then a final "done" event once the channel closes.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, results <-chan orchestrator.Result) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorWithRequestID(w, r, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for res := range results {
		payload, err := json.Marshal(res)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: coverage\ndata: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}
