// Package httpapi wires the consumer interface (spec.md §6): radar set
// management, coverage requests (plain JSON or streamed via SSE), metrics,
// and a health check, over a chi router.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/skywave-radar/coverage/internal/coverage"
	custommw "github.com/skywave-radar/coverage/internal/middleware"
	"github.com/skywave-radar/coverage/internal/orchestrator"
)

// DefaultOperationalRadiusM bounds each radar's spatial-index footprint
// when no explicit coverage-request radius is given.
const DefaultOperationalRadiusM = 470_000.0

// Server holds the services the router dispatches to.
type Server struct {
	Orchestrator     *orchestrator.Orchestrator
	Cache            *coverage.Cache
	RadiusM          float64
	GatewayVerifyKey string // empty disables gateway verification
}

// NewRouter builds the full chi router: middleware chain, CORS, and the
// /api/v1 routes, mirroring cmd/api/main.go's router assembly in shape.
func (s *Server) NewRouter(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(custommw.RequestIDChi)
	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.Logger)
	r.Use(custommw.Recoverer)
	r.Use(custommw.Timeout(60 * time.Second))
	r.Use(custommw.SecurityHeaders)
	r.Use(custommw.GatewayVerify(s.GatewayVerifyKey))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(custommw.ContentType("application/json"))
		r.With(custommw.LogFailedRequestBodies).Post("/radars", s.handleSetRadars)
		r.Delete("/radars/{name}", s.handleInvalidateRadar)
		r.Get("/coverage", s.handleCoverage)
		r.Get("/metrics", s.handleMetrics)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetRadars(w http.ResponseWriter, r *http.Request) {
	var configs []RadarConfig
	if err := json.NewDecoder(r.Body).Decode(&configs); err != nil {
		writeErrorWithRequestID(w, r, http.StatusBadRequest, fmt.Errorf("decode radar configs: %w", err))
		return
	}

	radars := make([]coverage.Radar, len(configs))
	for i, rc := range configs {
		radars[i] = rc.ToRadar()
	}

	radiusM := s.RadiusM
	if radiusM <= 0 {
		radiusM = DefaultOperationalRadiusM
	}
	s.Orchestrator.SetRadars(radars, radiusM)

	writeJSON(w, http.StatusOK, map[string]int{"count": len(radars)})
}

func (s *Server) handleInvalidateRadar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.Orchestrator.InvalidateRadar(name)
	w.WriteHeader(http.StatusNoContent)
}

// handleCoverage implements GET /api/v1/coverage per spec.md §6's
// request_coverage: a plain JSON array response by default, or an SSE
// stream (one event per completed tile) when the client sends
// Accept: text/event-stream.
func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	latIdx, err1 := strconv.Atoi(q.Get("lat_idx"))
	lonIdx, err2 := strconv.Atoi(q.Get("lon_idx"))
	if err1 != nil || err2 != nil {
		writeErrorWithRequestID(w, r, http.StatusBadRequest, fmt.Errorf("lat_idx and lon_idx are required integers"))
		return
	}

	targetAGL, _ := strconv.ParseFloat(q.Get("target_agl_m"), 64)
	targetRCS, _ := strconv.ParseFloat(q.Get("target_rcs"), 64)
	if targetRCS <= 0 {
		targetRCS = 1.0
	}

	target := coverage.Target{AGLM: targetAGL, RCSM2: targetRCS}
	windows := []orchestrator.TileWindow{{LatIdx: latIdx, LonIdx: lonIdx}}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	results := s.Orchestrator.RequestCoverage(ctx, s.Cache, target, windows)

	if wantsSSE(r) {
		s.streamSSE(w, r, results)
		return
	}

	out := make([]orchestrator.Result, 0, 1)
	for res := range results {
		out = append(out, res)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tilesComputed, cacheHits, lastComputeMS := s.Orchestrator.MetricsSnapshot()
	writeJSON(w, http.StatusOK, map[string]int64{
		"tiles_computed":  tilesComputed,
		"cache_hits":      cacheHits,
		"last_compute_ms": lastComputeMS,
		"cache_len":       int64(s.Cache.Len()),
	})
}

func wantsSSE(r *http.Request) bool {
	return r.Header.Get("Accept") == "text/event-stream"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorWithRequestID(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"request_id": custommw.GetRequestID(r.Context()),
	})
}
