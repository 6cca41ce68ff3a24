// Package server exposes the map state of each region over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/netmap/internal/cluster"
	"github.com/MeKo-Tech/netmap/internal/geojson"
	"github.com/MeKo-Tech/netmap/internal/mapstate"
	"github.com/MeKo-Tech/netmap/internal/metrics"
	"github.com/MeKo-Tech/netmap/internal/search"
	"github.com/MeKo-Tech/netmap/internal/types"
)

// Config configures a Server.
type Config struct {
	Engine       mapstate.Config
	CacheControl string
	// StatusInterval is the push interval of the status stream.
	StatusInterval time.Duration
	// LoadTimeout bounds the initial region load.
	LoadTimeout time.Duration
	// SessionIdle closes views that saw no request for this long.
	SessionIdle time.Duration
	MaxSessions int
	// RegionTTL is how long a loaded region dataset is shared by new views.
	RegionTTL  time.Duration
	PrettyJSON bool
}

// Server holds one synchronizer per client view. Views of a region share the
// region dataset but not their filter, selection or viewport state.
type Server struct {
	regions  *regionStore
	searcher search.Searcher
	cfg      Config
	logger   *slog.Logger
	sessions *sessions
}

// New creates a server. searcher may be nil.
func New(store mapstate.Store, searcher search.Searcher, cfg Config, logger *slog.Logger) *Server {
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 250 * time.Millisecond
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 2 * time.Minute
	}
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = 30 * time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1024
	}
	if cfg.RegionTTL <= 0 {
		cfg.RegionTTL = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Engine.Logger == nil {
		cfg.Engine.Logger = logger
	}
	return &Server{
		regions:  newRegionStore(store, cfg.RegionTTL),
		searcher: searcher,
		cfg:      cfg,
		logger:   logger,
		sessions: newSessions(cfg.MaxSessions, cfg.SessionIdle),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/regions", s.handleRegions)
	mux.HandleFunc("POST /api/{region}/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/{region}/sessions/{session}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/{region}/renderables", s.handleRenderables)
	mux.HandleFunc("GET /api/{region}/filters", s.handleFilters)
	mux.HandleFunc("GET /api/{region}/status", s.handleStatus)
	mux.HandleFunc("GET /api/{region}/status/stream", s.handleStatusStream)
	mux.HandleFunc("POST /api/{region}/events", s.handleEvent)
	mux.HandleFunc("GET /api/{region}/clusters/{category}/{id}/leaves", s.handleLeaves)
	return s.instrument(mux)
}

// Close stops every view.
func (s *Server) Close() {
	s.sessions.purge()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	var out []types.Region
	for _, code := range types.RegionCodes() {
		region, _ := types.LookupRegion(code)
		out = append(out, region)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleRenderables records the viewport and answers with the data loaded so
// far. A viewport fetch it schedules lands after the debounce window; clients
// re-request when the loader version on the status stream changes.
func (s *Server) handleRenderables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v, err := parseViewport(q.Get("west"), q.Get("south"), q.Get("east"), q.Get("north"), q.Get("zoom"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	sy, err := s.view(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := sy.OnViewportChanged(v); err != nil {
		s.writeError(w, err)
		return
	}
	rend, err := sy.Renderables(r.Context(), v)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data, err := geojson.Marshal(geojson.FromRenderables(rend), s.cfg.PrettyJSON)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.headers(w, "application/geo+json")
	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	sy, err := s.view(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sy.FilterOptions())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sy, err := s.view(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sy.Status())
}

// handleStatusStream pushes the region status as server-sent events.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	sy, err := s.view(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Expose-Headers", SessionHeader)

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	var lastVersion uint64
	send := func(force bool) {
		st := sy.Status()
		if !force && st.Loader.Version == lastVersion {
			return
		}
		lastVersion = st.Loader.Version
		data, err := json.Marshal(st)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	send(true)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			send(false)
		}
	}
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev mapstate.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&ev); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	sy, err := s.view(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ev.Type == mapstate.EventInvalidate {
		s.regions.forget(sy.Region().Code)
	}
	res, err := sy.Dispatch(r.Context(), ev)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLeaves(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: cluster id %q", errBadRequest, r.PathValue("id")))
		return
	}
	limit, err := intParam(r, "limit", 10)
	if err != nil {
		s.writeError(w, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sy, err := s.view(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	leaves, err := sy.Leaves(r.Context(), types.Category(r.PathValue("category")), id, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, geojson.FromLocations(leaves))
}

var errBadRequest = errors.New("bad request")

func parseViewport(west, south, east, north, zoom string) (types.Viewport, error) {
	raw := []struct {
		name, value string
	}{{"west", west}, {"south", south}, {"east", east}, {"north", north}, {"zoom", zoom}}

	var vals [5]float64
	for i, p := range raw {
		if p.value == "" {
			return types.Viewport{}, fmt.Errorf("%w: missing %s", errBadRequest, p.name)
		}
		f, err := strconv.ParseFloat(p.value, 64)
		if err != nil {
			return types.Viewport{}, fmt.Errorf("%w: %s: %v", errBadRequest, p.name, err)
		}
		vals[i] = f
	}
	v := types.Viewport{
		BoundingBox: types.BoundingBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]},
		Zoom:        vals[4],
	}
	return v, v.Validate()
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, types.ErrInvalidViewport),
		errors.Is(err, mapstate.ErrUnknownEvent),
		errors.Is(err, mapstate.ErrInvalidRenderMode):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnknownRegion),
		errors.Is(err, cluster.ErrUnknownCluster),
		errors.Is(err, mapstate.ErrUnknownLocation),
		errors.Is(err, ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, mapstate.ErrNoSearcher):
		return http.StatusNotImplemented
	case errors.Is(err, mapstate.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) headers(w http.ResponseWriter, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Expose-Headers", SessionHeader)
	w.Header().Set("Cache-Control", s.cfg.CacheControl)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	s.headers(w, "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if s.cfg.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
