// Package gateway exposes the quotagate HTTP and WebSocket API.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/quotagate/internal/events"
	"github.com/dohr-michael/quotagate/internal/files"
	"github.com/dohr-michael/quotagate/internal/gateway/ws"
	"github.com/dohr-michael/quotagate/internal/history"
	"github.com/dohr-michael/quotagate/internal/orchestrator"
	"github.com/dohr-michael/quotagate/internal/quota"
)

// Config holds dependencies for the gateway server.
type Config struct {
	Bus     *events.Bus
	Coord   *orchestrator.Coordinator
	Source  *files.Source
	Store   *quota.Store
	History *history.Store // nil-safe: /api/runs responds 503 without a store
	Host    string
	Port    int
}

// Server is the quotagate gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	coord      *orchestrator.Coordinator
	source     *files.Source
	store      *quota.Store
	hist       *history.Store
}

// NewServer creates a new gateway server.
func NewServer(cfg Config) *Server {
	s := &Server{
		bus:    cfg.Bus,
		coord:  cfg.Coord,
		source: cfg.Source,
		store:  cfg.Store,
		hist:   cfg.History,
	}
	s.hub = ws.NewHub(cfg.Bus, s)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// Routes
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", s.hub.ServeWS)
	r.Get("/api/events", s.handleEvents)

	r.Get("/api/entries", s.handleEntries)
	r.Post("/api/filter", s.handleSetFilter)
	r.Get("/api/quota", s.handleQuota)

	r.Post("/api/refresh", s.handleRefresh)
	r.Post("/api/refresh/stop", s.handleStop)
	r.Get("/api/refresh/status", s.handleStatus)

	r.Get("/api/runs", s.handleRuns)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: r,
	}

	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("quotagate gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// entryJSON is one listing row with its quota result, when known.
type entryJSON struct {
	Name     string        `json:"name"`
	Path     string        `json:"path,omitempty"`
	Size     int64         `json:"size,omitempty"`
	Modified time.Time     `json:"modified,omitzero"`
	Quota    *quota.Result `json:"quota,omitempty"`
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
		s.source.SetPage(n)
	}

	results := s.store.Snapshot()
	entries := s.source.Entries()
	rows := make([]entryJSON, len(entries))
	for i, e := range entries {
		rows[i] = entryJSON{Name: e.Name, Path: e.Path, Size: e.Size, Modified: e.Modified}
		if res, ok := results[e.Name]; ok {
			q := res
			rows[i].Quota = &q
		}
	}

	writeJSON(w, map[string]any{
		"entries":    rows,
		"total":      len(rows),
		"page":       s.source.Page(),
		"page_count": s.source.PageCount(),
		"filter":     s.source.Filter(),
	})
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filter string `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	s.source.SetFilter(body.Filter)
	writeJSON(w, map[string]any{"filter": body.Filter, "total": len(s.source.Names())})
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.store.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Scope       string `json:"scope"`
		Concurrency int    `json:"concurrency"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
	}

	scope, err := orchestrator.ParseScope(body.Scope)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.coord.RequestRefresh(context.WithoutCancel(r.Context()), scope, body.Concurrency)

	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "accepted", "scope": string(scope)})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.coord.Stop()
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.coord.StatusSnapshot())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		http.Error(w, "run history not available", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	records, err := s.hist.Recent(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, records)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	hist := s.bus.History(limit)

	type eventJSON struct {
		ID        string             `json:"id"`
		Type      string             `json:"type"`
		Timestamp string             `json:"timestamp"`
		Source    events.EventSource `json:"source"`
		Payload   map[string]any     `json:"payload"`
	}

	result := make([]eventJSON, len(hist))
	for i, e := range hist {
		result[i] = eventJSON{
			ID:        e.ID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		}
	}

	writeJSON(w, result)
}

// HandleRequest dispatches WebSocket request frames. It implements
// ws.Requester.
func (s *Server) HandleRequest(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch ws.Method(method) {
	case ws.MethodRefresh:
		var p struct {
			Scope       string `json:"scope"`
			Concurrency int    `json:"concurrency"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("invalid params")
			}
		}
		scope, err := orchestrator.ParseScope(p.Scope)
		if err != nil {
			return nil, err
		}
		s.coord.RequestRefresh(context.WithoutCancel(ctx), scope, p.Concurrency)
		return map[string]string{"status": "accepted", "scope": string(scope)}, nil

	case ws.MethodStop:
		s.coord.Stop()
		return map[string]string{"status": "stopping"}, nil

	case ws.MethodStatus:
		return s.coord.StatusSnapshot(), nil

	case ws.MethodSetFilter:
		var p struct {
			Filter string `json:"filter"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params")
		}
		s.source.SetFilter(p.Filter)
		return map[string]any{"filter": p.Filter, "total": len(s.source.Names())}, nil

	default:
		return nil, fmt.Errorf("unknown method: %s", method)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
