// Package api exposes eqlproxy's admin HTTP surface: Prometheus
// metrics, liveness/readiness probes, schema introspection and
// hot-reload, and the embedded status dashboard.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudshield/eqlproxy/internal/config"
	"github.com/cloudshield/eqlproxy/internal/health"
	"github.com/cloudshield/eqlproxy/internal/metrics"
	"github.com/cloudshield/eqlproxy/internal/schema"
)

// ConnectionCounter reports the number of client connections currently
// proxied, for the /status endpoint.
type ConnectionCounter interface {
	ActiveConnections() int
}

// Server is the admin HTTP server: metrics, health, and schema
// endpoints, plus the embedded dashboard.
type Server struct {
	schema      *schema.Registry
	schemaPath  string
	healthCheck *health.Checker
	metrics     *metrics.Collector
	conns       ConnectionCounter
	httpServer  *http.Server
	startTime   time.Time
	listenCfg   config.ListenConfig
}

// NewServer creates a new admin API server. schemaPath is the file the
// /schema/reload endpoint re-reads on demand, independent of the
// background file watcher.
func NewServer(reg *schema.Registry, schemaPath string, hc *health.Checker, m *metrics.Collector, conns ConnectionCounter, lc config.ListenConfig) *Server {
	return &Server{
		schema:      reg,
		schemaPath:  schemaPath,
		healthCheck: hc,
		metrics:     m,
		conns:       conns,
		startTime:   time.Now(),
		listenCfg:   lc,
	}
}

// Start starts the HTTP API server.
func (s *Server) Start(port int) error {
	r := mux.NewRouter()

	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/schema", s.schemaHandler).Methods("GET")
	r.HandleFunc("/schema/reload", s.schemaReloadHandler).Methods("POST")

	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	r.HandleFunc("/readyz", s.readyHandler).Methods("GET")

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.HandleFunc("/", s.dashboardHandler).Methods("GET")
	r.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%d", s.listenCfg.APIBind, port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[api] admin API listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// --- Health handlers ---

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := s.healthCheck == nil || s.healthCheck.IsHealthy()

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	resp := map[string]interface{}{"status": boolToStatus(healthy)}
	if s.healthCheck != nil {
		resp["upstream"] = s.healthCheck.GetState()
	}
	writeJSON(w, status, resp)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck == nil || s.healthCheck.IsHealthy() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// --- Status handler ---

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startTime).Seconds()
	healthy := s.healthCheck == nil || s.healthCheck.IsHealthy()

	active := 0
	if s.conns != nil {
		active = s.conns.ActiveConnections()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds":     int(uptime),
		"go_version":         runtime.Version(),
		"goroutines":         runtime.NumGoroutine(),
		"memory_mb":          float64(mem.Alloc) / 1024 / 1024,
		"connections_active": active,
		"upstream_healthy":   healthy,
		"listen": map[string]int{
			"postgres_port": s.listenCfg.PostgresPort,
			"api_port":      s.listenCfg.APIPort,
		},
	})
}

// --- Schema handlers ---

type schemaColumnResponse struct {
	Name      string   `json:"name"`
	Encrypted bool     `json:"encrypted"`
	CastType  string   `json:"cast_type,omitempty"`
	Indexes   []string `json:"indexes,omitempty"`
}

type schemaTableResponse struct {
	Name    string                  `json:"name"`
	Columns []schemaColumnResponse `json:"columns"`
}

func (s *Server) schemaHandler(w http.ResponseWriter, r *http.Request) {
	tables := s.schema.NewSessionView().Snapshot()

	resp := make([]schemaTableResponse, 0, len(tables))
	for _, t := range tables {
		tr := schemaTableResponse{Name: t.Name}
		for _, name := range t.Order {
			col := t.Columns[name]
			cr := schemaColumnResponse{Name: name, Encrypted: col.Encrypted, CastType: col.CastType}
			for idx := range col.Indexes {
				cr.Indexes = append(cr.Indexes, string(idx))
			}
			tr.Columns = append(tr.Columns, cr)
		}
		resp = append(resp, tr)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) schemaReloadHandler(w http.ResponseWriter, r *http.Request) {
	if s.schemaPath == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no schema path configured"})
		return
	}
	tables, err := schema.LoadFile(s.schemaPath)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SchemaReloaded(false)
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.schema.Reload(tables)
	if s.metrics != nil {
		s.metrics.SchemaReloaded(true)
	}
	log.Printf("[api] schema reloaded on demand, %d tables", len(tables))
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "tables": len(tables)})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
