// Package controlplane provides a read-only HTTP inspection surface over
// the daemon's discovered devices: their queue pairs, memory registration
// cache occupancy, and progress-engine configuration. It carries no
// persistent store and no authentication; it exists purely for operators
// and cmd/kfabricctl to inspect live daemon state (SPEC ADDED §6.3).
package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hpc-fabrics/kfabric-verbs/internal/logger"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/config"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/registry"
)

// Server is the control plane's HTTP server.
//
// Endpoints:
//   - GET /health: liveness probe
//   - GET /api/v1/devices: list discovered devices
//   - GET /api/v1/devices/{name}/qps: list a device's queue pairs
//   - GET /api/v1/devices/{name}/mrcache: report MR cache occupancy
//   - GET /api/v1/progress: report progress engine configuration
type Server struct {
	server       *http.Server
	reg          *registry.Registry
	cfg          *config.Tunables
	shutdownOnce sync.Once
}

// New creates a control plane server over reg, configured per cfg.ControlPlane.
// The server is created in a stopped state; call Start to begin serving.
func New(reg *registry.Registry, cfg *config.Tunables) *Server {
	s := &Server{reg: reg, cfg: cfg}
	s.server = &http.Server{
		Addr:         cfg.ControlPlane.Addr,
		Handler:      s.newRouter(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// server fails to serve.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("controlplane server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("controlplane server failed: %w", err)
	}
}

// Stop gracefully shuts the server down. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("controlplane server shutdown: %w", shutdownErr)
		}
	})
	return err
}

func (s *Server) newRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/{name}/qps", s.handleListQPs)
		r.Get("/devices/{name}/mrcache", s.handleMRCache)
		r.Get("/progress", s.handleProgress)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type deviceView struct {
	Name         string `json:"name"`
	ProviderName string `json:"provider_name"`
	NodeName     string `json:"node_name"`
	QueueCount   int    `json:"queue_count"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.reg.Devices()
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView{
			Name:         d.Name,
			ProviderName: d.Info.ProviderName,
			NodeName:     d.Info.NodeName,
			QueueCount:   len(d.QPs()),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type qpView struct {
	ID    uint32 `json:"id"`
	State string `json:"state"`
	VNI   uint16 `json:"vni,omitempty"`
	HasVNI bool  `json:"has_vni"`
}

func (s *Server) handleListQPs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, err := s.reg.GetDevice(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	qps := d.QPs()
	views := make([]qpView, 0, len(qps))
	for _, qp := range qps {
		vni, hasVNI := qp.VNI()
		views = append(views, qpView{ID: qp.ID(), State: qp.State().String(), VNI: vni, HasVNI: hasVNI})
	}
	writeJSON(w, http.StatusOK, views)
}

type mrCacheView struct {
	Device       string `json:"device"`
	CachedRegions int   `json:"cached_regions"`
}

func (s *Server) handleMRCache(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, err := s.reg.GetDevice(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, mrCacheView{Device: name, CachedRegions: d.MRCache.Len()})
}

type progressView struct {
	PollInterval string `json:"poll_interval"`
}

func (s *Server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, progressView{PollInterval: s.cfg.Progress.PollInterval.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs each request at INFO, mirroring the teacher's
// request-scoped logging shape (method, path, status, duration).
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("controlplane request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
