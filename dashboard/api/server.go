// Package api serves the dashboard's HTTP surface: summary, day-detail and
// trend views over gorilla/mux, a WebSocket refresh hub, Prometheus metrics
// and health/status endpoints.
package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jit-bench/dashboard/config"
	"github.com/jit-bench/dashboard/service"
	"github.com/jit-bench/dashboard/sysinfo"
)

// Version is reported by the health and status endpoints.
const Version = "1.2.0"

// Server is the dashboard HTTP API lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

type server struct {
	cfg       *config.ServerConfig
	svc       service.Service
	hub       *Hub
	collector *sysinfo.Collector
	registry  *prometheus.Registry
	metrics   *HTTPMetrics
	log       logrus.FieldLogger

	httpServer *http.Server
	upgrader   websocket.Upgrader
	startedAt  time.Time
}

// NewServer creates the API server. The hub may be nil when WebSocket
// events are not wanted; every other dependency is required.
func NewServer(
	cfg *config.ServerConfig,
	svc service.Service,
	hub *Hub,
	collector *sysinfo.Collector,
	registry *prometheus.Registry,
	log logrus.FieldLogger,
) Server {
	return &server{
		cfg:       cfg,
		svc:       svc,
		hub:       hub,
		collector: collector,
		registry:  registry,
		metrics:   NewHTTPMetrics(registry),
		log:       log.WithField("component", "api-server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start launches the hub and the HTTP listener; it returns immediately.
func (s *server) Start(ctx context.Context) error {
	s.log.Info("Starting API server")
	s.startedAt = time.Now()

	if s.hub != nil {
		s.hub.Run()
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("API server failed")
		}
	}()

	return nil
}

// Stop drains in-flight requests and shuts the hub down.
func (s *server) Stop() error {
	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("Failed to shutdown API server gracefully")
		return err
	}

	if s.hub != nil {
		s.hub.Stop()
	}

	s.log.Info("API server stopped")
	return nil
}

// setupRoutes configures all HTTP routes and middleware.
func (s *server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	if s.cfg.EnableCORS {
		router.Use(s.corsMiddleware)
	}
	router.Use(s.requestIDMiddleware)
	router.Use(s.loggingMiddleware)
	router.Use(s.metricsMiddleware)
	router.Use(s.recoveryMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	api.HandleFunc("/status", s.handleStatus).Methods("GET", "OPTIONS")
	api.HandleFunc("/summary", s.handleSummary).Methods("GET", "OPTIONS")
	api.HandleFunc("/latest", s.handleLatest).Methods("GET", "OPTIONS")
	api.HandleFunc("/days/{date}", s.handleDay).Methods("GET", "OPTIONS")
	api.HandleFunc("/benchmarks/{name}/trend", s.handleBenchmarkTrend).Methods("GET", "OPTIONS")
	api.HandleFunc("/cache/clear", s.handleClearCache).Methods("POST", "OPTIONS")

	if s.hub != nil {
		api.HandleFunc("/ws", s.hub.ServeWS(&s.upgrader))
	}

	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")

	return router
}

// corsMiddleware allows cross-origin requests from any dashboard frontend.
func (s *server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags every request (and its response) with a uuid.
func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), requestID)))
	})
}

// loggingMiddleware logs HTTP requests with their status and duration.
func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		s.log.WithFields(logrus.Fields{
			"request_id":  requestIDFrom(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapper.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request processed")
	})
}

// metricsMiddleware records request counts and latency per route template.
func (s *server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}

		s.metrics.Requests.WithLabelValues(route, r.Method, strconv.Itoa(wrapper.statusCode)).Inc()
		s.metrics.Duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// recoveryMiddleware turns handler panics into 500 responses.
func (s *server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.WithField("error", err).Error("Panic in HTTP handler")
				s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status codes.
// It forwards Hijack and Flush to the underlying writer so WebSocket
// upgrades and streaming keep working through the wrapping middleware.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (w *responseWriterWrapper) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
