package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jit-bench/dashboard/service"
	"github.com/jit-bench/dashboard/types"
)

// handleHealth provides a liveness check.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"version":        Version,
		"timestamp":      time.Now(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleStatus reports the host/process snapshot plus cache counters.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"version":        Version,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"cache":          s.cacheStats(),
	}
	if s.collector != nil {
		status["system"] = s.collector.Collect()
	}
	if s.hub != nil {
		status["websocket_clients"] = s.hub.ClientCount()
	}

	s.writeJSONResponse(w, http.StatusOK, status)
}

// handleSummary serves the trend summary over a trailing days window.
func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days, ok := s.daysParam(w, r)
	if !ok {
		return
	}

	summary, err := s.svc.Summary(r.Context(), days, refreshParam(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, summary)
}

// handleLatest serves only the per-machine latest comparison block.
func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Summary(r.Context(), 0, refreshParam(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"machines":     summary.Machines,
		"latest":       summary.Latest,
		"generated_at": summary.GeneratedAt,
	})
}

// handleDay serves the single-day detail view.
func (s *server) handleDay(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if err := types.ValidateDate(date); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Date must be YYYY-MM-DD")
		return
	}

	detail, err := s.svc.DayDetail(r.Context(), date, refreshParam(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, detail)
}

// handleBenchmarkTrend serves one benchmark's history.
func (s *server) handleBenchmarkTrend(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	days, ok := s.daysParam(w, r)
	if !ok {
		return
	}

	trend, err := s.svc.BenchmarkTrend(r.Context(), name, days, r.URL.Query().Get("machine"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, trend)
}

// handleClearCache drops every cached dataset.
func (s *server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	cleared := s.svc.ClearCache()

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"cleared": cleared,
	})
}

// daysParam parses the optional days query parameter. Zero means "use the
// service default"; a malformed or negative value is a client error.
func (s *server) daysParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0, true
	}

	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 {
		s.writeErrorResponse(w, http.StatusBadRequest, "days must be a positive integer")
		return 0, false
	}
	return days, true
}

func refreshParam(r *http.Request) bool {
	refresh := strings.ToLower(r.URL.Query().Get("refresh"))
	return refresh == "true" || refresh == "1"
}

// writeServiceError maps service errors onto HTTP statuses by type: unknown
// benchmarks are 404, upstream fetch failures 502, the rest 500.
func (s *server) writeServiceError(w http.ResponseWriter, err error) {
	var fetchErr *types.FetchError
	switch {
	case errors.Is(err, service.ErrUnknownBenchmark):
		s.writeErrorResponse(w, http.StatusNotFound, "Benchmark not found")
	case errors.As(err, &fetchErr):
		s.log.WithError(err).Error("Upstream fetch failed")
		s.writeErrorResponse(w, http.StatusBadGateway, "Failed to fetch benchmark data")
	default:
		s.log.WithError(err).Error("Request failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
	}
}

// cacheStats flattens the registry's cache counters into a small map for
// the status endpoint.
func (s *server) cacheStats() map[string]float64 {
	stats := make(map[string]float64)

	families, err := s.registry.Gather()
	if err != nil {
		s.log.WithError(err).Warn("Failed to gather cache metrics")
		return stats
	}

	const prefix = "jitbench_cache_"
	for _, family := range families {
		name, ok := strings.CutPrefix(family.GetName(), prefix)
		if !ok {
			continue
		}
		var total float64
		counted := false
		for _, metric := range family.GetMetric() {
			if counter := metric.GetCounter(); counter != nil {
				total += counter.GetValue()
				counted = true
			}
		}
		if counted {
			stats[name] = total
		}
	}
	return stats
}

// writeJSONResponse writes a JSON response with the given status code.
func (s *server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response with the given status code
// and message.
func (s *server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":   true,
		"message": message,
		"status":  statusCode,
	})
}
