package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleHealth reports process health, grounded on the teacher's
// handleHealth (internal/single/core/handlers_http.go): CORS headers,
// a resource-guard snapshot compared against the configured static
// limits, and a status/warnings/errors JSON body. The "capacity at 100%
// is a warning, not a failure" distinction is carried over verbatim from
// the teacher.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var cpuPercent float64
	var memoryBytes int64
	if s.guard != nil {
		cpuPercent, memoryBytes = s.guard.Snapshot()
	}

	currentConns := s.activeConnections()
	maxConns := int64(s.cfg.MaxConnections)

	isHealthy := true
	var warnings, errs []string

	cpuHealthy := cpuPercent <= s.cfg.CPURejectThreshold
	if !cpuHealthy {
		isHealthy = false
		errs = append(errs, fmt.Sprintf("cpu exceeds reject threshold (%.1f%% > %.1f%%)", cpuPercent, s.cfg.CPURejectThreshold))
	}

	memHealthy := s.cfg.MemoryLimitBytes <= 0 || memoryBytes <= s.cfg.MemoryLimitBytes
	if !memHealthy {
		isHealthy = false
		errs = append(errs, fmt.Sprintf("memory exceeds limit (%d > %d bytes)", memoryBytes, s.cfg.MemoryLimitBytes))
	}

	var capacityPercent float64
	capacityHealthy := true
	if maxConns > 0 {
		capacityPercent = float64(currentConns) / float64(maxConns) * 100
		switch {
		case capacityPercent > 100:
			capacityHealthy = false
			isHealthy = false
			errs = append(errs, fmt.Sprintf("server over capacity (%d/%d)", currentConns, maxConns))
		case capacityPercent == 100:
			warnings = append(warnings, fmt.Sprintf("server at full capacity (%d/%d)", currentConns, maxConns))
		case capacityPercent > 90:
			warnings = append(warnings, fmt.Sprintf("server near capacity (%.1f%%)", capacityPercent))
		}
	}

	if s.writer == nil {
		isHealthy = false
		errs = append(errs, "search writer not initialized")
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !isHealthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	} else if len(warnings) > 0 {
		status = "degraded"
	}

	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"healthy": isHealthy,
		"checks": map[string]any{
			"capacity": map[string]any{
				"current":    currentConns,
				"max":        maxConns,
				"percentage": capacityPercent,
				"healthy":    capacityHealthy,
			},
			"cpu": map[string]any{
				"percentage": cpuPercent,
				"threshold":  s.cfg.CPURejectThreshold,
				"healthy":    cpuHealthy,
			},
			"memory": map[string]any{
				"used_bytes":  memoryBytes,
				"limit_bytes": s.cfg.MemoryLimitBytes,
				"healthy":     memHealthy,
			},
			"search_writer": map[string]any{
				"healthy": s.writer != nil,
			},
		},
		"warnings": warnings,
		"errors":   errs,
		"uptime":   time.Since(s.startedAt).Seconds(),
	})
}
