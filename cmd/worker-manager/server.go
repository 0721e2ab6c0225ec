package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"deal-engine/internal/common/database"
	"deal-engine/internal/common/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readyTimeout = 5 * time.Second

// pingFunc adapts a health check function to database.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// newServer serves /health, /ready and /metrics. /ready pings every
// dependency and answers 503 when any of them fails.
func newServer(addr string, deps map[string]database.Pinger, metrics http.Handler, log logger.Logger) *http.Server {
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		failed, errs := database.CheckAll(ctx, deps)
		if len(failed) > 0 {
			details := make(map[string]string, len(errs))
			for name, err := range errs {
				details[name] = err.Error()
			}
			log.Warn("Readiness check failed", map[string]interface{}{"failed": failed})
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "not_ready",
				"failed": failed,
				"errors": details,
				"time":   time.Now().Format(time.RFC3339),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", metrics)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
