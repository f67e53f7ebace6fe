package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

// Prober verifies connectivity to the backend with a minimal request.
type Prober interface {
	Probe(ctx context.Context, model string) (*types.Message, error)
	ResolveModel(model string) string
}

// ServiceInfo describes the running gateway on GET /.
type ServiceInfo struct {
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	Backend        string            `json:"backend"`
	Models         map[string]string `json:"models,omitempty"`
	ClientAuth     bool              `json:"client_api_key_validation"`
	ModelsEndpoint bool              `json:"models_endpoint"`
}

// livenessHandler handles liveness probe requests.
// Always returns 200 OK to indicate the process is alive.
func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
	}
}

// readinessHandler handles readiness probe requests.
// Returns 200 OK if the application is ready to serve traffic, 503 otherwise.
func readinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		if checker.IsReady() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}
}

// healthHandler reports readiness as JSON for humans and simple monitors.
func healthHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")

		status, code := "healthy", http.StatusOK
		if !checker.IsReady() {
			status, code = "starting", http.StatusServiceUnavailable
		}

		writeJSON(r.Context(), w, map[string]any{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}, code)
	}
}

// infoHandler describes the gateway.
func infoHandler(info ServiceInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, info, http.StatusOK)
	}
}

// testConnectionHandler sends a minimal request through the full conversion path to
// verify backend reachability and credentials.
func testConnectionHandler(prober Prober, model string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resolved := prober.ResolveModel(model)

		msg, err := prober.Probe(ctx, model)
		if err != nil {
			slog.ErrorContext(ctx, "backend connection test failed", "error", err, "model", resolved)

			errResp := asClaudeError(err)
			status := errResp.Status
			if status < http.StatusBadRequest {
				status = http.StatusServiceUnavailable
			}
			writeJSON(ctx, w, map[string]any{
				"status":     "failed",
				"error_type": errResp.Err.Type,
				"message":    errResp.Err.Message,
				"model_used": resolved,
				"timestamp":  time.Now().UTC().Format(time.RFC3339),
			}, status)
			return
		}

		writeJSON(ctx, w, map[string]any{
			"status":      "success",
			"message":     "Successfully connected to backend",
			"model_used":  resolved,
			"response_id": msg.ID,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		}, http.StatusOK)
	}
}
