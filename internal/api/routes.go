package api

import (
	"net/http"

	"mltrain/internal/health"
	"mltrain/internal/job"
	"mltrain/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	JobService    *job.Service
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
	MaxUploadSize int64
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.JobService, cfg.HealthChecker, cfg.MaxUploadSize)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Model endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/models", authMiddleware(http.HandlerFunc(handler.RegisterModel)))
	mux.Handle("GET /v1/models/{modelId}", authMiddleware(http.HandlerFunc(handler.GetModel)))
	mux.Handle("POST /v1/models/{modelId}/trainingset", authMiddleware(http.HandlerFunc(handler.AttachTrainingSet)))
	mux.Handle("PUT /v1/models/{modelId}", authMiddleware(http.HandlerFunc(handler.DispatchTraining)))
	mux.Handle("GET /v1/models/{modelId}/artifacts/{artifact}", authMiddleware(http.HandlerFunc(handler.DownloadArtifact)))

	// Everything else gets a JSON 404
	mux.HandleFunc("/", handler.NotFound)

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
