// Package api provides the HTTP API handlers and routing for the trainer service.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"mltrain/internal/apperrors"
	"mltrain/internal/health"
	"mltrain/internal/job"
)

// maxRequestBodySize limits JSON request bodies to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// defaultMaxUploadSize bounds training set uploads when no limit is configured
const defaultMaxUploadSize = 512 << 20 // 512 MB

// multipartMemoryLimit is how much of an upload is held in memory before
// spilling to temp files
const multipartMemoryLimit = 32 << 20 // 32 MB

// Handler contains HTTP handlers for the models API
type Handler struct {
	svc           *job.Service
	health        *health.Checker
	maxUploadSize int64
}

// NewHandler creates a new API handler
func NewHandler(svc *job.Service, healthChecker *health.Checker, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &Handler{
		svc:           svc,
		health:        healthChecker,
		maxUploadSize: maxUploadSize,
	}
}

// RegisterModel handles POST /v1/models
func (h *Handler) RegisterModel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body: "+err.Error())
		return
	}

	j, err := h.svc.Register(r.Context(), payload)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, j)
}

// GetModel handles GET /v1/models/{modelId}
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	modelID := r.PathValue("modelId")
	if modelID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "Model ID is required")
		return
	}

	j, err := h.svc.Get(r.Context(), modelID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, j)
}

// AttachTrainingSet handles POST /v1/models/{modelId}/trainingset.
// Expects a multipart form with the training set under "file" plus the
// dataset parameters as form fields.
func (h *Handler) AttachTrainingSet(w http.ResponseWriter, r *http.Request) {
	modelID := r.PathValue("modelId")
	if modelID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "Model ID is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		h.handleError(w, r, apperrors.Validation("file", "training set file is required"))
		return
	}
	defer file.Close()

	ds, err := datasetFromForm(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	j, err := h.svc.AttachDataset(r.Context(), modelID, file, ds)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, j)
}

// DispatchTraining handles PUT /v1/models/{modelId}
func (h *Handler) DispatchTraining(w http.ResponseWriter, r *http.Request) {
	modelID := r.PathValue("modelId")
	if modelID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "Model ID is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req struct {
		Evaluate bool `json:"evaluate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body: "+err.Error())
		return
	}

	j, err := h.svc.Dispatch(r.Context(), modelID, req.Evaluate)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, j)
}

// DownloadArtifact handles GET /v1/models/{modelId}/artifacts/{artifact}
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	modelID := r.PathValue("modelId")
	artifact := r.PathValue("artifact")
	if modelID == "" || artifact == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "Model ID and artifact name are required")
		return
	}

	rc, size, err := h.svc.Artifact(r.Context(), modelID, artifact)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact))
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are out, nothing left to do but log
		slog.Warn("Artifact download interrupted", "modelId", modelID, "error", err)
	}
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if dependencies (job store, blob store) are unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}

// NotFound handles unmatched routes with a JSON body.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "Route not found")
}

// datasetFromForm builds the dataset parameters from multipart form fields.
func datasetFromForm(r *http.Request) (job.Dataset, error) {
	ds := job.Dataset{
		TargetColumn: r.FormValue("target_column"),
		SkipRows:     r.PostForm["skip_rows"],
		SkipColumns:  r.PostForm["skip_columns"],
		Separator:    r.FormValue("sep"),
		Decimal:      r.FormValue("decimal"),
	}

	if v := r.FormValue("test_size"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return ds, apperrors.Validation("test_size", "test size must be a number")
		}
		ds.TestSize = f
	}

	if v := r.FormValue("categorical_multiclass"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ds, apperrors.Validation("categorical_multiclass", "categorical multiclass must be a boolean")
		}
		ds.CategoricalMulticlass = &b
	}

	return ds, nil
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response carrying the error kind so clients
// can tell conflict flavors apart without parsing messages.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{"error": message, "kind": kind})
}

// handleError handles errors from the service layer with appropriate HTTP
// status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	writeError(w, status, apperrors.Kind(err), err.Error())
}
