package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/stillcast/internal/artifact"
	"github.com/maauso/stillcast/internal/encode"
	"github.com/maauso/stillcast/internal/engine"
	"github.com/maauso/stillcast/internal/job"
	"github.com/maauso/stillcast/internal/media"
	"github.com/maauso/stillcast/internal/session"
)

// EngineStatus reports the engine lifecycle state.
type EngineStatus interface {
	State() engine.State
}

// Limits bounds the decoded size of uploaded inputs.
type Limits struct {
	MaxAudioSize int64
	MaxImageSize int64
}

// DefaultLimits returns the default input size limits.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioSize: media.DefaultMaxAudioSize,
		MaxImageSize: media.DefaultMaxImageSize,
	}
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	jobs      *job.EncodeService
	artifacts *artifact.Registry
	engine    EngineStatus
	validator *validator.Validate
	logger    *slog.Logger
	limits    Limits
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithLimits sets the input size limits.
func WithLimits(l Limits) HandlerOption {
	return func(h *Handlers) {
		h.limits = l
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(jobs *job.EncodeService, artifacts *artifact.Registry, eng EngineStatus, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		jobs:      jobs,
		artifacts: artifacts,
		engine:    eng,
		validator: validator.New(),
		logger:    logger,
		limits:    DefaultLimits(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Engine: h.engine.State().String(),
	})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize())

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "BODY_TOO_LARGE")
			return
		}
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_base64 is not valid base64", "VALIDATION_ERROR")
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image_base64 is not valid base64", "VALIDATION_ERROR")
		return
	}

	if err := media.ValidateAudio(req.AudioName, audio, h.limits.MaxAudioSize); err != nil {
		h.writeMediaError(w, "audio", err)
		return
	}
	if err := media.ValidateImage(req.ImageName, image, h.limits.MaxImageSize); err != nil {
		h.writeMediaError(w, "image", err)
		return
	}

	created, err := h.jobs.Submit(r.Context(), job.SubmitInput{
		Audio:    encode.Source{Name: req.AudioName, Data: audio},
		Image:    encode.Source{Name: req.ImageName, Data: image},
		PushToS3: req.PushToS3,
	})
	if err != nil {
		if errors.Is(err, session.ErrOperationAlreadyInProgress) {
			writeError(w, http.StatusConflict, "an encode is already running", "OPERATION_IN_PROGRESS")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(found))
}

// CancelJob handles POST /jobs/{id}/cancel requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	err := h.jobs.Cancel(r.Context(), jobID)
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	case errors.Is(err, job.ErrJobNotActive):
		writeError(w, http.StatusConflict, err.Error(), "JOB_NOT_ACTIVE")
		return
	case err != nil:
		h.logger.Error("failed to cancel job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel job", "JOB_CANCEL_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, CreateJobResponse{ID: jobID, Status: "CANCELLING"})
}

// GetArtifact handles GET /artifacts/{id} requests.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	a, rc, err := h.artifacts.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artifact not found", "ARTIFACT_NOT_FOUND")
			return
		}
		h.logger.Error("failed to open artifact",
			slog.String("artifact_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to open artifact", "ARTIFACT_READ_FAILED")
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", a.ContentType)
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, a.ID+".mp4", a.CreatedAt, rs)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(a.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream artifact",
			slog.String("artifact_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteArtifact handles DELETE /artifacts/{id} requests.
func (h *Handlers) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.artifacts.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artifact not found", "ARTIFACT_NOT_FOUND")
			return
		}
		// The artifact is already forgotten; only the file removal failed.
		h.logger.Error("failed to remove artifact file",
			slog.String("artifact_id", id),
			slog.String("error", err.Error()),
		)
	}
	h.jobs.ForgetArtifact(r.Context(), id)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeMediaError(w http.ResponseWriter, field string, err error) {
	h.logger.Warn("input rejected",
		slog.String("field", field),
		slog.String("error", err.Error()),
	)
	switch {
	case errors.Is(err, media.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error(), "FILE_TOO_LARGE")
	case errors.Is(err, media.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_FORMAT")
	default:
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
	}
}

// maxBodySize allows both inputs at their limit in base64 plus the envelope.
func (h *Handlers) maxBodySize() int64 {
	return (h.limits.MaxAudioSize+h.limits.MaxImageSize)/3*4 + 1<<20
}

func toJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:            j.ID,
		Status:        string(j.Status),
		Progress:      j.Progress,
		Error:         j.Error,
		Resolution:    j.Resolution,
		Layout:        j.Layout,
		AudioDuration: j.AudioDuration,
		ArtifactURL:   j.ArtifactURL,
		VideoURL:      j.VideoURL,
		CreatedAt:     j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     j.UpdatedAt.Format(time.RFC3339),
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
