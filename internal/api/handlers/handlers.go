package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/shaneweinberger/Finsight-V2.0/internal/api/middleware"
	"github.com/shaneweinberger/Finsight-V2.0/internal/jobs"
	"github.com/shaneweinberger/Finsight-V2.0/internal/pipeline"
)

// PipelineService is the slice of the drain controller the HTTP surface
// needs. Narrowed to an interface so handlers can be tested with a stub.
type PipelineService interface {
	RunCycle(ctx context.Context) (*pipeline.CycleResult, error)
	Reprocess(ctx context.Context, userID string) error
}

// PipelineHandler handles pipeline-related endpoints.
type PipelineHandler struct {
	service   PipelineService
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(service PipelineService, publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *PipelineHandler {
	return &PipelineHandler{
		service:   service,
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// Register wires the handler's routes into the mux.
func (h *PipelineHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/pipeline/process", h.Process)
	mux.HandleFunc("POST /api/pipeline/drain", h.Drain)
	mux.HandleFunc("POST /api/pipeline/reprocess", h.Reprocess)
	mux.HandleFunc("GET /api/jobs/{id}", h.JobStatus)
	mux.HandleFunc("GET /healthz", h.Health)
}

// Process handles POST /api/pipeline/process: one synchronous batch cycle.
func (h *PipelineHandler) Process(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunCycle(r.Context())
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	if result.Empty {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"message": "No pending transactions found.",
			"result":  result,
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// Drain handles POST /api/pipeline/drain: enqueue a full drain.
func (h *PipelineHandler) Drain(w http.ResponseWriter, r *http.Request) {
	job := &jobs.PipelineJob{Kind: jobs.JobKindDrain}
	if err := h.publisher.Publish(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue drain job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue drain")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.JobID})
}

// Reprocess handles POST /api/pipeline/reprocess: reset the calling user's
// records, then enqueue a drain so the replay starts immediately.
func (h *PipelineHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, middleware.UserIDHeader+" header is required")
		return
	}

	if err := h.service.Reprocess(r.Context(), userID); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Reprocess failed")
		h.writePipelineError(w, err)
		return
	}

	job := &jobs.PipelineJob{Kind: jobs.JobKindDrain}
	if err := h.publisher.Publish(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue drain after reprocess")
		middleware.WriteError(w, http.StatusInternalServerError, "Reset succeeded but drain could not be enqueued")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "Reprocess started",
		"job_id":  job.JobID,
	})
}

// JobStatus handles GET /api/jobs/{id}.
func (h *PipelineHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// Health handles GET /healthz.
func (h *PipelineHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writePipelineError maps the pipeline error taxonomy onto HTTP statuses,
// surfacing backend hints verbatim to the caller.
func (h *PipelineHandler) writePipelineError(w http.ResponseWriter, err error) {
	var backendErr *pipeline.BackendError
	if errors.As(err, &backendErr) {
		status := http.StatusBadGateway
		switch backendErr.Kind {
		case pipeline.BackendQuotaExceeded:
			status = http.StatusTooManyRequests
		case pipeline.BackendModelUnavailable:
			status = http.StatusNotFound
		}
		middleware.WriteError(w, status, backendErr.Error())
		return
	}

	var persistErr *pipeline.PersistenceError
	if errors.As(err, &persistErr) {
		middleware.WriteError(w, http.StatusInternalServerError, persistErr.Error())
		return
	}

	middleware.WriteError(w, http.StatusInternalServerError, err.Error())
}
