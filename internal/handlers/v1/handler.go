package v1

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/corpusforge/phase-orchestrator/internal/corpus"
	"github.com/corpusforge/phase-orchestrator/internal/handlers/validator"
	"github.com/corpusforge/phase-orchestrator/internal/jobs"
	"github.com/corpusforge/phase-orchestrator/internal/segmentation"
	"github.com/corpusforge/phase-orchestrator/pkg/middleware"
)

type phaseKeyType struct{}

var phaseKey phaseKeyType

// JobService is the part of the job manager exposed over HTTP.
type JobService interface {
	Start(ctx context.Context, req jobs.StartRequest) (*jobs.Snapshot, error)
	Status(ctx context.Context, courseID string, phase int) (*jobs.Snapshot, error)
	Stop(ctx context.Context, courseID string, phase int) error
	ReportPhaseComplete(ctx context.Context, courseID string, phase int, segment int, status string) error
	Reextract(ctx context.Context, courseID string, phase int, affected []int, manifest *corpus.CollisionManifest) (*jobs.Snapshot, error)
	ReportWorkerOutput(ctx context.Context, courseID string, phase int, units []corpus.Unit) (corpus.MergeResult, error)
	Corpus(ctx context.Context, courseID string, phase int) (corpus.Document, error)
}

type ServiceHandler struct {
	jobs      JobService
	validator *validator.Validator
}

func NewServiceHandler(jobService JobService) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewPhaseValidationRules()...)
	return &ServiceHandler{jobs: jobService, validator: v}
}

// Register mounts the control API on router.
func (h *ServiceHandler) Register(router chi.Router) {
	router.Get("/health", h.Health)
	router.Route("/api/v1/phases/{phase}", func(r chi.Router) {
		r.Use(phaseCtx)
		r.Post("/start", h.Start)
		r.Get("/status/{courseId}", h.Status)
		r.Post("/stop/{courseId}", h.Stop)
		r.Post("/phase-complete", h.PhaseComplete)
		r.Post("/reextract", h.Reextract)
		r.Post("/upload-units", h.UploadUnits)
		r.Get("/corpus/{courseId}", h.Corpus)
	})
}

func phaseCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		phase, err := strconv.Atoi(chi.URLParam(r, "phase"))
		if err != nil || phase < 1 {
			renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid phase %q", chi.URLParam(r, "phase")))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), phaseKey, phase)))
	})
}

func phaseFrom(ctx context.Context) int {
	phase, _ := ctx.Value(phaseKey).(int)
	return phase
}

// (POST /api/v1/phases/{phase}/start)
func (h *ServiceHandler) Start(w http.ResponseWriter, r *http.Request) {
	var form StartForm
	if !h.decode(w, r, &form) {
		return
	}

	snapshot, err := h.jobs.Start(r.Context(), jobs.StartRequest{
		CourseID:   form.CourseID,
		Phase:      phaseFrom(r.Context()),
		TotalUnits: form.TotalUnits,
		Params:     form.Params,
	})
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	_ = render.Render(w, r, StartReply{JobID: snapshot.ID, State: snapshot.State, Segmentation: snapshot.Plan})
}

// (GET /api/v1/phases/{phase}/status/{courseId})
func (h *ServiceHandler) Status(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.jobs.Status(r.Context(), chi.URLParam(r, "courseId"), phaseFrom(r.Context()))
	if err != nil {
		renderServiceError(w, r, err)
		return
	}
	_ = render.Render(w, r, StatusReply{Snapshot: snapshot})
}

// (POST /api/v1/phases/{phase}/stop/{courseId})
func (h *ServiceHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Stop(r.Context(), chi.URLParam(r, "courseId"), phaseFrom(r.Context())); err != nil {
		renderServiceError(w, r, err)
		return
	}
	_ = render.Render(w, r, StopReply{OK: true})
}

// (POST /api/v1/phases/{phase}/phase-complete)
func (h *ServiceHandler) PhaseComplete(w http.ResponseWriter, r *http.Request) {
	var form PhaseCompleteForm
	if !h.decode(w, r, &form) {
		return
	}

	if err := h.jobs.ReportPhaseComplete(r.Context(), form.CourseID, phaseFrom(r.Context()), form.SegmentNumber, form.Status); err != nil {
		renderServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, AcceptedReply{Accepted: true})
}

// (POST /api/v1/phases/{phase}/reextract)
func (h *ServiceHandler) Reextract(w http.ResponseWriter, r *http.Request) {
	var form ReextractForm
	if !h.decode(w, r, &form) {
		return
	}

	snapshot, err := h.jobs.Reextract(r.Context(), form.CourseID, phaseFrom(r.Context()), form.AffectedUnits, form.Manifest)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, AcceptedReply{Accepted: true, JobID: snapshot.ID, Cycle: snapshot.Cycle})
}

// (POST /api/v1/phases/{phase}/upload-units)
func (h *ServiceHandler) UploadUnits(w http.ResponseWriter, r *http.Request) {
	var form UploadUnitsForm
	if !h.decode(w, r, &form) {
		return
	}

	res, err := h.jobs.ReportWorkerOutput(r.Context(), form.CourseID, phaseFrom(r.Context()), form.CorpusUnits())
	if err != nil {
		renderServiceError(w, r, err)
		return
	}
	_ = render.Render(w, r, UploadReply{Merged: res.Added + res.Updated, Unchanged: res.Unchanged})
}

// (GET /api/v1/phases/{phase}/corpus/{courseId})
func (h *ServiceHandler) Corpus(w http.ResponseWriter, r *http.Request) {
	doc, err := h.jobs.Corpus(r.Context(), chi.URLParam(r, "courseId"), phaseFrom(r.Context()))
	if err != nil {
		renderServiceError(w, r, err)
		return
	}
	_ = render.Render(w, r, CorpusReply{Document: doc})
}

// (GET /health)
func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, HealthReply{Status: "ok"})
}

func (h *ServiceHandler) decode(w http.ResponseWriter, r *http.Request, form any) bool {
	if err := render.DecodeJSON(r.Body, form); err != nil {
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid body: %s", err))
		return false
	}
	if err := h.validator.Struct(form); err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *jobs.ErrJobAlreadyActive, *jobs.ErrReextractNotAllowed:
		status = http.StatusConflict
	case *jobs.ErrJobNotFound, *jobs.ErrCorpusNotFound:
		status = http.StatusNotFound
	case *jobs.ErrInvalidRequest, *segmentation.ErrInvalidUnitCount:
		status = http.StatusBadRequest
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		zap.S().Named("handler").Errorw("request failed", "request_id", middleware.RequestIDFrom(r.Context()),
			"path", r.URL.Path, "error", err)
		message = "internal error"
	}
	renderError(w, r, status, message)
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	_ = render.Render(w, r, ErrorReply{Message: message})
}
