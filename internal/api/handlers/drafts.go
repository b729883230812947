// Package handlers provides HTTP handlers for the draft API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-draftguard/internal/api/middleware"
	"github.com/drfirst/go-draftguard/internal/content"
	"github.com/drfirst/go-draftguard/internal/domain/draft"
	"github.com/drfirst/go-draftguard/internal/guardrails"
)

const maxBodyBytes = 1 << 20

// Error types used in response bodies
const (
	ErrTypeInvalidRequest = "invalid_request"
	ErrTypeValidation     = "validation_error"
	ErrTypeCompliance     = "compliance_violation"
	ErrTypeGeneration     = "generation_error"
	ErrTypeNotFound       = "not_found"
	ErrTypeInternal       = "internal_error"
)

// Drafter runs the guarded generation flows
type Drafter interface {
	PatientEducation(ctx context.Context, req *content.PatientEducationRequest) (*content.PatientEducationResponse, error)
	ClinicalSummary(ctx context.Context, req *content.ClinicalSummaryRequest) (*content.ClinicalSummaryResponse, error)
}

// DraftReader loads a recorded draft lifecycle
type DraftReader interface {
	Load(ctx context.Context, id string) (*draft.Aggregate, error)
}

// DraftHandler serves the draft endpoints
type DraftHandler struct {
	drafter Drafter
	reader  DraftReader
	logger  *zap.Logger
}

// NewDraftHandler creates a handler. reader may be nil, which disables draft lookup.
func NewDraftHandler(drafter Drafter, reader DraftReader, logger *zap.Logger) *DraftHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftHandler{drafter: drafter, reader: reader, logger: logger}
}

// Routes returns the handler routes
func (h *DraftHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/patient-education", h.PatientEducation)
	r.Post("/clinical-summary", h.ClinicalSummary)
	r.Get("/drafts/{id}", h.GetDraft)
	return r
}

// PatientEducation handles POST /patient-education
func (h *DraftHandler) PatientEducation(w http.ResponseWriter, r *http.Request) {
	var req content.PatientEducationRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		h.validationError(w, r, err)
		return
	}

	resp, err := h.drafter.PatientEducation(h.withRequestID(r), &req)
	if err != nil {
		h.flowError(w, r, err, "Internal server error during content generation")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClinicalSummary handles POST /clinical-summary
func (h *DraftHandler) ClinicalSummary(w http.ResponseWriter, r *http.Request) {
	var req content.ClinicalSummaryRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		h.validationError(w, r, err)
		return
	}

	resp, err := h.drafter.ClinicalSummary(h.withRequestID(r), &req)
	if err != nil {
		h.flowError(w, r, err, "Internal server error during summary generation")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DraftView is the recorded outcome of one draft. It never carries input text.
type DraftView struct {
	ID             string    `json:"id"`
	Flow           string    `json:"flow"`
	Status         string    `json:"status"`
	Variant        string    `json:"variant,omitempty"`
	Version        int       `json:"version"`
	Title          string    `json:"title,omitempty"`
	ModelUsed      string    `json:"model_used,omitempty"`
	WordCount      int       `json:"word_count,omitempty"`
	PreCheckFlags  []string  `json:"pre_check_flags"`
	PostCheckFlags []string  `json:"post_check_flags"`
	SafetyFlags    []string  `json:"safety_flags"`
	RequiresReview bool      `json:"requires_review"`
	Reason         string    `json:"reason,omitempty"`
	Failure        string    `json:"failure,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GetDraft handles GET /drafts/{id}
func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		middleware.WriteError(w, r, http.StatusNotFound, ErrTypeNotFound, "draft lookup is not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	agg, err := h.reader.Load(r.Context(), id)
	if errors.Is(err, draft.ErrNotFound) {
		middleware.WriteError(w, r, http.StatusNotFound, ErrTypeNotFound, "draft not found")
		return
	}
	if err != nil {
		h.logger.Error("draft lookup failed", zap.String("draft_id", id), zap.Error(err))
		middleware.WriteError(w, r, http.StatusInternalServerError, ErrTypeInternal, "failed to load draft")
		return
	}

	writeJSON(w, http.StatusOK, DraftView{
		ID:             agg.ID(),
		Flow:           string(agg.Flow()),
		Status:         string(agg.Status()),
		Variant:        agg.Variant(),
		Version:        agg.Version(),
		Title:          agg.Title(),
		ModelUsed:      agg.ModelUsed(),
		WordCount:      agg.WordCount(),
		PreCheckFlags:  nonNil(agg.PreCheckFlags()),
		PostCheckFlags: nonNil(agg.PostCheckFlags()),
		SafetyFlags:    nonNil(agg.SafetyFlags()),
		RequiresReview: agg.RequiresReview(),
		Reason:         agg.Reason(),
		Failure:        agg.Failure(),
		UpdatedAt:      agg.UpdatedAt(),
	})
}

func (h *DraftHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, ErrTypeInvalidRequest, "invalid request body")
		return false
	}
	return true
}

func (h *DraftHandler) validationError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *content.ValidationError
	if errors.As(err, &verr) {
		middleware.WriteError(w, r, http.StatusUnprocessableEntity, ErrTypeValidation, verr.Error())
		return
	}
	middleware.WriteError(w, r, http.StatusUnprocessableEntity, ErrTypeValidation, err.Error())
}

// flowError maps orchestrator errors: a compliance violation is the caller's
// problem and is explained, anything else is an opaque 500
func (h *DraftHandler) flowError(w http.ResponseWriter, r *http.Request, err error, internalMessage string) {
	var violation *guardrails.ViolationError
	if errors.As(err, &violation) {
		middleware.WriteError(w, r, http.StatusBadRequest, ErrTypeCompliance, violation.Message())
		return
	}

	h.logger.Error("draft generation failed",
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.Error(err))
	middleware.WriteError(w, r, http.StatusInternalServerError, ErrTypeGeneration, internalMessage)
}

func (h *DraftHandler) withRequestID(r *http.Request) context.Context {
	return guardrails.WithRequestID(r.Context(), middleware.GetRequestID(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
