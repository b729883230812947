package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/drfirst/go-draftguard/internal/api/middleware"
	"github.com/drfirst/go-draftguard/internal/content"
	"github.com/drfirst/go-draftguard/internal/domain/draft"
	"github.com/drfirst/go-draftguard/internal/generation"
	"github.com/drfirst/go-draftguard/internal/guardrails"
	"github.com/drfirst/go-draftguard/internal/guardrails/compliance"
)

type stubReader struct {
	agg *draft.Aggregate
	err error
}

func (s *stubReader) Load(_ context.Context, _ string) (*draft.Aggregate, error) {
	return s.agg, s.err
}

type failingDrafter struct {
	err error
}

func (f *failingDrafter) PatientEducation(context.Context, *content.PatientEducationRequest) (*content.PatientEducationResponse, error) {
	return nil, f.err
}

func (f *failingDrafter) ClinicalSummary(context.Context, *content.ClinicalSummaryRequest) (*content.ClinicalSummaryResponse, error) {
	return nil, f.err
}

func newRouter(d Drafter, reader DraftReader) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Mount("/api/v1", NewDraftHandler(d, reader, nil).Routes())
	return r
}

func templateDrafter() Drafter {
	return guardrails.NewOrchestrator(
		compliance.NewEvaluator(nil, compliance.DefaultConfig()),
		generation.NewTemplateGenerator(nil),
		nil, nil, nil,
	)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorBody {
	t.Helper()
	var body middleware.ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestPatientEducationEndpoint(t *testing.T) {
	h := newRouter(templateDrafter(), nil)

	rec := do(t, h, http.MethodPost, "/api/v1/patient-education", `{"topic":"Asthma","reading_level":"elementary"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp content.PatientEducationResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DraftID == "" || resp.Title != "Understanding Asthma: A Patient Guide" {
		t.Errorf("resp = %+v", resp)
	}
	if !resp.Metadata.RequiresReview || resp.Metadata.ReadingLevel != content.ReadingLevelElementary {
		t.Errorf("metadata = %+v", resp.Metadata)
	}
}

func TestEndpointErrors(t *testing.T) {
	tests := []struct {
		name        string
		drafter     Drafter
		path        string
		body        string
		wantStatus  int
		wantType    string
		wantMessage string
	}{
		{
			name:       "malformed json",
			drafter:    templateDrafter(),
			path:       "/api/v1/patient-education",
			body:       `{"topic":`,
			wantStatus: http.StatusBadRequest,
			wantType:   ErrTypeInvalidRequest,
		},
		{
			name:       "validation",
			drafter:    templateDrafter(),
			path:       "/api/v1/patient-education",
			body:       `{"topic":"ab"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   ErrTypeValidation,
		},
		{
			name:        "request violation",
			drafter:     templateDrafter(),
			path:        "/api/v1/patient-education",
			body:        `{"topic":"miracle cure for asthma"}`,
			wantStatus:  http.StatusBadRequest,
			wantType:    ErrTypeCompliance,
			wantMessage: "Request failed compliance check: Inappropriate term detected: cure; Inappropriate term detected: miracle",
		},
		{
			name:        "clinical data violation",
			drafter:     templateDrafter(),
			path:        "/api/v1/clinical-summary",
			body:        `{"patient_data":"Seen today, MRN: 12345678, stable on current therapy"}`,
			wantStatus:  http.StatusBadRequest,
			wantType:    ErrTypeCompliance,
			wantMessage: "Clinical data failed compliance check: Potential patient identifier detected (medical record number)",
		},
		{
			name:        "education generation failure",
			drafter:     &failingDrafter{err: &guardrails.GenerationError{Err: errors.New("model down")}},
			path:        "/api/v1/patient-education",
			body:        `{"topic":"asthma"}`,
			wantStatus:  http.StatusInternalServerError,
			wantType:    ErrTypeGeneration,
			wantMessage: "Internal server error during content generation",
		},
		{
			name:        "summary generation failure",
			drafter:     &failingDrafter{err: errors.New("unexpected")},
			path:        "/api/v1/clinical-summary",
			body:        `{"patient_data":"58 year old with exertional chest pain"}`,
			wantStatus:  http.StatusInternalServerError,
			wantType:    ErrTypeGeneration,
			wantMessage: "Internal server error during summary generation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newRouter(tt.drafter, nil), http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			body := decodeError(t, rec)
			if body.Error != tt.wantType {
				t.Errorf("error = %q, want %q", body.Error, tt.wantType)
			}
			if tt.wantMessage != "" && body.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMessage)
			}
			if body.RequestID != "req-1" {
				t.Errorf("request_id = %q", body.RequestID)
			}
		})
	}
}

func TestGetDraft(t *testing.T) {
	agg := draft.NewAggregate("d-1")
	_ = agg.Receive(&draft.ReceivedData{Flow: draft.FlowPatientEducation, InputHash: "h"})
	_ = agg.PreCheck(false, []string{"Inappropriate term detected: cure"})
	_ = agg.Reject("Inappropriate term detected: cure")

	tests := []struct {
		name       string
		reader     DraftReader
		wantStatus int
	}{
		{"found", &stubReader{agg: agg}, http.StatusOK},
		{"not found", &stubReader{err: draft.ErrNotFound}, http.StatusNotFound},
		{"store error", &stubReader{err: errors.New("connection reset")}, http.StatusInternalServerError},
		{"lookup disabled", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newRouter(templateDrafter(), tt.reader), http.MethodGet, "/api/v1/drafts/d-1", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var view DraftView
			if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if view.Status != "rejected" || view.Reason == "" || len(view.PreCheckFlags) != 1 {
				t.Errorf("view = %+v", view)
			}
			if view.SafetyFlags == nil {
				t.Error("safety flags must be an empty list")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler("draft-api", "1.0.0", map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	}, nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"service":"draft-api"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d", rec.Code)
	}
	var body readiness
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checks["postgres"] != "ok" || body.Checks["redis"] == "ok" {
		t.Errorf("checks = %v", body.Checks)
	}
}
