package guardrails

import (
	"context"

	"github.com/drfirst/go-draftguard/internal/content"
	"github.com/drfirst/go-draftguard/internal/domain/draft"
)

//go:generate mockgen -source=collaborators.go -destination=mocks/collaborators_mock.go -package=mocks

// Generator produces draft content. Retry and backoff, if any, live behind this interface.
type Generator interface {
	GeneratePatientEducation(ctx context.Context, req *content.PatientEducationRequest) (*content.PatientEducationResponse, error)
	GenerateClinicalSummary(ctx context.Context, req *content.ClinicalSummaryRequest) (*content.ClinicalSummaryResponse, error)
}

// DraftStore persists the draft lifecycle
type DraftStore interface {
	Save(ctx context.Context, agg *draft.Aggregate) error
}
