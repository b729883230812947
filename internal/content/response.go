package content

import "time"

// Disclaimers attached to every draft
const (
	EducationDisclaimer = "This content is AI-generated and intended as a draft. " +
		"It must be reviewed and approved by a qualified healthcare professional before use."
	SummaryDisclaimer = "This summary is AI-generated and intended to assist healthcare professionals. " +
		"Clinical decisions should always be based on professional judgment and patient assessment."
)

// GenerationMetadata describes how a draft was produced and whether it needs review.
// Flags can only be appended and review can only be required, never cleared.
type GenerationMetadata struct {
	GeneratedAt    time.Time    `json:"generated_at"`
	WordCount      int          `json:"word_count"`
	ReadingLevel   ReadingLevel `json:"reading_level"`
	ModelUsed      string       `json:"model_used"`
	SafetyFlags    []string     `json:"safety_flags"`
	RequiresReview bool         `json:"requires_review"`
}

// NewMetadata creates metadata that requires review
func NewMetadata(model string, level ReadingLevel, wordCount int) GenerationMetadata {
	return GenerationMetadata{
		GeneratedAt:    time.Now().UTC(),
		WordCount:      wordCount,
		ReadingLevel:   level,
		ModelUsed:      model,
		SafetyFlags:    []string{},
		RequiresReview: true,
	}
}

// AppendFlag records a safety flag
func (m *GenerationMetadata) AppendFlag(flag string) {
	m.SafetyFlags = append(m.SafetyFlags, flag)
}

// RequireReview marks the draft for mandatory clinician review
func (m *GenerationMetadata) RequireReview() {
	m.RequiresReview = true
}

// SourceReference points at a piece of supporting evidence
type SourceReference struct {
	Title          string   `json:"title"`
	Authors        []string `json:"authors,omitempty"`
	Journal        string   `json:"journal,omitempty"`
	Year           int      `json:"year,omitempty"`
	DOI            string   `json:"doi,omitempty"`
	URL            string   `json:"url,omitempty"`
	PMID           string   `json:"pmid,omitempty"`
	SourceType     string   `json:"source_type,omitempty"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
}

// PatientEducationResponse is a patient education draft
type PatientEducationResponse struct {
	DraftID    string             `json:"draft_id,omitempty"`
	Content    string             `json:"content"`
	Title      string             `json:"title"`
	KeyPoints  []string           `json:"key_points"`
	Sources    []SourceReference  `json:"sources"`
	Metadata   GenerationMetadata `json:"metadata"`
	Disclaimer string             `json:"disclaimer"`
}

// ClinicalSummaryResponse is a clinical summary draft
type ClinicalSummaryResponse struct {
	DraftID         string             `json:"draft_id,omitempty"`
	Summary         string             `json:"summary"`
	KeyFindings     []string           `json:"key_findings"`
	Recommendations []string           `json:"recommendations,omitempty"`
	RiskFactors     []string           `json:"risk_factors"`
	FollowUpNeeded  []string           `json:"follow_up_needed"`
	Metadata        GenerationMetadata `json:"metadata"`
	Disclaimer      string             `json:"disclaimer"`
}
