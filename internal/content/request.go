// Package content defines the draft generation requests, responses and metadata.
package content

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ReadingLevel is the target reading level of generated material
type ReadingLevel string

const (
	ReadingLevelElementary   ReadingLevel = "elementary"
	ReadingLevelMiddleSchool ReadingLevel = "middle-school"
	ReadingLevelHighSchool   ReadingLevel = "high-school"
	ReadingLevelCollege      ReadingLevel = "college"
	ReadingLevelProfessional ReadingLevel = "professional"
)

// Valid reports whether the reading level is known
func (l ReadingLevel) Valid() bool {
	switch l {
	case ReadingLevelElementary, ReadingLevelMiddleSchool, ReadingLevelHighSchool,
		ReadingLevelCollege, ReadingLevelProfessional:
		return true
	}
	return false
}

// SummaryType is the kind of clinical summary requested
type SummaryType string

const (
	SummaryGeneral   SummaryType = "general"
	SummaryAdmission SummaryType = "admission"
	SummaryDischarge SummaryType = "discharge"
	SummaryProgress  SummaryType = "progress"
)

// Valid reports whether the summary type is known
func (s SummaryType) Valid() bool {
	switch s {
	case SummaryGeneral, SummaryAdmission, SummaryDischarge, SummaryProgress:
		return true
	}
	return false
}

// Request defaults
const (
	DefaultEducationWordCount = 300
	DefaultSummaryWordCount   = 500
	DefaultLanguage           = "english"
)

// Markers that must never appear in submitted patient data
var sensitiveDataMarkers = []string{"ssn", "social security", "credit card"}

// ValidationError reports a malformed request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PatientEducationRequest asks for patient education material on a topic
type PatientEducationRequest struct {
	Topic           string       `json:"topic"`
	ReadingLevel    ReadingLevel `json:"reading_level"`
	WordCount       int          `json:"word_count"`
	IncludeSources  *bool        `json:"include_sources,omitempty"`
	PatientAgeGroup string       `json:"patient_age_group,omitempty"`
	Language        string       `json:"language"`
}

// ApplyDefaults fills unset optional fields
func (r *PatientEducationRequest) ApplyDefaults() {
	if r.ReadingLevel == "" {
		r.ReadingLevel = ReadingLevelHighSchool
	}
	if r.WordCount == 0 {
		r.WordCount = DefaultEducationWordCount
	}
	if r.IncludeSources == nil {
		include := true
		r.IncludeSources = &include
	}
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
}

// WantsSources reports whether evidence sources were requested
func (r *PatientEducationRequest) WantsSources() bool {
	return r.IncludeSources == nil || *r.IncludeSources
}

// Validate normalizes the topic and checks field bounds
func (r *PatientEducationRequest) Validate() error {
	r.Topic = strings.ToLower(strings.TrimSpace(r.Topic))
	if n := utf8.RuneCountInString(r.Topic); n < 3 || n > 200 {
		return &ValidationError{Field: "topic", Message: "must be between 3 and 200 characters"}
	}
	if !r.ReadingLevel.Valid() {
		return &ValidationError{Field: "reading_level", Message: fmt.Sprintf("unknown reading level %q", r.ReadingLevel)}
	}
	if r.WordCount < 50 || r.WordCount > 2000 {
		return &ValidationError{Field: "word_count", Message: "must be between 50 and 2000"}
	}
	return nil
}

// Fields returns the request as the field map inspected by the request check
func (r *PatientEducationRequest) Fields() map[string]any {
	return map[string]any{
		"topic":             r.Topic,
		"reading_level":     string(r.ReadingLevel),
		"word_count":        r.WordCount,
		"include_sources":   r.WantsSources(),
		"patient_age_group": r.PatientAgeGroup,
		"language":          r.Language,
	}
}

// ClinicalSummaryRequest asks for a clinical summary of patient data
type ClinicalSummaryRequest struct {
	PatientData            string      `json:"patient_data"`
	SummaryType            SummaryType `json:"summary_type"`
	WordCount              int         `json:"word_count"`
	IncludeRecommendations *bool       `json:"include_recommendations,omitempty"`
	FocusAreas             []string    `json:"focus_areas,omitempty"`
}

// ApplyDefaults fills unset optional fields
func (r *ClinicalSummaryRequest) ApplyDefaults() {
	if r.SummaryType == "" {
		r.SummaryType = SummaryGeneral
	}
	if r.WordCount == 0 {
		r.WordCount = DefaultSummaryWordCount
	}
	if r.IncludeRecommendations == nil {
		include := true
		r.IncludeRecommendations = &include
	}
}

// WantsRecommendations reports whether recommendations were requested
func (r *ClinicalSummaryRequest) WantsRecommendations() bool {
	return r.IncludeRecommendations == nil || *r.IncludeRecommendations
}

// Validate checks field bounds and rejects data carrying obvious identifier markers
func (r *ClinicalSummaryRequest) Validate() error {
	r.PatientData = strings.TrimSpace(r.PatientData)
	if n := utf8.RuneCountInString(r.PatientData); n < 10 || n > 5000 {
		return &ValidationError{Field: "patient_data", Message: "must be between 10 and 5000 characters"}
	}
	lower := strings.ToLower(r.PatientData)
	for _, marker := range sensitiveDataMarkers {
		if strings.Contains(lower, marker) {
			return &ValidationError{
				Field:   "patient_data",
				Message: fmt.Sprintf("may contain sensitive information: %s", marker),
			}
		}
	}
	if !r.SummaryType.Valid() {
		return &ValidationError{Field: "summary_type", Message: fmt.Sprintf("unknown summary type %q", r.SummaryType)}
	}
	if r.WordCount < 100 || r.WordCount > 2000 {
		return &ValidationError{Field: "word_count", Message: "must be between 100 and 2000"}
	}
	return nil
}
