package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/drfirst/go-draftguard/internal/content"
)

// TemplateModel is reported as the model for template drafts
const TemplateModel = "template"

var educationOpeners = map[content.ReadingLevel]string{
	content.ReadingLevelElementary:   "This is about %s. It is important to know about %s.",
	content.ReadingLevelMiddleSchool: "%s is a health condition that affects many people. Learning about %s can help you take care of your health.",
	content.ReadingLevelHighSchool:   "%s is a medical topic that patients and families should understand. This guide explains %s in clear terms.",
	content.ReadingLevelCollege:      "Understanding %s involves some medical concepts and terminology. This guide gives an overview of %s.",
	content.ReadingLevelProfessional: "Clinical overview of %s, covering presentation, diagnosis and management of %s.",
}

// TemplateGenerator drafts fixed-structure content without a model
type TemplateGenerator struct {
	evidence Evidence
}

// NewTemplateGenerator creates a template generator. evidence may be nil.
func NewTemplateGenerator(evidence Evidence) *TemplateGenerator {
	return &TemplateGenerator{evidence: evidence}
}

// GeneratePatientEducation implements guardrails.Generator
func (g *TemplateGenerator) GeneratePatientEducation(ctx context.Context, req *content.PatientEducationRequest) (*content.PatientEducationResponse, error) {
	name := titleCase(req.Topic)

	opener, ok := educationOpeners[req.ReadingLevel]
	if !ok {
		opener = educationOpeners[content.ReadingLevelHighSchool]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", name)
	fmt.Fprintf(&b, opener+"\n\n", name, name)
	b.WriteString("## What to know\n")
	fmt.Fprintf(&b, "Symptoms of %s can differ from person to person. Some people may notice changes early, while others may not.\n\n", req.Topic)
	b.WriteString("## Working with your care team\n")
	fmt.Fprintf(&b, "Your healthcare provider can explain how %s may affect you and which options may suit your situation.\n\n", req.Topic)
	b.WriteString("Talk to your healthcare provider before making changes to your care.")

	text := b.String()
	return &content.PatientEducationResponse{
		Content: text,
		Title:   educationTitle(req.Topic),
		KeyPoints: []string{
			fmt.Sprintf("Understanding %s is important for your health", req.Topic),
			fmt.Sprintf("Early recognition of %s symptoms may improve outcomes", req.Topic),
			fmt.Sprintf("Follow your healthcare provider's recommendations about %s", req.Topic),
			fmt.Sprintf("Ask questions about %s during medical appointments", req.Topic),
		},
		Sources:    gatherSources(ctx, g.evidence, req),
		Metadata:   content.NewMetadata(TemplateModel, req.ReadingLevel, countWords(text)),
		Disclaimer: content.EducationDisclaimer,
	}, nil
}

// GenerateClinicalSummary implements guardrails.Generator
func (g *TemplateGenerator) GenerateClinicalSummary(_ context.Context, req *content.ClinicalSummaryRequest) (*content.ClinicalSummaryResponse, error) {
	text := fmt.Sprintf("Clinical %s summary based on the provided patient data. "+
		"Key clinical indicators have been reviewed and are summarised as documented; "+
		"findings consistent with the history may warrant further assessment. "+
		"This summary requires review and validation by a clinician.", req.SummaryType)
	if len(req.FocusAreas) > 0 {
		text += " Areas of focus: " + strings.Join(req.FocusAreas, ", ") + "."
	}

	out := &content.ClinicalSummaryResponse{
		Summary: text,
		KeyFindings: []string{
			"Patient presents with documented clinical history",
			"Current symptoms may be consistent with the documented presentation",
			"Vital signs to be confirmed against the source record",
		},
		RiskFactors: []string{
			"Standard risk factors identified in clinical history",
			"Consider patient-specific risk assessment",
		},
		FollowUpNeeded: []string{
			"Schedule routine follow-up as per clinical guidelines",
			"Patient education on symptom monitoring",
		},
		Metadata:   content.NewMetadata(TemplateModel, content.ReadingLevelProfessional, countWords(text)),
		Disclaimer: content.SummaryDisclaimer,
	}
	if req.WantsRecommendations() {
		out.Recommendations = []string{
			"Review current treatment plan with the responsible clinician",
			"Monitor symptoms and report changes to the healthcare provider",
			"Arrange follow-up within the locally agreed timeframe",
		}
	}
	return out, nil
}
