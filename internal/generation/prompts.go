package generation

import (
	"fmt"
	"strings"

	"github.com/drfirst/go-draftguard/internal/content"
)

const systemPrompt = `You are a medical writing assistant helping nurses and healthcare professionals draft evidence-based content.

Safety rules:
- The output is a draft that a clinician will review before use.
- Do not give individual medical advice or diagnoses.
- Do not promise cures or guaranteed outcomes.
- Use hedged language ("may", "can", "often") for clinical statements.
- Encourage readers to consult a healthcare professional.

Reply with a single JSON object and nothing else.`

var readingLevelGuidance = map[content.ReadingLevel]string{
	content.ReadingLevelElementary:   "elementary school level (grades 1-5), very simple words and short sentences",
	content.ReadingLevelMiddleSchool: "middle school level (grades 6-8), simple language with basic medical terms explained",
	content.ReadingLevelHighSchool:   "high school level (grades 9-12), moderate complexity",
	content.ReadingLevelCollege:      "college level, fuller vocabulary and concepts",
	content.ReadingLevelProfessional: "professional healthcare level, full medical terminology",
}

var summaryGuidance = map[content.SummaryType]string{
	content.SummaryGeneral:   "a general clinical summary of the patient's current state",
	content.SummaryAdmission: "an admission summary covering presenting complaint, history and initial assessment",
	content.SummaryDischarge: "a discharge summary covering hospital course, condition at discharge and follow-up",
	content.SummaryProgress:  "a progress note summarising changes since the last assessment",
}

func readingLevelText(l content.ReadingLevel) string {
	if s, ok := readingLevelGuidance[l]; ok {
		return s
	}
	return readingLevelGuidance[content.ReadingLevelHighSchool]
}

func educationPrompt(req *content.PatientEducationRequest, sources []content.SourceReference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write patient education material about %q.\n", req.Topic)
	fmt.Fprintf(&b, "Reading level: %s.\n", readingLevelText(req.ReadingLevel))
	fmt.Fprintf(&b, "Target length: about %d words.\n", req.WordCount)
	if req.PatientAgeGroup != "" {
		fmt.Fprintf(&b, "Audience age group: %s.\n", req.PatientAgeGroup)
	}
	if req.Language != "" && req.Language != content.DefaultLanguage {
		fmt.Fprintf(&b, "Write in %s.\n", req.Language)
	}
	b.WriteString("Explain the condition, common symptoms, treatment options in general terms and self-care tips.\n")

	if len(sources) > 0 {
		b.WriteString("\nBase the material on these sources:\n")
		for i, s := range sources {
			fmt.Fprintf(&b, "%d. %s", i+1, s.Title)
			if len(s.Authors) > 0 {
				fmt.Fprintf(&b, " by %s", strings.Join(s.Authors, ", "))
			}
			if s.Year > 0 {
				fmt.Fprintf(&b, " (%d)", s.Year)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(`
Respond with JSON:
{"title": string, "content": string, "key_points": [string]}`)
	return b.String()
}

func summaryPrompt(req *content.ClinicalSummaryRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %s for a healthcare professional.\n", summaryGuidance[req.SummaryType])
	fmt.Fprintf(&b, "Target length: about %d words.\n", req.WordCount)
	if len(req.FocusAreas) > 0 {
		fmt.Fprintf(&b, "Focus on: %s.\n", strings.Join(req.FocusAreas, ", "))
	}
	fields := `"summary": string, "key_findings": [string], "risk_factors": [string], "follow_up_needed": [string]`
	if req.WantsRecommendations() {
		fields += `, "recommendations": [string]`
	} else {
		b.WriteString("Do not include treatment recommendations.\n")
	}

	b.WriteString("\nPatient data:\n")
	b.WriteString(req.PatientData)
	b.WriteString("\n\nRespond with JSON:\n{" + fields + "}")
	return b.String()
}
