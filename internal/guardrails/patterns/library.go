package patterns

import "fmt"

// Flag messages shared by all rules of a kind
const (
	MsgSensitiveTopic   = "Sensitive topic requires enhanced review"
	MsgDefinitiveAdvice = "Content contains definitive medical advice"
	MsgPrescriptive     = "Content may be too prescriptive"
	MsgDiagnostic       = "Content contains unqualified diagnostic statements"
	MsgTreatment        = "Content contains definitive treatment recommendations"
	MsgHedgingAbsent    = "Clinical summary lacks appropriate hedging language"
)

const (
	claimMessageFormat  = "Inappropriate claim detected: %s"
	piiMessageFormat    = "Potential PII detected (%s) - ensure data is properly de-identified"
	identifierMsgFormat = "Potential patient identifier detected (%s)"
	defaultRuleCapacity = 48
)

// DefaultSensitiveTopics are topics that always need enhanced review
var DefaultSensitiveTopics = []string{"suicide", "self-harm", "overdose", "addiction"}

// DefaultClaimTerms are marketing or conspiratorial terms unfit for medical material
var DefaultClaimTerms = []string{
	"guarantee", "cure", "miracle", "breakthrough",
	"secret", "hidden", "conspiracy", "big pharma",
}

// DefaultHedgingTerms are epistemic qualifiers expected in clinical summaries
var DefaultHedgingTerms = []string{
	"appears", "suggests", "indicates", "consistent with",
	"possible", "probable", "likely", "may indicate",
}

// Library is the read-only rule set. It is safe for concurrent use.
type Library struct {
	rules []Rule
}

// Default returns the built-in rule set
func Default() *Library {
	return build(Extension{})
}

// Extension lists extra keywords appended after the built-in ones
type Extension struct {
	SensitiveTopics []string `yaml:"sensitive_topics"`
	ClaimTerms      []string `yaml:"claim_terms"`
	HedgingTerms    []string `yaml:"hedging_terms"`
}

func build(ext Extension) *Library {
	rules := make([]Rule, 0, defaultRuleCapacity)

	// Sensitive data: PII first, then identifiers, then topics
	rules = append(rules,
		pattern(CategorySensitiveData, KindPII, "social security number",
			`\b\d{3}-\d{2}-\d{4}\b`, fmt.Sprintf(piiMessageFormat, "social security number")),
		pattern(CategorySensitiveData, KindPII, "payment card number",
			`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`, fmt.Sprintf(piiMessageFormat, "payment card number")),
		pattern(CategorySensitiveData, KindPII, "email address",
			`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, fmt.Sprintf(piiMessageFormat, "email address")),
		pattern(CategorySensitiveData, KindIdentifier, "medical record number",
			`\bMRN\s*:?\s*\d+`, fmt.Sprintf(identifierMsgFormat, "medical record number")),
		pattern(CategorySensitiveData, KindIdentifier, "date of birth",
			`\bDOB\s*:?\s*\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`, fmt.Sprintf(identifierMsgFormat, "date of birth")),
		pattern(CategorySensitiveData, KindIdentifier, "phone number",
			`\bphone\s*:?\s*\d{3}[-.\s]?\d{3}[-.\s]?\d{4}`, fmt.Sprintf(identifierMsgFormat, "phone number")),
	)
	for _, t := range appendUnique(DefaultSensitiveTopics, ext.SensitiveTopics) {
		rules = append(rules, keyword(CategorySensitiveData, KindTopic, t, MsgSensitiveTopic))
	}

	for _, t := range appendUnique(DefaultClaimTerms, ext.ClaimTerms) {
		rules = append(rules, keyword(CategoryInappropriateClaim, KindClaim, t, fmt.Sprintf(claimMessageFormat, normalize(t))))
	}

	for _, phrase := range []string{"you should", "you must", "you will", "guaranteed", "certain", "definitely"} {
		rules = append(rules, pattern(CategoryDefinitiveLanguage, KindAdvice, phrase,
			`\b`+phrase+`\b`, MsgDefinitiveAdvice))
	}
	rules = append(rules,
		keyword(CategoryDefinitiveLanguage, KindPrescriptive, "diagnose", MsgPrescriptive),
		keyword(CategoryDefinitiveLanguage, KindPrescriptive, "prescribe", MsgPrescriptive),
		excluding(pattern(CategoryDefinitiveLanguage, KindDiagnostic, "patient has",
			`\bpatient has\b`, MsgDiagnostic), "history", "symptoms", "signs"),
		excluding(pattern(CategoryDefinitiveLanguage, KindDiagnostic, "diagnosed with",
			`\bdiagnosed with\b`, MsgDiagnostic), "possible", "probable", "suspected"),
		pattern(CategoryDefinitiveLanguage, KindDiagnostic, "certainly", `\bcertainly\b`, MsgDiagnostic),
		pattern(CategoryDefinitiveLanguage, KindDiagnostic, "obviously", `\bobviously\b`, MsgDiagnostic),
		pattern(CategoryDefinitiveLanguage, KindDiagnostic, "clearly", `\bclearly\b`, MsgDiagnostic),
		pattern(CategoryDefinitiveLanguage, KindTreatment, "should receive", `\bshould receive\b`, MsgTreatment),
		pattern(CategoryDefinitiveLanguage, KindTreatment, "must take", `\bmust take\b`, MsgTreatment),
		excluding(pattern(CategoryDefinitiveLanguage, KindTreatment, "requires",
			`\brequires\b`, MsgTreatment), "review"),
	)

	for _, t := range appendUnique(DefaultHedgingTerms, ext.HedgingTerms) {
		rules = append(rules, keyword(CategoryHedging, KindQualifier, t, MsgHedgingAbsent))
	}

	return &Library{rules: rules}
}

// RulesFor returns the rules of a category in declaration order
func (l *Library) RulesFor(category Category) []Rule {
	var out []Rule
	for _, r := range l.rules {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// Rules returns the rules of one kind inside a category in declaration order
func (l *Library) Rules(category Category, kind Kind) []Rule {
	var out []Rule
	for _, r := range l.rules {
		if r.Category == category && r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the total number of rules
func (l *Library) Len() int { return len(l.rules) }

func appendUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, t := range list {
			n := normalize(t)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
