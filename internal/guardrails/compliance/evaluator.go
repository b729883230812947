package compliance

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/drfirst/go-draftguard/internal/guardrails/patterns"
)

// Flags raised by the evaluator itself rather than by a single rule
const (
	MsgWordCountExceeded  = "Word count exceeds maximum safe limit"
	MsgPatientDataTooLong = "Patient data unusually long - review for completeness"
	requestTermFormat     = "Inappropriate term detected: %s"
)

// Config holds the evaluator ceilings
type Config struct {
	// MaxWordCount is the largest word_count a request may ask for
	MaxWordCount int
	// MaxClinicalDataLength is the largest patient data length in characters
	MaxClinicalDataLength int
	// HedgingMinLength is the clinical text length above which hedging is required
	HedgingMinLength int
}

// DefaultConfig returns the production ceilings
func DefaultConfig() Config {
	return Config{
		MaxWordCount:          2000,
		MaxClinicalDataLength: 5000,
		HedgingMinLength:      100,
	}
}

// Evaluator applies the pattern library to text. It holds no mutable state
// and is safe for concurrent use.
type Evaluator struct {
	lib    *patterns.Library
	config Config

	claims       []patterns.Rule
	topics       []patterns.Rule
	pii          []patterns.Rule
	identifiers  []patterns.Rule
	advice       []patterns.Rule
	prescriptive []patterns.Rule
	diagnostic   []patterns.Rule
	treatment    []patterns.Rule
	hedging      []patterns.Rule
}

// NewEvaluator creates an evaluator over lib. A nil lib uses the built-in rules.
func NewEvaluator(lib *patterns.Library, cfg Config) *Evaluator {
	if lib == nil {
		lib = patterns.Default()
	}
	def := DefaultConfig()
	if cfg.MaxWordCount <= 0 {
		cfg.MaxWordCount = def.MaxWordCount
	}
	if cfg.MaxClinicalDataLength <= 0 {
		cfg.MaxClinicalDataLength = def.MaxClinicalDataLength
	}
	if cfg.HedgingMinLength <= 0 {
		cfg.HedgingMinLength = def.HedgingMinLength
	}

	return &Evaluator{
		lib:          lib,
		config:       cfg,
		claims:       lib.Rules(patterns.CategoryInappropriateClaim, patterns.KindClaim),
		topics:       lib.Rules(patterns.CategorySensitiveData, patterns.KindTopic),
		pii:          lib.Rules(patterns.CategorySensitiveData, patterns.KindPII),
		identifiers:  lib.Rules(patterns.CategorySensitiveData, patterns.KindIdentifier),
		advice:       lib.Rules(patterns.CategoryDefinitiveLanguage, patterns.KindAdvice),
		prescriptive: lib.Rules(patterns.CategoryDefinitiveLanguage, patterns.KindPrescriptive),
		diagnostic:   lib.Rules(patterns.CategoryDefinitiveLanguage, patterns.KindDiagnostic),
		treatment:    lib.Rules(patterns.CategoryDefinitiveLanguage, patterns.KindTreatment),
		hedging:      lib.RulesFor(patterns.CategoryHedging),
	}
}

// Config returns the evaluator ceilings
func (e *Evaluator) Config() Config { return e.config }

// CheckRequest inspects a generation request before any content is produced.
// It looks at the "topic" (or "query") field for inappropriate terms and
// sensitive topics, and at "word_count" against the ceiling.
func (e *Evaluator) CheckRequest(fields map[string]any) Result {
	var flags []string

	topic := stringField(fields, "topic")
	if topic == "" {
		topic = stringField(fields, "query")
	}

	if topic != "" {
		for _, r := range e.claims {
			if r.Matches(topic) {
				flags = append(flags, fmt.Sprintf(requestTermFormat, r.Term()))
			}
		}
	}

	if n, ok := numberField(fields, "word_count"); ok && n > float64(e.config.MaxWordCount) {
		flags = append(flags, MsgWordCountExceeded)
	}

	if topic != "" && anyMatch(e.topics, topic) {
		flags = append(flags, patterns.MsgSensitiveTopic)
	}

	return NewResult(flags)
}

// CheckContent inspects generated patient education material
func (e *Evaluator) CheckContent(text string) Result {
	if text == "" {
		return NewResult(nil)
	}
	var flags []string

	for _, r := range e.claims {
		if r.Matches(text) {
			flags = append(flags, r.Message)
		}
	}
	if r, ok := firstMatch(e.advice, text); ok {
		flags = append(flags, r.Message)
	}
	if r, ok := firstMatch(e.prescriptive, text); ok {
		flags = append(flags, r.Message)
	}

	return NewResult(flags)
}

// CheckClinicalData inspects caller-supplied patient data for identifiers.
// Every PII and identifier rule is evaluated; each match adds its own flag.
func (e *Evaluator) CheckClinicalData(text string) Result {
	if text == "" {
		return NewResult(nil)
	}
	var flags []string

	for _, r := range e.pii {
		if r.Matches(text) {
			flags = append(flags, r.Message)
		}
	}
	for _, r := range e.identifiers {
		if r.Matches(text) {
			flags = append(flags, r.Message)
		}
	}
	if utf8.RuneCountInString(text) > e.config.MaxClinicalDataLength {
		flags = append(flags, MsgPatientDataTooLong)
	}

	return NewResult(flags)
}

// CheckClinicalContent inspects a generated clinical summary for unqualified
// diagnoses, missing hedging and directive treatment language.
func (e *Evaluator) CheckClinicalContent(text string) Result {
	if text == "" {
		return NewResult(nil)
	}
	var flags []string

	if r, ok := firstMatch(e.diagnostic, text); ok {
		flags = append(flags, r.Message)
	}
	if !anyMatch(e.hedging, text) && utf8.RuneCountInString(text) > e.config.HedgingMinLength {
		flags = append(flags, patterns.MsgHedgingAbsent)
	}
	if r, ok := firstMatch(e.treatment, text); ok {
		flags = append(flags, r.Message)
	}

	return NewResult(flags)
}

func firstMatch(rules []patterns.Rule, text string) (patterns.Rule, bool) {
	for _, r := range rules {
		if r.Matches(text) {
			return r, true
		}
	}
	return patterns.Rule{}, false
}

func anyMatch(rules []patterns.Rule, text string) bool {
	_, ok := firstMatch(rules, text)
	return ok
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

func numberField(fields map[string]any, key string) (float64, bool) {
	switch n := fields[key].(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
