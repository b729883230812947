package compliance

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/drfirst/go-draftguard/internal/guardrails/patterns"
)

func newTestEvaluator() *Evaluator {
	return NewEvaluator(patterns.Default(), DefaultConfig())
}

func assertInvariant(t *testing.T, r Result) {
	t.Helper()
	if r.IsCompliant != (len(r.Flags) == 0) {
		t.Errorf("is_compliant=%v but %d flags", r.IsCompliant, len(r.Flags))
	}
	if r.Reason != strings.Join(r.Flags, ReasonSeparator) {
		t.Errorf("reason %q does not match joined flags %q", r.Reason, r.Flags)
	}
}

func TestCheckRequest(t *testing.T) {
	e := newTestEvaluator()

	tests := []struct {
		name   string
		fields map[string]any
		want   []string
	}{
		{
			name:   "clean topic",
			fields: map[string]any{"topic": "managing type 2 diabetes", "word_count": 500},
			want:   []string{},
		},
		{
			name:   "claim term in topic",
			fields: map[string]any{"topic": "Miracle cure for arthritis"},
			want: []string{
				"Inappropriate term detected: cure",
				"Inappropriate term detected: miracle",
			},
		},
		{
			name:   "query fallback",
			fields: map[string]any{"query": "big pharma secrets"},
			want: []string{
				"Inappropriate term detected: secret",
				"Inappropriate term detected: big pharma",
			},
		},
		{
			name:   "word count over ceiling",
			fields: map[string]any{"topic": "asthma", "word_count": 5000},
			want:   []string{MsgWordCountExceeded},
		},
		{
			name:   "word count at ceiling",
			fields: map[string]any{"topic": "asthma", "word_count": 2000},
			want:   []string{},
		},
		{
			name:   "word count as json number",
			fields: map[string]any{"topic": "asthma", "word_count": json.Number("2001")},
			want:   []string{MsgWordCountExceeded},
		},
		{
			name:   "word count as float",
			fields: map[string]any{"topic": "asthma", "word_count": 2000.5},
			want:   []string{MsgWordCountExceeded},
		},
		{
			name:   "word count not numeric",
			fields: map[string]any{"topic": "asthma", "word_count": "9000"},
			want:   []string{},
		},
		{
			name:   "sensitive topic",
			fields: map[string]any{"topic": "Opioid Overdose prevention"},
			want:   []string{patterns.MsgSensitiveTopic},
		},
		{
			name:   "sensitive topic flagged once",
			fields: map[string]any{"topic": "addiction and overdose"},
			want:   []string{patterns.MsgSensitiveTopic},
		},
		{
			name:   "flag order",
			fields: map[string]any{"topic": "secret suicide guarantee", "word_count": int64(3000)},
			want: []string{
				"Inappropriate term detected: guarantee",
				"Inappropriate term detected: secret",
				MsgWordCountExceeded,
				patterns.MsgSensitiveTopic,
			},
		},
		{
			name:   "nil map",
			fields: nil,
			want:   []string{},
		},
		{
			name:   "non string topic",
			fields: map[string]any{"topic": 42},
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.CheckRequest(tt.fields)
			assertInvariant(t, got)
			if !reflect.DeepEqual(got.Flags, tt.want) {
				t.Errorf("flags = %q, want %q", got.Flags, tt.want)
			}
		})
	}
}

func TestCheckContent(t *testing.T) {
	e := newTestEvaluator()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "clean",
			text: "Asthma is a long-term condition affecting the airways. Talk with your care team about a plan.",
			want: []string{},
		},
		{
			name: "definitive advice",
			text: "You must take this medication immediately",
			want: []string{patterns.MsgDefinitiveAdvice},
		},
		{
			name: "advice flagged once",
			text: "You should rest. You will definitely feel better.",
			want: []string{patterns.MsgDefinitiveAdvice},
		},
		{
			name: "claims are exhaustive",
			text: "This breakthrough is a miracle.",
			want: []string{
				"Inappropriate claim detected: miracle",
				"Inappropriate claim detected: breakthrough",
			},
		},
		{
			name: "prescriptive verbs flagged once",
			text: "Only a physician can diagnose or prescribe.",
			want: []string{patterns.MsgPrescriptive},
		},
		{
			name: "category order",
			text: "Doctors prescribe this cure and you should ask.",
			want: []string{
				"Inappropriate claim detected: cure",
				patterns.MsgDefinitiveAdvice,
				patterns.MsgPrescriptive,
			},
		},
		{
			name: "empty",
			text: "",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.CheckContent(tt.text)
			assertInvariant(t, got)
			if !reflect.DeepEqual(got.Flags, tt.want) {
				t.Errorf("flags = %q, want %q", got.Flags, tt.want)
			}
		})
	}
}

func TestCheckClinicalData(t *testing.T) {
	e := newTestEvaluator()

	ssn := "Potential PII detected (social security number) - ensure data is properly de-identified"
	email := "Potential PII detected (email address) - ensure data is properly de-identified"
	mrn := "Potential patient identifier detected (medical record number)"
	phone := "Potential patient identifier detected (phone number)"

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "clean",
			text: "58 year old with intermittent chest pain on exertion, relieved by rest.",
			want: []string{},
		},
		{
			name: "ssn",
			text: "Patient SSN: 123-45-6789",
			want: []string{ssn},
		},
		{
			name: "exhaustive pii",
			text: "SSN 123-45-6789, contact jane@example.com",
			want: []string{ssn, email},
		},
		{
			name: "pii before identifiers",
			text: "Phone: 555-123-4567 MRN: 889911 email j@x.io",
			want: []string{email, mrn, phone},
		},
		{
			name: "too long",
			text: strings.Repeat("a", 5001),
			want: []string{MsgPatientDataTooLong},
		},
		{
			name: "at limit",
			text: strings.Repeat("a", 5000),
			want: []string{},
		},
		{
			name: "length counted in characters",
			text: strings.Repeat("é", 3000),
			want: []string{},
		},
		{
			name: "length last",
			text: "SSN 123-45-6789 " + strings.Repeat("b", 5000),
			want: []string{ssn, MsgPatientDataTooLong},
		},
		{
			name: "empty",
			text: "",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.CheckClinicalData(tt.text)
			assertInvariant(t, got)
			if !reflect.DeepEqual(got.Flags, tt.want) {
				t.Errorf("flags = %q, want %q", got.Flags, tt.want)
			}
		})
	}
}

func TestCheckClinicalContent(t *testing.T) {
	e := newTestEvaluator()

	long := " The record documents several visits over the past year with stable vital signs throughout."

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "hedged",
			text: "Findings are consistent with early heart failure and may indicate fluid overload." + long,
			want: []string{},
		},
		{
			name: "short unhedged text",
			text: "Stable vitals.",
			want: []string{},
		},
		{
			name: "long unhedged text",
			text: "Summary of care." + long,
			want: []string{patterns.MsgHedgingAbsent},
		},
		{
			name: "diagnostic flagged once",
			text: "The patient has pneumonia and clearly needs fluids; it is likely viral.",
			want: []string{patterns.MsgDiagnostic},
		},
		{
			name: "qualified diagnosis",
			text: "Diagnosed with suspected pneumonia; patient has history of COPD. Possible viral cause.",
			want: []string{},
		},
		{
			name: "treatment",
			text: "Patient must take antibiotics; likely bacterial.",
			want: []string{patterns.MsgTreatment},
		},
		{
			name: "requires review is not a directive",
			text: "This case requires review by cardiology; findings suggest ischemia.",
			want: []string{},
		},
		{
			name: "all three in order",
			text: "Obviously the patient should receive surgery." + long,
			want: []string{patterns.MsgDiagnostic, patterns.MsgHedgingAbsent, patterns.MsgTreatment},
		},
		{
			name: "empty",
			text: "",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.CheckClinicalContent(tt.text)
			assertInvariant(t, got)
			if !reflect.DeepEqual(got.Flags, tt.want) {
				t.Errorf("flags = %q, want %q", got.Flags, tt.want)
			}
		})
	}
}

func TestChecksAreIdempotent(t *testing.T) {
	e := newTestEvaluator()
	text := "You must take this cure. Patient SSN: 123-45-6789. The patient has sepsis."

	checks := map[string]func() Result{
		"request":          func() Result { return e.CheckRequest(map[string]any{"topic": text, "word_count": 9000}) },
		"content":          func() Result { return e.CheckContent(text) },
		"clinical data":    func() Result { return e.CheckClinicalData(text) },
		"clinical content": func() Result { return e.CheckClinicalContent(text) },
	}

	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			first := check()
			second := check()
			if !reflect.DeepEqual(first, second) {
				t.Errorf("results differ: %+v vs %+v", first, second)
			}
			if first.IsCompliant {
				t.Error("expected a non-compliant result")
			}
		})
	}
}

func TestResultsDoNotShareFlags(t *testing.T) {
	e := newTestEvaluator()

	first := e.CheckContent("a miracle")
	first.Flags[0] = "mutated"

	second := e.CheckContent("a miracle")
	if second.Flags[0] != "Inappropriate claim detected: miracle" {
		t.Errorf("unexpected flag %q", second.Flags[0])
	}
}

func TestNewEvaluatorDefaults(t *testing.T) {
	e := NewEvaluator(nil, Config{})

	if got := e.Config(); got != DefaultConfig() {
		t.Errorf("config = %+v, want %+v", got, DefaultConfig())
	}
	if r := e.CheckRequest(map[string]any{"topic": "x", "word_count": 2001}); r.IsCompliant {
		t.Error("expected default ceiling to apply")
	}
}

func TestCustomCeilings(t *testing.T) {
	e := NewEvaluator(nil, Config{MaxWordCount: 100, MaxClinicalDataLength: 20, HedgingMinLength: 10})

	if r := e.CheckRequest(map[string]any{"topic": "asthma", "word_count": 150}); r.IsCompliant {
		t.Error("expected word count flag")
	}
	if r := e.CheckClinicalData(strings.Repeat("x", 21)); r.IsCompliant {
		t.Error("expected length flag")
	}
	if r := e.CheckClinicalContent("Vitals are stable."); r.IsCompliant {
		t.Error("expected hedging flag")
	}
}
