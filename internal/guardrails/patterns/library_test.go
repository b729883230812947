package patterns

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestDefaultCategoriesArePopulated(t *testing.T) {
	lib := Default()

	for _, c := range Categories {
		if len(lib.RulesFor(c)) == 0 {
			t.Errorf("category %s has no rules", c)
		}
	}
}

func TestSensitiveDataDeclarationOrder(t *testing.T) {
	lib := Default()

	rules := lib.RulesFor(CategorySensitiveData)
	want := []string{
		"social security number", "payment card number", "email address",
		"medical record number", "date of birth", "phone number",
		"suicide", "self-harm", "overdose", "addiction",
	}
	if len(rules) != len(want) {
		t.Fatalf("expected %d sensitive data rules, got %d", len(want), len(rules))
	}
	for i, r := range rules {
		if r.Name != want[i] {
			t.Errorf("rule %d: expected %q, got %q", i, want[i], r.Name)
		}
	}
}

func TestRuleMatches(t *testing.T) {
	lib := Default()
	byName := func(kind Kind, name string) Rule {
		for _, c := range Categories {
			for _, r := range lib.RulesFor(c) {
				if r.Kind == kind && r.Name == name {
					return r
				}
			}
		}
		t.Fatalf("rule %s/%s not found", kind, name)
		return Rule{}
	}

	tests := []struct {
		name string
		rule Rule
		text string
		want bool
	}{
		{"ssn", byName(KindPII, "social security number"), "Patient SSN: 123-45-6789", true},
		{"ssn partial", byName(KindPII, "social security number"), "ref 123-456-789", false},
		{"card with spaces", byName(KindPII, "payment card number"), "card 4111 1111 1111 1111", true},
		{"email upper case", byName(KindPII, "email address"), "JANE.DOE@EXAMPLE.ORG", true},
		{"mrn lower case", byName(KindIdentifier, "medical record number"), "mrn: 0042", true},
		{"dob", byName(KindIdentifier, "date of birth"), "DOB 03/14/1962", true},
		{"phone", byName(KindIdentifier, "phone number"), "Phone: 555.123.4567", true},
		{"claim substring", byName(KindClaim, "cure"), "a procurement issue", true},
		{"claim case", byName(KindClaim, "big pharma"), "BIG PHARMA hides it", true},
		{"patient has bare", byName(KindDiagnostic, "patient has"), "The patient has diabetes", true},
		{"patient has history", byName(KindDiagnostic, "patient has"), "The patient has history of asthma", false},
		{"patient has twice", byName(KindDiagnostic, "patient has"), "patient has signs of fatigue; patient has pneumonia", true},
		{"diagnosed with suspected", byName(KindDiagnostic, "diagnosed with"), "diagnosed with  suspected sepsis", false},
		{"diagnosed with", byName(KindDiagnostic, "diagnosed with"), "Diagnosed with sepsis", true},
		{"requires review", byName(KindTreatment, "requires"), "this requires review", false},
		{"requires", byName(KindTreatment, "requires"), "this requires surgery", true},
		{"certain word boundary", byName(KindAdvice, "certain"), "uncertainty remains", false},
		{"empty text", byName(KindAdvice, "you must"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Matches(tt.text); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRulesReturnsCopy(t *testing.T) {
	lib := Default()

	first := lib.Rules(CategoryInappropriateClaim, KindClaim)
	first[0] = Rule{Name: "mutated"}

	second := lib.Rules(CategoryInappropriateClaim, KindClaim)
	if second[0].Name != "guarantee" {
		t.Errorf("library was mutated through a returned slice: %q", second[0].Name)
	}
}

func TestLoadExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	doc := []byte("sensitive_topics:\n  - Eating Disorder\n  - overdose\nclaim_terms:\n  - detox\nhedging_terms:\n  - may represent\n")
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	lib, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	topics := lib.Rules(CategorySensitiveData, KindTopic)
	if len(topics) != len(DefaultSensitiveTopics)+1 {
		t.Fatalf("expected duplicate topic to be skipped, got %d topics", len(topics))
	}
	if last := topics[len(topics)-1]; last.Keyword != "eating disorder" {
		t.Errorf("expected extension appended last, got %q", last.Keyword)
	}

	claims := lib.Rules(CategoryInappropriateClaim, KindClaim)
	if last := claims[len(claims)-1]; last.Message != "Inappropriate claim detected: detox" {
		t.Errorf("unexpected claim message %q", last.Message)
	}

	if n := len(lib.RulesFor(CategoryHedging)); n != len(DefaultHedgingTerms)+1 {
		t.Errorf("expected %d hedging rules, got %d", len(DefaultHedgingTerms)+1, n)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	lib, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lib.Len() != Default().Len() {
		t.Errorf("expected default rule count %d, got %d", Default().Len(), lib.Len())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConcurrentReads(t *testing.T) {
	lib := Default()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, r := range lib.RulesFor(CategoryDefinitiveLanguage) {
				r.Matches("You must take this medication immediately")
			}
		}()
	}
	wg.Wait()
}
