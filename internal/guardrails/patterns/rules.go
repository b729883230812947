// Package patterns holds the static detection rules used by the compliance evaluator.
// Rules are grouped by category and kind and kept in declaration order.
package patterns

import (
	"regexp"
	"strings"
)

// Category groups rules by the kind of compliance concern they detect
type Category string

const (
	CategorySensitiveData      Category = "sensitive_data"
	CategoryInappropriateClaim Category = "inappropriate_claim"
	CategoryDefinitiveLanguage Category = "definitive_language"
	CategoryHedging            Category = "hedging"
)

// Categories lists every category in evaluation order
var Categories = []Category{
	CategorySensitiveData,
	CategoryInappropriateClaim,
	CategoryDefinitiveLanguage,
	CategoryHedging,
}

// Kind narrows a rule inside its category
type Kind string

const (
	KindPII          Kind = "pii"
	KindIdentifier   Kind = "identifier"
	KindTopic        Kind = "topic"
	KindClaim        Kind = "claim"
	KindAdvice       Kind = "advice"
	KindPrescriptive Kind = "prescriptive"
	KindDiagnostic   Kind = "diagnostic"
	KindTreatment    Kind = "treatment"
	KindQualifier    Kind = "qualifier"
)

// Rule is a single detection rule. A rule carries either a compiled pattern or a
// lower-cased keyword. Rules are values and are never mutated after construction.
type Rule struct {
	Category Category
	Kind     Kind
	Name     string
	Pattern  *regexp.Regexp
	Keyword  string
	// Exclude is matched against the text that directly follows a pattern match.
	// A match whose continuation is excluded does not count.
	Exclude *regexp.Regexp
	Message string
}

// IsKeyword reports whether the rule matches by substring instead of pattern
func (r Rule) IsKeyword() bool { return r.Pattern == nil }

// Matches reports whether text triggers the rule. Matching is case-insensitive.
func (r Rule) Matches(text string) bool {
	if text == "" {
		return false
	}
	if r.IsKeyword() {
		return r.Keyword != "" && strings.Contains(strings.ToLower(text), r.Keyword)
	}
	if r.Exclude == nil {
		return r.Pattern.MatchString(text)
	}
	for _, loc := range r.Pattern.FindAllStringIndex(text, -1) {
		if !r.Exclude.MatchString(text[loc[1]:]) {
			return true
		}
	}
	return false
}

// Term returns the keyword, or the rule name for pattern rules
func (r Rule) Term() string {
	if r.IsKeyword() {
		return r.Keyword
	}
	return r.Name
}

func pattern(category Category, kind Kind, name, expr, message string) Rule {
	return Rule{
		Category: category,
		Kind:     kind,
		Name:     name,
		Pattern:  regexp.MustCompile(`(?i)` + expr),
		Message:  message,
	}
}

func keyword(category Category, kind Kind, term, message string) Rule {
	term = strings.ToLower(strings.TrimSpace(term))
	return Rule{
		Category: category,
		Kind:     kind,
		Name:     term,
		Keyword:  term,
		Message:  message,
	}
}

// excluding attaches a continuation filter equivalent to a negative lookahead
// on `\s+(alternatives)`.
func excluding(r Rule, alternatives ...string) Rule {
	r.Exclude = regexp.MustCompile(`(?i)^\s+(?:` + strings.Join(alternatives, "|") + `)`)
	return r
}
