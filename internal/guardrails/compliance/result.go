// Package compliance evaluates requests and generated drafts against the pattern library.
package compliance

import "strings"

// ReasonSeparator joins individual flags into the human-readable reason
const ReasonSeparator = "; "

// Result is the verdict of a single compliance check.
// A Result is immutable: every check returns a fresh value.
type Result struct {
	IsCompliant bool     `json:"is_compliant"`
	Reason      string   `json:"reason"`
	Flags       []string `json:"flags"`
}

// NewResult builds a verdict from the collected flags
func NewResult(flags []string) Result {
	if len(flags) == 0 {
		return Result{IsCompliant: true, Reason: "", Flags: []string{}}
	}
	owned := make([]string, len(flags))
	copy(owned, flags)
	return Result{
		IsCompliant: false,
		Reason:      strings.Join(owned, ReasonSeparator),
		Flags:       owned,
	}
}

// FlagList returns a copy of the flags
func (r Result) FlagList() []string {
	out := make([]string, len(r.Flags))
	copy(out, r.Flags)
	return out
}
