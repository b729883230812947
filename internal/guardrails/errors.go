package guardrails

import (
	"errors"
	"fmt"

	"github.com/drfirst/go-draftguard/internal/domain/draft"
)

// ErrEmptyDraft is wrapped in a GenerationError when the generator returns no draft
var ErrEmptyDraft = errors.New("generator returned no draft")

// ViolationError reports a request refused by the pre-check
type ViolationError struct {
	Flow    draft.Flow
	DraftID string
	Reason  string
	Flags   []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s pre-check failed: %s", e.Flow, e.Reason)
}

// Message returns the caller-facing rejection message
func (e *ViolationError) Message() string {
	if e.Flow == draft.FlowClinicalSummary {
		return "Clinical data failed compliance check: " + e.Reason
	}
	return "Request failed compliance check: " + e.Reason
}

// GenerationError wraps a generator failure
type GenerationError struct {
	Flow    draft.Flow
	DraftID string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Flow, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
