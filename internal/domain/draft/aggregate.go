package draft

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Flow identifies which generation flow produced a draft
type Flow string

const (
	FlowPatientEducation Flow = "patient_education"
	FlowClinicalSummary  Flow = "clinical_summary"
)

// Status represents the draft lifecycle state
type Status string

const (
	StatusNew         Status = ""
	StatusReceived    Status = "received"
	StatusPreChecked  Status = "pre_checked"
	StatusRejected    Status = "rejected"
	StatusGenerating  Status = "generating"
	StatusFailed      Status = "failed"
	StatusPostChecked Status = "post_checked"
	StatusReturned    Status = "returned"
)

// ErrInvalidTransition is returned when an operation is not allowed in the current status
var ErrInvalidTransition = errors.New("invalid draft transition")

// Aggregate represents the draft aggregate root
type Aggregate struct {
	id             string
	version        int
	status         Status
	flow           Flow
	inputHash      string
	requestID      string
	variant        string
	preCompliant   bool
	preFlags       []string
	postFlags      []string
	reason         string
	failure        string
	title          string
	modelUsed      string
	wordCount      int
	safetyFlags    []string
	requiresReview bool
	createdAt      time.Time
	updatedAt      time.Time
	changes        []*Event
}

// NewAggregate creates a new draft aggregate
func NewAggregate(id string) *Aggregate {
	now := time.Now().UTC()
	return &Aggregate{
		id:        id,
		status:    StatusNew,
		createdAt: now,
		updatedAt: now,
		changes:   make([]*Event, 0),
	}
}

// ID returns the aggregate ID
func (a *Aggregate) ID() string { return a.id }

// Version returns the current version
func (a *Aggregate) Version() int { return a.version }

// Status returns the current status
func (a *Aggregate) Status() Status { return a.status }

// Flow returns the generation flow
func (a *Aggregate) Flow() Flow { return a.flow }

// InputHash returns the hash of the caller-supplied input
func (a *Aggregate) InputHash() string { return a.inputHash }

// RequestID returns the originating HTTP request ID
func (a *Aggregate) RequestID() string { return a.requestID }

// Variant returns the reading level or summary type requested
func (a *Aggregate) Variant() string { return a.variant }

// PreCheckFlags returns the flags raised by the pre-check
func (a *Aggregate) PreCheckFlags() []string { return append([]string(nil), a.preFlags...) }

// Reason returns the rejection reason, if any
func (a *Aggregate) Reason() string { return a.reason }

// Failure returns the generation error text, if any
func (a *Aggregate) Failure() string { return a.failure }

// Title returns the returned draft title
func (a *Aggregate) Title() string { return a.title }

// ModelUsed returns the model that produced the draft
func (a *Aggregate) ModelUsed() string { return a.modelUsed }

// WordCount returns the returned draft word count
func (a *Aggregate) WordCount() int { return a.wordCount }

// SafetyFlags returns the flags attached to the returned draft
func (a *Aggregate) SafetyFlags() []string { return append([]string(nil), a.safetyFlags...) }

// RequiresReview reports whether the returned draft needs clinician review
func (a *Aggregate) RequiresReview() bool { return a.requiresReview }

// PostCheckFlags returns the flags raised by the post-check
func (a *Aggregate) PostCheckFlags() []string { return append([]string(nil), a.postFlags...) }

// UpdatedAt returns the time of the last applied event
func (a *Aggregate) UpdatedAt() time.Time { return a.updatedAt }

// Changes returns uncommitted events
func (a *Aggregate) Changes() []*Event { return a.changes }

// ClearChanges clears uncommitted events
func (a *Aggregate) ClearChanges() { a.changes = make([]*Event, 0) }

// Receive records an incoming request
func (a *Aggregate) Receive(data *ReceivedData) error {
	if a.status != StatusNew {
		return a.transitionError("receive")
	}
	data.DraftID = a.id
	if data.At.IsZero() {
		data.At = time.Now().UTC()
	}
	return a.record(EventDraftReceived, data)
}

// PreCheck records the verdict on the caller-supplied input
func (a *Aggregate) PreCheck(compliant bool, flags []string) error {
	if a.status != StatusReceived {
		return a.transitionError("pre-check")
	}
	return a.record(EventDraftPreChecked, &CheckedData{DraftID: a.id, Compliant: compliant, Flags: nonNil(flags)})
}

// Reject refuses a request whose pre-check failed
func (a *Aggregate) Reject(reason string) error {
	if a.status != StatusPreChecked || a.preCompliant {
		return a.transitionError("reject")
	}
	return a.record(EventDraftRejected, &RejectedData{DraftID: a.id, Reason: reason, At: time.Now().UTC()})
}

// StartGeneration records the call to the generator
func (a *Aggregate) StartGeneration() error {
	if a.status != StatusPreChecked || !a.preCompliant {
		return a.transitionError("start generation")
	}
	return a.record(EventDraftGenerationStarted, &CheckedData{DraftID: a.id, Compliant: true, Flags: []string{}})
}

// FailGeneration records a generator error
func (a *Aggregate) FailGeneration(cause error) error {
	if a.status != StatusGenerating {
		return a.transitionError("fail generation")
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return a.record(EventDraftGenerationFailed, &GenerationFailedData{DraftID: a.id, Error: msg, At: time.Now().UTC()})
}

// PostCheck records the verdict on the generated text
func (a *Aggregate) PostCheck(compliant bool, flags []string) error {
	if a.status != StatusGenerating {
		return a.transitionError("post-check")
	}
	return a.record(EventDraftPostChecked, &CheckedData{DraftID: a.id, Compliant: compliant, Flags: nonNil(flags)})
}

// Return records the draft handed back to the caller
func (a *Aggregate) Return(data *ReturnedData) error {
	if a.status != StatusPostChecked {
		return a.transitionError("return")
	}
	data.DraftID = a.id
	data.SafetyFlags = nonNil(data.SafetyFlags)
	if data.At.IsZero() {
		data.At = time.Now().UTC()
	}
	return a.record(EventDraftReturned, data)
}

func (a *Aggregate) record(eventType EventType, data any) error {
	event, err := NewEvent(a.id, eventType, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	event.WithAuditInfo(a.inputHash, a.requestID)
	if rd, ok := data.(*ReceivedData); ok {
		event.WithAuditInfo(rd.InputHash, rd.RequestID)
	}

	a.apply(event)
	a.changes = append(a.changes, event)
	return nil
}

func (a *Aggregate) transitionError(op string) error {
	return fmt.Errorf("%w: cannot %s draft %s in status %q", ErrInvalidTransition, op, a.id, a.status)
}

// apply applies an event to update state
func (a *Aggregate) apply(event *Event) {
	a.version++
	a.updatedAt = event.Timestamp

	switch event.EventType {
	case EventDraftReceived:
		var data ReceivedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		a.status = StatusReceived
		a.flow = data.Flow
		a.inputHash = data.InputHash
		a.requestID = data.RequestID
		a.variant = data.Variant
	case EventDraftPreChecked:
		var data CheckedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		a.status = StatusPreChecked
		a.preCompliant = data.Compliant
		a.preFlags = data.Flags
	case EventDraftRejected:
		var data RejectedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		a.status = StatusRejected
		a.reason = data.Reason
	case EventDraftGenerationStarted:
		a.status = StatusGenerating
	case EventDraftGenerationFailed:
		var data GenerationFailedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		a.status = StatusFailed
		a.failure = data.Error
	case EventDraftPostChecked:
		var data CheckedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		a.status = StatusPostChecked
		a.postFlags = data.Flags
	case EventDraftReturned:
		var data ReturnedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		a.status = StatusReturned
		a.title = data.Title
		a.modelUsed = data.ModelUsed
		a.wordCount = data.WordCount
		a.safetyFlags = data.SafetyFlags
		a.requiresReview = data.RequiresReview
	}
}

// LoadFromHistory rebuilds state from events
func (a *Aggregate) LoadFromHistory(events []*Event) {
	for _, event := range events {
		a.apply(event)
	}
}

func nonNil(flags []string) []string {
	if flags == nil {
		return []string{}
	}
	return flags
}
