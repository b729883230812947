// Package draft implements the draft lifecycle aggregate and domain events.
package draft

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AggregateType is stored with every draft event and outbox entry
const AggregateType = "Draft"

// EventType represents the type of domain event
type EventType string

const (
	EventDraftReceived          EventType = "DraftReceived"
	EventDraftPreChecked        EventType = "DraftPreChecked"
	EventDraftRejected          EventType = "DraftRejected"
	EventDraftGenerationStarted EventType = "DraftGenerationStarted"
	EventDraftGenerationFailed  EventType = "DraftGenerationFailed"
	EventDraftPostChecked       EventType = "DraftPostChecked"
	EventDraftReturned          EventType = "DraftReturned"
)

// Terminal reports whether no further event can follow
func (t EventType) Terminal() bool {
	switch t {
	case EventDraftRejected, EventDraftGenerationFailed, EventDraftReturned:
		return true
	}
	return false
}

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	InputHash     string          `json:"input_hash,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event
func NewEvent(aggregateID string, eventType EventType, data any) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: AggregateType,
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// WithAuditInfo sets audit fields
func (e *Event) WithAuditInfo(inputHash, correlationID string) *Event {
	e.InputHash = inputHash
	e.CorrelationID = correlationID
	return e
}

// ReceivedData describes an incoming generation request. The raw input is
// never stored, only its hash.
type ReceivedData struct {
	DraftID   string    `json:"draft_id"`
	Flow      Flow      `json:"flow"`
	InputHash string    `json:"input_hash"`
	Variant   string    `json:"variant"`
	WordCount int       `json:"word_count"`
	RequestID string    `json:"request_id,omitempty"`
	At        time.Time `json:"at"`
}

// CheckedData is the outcome of a pre- or post-check
type CheckedData struct {
	DraftID   string   `json:"draft_id"`
	Compliant bool     `json:"compliant"`
	Flags     []string `json:"flags"`
}

// RejectedData records a refused request
type RejectedData struct {
	DraftID string    `json:"draft_id"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// GenerationFailedData records a generator error
type GenerationFailedData struct {
	DraftID string    `json:"draft_id"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// ReturnedData records the draft handed back to the caller
type ReturnedData struct {
	DraftID        string    `json:"draft_id"`
	Title          string    `json:"title,omitempty"`
	ModelUsed      string    `json:"model_used"`
	WordCount      int       `json:"word_count"`
	SafetyFlags    []string  `json:"safety_flags"`
	RequiresReview bool      `json:"requires_review"`
	At             time.Time `json:"at"`
}
