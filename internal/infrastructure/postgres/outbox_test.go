package postgres

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDeadLetterPayload(t *testing.T) {
	lastErr := "broker unavailable"
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := &OutboxEntry{
		ID:          7,
		AggregateID: "draft-1",
		EventType:   "DraftReturned",
		Payload:     json.RawMessage(`{"draft_id":"draft-1"}`),
		KafkaTopic:  "drafts.review-requested",
		KafkaKey:    "draft-1",
		CreatedAt:   created,
		RetryCount:  5,
		LastError:   &lastErr,
	}

	body, err := DeadLetterPayload(entry)
	if err != nil {
		t.Fatalf("DeadLetterPayload: %v", err)
	}

	var got struct {
		OriginalTopic string          `json:"original_topic"`
		AggregateID   string          `json:"aggregate_id"`
		Payload       json.RawMessage `json:"payload"`
		RetryCount    int             `json:"retry_count"`
		LastError     string          `json:"last_error"`
		CreatedAt     time.Time       `json:"created_at"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.OriginalTopic != entry.KafkaTopic || got.AggregateID != "draft-1" {
		t.Errorf("routing fields = %+v", got)
	}
	if string(got.Payload) != `{"draft_id":"draft-1"}` {
		t.Errorf("payload = %s, want the original event embedded", got.Payload)
	}
	if got.RetryCount != 5 || got.LastError != lastErr || !got.CreatedAt.Equal(created) {
		t.Errorf("history = %+v", got)
	}
}

func TestDeadLetterPayloadWithoutError(t *testing.T) {
	body, err := DeadLetterPayload(&OutboxEntry{Payload: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("DeadLetterPayload: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["last_error"] != "" {
		t.Errorf("last_error = %v, want empty", got["last_error"])
	}
}
