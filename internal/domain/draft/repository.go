package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-draftguard/internal/infrastructure/postgres"
	"github.com/drfirst/go-draftguard/internal/infrastructure/redpanda"
)

// ErrNotFound is returned by Load for an unknown draft ID
var ErrNotFound = errors.New("draft not found")

// ReviewRequest is published for every returned draft
type ReviewRequest struct {
	DraftID        string    `json:"draft_id"`
	Flow           Flow      `json:"flow"`
	Variant        string    `json:"variant,omitempty"`
	InputHash      string    `json:"input_hash"`
	Title          string    `json:"title,omitempty"`
	ModelUsed      string    `json:"model_used"`
	WordCount      int       `json:"word_count"`
	SafetyFlags    []string  `json:"safety_flags"`
	RequiresReview bool      `json:"requires_review"`
	RequestID      string    `json:"request_id,omitempty"`
	ReturnedAt     time.Time `json:"returned_at"`
}

// AuditRecord is published for every rejected or failed draft
type AuditRecord struct {
	DraftID   string    `json:"draft_id"`
	Flow      Flow      `json:"flow"`
	Outcome   Status    `json:"outcome"`
	Reason    string    `json:"reason"`
	Flags     []string  `json:"flags"`
	InputHash string    `json:"input_hash"`
	RequestID string    `json:"request_id,omitempty"`
	At        time.Time `json:"at"`
}

// Repository provides event sourcing persistence
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// Save persists new events for an aggregate. A terminal event also writes its
// outbox entry in the same transaction.
func (r *Repository) Save(ctx context.Context, agg *Aggregate) error {
	changes := agg.Changes()
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, event := range changes {
		event.Version = agg.Version() - len(changes) + i + 1
		if err := r.insertEvent(ctx, tx, event); err != nil {
			return fmt.Errorf("insert %s: %w", event.EventType, err)
		}

		entry, err := OutboxEntryFor(agg, event)
		if err != nil {
			return err
		}
		if entry == nil {
			continue
		}
		if err := postgres.WriteEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Debug("draft events saved",
		zap.String("draft_id", agg.ID()),
		zap.String("status", string(agg.Status())),
		zap.Int("events", len(changes)))

	agg.ClearChanges()
	return nil
}

func (r *Repository) insertEvent(ctx context.Context, tx pgx.Tx, event *Event) error {
	query := `
		INSERT INTO draft_events
		(id, aggregate_id, event_type, event_data, version, timestamp, input_hash, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.Exec(ctx, query,
		event.ID,
		event.AggregateID,
		event.EventType,
		event.EventData,
		event.Version,
		event.Timestamp,
		event.InputHash,
		event.CorrelationID,
	)
	return err
}

// OutboxEntryFor maps a terminal event to its outbox entry. Non-terminal events
// yield nil.
func OutboxEntryFor(agg *Aggregate, event *Event) (*postgres.OutboxEntry, error) {
	var (
		topic   string
		payload any
	)

	switch event.EventType {
	case EventDraftReturned:
		var data ReturnedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return nil, fmt.Errorf("decode returned event: %w", err)
		}
		topic = redpanda.TopicReviewRequested
		payload = ReviewRequest{
			DraftID:        agg.ID(),
			Flow:           agg.Flow(),
			Variant:        agg.Variant(),
			InputHash:      agg.InputHash(),
			Title:          data.Title,
			ModelUsed:      data.ModelUsed,
			WordCount:      data.WordCount,
			SafetyFlags:    nonNil(data.SafetyFlags),
			RequiresReview: data.RequiresReview,
			RequestID:      agg.RequestID(),
			ReturnedAt:     data.At,
		}
	case EventDraftRejected:
		var data RejectedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return nil, fmt.Errorf("decode rejected event: %w", err)
		}
		topic = redpanda.TopicGuardrailAudit
		payload = AuditRecord{
			DraftID:   agg.ID(),
			Flow:      agg.Flow(),
			Outcome:   StatusRejected,
			Reason:    data.Reason,
			Flags:     nonNil(agg.PreCheckFlags()),
			InputHash: agg.InputHash(),
			RequestID: agg.RequestID(),
			At:        data.At,
		}
	case EventDraftGenerationFailed:
		var data GenerationFailedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return nil, fmt.Errorf("decode failed event: %w", err)
		}
		topic = redpanda.TopicGuardrailAudit
		payload = AuditRecord{
			DraftID:   agg.ID(),
			Flow:      agg.Flow(),
			Outcome:   StatusFailed,
			Reason:    data.Error,
			Flags:     []string{},
			InputHash: agg.InputHash(),
			RequestID: agg.RequestID(),
			At:        data.At,
		}
	default:
		return nil, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode outbox payload: %w", err)
	}
	return &postgres.OutboxEntry{
		AggregateID:   agg.ID(),
		AggregateType: AggregateType,
		EventType:     string(event.EventType),
		Payload:       body,
		KafkaTopic:    topic,
		KafkaKey:      agg.ID(),
	}, nil
}

// Load retrieves an aggregate by ID
func (r *Repository) Load(ctx context.Context, id string) (*Aggregate, error) {
	events, err := r.GetEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	agg := NewAggregate(id)
	agg.LoadFromHistory(events)
	return agg, nil
}

// GetEvents retrieves all events for an aggregate
func (r *Repository) GetEvents(ctx context.Context, aggregateID string) ([]*Event, error) {
	query := `
		SELECT id, aggregate_id, event_type, event_data, version, timestamp,
		       input_hash, correlation_id
		FROM draft_events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`

	rows, err := r.pool.Query(ctx, query, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{AggregateType: AggregateType}
		err := rows.Scan(
			&e.ID, &e.AggregateID, &e.EventType, &e.EventData, &e.Version,
			&e.Timestamp, &e.InputHash, &e.CorrelationID,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
