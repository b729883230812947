// Package review places returned drafts on the clinician review queue.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drfirst/go-draftguard/internal/domain/draft"
)

// Priority orders the review queue
type Priority string

const (
	PriorityUrgent  Priority = "urgent"
	PriorityRoutine Priority = "routine"
)

// Item is one row of the review queue
type Item struct {
	DraftID     string
	Flow        draft.Flow
	Priority    Priority
	Title       string
	ModelUsed   string
	SafetyFlags []string
	RequestID   string
	ReturnedAt  time.Time
}

// ItemFor builds the queue item for req. Drafts carrying safety flags are urgent.
func ItemFor(req draft.ReviewRequest) Item {
	priority := PriorityRoutine
	if len(req.SafetyFlags) > 0 {
		priority = PriorityUrgent
	}
	flags := req.SafetyFlags
	if flags == nil {
		flags = []string{}
	}
	return Item{
		DraftID:     req.DraftID,
		Flow:        req.Flow,
		Priority:    priority,
		Title:       req.Title,
		ModelUsed:   req.ModelUsed,
		SafetyFlags: flags,
		RequestID:   req.RequestID,
		ReturnedAt:  req.ReturnedAt,
	}
}

// Queue stores review items
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
}

// PGQueue is the review_queue table
type PGQueue struct {
	pool *pgxpool.Pool
}

// NewPGQueue creates a queue over pool
func NewPGQueue(pool *pgxpool.Pool) *PGQueue {
	return &PGQueue{pool: pool}
}

// Enqueue inserts item. A draft already on the queue is left unchanged.
func (q *PGQueue) Enqueue(ctx context.Context, item Item) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO review_queue
		(draft_id, flow, priority, title, model_used, safety_flags, request_id, returned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (draft_id) DO NOTHING
	`,
		item.DraftID,
		string(item.Flow),
		string(item.Priority),
		item.Title,
		item.ModelUsed,
		item.SafetyFlags,
		item.RequestID,
		item.ReturnedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue draft %s: %w", item.DraftID, err)
	}
	return nil
}
