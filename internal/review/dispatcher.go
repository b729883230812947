package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/drfirst/go-draftguard/internal/domain/draft"
	"github.com/drfirst/go-draftguard/internal/infrastructure/redpanda"
	"github.com/drfirst/go-draftguard/internal/observability/metrics"
	"github.com/drfirst/go-draftguard/pkg/circuitbreaker"
	"github.com/drfirst/go-draftguard/pkg/idempotency"
	"github.com/drfirst/go-draftguard/pkg/workerpool"
)

// HandlerName identifies the dispatcher in the idempotency inbox
const HandlerName = "review-dispatcher"

// Deduper runs a handler at most once per key
type Deduper interface {
	Process(ctx context.Context, key, handler string, payload json.RawMessage, fn idempotency.HandlerFunc) (*idempotency.Outcome, error)
}

// Dispatcher turns review-request messages into review queue items
type Dispatcher struct {
	queue   Queue
	inbox   Deduper
	pool    *workerpool.Pool
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher. pool must be started by the caller.
func NewDispatcher(queue Queue, inbox Deduper, pool *workerpool.Pool, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		inbox:   inbox,
		pool:    pool,
		breaker: breaker,
		metrics: m,
		logger:  logger,
	}
}

// Handle is a redpanda.MessageHandler. Returning an error leaves the message
// for redelivery; malformed and previously failed messages are dropped.
func (d *Dispatcher) Handle(ctx context.Context, msg *redpanda.ConsumedMessage) error {
	var req draft.ReviewRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil || req.DraftID == "" {
		d.logger.Error("discarding malformed review request",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	logger := d.logger.With(
		zap.String("draft_id", req.DraftID),
		zap.String("request_id", req.RequestID))

	outcome, err := d.inbox.Process(ctx, idempotency.Key(HandlerName, req.DraftID), HandlerName, msg.Value,
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			item := ItemFor(req)
			if err := d.enqueue(ctx, item); err != nil {
				return nil, err
			}
			d.metrics.ReviewQueued(string(item.Priority))
			logger.Info("draft queued for review",
				zap.String("priority", string(item.Priority)),
				zap.Int("safety_flags", len(item.SafetyFlags)))
			return json.Marshal(map[string]string{"priority": string(item.Priority)})
		})

	switch {
	case errors.Is(err, idempotency.ErrPreviouslyFailed):
		logger.Warn("skipping review request that failed before")
		return nil
	case err != nil:
		return fmt.Errorf("dispatch draft %s: %w", req.DraftID, err)
	case outcome.Duplicate:
		logger.Debug("duplicate review request ignored")
	}
	return nil
}

// enqueue inserts item on a pool worker through the breaker
func (d *Dispatcher) enqueue(ctx context.Context, item Item) error {
	return d.pool.SubmitWait(ctx, &workerpool.Task{
		ID: item.DraftID,
		Run: func(ctx context.Context) error {
			_, err := d.breaker.Execute(ctx, func() (any, error) {
				return nil, d.queue.Enqueue(ctx, item)
			})
			return err
		},
	})
}
