// Package idempotency records which messages a handler has already processed so
// redelivered messages are applied at most once.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Status is the processing status of an inbox entry
type Status string

const (
	StatusStarted     Status = "STARTED"
	StatusFinished    Status = "FINISHED"
	StatusRecoverable Status = "RECOVERABLE"
	StatusFailed      Status = "FAILED"
)

// Entry is one inbox row
type Entry struct {
	IdempotencyKey string
	HandlerName    string
	Status         Status
	Payload        json.RawMessage
	Result         json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      *time.Time
}

// Config holds configuration for the inbox
type Config struct {
	// TTL is how long entries are remembered
	TTL             time.Duration
	CleanupInterval time.Duration
	// RecoveryTimeout is when a STARTED entry is considered abandoned
	RecoveryTimeout time.Duration
}

// DefaultConfig returns defaults for the inbox
func DefaultConfig() Config {
	return Config{
		TTL:             7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
		RecoveryTimeout: 5 * time.Minute,
	}
}

var (
	// ErrInProgress means another consumer holds a fresh STARTED entry
	ErrInProgress = errors.New("message in progress by another handler")
	// ErrPreviouslyFailed means the message failed terminally before
	ErrPreviouslyFailed = errors.New("message previously failed permanently")
)

type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal marks a handler error as final. The entry is stored as FAILED and
// later deliveries are refused with ErrPreviouslyFailed.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err was marked with Terminal
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}

// Outcome describes how Process handled a message
type Outcome struct {
	Duplicate bool
	Recovered bool
	Result    json.RawMessage
}

// HandlerFunc processes one payload and returns a result to remember
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Inbox deduplicates message handling through the inbox table
type Inbox struct {
	pool   *pgxpool.Pool
	config Config
	logger *zap.Logger
	tracer trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewInbox creates an inbox
func NewInbox(pool *pgxpool.Pool, cfg Config, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Inbox{
		pool:   pool,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("inbox"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Key derives a stable idempotency key from its parts
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Process runs fn unless key was already handled. A finished entry returns its
// stored result with Duplicate set.
func (i *Inbox) Process(ctx context.Context, key, handler string, payload json.RawMessage, fn HandlerFunc) (*Outcome, error) {
	ctx, span := i.tracer.Start(ctx, "inbox.process",
		trace.WithAttributes(
			attribute.String("idempotency_key", key),
			attribute.String("handler", handler),
		))
	defer span.End()

	entry, err := i.get(ctx, key)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check inbox: %w", err)
	}

	recovered := false
	if entry != nil {
		next, err := decide(entry, time.Now(), i.config.RecoveryTimeout)
		switch {
		case err != nil:
			span.SetAttributes(attribute.String("inbox.status", string(entry.Status)))
			return nil, err
		case next == actionReturnStored:
			span.SetAttributes(attribute.Bool("duplicate", true))
			return &Outcome{Duplicate: true, Result: entry.Result}, nil
		case next == actionRecoverStale:
			if err := i.setStatus(ctx, key, StatusRecoverable, nil); err != nil {
				return nil, fmt.Errorf("mark recoverable: %w", err)
			}
		}
		recovered = true
	}

	if err := i.start(ctx, key, handler, payload); err != nil {
		return nil, err
	}

	result, handlerErr := fn(ctx, payload)
	if handlerErr != nil {
		status := StatusRecoverable
		if IsTerminal(handlerErr) {
			status = StatusFailed
		}
		body, _ := json.Marshal(map[string]string{"error": handlerErr.Error()})
		if err := i.setStatus(ctx, key, status, body); err != nil {
			i.logger.Error("failed to record handler error", zap.String("key", key), zap.Error(err))
		}
		span.RecordError(handlerErr)
		return nil, handlerErr
	}

	if err := i.setStatus(ctx, key, StatusFinished, result); err != nil {
		// the handler's work is done; a redelivery will see STARTED and wait for recovery
		i.logger.Error("failed to mark finished", zap.String("key", key), zap.Error(err))
	}
	return &Outcome{Recovered: recovered, Result: result}, nil
}

type action int

const (
	actionReturnStored action = iota
	actionRecoverStale
	actionReprocess
)

// decide maps an existing entry to what Process should do with it
func decide(entry *Entry, now time.Time, recoveryTimeout time.Duration) (action, error) {
	switch entry.Status {
	case StatusFinished:
		return actionReturnStored, nil
	case StatusFailed:
		return 0, fmt.Errorf("%w: %s", ErrPreviouslyFailed, entry.IdempotencyKey)
	case StatusStarted:
		if now.Sub(entry.UpdatedAt) > recoveryTimeout {
			return actionRecoverStale, nil
		}
		return 0, ErrInProgress
	default:
		return actionReprocess, nil
	}
}

func (i *Inbox) get(ctx context.Context, key string) (*Entry, error) {
	e := &Entry{}
	err := i.pool.QueryRow(ctx, `
		SELECT idempotency_key, handler_name, status, payload, result, created_at, updated_at, expires_at
		FROM inbox
		WHERE idempotency_key = $1
	`, key).Scan(
		&e.IdempotencyKey, &e.HandlerName, &e.Status,
		&e.Payload, &e.Result, &e.CreatedAt, &e.UpdatedAt, &e.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// start claims key. Only a new or RECOVERABLE entry can be claimed.
func (i *Inbox) start(ctx context.Context, key, handler string, payload json.RawMessage) error {
	var returned string
	err := i.pool.QueryRow(ctx, `
		INSERT INTO inbox (idempotency_key, handler_name, status, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = $3, updated_at = NOW()
		WHERE inbox.status = 'RECOVERABLE'
		RETURNING idempotency_key
	`, key, handler, StatusStarted, payload, time.Now().Add(i.config.TTL)).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInProgress
	}
	if err != nil {
		return fmt.Errorf("claim inbox entry: %w", err)
	}
	return nil
}

func (i *Inbox) setStatus(ctx context.Context, key string, status Status, result json.RawMessage) error {
	_, err := i.pool.Exec(ctx, `
		UPDATE inbox
		SET status = $1, result = $2, updated_at = NOW()
		WHERE idempotency_key = $3
	`, status, result, key)
	return err
}

// StartCleanup starts the background expiry sweep
func (i *Inbox) StartCleanup() {
	go i.cleanupLoop()
	i.logger.Info("inbox cleanup started", zap.Duration("interval", i.config.CleanupInterval))
}

// Stop stops the expiry sweep
func (i *Inbox) Stop() {
	i.cancel()
	<-i.done
}

func (i *Inbox) cleanupLoop() {
	defer close(i.done)

	ticker := time.NewTicker(i.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.ctx.Done():
			return
		case <-ticker.C:
			if _, err := i.RecoverStale(i.ctx); err != nil {
				i.logger.Error("inbox recovery failed", zap.Error(err))
			}
			result, err := i.pool.Exec(i.ctx, "DELETE FROM inbox WHERE expires_at < NOW()")
			if err != nil {
				i.logger.Error("inbox cleanup failed", zap.Error(err))
				continue
			}
			if n := result.RowsAffected(); n > 0 {
				i.logger.Info("inbox cleanup completed", zap.Int64("deleted", n))
			}
		}
	}
}

// RecoverStale marks abandoned STARTED entries as RECOVERABLE
func (i *Inbox) RecoverStale(ctx context.Context) (int64, error) {
	result, err := i.pool.Exec(ctx, `
		UPDATE inbox
		SET status = 'RECOVERABLE', updated_at = NOW()
		WHERE status = 'STARTED' AND updated_at < $1
	`, time.Now().Add(-i.config.RecoveryTimeout))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
