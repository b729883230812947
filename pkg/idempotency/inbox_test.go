package idempotency

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDecide(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	timeout := 5 * time.Minute

	tests := []struct {
		name    string
		status  Status
		updated time.Time
		want    action
		wantErr error
	}{
		{"finished returns stored result", StatusFinished, now, actionReturnStored, nil},
		{"failed is refused", StatusFailed, now, 0, ErrPreviouslyFailed},
		{"fresh start is in progress", StatusStarted, now.Add(-time.Minute), 0, ErrInProgress},
		{"stale start is recovered", StatusStarted, now.Add(-10 * time.Minute), actionRecoverStale, nil},
		{"recoverable is reprocessed", StatusRecoverable, now, actionReprocess, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decide(&Entry{IdempotencyKey: "k", Status: tt.status, UpdatedAt: tt.updated}, now, timeout)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("action = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	base := errors.New("malformed review request")
	err := fmt.Errorf("handle: %w", Terminal(base))
	if !IsTerminal(err) {
		t.Error("wrapped terminal error not detected")
	}
	if !errors.Is(err, base) {
		t.Error("terminal error should unwrap to its cause")
	}
	if IsTerminal(base) {
		t.Error("plain error reported as terminal")
	}
	if Terminal(nil) != nil {
		t.Error("Terminal(nil) should be nil")
	}
}

func TestKey(t *testing.T) {
	a := Key("review-dispatcher", "draft-1")
	if a != Key("review-dispatcher", "draft-1") {
		t.Error("key is not stable")
	}
	if a == Key("review-dispatcher", "draft-2") {
		t.Error("different drafts share a key")
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex chars", len(a))
	}
}
