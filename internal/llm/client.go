// Package llm defines the language model client used by the generator.
package llm

import "context"

// Request is a single-turn prompt
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response is the model reply
type Response struct {
	Content    string
	StopReason string
	Model      string
}

// Client invokes a language model
type Client interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
	// Model returns the model identifier reported in draft metadata
	Model() string
}
