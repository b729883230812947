// Package bedrock invokes Anthropic Claude models through Amazon Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-draftguard/internal/llm"
)

const anthropicVersion = "bedrock-2023-05-31"

// ErrEmptyReply is returned when the model answers without any text block
var ErrEmptyReply = errors.New("model returned no text")

// RuntimeAPI is the subset of the Bedrock runtime client used here
type RuntimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Config holds the model settings
type Config struct {
	Region       string
	ModelID      string
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns defaults for modelID
func DefaultConfig(region, modelID string) Config {
	return Config{
		Region:       region,
		ModelID:      modelID,
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// Client calls Claude on Bedrock
type Client struct {
	api    RuntimeAPI
	config Config
	logger *zap.Logger
}

type messageRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	System           string    `json:"system,omitempty"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewClient loads the default AWS credential chain and creates a client
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithAPI(bedrockruntime.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewWithAPI creates a client over an existing runtime API
func NewWithAPI(api RuntimeAPI, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Client{api: api, config: cfg, logger: logger}
}

// Model returns the Bedrock model ID
func (c *Client) Model() string { return c.config.ModelID }

// Invoke sends the prompt, retrying throttling and transient service errors
// with exponential backoff.
func (c *Client) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.InitialDelay
	policy.MaxInterval = c.config.MaxDelay

	attempt := 0
	return backoff.Retry(ctx, func() (*llm.Response, error) {
		attempt++
		resp, err := c.invokeOnce(ctx, req)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.config.MaxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("bedrock invoke failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", next),
				zap.Error(err))
		}),
	)
}

func (c *Client) invokeOnce(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body, err := json.Marshal(messageRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		System:           req.System,
		Messages:         []message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode claude request: %w", err)
	}

	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.config.ModelID),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", c.config.ModelID, err)
	}

	var parsed messageResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decode claude response: %w", err)
	}

	for _, block := range parsed.Content {
		if block.Type == "text" && block.Text != "" {
			return &llm.Response{Content: block.Text, StopReason: parsed.StopReason, Model: c.config.ModelID}, nil
		}
	}
	return nil, ErrEmptyReply
}

func retryable(err error) bool {
	var throttling *types.ThrottlingException
	var unavailable *types.ServiceUnavailableException
	var internal *types.InternalServerException
	var timeout *types.ModelTimeoutException
	return errors.As(err, &throttling) ||
		errors.As(err, &unavailable) ||
		errors.As(err, &internal) ||
		errors.As(err, &timeout)
}
