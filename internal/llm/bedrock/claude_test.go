package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/drfirst/go-draftguard/internal/llm"
)

type fakeRuntime struct {
	calls   int
	errs    []error
	body    string
	lastReq messageRequest
}

func (f *fakeRuntime) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.calls++
	if err := json.Unmarshal(params.Body, &f.lastReq); err != nil {
		return nil, err
	}
	if len(f.errs) >= f.calls && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func testConfig() Config {
	cfg := DefaultConfig("us-east-1", "anthropic.claude-3-haiku")
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestInvoke(t *testing.T) {
	api := &fakeRuntime{body: `{"content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn"}`}
	c := NewWithAPI(api, testConfig(), nil)

	resp, err := c.Invoke(context.Background(), llm.Request{System: "be careful", Prompt: "hi", MaxTokens: 100})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Content != "hello" || resp.StopReason != "end_turn" || resp.Model != "anthropic.claude-3-haiku" {
		t.Errorf("unexpected response %+v", resp)
	}
	if api.lastReq.AnthropicVersion != anthropicVersion || api.lastReq.System != "be careful" {
		t.Errorf("unexpected payload %+v", api.lastReq)
	}
	if len(api.lastReq.Messages) != 1 || api.lastReq.Messages[0].Role != "user" {
		t.Errorf("unexpected messages %+v", api.lastReq.Messages)
	}
}

func TestInvokeRetriesThrottling(t *testing.T) {
	api := &fakeRuntime{
		errs: []error{&types.ThrottlingException{}, &types.ServiceUnavailableException{}},
		body: `{"content":[{"type":"text","text":"ok"}]}`,
	}
	c := NewWithAPI(api, testConfig(), nil)

	resp, err := c.Invoke(context.Background(), llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Content != "ok" || api.calls != 3 {
		t.Errorf("content = %q after %d calls", resp.Content, api.calls)
	}
}

func TestInvokeDoesNotRetryValidation(t *testing.T) {
	api := &fakeRuntime{errs: []error{&types.ValidationException{}}}
	c := NewWithAPI(api, testConfig(), nil)

	_, err := c.Invoke(context.Background(), llm.Request{Prompt: "hi"})
	var validation *types.ValidationException
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if api.calls != 1 {
		t.Errorf("calls = %d, want 1", api.calls)
	}
}

func TestInvokeEmptyReply(t *testing.T) {
	api := &fakeRuntime{body: `{"content":[],"stop_reason":"max_tokens"}`}
	c := NewWithAPI(api, testConfig(), nil)

	if _, err := c.Invoke(context.Background(), llm.Request{Prompt: "hi"}); !errors.Is(err, ErrEmptyReply) {
		t.Errorf("expected ErrEmptyReply, got %v", err)
	}
}
