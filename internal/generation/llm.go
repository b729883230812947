package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/drfirst/go-draftguard/internal/content"
	"github.com/drfirst/go-draftguard/internal/llm"
	"github.com/drfirst/go-draftguard/pkg/circuitbreaker"
)

// LLMConfig holds model call settings
type LLMConfig struct {
	MaxTokens   int
	Temperature float64
}

// DefaultLLMConfig returns the defaults used by the draft API
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{MaxTokens: 2000, Temperature: 0.3}
}

// LLMGenerator drafts content with a language model. When the breaker is open
// and a fallback is configured, the fallback drafts instead.
type LLMGenerator struct {
	client   llm.Client
	breaker  *circuitbreaker.CircuitBreaker
	evidence Evidence
	fallback *TemplateGenerator
	config   LLMConfig
	logger   *zap.Logger
}

// NewLLMGenerator creates a generator. breaker, evidence and fallback may be nil.
func NewLLMGenerator(client llm.Client, breaker *circuitbreaker.CircuitBreaker, evidence Evidence, fallback *TemplateGenerator, cfg LLMConfig, logger *zap.Logger) *LLMGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultLLMConfig().MaxTokens
	}
	return &LLMGenerator{
		client:   client,
		breaker:  breaker,
		evidence: evidence,
		fallback: fallback,
		config:   cfg,
		logger:   logger,
	}
}

type educationReply struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	KeyPoints []string `json:"key_points"`
}

type summaryReply struct {
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"key_findings"`
	Recommendations []string `json:"recommendations"`
	RiskFactors     []string `json:"risk_factors"`
	FollowUpNeeded  []string `json:"follow_up_needed"`
}

// GeneratePatientEducation implements guardrails.Generator
func (g *LLMGenerator) GeneratePatientEducation(ctx context.Context, req *content.PatientEducationRequest) (*content.PatientEducationResponse, error) {
	sources := gatherSources(ctx, g.evidence, req)

	resp, err := g.invoke(ctx, educationPrompt(req, sources), req.WordCount)
	if err != nil {
		if g.useFallback(err) {
			return g.fallback.GeneratePatientEducation(ctx, req)
		}
		return nil, err
	}

	var reply educationReply
	if !decodeReply(resp.Content, &reply) || reply.Content == "" {
		g.logger.Warn("model reply was not structured, using raw text", zap.String("model", resp.Model))
		reply = educationReply{Content: strings.TrimSpace(resp.Content)}
	}
	if reply.Title == "" {
		reply.Title = educationTitle(req.Topic)
	}

	return &content.PatientEducationResponse{
		Content:    reply.Content,
		Title:      reply.Title,
		KeyPoints:  orEmpty(reply.KeyPoints),
		Sources:    sources,
		Metadata:   content.NewMetadata(resp.Model, req.ReadingLevel, countWords(reply.Content)),
		Disclaimer: content.EducationDisclaimer,
	}, nil
}

// GenerateClinicalSummary implements guardrails.Generator
func (g *LLMGenerator) GenerateClinicalSummary(ctx context.Context, req *content.ClinicalSummaryRequest) (*content.ClinicalSummaryResponse, error) {
	resp, err := g.invoke(ctx, summaryPrompt(req), req.WordCount)
	if err != nil {
		if g.useFallback(err) {
			return g.fallback.GenerateClinicalSummary(ctx, req)
		}
		return nil, err
	}

	var reply summaryReply
	if !decodeReply(resp.Content, &reply) || reply.Summary == "" {
		g.logger.Warn("model reply was not structured, using raw text", zap.String("model", resp.Model))
		reply = summaryReply{Summary: strings.TrimSpace(resp.Content)}
	}

	out := &content.ClinicalSummaryResponse{
		Summary:        reply.Summary,
		KeyFindings:    orEmpty(reply.KeyFindings),
		RiskFactors:    orEmpty(reply.RiskFactors),
		FollowUpNeeded: orEmpty(reply.FollowUpNeeded),
		Metadata:       content.NewMetadata(resp.Model, content.ReadingLevelProfessional, countWords(reply.Summary)),
		Disclaimer:     content.SummaryDisclaimer,
	}
	if req.WantsRecommendations() {
		out.Recommendations = orEmpty(reply.Recommendations)
	}
	return out, nil
}

func (g *LLMGenerator) invoke(ctx context.Context, prompt string, wordCount int) (*llm.Response, error) {
	req := llm.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   min(wordCount*3, g.config.MaxTokens),
		Temperature: g.config.Temperature,
	}

	call := func() (*llm.Response, error) { return g.client.Invoke(ctx, req) }

	var (
		resp *llm.Response
		err  error
	)
	if g.breaker != nil {
		resp, err = circuitbreaker.Do(ctx, g.breaker, call)
	} else {
		resp, err = call()
	}
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", g.client.Model(), err)
	}
	if resp.Model == "" {
		resp.Model = g.client.Model()
	}
	return resp, nil
}

func (g *LLMGenerator) useFallback(err error) bool {
	if g.fallback == nil || !circuitbreaker.IsOpen(err) {
		return false
	}
	g.logger.Warn("model circuit open, drafting from templates", zap.Error(err))
	return true
}

// decodeReply extracts the first JSON object from a model reply, tolerating
// markdown fences and surrounding prose
func decodeReply(text string, v any) bool {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(text[start:end+1]), v) == nil
}
