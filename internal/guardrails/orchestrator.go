// Package guardrails wraps draft generation with compliance pre- and post-checks.
// A failed pre-check rejects the request before the generator is called; a failed
// post-check never rejects, it flags the draft for mandatory review.
package guardrails

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-draftguard/internal/content"
	"github.com/drfirst/go-draftguard/internal/domain/draft"
	"github.com/drfirst/go-draftguard/internal/guardrails/compliance"
	"github.com/drfirst/go-draftguard/internal/observability/metrics"
)

// Check operation names used in logs and metrics
const (
	OpCheckRequest         = "check_request"
	OpCheckContent         = "check_content"
	OpCheckClinicalData    = "check_clinical_data"
	OpCheckClinicalContent = "check_clinical_content"
)

type requestIDKey struct{}

// WithRequestID attaches the originating request ID to ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Orchestrator runs one generation attempt per request between a pre-check and a post-check
type Orchestrator struct {
	evaluator *compliance.Evaluator
	generator Generator
	store     DraftStore
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewOrchestrator creates an orchestrator. store and m may be nil.
func NewOrchestrator(evaluator *compliance.Evaluator, generator Generator, store DraftStore, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		evaluator: evaluator,
		generator: generator,
		store:     store,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("guardrails"),
	}
}

// PatientEducation checks the request, generates education material and checks the result
func (o *Orchestrator) PatientEducation(ctx context.Context, req *content.PatientEducationRequest) (*content.PatientEducationResponse, error) {
	f := flow[content.PatientEducationResponse]{
		name:      draft.FlowPatientEducation,
		input:     req.Topic,
		variant:   string(req.ReadingLevel),
		wordCount: req.WordCount,
		preOp:     OpCheckRequest,
		postOp:    OpCheckContent,
		preCheck:  func() compliance.Result { return o.evaluator.CheckRequest(req.Fields()) },
		postCheck: o.evaluator.CheckContent,
		generate: func(ctx context.Context) (*content.PatientEducationResponse, error) {
			return o.generator.GeneratePatientEducation(ctx, req)
		},
		output: func(resp *content.PatientEducationResponse) (string, string, *content.GenerationMetadata) {
			return resp.Content, resp.Title, &resp.Metadata
		},
		stamp: func(resp *content.PatientEducationResponse, id string) { resp.DraftID = id },
	}
	return run(ctx, o, f)
}

// ClinicalSummary checks the patient data, generates a summary and checks the result
func (o *Orchestrator) ClinicalSummary(ctx context.Context, req *content.ClinicalSummaryRequest) (*content.ClinicalSummaryResponse, error) {
	f := flow[content.ClinicalSummaryResponse]{
		name:      draft.FlowClinicalSummary,
		input:     req.PatientData,
		variant:   string(req.SummaryType),
		wordCount: req.WordCount,
		preOp:     OpCheckClinicalData,
		postOp:    OpCheckClinicalContent,
		preCheck:  func() compliance.Result { return o.evaluator.CheckClinicalData(req.PatientData) },
		postCheck: o.evaluator.CheckClinicalContent,
		generate: func(ctx context.Context) (*content.ClinicalSummaryResponse, error) {
			return o.generator.GenerateClinicalSummary(ctx, req)
		},
		output: func(resp *content.ClinicalSummaryResponse) (string, string, *content.GenerationMetadata) {
			return resp.Summary, "", &resp.Metadata
		},
		stamp: func(resp *content.ClinicalSummaryResponse, id string) { resp.DraftID = id },
	}
	return run(ctx, o, f)
}

// flow binds one generation flow to its checks and generator call
type flow[R any] struct {
	name      draft.Flow
	input     string
	variant   string
	wordCount int
	preOp     string
	postOp    string
	preCheck  func() compliance.Result
	postCheck func(text string) compliance.Result
	generate  func(ctx context.Context) (*R, error)
	output    func(resp *R) (text, title string, md *content.GenerationMetadata)
	stamp     func(resp *R, draftID string)
}

func run[R any](ctx context.Context, o *Orchestrator, f flow[R]) (*R, error) {
	agg := draft.NewAggregate(uuid.New().String())
	requestID := requestIDFrom(ctx)

	ctx, span := o.tracer.Start(ctx, "guardrails."+string(f.name),
		trace.WithAttributes(
			attribute.String("draft_id", agg.ID()),
			attribute.String("flow", string(f.name)),
		))
	defer span.End()

	logger := o.logger.With(
		zap.String("draft_id", agg.ID()),
		zap.String("flow", string(f.name)),
		zap.String("request_id", requestID),
	)

	o.transition(logger, agg.Receive(&draft.ReceivedData{
		Flow:      f.name,
		InputHash: hashInput(f.input),
		Variant:   f.variant,
		WordCount: f.wordCount,
		RequestID: requestID,
	}))

	pre := f.preCheck()
	o.metrics.CheckEvaluated(f.preOp, pre.IsCompliant)
	o.transition(logger, agg.PreCheck(pre.IsCompliant, pre.FlagList()))

	if !pre.IsCompliant {
		o.transition(logger, agg.Reject(pre.Reason))
		o.save(ctx, logger, agg)
		o.metrics.DraftRejected(string(f.name))

		logger.Info("request rejected by pre-check",
			zap.String("operation", f.preOp),
			zap.Strings("flags", pre.Flags))
		span.SetAttributes(attribute.Bool("rejected", true))
		span.SetStatus(codes.Error, "pre-check failed")

		return nil, &ViolationError{Flow: f.name, DraftID: agg.ID(), Reason: pre.Reason, Flags: pre.FlagList()}
	}

	o.transition(logger, agg.StartGeneration())

	start := time.Now()
	resp, err := f.generate(ctx)
	if err == nil && resp == nil {
		err = ErrEmptyDraft
	}
	o.metrics.GenerationObserved(string(f.name), time.Since(start), err)

	if err != nil {
		o.transition(logger, agg.FailGeneration(err))
		o.save(ctx, logger, agg)

		logger.Error("generation failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")

		return nil, &GenerationError{Flow: f.name, DraftID: agg.ID(), Err: err}
	}

	text, title, md := f.output(resp)
	post := f.postCheck(text)
	o.metrics.CheckEvaluated(f.postOp, post.IsCompliant)

	if !post.IsCompliant {
		md.AppendFlag(post.Reason)
		md.RequireReview()

		logger.Warn("draft flagged by post-check",
			zap.String("operation", f.postOp),
			zap.Strings("flags", post.Flags))
	}

	o.transition(logger, agg.PostCheck(post.IsCompliant, post.FlagList()))
	o.transition(logger, agg.Return(&draft.ReturnedData{
		Title:          title,
		ModelUsed:      md.ModelUsed,
		WordCount:      md.WordCount,
		SafetyFlags:    append([]string(nil), md.SafetyFlags...),
		RequiresReview: md.RequiresReview,
	}))
	o.save(ctx, logger, agg)
	o.metrics.DraftReturned(string(f.name), !post.IsCompliant)

	f.stamp(resp, agg.ID())
	span.SetAttributes(
		attribute.Bool("flagged", !post.IsCompliant),
		attribute.Int("safety_flags", len(md.SafetyFlags)),
	)

	logger.Info("draft returned",
		zap.String("model", md.ModelUsed),
		zap.Int("word_count", md.WordCount),
		zap.Bool("requires_review", md.RequiresReview))

	return resp, nil
}

// transition logs lifecycle guard errors; they never fail the request
func (o *Orchestrator) transition(logger *zap.Logger, err error) {
	if err != nil {
		logger.Error("draft transition rejected", zap.Error(err))
	}
}

// save persists the lifecycle. Store errors are logged and counted, never returned.
func (o *Orchestrator) save(ctx context.Context, logger *zap.Logger, agg *draft.Aggregate) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, agg); err != nil {
		o.metrics.StoreFailed()
		logger.Error("failed to save draft lifecycle",
			zap.String("status", string(agg.Status())),
			zap.Error(err))
	}
}

func hashInput(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
