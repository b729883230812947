package evidence

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drfirst/go-draftguard/internal/content"
	"github.com/drfirst/go-draftguard/internal/observability/metrics"
	"github.com/drfirst/go-draftguard/pkg/circuitbreaker"
)

// Plan says how many references to ask a source for and when to ask at all
type Plan struct {
	Source Source
	Limit  int
	// When filters topics; nil means always
	When func(topic string) bool
}

// DefaultPlans asks PubMed for 3, ClinicalTrials.gov for 2 and MyGene for 2 on
// gene related topics. Nil sources are skipped.
func DefaultPlans(pubmed, trials, genes Source) []Plan {
	var plans []Plan
	if pubmed != nil {
		plans = append(plans, Plan{Source: pubmed, Limit: 3})
	}
	if trials != nil {
		plans = append(plans, Plan{Source: trials, Limit: 2})
	}
	if genes != nil {
		plans = append(plans, Plan{Source: genes, Limit: 2, When: GeneRelated})
	}
	return plans
}

// Service queries every planned source concurrently and caches the merged result
type Service struct {
	plans    []Plan
	cache    Cache
	ttl      time.Duration
	breakers *circuitbreaker.Manager
	metrics  *metrics.Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewService creates a service. cache, breakers and m may be nil.
func NewService(plans []Plan, cache Cache, ttl time.Duration, breakers *circuitbreaker.Manager, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		plans:    plans,
		cache:    cache,
		ttl:      ttl,
		breakers: breakers,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("evidence"),
	}
}

// Gather returns up to limit references for topic, in plan order.
// Source and cache failures are logged and never returned.
func (s *Service) Gather(ctx context.Context, topic string, limit int) []content.SourceReference {
	ctx, span := s.tracer.Start(ctx, "evidence.gather",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	key := CacheKey(topic, limit)
	if refs, ok := s.lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true), attribute.Int("sources", len(refs)))
		return refs
	}

	results := make([][]content.SourceReference, len(s.plans))
	failed := make([]bool, len(s.plans))

	var g errgroup.Group
	for i, plan := range s.plans {
		if plan.When != nil && !plan.When(topic) {
			continue
		}
		g.Go(func() error {
			refs, err := s.search(ctx, plan, topic)
			if err != nil {
				failed[i] = true
				s.metrics.SourceFailed(plan.Source.Name())
				s.logger.Warn("evidence source failed",
					zap.String("source", plan.Source.Name()),
					zap.Error(err))
				return nil
			}
			results[i] = refs
			return nil
		})
	}
	_ = g.Wait()

	var merged []content.SourceReference
	degraded := false
	for i := range s.plans {
		merged = append(merged, results[i]...)
		degraded = degraded || failed[i]
	}
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	span.SetAttributes(attribute.Int("sources", len(merged)), attribute.Bool("degraded", degraded))

	// a partial result is not cached so the failed source gets another chance
	if len(merged) > 0 && !degraded {
		s.store(ctx, key, merged)
	}
	return merged
}

func (s *Service) search(ctx context.Context, plan Plan, topic string) ([]content.SourceReference, error) {
	call := func() ([]content.SourceReference, error) {
		return plan.Source.Search(ctx, topic, plan.Limit)
	}
	if s.breakers == nil {
		return call()
	}
	cb, err := s.breakers.GetOrCreate(plan.Source.Name(), circuitbreaker.DefaultConfig(plan.Source.Name()))
	if err != nil {
		return nil, err
	}
	return circuitbreaker.Do(ctx, cb, call)
}

func (s *Service) lookup(ctx context.Context, key string) ([]content.SourceReference, bool) {
	if s.cache == nil {
		return nil, false
	}
	refs, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.CacheLookup("error")
		s.logger.Warn("evidence cache read failed", zap.Error(err))
		return nil, false
	case !ok:
		s.metrics.CacheLookup("miss")
		return nil, false
	default:
		s.metrics.CacheLookup("hit")
		return refs, true
	}
}

func (s *Service) store(ctx context.Context, key string, refs []content.SourceReference) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, refs, s.ttl); err != nil {
		s.logger.Warn("evidence cache write failed", zap.Error(err))
	}
}
