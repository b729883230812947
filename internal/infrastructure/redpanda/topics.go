package redpanda

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Topic names used by the draft pipeline
const (
	TopicReviewRequested = "drafts.review-requested"
	TopicGuardrailAudit  = "guardrail.audit"
	TopicDeadLetter      = "dead.letter"
)

// TopicSpec describes one topic the pipeline needs
type TopicSpec struct {
	Name       string
	Partitions int32
	Replicas   int16
	Retention  time.Duration
}

// configs renders the broker-side settings for the topic
func (s TopicSpec) configs() map[string]*string {
	retention := strconv.FormatInt(s.Retention.Milliseconds(), 10)
	deletePolicy := "delete"
	codec := "lz4"
	return map[string]*string{
		"retention.ms":     &retention,
		"cleanup.policy":   &deletePolicy,
		"compression.type": &codec,
	}
}

// PipelineTopics returns the topics the relay and dispatcher rely on.
// Review requests are partitioned by draft ID, so they get the most partitions.
func PipelineTopics(replicas int16) []TopicSpec {
	if replicas < 1 {
		replicas = 1
	}
	const week = 7 * 24 * time.Hour
	return []TopicSpec{
		{Name: TopicReviewRequested, Partitions: 6, Replicas: replicas, Retention: week},
		{Name: TopicGuardrailAudit, Partitions: 3, Replicas: replicas, Retention: 30 * 24 * time.Hour},
		{Name: TopicDeadLetter, Partitions: 3, Replicas: replicas, Retention: week},
	}
}

// Admin creates topics and reports consumer lag
type Admin struct {
	client *kadm.Client
	logger *zap.Logger
}

// NewAdmin creates an admin client
func NewAdmin(brokers []string, logger *zap.Logger) (*Admin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Admin{client: kadm.NewClient(cl), logger: logger}, nil
}

// EnsureTopics creates any missing topic. Existing topics are left untouched.
func (a *Admin) EnsureTopics(ctx context.Context, specs []TopicSpec) error {
	for _, spec := range specs {
		resp, err := a.client.CreateTopic(ctx, spec.Partitions, spec.Replicas, spec.configs(), spec.Name)
		switch {
		case errors.Is(err, kerr.TopicAlreadyExists), errors.Is(resp.Err, kerr.TopicAlreadyExists):
			a.logger.Debug("topic exists", zap.String("topic", spec.Name))
		case err != nil:
			return fmt.Errorf("create topic %s: %w", spec.Name, err)
		case resp.Err != nil:
			return fmt.Errorf("create topic %s: %w", spec.Name, resp.Err)
		default:
			a.logger.Info("topic created",
				zap.String("topic", spec.Name),
				zap.Int32("partitions", spec.Partitions),
				zap.Duration("retention", spec.Retention))
		}
	}
	return nil
}

// GroupLag returns the total lag of a consumer group across all partitions
func (a *Admin) GroupLag(ctx context.Context, groupID string) (int64, error) {
	described, err := a.client.Lag(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("describe lag for %s: %w", groupID, err)
	}
	if err := described.Error(); err != nil {
		return 0, fmt.Errorf("describe lag for %s: %w", groupID, err)
	}

	var total int64
	described.Each(func(l kadm.DescribedGroupLag) {
		total += l.Lag.Total()
	})
	return total, nil
}

// Close releases the admin client
func (a *Admin) Close() {
	a.client.Close()
}
