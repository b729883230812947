package tracing

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestInitWithoutEndpoint(t *testing.T) {
	p, err := Init(context.Background(), DefaultConfig("draft-api"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.Enabled() {
		t.Error("provider should be disabled without an endpoint")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}

	fields := strings.Join(otel.GetTextMapPropagator().Fields(), ",")
	if !strings.Contains(fields, "traceparent") || !strings.Contains(fields, "baggage") {
		t.Errorf("propagator fields = %s", fields)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestNewResourceMergesEnvironment(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "team=clinical-content")

	res, err := newResource(context.Background(), DefaultConfig("review-dispatcher"))
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}

	set := res.Set()
	if v, ok := set.Value(attribute.Key("service.name")); !ok || v.AsString() != "review-dispatcher" {
		t.Errorf("service.name = %v", v)
	}
	if v, ok := set.Value(attribute.Key("team")); !ok || v.AsString() != "clinical-content" {
		t.Errorf("team = %v", v)
	}
}
