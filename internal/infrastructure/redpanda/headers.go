package redpanda

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// HeaderCarrier adapts kgo record headers to an OpenTelemetry TextMapCarrier
type HeaderCarrier struct {
	record *kgo.Record
}

var _ propagation.TextMapCarrier = HeaderCarrier{}

// NewHeaderCarrier wraps record
func NewHeaderCarrier(record *kgo.Record) HeaderCarrier {
	return HeaderCarrier{record: record}
}

// Get returns the last value for key
func (c HeaderCarrier) Get(key string) string {
	for i := len(c.record.Headers) - 1; i >= 0; i-- {
		if c.record.Headers[i].Key == key {
			return string(c.record.Headers[i].Value)
		}
	}
	return ""
}

// Set replaces any existing value for key
func (c HeaderCarrier) Set(key, value string) {
	headers := c.record.Headers[:0]
	for _, h := range c.record.Headers {
		if h.Key != key {
			headers = append(headers, h)
		}
	}
	c.record.Headers = append(headers, kgo.RecordHeader{Key: key, Value: []byte(value)})
}

// Keys lists header keys
func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.record.Headers))
	for _, h := range c.record.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// InjectTrace writes the trace context of ctx into record headers
func InjectTrace(ctx context.Context, record *kgo.Record) {
	otel.GetTextMapPropagator().Inject(ctx, NewHeaderCarrier(record))
}

// ExtractTrace returns ctx continued from the trace context in record headers
func ExtractTrace(ctx context.Context, record *kgo.Record) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(record))
}
