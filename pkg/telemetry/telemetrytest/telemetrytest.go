// Package telemetrytest records the spans of emitters under test.
package telemetrytest

import (
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Recorder is a TracerProvider that keeps every span in memory once it ends.
type Recorder struct {
	*sdktrace.TracerProvider
	spans *tracetest.SpanRecorder
}

func NewRecorder() *Recorder {
	spans := tracetest.NewSpanRecorder()
	return &Recorder{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		spans:          spans,
	}
}

// Spans returns the ended spans in the order they ended.
func (recorder *Recorder) Spans() []sdktrace.ReadOnlySpan {
	return recorder.spans.Ended()
}

// Attribute returns the last value recorded on span under key.
func Attribute(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	attributes := span.Attributes()
	for i := len(attributes) - 1; i >= 0; i-- {
		if attributes[i].Key == key {
			return attributes[i].Value, true
		}
	}
	return attribute.Value{}, false
}
