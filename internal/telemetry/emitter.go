// Package telemetry records operational events to durable storage so
// operators can detect degradation (e.g. minting-authority fallbacks)
// after the fact.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/halcyonworks/anchorage/internal/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, severity Severity, component, message string, attrs map[string]string) error {
	if e == nil || e.store == nil {
		return nil
	}
	clock := e.clock
	if clock == nil {
		clock = time.Now
	}
	// Correlate with the active trace when one exists.
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		merged := make(map[string]string, len(attrs)+1)
		for k, v := range attrs {
			merged[k] = v
		}
		merged["trace_id"] = sc.TraceID().String()
		attrs = merged
	}
	return e.store.AppendTelemetryEvent(ctx, storage.TelemetryEvent{
		Severity:  string(severity),
		Component: component,
		Message:   message,
		Attrs:     attrs,
		Timestamp: clock().UTC(),
	})
}
