package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/halcyonworks/anchorage/internal/storage"
)

// AppendTelemetryEvent persists one operational telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(event.Severity) == "" {
		return fmt.Errorf("severity is required")
	}
	if strings.TrimSpace(event.Component) == "" {
		return fmt.Errorf("component is required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := event.Attrs
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrsJSON, err := encodeJSON(attrs)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (severity, component, message, attrs, ts)
VALUES (?, ?, ?, ?, ?)
`,
		event.Severity,
		event.Component,
		event.Message,
		attrsJSON,
		toMillis(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}
