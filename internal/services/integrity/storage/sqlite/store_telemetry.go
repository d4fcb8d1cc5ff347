package sqlite

import (
	"context"
	"fmt"

	"github.com/strikeline/arena/internal/services/integrity/storage"
)

// AppendTelemetryEvent stores one operational telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO telemetry_events (ts, source, severity, kind, match_id, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		toMillis(evt.Timestamp),
		evt.Source,
		evt.Severity,
		evt.Kind,
		evt.MatchID,
		evt.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert telemetry event: %w", err)
	}
	return nil
}
