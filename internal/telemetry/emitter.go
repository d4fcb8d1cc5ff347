// Package telemetry records operational events about match integrity.
package telemetry

import (
	"context"
	"time"

	"github.com/strikeline/arena/internal/services/integrity/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event kinds emitted by the integrity service.
const (
	KindMatchStarted   = "MATCH_STARTED"
	KindMatchEnded     = "MATCH_ENDED"
	KindMatchCancelled = "MATCH_CANCELLED"
	KindReplayMismatch = "REPLAY_MISMATCH"
	KindPlayerSuspended = "PLAYER_SUSPENDED"
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
func (e *Emitter) Emit(ctx context.Context, evt storage.TelemetryEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	if evt.Severity == "" {
		evt.Severity = string(SeverityInfo)
	}
	return e.store.AppendTelemetryEvent(ctx, evt)
}
