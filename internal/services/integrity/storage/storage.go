// Package storage defines the persistence interfaces for the integrity
// service. Implementations live in subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/strikeline/arena/internal/match/profile"
	"github.com/strikeline/arena/internal/match/record"
	"github.com/strikeline/arena/internal/match/verdict"
	"github.com/strikeline/arena/internal/match/violation"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// MatchStore persists sealed match records.
type MatchStore interface {
	// SaveRecord stores a sealed record. Saving the same match twice fails.
	SaveRecord(ctx context.Context, rec *record.Record) error
	// GetRecord loads a sealed record by match id.
	GetRecord(ctx context.Context, matchID string) (*record.Record, error)
}

// VerdictStore persists terminal match verdicts.
type VerdictStore interface {
	SaveVerdict(ctx context.Context, v verdict.Verdict) error
	GetVerdict(ctx context.Context, matchID string) (verdict.Verdict, error)
	// ListVerdicts returns stored verdicts ordered by match id.
	ListVerdicts(ctx context.Context) ([]verdict.Verdict, error)
}

// ViolationStore persists the append-only violation log across matches.
type ViolationStore interface {
	AppendViolations(ctx context.Context, recs []violation.Record) error
	// ListViolations returns a player's violations in append order.
	ListViolations(ctx context.Context, playerID string) ([]violation.Record, error)
}

// ProfileStore persists player history profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, playerID string) (profile.Profile, error)
	PutProfile(ctx context.Context, p profile.Profile) error
	// ListProfiles returns all profiles ordered by player id.
	ListProfiles(ctx context.Context) ([]profile.Profile, error)
}

// TelemetryEvent captures one operational telemetry record.
type TelemetryEvent struct {
	Timestamp time.Time
	Source    string
	Severity  string
	Kind      string
	MatchID   string
	Detail    string
}

// TelemetryStore persists operational telemetry.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}

// Store is the combined persistence surface of the integrity service.
type Store interface {
	MatchStore
	VerdictStore
	ViolationStore
	ProfileStore
	TelemetryStore

	Close() error
}
