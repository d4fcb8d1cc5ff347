// Package violation records integrity violations and escalates penalties
// within a single match.
//
// Records are append-only for the lifetime of the match: nothing is ever
// deleted, only superseded by an escalation. Escalation is deterministic: an
// identical ordered sequence of violations always reaches the same state.
package violation

import (
	"sort"

	"github.com/strikeline/arena/internal/match/fault"
)

// Record is one appended violation. Owned by the tracker for the match.
type Record struct {
	PlayerID string
	MatchID  string
	Tick     uint64
	Kind     fault.Kind
	Severity fault.Severity
	Detail   string
}

// Escalation identifies the penalty action triggered by a recorded violation.
type Escalation int

const (
	// EscalationNone means the violation was recorded without a penalty.
	EscalationNone Escalation = iota
	// EscalationPenalized means a rating-point deduction was emitted.
	EscalationPenalized
	// EscalationSuspended means the player is out for the rest of the match.
	EscalationSuspended
)

// Config sets the escalation thresholds, counted over violations of severity
// Error or worse.
type Config struct {
	// PenalizeAfter is the violation count at which penalties begin.
	PenalizeAfter int
	// SuspendAfter is the violation count that suspends the player.
	SuspendAfter int
}

// DefaultConfig returns the standard escalation policy: penalties from the
// first counted violation, suspension at the third.
func DefaultConfig() Config {
	return Config{PenalizeAfter: 1, SuspendAfter: 3}
}

// Sink receives escalation emissions. Every emission is externally observable
// regardless of downstream consumption.
type Sink interface {
	PlayerPenalized(playerID string, violations int)
	PlayerSuspended(playerID string)
}

// severityWeight maps severities into the running weighted counter.
func severityWeight(severity fault.Severity) int {
	switch severity {
	case fault.SeverityWarning:
		return 1
	case fault.SeverityError:
		return 3
	case fault.SeverityCritical:
		return 5
	default:
		return 0
	}
}

// Tracker accumulates violations for one match. Owned by the match session
// and driven from its tick loop; not safe for concurrent use.
type Tracker struct {
	matchID   string
	cfg       Config
	sink      Sink
	records   []Record
	counted   map[string]int
	weighted  map[string]int
	suspended map[string]bool
}

// NewTracker creates an empty tracker for the match.
func NewTracker(matchID string, cfg Config, sink Sink) *Tracker {
	if cfg.PenalizeAfter <= 0 {
		cfg.PenalizeAfter = DefaultConfig().PenalizeAfter
	}
	if cfg.SuspendAfter <= 0 {
		cfg.SuspendAfter = DefaultConfig().SuspendAfter
	}
	return &Tracker{
		matchID:   matchID,
		cfg:       cfg,
		sink:      sink,
		counted:   make(map[string]int),
		weighted:  make(map[string]int),
		suspended: make(map[string]bool),
	}
}

// Record appends a violation and applies the escalation policy. It returns
// the escalation triggered by this record, if any.
func (t *Tracker) Record(rec Record) Escalation {
	rec.MatchID = t.matchID
	t.records = append(t.records, rec)
	t.weighted[rec.PlayerID] += severityWeight(rec.Severity)

	if rec.Severity < fault.SeverityError {
		return EscalationNone
	}

	t.counted[rec.PlayerID]++
	count := t.counted[rec.PlayerID]

	if count >= t.cfg.SuspendAfter {
		if t.suspended[rec.PlayerID] {
			return EscalationNone
		}
		t.suspended[rec.PlayerID] = true
		if t.sink != nil {
			t.sink.PlayerSuspended(rec.PlayerID)
		}
		return EscalationSuspended
	}
	if count >= t.cfg.PenalizeAfter {
		if t.sink != nil {
			t.sink.PlayerPenalized(rec.PlayerID, count)
		}
		return EscalationPenalized
	}
	return EscalationNone
}

// Suspended reports whether the player has been suspended this match.
func (t *Tracker) Suspended(playerID string) bool {
	return t.suspended[playerID]
}

// SuspendedCount returns how many players are currently suspended.
func (t *Tracker) SuspendedCount() int {
	return len(t.suspended)
}

// Count returns the player's Error-or-worse violation count.
func (t *Tracker) Count(playerID string) int {
	return t.counted[playerID]
}

// WeightedScore returns the player's severity-weighted violation score.
func (t *Tracker) WeightedScore(playerID string) int {
	return t.weighted[playerID]
}

// Records returns a copy of every recorded violation, in append order.
func (t *Tracker) Records() []Record {
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Total returns the number of recorded violations across all players.
func (t *Tracker) Total() int {
	return len(t.records)
}

// Players returns the sorted ids of players with at least one violation.
func (t *Tracker) Players() []string {
	seen := make(map[string]bool)
	for _, rec := range t.records {
		seen[rec.PlayerID] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
