// Package record defines the immutable match record sealed at match end.
//
// A record is created when a match enters play (the seed is fixed at that
// instant), appended to while the match runs, and sealed exactly once when the
// match ends. The committed hash covers seed, input log, and final statistics;
// only the replay verifier ever recomputes it, for comparison.
package record

import (
	"errors"

	"github.com/strikeline/arena/internal/match/action"
	"github.com/strikeline/arena/internal/match/encoding"
)

var (
	// ErrSealed indicates an append or re-seal against a sealed record.
	ErrSealed = errors.New("match record is sealed")
	// ErrNotSealed indicates a read that requires a sealed record.
	ErrNotSealed = errors.New("match record is not sealed")
)

// PlayerStats captures one player's aggregate match statistics, mutated
// incrementally during simulation and frozen at match end.
type PlayerStats struct {
	PlayerID             string  `json:"player_id"`
	TeamID               string  `json:"team_id"`
	Goals                int     `json:"goals"`
	Assists              int     `json:"assists"`
	PossessionTicks      uint64  `json:"possession_ticks"`
	FinalTeamScore       int     `json:"final_team_score"`
	MatchDurationSeconds float64 `json:"match_duration_seconds"`
}

// Record is the per-match evidence trail: seed, ordered input log, and final
// statistics, content-addressed by CommittedHash once sealed.
type Record struct {
	MatchID       string
	Seed          int64
	InputLog      []action.Event
	FinalStats    map[string]PlayerStats
	CommittedHash string

	sealed bool
}

// New creates an open record for a match whose seed was just fixed.
func New(matchID string, seed int64) *Record {
	return &Record{
		MatchID:    matchID,
		Seed:       seed,
		FinalStats: make(map[string]PlayerStats),
	}
}

// Append adds an accepted action to the input log.
func (r *Record) Append(evt action.Event) error {
	if r.sealed {
		return ErrSealed
	}
	r.InputLog = append(r.InputLog, evt)
	return nil
}

// Seal freezes the record with its final statistics and computes the
// committed hash. It fails on a second call; the hash is set exactly once.
func (r *Record) Seal(finalStats map[string]PlayerStats) error {
	if r.sealed {
		return ErrSealed
	}
	r.FinalStats = finalStats
	hash, err := ComputeHash(r.Seed, r.InputLog, r.FinalStats)
	if err != nil {
		return err
	}
	r.CommittedHash = hash
	r.sealed = true
	return nil
}

// Sealed reports whether the record has been sealed.
func (r *Record) Sealed() bool {
	return r.sealed
}

// Restore rebuilds a sealed record from persisted fields. Used by storage;
// the hash is trusted as stored and re-checked only by the replay verifier.
func Restore(matchID string, seed int64, inputLog []action.Event, finalStats map[string]PlayerStats, committedHash string) *Record {
	return &Record{
		MatchID:       matchID,
		Seed:          seed,
		InputLog:      inputLog,
		FinalStats:    finalStats,
		CommittedHash: committedHash,
		sealed:        true,
	}
}

// hashEnvelope fixes the field layout covered by the committed hash.
type hashEnvelope struct {
	Seed       int64                  `json:"seed"`
	InputLog   []action.Event         `json:"input_log"`
	FinalStats map[string]PlayerStats `json:"final_stats"`
}

// ComputeHash derives the canonical content hash over seed, input log, and
// final statistics.
func ComputeHash(seed int64, inputLog []action.Event, finalStats map[string]PlayerStats) (string, error) {
	return encoding.ContentHash(hashEnvelope{
		Seed:       seed,
		InputLog:   inputLog,
		FinalStats: finalStats,
	})
}
