// Package replay re-executes a sealed match from its seed and input log and
// checks the outcome against the committed hash.
//
// Verification is idempotent: it never mutates the record, so running it
// twice over the same record always returns the same result.
package replay

import (
	"fmt"

	"github.com/strikeline/arena/internal/match/action"
	"github.com/strikeline/arena/internal/match/record"
	"github.com/strikeline/arena/internal/match/sim"
)

// Input carries everything needed to re-run a match deterministically. The
// lineup and simulation config must be the ones the live match used.
type Input struct {
	Record    *record.Record
	Lineup    []sim.Player
	SimConfig sim.Config
	// TickRate converts elapsed ticks to seconds, as the live session did.
	TickRate int
	// DurationTicks is how many ticks the live match ran. Zero derives it
	// from the record's stated duration.
	DurationTicks uint64
}

// Result is the verification outcome.
type Result struct {
	// Matches is true only when the stored record is internally consistent
	// and the replayed outcome reproduces the committed hash.
	Matches bool
	// RecomputedHash is the hash over the replayed outcome.
	RecomputedHash string
	// Reason names the first failed check when Matches is false.
	Reason string
}

// Verify re-runs the match and compares hashes. An error means verification
// could not run at all, not that it failed.
func Verify(in Input) (Result, error) {
	rec := in.Record
	if rec == nil {
		return Result{}, fmt.Errorf("verify: nil record")
	}
	if !rec.Sealed() || rec.CommittedHash == "" {
		return Result{}, fmt.Errorf("verify %s: record is not sealed", rec.MatchID)
	}
	if in.TickRate <= 0 {
		return Result{}, fmt.Errorf("verify %s: tick rate %d", rec.MatchID, in.TickRate)
	}

	// The stored fields must still hash to the committed value; a mismatch
	// means the record was altered after sealing.
	storedHash, err := record.ComputeHash(rec.Seed, rec.InputLog, rec.FinalStats)
	if err != nil {
		return Result{}, fmt.Errorf("verify %s: hash stored record: %w", rec.MatchID, err)
	}
	if storedHash != rec.CommittedHash {
		return Result{
			RecomputedHash: storedHash,
			Reason:         "stored record does not hash to its committed hash",
		}, nil
	}

	durationTicks := in.DurationTicks
	if durationTicks == 0 {
		durationTicks = deriveDurationTicks(rec, in.TickRate)
	}

	replayStats, err := rerun(rec, in.Lineup, in.SimConfig, durationTicks, in.TickRate)
	if err != nil {
		return Result{}, fmt.Errorf("verify %s: %w", rec.MatchID, err)
	}

	replayHash, err := record.ComputeHash(rec.Seed, rec.InputLog, replayStats)
	if err != nil {
		return Result{}, fmt.Errorf("verify %s: hash replayed outcome: %w", rec.MatchID, err)
	}
	if replayHash != rec.CommittedHash {
		return Result{
			RecomputedHash: replayHash,
			Reason:         "replayed outcome diverged from the committed hash",
		}, nil
	}

	return Result{Matches: true, RecomputedHash: replayHash}, nil
}

// rerun steps a fresh pitch through every tick of the match, applying log
// entries at the tick each was applied live. Empty ticks still step so that
// possession accounting lines up.
func rerun(rec *record.Record, lineup []sim.Player, cfg sim.Config, durationTicks uint64, tickRate int) (map[string]record.PlayerStats, error) {
	byTick := make(map[uint64][]action.Event)
	for _, evt := range rec.InputLog {
		byTick[evt.Tick] = append(byTick[evt.Tick], evt)
	}

	pitch := sim.NewPitch(rec.Seed, cfg, lineup)
	for tick := uint64(1); tick <= durationTicks; tick++ {
		if err := pitch.Step(tick, byTick[tick]); err != nil {
			return nil, fmt.Errorf("replay tick %d: %w", tick, err)
		}
	}

	stats := pitch.Stats()
	seconds := float64(durationTicks) / float64(tickRate)
	for id, playerStats := range stats {
		playerStats.MatchDurationSeconds = seconds
		stats[id] = playerStats
	}
	return stats, nil
}

func deriveDurationTicks(rec *record.Record, tickRate int) uint64 {
	for _, stats := range rec.FinalStats {
		return uint64(stats.MatchDurationSeconds * float64(tickRate))
	}
	return 0
}
