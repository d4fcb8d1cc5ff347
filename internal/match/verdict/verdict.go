// Package verdict assembles the final integrity judgement for a match.
package verdict

import (
	"github.com/strikeline/arena/internal/match/anomaly"
	"github.com/strikeline/arena/internal/match/violation"
)

// Outcome classifies how the match ended from an integrity standpoint.
type Outcome string

const (
	// OutcomeCertified means the match completed and its replay reproduced
	// the committed hash.
	OutcomeCertified Outcome = "CERTIFIED"
	// OutcomeUnverified means the match completed but replay disagreed with
	// the committed hash.
	OutcomeUnverified Outcome = "UNVERIFIED"
	// OutcomeSimulationFault means the simulation itself failed mid-match.
	OutcomeSimulationFault Outcome = "SIMULATION_FAULT"
	// OutcomeCancelled means the match was cancelled before completion.
	OutcomeCancelled Outcome = "CANCELLED"
)

// Verdict is the terminal judgement emitted exactly once per match.
type Verdict struct {
	MatchID       string
	Outcome       Outcome
	CommittedHash string
	// ReplayMatches is meaningful only for completed matches.
	ReplayMatches bool
	ReplayReason  string
	// Fairness is the anomaly report; zero-valued for fault and cancelled
	// outcomes where no sealed record exists.
	Fairness anomaly.Report
	// Violations carries the full append-only violation log.
	Violations []violation.Record
	// SuspendedPlayers lists players suspended during the match.
	SuspendedPlayers []string
}

// ViolationCount returns the number of recorded violations.
func (v Verdict) ViolationCount() int {
	return len(v.Violations)
}

// RewardEligible reports whether the match outcome may feed rewards and
// ratings. Unverified, faulted, and cancelled matches never qualify, nor
// does a completed match rated Poor.
func (v Verdict) RewardEligible() bool {
	if v.Outcome != OutcomeCertified {
		return false
	}
	return v.Fairness.Rating != anomaly.RatingPoor
}
