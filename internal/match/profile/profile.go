// Package profile holds per-player historical performance profiles used by
// post-match anomaly detection.
package profile

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// Outcome is a single match result from the player's perspective.
type Outcome string

const (
	// OutcomeWin marks a match the player's team won.
	OutcomeWin Outcome = "WIN"
	// OutcomeLoss marks a match the player's team lost.
	OutcomeLoss Outcome = "LOSS"
	// OutcomeDraw marks a drawn match.
	OutcomeDraw Outcome = "DRAW"
)

// IsValid reports whether the outcome is one of the known results.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeWin, OutcomeLoss, OutcomeDraw:
		return true
	default:
		return false
	}
}

// RecentResultsKept bounds the result ring carried on a profile.
const RecentResultsKept = 10

// Profile summarizes a player's history. A player with too few matches has
// MatchesPlayed below the caller's minimum and deviation checks skip them.
type Profile struct {
	PlayerID       string
	MatchesPlayed  int
	MeanGoals      float64
	StdDevGoals    float64
	CareerMaxGoals int
	// RecentResults holds up to RecentResultsKept outcomes, oldest first.
	RecentResults []Outcome
}

// RecentWinRate returns the win rate over the last n results. It reports
// false when fewer than n results are available.
func (p Profile) RecentWinRate(n int) (float64, bool) {
	if n <= 0 || len(p.RecentResults) < n {
		return 0, false
	}
	recent := p.RecentResults[len(p.RecentResults)-n:]
	wins := 0
	for _, outcome := range recent {
		if outcome == OutcomeWin {
			wins++
		}
	}
	return float64(wins) / float64(n), true
}

// WithResult returns the profile advanced by one finished match: goal stats
// folded in and the result ring shifted.
func (p Profile) WithResult(goals int, outcome Outcome) Profile {
	// Recover the running sum and sum of squares from the stored moments.
	n := float64(p.MatchesPlayed)
	sum := p.MeanGoals * n
	sumSq := (p.StdDevGoals*p.StdDevGoals + p.MeanGoals*p.MeanGoals) * n

	g := float64(goals)
	n++
	sum += g
	sumSq += g * g

	next := p
	next.MatchesPlayed = p.MatchesPlayed + 1
	next.MeanGoals = sum / n
	variance := sumSq/n - next.MeanGoals*next.MeanGoals
	if variance < 0 {
		variance = 0
	}
	next.StdDevGoals = math.Sqrt(variance)
	if goals > p.CareerMaxGoals {
		next.CareerMaxGoals = goals
	}

	results := append(append([]Outcome(nil), p.RecentResults...), outcome)
	if len(results) > RecentResultsKept {
		results = results[len(results)-RecentResultsKept:]
	}
	next.RecentResults = results
	return next
}

// Aggregate rebuilds a profile from a full goal history and result list, with
// the result list oldest first. Used by maintenance rebuilds.
func Aggregate(playerID string, goalHistory []int, results []Outcome) (Profile, error) {
	if len(goalHistory) != len(results) {
		return Profile{}, fmt.Errorf("aggregate %s: %d goal entries against %d results", playerID, len(goalHistory), len(results))
	}

	p := Profile{PlayerID: playerID, MatchesPlayed: len(goalHistory)}
	if len(goalHistory) == 0 {
		return p, nil
	}

	data := make(stats.Float64Data, len(goalHistory))
	for i, goals := range goalHistory {
		data[i] = float64(goals)
	}

	mean, err := stats.Mean(data)
	if err != nil {
		return Profile{}, fmt.Errorf("aggregate %s: %w", playerID, err)
	}
	stdDev, err := stats.StandardDeviation(data)
	if err != nil {
		return Profile{}, fmt.Errorf("aggregate %s: %w", playerID, err)
	}
	max, err := stats.Max(data)
	if err != nil {
		return Profile{}, fmt.Errorf("aggregate %s: %w", playerID, err)
	}

	p.MeanGoals = mean
	p.StdDevGoals = stdDev
	p.CareerMaxGoals = int(max)

	kept := results
	if len(kept) > RecentResultsKept {
		kept = kept[len(kept)-RecentResultsKept:]
	}
	p.RecentResults = append([]Outcome(nil), kept...)
	return p, nil
}

// Source resolves profiles for anomaly detection. A missing profile means
// the player has no history yet.
type Source interface {
	Profile(playerID string) (Profile, bool)
}

// MapSource is a Source backed by an in-memory map.
type MapSource map[string]Profile

// Profile implements Source.
func (m MapSource) Profile(playerID string) (Profile, bool) {
	p, ok := m[playerID]
	return p, ok
}

// Players returns the sorted player ids present in the source.
func (m MapSource) Players() []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

