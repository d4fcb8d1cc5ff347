// Package anomaly scores a sealed match record for statistical integrity.
//
// Analysis is pure: the same record and profiles always produce the same
// report. Findings never mutate the record; they only deduct from the
// fairness score.
package anomaly

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/strikeline/arena/internal/match/profile"
	"github.com/strikeline/arena/internal/match/record"
)

// Issue codes, one per check.
const (
	CodeScoreConsistency = "SCORE_CONSISTENCY"
	CodeMatchDuration    = "MATCH_DURATION"
	CodeGoalRate         = "GOAL_RATE"
	CodeHistoryDeviation = "HISTORY_DEVIATION"
	CodeWinStreak        = "WIN_STREAK"
)

// Severity ranks a finding. Distinct from fault severities; these never
// escalate players, they only shape the fairness score.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityWarning  Severity = "WARNING"
)

// Rating is the human-facing fairness band.
type Rating string

const (
	RatingExcellent Rating = "EXCELLENT"
	RatingGood      Rating = "GOOD"
	RatingFair      Rating = "FAIR"
	RatingPoor      Rating = "POOR"
)

// DeviationPolicy selects how the two history-deviation signals combine.
type DeviationPolicy string

const (
	// DeviationBoth flags only when the 3-sigma and career-max signals agree.
	DeviationBoth DeviationPolicy = "both"
	// DeviationEither flags when either signal fires.
	DeviationEither DeviationPolicy = "either"
)

// Issue is one finding with its score deduction.
type Issue struct {
	Code      string
	Severity  Severity
	Deduction int
	PlayerID  string
	Detail    string
}

// Report is the fairness assessment of one match.
type Report struct {
	MatchID string
	Score   int
	Rating  Rating
	Issues  []Issue
}

// Config bounds the checks. Zero values are replaced by defaults.
type Config struct {
	// MinDurationSeconds and MaxDurationSeconds bound a plausible match.
	MinDurationSeconds float64
	MaxDurationSeconds float64
	// MaxGoalsPerMinute caps a single player's scoring rate.
	MaxGoalsPerMinute float64
	// SigmaThreshold is the deviation multiplier for the history check.
	SigmaThreshold float64
	// MinMatchesForDeviation skips the history check for thin profiles.
	MinMatchesForDeviation int
	// DeviationPolicy combines the 3-sigma and career-max signals.
	DeviationPolicy DeviationPolicy
	// StreakLength is the consecutive-win count the streak check looks for.
	StreakLength int
	// StreakWinRateCeiling is the prior win rate under which a streak of
	// StreakLength wins is implausible.
	StreakWinRateCeiling float64
}

// DefaultConfig returns the standard anomaly thresholds.
func DefaultConfig() Config {
	return Config{
		MinDurationSeconds:     120,
		MaxDurationSeconds:     720,
		MaxGoalsPerMinute:      1.5,
		SigmaThreshold:         3,
		MinMatchesForDeviation: 5,
		DeviationPolicy:        DeviationBoth,
		StreakLength:           5,
		StreakWinRateCeiling:   0.35,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxDurationSeconds <= 0 {
		c.MinDurationSeconds = def.MinDurationSeconds
		c.MaxDurationSeconds = def.MaxDurationSeconds
	}
	if c.MaxGoalsPerMinute <= 0 {
		c.MaxGoalsPerMinute = def.MaxGoalsPerMinute
	}
	if c.SigmaThreshold <= 0 {
		c.SigmaThreshold = def.SigmaThreshold
	}
	if c.MinMatchesForDeviation <= 0 {
		c.MinMatchesForDeviation = def.MinMatchesForDeviation
	}
	if c.DeviationPolicy != DeviationEither {
		c.DeviationPolicy = DeviationBoth
	}
	if c.StreakLength <= 0 {
		c.StreakLength = def.StreakLength
	}
	if c.StreakWinRateCeiling <= 0 {
		c.StreakWinRateCeiling = def.StreakWinRateCeiling
	}
	return c
}

// deductions per issue code.
const (
	deductionScoreConsistency = 25
	deductionMatchDuration    = 15
	deductionGoalRate         = 10
	deductionHistoryDeviation = 8
	deductionWinStreak        = 5
)

// Analyze runs every check over a sealed record and returns the report.
// Profiles may be nil, which disables the history-based checks.
func Analyze(cfg Config, rec *record.Record, profiles profile.Source) Report {
	cfg = cfg.withDefaults()

	var issues []Issue
	issues = append(issues, checkScoreConsistency(rec)...)
	issues = append(issues, checkDuration(cfg, rec)...)
	issues = append(issues, checkGoalRate(cfg, rec)...)
	if profiles != nil {
		issues = append(issues, checkHistoryDeviation(cfg, rec, profiles)...)
		issues = append(issues, checkWinStreak(cfg, rec, profiles)...)
	}

	score := 100
	for _, issue := range issues {
		score -= issue.Deduction
	}
	if score < 0 {
		score = 0
	}

	return Report{
		MatchID: rec.MatchID,
		Score:   score,
		Rating:  RatingFor(score),
		Issues:  issues,
	}
}

// RatingFor maps a fairness score into its band.
func RatingFor(score int) Rating {
	switch {
	case score >= 95:
		return RatingExcellent
	case score >= 80:
		return RatingGood
	case score >= 60:
		return RatingFair
	default:
		return RatingPoor
	}
}

// sortedPlayers returns the record's player ids in stable order.
func sortedPlayers(rec *record.Record) []string {
	ids := make([]string, 0, len(rec.FinalStats))
	for id := range rec.FinalStats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// checkScoreConsistency verifies no player is credited more goals than the
// score their team reports. A team score above its players' combined goals
// is legitimate (goals the stepper attributes to no player); combined goals
// above the score are not and are flagged at the team level when no single
// player already accounts for the excess.
func checkScoreConsistency(rec *record.Record) []Issue {
	var issues []Issue
	flaggedTeams := make(map[string]bool)
	for _, id := range sortedPlayers(rec) {
		stats := rec.FinalStats[id]
		if stats.Goals > stats.FinalTeamScore {
			flaggedTeams[stats.TeamID] = true
			issues = append(issues, Issue{
				Code:      CodeScoreConsistency,
				Severity:  SeverityCritical,
				Deduction: deductionScoreConsistency,
				PlayerID:  id,
				Detail: fmt.Sprintf("credited %d goals against team %s's reported score of %d",
					stats.Goals, stats.TeamID, stats.FinalTeamScore),
			})
		}
	}

	goalsByTeam := make(map[string]int)
	scoreByTeam := make(map[string]int)
	for _, stats := range rec.FinalStats {
		goalsByTeam[stats.TeamID] += stats.Goals
		scoreByTeam[stats.TeamID] = stats.FinalTeamScore
	}
	teams := make([]string, 0, len(goalsByTeam))
	for team := range goalsByTeam {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	for _, team := range teams {
		if flaggedTeams[team] || goalsByTeam[team] <= scoreByTeam[team] {
			continue
		}
		issues = append(issues, Issue{
			Code:      CodeScoreConsistency,
			Severity:  SeverityCritical,
			Deduction: deductionScoreConsistency,
			Detail: fmt.Sprintf("team %s reports score %d but players total %d goals",
				team, scoreByTeam[team], goalsByTeam[team]),
		})
	}
	return issues
}

func checkDuration(cfg Config, rec *record.Record) []Issue {
	duration := matchDuration(rec)
	if duration >= cfg.MinDurationSeconds && duration <= cfg.MaxDurationSeconds {
		return nil
	}
	return []Issue{{
		Code:      CodeMatchDuration,
		Severity:  SeverityHigh,
		Deduction: deductionMatchDuration,
		Detail: fmt.Sprintf("duration %.1fs outside plausible range [%.0fs, %.0fs]",
			duration, cfg.MinDurationSeconds, cfg.MaxDurationSeconds),
	}}
}

func checkGoalRate(cfg Config, rec *record.Record) []Issue {
	duration := matchDuration(rec)
	if duration <= 0 {
		return nil
	}
	minutes := duration / 60

	var issues []Issue
	for _, id := range sortedPlayers(rec) {
		stats := rec.FinalStats[id]
		rate := float64(stats.Goals) / minutes
		if rate > cfg.MaxGoalsPerMinute {
			issues = append(issues, Issue{
				Code:      CodeGoalRate,
				Severity:  SeverityMedium,
				Deduction: deductionGoalRate,
				PlayerID:  id,
				Detail: fmt.Sprintf("%d goals in %.1f minutes (%.2f/min exceeds %.2f/min)",
					stats.Goals, minutes, rate, cfg.MaxGoalsPerMinute),
			})
		}
	}
	return issues
}

func checkHistoryDeviation(cfg Config, rec *record.Record, profiles profile.Source) []Issue {
	var issues []Issue
	for _, id := range sortedPlayers(rec) {
		stats := rec.FinalStats[id]
		prof, ok := profiles.Profile(id)
		if !ok || prof.MatchesPlayed < cfg.MinMatchesForDeviation {
			continue
		}

		goals := float64(stats.Goals)
		sigmaExceeded := prof.StdDevGoals > 0 &&
			goals > prof.MeanGoals+cfg.SigmaThreshold*prof.StdDevGoals
		maxExceeded := stats.Goals > prof.CareerMaxGoals

		flagged := sigmaExceeded && maxExceeded
		if cfg.DeviationPolicy == DeviationEither {
			flagged = sigmaExceeded || maxExceeded
		}
		if !flagged {
			continue
		}

		detail := fmt.Sprintf("%d goals against mean %.2f (sd %.2f), career max %d",
			stats.Goals, prof.MeanGoals, prof.StdDevGoals, prof.CareerMaxGoals)
		if prof.StdDevGoals > 0 {
			dist := distuv.Normal{Mu: prof.MeanGoals, Sigma: prof.StdDevGoals}
			detail += fmt.Sprintf(", upper tail probability %.5f", dist.Survival(goals))
		}

		issues = append(issues, Issue{
			Code:      CodeHistoryDeviation,
			Severity:  SeverityWarning,
			Deduction: deductionHistoryDeviation,
			PlayerID:  id,
			Detail:    detail,
		})
	}
	return issues
}

// checkWinStreak flags winners riding a full-length win streak on top of a
// weak prior record.
func checkWinStreak(cfg Config, rec *record.Record, profiles profile.Source) []Issue {
	winners := winningPlayers(rec)
	if len(winners) == 0 {
		return nil
	}

	var issues []Issue
	for _, id := range winners {
		prof, ok := profiles.Profile(id)
		if !ok {
			continue
		}

		// This win extends the trailing streak by one.
		streak := 1 + trailingWins(prof.RecentResults)
		if streak < cfg.StreakLength {
			continue
		}

		// Judge the streak against the results that preceded it.
		prior := prof.RecentResults[:len(prof.RecentResults)-trailingWins(prof.RecentResults)]
		if len(prior) == 0 {
			continue
		}
		wins := 0
		for _, outcome := range prior {
			if outcome == profile.OutcomeWin {
				wins++
			}
		}
		// Only a strictly weaker prior record is implausible.
		rate := float64(wins) / float64(len(prior))
		if rate >= cfg.StreakWinRateCeiling {
			continue
		}

		issues = append(issues, Issue{
			Code:      CodeWinStreak,
			Severity:  SeverityWarning,
			Deduction: deductionWinStreak,
			PlayerID:  id,
			Detail: fmt.Sprintf("%d-win streak on a prior win rate of %.2f over %d matches",
				streak, rate, len(prior)),
		})
	}
	return issues
}

// winningPlayers returns the sorted ids on the strictly highest-scoring team,
// or nothing on a draw.
func winningPlayers(rec *record.Record) []string {
	scoreByTeam := make(map[string]int)
	for _, stats := range rec.FinalStats {
		scoreByTeam[stats.TeamID] = stats.FinalTeamScore
	}
	if len(scoreByTeam) < 2 {
		return nil
	}

	teams := make([]string, 0, len(scoreByTeam))
	for team := range scoreByTeam {
		teams = append(teams, team)
	}
	sort.Strings(teams)

	best, bestScore, tied := "", 0, false
	for _, team := range teams {
		score := scoreByTeam[team]
		switch {
		case best == "" || score > bestScore:
			best, bestScore, tied = team, score, false
		case score == bestScore:
			tied = true
		}
	}
	if tied {
		return nil
	}

	var winners []string
	for _, id := range sortedPlayers(rec) {
		if rec.FinalStats[id].TeamID == best {
			winners = append(winners, id)
		}
	}
	return winners
}

func trailingWins(results []profile.Outcome) int {
	count := 0
	for i := len(results) - 1; i >= 0; i-- {
		if results[i] != profile.OutcomeWin {
			break
		}
		count++
	}
	return count
}

func matchDuration(rec *record.Record) float64 {
	for _, stats := range rec.FinalStats {
		return stats.MatchDurationSeconds
	}
	return 0
}
