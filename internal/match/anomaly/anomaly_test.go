package anomaly

import (
	"testing"

	"github.com/strikeline/arena/internal/match/profile"
	"github.com/strikeline/arena/internal/match/record"
)

// cleanRecord builds a sealed-shape record whose stats pass every check.
func cleanRecord() *record.Record {
	return record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 1, FinalTeamScore: 2, MatchDurationSeconds: 300},
		"p2": {PlayerID: "p2", TeamID: "home", Goals: 1, FinalTeamScore: 2, MatchDurationSeconds: 300},
		"p3": {PlayerID: "p3", TeamID: "away", Goals: 1, FinalTeamScore: 1, MatchDurationSeconds: 300},
		"p4": {PlayerID: "p4", TeamID: "away", Goals: 0, FinalTeamScore: 1, MatchDurationSeconds: 300},
	}, "hash")
}

func issueCodes(report Report) map[string]int {
	codes := make(map[string]int)
	for _, issue := range report.Issues {
		codes[issue.Code]++
	}
	return codes
}

func TestAnalyzeCleanMatchScoresFull(t *testing.T) {
	report := Analyze(DefaultConfig(), cleanRecord(), nil)

	if len(report.Issues) != 0 {
		t.Fatalf("issues = %+v, want none", report.Issues)
	}
	if report.Score != 100 {
		t.Fatalf("score = %d, want 100", report.Score)
	}
	if report.Rating != RatingExcellent {
		t.Fatalf("rating = %s, want %s", report.Rating, RatingExcellent)
	}
	if report.MatchID != "m1" {
		t.Fatalf("match id = %q, want m1", report.MatchID)
	}
}

func TestAnalyzeScoreConsistency(t *testing.T) {
	// Players on "home" total five goals against a reported score of two.
	rec := record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 5, FinalTeamScore: 2, MatchDurationSeconds: 300},
		"p2": {PlayerID: "p2", TeamID: "away", Goals: 1, FinalTeamScore: 1, MatchDurationSeconds: 300},
	}, "hash")

	report := Analyze(DefaultConfig(), rec, nil)

	codes := issueCodes(report)
	if codes[CodeScoreConsistency] != 1 {
		t.Fatalf("issues = %+v, want one %s", report.Issues, CodeScoreConsistency)
	}
	for _, issue := range report.Issues {
		if issue.Code == CodeScoreConsistency && issue.PlayerID != "p1" {
			t.Fatalf("issue attributed to %q, want p1", issue.PlayerID)
		}
	}
	if report.Score > 75 {
		t.Fatalf("score = %d, want at most 75 after a critical finding", report.Score)
	}
	if report.Rating == RatingExcellent || report.Rating == RatingGood {
		t.Fatalf("rating = %s, want Fair or worse", report.Rating)
	}
}

func TestAnalyzeScoreConsistencyToleratesUnattributedGoals(t *testing.T) {
	// A team score above its players' combined goals is legitimate.
	rec := record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 1, FinalTeamScore: 3, MatchDurationSeconds: 300},
		"p2": {PlayerID: "p2", TeamID: "home", Goals: 0, FinalTeamScore: 3, MatchDurationSeconds: 300},
		"p3": {PlayerID: "p3", TeamID: "away", Goals: 1, FinalTeamScore: 1, MatchDurationSeconds: 300},
	}, "hash")

	report := Analyze(DefaultConfig(), rec, nil)
	if issueCodes(report)[CodeScoreConsistency] != 0 {
		t.Fatalf("issues = %+v, want no consistency finding", report.Issues)
	}
}

func TestAnalyzeScoreConsistencyCombinedGoals(t *testing.T) {
	// No single player exceeds the team score, but together they do.
	rec := record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 2, FinalTeamScore: 3, MatchDurationSeconds: 300},
		"p2": {PlayerID: "p2", TeamID: "home", Goals: 2, FinalTeamScore: 3, MatchDurationSeconds: 300},
		"p3": {PlayerID: "p3", TeamID: "away", Goals: 0, FinalTeamScore: 0, MatchDurationSeconds: 300},
	}, "hash")

	report := Analyze(DefaultConfig(), rec, nil)
	if issueCodes(report)[CodeScoreConsistency] != 1 {
		t.Fatalf("issues = %+v, want one team-level finding", report.Issues)
	}
}

func TestAnalyzeDurationBounds(t *testing.T) {
	rec := record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 0, FinalTeamScore: 0, MatchDurationSeconds: 30},
		"p2": {PlayerID: "p2", TeamID: "away", Goals: 0, FinalTeamScore: 0, MatchDurationSeconds: 30},
	}, "hash")

	report := Analyze(DefaultConfig(), rec, nil)
	if issueCodes(report)[CodeMatchDuration] != 1 {
		t.Fatalf("issues = %+v, want one %s", report.Issues, CodeMatchDuration)
	}
	if report.Score != 85 {
		t.Fatalf("score = %d, want 85", report.Score)
	}
}

func TestAnalyzeGoalRate(t *testing.T) {
	// Ten goals in two minutes is five per minute.
	rec := record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 10, FinalTeamScore: 10, MatchDurationSeconds: 120},
		"p2": {PlayerID: "p2", TeamID: "away", Goals: 0, FinalTeamScore: 0, MatchDurationSeconds: 120},
	}, "hash")

	report := Analyze(DefaultConfig(), rec, nil)
	codes := issueCodes(report)
	if codes[CodeGoalRate] != 1 {
		t.Fatalf("issues = %+v, want one %s", report.Issues, CodeGoalRate)
	}
	if codes[CodeScoreConsistency] != 0 {
		t.Fatalf("consistent score flagged: %+v", report.Issues)
	}
}

func TestAnalyzeHistoryDeviationPolicyBoth(t *testing.T) {
	rec := record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 9, FinalTeamScore: 9, MatchDurationSeconds: 600},
		"p2": {PlayerID: "p2", TeamID: "away", Goals: 0, FinalTeamScore: 0, MatchDurationSeconds: 600},
	}, "hash")

	profiles := profile.MapSource{
		// Nine goals is far beyond both three sigma and the career max.
		"p1": {PlayerID: "p1", MatchesPlayed: 20, MeanGoals: 1, StdDevGoals: 0.8, CareerMaxGoals: 3},
	}

	report := Analyze(DefaultConfig(), rec, profiles)
	if issueCodes(report)[CodeHistoryDeviation] != 1 {
		t.Fatalf("issues = %+v, want one %s", report.Issues, CodeHistoryDeviation)
	}
}

func TestAnalyzeHistoryDeviationRequiresBothByDefault(t *testing.T) {
	rec := record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 4, FinalTeamScore: 4, MatchDurationSeconds: 600},
		"p2": {PlayerID: "p2", TeamID: "away", Goals: 0, FinalTeamScore: 0, MatchDurationSeconds: 600},
	}, "hash")

	// Four goals exceeds three sigma but not the career max of five.
	profiles := profile.MapSource{
		"p1": {PlayerID: "p1", MatchesPlayed: 20, MeanGoals: 0.5, StdDevGoals: 0.5, CareerMaxGoals: 5},
	}

	report := Analyze(DefaultConfig(), rec, profiles)
	if issueCodes(report)[CodeHistoryDeviation] != 0 {
		t.Fatalf("issues = %+v, want no deviation under the both policy", report.Issues)
	}

	cfg := DefaultConfig()
	cfg.DeviationPolicy = DeviationEither
	report = Analyze(cfg, rec, profiles)
	if issueCodes(report)[CodeHistoryDeviation] != 1 {
		t.Fatalf("issues = %+v, want one deviation under the either policy", report.Issues)
	}
}

func TestAnalyzeHistoryDeviationSkipsThinProfiles(t *testing.T) {
	rec := record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 9, FinalTeamScore: 9, MatchDurationSeconds: 600},
		"p2": {PlayerID: "p2", TeamID: "away", Goals: 0, FinalTeamScore: 0, MatchDurationSeconds: 600},
	}, "hash")

	profiles := profile.MapSource{
		"p1": {PlayerID: "p1", MatchesPlayed: 2, MeanGoals: 1, StdDevGoals: 0.5, CareerMaxGoals: 2},
	}

	report := Analyze(DefaultConfig(), rec, profiles)
	if issueCodes(report)[CodeHistoryDeviation] != 0 {
		t.Fatalf("issues = %+v, want thin profile skipped", report.Issues)
	}
}

func TestAnalyzeWinStreak(t *testing.T) {
	rec := record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 1, FinalTeamScore: 1, MatchDurationSeconds: 600},
		"p2": {PlayerID: "p2", TeamID: "away", Goals: 0, FinalTeamScore: 0, MatchDurationSeconds: 600},
	}, "hash")

	// Four trailing wins plus this one make a five-win streak on a prior
	// record of pure losses.
	profiles := profile.MapSource{
		"p1": {PlayerID: "p1", MatchesPlayed: 9, RecentResults: []profile.Outcome{
			profile.OutcomeLoss, profile.OutcomeLoss, profile.OutcomeLoss,
			profile.OutcomeLoss, profile.OutcomeLoss,
			profile.OutcomeWin, profile.OutcomeWin, profile.OutcomeWin, profile.OutcomeWin,
		}},
	}

	report := Analyze(DefaultConfig(), rec, profiles)
	if issueCodes(report)[CodeWinStreak] != 1 {
		t.Fatalf("issues = %+v, want one %s", report.Issues, CodeWinStreak)
	}

	// The losing side never triggers the check.
	for _, issue := range report.Issues {
		if issue.Code == CodeWinStreak && issue.PlayerID != "p1" {
			t.Fatalf("streak flagged for %s, want p1 only", issue.PlayerID)
		}
	}
}

func TestAnalyzeWinStreakRequiresWeakPrior(t *testing.T) {
	rec := record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 1, FinalTeamScore: 1, MatchDurationSeconds: 600},
		"p2": {PlayerID: "p2", TeamID: "away", Goals: 0, FinalTeamScore: 0, MatchDurationSeconds: 600},
	}, "hash")

	// A strong prior record makes the streak unremarkable.
	profiles := profile.MapSource{
		"p1": {PlayerID: "p1", MatchesPlayed: 9, RecentResults: []profile.Outcome{
			profile.OutcomeWin, profile.OutcomeWin, profile.OutcomeLoss,
			profile.OutcomeWin, profile.OutcomeLoss,
			profile.OutcomeWin, profile.OutcomeWin, profile.OutcomeWin, profile.OutcomeWin,
		}},
	}

	report := Analyze(DefaultConfig(), rec, profiles)
	if issueCodes(report)[CodeWinStreak] != 0 {
		t.Fatalf("issues = %+v, want no streak finding", report.Issues)
	}
}

func TestAnalyzeWinStreakBoundaryRate(t *testing.T) {
	rec := record.Restore("m1", 42, nil, map[string]record.PlayerStats{
		"p1": {PlayerID: "p1", TeamID: "home", Goals: 1, FinalTeamScore: 1, MatchDurationSeconds: 600},
		"p2": {PlayerID: "p2", TeamID: "away", Goals: 0, FinalTeamScore: 0, MatchDurationSeconds: 600},
	}, "hash")

	// Prior record of exactly three wins in six sits on the ceiling.
	profiles := profile.MapSource{
		"p1": {PlayerID: "p1", MatchesPlayed: 10, RecentResults: []profile.Outcome{
			profile.OutcomeWin, profile.OutcomeLoss, profile.OutcomeWin,
			profile.OutcomeLoss, profile.OutcomeWin, profile.OutcomeLoss,
			profile.OutcomeWin, profile.OutcomeWin, profile.OutcomeWin, profile.OutcomeWin,
		}},
	}

	cfg := DefaultConfig()
	cfg.StreakWinRateCeiling = 0.5
	report := Analyze(cfg, rec, profiles)
	if issueCodes(report)[CodeWinStreak] != 0 {
		t.Fatalf("issues = %+v, want no finding at a prior rate equal to the ceiling", report.Issues)
	}
}

func TestAnalyzeScoreFloorsAtZero(t *testing.T) {
	// Stack enough findings to exceed one hundred points of deductions.
	stats := make(map[string]record.PlayerStats)
	for _, id := range []string{"p1", "p2", "p3"} {
		stats[id] = record.PlayerStats{
			PlayerID: id, TeamID: "home", Goals: 40,
			FinalTeamScore: 1, MatchDurationSeconds: 10,
		}
	}
	stats["p4"] = record.PlayerStats{PlayerID: "p4", TeamID: "away", Goals: 30, FinalTeamScore: 0, MatchDurationSeconds: 10}
	rec := record.Restore("m1", 42, nil, stats, "hash")

	report := Analyze(DefaultConfig(), rec, nil)
	if report.Score != 0 {
		t.Fatalf("score = %d, want floor of 0", report.Score)
	}
	if report.Rating != RatingPoor {
		t.Fatalf("rating = %s, want %s", report.Rating, RatingPoor)
	}
}

func TestRatingBands(t *testing.T) {
	cases := []struct {
		score int
		want  Rating
	}{
		{100, RatingExcellent}, {95, RatingExcellent},
		{94, RatingGood}, {80, RatingGood},
		{79, RatingFair}, {60, RatingFair},
		{59, RatingPoor}, {0, RatingPoor},
	}
	for _, tc := range cases {
		if got := RatingFor(tc.score); got != tc.want {
			t.Fatalf("RatingFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
