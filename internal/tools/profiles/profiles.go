// Package profiles rebuilds player history profiles from the stored match
// archive. It replaces incremental profile state with an aggregate over every
// certified match, which repairs drift after manual database surgery.
package profiles

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/strikeline/arena/internal/match/profile"
	"github.com/strikeline/arena/internal/match/record"
	"github.com/strikeline/arena/internal/match/verdict"
	entrypoint "github.com/strikeline/arena/internal/platform/cmd"
	"github.com/strikeline/arena/internal/services/integrity/storage"
	"github.com/strikeline/arena/internal/services/integrity/storage/sqlite"
)

// Config holds profiles command configuration.
type Config struct {
	DBPath   string        `env:"ARENA_INTEGRITY_DB_PATH" envDefault:"data/integrity.db"`
	Timeout  time.Duration `env:"ARENA_PROFILES_TIMEOUT" envDefault:"5m"`
	PlayerID string
	DryRun   bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The integrity SQLite database path")
	fs.StringVar(&cfg.PlayerID, "player", cfg.PlayerID, "Rebuild a single player's profile")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Report rebuilt profiles without writing them")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// playerHistory accumulates one player's per-match inputs in match order.
type playerHistory struct {
	goals   []int
	results []profile.Outcome
}

// Run rebuilds profiles from certified matches and reports each write.
func Run(ctx context.Context, cfg Config, stdout, stderr io.Writer) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open integrity store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(stderr, "close integrity store: %v\n", closeErr)
		}
	}()

	histories, matches, err := collectHistories(ctx, store, stderr)
	if err != nil {
		return err
	}

	players := make([]string, 0, len(histories))
	for playerID := range histories {
		if cfg.PlayerID != "" && playerID != cfg.PlayerID {
			continue
		}
		players = append(players, playerID)
	}
	sort.Strings(players)
	if cfg.PlayerID != "" && len(players) == 0 {
		return fmt.Errorf("player %s has no certified matches", cfg.PlayerID)
	}

	for _, playerID := range players {
		history := histories[playerID]
		rebuilt, err := profile.Aggregate(playerID, history.goals, history.results)
		if err != nil {
			return fmt.Errorf("aggregate %s: %w", playerID, err)
		}
		if !cfg.DryRun {
			if err := store.PutProfile(ctx, rebuilt); err != nil {
				return fmt.Errorf("save profile %s: %w", playerID, err)
			}
		}
		fmt.Fprintf(stdout, "%s: %d matches, mean %.2f goals, max %d\n",
			playerID, rebuilt.MatchesPlayed, rebuilt.MeanGoals, rebuilt.CareerMaxGoals)
	}
	fmt.Fprintf(stdout, "rebuilt %d profiles from %d certified matches\n", len(players), matches)
	return nil
}

// collectHistories walks certified verdicts and folds their sealed records
// into per-player histories. Verdicts without a record are skipped with a
// warning so one missing row does not block the rebuild.
func collectHistories(ctx context.Context, store storage.Store, stderr io.Writer) (map[string]*playerHistory, int, error) {
	verdicts, err := store.ListVerdicts(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list verdicts: %w", err)
	}

	histories := make(map[string]*playerHistory)
	matches := 0
	for _, v := range verdicts {
		if v.Outcome != verdict.OutcomeCertified {
			continue
		}
		rec, err := store.GetRecord(ctx, v.MatchID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				fmt.Fprintf(stderr, "match %s: certified verdict without a record, skipping\n", v.MatchID)
				continue
			}
			return nil, 0, fmt.Errorf("load record %s: %w", v.MatchID, err)
		}
		matches++
		for playerID, stats := range rec.FinalStats {
			history := histories[playerID]
			if history == nil {
				history = &playerHistory{}
				histories[playerID] = history
			}
			history.goals = append(history.goals, stats.Goals)
			history.results = append(history.results, outcomeFor(rec, stats.TeamID))
		}
	}
	return histories, matches, nil
}

// outcomeFor derives one team's result from the record's final scores.
func outcomeFor(rec *record.Record, teamID string) profile.Outcome {
	own, bestOther := 0, 0
	for _, stats := range rec.FinalStats {
		if stats.TeamID == teamID {
			own = stats.FinalTeamScore
			continue
		}
		if stats.FinalTeamScore > bestOther {
			bestOther = stats.FinalTeamScore
		}
	}
	switch {
	case own > bestOther:
		return profile.OutcomeWin
	case own < bestOther:
		return profile.OutcomeLoss
	default:
		return profile.OutcomeDraw
	}
}
