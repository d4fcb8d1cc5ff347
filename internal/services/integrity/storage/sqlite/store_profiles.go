package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/strikeline/arena/internal/match/profile"
	"github.com/strikeline/arena/internal/services/integrity/storage"
)

// PutProfile inserts or replaces a player's history profile.
func (s *Store) PutProfile(ctx context.Context, p profile.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(p.PlayerID) == "" {
		return fmt.Errorf("player id is required")
	}

	results, err := json.Marshal(p.RecentResults)
	if err != nil {
		return fmt.Errorf("encode recent results: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO player_profiles (
		   player_id, matches_played, mean_goals, stddev_goals,
		   career_max_goals, recent_results, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(player_id) DO UPDATE SET
		   matches_played = excluded.matches_played,
		   mean_goals = excluded.mean_goals,
		   stddev_goals = excluded.stddev_goals,
		   career_max_goals = excluded.career_max_goals,
		   recent_results = excluded.recent_results,
		   updated_at = excluded.updated_at`,
		p.PlayerID,
		p.MatchesPlayed,
		p.MeanGoals,
		p.StdDevGoals,
		p.CareerMaxGoals,
		string(results),
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// GetProfile loads a player's history profile.
func (s *Store) GetProfile(ctx context.Context, playerID string) (profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return profile.Profile{}, err
	}
	if err := s.ready(); err != nil {
		return profile.Profile{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT player_id, matches_played, mean_goals, stddev_goals,
		        career_max_goals, recent_results
		 FROM player_profiles WHERE player_id = ?`,
		playerID,
	)
	p, err := scanProfile(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return profile.Profile{}, storage.ErrNotFound
		}
		return profile.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

// ListProfiles returns all profiles ordered by player id.
func (s *Store) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT player_id, matches_played, mean_goals, stddev_goals,
		        career_max_goals, recent_results
		 FROM player_profiles ORDER BY player_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []profile.Profile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

func scanProfile(scan func(dest ...any) error) (profile.Profile, error) {
	var (
		p           profile.Profile
		resultsJSON string
	)
	err := scan(&p.PlayerID, &p.MatchesPlayed, &p.MeanGoals, &p.StdDevGoals,
		&p.CareerMaxGoals, &resultsJSON)
	if err != nil {
		return profile.Profile{}, err
	}
	if err := json.Unmarshal([]byte(resultsJSON), &p.RecentResults); err != nil {
		return profile.Profile{}, fmt.Errorf("decode recent results: %w", err)
	}
	return p, nil
}
