package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/strikeline/arena/internal/match/anomaly"
	"github.com/strikeline/arena/internal/match/verdict"
	"github.com/strikeline/arena/internal/services/integrity/storage"
)

// SaveVerdict stores the terminal verdict for a match. The violation log is
// persisted separately through AppendViolations.
func (s *Store) SaveVerdict(ctx context.Context, v verdict.Verdict) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(v.MatchID) == "" {
		return fmt.Errorf("match id is required")
	}

	issues, err := json.Marshal(v.Fairness.Issues)
	if err != nil {
		return fmt.Errorf("encode fairness issues: %w", err)
	}
	suspended, err := json.Marshal(v.SuspendedPlayers)
	if err != nil {
		return fmt.Errorf("encode suspended players: %w", err)
	}

	replayMatches := 0
	if v.ReplayMatches {
		replayMatches = 1
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO match_verdicts (
		   match_id, outcome, committed_hash, replay_matches, replay_reason,
		   fairness_score, fairness_rating, fairness_issues, suspended_players,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.MatchID,
		string(v.Outcome),
		v.CommittedHash,
		replayMatches,
		v.ReplayReason,
		v.Fairness.Score,
		string(v.Fairness.Rating),
		string(issues),
		string(suspended),
		toMillis(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("verdict for %s already stored", v.MatchID)
		}
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// GetVerdict loads the verdict for a match.
func (s *Store) GetVerdict(ctx context.Context, matchID string) (verdict.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return verdict.Verdict{}, err
	}
	if err := s.ready(); err != nil {
		return verdict.Verdict{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT match_id, outcome, committed_hash, replay_matches, replay_reason,
		        fairness_score, fairness_rating, fairness_issues, suspended_players
		 FROM match_verdicts WHERE match_id = ?`,
		matchID,
	)
	v, err := scanVerdict(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return verdict.Verdict{}, storage.ErrNotFound
		}
		return verdict.Verdict{}, fmt.Errorf("load verdict: %w", err)
	}
	return v, nil
}

// ListVerdicts returns every stored verdict ordered by match id.
func (s *Store) ListVerdicts(ctx context.Context) ([]verdict.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT match_id, outcome, committed_hash, replay_matches, replay_reason,
		        fairness_score, fairness_rating, fairness_issues, suspended_players
		 FROM match_verdicts ORDER BY match_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()

	var out []verdict.Verdict
	for rows.Next() {
		v, err := scanVerdict(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	return out, nil
}

func scanVerdict(scan func(dest ...any) error) (verdict.Verdict, error) {
	var (
		v             verdict.Verdict
		outcome       string
		replayMatches int
		rating        string
		issuesJSON    string
		suspendedJSON string
		score         int
	)
	err := scan(&v.MatchID, &outcome, &v.CommittedHash, &replayMatches,
		&v.ReplayReason, &score, &rating, &issuesJSON, &suspendedJSON)
	if err != nil {
		return verdict.Verdict{}, err
	}

	v.Outcome = verdict.Outcome(outcome)
	v.ReplayMatches = replayMatches != 0
	v.Fairness.MatchID = v.MatchID
	v.Fairness.Score = score
	v.Fairness.Rating = anomaly.Rating(rating)
	if err := json.Unmarshal([]byte(issuesJSON), &v.Fairness.Issues); err != nil {
		return verdict.Verdict{}, fmt.Errorf("decode fairness issues: %w", err)
	}
	if err := json.Unmarshal([]byte(suspendedJSON), &v.SuspendedPlayers); err != nil {
		return verdict.Verdict{}, fmt.Errorf("decode suspended players: %w", err)
	}
	return v, nil
}
