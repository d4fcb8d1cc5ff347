package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/strikeline/arena/internal/match/action"
	"github.com/strikeline/arena/internal/match/record"
	"github.com/strikeline/arena/internal/services/integrity/storage"
)

// SaveRecord stores a sealed match record. A record may be stored once.
func (s *Store) SaveRecord(ctx context.Context, rec *record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	if strings.TrimSpace(rec.MatchID) == "" {
		return fmt.Errorf("match id is required")
	}
	if !rec.Sealed() {
		return fmt.Errorf("record %s is not sealed", rec.MatchID)
	}

	inputLog, err := json.Marshal(rec.InputLog)
	if err != nil {
		return fmt.Errorf("encode input log: %w", err)
	}
	finalStats, err := json.Marshal(rec.FinalStats)
	if err != nil {
		return fmt.Errorf("encode final stats: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO match_records (
		   match_id, seed, input_log, final_stats, committed_hash, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.MatchID,
		rec.Seed,
		string(inputLog),
		string(finalStats),
		rec.CommittedHash,
		toMillis(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("record %s already stored", rec.MatchID)
		}
		return fmt.Errorf("insert match record: %w", err)
	}
	return nil
}

// GetRecord loads a sealed match record by match id.
func (s *Store) GetRecord(ctx context.Context, matchID string) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	var (
		seed          int64
		inputLogJSON  string
		finalStatsRaw string
		committedHash string
	)
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT seed, input_log, final_stats, committed_hash
		 FROM match_records WHERE match_id = ?`,
		matchID,
	)
	if err := row.Scan(&seed, &inputLogJSON, &finalStatsRaw, &committedHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load match record: %w", err)
	}

	var inputLog []action.Event
	if err := json.Unmarshal([]byte(inputLogJSON), &inputLog); err != nil {
		return nil, fmt.Errorf("decode input log: %w", err)
	}
	var finalStats map[string]record.PlayerStats
	if err := json.Unmarshal([]byte(finalStatsRaw), &finalStats); err != nil {
		return nil, fmt.Errorf("decode final stats: %w", err)
	}

	return record.Restore(matchID, seed, inputLog, finalStats, committedHash), nil
}
