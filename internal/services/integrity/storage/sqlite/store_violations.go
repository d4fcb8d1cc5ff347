package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/strikeline/arena/internal/match/fault"
	"github.com/strikeline/arena/internal/match/violation"
)

// AppendViolations stores a batch of violation records in order.
func (s *Store) AppendViolations(ctx context.Context, recs []violation.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin violations transaction: %w", err)
	}

	now := toMillis(time.Now())
	for _, rec := range recs {
		if rec.PlayerID == "" || rec.MatchID == "" {
			_ = tx.Rollback()
			return fmt.Errorf("violation requires player and match ids")
		}
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO violations (
			   match_id, player_id, tick, kind, severity, detail, created_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.MatchID,
			rec.PlayerID,
			rec.Tick,
			string(rec.Kind),
			rec.Severity.String(),
			rec.Detail,
			now,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert violation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit violations: %w", err)
	}
	return nil
}

// ListViolations returns a player's violations in append order.
func (s *Store) ListViolations(ctx context.Context, playerID string) ([]violation.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT match_id, player_id, tick, kind, severity, detail
		 FROM violations WHERE player_id = ? ORDER BY id`,
		playerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	var out []violation.Record
	for rows.Next() {
		var (
			rec      violation.Record
			kind     string
			severity string
		)
		if err := rows.Scan(&rec.MatchID, &rec.PlayerID, &rec.Tick, &kind, &severity, &rec.Detail); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		rec.Kind = fault.Kind(kind)
		rec.Severity = fault.ParseSeverity(severity)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	return out, nil
}
