package indexdb

import (
	"context"
	"database/sql"
	"errors"
)

type AuditRow struct {
	Tick   uint64  `json:"tick"`
	Actor  string  `json:"actor"`
	Action string  `json:"action"`
	NodeID string  `json:"node_id,omitempty"`
	Amount int     `json:"amount,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Reason string  `json:"reason,omitempty"`
}

// RecentAudits returns up to limit audit rows, newest first. An empty actor
// matches every worker.
func (s *SQLiteIndex) RecentAudits(ctx context.Context, actor string, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	const cols = `SELECT tick,actor,action,node_id,amount,x,y,reason FROM audits`
	if actor == "" {
		rows, err = s.db.QueryContext(ctx, cols+` ORDER BY tick DESC, seq DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, cols+` WHERE actor=? ORDER BY tick DESC, seq DESC LIMIT ?`, actor, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var (
			a    AuditRow
			tick int64
		)
		if err := rows.Scan(&tick, &a.Actor, &a.Action, &a.NodeID, &a.Amount, &a.X, &a.Y, &a.Reason); err != nil {
			return nil, err
		}
		a.Tick = uint64(tick)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ActionCounts totals audit rows per action.
func (s *SQLiteIndex) ActionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM audits GROUP BY action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			action string
			n      int
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		out[action] = n
	}
	return out, rows.Err()
}

// TickDigest returns the recorded digest for tick, or ok=false if absent.
func (s *SQLiteIndex) TickDigest(ctx context.Context, tick uint64) (digest string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT digest FROM ticks WHERE tick=?`, int64(tick)).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return digest, true, nil
}
