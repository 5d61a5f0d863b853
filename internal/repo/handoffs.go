package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"buildpass/internal/domain"
)

const handoffCols = `id,chain_id,from_contributor_id,to_human_id,to_agent_id,required_skills_json,work_context,urgency,status,accepted_by,created_at,resolved_at`

func scanHandoff(scan func(dest ...any) error) (domain.HandoffRequest, error) {
	var h domain.HandoffRequest
	var toHuman, toAgent, acceptedBy, resolved sql.NullString
	var skills string
	err := scan(&h.ID, &h.ChainID, &h.FromContributorID, &toHuman, &toAgent, &skills,
		&h.WorkContext, &h.Urgency, &h.Status, &acceptedBy, &h.CreatedAt, &resolved)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal([]byte(skills), &h.RequiredSkills); err != nil {
		return h, fmt.Errorf("decode required skills for handoff %s: %w", h.ID, err)
	}
	if toHuman.Valid {
		h.ToHumanID = &toHuman.String
	}
	if toAgent.Valid {
		h.ToAgentID = &toAgent.String
	}
	if acceptedBy.Valid {
		h.AcceptedBy = &acceptedBy.String
	}
	if resolved.Valid {
		h.ResolvedAt = &resolved.String
	}
	return h, nil
}

func (r Repo) InsertHandoffTx(ctx context.Context, tx *sql.Tx, h domain.HandoffRequest) error {
	skills, err := json.Marshal(orEmpty(h.RequiredSkills))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO handoff_requests(`+handoffCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		h.ID, h.ChainID, h.FromContributorID, nullablePtr(h.ToHumanID), nullablePtr(h.ToAgentID), string(skills),
		h.WorkContext, h.Urgency, h.Status, nullablePtr(h.AcceptedBy), h.CreatedAt, nullablePtr(h.ResolvedAt))
	return err
}

func (r Repo) GetHandoff(ctx context.Context, id string) (domain.HandoffRequest, error) {
	return scanHandoff(r.DB.QueryRowContext(ctx, `SELECT `+handoffCols+` FROM handoff_requests WHERE id=?`, id).Scan)
}

func (r Repo) GetHandoffTx(ctx context.Context, tx *sql.Tx, id string) (domain.HandoffRequest, error) {
	return scanHandoff(tx.QueryRowContext(ctx, `SELECT `+handoffCols+` FROM handoff_requests WHERE id=?`, id).Scan)
}

// PendingHandoffTx returns the chain's open pending handoff, if any.
func (r Repo) PendingHandoffTx(ctx context.Context, tx *sql.Tx, chainID string) (domain.HandoffRequest, error) {
	return scanHandoff(tx.QueryRowContext(ctx,
		`SELECT `+handoffCols+` FROM handoff_requests WHERE chain_id=? AND status='pending' ORDER BY created_at DESC LIMIT 1`, chainID).Scan)
}

func (r Repo) ListHandoffs(ctx context.Context, chainID, status string) ([]domain.HandoffRequest, error) {
	query := `SELECT ` + handoffCols + ` FROM handoff_requests WHERE chain_id=? ORDER BY created_at ASC`
	args := []any{chainID}
	if status != "" {
		query = `SELECT ` + handoffCols + ` FROM handoff_requests WHERE chain_id=? AND status=? ORDER BY created_at ASC`
		args = append(args, status)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HandoffRequest
	for rows.Next() {
		h, err := scanHandoff(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// ResolveHandoffTx flips a handoff out of pending exactly once.
func (r Repo) ResolveHandoffTx(ctx context.Context, tx *sql.Tx, id, status, acceptedBy, resolvedAt string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE handoff_requests SET status=?,accepted_by=?,resolved_at=? WHERE id=? AND status='pending'`,
		status, nullable(acceptedBy), resolvedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
