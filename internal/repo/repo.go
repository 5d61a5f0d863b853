package repo

import (
	"context"
	"database/sql"
	"errors"

	"buildpass/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const chainCols = `id,originator_id,title,description,project_type,status,current_owner_id,total_contributors,completion_percentage,created_at,completed_at`

func scanChain(row *sql.Row) (domain.Chain, error) {
	var c domain.Chain
	var owner, completed sql.NullString
	err := row.Scan(&c.ID, &c.OriginatorID, &c.Title, &c.Description, &c.ProjectType, &c.Status,
		&owner, &c.TotalContributors, &c.CompletionPercentage, &c.CreatedAt, &completed)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if owner.Valid {
		c.CurrentOwnerID = &owner.String
	}
	if completed.Valid {
		c.CompletedAt = &completed.String
	}
	return c, err
}

func (r Repo) InsertChainTx(ctx context.Context, tx *sql.Tx, c domain.Chain) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO chains(`+chainCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.OriginatorID, c.Title, c.Description, c.ProjectType, c.Status,
		nullablePtr(c.CurrentOwnerID), c.TotalContributors, c.CompletionPercentage, c.CreatedAt, nullablePtr(c.CompletedAt))
	return err
}

func (r Repo) GetChain(ctx context.Context, id string) (domain.Chain, error) {
	return scanChain(r.DB.QueryRowContext(ctx, `SELECT `+chainCols+` FROM chains WHERE id=?`, id))
}

func (r Repo) GetChainTx(ctx context.Context, tx *sql.Tx, id string) (domain.Chain, error) {
	return scanChain(tx.QueryRowContext(ctx, `SELECT `+chainCols+` FROM chains WHERE id=?`, id))
}

func (r Repo) ListChains(ctx context.Context, status string) ([]domain.Chain, error) {
	query := `SELECT ` + chainCols + ` FROM chains ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + chainCols + ` FROM chains WHERE status=? ORDER BY created_at DESC`
		args = append(args, status)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Chain
	for rows.Next() {
		var c domain.Chain
		var owner, completed sql.NullString
		if err := rows.Scan(&c.ID, &c.OriginatorID, &c.Title, &c.Description, &c.ProjectType, &c.Status,
			&owner, &c.TotalContributors, &c.CompletionPercentage, &c.CreatedAt, &completed); err != nil {
			return nil, err
		}
		if owner.Valid {
			c.CurrentOwnerID = &owner.String
		}
		if completed.Valid {
			c.CompletedAt = &completed.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UpdateChainTx rewrites the mutable chain columns from c.
func (r Repo) UpdateChainTx(ctx context.Context, tx *sql.Tx, c domain.Chain) error {
	res, err := tx.ExecContext(ctx, `UPDATE chains SET status=?,current_owner_id=?,total_contributors=?,completion_percentage=?,completed_at=? WHERE id=?`,
		c.Status, nullablePtr(c.CurrentOwnerID), c.TotalContributors, c.CompletionPercentage, nullablePtr(c.CompletedAt), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountDistinctContributorsTx counts distinct (contributor, kind) pairs across a chain's links.
func (r Repo) CountDistinctContributorsTx(ctx context.Context, tx *sql.Tx, chainID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT DISTINCT contributor_id, contributor_kind FROM chain_links WHERE chain_id=?)`, chainID).Scan(&n)
	return n, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
