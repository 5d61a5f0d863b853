package repo

import (
	"context"
	"database/sql"

	"buildpass/internal/domain"
)

const linkCols = `id,chain_id,contributor_id,contributor_kind,ordinal,contribution_type,skill_level_required,work_description,work_output,time_spent,completion_percentage,quality_score,status,handoff_reason,created_at,completed_at`

func scanLink(scan func(dest ...any) error) (domain.Link, error) {
	var l domain.Link
	var output, reason, completed sql.NullString
	var quality sql.NullInt64
	err := scan(&l.ID, &l.ChainID, &l.ContributorID, &l.ContributorKind, &l.Ordinal, &l.ContributionType,
		&l.SkillLevelRequired, &l.WorkDescription, &output, &l.TimeSpent, &l.CompletionPercentage,
		&quality, &l.Status, &reason, &l.CreatedAt, &completed)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if output.Valid {
		l.WorkOutput = &output.String
	}
	if reason.Valid {
		l.HandoffReason = &reason.String
	}
	if completed.Valid {
		l.CompletedAt = &completed.String
	}
	if quality.Valid {
		q := int(quality.Int64)
		l.QualityScore = &q
	}
	return l, nil
}

func (r Repo) InsertLinkTx(ctx context.Context, tx *sql.Tx, l domain.Link) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO chain_links(`+linkCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.ChainID, l.ContributorID, l.ContributorKind, l.Ordinal, l.ContributionType,
		l.SkillLevelRequired, l.WorkDescription, nullablePtr(l.WorkOutput), l.TimeSpent, l.CompletionPercentage,
		nullableInt(l.QualityScore), l.Status, nullablePtr(l.HandoffReason), l.CreatedAt, nullablePtr(l.CompletedAt))
	return err
}

func (r Repo) GetLink(ctx context.Context, id string) (domain.Link, error) {
	return scanLink(r.DB.QueryRowContext(ctx, `SELECT `+linkCols+` FROM chain_links WHERE id=?`, id).Scan)
}

// ActiveLinkTx returns the chain's in_progress link, if any.
func (r Repo) ActiveLinkTx(ctx context.Context, tx *sql.Tx, chainID string) (domain.Link, error) {
	return scanLink(tx.QueryRowContext(ctx,
		`SELECT `+linkCols+` FROM chain_links WHERE chain_id=? AND status='in_progress' ORDER BY ordinal DESC LIMIT 1`, chainID).Scan)
}

// MaxOrdinalTx returns the highest ordinal already recorded for a chain, or 0.
func (r Repo) MaxOrdinalTx(ctx context.Context, tx *sql.Tx, chainID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(ordinal),0) FROM chain_links WHERE chain_id=?`, chainID).Scan(&n)
	return n, err
}

func (r Repo) ListLinks(ctx context.Context, chainID string) ([]domain.Link, error) {
	return r.listLinks(ctx, r.DB.QueryContext, chainID)
}

func (r Repo) ListLinksTx(ctx context.Context, tx *sql.Tx, chainID string) ([]domain.Link, error) {
	return r.listLinks(ctx, tx.QueryContext, chainID)
}

func (r Repo) listLinks(ctx context.Context, query func(ctx context.Context, q string, args ...any) (*sql.Rows, error), chainID string) ([]domain.Link, error) {
	rows, err := query(ctx, `SELECT `+linkCols+` FROM chain_links WHERE chain_id=? ORDER BY ordinal ASC`, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Link
	for rows.Next() {
		l, err := scanLink(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// CloseLinkTx finishes a link with its recorded output and final status.
func (r Repo) CloseLinkTx(ctx context.Context, tx *sql.Tx, l domain.Link) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE chain_links SET work_output=?,time_spent=?,completion_percentage=?,quality_score=?,status=?,handoff_reason=?,completed_at=? WHERE id=?`,
		nullablePtr(l.WorkOutput), l.TimeSpent, l.CompletionPercentage, nullableInt(l.QualityScore),
		l.Status, nullablePtr(l.HandoffReason), nullablePtr(l.CompletedAt), l.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
