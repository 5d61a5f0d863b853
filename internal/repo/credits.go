package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"buildpass/internal/domain"
)

const creditCols = `id,chain_id,link_id,contributor_id,contributor_kind,credit_percentage,contribution_value,badges_json,portfolio_eligible,created_at`

func scanCredit(scan func(dest ...any) error) (domain.Credit, error) {
	var c domain.Credit
	var badges string
	var eligible int
	err := scan(&c.ID, &c.ChainID, &c.LinkID, &c.ContributorID, &c.ContributorKind,
		&c.CreditPercentage, &c.ContributionValue, &badges, &eligible, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(badges), &c.Badges); err != nil {
		return c, fmt.Errorf("decode badges for credit %s: %w", c.ID, err)
	}
	c.PortfolioEligible = eligible != 0
	return c, nil
}

func (r Repo) InsertCreditTx(ctx context.Context, tx *sql.Tx, c domain.Credit) error {
	badges, err := json.Marshal(orEmpty(c.Badges))
	if err != nil {
		return err
	}
	eligible := 0
	if c.PortfolioEligible {
		eligible = 1
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO contribution_credits(`+creditCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ChainID, c.LinkID, c.ContributorID, c.ContributorKind, c.CreditPercentage, c.ContributionValue,
		string(badges), eligible, c.CreatedAt)
	return err
}

func (r Repo) ListCredits(ctx context.Context, chainID string) ([]domain.Credit, error) {
	return r.listCredits(ctx, r.DB.QueryContext, chainID)
}

func (r Repo) ListCreditsTx(ctx context.Context, tx *sql.Tx, chainID string) ([]domain.Credit, error) {
	return r.listCredits(ctx, tx.QueryContext, chainID)
}

func (r Repo) listCredits(ctx context.Context, query func(ctx context.Context, q string, args ...any) (*sql.Rows, error), chainID string) ([]domain.Credit, error) {
	rows, err := query(ctx, `SELECT `+creditCols+` FROM contribution_credits WHERE chain_id=? ORDER BY credit_percentage DESC, created_at ASC`, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Credit
	for rows.Next() {
		c, err := scanCredit(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CountCreditsTx reports how many credit rows a chain already has.
func (r Repo) CountCreditsTx(ctx context.Context, tx *sql.Tx, chainID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM contribution_credits WHERE chain_id=?`, chainID).Scan(&n)
	return n, err
}
