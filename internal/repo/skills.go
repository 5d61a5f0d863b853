package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"buildpass/internal/domain"
)

func scanAssessment(scan func(dest ...any) error) (domain.SkillAssessment, error) {
	var a domain.SkillAssessment
	var evidence string
	err := scan(&a.ContributorID, &a.SkillCategory, &a.ProficiencyLevel, &a.ConfidenceScore,
		&a.AssessmentMethod, &evidence, &a.LastAssessedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(evidence), &a.Evidence); err != nil {
		return a, fmt.Errorf("decode evidence for %s/%s: %w", a.ContributorID, a.SkillCategory, err)
	}
	return a, nil
}

func (r Repo) GetAssessment(ctx context.Context, contributorID, category string) (domain.SkillAssessment, error) {
	return scanAssessment(r.DB.QueryRowContext(ctx,
		`SELECT contributor_id,skill_category,proficiency_level,confidence_score,assessment_method,evidence_json,last_assessed_at
		 FROM skill_assessments WHERE contributor_id=? AND skill_category=?`, contributorID, category).Scan)
}

func (r Repo) ListAssessments(ctx context.Context, contributorID string) ([]domain.SkillAssessment, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT contributor_id,skill_category,proficiency_level,confidence_score,assessment_method,evidence_json,last_assessed_at
		 FROM skill_assessments WHERE contributor_id=? ORDER BY skill_category ASC`, contributorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SkillAssessment
	for rows.Next() {
		a, err := scanAssessment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ReinforceSkillTx bumps an existing assessment by the given increments, capped at 100.
// It reports whether a row was updated; callers insert a fresh assessment otherwise.
func (r Repo) ReinforceSkillTx(ctx context.Context, tx *sql.Tx, contributorID, category string, dProficiency, dConfidence int, now string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE skill_assessments
		 SET proficiency_level=MIN(100, proficiency_level+?),
		     confidence_score=MIN(100, confidence_score+?),
		     last_assessed_at=?
		 WHERE contributor_id=? AND skill_category=?`,
		dProficiency, dConfidence, now, contributorID, category)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) InsertAssessmentTx(ctx context.Context, tx *sql.Tx, a domain.SkillAssessment) error {
	evidence, err := json.Marshal(orEmpty(a.Evidence))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO skill_assessments(contributor_id,skill_category,proficiency_level,confidence_score,assessment_method,evidence_json,last_assessed_at)
		 VALUES (?,?,?,?,?,?,?)`,
		a.ContributorID, a.SkillCategory, a.ProficiencyLevel, a.ConfidenceScore, a.AssessmentMethod, string(evidence), a.LastAssessedAt)
	return err
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
