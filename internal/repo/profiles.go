package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"buildpass/internal/domain"
)

func scanProfile(scan func(dest ...any) error) (domain.HumanProfile, error) {
	var p domain.HumanProfile
	var tags string
	err := scan(&p.ContributorID, &p.DisplayName, &tags, &p.CognitiveScore, &p.TechnicalScore, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(tags), &p.SkillTags); err != nil {
		return p, fmt.Errorf("decode skill tags for %s: %w", p.ContributorID, err)
	}
	return p, nil
}

func (r Repo) GetProfile(ctx context.Context, contributorID string) (domain.HumanProfile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx,
		`SELECT contributor_id,display_name,skill_tags_json,cognitive_score,technical_score,created_at,updated_at
		 FROM human_profiles WHERE contributor_id=?`, contributorID).Scan)
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.HumanProfile, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT contributor_id,display_name,skill_tags_json,cognitive_score,technical_score,created_at,updated_at
		 FROM human_profiles ORDER BY contributor_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HumanProfile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpsertProfile(ctx context.Context, p domain.HumanProfile) error {
	tags, err := json.Marshal(orEmpty(p.SkillTags))
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO human_profiles(contributor_id,display_name,skill_tags_json,cognitive_score,technical_score,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(contributor_id) DO UPDATE SET
		   display_name=excluded.display_name,
		   skill_tags_json=excluded.skill_tags_json,
		   cognitive_score=excluded.cognitive_score,
		   technical_score=excluded.technical_score,
		   updated_at=excluded.updated_at`,
		p.ContributorID, p.DisplayName, string(tags), p.CognitiveScore, p.TechnicalScore, p.CreatedAt, p.UpdatedAt)
	return err
}

func scanAgent(scan func(dest ...any) error) (domain.Agent, error) {
	var a domain.Agent
	var caps string
	err := scan(&a.ID, &a.Name, &a.Status, &caps, &a.PerformanceScore, &a.TasksCompleted, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(caps), &a.Capabilities); err != nil {
		return a, fmt.Errorf("decode capabilities for agent %s: %w", a.ID, err)
	}
	return a, nil
}

const agentCols = `id,name,status,capabilities_json,performance_score,tasks_completed,created_at,updated_at`

func (r Repo) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	return scanAgent(r.DB.QueryRowContext(ctx, `SELECT `+agentCols+` FROM agents WHERE id=?`, id).Scan)
}

func (r Repo) InsertAgent(ctx context.Context, a domain.Agent) error {
	caps, err := json.Marshal(orEmpty(a.Capabilities))
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO agents(`+agentCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, a.Status, string(caps), a.PerformanceScore, a.TasksCompleted, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) ListAgents(ctx context.Context, status string) ([]domain.Agent, error) {
	query := `SELECT ` + agentCols + ` FROM agents ORDER BY name ASC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + agentCols + ` FROM agents WHERE status=? ORDER BY name ASC`
		args = append(args, status)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// MarkAgentBusyTx claims an idle agent for handoff work.
func (r Repo) MarkAgentBusyTx(ctx context.Context, tx *sql.Tx, id, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE agents SET status='busy',updated_at=? WHERE id=? AND status='idle'`, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseAgentTx puts a busy agent back to idle and counts its finished task.
func (r Repo) ReleaseAgentTx(ctx context.Context, tx *sql.Tx, id, now string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE agents SET status='idle',tasks_completed=tasks_completed+1,updated_at=? WHERE id=?`, now, id)
	return err
}
