package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"buildpass/internal/domain"
)

// skillProfile flattens a contributor's assessments to category -> proficiency.
func (e Engine) skillProfile(ctx context.Context, contributorID string) (map[string]int, error) {
	assessments, err := e.Repo.ListAssessments(ctx, contributorID)
	if err != nil {
		return nil, err
	}
	profile := make(map[string]int, len(assessments))
	for _, a := range assessments {
		profile[a.SkillCategory] = a.ProficiencyLevel
	}
	return profile, nil
}

// reinforceSkillsTx bumps each demonstrated skill by the configured increments
// via a single atomic UPDATE per category, inserting a fresh observed
// assessment where none exists yet.
func (e Engine) reinforceSkillsTx(ctx context.Context, tx *sql.Tx, contributorID string, skills []string, now string) error {
	for _, skill := range skills {
		category := strings.TrimSpace(skill)
		if category == "" {
			continue
		}
		updated, err := e.Repo.ReinforceSkillTx(ctx, tx, contributorID, category,
			e.Config.Skills.ReinforceProficiency, e.Config.Skills.ReinforceConfidence, now)
		if err != nil {
			return fmt.Errorf("reinforce %s: %w", category, err)
		}
		if updated {
			continue
		}
		a := domain.SkillAssessment{
			ContributorID:    contributorID,
			SkillCategory:    category,
			ProficiencyLevel: e.Config.Skills.InitialProficiency,
			ConfidenceScore:  e.Config.Skills.InitialConfidence,
			AssessmentMethod: "observed",
			Evidence:         []string{"chain contribution"},
			LastAssessedAt:   now,
		}
		if err := e.Repo.InsertAssessmentTx(ctx, tx, a); err != nil {
			if isTransient(err) {
				// Concurrent first observation of the same category; fold into it.
				if _, err := e.Repo.ReinforceSkillTx(ctx, tx, contributorID, category,
					e.Config.Skills.ReinforceProficiency, e.Config.Skills.ReinforceConfidence, now); err != nil {
					return fmt.Errorf("reinforce %s: %w", category, err)
				}
				continue
			}
			return fmt.Errorf("assess %s: %w", category, err)
		}
	}
	return nil
}

// Profile returns a contributor's skill assessments.
func (e Engine) Profile(ctx context.Context, contributorID string) ([]domain.SkillAssessment, error) {
	if strings.TrimSpace(contributorID) == "" {
		return nil, fmt.Errorf("%w: contributor is required", ErrInvalidInput)
	}
	return e.Repo.ListAssessments(ctx, contributorID)
}

// UpsertHumanProfile registers or refreshes a matcher candidate.
func (e Engine) UpsertHumanProfile(ctx context.Context, p domain.HumanProfile) (domain.HumanProfile, error) {
	if strings.TrimSpace(p.ContributorID) == "" {
		return domain.HumanProfile{}, fmt.Errorf("%w: contributor is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return domain.HumanProfile{}, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	if p.CognitiveScore < 0 || p.CognitiveScore > 100 || p.TechnicalScore < 0 || p.TechnicalScore > 100 {
		return domain.HumanProfile{}, fmt.Errorf("%w: scores must be 0-100", ErrInvalidInput)
	}
	now := e.nowRFC3339()
	existing, err := e.Repo.GetProfile(ctx, p.ContributorID)
	switch err {
	case nil:
		p.CreatedAt = existing.CreatedAt
	default:
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := e.Repo.UpsertProfile(ctx, p); err != nil {
		return domain.HumanProfile{}, err
	}
	return p, nil
}

// RegisterAgentOptions are parameters for adding an automated contributor.
type RegisterAgentOptions struct {
	ID           string
	Name         string
	Capabilities []string
}

func (e Engine) RegisterAgent(ctx context.Context, opts RegisterAgentOptions) (domain.Agent, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Agent{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	now := e.nowRFC3339()
	a := domain.Agent{
		ID:               opts.ID,
		Name:             opts.Name,
		Status:           "idle",
		Capabilities:     opts.Capabilities,
		PerformanceScore: 50,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := e.Repo.InsertAgent(ctx, a); err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}
