package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"buildpass/internal/domain"
	"buildpass/internal/events"
	"buildpass/internal/insight"
	"buildpass/internal/repo"
)

// SubmitOptions are parameters for submitting finished work on a chain.
// WorkDescription is the submitter's own account of the segment; when empty
// the link's assigned description is used instead.
type SubmitOptions struct {
	ChainID         string
	ContributorID   string
	Kind            domain.ContributorKind
	WorkDescription string
	WorkOutput      string
	TimeSpent       int
}

type SubmitResult struct {
	Link          domain.Link            `json:"link"`
	Analysis      insight.Analysis       `json:"analysis"`
	ShouldHandoff bool                   `json:"should_handoff"`
	Handoff       *domain.HandoffRequest `json:"handoff,omitempty"`
	Candidate     *domain.Candidate      `json:"candidate,omitempty"`
	NextSteps     string                 `json:"next_steps"`
}

// SubmitContribution closes the caller's active link with the Insight
// Service's evaluation and, when the evaluation recommends it, opens a
// handoff to the best matched next contributor. The evaluation runs before
// the transaction: if it fails the link stays in_progress and the submission
// can be retried as a fresh evaluation.
func (e Engine) SubmitContribution(ctx context.Context, opts SubmitOptions) (SubmitResult, error) {
	if strings.TrimSpace(opts.ChainID) == "" || strings.TrimSpace(opts.ContributorID) == "" {
		return SubmitResult{}, fmt.Errorf("%w: chain and contributor are required", ErrInvalidInput)
	}
	if strings.TrimSpace(opts.WorkOutput) == "" {
		return SubmitResult{}, fmt.Errorf("%w: work output is required", ErrInvalidInput)
	}
	if opts.Kind == "" {
		opts.Kind = domain.KindHuman
	}

	chain, err := e.Repo.GetChain(ctx, opts.ChainID)
	if err != nil {
		return SubmitResult{}, err
	}
	if chain.Status != "in_progress" {
		return SubmitResult{}, fmt.Errorf("%w: chain is %s", ErrInvalidInput, chain.Status)
	}

	active, err := e.activeLinkFor(ctx, opts.ChainID, opts.ContributorID)
	if err != nil {
		return SubmitResult{}, err
	}

	description := strings.TrimSpace(opts.WorkDescription)
	if description == "" {
		description = active.WorkDescription
	}
	analysis, err := e.Insight.AnalyzeContribution(ctx, description, opts.WorkOutput)
	if err != nil {
		return SubmitResult{}, err
	}

	var candidate *domain.Candidate
	if analysis.HandoffRecommended {
		candidate, err = e.FindNextContributor(ctx, analysis.NextSkillsNeeded, analysis.NextSkillLevel)
		if err != nil {
			return SubmitResult{}, err
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SubmitResult{}, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()

	// Re-read under the transaction; the link may have been raced away.
	link, err := e.Repo.ActiveLinkTx(ctx, tx, opts.ChainID)
	if err == repo.ErrNotFound {
		return SubmitResult{}, ErrNoActiveContribution
	}
	if err != nil {
		return SubmitResult{}, err
	}
	if link.ID != active.ID || link.ContributorID != opts.ContributorID {
		return SubmitResult{}, ErrNoActiveContribution
	}

	link.WorkOutput = &opts.WorkOutput
	link.TimeSpent = opts.TimeSpent
	// The link's assigned weight already counts toward the chain total, so
	// the evaluation may only raise it; lowering would make chain completion
	// go backwards.
	if analysis.CompletionPercentage > link.CompletionPercentage {
		link.CompletionPercentage = analysis.CompletionPercentage
	}
	quality := analysis.QualityScore
	link.QualityScore = &quality
	link.CompletedAt = &now
	if analysis.HandoffRecommended {
		link.Status = "handed_off"
		reason := analysis.HandoffReason
		link.HandoffReason = &reason
	} else {
		link.Status = "completed"
	}
	if err := e.Repo.CloseLinkTx(ctx, tx, link); err != nil {
		return SubmitResult{}, err
	}

	if err := e.reinforceSkillsTx(ctx, tx, opts.ContributorID, analysis.SkillsDemonstrated, now); err != nil {
		return SubmitResult{}, err
	}

	if opts.Kind == domain.KindAgent {
		if err := e.Repo.ReleaseAgentTx(ctx, tx, opts.ContributorID, now); err != nil {
			return SubmitResult{}, err
		}
	}

	completion, err := e.chainCompletionTx(ctx, tx, chain.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	chain.CompletionPercentage = completion

	result := SubmitResult{Analysis: analysis, ShouldHandoff: analysis.HandoffRecommended}

	if analysis.HandoffRecommended {
		handoff, err := e.openHandoffTx(ctx, tx, &chain, link, candidate, analysis, opts.WorkOutput, now)
		if err != nil {
			return SubmitResult{}, err
		}
		result.Handoff = &handoff
		result.Candidate = candidate
		switch {
		case candidate == nil:
			result.NextSteps = "No matching contributor is available yet; the handoff stays open."
		case candidate.Kind == domain.KindAgent:
			result.NextSteps = fmt.Sprintf("Your contribution is complete. Agent %s picked up the next phase.", candidate.Name)
		default:
			result.NextSteps = fmt.Sprintf("Your contribution is complete. The next phase was offered to %s.", candidate.Name)
		}
	} else {
		result.NextSteps = "Contribution recorded. You can continue with the next task."
	}

	if err := e.Repo.UpdateChainTx(ctx, tx, chain); err != nil {
		return SubmitResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "contribution.submitted", chain.ID, "link", link.ID, opts.ContributorID, events.EventPayload{
		"ordinal":               link.Ordinal,
		"status":                link.Status,
		"quality_score":         analysis.QualityScore,
		"completion_percentage": link.CompletionPercentage,
		"skills_demonstrated":   analysis.SkillsDemonstrated,
	}); err != nil {
		return SubmitResult{}, err
	}
	if err := tx.Commit(); err != nil {
		if isTransient(err) {
			return SubmitResult{}, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return SubmitResult{}, err
	}
	result.Link = link
	return result, nil
}

func (e Engine) activeLinkFor(ctx context.Context, chainID, contributorID string) (domain.Link, error) {
	links, err := e.Repo.ListLinks(ctx, chainID)
	if err != nil {
		return domain.Link{}, err
	}
	for _, l := range links {
		if l.Status == "in_progress" && l.ContributorID == contributorID {
			return l, nil
		}
	}
	return domain.Link{}, ErrNoActiveContribution
}

// openHandoffTx records the handoff request and, for agent targets, assigns
// the next link in the same transaction. Human targets stay pending until
// AcceptHandoff; an unmatched request stays open with no target.
func (e Engine) openHandoffTx(ctx context.Context, tx *sql.Tx, chain *domain.Chain, from domain.Link, candidate *domain.Candidate, analysis insight.Analysis, workContext, now string) (domain.HandoffRequest, error) {
	handoff := domain.HandoffRequest{
		ID:                uuid.NewString(),
		ChainID:           chain.ID,
		FromContributorID: from.ContributorID,
		RequiredSkills:    analysis.NextSkillsNeeded,
		WorkContext:       workContext,
		Urgency:           "medium",
		Status:            "pending",
		CreatedAt:         now,
	}
	eventType := "handoff.pending"
	switch {
	case candidate == nil:
		eventType = "handoff.unmatched"
		chain.CurrentOwnerID = nil
	case candidate.Kind == domain.KindAgent:
		handoff.ToAgentID = &candidate.ID
		handoff.Status = "auto_assigned"
		handoff.AcceptedBy = &candidate.ID
		handoff.ResolvedAt = &now
		eventType = "handoff.auto_assigned"
	default:
		handoff.ToHumanID = &candidate.ID
	}

	if err := e.Repo.InsertHandoffTx(ctx, tx, handoff); err != nil {
		return domain.HandoffRequest{}, err
	}
	if handoff.Status == "auto_assigned" {
		if _, err := e.nextLinkTx(ctx, tx, chain, candidate.ID, domain.KindAgent, now); err != nil {
			return domain.HandoffRequest{}, err
		}
		if err := e.Repo.MarkAgentBusyTx(ctx, tx, candidate.ID, now); err != nil {
			if err == repo.ErrNotFound {
				return domain.HandoffRequest{}, fmt.Errorf("%w: agent no longer idle", ErrTransient)
			}
			return domain.HandoffRequest{}, err
		}
	}
	payload := events.EventPayload{
		"from":            from.ContributorID,
		"required_skills": handoff.RequiredSkills,
	}
	if candidate != nil {
		payload["to"] = candidate.ID
		payload["to_kind"] = candidate.Kind
		payload["match_score"] = candidate.MatchScore
	}
	if err := e.Events.Append(ctx, tx, eventType, chain.ID, "handoff", handoff.ID, from.ContributorID, payload); err != nil {
		return domain.HandoffRequest{}, err
	}
	return handoff, nil
}
