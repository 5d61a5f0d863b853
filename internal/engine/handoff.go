package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"buildpass/internal/domain"
	"buildpass/internal/events"
	"buildpass/internal/repo"
)

type AcceptHandoffResult struct {
	Handoff domain.HandoffRequest `json:"handoff"`
	Link    domain.Link           `json:"link"`
	Chain   domain.Chain          `json:"chain"`
}

// AcceptHandoff claims the chain's pending handoff for the caller and opens
// the next link. Ordinal assignment is serialized through the transaction and
// backed by the unique (chain, ordinal) index; a lost race surfaces as
// ErrTransient and the whole call can be retried.
func (e Engine) AcceptHandoff(ctx context.Context, chainID string, kind domain.ContributorKind, contributorID string) (AcceptHandoffResult, error) {
	if strings.TrimSpace(chainID) == "" || strings.TrimSpace(contributorID) == "" {
		return AcceptHandoffResult{}, fmt.Errorf("%w: chain and contributor are required", ErrInvalidInput)
	}
	if kind == "" {
		kind = domain.KindHuman
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AcceptHandoffResult{}, err
	}
	defer tx.Rollback()

	chain, err := e.Repo.GetChainTx(ctx, tx, chainID)
	if err != nil {
		return AcceptHandoffResult{}, err
	}
	if chain.Status != "in_progress" {
		return AcceptHandoffResult{}, fmt.Errorf("%w: chain is %s", ErrInvalidInput, chain.Status)
	}
	if _, err := e.Repo.ActiveLinkTx(ctx, tx, chainID); err == nil {
		return AcceptHandoffResult{}, fmt.Errorf("%w: chain already has an active contribution", ErrTransient)
	} else if err != repo.ErrNotFound {
		return AcceptHandoffResult{}, err
	}

	handoff, err := e.Repo.PendingHandoffTx(ctx, tx, chainID)
	if err == repo.ErrNotFound {
		return AcceptHandoffResult{}, fmt.Errorf("%w: no pending handoff", ErrInvalidInput)
	}
	if err != nil {
		return AcceptHandoffResult{}, err
	}
	// A targeted request may only be taken by its addressee; an open one by anyone.
	if handoff.ToHumanID != nil && (kind != domain.KindHuman || *handoff.ToHumanID != contributorID) {
		return AcceptHandoffResult{}, fmt.Errorf("%w: handoff is addressed to another contributor", ErrInvalidInput)
	}
	if handoff.ToAgentID != nil && (kind != domain.KindAgent || *handoff.ToAgentID != contributorID) {
		return AcceptHandoffResult{}, fmt.Errorf("%w: handoff is addressed to another contributor", ErrInvalidInput)
	}

	now := e.nowRFC3339()
	if err := e.Repo.ResolveHandoffTx(ctx, tx, handoff.ID, "accepted", contributorID, now); err != nil {
		if err == repo.ErrNotFound {
			return AcceptHandoffResult{}, fmt.Errorf("%w: handoff already resolved", ErrTransient)
		}
		return AcceptHandoffResult{}, err
	}
	handoff.Status = "accepted"
	handoff.AcceptedBy = &contributorID
	handoff.ResolvedAt = &now

	if kind == domain.KindAgent {
		if err := e.Repo.MarkAgentBusyTx(ctx, tx, contributorID, now); err != nil {
			if err == repo.ErrNotFound {
				return AcceptHandoffResult{}, fmt.Errorf("%w: agent not idle", ErrTransient)
			}
			return AcceptHandoffResult{}, err
		}
	}

	link, err := e.nextLinkTx(ctx, tx, &chain, contributorID, kind, now)
	if err != nil {
		return AcceptHandoffResult{}, err
	}
	if err := e.Repo.UpdateChainTx(ctx, tx, chain); err != nil {
		return AcceptHandoffResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "handoff.accepted", chain.ID, "handoff", handoff.ID, contributorID, events.EventPayload{
		"kind":    kind,
		"ordinal": link.Ordinal,
	}); err != nil {
		return AcceptHandoffResult{}, err
	}
	if err := tx.Commit(); err != nil {
		if isTransient(err) {
			return AcceptHandoffResult{}, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return AcceptHandoffResult{}, err
	}
	return AcceptHandoffResult{Handoff: handoff, Link: link, Chain: chain}, nil
}

// RejectHandoff lets the addressed human decline. The request is closed and
// the chain stays open without an active link.
func (e Engine) RejectHandoff(ctx context.Context, chainID, contributorID string) (domain.HandoffRequest, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.HandoffRequest{}, err
	}
	defer tx.Rollback()

	chain, err := e.Repo.GetChainTx(ctx, tx, chainID)
	if err != nil {
		return domain.HandoffRequest{}, err
	}
	handoff, err := e.Repo.PendingHandoffTx(ctx, tx, chainID)
	if err == repo.ErrNotFound {
		return domain.HandoffRequest{}, fmt.Errorf("%w: no pending handoff", ErrInvalidInput)
	}
	if err != nil {
		return domain.HandoffRequest{}, err
	}
	if handoff.ToHumanID != nil && *handoff.ToHumanID != contributorID {
		return domain.HandoffRequest{}, fmt.Errorf("%w: handoff is addressed to another contributor", ErrInvalidInput)
	}
	now := e.nowRFC3339()
	if err := e.Repo.ResolveHandoffTx(ctx, tx, handoff.ID, "rejected", contributorID, now); err != nil {
		if err == repo.ErrNotFound {
			return domain.HandoffRequest{}, fmt.Errorf("%w: handoff already resolved", ErrTransient)
		}
		return domain.HandoffRequest{}, err
	}
	handoff.Status = "rejected"
	handoff.AcceptedBy = &contributorID
	handoff.ResolvedAt = &now
	if err := e.Events.Append(ctx, tx, "handoff.rejected", chain.ID, "handoff", handoff.ID, contributorID, nil); err != nil {
		return domain.HandoffRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.HandoffRequest{}, err
	}
	return handoff, nil
}

// ListOpenHandoffs returns a chain's unresolved handoff requests.
func (e Engine) ListOpenHandoffs(ctx context.Context, chainID string) ([]domain.HandoffRequest, error) {
	if _, err := e.Repo.GetChain(ctx, chainID); err != nil {
		return nil, err
	}
	return e.Repo.ListHandoffs(ctx, chainID, "pending")
}

// nextLinkTx appends the development link that continues a chain after a
// handoff, and refreshes the chain's owner, contributor count and completion.
func (e Engine) nextLinkTx(ctx context.Context, tx *sql.Tx, chain *domain.Chain, contributorID string, kind domain.ContributorKind, now string) (domain.Link, error) {
	maxOrdinal, err := e.Repo.MaxOrdinalTx(ctx, tx, chain.ID)
	if err != nil {
		return domain.Link{}, err
	}
	link := domain.Link{
		ID:                   uuid.NewString(),
		ChainID:              chain.ID,
		ContributorID:        contributorID,
		ContributorKind:      kind,
		Ordinal:              maxOrdinal + 1,
		ContributionType:     "development",
		SkillLevelRequired:   e.Config.Links.Development.SkillLevel,
		WorkDescription:      "Continue building from previous contribution",
		CompletionPercentage: e.Config.Links.Development.CompletionPercentage,
		Status:               "in_progress",
		CreatedAt:            now,
	}
	if err := e.Repo.InsertLinkTx(ctx, tx, link); err != nil {
		if isTransient(err) {
			return domain.Link{}, fmt.Errorf("%w: ordinal race on chain %s", ErrTransient, chain.ID)
		}
		return domain.Link{}, err
	}
	if kind == domain.KindHuman {
		chain.CurrentOwnerID = &link.ContributorID
	} else {
		chain.CurrentOwnerID = nil
	}
	contributors, err := e.Repo.CountDistinctContributorsTx(ctx, tx, chain.ID)
	if err != nil {
		return domain.Link{}, err
	}
	chain.TotalContributors = contributors
	completion, err := e.chainCompletionTx(ctx, tx, chain.ID)
	if err != nil {
		return domain.Link{}, err
	}
	chain.CompletionPercentage = completion
	return link, nil
}
