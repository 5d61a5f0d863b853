package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"buildpass/internal/domain"
	"buildpass/internal/events"
)

// CalculateCredits attributes a completed chain's value to its links in
// proportion to their completion percentages. Percentages are floored, then
// the shortfall to 100 is given back by largest fractional remainder, lower
// ordinals first on ties, so the recorded credits always sum to exactly 100.
// Credits are written once; a second invocation fails.
func (e Engine) CalculateCredits(ctx context.Context, chainID, actorID string) ([]domain.Credit, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	chain, err := e.Repo.GetChainTx(ctx, tx, chainID)
	if err != nil {
		return nil, err
	}
	if chain.Status != "completed" {
		return nil, fmt.Errorf("%w: chain is %s, credits require completed", ErrInvalidInput, chain.Status)
	}
	existing, err := e.Repo.CountCreditsTx(ctx, tx, chainID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: credits already calculated", ErrInvalidInput)
	}

	links, err := e.Repo.ListLinksTx(ctx, tx, chainID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, l := range links {
		total += l.CompletionPercentage
	}
	if total <= 0 {
		return nil, ErrNoCompletionData
	}

	type share struct {
		link      domain.Link
		pct       int
		remainder int
	}
	shares := make([]share, 0, len(links))
	assigned := 0
	for _, l := range links {
		scaled := l.CompletionPercentage * 100
		s := share{link: l, pct: scaled / total, remainder: scaled % total}
		assigned += s.pct
		shares = append(shares, s)
	}
	leftover := 100 - assigned
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := shares[order[a]], shares[order[b]]
		if sa.remainder != sb.remainder {
			return sa.remainder > sb.remainder
		}
		return sa.link.Ordinal < sb.link.Ordinal
	})
	for i := 0; i < leftover && i < len(order); i++ {
		shares[order[i]].pct++
	}

	now := e.nowRFC3339()
	var credits []domain.Credit
	for _, s := range shares {
		c := domain.Credit{
			ID:                uuid.NewString(),
			ChainID:           chainID,
			LinkID:            s.link.ID,
			ContributorID:     s.link.ContributorID,
			ContributorKind:   s.link.ContributorKind,
			CreditPercentage:  s.pct,
			ContributionValue: s.pct * 10,
			Badges:            []string{"Collaborator"},
			PortfolioEligible: true,
			CreatedAt:         now,
		}
		if err := e.Repo.InsertCreditTx(ctx, tx, c); err != nil {
			if isTransient(err) {
				return nil, fmt.Errorf("%w: concurrent credit calculation", ErrTransient)
			}
			return nil, err
		}
		credits = append(credits, c)
	}
	if err := e.Events.Append(ctx, tx, "credits.calculated", chainID, "chain", chainID, actorID, events.EventPayload{
		"credits": len(credits),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return credits, nil
}

// Credits returns a chain's recorded attribution.
func (e Engine) Credits(ctx context.Context, chainID string) ([]domain.Credit, error) {
	if _, err := e.Repo.GetChain(ctx, chainID); err != nil {
		return nil, err
	}
	return e.Repo.ListCredits(ctx, chainID)
}
