package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"buildpass/internal/config"
	"buildpass/internal/domain"
	"buildpass/internal/events"
	"buildpass/internal/insight"
	"buildpass/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Insight insight.Service
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, svc insight.Service) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Insight: svc,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// StartChainOptions are parameters for opening a new build chain.
type StartChainOptions struct {
	OriginatorID string
	Title        string
	Description  string
	ProjectType  string
	Idea         string
}

type StartChainResult struct {
	Chain     domain.Chain   `json:"chain"`
	Link      domain.Link    `json:"link"`
	AllTasks  []insight.Task `json:"all_tasks"`
	YourTasks []insight.Task `json:"your_tasks"`
}

// StartChain evaluates the idea against the originator's skills, then records
// the chain with its first ideation link. The evaluation happens before any
// write, so a failed call leaves nothing behind and can simply be retried.
func (e Engine) StartChain(ctx context.Context, opts StartChainOptions) (StartChainResult, error) {
	if strings.TrimSpace(opts.OriginatorID) == "" {
		return StartChainResult{}, fmt.Errorf("%w: originator is required", ErrInvalidInput)
	}
	if strings.TrimSpace(opts.Title) == "" {
		return StartChainResult{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(opts.Idea) == "" {
		return StartChainResult{}, fmt.Errorf("%w: idea is required", ErrInvalidInput)
	}
	if opts.ProjectType == "" {
		opts.ProjectType = "software"
	}

	profile, err := e.skillProfile(ctx, opts.OriginatorID)
	if err != nil {
		return StartChainResult{}, err
	}
	decomposition, err := e.Insight.Decompose(ctx, opts.Idea, profile)
	if err != nil {
		return StartChainResult{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return StartChainResult{}, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	originator := opts.OriginatorID
	chain := domain.Chain{
		ID:                   uuid.NewString(),
		OriginatorID:         originator,
		Title:                opts.Title,
		Description:          opts.Description,
		ProjectType:          opts.ProjectType,
		Status:               "in_progress",
		CurrentOwnerID:       &originator,
		TotalContributors:    1,
		CompletionPercentage: e.Config.Links.Ideation.CompletionPercentage,
		CreatedAt:            now,
	}
	var yourTasks []insight.Task
	for _, t := range decomposition.Tasks {
		if t.UserCanDo {
			yourTasks = append(yourTasks, t)
		}
	}
	link := domain.Link{
		ID:                   uuid.NewString(),
		ChainID:              chain.ID,
		ContributorID:        originator,
		ContributorKind:      domain.KindHuman,
		Ordinal:              1,
		ContributionType:     "ideation",
		SkillLevelRequired:   e.Config.Links.Ideation.SkillLevel,
		WorkDescription:      "Project initiation and initial concept",
		CompletionPercentage: e.Config.Links.Ideation.CompletionPercentage,
		Status:               "in_progress",
		CreatedAt:            now,
	}
	if opts.Description != "" {
		desc := opts.Description
		link.WorkOutput = &desc
	}
	if err := e.Repo.InsertChainTx(ctx, tx, chain); err != nil {
		return StartChainResult{}, fmt.Errorf("insert chain: %w", err)
	}
	if err := e.Repo.InsertLinkTx(ctx, tx, link); err != nil {
		return StartChainResult{}, fmt.Errorf("insert link: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "chain.started", chain.ID, "chain", chain.ID, originator, events.EventPayload{
		"title":        chain.Title,
		"project_type": chain.ProjectType,
		"task_count":   len(decomposition.Tasks),
		"your_tasks":   len(yourTasks),
	}); err != nil {
		return StartChainResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return StartChainResult{}, err
	}
	return StartChainResult{Chain: chain, Link: link, AllTasks: decomposition.Tasks, YourTasks: yourTasks}, nil
}

// ChainHistory is the full record of a chain: every link in order plus the
// distinct contributors who touched it.
type ChainHistory struct {
	Chain        domain.Chain       `json:"chain"`
	Links        []domain.Link      `json:"links"`
	Contributors []ChainContributor `json:"contributors"`
}

type ChainContributor struct {
	ID   string                 `json:"id"`
	Kind domain.ContributorKind `json:"kind"`
}

func (e Engine) GetChainHistory(ctx context.Context, chainID string) (ChainHistory, error) {
	chain, err := e.Repo.GetChain(ctx, chainID)
	if err != nil {
		return ChainHistory{}, err
	}
	links, err := e.Repo.ListLinks(ctx, chainID)
	if err != nil {
		return ChainHistory{}, err
	}
	seen := map[ChainContributor]bool{}
	var contributors []ChainContributor
	for _, l := range links {
		c := ChainContributor{ID: l.ContributorID, Kind: l.ContributorKind}
		if !seen[c] {
			seen[c] = true
			contributors = append(contributors, c)
		}
	}
	return ChainHistory{Chain: chain, Links: links, Contributors: contributors}, nil
}

// CompleteChain moves an in_progress chain to completed. An outstanding
// in_progress link must be submitted first.
func (e Engine) CompleteChain(ctx context.Context, chainID, actorID string) (domain.Chain, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Chain{}, err
	}
	defer tx.Rollback()

	chain, err := e.Repo.GetChainTx(ctx, tx, chainID)
	if err != nil {
		return domain.Chain{}, err
	}
	if chain.Status != "in_progress" {
		return domain.Chain{}, fmt.Errorf("%w: chain is %s", ErrInvalidInput, chain.Status)
	}
	if _, err := e.Repo.ActiveLinkTx(ctx, tx, chainID); err == nil {
		return domain.Chain{}, fmt.Errorf("%w: active contribution outstanding", ErrInvalidInput)
	} else if err != repo.ErrNotFound {
		return domain.Chain{}, err
	}
	now := e.nowRFC3339()
	chain.Status = "completed"
	chain.CompletedAt = &now
	chain.CurrentOwnerID = nil
	if err := e.Repo.UpdateChainTx(ctx, tx, chain); err != nil {
		return domain.Chain{}, err
	}
	if err := e.Events.Append(ctx, tx, "chain.completed", chain.ID, "chain", chain.ID, actorID, events.EventPayload{
		"completion_percentage": chain.CompletionPercentage,
	}); err != nil {
		return domain.Chain{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Chain{}, err
	}
	return chain, nil
}

// AbandonChain is the terminal escape hatch for chains that stall out.
func (e Engine) AbandonChain(ctx context.Context, chainID, actorID, reason string) (domain.Chain, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Chain{}, err
	}
	defer tx.Rollback()

	chain, err := e.Repo.GetChainTx(ctx, tx, chainID)
	if err != nil {
		return domain.Chain{}, err
	}
	if chain.Status != "in_progress" {
		return domain.Chain{}, fmt.Errorf("%w: chain is %s", ErrInvalidInput, chain.Status)
	}
	now := e.nowRFC3339()
	chain.Status = "abandoned"
	chain.CompletedAt = &now
	chain.CurrentOwnerID = nil
	if err := e.Repo.UpdateChainTx(ctx, tx, chain); err != nil {
		return domain.Chain{}, err
	}
	if err := e.Events.Append(ctx, tx, "chain.abandoned", chain.ID, "chain", chain.ID, actorID, events.EventPayload{
		"reason": reason,
	}); err != nil {
		return domain.Chain{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Chain{}, err
	}
	return chain, nil
}

// chainCompletionTx recomputes a chain's completion as the capped sum of its
// link percentages. Links only gain percentage, so the result is monotone.
func (e Engine) chainCompletionTx(ctx context.Context, tx *sql.Tx, chainID string) (int, error) {
	links, err := e.Repo.ListLinksTx(ctx, tx, chainID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, l := range links {
		total += l.CompletionPercentage
	}
	if total > 100 {
		total = 100
	}
	return total, nil
}
