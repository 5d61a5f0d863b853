package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"buildpass/internal/config"
	"buildpass/internal/db"
	"buildpass/internal/domain"
	"buildpass/internal/engine"
	"buildpass/internal/insight"
	"buildpass/internal/migrate"
)

type stubInsight struct {
	decomposition   insight.Decomposition
	analysis        insight.Analysis
	decomposeErr    error
	analyzeErr      error
	lastDescription string
}

func (s *stubInsight) Decompose(ctx context.Context, idea string, profile map[string]int) (insight.Decomposition, error) {
	if s.decomposeErr != nil {
		return insight.Decomposition{}, s.decomposeErr
	}
	return s.decomposition, nil
}

func (s *stubInsight) AnalyzeContribution(ctx context.Context, description, output string) (insight.Analysis, error) {
	s.lastDescription = description
	if s.analyzeErr != nil {
		return insight.Analysis{}, s.analyzeErr
	}
	return s.analysis, nil
}

type testEnv struct {
	Engine  engine.Engine
	Insight *stubInsight
	Ctx     context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	stub := &stubInsight{
		decomposition: insight.Decomposition{
			Tasks: []insight.Task{
				{Title: "Sketch the core concept", Description: "Outline screens and flows", SkillLevel: 10, SkillCategory: "product design", EstimatedMinutes: 60, UserCanDo: true},
				{Title: "Build the API", Description: "Implement task storage", SkillLevel: 60, SkillCategory: "backend development", EstimatedMinutes: 240, UserCanDo: false},
			},
		},
		analysis: insight.Analysis{
			QualityScore:         80,
			CompletionPercentage: 30,
			SkillsDemonstrated:   []string{"product design"},
		},
	}
	eng := engine.New(conn, config.Default("proj-1"), stub)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Insight: stub, Ctx: context.Background()}
}

func startChain(t *testing.T, env testEnv, originator string) engine.StartChainResult {
	t.Helper()
	res, err := env.Engine.StartChain(env.Ctx, engine.StartChainOptions{
		OriginatorID: originator,
		Title:        "Todo app",
		Description:  "A simple todo app",
		Idea:         "An app that tracks tasks for small teams",
	})
	if err != nil {
		t.Fatalf("start chain: %v", err)
	}
	return res
}

func TestStartChainCreatesIdeationLink(t *testing.T) {
	env := newTestEnv(t)
	res := startChain(t, env, "alice")

	if res.Chain.Status != "in_progress" {
		t.Fatalf("chain status = %s", res.Chain.Status)
	}
	if res.Chain.CurrentOwnerID == nil || *res.Chain.CurrentOwnerID != "alice" {
		t.Fatalf("expected alice as owner")
	}
	if res.Chain.TotalContributors != 1 {
		t.Fatalf("contributors = %d", res.Chain.TotalContributors)
	}
	if res.Chain.CompletionPercentage != 5 {
		t.Fatalf("completion = %d", res.Chain.CompletionPercentage)
	}
	if res.Link.Ordinal != 1 || res.Link.ContributionType != "ideation" {
		t.Fatalf("unexpected first link: %+v", res.Link)
	}
	if res.Link.SkillLevelRequired != 10 {
		t.Fatalf("skill level = %d", res.Link.SkillLevelRequired)
	}
	if res.Link.WorkDescription != "Project initiation and initial concept" {
		t.Fatalf("work description = %s", res.Link.WorkDescription)
	}
	if res.Link.WorkOutput == nil || *res.Link.WorkOutput != "A simple todo app" {
		t.Fatalf("expected description as initial work output")
	}
	if len(res.AllTasks) != 2 {
		t.Fatalf("expected full task list, got %d", len(res.AllTasks))
	}
	if len(res.YourTasks) != 1 || res.YourTasks[0].Title != "Sketch the core concept" {
		t.Fatalf("expected only doable tasks: %+v", res.YourTasks)
	}
}

func TestStartChainValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.StartChain(env.Ctx, engine.StartChainOptions{OriginatorID: "alice", Title: "x"})
	if !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestStartChainEvaluationFailureWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.Insight.decomposeErr = insight.ErrUnavailable
	_, err := env.Engine.StartChain(env.Ctx, engine.StartChainOptions{
		OriginatorID: "alice", Title: "Todo app", Idea: "tasks",
	})
	if !errors.Is(err, insight.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	chains, err := env.Engine.Repo.ListChains(env.Ctx, "")
	if err != nil {
		t.Fatalf("list chains: %v", err)
	}
	if len(chains) != 0 {
		t.Fatalf("expected no chains written, got %d", len(chains))
	}
}

func TestSubmitCompletesLinkAndAssessesSkills(t *testing.T) {
	env := newTestEnv(t)
	chain := startChain(t, env, "alice").Chain

	env.Insight.analysis = insight.Analysis{
		QualityScore:         85,
		CompletionPercentage: 40,
		SkillsDemonstrated:   []string{"product design"},
	}
	res, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "wireframes and scope",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Link.Status != "completed" {
		t.Fatalf("link status = %s", res.Link.Status)
	}
	if res.Link.QualityScore == nil || *res.Link.QualityScore != 85 {
		t.Fatalf("expected quality recorded")
	}
	if res.ShouldHandoff {
		t.Fatalf("unexpected handoff")
	}
	got, err := env.Engine.Repo.GetChain(env.Ctx, chain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CompletionPercentage != 40 {
		t.Fatalf("chain completion = %d", got.CompletionPercentage)
	}
	skills, err := env.Engine.Profile(env.Ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(skills) != 1 || skills[0].SkillCategory != "product design" {
		t.Fatalf("unexpected skills: %+v", skills)
	}
	if skills[0].ProficiencyLevel != 40 || skills[0].ConfidenceScore != 70 {
		t.Fatalf("initial assessment = %d/%d", skills[0].ProficiencyLevel, skills[0].ConfidenceScore)
	}
	if skills[0].AssessmentMethod != "observed" {
		t.Fatalf("method = %s", skills[0].AssessmentMethod)
	}

	// the link is closed; a second submission has nothing to act on
	_, err = env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "again",
	})
	if !errors.Is(err, engine.ErrNoActiveContribution) {
		t.Fatalf("expected no active contribution, got %v", err)
	}
}

func TestSubmitKeepsChainCompletionMonotone(t *testing.T) {
	env := newTestEnv(t)
	chain := startChain(t, env, "alice").Chain

	// the ideation link already carries 5% of the chain; a low evaluation
	// must not take that back
	env.Insight.analysis = insight.Analysis{QualityScore: 40, CompletionPercentage: 0}
	res, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "thin sketch",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Link.CompletionPercentage != 5 {
		t.Fatalf("link completion = %d", res.Link.CompletionPercentage)
	}
	got, err := env.Engine.Repo.GetChain(env.Ctx, chain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CompletionPercentage != 5 {
		t.Fatalf("chain completion dropped to %d", got.CompletionPercentage)
	}
}

func TestSubmitForwardsCallerDescription(t *testing.T) {
	env := newTestEnv(t)
	first := startChain(t, env, "alice").Chain
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: first.ID, ContributorID: "alice",
		WorkDescription: "Refined the onboarding flow", WorkOutput: "flows",
	}); err != nil {
		t.Fatal(err)
	}
	if env.Insight.lastDescription != "Refined the onboarding flow" {
		t.Fatalf("evaluator saw %q", env.Insight.lastDescription)
	}

	// without a caller description the link's assigned one is evaluated
	second := startChain(t, env, "alice")
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: second.Chain.ID, ContributorID: "alice", WorkOutput: "sketch",
	}); err != nil {
		t.Fatal(err)
	}
	if env.Insight.lastDescription != second.Link.WorkDescription {
		t.Fatalf("evaluator saw %q, want %q", env.Insight.lastDescription, second.Link.WorkDescription)
	}
}

func TestSubmitByNonOwnerRejected(t *testing.T) {
	env := newTestEnv(t)
	chain := startChain(t, env, "alice").Chain
	_, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "bob", WorkOutput: "not my link",
	})
	if !errors.Is(err, engine.ErrNoActiveContribution) {
		t.Fatalf("expected no active contribution, got %v", err)
	}
}

func TestSkillReinforcementAcrossChains(t *testing.T) {
	env := newTestEnv(t)
	first := startChain(t, env, "alice").Chain
	env.Insight.analysis = insight.Analysis{QualityScore: 80, CompletionPercentage: 30, SkillsDemonstrated: []string{"go"}}
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: first.ID, ContributorID: "alice", WorkOutput: "v1",
	}); err != nil {
		t.Fatal(err)
	}
	second := startChain(t, env, "alice").Chain
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: second.ID, ContributorID: "alice", WorkOutput: "v2",
	}); err != nil {
		t.Fatal(err)
	}
	skills, err := env.Engine.Profile(env.Ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(skills) != 1 {
		t.Fatalf("expected one category, got %d", len(skills))
	}
	if skills[0].ProficiencyLevel != 45 || skills[0].ConfidenceScore != 80 {
		t.Fatalf("reinforced = %d/%d", skills[0].ProficiencyLevel, skills[0].ConfidenceScore)
	}
}

func TestHandoffToBestHuman(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.UpsertHumanProfile(env.Ctx, domain.HumanProfile{
		ContributorID: "bob", DisplayName: "Bob",
		SkillTags:      []string{"backend development", "databases"},
		CognitiveScore: 70, TechnicalScore: 70,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpsertHumanProfile(env.Ctx, domain.HumanProfile{
		ContributorID: "carol", DisplayName: "Carol",
		SkillTags:      []string{"illustration"},
		CognitiveScore: 90, TechnicalScore: 90,
	}); err != nil {
		t.Fatal(err)
	}
	chain := startChain(t, env, "alice").Chain

	env.Insight.analysis = insight.Analysis{
		QualityScore:         75,
		CompletionPercentage: 40,
		SkillsDemonstrated:   []string{"product design"},
		NextSkillsNeeded:     []string{"backend"},
		HandoffRecommended:   true,
		HandoffReason:        "needs backend work",
	}
	res, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "concept done",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.ShouldHandoff || res.Handoff == nil {
		t.Fatalf("expected handoff")
	}
	if res.Link.Status != "handed_off" {
		t.Fatalf("link status = %s", res.Link.Status)
	}
	if res.Candidate == nil || res.Candidate.ID != "bob" || res.Candidate.Kind != domain.KindHuman {
		t.Fatalf("unexpected candidate: %+v", res.Candidate)
	}
	if res.Handoff.Status != "pending" || res.Handoff.ToHumanID == nil || *res.Handoff.ToHumanID != "bob" {
		t.Fatalf("unexpected handoff: %+v", res.Handoff)
	}

	// targeted handoff cannot be claimed by someone else
	if _, err := env.Engine.AcceptHandoff(env.Ctx, chain.ID, domain.KindHuman, "carol"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected addressee check, got %v", err)
	}

	accepted, err := env.Engine.AcceptHandoff(env.Ctx, chain.ID, domain.KindHuman, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Link.Ordinal != 2 || accepted.Link.ContributionType != "development" {
		t.Fatalf("unexpected next link: %+v", accepted.Link)
	}
	if accepted.Link.SkillLevelRequired != 60 {
		t.Fatalf("skill level = %d", accepted.Link.SkillLevelRequired)
	}
	if accepted.Chain.CurrentOwnerID == nil || *accepted.Chain.CurrentOwnerID != "bob" {
		t.Fatalf("expected bob as owner")
	}
	if accepted.Chain.TotalContributors != 2 {
		t.Fatalf("contributors = %d", accepted.Chain.TotalContributors)
	}

	open, err := env.Engine.ListOpenHandoffs(env.Ctx, chain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open handoffs, got %d", len(open))
	}
}

func TestHandoffTargetLevelComesFromEvaluation(t *testing.T) {
	env := newTestEnv(t)
	// erin matches the skill but averages 50
	if _, err := env.Engine.UpsertHumanProfile(env.Ctx, domain.HumanProfile{
		ContributorID: "erin", DisplayName: "Erin",
		SkillTags:      []string{"backend development"},
		CognitiveScore: 50, TechnicalScore: 50,
	}); err != nil {
		t.Fatal(err)
	}

	first := startChain(t, env, "alice").Chain
	env.Insight.analysis = insight.Analysis{
		QualityScore: 70, CompletionPercentage: 30,
		NextSkillsNeeded: []string{"backend"}, NextSkillLevel: 90,
		HandoffRecommended: true,
	}
	res, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: first.ID, ContributorID: "alice", WorkOutput: "concept",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// level 90 work needs an average of at least 70
	if res.Candidate != nil {
		t.Fatalf("expected no eligible human, got %+v", res.Candidate)
	}

	second := startChain(t, env, "alice").Chain
	env.Insight.analysis.NextSkillLevel = 40
	res, err = env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: second.ID, ContributorID: "alice", WorkOutput: "concept",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Candidate == nil || res.Candidate.ID != "erin" {
		t.Fatalf("expected erin at the lower bar, got %+v", res.Candidate)
	}
}

func TestHandoffFallsBackToIdleAgent(t *testing.T) {
	env := newTestEnv(t)
	// the only human has no matching skills at all
	if _, err := env.Engine.UpsertHumanProfile(env.Ctx, domain.HumanProfile{
		ContributorID: "dave", DisplayName: "Dave",
		SkillTags:      []string{"illustration"},
		CognitiveScore: 80, TechnicalScore: 80,
	}); err != nil {
		t.Fatal(err)
	}
	agent, err := env.Engine.RegisterAgent(env.Ctx, engine.RegisterAgentOptions{
		Name: "builder-1", Capabilities: []string{"backend development"},
	})
	if err != nil {
		t.Fatal(err)
	}
	chain := startChain(t, env, "alice").Chain

	env.Insight.analysis = insight.Analysis{
		QualityScore:         70,
		CompletionPercentage: 40,
		SkillsDemonstrated:   []string{"product design"},
		NextSkillsNeeded:     []string{"backend"},
		HandoffRecommended:   true,
		HandoffReason:        "needs code",
	}
	res, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "concept done",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Candidate == nil || res.Candidate.Kind != domain.KindAgent || res.Candidate.ID != agent.ID {
		t.Fatalf("unexpected candidate: %+v", res.Candidate)
	}
	if res.Handoff.Status != "auto_assigned" || res.Handoff.AcceptedBy == nil || *res.Handoff.AcceptedBy != agent.ID {
		t.Fatalf("unexpected handoff: %+v", res.Handoff)
	}

	busy, err := env.Engine.Repo.GetAgent(env.Ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if busy.Status != "busy" {
		t.Fatalf("agent status = %s", busy.Status)
	}

	history, err := env.Engine.GetChainHistory(env.Ctx, chain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history.Links) != 2 {
		t.Fatalf("expected auto-assigned link, got %d links", len(history.Links))
	}
	next := history.Links[1]
	if next.ContributorID != agent.ID || next.ContributorKind != domain.KindAgent || next.Status != "in_progress" {
		t.Fatalf("unexpected agent link: %+v", next)
	}
	if history.Chain.CurrentOwnerID != nil {
		t.Fatalf("agent-held chains have no human owner")
	}

	// the agent finishes its segment and goes back to the pool
	env.Insight.analysis = insight.Analysis{
		QualityScore:         90,
		CompletionPercentage: 50,
		SkillsDemonstrated:   []string{"backend"},
	}
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: agent.ID, Kind: domain.KindAgent, WorkOutput: "api built",
	}); err != nil {
		t.Fatalf("agent submit: %v", err)
	}
	released, err := env.Engine.Repo.GetAgent(env.Ctx, agent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if released.Status != "idle" || released.TasksCompleted != 1 {
		t.Fatalf("expected idle agent with one task, got %+v", released)
	}
}

func TestUnmatchedHandoffStaysOpen(t *testing.T) {
	env := newTestEnv(t)
	chain := startChain(t, env, "alice").Chain

	env.Insight.analysis = insight.Analysis{
		QualityScore:         60,
		CompletionPercentage: 30,
		NextSkillsNeeded:     []string{"embedded firmware"},
		HandoffRecommended:   true,
		HandoffReason:        "specialist needed",
	}
	res, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "concept done",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Candidate != nil {
		t.Fatalf("expected no candidate")
	}
	if res.Handoff.Status != "pending" || res.Handoff.ToHumanID != nil || res.Handoff.ToAgentID != nil {
		t.Fatalf("expected open untargeted handoff: %+v", res.Handoff)
	}
	got, err := env.Engine.Repo.GetChain(env.Ctx, chain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentOwnerID != nil {
		t.Fatalf("expected no owner while unmatched")
	}
	open, err := env.Engine.ListOpenHandoffs(env.Ctx, chain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("expected one open handoff, got %d", len(open))
	}

	// an open request can be claimed by any volunteer
	accepted, err := env.Engine.AcceptHandoff(env.Ctx, chain.ID, domain.KindHuman, "frank")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Link.Ordinal != 2 || accepted.Link.ContributorID != "frank" {
		t.Fatalf("unexpected link: %+v", accepted.Link)
	}
}

func TestRejectHandoff(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.UpsertHumanProfile(env.Ctx, domain.HumanProfile{
		ContributorID: "bob", DisplayName: "Bob",
		SkillTags:      []string{"backend"},
		CognitiveScore: 70, TechnicalScore: 70,
	}); err != nil {
		t.Fatal(err)
	}
	chain := startChain(t, env, "alice").Chain
	env.Insight.analysis = insight.Analysis{
		QualityScore: 70, CompletionPercentage: 30,
		NextSkillsNeeded: []string{"backend"}, HandoffRecommended: true,
	}
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "done",
	}); err != nil {
		t.Fatal(err)
	}

	h, err := env.Engine.RejectHandoff(env.Ctx, chain.ID, "bob")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if h.Status != "rejected" {
		t.Fatalf("status = %s", h.Status)
	}
	open, err := env.Engine.ListOpenHandoffs(env.Ctx, chain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open handoffs")
	}
	if _, err := env.Engine.AcceptHandoff(env.Ctx, chain.ID, domain.KindHuman, "bob"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected no pending handoff, got %v", err)
	}
}

func TestCompleteChainGuards(t *testing.T) {
	env := newTestEnv(t)
	chain := startChain(t, env, "alice").Chain

	// the ideation link is still open
	if _, err := env.Engine.CompleteChain(env.Ctx, chain.ID, "alice"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected active link guard, got %v", err)
	}
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "done",
	}); err != nil {
		t.Fatal(err)
	}
	done, err := env.Engine.CompleteChain(env.Ctx, chain.ID, "alice")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != "completed" || done.CompletedAt == nil || done.CurrentOwnerID != nil {
		t.Fatalf("unexpected completed chain: %+v", done)
	}
	// terminal states stay terminal
	if _, err := env.Engine.CompleteChain(env.Ctx, chain.ID, "alice"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected terminal guard, got %v", err)
	}
	if _, err := env.Engine.AbandonChain(env.Ctx, chain.ID, "alice", "late"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected terminal guard, got %v", err)
	}
}

func TestAbandonChain(t *testing.T) {
	env := newTestEnv(t)
	chain := startChain(t, env, "alice").Chain
	got, err := env.Engine.AbandonChain(env.Ctx, chain.ID, "alice", "lost interest")
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if got.Status != "abandoned" || got.CurrentOwnerID != nil {
		t.Fatalf("unexpected chain: %+v", got)
	}
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "too late",
	}); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected closed chain guard, got %v", err)
	}
}

func TestCreditsProportionalAndSumTo100(t *testing.T) {
	env := newTestEnv(t)
	chain := startChain(t, env, "alice").Chain

	// alice closes ideation at 5%, then hands off twice through open requests
	env.Insight.analysis = insight.Analysis{
		QualityScore: 70, CompletionPercentage: 5,
		NextSkillsNeeded: []string{"backend"}, HandoffRecommended: true,
	}
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "concept",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AcceptHandoff(env.Ctx, chain.ID, domain.KindHuman, "bob"); err != nil {
		t.Fatal(err)
	}

	// credits require a completed chain
	if _, err := env.Engine.CalculateCredits(env.Ctx, chain.ID, "alice"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected completed-chain guard, got %v", err)
	}

	env.Insight.analysis = insight.Analysis{
		QualityScore: 80, CompletionPercentage: 20,
		NextSkillsNeeded: []string{"frontend"}, HandoffRecommended: true,
	}
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "bob", WorkOutput: "api",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AcceptHandoff(env.Ctx, chain.ID, domain.KindHuman, "carol"); err != nil {
		t.Fatal(err)
	}
	env.Insight.analysis = insight.Analysis{QualityScore: 90, CompletionPercentage: 20}
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "carol", WorkOutput: "ui",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteChain(env.Ctx, chain.ID, "carol"); err != nil {
		t.Fatal(err)
	}

	// links carry 5/20/20 of a 45 total; floors give 11/44/44 and the leftover
	// point goes to the earlier of the tied remainders
	credits, err := env.Engine.CalculateCredits(env.Ctx, chain.ID, "carol")
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(credits) != 3 {
		t.Fatalf("expected 3 credits, got %d", len(credits))
	}
	sum := 0
	for _, c := range credits {
		sum += c.CreditPercentage
		if c.ContributionValue != c.CreditPercentage*10 {
			t.Fatalf("value mismatch: %+v", c)
		}
		if len(c.Badges) != 1 || c.Badges[0] != "Collaborator" {
			t.Fatalf("badges = %v", c.Badges)
		}
		if !c.PortfolioEligible {
			t.Fatalf("expected portfolio eligible")
		}
	}
	if sum != 100 {
		t.Fatalf("credits sum to %d", sum)
	}
	if credits[0].CreditPercentage != 11 || credits[1].CreditPercentage != 45 || credits[2].CreditPercentage != 44 {
		t.Fatalf("unexpected split: %d/%d/%d",
			credits[0].CreditPercentage, credits[1].CreditPercentage, credits[2].CreditPercentage)
	}
	if credits[0].ContributorID != "alice" || credits[1].ContributorID != "bob" || credits[2].ContributorID != "carol" {
		t.Fatalf("unexpected attribution order")
	}

	// attribution is written once
	if _, err := env.Engine.CalculateCredits(env.Ctx, chain.ID, "carol"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected already-calculated guard, got %v", err)
	}
	stored, err := env.Engine.Credits(env.Ctx, chain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored credits, got %d", len(stored))
	}
}

func TestGetChainHistoryDeduplicatesContributors(t *testing.T) {
	env := newTestEnv(t)
	chain := startChain(t, env, "alice").Chain
	env.Insight.analysis = insight.Analysis{
		QualityScore: 70, CompletionPercentage: 10,
		NextSkillsNeeded: []string{"backend"}, HandoffRecommended: true,
	}
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "concept",
	}); err != nil {
		t.Fatal(err)
	}
	// alice takes her own handoff back
	if _, err := env.Engine.AcceptHandoff(env.Ctx, chain.ID, domain.KindHuman, "alice"); err != nil {
		t.Fatal(err)
	}
	history, err := env.Engine.GetChainHistory(env.Ctx, chain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history.Links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(history.Links))
	}
	if len(history.Contributors) != 1 {
		t.Fatalf("expected deduplicated contributors, got %d", len(history.Contributors))
	}
	if history.Chain.TotalContributors != 1 {
		t.Fatalf("total contributors = %d", history.Chain.TotalContributors)
	}
}

func TestChainEventsLogged(t *testing.T) {
	env := newTestEnv(t)
	chain := startChain(t, env, "alice").Chain
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "done",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteChain(env.Ctx, chain.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Repo.ListChainEvents(env.Ctx, chain.ID)
	if err != nil {
		t.Fatal(err)
	}
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := []string{"chain.started", "contribution.submitted", "chain.completed"}
	if len(types) != len(want) {
		t.Fatalf("events = %v", types)
	}
	for i, w := range want {
		if types[i] != w {
			t.Fatalf("events = %v", types)
		}
	}
}

func TestConcurrentAcceptAssignsOneOrdinal(t *testing.T) {
	env := newTestEnv(t)
	chain := startChain(t, env, "alice").Chain
	env.Insight.analysis = insight.Analysis{
		QualityScore: 70, CompletionPercentage: 30,
		NextSkillsNeeded: []string{"backend"}, HandoffRecommended: true,
	}
	if _, err := env.Engine.SubmitContribution(env.Ctx, engine.SubmitOptions{
		ChainID: chain.ID, ContributorID: "alice", WorkOutput: "concept",
	}); err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, volunteer := range []string{"bob", "carol"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.Engine.AcceptHandoff(env.Ctx, chain.ID, domain.KindHuman, id)
			errs <- err
		}(volunteer)
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		if err == nil {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one acceptance, got %d", accepted)
	}

	history, err := env.Engine.GetChainHistory(env.Ctx, chain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history.Links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(history.Links))
	}
	seen := map[int]bool{}
	for _, l := range history.Links {
		if seen[l.Ordinal] {
			t.Fatalf("duplicate ordinal %d", l.Ordinal)
		}
		seen[l.Ordinal] = true
	}
}
