package engine_test

import (
	"testing"

	"buildpass/internal/domain"
	"buildpass/internal/engine"
)

func seedProfile(t *testing.T, env testEnv, id string, tags []string, cognitive, technical int) {
	t.Helper()
	if _, err := env.Engine.UpsertHumanProfile(env.Ctx, domain.HumanProfile{
		ContributorID: id, DisplayName: id,
		SkillTags:      tags,
		CognitiveScore: cognitive, TechnicalScore: technical,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestMatcherNoRequiredSkills(t *testing.T) {
	env := newTestEnv(t)
	seedProfile(t, env, "bob", []string{"backend"}, 90, 90)
	c, err := env.Engine.FindNextContributor(env.Ctx, nil, 60)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatalf("expected no candidate without required skills")
	}
}

func TestMatcherSubstringBothDirections(t *testing.T) {
	env := newTestEnv(t)
	seedProfile(t, env, "bob", []string{"Backend Development"}, 80, 80)
	// required term inside the tag
	c, err := env.Engine.FindNextContributor(env.Ctx, []string{"backend"}, 60)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.ID != "bob" || c.MatchScore != 100 {
		t.Fatalf("unexpected candidate: %+v", c)
	}
	// tag inside the required term
	c, err = env.Engine.FindNextContributor(env.Ctx, []string{"senior backend development lead"}, 60)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.ID != "bob" {
		t.Fatalf("unexpected candidate: %+v", c)
	}
}

func TestMatcherEligibilityMargin(t *testing.T) {
	env := newTestEnv(t)
	// perfect tag match, but average score 30 is below 60-20
	seedProfile(t, env, "junior", []string{"backend"}, 30, 30)
	c, err := env.Engine.FindNextContributor(env.Ctx, []string{"backend"}, 60)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatalf("expected junior filtered by eligibility margin, got %+v", c)
	}
	// average exactly at the margin boundary qualifies
	seedProfile(t, env, "boundary", []string{"backend"}, 40, 40)
	c, err = env.Engine.FindNextContributor(env.Ctx, []string{"backend"}, 60)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.ID != "boundary" {
		t.Fatalf("expected boundary candidate, got %+v", c)
	}
}

func TestMatcherPicksHighestScoringHuman(t *testing.T) {
	env := newTestEnv(t)
	seedProfile(t, env, "partial", []string{"backend"}, 80, 80)
	seedProfile(t, env, "full", []string{"backend", "frontend"}, 80, 80)
	c, err := env.Engine.FindNextContributor(env.Ctx, []string{"backend", "frontend"}, 60)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.ID != "full" || c.MatchScore != 100 {
		t.Fatalf("unexpected candidate: %+v", c)
	}
}

func TestMatcherAgentMustStrictlyBeatHuman(t *testing.T) {
	env := newTestEnv(t)
	// one of two required skills: score 50, under the agent fallback threshold
	seedProfile(t, env, "eve", []string{"backend"}, 70, 70)
	if _, err := env.Engine.RegisterAgent(env.Ctx, engine.RegisterAgentOptions{
		Name: "tie-agent", Capabilities: []string{"frontend"},
	}); err != nil {
		t.Fatal(err)
	}
	c, err := env.Engine.FindNextContributor(env.Ctx, []string{"backend", "frontend"}, 60)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Kind != domain.KindHuman || c.ID != "eve" {
		t.Fatalf("expected tied agent to lose to human, got %+v", c)
	}

	// a strictly better agent takes over
	if _, err := env.Engine.RegisterAgent(env.Ctx, engine.RegisterAgentOptions{
		Name: "strong-agent", Capabilities: []string{"backend", "frontend"},
	}); err != nil {
		t.Fatal(err)
	}
	c, err = env.Engine.FindNextContributor(env.Ctx, []string{"backend", "frontend"}, 60)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Kind != domain.KindAgent || c.MatchScore != 100 {
		t.Fatalf("expected stronger agent, got %+v", c)
	}
}

func TestMatcherSkipsAgentsWhenHumanIsStrong(t *testing.T) {
	env := newTestEnv(t)
	seedProfile(t, env, "ace", []string{"backend", "frontend"}, 90, 90)
	if _, err := env.Engine.RegisterAgent(env.Ctx, engine.RegisterAgentOptions{
		Name: "idle-agent", Capabilities: []string{"backend", "frontend"},
	}); err != nil {
		t.Fatal(err)
	}
	c, err := env.Engine.FindNextContributor(env.Ctx, []string{"backend", "frontend"}, 60)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Kind != domain.KindHuman || c.ID != "ace" {
		t.Fatalf("expected strong human to preempt agents, got %+v", c)
	}
}

func TestMatcherIgnoresBusyAgents(t *testing.T) {
	env := newTestEnv(t)
	agent, err := env.Engine.RegisterAgent(env.Ctx, engine.RegisterAgentOptions{
		Name: "worker", Capabilities: []string{"backend"},
	})
	if err != nil {
		t.Fatal(err)
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.MarkAgentBusyTx(env.Ctx, tx, agent.ID, "2025-06-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	c, err := env.Engine.FindNextContributor(env.Ctx, []string{"backend"}, 60)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatalf("expected no candidate while the only agent is busy, got %+v", c)
	}
}
