package server

import (
	"buildpass/internal/domain"
	"buildpass/internal/engine"
	"buildpass/internal/insight"
)

// Request payloads

type StartChainRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ProjectType string `json:"project_type,omitempty"`
	Idea        string `json:"idea"`
}

type SubmitContributionRequest struct {
	Kind            string `json:"kind,omitempty" enum:"human,agent"`
	WorkDescription string `json:"work_description,omitempty"`
	WorkOutput      string `json:"work_output"`
	TimeSpent       int    `json:"time_spent,omitempty"`
}

type AcceptHandoffRequest struct {
	Kind string `json:"kind,omitempty" enum:"human,agent"`
}

type AbandonChainRequest struct {
	Reason string `json:"reason,omitempty"`
}

type UpsertProfileRequest struct {
	DisplayName    string   `json:"display_name"`
	SkillTags      []string `json:"skill_tags,omitempty"`
	CognitiveScore int      `json:"cognitive_score"`
	TechnicalScore int      `json:"technical_score"`
}

type RegisterAgentRequest struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type StartChainResponse struct {
	Chain     domain.Chain   `json:"chain"`
	Link      domain.Link    `json:"link"`
	AllTasks  []insight.Task `json:"all_tasks"`
	YourTasks []insight.Task `json:"your_tasks"`
}

type SubmitContributionResponse struct {
	Link          domain.Link            `json:"link"`
	Analysis      insight.Analysis       `json:"analysis"`
	ShouldHandoff bool                   `json:"should_handoff"`
	Handoff       *domain.HandoffRequest `json:"handoff,omitempty"`
	Candidate     *domain.Candidate      `json:"candidate,omitempty"`
	NextSteps     string                 `json:"next_steps"`
}

type AcceptHandoffResponse struct {
	Handoff domain.HandoffRequest `json:"handoff"`
	Link    domain.Link           `json:"link"`
	Chain   domain.Chain          `json:"chain"`
}

type ChainHistoryResponse struct {
	Chain        domain.Chain              `json:"chain"`
	Links        []domain.Link             `json:"links"`
	Contributors []engine.ChainContributor `json:"contributors"`
}

type CreateAPIKeyResponse struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	// Key is returned exactly once; only its hash is stored.
	Key string `json:"key"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func startChainResponse(r engine.StartChainResult) StartChainResponse {
	return StartChainResponse{Chain: r.Chain, Link: r.Link, AllTasks: r.AllTasks, YourTasks: r.YourTasks}
}

func submitResponse(r engine.SubmitResult) SubmitContributionResponse {
	return SubmitContributionResponse{
		Link:          r.Link,
		Analysis:      r.Analysis,
		ShouldHandoff: r.ShouldHandoff,
		Handoff:       r.Handoff,
		Candidate:     r.Candidate,
		NextSteps:     r.NextSteps,
	}
}
