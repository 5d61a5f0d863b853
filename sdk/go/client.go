package buildpasssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Build & Pass HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Chain represents the API chain model (partial).
type Chain struct {
	ID                   string  `json:"id"`
	OriginatorID         string  `json:"originator_id"`
	Title                string  `json:"title"`
	Status               string  `json:"status"`
	CurrentOwnerID       *string `json:"current_owner_id,omitempty"`
	TotalContributors    int     `json:"total_contributors"`
	CompletionPercentage int     `json:"completion_percentage"`
}

// Link represents one contributor's segment of work.
type Link struct {
	ID                   string  `json:"id"`
	ChainID              string  `json:"chain_id"`
	ContributorID        string  `json:"contributor_id"`
	ContributorKind      string  `json:"contributor_kind"`
	Ordinal              int     `json:"ordinal"`
	ContributionType     string  `json:"contribution_type"`
	WorkDescription      string  `json:"work_description"`
	WorkOutput           *string `json:"work_output,omitempty"`
	CompletionPercentage int     `json:"completion_percentage"`
	QualityScore         *int    `json:"quality_score,omitempty"`
	Status               string  `json:"status"`
}

// Handoff represents a pending or resolved handoff request.
type Handoff struct {
	ID                string   `json:"id"`
	ChainID           string   `json:"chain_id"`
	FromContributorID string   `json:"from_contributor_id"`
	ToHumanID         *string  `json:"to_human_id,omitempty"`
	ToAgentID         *string  `json:"to_agent_id,omitempty"`
	RequiredSkills    []string `json:"required_skills"`
	WorkContext       string   `json:"work_context"`
	Urgency           string   `json:"urgency"`
	Status            string   `json:"status"`
}

// Credit represents one link's attributed share of a finished chain.
type Credit struct {
	ID                string   `json:"id"`
	ChainID           string   `json:"chain_id"`
	LinkID            string   `json:"link_id"`
	ContributorID     string   `json:"contributor_id"`
	ContributorKind   string   `json:"contributor_kind"`
	CreditPercentage  int      `json:"credit_percentage"`
	ContributionValue int      `json:"contribution_value"`
	Badges            []string `json:"badges"`
}

// SkillAssessment represents an estimated proficiency in one skill category.
type SkillAssessment struct {
	ContributorID    string `json:"contributor_id"`
	SkillCategory    string `json:"skill_category"`
	ProficiencyLevel int    `json:"proficiency_level"`
	ConfidenceScore  int    `json:"confidence_score"`
	AssessmentMethod string `json:"assessment_method"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ChainID    string `json:"chain_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Task is one unit of the decomposed project idea.
type Task struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	SkillLevel       int    `json:"skill_level"`
	SkillCategory    string `json:"skill_category"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	UserCanDo        bool   `json:"user_can_do"`
}

// StartChainResult is the response to StartChain. YourTasks are the tasks
// the originator can already perform.
type StartChainResult struct {
	Chain     Chain  `json:"chain"`
	Link      Link   `json:"link"`
	AllTasks  []Task `json:"all_tasks"`
	YourTasks []Task `json:"your_tasks"`
}

// SubmitResult is the response to SubmitContribution.
type SubmitResult struct {
	Link          Link     `json:"link"`
	ShouldHandoff bool     `json:"should_handoff"`
	Handoff       *Handoff `json:"handoff,omitempty"`
	NextSteps     string   `json:"next_steps"`
}

// AcceptResult is the response to AcceptHandoff.
type AcceptResult struct {
	Handoff Handoff `json:"handoff"`
	Link    Link    `json:"link"`
	Chain   Chain   `json:"chain"`
}

// ChainHistory is a chain with its full link history.
type ChainHistory struct {
	Chain Chain  `json:"chain"`
	Links []Link `json:"links"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StartChain starts a new build chain from an idea.
func (c *Client) StartChain(ctx context.Context, title, description, projectType, idea string) (StartChainResult, error) {
	body := map[string]any{
		"title":        title,
		"description":  description,
		"project_type": projectType,
		"idea":         idea,
	}
	var resp StartChainResult
	err := c.do(ctx, http.MethodPost, "v1/chains", body, &resp)
	return resp, err
}

// ListChains lists chains, optionally filtered by status.
func (c *Client) ListChains(ctx context.Context, status string) ([]Chain, error) {
	endpoint := "v1/chains"
	if status != "" {
		endpoint = fmt.Sprintf("%s?status=%s", endpoint, url.QueryEscape(status))
	}
	var resp []Chain
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetChain fetches a chain with its full link history.
func (c *Client) GetChain(ctx context.Context, chainID string) (ChainHistory, error) {
	var resp ChainHistory
	err := c.do(ctx, http.MethodGet, c.chainPath(chainID, ""), nil, &resp)
	return resp, err
}

// SubmitContribution submits finished work on the chain's active link.
// workDescription may be empty; the server then uses the link's assigned
// description.
func (c *Client) SubmitContribution(ctx context.Context, chainID, kind, workDescription, workOutput string, timeSpent int) (SubmitResult, error) {
	body := map[string]any{
		"kind":             kind,
		"work_description": workDescription,
		"work_output":      workOutput,
		"time_spent":       timeSpent,
	}
	var resp SubmitResult
	err := c.do(ctx, http.MethodPost, c.chainPath(chainID, "contributions"), body, &resp)
	return resp, err
}

// ListHandoffs returns open handoff requests for a chain.
func (c *Client) ListHandoffs(ctx context.Context, chainID string) ([]Handoff, error) {
	var resp []Handoff
	err := c.do(ctx, http.MethodGet, c.chainPath(chainID, "handoffs"), nil, &resp)
	return resp, err
}

// AcceptHandoff accepts the chain's pending handoff as the caller.
func (c *Client) AcceptHandoff(ctx context.Context, chainID, kind string) (AcceptResult, error) {
	body := map[string]any{"kind": kind}
	var resp AcceptResult
	err := c.do(ctx, http.MethodPost, c.chainPath(chainID, "handoffs/accept"), body, &resp)
	return resp, err
}

// RejectHandoff declines the chain's pending handoff.
func (c *Client) RejectHandoff(ctx context.Context, chainID string) (Handoff, error) {
	var resp Handoff
	err := c.do(ctx, http.MethodPost, c.chainPath(chainID, "handoffs/reject"), struct{}{}, &resp)
	return resp, err
}

// CompleteChain marks a fully built chain completed.
func (c *Client) CompleteChain(ctx context.Context, chainID string) (Chain, error) {
	var resp Chain
	err := c.do(ctx, http.MethodPost, c.chainPath(chainID, "complete"), struct{}{}, &resp)
	return resp, err
}

// CalculateCredits attributes credit for a completed chain.
func (c *Client) CalculateCredits(ctx context.Context, chainID string) ([]Credit, error) {
	var resp []Credit
	err := c.do(ctx, http.MethodPost, c.chainPath(chainID, "credits"), struct{}{}, &resp)
	return resp, err
}

// Credits returns the recorded credits for a chain.
func (c *Client) Credits(ctx context.Context, chainID string) ([]Credit, error) {
	var resp []Credit
	err := c.do(ctx, http.MethodGet, c.chainPath(chainID, "credits"), nil, &resp)
	return resp, err
}

// Skills returns skill assessments for a contributor.
func (c *Client) Skills(ctx context.Context, contributorID string) ([]SkillAssessment, error) {
	var resp []SkillAssessment
	endpoint := fmt.Sprintf("v1/contributors/%s/skills", url.PathEscape(contributorID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns the chain's event log.
func (c *Client) Events(ctx context.Context, chainID string) ([]Event, error) {
	var resp []Event
	err := c.do(ctx, http.MethodGet, c.chainPath(chainID, "events"), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) chainPath(chainID, p string) string {
	chain := url.PathEscape(chainID)
	if p == "" {
		return fmt.Sprintf("v1/chains/%s", chain)
	}
	return fmt.Sprintf("v1/chains/%s/%s", chain, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
