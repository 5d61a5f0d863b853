package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"buildpass/internal/config"
)

// Client is a Service backed by a langchaingo model.
type Client struct {
	model   llms.Model
	timeout time.Duration
}

// NewClient builds a Client from config. The API key is read from the
// environment variable named in cfg.Insight.APIKeyEnv.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	apiKey := os.Getenv(cfg.Insight.APIKeyEnv)
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("insight api key missing: set %s", cfg.Insight.APIKeyEnv)
	}
	opts := []googleai.Option{
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(cfg.Insight.Model),
	}
	if cfg.Insight.MaxTokens > 0 {
		opts = append(opts, googleai.WithDefaultMaxTokens(cfg.Insight.MaxTokens))
	}
	model, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init insight model: %w", err)
	}
	timeout := time.Duration(cfg.Insight.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{model: model, timeout: timeout}, nil
}

const decomposePrompt = `You are a project planner for a relay-style collaboration platform.
A contributor proposes a project idea. Break it into progressive tasks, from
simple to complex, and compare each task against the contributor's current
skills.

Idea:
%s

Contributor skills (category: proficiency 0-100):
%s

Respond with JSON only, no prose, in this exact shape:
{
  "tasks": [
    {
      "title": "...",
      "description": "...",
      "skill_level": 0,
      "skill_category": "...",
      "estimated_minutes": 0,
      "user_can_do": false
    }
  ]
}
skill_level is an integer 0-100. Include both tasks the contributor can do now
(user_can_do true) and tasks that need higher skills, so work can be passed on.`

const analyzePrompt = `You are reviewing one finished segment of a collaborative project.

Work description:
%s

Work output:
%s

Respond with JSON only, no prose, in this exact shape:
{
  "quality_score": 0,
  "completion_percentage": 0,
  "skills_demonstrated": ["..."],
  "next_skills_needed": ["..."],
  "next_skill_level": 0,
  "handoff_recommended": false,
  "handoff_reason": "..."
}
Scores and levels are integers 0-100. next_skill_level is the proficiency the
next contributor needs for the remaining work. Recommend handoff when the
remaining work needs skills the segment did not demonstrate.`

type decompositionWire struct {
	Tasks []Task `json:"tasks"`
}

type analysisWire struct {
	QualityScore         *int     `json:"quality_score"`
	CompletionPercentage *int     `json:"completion_percentage"`
	SkillsDemonstrated   []string `json:"skills_demonstrated"`
	NextSkillsNeeded     []string `json:"next_skills_needed"`
	NextSkillLevel       *int     `json:"next_skill_level"`
	HandoffRecommended   *bool    `json:"handoff_recommended"`
	HandoffReason        string   `json:"handoff_reason"`
}

func (c *Client) Decompose(ctx context.Context, idea string, profile map[string]int) (Decomposition, error) {
	var skills strings.Builder
	for category, level := range profile {
		fmt.Fprintf(&skills, "- %s: %d\n", category, level)
	}
	if skills.Len() == 0 {
		skills.WriteString("(none assessed)\n")
	}
	raw, err := c.generate(ctx, fmt.Sprintf(decomposePrompt, idea, skills.String()))
	if err != nil {
		return Decomposition{}, err
	}
	var wire decompositionWire
	if err := decodeModelJSON(raw, &wire); err != nil {
		return Decomposition{}, err
	}
	if len(wire.Tasks) == 0 {
		return Decomposition{}, fmt.Errorf("%w: decomposition has no tasks", ErrContract)
	}
	out := Decomposition{Tasks: wire.Tasks}
	for i := range out.Tasks {
		if out.Tasks[i].Title == "" || out.Tasks[i].SkillCategory == "" {
			return Decomposition{}, fmt.Errorf("%w: task missing title or category", ErrContract)
		}
		out.Tasks[i].SkillLevel = clampScore(out.Tasks[i].SkillLevel)
	}
	return out, nil
}

func (c *Client) AnalyzeContribution(ctx context.Context, description, output string) (Analysis, error) {
	raw, err := c.generate(ctx, fmt.Sprintf(analyzePrompt, description, output))
	if err != nil {
		return Analysis{}, err
	}
	var wire analysisWire
	if err := decodeModelJSON(raw, &wire); err != nil {
		return Analysis{}, err
	}
	if wire.QualityScore == nil || wire.CompletionPercentage == nil || wire.NextSkillLevel == nil || wire.HandoffRecommended == nil {
		return Analysis{}, fmt.Errorf("%w: analysis missing required fields", ErrContract)
	}
	out := Analysis{
		QualityScore:         clampScore(*wire.QualityScore),
		CompletionPercentage: clampScore(*wire.CompletionPercentage),
		SkillsDemonstrated:   wire.SkillsDemonstrated,
		NextSkillsNeeded:     wire.NextSkillsNeeded,
		NextSkillLevel:       clampScore(*wire.NextSkillLevel),
		HandoffRecommended:   *wire.HandoffRecommended,
		HandoffReason:        wire.HandoffReason,
	}
	if out.HandoffRecommended && strings.TrimSpace(out.HandoffReason) == "" {
		out.HandoffReason = "additional skills required"
	}
	return out, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	resp, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt)
	if err != nil {
		log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("insight generation failed")
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	log.Debug().Dur("elapsed", time.Since(start)).Int("response_len", len(resp)).Msg("insight generation done")
	return resp, nil
}

// decodeModelJSON strips markdown fences, then falls back to jsonrepair when
// the payload is not valid JSON as returned.
func decodeModelJSON(raw string, v any) error {
	text := extractJSON(raw)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return fmt.Errorf("%w: unparseable model output", ErrContract)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: unparseable model output after repair", ErrContract)
	}
	log.Debug().Msg("insight output repaired before decode")
	return nil
}

func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if i := strings.Index(text, "```json"); i >= 0 {
		text = text[i+len("```json"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	} else if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	text = strings.TrimSpace(text)
	// Trim any prose around the outermost object.
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}
	return text
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
