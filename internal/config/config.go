package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models buildpass.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"project"`
	Links struct {
		Ideation    LinkPolicy `yaml:"ideation"`
		Development LinkPolicy `yaml:"development"`
	} `yaml:"links"`
	Skills struct {
		ReinforceProficiency int `yaml:"reinforce_proficiency"`
		ReinforceConfidence  int `yaml:"reinforce_confidence"`
		InitialProficiency   int `yaml:"initial_proficiency"`
		InitialConfidence    int `yaml:"initial_confidence"`
	} `yaml:"skills"`
	Matcher struct {
		EligibilityMargin  int `yaml:"eligibility_margin"`
		AgentFallbackBelow int `yaml:"agent_fallback_below"`
	} `yaml:"matcher"`
	Insight struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		APIKeyEnv string `yaml:"api_key_env"`
		MaxTokens int    `yaml:"max_tokens"`
		TimeoutMS int    `yaml:"timeout_ms"`
	} `yaml:"insight"`
	Server struct {
		Addr         string `yaml:"addr"`
		JWTSecretEnv string `yaml:"jwt_secret_env"`
	} `yaml:"server"`
}

// LinkPolicy sets the default skill bar and credited completion for one link type.
type LinkPolicy struct {
	SkillLevel           int `yaml:"skill_level"`
	CompletionPercentage int `yaml:"completion_percentage"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create with bp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the workspace config, or defaults if buildpass.yml is absent.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(""), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.Kind != "" && c.Project.Kind != "build-pass" {
		return fmt.Errorf("config.project.kind must be 'build-pass'")
	}
	check := func(name string, v, lo, hi int) error {
		if v < lo || v > hi {
			return fmt.Errorf("config.%s must be between %d and %d", name, lo, hi)
		}
		return nil
	}
	if err := check("links.ideation.skill_level", c.Links.Ideation.SkillLevel, 0, 100); err != nil {
		return err
	}
	if err := check("links.ideation.completion_percentage", c.Links.Ideation.CompletionPercentage, 0, 100); err != nil {
		return err
	}
	if err := check("links.development.skill_level", c.Links.Development.SkillLevel, 0, 100); err != nil {
		return err
	}
	if err := check("links.development.completion_percentage", c.Links.Development.CompletionPercentage, 0, 100); err != nil {
		return err
	}
	if err := check("skills.reinforce_proficiency", c.Skills.ReinforceProficiency, 0, 100); err != nil {
		return err
	}
	if err := check("skills.reinforce_confidence", c.Skills.ReinforceConfidence, 0, 100); err != nil {
		return err
	}
	if err := check("matcher.eligibility_margin", c.Matcher.EligibilityMargin, 0, 100); err != nil {
		return err
	}
	if err := check("matcher.agent_fallback_below", c.Matcher.AgentFallbackBelow, 0, 100); err != nil {
		return err
	}
	if c.Insight.MaxTokens < 0 {
		return fmt.Errorf("config.insight.max_tokens must not be negative")
	}
	if c.Insight.TimeoutMS < 0 {
		return fmt.Errorf("config.insight.timeout_ms must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "buildpass.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, projectID)), &cfg)
	cfg.Project.ID = projectID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  kind: build-pass

links:
  ideation:
    skill_level: 10
    completion_percentage: 5
  development:
    skill_level: 60
    completion_percentage: 20

skills:
  reinforce_proficiency: 5
  reinforce_confidence: 10
  initial_proficiency: 40
  initial_confidence: 70

matcher:
  eligibility_margin: 20
  agent_fallback_below: 60

insight:
  provider: googleai
  model: gemini-1.5-flash
  api_key_env: BUILDPASS_INSIGHT_API_KEY
  max_tokens: 2048
  timeout_ms: 30000

server:
  addr: 127.0.0.1:8787
  jwt_secret_env: BUILDPASS_JWT_SECRET
`
