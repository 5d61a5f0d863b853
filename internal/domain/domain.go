package domain

// ContributorKind distinguishes human contributors from automated agents.
type ContributorKind string

const (
	KindHuman ContributorKind = "human"
	KindAgent ContributorKind = "agent"
)

// Chain is one project's end-to-end collaborative build.
type Chain struct {
	ID                   string  `json:"id"`
	OriginatorID         string  `json:"originator_id"`
	Title                string  `json:"title"`
	Description          string  `json:"description"`
	ProjectType          string  `json:"project_type"`
	Status               string  `json:"status" enum:"in_progress,completed,abandoned"`
	CurrentOwnerID       *string `json:"current_owner_id,omitempty"`
	TotalContributors    int     `json:"total_contributors"`
	CompletionPercentage int     `json:"completion_percentage"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
	CompletedAt          *string `json:"completed_at,omitempty" format:"date-time"`
}

// Link is one contributor's segment of work within a chain.
type Link struct {
	ID                   string          `json:"id"`
	ChainID              string          `json:"chain_id"`
	ContributorID        string          `json:"contributor_id"`
	ContributorKind      ContributorKind `json:"contributor_kind" enum:"human,agent"`
	Ordinal              int             `json:"ordinal"`
	ContributionType     string          `json:"contribution_type"`
	SkillLevelRequired   int             `json:"skill_level_required"`
	WorkDescription      string          `json:"work_description"`
	WorkOutput           *string         `json:"work_output,omitempty"`
	TimeSpent            int             `json:"time_spent"`
	CompletionPercentage int             `json:"completion_percentage"`
	QualityScore         *int            `json:"quality_score,omitempty"`
	Status               string          `json:"status" enum:"in_progress,completed,handed_off"`
	HandoffReason        *string         `json:"handoff_reason,omitempty"`
	CreatedAt            string          `json:"created_at" format:"date-time"`
	CompletedAt          *string         `json:"completed_at,omitempty" format:"date-time"`
}

// SkillAssessment is a contributor's estimated proficiency in one skill category.
type SkillAssessment struct {
	ContributorID    string   `json:"contributor_id"`
	SkillCategory    string   `json:"skill_category"`
	ProficiencyLevel int      `json:"proficiency_level"`
	ConfidenceScore  int      `json:"confidence_score"`
	AssessmentMethod string   `json:"assessment_method" enum:"observed,tested,self_reported"`
	Evidence         []string `json:"evidence,omitempty"`
	LastAssessedAt   string   `json:"last_assessed_at" format:"date-time"`
}

// HandoffRequest asks a next contributor to pick up unfinished work.
// At most one of ToHumanID/ToAgentID is set; neither means the request is open.
type HandoffRequest struct {
	ID                string   `json:"id"`
	ChainID           string   `json:"chain_id"`
	FromContributorID string   `json:"from_contributor_id"`
	ToHumanID         *string  `json:"to_human_id,omitempty"`
	ToAgentID         *string  `json:"to_agent_id,omitempty"`
	RequiredSkills    []string `json:"required_skills"`
	WorkContext       string   `json:"work_context"`
	Urgency           string   `json:"urgency" enum:"low,medium,high"`
	Status            string   `json:"status" enum:"pending,accepted,rejected,auto_assigned"`
	AcceptedBy        *string  `json:"accepted_by,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	ResolvedAt        *string  `json:"resolved_at,omitempty" format:"date-time"`
}

// Credit is the final attribution of one link's share of the finished project.
type Credit struct {
	ID                string          `json:"id"`
	ChainID           string          `json:"chain_id"`
	LinkID            string          `json:"link_id"`
	ContributorID     string          `json:"contributor_id"`
	ContributorKind   ContributorKind `json:"contributor_kind" enum:"human,agent"`
	CreditPercentage  int             `json:"credit_percentage"`
	ContributionValue int             `json:"contribution_value"`
	Badges            []string        `json:"badges"`
	PortfolioEligible bool            `json:"portfolio_eligible"`
	CreatedAt         string          `json:"created_at" format:"date-time"`
}

// HumanProfile is a matcher candidate backed by a registered person.
type HumanProfile struct {
	ContributorID  string   `json:"contributor_id"`
	DisplayName    string   `json:"display_name"`
	SkillTags      []string `json:"skill_tags"`
	CognitiveScore int      `json:"cognitive_score"`
	TechnicalScore int      `json:"technical_score"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
}

// Agent is an automated contributor with declared capability tags.
type Agent struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Status           string   `json:"status" enum:"idle,active,busy,offline"`
	Capabilities     []string `json:"capabilities"`
	PerformanceScore int      `json:"performance_score"`
	TasksCompleted   int      `json:"tasks_completed"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
	UpdatedAt        string   `json:"updated_at" format:"date-time"`
}

// Candidate is a matcher result: the best available next contributor.
type Candidate struct {
	Kind       ContributorKind `json:"kind" enum:"human,agent"`
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	MatchScore int             `json:"match_score"`
}

// Event is one entry in the append-only chain event log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ChainID    string `json:"chain_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates SDK and automation callers against the HTTP API.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
