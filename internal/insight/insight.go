// Package insight calls the external language-model service that decomposes
// project ideas into skill requirements and evaluates submitted work.
package insight

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the model could not be reached in time.
var ErrUnavailable = errors.New("insight service unavailable")

// ErrContract reports that the model answered, but with output that does not
// match the agreed response shape even after repair.
var ErrContract = errors.New("insight response violates contract")

// Decomposition breaks a fresh project idea into progressive tasks, each
// annotated with whether the originator can already perform it.
type Decomposition struct {
	Tasks []Task `json:"tasks"`
}

// Task is one unit of the decomposed project.
type Task struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	SkillLevel       int    `json:"skill_level"`
	SkillCategory    string `json:"skill_category"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	UserCanDo        bool   `json:"user_can_do"`
}

// Analysis is the model's evaluation of one completed work segment.
// NextSkillLevel is the proficiency the following contributor needs and
// drives matcher eligibility.
type Analysis struct {
	QualityScore         int      `json:"quality_score"`
	CompletionPercentage int      `json:"completion_percentage"`
	SkillsDemonstrated   []string `json:"skills_demonstrated"`
	NextSkillsNeeded     []string `json:"next_skills_needed"`
	NextSkillLevel       int      `json:"next_skill_level"`
	HandoffRecommended   bool     `json:"handoff_recommended"`
	HandoffReason        string   `json:"handoff_reason"`
}

// Service is the evaluation backend. Implementations must be safe for
// concurrent use.
type Service interface {
	// Decompose breaks an idea into required skills given the originator's
	// assessed proficiency per category.
	Decompose(ctx context.Context, idea string, profile map[string]int) (Decomposition, error)
	// AnalyzeContribution scores a finished work segment and recommends
	// whether the chain should be handed off.
	AnalyzeContribution(ctx context.Context, description, output string) (Analysis, error)
}
