package engine

import (
	"context"
	"strings"

	"buildpass/internal/domain"
)

// FindNextContributor picks the best available contributor for a set of
// required skills. Humans are considered first; idle agents are scanned when
// no human scores at least the configured fallback threshold, and an agent
// wins only with a strictly better score. Returns nil when nobody matches.
func (e Engine) FindNextContributor(ctx context.Context, requiredSkills []string, targetLevel int) (*domain.Candidate, error) {
	if len(requiredSkills) == 0 {
		return nil, nil
	}
	profiles, err := e.Repo.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	best := bestHuman(profiles, requiredSkills, targetLevel, e.Config.Matcher.EligibilityMargin)
	bestScore := 0
	if best != nil {
		bestScore = best.MatchScore
	}
	if bestScore < e.Config.Matcher.AgentFallbackBelow {
		agents, err := e.Repo.ListAgents(ctx, "idle")
		if err != nil {
			return nil, err
		}
		if agent := bestAgent(agents, requiredSkills, bestScore); agent != nil {
			best = agent
		}
	}
	return best, nil
}

// skillsMatch reports whether a tag covers a required skill. The comparison
// is case-insensitive substring in either direction, so "frontend" matches a
// "frontend development" tag and vice versa.
func skillsMatch(tag, required string) bool {
	t := strings.ToLower(tag)
	r := strings.ToLower(required)
	return strings.Contains(t, r) || strings.Contains(r, t)
}

func matchScore(tags, required []string) int {
	if len(required) == 0 {
		return 0
	}
	matched := 0
	for _, req := range required {
		for _, tag := range tags {
			if skillsMatch(tag, req) {
				matched++
				break
			}
		}
	}
	return matched * 100 / len(required)
}

// bestHuman keeps the first-found highest scorer whose average of cognitive
// and technical scores reaches targetLevel minus the eligibility margin.
func bestHuman(profiles []domain.HumanProfile, required []string, targetLevel, margin int) *domain.Candidate {
	var best *domain.Candidate
	bestScore := 0
	for _, p := range profiles {
		score := matchScore(p.SkillTags, required)
		avg := (p.CognitiveScore + p.TechnicalScore) / 2
		if score > bestScore && avg >= targetLevel-margin {
			bestScore = score
			best = &domain.Candidate{
				Kind:       domain.KindHuman,
				ID:         p.ContributorID,
				Name:       p.DisplayName,
				MatchScore: score,
			}
		}
	}
	return best
}

// bestAgent scans idle agents with no level filter; it must strictly beat the
// score to win over an already found human.
func bestAgent(agents []domain.Agent, required []string, scoreToBeat int) *domain.Candidate {
	var best *domain.Candidate
	bestScore := scoreToBeat
	for _, a := range agents {
		score := matchScore(a.Capabilities, required)
		if score > bestScore {
			bestScore = score
			best = &domain.Candidate{
				Kind:       domain.KindAgent,
				ID:         a.ID,
				Name:       a.Name,
				MatchScore: score,
			}
		}
	}
	return best
}
