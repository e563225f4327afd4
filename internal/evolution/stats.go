package evolution

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nidhogg/skillvault/internal/skill"
	"go.uber.org/zap"
)

// UpdateSkillStats folds one observation into a skill with a usage-scaled
// EMA: alpha shrinks as usage grows (floor 0.1), and an unset rate starts
// from the neutral 0.5 prior. This is a different formula from the
// retrieval engine's fixed-alpha RecordUsage; both are kept on purpose.
// Returns (nil, nil) for an unknown id.
func (e *Engine) UpdateSkillStats(ctx context.Context, id string, success bool) (*skill.Skill, error) {
	s, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update stats %s: %w", id, err)
	}
	if s == nil {
		return nil, nil
	}

	var observed float64
	if success {
		observed = 1
	}
	oldRate := 0.5
	if s.SuccessRate != nil {
		oldRate = *s.SuccessRate
	}
	newCount := s.UsageCount + 1
	alpha := math.Max(0.1, 1/(1+math.Log(float64(newCount)+1)))
	newRate := alpha*observed + (1-alpha)*oldRate

	s.SuccessRate = &newRate
	s.UsageCount = newCount
	now := e.now().UTC()
	s.LastUsed = &now

	if err := e.store.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("update stats %s: %w", id, err)
	}
	e.logger.Debug("skill stats updated",
		zap.String("skill", id),
		zap.Float64("alpha", alpha),
		zap.Float64("success_rate", newRate),
		zap.Int("usage_count", newCount))
	return s, nil
}

// StatUpdate is one entry of a BatchUpdateStats call.
type StatUpdate struct {
	SkillID string `json:"skill_id"`
	Success bool   `json:"success"`
}

// BatchUpdateStats applies UpdateSkillStats sequentially and returns the
// number of skills actually found and updated.
func (e *Engine) BatchUpdateStats(ctx context.Context, updates []StatUpdate) (int, error) {
	updated := 0
	for _, u := range updates {
		s, err := e.UpdateSkillStats(ctx, u.SkillID, u.Success)
		if err != nil {
			return updated, err
		}
		if s != nil {
			updated++
		}
	}
	return updated, nil
}

// SkillSummary is a compact view of a skill used in reports.
type SkillSummary struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Status      skill.Status `json:"status"`
	SuccessRate *float64     `json:"success_rate,omitempty"`
	UsageCount  int          `json:"usage_count"`
}

// Report is the library health snapshot produced by GetEvolutionReport.
type Report struct {
	TotalSkills          int                  `json:"total_skills"`
	ByStatus             map[skill.Status]int `json:"by_status"`
	AtRiskOfDemotion     []SkillSummary       `json:"at_risk_of_demotion"`
	EligibleForPromotion []SkillSummary       `json:"eligible_for_promotion"`
	AtRiskOfPruning      []SkillSummary       `json:"at_risk_of_pruning"`
	TopPerformers        []SkillSummary       `json:"top_performers"`
	RecentlyUsed         []SkillSummary       `json:"recently_used"`
	Unused               []SkillSummary       `json:"unused"`
	AverageSuccessRate   float64              `json:"average_success_rate"`
	AverageUsageCount    float64              `json:"average_usage_count"`
}

// GetEvolutionReport surveys the library. The at-risk and eligible lists
// use relaxed thresholds (half the usage minimum, rate bounds widened by
// 1.5x or 0.8x) to surface skills approaching a transition before they
// cross it.
func (e *Engine) GetEvolutionReport(ctx context.Context) (*Report, error) {
	all, err := e.store.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("report: list skills: %w", err)
	}

	r := &Report{
		TotalSkills:          len(all),
		ByStatus:             make(map[skill.Status]int),
		AtRiskOfDemotion:     []SkillSummary{},
		EligibleForPromotion: []SkillSummary{},
		AtRiskOfPruning:      []SkillSummary{},
		TopPerformers:        []SkillSummary{},
		RecentlyUsed:         []SkillSummary{},
		Unused:               []SkillSummary{},
	}

	now := e.now()
	var rateSum float64
	var rated, usageSum int
	var performers []*skill.Skill

	for _, s := range all {
		r.ByStatus[s.Status]++
		usageSum += s.UsageCount
		if s.SuccessRate != nil {
			rateSum += *s.SuccessRate
			rated++
		}

		switch s.Status {
		case skill.StatusActive:
			if s.UsageCount >= e.cfg.DemotionMinUsage/2 && rateOr(s, 1) < e.cfg.DemotionThreshold*1.5 {
				r.AtRiskOfDemotion = append(r.AtRiskOfDemotion, summarize(s))
			}
		case skill.StatusDraft:
			if s.UsageCount >= e.cfg.PromotionMinUsage/2 && rateOr(s, 0) >= e.cfg.PromotionThreshold*0.8 {
				r.EligibleForPromotion = append(r.EligibleForPromotion, summarize(s))
			}
		}
		if s.Status == skill.StatusActive || s.Status == skill.StatusDraft {
			if s.UsageCount >= e.cfg.PruneMinUsage/2 && rateOr(s, 1) < e.cfg.PruneThreshold*1.5 {
				r.AtRiskOfPruning = append(r.AtRiskOfPruning, summarize(s))
			}
			if s.UsageCount >= 2 {
				performers = append(performers, s)
			}
		}

		switch {
		case s.LastUsed == nil:
			r.Unused = append(r.Unused, summarize(s))
		case now.Sub(*s.LastUsed) <= 7*24*time.Hour:
			r.RecentlyUsed = append(r.RecentlyUsed, summarize(s))
		case now.Sub(*s.LastUsed) > 30*24*time.Hour && s.UsageCount < 3:
			r.Unused = append(r.Unused, summarize(s))
		}
	}

	sort.Slice(performers, func(i, j int) bool {
		ri, rj := rateOr(performers[i], 0), rateOr(performers[j], 0)
		if ri != rj {
			return ri > rj
		}
		return performers[i].UsageCount > performers[j].UsageCount
	})
	if len(performers) > 10 {
		performers = performers[:10]
	}
	for _, s := range performers {
		r.TopPerformers = append(r.TopPerformers, summarize(s))
	}

	if rated > 0 {
		r.AverageSuccessRate = rateSum / float64(rated)
	}
	if len(all) > 0 {
		r.AverageUsageCount = float64(usageSum) / float64(len(all))
	}
	return r, nil
}

// GetByPerformance lists active skills with recorded usage, ordered by
// success rate.
func (e *Engine) GetByPerformance(ctx context.Context, limit int, ascending bool) ([]*skill.Skill, error) {
	actives, err := e.store.List(ctx, &skill.Filter{Status: []skill.Status{skill.StatusActive}})
	if err != nil {
		return nil, fmt.Errorf("performance: list actives: %w", err)
	}
	var used []*skill.Skill
	for _, s := range actives {
		if s.UsageCount > 0 {
			used = append(used, s)
		}
	}
	sort.Slice(used, func(i, j int) bool {
		ri, rj := rateOr(used[i], 0), rateOr(used[j], 0)
		if ascending {
			return ri < rj
		}
		return ri > rj
	})
	if limit > 0 && len(used) > limit {
		used = used[:limit]
	}
	return used, nil
}

func summarize(s *skill.Skill) SkillSummary {
	return SkillSummary{
		ID:          s.ID,
		Name:        s.Name,
		Status:      s.Status,
		SuccessRate: s.SuccessRate,
		UsageCount:  s.UsageCount,
	}
}
