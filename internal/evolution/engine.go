package evolution

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/skillvault/internal/skill"
	"go.uber.org/zap"
)

// Config controls the lifecycle thresholds. Every knob is independently
// settable; zero values take the defaults.
type Config struct {
	PromotionMinUsage  int     `json:"promotion_min_usage"`  // default 3
	PromotionThreshold float64 `json:"promotion_threshold"`  // default 0.7
	DemotionMinUsage   int     `json:"demotion_min_usage"`   // default 5
	DemotionThreshold  float64 `json:"demotion_threshold"`   // default 0.4
	PruneMinUsage      int     `json:"prune_min_usage"`      // default 10
	PruneThreshold     float64 `json:"prune_threshold"`      // default 0.2
	MaxUnusedAgeDays   int     `json:"max_unused_age_days"`  // default 30
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		PromotionMinUsage:  3,
		PromotionThreshold: 0.7,
		DemotionMinUsage:   5,
		DemotionThreshold:  0.4,
		PruneMinUsage:      10,
		PruneThreshold:     0.2,
		MaxUnusedAgeDays:   30,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PromotionMinUsage <= 0 {
		c.PromotionMinUsage = d.PromotionMinUsage
	}
	if c.PromotionThreshold <= 0 {
		c.PromotionThreshold = d.PromotionThreshold
	}
	if c.DemotionMinUsage <= 0 {
		c.DemotionMinUsage = d.DemotionMinUsage
	}
	if c.DemotionThreshold <= 0 {
		c.DemotionThreshold = d.DemotionThreshold
	}
	if c.PruneMinUsage <= 0 {
		c.PruneMinUsage = d.PruneMinUsage
	}
	if c.PruneThreshold <= 0 {
		c.PruneThreshold = d.PruneThreshold
	}
	if c.MaxUnusedAgeDays <= 0 {
		c.MaxUnusedAgeDays = d.MaxUnusedAgeDays
	}
	return c
}

// Engine runs the promote/demote/prune lifecycle over the store.
type Engine struct {
	store  skill.Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time // test seam
}

// NewEngine creates an evolution engine; zero config fields take defaults.
func NewEngine(store skill.Store, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{store: store, cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// Action records one lifecycle transition.
type Action struct {
	SkillID        string       `json:"skill_id"`
	SkillName      string       `json:"skill_name"`
	Action         string       `json:"action"` // "promote", "demote", "prune"
	PreviousStatus skill.Status `json:"previous_status"`
	NewStatus      skill.Status `json:"new_status"`
	SuccessRate    *float64     `json:"success_rate,omitempty"`
	UsageCount     int          `json:"usage_count"`
	Reason         string       `json:"reason"`
}

// Result summarizes one EvolveLibrary pass.
type Result struct {
	Promoted       []Action  `json:"promoted"`
	Demoted        []Action  `json:"demoted"`
	Pruned         []Action  `json:"pruned"`
	Unchanged      int       `json:"unchanged"`
	TotalEvaluated int       `json:"total_evaluated"`
	DurationMs     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// EvolveLibrary runs promote, then demote, then prune, strictly in that
// order, as one sequential pass. Later phases observe the post-promotion
// state; the pass is not iterated to a fixed point.
func (e *Engine) EvolveLibrary(ctx context.Context) (*Result, error) {
	start := e.now()

	evaluated, err := e.store.List(ctx, &skill.Filter{
		Status: []skill.Status{skill.StatusDraft, skill.StatusActive},
	})
	if err != nil {
		return nil, fmt.Errorf("evolve: list skills: %w", err)
	}

	promoted, err := e.PromoteSkills(ctx)
	if err != nil {
		return nil, err
	}
	demoted, err := e.DemoteSkills(ctx)
	if err != nil {
		return nil, err
	}
	pruned, err := e.PruneSkills(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Promoted:       promoted,
		Demoted:        demoted,
		Pruned:         pruned,
		TotalEvaluated: len(evaluated),
		Timestamp:      start.UTC(),
	}
	res.Unchanged = res.TotalEvaluated - len(promoted) - len(demoted) - len(pruned)
	if res.Unchanged < 0 {
		res.Unchanged = 0
	}
	res.DurationMs = e.now().Sub(start).Milliseconds()

	e.logger.Info("evolution pass complete",
		zap.Int("evaluated", res.TotalEvaluated),
		zap.Int("promoted", len(promoted)),
		zap.Int("demoted", len(demoted)),
		zap.Int("pruned", len(pruned)))
	return res, nil
}

// PromoteSkills moves qualifying drafts to active. A skill with no
// recorded success rate counts as 0 here: never promoted on no evidence.
func (e *Engine) PromoteSkills(ctx context.Context) ([]Action, error) {
	drafts, err := e.store.List(ctx, &skill.Filter{Status: []skill.Status{skill.StatusDraft}})
	if err != nil {
		return nil, fmt.Errorf("promote: list drafts: %w", err)
	}
	var actions []Action
	for _, s := range drafts {
		rate := rateOr(s, 0)
		if s.UsageCount < e.cfg.PromotionMinUsage || rate < e.cfg.PromotionThreshold {
			continue
		}
		s.Status = skill.StatusActive
		if err := e.store.Update(ctx, s); err != nil {
			return actions, fmt.Errorf("promote %s: %w", s.ID, err)
		}
		actions = append(actions, Action{
			SkillID:        s.ID,
			SkillName:      s.Name,
			Action:         "promote",
			PreviousStatus: skill.StatusDraft,
			NewStatus:      skill.StatusActive,
			SuccessRate:    s.SuccessRate,
			UsageCount:     s.UsageCount,
			Reason: fmt.Sprintf("usage %d >= %d and success rate %.2f >= %.2f",
				s.UsageCount, e.cfg.PromotionMinUsage, rate, e.cfg.PromotionThreshold),
		})
	}
	return actions, nil
}

// DemoteSkills moves failing actives back to draft. A skill with no
// recorded success rate counts as 1 here: assumed good until proven
// otherwise. The asymmetry with promotion is deliberate.
func (e *Engine) DemoteSkills(ctx context.Context) ([]Action, error) {
	actives, err := e.store.List(ctx, &skill.Filter{Status: []skill.Status{skill.StatusActive}})
	if err != nil {
		return nil, fmt.Errorf("demote: list actives: %w", err)
	}
	var actions []Action
	for _, s := range actives {
		rate := rateOr(s, 1)
		if s.UsageCount < e.cfg.DemotionMinUsage || rate >= e.cfg.DemotionThreshold {
			continue
		}
		s.Status = skill.StatusDraft
		if err := e.store.Update(ctx, s); err != nil {
			return actions, fmt.Errorf("demote %s: %w", s.ID, err)
		}
		actions = append(actions, Action{
			SkillID:        s.ID,
			SkillName:      s.Name,
			Action:         "demote",
			PreviousStatus: skill.StatusActive,
			NewStatus:      skill.StatusDraft,
			SuccessRate:    s.SuccessRate,
			UsageCount:     s.UsageCount,
			Reason: fmt.Sprintf("usage %d >= %d and success rate %.2f < %.2f",
				s.UsageCount, e.cfg.DemotionMinUsage, rate, e.cfg.DemotionThreshold),
		})
	}
	return actions, nil
}

// PruneSkills archives skills that are proven bad or stale. Archival is
// soft; no record is deleted. A skill never used (no LastUsed) is exempt
// from the staleness clause.
func (e *Engine) PruneSkills(ctx context.Context) ([]Action, error) {
	candidates, err := e.store.List(ctx, &skill.Filter{
		Status: []skill.Status{skill.StatusDraft, skill.StatusActive},
	})
	if err != nil {
		return nil, fmt.Errorf("prune: list skills: %w", err)
	}
	now := e.now()
	var actions []Action
	for _, s := range candidates {
		reason := ""
		if s.UsageCount >= e.cfg.PruneMinUsage && rateOr(s, 1) < e.cfg.PruneThreshold {
			reason = fmt.Sprintf("usage %d >= %d with success rate %.2f < %.2f",
				s.UsageCount, e.cfg.PruneMinUsage, rateOr(s, 1), e.cfg.PruneThreshold)
		} else if s.LastUsed != nil {
			days := now.Sub(*s.LastUsed).Hours() / 24
			if days > float64(e.cfg.MaxUnusedAgeDays) && s.UsageCount < 3 {
				reason = fmt.Sprintf("unused for %.0f days with usage %d < 3", days, s.UsageCount)
			}
		}
		if reason == "" {
			continue
		}
		prev := s.Status
		if err := e.store.Archive(ctx, s.ID); err != nil {
			return actions, fmt.Errorf("prune %s: %w", s.ID, err)
		}
		actions = append(actions, Action{
			SkillID:        s.ID,
			SkillName:      s.Name,
			Action:         "prune",
			PreviousStatus: prev,
			NewStatus:      skill.StatusArchived,
			SuccessRate:    s.SuccessRate,
			UsageCount:     s.UsageCount,
			Reason:         reason,
		})
	}
	return actions, nil
}

func rateOr(s *skill.Skill, unset float64) float64 {
	if s.SuccessRate == nil {
		return unset
	}
	return *s.SuccessRate
}
