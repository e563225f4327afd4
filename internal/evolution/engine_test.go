package evolution

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/skillvault/internal/skill"
	"github.com/nidhogg/skillvault/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return NewEngine(mem, Config{}, zap.NewNop()), mem
}

func seed(t *testing.T, m *store.Memory, name string, status skill.Status, usage int, rate *float64) *skill.Skill {
	t.Helper()
	s := skill.New(name, "desc for "+name, "code", skill.CategoryShell, skill.Options{Status: status})
	s.UsageCount = usage
	s.SuccessRate = rate
	if err := m.Add(context.Background(), s); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return s
}

func ptr(v float64) *float64 { return &v }

func TestPromoteSkills(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()

	good := seed(t, m, "Good Draft", skill.StatusDraft, 3, ptr(0.8))
	seed(t, m, "Young Draft", skill.StatusDraft, 1, ptr(0.9))
	seed(t, m, "Weak Draft", skill.StatusDraft, 5, ptr(0.6))
	seed(t, m, "Unrated Draft", skill.StatusDraft, 5, nil)

	actions, err := e.PromoteSkills(ctx)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if len(actions) != 1 || actions[0].SkillID != good.ID {
		t.Fatalf("got %+v, want only Good Draft promoted", actions)
	}
	if actions[0].PreviousStatus != skill.StatusDraft || actions[0].NewStatus != skill.StatusActive {
		t.Errorf("bad transition: %+v", actions[0])
	}

	got, _ := m.Get(ctx, good.ID)
	if got.Status != skill.StatusActive {
		t.Errorf("status %q, want active", got.Status)
	}
}

func TestDemoteSkills(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()

	bad := seed(t, m, "Bad Active", skill.StatusActive, 10, ptr(0.2))
	seed(t, m, "Fine Active", skill.StatusActive, 10, ptr(0.8))
	seed(t, m, "Young Active", skill.StatusActive, 2, ptr(0.1))
	// No recorded rate counts as 1 for demotion: never demoted.
	seed(t, m, "Unrated Active", skill.StatusActive, 20, nil)

	actions, err := e.DemoteSkills(ctx)
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	if len(actions) != 1 || actions[0].SkillID != bad.ID {
		t.Fatalf("got %+v, want only Bad Active demoted", actions)
	}

	got, _ := m.Get(ctx, bad.ID)
	if got.Status != skill.StatusDraft {
		t.Errorf("status %q, want draft", got.Status)
	}
}

func TestPruneSkillsByFailure(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()

	doomed := seed(t, m, "Doomed", skill.StatusActive, 15, ptr(0.1))
	seed(t, m, "Borderline", skill.StatusActive, 15, ptr(0.2)) // rate == threshold, kept
	seed(t, m, "Light Use", skill.StatusActive, 5, ptr(0.1))
	seed(t, m, "Unrated Heavy", skill.StatusActive, 15, nil)

	actions, err := e.PruneSkills(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(actions) != 1 || actions[0].SkillID != doomed.ID {
		t.Fatalf("got %+v, want only Doomed pruned", actions)
	}

	got, _ := m.Get(ctx, doomed.ID)
	if got.Status != skill.StatusArchived {
		t.Errorf("status %q, want archived", got.Status)
	}
	// Archival is soft.
	if n, _ := m.Count(ctx); n != 4 {
		t.Errorf("count %d, want 4", n)
	}
}

func TestPruneSkillsByStaleness(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-45 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-2 * 24 * time.Hour)

	stale := seed(t, m, "Stale", skill.StatusActive, 2, ptr(0.9))
	stale.LastUsed = &old
	busy := seed(t, m, "Stale But Busy", skill.StatusActive, 8, ptr(0.9))
	busy.LastUsed = &old
	fresh := seed(t, m, "Fresh", skill.StatusActive, 1, ptr(0.9))
	fresh.LastUsed = &recent
	for _, s := range []*skill.Skill{stale, busy, fresh} {
		if err := m.Update(ctx, s); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	// Never used at all: exempt from the staleness clause.
	seed(t, m, "Never Used", skill.StatusActive, 0, nil)

	actions, err := e.PruneSkills(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(actions) != 1 || actions[0].SkillID != stale.ID {
		t.Fatalf("got %+v, want only Stale pruned", actions)
	}
}

func TestEvolveLibraryOrderAndCounts(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()

	promotable := seed(t, m, "Rising", skill.StatusDraft, 4, ptr(0.9))
	demotable := seed(t, m, "Falling", skill.StatusActive, 8, ptr(0.3))
	doomed := seed(t, m, "Hopeless", skill.StatusActive, 12, ptr(0.05))
	steady := seed(t, m, "Steady", skill.StatusActive, 6, ptr(0.9))
	seed(t, m, "Shelved", skill.StatusArchived, 0, nil)

	res, err := e.EvolveLibrary(ctx)
	if err != nil {
		t.Fatalf("evolve: %v", err)
	}

	// Archived skills are not evaluated.
	if res.TotalEvaluated != 4 {
		t.Errorf("evaluated %d, want 4", res.TotalEvaluated)
	}
	if len(res.Promoted) != 1 || res.Promoted[0].SkillID != promotable.ID {
		t.Errorf("promoted: %+v", res.Promoted)
	}
	// Hopeless crosses the demotion bar too, so phase 2 demotes both, and
	// phase 3 then prunes Hopeless from draft. A skill can take two
	// transitions in one pass; the phases are sequential, not exclusive.
	if len(res.Demoted) != 2 {
		t.Fatalf("demoted: %+v, want Falling and Hopeless", res.Demoted)
	}
	demotedIDs := map[string]bool{}
	for _, a := range res.Demoted {
		demotedIDs[a.SkillID] = true
	}
	if !demotedIDs[demotable.ID] || !demotedIDs[doomed.ID] {
		t.Errorf("demoted: %+v, want Falling and Hopeless", res.Demoted)
	}
	if len(res.Pruned) != 1 || res.Pruned[0].SkillID != doomed.ID {
		t.Errorf("pruned: %+v", res.Pruned)
	}
	if res.Pruned[0].PreviousStatus != skill.StatusDraft {
		t.Errorf("prune should observe the post-demotion status, got %q", res.Pruned[0].PreviousStatus)
	}
	if res.Unchanged != 0 {
		t.Errorf("unchanged %d, want 0", res.Unchanged)
	}
	if res.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}

	got, _ := m.Get(ctx, doomed.ID)
	if got.Status != skill.StatusArchived {
		t.Errorf("doomed skill ended as %q, want archived", got.Status)
	}
	got, _ = m.Get(ctx, steady.ID)
	if got.Status != skill.StatusActive {
		t.Errorf("steady skill moved to %q", got.Status)
	}
}

func TestEvolvePhasesAreSequential(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()

	// Promoted in the first phase; the later phases then see it as active
	// and re-evaluate it against the demotion and prune thresholds.
	s := seed(t, m, "Churner", skill.StatusDraft, 12, ptr(0.75))

	res, err := e.EvolveLibrary(ctx)
	if err != nil {
		t.Fatalf("evolve: %v", err)
	}
	if len(res.Promoted) != 1 {
		t.Fatalf("promoted: %+v", res.Promoted)
	}
	// 0.75 >= demotion threshold and >= prune threshold, so it stays.
	got, _ := m.Get(ctx, s.ID)
	if got.Status != skill.StatusActive {
		t.Errorf("status %q, want active after promotion", got.Status)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{PromotionMinUsage: 5}.withDefaults()
	if cfg.PromotionMinUsage != 5 {
		t.Errorf("explicit value overwritten: %d", cfg.PromotionMinUsage)
	}
	d := DefaultConfig()
	if cfg.DemotionThreshold != d.DemotionThreshold || cfg.PruneMinUsage != d.PruneMinUsage {
		t.Errorf("zero fields should take defaults: %+v", cfg)
	}
}
