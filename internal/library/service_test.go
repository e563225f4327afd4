package library

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/skillvault/internal/embedding"
	"github.com/nidhogg/skillvault/internal/evolution"
	"github.com/nidhogg/skillvault/internal/retrieval"
	"github.com/nidhogg/skillvault/internal/skill"
	"github.com/nidhogg/skillvault/internal/store"
)

func newService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	logger := zap.NewNop()
	emb := embedding.NewClient(embedding.Config{Dimension: 64}, logger)
	ret := retrieval.NewEngine(mem, emb, logger)
	evo := evolution.NewEngine(mem, evolution.Config{}, logger)
	return New(mem, ret, evo, emb, logger), mem
}

func TestRegisterSkillInsertsNew(t *testing.T) {
	svc, m := newService(t)
	ctx := context.Background()

	s := &skill.Skill{
		Name:        "Read File",
		Description: "Read the contents of a file from disk",
		Code:        "cat $1",
		Category:    skill.CategoryFileOperations,
	}
	got, err := svc.RegisterSkill(ctx, s)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if got.ID != "read-file-v1" || got.Status != skill.StatusActive || got.Version != "v1" {
		t.Errorf("defaults not applied: %+v", got)
	}
	if got.Tags == nil || got.Examples == nil {
		t.Error("collections should be initialized")
	}
	if n, _ := m.Count(ctx); n != 1 {
		t.Errorf("count %d, want 1", n)
	}
}

func TestRegisterSkillIdempotent(t *testing.T) {
	svc, m := newService(t)
	ctx := context.Background()

	mkReg := func(usage int, rate *float64, tags []string) *skill.Skill {
		return &skill.Skill{
			Name:        "Read File",
			Description: "Read the contents of a file from disk",
			Code:        "cat $1",
			Category:    skill.CategoryFileOperations,
			UsageCount:  usage,
			SuccessRate: rate,
			Tags:        tags,
			LearnedFrom: []string{"session-1"},
		}
	}

	r1 := 0.8
	first, err := svc.RegisterSkill(ctx, mkReg(4, &r1, []string{"fs"}))
	if err != nil {
		t.Fatalf("first register: %v", err)
	}

	r2 := 0.4
	dup := mkReg(6, &r2, []string{"io", "fs"})
	dup.LearnedFrom = []string{"session-2"}
	second, err := svc.RegisterSkill(ctx, dup)
	if err != nil {
		t.Fatalf("second register: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("duplicate registration created %s, want merge into %s", second.ID, first.ID)
	}
	if n, _ := m.Count(ctx); n != 1 {
		t.Fatalf("count %d, want 1 after merge", n)
	}
	if second.UsageCount != 10 {
		t.Errorf("usage %d, want 4+6=10", second.UsageCount)
	}
	// Merge uses the arithmetic mean of the two rates.
	if math.Abs(*second.SuccessRate-0.6) > 1e-9 {
		t.Errorf("rate %v, want 0.6", *second.SuccessRate)
	}
	if len(second.Tags) != 2 {
		t.Errorf("tags %v, want union of fs/io", second.Tags)
	}
	if len(second.LearnedFrom) != 2 {
		t.Errorf("learned from %v, want both sessions", second.LearnedFrom)
	}
}

func TestRegisterSkillMergesNearDuplicateCode(t *testing.T) {
	svc, m := newService(t)
	ctx := context.Background()

	a := &skill.Skill{
		Name:        "Tail Logs",
		Description: "Stream the application log",
		Code:        "tail -f /var/log/app.log",
		Category:    skill.CategoryShell,
	}
	if _, err := svc.RegisterSkill(ctx, a); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Different name, description, and category; same code modulo comments.
	b := &skill.Skill{
		Name:        "Follow App Output",
		Description: "Watch service output as it happens",
		Code:        "tail -f /var/log/app.log  // follow",
		Category:    skill.CategoryDebugging,
	}
	merged, err := svc.RegisterSkill(ctx, b)
	if err != nil {
		t.Fatalf("register dup: %v", err)
	}
	if merged.ID != "tail-logs-v1" {
		t.Errorf("merged into %s, want tail-logs-v1", merged.ID)
	}
	if n, _ := m.Count(ctx); n != 1 {
		t.Errorf("count %d, want 1", n)
	}
}

func TestRegisterSkillIgnoresArchivedDuplicates(t *testing.T) {
	svc, m := newService(t)
	ctx := context.Background()

	old := skill.New("Old Way", "deprecated approach entirely", "rsync -a src dst",
		skill.CategoryShell, skill.Options{Status: skill.StatusArchived})
	if err := m.Add(ctx, old); err != nil {
		t.Fatalf("add: %v", err)
	}

	s := &skill.Skill{
		Name:        "New Way",
		Description: "modern approach entirely",
		Code:        "rsync -a src dst",
		Category:    skill.CategoryShell,
	}
	got, err := svc.RegisterSkill(ctx, s)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if got.ID == old.ID {
		t.Error("archived skills must not absorb new registrations")
	}
	if n, _ := m.Count(ctx); n != 2 {
		t.Errorf("count %d, want 2", n)
	}
}

func TestCreateSkillValidatesVerification(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateSkill(ctx, "Bad", "desc", "code", skill.CategoryShell,
		skill.Options{Verification: skill.Verification{Kind: skill.VerifyCommand}})
	if err == nil {
		t.Fatal("command verification without a command should fail")
	}
	if !errors.Is(err, skill.ErrInvalid) {
		t.Fatalf("create error %v, should wrap skill.ErrInvalid", err)
	}

	s, err := svc.CreateSkill(ctx, "Good", "desc", "code", skill.CategoryShell,
		skill.Options{Verification: skill.Verification{Kind: skill.VerifyCommand, Command: "true"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID != "good-v1" {
		t.Errorf("id %q", s.ID)
	}
}

// End to end: a learned draft earns its way to active through usage.
func TestSkillLifecycle(t *testing.T) {
	svc, m := newService(t)
	ctx := context.Background()

	draft := &skill.Skill{
		Name:        "Read File",
		Description: "Read the contents of a file from disk",
		Code:        "cat $1",
		Category:    skill.CategoryFileOperations,
		Status:      skill.StatusDraft,
		Source:      skill.SourceLearned,
	}
	if _, err := svc.RegisterSkill(ctx, draft); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Drafts are invisible to the default retrieval query.
	matches, err := svc.Query(ctx, "read the contents of a file", retrieval.QueryOptions{MinSimilarity: -1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("draft should not match the default query: %+v", matches)
	}

	drafts, err := svc.Query(ctx, "read the contents of a file", retrieval.QueryOptions{
		Filter:        &skill.Filter{Status: []skill.Status{skill.StatusDraft}},
		MinSimilarity: -1,
	})
	if err != nil {
		t.Fatalf("draft query: %v", err)
	}
	if len(drafts) != 1 || drafts[0].Skill.ID != draft.ID {
		t.Fatalf("draft query: %+v", drafts)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.UpdateSkillStats(ctx, draft.ID, true); err != nil {
			t.Fatalf("stats %d: %v", i, err)
		}
	}

	res, err := svc.EvolveLibrary(ctx)
	if err != nil {
		t.Fatalf("evolve: %v", err)
	}
	if len(res.Promoted) != 1 || res.Promoted[0].SkillID != draft.ID {
		t.Fatalf("promoted: %+v", res.Promoted)
	}

	got, _ := m.Get(ctx, draft.ID)
	if got.Status != skill.StatusActive {
		t.Fatalf("status %q, want active", got.Status)
	}

	// Now the default query finds it and renders it for the prompt.
	prompt, err := svc.FormatForPrompt(ctx, "read the contents of a file", retrieval.QueryOptions{MinSimilarity: -1})
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if !strings.Contains(prompt, "## Read File (read-file-v1)") {
		t.Errorf("prompt missing promoted skill:\n%s", prompt)
	}
}

func TestPopulateEmbeddingsThroughService(t *testing.T) {
	svc, m := newService(t)
	ctx := context.Background()

	s := skill.New("Embed Me", "needs a vector", "true", skill.CategoryMeta, skill.Options{})
	if err := m.Add(ctx, s); err != nil {
		t.Fatalf("add: %v", err)
	}

	n, err := svc.PopulateEmbeddings(ctx)
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	if n != 1 {
		t.Errorf("populated %d, want 1", n)
	}
	got, _ := m.Get(ctx, s.ID)
	if len(got.Embedding) != 64 {
		t.Errorf("embedding length %d, want 64", len(got.Embedding))
	}
}

func TestQueryIndexWithoutIndex(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.QueryIndex(context.Background(), "anything", 5); err == nil {
		t.Fatal("query without an attached index should fail")
	}
}
