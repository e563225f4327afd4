package library

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/skillvault/internal/embedding"
	"github.com/nidhogg/skillvault/internal/evolution"
	"github.com/nidhogg/skillvault/internal/retrieval"
	"github.com/nidhogg/skillvault/internal/skill"
	"github.com/nidhogg/skillvault/internal/vectorstore"
	"go.uber.org/zap"
)

// Service is the unified entry point consumed by the orchestrating agent.
// It adds deduplication-aware registration on top of the store and fans
// out to the retrieval and evolution engines.
type Service struct {
	store     skill.Store
	retrieval *retrieval.Engine
	evolution *evolution.Engine
	embedder  *embedding.Client
	index     *vectorstore.Index // optional accelerated search
	logger    *zap.Logger
}

// New wires a Service from its collaborators.
func New(store skill.Store, ret *retrieval.Engine, evo *evolution.Engine, embedder *embedding.Client, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		retrieval: ret,
		evolution: evo,
		embedder:  embedder,
		logger:    logger,
	}
}

// SetIndex attaches the optional Qdrant mirror.
func (svc *Service) SetIndex(idx *vectorstore.Index) {
	svc.index = idx
}

// RegisterSkill inserts a skill, unless an existing active skill is
// similar enough, in which case the two are merged in place and the
// surviving record is returned. Callers cannot distinguish a merge from
// a fresh insert; duplicates never error.
func (svc *Service) RegisterSkill(ctx context.Context, s *skill.Skill) (*skill.Skill, error) {
	applyDefaults(s)

	actives, err := svc.store.List(ctx, &skill.Filter{Status: []skill.Status{skill.StatusActive}})
	if err != nil {
		return nil, fmt.Errorf("register: list actives: %w", err)
	}
	for _, existing := range actives {
		if existing.ID == s.ID || areSkillsSimilar(existing, s) {
			return svc.merge(ctx, existing, s)
		}
	}

	if err := svc.store.Add(ctx, s); err != nil {
		return nil, fmt.Errorf("register %s: %w", s.ID, err)
	}
	svc.logger.Info("skill registered",
		zap.String("skill", s.ID),
		zap.String("category", string(s.Category)))
	return s, nil
}

// merge folds the incoming registration into the existing record: summed
// usage, a plain arithmetic mean of the two defined success rates (this
// is deliberately neither EMA formula), and set-union tags/learnedFrom.
func (svc *Service) merge(ctx context.Context, existing, incoming *skill.Skill) (*skill.Skill, error) {
	existing.UsageCount += incoming.UsageCount
	switch {
	case existing.SuccessRate != nil && incoming.SuccessRate != nil:
		mean := (*existing.SuccessRate + *incoming.SuccessRate) / 2
		existing.SuccessRate = &mean
	case incoming.SuccessRate != nil:
		r := *incoming.SuccessRate
		existing.SuccessRate = &r
	}
	existing.Tags = unionStrings(existing.Tags, incoming.Tags)
	existing.LearnedFrom = unionStrings(existing.LearnedFrom, incoming.LearnedFrom)

	if err := svc.store.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("merge into %s: %w", existing.ID, err)
	}
	svc.logger.Info("duplicate skill merged",
		zap.String("into", existing.ID),
		zap.String("incoming", incoming.ID))
	return existing, nil
}

// CreateSkill constructs and inserts a skill directly, bypassing
// deduplication.
func (svc *Service) CreateSkill(ctx context.Context, name, description, code string, category skill.Category, opts skill.Options) (*skill.Skill, error) {
	s := skill.New(name, description, code, category, opts)
	if err := s.Verification.Validate(); err != nil {
		return nil, fmt.Errorf("create %s: %w", s.ID, err)
	}
	if err := svc.store.Add(ctx, s); err != nil {
		return nil, fmt.Errorf("create %s: %w", s.ID, err)
	}
	return s, nil
}

// GetSkill returns a skill or (nil, nil) when absent.
func (svc *Service) GetSkill(ctx context.Context, id string) (*skill.Skill, error) {
	return svc.store.Get(ctx, id)
}

// ListSkills lists skills matching the filter.
func (svc *Service) ListSkills(ctx context.Context, f *skill.Filter) ([]*skill.Skill, error) {
	return svc.store.List(ctx, f)
}

// UpdateSkill replaces a record wholesale.
func (svc *Service) UpdateSkill(ctx context.Context, s *skill.Skill) error {
	if err := svc.store.Update(ctx, s); err != nil {
		return err
	}
	if svc.index != nil && len(s.Embedding) > 0 {
		if err := svc.index.UpsertSkill(ctx, s.ID, s.Embedding, indexPayload(s)); err != nil {
			svc.logger.Warn("index upsert failed", zap.String("skill", s.ID), zap.Error(err))
		}
	}
	return nil
}

// ArchiveSkill soft-deletes a skill and drops it from the search index.
func (svc *Service) ArchiveSkill(ctx context.Context, id string) error {
	if err := svc.store.Archive(ctx, id); err != nil {
		return err
	}
	if svc.index != nil {
		if err := svc.index.DeleteSkill(ctx, id); err != nil {
			svc.logger.Warn("index delete failed", zap.String("skill", id), zap.Error(err))
		}
	}
	return nil
}

// SearchSkills queries the store's text index.
func (svc *Service) SearchSkills(ctx context.Context, keyword string) ([]*skill.Skill, error) {
	return svc.store.Search(ctx, keyword)
}

// Query runs semantic retrieval.
func (svc *Service) Query(ctx context.Context, text string, opts retrieval.QueryOptions) ([]retrieval.Match, error) {
	return svc.retrieval.Query(ctx, text, opts)
}

// SelectSkills returns the skills matched for a task description.
func (svc *Service) SelectSkills(ctx context.Context, description string, opts retrieval.QueryOptions) ([]*skill.Skill, error) {
	return svc.retrieval.GetForTask(ctx, description, opts)
}

// FormatForPrompt renders retrieval results for prompt injection.
func (svc *Service) FormatForPrompt(ctx context.Context, description string, opts retrieval.QueryOptions) (string, error) {
	return svc.retrieval.FormatForPrompt(ctx, description, opts)
}

// RecordUsage applies the retrieval engine's fixed-alpha usage update.
func (svc *Service) RecordUsage(ctx context.Context, id string, success bool) error {
	return svc.retrieval.RecordUsage(ctx, id, success)
}

// GetStats returns retrieval statistics.
func (svc *Service) GetStats(ctx context.Context) (*retrieval.Stats, error) {
	return svc.retrieval.GetStats(ctx)
}

// PopulateEmbeddings backfills missing embeddings and mirrors them into
// the search index when one is attached.
func (svc *Service) PopulateEmbeddings(ctx context.Context) (int, error) {
	n, err := svc.retrieval.PopulateEmbeddings(ctx)
	if err != nil {
		return n, err
	}
	if svc.index != nil {
		if err := svc.syncIndex(ctx); err != nil {
			svc.logger.Warn("index sync failed", zap.Error(err))
		}
	}
	return n, nil
}

// QueryIndex searches the Qdrant mirror, resolving hits back through the
// store and dropping anything no longer active.
func (svc *Service) QueryIndex(ctx context.Context, text string, topK int) ([]retrieval.Match, error) {
	if svc.index == nil {
		return nil, fmt.Errorf("no vector index attached")
	}
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	vec, err := svc.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := svc.index.Search(ctx, vec, uint64(topK))
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	var matches []retrieval.Match
	for _, h := range hits {
		s, err := svc.store.Get(ctx, h.SkillID)
		if err != nil {
			return nil, err
		}
		if s == nil || s.Status != skill.StatusActive {
			continue
		}
		matches = append(matches, retrieval.Match{
			Skill:       s,
			Similarity:  float64(h.Score),
			MatchReason: fmt.Sprintf("index similarity %.2f", h.Score),
		})
	}
	return matches, nil
}

func (svc *Service) syncIndex(ctx context.Context) error {
	all, err := svc.store.List(ctx, &skill.Filter{Status: []skill.Status{skill.StatusActive}})
	if err != nil {
		return err
	}
	for _, s := range all {
		if len(s.Embedding) == 0 {
			continue
		}
		if err := svc.index.UpsertSkill(ctx, s.ID, s.Embedding, indexPayload(s)); err != nil {
			return err
		}
	}
	return nil
}

// EvolveLibrary runs one full promote/demote/prune pass.
func (svc *Service) EvolveLibrary(ctx context.Context) (*evolution.Result, error) {
	return svc.evolution.EvolveLibrary(ctx)
}

// PromoteSkills runs only the promotion phase.
func (svc *Service) PromoteSkills(ctx context.Context) ([]evolution.Action, error) {
	return svc.evolution.PromoteSkills(ctx)
}

// DemoteSkills runs only the demotion phase.
func (svc *Service) DemoteSkills(ctx context.Context) ([]evolution.Action, error) {
	return svc.evolution.DemoteSkills(ctx)
}

// PruneSkills runs only the pruning phase.
func (svc *Service) PruneSkills(ctx context.Context) ([]evolution.Action, error) {
	return svc.evolution.PruneSkills(ctx)
}

// GetEvolutionReport surveys library health.
func (svc *Service) GetEvolutionReport(ctx context.Context) (*evolution.Report, error) {
	return svc.evolution.GetEvolutionReport(ctx)
}

// UpdateSkillStats applies the usage-scaled EMA update.
func (svc *Service) UpdateSkillStats(ctx context.Context, id string, success bool) (*skill.Skill, error) {
	return svc.evolution.UpdateSkillStats(ctx, id, success)
}

// BatchUpdateStats applies stat updates sequentially.
func (svc *Service) BatchUpdateStats(ctx context.Context, updates []evolution.StatUpdate) (int, error) {
	return svc.evolution.BatchUpdateStats(ctx, updates)
}

// GetByPerformance lists active skills ordered by success rate.
func (svc *Service) GetByPerformance(ctx context.Context, limit int, ascending bool) ([]*skill.Skill, error) {
	return svc.evolution.GetByPerformance(ctx, limit, ascending)
}

func applyDefaults(s *skill.Skill) {
	if s.Version == "" {
		s.Version = "v1"
	}
	if s.ID == "" {
		s.ID = skill.SlugID(s.Name, s.Version)
	}
	if s.Status == "" {
		s.Status = skill.StatusActive
	}
	if s.Source == "" {
		s.Source = skill.SourceManual
	}
	if s.Verification.Kind == "" {
		s.Verification.Kind = skill.VerifyNone
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	if s.Parameters == nil {
		s.Parameters = []skill.Parameter{}
	}
	for _, list := range []*[]string{
		&s.Prerequisites, &s.Postconditions, &s.Tags,
		&s.Languages, &s.Frameworks, &s.LearnedFrom,
	} {
		if *list == nil {
			*list = []string{}
		}
	}
	if s.Examples == nil {
		s.Examples = []skill.Example{}
	}
}

func indexPayload(s *skill.Skill) map[string]string {
	return map[string]string{
		"name":     s.Name,
		"category": string(s.Category),
		"status":   string(s.Status),
	}
}
