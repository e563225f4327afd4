package retrieval

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nidhogg/skillvault/internal/embedding"
	"github.com/nidhogg/skillvault/internal/skill"
	"go.uber.org/zap"
)

const (
	// DefaultTopK is the number of matches returned when unspecified.
	DefaultTopK = 5
	// DefaultMinSimilarity is the cosine floor applied when unspecified.
	DefaultMinSimilarity = 0.3
	// usageAlpha is the fixed EMA weight for RecordUsage.
	usageAlpha = 0.2
)

// Embedder is the slice of the embedding client the engine needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedSkill(ctx context.Context, s *skill.Skill) ([]float32, error)
	FindSimilar(query []float32, candidates [][]float32, topK int, minSimilarity float64) []embedding.SimilarityResult
}

// Engine performs semantic retrieval over the skill store.
type Engine struct {
	store         skill.Store
	embedder      Embedder
	logger        *zap.Logger
	defaultTopK   int
	defaultMinSim float64
}

// NewEngine creates a retrieval engine with the standard defaults.
func NewEngine(store skill.Store, embedder Embedder, logger *zap.Logger) *Engine {
	return &Engine{
		store:         store,
		embedder:      embedder,
		logger:        logger,
		defaultTopK:   DefaultTopK,
		defaultMinSim: DefaultMinSimilarity,
	}
}

// SetDefaults overrides the per-query fallbacks. Non-positive values keep
// the current setting.
func (e *Engine) SetDefaults(topK int, minSimilarity float64) {
	if topK > 0 {
		e.defaultTopK = topK
	}
	if minSimilarity > 0 {
		e.defaultMinSim = minSimilarity
	}
}

// Match is one retrieval hit.
type Match struct {
	Skill       *skill.Skill `json:"skill"`
	Similarity  float64      `json:"similarity"`
	MatchReason string       `json:"match_reason"`
}

// QueryOptions tunes a retrieval query. A zero TopK means DefaultTopK; a
// zero MinSimilarity means DefaultMinSimilarity (pass a negative value to
// disable the floor). A nil Filter, or one without a status set, searches
// active skills only.
type QueryOptions struct {
	Filter        *skill.Filter
	TopK          int
	MinSimilarity float64
}

// Query embeds the query text once and ranks candidate skills by cosine
// similarity. An empty candidate set returns an empty slice immediately
// without touching the embedding provider.
func (e *Engine) Query(ctx context.Context, text string, opts QueryOptions) ([]Match, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}
	minSim := opts.MinSimilarity
	if minSim == 0 {
		minSim = e.defaultMinSim
	} else if minSim < 0 {
		// Floor disabled: even anti-correlated candidates rank.
		minSim = math.Inf(-1)
	}

	candidates, err := e.store.List(ctx, candidateFilter(opts.Filter))
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if len(candidates) == 0 {
		return []Match{}, nil
	}

	queryVec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vectors := make([][]float32, len(candidates))
	for i, s := range candidates {
		if len(s.Embedding) > 0 {
			vectors[i] = s.Embedding
			continue
		}
		// Transient: generated for this ranking only, persisted by
		// PopulateEmbeddings.
		vec, err := e.embedder.EmbedSkill(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("embed candidate %s: %w", s.ID, err)
		}
		vectors[i] = vec
	}

	scored := e.embedder.FindSimilar(queryVec, vectors, topK, minSim)
	matches := make([]Match, 0, len(scored))
	for _, r := range scored {
		matches = append(matches, Match{
			Skill:       candidates[r.Index],
			Similarity:  r.Score,
			MatchReason: fmt.Sprintf("embedding similarity %.2f", r.Score),
		})
	}
	return matches, nil
}

// GetForTask runs Query and projects the matched skills.
func (e *Engine) GetForTask(ctx context.Context, description string, opts QueryOptions) ([]*skill.Skill, error) {
	matches, err := e.Query(ctx, description, opts)
	if err != nil {
		return nil, err
	}
	skills := make([]*skill.Skill, len(matches))
	for i, m := range matches {
		skills[i] = m.Skill
	}
	return skills, nil
}

// RecordUsage folds one success/failure observation into the skill with a
// fixed-alpha EMA (0.2 new, 0.8 old; unset rate counts as 0). Missing
// skills are a no-op, not an error.
func (e *Engine) RecordUsage(ctx context.Context, id string, success bool) error {
	s, err := e.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("record usage %s: %w", id, err)
	}
	if s == nil {
		return nil
	}

	var observed float64
	if success {
		observed = 1
	}
	var oldRate float64
	if s.SuccessRate != nil {
		oldRate = *s.SuccessRate
	}
	newRate := usageAlpha*observed + (1-usageAlpha)*oldRate
	s.SuccessRate = &newRate
	s.UsageCount++
	now := time.Now().UTC()
	s.LastUsed = &now

	if err := e.store.Update(ctx, s); err != nil {
		return fmt.Errorf("record usage %s: %w", id, err)
	}
	e.logger.Debug("usage recorded",
		zap.String("skill", id),
		zap.Bool("success", success),
		zap.Float64("success_rate", newRate),
		zap.Int("usage_count", s.UsageCount))
	return nil
}

// PopulateEmbeddings generates and persists an embedding for every active
// skill lacking one. Returns the number populated.
func (e *Engine) PopulateEmbeddings(ctx context.Context) (int, error) {
	actives, err := e.store.List(ctx, &skill.Filter{Status: []skill.Status{skill.StatusActive}})
	if err != nil {
		return 0, fmt.Errorf("list active skills: %w", err)
	}
	populated := 0
	for _, s := range actives {
		if len(s.Embedding) > 0 {
			continue
		}
		vec, err := e.embedder.EmbedSkill(ctx, s)
		if err != nil {
			return populated, fmt.Errorf("embed skill %s: %w", s.ID, err)
		}
		s.Embedding = vec
		if err := e.store.Update(ctx, s); err != nil {
			return populated, fmt.Errorf("persist embedding %s: %w", s.ID, err)
		}
		populated++
	}
	if populated > 0 {
		e.logger.Info("embeddings populated", zap.Int("count", populated))
	}
	return populated, nil
}

// Stats summarizes the library for the retrieval surface.
type Stats struct {
	TotalSkills          int     `json:"total_skills"`
	SkillsWithEmbeddings int     `json:"skills_with_embeddings"`
	AverageSuccessRate   float64 `json:"average_success_rate"`
}

// GetStats computes library statistics. The success-rate average covers
// only skills with a recorded rate.
func (e *Engine) GetStats(ctx context.Context) (*Stats, error) {
	total, err := e.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count skills: %w", err)
	}
	all, err := e.store.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	st := &Stats{TotalSkills: total}
	var rateSum float64
	var rated int
	for _, s := range all {
		if len(s.Embedding) > 0 {
			st.SkillsWithEmbeddings++
		}
		if s.SuccessRate != nil {
			rateSum += *s.SuccessRate
			rated++
		}
	}
	if rated > 0 {
		st.AverageSuccessRate = rateSum / float64(rated)
	}
	return st, nil
}

// candidateFilter applies the active-only default without mutating the
// caller's filter.
func candidateFilter(f *skill.Filter) *skill.Filter {
	if f == nil {
		return &skill.Filter{Status: []skill.Status{skill.StatusActive}}
	}
	c := *f
	if len(c.Status) == 0 {
		c.Status = []skill.Status{skill.StatusActive}
	}
	return &c
}
