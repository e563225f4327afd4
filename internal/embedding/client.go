package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nidhogg/skillvault/internal/skill"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single remote embedding call. When it fires,
// control returns via the deterministic fallback; that path is a success,
// not an error.
const DefaultTimeout = 10 * time.Second

// Client is the embedding provider used by the rest of the system. It
// consults the in-process cache (and an optional Redis layer), then the
// remote provider under a hard timeout, and degrades to the deterministic
// hash embedding on any remote failure. Embed never returns an error to
// its callers.
type Client struct {
	remote   Provider // nil in offline mode
	fallback *HashProvider
	cache    *Cache
	redis    *RedisCache // optional
	timeout  time.Duration
	logger   *zap.Logger
}

// NewClient builds a Client from the config. With no endpoint configured
// the client runs fully offline on the hash embedding.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}
	timeout := DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	var remote Provider
	if cfg.Endpoint != "" {
		cfg.Dimension = dim
		remote = NewAPIProvider(cfg)
	}
	return &Client{
		remote:   remote,
		fallback: NewHashProvider(dim),
		cache:    NewCache(0, 0),
		timeout:  timeout,
		logger:   logger,
	}
}

// SetRedisCache attaches the optional second-level cache.
func (c *Client) SetRedisCache(rc *RedisCache) {
	c.redis = rc
}

// Dimension returns the embedding vector dimension.
func (c *Client) Dimension() int {
	return c.fallback.Dimension()
}

// Embed returns the vector for the text. The error is always nil; it is
// kept so Client satisfies Provider.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	if c.redis != nil {
		if vec, ok := c.redis.Get(ctx, key); ok && len(vec) == c.Dimension() {
			c.cache.Put(key, vec)
			return vec, nil
		}
	}

	vec := c.generate(ctx, text)
	c.cache.Put(key, vec)
	if c.redis != nil {
		c.redis.Put(ctx, key, vec)
	}
	return vec, nil
}

func (c *Client) generate(ctx context.Context, text string) []float32 {
	if c.remote == nil {
		return c.fallback.Vector(text)
	}
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	vec, err := c.remote.Embed(rctx, text)
	if err != nil {
		c.logger.Debug("remote embedding unavailable, using hash fallback", zap.Error(err))
		return c.fallback.Vector(text)
	}
	if len(vec) != c.Dimension() {
		c.logger.Debug("remote embedding dimension mismatch, using hash fallback",
			zap.Int("got", len(vec)), zap.Int("want", c.Dimension()))
		return c.fallback.Vector(text)
	}
	return vec
}

// EmbedSkill embeds the skill's semantic fields (name, description,
// category, tags, languages, frameworks).
func (c *Client) EmbedSkill(ctx context.Context, s *skill.Skill) ([]float32, error) {
	return c.Embed(ctx, s.EmbeddingText())
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Similarity is the cosine similarity of two vectors. Dimensions must
// match.
func Similarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// SimilarityResult is one scored candidate from FindSimilar.
type SimilarityResult struct {
	Index int
	Score float64
}

// FindSimilar scores every candidate against the query, keeps those at
// or above minSimilarity, and returns at most topK sorted by descending
// score. Candidates with mismatched dimensions are skipped.
func (c *Client) FindSimilar(query []float32, candidates [][]float32, topK int, minSimilarity float64) []SimilarityResult {
	results := make([]SimilarityResult, 0, len(candidates))
	for i, cand := range candidates {
		score, err := Similarity(query, cand)
		if err != nil {
			c.logger.Debug("skipping candidate with mismatched dimension", zap.Int("index", i))
			continue
		}
		if score >= minSimilarity {
			results = append(results, SimilarityResult{Index: i, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
