package skill

import (
	"strings"
	"time"
)

// Category classifies what kind of work a skill automates.
type Category string

const (
	CategoryFileOperations Category = "file_operations"
	CategoryTesting        Category = "testing"
	CategoryDebugging      Category = "debugging"
	CategoryRefactoring    Category = "refactoring"
	CategoryGit            Category = "git"
	CategoryShell          Category = "shell"
	CategorySearch         Category = "search"
	CategoryDocumentation  Category = "documentation"
	CategorySecurity       Category = "security"
	CategoryPerformance    Category = "performance"
	CategoryMeta           Category = "meta"
	CategoryAPI            Category = "api"
	CategoryEffect         Category = "effect"
)

// Status is the lifecycle state of a skill.
type Status string

const (
	StatusActive   Status = "active"
	StatusDraft    Status = "draft"
	StatusArchived Status = "archived"
	// StatusFailed is set by external verification tooling, never by the
	// evolution engine. A failed skill is terminal for automated evolution.
	StatusFailed Status = "failed"
)

// Source records where a skill came from.
type Source string

const (
	SourceBootstrap Source = "bootstrap"
	SourceLearned   Source = "learned"
	SourceManual    Source = "manual"
)

// Parameter describes one input a skill's code expects.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     string `json:"default,omitempty"`
}

// Example is a recorded invocation of a skill.
type Example struct {
	Description string         `json:"description"`
	Input       map[string]any `json:"input,omitempty"`
	Output      string         `json:"output,omitempty"`
	Context     string         `json:"context,omitempty"`
}

// Skill is a persisted, reusable, optionally-verified code or tool-usage
// pattern retrievable by an agent.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Code        string `json:"code"`

	Category       Category     `json:"category"`
	Parameters     []Parameter  `json:"parameters"`
	Prerequisites  []string     `json:"prerequisites"`
	Postconditions []string     `json:"postconditions"`
	Verification   Verification `json:"verification"`
	Examples       []Example    `json:"examples"`
	Tags           []string     `json:"tags"`
	Languages      []string     `json:"languages"`
	Frameworks     []string     `json:"frameworks"`

	// Embedding is nil until populated; when set it has exactly the
	// provider's dimension.
	Embedding []float32 `json:"embedding,omitempty"`

	// SuccessRate is nil until the first recorded use, then stays in [0,1].
	SuccessRate *float64   `json:"success_rate,omitempty"`
	UsageCount  int        `json:"usage_count"`
	LastUsed    *time.Time `json:"last_used,omitempty"`

	Status      Status    `json:"status"`
	Source      Source    `json:"source"`
	LearnedFrom []string  `json:"learned_from,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Options carries the optional fields accepted by New.
type Options struct {
	Version        string
	Parameters     []Parameter
	Prerequisites  []string
	Postconditions []string
	Verification   Verification
	Examples       []Example
	Tags           []string
	Languages      []string
	Frameworks     []string
	Status         Status
	Source         Source
	LearnedFrom    []string
}

// New builds a fully-populated skill from the required fields plus
// options. Omitted collections become empty slices, status defaults to
// active, version to "v1", and the id is the deterministic slug of
// name+version.
func New(name, description, code string, category Category, opts Options) *Skill {
	if opts.Version == "" {
		opts.Version = "v1"
	}
	if opts.Status == "" {
		opts.Status = StatusActive
	}
	if opts.Source == "" {
		opts.Source = SourceManual
	}
	if opts.Verification.Kind == "" {
		opts.Verification.Kind = VerifyNone
	}
	now := time.Now().UTC()
	return &Skill{
		ID:             SlugID(name, opts.Version),
		Name:           name,
		Version:        opts.Version,
		Description:    description,
		Code:           code,
		Category:       category,
		Parameters:     emptyIfNil(opts.Parameters),
		Prerequisites:  emptyIfNil(opts.Prerequisites),
		Postconditions: emptyIfNil(opts.Postconditions),
		Verification:   opts.Verification,
		Examples:       emptyIfNil(opts.Examples),
		Tags:           emptyIfNil(opts.Tags),
		Languages:      emptyIfNil(opts.Languages),
		Frameworks:     emptyIfNil(opts.Frameworks),
		Status:         opts.Status,
		Source:         opts.Source,
		LearnedFrom:    emptyIfNil(opts.LearnedFrom),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// SlugID derives the immutable skill id from its name and version,
// e.g. ("Read File", "v1") -> "read-file-v1".
func SlugID(name, version string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, name)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	return slug + "-" + strings.ToLower(version)
}

// SearchText is the text covered by the store's secondary index.
func (s *Skill) SearchText() string {
	return strings.ToLower(s.Name + " " + s.Description + " " + s.Code)
}

// EmbeddingText concatenates the semantic fields used for vectorization.
// Empty values are dropped; fields are space-joined.
func (s *Skill) EmbeddingText() string {
	parts := make([]string, 0, 8)
	for _, p := range []string{s.Name, s.Description, string(s.Category)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for _, list := range [][]string{s.Tags, s.Languages, s.Frameworks} {
		for _, p := range list {
			if p != "" {
				parts = append(parts, p)
			}
		}
	}
	return strings.Join(parts, " ")
}

// Clone returns a deep copy so store implementations can hand out
// records without aliasing their internal state.
func (s *Skill) Clone() *Skill {
	c := *s
	c.Parameters = append([]Parameter(nil), s.Parameters...)
	c.Prerequisites = append([]string(nil), s.Prerequisites...)
	c.Postconditions = append([]string(nil), s.Postconditions...)
	c.Examples = append([]Example(nil), s.Examples...)
	c.Tags = append([]string(nil), s.Tags...)
	c.Languages = append([]string(nil), s.Languages...)
	c.Frameworks = append([]string(nil), s.Frameworks...)
	c.LearnedFrom = append([]string(nil), s.LearnedFrom...)
	c.Embedding = append([]float32(nil), s.Embedding...)
	if s.SuccessRate != nil {
		r := *s.SuccessRate
		c.SuccessRate = &r
	}
	if s.LastUsed != nil {
		t := *s.LastUsed
		c.LastUsed = &t
	}
	return &c
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
