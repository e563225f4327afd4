package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/skillvault/internal/skill"
)

// Memory is an in-process skill.Store backed by a map. It is the unit
// test backend and the degraded mode when PostgreSQL is unavailable.
// The text index lives under the same lock as the records, so both
// always change together.
type Memory struct {
	mu     sync.RWMutex
	skills map[string]*skill.Skill
	index  map[string]string // id -> lowercased name+description+code
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		skills: make(map[string]*skill.Skill),
		index:  make(map[string]string),
	}
}

// Get returns a copy of the skill, or (nil, nil) when absent.
func (m *Memory) Get(ctx context.Context, id string) (*skill.Skill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.skills[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

// List returns skills passing the filter, oldest first.
func (m *Memory) List(ctx context.Context, f *skill.Filter) ([]*skill.Skill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*skill.Skill
	for _, s := range m.skills {
		if f.Matches(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f != nil && f.MaxResults > 0 && len(out) > f.MaxResults {
		out = out[:f.MaxResults]
	}
	return out, nil
}

// Add inserts a new skill. Fails with skill.ErrExists on an id collision.
func (m *Memory) Add(ctx context.Context, s *skill.Skill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.skills[s.ID]; ok {
		return fmt.Errorf("add %s: %w", s.ID, skill.ErrExists)
	}
	c := s.Clone()
	m.skills[s.ID] = c
	m.index[s.ID] = c.SearchText()
	return nil
}

// Update replaces the record wholesale and refreshes UpdatedAt.
func (m *Memory) Update(ctx context.Context, s *skill.Skill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.skills[s.ID]; !ok {
		return fmt.Errorf("update %s: %w", s.ID, skill.ErrNotFound)
	}
	c := s.Clone()
	c.UpdatedAt = time.Now().UTC()
	m.skills[s.ID] = c
	m.index[s.ID] = c.SearchText()
	return nil
}

// Archive soft-deletes: the record stays, status becomes archived.
func (m *Memory) Archive(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.skills[id]
	if !ok {
		return fmt.Errorf("archive %s: %w", id, skill.ErrNotFound)
	}
	s.Status = skill.StatusArchived
	s.UpdatedAt = time.Now().UTC()
	m.index[id] = s.SearchText()
	return nil
}

// Count returns the number of stored skills, archived included.
func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.skills), nil
}

// Search does a case-insensitive substring lookup against the text index.
func (m *Memory) Search(ctx context.Context, keyword string) ([]*skill.Skill, error) {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*skill.Skill
	for id, text := range m.index {
		if strings.Contains(text, kw) {
			out = append(out, m.skills[id].Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ skill.Store = (*Memory)(nil)
