package skill

import (
	"context"
	"errors"
)

// ErrExists is returned by Store.Add when the id is already taken.
var ErrExists = errors.New("skill already exists")

// ErrNotFound is returned by Store operations that require an existing id.
var ErrNotFound = errors.New("skill not found")

// ErrInvalid wraps validation failures on malformed skill input.
var ErrInvalid = errors.New("invalid skill")

// Filter narrows a Store listing. All set fields are ANDed; within a
// list field a record matches if it matches any element. A nil filter
// matches everything.
type Filter struct {
	Categories     []Category
	Status         []Status
	Tags           []string
	Languages      []string
	Frameworks     []string
	MinSuccessRate *float64
	MaxResults     int
}

// Store is the persistence contract for skills. Implementations keep a
// secondary text index over name/description/code in step with every
// mutation. Get returns (nil, nil) when the id is absent. Writes to
// distinct ids never block each other; concurrent writes to the same id
// race with last-write-wins.
type Store interface {
	Get(ctx context.Context, id string) (*Skill, error)
	List(ctx context.Context, f *Filter) ([]*Skill, error)
	Add(ctx context.Context, s *Skill) error
	Update(ctx context.Context, s *Skill) error
	Archive(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	// Search does a keyword lookup against the text index.
	Search(ctx context.Context, keyword string) ([]*Skill, error)
}

// Matches reports whether the skill passes the filter, ignoring
// MaxResults. Shared by store implementations.
func (f *Filter) Matches(s *Skill) bool {
	if f == nil {
		return true
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, s.Category) {
		return false
	}
	if len(f.Status) > 0 && !containsStatus(f.Status, s.Status) {
		return false
	}
	if len(f.Tags) > 0 && !anyOverlap(f.Tags, s.Tags) {
		return false
	}
	if len(f.Languages) > 0 && !anyOverlap(f.Languages, s.Languages) {
		return false
	}
	if len(f.Frameworks) > 0 && !anyOverlap(f.Frameworks, s.Frameworks) {
		return false
	}
	if f.MinSuccessRate != nil {
		if s.SuccessRate == nil || *s.SuccessRate < *f.MinSuccessRate {
			return false
		}
	}
	return true
}

func containsCategory(list []Category, c Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func containsStatus(list []Status, st Status) bool {
	for _, v := range list {
		if v == st {
			return true
		}
	}
	return false
}

func anyOverlap(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
