package skill

import (
	"errors"
	"strings"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	s := New("Read File", "Read the contents of a file", "cat $1", CategoryFileOperations, Options{})

	if s.ID != "read-file-v1" {
		t.Errorf("got id %q, want read-file-v1", s.ID)
	}
	if s.Version != "v1" {
		t.Errorf("got version %q, want v1", s.Version)
	}
	if s.Status != StatusActive {
		t.Errorf("got status %q, want active", s.Status)
	}
	if s.Source != SourceManual {
		t.Errorf("got source %q, want manual", s.Source)
	}
	if s.Verification.Kind != VerifyNone {
		t.Errorf("got verification %q, want none", s.Verification.Kind)
	}
	if s.Tags == nil || s.Parameters == nil || s.Examples == nil {
		t.Error("omitted collections should be empty, not nil")
	}
	if s.SuccessRate != nil {
		t.Error("success rate should be unset before first use")
	}
	if s.UsageCount != 0 {
		t.Errorf("got usage count %d, want 0", s.UsageCount)
	}
	if s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
}

func TestSlugID(t *testing.T) {
	cases := []struct {
		name, version, want string
	}{
		{"Read File", "v1", "read-file-v1"},
		{"Git: Commit & Push!", "v2", "git-commit-push-v2"},
		{"  spaced  out  ", "v1", "spaced-out-v1"},
	}
	for _, c := range cases {
		if got := SlugID(c.name, c.version); got != c.want {
			t.Errorf("SlugID(%q, %q) = %q, want %q", c.name, c.version, got, c.want)
		}
	}
}

func TestEmbeddingTextDropsEmpty(t *testing.T) {
	s := New("Grep Logs", "", "grep", CategorySearch, Options{
		Tags:      []string{"logs", ""},
		Languages: []string{"shell"},
	})
	text := s.EmbeddingText()
	if strings.Contains(text, "  ") {
		t.Errorf("empty values should be dropped, got %q", text)
	}
	for _, want := range []string{"Grep Logs", "search", "logs", "shell"} {
		if !strings.Contains(text, want) {
			t.Errorf("embedding text missing %q: %q", want, text)
		}
	}
}

func TestVerificationValidate(t *testing.T) {
	valid := []Verification{
		{Kind: VerifyNone},
		{Kind: VerifyTest, Command: "go test ./..."},
		{Kind: VerifyCommand, Command: "make lint"},
		{Kind: VerifyTypecheck},
		{Kind: VerifyPattern, Pattern: `^ok\b`},
	}
	for _, v := range valid {
		if err := v.Validate(); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", v.Kind, err)
		}
	}

	invalid := []Verification{
		{Kind: VerifyTest},
		{Kind: VerifyCommand},
		{Kind: VerifyPattern},
		{Kind: "bogus"},
	}
	for _, v := range invalid {
		err := v.Validate()
		if err == nil {
			t.Errorf("Validate(%q) should fail", v.Kind)
			continue
		}
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("Validate(%q) = %v, should wrap ErrInvalid", v.Kind, err)
		}
	}
}

func TestFilterMatches(t *testing.T) {
	rate := 0.8
	s := New("Run Tests", "Run the unit tests", "go test", CategoryTesting, Options{
		Tags:      []string{"go", "ci"},
		Languages: []string{"go"},
	})
	s.SuccessRate = &rate

	if !(&Filter{}).Matches(s) {
		t.Error("empty filter should match")
	}
	if !(*Filter)(nil).Matches(s) {
		t.Error("nil filter should match")
	}
	if !(&Filter{Categories: []Category{CategoryTesting}, Tags: []string{"ci"}}).Matches(s) {
		t.Error("matching category+tag filter should match")
	}
	if (&Filter{Categories: []Category{CategoryGit}}).Matches(s) {
		t.Error("wrong category should not match")
	}
	min := 0.9
	if (&Filter{MinSuccessRate: &min}).Matches(s) {
		t.Error("min success rate above actual should not match")
	}
	if (&Filter{Status: []Status{StatusDraft}}).Matches(s) {
		t.Error("wrong status should not match")
	}

	unrated := New("No Stats", "never used", "true", CategoryShell, Options{})
	zero := 0.0
	if (&Filter{MinSuccessRate: &zero}).Matches(unrated) {
		t.Error("min success rate filter should exclude skills with no recorded rate")
	}
}

func TestCloneIsDeep(t *testing.T) {
	rate := 0.5
	s := New("Clone Me", "desc", "code", CategoryMeta, Options{Tags: []string{"a"}})
	s.SuccessRate = &rate
	s.Embedding = []float32{1, 2, 3}

	c := s.Clone()
	c.Tags[0] = "mutated"
	*c.SuccessRate = 0.9
	c.Embedding[0] = 42

	if s.Tags[0] != "a" || *s.SuccessRate != 0.5 || s.Embedding[0] != 1 {
		t.Error("mutating the clone must not affect the original")
	}
}
