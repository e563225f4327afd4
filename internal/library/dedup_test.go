package library

import (
	"testing"

	"github.com/nidhogg/skillvault/internal/skill"
)

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"line comments", "ls -la // list everything\npwd", "ls -la pwd"},
		{"block comments", "cat /* the\nfile */ $1", "cat $1"},
		{"whitespace", "  grep   -r\n\tpattern  ", "grep -r pattern"},
		{"case", "Echo $HOME", "echo $home"},
		{"empty", "", ""},
	}
	for _, c := range cases {
		if got := normalizeCode(c.in); got != c.want {
			t.Errorf("%s: normalizeCode(%q) = %q, want %q", c.name, c.in, got, c.want)
		}
	}
}

func TestDescriptionKeywords(t *testing.T) {
	kw := descriptionKeywords("Read the contents of a file from disk using buffered IO")
	for _, want := range []string{"read", "contents", "file", "disk", "buffered"} {
		if _, ok := kw[want]; !ok {
			t.Errorf("keyword %q missing from %v", want, kw)
		}
	}
	// Stopwords and short words are dropped.
	for _, drop := range []string{"the", "of", "a", "from", "using"} {
		if _, ok := kw[drop]; ok {
			t.Errorf("%q should have been dropped", drop)
		}
	}
}

func mk(name, desc, code string, cat skill.Category) *skill.Skill {
	return skill.New(name, desc, code, cat, skill.Options{})
}

func TestAreSkillsSimilarIdenticalCode(t *testing.T) {
	a := mk("A", "first description entirely", "grep -r pattern . // search", skill.CategorySearch)
	b := mk("B", "unrelated words altogether", "grep   -r pattern .", skill.CategoryGit)
	if !areSkillsSimilar(a, b) {
		t.Error("identical normalized code should be similar regardless of category")
	}
}

func TestAreSkillsSimilarCodeContainment(t *testing.T) {
	long := "for f in $(find . -name '*.go'); do gofmt -w $f; goimports -w $f; done"
	a := mk("A", "format all files", long, skill.CategoryRefactoring)
	b := mk("B", "format plus vet", long+"; go vet ./...", skill.CategoryTesting)
	if !areSkillsSimilar(a, b) {
		t.Error("substantial code containment should be similar")
	}

	// Containment only applies to substantial code.
	short1 := mk("C", "totally different purpose", "ls", skill.CategoryShell)
	short2 := mk("D", "another unrelated thing", "ls -la", skill.CategoryGit)
	if areSkillsSimilar(short1, short2) {
		t.Error("short code containment should not trigger")
	}
}

func TestAreSkillsSimilarKeywordOverlap(t *testing.T) {
	a := mk("A", "Parse JSON configuration files into typed structs",
		"jq . config.json", skill.CategoryFileOperations)
	b := mk("B", "Parse JSON configuration files into native maps",
		"python -c 'import json'", skill.CategoryFileOperations)
	if !areSkillsSimilar(a, b) {
		t.Error("same category with heavy keyword overlap should be similar")
	}

	// Same descriptions but different categories fall through.
	c := mk("C", "Parse JSON configuration files into typed structs",
		"ruby -rjson", skill.CategoryGit)
	if areSkillsSimilar(a, c) {
		t.Error("keyword overlap across categories should not trigger")
	}

	d := mk("D", "Run database migrations against staging replicas",
		"migrate up", skill.CategoryFileOperations)
	if areSkillsSimilar(a, d) {
		t.Error("disjoint descriptions should not be similar")
	}
}

func TestUnionStrings(t *testing.T) {
	got := unionStrings([]string{"a", "b"}, []string{"b", "c", "a", "d"})
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v (order preserved)", got, want)
		}
	}
}
