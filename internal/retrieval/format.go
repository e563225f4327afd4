package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/nidhogg/skillvault/internal/skill"
)

// NoSkillsNotice is returned by FormatForPrompt when nothing matched.
const NoSkillsNotice = "No relevant skills found for this task."

// FormatForPrompt retrieves matches for the task description and renders
// them as a markdown block for injection into an agent prompt.
func (e *Engine) FormatForPrompt(ctx context.Context, description string, opts QueryOptions) (string, error) {
	matches, err := e.Query(ctx, description, opts)
	if err != nil {
		return "", err
	}
	return FormatMatches(matches), nil
}

// FormatMatches renders matches; blocks are separated by a "---" line.
func FormatMatches(matches []Match) string {
	if len(matches) == 0 {
		return NoSkillsNotice
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant skill(s) for this task:\n", len(matches))
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		writeSkillBlock(&b, m.Skill)
	}
	return b.String()
}

func writeSkillBlock(b *strings.Builder, s *skill.Skill) {
	fmt.Fprintf(b, "\n## %s (%s)\n", s.Name, s.ID)
	fmt.Fprintf(b, "Category: %s\n", s.Category)
	if s.SuccessRate != nil {
		fmt.Fprintf(b, "Success rate: %.0f%%\n", *s.SuccessRate*100)
	}
	fmt.Fprintf(b, "\n%s\n", s.Description)

	if len(s.Parameters) > 0 {
		b.WriteString("\nParameters:\n")
		for _, p := range s.Parameters {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(b, "- %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	if s.Verification.Kind != skill.VerifyNone && s.Verification.Kind != "" {
		fmt.Fprintf(b, "\nVerification: %s\n", s.Verification.Describe())
	}
	if len(s.Examples) > 0 {
		b.WriteString("\nExamples:\n")
		for _, ex := range s.Examples {
			fmt.Fprintf(b, "- %s\n", ex.Description)
		}
	}
	if s.Code != "" {
		fmt.Fprintf(b, "\n```\n%s\n```\n", s.Code)
	}
}
