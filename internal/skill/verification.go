package skill

import "fmt"

// VerificationKind discriminates the verification variants.
type VerificationKind string

const (
	VerifyTest      VerificationKind = "test"
	VerifyTypecheck VerificationKind = "typecheck"
	VerifyCommand   VerificationKind = "command"
	VerifyPattern   VerificationKind = "pattern"
	VerifyNone      VerificationKind = "none"
)

// Verification describes how a skill's result can be checked. Kind picks
// the variant; the other fields are only meaningful for the kinds noted.
type Verification struct {
	Kind VerificationKind `json:"kind"`
	// Command runs for test and command verification.
	Command string `json:"command,omitempty"`
	// File is the target of typecheck verification.
	File string `json:"file,omitempty"`
	// Pattern is a regular expression the output must match for pattern
	// verification.
	Pattern string `json:"pattern,omitempty"`
	// ExpectedExit applies to test and command verification.
	ExpectedExit int `json:"expected_exit,omitempty"`
}

// Describe renders the verification for prompt output. The switch is
// exhaustive over VerificationKind.
func (v Verification) Describe() string {
	switch v.Kind {
	case VerifyTest:
		return fmt.Sprintf("run tests: %s", v.Command)
	case VerifyTypecheck:
		if v.File != "" {
			return fmt.Sprintf("typecheck %s", v.File)
		}
		return "typecheck the touched files"
	case VerifyCommand:
		return fmt.Sprintf("run: %s", v.Command)
	case VerifyPattern:
		return fmt.Sprintf("output matches /%s/", v.Pattern)
	case VerifyNone:
		return "none"
	default:
		return string(v.Kind)
	}
}

// Validate rejects malformed variants. The switch is exhaustive over
// VerificationKind.
func (v Verification) Validate() error {
	switch v.Kind {
	case VerifyTest, VerifyCommand:
		if v.Command == "" {
			return fmt.Errorf("%w: verification %s: command required", ErrInvalid, v.Kind)
		}
		return nil
	case VerifyTypecheck:
		return nil
	case VerifyPattern:
		if v.Pattern == "" {
			return fmt.Errorf("%w: verification pattern: pattern required", ErrInvalid)
		}
		return nil
	case VerifyNone, "":
		return nil
	default:
		return fmt.Errorf("%w: unknown verification kind %q", ErrInvalid, v.Kind)
	}
}
