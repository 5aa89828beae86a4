package subscription

import (
	"fmt"
	"regexp"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
)

// dangerousShapes are static heuristics for regex shapes prone to
// catastrophic backtracking. The checks are deliberately coarse: a quantified
// group containing its own quantifier or an alternation is rejected outright,
// trading false rejections for safety.
var dangerousShapes = []*regexp.Regexp{
	// nested quantifiers: a quantified element inside a quantified group,
	// e.g. (a+)+, (\w*)* or (a{2,}){3}
	regexp.MustCompile(`\((?:[^()]*[*+]|[^()]*\{\d+(?:,\d*)?\})\)(?:[*+]|\{\d+(?:,\d*)?\})`),
	// stacked quantifiers, e.g. a++, a*+, a{2,}+
	regexp.MustCompile(`[*+][*+]`),
	regexp.MustCompile(`\}[*+]`),
	// quantified alternation group, e.g. (a|a)+, (ab|a)*
	regexp.MustCompile(`\([^()]*\|[^()]*\)(?:[*+]|\{\d+(?:,\d*)?\})`),
}

// Guard is the pattern-safety guard applied to user-supplied regex patterns
// before any execution.
type Guard struct {
	maxLength int
}

// NewGuard creates a guard with the given pattern length ceiling.
func NewGuard(maxLength int) *Guard {
	return &Guard{maxLength: maxLength}
}

// Check returns an error wrapping domain.ErrPatternUnsafe when the pattern
// exceeds the length ceiling or matches a dangerous shape.
func (g *Guard) Check(pattern string) error {
	if len(pattern) > g.maxLength {
		return fmt.Errorf("%w: pattern length %d exceeds ceiling %d", domain.ErrPatternUnsafe, len(pattern), g.maxLength)
	}
	for _, shape := range dangerousShapes {
		if shape.MatchString(pattern) {
			return fmt.Errorf("%w: pattern matches dangerous shape %q", domain.ErrPatternUnsafe, shape.String())
		}
	}
	return nil
}
