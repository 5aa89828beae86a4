package broadcast

import (
	"regexp"
	"strings"
)

// noisePatterns drop transcriptions whose entire text carries no information:
// repeated filler tokens, a lone thank-you, or punctuation-only output from
// the transcriber. Each pattern is anchored; text merely containing a noise
// token amid other words is kept.
var noisePatterns = []*regexp.Regexp{
	// repeated exclamatory filler, e.g. "uh", "Um, um.", "ah ah ah!"
	regexp.MustCompile(`^(?:(?:uh|um|ah|oh|hmm|mhm)[\s.,!?-]*)+$`),
	// thank-you variants emitted on dead air, e.g. "Thank you.", "thanks"
	regexp.MustCompile(`^(?:thank\s*you|thanks)[\s.,!?]*$`),
	// punctuation or whitespace only
	regexp.MustCompile(`^[\s.,!?;:'"()\[\]-]*$`),
}

// IsNoise reports whether the whole text matches a noise pattern,
// case-insensitively.
func IsNoise(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, pattern := range noisePatterns {
		if pattern.MatchString(lowered) {
			return true
		}
	}
	return false
}
