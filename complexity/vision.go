package complexity

import "strings"

var visionKeywords = []string{
	"image", "picture", "photo", "screenshot", "diagram",
	"visual", "see", "look at", "show me", "what's in",
}

// RequiresVisionModel reports whether lastUserMessage contains any
// vision keyword, case-insensitively. Callers
// pass query.Query.LastUserMessage().
func RequiresVisionModel(lastUserMessage string) bool {
	lower := strings.ToLower(lastUserMessage)
	for _, kw := range visionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
