package campaign

import (
	"regexp"
	"strings"
)

var varPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// ExtractVariables returns the distinct {placeholder} names used in the
// template text, in order of first appearance.
func ExtractVariables(texts ...string) []string {
	var names []string
	seen := map[string]bool{}
	for _, text := range texts {
		for _, m := range varPattern.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}

// Personalize substitutes {placeholder} tokens with the customer's values.
// Tokens with no matching variable stay literal so a template typo is
// visible in the delivered mail instead of silently vanishing.
func Personalize(text string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := strings.Trim(token, "{}")
		if v, ok := vars[name]; ok {
			return v
		}
		return token
	})
}
