package policy

import (
	"strings"

	"github.com/electcore/electcore/internal/rbac"
)

// matchRule reports whether value satisfies rule. Missing values never match.
func matchRule(rule rbac.Rule, value string, ranks map[string]int) bool {
	if value == "" {
		return false
	}
	switch {
	case rule.Equals != "":
		return strings.EqualFold(rule.Equals, value)
	case len(rule.In) > 0:
		for _, candidate := range rule.In {
			if strings.EqualFold(candidate, value) {
				return true
			}
		}
		return false
	case rule.MinLabel != "":
		floor, ok := ranks[strings.ToLower(rule.MinLabel)]
		if !ok {
			return false
		}
		held, ok := ranks[strings.ToLower(value)]
		return ok && held >= floor
	}
	return false
}
