package carriers

import "strings"

// MatchMode controls how needles are compared against carrier text
type MatchMode int

const (
	// MatchContains is a case-sensitive substring match
	MatchContains MatchMode = iota
	// MatchContainsFold is a case-insensitive substring match
	MatchContainsFold
	// MatchPrefix matches when the text starts with the needle
	MatchPrefix
	// MatchExact compares the whole (trimmed) text, used for status codes
	MatchExact
)

// StatusRule maps a set of needles to a status
type StatusRule struct {
	Status  Status
	Needles []string
}

// StatusResolver classifies carrier text. Rules are evaluated in order and the
// first rule with a matching needle wins.
type StatusResolver struct {
	Mode  MatchMode
	Rules []StatusRule
}

// Resolve returns the status for text, or StatusUnknown when nothing matches
func (r StatusResolver) Resolve(text string) Status {
	for _, rule := range r.Rules {
		for _, needle := range rule.Needles {
			if r.match(text, needle) {
				return rule.Status
			}
		}
	}
	return StatusUnknown
}

func (r StatusResolver) match(text, needle string) bool {
	switch r.Mode {
	case MatchContainsFold:
		return strings.Contains(strings.ToLower(text), strings.ToLower(needle))
	case MatchPrefix:
		return strings.HasPrefix(text, needle)
	case MatchExact:
		return strings.TrimSpace(text) == needle
	default:
		return strings.Contains(text, needle)
	}
}
