package matcher

import "strings"

type synonymGroup struct {
	root  string
	terms []string
}

// synonymGroups maps a canonical capability to related terms. Terms are
// longer than two characters so substring matching stays meaningful.
var synonymGroups = []synonymGroup{
	{"code", []string{"coding", "programming", "development", "software", "developer", "engineering"}},
	{"writing", []string{"write", "writer", "blog", "content", "article", "post", "copywriting"}},
	{"research", []string{"researching", "analysis", "investigate", "study", "search"}},
	{"design", []string{"designer", "graphic", "visual", "layout", "interface"}},
	{"data", []string{"analytics", "database", "sql", "statistics", "dataset"}},
	{"marketing", []string{"seo", "social", "campaign", "advertising", "promotion"}},
	{"support", []string{"customer", "helpdesk", "ticket", "assistance"}},
	{"testing", []string{"test", "tester", "quality", "verification"}},
	{"devops", []string{"deployment", "infrastructure", "cloud", "kubernetes", "docker"}},
	{"translation", []string{"translate", "language", "localization"}},
}

func fuzzyEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func (g synonymGroup) matches(term string) bool {
	if fuzzyEqual(term, g.root) {
		return true
	}
	for _, t := range g.terms {
		if fuzzyEqual(term, t) {
			return true
		}
	}
	return false
}

// CapabilityMatches reports whether a capability tag satisfies a keyword,
// either by substring in either direction or through a shared synonym group.
func CapabilityMatches(capability, keyword string) bool {
	c := strings.ToLower(strings.TrimSpace(capability))
	k := strings.ToLower(strings.TrimSpace(keyword))
	if fuzzyEqual(c, k) {
		return true
	}
	if c == "" || k == "" {
		return false
	}
	for _, g := range synonymGroups {
		if g.matches(c) && g.matches(k) {
			return true
		}
	}
	return false
}
