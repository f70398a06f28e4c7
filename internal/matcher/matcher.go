package matcher

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

const (
	DefaultLimit              = 10
	DefaultAvailabilityWeight = 0.1
	DefaultExperienceWeight   = 0.05

	experiencedThreshold = 10
	fallbackReason       = "No specific requirements - any agent can help"
	generalReason        = "General match"
)

// Options tunes MatchAgents. Start from DefaultOptions and override fields.
type Options struct {
	Limit              int     `json:"limit"`
	MinScore           float64 `json:"min_score"`
	OnlineOnly         bool    `json:"online_only"`
	AvailabilityWeight float64 `json:"availability_weight"`
	ExperienceWeight   float64 `json:"experience_weight"`
}

func DefaultOptions() Options {
	return Options{
		Limit:              DefaultLimit,
		AvailabilityWeight: DefaultAvailabilityWeight,
		ExperienceWeight:   DefaultExperienceWeight,
	}
}

// Match is one ranked agent.
type Match struct {
	Agent               Agent    `json:"agent"`
	Score               float64  `json:"score"`
	MatchedCapabilities []string `json:"matched_capabilities,omitempty"`
	Reason              string   `json:"reason"`
}

// MatchScore returns the share of keywords covered by distinct matching
// capabilities, capped at 1, plus the capabilities that matched.
// Capabilities differing only in case or surrounding space count once.
func MatchScore(keywords, capabilities []string) (float64, []string) {
	if len(keywords) == 0 {
		return 0, nil
	}
	var matched []string
	seen := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		key := strings.ToLower(strings.TrimSpace(c))
		if _, dup := seen[key]; dup {
			continue
		}
		for _, k := range keywords {
			if CapabilityMatches(c, k) {
				seen[key] = struct{}{}
				matched = append(matched, c)
				break
			}
		}
	}
	return min(float64(len(matched))/float64(len(keywords)), 1), matched
}

// MatchAgents ranks agents against a free-text task description. An
// empty or stop-word-only description returns agents in input order with
// a zero score.
func MatchAgents(description string, agents []Agent, opts Options) []Match {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	candidates := agents
	if opts.OnlineOnly {
		candidates = slices.DeleteFunc(slices.Clone(agents), func(a Agent) bool {
			return a.Availability != AvailabilityOnline
		})
	}

	keywords := ExtractKeywords(description)
	if len(keywords) == 0 {
		out := make([]Match, 0, min(len(candidates), opts.Limit))
		for _, a := range candidates[:min(len(candidates), opts.Limit)] {
			out = append(out, Match{Agent: a, Score: 0, Reason: fallbackReason})
		}
		return out
	}

	out := make([]Match, 0, len(candidates))
	for _, a := range candidates {
		base, matched := MatchScore(keywords, a.Capabilities)
		experience := min(float64(a.TasksCompleted)/100, 1) * opts.ExperienceWeight
		total := base + a.Availability.Factor()*opts.AvailabilityWeight + experience
		if total < opts.MinScore {
			continue
		}
		out = append(out, Match{
			Agent:               a,
			Score:               total,
			MatchedCapabilities: matched,
			Reason:              reason(a, matched),
		})
	}

	slices.SortStableFunc(out, func(x, y Match) int {
		return cmp.Compare(y.Score, x.Score)
	})
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func reason(a Agent, matched []string) string {
	var parts []string
	if len(matched) > 0 {
		parts = append(parts, "Matches: "+strings.Join(matched, ", "))
	}
	if a.Availability == AvailabilityOnline {
		parts = append(parts, "Currently online")
	}
	if a.TasksCompleted > experiencedThreshold {
		parts = append(parts, fmt.Sprintf("Experienced (%d tasks)", a.TasksCompleted))
	}
	if len(parts) == 0 {
		return generalReason
	}
	return strings.Join(parts, "; ")
}

// SuggestCapabilities proposes capability tags for a description: the
// canonical root of every synonym group a keyword touches, plus each
// keyword longer than three characters. The result is sorted and unique.
func SuggestCapabilities(description string) []string {
	set := map[string]struct{}{}
	for _, k := range ExtractKeywords(description) {
		for _, g := range synonymGroups {
			if g.matches(k) {
				set[g.root] = struct{}{}
			}
		}
		if len(k) > 3 {
			set[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
