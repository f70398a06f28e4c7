package matcher

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the and for are but not you all any can her was one our out has had
		him his how its may new now old see two who did she use way who
		this that with have from they will would there their what about which
		when make like than them then these some could into more other only
		also just very should been being were does doing each few most need
		needs want wants please help get got our ours your yours over under
		again such own same too here where why while because until both
		between through during before after above below off once
	`) {
		stopWords[w] = struct{}{}
	}
}

// ExtractKeywords lowercases text, strips punctuation and drops stop words
// and tokens of two characters or fewer. Duplicates are kept.
func ExtractKeywords(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return -1
	}, text)

	var out []string
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}
