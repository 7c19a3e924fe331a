package identity

import (
	"regexp"
	"strings"
)

// Matcher extracts an accession from a header line.
type Matcher struct {
	Name  string
	Match func(line string) (string, bool)
}

func regexMatcher(name, expr string) Matcher {
	re := regexp.MustCompile(expr)
	return Matcher{
		Name: name,
		Match: func(line string) (string, bool) {
			m := re.FindStringSubmatch(line)
			if len(m) < 2 || m[1] == "" {
				return "", false
			}
			return m[1], true
		},
	}
}

// Matchers are tried in order; specific patterns precede generic ones so that
// a generic token rule never captures a substring of a database-tagged id.
var Matchers = []Matcher{
	regexMatcher("swissprot", `(?:^|[\s>|])sp\|([^|\s.]+)(?:\.\d+)?\|`),
	regexMatcher("trembl", `(?:^|[\s>|])tr\|([^|\s.]+)(?:\.\d+)?\|`),
	regexMatcher("bare", `^([A-Z0-9]{6,10})(?:[\s|]|$)`),
	regexMatcher("hsn", `(HSN\d+)`),
	regexMatcher("first_token", `^([^\s|]+)`),
	{
		Name: "fallback",
		Match: func(line string) (string, bool) {
			f := strings.Fields(line)
			if len(f) == 0 {
				return "", false
			}
			return f[0], true
		},
	},
}

// ExtractAccession returns the accession of a FASTA or BLAST header line using
// the first matcher that succeeds. Returns "" for a blank line.
func ExtractAccession(header string) string {
	acc, _ := ExtractAccessionWith(Matchers, header)
	return acc
}

// ExtractAccessionWith is ExtractAccession over a custom matcher list.
// It also returns the name of the matcher that fired.
func ExtractAccessionWith(matchers []Matcher, header string) (string, string) {
	line := cleanHeader(header)
	if line == "" {
		return "", ""
	}
	for _, m := range matchers {
		if acc, ok := m.Match(line); ok {
			return acc, m.Name
		}
	}
	return "", ""
}
