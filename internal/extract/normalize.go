package extract

import (
	"regexp"
	"strings"

	"github.com/snarg/scanmap/internal/llm"
)

// Sentinel is the exact string the extraction prompt forces the model
// to emit when the transcript contains no street address.
const Sentinel = "No address found"

var (
	parenRe     = regexp.MustCompile(`\([^)]*\)`)
	digitComma  = regexp.MustCompile(`(\d),(\d)`)
	digitHyphen = regexp.MustCompile(`(\d)-(\d)`)
	spaceRe     = regexp.MustCompile(`[ \t]+`)
	spaceComma  = regexp.MustCompile(`\s+,`)

	streetTypes = map[string]string{
		"Avenue":    "Ave",
		"Boulevard": "Blvd",
		"Circle":    "Cir",
		"Court":     "Ct",
		"Drive":     "Dr",
		"Highway":   "Hwy",
		"Lane":      "Ln",
		"Parkway":   "Pkwy",
		"Place":     "Pl",
		"Road":      "Rd",
		"Square":    "Sq",
		"Street":    "St",
		"Terrace":   "Ter",
		"Trail":     "Trl",
		"Turnpike":  "Tpke",
	}
	streetTypeRe = buildStreetTypeRe()
)

func buildStreetTypeRe() *regexp.Regexp {
	names := make([]string, 0, len(streetTypes))
	for name := range streetTypes {
		names = append(names, name)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)\b`)
}

// Normalize cleans a raw model answer into a geocodable single-line
// address, or "" when the answer is the sentinel or degenerates to
// nothing. The function is idempotent: feeding its output back in
// returns the same string.
func Normalize(raw, state string) string {
	s := llm.StripThink(raw)
	s = strings.TrimSpace(s)

	if s == "" || strings.EqualFold(s, Sentinel) {
		return ""
	}

	// Parenthesised asides and "Note:" lines are model commentary, not
	// address.
	s = parenRe.ReplaceAllString(s, "")
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "Note:") {
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, "\n")
	s = strings.TrimSpace(s)

	// A chatty multi-line or comma-heavy answer gets cut down to
	// whichever is shorter of its first line or its first three comma
	// segments.
	if strings.Count(s, ",") > 3 || strings.Contains(s, "\n") {
		firstLine := strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
		segments := strings.SplitN(s, ",", 4)
		if len(segments) > 3 {
			segments = segments[:3]
		}
		joined := strings.TrimSpace(strings.Join(segments, ","))
		joined = strings.ReplaceAll(joined, "\n", " ")
		if len(firstLine) <= len(joined) {
			s = firstLine
		} else {
			s = joined
		}
	}

	// "12,325" and "7-9-0-8" are spoken digit groups, not separators.
	for {
		next := digitComma.ReplaceAllString(s, "$1$2")
		next = digitHyphen.ReplaceAllString(next, "$1$2")
		if next == s {
			break
		}
		s = next
	}

	s = streetTypeRe.ReplaceAllStringFunc(s, func(match string) string {
		for name, abbr := range streetTypes {
			if strings.EqualFold(match, name) {
				return abbr
			}
		}
		return match
	})

	s = spaceRe.ReplaceAllString(s, " ")
	s = spaceComma.ReplaceAllString(s, ",")
	s = strings.TrimSpace(strings.Trim(s, ","))
	if s == "" {
		return ""
	}

	if state != "" && !hasState(s, state) {
		s += ", " + state
	}
	return s
}

func hasState(s, state string) bool {
	re := regexp.MustCompile(`(?i),\s*` + regexp.QuoteMeta(state) + `\b`)
	return re.MatchString(s)
}
