package workflows

import (
	"strings"
)

// Broaden derives the retry query for the given attempt (attempt 1 is the
// resolved query itself). Broadening is purely syntactic and deterministic:
// the same resolved query and attempt number always produce the same retry
// query, so workflow replays stay consistent. Each attempt applies one more
// relaxation, in order:
//
//  1. strip quoted phrases, keeping their words
//  2. drop the trailing qualifier clause
//  3. drop the longest remaining term
//
// A relaxation that changes nothing falls through to the next, so retry
// queries differ from their predecessor whenever the query has anything
// left to relax.
func Broaden(query string, attempt int) string {
	q := strings.TrimSpace(query)
	for i := 2; i <= attempt; i++ {
		q = relaxOnce(q)
	}
	return q
}

func relaxOnce(q string) string {
	for _, relax := range []func(string) string{stripQuotes, dropTrailingClause, dropLongestTerm} {
		if out := relax(q); out != q {
			return out
		}
	}
	return q
}

func stripQuotes(q string) string {
	if !strings.ContainsAny(q, `"'`) {
		return q
	}
	out := strings.NewReplacer(`"`, "", `'`, "").Replace(q)
	return collapse(out)
}

// dropTrailingClause cuts the query at its last clause separator: a comma,
// or a trailing " in "/" for "/" during " qualifier past the midpoint.
func dropTrailingClause(q string) string {
	if idx := strings.LastIndex(q, ","); idx > 0 {
		return collapse(q[:idx])
	}
	for _, sep := range []string{" in ", " for ", " during ", " since "} {
		if idx := strings.LastIndex(q, sep); idx > len(q)/2 {
			return collapse(q[:idx])
		}
	}
	return q
}

func dropLongestTerm(q string) string {
	terms := strings.Fields(q)
	if len(terms) <= 2 {
		return q
	}
	longest := 0
	for i, t := range terms {
		if len(t) > len(terms[longest]) {
			longest = i
		}
	}
	return collapse(strings.Join(append(terms[:longest:longest], terms[longest+1:]...), " "))
}

func collapse(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
