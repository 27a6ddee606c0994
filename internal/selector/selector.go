// Package selector parses the inclusion/exclusion selector grammar a
// numbered upgrade menu accepts (spec.md §4.5, Glossary "Selector
// grammar"): whitespace- or comma-separated tokens, each an integer, a
// range a-b, or a repository name, with an optional leading `^` that
// negates the token.
package selector

import (
	"strconv"
	"strings"
)

type numRange struct {
	start, end int // inclusive
}

// Selection is a parsed selector: the include/exclude sets a numbered
// menu's "keep this one" decision is tested against.
type Selection struct {
	includeRanges []numRange
	excludeRanges []numRange
	includeWords  []string
	excludeWords  []string
}

// Parse splits input on whitespace/commas and classifies each token as a
// negated-or-not integer, numeric range, or bare word (matched against a
// menu entry's repository name, case-sensitively).
func Parse(input string) Selection {
	var s Selection

	for _, word := range strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}) {
		invert := strings.HasPrefix(word, "^")
		word = strings.TrimPrefix(word, "^")
		if word == "" {
			continue
		}

		start, end, ok := parseToken(word)
		if !ok {
			if invert {
				s.excludeWords = append(s.excludeWords, word)
			} else {
				s.includeWords = append(s.includeWords, word)
			}
			continue
		}
		r := numRange{start: start, end: end}
		if invert {
			s.excludeRanges = append(s.excludeRanges, r)
		} else {
			s.includeRanges = append(s.includeRanges, r)
		}
	}

	return s
}

// parseToken recognizes "N" or "A-B" as an inclusive numeric range;
// anything else (including a malformed range like "a-b") is not a
// number token at all.
func parseToken(word string) (start, end int, ok bool) {
	before, after, hasDash := strings.Cut(word, "-")
	start, err := strconv.Atoi(before)
	if err != nil {
		return 0, 0, false
	}
	if !hasDash {
		return start, start, true
	}
	end, err = strconv.Atoi(after)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

// Contains reports whether entry n (a numbered menu's 1-based index) or
// word (its repository name) is selected: an explicit include wins, an
// explicit exclude loses, and absent either, the entry is selected only
// when the input carried no inclusion tokens at all ("all except" mode,
// Glossary "exclusion-only input means 'all except'").
func (s Selection) Contains(n int, word string) bool {
	if inRanges(s.includeRanges, n) || inWords(s.includeWords, word) {
		return true
	}
	if inRanges(s.excludeRanges, n) || inWords(s.excludeWords, word) {
		return false
	}
	return len(s.includeRanges) == 0 && len(s.includeWords) == 0
}

func inRanges(ranges []numRange, n int) bool {
	for _, r := range ranges {
		if n >= r.start && n <= r.end {
			return true
		}
	}
	return false
}

func inWords(words []string, word string) bool {
	for _, w := range words {
		if w == word {
			return true
		}
	}
	return false
}
