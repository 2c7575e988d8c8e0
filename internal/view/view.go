// Package view computes read-only projections over a clip list.
//
// Every function here is pure and synchronous: it takes the snapshot
// returned by the engine's List() and never mutates it. Projections are
// recomputed per query rather than cached; at clipboard volumes
// (hundreds to low thousands of records) recomputation is cheaper than
// invalidation bookkeeping.
package view

import (
	"regexp"
	"strings"
	"time"

	"github.com/clipd-io/clipd/internal/clip"
)

// Mode selects the search matching strategy.
type Mode string

const (
	// ModePlain matches case-insensitive substrings.
	ModePlain Mode = "plain"

	// ModeRegex treats the query as a regular expression. An invalid
	// pattern falls back to plain substring matching rather than
	// raising to the caller.
	ModeRegex Mode = "regex"

	// ModeFuzzy matches when the content contains the query verbatim,
	// or when at least 60% of the query's characters individually
	// appear in the content. Looser than exact, stricter than
	// always-true; a coarse heuristic, not edit distance.
	ModeFuzzy Mode = "fuzzy"
)

// fuzzyThreshold is the fraction of query characters that must appear
// in the content for a fuzzy match.
const fuzzyThreshold = 0.6

// Options configures Filtered.
//
// Filters apply in a fixed order: CodeOnly, date range, Query,
// Exclude, Type.
type Options struct {
	// Query is the search string. Empty matches everything.
	Query string

	// Mode selects how Query matches. Empty means ModePlain.
	Mode Mode

	// Type keeps only records with this classifier tag. Empty keeps all.
	Type string

	// Exclude drops records containing any of these terms
	// (case-insensitive substring).
	Exclude []string

	// Since / Until bound created_at (inclusive since, exclusive
	// until). Zero values are unbounded.
	Since time.Time
	Until time.Time

	// CodeOnly keeps only records tagged "code".
	CodeOnly bool
}

// Filtered returns the records matching opts, preserving input order.
func Filtered(list []*clip.Clip, opts Options) []*clip.Clip {
	out := list

	if opts.CodeOnly {
		out = keep(out, func(c *clip.Clip) bool { return c.Type == "code" })
	}

	if !opts.Since.IsZero() || !opts.Until.IsZero() {
		out = keep(out, func(c *clip.Clip) bool {
			if !opts.Since.IsZero() && c.CreatedAt.Before(opts.Since) {
				return false
			}
			if !opts.Until.IsZero() && !c.CreatedAt.Before(opts.Until) {
				return false
			}
			return true
		})
	}

	if opts.Query != "" {
		match := matcher(opts.Query, opts.Mode)
		out = keep(out, func(c *clip.Clip) bool { return match(c.Content) })
	}

	if len(opts.Exclude) > 0 {
		terms := make([]string, len(opts.Exclude))
		for i, t := range opts.Exclude {
			terms[i] = strings.ToLower(t)
		}
		out = keep(out, func(c *clip.Clip) bool {
			content := strings.ToLower(c.Content)
			for _, t := range terms {
				if t != "" && strings.Contains(content, t) {
					return false
				}
			}
			return true
		})
	}

	if opts.Type != "" {
		out = keep(out, func(c *clip.Clip) bool { return c.Type == opts.Type })
	}

	// Always hand back a fresh slice so callers can't alias the input.
	if len(out) == len(list) {
		out = append([]*clip.Clip{}, out...)
	}
	return out
}

// keep returns the elements of list satisfying pred.
func keep(list []*clip.Clip, pred func(*clip.Clip) bool) []*clip.Clip {
	out := []*clip.Clip{}
	for _, c := range list {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// matcher builds the content predicate for a query and mode.
func matcher(query string, mode Mode) func(string) bool {
	lowered := strings.ToLower(query)

	switch mode {
	case ModeRegex:
		re, err := regexp.Compile("(?i)" + query)
		if err != nil {
			// Invalid pattern: degrade to substring matching.
			break
		}
		return re.MatchString

	case ModeFuzzy:
		return func(content string) bool {
			c := strings.ToLower(content)
			if strings.Contains(c, lowered) {
				return true
			}
			return fuzzyMatch(c, lowered)
		}
	}

	return func(content string) bool {
		return strings.Contains(strings.ToLower(content), lowered)
	}
}

// fuzzyMatch reports whether enough of query's characters individually
// appear in content.
func fuzzyMatch(content, query string) bool {
	runes := []rune(query)
	if len(runes) == 0 {
		return true
	}

	matched := 0
	for _, r := range runes {
		if strings.ContainsRune(content, r) {
			matched++
		}
	}
	return float64(matched)/float64(len(runes)) >= fuzzyThreshold
}

// Groups partitions records into display-time age buckets.
type Groups struct {
	Today     []*clip.Clip // age < 24h
	Yesterday []*clip.Clip // 24h <= age < 48h
	ThisWeek  []*clip.Clip // 48h <= age < 7d
	Older     []*clip.Clip // age >= 7d
}

// Grouped buckets the (already filtered) list by age relative to the
// wall clock at call time. Buckets shift as time advances; that's
// intended.
func Grouped(list []*clip.Clip) Groups {
	return GroupedAt(list, time.Now())
}

// GroupedAt buckets list by age relative to now.
func GroupedAt(list []*clip.Clip, now time.Time) Groups {
	g := Groups{
		Today:     []*clip.Clip{},
		Yesterday: []*clip.Clip{},
		ThisWeek:  []*clip.Clip{},
		Older:     []*clip.Clip{},
	}

	for _, c := range list {
		age := now.Sub(c.CreatedAt)
		switch {
		case age < 24*time.Hour:
			g.Today = append(g.Today, c)
		case age < 48*time.Hour:
			g.Yesterday = append(g.Yesterday, c)
		case age < 7*24*time.Hour:
			g.ThisWeek = append(g.ThisWeek, c)
		default:
			g.Older = append(g.Older, c)
		}
	}

	return g
}

// Counts maps each type tag to its record count, plus an "all" key
// equal to len(list). Counts are computed from the unfiltered canonical
// list so they reflect total data, not the active filter.
func Counts(list []*clip.Clip) map[string]int {
	counts := map[string]int{"all": len(list)}
	for _, c := range list {
		counts[c.Type]++
	}
	return counts
}
