package payloads

import (
	"sort"
	"strings"
)

// Scorer ranks payloads by historical success. The effectiveness store
// satisfies this; tests use a map-backed fake.
type Scorer interface {
	// Scores returns the reflection and execution scores for a payload
	// on the given engine. Both are 0 when the payload was never tested.
	Scores(payload, browser string) (reflection, execution float64)
}

// Selection describes one smart-selection request.
type Selection struct {
	Context       Context
	AttributeKind AttributeKind
	Browser       string
	Limit         int
	// Custom payloads supplied by the caller: flat lists are taken
	// as-is, categorized forms are filtered by compatibility.
	Custom           []string
	CustomCategories []Category
	// Scorer is consulted when non-nil to rank candidates.
	Scorer Scorer
}

// diversityBuckets are structural shape predicates; the diversity pass
// guarantees early representation for each.
var diversityBuckets = []func(string) bool{
	func(p string) bool { return strings.Contains(strings.ToLower(p), "<script") },
	func(p string) bool { return strings.Contains(strings.ToLower(p), "<img") },
	func(p string) bool { return strings.Contains(strings.ToLower(p), "<svg") },
	func(p string) bool { return strings.Contains(strings.ToLower(p), "<iframe") },
	func(p string) bool {
		l := strings.ToLower(p)
		return strings.Contains(l, "onload") || strings.Contains(l, "onerror") ||
			strings.Contains(l, "onclick") || strings.Contains(l, "onmouseover")
	},
	func(p string) bool { return strings.Contains(p, `"`) || strings.Contains(p, `'`) },
	func(p string) bool {
		l := strings.ToLower(p)
		return strings.Contains(l, "javascript:") || strings.Contains(l, "data:")
	},
}

// Select runs the smart selection algorithm over the categorized bank:
// context + compatibility filter, browser-exclusive categories, caller
// payloads, dedup, effectiveness ranking, diversity pass, generic
// top-up, capped at the limit.
func Select(bank []Category, sel Selection) []string {
	limit := sel.Limit
	if limit <= 0 {
		limit = 25
	}

	var candidates []string

	// 1. Context-matched, compatible categories.
	for _, cat := range bank {
		if !cat.Compatibility.Supports(sel.Browser) {
			continue
		}
		if cat.Context != sel.Context {
			continue
		}
		if sel.Context == ContextAttribute && sel.AttributeKind != "" && cat.AttributeKind != sel.AttributeKind {
			continue
		}
		candidates = append(candidates, cat.Payloads...)
	}

	// 2. Browser-exclusive categories for the active engine.
	for _, cat := range bank {
		if cat.Compatibility.Exclusive() && cat.Compatibility.Supports(sel.Browser) {
			candidates = append(candidates, cat.Payloads...)
		}
	}

	// 3. Caller-supplied payloads.
	candidates = append(candidates, sel.Custom...)
	for _, cat := range sel.CustomCategories {
		if cat.Compatibility.Supports(sel.Browser) {
			candidates = append(candidates, cat.Payloads...)
		}
	}

	candidates = dedupe(candidates)

	// 4. Rank by per-browser effectiveness when available.
	if sel.Scorer != nil {
		type scored struct {
			payload    string
			reflection float64
			execution  float64
		}
		ranked := make([]scored, len(candidates))
		for i, p := range candidates {
			r, e := sel.Scorer.Scores(p, sel.Browser)
			ranked[i] = scored{payload: p, reflection: r, execution: e}
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].execution != ranked[j].execution {
				return ranked[i].execution > ranked[j].execution
			}
			return ranked[i].reflection > ranked[j].reflection
		})
		for i, s := range ranked {
			candidates[i] = s.payload
		}
	}

	// 5. Diversity pass: one representative per bucket, then fill from
	// the ranked list in order.
	selected := diversityPick(candidates, limit)

	// 6. Top up from other contexts' generic payloads when short.
	if len(selected) < limit {
		seen := toSet(selected)
		for _, cat := range bank {
			if cat.Context == sel.Context || !cat.Compatibility.Supports(sel.Browser) {
				continue
			}
			for _, p := range cat.Payloads {
				if len(selected) >= limit {
					break
				}
				if !seen[p] {
					seen[p] = true
					selected = append(selected, p)
				}
			}
		}
	}

	if len(selected) > limit {
		selected = selected[:limit]
	}
	return selected
}

// diversityPick walks ordered candidates taking the first payload for
// each unsatisfied bucket, then fills remaining slots in rank order.
func diversityPick(candidates []string, limit int) []string {
	taken := make(map[string]bool)
	var out []string

	satisfied := make([]bool, len(diversityBuckets))
	for bi, pred := range diversityBuckets {
		if len(out) >= limit {
			break
		}
		for _, p := range candidates {
			if taken[p] {
				continue
			}
			if pred(p) {
				taken[p] = true
				out = append(out, p)
				satisfied[bi] = true
				break
			}
		}
	}

	for _, p := range candidates {
		if len(out) >= limit {
			break
		}
		if !taken[p] {
			taken[p] = true
			out = append(out, p)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func toSet(in []string) map[string]bool {
	m := make(map[string]bool, len(in))
	for _, s := range in {
		m[s] = true
	}
	return m
}
