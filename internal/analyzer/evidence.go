package analyzer

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// evidenceRadius is how much surrounding markup an excerpt keeps.
const evidenceRadius = 40

// ReflectionEvidence excerpts where the payload landed in the
// post-submit document. Diffing against the pre-submit content trims
// the excerpt to markup the injection actually changed.
func ReflectionEvidence(before, after, payload string) string {
	idx := strings.Index(after, payload)
	if idx < 0 {
		return ""
	}

	// Prefer the inserted region reported by the diff when it contains
	// the payload; the raw index is the fallback.
	if before != "" {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(before, after, false)
		for _, d := range diffs {
			if d.Type == diffmatchpatch.DiffInsert && strings.Contains(d.Text, payload) {
				return excerpt(d.Text, strings.Index(d.Text, payload), len(payload))
			}
		}
	}
	return excerpt(after, idx, len(payload))
}

func excerpt(s string, idx, n int) string {
	start := idx - evidenceRadius
	if start < 0 {
		start = 0
	}
	end := idx + n + evidenceRadius
	if end > len(s) {
		end = len(s)
	}
	out := s[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(s) {
		out = out + "..."
	}
	return out
}
