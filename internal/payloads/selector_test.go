package payloads

import (
	"strings"
	"testing"
)

// mapScorer is a test double for the effectiveness store.
type mapScorer struct {
	execution  map[string]float64
	reflection map[string]float64
}

func (m *mapScorer) Scores(payload, browser string) (float64, float64) {
	return m.reflection[payload], m.execution[payload]
}

func TestSelectFiltersByContextAndCompat(t *testing.T) {
	bank := []Category{
		{Category: "html", Context: ContextHTML, Compatibility: Compatibility{Chromium: true, Firefox: true, Webkit: true}, Payloads: []string{"<b>html</b>"}},
		{Category: "js", Context: ContextJS, Compatibility: Compatibility{Chromium: true, Firefox: true, Webkit: true}, Payloads: []string{"';js;//"}},
		{Category: "html-ff", Context: ContextHTML, Compatibility: Compatibility{Firefox: true}, Payloads: []string{"<marquee onstart=x>"}},
	}

	got := Select(bank, Selection{Context: ContextHTML, Browser: "chromium", Limit: 2})
	for _, p := range got {
		if p == "<marquee onstart=x>" {
			t.Error("firefox-only payload selected for chromium")
		}
	}
	if got[0] != "<b>html</b>" {
		t.Errorf("context-matched payload should lead, got %v", got)
	}
}

func TestSelectBrowserExclusiveAppended(t *testing.T) {
	bank := []Category{
		{Category: "html", Context: ContextHTML, Compatibility: Compatibility{Chromium: true, Firefox: true, Webkit: true}, Payloads: []string{"<b>a</b>"}},
		{Category: "wk", Context: ContextHTML, Compatibility: Compatibility{Webkit: true}, Payloads: []string{"<svg><animate onbegin=x>"}},
	}
	got := Select(bank, Selection{Context: ContextCSS, Browser: "webkit", Limit: 10})
	found := false
	for _, p := range got {
		if p == "<svg><animate onbegin=x>" {
			found = true
		}
	}
	if !found {
		t.Errorf("webkit-exclusive category should be included, got %v", got)
	}
}

func TestSelectDeduplicates(t *testing.T) {
	bank := []Category{
		{Category: "a", Context: ContextHTML, Compatibility: Compatibility{Chromium: true}, Payloads: []string{"dup", "dup", "one"}},
	}
	got := Select(bank, Selection{Context: ContextHTML, Browser: "chromium", Limit: 10, Custom: []string{"dup", "two"}})
	seen := map[string]int{}
	for _, p := range got {
		seen[p]++
	}
	if seen["dup"] != 1 {
		t.Errorf("duplicate payload appears %d times", seen["dup"])
	}
}

func TestSelectEffectivenessOrdering(t *testing.T) {
	bank := []Category{
		{Category: "html", Context: ContextHTML, Compatibility: Compatibility{Chromium: true}, Payloads: []string{"weak", "strong", "medium"}},
	}
	scorer := &mapScorer{
		execution:  map[string]float64{"strong": 0.9, "medium": 0.5, "weak": 0.0},
		reflection: map[string]float64{"strong": 0.9, "medium": 0.9, "weak": 0.1},
	}
	got := Select(bank, Selection{Context: ContextHTML, Browser: "chromium", Limit: 3, Scorer: scorer})
	if got[0] != "strong" || got[1] != "medium" || got[2] != "weak" {
		t.Errorf("effectiveness ordering wrong: %v", got)
	}
}

func TestDiversityPass(t *testing.T) {
	// One candidate per structural bucket, preceded by filler that
	// belongs to the first bucket only.
	candidates := []string{
		"<script>alert(1)</script>",
		"<script>alert(2)</script>",
		"<script>alert(3)</script>",
		"<img src=x onerror=alert(1)>",
		"<svg onload=alert(1)>",
		"<iframe srcdoc=x>",
		"plain onmouseover=alert(1)",
		`" breakout`,
		"javascript:alert(1)",
	}
	bank := []Category{
		{Category: "html", Context: ContextHTML, Compatibility: Compatibility{Chromium: true}, Payloads: candidates},
	}
	got := Select(bank, Selection{Context: ContextHTML, Browser: "chromium", Limit: 7})
	if len(got) != 7 {
		t.Fatalf("got %d payloads, want 7", len(got))
	}

	buckets := []func(string) bool{
		func(p string) bool { return strings.Contains(p, "<script") },
		func(p string) bool { return strings.Contains(p, "<img") },
		func(p string) bool { return strings.Contains(p, "<svg") },
		func(p string) bool { return strings.Contains(p, "<iframe") },
		func(p string) bool {
			return strings.Contains(p, "onload") || strings.Contains(p, "onerror") ||
				strings.Contains(p, "onclick") || strings.Contains(p, "onmouseover")
		},
		func(p string) bool { return strings.Contains(p, `"`) || strings.Contains(p, `'`) },
		func(p string) bool { return strings.Contains(p, "javascript:") || strings.Contains(p, "data:") },
	}
	hit := 0
	for _, pred := range buckets {
		for _, p := range got {
			if pred(p) {
				hit++
				break
			}
		}
	}
	if hit < 6 {
		t.Errorf("first 7 selections hit only %d buckets, want >= 6: %v", hit, got)
	}
}

func TestSelectTopUpFromOtherContexts(t *testing.T) {
	bank := []Category{
		{Category: "css", Context: ContextCSS, Compatibility: Compatibility{Chromium: true}, Payloads: []string{"}x{"}},
		{Category: "html", Context: ContextHTML, Compatibility: Compatibility{Chromium: true}, Payloads: []string{"<b>1</b>", "<b>2</b>"}},
	}
	got := Select(bank, Selection{Context: ContextCSS, Browser: "chromium", Limit: 3})
	if len(got) != 3 {
		t.Fatalf("shortfall should be topped up from other contexts, got %v", got)
	}
	if got[0] != "}x{" {
		t.Errorf("context payload should still lead: %v", got)
	}
}

func TestSelectRespectsLimit(t *testing.T) {
	var many []string
	for i := 0; i < 50; i++ {
		many = append(many, strings.Repeat("x", i+1))
	}
	bank := []Category{
		{Category: "html", Context: ContextHTML, Compatibility: Compatibility{Chromium: true}, Payloads: many},
	}
	got := Select(bank, Selection{Context: ContextHTML, Browser: "chromium", Limit: 10})
	if len(got) != 10 {
		t.Errorf("limit not respected: got %d", len(got))
	}
}

func TestSelectAttributeKindFilter(t *testing.T) {
	all := Compatibility{Chromium: true, Firefox: true, Webkit: true}
	bank := []Category{
		{Category: "dq", Context: ContextAttribute, AttributeKind: AttrDoubleQuoted, Compatibility: all, Payloads: []string{`" dq`}},
		{Category: "eh", Context: ContextAttribute, AttributeKind: AttrEventHandler, Compatibility: all, Payloads: []string{"alert(1)"}},
	}
	got := Select(bank, Selection{Context: ContextAttribute, AttributeKind: AttrEventHandler, Browser: "chromium", Limit: 1})
	if len(got) == 0 || got[0] != "alert(1)" {
		t.Errorf("attribute-kind filter failed: %v", got)
	}
}
