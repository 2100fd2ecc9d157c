// Package analyzer determines the injection context of an input field
// from URL parameter names and a live DOM walk around the input.
package analyzer

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/Serdar715/xssprobe/internal/browser"
	"github.com/Serdar715/xssprobe/internal/payloads"
)

// Result is the analyzer's verdict.
type Result struct {
	Context       payloads.Context
	AttributeKind payloads.AttributeKind
}

// urlHints maps parameter-name fragments to contexts; first match wins.
var urlHints = []struct {
	fragments []string
	context   payloads.Context
}{
	{[]string{"callback", "jsonp", "function", "js", "script"}, payloads.ContextJS},
	{[]string{"url", "redirect", "return", "next", "target", "path", "goto"}, payloads.ContextURL},
	{[]string{"style", "css", "theme", "color"}, payloads.ContextCSS},
}

// FromURL applies the parameter-name heuristics.
func FromURL(rawURL string) payloads.Context {
	u, err := url.Parse(rawURL)
	if err != nil {
		return payloads.ContextHTML
	}
	for name := range u.Query() {
		lower := strings.ToLower(name)
		for _, hint := range urlHints {
			for _, frag := range hint.fragments {
				if strings.Contains(lower, frag) {
					return hint.context
				}
			}
		}
	}
	return payloads.ContextHTML
}

// ancestorSummary is what the in-page walk returns. A single evaluate
// collects everything, avoiding one round-trip per ancestor.
type ancestorSummary struct {
	Found          bool     `json:"found"`
	InScript       bool     `json:"inScript"`
	InStyle        bool     `json:"inStyle"`
	HasOnAttribute bool     `json:"hasOnAttribute"`
	AttributeCount int      `json:"attributeCount"`
	Tag            string   `json:"tag"`
	URLAttributes  []string `json:"urlAttributes"`
}

const summaryScript = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) return JSON.stringify({ found: false });
	const out = {
		found: true,
		inScript: false,
		inStyle: false,
		hasOnAttribute: false,
		attributeCount: el.attributes.length,
		tag: el.tagName.toLowerCase(),
		urlAttributes: []
	};
	for (let node = el; node; node = node.parentElement) {
		if (node.tagName === 'SCRIPT') out.inScript = true;
		if (node.tagName === 'STYLE') out.inStyle = true;
	}
	for (const attr of el.attributes) {
		if (attr.name.toLowerCase().startsWith('on')) out.hasOnAttribute = true;
		if (['href', 'src', 'action'].includes(attr.name.toLowerCase())) out.urlAttributes.push(attr.name);
	}
	return JSON.stringify(out);
}`

// Analyze combines URL and page heuristics; the page walk overrides the
// URL guess when the element is found.
func Analyze(page browser.Page, targetURL, inputLocator string) Result {
	result := Result{Context: FromURL(targetURL)}
	if page == nil {
		return result
	}

	raw, err := page.Evaluate(summaryScript, inputLocator)
	if err != nil {
		return result
	}
	text, ok := raw.(string)
	if !ok {
		return result
	}
	var summary ancestorSummary
	if err := json.Unmarshal([]byte(text), &summary); err != nil || !summary.Found {
		return result
	}

	switch {
	case summary.InScript:
		result.Context = payloads.ContextJS
		result.AttributeKind = ""
	case summary.InStyle:
		result.Context = payloads.ContextCSS
		result.AttributeKind = ""
	case summary.HasOnAttribute:
		result.Context = payloads.ContextAttribute
		result.AttributeKind = payloads.AttrEventHandler
	case summary.AttributeCount > 0:
		result.Context = payloads.ContextAttribute
		result.AttributeKind = payloads.AttrUnquoted
	case summary.Tag == "a" || len(summary.URLAttributes) > 0:
		result.Context = payloads.ContextURL
		result.AttributeKind = ""
	default:
		result.Context = payloads.ContextHTML
		result.AttributeKind = ""
	}
	return result
}
