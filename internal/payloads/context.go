// Package payloads provides the payload corpus: deterministic template
// generation per injection context, the categorized default bank, and
// the browser-aware smart selector.
package payloads

// Context is the syntactic location a payload lands in.
type Context string

const (
	ContextHTML      Context = "html"
	ContextAttribute Context = "attribute"
	ContextJS        Context = "javascript"
	ContextURL       Context = "url"
	ContextCSS       Context = "css"
)

// AttributeKind refines ContextAttribute by quoting style.
type AttributeKind string

const (
	AttrUnquoted     AttributeKind = "unquoted"
	AttrSingleQuoted AttributeKind = "single-quoted"
	AttrDoubleQuoted AttributeKind = "double-quoted"
	AttrEventHandler AttributeKind = "event-handler"
)

// Contexts lists every supported context.
var Contexts = []Context{ContextHTML, ContextAttribute, ContextJS, ContextURL, ContextCSS}

// AttributeKinds lists every supported attribute kind.
var AttributeKinds = []AttributeKind{AttrUnquoted, AttrSingleQuoted, AttrDoubleQuoted, AttrEventHandler}

// ValidContext reports whether s names a supported context.
func ValidContext(s string) bool {
	for _, c := range Contexts {
		if string(c) == s {
			return true
		}
	}
	return false
}

// ValidAttributeKind reports whether s names a supported attribute kind.
func ValidAttributeKind(s string) bool {
	for _, k := range AttributeKinds {
		if string(k) == s {
			return true
		}
	}
	return false
}
