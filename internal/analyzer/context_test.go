package analyzer

import (
	"strings"
	"testing"

	"github.com/Serdar715/xssprobe/internal/payloads"
)

func TestFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want payloads.Context
	}{
		{"callback param", "http://example.com/api?callback=fn", payloads.ContextJS},
		{"jsonp param", "http://example.com/api?jsonp=x", payloads.ContextJS},
		{"redirect param", "http://example.com/?redirect=/home", payloads.ContextURL},
		{"next param", "http://example.com/login?next=/account", payloads.ContextURL},
		{"goto param", "http://example.com/?goto=x", payloads.ContextURL},
		{"theme param", "http://example.com/?theme=dark", payloads.ContextCSS},
		{"color param", "http://example.com/?color=red", payloads.ContextCSS},
		{"plain search", "http://example.com/?q=hello", payloads.ContextHTML},
		{"no params", "http://example.com/", payloads.ContextHTML},
		{"unparseable", "://notaurl", payloads.ContextHTML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromURL(tt.url); got != tt.want {
				t.Errorf("FromURL(%s) = %s, want %s", tt.url, got, tt.want)
			}
		})
	}
}

// evalPage fakes the single-evaluate ancestor walk.
type evalPage struct {
	summary string
	err     error
}

func (p *evalPage) Goto(string, float64) error                           { return nil }
func (p *evalPage) Fill(string, string, float64) error                   { return nil }
func (p *evalPage) Click(string, float64) error                          { return nil }
func (p *evalPage) Press(string, string, float64) error                  { return nil }
func (p *evalPage) Content() (string, error)                             { return "", nil }
func (p *evalPage) AddInitScript(string) error                           { return nil }
func (p *evalPage) WaitForLoadState(string, float64) error               { return nil }
func (p *evalPage) SetContent(string) error                              { return nil }
func (p *evalPage) OnDialog(func(string))                                {}
func (p *evalPage) IsClosed() bool                                       { return false }
func (p *evalPage) Close() error                                         { return nil }
func (p *evalPage) Evaluate(string, ...interface{}) (interface{}, error) { return p.summary, p.err }

func TestAnalyzePageOverridesURL(t *testing.T) {
	tests := []struct {
		name     string
		summary  string
		wantCtx  payloads.Context
		wantKind payloads.AttributeKind
	}{
		{
			name:    "inside script",
			summary: `{"found":true,"inScript":true}`,
			wantCtx: payloads.ContextJS,
		},
		{
			name:    "inside style",
			summary: `{"found":true,"inStyle":true}`,
			wantCtx: payloads.ContextCSS,
		},
		{
			name:     "event handler attribute",
			summary:  `{"found":true,"hasOnAttribute":true,"attributeCount":3,"tag":"input"}`,
			wantCtx:  payloads.ContextAttribute,
			wantKind: payloads.AttrEventHandler,
		},
		{
			name:     "plain attributes",
			summary:  `{"found":true,"attributeCount":2,"tag":"input"}`,
			wantCtx:  payloads.ContextAttribute,
			wantKind: payloads.AttrUnquoted,
		},
		{
			name:    "anchor element",
			summary: `{"found":true,"attributeCount":0,"tag":"a"}`,
			wantCtx: payloads.ContextURL,
		},
		{
			name:    "bare element",
			summary: `{"found":true,"attributeCount":0,"tag":"span"}`,
			wantCtx: payloads.ContextHTML,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(&evalPage{summary: tt.summary}, "http://example.com/?q=x", "input[name=q]")
			if got.Context != tt.wantCtx {
				t.Errorf("Context = %s, want %s", got.Context, tt.wantCtx)
			}
			if got.AttributeKind != tt.wantKind {
				t.Errorf("AttributeKind = %s, want %s", got.AttributeKind, tt.wantKind)
			}
		})
	}
}

func TestAnalyzeFallsBackToURL(t *testing.T) {
	// Element not found: the URL heuristic's verdict survives.
	got := Analyze(&evalPage{summary: `{"found":false}`}, "http://example.com/?redirect=x", "input")
	if got.Context != payloads.ContextURL {
		t.Errorf("Context = %s, want url fallback", got.Context)
	}
}

func TestReflectionEvidence(t *testing.T) {
	before := "<html><body><p>Results for: </p></body></html>"
	after := "<html><body><p>Results for: <b>probe</b></p></body></html>"

	evidence := ReflectionEvidence(before, after, "<b>probe</b>")
	if evidence == "" {
		t.Fatal("evidence should not be empty when the payload reflected")
	}
	if !strings.Contains(evidence, "<b>probe</b>") {
		t.Errorf("evidence %q should contain the payload", evidence)
	}

	if got := ReflectionEvidence(before, after, "<i>missing</i>"); got != "" {
		t.Errorf("no reflection should yield no evidence, got %q", got)
	}
}
