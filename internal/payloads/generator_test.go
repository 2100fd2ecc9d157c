package payloads

import (
	"reflect"
	"strings"
	"testing"
)

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(ContextHTML, GenerateOptions{})
	b := Generate(ContextHTML, GenerateOptions{})
	if !reflect.DeepEqual(a, b) {
		t.Error("same inputs should yield the same payload list")
	}
	if len(a) == 0 {
		t.Fatal("HTML context should produce payloads")
	}
}

func TestGenerateOptions(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		opts GenerateOptions
		want func(p string) bool
	}{
		{
			name: "alert value substitution",
			ctx:  ContextHTML,
			opts: GenerateOptions{AlertValue: "document.domain"},
			want: func(p string) bool { return strings.Contains(p, "alert(document.domain)") },
		},
		{
			name: "prefix and suffix",
			ctx:  ContextJS,
			opts: GenerateOptions{Prefix: "PRE", Suffix: "POST"},
			want: func(p string) bool { return strings.HasPrefix(p, "PRE") && strings.HasSuffix(p, "POST") },
		},
		{
			name: "url encoding",
			ctx:  ContextHTML,
			opts: GenerateOptions{URLEncode: true},
			want: func(p string) bool { return !strings.Contains(p, "<") && !strings.Contains(p, ">") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, p := range Generate(tt.ctx, tt.opts) {
				if !tt.want(p) {
					t.Errorf("payload %q does not satisfy option", p)
				}
			}
		})
	}
}

func TestGenerateAttributeKinds(t *testing.T) {
	for _, kind := range AttributeKinds {
		t.Run(string(kind), func(t *testing.T) {
			list := Generate(ContextAttribute, GenerateOptions{AttributeKind: kind})
			if len(list) == 0 {
				t.Errorf("attribute kind %s produced no payloads", kind)
			}
		})
	}

	double := Generate(ContextAttribute, GenerateOptions{AttributeKind: AttrDoubleQuoted})
	foundBreakout := false
	for _, p := range double {
		if strings.HasPrefix(p, `"`) {
			foundBreakout = true
		}
	}
	if !foundBreakout {
		t.Error("double-quoted payloads should break out with a double quote")
	}
}

func TestDefaultBankCoverage(t *testing.T) {
	bank := DefaultBank()

	wantContexts := map[Context]bool{}
	wantKinds := map[AttributeKind]bool{}
	for _, cat := range bank {
		wantContexts[cat.Context] = true
		if cat.AttributeKind != "" {
			wantKinds[cat.AttributeKind] = true
		}
		if len(cat.Payloads) == 0 {
			t.Errorf("category %s is empty", cat.Category)
		}
		if cat.Description == "" {
			t.Errorf("category %s has no description", cat.Category)
		}
	}
	for _, c := range Contexts {
		if !wantContexts[c] {
			t.Errorf("bank does not cover context %s", c)
		}
	}
	for _, k := range AttributeKinds {
		if !wantKinds[k] {
			t.Errorf("bank does not cover attribute kind %s", k)
		}
	}
}

func TestCategorizedFileRoundTrip(t *testing.T) {
	path := t.TempDir() + "/bank.json"
	bank := DefaultBank()
	if err := WriteCategorizedFile(path, bank); err != nil {
		t.Fatalf("WriteCategorizedFile: %v", err)
	}
	loaded, err := LoadCategorizedFile(path)
	if err != nil {
		t.Fatalf("LoadCategorizedFile: %v", err)
	}
	if len(loaded) != len(bank) {
		t.Fatalf("loaded %d categories, want %d", len(loaded), len(bank))
	}
	for i := range bank {
		if loaded[i].Category != bank[i].Category {
			t.Errorf("category order changed: %s vs %s", loaded[i].Category, bank[i].Category)
		}
	}
}

func TestFlattenCompatible(t *testing.T) {
	bank := []Category{
		{Category: "all", Compatibility: Compatibility{Chromium: true, Firefox: true, Webkit: true}, Payloads: []string{"a"}},
		{Category: "webkit-only", Compatibility: Compatibility{Webkit: true}, Payloads: []string{"b"}},
	}
	got := FlattenCompatible(bank, "chromium")
	if !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("FlattenCompatible(chromium) = %v", got)
	}
	got = FlattenCompatible(bank, "webkit")
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("FlattenCompatible(webkit) = %v", got)
	}
}
