package value

import (
	"slices"
	"testing"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"name", []string{"name"}},
		{"a.b.c", []string{"a", "b", "c"}},
		{"a[0]", []string{"a", "0"}},
		{"a[0].b", []string{"a", "0", "b"}},
		{"a.0.b", []string{"a", "0", "b"}},
		{`a["key"]`, []string{"a", "key"}},
		{`a['key']`, []string{"a", "key"}},
		{`a["dotted.key"]`, []string{"a", "dotted.key"}},
		{`a["bracket]key"]`, []string{"a", "bracket]key"}},
		{"a[0][1]", []string{"a", "0", "1"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := SplitPath(tt.path); !slices.Equal(got, tt.want) {
			t.Errorf("SplitPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestResolvePath(t *testing.T) {
	doc, err := FromJSON([]byte(`{
		"product": {"vendors": [{"name": "a"}, {"name": "b"}]},
		"dotted.key": 7,
		"0": "zero-key"
	}`))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want string
	}{
		{"product.vendors.1.name", "b"},
		{"product.vendors[0].name", "a"},
		{`["dotted.key"]`, "7"},
		{"0", "zero-key"},
	}
	for _, tt := range tests {
		got, ok := doc.ResolvePath(tt.path)
		if !ok {
			t.Errorf("ResolvePath(%q) missed", tt.path)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ResolvePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestResolvePathEmpty(t *testing.T) {
	v := FromInt(3)
	got, ok := v.ResolvePath("")
	if !ok || got.String() != "3" {
		t.Error("empty path should yield the value itself")
	}
}

func TestResolvePathMisses(t *testing.T) {
	doc, _ := FromJSON([]byte(`{"a": [1, 2], "s": "str"}`))
	misses := []string{
		"missing",
		"a.5",
		"a.x",
		"s.anything",
		"a.0.deeper",
	}
	for _, path := range misses {
		if got, ok := doc.ResolvePath(path); ok {
			t.Errorf("ResolvePath(%q) = %v, want miss", path, got)
		} else if !got.IsUndefined() {
			t.Errorf("ResolvePath(%q) miss should yield undefined", path)
		}
	}
}
