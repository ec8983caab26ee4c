package lysine

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ctcl-bregis/lysine/value"
)

func TestTemplatesSorted(t *testing.T) {
	e := New()
	err := e.AddRawTemplates(map[string]string{
		"c.html": "c", "a.html": "a", "b.html": "b",
	})
	if err != nil {
		t.Fatalf("add templates: %v", err)
	}
	names := e.Templates()
	if len(names) != 3 || names[0] != "a.html" || names[1] != "b.html" || names[2] != "c.html" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestGetTemplateUnknown(t *testing.T) {
	e := New()
	_, err := e.GetTemplate("ghost.html")
	if err == nil {
		t.Fatal("expected error")
	}
	wantKind(t, err, ErrTemplateNotFound)
}

func TestRenderUnknownTemplate(t *testing.T) {
	e := New()
	_, err := e.Render("ghost.html", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	wantKind(t, err, ErrTemplateNotFound)
}

func TestAddRawTemplatesAtomic(t *testing.T) {
	e := New()
	err := e.AddRawTemplates(map[string]string{
		"good.html": "fine",
		"bad.html":  "{% if %}broken",
	})
	if err == nil {
		t.Fatal("expected syntax error")
	}
	wantKind(t, err, ErrSyntax)
	if names := e.Templates(); len(names) != 0 {
		t.Errorf("expected no templates after failed batch, got %v", names)
	}
}

func TestAutoescapeBySuffix(t *testing.T) {
	e := New()
	err := e.AddRawTemplates(map[string]string{
		"page.lism": "{{ v }}",
		"page.txt":  "{{ v }}",
	})
	if err != nil {
		t.Fatalf("add templates: %v", err)
	}
	ctx := ContextFromMap(map[string]any{"v": `<&>"'/`})

	got, err := e.Render("page.lism", ctx)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "&lt;&amp;&gt;&quot;&#x27;&#x2F;" {
		t.Errorf("expected escaped output, got %q", got)
	}

	got, err = e.Render("page.txt", ctx)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != `<&>"'/` {
		t.Errorf("expected raw output, got %q", got)
	}
}

func TestSafeFilterSkipsEscaping(t *testing.T) {
	e := New()
	if err := e.AddRawTemplate("page.lism", "{{ v | safe }}|{{ v }}"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	got, err := e.Render("page.lism", ContextFromMap(map[string]any{"v": "<b>"}))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "<b>|&lt;b&gt;" {
		t.Errorf("expected '<b>|&lt;b&gt;', got %q", got)
	}
}

func TestEscapeFilters(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{"v": `<&>"'`})
	got := renderOne(t, e, "{{ v | escape }}", ctx)
	if got != "&lt;&amp;&gt;&quot;&#x27;" {
		t.Errorf("unexpected escape output: %q", got)
	}
	got = renderOne(t, e, "{{ v | escape_xml }}", ctx)
	if got != "&lt;&amp;&gt;&quot;&apos;" {
		t.Errorf("unexpected escape_xml output: %q", got)
	}
	// escape marks its output safe, so autoescaping will not double it.
	if err := e.AddRawTemplate("page.lism", "{{ v | escape }}"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	got, err := e.Render("page.lism", ctx)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "&lt;&amp;&gt;&quot;&#x27;" {
		t.Errorf("expected single escaping, got %q", got)
	}
}

func TestMacroOutputNotReescaped(t *testing.T) {
	e := New()
	src := "{% macro cell(v) %}<td>{{ v }}</td>{% endmacro %}{{ self::cell(raw) }}"
	if err := e.AddRawTemplate("page.lism", src); err != nil {
		t.Fatalf("add template: %v", err)
	}
	got, err := e.Render("page.lism", ContextFromMap(map[string]any{"raw": "<x>"}))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	// The argument escapes inside the macro; the assembled markup does not
	// escape again on interpolation.
	if got != "<td>&lt;x&gt;</td>" {
		t.Errorf("expected '<td>&lt;x&gt;</td>', got %q", got)
	}
}

func TestFilterSectionEscapesOnce(t *testing.T) {
	e := New()
	if err := e.AddRawTemplate("page.lism", "{% filter trim %} {{ v }} {% endfilter %}"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	got, err := e.Render("page.lism", ContextFromMap(map[string]any{"v": "<b>"}))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "&lt;b&gt;" {
		t.Errorf("expected '&lt;b&gt;', got %q", got)
	}
}

func TestAutoescapeOnReplacesSuffixes(t *testing.T) {
	e := New()
	e.AutoescapeOn(".custom")
	err := e.AddRawTemplates(map[string]string{
		"a.custom": "{{ v }}",
		"a.lism":   "{{ v }}",
	})
	if err != nil {
		t.Fatalf("add templates: %v", err)
	}
	ctx := ContextFromMap(map[string]any{"v": "<b>"})
	got, _ := e.Render("a.custom", ctx)
	if got != "&lt;b&gt;" {
		t.Errorf("expected escaping for .custom, got %q", got)
	}
	got, _ = e.Render("a.lism", ctx)
	if got != "<b>" {
		t.Errorf("expected no escaping for .lism after replacement, got %q", got)
	}

	// Calling with no suffixes disables autoescaping entirely.
	e.AutoescapeOn()
	got, _ = e.Render("a.custom", ctx)
	if got != "<b>" {
		t.Errorf("expected no escaping after disable, got %q", got)
	}
}

func TestSetEscapeFn(t *testing.T) {
	e := New()
	if err := e.AddRawTemplate("page.lism", "{{ v }}|{{ v | escape }}"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	e.SetEscapeFn(func(s string) string { return "[" + s + "]" })
	got, err := e.Render("page.lism", ContextFromMap(map[string]any{"v": "<b>"}))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	// Custom escaping applies to autoescaped interpolation only; the
	// escape filter keeps the built-in HTML escaper.
	if got != "[<b>]|&lt;b&gt;" {
		t.Errorf("expected '[<b>]|&lt;b&gt;', got %q", got)
	}

	e.ResetEscapeFn()
	got, err = e.Render("page.lism", ContextFromMap(map[string]any{"v": "<b>"}))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "&lt;b&gt;|&lt;b&gt;" {
		t.Errorf("expected HTML escaping after reset, got %q", got)
	}
}

func TestRenderStringIsEphemeral(t *testing.T) {
	e := New()
	if err := e.AddRawTemplate("inc.html", "included"); err != nil {
		t.Fatalf("add template: %v", err)
	}

	got, err := e.RenderString(`<{% include "inc.html" %}>`, nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "<included>" {
		t.Errorf("expected '<included>', got %q", got)
	}
	for _, name := range e.Templates() {
		if name != "inc.html" {
			t.Errorf("unexpected template left behind: %q", name)
		}
	}

	// The one-off is removed even when rendering fails.
	if _, err := e.RenderString("{{ missing }}", nil); err == nil {
		t.Fatal("expected render error")
	}
	if len(e.Templates()) != 1 {
		t.Errorf("expected only inc.html to remain, got %v", e.Templates())
	}
}

func TestOneOff(t *testing.T) {
	ctx := ContextFromMap(map[string]any{"v": "<b>"})
	got, err := OneOff("{{ v }}", ctx, false)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "<b>" {
		t.Errorf("expected '<b>', got %q", got)
	}
	got, err = OneOff("{{ v }}", ctx, true)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "&lt;b&gt;" {
		t.Errorf("expected '&lt;b&gt;', got %q", got)
	}
	// Builtins are available.
	got, err = OneOff("{{ 'hi' | upper }}", nil, false)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "HI" {
		t.Errorf("expected 'HI', got %q", got)
	}
}

func TestRenderTo(t *testing.T) {
	e := New()
	if err := e.AddRawTemplate("page.html", "hello {{ name }}"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	var buf bytes.Buffer
	if err := e.RenderTo(&buf, "page.html", ContextFromMap(map[string]any{"name": "io"})); err != nil {
		t.Fatalf("render error: %v", err)
	}
	if buf.String() != "hello io" {
		t.Errorf("expected 'hello io', got %q", buf.String())
	}
}

func TestRenderToFile(t *testing.T) {
	e := New()
	if err := e.AddRawTemplate("page.html", "file {{ n }}"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := e.RenderToFile("page.html", ContextFromMap(map[string]any{"n": 1}), path); err != nil {
		t.Fatalf("render to file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "file 1" {
		t.Errorf("expected 'file 1', got %q", string(data))
	}

	// A failed render must not leave a file behind.
	bad := filepath.Join(dir, "bad.txt")
	if err := e.RenderToFile("page.html", nil, bad); err == nil {
		t.Fatal("expected render error")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Errorf("expected no output file after failure, got stat err %v", err)
	}
}

func writeTemplateTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestNewFromGlob(t *testing.T) {
	dir := writeTemplateTree(t, map[string]string{
		"base.html":        "({% block b %}base{% endblock %})",
		"pages/index.html": `{% extends "base.html" %}{% block b %}index{% endblock %}`,
		".hidden.html":     "secret",
	})
	e, err := NewFromGlob(filepath.Join(dir, "**", "*.html"))
	if err != nil {
		t.Fatalf("glob load: %v", err)
	}
	names := e.Templates()
	if len(names) != 2 || names[0] != "base.html" || names[1] != "pages/index.html" {
		t.Errorf("expected [base.html pages/index.html], got %v", names)
	}
	got, err := e.Render("pages/index.html", nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "(index)" {
		t.Errorf("expected '(index)', got %q", got)
	}
}

func TestAddTemplateFile(t *testing.T) {
	dir := writeTemplateTree(t, map[string]string{"one.html": "one {{ n }}"})
	e := New()
	if err := e.AddTemplateFile(filepath.Join(dir, "one.html"), "one.html"); err != nil {
		t.Fatalf("add template file: %v", err)
	}
	got, err := e.Render("one.html", ContextFromMap(map[string]any{"n": 9}))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "one 9" {
		t.Errorf("expected 'one 9', got %q", got)
	}
}

func TestFullReload(t *testing.T) {
	dir := writeTemplateTree(t, map[string]string{"page.html": "v1"})
	e, err := NewFromGlob(filepath.Join(dir, "*.html"))
	if err != nil {
		t.Fatalf("glob load: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "page.html"), []byte("v2"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "new.html"), []byte("fresh"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := e.FullReload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	got, err := e.Render("page.html", nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "v2" {
		t.Errorf("expected 'v2', got %q", got)
	}
	got, err = e.Render("new.html", nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "fresh" {
		t.Errorf("expected 'fresh', got %q", got)
	}
}

func TestFullReloadRequiresGlob(t *testing.T) {
	e := New()
	err := e.FullReload()
	if err == nil {
		t.Fatal("expected error")
	}
	wantKind(t, err, ErrInvalidOperation)
}

func TestFullReloadKeepsExtended(t *testing.T) {
	dir := writeTemplateTree(t, map[string]string{"page.html": "disk"})
	e, err := NewFromGlob(filepath.Join(dir, "*.html"))
	if err != nil {
		t.Fatalf("glob load: %v", err)
	}
	other := New()
	if err := other.AddRawTemplate("extra.html", "extra"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	if err := e.Extend(other); err != nil {
		t.Fatalf("extend: %v", err)
	}

	if err := e.FullReload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := e.Render("extra.html", nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "extra" {
		t.Errorf("expected 'extra', got %q", got)
	}
}

func TestExtend(t *testing.T) {
	e := New()
	if err := e.AddRawTemplate("shared.html", "mine"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	e.AddFilter("tag", func(v value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.FromString("mine:" + v.String()), nil
	})

	other := New()
	if err := other.AddRawTemplate("shared.html", "theirs"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	if err := other.AddRawTemplate("only.html", "only"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	other.AddFilter("tag", func(v value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.FromString("theirs:" + v.String()), nil
	})
	other.AddFilter("exclaim", func(v value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.FromString(v.String() + "!"), nil
	})

	if err := e.Extend(other); err != nil {
		t.Fatalf("extend: %v", err)
	}

	// Existing entries win; missing ones are copied.
	got, _ := e.Render("shared.html", nil)
	if got != "mine" {
		t.Errorf("expected 'mine', got %q", got)
	}
	got, _ = e.Render("only.html", nil)
	if got != "only" {
		t.Errorf("expected 'only', got %q", got)
	}
	got = renderOne(t, e, `{{ "x" | tag }} {{ "y" | exclaim }}`, nil)
	if got != "mine:x y!" {
		t.Errorf("expected 'mine:x y!', got %q", got)
	}

	tpl, err := e.GetTemplate("only.html")
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if !tpl.FromExtend {
		t.Error("expected copied template to be marked FromExtend")
	}
}

func TestCustomCapabilities(t *testing.T) {
	e := New()
	e.AddFilter("shout", func(v value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.FromString(strings.ToUpper(v.String()) + "!"), nil
	})
	e.AddTester("shouted", func(v *value.Value, _ []value.Value) (bool, error) {
		s, _ := v.AsString()
		return strings.HasSuffix(s, "!"), nil
	})
	e.AddFunction("greeting", func(_ map[string]value.Value) (value.Value, error) {
		return value.FromString("hello"), nil
	})

	got := renderOne(t, e, `{{ greeting() | shout }} {{ "hi!" is shouted }}`, nil)
	if got != "HELLO! true" {
		t.Errorf("expected 'HELLO! true', got %q", got)
	}

	if _, err := e.GetFilter("shout"); err != nil {
		t.Errorf("expected registered filter, got %v", err)
	}
	_, err := e.GetFilter("nope")
	wantKind(t, err, ErrUnknownFilter)
	_, err = e.GetTester("nope")
	wantKind(t, err, ErrUnknownTester)
	_, err = e.GetFunction("nope")
	wantKind(t, err, ErrUnknownFunction)
}

func TestAddSafeFilterOutput(t *testing.T) {
	e := New()
	e.AddSafeFilter("wrap", func(v value.Value, _ map[string]value.Value) (value.Value, error) {
		return value.FromString("<i>" + v.String() + "</i>"), nil
	})
	if err := e.AddRawTemplate("page.lism", "{{ v | wrap }}"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	got, err := e.Render("page.lism", ContextFromMap(map[string]any{"v": "x"}))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "<i>x</i>" {
		t.Errorf("expected '<i>x</i>', got %q", got)
	}
}

func TestConcurrentRenders(t *testing.T) {
	e := New()
	err := e.AddRawTemplates(map[string]string{
		"base.html": "{% block b %}base{% endblock %}",
		"page.html": `{% extends "base.html" %}{% block b %}{% for i in range(end=5) %}{{ i }}{% endfor %}{% endblock %}`,
	})
	if err != nil {
		t.Fatalf("add templates: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				got, err := e.Render("page.html", nil)
				if err != nil {
					errs <- err
					return
				}
				if got != "01234" {
					errs <- NewError(ErrInvalidOperation, "unexpected output "+got)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent render: %v", err)
	}
}
