package lysine

import (
	"errors"
	"strings"
	"testing"

	"github.com/ctcl-bregis/lysine/value"
)

func renderOne(t *testing.T, e *Engine, src string, ctx *Context) string {
	t.Helper()
	out, err := e.RenderString(src, ctx)
	if err != nil {
		t.Fatalf("render error for %q: %v", src, err)
	}
	return out
}

func renderErr(t *testing.T, e *Engine, src string, ctx *Context) error {
	t.Helper()
	_, err := e.RenderString(src, ctx)
	if err == nil {
		t.Fatalf("expected render error for %q, got none", src)
	}
	return err
}

func wantKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if e.Kind != kind {
		t.Errorf("expected error kind %q, got %q (%v)", kind, e.Kind, e)
	}
	return e
}

func TestRenderText(t *testing.T) {
	e := New()
	got := renderOne(t, e, "plain text", nil)
	if got != "plain text" {
		t.Errorf("expected 'plain text', got %q", got)
	}
}

func TestRenderVariableTypes(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{
		"str": "hello", "num": 42, "f": 3.5, "b": true,
	})
	got := renderOne(t, e, "{{ str }} {{ num }} {{ f }} {{ b }}", ctx)
	if got != "hello 42 3.5 true" {
		t.Errorf("expected 'hello 42 3.5 true', got %q", got)
	}
}

func TestRenderDottedPath(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{
		"product": map[string]any{
			"vendors": []any{
				map[string]any{"name": "acme"},
				map[string]any{"name": "globex"},
			},
		},
	})
	got := renderOne(t, e, "{{ product.vendors.1.name }}", ctx)
	if got != "globex" {
		t.Errorf("expected 'globex', got %q", got)
	}
}

func TestRenderSubscripts(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{
		"arr": []any{10, 20, 30},
		"idx": 1,
		"m":   map[string]any{"k.x": 5},
	})
	got := renderOne(t, e, `{{ arr[idx] }} {{ arr[0] }} {{ m["k.x"] }}`, ctx)
	if got != "20 10 5" {
		t.Errorf("expected '20 10 5', got %q", got)
	}
}

func TestArithmetic(t *testing.T) {
	e := New()
	tests := []struct {
		template string
		expected string
	}{
		{"{{ 1 + 2 }}", "3"},
		{"{{ 10 - 3 }}", "7"},
		{"{{ 4 * 5 }}", "20"},
		{"{{ 10 / 4 }}", "2.5"},
		{"{{ 8 / 2 }}", "4.0"},
		{"{{ 10 % 3 }}", "1"},
		{"{{ 1 + 2.5 }}", "3.5"},
		{"{{ -5 }}", "-5"},
		{"{{ 2 + 3 * 4 }}", "14"},
		{"{{ (2 + 3) * 4 }}", "20"},
	}
	for _, test := range tests {
		got := renderOne(t, e, test.template, nil)
		if got != test.expected {
			t.Errorf("%q: expected %q, got %q", test.template, test.expected, got)
		}
	}
}

func TestConcatOperator(t *testing.T) {
	e := New()
	tests := []struct {
		template string
		expected string
	}{
		{`{{ "a" ~ "b" }}`, "ab"},
		{`{{ "x" ~ 1 }}`, "x1"},
		{`{{ 1 ~ 2 ~ 3 }}`, "123"},
		{`{{ "v" ~ 1.5 }}`, "v1.5"},
	}
	for _, test := range tests {
		got := renderOne(t, e, test.template, nil)
		if got != test.expected {
			t.Errorf("%q: expected %q, got %q", test.template, test.expected, got)
		}
	}
}

func TestComparisons(t *testing.T) {
	e := New()
	tests := []struct {
		template string
		expected string
	}{
		{"{{ 1 == 1 }}", "true"},
		{"{{ 1 == 1.0 }}", "true"},
		{"{{ 1 != 2 }}", "true"},
		{"{{ 1 < 2 }}", "true"},
		{"{{ 2 > 1 }}", "true"},
		{"{{ 1 <= 1 }}", "true"},
		{"{{ 2 >= 3 }}", "false"},
		{`{{ "a" < "b" }}`, "true"},
		{`{{ "a" == 1 }}`, "false"},
	}
	for _, test := range tests {
		got := renderOne(t, e, test.template, nil)
		if got != test.expected {
			t.Errorf("%q: expected %q, got %q", test.template, test.expected, got)
		}
	}
}

func TestLogicalOperators(t *testing.T) {
	e := New()
	tests := []struct {
		template string
		expected string
	}{
		{"{{ true and true }}", "true"},
		{"{{ true and false }}", "false"},
		{"{{ false or true }}", "true"},
		{"{{ false or false }}", "false"},
		{"{{ not false }}", "true"},
		// and/or reduce their operands to booleans
		{"{{ 1 and 2 }}", "true"},
		{`{{ "" or "x" }}`, "true"},
		{`{{ 0 or "" }}`, "false"},
	}
	for _, test := range tests {
		got := renderOne(t, e, test.template, nil)
		if got != test.expected {
			t.Errorf("%q: expected %q, got %q", test.template, test.expected, got)
		}
	}
}

func TestShortCircuit(t *testing.T) {
	e := New()
	// missing() is not registered; short-circuiting must skip it.
	got := renderOne(t, e, "{{ false and missing() }} {{ true or missing() }}", nil)
	if got != "false true" {
		t.Errorf("expected 'false true', got %q", got)
	}
}

func TestInOperator(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{
		"arr": []any{1, 2, 3},
		"obj": map[string]any{"k": 1},
	})
	tests := []struct {
		template string
		expected string
	}{
		{`{{ "ell" in "hello" }}`, "true"},
		{`{{ "xyz" in "hello" }}`, "false"},
		{"{{ 2 in arr }}", "true"},
		{"{{ 5 in arr }}", "false"},
		{`{{ "k" in obj }}`, "true"},
		{"{{ 5 not in arr }}", "true"},
		{"{{ 2 not in arr }}", "false"},
	}
	for _, test := range tests {
		got := renderOne(t, e, test.template, ctx)
		if got != test.expected {
			t.Errorf("%q: expected %q, got %q", test.template, test.expected, got)
		}
	}
}

func TestFilterBindsLooserThanMath(t *testing.T) {
	e := New()
	e.AddFilter("double", func(v value.Value, _ map[string]value.Value) (value.Value, error) {
		n, _ := v.AsInt()
		return value.FromInt(n * 2), nil
	})
	got := renderOne(t, e, "{{ 1 + 2 | double }}", nil)
	if got != "6" {
		t.Errorf("expected '6', got %q", got)
	}
	// ...but tighter than comparisons.
	got = renderOne(t, e, "{{ 1 + 2 | double == 6 }}", nil)
	if got != "true" {
		t.Errorf("expected 'true', got %q", got)
	}
}

func TestIfElifElse(t *testing.T) {
	e := New()
	src := "{% if x > 10 %}big{% elif x > 5 %}medium{% else %}small{% endif %}"
	tests := []struct {
		x        int
		expected string
	}{
		{20, "big"},
		{7, "medium"},
		{1, "small"},
	}
	for _, test := range tests {
		got := renderOne(t, e, src, ContextFromMap(map[string]any{"x": test.x}))
		if got != test.expected {
			t.Errorf("x=%d: expected %q, got %q", test.x, test.expected, got)
		}
	}
}

func TestForLoop(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{"items": []any{"a", "b", "c"}})
	got := renderOne(t, e, "{% for item in items %}{{ item }}{% endfor %}", ctx)
	if got != "abc" {
		t.Errorf("expected 'abc', got %q", got)
	}
}

func TestForLoopObject(t *testing.T) {
	e := New()
	got := renderOne(t, e,
		"{% for i in [10, 20, 30] %}{{ loop.index }}:{{ loop.index0 }}:{{ loop.first }}:{{ loop.last }}:{{ loop.length }} {% endfor %}",
		nil)
	if got != "1:0:true:false:3 2:1:false:false:3 3:2:false:true:3 " {
		t.Errorf("unexpected loop variables: %q", got)
	}
}

func TestForLoopKeyValue(t *testing.T) {
	e := New()
	obj := value.NewObject()
	obj.Set("b", value.FromInt(2))
	obj.Set("a", value.FromInt(1))
	ctx := NewContext()
	ctx.Set("m", value.FromObject(obj))
	// Objects iterate in insertion order.
	got := renderOne(t, e, "{% for k, v in m %}{{ k }}={{ v }} {% endfor %}", ctx)
	if got != "b=2 a=1 " {
		t.Errorf("expected 'b=2 a=1 ', got %q", got)
	}
}

func TestForLoopBindingErrors(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{
		"arr": []any{1},
		"obj": map[string]any{"k": 1},
	})
	err := renderErr(t, e, "{% for k, v in arr %}{% endfor %}", ctx)
	wantKind(t, err, ErrInvalidOperation)

	err = renderErr(t, e, "{% for v in obj %}{% endfor %}", ctx)
	wantKind(t, err, ErrInvalidOperation)
}

func TestForLoopNonIterable(t *testing.T) {
	e := New()
	err := renderErr(t, e, "{% for x in 42 %}{% endfor %}", nil)
	e2 := wantKind(t, err, ErrInvalidOperation)
	if !strings.Contains(e2.Error(), "cannot iterate") {
		t.Errorf("expected iteration error, got %v", e2)
	}
}

func TestForLoopFiltered(t *testing.T) {
	e := New()
	got := renderOne(t, e,
		"{% for i in [1, 2, 3, 4, 5] if i % 2 == 1 %}{{ i }}:{{ loop.length }} {% endfor %}",
		nil)
	if got != "1:3 3:3 5:3 " {
		t.Errorf("expected '1:3 3:3 5:3 ', got %q", got)
	}
}

func TestForLoopElse(t *testing.T) {
	e := New()
	got := renderOne(t, e, "{% for x in [] %}{{ x }}{% else %}empty{% endfor %}", nil)
	if got != "empty" {
		t.Errorf("expected 'empty', got %q", got)
	}
	// A fully filtered-out iteration is empty too.
	got = renderOne(t, e, "{% for x in [1, 2] if x > 10 %}{{ x }}{% else %}none{% endfor %}", nil)
	if got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
}

func TestBreakContinue(t *testing.T) {
	e := New()
	got := renderOne(t, e, "{% for i in [1, 2, 3, 4] %}{% if i == 3 %}{% break %}{% endif %}{{ i }}{% endfor %}", nil)
	if got != "12" {
		t.Errorf("expected '12', got %q", got)
	}
	got = renderOne(t, e, "{% for i in [1, 2, 3, 4] %}{% if i % 2 == 0 %}{% continue %}{% endif %}{{ i }}{% endfor %}", nil)
	if got != "13" {
		t.Errorf("expected '13', got %q", got)
	}
}

func TestBreakInnerLoopOnly(t *testing.T) {
	e := New()
	src := "{% for i in [1, 2] %}{% for j in [1, 2, 3] %}{% if j == 2 %}{% break %}{% endif %}{{ i }}{{ j }} {% endfor %}{% endfor %}"
	got := renderOne(t, e, src, nil)
	if got != "11 21 " {
		t.Errorf("expected '11 21 ', got %q", got)
	}
}

func TestSetStatement(t *testing.T) {
	e := New()
	got := renderOne(t, e, `{% set x = 1 + 2 %}{{ x }}`, nil)
	if got != "3" {
		t.Errorf("expected '3', got %q", got)
	}
}

func TestSetInLoopScoping(t *testing.T) {
	e := New()
	// Each iteration gets a fresh frame: x set in one iteration is gone in
	// the next, and gone after the loop.
	src := "{% for i in [1, 2] %}{% if loop.first %}{% set x = 9 %}{% endif %}{{ x is defined }} {% endfor %}{{ x is defined }}"
	got := renderOne(t, e, src, nil)
	if got != "true false false" {
		t.Errorf("expected 'true false false', got %q", got)
	}
}

func TestSetGlobal(t *testing.T) {
	e := New()
	src := "{% for i in [1, 2] %}{% set_global total = i %}{% endfor %}{{ total }}"
	got := renderOne(t, e, src, nil)
	if got != "2" {
		t.Errorf("expected '2', got %q", got)
	}
}

func TestSetShadowsContext(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{"name": map[string]any{"inner": "ctx"}})
	// Shadowing applies to the whole root segment.
	got := renderOne(t, e, `{% set name = "local" %}{{ name }}`, ctx)
	if got != "local" {
		t.Errorf("expected 'local', got %q", got)
	}
	got = renderOne(t, e, "{{ name.inner }}", ctx)
	if got != "ctx" {
		t.Errorf("expected 'ctx', got %q", got)
	}
}

func TestUndefinedInterpolationFails(t *testing.T) {
	e := New()
	err := renderErr(t, e, "{{ missing }}", nil)
	e2 := wantKind(t, err, ErrUndefinedVariable)
	if !strings.Contains(e2.Error(), "`missing`") {
		t.Errorf("expected error to name the variable, got %v", e2)
	}

	err = renderErr(t, e, "{{ a.b.c }}", ContextFromMap(map[string]any{"a": map[string]any{}}))
	e2 = wantKind(t, err, ErrUndefinedVariable)
	if !strings.Contains(e2.Error(), "`a.b.c`") {
		t.Errorf("expected error to name the path, got %v", e2)
	}
}

func TestUndefinedInConditionIsFalsy(t *testing.T) {
	e := New()
	got := renderOne(t, e, "{% if missing %}yes{% else %}no{% endif %}", nil)
	if got != "no" {
		t.Errorf("expected 'no', got %q", got)
	}
}

func TestUndefinedFilterInputFails(t *testing.T) {
	e := New()
	err := renderErr(t, e, "{{ missing | upper }}", nil)
	wantKind(t, err, ErrUndefinedVariable)
}

func TestDefaultFilterAcceptsUndefined(t *testing.T) {
	e := New()
	got := renderOne(t, e, `{{ missing | default(value="fallback") }}`, nil)
	if got != "fallback" {
		t.Errorf("expected 'fallback', got %q", got)
	}
	got = renderOne(t, e, `{{ present | default(value="fallback") }}`,
		ContextFromMap(map[string]any{"present": "here"}))
	if got != "here" {
		t.Errorf("expected 'here', got %q", got)
	}
}

func TestInterpolatingCompoundFails(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{"arr": []any{1}, "obj": map[string]any{}})
	wantKind(t, renderErr(t, e, "{{ arr }}", ctx), ErrInvalidOperation)
	wantKind(t, renderErr(t, e, "{{ obj }}", ctx), ErrInvalidOperation)
}

func TestMathErrors(t *testing.T) {
	e := New()
	wantKind(t, renderErr(t, e, "{{ 1 / 0 }}", nil), ErrInvalidOperation)
	wantKind(t, renderErr(t, e, `{{ 1 + "a" }}`, nil), ErrInvalidOperation)
	wantKind(t, renderErr(t, e, `{{ 1 < "a" }}`, nil), ErrInvalidOperation)
	wantKind(t, renderErr(t, e, "{{ 1 in 2 }}", nil), ErrInvalidOperation)
}

func TestUnknownCapabilities(t *testing.T) {
	e := New()
	wantKind(t, renderErr(t, e, "{{ 1 | nope }}", nil), ErrUnknownFilter)
	wantKind(t, renderErr(t, e, "{{ 1 is nope }}", nil), ErrUnknownTester)
	wantKind(t, renderErr(t, e, "{{ nope() }}", nil), ErrUnknownFunction)
}

func TestTesters(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{
		"s": "hello", "n": 4, "arr": []any{1}, "obj": map[string]any{"k": 1},
	})
	tests := []struct {
		template string
		expected string
	}{
		{"{{ s is defined }}", "true"},
		{"{{ nope is defined }}", "false"},
		{"{{ nope is undefined }}", "true"},
		{"{{ 3 is odd }}", "true"},
		{"{{ n is even }}", "true"},
		{"{{ s is string }}", "true"},
		{"{{ n is number }}", "true"},
		{"{{ 9 is divisibleby(3) }}", "true"},
		{"{{ arr is iterable }}", "true"},
		{"{{ s is iterable }}", "false"},
		{"{{ obj is object }}", "true"},
		{`{{ s is starting_with("he") }}`, "true"},
		{`{{ s is ending_with("lo") }}`, "true"},
		{`{{ s is containing("ell") }}`, "true"},
		{`{{ arr is containing(1) }}`, "true"},
		{`{{ s is matching("^h.*o$") }}`, "true"},
		{"{{ 3 is not even }}", "true"},
		{"{{ s is not number }}", "true"},
	}
	for _, test := range tests {
		got := renderOne(t, e, test.template, ctx)
		if got != test.expected {
			t.Errorf("%q: expected %q, got %q", test.template, test.expected, got)
		}
	}
}

func TestRangeFunction(t *testing.T) {
	e := New()
	got := renderOne(t, e, "{% for i in range(end=4) %}{{ i }}{% endfor %}", nil)
	if got != "0123" {
		t.Errorf("expected '0123', got %q", got)
	}
	got = renderOne(t, e, "{% for i in range(start=2, end=9, step_by=3) %}{{ i }} {% endfor %}", nil)
	if got != "2 5 8 " {
		t.Errorf("expected '2 5 8 ', got %q", got)
	}
}

func TestThrowFunction(t *testing.T) {
	e := New()
	err := renderErr(t, e, `{{ throw(message="boom") }}`, nil)
	e2 := wantKind(t, err, ErrCapability)
	if !strings.Contains(e2.Error(), "boom") {
		t.Errorf("expected thrown message in error, got %v", e2)
	}
}

func TestGetEnvFunction(t *testing.T) {
	t.Setenv("LYSINE_TEST_VAR", "from-env")
	e := New()
	got := renderOne(t, e, `{{ get_env(name="LYSINE_TEST_VAR") }}`, nil)
	if got != "from-env" {
		t.Errorf("expected 'from-env', got %q", got)
	}
	got = renderOne(t, e, `{{ get_env(name="LYSINE_TEST_MISSING", default="dflt") }}`, nil)
	if got != "dflt" {
		t.Errorf("expected 'dflt', got %q", got)
	}
	err := renderErr(t, e, `{{ get_env(name="LYSINE_TEST_MISSING") }}`, nil)
	wantKind(t, err, ErrCapability)
}

func TestPickRandomSingleton(t *testing.T) {
	e := New()
	got := renderOne(t, e, `{{ pick_random(from=["only"]) }}`, nil)
	if got != "only" {
		t.Errorf("expected 'only', got %q", got)
	}
}

func TestRandomIntBounds(t *testing.T) {
	e := New()
	got := renderOne(t, e, "{{ random_int(start=5, end=6) }}", nil)
	if got != "5" {
		t.Errorf("expected '5', got %q", got)
	}
}

func TestNowFunction(t *testing.T) {
	e := New()
	got := renderOne(t, e, "{% if now(timestamp=true) > 1000000000 %}ok{% endif %}", nil)
	if got != "ok" {
		t.Errorf("expected 'ok', got %q", got)
	}
}

func TestMacroBasic(t *testing.T) {
	e := New()
	src := `{% macro input(name, size=20) %}<input name="{{ name }}" size="{{ size }}">{% endmacro %}` +
		`{{ self::input("user") }} {{ self::input("pw", size=10) }}`
	got := renderOne(t, e, src, nil)
	want := `<input name="user" size="20"> <input name="pw" size="10">`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestMacroArgumentErrors(t *testing.T) {
	e := New()
	def := "{% macro f(a, b=1) %}{{ a }}{% endmacro %}"
	wantKind(t, renderErr(t, e, def+"{{ self::f() }}", nil), ErrInvalidArgument)
	wantKind(t, renderErr(t, e, def+"{{ self::f(1, 2, 3) }}", nil), ErrInvalidArgument)
	wantKind(t, renderErr(t, e, def+"{{ self::f(1, nope=2) }}", nil), ErrInvalidArgument)
	wantKind(t, renderErr(t, e, def+"{{ self::f(1, a=2) }}", nil), ErrInvalidArgument)
}

func TestMacroIsolation(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{"global": "ctx"})
	// Macro bodies see nothing but their own arguments: neither the
	// caller's locals nor the context leak in.
	src := `{% macro probe(arg) %}{{ arg }}:{{ local is defined }}:{{ global is defined }}{% endmacro %}` +
		`{% set local = "x" %}{{ self::probe("a") }}`
	got := renderOne(t, e, src, ctx)
	if got != "a:false:false" {
		t.Errorf("expected 'a:false:false', got %q", got)
	}
	// Reading a context variable inside the macro body is an undefined
	// variable error, exactly as if it did not exist.
	src = `{% macro leak() %}{{ global }}{% endmacro %}{{ self::leak() }}`
	err := renderErr(t, e, src, ctx)
	wantKind(t, err, ErrUndefinedVariable)
}

func TestMacroArgsEvaluatedInCallerScope(t *testing.T) {
	e := New()
	src := `{% macro echo(v) %}{{ v }}{% endmacro %}` +
		`{% set x = "caller" %}{{ self::echo(x) }}`
	got := renderOne(t, e, src, nil)
	if got != "caller" {
		t.Errorf("expected 'caller', got %q", got)
	}
}

func TestMacroImport(t *testing.T) {
	e := New()
	err := e.AddRawTemplates(map[string]string{
		"macros.html": `{% macro badge(label) %}[{{ label }}]{% endmacro %}`,
		"page.html":   `{% import "macros.html" as ui %}{{ ui::badge("new") }}`,
	})
	if err != nil {
		t.Fatalf("add templates: %v", err)
	}
	got, err := e.Render("page.html", nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "[new]" {
		t.Errorf("expected '[new]', got %q", got)
	}
}

func TestMacroCallsSiblingViaSelf(t *testing.T) {
	e := New()
	err := e.AddRawTemplates(map[string]string{
		"macros.html": `{% macro inner() %}in{% endmacro %}` +
			`{% macro outer() %}<{{ self::inner() }}>{% endmacro %}`,
		"page.html": `{% import "macros.html" as m %}{{ m::outer() }}`,
	})
	if err != nil {
		t.Fatalf("add templates: %v", err)
	}
	got, err := e.Render("page.html", nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "<in>" {
		t.Errorf("expected '<in>', got %q", got)
	}
}

func TestMacroUnknown(t *testing.T) {
	e := New()
	wantKind(t, renderErr(t, e, "{{ self::nope() }}", nil), ErrUnknownMacro)
	wantKind(t, renderErr(t, e, "{{ ns::thing() }}", nil), ErrUnknownMacro)
}

func TestMacroRecursionLimit(t *testing.T) {
	e := New()
	src := "{% macro loop_forever() %}{{ self::loop_forever() }}{% endmacro %}{{ self::loop_forever() }}"
	err := renderErr(t, e, src, nil)
	e2 := wantKind(t, err, ErrRecursionLimit)
	if !strings.Contains(e2.Error(), "loop_forever") {
		t.Errorf("expected offending macro in error, got %v", e2)
	}
}

func TestMacroBoundedRecursionWorks(t *testing.T) {
	e := New()
	src := `{% macro count(n) %}{{ n }}{% if n > 1 %} {{ self::count(n=n - 1) }}{% endif %}{% endmacro %}{{ self::count(n=3) }}`
	got := renderOne(t, e, src, nil)
	if got != "3 2 1" {
		t.Errorf("expected '3 2 1', got %q", got)
	}
}

func TestFilterSection(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{"name": "world"})
	got := renderOne(t, e, "{% filter upper %}hello {{ name }}{% endfilter %}", ctx)
	if got != "HELLO WORLD" {
		t.Errorf("expected 'HELLO WORLD', got %q", got)
	}
	got = renderOne(t, e, `{% filter replace(from="a", to="o") %}bat cat{% endfilter %}`, nil)
	if got != "bot cot" {
		t.Errorf("expected 'bot cot', got %q", got)
	}
}

func TestRawSection(t *testing.T) {
	e := New()
	got := renderOne(t, e, "{% raw %}{{ not_evaluated }}{% endraw %}", nil)
	if got != "{{ not_evaluated }}" {
		t.Errorf("expected literal text, got %q", got)
	}
}

func TestComments(t *testing.T) {
	e := New()
	got := renderOne(t, e, "a{# hidden #}b", nil)
	if got != "ab" {
		t.Errorf("expected 'ab', got %q", got)
	}
}

func TestWhitespaceTrim(t *testing.T) {
	e := New()
	got := renderOne(t, e, "{% for i in [1, 2] -%} {{ i }} {%- endfor %}", nil)
	if got != "12" {
		t.Errorf("expected '12', got %q", got)
	}
}

func TestContextDebugVariable(t *testing.T) {
	e := New()
	ctx := ContextFromMap(map[string]any{"name": "World"})
	got := renderOne(t, e, "{{ __lysine_context }}", ctx)
	if !strings.Contains(got, `"name"`) || !strings.Contains(got, `"World"`) {
		t.Errorf("expected context dump to include name, got %q", got)
	}
}

func TestErrorCarriesTemplateAndLine(t *testing.T) {
	e := New()
	if err := e.AddRawTemplate("page.html", "line one\n{{ missing }}\n"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	_, err := e.Render("page.html", nil)
	if err == nil {
		t.Fatal("expected render error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "page.html") || !strings.Contains(msg, "line 2") {
		t.Errorf("expected template name and line in error, got %q", msg)
	}
}
