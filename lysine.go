// Package lysine provides a Tera-style template engine for Go.
//
// Lysine renders templates written in the Tera dialect: variables in
// {{ }}, statements in {% %}, comments in {# #}, with template
// inheritance, macros, includes and a pipeline of filters, testers and
// functions that hosts can extend.
//
// # Quick Start
//
// Basic usage:
//
//	engine := lysine.New()
//	engine.AddRawTemplate("hello", "Hello {{ name }}!")
//	ctx := lysine.NewContext()
//	ctx.Insert("name", "World")
//	out, _ := engine.Render("hello", ctx)
//	fmt.Println(out) // Output: Hello World!
//
// # Loading From Disk
//
// Engines usually load a whole template directory through a glob and can
// reload it in place:
//
//	engine, err := lysine.NewFromGlob("templates/**/*.html")
//	...
//	err = engine.FullReload()
//
// # Inheritance
//
// Templates extend one another with {% extends %} and {% block %};
// lysine resolves the full inheritance hierarchy when templates are
// registered, so malformed hierarchies fail at construction time, not
// during a render.
//
// # Extending The Engine
//
// Hosts register their own capabilities:
//
//	engine.AddFilter("shout", func(v value.Value, kwargs map[string]value.Value) (value.Value, error) {
//	    s, _ := v.AsString()
//	    return value.FromString(strings.ToUpper(s) + "!"), nil
//	})
package lysine

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Engine holds the template set and the registered capabilities. All
// methods are safe for concurrent use; renders proceed in parallel while
// mutations take the engine over exclusively.
type Engine struct {
	mu                 sync.RWMutex
	templates          map[string]*Template
	filters            map[string]filterEntry
	testers            map[string]Tester
	functions          map[string]Function
	autoescapeSuffixes []string
	escapeFn           EscapeFn
	glob               string
}

// New creates an engine with the built-in capabilities registered and
// autoescaping enabled for the default suffixes.
func New() *Engine {
	e := &Engine{
		templates:          make(map[string]*Template),
		filters:            make(map[string]filterEntry),
		testers:            make(map[string]Tester),
		functions:          make(map[string]Function),
		autoescapeSuffixes: defaultAutoescapeSuffixes(),
		escapeFn:           EscapeHTML,
	}
	registerBuiltins(e)
	return e
}

// AddRawTemplate registers a template from source. The whole template set
// is re-resolved; on failure the engine keeps its previous state.
func (e *Engine) AddRawTemplate(name, source string) error {
	tpl, err := newTemplate(name, "", source)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.installLocked(tpl)
}

// AddRawTemplates registers several templates from source at once, so
// templates that reference each other can be added in one call.
func (e *Engine) AddRawTemplates(templates map[string]string) error {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	parsed := make([]*Template, 0, len(names))
	for _, name := range names {
		tpl, err := newTemplate(name, "", templates[name])
		if err != nil {
			return err
		}
		parsed = append(parsed, tpl)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.installLocked(parsed...)
}

// Templates returns the registered template names, sorted.
func (e *Engine) Templates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetTemplate retrieves a registered template by name.
func (e *Engine) GetTemplate(name string) (*Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tpl, ok := e.templates[name]
	if !ok {
		return nil, NewError(ErrTemplateNotFound,
			fmt.Sprintf("template %q is not registered", name))
	}
	return tpl, nil
}

// RenderTo renders a template into w. Output streams to w as it is
// produced, so on error w may have received a partial render.
func (e *Engine) RenderTo(w io.Writer, name string, ctx *Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tpl, ok := e.templates[name]
	if !ok {
		return NewError(ErrTemplateNotFound,
			fmt.Sprintf("template %q is not registered", name))
	}
	return e.renderTemplate(w, tpl, ctx)
}

// Render renders a template to a string.
func (e *Engine) Render(name string, ctx *Context) (string, error) {
	var sb strings.Builder
	if err := e.RenderTo(&sb, name, ctx); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// RenderString renders a one-off template source against this engine,
// with access to all its registered templates and capabilities. The
// source is registered under a reserved name for the duration of the
// call and removed afterwards.
func (e *Engine) RenderString(source string, ctx *Context) (string, error) {
	if err := e.AddRawTemplate(oneOffTemplateName, source); err != nil {
		return "", err
	}
	out, err := e.Render(oneOffTemplateName, ctx)

	e.mu.Lock()
	if rerr := e.removeLocked(oneOffTemplateName); rerr != nil {
		// Nothing can extend the reserved name mid-call, so removal
		// only fails if the engine was mutated concurrently.
		slog.Debug("lysine: failed to remove one-off template", "error", rerr)
	}
	e.mu.Unlock()

	return out, err
}

// OneOff renders a template source with no engine state beyond the
// built-in capabilities. When autoescape is set the output is escaped as
// HTML.
func OneOff(source string, ctx *Context, autoescape bool) (string, error) {
	e := New()
	if autoescape {
		e.AutoescapeOn(oneOffTemplateName)
	}
	return e.RenderString(source, ctx)
}

// AddFilter registers a filter. Registering over an existing name,
// including a built-in, replaces it.
func (e *Engine) AddFilter(name string, f Filter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters[name] = filterEntry{fn: f}
}

// AddSafeFilter registers a filter whose output is exempt from
// autoescaping.
func (e *Engine) AddSafeFilter(name string, f Filter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters[name] = filterEntry{fn: f, safe: true}
}

// AddTester registers a tester for use in `is` expressions.
func (e *Engine) AddTester(name string, t Tester) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.testers[name] = t
}

// AddFunction registers a function callable from expressions.
func (e *Engine) AddFunction(name string, f Function) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.functions[name] = f
}

// GetFilter returns a registered filter by name.
func (e *Engine) GetFilter(name string) (Filter, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.filters[name]
	if !ok {
		return nil, NewError(ErrUnknownFilter,
			fmt.Sprintf("filter `%s` is not registered", name))
	}
	return entry.fn, nil
}

// GetTester returns a registered tester by name.
func (e *Engine) GetTester(name string) (Tester, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.testers[name]
	if !ok {
		return nil, NewError(ErrUnknownTester,
			fmt.Sprintf("tester `%s` is not registered", name))
	}
	return t, nil
}

// GetFunction returns a registered function by name.
func (e *Engine) GetFunction(name string) (Function, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.functions[name]
	if !ok {
		return nil, NewError(ErrUnknownFunction,
			fmt.Sprintf("function `%s` is not registered", name))
	}
	return f, nil
}

// AutoescapeOn replaces the set of suffixes that turn autoescaping on.
// Call it with no arguments to disable autoescaping entirely.
func (e *Engine) AutoescapeOn(suffixes ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoescapeSuffixes = append([]string(nil), suffixes...)
}

// SetEscapeFn replaces the escape function applied by autoescaping. The
// `escape` filter keeps using the built-in HTML escaper.
func (e *Engine) SetEscapeFn(fn EscapeFn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.escapeFn = fn
}

// ResetEscapeFn restores the default HTML escape function.
func (e *Engine) ResetEscapeFn() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.escapeFn = EscapeHTML
}

// Extend copies templates and capabilities from another engine into this
// one. Existing entries always win; only names absent here are copied.
// Copied templates are marked so FullReload keeps them.
func (e *Engine) Extend(other *Engine) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	names := make([]string, 0, len(other.templates))
	for name := range other.templates {
		names = append(names, name)
	}
	sort.Strings(names)

	var added []*Template
	for _, name := range names {
		if _, exists := e.templates[name]; exists {
			continue
		}
		cp := *other.templates[name]
		cp.FromExtend = true
		added = append(added, &cp)
	}
	if err := e.installLocked(added...); err != nil {
		return err
	}

	// Capabilities copy only once the merged template set resolves.
	for name, entry := range other.filters {
		if _, ok := e.filters[name]; !ok {
			e.filters[name] = entry
		}
	}
	for name, t := range other.testers {
		if _, ok := e.testers[name]; !ok {
			e.testers[name] = t
		}
	}
	for name, f := range other.functions {
		if _, ok := e.functions[name]; !ok {
			e.functions[name] = f
		}
	}
	slog.Debug("lysine: extended engine", "templates", len(added))
	return nil
}
