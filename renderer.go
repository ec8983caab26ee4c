package lysine

import (
	"io"
	"strings"
)

// EscapeFn rewrites interpolated output before it reaches the sink.
type EscapeFn func(string) string

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeHTML escapes the characters that can break out of an HTML context.
// It is the default escape function.
func EscapeHTML(s string) string { return htmlReplacer.Replace(s) }

// EscapeXML escapes the five XML reserved characters.
func EscapeXML(s string) string { return xmlReplacer.Replace(s) }

// shouldEscape reports whether autoescaping applies to a template, decided
// by suffix match against the engine's autoescape list. The file path is
// matched when the template came from disk, the registered name otherwise.
func (e *Engine) shouldEscape(tpl *Template) bool {
	subject := tpl.Name
	if tpl.Path != "" {
		subject = tpl.Path
	}
	for _, suffix := range e.autoescapeSuffixes {
		if strings.HasSuffix(subject, suffix) {
			return true
		}
	}
	return false
}

// renderTemplate runs one render. Callers hold at least the read lock for
// the duration so reloads cannot swap templates mid-render.
func (e *Engine) renderTemplate(w io.Writer, tpl *Template, ctx *Context) error {
	return newProcessor(e, tpl, ctx).render(w)
}
