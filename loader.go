package lysine

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/natefinch/atomic"
)

// TemplateFile names a template to load from disk. An empty Name registers
// the template under its path.
type TemplateFile struct {
	Path string
	Name string
}

// NewFromGlob creates an engine and loads every template matching the
// pattern. Patterns support `**`; dotfiles are skipped. Template names are
// the paths relative to the fixed prefix of the pattern, so
// "templates/**/*.html" registers "users/profile.html" rather than
// "templates/users/profile.html".
func NewFromGlob(pattern string) (*Engine, error) {
	e := New()
	e.glob = pattern

	tpls, err := loadGlob(pattern)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.installLocked(tpls...); err != nil {
		return nil, err
	}
	slog.Debug("lysine: loaded templates from glob",
		"pattern", pattern, "count", len(tpls))
	return e, nil
}

// loadGlob parses every file matching the pattern into templates.
func loadGlob(pattern string) ([]*Template, error) {
	slashed := filepath.ToSlash(pattern)
	base, _ := doublestar.SplitPattern(slashed)

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, NewError(ErrTemplateNotFound,
			fmt.Sprintf("invalid template glob %q", pattern)).WithSource(err)
	}
	sort.Strings(matches)

	var tpls []*Template
	for _, path := range matches {
		if strings.HasPrefix(filepath.Base(path), ".") {
			continue
		}
		name := filepath.ToSlash(path)
		if base != "." && base != "" {
			name = strings.TrimPrefix(name, base+"/")
		}
		tpl, err := loadTemplateFile(path, name)
		if err != nil {
			return nil, err
		}
		tpls = append(tpls, tpl)
	}
	return tpls, nil
}

func loadTemplateFile(path, name string) (*Template, error) {
	if name == "" {
		name = filepath.ToSlash(path)
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError(ErrTemplateNotFound,
			fmt.Sprintf("failed to read template file %q", path)).WithSource(err)
	}
	return newTemplate(name, filepath.ToSlash(path), string(source))
}

// AddTemplateFile loads one template from disk. An empty name registers it
// under its path.
func (e *Engine) AddTemplateFile(path, name string) error {
	tpl, err := loadTemplateFile(path, name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.installLocked(tpl)
}

// AddTemplateFiles loads several templates from disk in one call, so files
// that reference each other resolve together.
func (e *Engine) AddTemplateFiles(files []TemplateFile) error {
	tpls := make([]*Template, 0, len(files))
	for _, f := range files {
		tpl, err := loadTemplateFile(f.Path, f.Name)
		if err != nil {
			return err
		}
		tpls = append(tpls, tpl)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.installLocked(tpls...)
}

// FullReload re-globs the template directory and replaces the template set
// with what is on disk now. Templates brought in through Extend survive the
// reload. Only engines created by NewFromGlob can reload; on failure the
// engine keeps serving its previous template set.
func (e *Engine) FullReload() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.glob == "" {
		return NewError(ErrInvalidOperation,
			"full reload requires an engine created from a glob")
	}
	tpls, err := loadGlob(e.glob)
	if err != nil {
		return err
	}

	snapshot := e.templates
	next := make(map[string]*Template, len(tpls))
	for name, tpl := range snapshot {
		if tpl.FromExtend {
			next[name] = tpl
		}
	}
	for _, tpl := range tpls {
		next[tpl.Name] = tpl
	}
	e.templates = next
	if err := e.resolveLocked(); err != nil {
		e.templates = snapshot
		return err
	}
	slog.Debug("lysine: reloaded templates",
		"pattern", e.glob, "count", len(e.templates))
	return nil
}

// RenderToFile renders a template and commits the output to path
// atomically: the render buffers in memory first, so a failed render
// leaves any existing file untouched and readers never observe a partial
// write.
func (e *Engine) RenderToFile(name string, ctx *Context, path string) error {
	var buf bytes.Buffer
	if err := e.RenderTo(&buf, name, ctx); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return NewError(ErrWriteFailure,
			fmt.Sprintf("failed to write rendered output to %q", path)).WithSource(err)
	}
	return nil
}
