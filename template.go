package lysine

import (
	"fmt"

	"github.com/ctcl-bregis/lysine/lexer"
	"github.com/ctcl-bregis/lysine/parser"
)

// MacroImport records one `{% import "file" as ns %}` statement.
type MacroImport struct {
	File      string
	Namespace string
}

// BlockDef is one entry in a block-definition chain: a block body together
// with the template that defines it.
type BlockDef struct {
	Template string
	Block    *parser.Block
}

// Template is a parsed template plus the metadata that drives inheritance
// and macro resolution.
type Template struct {
	Name   string
	Path   string
	Source string
	AST    []parser.Stmt

	Parent             string
	Blocks             map[string]*parser.Block
	Macros             map[string]*parser.Macro
	ImportedMacroFiles []MacroImport

	// FromExtend marks templates merged in from another engine; FullReload
	// keeps them.
	FromExtend bool

	// Filled by the inheritance resolver. Ancestors is ordered closest
	// parent first; BlockChains holds, per block name, the definition
	// chain from most derived to most ancestral.
	Ancestors   []string
	BlockChains map[string][]BlockDef
}

// newTemplate parses source and extracts the inheritance metadata.
func newTemplate(name, path, source string) (*Template, error) {
	ast, err := parser.Parse(source, name)
	if err != nil {
		if perr, ok := err.(*parser.Error); ok {
			return nil, &Error{
				Kind:     ErrSyntax,
				Message:  perr.Detail,
				Template: name,
				Span:     &lexer.Span{StartLine: perr.Line},
			}
		}
		return nil, NewError(ErrSyntax, err.Error()).WithTemplate(name)
	}

	t := &Template{
		Name:   name,
		Path:   path,
		Source: source,
		AST:    ast.Children,
		Blocks: make(map[string]*parser.Block),
		Macros: make(map[string]*parser.Macro),
	}
	if err := t.extractMetadata(); err != nil {
		return nil, err
	}
	return t, nil
}

// extractMetadata collects the parent, macros, blocks and macro-file
// imports. Extends and macro definitions are top level by parser rule;
// blocks and imports can nest.
func (t *Template) extractMetadata() error {
	for _, stmt := range t.AST {
		switch st := stmt.(type) {
		case *parser.Extends:
			t.Parent = st.Name
		case *parser.Macro:
			if _, dup := t.Macros[st.Name]; dup {
				return NewError(ErrSyntax,
					fmt.Sprintf("macro %q is defined twice", st.Name)).WithTemplate(t.Name)
			}
			t.Macros[st.Name] = st
		}
	}
	return t.walkMetadata(t.AST)
}

func (t *Template) walkMetadata(stmts []parser.Stmt) error {
	for _, stmt := range stmts {
		switch st := stmt.(type) {
		case *parser.Block:
			if _, dup := t.Blocks[st.Name]; dup {
				return NewError(ErrSyntax,
					fmt.Sprintf("block %q is defined twice", st.Name)).WithTemplate(t.Name)
			}
			t.Blocks[st.Name] = st
			if err := t.walkMetadata(st.Body); err != nil {
				return err
			}
		case *parser.Import:
			t.ImportedMacroFiles = append(t.ImportedMacroFiles, MacroImport{
				File:      st.TemplateName,
				Namespace: st.Namespace,
			})
		case *parser.Macro:
			if err := t.walkMetadata(st.Body); err != nil {
				return err
			}
		case *parser.IfCond:
			if err := t.walkMetadata(st.TrueBody); err != nil {
				return err
			}
			if err := t.walkMetadata(st.FalseBody); err != nil {
				return err
			}
		case *parser.ForLoop:
			if err := t.walkMetadata(st.Body); err != nil {
				return err
			}
			if err := t.walkMetadata(st.ElseBody); err != nil {
				return err
			}
		case *parser.FilterSection:
			if err := t.walkMetadata(st.Body); err != nil {
				return err
			}
		}
	}
	return nil
}
