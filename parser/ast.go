// Package parser turns template source into an AST.
//
// The grammar is the Tera dialect: `{{ expr }}` interpolations, `{% %}`
// statements (if/for/set/block/extends/include/import/macro/filter), `{# #}`
// comments, whitespace trimming with `-`, and `{% raw %}` sections. Dotted
// variable paths stay one identifier node, with bracket segments either
// literal or resolved at render time.
package parser

import (
	"github.com/ctcl-bregis/lysine/lexer"
)

// Span represents a location range in source code.
type Span = lexer.Span

// Node is the interface implemented by all AST nodes.
type Node interface {
	node()
	Span() Span
}

// Stmt represents a statement node.
type Stmt interface {
	Node
	stmt()
}

// Expr represents an expression node.
type Expr interface {
	Node
	expr()
}

// --- Statement Types ---

// Template is the root node of a parsed template.
type Template struct {
	Children []Stmt
	span     Span
}

func (t *Template) node()      {}
func (t *Template) stmt()      {}
func (t *Template) Span() Span { return t.span }

// EmitRaw outputs raw template text.
type EmitRaw struct {
	Raw  string
	span Span
}

func (e *EmitRaw) node()      {}
func (e *EmitRaw) stmt()      {}
func (e *EmitRaw) Span() Span { return e.span }

// EmitExpr outputs an expression result.
type EmitExpr struct {
	Expr Expr
	span Span
}

func (e *EmitExpr) node()      {}
func (e *EmitExpr) stmt()      {}
func (e *EmitExpr) Span() Span { return e.span }

// ForLoop represents a for loop. KeyName is empty for single-binding loops.
// An optional condition restricts which elements are iterated.
type ForLoop struct {
	KeyName   string
	ValueName string
	Iter      Expr
	Cond      Expr // optional
	Body      []Stmt
	ElseBody  []Stmt
	span      Span
}

func (f *ForLoop) node()      {}
func (f *ForLoop) stmt()      {}
func (f *ForLoop) Span() Span { return f.span }

// IfCond represents an if/elif/else condition. Elif chains nest in FalseBody.
type IfCond struct {
	Expr      Expr
	TrueBody  []Stmt
	FalseBody []Stmt
	span      Span
}

func (i *IfCond) node()      {}
func (i *IfCond) stmt()      {}
func (i *IfCond) Span() Span { return i.span }

// Set represents a variable assignment. Global assignments write to the
// render root scope instead of the innermost frame.
type Set struct {
	Name   string
	Expr   Expr
	Global bool
	span   Span
}

func (s *Set) node()      {}
func (s *Set) stmt()      {}
func (s *Set) Span() Span { return s.span }

// Block represents a template block for inheritance.
type Block struct {
	Name string
	Body []Stmt
	span Span
}

func (b *Block) node()      {}
func (b *Block) stmt()      {}
func (b *Block) Span() Span { return b.span }

// Extends represents an extends directive. The parent name must be a string
// literal so inheritance can resolve before any rendering.
type Extends struct {
	Name string
	span Span
}

func (e *Extends) node()      {}
func (e *Extends) stmt()      {}
func (e *Extends) Span() Span { return e.span }

// Include represents an include directive.
type Include struct {
	Name          string
	IgnoreMissing bool
	span          Span
}

func (i *Include) node()      {}
func (i *Include) stmt()      {}
func (i *Include) Span() Span { return i.span }

// Import represents a macro-file import bound to a namespace.
type Import struct {
	TemplateName string
	Namespace    string
	span         Span
}

func (i *Import) node()      {}
func (i *Import) stmt()      {}
func (i *Import) Span() Span { return i.span }

// MacroArg is one declared macro parameter. Default is nil for required
// parameters.
type MacroArg struct {
	Name    string
	Default Expr
}

// Macro represents a macro definition.
type Macro struct {
	Name string
	Args []MacroArg
	Body []Stmt
	span Span
}

func (m *Macro) node()      {}
func (m *Macro) stmt()      {}
func (m *Macro) Span() Span { return m.span }

// FilterSection pipes the rendered body through a filter.
type FilterSection struct {
	Filter *Filter // Filter.Expr is nil, the body output takes its place
	Body   []Stmt
	span   Span
}

func (f *FilterSection) node()      {}
func (f *FilterSection) stmt()      {}
func (f *FilterSection) Span() Span { return f.span }

// Continue represents a continue statement.
type Continue struct {
	span Span
}

func (c *Continue) node()      {}
func (c *Continue) stmt()      {}
func (c *Continue) Span() Span { return c.span }

// Break represents a break statement.
type Break struct {
	span Span
}

func (b *Break) node()      {}
func (b *Break) stmt()      {}
func (b *Break) Span() Span { return b.span }

// --- Expression Types ---

// Const represents a constant literal: string, int64, float64 or bool.
type Const struct {
	Value any
	span  Span
}

func (c *Const) node()      {}
func (c *Const) expr()      {}
func (c *Const) Span() Span { return c.span }

// Segment is one step of an identifier path after the root. Exactly one of
// Literal/Dynamic is meaningful: a nil Dynamic means the literal text, and a
// non-nil Dynamic is a bracketed expression resolved at render time.
type Segment struct {
	Literal string
	Dynamic Expr
}

// Ident represents a variable reference with its full access path, like
// `product.vendors[0][current].name`.
type Ident struct {
	Root     string
	Segments []Segment
	span     Span
}

func (i *Ident) node()      {}
func (i *Ident) expr()      {}
func (i *Ident) Span() Span { return i.span }

// UnaryOpKind represents the type of unary operator.
type UnaryOpKind int

const (
	UnaryNot UnaryOpKind = iota
	UnaryNeg
)

func (k UnaryOpKind) String() string {
	switch k {
	case UnaryNot:
		return "not"
	case UnaryNeg:
		return "neg"
	}
	return "?"
}

// UnaryOp represents a unary operation.
type UnaryOp struct {
	Op   UnaryOpKind
	Expr Expr
	span Span
}

func (u *UnaryOp) node()      {}
func (u *UnaryOp) expr()      {}
func (u *UnaryOp) Span() Span { return u.span }

// BinOpKind represents the type of binary operator.
type BinOpKind int

const (
	BinOpEq BinOpKind = iota
	BinOpNe
	BinOpLt
	BinOpLte
	BinOpGt
	BinOpGte
	BinOpScAnd
	BinOpScOr
	BinOpAdd
	BinOpSub
	BinOpMul
	BinOpDiv
	BinOpRem
	BinOpConcat
	BinOpIn
)

func (k BinOpKind) String() string {
	switch k {
	case BinOpEq:
		return "=="
	case BinOpNe:
		return "!="
	case BinOpLt:
		return "<"
	case BinOpLte:
		return "<="
	case BinOpGt:
		return ">"
	case BinOpGte:
		return ">="
	case BinOpScAnd:
		return "and"
	case BinOpScOr:
		return "or"
	case BinOpAdd:
		return "+"
	case BinOpSub:
		return "-"
	case BinOpMul:
		return "*"
	case BinOpDiv:
		return "/"
	case BinOpRem:
		return "%"
	case BinOpConcat:
		return "~"
	case BinOpIn:
		return "in"
	}
	return "?"
}

// BinOp represents a binary operation.
type BinOp struct {
	Op    BinOpKind
	Left  Expr
	Right Expr
	span  Span
}

func (b *BinOp) node()      {}
func (b *BinOp) expr()      {}
func (b *BinOp) Span() Span { return b.span }

// Kwarg is one keyword argument in a call or filter.
type Kwarg struct {
	Name  string
	Value Expr
}

// Filter represents a filter application. Expr is nil inside filter
// sections, where the rendered body takes its place.
type Filter struct {
	Name   string
	Expr   Expr
	Kwargs []Kwarg
	span   Span
}

func (f *Filter) node()      {}
func (f *Filter) expr()      {}
func (f *Filter) Span() Span { return f.span }

// Test represents an `is` test, like `x is divisibleby(3)`. Test arguments
// are positional.
type Test struct {
	Name    string
	Expr    Expr
	Args    []Expr
	Negated bool
	span    Span
}

func (t *Test) node()      {}
func (t *Test) expr()      {}
func (t *Test) Span() Span { return t.span }

// FunctionCall represents a registered-function call. Arguments are keyword
// only; `super()` also parses as a function call and the renderer gives it
// block semantics.
type FunctionCall struct {
	Name   string
	Kwargs []Kwarg
	span   Span
}

func (f *FunctionCall) node()      {}
func (f *FunctionCall) expr()      {}
func (f *FunctionCall) Span() Span { return f.span }

// MacroCall represents a namespaced macro invocation, like
// `macros::input(label="x")`. Self-calls use the `self` namespace.
type MacroCall struct {
	Namespace string
	Name      string
	Args      []Expr
	Kwargs    []Kwarg
	span      Span
}

func (m *MacroCall) node()      {}
func (m *MacroCall) expr()      {}
func (m *MacroCall) Span() Span { return m.span }

// List represents an array literal.
type List struct {
	Items []Expr
	span  Span
}

func (l *List) node()      {}
func (l *List) expr()      {}
func (l *List) Span() Span { return l.span }
