package lysine

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ctcl-bregis/lysine/lexer"
	"github.com/ctcl-bregis/lysine/parser"
	"github.com/ctcl-bregis/lysine/value"
)

const maxIncludeDepth = 100

// Sentinel errors that unwind break/continue to the nearest enclosing loop.
var (
	errBreak    = fmt.Errorf("break")
	errContinue = fmt.Errorf("continue")
)

// processor walks template ASTs and writes rendered output to a sink. A new
// processor is created per render; it is not safe for concurrent use.
type processor struct {
	engine *Engine

	// root is the template the render was requested for; block chains are
	// always resolved against it. cur is the template that lexically owns
	// the statements currently rendering, which is what macro namespaces
	// resolve against. Both switch during includes; cur alone switches
	// while rendering an inherited block body or a macro body.
	root *Template
	cur  *Template

	ctx   *Context
	stack *callStack

	w            io.Writer
	escape       bool
	escapeFn     EscapeFn
	includeDepth int
}

func newProcessor(e *Engine, tpl *Template, ctx *Context) *processor {
	if ctx == nil {
		ctx = NewContext()
	}
	return &processor{
		engine:   e,
		root:     tpl,
		cur:      tpl,
		ctx:      ctx,
		stack:    newCallStack(ctx),
		escape:   e.shouldEscape(tpl),
		escapeFn: e.escapeFn,
	}
}

// render evaluates the template. When the template extends another, the
// most ancestral template's body drives the render and block statements in
// it resolve against the leaf's block chains.
func (p *processor) render(w io.Writer) error {
	p.w = w
	base := p.root
	if n := len(p.root.Ancestors); n > 0 {
		b, ok := p.engine.templates[p.root.Ancestors[n-1]]
		if !ok {
			return NewError(ErrTemplateNotFound,
				fmt.Sprintf("base template %q is not registered", p.root.Ancestors[n-1])).
				WithTemplate(p.root.Name)
		}
		base = b
	}
	p.cur = base
	return p.renderBody(base.AST)
}

func (p *processor) renderBody(stmts []parser.Stmt) error {
	for _, stmt := range stmts {
		if err := p.renderStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *processor) renderStmt(stmt parser.Stmt) error {
	switch st := stmt.(type) {
	case *parser.EmitRaw:
		return p.writeString(st.Raw)
	case *parser.EmitExpr:
		return p.renderEmitExpr(st)
	case *parser.IfCond:
		return p.renderIfCond(st)
	case *parser.ForLoop:
		return p.renderForLoop(st)
	case *parser.Set:
		return p.renderSet(st)
	case *parser.Block:
		return p.renderBlock(st)
	case *parser.Include:
		return p.renderInclude(st)
	case *parser.FilterSection:
		return p.renderFilterSection(st)
	case *parser.Extends, *parser.Import, *parser.Macro:
		// Handled at construction time.
		return nil
	case *parser.Break:
		return errBreak
	case *parser.Continue:
		return errContinue
	default:
		return NewError(ErrInvalidOperation,
			fmt.Sprintf("unsupported statement type %T", stmt)).WithTemplate(p.cur.Name)
	}
}

func (p *processor) writeString(s string) error {
	if _, err := io.WriteString(p.w, s); err != nil {
		return NewError(ErrWriteFailure, "failed to write rendered output").WithSource(err)
	}
	return nil
}

// captureBody renders statements into a string instead of the sink.
func (p *processor) captureBody(body []parser.Stmt) (string, error) {
	var sb strings.Builder
	oldW := p.w
	p.w = &sb
	err := p.renderBody(body)
	p.w = oldW
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (p *processor) renderEmitExpr(st *parser.EmitExpr) error {
	if call, ok := st.Expr.(*parser.FunctionCall); ok && call.Name == "super" {
		return p.renderSuper(call.Span())
	}
	val, err := p.evalExpr(st.Expr)
	if err != nil {
		return err
	}
	if val.IsUndefined() {
		return p.undefinedError(st.Expr)
	}
	return p.emitValue(val, st.Span())
}

func (p *processor) emitValue(v value.Value, span lexer.Span) error {
	switch v.Kind() {
	case value.KindArray, value.KindObject:
		return NewError(ErrInvalidOperation,
			fmt.Sprintf("cannot interpolate a value of kind %s", v.Kind())).
			WithSpan(span).WithTemplate(p.cur.Name)
	}
	s := v.String()
	if p.escape && !v.IsSafe() {
		s = p.escapeFn(s)
	}
	return p.writeString(s)
}

func (p *processor) renderIfCond(st *parser.IfCond) error {
	cond, err := p.evalExpr(st.Expr)
	if err != nil {
		return err
	}
	if cond.IsTrue() {
		return p.renderBody(st.TrueBody)
	}
	return p.renderBody(st.FalseBody)
}

func (p *processor) renderForLoop(loop *parser.ForLoop) error {
	iter, err := p.evalExpr(loop.Iter)
	if err != nil {
		return err
	}
	if iter.IsUndefined() {
		return p.undefinedError(loop.Iter)
	}
	items, err := materializeLoop(iter, loop.KeyName != "")
	if err != nil {
		return p.located(err, loop.Span())
	}

	// The filter condition runs in a throwaway frame before iteration, so
	// loop variables from prior iterations never leak into it.
	if loop.Cond != nil {
		filtered := make([]loopItem, 0, len(items))
		frame := newFrame(frameForLoop)
		p.stack.push(frame)
		for _, item := range items {
			frame.vars[loop.ValueName] = item.val
			if loop.KeyName != "" {
				frame.vars[loop.KeyName] = item.key
			}
			cond, err := p.evalExpr(loop.Cond)
			if err != nil {
				p.stack.pop()
				return err
			}
			if cond.IsTrue() {
				filtered = append(filtered, item)
			}
		}
		p.stack.pop()
		items = filtered
	}

	if len(items) == 0 {
		return p.renderBody(loop.ElseBody)
	}

	for i, item := range items {
		frame := newFrame(frameForLoop)
		frame.vars[loop.ValueName] = item.val
		if loop.KeyName != "" {
			frame.vars[loop.KeyName] = item.key
		}
		frame.vars["loop"] = loopValue(i, len(items))
		p.stack.push(frame)
		err := p.renderBody(loop.Body)
		p.stack.pop()
		if err == errBreak {
			return nil
		}
		if err == errContinue {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *processor) renderSet(st *parser.Set) error {
	val, err := p.evalExpr(st.Expr)
	if err != nil {
		return err
	}
	if st.Global {
		p.stack.setGlobal(st.Name, val)
	} else {
		p.stack.setLocal(st.Name, val)
	}
	return nil
}

// renderBlock renders the most derived definition of the block, taken from
// the chains of the template the render was requested for.
func (p *processor) renderBlock(st *parser.Block) error {
	if chain := p.root.BlockChains[st.Name]; len(chain) > 0 {
		return p.renderChainEntry(st.Name, 0)
	}
	return NewError(ErrUnknownBlock,
		fmt.Sprintf("block %q has no resolved definition", st.Name)).
		WithSpan(st.Span()).WithTemplate(p.cur.Name)
}

func (p *processor) renderChainEntry(blockName string, pos int) error {
	entry := p.root.BlockChains[blockName][pos]
	owner, ok := p.engine.templates[entry.Template]
	if !ok {
		return NewError(ErrTemplateNotFound,
			fmt.Sprintf("template %q owning block %q is not registered",
				entry.Template, blockName)).WithTemplate(p.root.Name)
	}
	frame := newFrame(frameBlock)
	frame.block = blockName
	frame.chainPos = pos
	p.stack.push(frame)
	saved := p.cur
	p.cur = owner
	err := p.renderBody(entry.Block.Body)
	p.cur = saved
	p.stack.pop()
	return err
}

// renderSuper renders the next definition up the current block's chain.
func (p *processor) renderSuper(span lexer.Span) error {
	blockName, pos, ok := p.stack.currentBlock()
	if !ok {
		return NewError(ErrInvalidOperation,
			"super() can only be used inside a block").
			WithSpan(span).WithTemplate(p.cur.Name)
	}
	chain := p.root.BlockChains[blockName]
	if pos+1 >= len(chain) {
		return NewError(ErrUnknownBlock,
			fmt.Sprintf("block %q has no parent definition for super()", blockName)).
			WithSpan(span).WithTemplate(p.cur.Name)
	}
	return p.renderChainEntry(blockName, pos+1)
}

// renderInclude renders another template in place. The included template
// becomes the root for its own block resolution but shares the call stack,
// context and escaping mode of the host render.
func (p *processor) renderInclude(inc *parser.Include) error {
	tpl, ok := p.engine.templates[inc.Name]
	if !ok {
		if inc.IgnoreMissing {
			return nil
		}
		return NewError(ErrTemplateNotFound,
			fmt.Sprintf("included template %q was not found", inc.Name)).
			WithSpan(inc.Span()).WithTemplate(p.cur.Name)
	}
	if tpl.Parent != "" {
		return NewError(ErrInvalidOperation,
			fmt.Sprintf("included template %q must not extend another template", inc.Name)).
			WithSpan(inc.Span()).WithTemplate(p.cur.Name)
	}
	if p.includeDepth >= maxIncludeDepth {
		return NewError(ErrRecursionLimit,
			fmt.Sprintf("include depth exceeded %d, last include was %q",
				maxIncludeDepth, inc.Name)).
			WithSpan(inc.Span()).WithTemplate(p.cur.Name)
	}
	p.includeDepth++
	savedRoot, savedCur := p.root, p.cur
	p.root, p.cur = tpl, tpl
	err := p.renderBody(tpl.AST)
	p.root, p.cur = savedRoot, savedCur
	p.includeDepth--
	return err
}

// renderFilterSection captures the body and pipes it through the filter.
// The capture happens with escaping active; the filter output is written
// back verbatim so it is not escaped a second time.
func (p *processor) renderFilterSection(fs *parser.FilterSection) error {
	body, err := p.captureBody(fs.Body)
	if err != nil {
		return err
	}
	kwargs, err := p.evalKwargs(fs.Filter.Kwargs)
	if err != nil {
		return err
	}
	out, err := p.applyFilter(fs.Filter.Name, value.FromString(body), kwargs, fs.Span())
	if err != nil {
		return err
	}
	switch out.Kind() {
	case value.KindArray, value.KindObject:
		return NewError(ErrInvalidOperation,
			fmt.Sprintf("filter section produced a value of kind %s", out.Kind())).
			WithSpan(fs.Span()).WithTemplate(p.cur.Name)
	}
	return p.writeString(out.String())
}

func (p *processor) evalExpr(expr parser.Expr) (value.Value, error) {
	switch ex := expr.(type) {
	case *parser.Const:
		return value.FromAny(ex.Value), nil
	case *parser.Ident:
		return p.evalIdent(ex)
	case *parser.List:
		items := make([]value.Value, 0, len(ex.Items))
		for _, item := range ex.Items {
			v, err := p.evalExpr(item)
			if err != nil {
				return value.Undefined(), err
			}
			items = append(items, v)
		}
		return value.FromSlice(items), nil
	case *parser.UnaryOp:
		return p.evalUnaryOp(ex)
	case *parser.BinOp:
		return p.evalBinOp(ex)
	case *parser.Filter:
		return p.evalFilter(ex)
	case *parser.Test:
		return p.evalTest(ex)
	case *parser.FunctionCall:
		return p.evalFunctionCall(ex)
	case *parser.MacroCall:
		return p.evalMacroCall(ex)
	default:
		return value.Undefined(), NewError(ErrInvalidOperation,
			fmt.Sprintf("unsupported expression type %T", expr)).WithTemplate(p.cur.Name)
	}
}

// evalIdent resolves a dotted path. A miss yields undefined rather than an
// error; the call sites that require a defined value report it themselves.
func (p *processor) evalIdent(ident *parser.Ident) (value.Value, error) {
	if ident.Root == contextDebugVariable && len(ident.Segments) == 0 {
		return value.FromString(p.ctx.asValue().ToJSONIndent()), nil
	}
	segments := make([]string, 0, len(ident.Segments))
	for _, seg := range ident.Segments {
		if seg.Dynamic == nil {
			segments = append(segments, seg.Literal)
			continue
		}
		idx, err := p.evalExpr(seg.Dynamic)
		if err != nil {
			return value.Undefined(), err
		}
		switch idx.Kind() {
		case value.KindNumber:
			n, ok := idx.AsInt()
			if !ok {
				return value.Undefined(), NewError(ErrInvalidOperation,
					"subscript index must be an integer").
					WithSpan(ident.Span()).WithTemplate(p.cur.Name)
			}
			segments = append(segments, strconv.FormatInt(n, 10))
		case value.KindString:
			s, _ := idx.AsString()
			segments = append(segments, s)
		default:
			return value.Undefined(), NewError(ErrInvalidOperation,
				fmt.Sprintf("cannot subscript with a value of kind %s", idx.Kind())).
				WithSpan(ident.Span()).WithTemplate(p.cur.Name)
		}
	}
	v, _ := p.stack.lookup(ident.Root, segments)
	return v, nil
}

func (p *processor) evalUnaryOp(op *parser.UnaryOp) (value.Value, error) {
	v, err := p.evalExpr(op.Expr)
	if err != nil {
		return value.Undefined(), err
	}
	switch op.Op {
	case parser.UnaryNot:
		return value.FromBool(!v.IsTrue()), nil
	case parser.UnaryNeg:
		out, err := v.Neg()
		if err != nil {
			return value.Undefined(), NewError(ErrInvalidOperation, err.Error()).
				WithSpan(op.Span()).WithTemplate(p.cur.Name)
		}
		return out, nil
	default:
		return value.Undefined(), NewError(ErrInvalidOperation,
			fmt.Sprintf("unsupported unary operator %s", op.Op)).WithTemplate(p.cur.Name)
	}
}

func (p *processor) evalBinOp(op *parser.BinOp) (value.Value, error) {
	// and/or short-circuit and always produce a bool.
	switch op.Op {
	case parser.BinOpScAnd:
		left, err := p.evalExpr(op.Left)
		if err != nil {
			return value.Undefined(), err
		}
		if !left.IsTrue() {
			return value.FromBool(false), nil
		}
		right, err := p.evalExpr(op.Right)
		if err != nil {
			return value.Undefined(), err
		}
		return value.FromBool(right.IsTrue()), nil
	case parser.BinOpScOr:
		left, err := p.evalExpr(op.Left)
		if err != nil {
			return value.Undefined(), err
		}
		if left.IsTrue() {
			return value.FromBool(true), nil
		}
		right, err := p.evalExpr(op.Right)
		if err != nil {
			return value.Undefined(), err
		}
		return value.FromBool(right.IsTrue()), nil
	}

	left, err := p.evalExpr(op.Left)
	if err != nil {
		return value.Undefined(), err
	}
	right, err := p.evalExpr(op.Right)
	if err != nil {
		return value.Undefined(), err
	}

	switch op.Op {
	case parser.BinOpEq:
		return value.FromBool(left.Equal(right)), nil
	case parser.BinOpNe:
		return value.FromBool(!left.Equal(right)), nil
	case parser.BinOpLt, parser.BinOpLte, parser.BinOpGt, parser.BinOpGte:
		c, ok := left.Compare(right)
		if !ok {
			return value.Undefined(), NewError(ErrInvalidOperation,
				fmt.Sprintf("cannot compare %s with %s", left.Kind(), right.Kind())).
				WithSpan(op.Span()).WithTemplate(p.cur.Name)
		}
		var res bool
		switch op.Op {
		case parser.BinOpLt:
			res = c < 0
		case parser.BinOpLte:
			res = c <= 0
		case parser.BinOpGt:
			res = c > 0
		case parser.BinOpGte:
			res = c >= 0
		}
		return value.FromBool(res), nil
	case parser.BinOpIn:
		found, ok := right.Contains(left)
		if !ok {
			return value.Undefined(), NewError(ErrInvalidOperation,
				fmt.Sprintf("cannot check membership in a value of kind %s", right.Kind())).
				WithSpan(op.Span()).WithTemplate(p.cur.Name)
		}
		return value.FromBool(found), nil
	}

	var out value.Value
	switch op.Op {
	case parser.BinOpAdd:
		out, err = left.Add(right)
	case parser.BinOpSub:
		out, err = left.Sub(right)
	case parser.BinOpMul:
		out, err = left.Mul(right)
	case parser.BinOpDiv:
		out, err = left.Div(right)
	case parser.BinOpRem:
		out, err = left.Rem(right)
	case parser.BinOpConcat:
		out, err = left.Concat(right)
	default:
		return value.Undefined(), NewError(ErrInvalidOperation,
			fmt.Sprintf("unsupported binary operator %s", op.Op)).WithTemplate(p.cur.Name)
	}
	if err != nil {
		return value.Undefined(), NewError(ErrInvalidOperation, err.Error()).
			WithSpan(op.Span()).WithTemplate(p.cur.Name)
	}
	return out, nil
}

// evalFilter pipes a value through a filter. An undefined input is an
// error for everything but `default`, which exists to supply one.
func (p *processor) evalFilter(f *parser.Filter) (value.Value, error) {
	input, err := p.evalExpr(f.Expr)
	if err != nil {
		return value.Undefined(), err
	}
	if input.IsUndefined() && f.Name != "default" {
		return value.Undefined(), p.undefinedError(f.Expr)
	}
	kwargs, err := p.evalKwargs(f.Kwargs)
	if err != nil {
		return value.Undefined(), err
	}
	return p.applyFilter(f.Name, input, kwargs, f.Span())
}

func (p *processor) applyFilter(name string, input value.Value, kwargs map[string]value.Value, span lexer.Span) (value.Value, error) {
	entry, ok := p.engine.filters[name]
	if !ok {
		return value.Undefined(), NewError(ErrUnknownFilter,
			fmt.Sprintf("filter `%s` is not registered", name)).
			WithSpan(span).WithTemplate(p.cur.Name)
	}
	out, err := entry.fn(input, kwargs)
	if err != nil {
		return value.Undefined(), NewError(ErrCapability,
			fmt.Sprintf("filter `%s` failed", name)).
			WithSource(err).WithSpan(span).WithTemplate(p.cur.Name)
	}
	if entry.safe {
		out = out.MarkSafe()
	}
	return out, nil
}

func (p *processor) evalTest(t *parser.Test) (value.Value, error) {
	tester, ok := p.engine.testers[t.Name]
	if !ok {
		return value.Undefined(), NewError(ErrUnknownTester,
			fmt.Sprintf("tester `%s` is not registered", t.Name)).
			WithSpan(t.Span()).WithTemplate(p.cur.Name)
	}
	val, err := p.evalExpr(t.Expr)
	if err != nil {
		return value.Undefined(), err
	}
	args := make([]value.Value, 0, len(t.Args))
	for _, argExpr := range t.Args {
		arg, err := p.evalExpr(argExpr)
		if err != nil {
			return value.Undefined(), err
		}
		args = append(args, arg)
	}
	res, err := tester(&val, args)
	if err != nil {
		return value.Undefined(), NewError(ErrCapability,
			fmt.Sprintf("tester `%s` failed", t.Name)).
			WithSource(err).WithSpan(t.Span()).WithTemplate(p.cur.Name)
	}
	if t.Negated {
		res = !res
	}
	return value.FromBool(res), nil
}

func (p *processor) evalFunctionCall(call *parser.FunctionCall) (value.Value, error) {
	if call.Name == "super" {
		return value.Undefined(), NewError(ErrInvalidOperation,
			"super() can only be used on its own inside a block").
			WithSpan(call.Span()).WithTemplate(p.cur.Name)
	}
	fn, ok := p.engine.functions[call.Name]
	if !ok {
		return value.Undefined(), NewError(ErrUnknownFunction,
			fmt.Sprintf("function `%s` is not registered", call.Name)).
			WithSpan(call.Span()).WithTemplate(p.cur.Name)
	}
	kwargs, err := p.evalKwargs(call.Kwargs)
	if err != nil {
		return value.Undefined(), err
	}
	out, err := fn(kwargs)
	if err != nil {
		return value.Undefined(), NewError(ErrCapability,
			fmt.Sprintf("function `%s` failed", call.Name)).
			WithSource(err).WithSpan(call.Span()).WithTemplate(p.cur.Name)
	}
	return out, nil
}

// evalMacroCall invokes a macro and returns its captured output as a safe
// string. Arguments are evaluated in the caller's scope; the body runs in
// an isolated frame that sees nothing but its own bindings.
func (p *processor) evalMacroCall(call *parser.MacroCall) (value.Value, error) {
	def, defTpl, err := p.resolveMacro(call)
	if err != nil {
		return value.Undefined(), err
	}
	if p.stack.macroDepth >= maxMacroDepth {
		return value.Undefined(), NewError(ErrRecursionLimit,
			fmt.Sprintf("macro call depth exceeded %d, last call was `%s::%s`",
				maxMacroDepth, call.Namespace, call.Name)).
			WithSpan(call.Span()).WithTemplate(p.cur.Name)
	}

	if len(call.Args) > len(def.Args) {
		return value.Undefined(), NewError(ErrInvalidArgument,
			fmt.Sprintf("macro `%s::%s` takes %d argument(s), got %d",
				call.Namespace, call.Name, len(def.Args), len(call.Args))).
			WithSpan(call.Span()).WithTemplate(p.cur.Name)
	}

	frame := newFrame(frameMacro)
	for i, argExpr := range call.Args {
		v, err := p.evalExpr(argExpr)
		if err != nil {
			return value.Undefined(), err
		}
		frame.vars[def.Args[i].Name] = v
	}
	for _, kw := range call.Kwargs {
		declared := false
		for _, arg := range def.Args {
			if arg.Name == kw.Name {
				declared = true
				break
			}
		}
		if !declared {
			return value.Undefined(), NewError(ErrInvalidArgument,
				fmt.Sprintf("macro `%s::%s` has no parameter `%s`",
					call.Namespace, call.Name, kw.Name)).
				WithSpan(call.Span()).WithTemplate(p.cur.Name)
		}
		if _, dup := frame.vars[kw.Name]; dup {
			return value.Undefined(), NewError(ErrInvalidArgument,
				fmt.Sprintf("macro `%s::%s` parameter `%s` given twice",
					call.Namespace, call.Name, kw.Name)).
				WithSpan(call.Span()).WithTemplate(p.cur.Name)
		}
		v, err := p.evalExpr(kw.Value)
		if err != nil {
			return value.Undefined(), err
		}
		frame.vars[kw.Name] = v
	}
	for _, arg := range def.Args {
		if _, ok := frame.vars[arg.Name]; ok {
			continue
		}
		if arg.Default == nil {
			return value.Undefined(), NewError(ErrInvalidArgument,
				fmt.Sprintf("macro `%s::%s` is missing argument `%s`",
					call.Namespace, call.Name, arg.Name)).
				WithSpan(call.Span()).WithTemplate(p.cur.Name)
		}
		v, err := p.evalExpr(arg.Default)
		if err != nil {
			return value.Undefined(), err
		}
		frame.vars[arg.Name] = v
	}

	p.stack.push(frame)
	saved := p.cur
	p.cur = defTpl
	out, err := p.captureBody(def.Body)
	p.cur = saved
	p.stack.pop()
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromSafeString(out), nil
}

// resolveMacro finds the macro definition for a call. Namespaces resolve
// lexically: `self` means the template whose statements are rendering, any
// other namespace must be imported by that template.
func (p *processor) resolveMacro(call *parser.MacroCall) (*parser.Macro, *Template, error) {
	var tpl *Template
	if call.Namespace == "self" {
		tpl = p.cur
	} else {
		for _, imp := range p.cur.ImportedMacroFiles {
			if imp.Namespace == call.Namespace {
				tpl = p.engine.templates[imp.File]
				break
			}
		}
		if tpl == nil {
			return nil, nil, NewError(ErrUnknownMacro,
				fmt.Sprintf("macro namespace `%s` was not imported in template %q",
					call.Namespace, p.cur.Name)).
				WithSpan(call.Span()).WithTemplate(p.cur.Name)
		}
	}
	def, ok := tpl.Macros[call.Name]
	if !ok {
		return nil, nil, NewError(ErrUnknownMacro,
			fmt.Sprintf("macro `%s::%s` not found in template %q",
				call.Namespace, call.Name, tpl.Name)).
			WithSpan(call.Span()).WithTemplate(p.cur.Name)
	}
	return def, tpl, nil
}

func (p *processor) evalKwargs(kwargs []parser.Kwarg) (map[string]value.Value, error) {
	if len(kwargs) == 0 {
		return nil, nil
	}
	out := make(map[string]value.Value, len(kwargs))
	for _, kw := range kwargs {
		v, err := p.evalExpr(kw.Value)
		if err != nil {
			return nil, err
		}
		out[kw.Name] = v
	}
	return out, nil
}

func (p *processor) undefinedError(expr parser.Expr) error {
	if ident, ok := expr.(*parser.Ident); ok {
		return NewError(ErrUndefinedVariable,
			fmt.Sprintf("variable `%s` not found", identDisplay(ident))).
			WithSpan(ident.Span()).WithTemplate(p.cur.Name)
	}
	return NewError(ErrUndefinedVariable,
		"expression evaluated to an undefined value").
		WithSpan(expr.Span()).WithTemplate(p.cur.Name)
}

// located attaches position info to errors that carry none yet.
func (p *processor) located(err error, span lexer.Span) error {
	if e, ok := err.(*Error); ok {
		if e.Span == nil {
			e.WithSpan(span)
		}
		e.WithTemplate(p.cur.Name)
	}
	return err
}

func identDisplay(ident *parser.Ident) string {
	var sb strings.Builder
	sb.WriteString(ident.Root)
	for _, seg := range ident.Segments {
		if seg.Dynamic != nil {
			sb.WriteString("[...]")
			continue
		}
		sb.WriteByte('.')
		sb.WriteString(seg.Literal)
	}
	return sb.String()
}
