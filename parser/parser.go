package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ctcl-bregis/lysine/lexer"
)

const maxRecursion = 150

// reservedNames may not be used as assignment targets, loop bindings or
// macro parameters.
var reservedNames = map[string]bool{
	"true": true, "True": true,
	"false": true, "False": true,
	"and": true, "or": true, "not": true,
	"in": true, "is": true,
	"loop": true, "self": true,
}

// Error represents a parse error.
type Error struct {
	Detail string
	Name   string
	Line   uint16
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("syntax error: %s (in %s, line %d)", e.Detail, e.Name, e.Line)
	}
	return fmt.Sprintf("syntax error: %s (line %d)", e.Detail, e.Line)
}

// Parser parses template token streams.
type Parser struct {
	tokens   []lexer.Token
	pos      int
	filename string

	inMacro    bool
	inLoop     bool
	nesting    int // statement body depth, macros only parse at 0
	sawExtends bool
	sawContent bool
	depth      int
	lastSpan   Span
}

// Parse parses template source and returns the AST root.
func Parse(source, filename string) (*Template, error) {
	tokens, err := lexer.Tokenize(source)
	if err != nil {
		if lerr, ok := err.(*lexer.Error); ok {
			return nil, &Error{Detail: lerr.Msg, Name: filename, Line: lerr.Line}
		}
		return nil, &Error{Detail: err.Error(), Name: filename, Line: 1}
	}
	p := &Parser{tokens: tokens, filename: filename}
	tmpl, perr := p.parse()
	if perr != nil {
		return nil, perr
	}
	return tmpl, nil
}

func (p *Parser) parse() (*Template, *Error) {
	span := Span{StartLine: 1}
	children, err := p.subparse(nil)
	if err != nil {
		return nil, err
	}
	if tok := p.current(); tok != nil {
		return nil, p.syntaxError(fmt.Sprintf("unexpected %s", tokenDescription(tok)))
	}
	return &Template{Children: children, span: p.expandSpan(span)}, nil
}

// --- Token helpers ---

func (p *Parser) current() *lexer.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *Parser) peek(n int) *lexer.Token {
	if p.pos+n >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos+n]
}

func (p *Parser) advance() *lexer.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	tok := &p.tokens[p.pos]
	p.lastSpan = tok.Span
	p.pos++
	return tok
}

func (p *Parser) currentSpan() Span {
	if tok := p.current(); tok != nil {
		return tok.Span
	}
	return p.lastSpan
}

func (p *Parser) expandSpan(start Span) Span {
	return Span{
		StartLine:   start.StartLine,
		StartCol:    start.StartCol,
		StartOffset: start.StartOffset,
		EndLine:     p.lastSpan.EndLine,
		EndCol:      p.lastSpan.EndCol,
		EndOffset:   p.lastSpan.EndOffset,
	}
}

func (p *Parser) syntaxError(msg string) *Error {
	return &Error{Detail: msg, Name: p.filename, Line: p.currentSpan().StartLine}
}

func (p *Parser) unexpected(got, expected string) *Error {
	return p.syntaxError(fmt.Sprintf("unexpected %s, expected %s", got, expected))
}

func (p *Parser) unexpectedEOF(expected string) *Error {
	return p.syntaxError(fmt.Sprintf("unexpected end of input, expected %s", expected))
}

func (p *Parser) expect(typ lexer.TokenType, expected string) (*lexer.Token, *Error) {
	tok := p.advance()
	if tok == nil {
		return nil, p.unexpectedEOF(expected)
	}
	if tok.Type != typ {
		return nil, p.unexpected(tokenDescription(tok), expected)
	}
	return tok, nil
}

func (p *Parser) expectIdent(expected string) (string, Span, *Error) {
	tok := p.advance()
	if tok == nil {
		return "", Span{}, p.unexpectedEOF(expected)
	}
	if tok.Type != lexer.TokenIdent {
		return "", Span{}, p.unexpected(tokenDescription(tok), expected)
	}
	return tok.Value, tok.Span, nil
}

func (p *Parser) expectKeyword(kw string) *Error {
	tok := p.advance()
	if tok == nil {
		return p.unexpectedEOF("`" + kw + "`")
	}
	if tok.Type != lexer.TokenIdent || tok.Value != kw {
		return p.unexpected(tokenDescription(tok), "`"+kw+"`")
	}
	return nil
}

func (p *Parser) skip(typ lexer.TokenType) bool {
	if tok := p.current(); tok != nil && tok.Type == typ {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) skipKeyword(kw string) bool {
	if p.matchesKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) matches(typ lexer.TokenType) bool {
	tok := p.current()
	return tok != nil && tok.Type == typ
}

func (p *Parser) matchesKeyword(kw string) bool {
	tok := p.current()
	return tok != nil && tok.Type == lexer.TokenIdent && tok.Value == kw
}

func tokenDescription(tok *lexer.Token) string {
	switch tok.Type {
	case lexer.TokenIdent:
		return fmt.Sprintf("`%s`", tok.Value)
	case lexer.TokenString:
		return "string"
	case lexer.TokenInteger:
		return "integer"
	case lexer.TokenFloat:
		return "float"
	case lexer.TokenBlockEnd:
		return "end of block"
	case lexer.TokenVariableEnd:
		return "end of variable tag"
	case lexer.TokenTemplateData:
		return "template text"
	default:
		return fmt.Sprintf("`%s`", tok.Value)
	}
}

// --- Statement parsing ---

// subparse parses statements until endCheck matches the keyword right after
// a `{%`. The end keyword itself is left for the caller to consume. A nil
// endCheck parses to end of input.
func (p *Parser) subparse(endCheck func(kw string) bool) ([]Stmt, *Error) {
	var children []Stmt
	for {
		tok := p.current()
		if tok == nil {
			if endCheck != nil {
				return nil, p.unexpectedEOF("end of section")
			}
			return children, nil
		}

		switch tok.Type {
		case lexer.TokenTemplateData:
			p.advance()
			if strings.TrimSpace(tok.Value) != "" {
				p.sawContent = true
			}
			children = append(children, &EmitRaw{Raw: tok.Value, span: tok.Span})

		case lexer.TokenVariableStart:
			p.sawContent = true
			span := tok.Span
			p.advance()
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenVariableEnd, "end of variable tag"); err != nil {
				return nil, err
			}
			children = append(children, &EmitExpr{Expr: expr, span: p.expandSpan(span)})

		case lexer.TokenBlockStart:
			next := p.peek(1)
			if next == nil {
				return nil, p.unexpectedEOF("statement")
			}
			if next.Type == lexer.TokenIdent && endCheck != nil && endCheck(next.Value) {
				p.advance() // consume `{%`, leave the keyword
				return children, nil
			}
			p.advance()
			stmt, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			if stmt != nil {
				if _, isExtends := stmt.(*Extends); !isExtends {
					p.sawContent = true
				}
				children = append(children, stmt)
			}

		default:
			return nil, p.syntaxError(fmt.Sprintf("unexpected %s", tokenDescription(tok)))
		}
	}
}

// parseStmt dispatches on the keyword right after `{%`.
func (p *Parser) parseStmt() (Stmt, *Error) {
	tok := p.advance()
	if tok == nil {
		return nil, p.unexpectedEOF("statement")
	}
	if tok.Type != lexer.TokenIdent {
		return nil, p.unexpected(tokenDescription(tok), "statement keyword")
	}
	span := tok.Span

	switch tok.Value {
	case "if":
		return p.parseIfCond(span)
	case "for":
		return p.parseForLoop(span)
	case "set":
		return p.parseSet(span, false)
	case "set_global":
		return p.parseSet(span, true)
	case "block":
		return p.parseBlock(span)
	case "extends":
		return p.parseExtends(span)
	case "include":
		return p.parseInclude(span)
	case "import":
		return p.parseImport(span)
	case "macro":
		return p.parseMacro(span)
	case "filter":
		return p.parseFilterSection(span)
	case "break":
		if !p.inLoop {
			return nil, p.syntaxError("`break` outside of a loop")
		}
		if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
			return nil, err
		}
		return &Break{span: p.expandSpan(span)}, nil
	case "continue":
		if !p.inLoop {
			return nil, p.syntaxError("`continue` outside of a loop")
		}
		if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
			return nil, err
		}
		return &Continue{span: p.expandSpan(span)}, nil
	default:
		return nil, p.syntaxError(fmt.Sprintf("unknown statement `%s`", tok.Value))
	}
}

// parseBody parses a statement body until one of the end keywords, consumes
// the keyword and the closing `%}`, and reports which keyword ended it.
func (p *Parser) parseBody(endKeywords ...string) ([]Stmt, string, *Error) {
	p.nesting++
	body, err := p.subparse(func(kw string) bool {
		for _, end := range endKeywords {
			if kw == end {
				return true
			}
		}
		return false
	})
	p.nesting--
	if err != nil {
		return nil, "", err
	}
	end, _, err2 := p.expectIdent("end of section")
	if err2 != nil {
		return nil, "", err2
	}
	return body, end, nil
}

func (p *Parser) parseIfCond(span Span) (Stmt, *Error) {
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}

	trueBody, end, err := p.parseBody("elif", "else", "endif")
	if err != nil {
		return nil, err
	}

	var falseBody []Stmt
	switch end {
	case "elif":
		// The elif keyword is already consumed; parse the rest as a nested if.
		nested, err := p.parseIfCond(p.currentSpan())
		if err != nil {
			return nil, err
		}
		falseBody = []Stmt{nested}
	case "else":
		if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
			return nil, err
		}
		falseBody, end, err = p.parseBody("endif")
		if err != nil {
			return nil, err
		}
		fallthrough
	case "endif":
		if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
			return nil, err
		}
	}

	return &IfCond{
		Expr:      cond,
		TrueBody:  trueBody,
		FalseBody: falseBody,
		span:      p.expandSpan(span),
	}, nil
}

func (p *Parser) parseForLoop(span Span) (Stmt, *Error) {
	first, _, err := p.expectIdent("loop binding")
	if err != nil {
		return nil, err
	}
	var keyName, valueName string
	if p.skip(lexer.TokenComma) {
		second, _, err := p.expectIdent("value binding")
		if err != nil {
			return nil, err
		}
		keyName, valueName = first, second
	} else {
		valueName = first
	}
	for _, name := range []string{keyName, valueName} {
		if reservedNames[name] {
			return nil, p.syntaxError(fmt.Sprintf("cannot bind reserved name `%s` in a loop", name))
		}
	}

	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	iter, perr := p.parseExpr()
	if perr != nil {
		return nil, perr
	}

	var cond Expr
	if p.skipKeyword("if") {
		cond, perr = p.parseExpr()
		if perr != nil {
			return nil, perr
		}
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}

	wasInLoop := p.inLoop
	p.inLoop = true
	body, end, perr := p.parseBody("else", "endfor")
	p.inLoop = wasInLoop
	if perr != nil {
		return nil, perr
	}

	var elseBody []Stmt
	if end == "else" {
		if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
			return nil, err
		}
		elseBody, _, perr = p.parseBody("endfor")
		if perr != nil {
			return nil, perr
		}
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}

	return &ForLoop{
		KeyName:   keyName,
		ValueName: valueName,
		Iter:      iter,
		Cond:      cond,
		Body:      body,
		ElseBody:  elseBody,
		span:      p.expandSpan(span),
	}, nil
}

func (p *Parser) parseSet(span Span, global bool) (Stmt, *Error) {
	name, _, err := p.expectIdent("variable name")
	if err != nil {
		return nil, err
	}
	if reservedNames[name] {
		return nil, p.syntaxError(fmt.Sprintf("cannot assign to reserved name `%s`", name))
	}
	if _, err := p.expect(lexer.TokenAssign, "`=`"); err != nil {
		return nil, err
	}
	expr, perr := p.parseExpr()
	if perr != nil {
		return nil, perr
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}
	return &Set{Name: name, Expr: expr, Global: global, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseBlock(span Span) (Stmt, *Error) {
	name, _, err := p.expectIdent("block name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}

	body, _, perr := p.parseBody("endblock")
	if perr != nil {
		return nil, perr
	}
	// An optional trailing name must match the opening one.
	if p.matches(lexer.TokenIdent) {
		trailer := p.advance()
		if trailer.Value != name {
			return nil, p.syntaxError(fmt.Sprintf("mismatched block name: started `%s`, ended `%s`", name, trailer.Value))
		}
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}
	return &Block{Name: name, Body: body, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseExtends(span Span) (Stmt, *Error) {
	if p.sawExtends {
		return nil, p.syntaxError("tried to extend twice")
	}
	if p.sawContent || p.nesting > 0 {
		return nil, p.syntaxError("`extends` must be the first tag of the template")
	}
	nameTok, err := p.expect(lexer.TokenString, "parent template name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}
	p.sawExtends = true
	return &Extends{Name: nameTok.Value, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseInclude(span Span) (Stmt, *Error) {
	nameTok, err := p.expect(lexer.TokenString, "template name")
	if err != nil {
		return nil, err
	}
	ignoreMissing := false
	if p.skipKeyword("ignore") {
		if err := p.expectKeyword("missing"); err != nil {
			return nil, err
		}
		ignoreMissing = true
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}
	return &Include{Name: nameTok.Value, IgnoreMissing: ignoreMissing, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseImport(span Span) (Stmt, *Error) {
	nameTok, err := p.expect(lexer.TokenString, "template name")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("as"); err != nil {
		return nil, err
	}
	ns, _, err2 := p.expectIdent("namespace")
	if err2 != nil {
		return nil, err2
	}
	if ns == "self" {
		return nil, p.syntaxError("`self` is a reserved import namespace")
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}
	return &Import{TemplateName: nameTok.Value, Namespace: ns, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseMacro(span Span) (Stmt, *Error) {
	if p.nesting > 0 || p.inMacro {
		return nil, p.syntaxError("macro definitions are only allowed at the top level of a template")
	}
	name, _, err := p.expectIdent("macro name")
	if err != nil {
		return nil, err
	}
	if _, perr := p.expect(lexer.TokenParenOpen, "`(`"); perr != nil {
		return nil, perr
	}

	var args []MacroArg
	for !p.matches(lexer.TokenParenClose) {
		if len(args) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
		}
		argName, _, err := p.expectIdent("parameter name")
		if err != nil {
			return nil, err
		}
		if reservedNames[argName] {
			return nil, p.syntaxError(fmt.Sprintf("cannot use reserved name `%s` as a macro parameter", argName))
		}
		arg := MacroArg{Name: argName}
		if p.skip(lexer.TokenAssign) {
			def, perr := p.parseConstLiteral()
			if perr != nil {
				return nil, perr
			}
			arg.Default = def
		}
		args = append(args, arg)
	}
	p.advance() // consume `)`
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}

	p.inMacro = true
	body, _, perr := p.parseBody("endmacro")
	p.inMacro = false
	if perr != nil {
		return nil, perr
	}
	// An optional trailing name must match.
	if p.matches(lexer.TokenIdent) {
		trailer := p.advance()
		if trailer.Value != name {
			return nil, p.syntaxError(fmt.Sprintf("mismatched macro name: started `%s`, ended `%s`", name, trailer.Value))
		}
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}
	return &Macro{Name: name, Args: args, Body: body, span: p.expandSpan(span)}, nil
}

// parseConstLiteral parses a literal usable as a macro parameter default.
func (p *Parser) parseConstLiteral() (Expr, *Error) {
	tok := p.advance()
	if tok == nil {
		return nil, p.unexpectedEOF("literal")
	}
	switch tok.Type {
	case lexer.TokenString:
		return &Const{Value: tok.Value, span: tok.Span}, nil
	case lexer.TokenInteger:
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, p.syntaxError(fmt.Sprintf("integer literal `%s` out of range", tok.Value))
		}
		return &Const{Value: n, span: tok.Span}, nil
	case lexer.TokenFloat:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.syntaxError(fmt.Sprintf("invalid float literal `%s`", tok.Value))
		}
		return &Const{Value: f, span: tok.Span}, nil
	case lexer.TokenIdent:
		switch tok.Value {
		case "true", "True":
			return &Const{Value: true, span: tok.Span}, nil
		case "false", "False":
			return &Const{Value: false, span: tok.Span}, nil
		}
	}
	return nil, p.syntaxError("macro parameter defaults must be literals")
}

func (p *Parser) parseFilterSection(span Span) (Stmt, *Error) {
	name, nameSpan, err := p.expectIdent("filter name")
	if err != nil {
		return nil, err
	}
	filter := &Filter{Name: name, span: nameSpan}
	if p.skip(lexer.TokenParenOpen) {
		kwargs, perr := p.parseKwargs()
		if perr != nil {
			return nil, perr
		}
		filter.Kwargs = kwargs
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}

	body, _, perr := p.parseBody("endfilter")
	if perr != nil {
		return nil, perr
	}
	if _, err := p.expect(lexer.TokenBlockEnd, "end of block"); err != nil {
		return nil, err
	}
	return &FilterSection{Filter: filter, Body: body, span: p.expandSpan(span)}, nil
}

// --- Expression parsing ---

func (p *Parser) parseExpr() (Expr, *Error) {
	p.depth++
	if p.depth > maxRecursion {
		return nil, p.syntaxError("template exceeds maximum nesting depth")
	}
	defer func() { p.depth-- }()
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.skipKeyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: BinOpScOr, Left: left, Right: right, span: p.expandSpan(span)}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.skipKeyword("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: BinOpScAnd, Left: left, Right: right, span: p.expandSpan(span)}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, *Error) {
	// `not in` belongs to the comparison level, not here.
	if p.matchesKeyword("not") {
		next := p.peek(1)
		if next == nil || next.Type != lexer.TokenIdent || next.Value != "in" {
			span := p.currentSpan()
			p.advance()
			p.depth++
			if p.depth > maxRecursion {
				return nil, p.syntaxError("template exceeds maximum nesting depth")
			}
			expr, err := p.parseNot()
			p.depth--
			if err != nil {
				return nil, err
			}
			return &UnaryOp{Op: UnaryNot, Expr: expr, span: p.expandSpan(span)}, nil
		}
	}
	return p.parseCompare()
}

func (p *Parser) parseCompare() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseFilterExpr()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOpKind
		negate := false
		tok := p.current()
		if tok == nil {
			return left, nil
		}
		switch {
		case tok.Type == lexer.TokenEq:
			op = BinOpEq
		case tok.Type == lexer.TokenNe:
			op = BinOpNe
		case tok.Type == lexer.TokenLt:
			op = BinOpLt
		case tok.Type == lexer.TokenLe:
			op = BinOpLte
		case tok.Type == lexer.TokenGt:
			op = BinOpGt
		case tok.Type == lexer.TokenGe:
			op = BinOpGte
		case tok.Type == lexer.TokenIdent && tok.Value == "in":
			op = BinOpIn
		case tok.Type == lexer.TokenIdent && tok.Value == "not":
			next := p.peek(1)
			if next == nil || next.Type != lexer.TokenIdent || next.Value != "in" {
				return left, nil
			}
			p.advance()
			op = BinOpIn
			negate = true
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseFilterExpr()
		if err != nil {
			return nil, err
		}
		expr := Expr(&BinOp{Op: op, Left: left, Right: right, span: p.expandSpan(span)})
		if negate {
			expr = &UnaryOp{Op: UnaryNot, Expr: expr, span: p.expandSpan(span)}
		}
		left = expr
	}
}

// parseFilterExpr parses a math expression with trailing filters and an
// optional `is` test. Filters apply to the whole preceding expression, so
// `1 + 2 | double` doubles three.
func (p *Parser) parseFilterExpr() (Expr, *Error) {
	span := p.currentSpan()
	expr, err := p.parseMath1()
	if err != nil {
		return nil, err
	}
	for p.matches(lexer.TokenPipe) {
		p.advance()
		name, _, err := p.expectIdent("filter name")
		if err != nil {
			return nil, err
		}
		filter := &Filter{Name: name, Expr: expr, span: p.expandSpan(span)}
		if p.skip(lexer.TokenParenOpen) {
			kwargs, perr := p.parseKwargs()
			if perr != nil {
				return nil, perr
			}
			filter.Kwargs = kwargs
		}
		expr = filter
	}
	if p.skipKeyword("is") {
		negated := p.skipKeyword("not")
		name, _, err := p.expectIdent("test name")
		if err != nil {
			return nil, err
		}
		test := &Test{Name: name, Expr: expr, Negated: negated, span: p.expandSpan(span)}
		if p.skip(lexer.TokenParenOpen) {
			for !p.matches(lexer.TokenParenClose) {
				if len(test.Args) > 0 {
					if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
						return nil, err
					}
				}
				arg, perr := p.parseExpr()
				if perr != nil {
					return nil, perr
				}
				test.Args = append(test.Args, arg)
			}
			p.advance() // consume `)`
		}
		expr = test
	}
	return expr, nil
}

func (p *Parser) parseMath1() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOpKind
		switch {
		case p.matches(lexer.TokenPlus):
			op = BinOpAdd
		case p.matches(lexer.TokenMinus):
			op = BinOpSub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right, span: p.expandSpan(span)}
	}
}

func (p *Parser) parseConcat() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseMath2()
	if err != nil {
		return nil, err
	}
	for p.matches(lexer.TokenTilde) {
		p.advance()
		right, err := p.parseMath2()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: BinOpConcat, Left: left, Right: right, span: p.expandSpan(span)}
	}
	return left, nil
}

func (p *Parser) parseMath2() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOpKind
		switch {
		case p.matches(lexer.TokenMul):
			op = BinOpMul
		case p.matches(lexer.TokenDiv):
			op = BinOpDiv
		case p.matches(lexer.TokenMod):
			op = BinOpRem
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right, span: p.expandSpan(span)}
	}
}

func (p *Parser) parseUnary() (Expr, *Error) {
	if p.matches(lexer.TokenMinus) {
		span := p.currentSpan()
		p.advance()
		p.depth++
		if p.depth > maxRecursion {
			return nil, p.syntaxError("template exceeds maximum nesting depth")
		}
		expr, err := p.parseUnary()
		p.depth--
		if err != nil {
			return nil, err
		}
		// Fold negation into numeric literals.
		if c, ok := expr.(*Const); ok {
			switch v := c.Value.(type) {
			case int64:
				return &Const{Value: -v, span: p.expandSpan(span)}, nil
			case float64:
				return &Const{Value: -v, span: p.expandSpan(span)}, nil
			}
		}
		return &UnaryOp{Op: UnaryNeg, Expr: expr, span: p.expandSpan(span)}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, *Error) {
	p.depth++
	if p.depth > maxRecursion {
		return nil, p.syntaxError("template exceeds maximum nesting depth")
	}
	defer func() { p.depth-- }()

	tok := p.advance()
	if tok == nil {
		return nil, p.unexpectedEOF("expression")
	}
	span := tok.Span

	switch tok.Type {
	case lexer.TokenString:
		return &Const{Value: tok.Value, span: span}, nil

	case lexer.TokenInteger:
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, p.syntaxError(fmt.Sprintf("integer literal `%s` out of range", tok.Value))
		}
		return &Const{Value: n, span: span}, nil

	case lexer.TokenFloat:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.syntaxError(fmt.Sprintf("invalid float literal `%s`", tok.Value))
		}
		return &Const{Value: f, span: span}, nil

	case lexer.TokenParenOpen:
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenParenClose, "`)`"); err != nil {
			return nil, err
		}
		return expr, nil

	case lexer.TokenBracketOpen:
		list := &List{span: span}
		for !p.matches(lexer.TokenBracketClose) {
			if len(list.Items) > 0 {
				if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
					return nil, err
				}
			}
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, item)
		}
		p.advance() // consume `]`
		list.span = p.expandSpan(span)
		return list, nil

	case lexer.TokenIdent:
		switch tok.Value {
		case "true", "True":
			return &Const{Value: true, span: span}, nil
		case "false", "False":
			return &Const{Value: false, span: span}, nil
		}

		// Namespaced macro call: ns::name(...)
		if p.matches(lexer.TokenColonColon) {
			p.advance()
			name, _, err := p.expectIdent("macro name")
			if err != nil {
				return nil, err
			}
			if _, err2 := p.expect(lexer.TokenParenOpen, "`(`"); err2 != nil {
				return nil, err2
			}
			args, kwargs, perr := p.parseCallArgs()
			if perr != nil {
				return nil, perr
			}
			return &MacroCall{
				Namespace: tok.Value,
				Name:      name,
				Args:      args,
				Kwargs:    kwargs,
				span:      p.expandSpan(span),
			}, nil
		}

		// Function call: name(kwargs)
		if p.matches(lexer.TokenParenOpen) {
			p.advance()
			kwargs, err := p.parseKwargs()
			if err != nil {
				return nil, err
			}
			return &FunctionCall{Name: tok.Value, Kwargs: kwargs, span: p.expandSpan(span)}, nil
		}

		return p.parseIdentPath(tok.Value, span)
	}

	return nil, p.unexpected(tokenDescription(tok), "expression")
}

// parseIdentPath parses the dotted/bracketed access path after a root
// identifier.
func (p *Parser) parseIdentPath(root string, span Span) (Expr, *Error) {
	ident := &Ident{Root: root}
	for {
		switch {
		case p.matches(lexer.TokenDot):
			p.advance()
			tok := p.advance()
			if tok == nil {
				return nil, p.unexpectedEOF("attribute name")
			}
			if tok.Type != lexer.TokenIdent && tok.Type != lexer.TokenInteger {
				return nil, p.unexpected(tokenDescription(tok), "attribute name")
			}
			ident.Segments = append(ident.Segments, Segment{Literal: tok.Value})

		case p.matches(lexer.TokenBracketOpen):
			p.advance()
			tok := p.current()
			if tok == nil {
				return nil, p.unexpectedEOF("subscript")
			}
			switch tok.Type {
			case lexer.TokenString:
				p.advance()
				ident.Segments = append(ident.Segments, Segment{Literal: tok.Value})
			case lexer.TokenInteger:
				p.advance()
				ident.Segments = append(ident.Segments, Segment{Literal: tok.Value})
			default:
				inner, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				ident.Segments = append(ident.Segments, Segment{Dynamic: inner})
			}
			if _, err := p.expect(lexer.TokenBracketClose, "`]`"); err != nil {
				return nil, err
			}

		default:
			ident.span = p.expandSpan(span)
			return ident, nil
		}
	}
}

// parseKwargs parses `name=expr, ...` up to and including the closing paren.
func (p *Parser) parseKwargs() ([]Kwarg, *Error) {
	var kwargs []Kwarg
	for !p.matches(lexer.TokenParenClose) {
		if len(kwargs) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
		}
		name, _, err := p.expectIdent("argument name")
		if err != nil {
			return nil, err
		}
		if _, err2 := p.expect(lexer.TokenAssign, "`=`"); err2 != nil {
			return nil, err2
		}
		val, perr := p.parseExpr()
		if perr != nil {
			return nil, perr
		}
		kwargs = append(kwargs, Kwarg{Name: name, Value: val})
	}
	p.advance() // consume `)`
	return kwargs, nil
}

// parseCallArgs parses a macro argument list: positional arguments first,
// then keyword arguments, up to and including the closing paren.
func (p *Parser) parseCallArgs() ([]Expr, []Kwarg, *Error) {
	var args []Expr
	var kwargs []Kwarg
	for !p.matches(lexer.TokenParenClose) {
		if len(args)+len(kwargs) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, nil, err
			}
		}
		// An ident directly followed by `=` is a keyword argument.
		if tok := p.current(); tok != nil && tok.Type == lexer.TokenIdent {
			if next := p.peek(1); next != nil && next.Type == lexer.TokenAssign {
				p.advance()
				p.advance()
				val, err := p.parseExpr()
				if err != nil {
					return nil, nil, err
				}
				kwargs = append(kwargs, Kwarg{Name: tok.Value, Value: val})
				continue
			}
		}
		if len(kwargs) > 0 {
			return nil, nil, p.syntaxError("positional arguments must come before keyword arguments")
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, nil, err
		}
		args = append(args, arg)
	}
	p.advance() // consume `)`
	return args, kwargs, nil
}
