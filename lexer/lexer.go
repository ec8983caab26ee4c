package lexer

import (
	"fmt"
	"strings"
)

// Tag delimiters are fixed; there is no syntax configuration.
const (
	varStart     = "{{"
	varEnd       = "}}"
	blockStart   = "{%"
	blockEnd     = "%}"
	commentStart = "{#"
	commentEnd   = "#}"
)

// Lexer tokenizes template source code.
type Lexer struct {
	source    string
	pos       int    // current position in source
	start     int    // start position of current token
	line      uint16 // current line (1-indexed)
	col       uint16 // current column (0-indexed at line start)
	startLine uint16
	startCol  uint16

	stack                 []lexerState
	trimLeadingWhitespace bool
	pendingStartMarker    *pendingMarker
	parenBalance          int
}

type lexerState int

const (
	stateTemplate lexerState = iota
	stateVariable
	stateBlock
)

type startMarker int

const (
	markerVariable startMarker = iota
	markerBlock
	markerComment
)

type pendingMarker struct {
	marker startMarker
	length int
}

// New creates a new Lexer for the given input.
func New(input string) *Lexer {
	return &Lexer{
		source: input,
		line:   1,
		stack:  []lexerState{stateTemplate},
	}
}

// Tokenize returns all tokens from the input.
func Tokenize(input string) ([]Token, error) {
	return New(input).All()
}

// All collects all tokens into a slice.
func (l *Lexer) All() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok == nil {
			break
		}
		tokens = append(tokens, *tok)
	}
	return tokens, nil
}

// Next returns the next token, or nil at end of input.
func (l *Lexer) Next() (*Token, error) {
	for {
		if l.atEnd() {
			if l.currentState() != stateTemplate {
				return nil, l.syntaxError("unexpected end of template inside tag")
			}
			return nil, nil
		}

		var tok *Token
		var cont bool
		var err error
		switch l.currentState() {
		case stateTemplate:
			tok, cont, err = l.tokenizeRoot()
		case stateVariable:
			tok, cont, err = l.tokenizeTag(stateVariable)
		case stateBlock:
			tok, cont, err = l.tokenizeTag(stateBlock)
		}

		if err != nil {
			return nil, err
		}
		if cont {
			continue
		}
		if tok != nil {
			return tok, nil
		}
	}
}

func (l *Lexer) currentState() lexerState {
	return l.stack[len(l.stack)-1]
}

func (l *Lexer) pushState(s lexerState) {
	l.stack = append(l.stack, s)
}

func (l *Lexer) popState() {
	if len(l.stack) > 1 {
		l.stack = l.stack[:len(l.stack)-1]
	}
}

// tokenizeRoot handles the template data state.
func (l *Lexer) tokenizeRoot() (*Token, bool, error) {
	if l.pendingStartMarker != nil {
		pm := l.pendingStartMarker
		l.pendingStartMarker = nil
		return l.handleStartMarker(pm.marker, pm.length)
	}

	if l.trimLeadingWhitespace {
		l.trimLeadingWhitespace = false
		l.skipWhitespace()
	}

	l.markStart()

	match := l.findStartMarker()
	if match == nil {
		// No marker, the rest is template data.
		if l.pos < len(l.source) {
			text := l.advance(len(l.source) - l.pos)
			tok := l.makeToken(TokenTemplateData, text)
			return &tok, false, nil
		}
		return nil, false, nil
	}

	l.pendingStartMarker = &pendingMarker{marker: match.marker, length: match.length}

	var lead string
	var span Span
	if match.trimBefore {
		// Trim trailing whitespace before the marker.
		peeked := l.rest()[:match.offset]
		trimmed := strings.TrimRight(peeked, " \t\n\r")
		lead = l.advance(len(trimmed))
		span = l.span()
		l.advance(len(peeked) - len(trimmed))
	} else {
		lead = l.advance(match.offset)
		span = l.span()
	}

	if lead == "" {
		return nil, true, nil
	}
	tok := Token{Type: TokenTemplateData, Value: lead, Span: span}
	return &tok, false, nil
}

type markerMatch struct {
	offset     int
	marker     startMarker
	length     int // delimiter length including a trim minus
	trimBefore bool
}

func (l *Lexer) findStartMarker() *markerMatch {
	rest := l.rest()
	offset := 0
	for {
		idx := strings.IndexByte(rest[offset:], '{')
		if idx < 0 {
			return nil
		}
		idx += offset
		if idx+1 >= len(rest) {
			return nil
		}

		var marker startMarker
		switch rest[idx+1] {
		case '{':
			marker = markerVariable
		case '%':
			marker = markerBlock
		case '#':
			marker = markerComment
		default:
			offset = idx + 1
			continue
		}

		length := 2
		trim := false
		if idx+2 < len(rest) && rest[idx+2] == '-' {
			length = 3
			trim = true
		}
		return &markerMatch{offset: idx, marker: marker, length: length, trimBefore: trim}
	}
}

func (l *Lexer) handleStartMarker(marker startMarker, skip int) (*Token, bool, error) {
	switch marker {
	case markerComment:
		rest := l.rest()[skip:]
		endIdx := strings.Index(rest, commentEnd)
		if endIdx < 0 {
			l.advance(len(l.rest()))
			return nil, false, l.syntaxError("unexpected end of comment")
		}
		trimAfter := endIdx > 0 && rest[endIdx-1] == '-'
		l.advance(skip + endIdx + len(commentEnd))
		if trimAfter {
			l.trimLeadingWhitespace = true
		}
		return nil, true, nil

	case markerVariable:
		l.markStart()
		l.advance(skip)
		l.pushState(stateVariable)
		tok := l.makeToken(TokenVariableStart, varStart)
		return &tok, false, nil

	case markerBlock:
		// Raw blocks swallow their body as template data.
		if rawLen, trimInner := l.matchBasicTag(l.rest()[skip:], "raw"); rawLen > 0 {
			l.advance(skip + rawLen)
			return l.handleRawTag(trimInner)
		}
		l.markStart()
		l.advance(skip)
		l.pushState(stateBlock)
		tok := l.makeToken(TokenBlockStart, blockStart)
		return &tok, false, nil
	}
	return nil, false, nil
}

// handleRawTag consumes everything up to the matching endraw tag and emits
// it as a single template data token.
func (l *Lexer) handleRawTag(trimStart bool) (*Token, bool, error) {
	l.markStart()
	rest := l.rest()
	ptr := 0
	for {
		blockIdx := strings.Index(rest[ptr:], blockStart)
		if blockIdx < 0 {
			l.advance(len(rest))
			return nil, false, l.syntaxError("unexpected end of raw block")
		}
		blockIdx += ptr
		afterStart := blockIdx + len(blockStart)

		endrawLen, trimNext := l.matchBasicTag(rest[afterStart:], "endraw")
		if endrawLen == 0 {
			ptr = afterStart
			continue
		}

		trimEnd := afterStart < len(rest) && rest[afterStart] == '-'
		body := rest[:blockIdx]
		if trimStart {
			body = strings.TrimLeft(body, " \t\n\r")
		}
		if trimEnd {
			body = strings.TrimRight(body, " \t\n\r")
		}

		l.advance(blockIdx)
		span := l.span()
		l.advance(len(blockStart) + endrawLen)
		if trimNext {
			l.trimLeadingWhitespace = true
		}
		tok := Token{Type: TokenTemplateData, Value: body, Span: span}
		return &tok, false, nil
	}
}

// matchBasicTag checks whether s starts with a bare tag like `raw %}` or
// `- endraw -%}`. It returns the number of bytes the tag occupies and
// whether the closing delimiter requests trimming of what follows.
func (l *Lexer) matchBasicTag(s string, name string) (int, bool) {
	ptr := s
	if len(ptr) > 0 && ptr[0] == '-' {
		ptr = ptr[1:]
	}
	ptr = strings.TrimLeft(ptr, " \t\n\r")
	if !strings.HasPrefix(ptr, name) {
		return 0, false
	}
	ptr = ptr[len(name):]
	if len(ptr) > 0 && isIdentPart(ptr[0]) {
		return 0, false
	}
	ptr = strings.TrimLeft(ptr, " \t\n\r")
	trim := false
	if len(ptr) > 0 && ptr[0] == '-' {
		trim = true
		ptr = ptr[1:]
	}
	if !strings.HasPrefix(ptr, blockEnd) {
		return 0, false
	}
	ptr = ptr[len(blockEnd):]
	return len(s) - len(ptr), trim
}

// tokenizeTag handles tokens inside {% %} or {{ }}.
func (l *Lexer) tokenizeTag(state lexerState) (*Token, bool, error) {
	l.skipWhitespace()
	if l.atEnd() {
		return nil, false, nil
	}

	l.markStart()
	rest := l.rest()

	// Closing delimiter, with optional whitespace control. A minus inside
	// brackets or parens is always an operator.
	if l.parenBalance == 0 {
		end := varEnd
		endType := TokenVariableEnd
		if state == stateBlock {
			end = blockEnd
			endType = TokenBlockEnd
		}
		if rest[0] == '-' && strings.HasPrefix(rest[1:], end) {
			l.popState()
			l.advance(1 + len(end))
			tok := l.makeToken(endType, "-"+end)
			l.trimLeadingWhitespace = true
			return &tok, false, nil
		}
		if strings.HasPrefix(rest, end) {
			l.popState()
			l.advance(len(end))
			tok := l.makeToken(endType, end)
			return &tok, false, nil
		}
	}

	// Two-character operators
	if len(rest) >= 2 {
		var typ TokenType = -1
		switch rest[:2] {
		case "==":
			typ = TokenEq
		case "!=":
			typ = TokenNe
		case ">=":
			typ = TokenGe
		case "<=":
			typ = TokenLe
		case "::":
			typ = TokenColonColon
		}
		if typ != -1 {
			l.advance(2)
			tok := l.makeToken(typ, rest[:2])
			return &tok, false, nil
		}
	}

	// Single character operators
	ch := rest[0]
	switch ch {
	case '+', '-', '*', '/', '%', '~', '<', '>', '=', '.', ',', '|', '(', ')', '[', ']':
		switch ch {
		case '(', '[':
			l.parenBalance++
		case ')', ']':
			l.parenBalance--
		}
		l.advance(1)
		tok := l.makeToken(singleCharTokens[ch], string(ch))
		return &tok, false, nil
	case '"', '\'', '`':
		return l.lexString(ch)
	}

	if isDigit(ch) {
		return l.lexNumber()
	}
	if isIdentStart(ch) {
		return l.lexIdent()
	}
	return nil, false, l.syntaxError(fmt.Sprintf("unexpected character %q", ch))
}

var singleCharTokens = map[byte]TokenType{
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenMul,
	'/': TokenDiv,
	'%': TokenMod,
	'~': TokenTilde,
	'<': TokenLt,
	'>': TokenGt,
	'=': TokenAssign,
	'.': TokenDot,
	',': TokenComma,
	'|': TokenPipe,
	'(': TokenParenOpen,
	')': TokenParenClose,
	'[': TokenBracketOpen,
	']': TokenBracketClose,
}

// lexString lexes a string literal. Double and single quoted strings support
// backslash escapes; backtick strings are taken verbatim.
func (l *Lexer) lexString(quote byte) (*Token, bool, error) {
	rest := l.rest()
	var sb strings.Builder
	i := 1
	for i < len(rest) {
		c := rest[i]
		if c == quote {
			l.advance(i + 1)
			tok := l.makeToken(TokenString, sb.String())
			return &tok, false, nil
		}
		if c == '\\' && quote != '`' && i+1 < len(rest) {
			next := rest[i+1]
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteByte(next)
			default:
				// Unknown escape, keep both characters.
				sb.WriteByte('\\')
				sb.WriteByte(next)
			}
			i += 2
			continue
		}
		sb.WriteByte(c)
		i++
	}
	l.advance(len(rest))
	return nil, false, l.syntaxError("unexpected end of string")
}

// lexNumber lexes an integer or float literal. A dot only belongs to the
// number when a digit follows, so `a.1.b` style paths still tokenize as
// ident, dot, int, dot, ident.
func (l *Lexer) lexNumber() (*Token, bool, error) {
	rest := l.rest()
	i := 0
	for i < len(rest) && isDigit(rest[i]) {
		i++
	}
	isFloat := false
	if i < len(rest) && rest[i] == '.' && i+1 < len(rest) && isDigit(rest[i+1]) {
		isFloat = true
		i++
		for i < len(rest) && isDigit(rest[i]) {
			i++
		}
	}
	if i < len(rest) && (rest[i] == 'e' || rest[i] == 'E') {
		j := i + 1
		if j < len(rest) && (rest[j] == '+' || rest[j] == '-') {
			j++
		}
		if j < len(rest) && isDigit(rest[j]) {
			isFloat = true
			i = j
			for i < len(rest) && isDigit(rest[i]) {
				i++
			}
		}
	}

	value := rest[:i]
	l.advance(i)
	typ := TokenInteger
	if isFloat {
		typ = TokenFloat
	}
	tok := l.makeToken(typ, value)
	return &tok, false, nil
}

// lexIdent lexes an identifier.
func (l *Lexer) lexIdent() (*Token, bool, error) {
	rest := l.rest()
	i := 0
	for i < len(rest) && isIdentPart(rest[i]) {
		i++
	}
	value := rest[:i]
	l.advance(i)
	tok := l.makeToken(TokenIdent, value)
	return &tok, false, nil
}

// Helper methods

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.source)
}

func (l *Lexer) rest() string {
	if l.pos >= len(l.source) {
		return ""
	}
	return l.source[l.pos:]
}

func (l *Lexer) advance(n int) string {
	if n <= 0 {
		return ""
	}
	end := l.pos + n
	if end > len(l.source) {
		end = len(l.source)
	}
	skipped := l.source[l.pos:end]
	for _, c := range skipped {
		if c == '\n' {
			l.line++
			l.col = 0
		} else if l.col < 65535 {
			l.col++
		}
	}
	l.pos = end
	return skipped
}

func (l *Lexer) markStart() {
	l.start = l.pos
	l.startLine = l.line
	l.startCol = l.col
}

func (l *Lexer) span() Span {
	return Span{
		StartLine:   l.startLine,
		StartCol:    l.startCol,
		StartOffset: uint32(l.start),
		EndLine:     l.line,
		EndCol:      l.col,
		EndOffset:   uint32(l.pos),
	}
}

func (l *Lexer) makeToken(typ TokenType, value string) Token {
	return Token{Type: typ, Value: value, Span: l.span()}
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() {
		switch l.rest()[0] {
		case ' ', '\t', '\n', '\r':
			l.advance(1)
		default:
			return
		}
	}
}

// Error is a lexical error with its source position.
type Error struct {
	Msg  string
	Line uint16
	Col  uint16
}

func (e *Error) Error() string {
	return fmt.Sprintf("syntax error at line %d, col %d: %s", e.Line, e.Col, e.Msg)
}

func (l *Lexer) syntaxError(msg string) error {
	return &Error{Msg: msg, Line: l.line, Col: l.col}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
