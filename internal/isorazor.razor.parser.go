package internal

import (
	"strings"

	"go.uber.org/zap"
)

// RazorParser turns template text into a Program. It understands a Razor
// subset: @expr, @(expr), @{ statements }, @if/else, @foreach, @while,
// @section, @* comments *@, @@ escapes and attributes with code values.
//
// Block bodies are markup; their end is found by brace matching, so literal
// braces inside a block body must be balanced.
type RazorParser struct {
	src    string
	pos    int
	line   int
	column int
	// codeEnd is the offset just past the last code transition, so an '@'
	// directly after it starts new code rather than an email address.
	codeEnd int
	logger  *zap.Logger
}

// parserState is a saved position for backtracking
type parserState struct {
	pos, line, column int
}

// NewRazorParser creates a parser for source
func NewRazorParser(source string, logger *zap.Logger) *RazorParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RazorParser{
		src:    source,
		line:   1,
		column: 1,
		logger: logger,
	}
}

// Parse parses the whole template
func (p *RazorParser) Parse() (*Program, error) {
	p.logger.Debug(LogMsgParseStart, zap.Int(LogFieldSource, len(p.src)))

	nodes, err := p.parseMarkup(false)
	if err != nil {
		return nil, err
	}

	program := &Program{Nodes: nodes}
	p.logger.Debug(LogMsgParseEnd, zap.Int(LogFieldNodes, program.CountNodes()))
	return program, nil
}

// textBuffer accumulates literal text and remembers where it started
type textBuffer struct {
	sb  strings.Builder
	pos Position
}

func (t *textBuffer) add(s string, pos Position) {
	if t.sb.Len() == 0 {
		t.pos = pos
	}
	t.sb.WriteString(s)
}

// flush moves pending text into nodes
func (t *textBuffer) flush(nodes []*Node) []*Node {
	if t.sb.Len() == 0 {
		return nodes
	}
	nodes = append(nodes, &Node{Kind: NodeKindText, Text: t.sb.String(), Pos: t.pos})
	t.sb.Reset()
	return nodes
}

// merge appends produced nodes, folding text into the pending buffer
func (t *textBuffer) merge(nodes, produced []*Node) []*Node {
	for _, n := range produced {
		if n.Kind == NodeKindText {
			t.add(n.Text, n.Pos)
			continue
		}
		nodes = append(t.flush(nodes), n)
	}
	return nodes
}

// trimLineIndent drops trailing spaces of the pending text when they are
// the only thing on the current line
func (t *textBuffer) trimLineIndent() {
	s := t.sb.String()
	cut := len(s)
	for cut > 0 && isHorizontalSpace(s[cut-1]) {
		cut--
	}
	if cut == len(s) || (cut > 0 && s[cut-1] != CharNewline) {
		return
	}
	t.sb.Reset()
	t.sb.WriteString(s[:cut])
}

// parseMarkup parses literal text and transitions. Inside a block it stops
// before the '}' that closes the block.
func (p *RazorParser) parseMarkup(inBlock bool) ([]*Node, error) {
	var nodes []*Node
	var text textBuffer
	depth := 0

	for !p.isAtEnd() {
		ch := p.peek()

		switch {
		case inBlock && ch == CharCloseBrace:
			if depth == 0 {
				return text.flush(nodes), nil
			}
			depth--
		case inBlock && ch == CharOpenBrace:
			depth++
		case ch == CharOpenAngle && p.pos+1 < len(p.src) && isIdentStart(p.src[p.pos+1]):
			tagNodes, ok := p.scanDynamicTag()
			if ok {
				nodes = text.merge(nodes, tagNodes)
				continue
			}
		case ch == CharAt:
			handled, block, transNodes, err := p.parseTransition()
			if err != nil {
				return nil, err
			}
			if handled {
				if block {
					text.trimLineIndent()
				}
				nodes = text.merge(nodes, transNodes)
				p.codeEnd = p.pos
				if block {
					p.skipLineEnd()
				}
				continue
			}
		}

		pos := p.currentPosition()
		text.add(string(p.advance()), pos)
	}

	if inBlock {
		return nil, p.errorAt(ErrMsgUnterminatedBlock, p.currentPosition())
	}
	return text.flush(nodes), nil
}

// parseTransition handles the construct starting at '@'. handled is false
// when the '@' is literal text. block reports statement-like constructs
// whose surrounding line whitespace is not output.
func (p *RazorParser) parseTransition() (handled, block bool, nodes []*Node, err error) {
	start := p.currentPosition()

	switch {
	case p.matchStr(StrEscapedAt):
		p.advanceN(len(StrEscapedAt))
		return true, false, []*Node{{Kind: NodeKindText, Text: string(CharAt), Pos: start}}, nil

	case p.matchStr(StrCommentOpen):
		end := strings.Index(p.src[p.pos+len(StrCommentOpen):], StrCommentClose)
		if end < 0 {
			return false, false, nil, p.errorAt(ErrMsgUnterminatedComment, start)
		}
		p.advanceN(len(StrCommentOpen) + end + len(StrCommentClose))
		return true, false, nil, nil
	}

	// an '@' inside a word of literal text, such as an email address, is
	// literal
	if p.pos > 0 && p.pos != p.codeEnd && isAlnum(p.src[p.pos-1]) {
		return false, false, nil, nil
	}

	next := p.peekAt(1)
	switch {
	case next == CharOpenBrace:
		p.advance()
		nodes, err := p.parseCodeBlock()
		return true, true, nodes, err

	case next == CharOpenParen:
		p.advance()
		exprPos := p.currentPosition()
		inner, err := p.readBalanced(CharOpenParen, CharCloseParen, ErrMsgUnterminatedParen)
		if err != nil {
			return false, false, nil, err
		}
		expr := strings.TrimSpace(inner)
		if expr == "" {
			return false, false, nil, p.errorAt(ErrMsgEmptyExpression, exprPos)
		}
		return true, false, []*Node{{Kind: NodeKindExpr, Expr: expr, Pos: start}}, nil

	case isIdentStart(next):
		word := p.src[p.pos+1 : scanIdent(p.src, p.pos+1)]
		switch word {
		case KeywordIf:
			p.advanceN(1 + len(word))
			node, err := p.parseIf(start)
			return true, true, []*Node{node}, err
		case KeywordForeach:
			p.advanceN(1 + len(word))
			node, err := p.parseForeach(start)
			return true, true, []*Node{node}, err
		case KeywordWhile:
			p.advanceN(1 + len(word))
			node, err := p.parseWhile(start)
			return true, true, []*Node{node}, err
		case KeywordSection:
			p.advanceN(1 + len(word))
			node, err := p.parseSection(start)
			return true, true, []*Node{node}, err
		}

		p.advance()
		end, ok := scanImplicit(p.src, p.pos)
		if !ok {
			return false, false, nil, p.errorAt(ErrMsgUnterminatedParen, start)
		}
		expr := p.src[p.pos:end]
		p.advanceN(end - p.pos)
		return true, false, []*Node{{Kind: NodeKindExpr, Expr: expr, Pos: start}}, nil
	}

	return false, false, nil, nil
}

// parseCodeBlock parses @{ ... } into assignment and evaluation nodes
func (p *RazorParser) parseCodeBlock() ([]*Node, error) {
	contentStart := p.pos + 1
	inner, err := p.readBalanced(CharOpenBrace, CharCloseBrace, ErrMsgUnterminatedBlock)
	if err != nil {
		return nil, err
	}

	var nodes []*Node
	parts, offsets := splitTopLevel(inner, CharSemicolon)
	for i, part := range parts {
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		lead := len(part) - len(strings.TrimLeft(part, " \t\r\n"))
		pos := p.positionAt(contentStart + offsets[i] + lead)

		node, err := p.parseStatement(stmt, pos)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// parseStatement parses `var x = e`, `Target = e` or a bare expression
func (p *RazorParser) parseStatement(stmt string, pos Position) (*Node, error) {
	declare := false
	if rest, ok := strings.CutPrefix(stmt, KeywordVar+" "); ok {
		declare = true
		stmt = strings.TrimSpace(rest)
	}

	eq := assignmentIndex(stmt)
	if eq < 0 {
		if declare {
			return nil, p.errorAt(ErrMsgInvalidStatement, pos)
		}
		return &Node{Kind: NodeKindEval, Expr: stmt, Pos: pos}, nil
	}

	target := strings.TrimSpace(stmt[:eq])
	value := strings.TrimSpace(stmt[eq+1:])
	if !isMemberPath(target) || value == "" || (declare && strings.Contains(target, ".")) {
		return nil, p.errorAt(ErrMsgInvalidStatement, pos)
	}
	return &Node{Kind: NodeKindAssign, Var: target, Expr: value, Declare: declare, Pos: pos}, nil
}

// parseCondition reads `( expr )` after a keyword
func (p *RazorParser) parseCondition() (string, error) {
	p.skipWhitespace()
	pos := p.currentPosition()
	if p.peek() != CharOpenParen {
		return "", p.errorAt(ErrMsgExpectedCondition, pos)
	}
	inner, err := p.readBalanced(CharOpenParen, CharCloseParen, ErrMsgUnterminatedParen)
	if err != nil {
		return "", err
	}
	cond := strings.TrimSpace(inner)
	if cond == "" {
		return "", p.errorAt(ErrMsgExpectedCondition, pos)
	}
	return cond, nil
}

// parseBody reads `{ markup }`
func (p *RazorParser) parseBody() ([]*Node, error) {
	p.skipWhitespace()
	if p.peek() != CharOpenBrace {
		return nil, p.errorAt(ErrMsgExpectedBlock, p.currentPosition())
	}
	p.advance()

	body, err := p.parseMarkup(true)
	if err != nil {
		return nil, err
	}
	p.advance() // closing brace
	return trimBlockBody(body), nil
}

func (p *RazorParser) parseIf(start Position) (*Node, error) {
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	node := &Node{Kind: NodeKindIf, Expr: cond, Children: body, Pos: start}

	saved := p.save()
	p.skipWhitespace()
	if !p.matchWord(KeywordElse) {
		p.restore(saved)
		return node, nil
	}
	elsePos := p.currentPosition()
	p.advanceN(len(KeywordElse))
	p.skipWhitespace()

	switch {
	case p.matchWord(KeywordIf):
		p.advanceN(len(KeywordIf))
		elseIf, err := p.parseIf(elsePos)
		if err != nil {
			return nil, err
		}
		node.Else = []*Node{elseIf}
	case p.peek() == CharOpenBrace:
		elseBody, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		node.Else = elseBody
	default:
		return nil, p.errorAt(ErrMsgElseWithoutBlock, elsePos)
	}
	return node, nil
}

func (p *RazorParser) parseForeach(start Position) (*Node, error) {
	header, err := p.parseCondition()
	if err != nil {
		return nil, err
	}

	rest, ok := strings.CutPrefix(header, KeywordVar+" ")
	if !ok {
		return nil, p.errorAt(ErrMsgInvalidForeach, start)
	}
	name, source, ok := strings.Cut(strings.TrimSpace(rest), " "+KeywordIn+" ")
	name, source = strings.TrimSpace(name), strings.TrimSpace(source)
	if !ok || !isMemberPath(name) || strings.Contains(name, ".") || source == "" {
		return nil, p.errorAt(ErrMsgInvalidForeach, start)
	}

	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return &Node{Kind: NodeKindForeach, Var: name, Expr: source, Children: body, Pos: start}, nil
}

// parseWhile accepts a block body or an empty statement: @while (c);
func (p *RazorParser) parseWhile(start Position) (*Node, error) {
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}

	node := &Node{Kind: NodeKindWhile, Expr: cond, Pos: start}
	p.skipHorizontalSpace()
	if p.peek() == CharSemicolon {
		p.advance()
		return node, nil
	}

	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	node.Children = body
	return node, nil
}

func (p *RazorParser) parseSection(start Position) (*Node, error) {
	p.skipWhitespace()
	end := scanIdent(p.src, p.pos)
	if end == p.pos {
		return nil, p.errorAt(ErrMsgExpectedSectionName, p.currentPosition())
	}
	name := p.src[p.pos:end]
	p.advanceN(end - p.pos)

	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return &Node{Kind: NodeKindSection, Text: name, Children: body, Pos: start}, nil
}

// trimBlockBody drops the line break after '{' and the indentation before
// '}' so block markup renders line by line
func trimBlockBody(body []*Node) []*Node {
	if len(body) == 0 {
		return body
	}
	if first := body[0]; first.Kind == NodeKindText {
		if i := strings.IndexByte(first.Text, CharNewline); i >= 0 && strings.TrimSpace(first.Text[:i]) == "" {
			first.Text = first.Text[i+1:]
		}
	}
	if last := body[len(body)-1]; last.Kind == NodeKindText {
		i := strings.LastIndexByte(last.Text, CharNewline)
		if strings.TrimSpace(last.Text[i+1:]) == "" {
			last.Text = last.Text[:i+1]
		}
	}

	out := body[:0]
	for _, n := range body {
		if n.Kind == NodeKindText && n.Text == "" {
			continue
		}
		out = append(out, n)
	}
	return out
}

// readBalanced consumes a bracketed region and returns its inner text
func (p *RazorParser) readBalanced(open, close byte, msg string) (string, error) {
	start := p.currentPosition()
	end, ok := scanBalanced(p.src, p.pos, open, close)
	if !ok {
		return "", p.errorAt(msg, start)
	}
	inner := p.src[p.pos+1 : end-1]
	p.advanceN(end - p.pos)
	return inner, nil
}

// skipLineEnd consumes trailing spaces and one line break after a block
func (p *RazorParser) skipLineEnd() {
	i := p.pos
	for i < len(p.src) && isHorizontalSpace(p.src[i]) {
		i++
	}
	if i < len(p.src) && p.src[i] == CharNewline {
		p.advanceN(i + 1 - p.pos)
	}
}

func (p *RazorParser) isAtEnd() bool {
	return p.pos >= len(p.src)
}

func (p *RazorParser) peek() byte {
	return p.peekAt(0)
}

func (p *RazorParser) peekAt(offset int) byte {
	if p.pos+offset >= len(p.src) {
		return 0
	}
	return p.src[p.pos+offset]
}

func (p *RazorParser) advance() byte {
	ch := p.src[p.pos]
	p.pos++
	if ch == CharNewline {
		p.line++
		p.column = 1
	} else {
		p.column++
	}
	return ch
}

func (p *RazorParser) advanceN(n int) {
	for i := 0; i < n && !p.isAtEnd(); i++ {
		p.advance()
	}
}

func (p *RazorParser) matchStr(s string) bool {
	return strings.HasPrefix(p.src[p.pos:], s)
}

// matchWord matches a keyword not followed by an identifier character
func (p *RazorParser) matchWord(word string) bool {
	if !p.matchStr(word) {
		return false
	}
	after := p.pos + len(word)
	return after >= len(p.src) || !isIdentChar(p.src[after])
}

func (p *RazorParser) skipWhitespace() {
	for !p.isAtEnd() && isSpace(p.peek()) {
		p.advance()
	}
}

func (p *RazorParser) skipHorizontalSpace() {
	for !p.isAtEnd() && isHorizontalSpace(p.peek()) {
		p.advance()
	}
}

func (p *RazorParser) save() parserState {
	return parserState{pos: p.pos, line: p.line, column: p.column}
}

func (p *RazorParser) restore(s parserState) {
	p.pos, p.line, p.column = s.pos, s.line, s.column
}

func (p *RazorParser) currentPosition() Position {
	return Position{Offset: p.pos, Line: p.line, Column: p.column}
}

// positionAt computes the position of an arbitrary source offset
func (p *RazorParser) positionAt(offset int) Position {
	offset = min(offset, len(p.src))
	line := 1 + strings.Count(p.src[:offset], "\n")
	lineStart := strings.LastIndexByte(p.src[:offset], CharNewline) + 1
	return Position{Offset: offset, Line: line, Column: offset - lineStart + 1}
}

func (p *RazorParser) errorAt(msg string, pos Position) error {
	return &DiagnosticsError{Diagnostics: []Diagnostic{{Message: msg, Position: pos}}}
}

// ParseTemplate is a convenience function that parses template text
func ParseTemplate(source string, logger *zap.Logger) (*Program, error) {
	return NewRazorParser(source, logger).Parse()
}
