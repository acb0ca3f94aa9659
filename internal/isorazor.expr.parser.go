package internal

import "fmt"

// ExprParser parses expression tokens into an AST.
//
// Precedence, lowest first: || then && then == != then < > <= >= then
// + - then * / % then unary ! and -.
type ExprParser struct {
	tokens []ExprToken
	pos    int
}

// NewExprParser creates a new expression parser
func NewExprParser(tokens []ExprToken) *ExprParser {
	return &ExprParser{
		tokens: tokens,
		pos:    0,
	}
}

// Parse parses the expression and returns the root AST node
func (p *ExprParser) Parse() (ExprNode, error) {
	if len(p.tokens) == 0 || (len(p.tokens) == 1 && p.tokens[0].Type == ExprTokenTypeEOF) {
		return nil, NewExprParseError(ErrMsgExprEmptyExpression, 0, "")
	}

	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if !p.isAtEnd() && p.peek().Type != ExprTokenTypeEOF {
		return nil, NewExprParseError(ErrMsgExprUnexpectedToken, p.peek().Pos, p.peek().Value)
	}

	return node, nil
}

// binaryLevel parses a left-associative chain of the given operators
func (p *ExprParser) binaryLevel(next func() (ExprNode, error), ops ...ExprTokenType) (ExprNode, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	for p.matchAny(ops...) {
		op := p.previous().Type
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = NewBinary(left, op, right)
	}

	return left, nil
}

func (p *ExprParser) parseOr() (ExprNode, error) {
	return p.binaryLevel(p.parseAnd, ExprTokenTypeOr)
}

func (p *ExprParser) parseAnd() (ExprNode, error) {
	return p.binaryLevel(p.parseEquality, ExprTokenTypeAnd)
}

func (p *ExprParser) parseEquality() (ExprNode, error) {
	return p.binaryLevel(p.parseComparison, ExprTokenTypeEq, ExprTokenTypeNeq)
}

func (p *ExprParser) parseComparison() (ExprNode, error) {
	return p.binaryLevel(p.parseTerm, ExprTokenTypeLt, ExprTokenTypeGt, ExprTokenTypeLte, ExprTokenTypeGte)
}

func (p *ExprParser) parseTerm() (ExprNode, error) {
	return p.binaryLevel(p.parseFactor, ExprTokenTypePlus, ExprTokenTypeMinus)
}

func (p *ExprParser) parseFactor() (ExprNode, error) {
	return p.binaryLevel(p.parseUnary, ExprTokenTypeStar, ExprTokenTypeSlash, ExprTokenTypePercent)
}

// parseUnary parses unary expressions (! and -)
func (p *ExprParser) parseUnary() (ExprNode, error) {
	if p.matchAny(ExprTokenTypeNot, ExprTokenTypeMinus) {
		op := p.previous().Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return NewUnary(op, right), nil
	}

	return p.parseCall()
}

// parseCall parses function calls and primary expressions
func (p *ExprParser) parseCall() (ExprNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	if ident, ok := node.(*IdentifierNode); ok {
		if p.match(ExprTokenTypeLParen) {
			return p.finishCall(ident.Name)
		}
	}

	return node, nil
}

// finishCall finishes parsing a call after the opening paren
func (p *ExprParser) finishCall(name string) (ExprNode, error) {
	var args []ExprNode

	if !p.check(ExprTokenTypeRParen) {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if !p.match(ExprTokenTypeComma) {
				break
			}
		}
	}

	if !p.match(ExprTokenTypeRParen) {
		return nil, NewExprParseError(ErrMsgExprExpectedRParen, p.currentPos(), "")
	}

	return NewCall(name, args), nil
}

// parsePrimary parses literals, identifiers and parenthesized expressions
func (p *ExprParser) parsePrimary() (ExprNode, error) {
	if p.match(ExprTokenTypeString) {
		return NewLiteralString(p.previous().Literal.(string)), nil
	}

	if p.match(ExprTokenTypeNumber) {
		return NewLiteralNumber(p.previous().Literal.(float64)), nil
	}

	if p.match(ExprTokenTypeBool) {
		return NewLiteralBool(p.previous().Literal.(bool)), nil
	}

	if p.match(ExprTokenTypeNil) {
		return NewLiteralNil(), nil
	}

	if p.match(ExprTokenTypeIdentifier) {
		return NewIdentifier(p.previous().Value), nil
	}

	if p.match(ExprTokenTypeLParen) {
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if !p.match(ExprTokenTypeRParen) {
			return nil, NewExprParseError(ErrMsgExprExpectedRParen, p.currentPos(), "")
		}

		return expr, nil
	}

	if p.isAtEnd() {
		return nil, NewExprParseError(ErrMsgExprUnexpectedEOF, p.currentPos(), "")
	}

	return nil, NewExprParseError(ErrMsgExprUnexpectedToken, p.peek().Pos, p.peek().Value)
}

func (p *ExprParser) match(tokenType ExprTokenType) bool {
	if p.check(tokenType) {
		p.advance()
		return true
	}
	return false
}

func (p *ExprParser) matchAny(types ...ExprTokenType) bool {
	for _, t := range types {
		if p.match(t) {
			return true
		}
	}
	return false
}

func (p *ExprParser) check(tokenType ExprTokenType) bool {
	if p.isAtEnd() {
		return false
	}
	return p.peek().Type == tokenType
}

func (p *ExprParser) advance() ExprToken {
	if !p.isAtEnd() {
		p.pos++
	}
	return p.previous()
}

func (p *ExprParser) peek() ExprToken {
	if p.pos >= len(p.tokens) {
		return ExprToken{Type: ExprTokenTypeEOF, Pos: p.currentPos()}
	}
	return p.tokens[p.pos]
}

func (p *ExprParser) previous() ExprToken {
	if p.pos == 0 {
		return p.tokens[0]
	}
	return p.tokens[p.pos-1]
}

func (p *ExprParser) isAtEnd() bool {
	return p.pos >= len(p.tokens) || p.peek().Type == ExprTokenTypeEOF
}

func (p *ExprParser) currentPos() int {
	if p.pos >= len(p.tokens) {
		if len(p.tokens) > 0 {
			return p.tokens[len(p.tokens)-1].Pos
		}
		return 0
	}
	return p.tokens[p.pos].Pos
}

// ExprParseError represents an error during expression parsing
type ExprParseError struct {
	Message string
	Pos     int
	Detail  string
}

// NewExprParseError creates a new expression parse error
func NewExprParseError(message string, pos int, detail string) *ExprParseError {
	return &ExprParseError{
		Message: message,
		Pos:     pos,
		Detail:  detail,
	}
}

// Error implements the error interface
func (e *ExprParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s at position %d: %s", e.Message, e.Pos, e.Detail)
	}
	return fmt.Sprintf("%s at position %d", e.Message, e.Pos)
}

// Expression parser error messages
const (
	ErrMsgExprEmptyExpression = "empty expression"
	ErrMsgExprUnexpectedToken = "unexpected token"
	ErrMsgExprExpectedRParen  = "expected closing parenthesis"
	ErrMsgExprUnexpectedEOF   = "unexpected end of expression"
)

// ParseExpression tokenizes and parses an expression string
func ParseExpression(expr string) (ExprNode, error) {
	tokens, err := NewExprTokenizer(expr).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewExprParser(tokens).Parse()
}
