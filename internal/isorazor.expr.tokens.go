package internal

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ExprTokenType represents the type of an expression token
type ExprTokenType string

// Expression token type constants
const (
	ExprTokenTypeIdentifier ExprTokenType = "IDENT"
	ExprTokenTypeString     ExprTokenType = "STRING"
	ExprTokenTypeNumber     ExprTokenType = "NUMBER"
	ExprTokenTypeBool       ExprTokenType = "BOOL"
	ExprTokenTypeNil        ExprTokenType = "NIL"
	ExprTokenTypeLParen     ExprTokenType = "LPAREN"
	ExprTokenTypeRParen     ExprTokenType = "RPAREN"
	ExprTokenTypeComma      ExprTokenType = "COMMA"

	// Logical and comparison operators
	ExprTokenTypeAnd ExprTokenType = "AND"
	ExprTokenTypeOr  ExprTokenType = "OR"
	ExprTokenTypeNot ExprTokenType = "NOT"
	ExprTokenTypeEq  ExprTokenType = "EQ"
	ExprTokenTypeNeq ExprTokenType = "NEQ"
	ExprTokenTypeLt  ExprTokenType = "LT"
	ExprTokenTypeGt  ExprTokenType = "GT"
	ExprTokenTypeLte ExprTokenType = "LTE"
	ExprTokenTypeGte ExprTokenType = "GTE"

	// Arithmetic operators
	ExprTokenTypePlus    ExprTokenType = "PLUS"
	ExprTokenTypeMinus   ExprTokenType = "MINUS"
	ExprTokenTypeStar    ExprTokenType = "STAR"
	ExprTokenTypeSlash   ExprTokenType = "SLASH"
	ExprTokenTypePercent ExprTokenType = "PERCENT"

	ExprTokenTypeEOF ExprTokenType = "EOF"
)

// Expression operator strings
const (
	ExprOpAnd     = "&&"
	ExprOpOr      = "||"
	ExprOpNot     = "!"
	ExprOpEq      = "=="
	ExprOpNeq     = "!="
	ExprOpLt      = "<"
	ExprOpGt      = ">"
	ExprOpLte     = "<="
	ExprOpGte     = ">="
	ExprOpPlus    = "+"
	ExprOpMinus   = "-"
	ExprOpStar    = "*"
	ExprOpSlash   = "/"
	ExprOpPercent = "%"
)

// Expression keyword constants. nil and null are synonyms.
const (
	ExprKeywordTrue  = "true"
	ExprKeywordFalse = "false"
	ExprKeywordNil   = "nil"
	ExprKeywordNull  = "null"
)

// ExprToken represents a token in an expression
type ExprToken struct {
	Type    ExprTokenType
	Value   string
	Pos     int
	Literal any // string, float64, bool or nil for literals
}

// String returns the string representation of the token
func (t ExprToken) String() string {
	if t.Value != "" {
		return fmt.Sprintf("%s(%s)", t.Type, t.Value)
	}
	return string(t.Type)
}

// ExprTokenizer tokenizes expression strings
type ExprTokenizer struct {
	input string
	pos   int
	len   int
}

// NewExprTokenizer creates a new expression tokenizer
func NewExprTokenizer(input string) *ExprTokenizer {
	return &ExprTokenizer{
		input: input,
		pos:   0,
		len:   len(input),
	}
}

// Tokenize converts the input string into a slice of tokens
func (t *ExprTokenizer) Tokenize() ([]ExprToken, error) {
	var tokens []ExprToken

	for {
		t.skipWhitespace()

		if t.pos >= t.len {
			tokens = append(tokens, ExprToken{Type: ExprTokenTypeEOF, Pos: t.pos})
			break
		}

		token, err := t.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}

	return tokens, nil
}

var twoCharOps = map[string]ExprTokenType{
	ExprOpAnd: ExprTokenTypeAnd,
	ExprOpOr:  ExprTokenTypeOr,
	ExprOpEq:  ExprTokenTypeEq,
	ExprOpNeq: ExprTokenTypeNeq,
	ExprOpLte: ExprTokenTypeLte,
	ExprOpGte: ExprTokenTypeGte,
}

var oneCharOps = map[byte]ExprTokenType{
	'(': ExprTokenTypeLParen,
	')': ExprTokenTypeRParen,
	',': ExprTokenTypeComma,
	'!': ExprTokenTypeNot,
	'<': ExprTokenTypeLt,
	'>': ExprTokenTypeGt,
	'+': ExprTokenTypePlus,
	'-': ExprTokenTypeMinus,
	'*': ExprTokenTypeStar,
	'/': ExprTokenTypeSlash,
	'%': ExprTokenTypePercent,
}

// nextToken reads the next token from the input
func (t *ExprTokenizer) nextToken() (ExprToken, error) {
	startPos := t.pos
	ch := t.peek()

	if ch == '"' || ch == '\'' {
		return t.readString()
	}

	if unicode.IsDigit(rune(ch)) || (ch == '.' && t.pos+1 < t.len && unicode.IsDigit(rune(t.input[t.pos+1]))) {
		return t.readNumber()
	}

	if unicode.IsLetter(rune(ch)) || ch == '_' {
		return t.readIdentifier()
	}

	if t.pos+1 < t.len {
		twoChar := t.input[t.pos : t.pos+2]
		if typ, ok := twoCharOps[twoChar]; ok {
			t.pos += 2
			return ExprToken{Type: typ, Value: twoChar, Pos: startPos}, nil
		}
	}

	if typ, ok := oneCharOps[ch]; ok {
		t.pos++
		return ExprToken{Type: typ, Value: string(ch), Pos: startPos}, nil
	}

	return ExprToken{}, NewExprTokenError(ErrMsgExprUnexpectedChar, startPos, string(ch))
}

// readString reads a string literal
func (t *ExprTokenizer) readString() (ExprToken, error) {
	startPos := t.pos
	quote := t.input[t.pos]
	t.pos++

	var sb strings.Builder
	for t.pos < t.len {
		ch := t.input[t.pos]
		if ch == quote {
			t.pos++
			value := sb.String()
			return ExprToken{
				Type:    ExprTokenTypeString,
				Value:   value,
				Pos:     startPos,
				Literal: value,
			}, nil
		}
		if ch == '\\' && t.pos+1 < t.len {
			t.pos++
			switch escaped := t.input[t.pos]; escaped {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(escaped)
			}
			t.pos++
			continue
		}
		sb.WriteByte(ch)
		t.pos++
	}

	return ExprToken{}, NewExprTokenError(ErrMsgExprUnterminatedStr, startPos, "")
}

// readNumber reads a numeric literal
func (t *ExprTokenizer) readNumber() (ExprToken, error) {
	startPos := t.pos
	hasDecimal := false

	for t.pos < t.len {
		ch := t.input[t.pos]
		if ch == '.' {
			// a dot not followed by a digit ends the number
			if hasDecimal || t.pos+1 >= t.len || !unicode.IsDigit(rune(t.input[t.pos+1])) {
				break
			}
			hasDecimal = true
			t.pos++
			continue
		}
		if !unicode.IsDigit(rune(ch)) {
			break
		}
		t.pos++
	}

	value := t.input[startPos:t.pos]
	literal, err := strconv.ParseFloat(value, FloatBitSize64)
	if err != nil {
		return ExprToken{}, NewExprTokenError(ErrMsgExprInvalidNumber, startPos, value)
	}

	return ExprToken{
		Type:    ExprTokenTypeNumber,
		Value:   value,
		Pos:     startPos,
		Literal: literal,
	}, nil
}

// readIdentifier reads an identifier, a dotted member path or a keyword
func (t *ExprTokenizer) readIdentifier() (ExprToken, error) {
	startPos := t.pos

	for t.pos < t.len {
		ch := rune(t.input[t.pos])
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '_' && ch != '.' {
			break
		}
		t.pos++
	}

	value := t.input[startPos:t.pos]

	switch value {
	case ExprKeywordTrue:
		return ExprToken{Type: ExprTokenTypeBool, Value: value, Pos: startPos, Literal: true}, nil
	case ExprKeywordFalse:
		return ExprToken{Type: ExprTokenTypeBool, Value: value, Pos: startPos, Literal: false}, nil
	case ExprKeywordNil, ExprKeywordNull:
		return ExprToken{Type: ExprTokenTypeNil, Value: value, Pos: startPos, Literal: nil}, nil
	}

	if strings.HasSuffix(value, ".") || strings.Contains(value, "..") {
		return ExprToken{}, NewExprTokenError(ErrMsgExprInvalidPath, startPos, value)
	}

	return ExprToken{Type: ExprTokenTypeIdentifier, Value: value, Pos: startPos}, nil
}

func (t *ExprTokenizer) peek() byte {
	if t.pos >= t.len {
		return 0
	}
	return t.input[t.pos]
}

func (t *ExprTokenizer) skipWhitespace() {
	for t.pos < t.len && unicode.IsSpace(rune(t.input[t.pos])) {
		t.pos++
	}
}

// ExprTokenError represents an error during expression tokenization
type ExprTokenError struct {
	Message string
	Pos     int
	Detail  string
}

// NewExprTokenError creates a new expression token error
func NewExprTokenError(message string, pos int, detail string) *ExprTokenError {
	return &ExprTokenError{
		Message: message,
		Pos:     pos,
		Detail:  detail,
	}
}

// Error implements the error interface
func (e *ExprTokenError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s at position %d: %s", e.Message, e.Pos, e.Detail)
	}
	return fmt.Sprintf("%s at position %d", e.Message, e.Pos)
}

// Expression tokenizer error messages
const (
	ErrMsgExprUnexpectedChar  = "unexpected character"
	ErrMsgExprUnterminatedStr = "unterminated string literal"
	ErrMsgExprInvalidNumber   = "invalid number format"
	ErrMsgExprInvalidPath     = "invalid member path"
)
