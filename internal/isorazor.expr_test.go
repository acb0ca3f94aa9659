package internal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapContext resolves identifiers by exact key
type mapContext map[string]any

func (m mapContext) Get(path string) (any, bool) {
	v, ok := m[path]
	return v, ok
}

var allGroups = []string{GroupSystem, GroupCollections, GroupLinq, GroupText, GroupIsorazor, GroupHtml}

func evalExpr(t *testing.T, src string, vars mapContext) (any, error) {
	t.Helper()
	node, err := ParseExpression(src)
	require.NoError(t, err, src)
	return NewExprEvaluator(NewImportedRegistry(allGroups), vars).Evaluate(node)
}

func TestExprTokenizer_Operators(t *testing.T) {
	tokens, err := NewExprTokenizer("a + 1.5 * -b % 2 >= c && !d").Tokenize()
	require.NoError(t, err)

	var types []ExprTokenType
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []ExprTokenType{
		ExprTokenTypeIdentifier, ExprTokenTypePlus, ExprTokenTypeNumber, ExprTokenTypeStar,
		ExprTokenTypeMinus, ExprTokenTypeIdentifier, ExprTokenTypePercent, ExprTokenTypeNumber,
		ExprTokenTypeGte, ExprTokenTypeIdentifier, ExprTokenTypeAnd, ExprTokenTypeNot,
		ExprTokenTypeIdentifier, ExprTokenTypeEOF,
	}, types)
}

func TestExprTokenizer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated string", `"abc`},
		{"trailing dot", "Model."},
		{"double dot", "Model..Name"},
		{"stray character", "a # b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExprTokenizer(tt.input).Tokenize()
			assert.Error(t, err)
		})
	}
}

func TestExprEvaluator_Arithmetic(t *testing.T) {
	tests := []struct {
		input    string
		expected any
	}{
		{"1 + 2 * 3", 7.0},
		{"(1 + 2) * 3", 9.0},
		{"10 % 4", 2.0},
		{"7 / 2", 3.5},
		{"-n + 1", -4.0},
		{`"a" + 1`, "a1"},
		{`name + "!"`, "Ada!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := evalExpr(t, tt.input, mapContext{"n": 5, "name": "Ada"})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestExprEvaluator_DivideByZero(t *testing.T) {
	for _, input := range []string{"1 / 0", "1 % 0"} {
		_, err := evalExpr(t, input, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrMsgDivideByZero)
	}
}

func TestExprEvaluator_ConcatLimit(t *testing.T) {
	half := strings.Repeat("x", MaxStringLen/2+1)
	_, err := evalExpr(t, "s + s", mapContext{"s": half})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgValueTooLarge)
}

func TestExprEvaluator_Comparison(t *testing.T) {
	vars := mapContext{"count": 3, "name": "b", "missing": nil}
	tests := []struct {
		input    string
		expected bool
	}{
		{"count > 2", true},
		{"count <= 2", false},
		{"count == 3", true},
		{`name < "c"`, true},
		{"missing == null", true},
		{"missing == nil", true},
		{"!missing", true},
		{"count > 1 && name != \"a\"", true},
		{"count > 5 || missing", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := evalExpr(t, tt.input, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestExprEvaluator_UnknownIdentifierIsNil(t *testing.T) {
	result, err := evalExpr(t, "nothing", mapContext{})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestExprEvaluator_Calls(t *testing.T) {
	result, err := evalExpr(t, `upper(trim(name)) + "-" + toString(len(items))`, mapContext{
		"name":  "  ada ",
		"items": []int{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "ADA-3", result)
}

func TestExprEvaluator_CompareMismatch(t *testing.T) {
	_, err := evalExpr(t, `1 < "a"`, nil)
	assert.Error(t, err)
}

func TestParseExpression_MethodCall(t *testing.T) {
	node, err := ParseExpression(`Model.Greet("x")`)
	require.NoError(t, err)

	call, ok := node.(*CallNode)
	require.True(t, ok)
	assert.True(t, call.IsMethodCall())
	assert.Equal(t, "Model.Greet", call.Name)
	assert.Len(t, call.Args, 1)
}

func TestWalkExpr_VisitsAllNodes(t *testing.T) {
	node, err := ParseExpression(`upper(a) == lower(b + "c")`)
	require.NoError(t, err)

	var calls []string
	WalkExpr(node, func(n ExprNode) {
		if c, ok := n.(*CallNode); ok {
			calls = append(calls, c.Name)
		}
	})
	assert.Equal(t, []string{"upper", "lower"}, calls)
}
