package internal

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callFunc(t *testing.T, name string, args ...any) (any, error) {
	t.Helper()
	return NewImportedRegistry(allGroups).Call(name, args)
}

func TestFuncRegistry_Register(t *testing.T) {
	r := NewFuncRegistry()
	f := &Func{Name: "twice", Group: "Custom", MinArgs: 1, MaxArgs: 1, Fn: func(args []any) (any, error) {
		n, _ := toNumber(args[0])
		return n * 2, nil
	}}

	require.NoError(t, r.Register(f))
	assert.Error(t, r.Register(f))
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&Func{}))
	assert.True(t, r.Has("twice"))
	assert.Equal(t, 1, r.Count())

	result, err := r.Call("twice", []any{4})
	require.NoError(t, err)
	assert.Equal(t, 8.0, result)
}

func TestFuncRegistry_Arity(t *testing.T) {
	_, err := callFunc(t, FuncNameUpper)
	var argErr *FuncArgError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, ErrMsgFuncTooFewArgs, argErr.Message)

	_, err = callFunc(t, FuncNameUpper, "a", "b")
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, ErrMsgFuncTooManyArgs, argErr.Message)
}

func TestNewImportedRegistry_GatesGroups(t *testing.T) {
	r := NewImportedRegistry([]string{GroupText})
	assert.True(t, r.Has(FuncNameUpper))
	assert.False(t, r.Has(FuncNameCount))
	assert.False(t, r.Has(FuncNameHideIfNullOrWhiteSpace))

	extra := &Func{Name: "ReadText", Group: GroupIO, MinArgs: 1, MaxArgs: 1}
	assert.False(t, NewImportedRegistry([]string{GroupText}, extra).Has("ReadText"))
	assert.True(t, NewImportedRegistry([]string{GroupIO}, extra).Has("ReadText"))

	group, ok := FuncGroupOf("ReadText", extra)
	assert.True(t, ok)
	assert.Equal(t, GroupIO, group)
}

func TestFuncRegistry_List(t *testing.T) {
	names := NewImportedRegistry([]string{GroupCollections}).List()
	assert.Equal(t, []string{"first", "has", "keys", "last", "len", "values"}, names)
}

func TestBuiltinFuncs(t *testing.T) {
	tests := []struct {
		name     string
		fn       string
		args     []any
		expected any
	}{
		{"toString", FuncNameToString, []any{2.5}, "2.5"},
		{"toInt", FuncNameToInt, []any{" 42 "}, 42},
		{"toFloat", FuncNameToFloat, []any{"1.5"}, 1.5},
		{"toBool", FuncNameToBool, []any{""}, false},
		{"typeOf", FuncNameTypeOf, []any{[]int{}}, "[]int"},
		{"typeOf nil", FuncNameTypeOf, []any{nil}, StringValueNil},
		{"isNil", FuncNameIsNil, []any{nil}, true},
		{"isEmpty", FuncNameIsEmpty, []any{map[string]int{}}, true},
		{"default", FuncNameDefault, []any{"", "fallback"}, "fallback"},
		{"coalesce", FuncNameCoalesce, []any{nil, "", "x"}, "x"},
		{"formatDate", FuncNameFormatDate, []any{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}, "2024-03-01"},
		{"upper", FuncNameUpper, []any{"ab"}, "AB"},
		{"replace", FuncNameReplace, []any{"a-b-c", "-", "+"}, "a+b+c"},
		{"split", FuncNameSplit, []any{"a,b", ","}, []string{"a", "b"}},
		{"join", FuncNameJoin, []any{[]any{1, "x", true}, "|"}, "1|x|true"},
		{"contains string", FuncNameContains, []any{"hello", "ell"}, true},
		{"contains slice", FuncNameContains, []any{[]int{1, 2}, 2.0}, true},
		{"format", FuncNameFormat, []any{"%s=%v", "a", 1}, "a=1"},
		{"truncate", FuncNameTruncate, []any{"héllo", 2}, "hé"},
		{"len", FuncNameLen, []any{"abc"}, 3},
		{"first", FuncNameFirst, []any{[]string{"a", "b"}}, "a"},
		{"last empty", FuncNameLast, []any{[]string{}}, nil},
		{"keys", FuncNameKeys, []any{map[string]int{"b": 1, "a": 2}}, []string{"a", "b"}},
		{"values", FuncNameValues, []any{map[string]int{"b": 1, "a": 2}}, []any{2, 1}},
		{"has", FuncNameHas, []any{map[string]int{"a": 1}, "a"}, true},
		{"count", FuncNameCount, []any{[]int{1, 2, 3}}, 3},
		{"any", FuncNameAny, []any{[]int{}}, false},
		{"sum", FuncNameSum, []any{[]int{1, 2, 3}}, 6.0},
		{"min", FuncNameMin, []any{[]float64{3, 1, 2}}, 1.0},
		{"max", FuncNameMax, []any{[]int{3, 9, 2}}, 9.0},
		{"take", FuncNameTake, []any{[]int{1, 2, 3}, 2}, []any{1, 2}},
		{"skip beyond", FuncNameSkip, []any{[]int{1, 2, 3}, 5}, []any{}},
		{"reverse", FuncNameReverse, []any{[]int{1, 2}}, []any{2, 1}},
		{"range", FuncNameRange, []any{2.0, 3.0}, []any{2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := callFunc(t, tt.fn, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestBuiltinFuncs_TypeErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		args []any
	}{
		{"upper number", FuncNameUpper, []any{1}},
		{"keys of slice", FuncNameKeys, []any{[]int{}}},
		{"sum of strings", FuncNameSum, []any{[]string{"a"}}},
		{"toInt garbage", FuncNameToInt, []any{"x"}},
		{"formatDate string", FuncNameFormatDate, []any{"2024"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callFunc(t, tt.fn, tt.args...)
			require.Error(t, err)
			var typeErr *FuncTypeError
			assert.True(t, errors.As(err, &typeErr))
		})
	}
}

func TestBuiltinFuncs_SizeLimits(t *testing.T) {
	big := strings.Repeat("x", MaxStringLen/2+1)
	tests := []struct {
		name string
		fn   string
		args []any
		msg  string
	}{
		{"range count", FuncNameRange, []any{0, MaxCollectionLen + 1}, ErrMsgValueTooLarge},
		{"replace growth", FuncNameReplace, []any{big, "x", "xx"}, ErrMsgValueTooLarge},
		{"split pieces", FuncNameSplit, []any{strings.Repeat(",", MaxCollectionLen), ","}, ErrMsgValueTooLarge},
		{"concat", FuncNameConcat, []any{big, big}, ErrMsgValueTooLarge},
		{"join", FuncNameJoin, []any{[]any{big, big}, ""}, ErrMsgValueTooLarge},
		{"format width", FuncNameFormat, []any{"%999999999d", 1}, ErrMsgFormatWidth},
		{"format precision", FuncNameFormat, []any{"%.99999f", 1.0}, ErrMsgFormatWidth},
		{"format star width", FuncNameFormat, []any{"%*d", 5, 1}, ErrMsgFormatWidth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callFunc(t, tt.fn, tt.args...)
			var evalErr *ExprEvalError
			require.True(t, errors.As(err, &evalErr), "%v", err)
			assert.Equal(t, tt.msg, evalErr.Message)
		})
	}

	out, err := callFunc(t, FuncNameFormat, "%5d|%-3s|%[1]d|%%", 42, "a")
	require.NoError(t, err)
	assert.Equal(t, "   42|a  |42|%", out)
}

func TestDisplayFuncs(t *testing.T) {
	tests := []struct {
		name     string
		fn       string
		args     []any
		expected any
	}{
		{"hide blank", FuncNameHideIfNullOrWhiteSpace, []any{"  "}, CSSDisplayNone},
		{"hide all blank", FuncNameHideIfNullOrWhiteSpace, []any{nil, ""}, CSSDisplayNone},
		{"hide keeps any value", FuncNameHideIfNullOrWhiteSpace, []any{nil, "x"}, ""},
		{"display value", FuncNameDisplayIfNotNullOrWhiteSpace, []any{"x"}, "display: inherit;"},
		{"display block", FuncNameDisplayIfNotNullOrWhiteSpace, []any{"x", CSSDisplayBlock}, "display: block;"},
		{"display blank", FuncNameDisplayIfNotNullOrWhiteSpace, []any{""}, CSSDisplayNone},
		{"hide not equal", FuncNameHideIfNotEqual, []any{1, 2}, CSSDisplayNone},
		{"hide equal", FuncNameHideIfNotEqual, []any{"a", "a"}, ""},
		{"display equal", FuncNameDisplayIfEqual, []any{2, 2.0, CSSDisplayInlineBlock}, "display: inline-block;"},
		{"display not equal", FuncNameDisplayIfEqual, []any{2, 3}, CSSDisplayNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := callFunc(t, tt.fn, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestHTMLFuncs(t *testing.T) {
	result, err := callFunc(t, FuncNameSanitize, `<b onclick="x()">hi</b><script>alert(1)</script>`)
	require.NoError(t, err)
	assert.Equal(t, SafeHTML("<b>hi</b>"), result)

	result, err = callFunc(t, FuncNameStripTags, `<p>a &amp; <i>b</i></p>`)
	require.NoError(t, err)
	assert.Equal(t, SafeHTML("a &amp; b"), result)
	assert.Equal(t, "a &amp; b", result.(SafeHTML).EncodedString())
}
