package internal

import (
	"fmt"
	"strings"
)

// Text group function names
const (
	FuncNameUpper      = "upper"
	FuncNameLower      = "lower"
	FuncNameTrim       = "trim"
	FuncNameTrimPrefix = "trimPrefix"
	FuncNameTrimSuffix = "trimSuffix"
	FuncNameHasPrefix  = "hasPrefix"
	FuncNameHasSuffix  = "hasSuffix"
	FuncNameContains   = "contains"
	FuncNameReplace    = "replace"
	FuncNameSplit      = "split"
	FuncNameJoin       = "join"
	FuncNameConcat     = "concat"
	FuncNameFormat     = "format"
	FuncNameTruncate   = "truncate"
)

// stringArgs converts every argument to a string or reports which one failed
func stringArgs(funcName string, args []any) ([]string, error) {
	out := make([]string, len(args))
	for i, arg := range args {
		s, ok := toString(arg)
		if !ok {
			return nil, NewFuncTypeError(ErrMsgFuncExpectedString, funcName, i)
		}
		out[i] = s
	}
	return out, nil
}

// stringFunc adapts a fixed-arity string function
func stringFunc(name string, arity int, fn func(s []string) any) *Func {
	return &Func{
		Name: name, Group: GroupText, MinArgs: arity, MaxArgs: arity,
		Fn: func(args []any) (any, error) {
			s, err := stringArgs(name, args)
			if err != nil {
				return nil, err
			}
			return fn(s), nil
		},
	}
}

func textFuncs() []*Func {
	return []*Func{
		stringFunc(FuncNameUpper, 1, func(s []string) any { return strings.ToUpper(s[0]) }),
		stringFunc(FuncNameLower, 1, func(s []string) any { return strings.ToLower(s[0]) }),
		stringFunc(FuncNameTrim, 1, func(s []string) any { return strings.TrimSpace(s[0]) }),
		stringFunc(FuncNameTrimPrefix, 2, func(s []string) any { return strings.TrimPrefix(s[0], s[1]) }),
		stringFunc(FuncNameTrimSuffix, 2, func(s []string) any { return strings.TrimSuffix(s[0], s[1]) }),
		stringFunc(FuncNameHasPrefix, 2, func(s []string) any { return strings.HasPrefix(s[0], s[1]) }),
		stringFunc(FuncNameHasSuffix, 2, func(s []string) any { return strings.HasSuffix(s[0], s[1]) }),
		{
			Name: FuncNameReplace, Group: GroupText, MinArgs: 3, MaxArgs: 3,
			Fn: func(args []any) (any, error) {
				s, err := stringArgs(FuncNameReplace, args)
				if err != nil {
					return nil, err
				}
				n := strings.Count(s[0], s[1])
				if err := checkLen(FuncNameReplace, len(s[0])+n*(len(s[2])-len(s[1])), MaxStringLen); err != nil {
					return nil, err
				}
				return strings.ReplaceAll(s[0], s[1], s[2]), nil
			},
		},
		{
			Name: FuncNameSplit, Group: GroupText, MinArgs: 2, MaxArgs: 2,
			Fn: func(args []any) (any, error) {
				s, err := stringArgs(FuncNameSplit, args)
				if err != nil {
					return nil, err
				}
				if err := checkLen(FuncNameSplit, strings.Count(s[0], s[1])+1, MaxCollectionLen); err != nil {
					return nil, err
				}
				return strings.Split(s[0], s[1]), nil
			},
		},
		{
			// contains(s, substr) for strings, contains(items, x) for collections
			Name: FuncNameContains, Group: GroupText, MinArgs: 2, MaxArgs: 2,
			Fn: func(args []any) (any, error) {
				if s, ok := args[ArgIndexFirst].(string); ok {
					substr, ok := toString(args[ArgIndexSecond])
					if !ok {
						return nil, NewFuncTypeError(ErrMsgFuncExpectedString, FuncNameContains, ArgIndexSecond)
					}
					return strings.Contains(s, substr), nil
				}
				items, err := toSlice(args[ArgIndexFirst], FuncNameContains, ArgIndexFirst)
				if err != nil {
					return nil, err
				}
				for _, item := range items {
					if compareEqual(item, args[ArgIndexSecond]) {
						return true, nil
					}
				}
				return false, nil
			},
		},
		{
			Name: FuncNameJoin, Group: GroupText, MinArgs: 2, MaxArgs: 2,
			Fn: func(args []any) (any, error) {
				sep, ok := toString(args[ArgIndexSecond])
				if !ok {
					return nil, NewFuncTypeError(ErrMsgFuncExpectedString, FuncNameJoin, ArgIndexSecond)
				}
				items, err := toSlice(args[ArgIndexFirst], FuncNameJoin, ArgIndexFirst)
				if err != nil {
					return nil, err
				}
				strs := make([]string, len(items))
				total := 0
				for i, item := range items {
					strs[i] = anyToString(item)
					total += len(strs[i]) + len(sep)
					if err := checkLen(FuncNameJoin, total, MaxStringLen); err != nil {
						return nil, err
					}
				}
				return strings.Join(strs, sep), nil
			},
		},
		{
			Name: FuncNameConcat, Group: GroupText, MinArgs: 1, MaxArgs: -1,
			Fn: func(args []any) (any, error) {
				var sb strings.Builder
				for _, arg := range args {
					part := anyToString(arg)
					if err := checkLen(FuncNameConcat, sb.Len()+len(part), MaxStringLen); err != nil {
						return nil, err
					}
					sb.WriteString(part)
				}
				return sb.String(), nil
			},
		},
		{
			// format(layout, args...) uses fmt verbs
			Name: FuncNameFormat, Group: GroupText, MinArgs: 1, MaxArgs: -1,
			Fn: func(args []any) (any, error) {
				layout, ok := toString(args[ArgIndexFirst])
				if !ok {
					return nil, NewFuncTypeError(ErrMsgFuncExpectedString, FuncNameFormat, ArgIndexFirst)
				}
				if err := checkFormatLayout(layout); err != nil {
					return nil, err
				}
				return fmt.Sprintf(layout, args[1:]...), nil
			},
		},
		{
			// truncate(s, n) cuts s to n runes
			Name: FuncNameTruncate, Group: GroupText, MinArgs: 2, MaxArgs: 2,
			Fn: func(args []any) (any, error) {
				s := []rune(anyToString(args[ArgIndexFirst]))
				n, err := anyToInt(args[ArgIndexSecond], FuncNameTruncate, ArgIndexSecond)
				if err != nil {
					return nil, err
				}
				if n < 0 || n >= len(s) {
					return string(s), nil
				}
				return string(s[:n]), nil
			},
		},
	}
}

// checkFormatLayout rejects verbs whose width or precision could make
// Sprintf allocate without bound. Widths taken from arguments ('*') are
// rejected outright.
func checkFormatLayout(layout string) error {
	for i := 0; i < len(layout); i++ {
		if layout[i] != '%' {
			continue
		}
		n := 0
	verb:
		for i++; i < len(layout); i++ {
			switch c := layout[i]; {
			case c >= '0' && c <= '9':
				n = n*10 + int(c-'0')
				if n > MaxFormatWidth {
					return NewExprEvalError(ErrMsgFormatWidth, layout)
				}
			case c == '*':
				return NewExprEvalError(ErrMsgFormatWidth, layout)
			case c == '.' || c == '[' || c == ']':
				n = 0
			case c == '+' || c == '-' || c == '#' || c == ' ':
			default:
				break verb
			}
		}
	}
	return nil
}
