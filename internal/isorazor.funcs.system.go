package internal

import (
	"reflect"
	"time"
)

// System group function names
const (
	FuncNameToString   = "toString"
	FuncNameToInt      = "toInt"
	FuncNameToFloat    = "toFloat"
	FuncNameToBool     = "toBool"
	FuncNameTypeOf     = "typeOf"
	FuncNameIsNil      = "isNil"
	FuncNameIsEmpty    = "isEmpty"
	FuncNameDefault    = "default"
	FuncNameCoalesce   = "coalesce"
	FuncNameNow        = "now"
	FuncNameFormatDate = "formatDate"
)

// DefaultDateLayout is used by formatDate when no layout is given
const DefaultDateLayout = "2006-01-02"

func systemFuncs() []*Func {
	return []*Func{
		{
			Name: FuncNameToString, Group: GroupSystem, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return anyToString(args[ArgIndexFirst]), nil
			},
		},
		{
			Name: FuncNameToInt, Group: GroupSystem, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return anyToInt(args[ArgIndexFirst], FuncNameToInt, ArgIndexFirst)
			},
		},
		{
			Name: FuncNameToFloat, Group: GroupSystem, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return anyToFloat(args[ArgIndexFirst], FuncNameToFloat, ArgIndexFirst)
			},
		},
		{
			Name: FuncNameToBool, Group: GroupSystem, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return isTruthy(args[ArgIndexFirst]), nil
			},
		},
		{
			Name: FuncNameTypeOf, Group: GroupSystem, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				if args[ArgIndexFirst] == nil {
					return StringValueNil, nil
				}
				return reflect.TypeOf(args[ArgIndexFirst]).String(), nil
			},
		},
		{
			Name: FuncNameIsNil, Group: GroupSystem, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return args[ArgIndexFirst] == nil, nil
			},
		},
		{
			Name: FuncNameIsEmpty, Group: GroupSystem, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return isEmpty(args[ArgIndexFirst]), nil
			},
		},
		{
			// default(x, fallback) returns fallback if x is nil or empty
			Name: FuncNameDefault, Group: GroupSystem, MinArgs: 2, MaxArgs: 2,
			Fn: func(args []any) (any, error) {
				if isEmpty(args[ArgIndexFirst]) {
					return args[ArgIndexSecond], nil
				}
				return args[ArgIndexFirst], nil
			},
		},
		{
			Name: FuncNameCoalesce, Group: GroupSystem, MinArgs: 1, MaxArgs: -1,
			Fn: func(args []any) (any, error) {
				for _, arg := range args {
					if !isEmpty(arg) {
						return arg, nil
					}
				}
				return nil, nil
			},
		},
		{
			Name: FuncNameNow, Group: GroupSystem, MinArgs: 0, MaxArgs: 0,
			Fn: func(args []any) (any, error) {
				return time.Now(), nil
			},
		},
		{
			// formatDate(t, layout?) formats a time.Time with a Go layout
			Name: FuncNameFormatDate, Group: GroupSystem, MinArgs: 1, MaxArgs: 2,
			Fn: func(args []any) (any, error) {
				t, ok := args[ArgIndexFirst].(time.Time)
				if !ok {
					return nil, NewFuncTypeError(ErrMsgFuncConversionFailed, FuncNameFormatDate, ArgIndexFirst)
				}
				layout := DefaultDateLayout
				if len(args) > 1 {
					l, ok := toString(args[ArgIndexSecond])
					if !ok {
						return nil, NewFuncTypeError(ErrMsgFuncExpectedString, FuncNameFormatDate, ArgIndexSecond)
					}
					layout = l
				}
				return t.Format(layout), nil
			},
		},
	}
}
