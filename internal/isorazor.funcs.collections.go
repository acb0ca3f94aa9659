package internal

import (
	"reflect"
	"sort"
)

// Collections group function names
const (
	FuncNameLen    = "len"
	FuncNameFirst  = "first"
	FuncNameLast   = "last"
	FuncNameKeys   = "keys"
	FuncNameValues = "values"
	FuncNameHas    = "has"
)

// Linq group function names
const (
	FuncNameCount   = "count"
	FuncNameAny     = "any"
	FuncNameSum     = "sum"
	FuncNameMin     = "min"
	FuncNameMax     = "max"
	FuncNameTake    = "take"
	FuncNameSkip    = "skip"
	FuncNameReverse = "reverse"
	FuncNameRange   = "range"
)

// sortedKeys returns the string keys of any map kind in sorted order
func sortedKeys(v any, funcName string) (reflect.Value, []string, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return rv, nil, NewFuncTypeError(ErrMsgFuncExpectedMap, funcName, ArgIndexFirst)
	}
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return rv, keys, nil
}

func collectionFuncs() []*Func {
	return []*Func{
		{
			Name: FuncNameLen, Group: GroupCollections, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return getLength(args[ArgIndexFirst], FuncNameLen, ArgIndexFirst)
			},
		},
		{
			Name: FuncNameFirst, Group: GroupCollections, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				items, err := toSlice(args[ArgIndexFirst], FuncNameFirst, ArgIndexFirst)
				if err != nil || len(items) == 0 {
					return nil, err
				}
				return items[0], nil
			},
		},
		{
			Name: FuncNameLast, Group: GroupCollections, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				items, err := toSlice(args[ArgIndexFirst], FuncNameLast, ArgIndexFirst)
				if err != nil || len(items) == 0 {
					return nil, err
				}
				return items[len(items)-1], nil
			},
		},
		{
			Name: FuncNameKeys, Group: GroupCollections, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				_, keys, err := sortedKeys(args[ArgIndexFirst], FuncNameKeys)
				if err != nil {
					return nil, err
				}
				return keys, nil
			},
		},
		{
			Name: FuncNameValues, Group: GroupCollections, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				rv, keys, err := sortedKeys(args[ArgIndexFirst], FuncNameValues)
				if err != nil {
					return nil, err
				}
				values := make([]any, len(keys))
				for i, k := range keys {
					values[i] = rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()
				}
				return values, nil
			},
		},
		{
			Name: FuncNameHas, Group: GroupCollections, MinArgs: 2, MaxArgs: 2,
			Fn: func(args []any) (any, error) {
				_, keys, err := sortedKeys(args[ArgIndexFirst], FuncNameHas)
				if err != nil {
					return nil, err
				}
				key, ok := toString(args[ArgIndexSecond])
				if !ok {
					return nil, NewFuncTypeError(ErrMsgFuncExpectedStringKey, FuncNameHas, ArgIndexSecond)
				}
				i := sort.SearchStrings(keys, key)
				return i < len(keys) && keys[i] == key, nil
			},
		},
	}
}

// numbers converts a collection to float64 values
func numbers(v any, funcName string) ([]float64, error) {
	items, err := toSlice(v, funcName, ArgIndexFirst)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, item := range items {
		n, ok := toNumber(item)
		if !ok {
			return nil, NewFuncTypeError(ErrMsgFuncExpectedNumber, funcName, ArgIndexFirst)
		}
		out[i] = n
	}
	return out, nil
}

// extreme returns the minimum (less) or maximum of a numeric collection
func extreme(funcName string, less bool) *Func {
	return &Func{
		Name: funcName, Group: GroupLinq, MinArgs: 1, MaxArgs: 1,
		Fn: func(args []any) (any, error) {
			ns, err := numbers(args[ArgIndexFirst], funcName)
			if err != nil || len(ns) == 0 {
				return nil, err
			}
			best := ns[0]
			for _, n := range ns[1:] {
				if (less && n < best) || (!less && n > best) {
					best = n
				}
			}
			return best, nil
		},
	}
}

// window slices a collection to [from, to) with bounds clamped
func window(funcName string, pick func(n, length int) (int, int)) *Func {
	return &Func{
		Name: funcName, Group: GroupLinq, MinArgs: 2, MaxArgs: 2,
		Fn: func(args []any) (any, error) {
			items, err := toSlice(args[ArgIndexFirst], funcName, ArgIndexFirst)
			if err != nil {
				return nil, err
			}
			n, err := anyToInt(args[ArgIndexSecond], funcName, ArgIndexSecond)
			if err != nil {
				return nil, err
			}
			n = max(0, min(n, len(items)))
			from, to := pick(n, len(items))
			return items[from:to], nil
		},
	}
}

func linqFuncs() []*Func {
	return []*Func{
		{
			Name: FuncNameCount, Group: GroupLinq, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return getLength(args[ArgIndexFirst], FuncNameCount, ArgIndexFirst)
			},
		},
		{
			Name: FuncNameAny, Group: GroupLinq, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				n, err := getLength(args[ArgIndexFirst], FuncNameAny, ArgIndexFirst)
				return n > 0, err
			},
		},
		{
			Name: FuncNameSum, Group: GroupLinq, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				ns, err := numbers(args[ArgIndexFirst], FuncNameSum)
				if err != nil {
					return nil, err
				}
				var total float64
				for _, n := range ns {
					total += n
				}
				return total, nil
			},
		},
		extreme(FuncNameMin, true),
		extreme(FuncNameMax, false),
		window(FuncNameTake, func(n, _ int) (int, int) { return 0, n }),
		window(FuncNameSkip, func(n, length int) (int, int) { return n, length }),
		{
			Name: FuncNameReverse, Group: GroupLinq, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				items, err := toSlice(args[ArgIndexFirst], FuncNameReverse, ArgIndexFirst)
				if err != nil {
					return nil, err
				}
				out := make([]any, len(items))
				for i, item := range items {
					out[len(items)-1-i] = item
				}
				return out, nil
			},
		},
		{
			// range(start, count) yields count consecutive integers
			Name: FuncNameRange, Group: GroupLinq, MinArgs: 2, MaxArgs: 2,
			Fn: func(args []any) (any, error) {
				start, err := anyToInt(args[ArgIndexFirst], FuncNameRange, ArgIndexFirst)
				if err != nil {
					return nil, err
				}
				count, err := anyToInt(args[ArgIndexSecond], FuncNameRange, ArgIndexSecond)
				if err != nil {
					return nil, err
				}
				if err := checkLen(FuncNameRange, count, MaxCollectionLen); err != nil {
					return nil, err
				}
				out := make([]any, 0, max(count, 0))
				for i := 0; i < count; i++ {
					out = append(out, start+i)
				}
				return out, nil
			},
		},
	}
}
