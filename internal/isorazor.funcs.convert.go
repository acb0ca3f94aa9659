package internal

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// toString converts strings and Stringers; other values report false
func toString(v any) (string, bool) {
	if v == nil {
		return "", true
	}
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}

// anyToString converts any value to its display representation
func anyToString(v any) string {
	if v == nil {
		return StringValueEmpty
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return StringValueTrue
		}
		return StringValueFalse
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, IntBase10)
	case float64:
		return strconv.FormatFloat(val, FloatFormatFlag, FloatPrecisionAll, FloatBitSize64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// FormatValue renders a value the way template output shows it
func FormatValue(v any) string {
	return anyToString(v)
}

// toNumber converts any Go numeric kind to float64
func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case nil, bool, string:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// anyToInt converts any value to an integer
func anyToInt(v any, funcName string, argIndex int) (int, error) {
	if v == nil {
		return 0, nil
	}
	if n, ok := toNumber(v); ok {
		return int(n), nil
	}
	switch val := v.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, NewFuncTypeError(ErrMsgFuncConversionFailed, funcName, argIndex)
		}
		return n, nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, NewFuncTypeError(ErrMsgFuncConversionFailed, funcName, argIndex)
	}
}

// anyToFloat converts any value to a float64
func anyToFloat(v any, funcName string, argIndex int) (float64, error) {
	if v == nil {
		return 0, nil
	}
	if n, ok := toNumber(v); ok {
		return n, nil
	}
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), FloatBitSize64)
		if err != nil {
			return 0, NewFuncTypeError(ErrMsgFuncConversionFailed, funcName, argIndex)
		}
		return f, nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, NewFuncTypeError(ErrMsgFuncConversionFailed, funcName, argIndex)
	}
}

// isTruthy determines the truthiness of a value:
// nil is false, strings and collections are true when non-empty,
// numbers when non-zero, pointers when non-nil.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return len(val) > 0
	}
	if n, ok := toNumber(v); ok {
		return n != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}

// IsTruthy exposes truthiness to the runtime
func IsTruthy(v any) bool {
	return isTruthy(v)
}

// isEmpty checks if a value is nil or has zero length
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return len(s) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// isBlank reports nil, empty or whitespace-only values
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	return strings.TrimSpace(anyToString(v)) == ""
}

// getLength returns the length of strings, slices, arrays and maps
func getLength(v any, funcName string, argIndex int) (int, error) {
	if v == nil {
		return 0, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len(), nil
	default:
		return 0, NewFuncTypeError(ErrMsgFuncExpectedSlice, funcName, argIndex)
	}
}

// toSlice converts slices and arrays of any element type to []any
func toSlice(v any, funcName string, argIndex int) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.([]any); ok {
		return s, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, NewFuncTypeError(ErrMsgFuncExpectedSlice, funcName, argIndex)
	}
	result := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		result[i] = rv.Index(i).Interface()
	}
	return result, nil
}
