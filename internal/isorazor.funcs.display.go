package internal

import (
	"fmt"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// Isorazor group function names
const (
	FuncNameHideIfNullOrWhiteSpace       = "HideIfNullOrWhiteSpace"
	FuncNameDisplayIfNotNullOrWhiteSpace = "DisplayIfNotNullOrWhiteSpace"
	FuncNameHideIfNotEqual               = "HideIfNotEqual"
	FuncNameDisplayIfEqual               = "DisplayIfEqual"
)

// Html group function names
const (
	FuncNameSanitize  = "Sanitize"
	FuncNameStripTags = "StripTags"
)

// SafeHTML is markup that must not be escaped again on output
type SafeHTML string

// EncodedString returns the markup unchanged
func (s SafeHTML) EncodedString() string { return string(s) }

// String implements fmt.Stringer
func (s SafeHTML) String() string { return string(s) }

func cssDisplay(value any) string {
	display := CSSDisplayInherit
	if s, ok := toString(value); ok && s != "" {
		display = s
	}
	return fmt.Sprintf(CSSDisplayFormat, display)
}

func displayFuncs() []*Func {
	return []*Func{
		{
			// hidden only when every argument is blank
			Name: FuncNameHideIfNullOrWhiteSpace, Group: GroupIsorazor, MinArgs: 1, MaxArgs: -1,
			Fn: func(args []any) (any, error) {
				for _, arg := range args {
					if !isBlank(arg) {
						return StringValueEmpty, nil
					}
				}
				return CSSDisplayNone, nil
			},
		},
		{
			Name: FuncNameDisplayIfNotNullOrWhiteSpace, Group: GroupIsorazor, MinArgs: 1, MaxArgs: 2,
			Fn: func(args []any) (any, error) {
				if isBlank(args[ArgIndexFirst]) {
					return CSSDisplayNone, nil
				}
				var display any
				if len(args) > 1 {
					display = args[ArgIndexSecond]
				}
				return cssDisplay(display), nil
			},
		},
		{
			Name: FuncNameHideIfNotEqual, Group: GroupIsorazor, MinArgs: 2, MaxArgs: 2,
			Fn: func(args []any) (any, error) {
				if compareEqual(args[ArgIndexFirst], args[ArgIndexSecond]) {
					return StringValueEmpty, nil
				}
				return CSSDisplayNone, nil
			},
		},
		{
			Name: FuncNameDisplayIfEqual, Group: GroupIsorazor, MinArgs: 2, MaxArgs: 3,
			Fn: func(args []any) (any, error) {
				if !compareEqual(args[ArgIndexFirst], args[ArgIndexSecond]) {
					return CSSDisplayNone, nil
				}
				var display any
				if len(args) > 2 {
					display = args[ArgIndexThird]
				}
				return cssDisplay(display), nil
			},
		},
	}
}

var (
	ugcPolicy     *bluemonday.Policy
	ugcPolicyOnce sync.Once

	strictPolicy     *bluemonday.Policy
	strictPolicyOnce sync.Once
)

func sanitizePolicy() *bluemonday.Policy {
	ugcPolicyOnce.Do(func() {
		ugcPolicy = bluemonday.UGCPolicy()
	})
	return ugcPolicy
}

func stripPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

func htmlFuncs() []*Func {
	return []*Func{
		{
			// Sanitize keeps safe markup and returns it pre-encoded
			Name: FuncNameSanitize, Group: GroupHtml, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return SafeHTML(sanitizePolicy().Sanitize(anyToString(args[ArgIndexFirst]))), nil
			},
		},
		{
			// StripTags drops all markup; the result is already entity-escaped
			Name: FuncNameStripTags, Group: GroupHtml, MinArgs: 1, MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return SafeHTML(stripPolicy().Sanitize(anyToString(args[ArgIndexFirst]))), nil
			},
		},
	}
}
