package internal

import (
	"fmt"
	"sort"
	"sync"
)

// Func represents a callable function in expressions. Group is the import
// name a template must list to see the function.
type Func struct {
	Name    string
	Group   string
	MinArgs int
	MaxArgs int // -1 for variadic
	Fn      func(args []any) (any, error)
}

// FuncRegistry manages registered functions
type FuncRegistry struct {
	funcs map[string]*Func
	mu    sync.RWMutex
}

// NewFuncRegistry creates a new empty function registry
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{
		funcs: make(map[string]*Func),
	}
}

// NewImportedRegistry creates a registry holding the builtin and extra
// functions whose group appears in imports.
func NewImportedRegistry(imports []string, extra ...*Func) *FuncRegistry {
	allowed := make(map[string]bool, len(imports))
	for _, imp := range imports {
		allowed[imp] = true
	}

	r := NewFuncRegistry()
	for _, f := range append(BuiltinFuncs(), extra...) {
		if allowed[f.Group] {
			r.MustRegister(f)
		}
	}
	return r
}

// Register adds a function to the registry
func (r *FuncRegistry) Register(f *Func) error {
	if f == nil {
		return NewFuncRegistryError(ErrMsgFuncNilFunc, "")
	}
	if f.Name == "" {
		return NewFuncRegistryError(ErrMsgFuncEmptyName, "")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[f.Name]; exists {
		return NewFuncRegistryError(ErrMsgFuncAlreadyExists, f.Name)
	}

	r.funcs[f.Name] = f
	return nil
}

// MustRegister adds a function and panics on error
func (r *FuncRegistry) MustRegister(f *Func) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

// Get retrieves a function by name
func (r *FuncRegistry) Get(name string) (*Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.funcs[name]
	return f, ok
}

// Has checks if a function is registered
func (r *FuncRegistry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Call invokes a function by name with the given arguments
func (r *FuncRegistry) Call(name string, args []any) (any, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, NewFuncError(ErrMsgFuncNotFound, name)
	}

	if err := checkArity(f, len(args)); err != nil {
		return nil, err
	}

	result, err := f.Fn(args)
	if err == nil {
		err = checkResultSize(name, result)
	}
	if err != nil {
		return nil, NewFuncExecError(name, err)
	}

	return result, nil
}

// List returns all registered function names, sorted
func (r *FuncRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered functions
func (r *FuncRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.funcs)
}

func checkArity(f *Func, argCount int) error {
	if argCount < f.MinArgs {
		return NewFuncArgError(ErrMsgFuncTooFewArgs, f.Name, f.MinArgs, argCount)
	}
	if f.MaxArgs >= 0 && argCount > f.MaxArgs {
		return NewFuncArgError(ErrMsgFuncTooManyArgs, f.Name, f.MaxArgs, argCount)
	}
	return nil
}

// BuiltinFuncs returns every builtin function across all groups
func BuiltinFuncs() []*Func {
	var funcs []*Func
	funcs = append(funcs, systemFuncs()...)
	funcs = append(funcs, textFuncs()...)
	funcs = append(funcs, collectionFuncs()...)
	funcs = append(funcs, linqFuncs()...)
	funcs = append(funcs, displayFuncs()...)
	funcs = append(funcs, htmlFuncs()...)
	return funcs
}

// FuncGroupOf reports the group a builtin or extra function belongs to
func FuncGroupOf(name string, extra ...*Func) (string, bool) {
	for _, f := range append(BuiltinFuncs(), extra...) {
		if f.Name == name {
			return f.Group, true
		}
	}
	return "", false
}

// FuncRegistryError represents a function registry error
type FuncRegistryError struct {
	Message  string
	FuncName string
}

// NewFuncRegistryError creates a new function registry error
func NewFuncRegistryError(message, funcName string) *FuncRegistryError {
	return &FuncRegistryError{
		Message:  message,
		FuncName: funcName,
	}
}

// Error implements the error interface
func (e *FuncRegistryError) Error() string {
	if e.FuncName != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.FuncName)
	}
	return e.Message
}

// FuncError represents a function lookup error
type FuncError struct {
	Message  string
	FuncName string
}

// NewFuncError creates a new function error
func NewFuncError(message, funcName string) *FuncError {
	return &FuncError{
		Message:  message,
		FuncName: funcName,
	}
}

// Error implements the error interface
func (e *FuncError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.FuncName)
}

// FuncArgError represents a function argument count error
type FuncArgError struct {
	Message  string
	FuncName string
	Expected int
	Actual   int
}

// NewFuncArgError creates a new function argument error
func NewFuncArgError(message, funcName string, expected, actual int) *FuncArgError {
	return &FuncArgError{
		Message:  message,
		FuncName: funcName,
		Expected: expected,
		Actual:   actual,
	}
}

// Error implements the error interface
func (e *FuncArgError) Error() string {
	return fmt.Sprintf("%s: %s (expected %d, got %d)", e.Message, e.FuncName, e.Expected, e.Actual)
}

// FuncExecError represents a function execution error
type FuncExecError struct {
	FuncName string
	Cause    error
}

// NewFuncExecError creates a new function execution error
func NewFuncExecError(funcName string, cause error) *FuncExecError {
	return &FuncExecError{
		FuncName: funcName,
		Cause:    cause,
	}
}

// Error implements the error interface
func (e *FuncExecError) Error() string {
	return fmt.Sprintf("function %s failed: %v", e.FuncName, e.Cause)
}

// Unwrap returns the underlying error
func (e *FuncExecError) Unwrap() error {
	return e.Cause
}

// FuncTypeError represents a type error in function arguments
type FuncTypeError struct {
	Message  string
	FuncName string
	ArgIndex int
}

// NewFuncTypeError creates a new function type error
func NewFuncTypeError(message, funcName string, argIndex int) *FuncTypeError {
	return &FuncTypeError{
		Message:  message,
		FuncName: funcName,
		ArgIndex: argIndex,
	}
}

// Error implements the error interface
func (e *FuncTypeError) Error() string {
	return fmt.Sprintf("%s: %s (argument %d)", e.Message, e.FuncName, e.ArgIndex)
}

// Function error messages
const (
	ErrMsgFuncNilFunc           = "function cannot be nil"
	ErrMsgFuncEmptyName         = "function name cannot be empty"
	ErrMsgFuncAlreadyExists     = "function already registered"
	ErrMsgFuncNotFound          = "function not found"
	ErrMsgFuncTooFewArgs        = "too few arguments"
	ErrMsgFuncTooManyArgs       = "too many arguments"
	ErrMsgFuncExpectedString    = "expected string argument"
	ErrMsgFuncExpectedSlice     = "expected slice or array argument"
	ErrMsgFuncExpectedMap       = "expected map argument"
	ErrMsgFuncExpectedStringKey = "expected string key"
	ErrMsgFuncExpectedNumber    = "expected numeric argument"
	ErrMsgFuncConversionFailed  = "type conversion failed"
)

// Argument index constants for error reporting
const (
	ArgIndexFirst  = 0
	ArgIndexSecond = 1
	ArgIndexThird  = 2
)

// checkLen fails when n exceeds limit
func checkLen(what string, n, limit int) error {
	if n > limit || n < 0 {
		return NewExprEvalError(ErrMsgValueTooLarge, fmt.Sprintf("%s: %d > %d", what, n, limit))
	}
	return nil
}

// checkResultSize bounds what a builtin hands back to template code
func checkResultSize(name string, result any) error {
	switch v := result.(type) {
	case string:
		return checkLen(name, len(v), MaxStringLen)
	case []any:
		return checkLen(name, len(v), MaxCollectionLen)
	case []string:
		return checkLen(name, len(v), MaxCollectionLen)
	}
	return nil
}
