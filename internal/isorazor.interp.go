package internal

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrAborted is returned when execution is stopped from outside
var ErrAborted = errors.New(ErrMsgAborted)

// Output receives what a program writes
type Output interface {
	WriteLiteral(text string)
	Write(value any)
	WriteAttribute(attr *Attribute, values []AttrValue)
}

// AttrValue is an evaluated attribute segment
type AttrValue struct {
	Prefix  Tagged
	Value   any
	Literal bool
}

// Host supplies the template members a program can reach: Model, ViewBag,
// Layout and the runtime calls such as Include and RenderSection.
type Host interface {
	Member(name string) (any, bool)
	SetMember(path string, value any) error
	CallMember(name string, args []any) (result any, handled bool, err error)
	DefineSection(name string, render func(out Output) error)
}

// Getter is implemented by values that expose dynamic members
type Getter interface {
	Get(name string) (any, bool)
}

// KeyValue is the loop variable when iterating a map
type KeyValue struct {
	Key   string
	Value any
}

// ExecError locates a failure in the template source
type ExecError struct {
	Expr     string
	Position Position
	Err      error
}

// Error implements the error interface
func (e *ExecError) Error() string {
	if e.Expr == "" {
		return fmt.Sprintf("%v (%s)", e.Err, e.Position)
	}
	return fmt.Sprintf("%v in %q (%s)", e.Err, e.Expr, e.Position)
}

// Unwrap returns the underlying error
func (e *ExecError) Unwrap() error {
	return e.Err
}

// Interpreter executes a linked Program against a Host
type Interpreter struct {
	program *Program
	host    Host
	eval    *ExprEvaluator
	out     Output
	scopes  []map[string]any
	stop    func() bool
	logger  *zap.Logger
}

// NewInterpreter creates an interpreter. funcs holds the functions the
// program imported.
func NewInterpreter(program *Program, funcs *FuncRegistry, host Host, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	in := &Interpreter{
		program: program,
		host:    host,
		logger:  logger,
	}
	in.eval = NewExprEvaluator(funcs, in)
	return in
}

// WithStop installs a check consulted before every node and loop
// iteration. Execution ends with ErrAborted once it returns true.
func (in *Interpreter) WithStop(stop func() bool) *Interpreter {
	in.stop = stop
	return in
}

// Execute runs the program, writing to out
func (in *Interpreter) Execute(out Output) error {
	if err := in.program.Link(); err != nil {
		return err
	}
	in.logger.Debug(LogMsgExecStart, zap.Int(LogFieldNodes, in.program.CountNodes()))

	in.out = out
	in.scopes = []map[string]any{{}}
	err := in.execNodes(in.program.Nodes)
	if errors.Is(err, ErrAborted) {
		in.logger.Debug(LogMsgExecAborted)
	}
	return err
}

func (in *Interpreter) aborted() bool {
	return in.stop != nil && in.stop()
}

func (in *Interpreter) pushScope() {
	in.scopes = append(in.scopes, map[string]any{})
}

func (in *Interpreter) popScope() {
	in.scopes = in.scopes[:len(in.scopes)-1]
}

// execScoped runs nodes in a fresh variable scope
func (in *Interpreter) execScoped(nodes []*Node, vars map[string]any) error {
	in.pushScope()
	defer in.popScope()
	for k, v := range vars {
		in.scopes[len(in.scopes)-1][k] = v
	}
	return in.execNodes(nodes)
}

func (in *Interpreter) execNodes(nodes []*Node) error {
	for _, node := range nodes {
		if in.aborted() {
			return ErrAborted
		}
		if err := in.execNode(node); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interpreter) execNode(node *Node) error {
	switch node.Kind {
	case NodeKindText:
		in.out.WriteLiteral(node.Text)
		return nil

	case NodeKindExpr:
		val, err := in.evaluate(node.Expr, node.Pos)
		if err != nil {
			return err
		}
		in.out.Write(val)
		return nil

	case NodeKindEval:
		_, err := in.evaluate(node.Expr, node.Pos)
		return err

	case NodeKindAssign:
		val, err := in.evaluate(node.Expr, node.Pos)
		if err != nil {
			return err
		}
		if err := in.assign(node.Var, val, node.Declare); err != nil {
			return &ExecError{Expr: node.Var, Position: node.Pos, Err: err}
		}
		return nil

	case NodeKindIf:
		cond, err := in.evaluate(node.Expr, node.Pos)
		if err != nil {
			return err
		}
		if isTruthy(cond) {
			return in.execScoped(node.Children, nil)
		}
		return in.execScoped(node.Else, nil)

	case NodeKindForeach:
		return in.execForeach(node)

	case NodeKindWhile:
		return in.execWhile(node)

	case NodeKindSection:
		in.defineSection(node)
		return nil

	case NodeKindAttribute:
		return in.execAttribute(node)

	default:
		return &ExecError{Position: node.Pos, Err: fmt.Errorf("unknown node kind %q", node.Kind)}
	}
}

func (in *Interpreter) evaluate(source string, pos Position) (any, error) {
	expr, ok := in.program.Expr(source)
	if !ok {
		return nil, &ExecError{Expr: source, Position: pos, Err: errors.New(ErrMsgUnlinkedExpr)}
	}
	val, err := in.eval.Evaluate(expr)
	if err != nil {
		var located *ExecError
		if errors.As(err, &located) || errors.Is(err, ErrAborted) {
			return nil, err
		}
		return nil, &ExecError{Expr: source, Position: pos, Err: err}
	}
	return val, nil
}

func (in *Interpreter) execForeach(node *Node) error {
	source, err := in.evaluate(node.Expr, node.Pos)
	if err != nil {
		return err
	}
	items, err := iterate(source)
	if err != nil {
		return &ExecError{Expr: node.Expr, Position: node.Pos, Err: err}
	}
	for _, item := range items {
		if in.aborted() {
			return ErrAborted
		}
		if err := in.execScoped(node.Children, map[string]any{node.Var: item}); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interpreter) execWhile(node *Node) error {
	for {
		if in.aborted() {
			return ErrAborted
		}
		cond, err := in.evaluate(node.Expr, node.Pos)
		if err != nil {
			return err
		}
		if !isTruthy(cond) {
			return nil
		}
		if err := in.execScoped(node.Children, nil); err != nil {
			return err
		}
	}
}

// defineSection registers the section body with the host. The body runs
// later, when a layout renders it, against the scope it was defined in.
func (in *Interpreter) defineSection(node *Node) {
	captured := append([]map[string]any(nil), in.scopes...)
	in.host.DefineSection(node.Text, func(out Output) error {
		savedOut, savedScopes := in.out, in.scopes
		in.out, in.scopes = out, captured
		defer func() {
			in.out, in.scopes = savedOut, savedScopes
		}()
		return in.execScoped(node.Children, nil)
	})
}

func (in *Interpreter) execAttribute(node *Node) error {
	values := make([]AttrValue, len(node.Attr.Segments))
	for i, seg := range node.Attr.Segments {
		if seg.Literal {
			values[i] = AttrValue{Prefix: seg.Prefix, Value: seg.Text, Literal: true}
			continue
		}
		val, err := in.evaluate(seg.Expr, node.Pos)
		if err != nil {
			return err
		}
		values[i] = AttrValue{Prefix: seg.Prefix, Value: val}
	}
	in.out.WriteAttribute(node.Attr, values)
	return nil
}

// assign stores a local variable or forwards the write to the host
func (in *Interpreter) assign(target string, val any, declare bool) error {
	if declare {
		in.scopes[len(in.scopes)-1][target] = val
		return nil
	}
	if !strings.Contains(target, ".") {
		for i := len(in.scopes) - 1; i >= 0; i-- {
			if _, ok := in.scopes[i][target]; ok {
				in.scopes[i][target] = val
				return nil
			}
		}
	}
	if err := in.host.SetMember(target, val); err != nil {
		return fmt.Errorf("%s %s: %w", ErrMsgCannotAssign, target, err)
	}
	return nil
}

// Get resolves a dotted member path against locals and then the host
func (in *Interpreter) Get(path string) (any, bool) {
	head, rest, _ := strings.Cut(path, ".")

	var val any
	found := false
	for i := len(in.scopes) - 1; i >= 0; i-- {
		if v, ok := in.scopes[i][head]; ok {
			val, found = v, true
			break
		}
	}
	if !found {
		val, found = in.host.Member(head)
	}
	if !found {
		return nil, false
	}

	for rest != "" {
		var name string
		name, rest, _ = strings.Cut(rest, ".")
		v, ok := ResolveMember(val, name)
		if !ok {
			return nil, false
		}
		val = v
	}
	return val, true
}

// CallMember dispatches runtime members and method calls on values
func (in *Interpreter) CallMember(name string, args []any) (any, bool, error) {
	if in.aborted() {
		return nil, true, ErrAborted
	}

	recvPath, method, dotted := cutLast(name, ".")
	if !dotted {
		return in.host.CallMember(name, args)
	}

	recv, ok := in.Get(recvPath)
	if !ok || recv == nil {
		return nil, true, fmt.Errorf("%s %s: receiver %s is nil", ErrMsgUnknownMethod, method, recvPath)
	}
	result, err := callMethod(recv, method, args)
	return result, true, err
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// ResolveMember looks up one member of a value: a Getter member, a map
// entry, an exported struct field, a zero-argument method, or Count and
// Length on collections.
func ResolveMember(v any, name string) (any, bool) {
	if v == nil {
		return nil, false
	}
	if g, ok := v.(Getter); ok {
		if val, found := g.Get(name); found {
			return val, true
		}
	}

	rv := reflect.ValueOf(v)
	if m := rv.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 {
		if val, err := callReflect(m, nil); err == nil {
			return val, true
		}
		return nil, false
	}

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			if val := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key())); val.IsValid() {
				return val.Interface(), true
			}
		}
	case reflect.Struct:
		if f, ok := rv.Type().FieldByName(name); ok && f.IsExported() {
			return rv.FieldByIndex(f.Index).Interface(), true
		}
	}

	if name == MemberCount || name == MemberLength {
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
			return rv.Len(), true
		}
	}
	return nil, false
}

// callMethod invokes an exported method by name with converted arguments
func callMethod(recv any, name string, args []any) (any, error) {
	m := reflect.ValueOf(recv).MethodByName(name)
	if !m.IsValid() {
		return nil, fmt.Errorf("%s %s on %T", ErrMsgUnknownMethod, name, recv)
	}

	mt := m.Type()
	if (!mt.IsVariadic() && len(args) != mt.NumIn()) || (mt.IsVariadic() && len(args) < mt.NumIn()-1) {
		return nil, fmt.Errorf("%s %s: expected %d arguments, got %d", ErrMsgMethodFailed, name, mt.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var want reflect.Type
		if mt.IsVariadic() && i >= mt.NumIn()-1 {
			want = mt.In(mt.NumIn() - 1).Elem()
		} else {
			want = mt.In(i)
		}
		v, err := convertArg(arg, want)
		if err != nil {
			return nil, fmt.Errorf("%s %s: argument %d: %w", ErrMsgMethodFailed, name, i, err)
		}
		in[i] = v
	}
	return callReflect(m, in)
}

// callReflect calls m and folds a trailing error result into the return
func callReflect(m reflect.Value, args []reflect.Value) (any, error) {
	out := m.Call(args)
	errType := reflect.TypeOf((*error)(nil)).Elem()

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if out[0].Type() == errType {
			if err, _ := out[0].Interface().(error); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		if last.Type() == errType && !last.IsNil() {
			return nil, last.Interface().(error)
		}
		return out[0].Interface(), nil
	}
}

// convertArg adapts an expression value to a parameter type. Numbers in
// expressions are float64 and are converted to the parameter's kind.
func convertArg(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch want.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("nil is not assignable to %s", want)
	}

	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(want) {
		return v, nil
	}
	if n, ok := toNumber(arg); ok {
		switch want.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return reflect.ValueOf(n).Convert(want), nil
		}
	}
	if want.Kind() == reflect.String {
		return reflect.ValueOf(anyToString(arg)).Convert(want), nil
	}
	return reflect.Value{}, fmt.Errorf("%T is not assignable to %s", arg, want)
}

// iterate turns a foreach source into loop items. Maps iterate as KeyValue
// pairs in key order; nil iterates nothing.
func iterate(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return items, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		items := make([]any, len(keys))
		for i, k := range keys {
			items[i] = KeyValue{Key: fmt.Sprint(k.Interface()), Value: rv.MapIndex(k).Interface()}
		}
		return items, nil
	}
	return nil, fmt.Errorf("%s: %T", ErrMsgNotIterable, v)
}
