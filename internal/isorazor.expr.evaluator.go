package internal

import (
	"fmt"
	"math"
)

// ContextAccessor resolves member paths during evaluation
type ContextAccessor interface {
	Get(path string) (any, bool)
}

// MemberCaller handles calls that are not plain registry functions, such
// as runtime members (Raw, Include) and methods on values (Model.Greet).
// handled is false when the name is not a member call.
type MemberCaller interface {
	CallMember(name string, args []any) (result any, handled bool, err error)
}

// ExprEvaluator evaluates expression AST nodes
type ExprEvaluator struct {
	funcs *FuncRegistry
	ctx   ContextAccessor
}

// NewExprEvaluator creates a new expression evaluator
func NewExprEvaluator(funcs *FuncRegistry, ctx ContextAccessor) *ExprEvaluator {
	return &ExprEvaluator{
		funcs: funcs,
		ctx:   ctx,
	}
}

// Evaluate evaluates an expression and returns the result
func (e *ExprEvaluator) Evaluate(node ExprNode) (any, error) {
	if node == nil {
		return nil, NewExprEvalError(ErrMsgExprNilNode, "")
	}

	switch n := node.(type) {
	case *LiteralNode:
		return n.Value, nil
	case *IdentifierNode:
		return e.evaluateIdentifier(n)
	case *UnaryNode:
		return e.evaluateUnary(n)
	case *BinaryNode:
		return e.evaluateBinary(n)
	case *CallNode:
		return e.evaluateCall(n)
	default:
		return nil, NewExprEvalError(ErrMsgExprUnknownNodeType, fmt.Sprintf("%T", node))
	}
}

// EvaluateBool evaluates an expression and coerces the result to a boolean
func (e *ExprEvaluator) EvaluateBool(node ExprNode) (bool, error) {
	result, err := e.Evaluate(node)
	if err != nil {
		return false, err
	}
	return isTruthy(result), nil
}

func (e *ExprEvaluator) evaluateIdentifier(node *IdentifierNode) (any, error) {
	if e.ctx == nil {
		return nil, NewExprEvalError(ErrMsgExprNoContext, node.Name)
	}

	// missing members evaluate to nil
	val, _ := e.ctx.Get(node.Name)
	return val, nil
}

func (e *ExprEvaluator) evaluateUnary(node *UnaryNode) (any, error) {
	right, err := e.Evaluate(node.Right)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case ExprTokenTypeNot:
		return !isTruthy(right), nil
	case ExprTokenTypeMinus:
		n, ok := toNumber(right)
		if !ok {
			return nil, NewExprEvalError(ErrMsgExprNotNumeric, fmt.Sprintf("%T", right))
		}
		return -n, nil
	default:
		return nil, NewExprEvalError(ErrMsgExprUnknownOperator, string(node.Op))
	}
}

func (e *ExprEvaluator) evaluateBinary(node *BinaryNode) (any, error) {
	if node.Op == ExprTokenTypeAnd || node.Op == ExprTokenTypeOr {
		left, err := e.Evaluate(node.Left)
		if err != nil {
			return nil, err
		}
		if node.Op == ExprTokenTypeAnd && !isTruthy(left) {
			return false, nil
		}
		if node.Op == ExprTokenTypeOr && isTruthy(left) {
			return true, nil
		}
		right, err := e.Evaluate(node.Right)
		if err != nil {
			return nil, err
		}
		return isTruthy(right), nil
	}

	left, err := e.Evaluate(node.Left)
	if err != nil {
		return nil, err
	}

	right, err := e.Evaluate(node.Right)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case ExprTokenTypeEq:
		return compareEqual(left, right), nil
	case ExprTokenTypeNeq:
		return !compareEqual(left, right), nil
	case ExprTokenTypeLt:
		return compareLess(left, right)
	case ExprTokenTypeGt:
		return compareLess(right, left)
	case ExprTokenTypeLte:
		result, err := compareLess(right, left)
		if err != nil {
			return nil, err
		}
		return !result, nil
	case ExprTokenTypeGte:
		result, err := compareLess(left, right)
		if err != nil {
			return nil, err
		}
		return !result, nil
	case ExprTokenTypePlus, ExprTokenTypeMinus, ExprTokenTypeStar, ExprTokenTypeSlash, ExprTokenTypePercent:
		return arithmetic(node.Op, left, right)
	default:
		return nil, NewExprEvalError(ErrMsgExprUnknownOperator, string(node.Op))
	}
}

func (e *ExprEvaluator) evaluateCall(node *CallNode) (any, error) {
	args := make([]any, len(node.Args))
	for i, argNode := range node.Args {
		val, err := e.Evaluate(argNode)
		if err != nil {
			return nil, err
		}
		args[i] = val
	}

	if caller, ok := e.ctx.(MemberCaller); ok {
		result, handled, err := caller.CallMember(node.Name, args)
		if handled {
			return result, err
		}
	}

	if e.funcs == nil {
		return nil, NewExprEvalError(ErrMsgExprNoFuncRegistry, node.Name)
	}
	return e.funcs.Call(node.Name, args)
}

// arithmetic applies + - * / %. A + with a string operand concatenates.
func arithmetic(op ExprTokenType, left, right any) (any, error) {
	if op == ExprTokenTypePlus {
		_, lStr := left.(string)
		_, rStr := right.(string)
		if lStr || rStr {
			ls, rs := anyToString(left), anyToString(right)
			if err := checkLen(string(op), len(ls)+len(rs), MaxStringLen); err != nil {
				return nil, err
			}
			return ls + rs, nil
		}
	}

	l, lok := toNumber(left)
	r, rok := toNumber(right)
	if !lok || !rok {
		return nil, NewExprEvalError(ErrMsgExprNotNumeric, fmt.Sprintf("%T %s %T", left, op, right))
	}

	switch op {
	case ExprTokenTypePlus:
		return l + r, nil
	case ExprTokenTypeMinus:
		return l - r, nil
	case ExprTokenTypeStar:
		return l * r, nil
	case ExprTokenTypeSlash:
		if r == 0 {
			return nil, NewExprEvalError(ErrMsgDivideByZero, "")
		}
		return l / r, nil
	default:
		if r == 0 {
			return nil, NewExprEvalError(ErrMsgDivideByZero, "")
		}
		return math.Mod(l, r), nil
	}
}

// compareEqual checks if two values are equal
func compareEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	aNum, aIsNum := toNumber(a)
	bNum, bIsNum := toNumber(b)
	if aIsNum && bIsNum {
		return aNum == bNum
	}

	aStr, aIsStr := toString(a)
	bStr, bIsStr := toString(b)
	if aIsStr && bIsStr {
		return aStr == bStr
	}

	aBool, aIsBool := a.(bool)
	bBool, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		return aBool == bBool
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareLess checks if a < b
func compareLess(a, b any) (bool, error) {
	aNum, aIsNum := toNumber(a)
	bNum, bIsNum := toNumber(b)
	if aIsNum && bIsNum {
		return aNum < bNum, nil
	}

	aStr, aIsStr := toString(a)
	bStr, bIsStr := toString(b)
	if aIsStr && bIsStr {
		return aStr < bStr, nil
	}

	return false, NewExprEvalError(ErrMsgExprTypeMismatch, fmt.Sprintf("cannot compare %T and %T", a, b))
}

// ExprEvalError represents an expression evaluation error
type ExprEvalError struct {
	Message string
	Detail  string
}

// NewExprEvalError creates a new expression evaluation error
func NewExprEvalError(message, detail string) *ExprEvalError {
	return &ExprEvalError{
		Message: message,
		Detail:  detail,
	}
}

// Error implements the error interface
func (e *ExprEvalError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Expression evaluator error messages
const (
	ErrMsgExprNilNode         = "nil expression node"
	ErrMsgExprUnknownNodeType = "unknown expression node type"
	ErrMsgExprNoContext       = "no context available for member lookup"
	ErrMsgExprUnknownOperator = "unknown operator"
	ErrMsgExprNoFuncRegistry  = "no function registry available"
	ErrMsgExprTypeMismatch    = "type mismatch in comparison"
	ErrMsgExprNotNumeric      = "operand is not numeric"
)
