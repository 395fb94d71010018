package eval

import (
	"fmt"
	"strconv"

	"github.com/zhiayang/ikura/pkg/lang/ast"
	"github.com/zhiayang/ikura/pkg/lang/lexer"
	"github.com/zhiayang/ikura/pkg/value"
)

// reservedDollars are the computed-from-context names spec.md §4.6
// step 2 of $name resolution lists, ahead of globals/builtins/commands.
var reservedDollars = map[string]struct{}{
	"user": {}, "self": {}, "channel": {}, "args": {}, "raw_args": {},
}

// Eval walks a single AST node to a Value, following spec.md §4.6.
func Eval(node ast.Expr, ctx *Context, scope *Scope) (value.Value, error) {
	switch n := node.(type) {
	case *ast.LitVoid:
		return value.NewVoid(), nil
	case *ast.LitBool:
		return value.NewBool(n.Value), nil
	case *ast.LitChar:
		return value.NewChar(n.Value), nil
	case *ast.LitInteger:
		if n.Imag {
			return value.NewComplex(complex(0, float64(n.Value))), nil
		}
		return value.NewInt(n.Value), nil
	case *ast.LitDouble:
		if n.Imag {
			return value.NewComplex(complex(0, n.Value)), nil
		}
		return value.NewDouble(n.Value), nil
	case *ast.LitString:
		return value.NewString(n.Value), nil
	case *ast.LitList:
		return evalList(n, ctx, scope)
	case *ast.Ident:
		return evalIdent(n, ctx, scope)
	case *ast.Dollar:
		return evalDollar(n, ctx, scope)
	case *ast.UnaryOp:
		v, err := Eval(n.Expr, ctx, scope)
		if err != nil {
			return value.Value{}, err
		}
		return unaryOp(n.Op, v)
	case *ast.BinaryOp:
		if n.Op == lexer.Pipeline {
			return evalPipeline(n, ctx, scope)
		}
		l, err := Eval(n.Lhs, ctx, scope)
		if err != nil {
			return value.Value{}, err
		}
		r, err := Eval(n.Rhs, ctx, scope)
		if err != nil {
			return value.Value{}, err
		}
		return binaryOp(n.Op, n.Text, l, r)
	case *ast.ComparisonOp:
		return evalComparison(n, ctx, scope)
	case *ast.AssignOp:
		return evalAssign(n, ctx, scope)
	case *ast.TernaryOp:
		return evalTernary(n, ctx, scope)
	case *ast.DotOp:
		return evalDot(n, ctx, scope)
	case *ast.FunctionCall:
		return evalCall(n, ctx, scope)
	case *ast.SubscriptOp:
		lhs, err := Eval(n.Lhs, ctx, scope)
		if err != nil {
			return value.Value{}, err
		}
		idx, err := Eval(n.Index, ctx, scope)
		if err != nil {
			return value.Value{}, err
		}
		return evalSubscript(lhs, idx)
	case *ast.SliceOp:
		return evalSliceNode(n, ctx, scope)
	case *ast.SplatOp:
		return Eval(n.Expr, ctx, scope)
	default:
		return value.Value{}, fmt.Errorf("unhandled expression node %T", node)
	}
}

func evalList(n *ast.LitList, ctx *Context, scope *Scope) (value.Value, error) {
	items := make([]value.Value, 0, len(n.Elems))
	var elemType *value.Type
	for _, e := range n.Elems {
		v, err := Eval(e, ctx, scope)
		if err != nil {
			return value.Value{}, err
		}
		if elemType == nil {
			elemType = v.Type()
		}
		items = append(items, v)
	}
	return value.NewList(elemType, items), nil
}

// evalIdent resolves a bare (non-$) identifier: these name local
// bindings (function parameters), process globals, builtins, or
// commands — the same fallthrough chain as $name minus the
// context-computed and positional-argument cases, which only apply to
// the $ form.
func evalIdent(n *ast.Ident, ctx *Context, scope *Scope) (value.Value, error) {
	if v, ok := scope.Lookup(n.Name); ok {
		return v, nil
	}
	if v, ok := ctx.Env.Global(n.Name); ok {
		return v, nil
	}
	if v, ok := ctx.Env.BuiltinFunction(n.Name); ok {
		return v, nil
	}
	if v, ok := ctx.Env.LookupCommand(n.Name); ok {
		return v, nil
	}
	return value.Value{}, fmt.Errorf("undefined identifier %q", n.Name)
}

// evalDollar implements the five-step $name resolution order of
// spec.md §4.6.
func evalDollar(n *ast.Dollar, ctx *Context, scope *Scope) (value.Value, error) {
	if idx, ok := positionalIndex(n.Name); ok {
		if idx < 1 || idx > len(ctx.Args) {
			return value.Value{}, fmt.Errorf("positional argument $%d out of range (have %d)", idx, len(ctx.Args))
		}
		return value.NewString(ctx.Args[idx-1]), nil
	}

	switch n.Name {
	case "user", "self":
		return value.NewString(ctx.CallerDisplayName), nil
	case "channel":
		return value.NewString(ctx.Channel.ID), nil
	case "args":
		items := make([]value.Value, len(ctx.Args))
		for i, a := range ctx.Args {
			items[i] = value.NewString(a)
		}
		return value.NewList(value.String(), items), nil
	case "raw_args":
		return value.NewString(ctx.RawArgs), nil
	}

	if v, ok := scope.Lookup(n.Name); ok {
		return v, nil
	}
	if v, ok := ctx.Env.Global(n.Name); ok {
		return v, nil
	}
	if v, ok := ctx.Env.BuiltinFunction(n.Name); ok {
		return v, nil
	}
	if v, ok := ctx.Env.LookupCommand(n.Name); ok {
		return v, nil
	}
	return value.Value{}, fmt.Errorf("undefined variable %q", n.Name)
}

func positionalIndex(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func evalComparison(n *ast.ComparisonOp, ctx *Context, scope *Scope) (value.Value, error) {
	prev, err := Eval(n.Exprs[0], ctx, scope)
	if err != nil {
		return value.Value{}, err
	}
	for i, op := range n.Ops {
		next, err := Eval(n.Exprs[i+1], ctx, scope)
		if err != nil {
			return value.Value{}, err
		}
		ok, err := compareOp(op, prev, next)
		if err != nil {
			return value.Value{}, err
		}
		if !ok {
			return value.NewBool(false), nil
		}
		prev = next
	}
	return value.NewBool(true), nil
}

func evalTernary(n *ast.TernaryOp, ctx *Context, scope *Scope) (value.Value, error) {
	c, err := Eval(n.Cond, ctx, scope)
	if err != nil {
		return value.Value{}, err
	}
	if c.Type().Kind != value.KindBool {
		return value.Value{}, fmt.Errorf("ternary condition must be bool, got %s", c.Type())
	}
	if c.AsBool() {
		return Eval(n.Then, ctx, scope)
	}
	return Eval(n.Else, ctx, scope)
}

// evalDot implements `.` as tuple/list positional access when the
// right-hand side is an integer literal, and as a string-keyed map
// lookup when it's a bare identifier (spec.md §4.5's "dot operator"
// generalised to double as record-style field access on maps).
func evalDot(n *ast.DotOp, ctx *Context, scope *Scope) (value.Value, error) {
	lhs, err := Eval(n.Lhs, ctx, scope)
	if err != nil {
		return value.Value{}, err
	}
	switch rhs := n.Rhs.(type) {
	case *ast.LitInteger:
		return evalSubscript(lhs, value.NewInt(rhs.Value))
	case *ast.Ident:
		return evalSubscript(lhs, value.NewString(rhs.Name))
	default:
		return value.Value{}, fmt.Errorf("invalid right-hand side of '.'")
	}
}

func evalSliceNode(n *ast.SliceOp, ctx *Context, scope *Scope) (value.Value, error) {
	lhs, err := Eval(n.Lhs, ctx, scope)
	if err != nil {
		return value.Value{}, err
	}
	var start, end *int64
	if n.Start != nil {
		v, err := Eval(n.Start, ctx, scope)
		if err != nil {
			return value.Value{}, err
		}
		if v.Type().Kind != value.KindInt {
			return value.Value{}, fmt.Errorf("slice bound must be int, got %s", v.Type())
		}
		s := v.AsInt()
		start = &s
	}
	if n.End != nil {
		v, err := Eval(n.End, ctx, scope)
		if err != nil {
			return value.Value{}, err
		}
		if v.Type().Kind != value.KindInt {
			return value.Value{}, fmt.Errorf("slice bound must be int, got %s", v.Type())
		}
		e := v.AsInt()
		end = &e
	}
	return evalSlice(lhs, start, end)
}

func evalPipeline(n *ast.BinaryOp, ctx *Context, scope *Scope) (value.Value, error) {
	arg, err := Eval(n.Lhs, ctx, scope)
	if err != nil {
		return value.Value{}, err
	}
	calleeV, err := Eval(n.Rhs, ctx, scope)
	if err != nil {
		return value.Value{}, err
	}
	return invokeValue(calleeV, ctx, []value.Value{arg})
}

func evalCall(n *ast.FunctionCall, ctx *Context, scope *Scope) (value.Value, error) {
	calleeV, err := Eval(n.Callee, ctx, scope)
	if err != nil {
		return value.Value{}, err
	}

	var args []value.Value
	for _, a := range n.Args {
		if sp, ok := a.(*ast.SplatOp); ok {
			v, err := Eval(sp.Expr, ctx, scope)
			if err != nil {
				return value.Value{}, err
			}
			if v.Type().Kind == value.KindList {
				args = append(args, v.AsList()...)
			} else {
				args = append(args, v)
			}
			continue
		}
		v, err := Eval(a, ctx, scope)
		if err != nil {
			return value.Value{}, err
		}
		args = append(args, v)
	}

	return invokeValue(calleeV, ctx, args)
}

// InvokeCommand runs a resolved command Value (the shape
// pkg/registry.LookupCommand/RunBuiltinCommand hands back) against
// positional string arguments, the form the dispatcher's command
// dispatch (spec.md §4.9 step 5) calls with. It's the exported
// entry point external packages use instead of the private
// invokeValue, which expression-call evaluation also shares.
func InvokeCommand(calleeV value.Value, ctx *Context, args []string) (value.Value, error) {
	vals := make([]value.Value, len(args))
	for i, a := range args {
		vals[i] = value.NewString(a)
	}
	return invokeValue(calleeV, ctx, vals)
}

// invokeValue performs spec.md §4.6's function-call steps 3-5 given an
// already-evaluated callee and already-evaluated (but not yet
// cast/coerced) arguments.
func invokeValue(calleeV value.Value, ctx *Context, args []value.Value) (value.Value, error) {
	if calleeV.Type().Kind != value.KindFunction {
		return value.Value{}, fmt.Errorf("value of type %s is not callable", calleeV.Type())
	}
	fn := calleeV.AsFunc()

	if m, ok := fn.(*Macro); ok {
		return m.Invoke(ctx, args)
	}
	if os, ok := fn.(*OverloadSet); ok {
		return os.Invoke(ctx, args)
	}

	inv, err := asInvocable(fn)
	if err != nil {
		return value.Value{}, err
	}
	params := inv.Type().Params
	if !arityMatches(inv, len(args), len(params)) {
		return value.Value{}, fmt.Errorf("wrong number of arguments: expected %d, got %d", len(params), len(args))
	}
	casted := make([]value.Value, len(args))
	for i, a := range args {
		pt := params[i]
		if inv.Variadic() && i >= len(params)-1 {
			pt = params[len(params)-1].Elem
		}
		c, err := value.Cast(a, pt)
		if err != nil {
			return value.Value{}, fmt.Errorf("argument %d: %w", i+1, err)
		}
		casted[i] = c
	}
	return inv.Invoke(ctx, casted)
}

// --- assignment / lvalues ---

func evalAssign(n *ast.AssignOp, ctx *Context, scope *Scope) (value.Value, error) {
	place, err := placeOf(n.Lhs, ctx, scope)
	if err != nil {
		return value.Value{}, err
	}
	rhs, err := Eval(n.Rhs, ctx, scope)
	if err != nil {
		return value.Value{}, err
	}

	if n.Op == lexer.Equal {
		if err := place.Set(rhs); err != nil {
			return value.Value{}, err
		}
		return rhs, nil
	}

	base, ok := compoundBase(n.Op)
	if !ok {
		return value.Value{}, fmt.Errorf("unsupported assignment operator %q", n.Text)
	}
	old := place.Get()
	newVal, err := binaryOp(base, n.Text, old, rhs)
	if err != nil {
		return value.Value{}, err
	}
	if err := place.Set(newVal); err != nil {
		return value.Value{}, err
	}
	return newVal, nil
}

func compoundBase(op lexer.Type) (lexer.Type, bool) {
	switch op {
	case lexer.PlusEquals:
		return lexer.Plus, true
	case lexer.MinusEquals:
		return lexer.Minus, true
	case lexer.TimesEquals:
		return lexer.Asterisk, true
	case lexer.DivideEquals:
		return lexer.Slash, true
	case lexer.RemainderEquals:
		return lexer.Percent, true
	case lexer.ExponentEquals:
		return lexer.Caret, true
	case lexer.ShiftLeftEquals:
		return lexer.ShiftLeft, true
	case lexer.ShiftRightEquals:
		return lexer.ShiftRight, true
	case lexer.BitwiseAndEquals:
		return lexer.Ampersand, true
	case lexer.BitwiseOrEquals:
		return lexer.Pipe, true
	}
	return 0, false
}

// placeOf resolves node to an assignable Place, required for AssignOp
// (spec.md §4.6: "assignment operators require an lvalue lhs"). An
// undeclared bare identifier on the left of an assignment auto-defines
// itself in the current scope, matching a dynamically typed scripting
// language's usual "first assignment declares" behaviour.
func placeOf(node ast.Expr, ctx *Context, scope *Scope) (value.Place, error) {
	switch n := node.(type) {
	case *ast.Ident:
		if p, ok := scope.Place(n.Name); ok {
			return p, nil
		}
		scope.Define(n.Name, value.NewVoid())
		p, _ := scope.Place(n.Name)
		return p, nil

	case *ast.Dollar:
		if _, ok := positionalIndex(n.Name); ok {
			return nil, fmt.Errorf("cannot assign to positional argument $%s", n.Name)
		}
		if _, reserved := reservedDollars[n.Name]; reserved {
			return nil, fmt.Errorf("cannot assign to $%s", n.Name)
		}
		return &envPlace{env: ctx.Env, name: n.Name}, nil

	case *ast.SubscriptOp:
		parent, err := placeOf(n.Lhs, ctx, scope)
		if err != nil {
			return nil, err
		}
		idxV, err := Eval(n.Index, ctx, scope)
		if err != nil {
			return nil, err
		}
		container := parent.Get()
		if container.Type().Kind == value.KindMap {
			return value.NewMapKeyPlace(parent, idxV), nil
		}
		if idxV.Type().Kind != value.KindInt {
			return nil, fmt.Errorf("list index must be int, got %s", idxV.Type())
		}
		i := resolveIndex(len(container.AsList()), idxV.AsInt())
		return value.NewListIndexPlace(parent, i), nil

	case *ast.DotOp:
		parent, err := placeOf(n.Lhs, ctx, scope)
		if err != nil {
			return nil, err
		}
		container := parent.Get()
		switch rhs := n.Rhs.(type) {
		case *ast.LitInteger:
			i := resolveIndex(len(container.AsList()), rhs.Value)
			return value.NewListIndexPlace(parent, i), nil
		case *ast.Ident:
			return value.NewMapKeyPlace(parent, value.NewString(rhs.Name)), nil
		default:
			return nil, fmt.Errorf("invalid assignment target")
		}

	default:
		return nil, fmt.Errorf("expression is not assignable")
	}
}

// envPlace adapts the Environment's global get/set pair to a Place, so
// `$globalName = expr` can reuse the same assignment code path as
// local variables and container elements.
type envPlace struct {
	env  Environment
	name string
}

func (p *envPlace) Get() value.Value {
	v, _ := p.env.Global(p.name)
	return v
}

func (p *envPlace) Set(v value.Value) error {
	p.env.SetGlobal(p.name, v)
	return nil
}
