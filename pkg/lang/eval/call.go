package eval

import (
	"fmt"
	"time"

	"github.com/zhiayang/ikura/pkg/lang/ast"
	"github.com/zhiayang/ikura/pkg/value"
)

// Invocable is the evaluator's richer view of a callable Value: beyond
// the Type()/String() surface pkg/value's Callable exposes, it knows
// how to actually run (spec.md §4.6 function-call step 5) and how to
// report its arity for overload resolution. pkg/registry builds
// concrete Invocables and wraps them in value.NewFunc so they flow
// through the rest of the language as ordinary Values.
type Invocable interface {
	value.Callable
	// Invoke runs the callable against already-cast arguments.
	Invoke(ctx *Context, args []value.Value) (value.Value, error)
	// MinArity and Variadic describe which argument counts this
	// candidate accepts, for overload arity matching.
	MinArity() int
	Variadic() bool
}

// asInvocable recovers the evaluator's richer interface from a
// value.Callable, which is all pkg/value itself can see.
func asInvocable(c value.Callable) (Invocable, error) {
	inv, ok := c.(Invocable)
	if !ok {
		return nil, fmt.Errorf("value is not invocable")
	}
	return inv, nil
}

// Closure is a user-defined function: a parsed body evaluated against a
// fresh child scope binding its parameters, closing over the scope it
// was defined in (spec.md C7's "Function").
type Closure struct {
	Name    string
	Params  []Param
	Ret     *value.Type
	Body    ast.Expr
	Defined *Scope

	// Source is the original expression text the body was parsed from,
	// kept only for the `show` builtin command's benefit (spec.md
	// C7) — evaluation never consults it.
	Source string
}

// Param is one formal parameter of a Closure.
type Param struct {
	Name string
	Type *value.Type
}

func (c *Closure) Type() *value.Type {
	params := make([]*value.Type, len(c.Params))
	for i, p := range c.Params {
		params[i] = p.Type
	}
	return value.Function(c.Ret, params...)
}

func (c *Closure) String() string { return "fn " + c.Name }
func (c *Closure) MinArity() int  { return len(c.Params) }
func (c *Closure) Variadic() bool { return len(c.Params) > 0 && c.Params[len(c.Params)-1].Type.Variadic }

func (c *Closure) Invoke(ctx *Context, args []value.Value) (value.Value, error) {
	if err := ctx.checkBudget(time.Now()); err != nil {
		return value.Value{}, err
	}
	scope := c.Defined.Child()
	for i, p := range c.Params {
		if i < len(args) {
			scope.Define(p.Name, args[i])
		}
	}
	return Eval(c.Body, ctx, scope)
}

// Builtin is a built-in function implemented in Go rather than parsed
// from source (spec.md C7's "BuiltinFunction"), e.g. `str`, `len`.
type Builtin struct {
	Name   string
	Sig    *value.Type // Function type describing return + param types
	MinN   int
	IsVarg bool
	Fn     func(ctx *Context, args []value.Value) (value.Value, error)
}

func (b *Builtin) Type() *value.Type { return b.Sig }
func (b *Builtin) String() string    { return "builtin " + b.Name }
func (b *Builtin) MinArity() int     { return b.MinN }
func (b *Builtin) Variadic() bool    { return b.IsVarg }

func (b *Builtin) Invoke(ctx *Context, args []value.Value) (value.Value, error) {
	if err := ctx.checkBudget(time.Now()); err != nil {
		return value.Value{}, err
	}
	return b.Fn(ctx, args)
}

// OverloadSet groups several Invocables under one name (spec.md C7's
// "FunctionOverloadSet"); invoking it resolves the best candidate for
// the given arguments before delegating (spec.md §4.6's overload
// resolution rules).
type OverloadSet struct {
	Name       string
	Candidates []Invocable
}

func (o *OverloadSet) Type() *value.Type {
	if len(o.Candidates) == 0 {
		return value.Function(value.Void())
	}
	return o.Candidates[0].Type()
}

func (o *OverloadSet) String() string { return "overload-set " + o.Name }
func (o *OverloadSet) MinArity() int {
	if len(o.Candidates) == 0 {
		return 0
	}
	return o.Candidates[0].MinArity()
}
func (o *OverloadSet) Variadic() bool { return false }

func (o *OverloadSet) Invoke(ctx *Context, args []value.Value) (value.Value, error) {
	best, casted, err := ResolveOverload(o.Candidates, args)
	if err != nil {
		return value.Value{}, err
	}
	return best.Invoke(ctx, casted)
}

// ResolveOverload picks the lowest cast-distance candidate whose arity
// matches len(args) (spec.md §4.6): variadic candidates match any arity
// at or above their fixed prefix length. Ties are broken by declaration
// order (the first-seen candidate at the minimum score wins). It
// returns the chosen candidate together with args already cast to its
// parameter types.
func ResolveOverload(candidates []Invocable, args []value.Value) (Invocable, []value.Value, error) {
	type scored struct {
		inv   Invocable
		score int
	}
	var matches []scored

	for _, c := range candidates {
		params := c.Type().Params
		if !arityMatches(c, len(args), len(params)) {
			continue
		}
		sum := 0
		ok := true
		for i, a := range args {
			pt := params[i]
			if c.Variadic() && i >= len(params)-1 {
				pt = params[len(params)-1].Elem
			}
			d := value.CastDistance(a.Type(), pt)
			if d < 0 {
				ok = false
				break
			}
			sum += d
		}
		if ok {
			matches = append(matches, scored{c, sum})
		}
	}

	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("no matching function")
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.score < best.score {
			best = m
		}
	}

	params := best.inv.Type().Params
	out := make([]value.Value, len(args))
	for i, a := range args {
		pt := params[i]
		if best.inv.Variadic() && i >= len(params)-1 {
			pt = params[len(params)-1].Elem
		}
		cast, err := value.Cast(a, pt)
		if err != nil {
			return nil, nil, err
		}
		out[i] = cast
	}
	return best.inv, out, nil
}

func arityMatches(c Invocable, nargs, nparams int) bool {
	if c.Variadic() {
		return nargs >= nparams-1
	}
	return nargs == nparams
}
