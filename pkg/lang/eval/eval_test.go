package eval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhiayang/ikura/pkg/lang/parser"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/value"
)

// fakeEnv is a minimal Environment for tests: globals are a plain map,
// builtins/commands are populated per-test.
type fakeEnv struct {
	globals  map[string]value.Value
	builtins map[string]value.Value
	commands map[string]value.Value
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		globals:  map[string]value.Value{},
		builtins: map[string]value.Value{},
		commands: map[string]value.Value{},
	}
}

func (e *fakeEnv) Global(name string) (value.Value, bool) { v, ok := e.globals[name]; return v, ok }
func (e *fakeEnv) SetGlobal(name string, v value.Value)   { e.globals[name] = v }
func (e *fakeEnv) BuiltinFunction(name string) (value.Value, bool) {
	v, ok := e.builtins[name]
	return v, ok
}
func (e *fakeEnv) LookupCommand(name string) (value.Value, bool) {
	v, ok := e.commands[name]
	return v, ok
}

func evalSrc(t *testing.T, env Environment, ctx *Context, src string) value.Value {
	t.Helper()
	node, err := parser.ParseExpr(src)
	require.NoError(t, err)
	v, err := Eval(node, ctx, NewScope())
	require.NoError(t, err)
	return v
}

func newTestContext(env Environment) *Context {
	return NewContext(env, "u1", "alice", model.ChannelRef{Backend: model.BackendTwitch, ID: "chan"}, []string{"foo", "bar"}, "foo bar", time.Now())
}

func TestEvalArithmetic(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	v := evalSrc(t, env, ctx, "1 + 2 * 3")
	require.Equal(t, int64(7), v.AsInt())
}

func TestEvalIntToDoubleWidening(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	v := evalSrc(t, env, ctx, "1 + 2.5")
	require.Equal(t, value.KindDouble, v.Type().Kind)
	require.InDelta(t, 3.5, v.AsDouble(), 1e-9)
}

func TestEvalStringRepeat(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	v := evalSrc(t, env, ctx, `"ab" * 3`)
	require.Equal(t, "ababab", v.AsString())
}

func TestEvalListConcat(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	v := evalSrc(t, env, ctx, "[1, 2] + [3]")
	require.Equal(t, 3, v.Len())
}

func TestEvalChainedComparisonTrue(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	v := evalSrc(t, env, ctx, "1 < 2 < 3")
	require.True(t, v.AsBool())
}

func TestEvalChainedComparisonFalse(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	v := evalSrc(t, env, ctx, "1 < 2 > 3")
	require.False(t, v.AsBool())
}

func TestEvalTernary(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	v := evalSrc(t, env, ctx, "true ? 1 : 2")
	require.Equal(t, int64(1), v.AsInt())
}

func TestEvalDollarPositional(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	v := evalSrc(t, env, ctx, "$1")
	require.Equal(t, "foo", v.AsString())
}

func TestEvalDollarPositionalOutOfRange(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	node, err := parser.ParseExpr("$99")
	require.NoError(t, err)
	_, err = Eval(node, ctx, NewScope())
	require.Error(t, err)
}

func TestEvalDollarUser(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	v := evalSrc(t, env, ctx, "$user")
	require.Equal(t, "alice", v.AsString())
}

func TestEvalDollarArgsList(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	v := evalSrc(t, env, ctx, "$args")
	require.Equal(t, 2, v.Len())
}

func TestEvalAssignmentToLocal(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	node, err := parser.ParseExpr("x = 5")
	require.NoError(t, err)
	scope := NewScope()
	v, err := Eval(node, ctx, scope)
	require.NoError(t, err)
	require.Equal(t, int64(5), v.AsInt())
	got, ok := scope.Lookup("x")
	require.True(t, ok)
	require.Equal(t, int64(5), got.AsInt())
}

func TestEvalCompoundAssignment(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	scope := NewScope()
	scope.Define("x", value.NewInt(10))
	node, err := parser.ParseExpr("x += 5")
	require.NoError(t, err)
	v, err := Eval(node, ctx, scope)
	require.NoError(t, err)
	require.Equal(t, int64(15), v.AsInt())
}

func TestEvalListIndexAssignment(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	scope := NewScope()
	scope.Define("xs", value.NewList(value.Int(), []value.Value{value.NewInt(1), value.NewInt(2)}))
	node, err := parser.ParseExpr("xs[0] = 9")
	require.NoError(t, err)
	_, err = Eval(node, ctx, scope)
	require.NoError(t, err)
	xs, _ := scope.Lookup("xs")
	require.Equal(t, int64(9), xs.AsList()[0].AsInt())
}

func TestEvalSliceBoundary(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	v := evalSrc(t, env, ctx, "[1,2,3,4,5][-10:]")
	require.Equal(t, 5, v.Len())

	v = evalSrc(t, env, ctx, "[1,2,3,4,5][:10]")
	require.Equal(t, 5, v.Len())

	v = evalSrc(t, env, ctx, "[1,2,3,4,5][3:1]")
	require.Equal(t, 0, v.Len())
}

func TestEvalFunctionCallClosure(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	body, err := parser.ParseExpr("a + b")
	require.NoError(t, err)
	fn := &Closure{
		Name:    "add",
		Params:  []Param{{Name: "a", Type: value.Int()}, {Name: "b", Type: value.Int()}},
		Ret:     value.Int(),
		Body:    body,
		Defined: NewScope(),
	}
	env.globals["add"] = value.NewFunc(fn)

	v := evalSrc(t, env, ctx, "add(2, 3)")
	require.Equal(t, int64(5), v.AsInt())
}

func TestEvalOverloadResolution(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)

	strOfInt := &Builtin{
		Name: "str", Sig: value.Function(value.String(), value.Int()), MinN: 1,
		Fn: func(ctx *Context, args []value.Value) (value.Value, error) {
			return value.NewString(value.Render(args[0])), nil
		},
	}
	strOfDouble := &Builtin{
		Name: "str", Sig: value.Function(value.String(), value.Double()), MinN: 1,
		Fn: func(ctx *Context, args []value.Value) (value.Value, error) {
			return value.NewString(value.Render(args[0])), nil
		},
	}
	set := &OverloadSet{Name: "str", Candidates: []Invocable{strOfInt, strOfDouble}}
	env.builtins["str"] = value.NewFunc(set)

	v := evalSrc(t, env, ctx, "str(3.14)")
	require.Equal(t, "3.140", v.AsString())
}

func TestEvalNoMatchingOverload(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	strOfInt := &Builtin{
		Name: "str", Sig: value.Function(value.String(), value.Int()), MinN: 1,
		Fn: func(ctx *Context, args []value.Value) (value.Value, error) { return value.NewString("x"), nil },
	}
	set := &OverloadSet{Name: "str", Candidates: []Invocable{strOfInt}}
	env.builtins["str"] = value.NewFunc(set)

	node, err := parser.ParseExpr(`str("hi")`)
	require.NoError(t, err)
	_, err = Eval(node, ctx, NewScope())
	require.Error(t, err)
}

func TestEvalTimeBudgetExceeded(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	ctx.Start = time.Now().Add(-time.Second)
	ctx.Budget = DefaultBudget

	fn := &Builtin{
		Name: "noop", Sig: value.Function(value.Void()), MinN: 0,
		Fn: func(ctx *Context, args []value.Value) (value.Value, error) { return value.NewVoid(), nil },
	}
	env.builtins["noop"] = value.NewFunc(fn)

	node, err := parser.ParseExpr("noop()")
	require.NoError(t, err)
	_, err = Eval(node, ctx, NewScope())
	require.ErrorIs(t, err, ErrTimeBudgetExceeded)
}

func TestEvalMacroExpansion(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	msg, err := ExpandMacroMessage([]string{"hello", `\$user`, `\:`, "world"}, ctx, NewScope())
	require.NoError(t, err)
	require.Equal(t, "hello alice : world", msg.Render())
}

func TestEvalMacroEmoteFragment(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	frags, err := ExpandMacroFragments([]string{":Kappa"}, ctx, NewScope())
	require.NoError(t, err)
	require.Len(t, frags, 1)
	require.Equal(t, model.FragmentEmote, frags[0].Kind)
	require.Equal(t, "Kappa", frags[0].Text)
}

func TestEvalMacroAsCallable(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	m := &Macro{Name: "greet", Words: []string{"hi", `\$1`}}
	env.globals["greet"] = value.NewFunc(m)

	v := evalSrc(t, env, ctx, `greet("bob")`)
	require.Equal(t, 2, v.Len())
	require.Equal(t, "hi", v.AsList()[0].AsString())
	require.Equal(t, "bob", v.AsList()[1].AsString())
}

func TestEvalSplatArgument(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	body, err := parser.ParseExpr("a + b + c")
	require.NoError(t, err)
	fn := &Closure{
		Name:   "sum3",
		Params: []Param{{Name: "a", Type: value.Int()}, {Name: "b", Type: value.Int()}, {Name: "c", Type: value.Int()}},
		Ret:    value.Int(), Body: body, Defined: NewScope(),
	}
	env.globals["sum3"] = value.NewFunc(fn)
	scope := NewScope()
	scope.Define("xs", value.NewList(value.Int(), []value.Value{value.NewInt(1), value.NewInt(2), value.NewInt(3)}))

	node, err := parser.ParseExpr("sum3(xs...)")
	require.NoError(t, err)
	v, err := Eval(node, ctx, scope)
	require.NoError(t, err)
	require.Equal(t, int64(6), v.AsInt())
}

func TestEvalPipelineOperator(t *testing.T) {
	env := newFakeEnv()
	ctx := newTestContext(env)
	double := &Builtin{
		Name: "double", Sig: value.Function(value.Int(), value.Int()), MinN: 1,
		Fn: func(ctx *Context, args []value.Value) (value.Value, error) {
			return value.NewInt(args[0].AsInt() * 2), nil
		},
	}
	env.globals["double"] = value.NewFunc(double)

	v := evalSrc(t, env, ctx, "5 |> double")
	require.Equal(t, int64(10), v.AsInt())
}
