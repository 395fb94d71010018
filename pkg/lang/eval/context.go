// Package eval implements the tree-walking evaluator for the embedded
// expression language (spec.md C6): it walks pkg/lang/ast nodes against
// a Context and an Environment, producing pkg/value Values.
package eval

import (
	"fmt"
	"time"

	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/value"
)

// DefaultBudget is the per-invocation execution-time budget spec.md
// §4.6 specifies: every function call rechecks elapsed time against it.
const DefaultBudget = 500 * time.Millisecond

// Environment is what the evaluator needs from the command registry
// (pkg/registry) without importing it directly — the registry in turn
// constructs Invocables built on this package's types, so the two
// packages would otherwise form an import cycle. pkg/registry supplies
// the concrete implementation.
type Environment interface {
	// Global resolves a process-global variable: reserved builtins are
	// checked before user-defined globals (spec.md §4.6 resolution
	// order step 3).
	Global(name string) (value.Value, bool)
	// SetGlobal assigns a process-global, creating it if absent (used
	// by the `global` builtin command, not by plain `$name` lookups).
	SetGlobal(name string, v value.Value)
	// BuiltinFunction resolves a name against the built-in function
	// table (resolution order step 4).
	BuiltinFunction(name string) (value.Value, bool)
	// LookupCommand resolves a name through the user command registry,
	// following aliases (resolution order step 5).
	LookupCommand(name string) (value.Value, bool)
}

// Context carries everything an evaluation needs that isn't part of the
// expression tree itself (spec.md §4.6).
type Context struct {
	CallerID          string
	CallerDisplayName string
	Channel           model.ChannelRef
	Args              []string
	RawArgs           string

	Start  time.Time
	Budget time.Duration

	Env Environment
}

// NewContext builds a Context with the default 500ms budget and start
// time set to now.
func NewContext(env Environment, callerID, callerDisplay string, ch model.ChannelRef, args []string, rawArgs string, now time.Time) *Context {
	return &Context{
		CallerID:          callerID,
		CallerDisplayName: callerDisplay,
		Channel:           ch,
		Args:              args,
		RawArgs:           rawArgs,
		Start:             now,
		Budget:            DefaultBudget,
		Env:               env,
	}
}

// ErrTimeBudgetExceeded is returned when a call site's elapsed time
// since Context.Start exceeds Context.Budget (spec.md §7's "Time budget
// exceeded" category).
var ErrTimeBudgetExceeded = fmt.Errorf("time limit exceeded")

// checkBudget is polled at every function-call site, matching spec.md
// §5's "the only explicit yield inside the evaluator is the per-call
// deadline check."
func (c *Context) checkBudget(now time.Time) error {
	if now.Sub(c.Start) > c.Budget {
		return ErrTimeBudgetExceeded
	}
	return nil
}

// Scope is a chain of lexical variable bindings: function parameters
// and locals created by their first assignment. Globals and positional $-args are not stored
// here; they resolve through Context/Environment instead.
type Scope struct {
	vars   map[string]*value.Value
	parent *Scope
}

// NewScope creates a root scope with no parent.
func NewScope() *Scope {
	return &Scope{vars: make(map[string]*value.Value)}
}

// Child creates a new scope nested inside s, e.g. for a function call's
// parameter bindings.
func (s *Scope) Child() *Scope {
	return &Scope{vars: make(map[string]*value.Value), parent: s}
}

// Define introduces a new binding in this scope's own frame, shadowing
// any outer binding of the same name.
func (s *Scope) Define(name string, v value.Value) {
	s.vars[name] = &v
}

// Lookup searches this scope and its ancestors for name.
func (s *Scope) Lookup(name string) (value.Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if slot, ok := cur.vars[name]; ok {
			return *slot, true
		}
	}
	return value.Value{}, false
}

// Place returns an assignable Place for an existing binding of name,
// searching from s outward. ok is false if no such binding exists in
// any enclosing scope (the caller should then Define it in s).
func (s *Scope) Place(name string) (value.Place, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if slot, ok := cur.vars[name]; ok {
			return value.NewVarPlace(slot), true
		}
	}
	return nil, false
}
