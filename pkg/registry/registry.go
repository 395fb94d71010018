// Package registry implements the command registry (spec.md C7): the
// commands/aliases/builtinCommandPermissions tables, alias resolution
// with cycle detection, and the eval.Environment this module's
// evaluator resolves names through. It also provides the eight
// built-in text commands (def, redef, undef, show, chmod, global,
// eval, markov) that mutate the registry or invoke the evaluator
// directly, grounded on
// _examples/original_source/source/interp/{command,builtin}.cpp.
package registry

import (
	"fmt"
	"sync"

	"github.com/zhiayang/ikura/pkg/lang/eval"
	"github.com/zhiayang/ikura/pkg/perm"
	"github.com/zhiayang/ikura/pkg/value"
)

// builtinCommandNames lists the eight names `is_builtin` recognises in
// the original; these never occupy a slot in the commands map and are
// dispatched through RunBuiltinCommand instead of LookupCommand.
var builtinCommandNames = map[string]bool{
	"def": true, "redef": true, "undef": true, "show": true,
	"chmod": true, "global": true, "eval": true, "markov": true,
}

// IsBuiltinCommand reports whether name is one of the eight reserved
// builtin command names (spec.md §4.7).
func IsBuiltinCommand(name string) bool { return builtinCommandNames[name] }

// Registry owns the process-wide command/alias/global tables (spec.md
// C7). All methods are safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	// commands holds user-defined commands (in practice always Macros,
	// mirroring the original: only TAG_MACRO is ever deserialised).
	commands map[string]value.Value
	aliases  map[string]string

	// commandPerms holds the per-command PermissionSet for entries in
	// commands; absent means "owner only" (spec.md §4.3's zero-flag
	// rule) until explicitly chmod'd.
	commandPerms map[string]*perm.PermissionSet

	// builtinCommandPerms is builtinCommandPermissions from spec.md
	// §4.7: the chmod-able permission mask for each of the eight
	// builtin commands themselves.
	builtinCommandPerms map[string]*perm.PermissionSet

	// globals holds process-global variables set by the `global`
	// builtin, resolved as Environment.Global.
	globals map[string]value.Value

	// builtins holds language built-in functions (str, len, ...),
	// resolved as Environment.BuiltinFunction. pkg/registry doesn't
	// define these itself; callers (e.g. cmd/ikura's wiring) populate
	// this table at startup.
	builtins map[string]value.Value

	// GroupLookup and RoleLookup resolve chmod's group/role names to
	// ids; the model package owns that namespace, so these are
	// injected rather than imported directly.
	GroupLookup func(name string) (perm.GroupID, bool)
	RoleLookup  func(name string) (perm.RoleID, bool)

	// MarkovGenerate produces one generated line for the `markov`
	// builtin command; nil until pkg/markov is wired in.
	MarkovGenerate func() (string, error)
}

// New builds an empty Registry with default (always-fail) group/role
// lookups; the caller overwrites GroupLookup/RoleLookup/MarkovGenerate
// once the rest of the system is wired up.
func New() *Registry {
	return &Registry{
		commands:            map[string]value.Value{},
		aliases:             map[string]string{},
		commandPerms:        map[string]*perm.PermissionSet{},
		builtinCommandPerms: defaultBuiltinCommandPerms(),
		globals:             map[string]value.Value{},
		builtins:            map[string]value.Value{},
		GroupLookup:         func(string) (perm.GroupID, bool) { return 0, false },
		RoleLookup:          func(string) (perm.RoleID, bool) { return 0, false },
	}
}

// defaultBuiltinCommandPerms seeds builtinCommandPermissions: the
// mutating builtins (def/redef/undef/chmod/global) default to
// moderator-and-up, `eval`/`show`/`markov` default to everyone. spec.md
// §4.7 leaves the exact defaults to the implementation; DESIGN.md
// records this as an Open Question resolution.
func defaultBuiltinCommandPerms() map[string]*perm.PermissionSet {
	mod := perm.New(perm.FlagModerator | perm.FlagBroadcaster | perm.FlagOwner)
	everyone := perm.New(perm.FlagEveryone | perm.FlagSubscriber | perm.FlagVIP | perm.FlagModerator | perm.FlagBroadcaster | perm.FlagOwner)
	return map[string]*perm.PermissionSet{
		"def":    ref(mod),
		"redef":  ref(mod),
		"undef":  ref(mod),
		"chmod":  ref(mod),
		"global": ref(mod),
		"eval":   ref(everyone),
		"show":   ref(everyone),
		"markov": ref(everyone),
	}
}

func ref(p perm.PermissionSet) *perm.PermissionSet { return &p }

// BuiltinCommandPermission returns the PermissionSet gating a builtin
// command, for the dispatcher to check before invoking it.
func (r *Registry) BuiltinCommandPermission(name string) (perm.PermissionSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.builtinCommandPerms[name]
	if !ok {
		return perm.PermissionSet{}, false
	}
	return *p, true
}

// CommandPermission returns the PermissionSet gating a user-defined
// command (after alias resolution), defaulting to owner-only if never
// chmod'd.
func (r *Registry) CommandPermission(name string) perm.PermissionSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resolved, ok := r.resolveLocked(name)
	if !ok {
		return perm.New(0)
	}
	if p, ok := r.commandPerms[resolved]; ok {
		return *p
	}
	return perm.New(0)
}

// --- eval.Environment ---

func (r *Registry) Global(name string) (value.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.globals[name]
	return v, ok
}

func (r *Registry) SetGlobal(name string, v value.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globals[name] = v
}

func (r *Registry) BuiltinFunction(name string) (value.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.builtins[name]
	return v, ok
}

// RegisterBuiltinFunction installs a language built-in function (e.g.
// `str`, `len`), distinct from the eight builtin text commands.
func (r *Registry) RegisterBuiltinFunction(name string, v value.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[name] = v
}

func (r *Registry) LookupCommand(name string) (value.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resolved, ok := r.resolveLocked(name)
	if !ok {
		return value.Value{}, false
	}
	return r.commands[resolved], true
}

// resolveLocked follows the alias chain from name to a defined
// command, detecting cycles with a visited set (spec.md §4.7). Callers
// must hold r.mu.
func (r *Registry) resolveLocked(name string) (string, bool) {
	visited := map[string]struct{}{}
	cur := name
	for {
		if _, ok := r.commands[cur]; ok {
			return cur, true
		}
		if _, seen := visited[cur]; seen {
			return "", false
		}
		visited[cur] = struct{}{}
		target, ok := r.aliases[cur]
		if !ok {
			return "", false
		}
		cur = target
	}
}

// ErrAlreadyExists is returned by Define when name already names a
// command.
var ErrAlreadyExists = fmt.Errorf("already defined")

// ErrNotFound is returned by Redefine/Undefine/Alias operations
// targeting a name that resolves to nothing.
var ErrNotFound = fmt.Errorf("does not exist")

// Define registers a brand-new command, failing if name is already
// taken (by a command or an alias).
func (r *Registry) Define(name string, cmd value.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resolveLocked(name); ok {
		return ErrAlreadyExists
	}
	if _, ok := r.aliases[name]; ok {
		return ErrAlreadyExists
	}
	r.commands[name] = cmd
	return nil
}

// Redefine overwrites an existing command's definition in place,
// failing if it does not already exist (spec.md's `internal_def` with
// redef=true).
func (r *Registry) Redefine(name string, cmd value.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	resolved, ok := r.resolveLocked(name)
	if !ok {
		return ErrNotFound
	}
	r.commands[resolved] = cmd
	return nil
}

// Undefine removes a command or alias by name, reporting whether
// anything was actually removed.
func (r *Registry) Undefine(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[name]; ok {
		delete(r.commands, name)
		delete(r.commandPerms, name)
		return true
	}
	if _, ok := r.aliases[name]; ok {
		delete(r.aliases, name)
		return true
	}
	return false
}

// DefineAlias makes `name` resolve through to `target`.
func (r *Registry) DefineAlias(name, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[name] = target
}

// SetCommandPermission installs p as the PermissionSet for a
// user-defined command (used by chmod).
func (r *Registry) SetCommandPermission(name string, p perm.PermissionSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commandPerms[name] = &p
}

// SetBuiltinCommandPermission installs p as the PermissionSet for one
// of the eight builtin commands themselves (used by chmod).
func (r *Registry) SetBuiltinCommandPermission(name string, p perm.PermissionSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtinCommandPerms[name] = &p
}

// MacroRecord is the persisted shape of a user-defined command
// (pkg/db's interpreter-state section): every Command this module
// defines is a Macro (spec.md's Command variant also has Function,
// BuiltinFunction, and FunctionOverloadSet forms, but the original's
// `Command::deserialise` only ever emits TAG_MACRO, per DESIGN.md's
// grounding note — so this is the only persisted command shape).
type MacroRecord struct {
	Name  string
	Words []string
	Perm  perm.PermissionSet
	// HasPerm is false for a never-chmod'd command, so the Database
	// doesn't persist a synthetic owner-only PermissionSet for every
	// macro that was never explicitly chmod'd.
	HasPerm bool
}

// ScalarGlobal is the persisted shape of one process-global variable.
// Only the scalar Kinds (bool/int/double/string) are persisted;
// list/map/function-valued globals are dropped on save, recorded as
// an Open Question resolution in DESIGN.md, since the codec has no
// generic Value encoder and spec.md never requires round-tripping a
// non-scalar global.
type ScalarGlobal struct {
	Name string
	Kind value.Kind
	S    string
	I    int64
	D    float64
	B    bool
}

// Snapshot is the full persisted state of a Registry, the shape
// pkg/db reads at startup and writes on every sync tick.
type Snapshot struct {
	Macros              []MacroRecord
	Aliases             map[string]string
	BuiltinCommandPerms map[string]perm.PermissionSet
	Globals             []ScalarGlobal
}

// Export snapshots the registry's persisted state.
func (r *Registry) Export() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Aliases:             make(map[string]string, len(r.aliases)),
		BuiltinCommandPerms: make(map[string]perm.PermissionSet, len(r.builtinCommandPerms)),
	}
	for name, cmd := range r.commands {
		m, ok := cmd.AsFunc().(*eval.Macro)
		if !ok {
			continue
		}
		rec := MacroRecord{Name: name, Words: m.Words}
		if p, ok := r.commandPerms[name]; ok {
			rec.Perm, rec.HasPerm = *p, true
		}
		snap.Macros = append(snap.Macros, rec)
	}
	for name, target := range r.aliases {
		snap.Aliases[name] = target
	}
	for name, p := range r.builtinCommandPerms {
		snap.BuiltinCommandPerms[name] = *p
	}
	for name, v := range r.globals {
		if g, ok := scalarGlobal(name, v); ok {
			snap.Globals = append(snap.Globals, g)
		}
	}
	return snap
}

func scalarGlobal(name string, v value.Value) (ScalarGlobal, bool) {
	switch v.Type().Kind {
	case value.KindBool:
		return ScalarGlobal{Name: name, Kind: value.KindBool, B: v.AsBool()}, true
	case value.KindInt:
		return ScalarGlobal{Name: name, Kind: value.KindInt, I: v.AsInt()}, true
	case value.KindDouble:
		return ScalarGlobal{Name: name, Kind: value.KindDouble, D: v.AsDouble()}, true
	case value.KindList:
		if v.Type().IsString() {
			return ScalarGlobal{Name: name, Kind: value.KindList, S: v.AsString()}, true
		}
	}
	return ScalarGlobal{}, false
}

// Import replaces the registry's persisted state with snap's, used
// once at startup after pkg/db loads the database file. It does not
// touch r.builtins (language built-in functions), GroupLookup,
// RoleLookup, or MarkovGenerate, which the caller wires separately.
func (r *Registry) Import(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands = make(map[string]value.Value, len(snap.Macros))
	r.commandPerms = make(map[string]*perm.PermissionSet, len(snap.Macros))
	for _, rec := range snap.Macros {
		r.commands[rec.Name] = value.NewFunc(&eval.Macro{Name: rec.Name, Words: rec.Words})
		if rec.HasPerm {
			p := rec.Perm
			r.commandPerms[rec.Name] = &p
		}
	}

	r.aliases = make(map[string]string, len(snap.Aliases))
	for name, target := range snap.Aliases {
		r.aliases[name] = target
	}

	if len(snap.BuiltinCommandPerms) > 0 {
		r.builtinCommandPerms = make(map[string]*perm.PermissionSet, len(snap.BuiltinCommandPerms))
		for name, p := range snap.BuiltinCommandPerms {
			pp := p
			r.builtinCommandPerms[name] = &pp
		}
	}

	r.globals = make(map[string]value.Value, len(snap.Globals))
	for _, g := range snap.Globals {
		switch g.Kind {
		case value.KindBool:
			r.globals[g.Name] = value.NewBool(g.B)
		case value.KindInt:
			r.globals[g.Name] = value.NewInt(g.I)
		case value.KindDouble:
			r.globals[g.Name] = value.NewDouble(g.D)
		case value.KindList:
			r.globals[g.Name] = value.NewString(g.S)
		}
	}
}
