package registry

import (
	"fmt"
	"strings"

	"github.com/zhiayang/ikura/pkg/lang/eval"
	"github.com/zhiayang/ikura/pkg/lang/parser"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
	"github.com/zhiayang/ikura/pkg/value"
)

// RunBuiltinCommand executes one of the eight reserved builtin text
// commands (spec.md §4.7), grounded word-for-word on
// _examples/original_source/source/interp/{command,builtin}.cpp's
// command_* functions. The caller (pkg/dispatch) has already checked
// IsBuiltinCommand(name) and the permission BuiltinCommandPermission
// returns; RunBuiltinCommand itself never re-checks permissions.
//
// send reports whether anything should be sent to the channel: `eval`
// and `global` silently drop output on an evaluation error, mirroring
// the original's `if(ret) chan->sendMessage(...)`.
func (r *Registry) RunBuiltinCommand(ctx *eval.Context, name, argStr string) (msg model.Message, send bool, err error) {
	switch name {
	case "eval":
		return r.builtinEval(ctx, argStr)
	case "global":
		return r.builtinGlobal(ctx, argStr)
	case "def":
		return r.builtinDef(argStr, false)
	case "redef":
		return r.builtinDef(argStr, true)
	case "undef":
		return r.builtinUndef(argStr)
	case "show":
		return r.builtinShow(argStr)
	case "chmod":
		return r.builtinChmod(argStr)
	case "markov":
		return r.builtinMarkov()
	default:
		return model.Message{}, false, fmt.Errorf("registry: %q is not a builtin command", name)
	}
}

func splitHeadTail(s string) (head, tail string) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// builtinEval implements `command_eval`: parse+evaluate the raw
// argument string and send back its rendered form.
func (r *Registry) builtinEval(ctx *eval.Context, argStr string) (model.Message, bool, error) {
	node, err := parser.ParseExpr(argStr)
	if err != nil {
		return model.Message{}, false, err
	}
	v, err := eval.Eval(node, ctx, eval.NewScope())
	if err != nil {
		return model.Message{}, false, err
	}
	return ValueToMessage(v), true, nil
}

// builtinGlobal implements `command_global`: `global <name> <expr>`
// evaluates expr and stores the result as a process global.
//
// The original's `global` instead takes a bare type name and
// default-constructs a value of that type (`ast::parseType`); this
// module has no standalone type-literal grammar, so `global` here
// evaluates an initialising expression instead, recorded as an Open
// Question resolution in DESIGN.md.
func (r *Registry) builtinGlobal(ctx *eval.Context, argStr string) (model.Message, bool, error) {
	name, exprSrc := splitHeadTail(argStr)
	if name == "" || exprSrc == "" {
		return model.NewMessage("not enough arguments to global"), true, nil
	}
	node, err := parser.ParseExpr(exprSrc)
	if err != nil {
		return model.Message{}, false, err
	}
	v, err := eval.Eval(node, ctx, eval.NewScope())
	if err != nil {
		return model.Message{}, false, err
	}
	r.SetGlobal(name, v)
	return model.NewMessage(fmt.Sprintf("added global '%s' with type '%s'", name, v.Type().Kind.String())), true, nil
}

// builtinDef implements `internal_def`: `def <name> <expansion...>`
// defines a new Macro; `redef` overwrites an existing one.
func (r *Registry) builtinDef(argStr string, redef bool) (model.Message, bool, error) {
	verb := "def"
	if redef {
		verb = "redef"
	}
	name, expansion := splitHeadTail(argStr)
	if name == "" {
		return model.NewMessage(fmt.Sprintf("not enough arguments to '%s'", verb)), true, nil
	}
	if expansion == "" {
		return model.NewMessage(fmt.Sprintf("'%s' expansion cannot be empty", verb)), true, nil
	}

	m := &eval.Macro{Name: name, Words: eval.SplitMacroWords(expansion)}
	cmd := value.NewFunc(m)

	if redef {
		if err := r.Redefine(name, cmd); err != nil {
			return model.NewMessage(fmt.Sprintf("'%s' does not exist", name)), true, nil
		}
	} else {
		if err := r.Define(name, cmd); err != nil {
			return model.NewMessage(fmt.Sprintf("'%s' is already defined", name)), true, nil
		}
	}

	prefix := ""
	if redef {
		prefix = "re"
	}
	return model.NewMessage(fmt.Sprintf("%sdefined '%s'", prefix, name)), true, nil
}

// builtinUndef implements `command_undef`.
func (r *Registry) builtinUndef(argStr string) (model.Message, bool, error) {
	argStr = strings.TrimSpace(argStr)
	if argStr == "" || strings.ContainsRune(argStr, ' ') {
		return model.NewMessage("'undef' takes exactly 1 argument"), true, nil
	}
	if r.Undefine(argStr) {
		return model.NewMessage(fmt.Sprintf("removed '%s'", argStr)), true, nil
	}
	return model.NewMessage(fmt.Sprintf("'%s' does not exist", argStr)), true, nil
}

// builtinShow implements `command_show`: render a Macro's source word
// list back out, or report that the name is a builtin / undefined.
func (r *Registry) builtinShow(argStr string) (model.Message, bool, error) {
	argStr = strings.TrimSpace(argStr)
	if argStr == "" || strings.ContainsRune(argStr, ' ') {
		return model.NewMessage("'show' takes exactly 1 argument"), true, nil
	}
	if IsBuiltinCommand(argStr) {
		return model.NewMessage(fmt.Sprintf("'%s' is a builtin command", argStr)), true, nil
	}

	cmd, ok := r.LookupCommand(argStr)
	if !ok {
		return model.NewMessage(fmt.Sprintf("'%s' does not exist", argStr)), true, nil
	}
	m, ok := cmd.AsFunc().(*eval.Macro)
	if !ok {
		return model.NewMessage(fmt.Sprintf("'%s' is not a macro", argStr)), true, nil
	}

	frags := make([]model.Fragment, 0, len(m.Words)+1)
	frags = append(frags, model.TextFragment(fmt.Sprintf("'%s' is defined as:", argStr)))
	for _, w := range m.Words {
		frags = append(frags, model.TextFragment(w))
	}
	return model.Message{Fragments: frags}, true, nil
}

// builtinChmod implements `command_chmod`: `chmod <command|builtin>
// <permspec>` where permspec is hex flags optionally followed by
// group/role whitelist/blacklist edits (pkg/perm.ApplySpec's grammar).
func (r *Registry) builtinChmod(argStr string) (model.Message, bool, error) {
	name, specStr := splitHeadTail(argStr)
	if name == "" || specStr == "" {
		return model.NewMessage("not enough arguments to chmod"), true, nil
	}

	if IsBuiltinCommand(name) {
		p, ok := r.BuiltinCommandPermission(name)
		if !ok {
			p = perm.New(0)
		}
		if err := perm.ApplySpec(&p, specStr, r.GroupLookup, r.RoleLookup); err != nil {
			return model.NewMessage(fmt.Sprintf("invalid permission string '%s'", specStr)), true, nil
		}
		r.SetBuiltinCommandPermission(name, p)
		return model.NewMessage(fmt.Sprintf("permissions for '%s' changed to %x", name, uint64(p.Flags))), true, nil
	}

	if _, ok := r.LookupCommand(name); !ok {
		return model.NewMessage(fmt.Sprintf("'%s' does not exist", name)), true, nil
	}
	p := r.CommandPermission(name)
	if err := perm.ApplySpec(&p, specStr, r.GroupLookup, r.RoleLookup); err != nil {
		return model.NewMessage(fmt.Sprintf("invalid permission string '%s'", specStr)), true, nil
	}
	r.SetCommandPermission(name, p)
	return model.NewMessage(fmt.Sprintf("permissions for '%s' changed to %x", name, uint64(p.Flags))), true, nil
}

// builtinMarkov implements the `markov` builtin command (spec.md's
// supplemented feature, C10): generate one line via the markov engine
// injected as MarkovGenerate.
func (r *Registry) builtinMarkov() (model.Message, bool, error) {
	if r.MarkovGenerate == nil {
		return model.NewMessage("markov chain is not loaded"), true, nil
	}
	line, err := r.MarkovGenerate()
	if err != nil {
		return model.Message{}, false, err
	}
	return model.NewMessage(line), true, nil
}

// ValueToMessage mirrors `messageFromValue`/`value_to_message` in
// command.cpp/builtin.cpp: flattens nested lists, splits leading `:`
// into an emote fragment (with `\:` escaping it to a literal colon),
// and renders anything else via value.Render.
func ValueToMessage(v value.Value) model.Message {
	var frags []model.Fragment
	var walk func(value.Value)
	walk = func(v value.Value) {
		if v.IsVoid() {
			return
		}
		if v.Type().Kind == value.KindList && !v.Type().IsString() {
			for _, e := range v.AsList() {
				walk(e)
			}
			return
		}
		if v.Type().IsString() {
			s := v.AsString()
			switch {
			case strings.HasPrefix(s, `\:`):
				frags = append(frags, model.TextFragment(s[1:]))
			case strings.HasPrefix(s, ":") && len(s) > 1:
				frags = append(frags, model.EmoteFragment(s[1:], ""))
			default:
				frags = append(frags, model.TextFragment(s))
			}
			return
		}
		frags = append(frags, model.TextFragment(value.Render(v)))
	}
	walk(v)
	return model.Message{Fragments: frags}
}
