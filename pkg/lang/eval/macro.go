package eval

import (
	"fmt"
	"strings"

	"github.com/zhiayang/ikura/pkg/lang/parser"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/value"
)

// Macro is a user-defined macro (spec.md C7's "Macro"): a pre-split
// word list processed per spec.md §4.6's macro-expansion rules rather
// than evaluated as a single expression. It satisfies Invocable so it
// can be stored and called the same way as a Closure or Builtin, but
// its Invoke bypasses ordinary overload resolution: spec.md §4.6 step
// 3 converts every argument to its raw-string form first.
type Macro struct {
	Name  string
	Words []string
}

func (m *Macro) Type() *value.Type {
	return value.Function(value.VariadicList(value.String()), value.VariadicList(value.String()))
}

func (m *Macro) String() string  { return "macro " + m.Name }
func (m *Macro) MinArity() int   { return 0 }
func (m *Macro) Variadic() bool  { return true }

// Invoke renders every argument to its raw-string form, makes them
// available as $1.. inside the macro body, expands the body, and
// returns the per-fragment strings as a list<string> (macros are
// list<string> -> list<string> per spec.md §4.6).
func (m *Macro) Invoke(ctx *Context, args []value.Value) (value.Value, error) {
	strs := make([]string, len(args))
	for i, a := range args {
		strs[i] = value.Render(a)
	}

	callCtx := *ctx
	callCtx.Args = strs
	callCtx.RawArgs = strings.Join(strs, " ")

	frags, err := ExpandMacroFragments(m.Words, &callCtx, NewScope())
	if err != nil {
		return value.Value{}, err
	}
	out := make([]value.Value, len(frags))
	for i, f := range frags {
		out[i] = value.NewString(f.Text)
	}
	return value.NewList(value.String(), out), nil
}

// ExpandMacroFragments processes a macro's pre-split word list per
// spec.md §4.6:
//
//	\\        -> literal backslash word
//	\<expr>   -> parse+evaluate <expr>; a non-string list result is
//	             flattened, one fragment per element; otherwise the
//	             raw-string form of the result becomes one fragment
//	:NAME     -> emote fragment
//	\:        -> literal ":"
//	otherwise -> literal word
func ExpandMacroFragments(words []string, ctx *Context, scope *Scope) ([]model.Fragment, error) {
	frags := make([]model.Fragment, 0, len(words))
	for _, w := range words {
		switch {
		case w == `\\`:
			frags = append(frags, model.TextFragment(`\`))
		case w == `\:`:
			frags = append(frags, model.TextFragment(":"))
		case strings.HasPrefix(w, `\`) && len(w) > 1:
			exprSrc := w[1:]
			node, err := parser.ParseExpr(exprSrc)
			if err != nil {
				return nil, fmt.Errorf("macro expression %q: %w", exprSrc, err)
			}
			v, err := Eval(node, ctx, scope)
			if err != nil {
				return nil, err
			}
			if v.Type().Kind == value.KindList && !v.Type().IsString() {
				for _, e := range v.AsList() {
					frags = append(frags, model.TextFragment(value.Render(e)))
				}
			} else {
				frags = append(frags, model.TextFragment(value.Render(v)))
			}
		case strings.HasPrefix(w, ":") && len(w) > 1:
			frags = append(frags, model.EmoteFragment(w[1:], ""))
		default:
			frags = append(frags, model.TextFragment(w))
		}
	}
	return frags, nil
}

// SplitMacroWords splits raw `def`/`redef` expansion text into the
// word list a Macro stores, grounded on
// _examples/original_source/source/interp/macro.cpp's
// performExpansion: a run starting with `\` (but not `\\`) extends
// past spaces/semicolons while parens/braces/squares are unbalanced,
// so an inline expression like `\(1 + 2)` stays one word even though
// it contains a space-adjacent token.
func SplitMacroWords(code string) []string {
	var out []string
	end := 0
	for end < len(code) {
		addPiece := false

		switch {
		case strings.HasPrefix(code[end:], `\\`):
			end += 2

		case code[end] == '\\':
			end++
			depth := 0
			unterminated := false
			for {
				if end >= len(code) {
					unterminated = depth > 0
					break
				}
				switch code[end] {
				case '(', '{', '[':
					depth++
				case ')', '}', ']':
					depth--
				}
				end++
				if (code[end-1] == ' ' || code[end-1] == ';') && depth == 0 {
					break
				}
			}
			if !unterminated {
				addPiece = true
			}

		case code[end] != ' ':
			end++

		default:
			addPiece = true
		}

		if addPiece {
			out = append(out, code[:end])
			code = code[end:]
			end = 0
			for len(code) > 0 && (code[0] == ' ' || code[0] == '\t') {
				code = code[1:]
			}
		}
	}
	if end > 0 {
		out = append(out, code[:end])
	}
	return out
}

// ExpandMacroMessage expands a macro body straight to a Message, the
// form the dispatcher sends to a channel (spec.md §4.9 step 5).
func ExpandMacroMessage(words []string, ctx *Context, scope *Scope) (model.Message, error) {
	frags, err := ExpandMacroFragments(words, ctx, scope)
	if err != nil {
		return model.Message{}, err
	}
	return model.Message{Fragments: frags}, nil
}
