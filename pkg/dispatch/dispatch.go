// Package dispatch implements the message dispatcher (spec.md C9):
// the backend-agnostic routing between an inbound chat line and
// either command dispatch or the Markov ingestor, plus a persisted
// log entry for every message. Grounded on
// _examples/original_source/source/interp/command.cpp's
// processMessage/processCommand.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/zhiayang/ikura/pkg/channels"
	"github.com/zhiayang/ikura/pkg/lang/eval"
	"github.com/zhiayang/ikura/pkg/logger"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
	"github.com/zhiayang/ikura/pkg/registry"
)

// LogEntry is one persisted record of an observed message (spec.md
// §4.9 step 5); pkg/db owns actually writing these out.
type LogEntry struct {
	Timestamp      time.Time
	UserID         string
	Channel        model.ChannelRef
	Words          []string
	EmotePositions []int
	IsCommand      bool
	IsEdit         bool
}

// Dispatcher wires the command registry to the abstract Channel
// surface; it holds no backend-specific state of its own.
type Dispatcher struct {
	Registry *registry.Registry

	// Persist records a LogEntry for every processed message; nil
	// disables logging (e.g. in tests).
	Persist func(LogEntry)

	// IngestMarkov feeds a non-command, non-lurk-mode message to the
	// Markov trainer (pkg/markov); nil disables training.
	IngestMarkov func(text string, emotePositions []int)

	// DetectEmotes finds emote token positions (by word index) in a
	// tokenised message; nil means no emote detection is wired yet.
	DetectEmotes func(words []string) []int

	// Greeting generates the response to a bare @-mention (spec.md
	// §4.9 step 3); defaults to a static greeting if nil.
	Greeting func(callerDisplay string) model.Message
}

// Dispatch runs spec.md §4.9's top-level algorithm for one inbound
// message. enablePings mirrors the caller-supplied toggle (e.g. a
// per-backend or per-guild configuration flag); isEdit marks a message
// as an edited resend for the log entry.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, displayName string, sender model.UserRef, ch channels.Channel, message string, enablePings, isEdit bool) error {
	if ch.IsIgnored(sender) {
		return nil
	}

	isCommand := false
	var prefix string
	for _, p := range ch.CommandPrefixes() {
		if strings.HasPrefix(message, p) {
			prefix = p
			isCommand = true
			break
		}
	}

	switch {
	case isCommand:
		tail := strings.TrimPrefix(message, prefix)
		d.dispatchCommand(ctx, userID, displayName, ch, tail)

	case ch.ShouldReplyToMentions() && enablePings && mentionsUsername(message, ch.Username()):
		if err := ch.SendMessage(ctx, d.greeting(displayName)); err != nil {
			logger.WarnCF("dispatch", "failed to send mention reply", map[string]any{"error": err.Error()})
		}

	case ch.ShouldRunMessageHandlers() && !ch.ShouldLurk():
		if d.IngestMarkov != nil {
			d.IngestMarkov(message, d.emotePositions(message))
		}
	}

	if d.Persist != nil {
		words := strings.Fields(message)
		d.Persist(LogEntry{
			Timestamp:      time.Now(),
			UserID:         userID,
			Channel:        model.ChannelRef{Backend: ch.Backend(), ID: ch.Name()},
			Words:          words,
			EmotePositions: d.emotePositions(message),
			IsCommand:      isCommand,
			IsEdit:         isEdit,
		})
	}

	return nil
}

func (d *Dispatcher) emotePositions(message string) []int {
	if d.DetectEmotes == nil {
		return nil
	}
	return d.DetectEmotes(strings.Fields(message))
}

func (d *Dispatcher) greeting(displayName string) model.Message {
	if d.Greeting != nil {
		return d.Greeting(displayName)
	}
	return model.NewMessage(displayName + " AYAYA /")
}

func mentionsUsername(message, username string) bool {
	if username == "" {
		return false
	}
	return strings.Contains(strings.ToLower(message), strings.ToLower(username))
}

// dispatchCommand implements spec.md §4.9's command-dispatch algorithm:
// split head/tail, resolve through the registry (builtins first, then
// the alias-resolved command table), permission-check, invoke, and
// send any resulting Value back as a Message.
func (d *Dispatcher) dispatchCommand(ctx context.Context, callerID, callerDisplay string, ch channels.Channel, input string) {
	input = strings.TrimSpace(input)
	head, tail := input, ""
	if i := strings.IndexByte(input, ' '); i >= 0 {
		head, tail = input[:i], strings.TrimSpace(input[i+1:])
	}
	if head == "" {
		return
	}

	identity := ch.CheckUserPermissions(model.UserRef{Backend: ch.Backend(), ID: callerID})

	if registry.IsBuiltinCommand(head) {
		d.runBuiltin(ctx, callerID, callerDisplay, ch, head, tail, identity)
		return
	}

	cmd, ok := d.Registry.LookupCommand(head)
	if !ok {
		logger.WarnCF("dispatch", "non-existent command", map[string]any{"user": callerID, "command": head})
		return
	}

	p := d.Registry.CommandPermission(head)
	if !p.Check(identity) {
		if ch.ShouldPrintInterpErrors() {
			d.send(ctx, ch, model.NewMessage("insufficient permissions"))
		}
		return
	}

	args := splitArgs(tail)
	evalCtx := eval.NewContext(d.Registry, callerID, callerDisplay,
		model.ChannelRef{Backend: ch.Backend(), ID: ch.Name()}, args, tail, time.Now())

	v, err := eval.InvokeCommand(cmd, evalCtx, args)
	if err != nil {
		logger.WarnCF("dispatch", "command failed", map[string]any{"command": head, "error": err.Error()})
		if ch.ShouldPrintInterpErrors() {
			d.send(ctx, ch, model.NewMessage(err.Error()))
		}
		return
	}

	msg := registry.ValueToMessage(v)
	if !msg.IsEmpty() {
		d.send(ctx, ch, msg)
	}
}

func (d *Dispatcher) runBuiltin(ctx context.Context, callerID, callerDisplay string, ch channels.Channel, name, tail string, identity perm.Identity) {
	p, ok := d.Registry.BuiltinCommandPermission(name)
	if ok && !p.Check(identity) {
		logger.WarnCF("dispatch", "insufficient permissions for builtin command", map[string]any{"user": callerID, "command": name})
		d.send(ctx, ch, model.NewMessage("insufficient permissions"))
		return
	}

	args := splitArgs(tail)
	evalCtx := eval.NewContext(d.Registry, callerID, callerDisplay,
		model.ChannelRef{Backend: ch.Backend(), ID: ch.Name()}, args, tail, time.Now())

	msg, send, err := d.Registry.RunBuiltinCommand(evalCtx, name, tail)
	if err != nil {
		logger.WarnCF("dispatch", "builtin command failed", map[string]any{"command": name, "error": err.Error()})
		return
	}
	if send && !msg.IsEmpty() {
		d.send(ctx, ch, msg)
	}
}

func (d *Dispatcher) send(ctx context.Context, ch channels.Channel, msg model.Message) {
	if err := ch.SendMessage(ctx, msg); err != nil {
		logger.WarnCF("dispatch", "send failed", map[string]any{"error": err.Error()})
	}
}

func splitArgs(tail string) []string {
	if tail == "" {
		return nil
	}
	return strings.Fields(tail)
}
