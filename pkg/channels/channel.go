// Package channels defines the abstract Channel surface every backend
// driver (twitch, discord, irc) implements, so the dispatcher (pkg/dispatch)
// stays backend-agnostic (spec.md §4.8).
package channels

import (
	"context"

	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
)

// Channel is the interface the dispatcher consults for every inbound
// message: name/username lookups, prefix detection, behavior flags,
// permission resolution, and outbound sending. Differences between
// backends (Twitch IRC tags, Discord roles, plain IRC) live entirely
// behind this interface.
type Channel interface {
	// Backend reports which protocol this channel belongs to.
	Backend() model.Backend

	// Name returns the channel's human-readable name (a Twitch/IRC
	// channel name, or a Discord channel's display name).
	Name() string

	// Username returns the bot's own username/nick on this channel's
	// backend, used for self-mention detection.
	Username() string

	// CommandPrefixes returns the configured prefixes that introduce a
	// command invocation (spec.md §3's Channel.commandPrefix(es)).
	CommandPrefixes() []string

	// ShouldReplyToMentions reports whether a message that merely
	// @-mentions the bot (without a command prefix) should be answered
	// with a greeting.
	ShouldReplyToMentions() bool

	// ShouldPrintInterpErrors reports whether evaluator errors should
	// be sent back to the channel, or only logged (the channel's
	// silent-errors flag, inverted).
	ShouldPrintInterpErrors() bool

	// ShouldLurk reports whether the channel is in lurk mode: ordinary
	// messages are not fed to the Markov engine. Commands and mention
	// greetings are still answered, and every message is still logged.
	ShouldLurk() bool

	// ShouldRunMessageHandlers reports whether ordinary (non-command)
	// messages should be fed to the Markov engine. Every message is
	// logged whatever this returns.
	ShouldRunMessageHandlers() bool

	// CheckUserPermissions resolves a user's effective Identity for a
	// permission check on this channel (folding in Discord role
	// membership where applicable).
	CheckUserPermissions(user model.UserRef) perm.Identity

	// IsIgnored reports whether user is the bot's own account or on
	// this channel's ignore list (spec.md §4.9 dispatch step 1).
	IsIgnored(user model.UserRef) bool

	// SendMessage delivers msg to this channel, splitting/formatting it
	// as the backend requires.
	SendMessage(ctx context.Context, msg model.Message) error
}
