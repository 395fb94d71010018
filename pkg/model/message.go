// Package model holds the domain entities named in spec.md §3: messages,
// channels, users, groups, roles, and guilds. These are the shapes the
// database (pkg/db) persists and the backend drivers (pkg/channels/*)
// produce and consume; they carry no persistence or transport logic of
// their own.
package model

import "strings"

// Backend identifies which protocol driver a Channel/User/Message
// belongs to.
type Backend int

const (
	BackendTwitch Backend = iota
	BackendDiscord
	BackendIRC
	// BackendConsole identifies the local admin console (pkg/console);
	// it never has persisted users/channels of its own in pkg/db, only
	// a ChannelRef to thread through eval.Context for `eval`/`global`.
	BackendConsole
)

func (b Backend) String() string {
	switch b {
	case BackendTwitch:
		return "twitch"
	case BackendDiscord:
		return "discord"
	case BackendIRC:
		return "irc"
	case BackendConsole:
		return "console"
	default:
		return "?"
	}
}

// FragmentKind discriminates the two kinds of Message fragment.
type FragmentKind int

const (
	FragmentText FragmentKind = iota
	FragmentEmote
)

// Fragment is one piece of a Message: either literal text or a named
// emote reference. spec.md §3: "an ordered sequence of fragments."
type Fragment struct {
	Kind FragmentKind
	Text string // literal text, or the emote's display name
	// EmoteID is the backend-specific identifier used to resolve the
	// emote's image/render form; empty for FragmentText.
	EmoteID string
}

func TextFragment(s string) Fragment  { return Fragment{Kind: FragmentText, Text: s} }
func EmoteFragment(name, id string) Fragment {
	return Fragment{Kind: FragmentEmote, Text: name, EmoteID: id}
}

// Message is an ordered sequence of fragments (spec.md §3). Empty
// messages (zero fragments, or all-empty text fragments) are not sent;
// callers should check IsEmpty before handing a Message to a driver.
type Message struct {
	Fragments []Fragment
}

// NewMessage builds a Message from a single literal text fragment,
// the common case for command/macro output.
func NewMessage(text string) Message {
	return Message{Fragments: []Fragment{TextFragment(text)}}
}

// IsEmpty reports whether m has no fragments, or only empty-text ones.
func (m Message) IsEmpty() bool {
	for _, f := range m.Fragments {
		if f.Kind == FragmentEmote || f.Text != "" {
			return false
		}
	}
	return true
}

// Render joins fragments into a plain-text string: fragments beginning
// with one of `.,?!` attach without a preceding space (spec.md §4.6's
// macro-expansion join rule applies identically to ordinary message
// rendering), every other fragment is space-separated.
func (m Message) Render() string {
	var sb strings.Builder
	for i, f := range m.Fragments {
		text := f.Text
		if f.Kind == FragmentEmote {
			text = f.Text
		}
		if i > 0 && !startsWithAttachingPunct(text) {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
	return sb.String()
}

func startsWithAttachingPunct(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '.', ',', '?', '!':
		return true
	default:
		return false
	}
}

// ChannelRef identifies a channel by (backend, id), the key the
// dispatcher and database use to look up live Channel state.
type ChannelRef struct {
	Backend Backend
	ID      string
}

// UserRef identifies a user by (backend, id) the same way.
type UserRef struct {
	Backend Backend
	ID      string
}
