package discord

import (
	"context"
	"strings"

	"github.com/zhiayang/ikura/pkg/channels"
	"github.com/zhiayang/ikura/pkg/config"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
)

// Channel is one Discord text channel the bot is configured to serve,
// implementing the abstract Channel interface by delegating network
// I/O to the shared gateway/REST Client.
type Channel struct {
	channels.BaseChannel
	client *Client
	guild  *guildState
}

var _ channels.Channel = (*Channel)(nil)

func newChannel(c *Client, channelID string, cfg config.ChannelConfig, gs *guildState) *Channel {
	prefixes := []string{"!"}
	if cfg.CommandPrefix != "" {
		prefixes = []string{cfg.CommandPrefix}
	}
	ignored := make(map[string]struct{}, len(c.cfg.IgnoredUsers))
	for _, u := range c.cfg.IgnoredUsers {
		ignored[u] = struct{}{}
	}
	return &Channel{
		client: c,
		guild:  gs,
		BaseChannel: channels.BaseChannel{
			BackendID:      model.BackendDiscord,
			ChannelName:    channelID,
			Prefixes:       prefixes,
			Lurk:           cfg.Lurk,
			RespondToPings: cfg.RespondToPings,
			SilentErrors:   cfg.SilentInterpErrors,
			RunHandlers:    true,
			BotUserID:      c.botUserID,
			IgnoredUsers:   ignored,
			Bus:            c.bus,
		},
	}
}

// Username returns the bot's own Discord username, used for self-
// mention detection.
func (c *Channel) Username() string { return c.client.cfg.Username }

// CheckUserPermissions resolves the caller's stored flag mask, group
// memberships, and (Discord-only) role memberships. spec.md §9 flags
// the original's Discord permission check as returning the constant
// EVERYONE, unclear whether intentional; this build resolves the open
// question by using the user's real stored flags plus roles.
func (c *Channel) CheckUserPermissions(user model.UserRef) perm.Identity {
	rec := c.client.db.GetOrCreateUser(user, "")
	flags := rec.Flags | roleFlags(c.client.cfg, user.ID)
	return perm.Identity{Flags: flags, Groups: rec.Groups, Roles: rec.Roles}
}

// SendMessage posts msg to this channel via the REST API, rendering
// emote fragments into Discord's `<:name:id>` form where the guild's
// emote table resolves them.
func (c *Channel) SendMessage(ctx context.Context, msg model.Message) error {
	content := renderMessage(msg, c.guild)
	if content == "" {
		return nil
	}
	_, err := c.client.CreateMessage(ctx, c.ChannelName, content)
	return err
}

// renderMessage joins msg's fragments the same way model.Message.Render
// does, except emote fragments are rewritten through the guild's emote
// table instead of emitted as bare names.
func renderMessage(msg model.Message, gs *guildState) string {
	var sb strings.Builder
	for i, f := range msg.Fragments {
		text := f.Text
		if f.Kind == model.FragmentEmote {
			text = renderEmote(gs, f.Text)
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
