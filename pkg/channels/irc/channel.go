package irc

import (
	"context"
	"strings"

	"github.com/zhiayang/ikura/pkg/channels"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
)

// Channel is one joined channel on an IRC server, implementing the
// abstract Channel interface by delegating network I/O to the shared
// Client.
type Channel struct {
	channels.BaseChannel
	client *Client
}

var _ channels.Channel = (*Channel)(nil)

// Username returns the bot's own IRC nickname, used for self-mention
// detection.
func (c *Channel) Username() string { return strings.ToLower(c.client.cfg.Nickname) }

// CheckUserPermissions resolves the caller's stored flag mask and
// cross-backend group memberships. IRC has no native role/badge
// concept, so this is entirely database-driven (no implicit flags the
// way Twitch badges or a Discord owner id confer them).
func (c *Channel) CheckUserPermissions(user model.UserRef) perm.Identity {
	rec := c.client.db.GetOrCreateUser(user, "")
	return perm.Identity{Flags: rec.Flags, Groups: rec.Groups}
}

// SendMessage delivers msg to this channel as a raw PRIVMSG.
func (c *Channel) SendMessage(ctx context.Context, msg model.Message) error {
	c.client.enqueue("PRIVMSG #" + c.ChannelName + " :" + msg.Render())
	return nil
}
