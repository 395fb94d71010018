package twitch

import (
	"context"
	"strings"

	"github.com/zhiayang/ikura/pkg/channels"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
)

// Channel is one joined Twitch channel, implementing the abstract
// Channel interface by delegating actual network I/O to the shared
// Client.
type Channel struct {
	channels.BaseChannel
	client *Client
}

var _ channels.Channel = (*Channel)(nil)

// Username returns the bot's own Twitch login, used for self-mention
// detection.
func (c *Channel) Username() string { return strings.ToLower(c.client.cfg.Username) }

// CheckUserPermissions resolves the caller's stored flag mask and
// cross-backend group memberships (Twitch has no role concept, so
// Identity.Roles is always empty).
func (c *Channel) CheckUserPermissions(user model.UserRef) perm.Identity {
	rec := c.client.db.GetOrCreateUser(user, "")
	return perm.Identity{Flags: rec.Flags, Groups: rec.Groups}
}

// SendMessage delivers msg to this Twitch channel via the shared
// Client's rate-limited send pump.
func (c *Channel) SendMessage(ctx context.Context, msg model.Message) error {
	c.client.SendPrivmsg(c.ChannelName, msg.Render())
	return nil
}
