package channels

import (
	"context"

	"github.com/zhiayang/ikura/pkg/bus"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
)

// UserStore is the subset of pkg/db.Database a backend driver needs to
// resolve and update user records. It is injected rather than imported
// directly: pkg/db already imports pkg/dispatch, which imports
// pkg/channels, so pkg/channels importing pkg/db back would cycle.
type UserStore interface {
	GetOrCreateUser(ref model.UserRef, displayName string) *model.User
	SetUserFlags(ref model.UserRef, flags perm.Flag)
	SetUserRoles(ref model.UserRef, roles []model.RoleID)
}

// BaseChannel implements the config-driven, backend-agnostic portion
// of the Channel interface (spec.md §4.8: "differences are behind this
// interface"), leaving Username, CheckUserPermissions, and SendMessage
// to the embedding driver type, which alone knows how to reach the
// network.
type BaseChannel struct {
	BackendID   model.Backend
	ChannelName string
	Prefixes    []string

	Lurk           bool
	RespondToPings bool
	SilentErrors   bool
	RunHandlers    bool

	BotUserID    string
	IgnoredUsers map[string]struct{}

	Bus *bus.MessageBus
}

func (c *BaseChannel) Backend() model.Backend     { return c.BackendID }
func (c *BaseChannel) Name() string               { return c.ChannelName }
func (c *BaseChannel) CommandPrefixes() []string  { return c.Prefixes }
func (c *BaseChannel) ShouldReplyToMentions() bool { return c.RespondToPings }
func (c *BaseChannel) ShouldPrintInterpErrors() bool { return !c.SilentErrors }
func (c *BaseChannel) ShouldLurk() bool            { return c.Lurk }
func (c *BaseChannel) ShouldRunMessageHandlers() bool { return c.RunHandlers }

// IsIgnored reports whether user is this channel's own bot account or
// on its configured ignore list (spec.md §4.9 dispatch step 1).
func (c *BaseChannel) IsIgnored(user model.UserRef) bool {
	if c.BotUserID != "" && user.ID == c.BotUserID {
		return true
	}
	if c.IgnoredUsers == nil {
		return false
	}
	_, ignored := c.IgnoredUsers[user.ID]
	return ignored
}

// HandleMessage publishes an inbound chat line onto the bus, the
// common entry point every driver's receive loop calls once it has
// stripped backend-specific framing off a message (spec.md §4.9's
// dispatch entry point).
func (c *BaseChannel) HandleMessage(ctx context.Context, sender model.UserRef, displayName, text string) {
	_ = c.Bus.PublishInbound(ctx, bus.InboundMessage{
		Channel:           model.ChannelRef{Backend: c.BackendID, ID: c.ChannelName},
		Sender:            sender,
		SenderDisplayName: displayName,
		Text:              text,
	})
}
