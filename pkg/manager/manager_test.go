package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhiayang/ikura/pkg/bus"
	"github.com/zhiayang/ikura/pkg/dispatch"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
)

// fakeChannel is a minimal channels.Channel, mirroring pkg/dispatch's
// own test double.
type fakeChannel struct {
	backend     model.Backend
	name        string
	replyToPing bool
	sent        []model.Message
}

func (c *fakeChannel) Backend() model.Backend                        { return c.backend }
func (c *fakeChannel) Name() string                                  { return c.name }
func (c *fakeChannel) Username() string                               { return "bot" }
func (c *fakeChannel) CommandPrefixes() []string                     { return []string{"!"} }
func (c *fakeChannel) ShouldReplyToMentions() bool                   { return c.replyToPing }
func (c *fakeChannel) ShouldPrintInterpErrors() bool                  { return true }
func (c *fakeChannel) ShouldLurk() bool                               { return true }
func (c *fakeChannel) ShouldRunMessageHandlers() bool                 { return false }
func (c *fakeChannel) CheckUserPermissions(u model.UserRef) perm.Identity { return perm.Identity{Flags: perm.FlagEveryone} }
func (c *fakeChannel) IsIgnored(u model.UserRef) bool                 { return false }
func (c *fakeChannel) SendMessage(ctx context.Context, msg model.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

func TestRunInboundLoopRoutesToRegisteredChannel(t *testing.T) {
	b := bus.NewMessageBus()
	d := &dispatch.Dispatcher{}
	m := New(b, d, true)

	ch := &fakeChannel{backend: model.BackendTwitch, name: "chan", replyToPing: true}
	m.RegisterChannel(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.RunInboundLoop(ctx)

	ref := model.ChannelRef{Backend: model.BackendTwitch, ID: "chan"}
	err := b.PublishInbound(ctx, bus.InboundMessage{
		Channel: ref,
		Sender:  model.UserRef{Backend: model.BackendTwitch, ID: "u1"},
		Text:    "hey bot how are you",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(ch.sent) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRunOutboundLoopSendsToRegisteredChannel(t *testing.T) {
	b := bus.NewMessageBus()
	d := &dispatch.Dispatcher{}
	m := New(b, d, true)

	ch := &fakeChannel{backend: model.BackendDiscord, name: "general"}
	m.RegisterChannel(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.RunOutboundLoop(ctx)

	ref := model.ChannelRef{Backend: model.BackendDiscord, ID: "general"}
	err := b.PublishOutbound(ctx, bus.OutboundMessage{Channel: ref, Message: model.NewMessage("hi")})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(ch.sent) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "hi", ch.sent[0].Render())
}

func TestChannelLookupMissReturnsFalse(t *testing.T) {
	b := bus.NewMessageBus()
	m := New(b, &dispatch.Dispatcher{}, true)
	_, ok := m.Channel(model.ChannelRef{Backend: model.BackendIRC, ID: "nope"})
	require.False(t, ok)
}
