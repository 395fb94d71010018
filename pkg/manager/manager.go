// Package manager bridges the backend drivers (pkg/channels/*) to the
// message dispatcher (pkg/dispatch) over the shared message bus
// (pkg/bus): one goroutine drains inbound chat lines and routes each
// to its Channel's Dispatch call, a second drains outbound messages
// published to the bus by channel reference and sends each through its
// registered Channel. It also owns each backend driver's run loop,
// since spec.md §5 assigns the supervising "restart after protocol-
// fatal error" responsibility to an outer layer above the drivers
// themselves.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/zhiayang/ikura/pkg/bus"
	"github.com/zhiayang/ikura/pkg/channels"
	"github.com/zhiayang/ikura/pkg/dispatch"
	"github.com/zhiayang/ikura/pkg/logger"
	"github.com/zhiayang/ikura/pkg/model"
)

// Manager owns the channel registry and the two bus-draining loops.
// Each backend driver's own Client.Channels() method returns its
// concrete *twitch.Channel / *discord.Channel / *irc.Channel values;
// cmd/ikura's startup wiring calls RegisterChannel once per channel
// returned, so Manager itself only ever deals in the abstract
// channels.Channel interface.
type Manager struct {
	bus        *bus.MessageBus
	dispatcher *dispatch.Dispatcher

	mu       sync.RWMutex
	channels map[model.ChannelRef]channels.Channel

	enablePings bool
}

// New builds a Manager. enablePings is the process-wide toggle spec.md
// §4.9 step 3 calls `enablePings` (global_config in the original;
// cmd/ikura passes a constant true, as the config has no key for it).
func New(b *bus.MessageBus, d *dispatch.Dispatcher, enablePings bool) *Manager {
	return &Manager{
		bus:         b,
		dispatcher:  d,
		channels:    map[model.ChannelRef]channels.Channel{},
		enablePings: enablePings,
	}
}

// RegisterChannel makes ch reachable by its (backend, id) for inbound
// routing and outbound publishing. cmd/ikura calls this once per
// joined channel at startup (and, for Discord, again from the driver's
// OnChannelReady callback as guilds are discovered via GUILD_CREATE).
func (m *Manager) RegisterChannel(ch channels.Channel) {
	ref := model.ChannelRef{Backend: ch.Backend(), ID: ch.Name()}
	m.mu.Lock()
	m.channels[ref] = ch
	m.mu.Unlock()
}

// Channel looks up a previously registered channel.
func (m *Manager) Channel(ref model.ChannelRef) (channels.Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[ref]
	return ch, ok
}

// RunDriver runs a backend driver's Run loop and restarts it after a
// protocol-fatal error (spec.md §7: "Disconnect; an outer supervisor
// may restart"), backing off between attempts so a persistently
// failing backend doesn't spin.
func (m *Manager) RunDriver(ctx context.Context, name string, run func(context.Context) error) {
	backoff := time.Second
	const maxBackoff = time.Minute
	for {
		err := run(ctx)
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err != nil {
			logger.WarnCF("manager", "backend driver exited, restarting", map[string]any{
				"backend": name,
				"error":   err.Error(),
				"backoff": backoff.String(),
			})
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// RunInboundLoop drains bus.ConsumeInbound and dispatches each message
// against its registered Channel until ctx is cancelled.
func (m *Manager) RunInboundLoop(ctx context.Context) {
	for {
		msg, ok := m.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		ch, ok := m.Channel(msg.Channel)
		if !ok {
			logger.WarnCF("manager", "inbound message for unregistered channel", map[string]any{
				"backend": msg.Channel.Backend.String(),
				"channel": msg.Channel.ID,
			})
			continue
		}
		if err := m.dispatcher.Dispatch(ctx, msg.Sender.ID, msg.SenderDisplayName, msg.Sender, ch, msg.Text, m.enablePings, false); err != nil {
			logger.WarnCF("manager", "dispatch failed", map[string]any{"error": err.Error()})
		}
	}
}

// RunOutboundLoop drains bus.SubscribeOutbound (messages published to
// the bus by ChannelRef rather than sent through a Channel directly)
// and sends each via its registered Channel. The console returns
// `eval` output to its own session and does not publish here.
func (m *Manager) RunOutboundLoop(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		ch, ok := m.Channel(msg.Channel)
		if !ok {
			logger.WarnCF("manager", "outbound message for unregistered channel", map[string]any{
				"backend": msg.Channel.Backend.String(),
				"channel": msg.Channel.ID,
			})
			continue
		}
		if err := ch.SendMessage(ctx, msg.Message); err != nil {
			logger.WarnCF("manager", "outbound send failed", map[string]any{"error": err.Error()})
		}
	}
}
