package bus

import "github.com/zhiayang/ikura/pkg/model"

// InboundMessage is what a backend driver (pkg/channels/*) publishes
// for every chat line it receives, before the dispatcher (pkg/dispatch)
// has done command-prefix detection or permission checking.
type InboundMessage struct {
	Channel model.ChannelRef
	Sender  model.UserRef

	SenderDisplayName string

	// Text is the message content with backend-specific framing
	// (IRC tags, Discord REST envelope) already stripped.
	Text string
}

// OutboundMessage is what the dispatcher (or the console's `eval`
// command) publishes for a backend driver to actually send.
type OutboundMessage struct {
	Channel model.ChannelRef
	Message model.Message
}
