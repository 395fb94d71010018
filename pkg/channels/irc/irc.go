// Package irc implements the generic IRC backend driver (spec.md
// §4.8): one plain-TCP-or-TLS connection per configured server,
// optional SASL PLAIN authentication with a NickServ fallback, CTCP
// reply handling, and PRIVMSG routing to either the dispatcher
// (channel messages) or a private-message log (messages addressed
// directly to the bot).
//
// Grounded on pkg/channels/twitch's connection-lifecycle shape (a
// Client owning the socket, a buffered send queue drained by one
// goroutine, a receive loop parsing lines via ergochat/irc-go) since
// the teacher repo carries no IRC driver of its own to generalise from
// directly — this package adapts the Twitch driver's idiom to plain
// IRC's simpler (unauthenticated-by-default, SASL-optional) handshake.
package irc

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"

	"github.com/zhiayang/ikura/pkg/bus"
	"github.com/zhiayang/ikura/pkg/channels"
	"github.com/zhiayang/ikura/pkg/config"
	"github.com/zhiayang/ikura/pkg/logger"
	"github.com/zhiayang/ikura/pkg/model"
)

// SASLTimeout bounds how long the handshake waits for 903/902/904
// (spec.md §4.8: "await ... with a 3 s timeout").
const SASLTimeout = 3 * time.Second

const ctcpDelim = "\x01"

// Client owns one IRC server connection, shared by every joined
// Channel on that server.
type Client struct {
	cfg config.IRCServerConfig
	bus *bus.MessageBus
	db  channels.UserStore

	mu     sync.RWMutex
	conn   net.Conn
	reader *bufio.Reader

	sendQueue chan string
	channels  map[string]*Channel

	ready     chan struct{}
	readyOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient builds a Client and its per-channel Channel objects but
// does not connect yet.
func NewClient(cfg config.IRCServerConfig, b *bus.MessageBus, store channels.UserStore) *Client {
	ignored := make(map[string]struct{}, len(cfg.IgnoredUsers))
	for _, u := range cfg.IgnoredUsers {
		ignored[u] = struct{}{}
	}

	c := &Client{
		cfg:       cfg,
		bus:       b,
		db:        store,
		sendQueue: make(chan string, 64),
		channels:  map[string]*Channel{},
		ready:     make(chan struct{}),
	}

	for _, chCfg := range cfg.Channels {
		prefixes := []string{"!"}
		if chCfg.CommandPrefix != "" {
			prefixes = []string{chCfg.CommandPrefix}
		}
		ch := &Channel{
			client: c,
			BaseChannel: channels.BaseChannel{
				BackendID:      model.BackendIRC,
				ChannelName:    strings.ToLower(chCfg.Name),
				Prefixes:       prefixes,
				Lurk:           chCfg.Lurk,
				RespondToPings: chCfg.RespondToPings,
				SilentErrors:   chCfg.SilentInterpErrors,
				RunHandlers:    true,
				BotUserID:      strings.ToLower(cfg.Nickname),
				IgnoredUsers:   ignored,
				Bus:            b,
			},
		}
		c.channels[ch.ChannelName] = ch
	}

	return c
}

// Channel looks up a joined channel by name (without the leading '#').
func (c *Client) Channel(name string) (*Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[strings.ToLower(name)]
	return ch, ok
}

// Channels returns every joined channel, for the manager to register.
func (c *Client) Channels() []*Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// Run dials the server (TLS if configured), authenticates, joins every
// configured channel, and serves the connection until ctx is
// cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	addr := fmt.Sprintf("%s:%d", c.cfg.Hostname, c.cfg.Port)
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var conn net.Conn
	var err error
	if c.cfg.UseSSL {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{MinVersion: tls.VersionTLS12, ServerName: c.cfg.Hostname})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("irc: connect %s: %w", addr, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.mu.Unlock()
	defer conn.Close()

	if err := c.handshake(); err != nil {
		return fmt.Errorf("irc: handshake: %w", err)
	}

	c.wg.Add(2)
	go c.sendPump()
	go c.receivePump()

	select {
	case <-c.ready:
	case <-time.After(15 * time.Second):
		logger.WarnCF("irc", "timed out waiting for welcome", map[string]any{"server": c.cfg.Hostname})
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	for _, chCfg := range c.cfg.Channels {
		c.enqueue("JOIN #" + chCfg.Name)
	}

	c.wg.Wait()
	return nil
}

func (c *Client) handshake() error {
	nick := c.cfg.Nickname
	user := c.cfg.Username
	if user == "" {
		user = nick
	}

	if c.cfg.UseSASL && c.cfg.Password != "" {
		if err := c.saslHandshake(nick, user); err != nil {
			logger.WarnCF("irc", "SASL failed, falling back to NickServ", map[string]any{"error": err.Error()})
			if err := c.writeLine("NICK " + nick); err != nil {
				return err
			}
			if err := c.writeLine(fmt.Sprintf("USER %s 0 * :%s", user, user)); err != nil {
				return err
			}
			if c.cfg.Password != "" {
				c.enqueueUnbuffered(fmt.Sprintf("PRIVMSG NickServ :IDENTIFY %s", c.cfg.Password))
			}
			return nil
		}
		return nil
	}

	if err := c.writeLine("NICK " + nick); err != nil {
		return err
	}
	if err := c.writeLine(fmt.Sprintf("USER %s 0 * :%s", user, user)); err != nil {
		return err
	}
	if c.cfg.Password != "" {
		c.enqueueUnbuffered(fmt.Sprintf("PRIVMSG NickServ :IDENTIFY %s", c.cfg.Password))
	}
	return nil
}

// saslHandshake performs CAP REQ :sasl → AUTHENTICATE PLAIN →
// base64(user\0user\0password) → await 903/902/904, each step bounded
// by SASLTimeout (spec.md §4.8).
func (c *Client) saslHandshake(nick, user string) error {
	if err := c.writeLine("CAP REQ :sasl"); err != nil {
		return err
	}
	if _, err := c.readLineWithTimeout(c.reader, SASLTimeout); err != nil {
		return fmt.Errorf("no CAP ACK: %w", err)
	}

	if err := c.writeLine("NICK " + nick); err != nil {
		return err
	}
	if err := c.writeLine(fmt.Sprintf("USER %s 0 * :%s", user, user)); err != nil {
		return err
	}

	if err := c.writeLine("AUTHENTICATE PLAIN"); err != nil {
		return err
	}
	if _, err := c.readLineWithTimeout(c.reader, SASLTimeout); err != nil {
		return fmt.Errorf("no AUTHENTICATE prompt: %w", err)
	}

	payload := base64.StdEncoding.EncodeToString([]byte(user + "\x00" + user + "\x00" + c.cfg.Password))
	if err := c.writeLine("AUTHENTICATE " + payload); err != nil {
		return err
	}

	line, err := c.readLineWithTimeout(c.reader, SASLTimeout)
	if err != nil {
		return fmt.Errorf("no SASL result: %w", err)
	}
	msg, perr := ircmsg.ParseLine(line)
	if perr == nil {
		switch msg.Command {
		case "903":
			return c.writeLine("CAP END")
		case "902", "904":
			return fmt.Errorf("SASL rejected: %s", line)
		}
	}
	return fmt.Errorf("unexpected SASL response: %s", line)
}

func (c *Client) readLineWithTimeout(r *bufio.Reader, timeout time.Duration) (string, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.conn.SetReadDeadline(time.Time{})
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Client) writeLine(line string) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("irc: not connected")
	}
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}

func (c *Client) enqueue(line string) {
	select {
	case c.sendQueue <- line:
	case <-c.ctx.Done():
	}
}

// enqueueUnbuffered is used for handshake-time sends issued before the
// send pump goroutine exists yet.
func (c *Client) enqueueUnbuffered(line string) {
	_ = c.writeLine(line)
}

func (c *Client) sendPump() {
	defer c.wg.Done()
	for {
		select {
		case line, ok := <-c.sendQueue:
			if !ok {
				return
			}
			if err := c.writeLine(line); err != nil {
				logger.WarnCF("irc", "send failed", map[string]any{"error": err.Error()})
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) receivePump() {
	defer c.wg.Done()
	defer c.cancel()

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			logger.WarnCF("irc", "read failed, closing connection", map[string]any{"error": err.Error()})
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		c.handleLine(line)

		select {
		case <-c.ctx.Done():
			return
		default:
		}
	}
}

func (c *Client) handleLine(line string) {
	msg, err := ircmsg.ParseLine(line)
	if err != nil {
		logger.DebugCF("irc", "unparseable IRC line", map[string]any{"line": line})
		return
	}

	switch msg.Command {
	case "PING":
		c.enqueue("PONG :" + firstParam(msg.Params))

	case "001":
		c.readyOnce.Do(func() { close(c.ready) })

	case "PRIVMSG":
		c.handlePrivmsg(msg)
	}
}

func firstParam(params []string) string {
	if len(params) == 0 {
		return ""
	}
	return params[0]
}

func (c *Client) handlePrivmsg(msg ircmsg.Message) {
	if len(msg.Params) < 2 {
		return
	}
	target := msg.Params[0]
	text := msg.Params[1]
	nick := nickFromSource(msg.Source)

	if ctcp, ok := parseCTCP(text); ok {
		c.replyCTCP(nick, ctcp)
		return
	}

	if strings.HasPrefix(target, "#") {
		chanName := strings.TrimPrefix(target, "#")
		ch, ok := c.Channel(chanName)
		if !ok {
			return
		}
		ref := model.UserRef{Backend: model.BackendIRC, ID: stripIdentTilde(nick)}
		c.db.GetOrCreateUser(ref, nick)
		ch.HandleMessage(c.ctx, ref, nick, text)
		return
	}

	// Message addressed directly to the bot: spec.md §4.8 routes this
	// to a private-message log rather than the dispatcher.
	logger.InfoCF("irc", "private message", map[string]any{
		"from": nick,
		"text": text,
	})
}

// stripIdentTilde removes a leading '~' (no-ident-response marker)
// before name-based ignore checks (spec.md §4.8).
func stripIdentTilde(nick string) string {
	return strings.TrimPrefix(nick, "~")
}

func nickFromSource(source string) string {
	if i := strings.Index(source, "!"); i >= 0 {
		return source[:i]
	}
	return source
}

// parseCTCP extracts a CTCP command (VERSION, CLIENTINFO, PING, TIME)
// from a `\x01COMMAND args\x01`-delimited PRIVMSG body.
func parseCTCP(text string) (string, bool) {
	if !strings.HasPrefix(text, ctcpDelim) || !strings.HasSuffix(text, ctcpDelim) || len(text) < 2 {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(text, ctcpDelim), ctcpDelim), true
}

// replyCTCP answers VERSION/CLIENTINFO/PING/TIME with a NOTICE carrying
// the same `\x01`-delimited framing (spec.md §4.8).
func (c *Client) replyCTCP(nick, ctcp string) {
	fields := strings.SplitN(ctcp, " ", 2)
	cmd := strings.ToUpper(fields[0])

	var reply string
	switch cmd {
	case "VERSION":
		reply = "VERSION ikura"
	case "CLIENTINFO":
		reply = "CLIENTINFO VERSION CLIENTINFO PING TIME"
	case "PING":
		if len(fields) > 1 {
			reply = "PING " + fields[1]
		} else {
			reply = "PING"
		}
	case "TIME":
		reply = "TIME " + time.Now().Format(time.RFC1123Z)
	default:
		return
	}
	c.enqueue(fmt.Sprintf("NOTICE %s :%s%s%s", nick, ctcpDelim, reply, ctcpDelim))
}
