// Package twitch implements the Twitch IRC-over-WebSocket driver
// (spec.md §4.8): a single shared connection per configured account,
// joining one channel per pkg/config.ChannelConfig entry, with a
// token-bucket-gated send pump and an IRC-line receive pump.
//
// Grounded on the teacher's own gorilla/websocket client idiom in
// _examples/zilin-picoclaw/pkg/channels/pico (connect-with-backoff,
// a buffered send channel drained by one goroutine, a receive loop
// publishing onto a shared bus) and on ergochat/irc-go's ircmsg for
// line parsing, which picoclaw's go.mod carries but never imports.
package twitch

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/gorilla/websocket"

	"github.com/zhiayang/ikura/pkg/bus"
	"github.com/zhiayang/ikura/pkg/channels"
	"github.com/zhiayang/ikura/pkg/config"
	"github.com/zhiayang/ikura/pkg/logger"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
	"github.com/zhiayang/ikura/pkg/rate"
)

// GatewayURL is Twitch's chat-over-WebSocket endpoint (spec.md §4.8).
const GatewayURL = "wss://irc-ws.chat.twitch.tv"

// MaxConnectRetries and InitialBackoff implement spec.md §4.8's
// "up to 5 exponential-backoff retries (start 500 ms, ×2 each)".
const (
	MaxConnectRetries = 5
	InitialBackoff    = 500 * time.Millisecond
)

// MaxMessageRunes is the 500-Unicode-codepoint split threshold spec.md
// §4.8 and §8's testable property name for outbound Twitch messages.
const MaxMessageRunes = 500

// Client owns the single Twitch IRC-over-WebSocket connection for one
// configured account, shared by every joined Channel.
type Client struct {
	cfg config.TwitchConfig
	bus *bus.MessageBus
	db  channels.UserStore

	mu      sync.RWMutex
	conn    *websocket.Conn
	ready   chan struct{}
	readyOnce sync.Once

	sendQueue chan string
	limiter   *rate.TwitchLimiter

	channels map[string]*Channel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient builds a Client and its per-channel Channel objects, one
// per cfg.Channels entry, but does not connect yet.
func NewClient(cfg config.TwitchConfig, b *bus.MessageBus, store channels.UserStore) *Client {
	ignored := make(map[string]struct{}, len(cfg.IgnoredUsers))
	for _, u := range cfg.IgnoredUsers {
		ignored[u] = struct{}{}
	}

	c := &Client{
		cfg:       cfg,
		bus:       b,
		db:        store,
		ready:     make(chan struct{}),
		sendQueue: make(chan string, 64),
		limiter:   rate.NewTwitchLimiter(false),
		channels:  map[string]*Channel{},
	}

	for _, chCfg := range cfg.Channels {
		prefixes := []string{"!"}
		if chCfg.CommandPrefix != "" {
			prefixes = []string{chCfg.CommandPrefix}
		}
		ch := &Channel{
			client: c,
			BaseChannel: channels.BaseChannel{
				BackendID:      model.BackendTwitch,
				ChannelName:    strings.ToLower(chCfg.Name),
				Prefixes:       prefixes,
				Lurk:           chCfg.Lurk,
				RespondToPings: chCfg.RespondToPings,
				SilentErrors:   chCfg.SilentInterpErrors,
				RunHandlers:    true,
				BotUserID:      strings.ToLower(cfg.Username),
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

// Run connects (retrying with exponential backoff) and blocks, running
// the send and receive pumps, until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	conn, err := c.connectWithRetry(c.ctx)
	if err != nil {
		return fmt.Errorf("twitch: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		return fmt.Errorf("twitch: handshake: %w", err)
	}

	c.wg.Add(2)
	go c.sendPump()
	go c.receivePump()

	select {
	case <-c.ready:
	case <-time.After(15 * time.Second):
		logger.WarnC("twitch", "timed out waiting for 001 welcome")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	for _, chCfg := range c.cfg.Channels {
		c.enqueue("JOIN #" + strings.ToLower(chCfg.Name))
	}

	c.wg.Wait()
	return nil
}

func (c *Client) connectWithRetry(ctx context.Context) (*websocket.Conn, error) {
	backoff := InitialBackoff
	var lastErr error
	for attempt := 0; attempt < MaxConnectRetries; attempt++ {
		dialer := websocket.Dialer{TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12}}
		conn, _, err := dialer.DialContext(ctx, GatewayURL, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.WarnCF("twitch", "connect attempt failed", map[string]any{"attempt": attempt + 1, "error": err.Error()})
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("exhausted %d connect retries: %w", MaxConnectRetries, lastErr)
}

func (c *Client) handshake() error {
	if err := c.writeLine("CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership"); err != nil {
		return err
	}
	if err := c.writeLine("PASS oauth:" + strings.TrimPrefix(c.cfg.OAuthToken, "oauth:")); err != nil {
		return err
	}
	return c.writeLine("NICK " + strings.ToLower(c.cfg.Username))
}

func (c *Client) writeLine(line string) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("twitch: not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n"))
}

// enqueue schedules an outbound raw IRC line; PRIVMSG lines pass
// through the rate limiter in sendPump, everything else (JOIN, PONG)
// does not.
func (c *Client) enqueue(line string) {
	select {
	case c.sendQueue <- line:
	case <-c.ctx.Done():
	}
}

func (c *Client) sendPump() {
	defer c.wg.Done()
	for {
		select {
		case line, ok := <-c.sendQueue:
			if !ok {
				return
			}
			if strings.HasPrefix(line, "PRIVMSG") {
				if err := c.limiter.Wait(c.ctx); err != nil {
					return
				}
			}
			if err := c.writeLine(line); err != nil {
				logger.WarnCF("twitch", "send failed", map[string]any{"error": err.Error()})
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
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.WarnCF("twitch", "read failed, closing connection", map[string]any{"error": err.Error()})
			return
		}
		for _, line := range strings.Split(strings.TrimRight(string(data), "\r\n"), "\r\n") {
			if line == "" {
				continue
			}
			c.handleLine(line)
		}

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
		logger.DebugCF("twitch", "unparseable IRC line", map[string]any{"line": line})
		return
	}

	switch msg.Command {
	case "PING":
		c.enqueue("PONG :" + firstParam(msg.Params))

	case "001":
		c.readyOnce.Do(func() { close(c.ready) })

	case "USERSTATE", "GLOBALUSERSTATE":
		c.handleUserState(msg)

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

func (c *Client) handleUserState(msg ircmsg.Message) {
	badges := msg.Tags["badges"]
	isMod := strings.Contains(badges, "moderator/") || strings.Contains(badges, "broadcaster/")
	c.limiter.SetModerator(isMod)
}

func (c *Client) handlePrivmsg(msg ircmsg.Message) {
	if len(msg.Params) < 2 {
		return
	}
	chanName := strings.TrimPrefix(msg.Params[0], "#")
	text := msg.Params[1]

	ch, ok := c.Channel(chanName)
	if !ok {
		return
	}

	login := loginFromSource(msg.Source)
	display := msg.Tags["display-name"]
	if display == "" {
		display = login
	}
	userID := msg.Tags["user-id"]
	if userID == "" {
		userID = login
	}

	flags := flagsFromBadges(msg.Tags["badges"])
	if login == c.cfg.Owner {
		flags |= perm.FlagOwner
	}
	ref := model.UserRef{Backend: model.BackendTwitch, ID: userID}
	c.db.GetOrCreateUser(ref, display)
	c.db.SetUserFlags(ref, flags)

	if spans := parseEmoteTag(msg.Tags["emotes"]); len(spans) > 0 {
		logger.DebugCF("twitch", "message carries native emote tag", map[string]any{
			"channel":   chanName,
			"positions": emoteWordIndices(text, spans),
		})
	}

	ch.HandleMessage(c.ctx, ref, display, text)
}

// emoteSpan is one (emote-id, [start,end] rune range) pair decoded from
// Twitch's IRC `emotes` tag.
type emoteSpan struct {
	id         string
	start, end int // inclusive rune offsets into the raw message text
}

// parseEmoteTag decodes Twitch's `emotes=25:0-4,6-10/1902:12-13` IRC tag
// format (spec.md domain-stack addition): one or more `id:ranges` groups
// separated by '/', each ranges list comma-separated `start-end` pairs.
// An empty or malformed tag yields no spans rather than an error, since
// a message simply may not contain any emotes.
func parseEmoteTag(tag string) []emoteSpan {
	if tag == "" {
		return nil
	}
	var spans []emoteSpan
	for _, group := range strings.Split(tag, "/") {
		id, ranges, ok := strings.Cut(group, ":")
		if !ok || id == "" {
			continue
		}
		for _, r := range strings.Split(ranges, ",") {
			startStr, endStr, ok := strings.Cut(r, "-")
			if !ok {
				continue
			}
			start, err1 := strconv.Atoi(startStr)
			end, err2 := strconv.Atoi(endStr)
			if err1 != nil || err2 != nil || start > end {
				continue
			}
			spans = append(spans, emoteSpan{id: id, start: start, end: end})
		}
	}
	return spans
}

// emoteWordIndices maps each emoteSpan's rune range onto the index of
// the whitespace-delimited word (in strings.Fields(text)'s output) that
// contains its starting rune, for pkg/dispatch's word-index-based
// EmotePositions. Twitch's own tag is authoritative and free, but
// pkg/dispatch.Dispatcher.DetectEmotes takes a plain word list to stay
// backend-agnostic (every Channel implementation feeds it the same
// shape), so per-backend wiring goes through the shared emotes.Store
// lookup in production; this decoder exists so a future direct wiring
// (or a test) can cross-check the tag against that lookup.
func emoteWordIndices(text string, spans []emoteSpan) []int {
	words := strings.Fields(text)
	runes := []rune(text)

	// offsets[i] is the rune offset at which words[i] begins.
	offsets := make([]int, 0, len(words))
	pos := 0
	for _, w := range words {
		wlen := len([]rune(w))
		for pos < len(runes) && runes[pos] == ' ' {
			pos++
		}
		offsets = append(offsets, pos)
		pos += wlen
	}

	var out []int
	seen := map[int]struct{}{}
	for _, sp := range spans {
		for i := len(offsets) - 1; i >= 0; i-- {
			if sp.start >= offsets[i] {
				if _, ok := seen[i]; !ok {
					seen[i] = struct{}{}
					out = append(out, i)
				}
				break
			}
		}
	}
	return out
}

func loginFromSource(source string) string {
	if i := strings.Index(source, "!"); i >= 0 {
		return source[:i]
	}
	return source
}

// SendPrivmsg queues a PRIVMSG to chanName, splitting it per spec.md
// §4.8's 500-codepoint rule and re-addressing a leading '/' or '.' to
// defeat Twitch's own command interpretation.
func (c *Client) SendPrivmsg(chanName, text string) {
	for _, chunk := range splitMessage(text, MaxMessageRunes) {
		chunk = guardLeadingCommandChar(chunk)
		c.enqueue(fmt.Sprintf("PRIVMSG #%s :%s", strings.ToLower(chanName), chunk))
	}
}

// guardLeadingCommandChar prefixes U+2800 (Braille Pattern Blank) onto any message
// that would otherwise be interpreted by Twitch's IRC backend as a
// dot-command or slash-command (spec.md §4.8: "re-addressed to a dummy
// user to defeat Twitch command injection"). DESIGN.md records the
// exact re-addressing mechanism as an Open Question resolution.
func guardLeadingCommandChar(s string) string {
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, ".") {
		return "⠀" + s
	}
	return s
}

// splitMessage breaks text into pieces of at most maxRunes codepoints,
// preferring to split at the last space within the limit (spec.md
// §4.8 / §8's 500/501/1001-codepoint test cases).
func splitMessage(text string, maxRunes int) []string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return []string{text}
	}

	var out []string
	for len(runes) > 0 {
		if len(runes) <= maxRunes {
			out = append(out, string(runes))
			break
		}
		window := runes[:maxRunes]
		splitAt := maxRunes
		for i := len(window) - 1; i >= 0; i-- {
			if window[i] == ' ' {
				splitAt = i
				break
			}
		}
		out = append(out, strings.TrimSpace(string(runes[:splitAt])))
		next := splitAt
		if splitAt < len(runes) && runes[splitAt] == ' ' {
			next++
		}
		runes = runes[next:]
	}
	return out
}

// flagsFromBadges derives a user's permission flag mask from Twitch's
// IRC `badges` tag (spec.md §4.3's Twitch flag mapping).
func flagsFromBadges(badges string) perm.Flag {
	flags := perm.FlagEveryone
	switch {
	case strings.Contains(badges, "broadcaster/"):
		flags |= perm.FlagBroadcaster | perm.FlagModerator
	case strings.Contains(badges, "moderator/"):
		flags |= perm.FlagModerator
	}
	if strings.Contains(badges, "subscriber/") || strings.Contains(badges, "founder/") {
		flags |= perm.FlagSubscriber
	}
	if strings.Contains(badges, "vip/") {
		flags |= perm.FlagVIP
	}
	return flags
}
