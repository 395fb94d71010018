// Package discord implements the Discord backend driver (spec.md
// §4.8): REST discovery of the gateway URL, a hand-rolled gateway
// WebSocket state machine (CONNECTING → IDENTIFYING → AWAITING_READY →
// CONNECTED, with heartbeat-ack tracking and INVALID_SESS recovery),
// and REST-posted outbound messages.
//
// SPEC_FULL.md explicitly carves discordgo.Session's gateway loop out
// of scope here: the state machine below is hand-written against the
// exact transition table spec.md §4.8 names, which discordgo's own
// Session.Open hides behind a single call. discordgo.Message/Channel/
// Guild/Role are still reused as the REST/gateway wire-format structs
// (no point hand-rolling JSON tags discordgo already gets right), and
// discordgo.RateLimiter paces outbound REST calls the same way
// discordgo.Session does internally.
package discord

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"

	"github.com/zhiayang/ikura/pkg/bus"
	"github.com/zhiayang/ikura/pkg/channels"
	"github.com/zhiayang/ikura/pkg/config"
	"github.com/zhiayang/ikura/pkg/logger"
	"github.com/zhiayang/ikura/pkg/model"
)

// gatewayVersion pins the gateway protocol version appended to the
// gateway URL, per spec.md §4.8's "?v=6&encoding=json"; APIBase pins the
// REST API, which this driver addresses as v10.
const (
	gatewayVersion = 6
	APIBase        = "https://discord.com/api/v10"
)

// Gateway opcodes (spec.md §4.8's state machine).
const (
	opDispatch           = 0
	opHeartbeat          = 1
	opIdentify           = 2
	opReconnect          = 7
	opInvalidSession     = 9
	opHello              = 10
	opHeartbeatAck       = 11
)

// connState is the state machine spec.md §4.8 names verbatim.
type connState int32

const (
	stateConnecting connState = iota
	stateIdentifying
	stateAwaitingReady
	stateConnected
	stateReconnecting
	stateDisconnected
)

// closeCodeHeartbeatTimeout is the non-normal close code sent when a
// heartbeat ack does not arrive before the next send (spec.md §4.8 /
// §8 scenario 6).
const closeCodeHeartbeatTimeout = 1002

const identifyWaitTimeout = 10 * time.Second

// payload is the generic gateway envelope {op, d, s, t}.
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type readyData struct {
	SessionID string          `json:"session_id"`
	User      *discordgo.User `json:"user"`
}

// Client owns one Discord bot gateway connection plus the REST client
// used for sending and guild/emote discovery.
type Client struct {
	cfg   config.DiscordConfig
	bus   *bus.MessageBus
	db    channels.UserStore
	http  *http.Client
	limit *discordgo.RateLimiter

	mu    sync.RWMutex
	conn  *websocket.Conn
	state atomic.Int32

	seq       atomic.Int64
	sessionID string
	botUserID string

	ackPending atomic.Bool

	guilds   map[string]*guildState
	channels map[string]*Channel

	// OnChannelReady, if set, is called once for every Channel this
	// Client registers from a GUILD_CREATE dispatch — including ones
	// discovered long after Run starts, since guilds arrive over the
	// gateway at Discord's own pace, not at startup like Twitch's or
	// IRC's statically-configured channel lists. cmd/ikura wires this
	// to pkg/manager.Manager.RegisterChannel so newly-joined guilds
	// become routable without a restart.
	OnChannelReady func(*Channel)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient builds a Client; it does not connect until Run is called.
func NewClient(cfg config.DiscordConfig, b *bus.MessageBus, store channels.UserStore) *Client {
	return &Client{
		cfg:      cfg,
		bus:      b,
		db:       store,
		http:     &http.Client{Timeout: 10 * time.Second},
		limit:    discordgo.NewRatelimiter(),
		guilds:   map[string]*guildState{},
		channels: map[string]*Channel{},
	}
}

// Run discovers the gateway URL, connects, completes the identify
// handshake, and serves the connection until ctx is cancelled or the
// connection is lost in a way that is not transparently recoverable.
func (c *Client) Run(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	defer c.cancel()

	for {
		if err := c.runOnce(c.ctx); err != nil {
			return err
		}
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
		}
		// INVALID_SESS loops back to a fresh CONNECTING → IDENTIFYING
		// cycle (spec.md §4.8: "ANY → recv INVALID_SESS → RECONNECTING
		// (restart identify)").
		if c.state.Load() != int32(stateReconnecting) {
			return nil
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	c.state.Store(int32(stateConnecting))

	gwURL, err := c.discoverGateway(ctx)
	if err != nil {
		return fmt.Errorf("discord: gateway discovery: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, gwURL, nil)
	if err != nil {
		return fmt.Errorf("discord: dial gateway: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	hello, err := c.awaitHello()
	if err != nil {
		return fmt.Errorf("discord: hello: %w", err)
	}

	c.state.Store(int32(stateIdentifying))
	if err := c.identify(); err != nil {
		return fmt.Errorf("discord: identify: %w", err)
	}

	c.state.Store(int32(stateAwaitingReady))
	ready, err := c.awaitReady(identifyWaitTimeout)
	if err != nil {
		return fmt.Errorf("discord: await ready: %w", err)
	}
	c.sessionID = ready.SessionID
	if ready.User != nil {
		c.botUserID = ready.User.ID
	}
	c.state.Store(int32(stateConnected))
	logger.InfoCF("discord", "gateway connected", map[string]any{"session_id": c.sessionID})

	heartbeatInterval := time.Duration(hello.HeartbeatInterval) * time.Millisecond

	sessCtx, sessCancel := context.WithCancel(ctx)
	defer sessCancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.heartbeatLoop(sessCtx, sessCancel, heartbeatInterval) }()
	go func() { defer wg.Done(); c.receiveLoop(sessCtx, sessCancel) }()
	wg.Wait()

	return nil
}

func (c *Client) discoverGateway(ctx context.Context) (string, error) {
	var resp struct {
		URL               string `json:"url"`
		Shards            int    `json:"shards"`
		SessionStartLimit struct {
			Total     int `json:"total"`
			Remaining int `json:"remaining"`
		} `json:"session_start_limit"`
	}
	if err := c.restGet(ctx, "/gateway/bot", &resp); err != nil {
		return "", err
	}
	if resp.SessionStartLimit.Remaining == 0 {
		return "", fmt.Errorf("discord: session start limit exhausted")
	}
	if resp.SessionStartLimit.Remaining < resp.SessionStartLimit.Total/10 {
		logger.WarnCF("discord", "session start quota low", map[string]any{
			"remaining": resp.SessionStartLimit.Remaining,
			"total":     resp.SessionStartLimit.Total,
		})
	}
	return fmt.Sprintf("%s?v=%d&encoding=json", resp.URL, gatewayVersion), nil
}

func (c *Client) awaitHello() (helloData, error) {
	var env payload
	if err := c.readJSON(&env); err != nil {
		return helloData{}, err
	}
	if env.Op != opHello {
		return helloData{}, fmt.Errorf("expected HELLO, got op %d", env.Op)
	}
	var hello helloData
	if err := json.Unmarshal(env.D, &hello); err != nil {
		return helloData{}, err
	}
	return hello, nil
}

func (c *Client) identify() error {
	type identifyProps struct {
		OS      string `json:"$os"`
		Browser string `json:"$browser"`
		Device  string `json:"$device"`
	}
	type identifyBody struct {
		Token      string        `json:"token"`
		Intents    int           `json:"intents"`
		Properties identifyProps `json:"properties"`
	}
	const (
		intentGuilds         = 1 << 0
		intentGuildMessages  = 1 << 9
		intentMessageContent = 1 << 15
	)
	body := identifyBody{
		Token:      "Bot " + c.cfg.OAuthToken,
		Intents:    intentGuilds | intentGuildMessages | intentMessageContent,
		Properties: identifyProps{OS: "linux", Browser: "ikura", Device: "ikura"},
	}
	d, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.writeJSON(payload{Op: opIdentify, D: d})
}

func (c *Client) awaitReady(timeout time.Duration) (readyData, error) {
	deadline := time.Now().Add(timeout)
	for {
		var env payload
		if err := c.readJSON(&env); err != nil {
			return readyData{}, err
		}
		switch env.Op {
		case opDispatch:
			if env.T == "READY" {
				var ready readyData
				if err := json.Unmarshal(env.D, &ready); err != nil {
					return readyData{}, err
				}
				return ready, nil
			}
		case opInvalidSession:
			return readyData{}, fmt.Errorf("invalid session during identify")
		}
		if time.Now().After(deadline) {
			return readyData{}, fmt.Errorf("timed out waiting for READY")
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context, cancel context.CancelFunc, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.ackPending.Store(false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.ackPending.Load() {
				logger.WarnC("discord", "heartbeat ack missed, closing connection")
				c.closeWithCode(closeCodeHeartbeatTimeout)
				// spec.md §4.8/§7: a missed heartbeat ack reconnects
				// from scratch rather than waiting for an outer
				// supervisor, unlike a protocol-fatal error.
				c.state.Store(int32(stateReconnecting))
				cancel()
				return
			}
			seq := c.seq.Load()
			if err := c.writeJSON(payload{Op: opHeartbeat, D: mustMarshal(seq)}); err != nil {
				cancel()
				return
			}
			c.ackPending.Store(true)
		}
	}
}

func (c *Client) receiveLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		var env payload
		if err := c.readJSON(&env); err != nil {
			select {
			case <-ctx.Done():
			default:
				logger.WarnCF("discord", "gateway read failed", map[string]any{"error": err.Error()})
			}
			return
		}
		if env.S != 0 {
			c.seq.Store(env.S)
		}
		switch env.Op {
		case opHeartbeatAck:
			c.ackPending.Store(false)
		case opDispatch:
			c.handleDispatch(ctx, env.T, env.D)
		case opReconnect:
			logger.InfoC("discord", "gateway requested reconnect")
			c.state.Store(int32(stateReconnecting))
			return
		case opInvalidSession:
			logger.WarnC("discord", "invalid session, restarting identify")
			c.state.Store(int32(stateReconnecting))
			return
		}
	}
}

func (c *Client) handleDispatch(ctx context.Context, eventType string, data json.RawMessage) {
	switch eventType {
	case "GUILD_CREATE":
		var g discordgo.Guild
		if err := json.Unmarshal(data, &g); err != nil {
			logger.WarnCF("discord", "bad GUILD_CREATE payload", map[string]any{"error": err.Error()})
			return
		}
		c.onGuildCreate(&g)

	case "MESSAGE_CREATE":
		var m discordgo.Message
		if err := json.Unmarshal(data, &m); err != nil {
			logger.WarnCF("discord", "bad MESSAGE_CREATE payload", map[string]any{"error": err.Error()})
			return
		}
		c.onMessageCreate(ctx, &m)
	}
}

func (c *Client) onMessageCreate(ctx context.Context, m *discordgo.Message) {
	if m.Author == nil || m.Author.ID == c.botUserID {
		return
	}
	ch, ok := c.Channel(m.ChannelID)
	if !ok {
		return
	}

	display := m.Author.Username
	if m.Author.Discriminator != "" && m.Author.Discriminator != "0" {
		display += "#" + m.Author.Discriminator
	}

	ref := model.UserRef{Backend: model.BackendDiscord, ID: m.Author.ID}
	c.db.GetOrCreateUser(ref, display)
	if roles := c.memberRoles(m); roles != nil {
		c.db.SetUserRoles(ref, roles)
	}

	text := stripBotMention(m.Content, c.botUserID)
	ch.HandleMessage(ctx, ref, display, text)
}

func (c *Client) memberRoles(m *discordgo.Message) []model.RoleID {
	if m.Member == nil {
		return nil
	}
	roles := make([]model.RoleID, 0, len(m.Member.Roles))
	for _, r := range m.Member.Roles {
		id, err := strconv.ParseUint(r, 10, 64)
		if err != nil {
			continue
		}
		roles = append(roles, model.RoleID(id))
	}
	return roles
}

func stripBotMention(text, botID string) string {
	if botID == "" {
		return text
	}
	text = strings.ReplaceAll(text, "<@"+botID+">", "")
	text = strings.ReplaceAll(text, "<@!"+botID+">", "")
	return strings.TrimSpace(text)
}

// Channel looks up a joined Discord channel by its snowflake id.
func (c *Client) Channel(id string) (*Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[id]
	return ch, ok
}

// Channels returns every known channel, for the manager to register.
func (c *Client) Channels() []*Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

func (c *Client) closeWithCode(code int) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

func (c *Client) writeJSON(v any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("discord: not connected")
	}
	return conn.WriteJSON(v)
}

func (c *Client) readJSON(v any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("discord: not connected")
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	// Discord may compress individual payloads with zlib; a compressed
	// frame starts with the zlib magic bytes 0x78.
	if len(data) > 2 && data[0] == 0x78 {
		zr, zerr := zlib.NewReader(bytes.NewReader(data))
		if zerr == nil {
			defer zr.Close()
			decompressed, rerr := io.ReadAll(zr)
			if rerr == nil {
				data = decompressed
			}
		}
	}
	return json.Unmarshal(data, v)
}

func mustMarshal(v any) json.RawMessage {
	d, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return d
}
