package discord

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/zhiayang/ikura/pkg/config"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
)

// discordEmote is one entry of a guild's inline emote cache, used to
// render `<:name:id>` / `<a:name:id>` outbound fragments (spec.md
// §4.8, SPEC_FULL.md's "Discord emote table").
type discordEmote struct {
	ID       string
	Animated bool
}

// guildState is the per-guild cache this driver keeps in memory: role
// table (for permission checks) and emote table (for outbound
// rendering). Unlike users/channels, guild state is not persisted —
// it is rediscovered from GUILD_CREATE on every reconnect.
type guildState struct {
	ID     string
	Name   string
	Roles  map[model.RoleID]*model.Role
	Emotes map[string]discordEmote
}

// onGuildCreate populates a fresh guildState and registers one Channel
// per text channel in the guild, for every guild this bot is
// configured to serve (spec.md §6's `discord.guilds[]`).
func (c *Client) onGuildCreate(g *discordgo.Guild) {
	if !c.guildConfigured(g.ID) {
		return
	}

	gs := &guildState{
		ID:     g.ID,
		Name:   g.Name,
		Roles:  map[model.RoleID]*model.Role{},
		Emotes: map[string]discordEmote{},
	}
	for _, r := range g.Roles {
		id, err := strconv.ParseUint(r.ID, 10, 64)
		if err != nil {
			continue
		}
		gs.Roles[model.RoleID(id)] = &model.Role{
			ID:            model.RoleID(id),
			Name:          r.Name,
			UpstreamPerms: uint64(r.Permissions),
		}
	}
	for _, e := range g.Emojis {
		gs.Emotes[e.Name] = discordEmote{ID: e.ID, Animated: e.Animated}
	}

	var ready []*Channel
	c.mu.Lock()
	c.guilds[g.ID] = gs
	for _, ch := range g.Channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		chCfg, ok := channelConfigFor(c.cfg, ch.Name)
		if !ok {
			continue
		}
		newCh := newChannel(c, ch.ID, chCfg, gs)
		c.channels[ch.ID] = newCh
		ready = append(ready, newCh)
	}
	c.mu.Unlock()

	if c.OnChannelReady != nil {
		for _, ch := range ready {
			c.OnChannelReady(ch)
		}
	}
}

func (c *Client) guildConfigured(guildID string) bool {
	if len(c.cfg.Guilds) == 0 {
		return true
	}
	for _, g := range c.cfg.Guilds {
		if g == guildID {
			return true
		}
	}
	return false
}

func channelConfigFor(cfg config.DiscordConfig, name string) (config.ChannelConfig, bool) {
	for _, cc := range cfg.Channels {
		if strings.EqualFold(cc.Name, name) {
			return cc, true
		}
	}
	return config.ChannelConfig{}, false
}

// roleFlags OR's in perm.FlagOwner when userID matches the configured
// owner; Discord itself carries no other implicit flag bits (unlike
// Twitch badges), so all other permission gating for Discord runs
// through group/role whitelists rather than the flag mask.
func roleFlags(cfg config.DiscordConfig, userID string) perm.Flag {
	flags := perm.FlagEveryone
	if userID != "" && userID == cfg.UserID {
		flags |= perm.FlagOwner
	}
	return flags
}

// renderEmote turns an emote fragment's display name into Discord's
// own `<:name:id>` / `<a:name:id>` form when the name resolves in the
// guild's emote table, else falls through to the bare name (spec.md
// §4.8).
func renderEmote(gs *guildState, name string) string {
	if gs == nil {
		return name
	}
	e, ok := gs.Emotes[name]
	if !ok {
		return name
	}
	if e.Animated {
		return "<a:" + name + ":" + e.ID + ">"
	}
	return "<:" + name + ":" + e.ID + ">"
}
