package discord

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhiayang/ikura/pkg/config"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
)

func TestStripBotMentionRemovesBothForms(t *testing.T) {
	require.Equal(t, "hello", stripBotMention("<@123> hello", "123"))
	require.Equal(t, "hello", stripBotMention("<@!123> hello", "123"))
	require.Equal(t, "hello there", stripBotMention("hello there", "123"))
}

func TestRenderEmoteResolvesFromGuildTable(t *testing.T) {
	gs := &guildState{Emotes: map[string]discordEmote{
		"kappa":  {ID: "42", Animated: false},
		"pogchamp": {ID: "7", Animated: true},
	}}
	require.Equal(t, "<:kappa:42>", renderEmote(gs, "kappa"))
	require.Equal(t, "<a:pogchamp:7>", renderEmote(gs, "pogchamp"))
	require.Equal(t, "unknown", renderEmote(gs, "unknown"))
	require.Equal(t, "kappa", renderEmote(nil, "kappa"))
}

func TestRenderMessageJoinsFragmentsWithEmoteSubstitution(t *testing.T) {
	gs := &guildState{Emotes: map[string]discordEmote{"kappa": {ID: "1"}}}
	msg := model.Message{Fragments: []model.Fragment{
		model.TextFragment("hello"),
		model.EmoteFragment("kappa", ""),
		model.TextFragment("!"),
	}}
	require.Equal(t, "hello <:kappa:1>!", renderMessage(msg, gs))
}

func TestChannelConfigForMatchesCaseInsensitively(t *testing.T) {
	cfg := config.DiscordConfig{Channels: []config.ChannelConfig{{Name: "General"}}}
	_, ok := channelConfigFor(cfg, "general")
	require.True(t, ok)
	_, ok = channelConfigFor(cfg, "missing")
	require.False(t, ok)
}

func TestRoleFlagsGrantsOwnerOnMatch(t *testing.T) {
	cfg := config.DiscordConfig{UserID: "999"}
	require.True(t, roleFlags(cfg, "999")&perm.FlagOwner != 0)
	require.True(t, roleFlags(cfg, "1")&perm.FlagOwner == 0)
}

func TestGuildConfiguredDefaultsToAllWhenUnset(t *testing.T) {
	c := &Client{cfg: config.DiscordConfig{}}
	require.True(t, c.guildConfigured("anything"))

	c2 := &Client{cfg: config.DiscordConfig{Guilds: []string{"42"}}}
	require.True(t, c2.guildConfigured("42"))
	require.False(t, c2.guildConfigured("7"))
}
