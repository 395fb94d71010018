// Package config loads the JSON configuration document described in the
// top-level twitch/discord/irc/global sections and overlays secret values
// from the environment so tokens never need to be committed to disk.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// ChannelConfig describes one joined channel on any backend.
type ChannelConfig struct {
	Name                string `json:"name"`
	Lurk                bool   `json:"lurk"`
	Mod                 bool   `json:"mod"`
	RespondToPings      bool   `json:"respond_to_pings"`
	SilentInterpErrors  bool   `json:"silent_interp_errors"`
	CommandPrefix       string `json:"command_prefix"`
}

// TwitchConfig is the `twitch` top-level section.
type TwitchConfig struct {
	Username                string          `json:"username"`
	OAuthToken              string          `json:"oauth_token" env:"IKURA_TWITCH_OAUTH_TOKEN"`
	Owner                   string          `json:"owner"`
	Channels                []ChannelConfig `json:"channels"`
	IgnoredUsers            []string        `json:"ignored_users"`
	EmoteAutoUpdateInterval int64           `json:"emote_auto_update_interval_ms"`
}

// DiscordConfig is the `discord` top-level section.
type DiscordConfig struct {
	Username                string          `json:"username"`
	OAuthToken              string          `json:"oauth_token" env:"IKURA_DISCORD_OAUTH_TOKEN"`
	Owner                   string          `json:"owner"`
	UserID                  string          `json:"user_id"`
	Guilds                  []string        `json:"guilds"`
	Channels                []ChannelConfig `json:"channels"`
	IgnoredUsers            []string        `json:"ignored_users"`
	EmoteAutoUpdateInterval int64           `json:"emote_auto_update_interval_ms"`
}

// IRCServerConfig describes one server entry under `irc`.
type IRCServerConfig struct {
	Hostname     string          `json:"hostname"`
	Port         int             `json:"port"`
	UseSSL       bool            `json:"use_ssl"`
	UseSASL      bool            `json:"use_sasl"`
	Nickname     string          `json:"nickname"`
	Username     string          `json:"username" env:"IKURA_IRC_USERNAME"`
	Password     string          `json:"password" env:"IKURA_IRC_PASSWORD"`
	Channels     []ChannelConfig `json:"channels"`
	IgnoredUsers []string        `json:"ignored_users"`
}

// GlobalConfig is the `global` top-level section.
type GlobalConfig struct {
	ConsolePort            int  `json:"console_port"`
	StripMentionsFromMarkov bool `json:"strip_mentions_from_markov"`
	MinMarkovLength        int  `json:"min_markov_length"`
	MaxMarkovRetries       int  `json:"max_markov_retries"`
	ReadOnly               bool `json:"read_only"`
}

// Config is the full parsed document.
type Config struct {
	Twitch  *TwitchConfig      `json:"twitch,omitempty"`
	Discord *DiscordConfig     `json:"discord,omitempty"`
	IRC     []IRCServerConfig  `json:"irc,omitempty"`
	Global  GlobalConfig       `json:"global"`
}

// Load reads the config document at path, decodes it, overlays environment
// variables onto the known secret fields, and validates required keys.
// Unknown JSON keys are ignored, matching spec.md §6.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Twitch != nil {
		if err := env.Parse(cfg.Twitch); err != nil {
			return nil, fmt.Errorf("failed to overlay env vars on twitch config: %w", err)
		}
	}
	if cfg.Discord != nil {
		if err := env.Parse(cfg.Discord); err != nil {
			return nil, fmt.Errorf("failed to overlay env vars on discord config: %w", err)
		}
	}
	for i := range cfg.IRC {
		if err := env.Parse(&cfg.IRC[i]); err != nil {
			return nil, fmt.Errorf("failed to overlay env vars on irc config %d: %w", i, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Twitch != nil {
		if c.Twitch.Username == "" || c.Twitch.OAuthToken == "" {
			return fmt.Errorf("twitch: username and oauth_token are required")
		}
	}
	if c.Discord != nil {
		if c.Discord.OAuthToken == "" {
			return fmt.Errorf("discord: oauth_token is required")
		}
	}
	for i, srv := range c.IRC {
		if srv.Hostname == "" || srv.Nickname == "" {
			return fmt.Errorf("irc[%d]: hostname and nickname are required", i)
		}
	}
	if c.Global.ConsolePort <= 0 {
		return fmt.Errorf("global: console_port is required")
	}
	if c.Global.MinMarkovLength <= 0 {
		c.Global.MinMarkovLength = 2
	}
	if c.Global.MaxMarkovRetries <= 0 {
		c.Global.MaxMarkovRetries = 5
	}
	return nil
}
