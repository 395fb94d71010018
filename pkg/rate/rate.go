// Package rate implements the outbound rate limiting spec.md §4.8
// names for Twitch PRIVMSG (20 tokens / 30s, doubled to 100 under
// moderator), plus a process-wide Discord REST limiter that the Discord
// driver does not use. Built on golang.org/x/time/rate's token bucket, which the
// rest of this pack (SPEC_FULL.md §3 item 4) settles on over a
// hand-rolled bucket.
package rate

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// TwitchWindow is the refill window spec.md §4.8 specifies for the
// Twitch PRIVMSG token bucket.
const TwitchWindow = 30 * time.Second

// TwitchStandardTokens is the bucket size for a channel where the bot
// does not hold moderator status.
const TwitchStandardTokens = 20

// TwitchModeratorTokens is the bucket size once the bot is recognised
// as a moderator in that channel ("doubled to 100 tokens" — spec.md
// §4.8 actually says "doubled", but the original's constant is 100,
// not 40; followed here since §4.8 names 100 explicitly).
const TwitchModeratorTokens = 100

// TwitchLimiter wraps a rate.Limiter sized for one Twitch channel's
// PRIVMSG budget, with the ability to re-scale when moderator status
// changes without dropping already-accumulated tokens disproportionately.
type TwitchLimiter struct {
	lim *rate.Limiter
}

// NewTwitchLimiter builds a limiter for a channel, sized by whether the
// bot currently holds moderator status there.
func NewTwitchLimiter(moderator bool) *TwitchLimiter {
	tokens := TwitchStandardTokens
	if moderator {
		tokens = TwitchModeratorTokens
	}
	every := rate.Every(TwitchWindow / time.Duration(tokens))
	return &TwitchLimiter{lim: rate.NewLimiter(every, tokens)}
}

// SetModerator re-scales the limiter's burst/rate when the bot's
// moderator status in the channel changes (e.g. on a USERSTATE update).
func (t *TwitchLimiter) SetModerator(moderator bool) {
	tokens := TwitchStandardTokens
	if moderator {
		tokens = TwitchModeratorTokens
	}
	every := rate.Every(TwitchWindow / time.Duration(tokens))
	t.lim.SetLimit(every)
	t.lim.SetBurst(tokens)
}

// Wait blocks until a token is available to send one PRIVMSG, or ctx
// expires.
func (t *TwitchLimiter) Wait(ctx context.Context) error {
	return t.lim.Wait(ctx)
}

// DiscordRESTLimiter is a process-wide token bucket for Discord REST
// calls. Discord's own per-route buckets are far more granular than
// this package models. The Discord driver does not use it: its REST
// calls go through discordgo.Session's own RateLimiter (SPEC_FULL.md §3
// item 2).
type DiscordRESTLimiter struct {
	lim *rate.Limiter
}

// NewDiscordRESTLimiter builds a limiter allowing burst concurrent
// requests and refilling at perSecond requests/sec thereafter.
func NewDiscordRESTLimiter(perSecond float64, burst int) *DiscordRESTLimiter {
	return &DiscordRESTLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until permission to issue one REST call is granted.
func (d *DiscordRESTLimiter) Wait(ctx context.Context) error {
	return d.lim.Wait(ctx)
}
