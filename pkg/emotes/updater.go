package emotes

import (
	"context"
	"net/http"
	"time"

	"github.com/zhiayang/ikura/pkg/concurrency"
	"github.com/zhiayang/ikura/pkg/logger"
)

// ChannelSource is one channel the Updater keeps refreshed: name is the
// key channel drivers pass to Store.Lookup, id is the backend's numeric
// user/channel id BTTV and FFZ's APIs require. Resolving a login name to
// that numeric id needs a Twitch Helix client this repo doesn't otherwise
// need, so cmd/ikura's wiring is expected to supply it (falling back to
// name itself is wrong against the real APIs, but keeps single-process
// testing possible without a Helix credential).
type ChannelSource struct {
	Name string
	ID   string
}

// Updater periodically refreshes a Store's global and per-channel tables
// on a pool of background workers, matching source/emotes/{bttv,ffz}.cpp's
// dispatcher().run(...) pattern but on pkg/concurrency's fixed-size pool
// (C11) instead of a bespoke async dispatcher.
type Updater struct {
	store    *Store
	pool     *concurrency.Pool
	http     *http.Client
	interval time.Duration
}

// NewUpdater builds an Updater. interval of zero disables periodic
// refresh entirely (spec.md's emote_auto_update_interval_ms semantics:
// 0 means "never auto-update").
func NewUpdater(store *Store, pool *concurrency.Pool, interval time.Duration) *Updater {
	return &Updater{
		store:    store,
		pool:     pool,
		http:     &http.Client{Timeout: 10 * time.Second},
		interval: interval,
	}
}

// Run refreshes once immediately, then on every tick of interval, until
// ctx is cancelled. channels lists the Twitch channels to fetch
// per-channel emotes for; the global BTTV table is fetched regardless.
func (u *Updater) Run(ctx context.Context, channels []ChannelSource) {
	if u.interval <= 0 {
		logger.InfoC("emotes", "auto-update disabled (interval is 0)")
		return
	}

	u.refreshAll(ctx, channels)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.refreshAll(ctx, channels)
		}
	}
}

func (u *Updater) refreshAll(ctx context.Context, channels []ChannelSource) {
	u.pool.Submit(func() { u.refreshGlobal(ctx) })
	for _, ch := range channels {
		ch := ch
		u.pool.Submit(func() { u.refreshChannel(ctx, ch) })
	}
}

func (u *Updater) refreshGlobal(ctx context.Context) {
	list, err := FetchBTTVGlobal(ctx, u.http)
	if err != nil {
		logger.WarnCF("emotes", "bttv global fetch failed", map[string]any{"error": err.Error()})
		return
	}
	u.store.UpdateGlobal(list)
	logger.InfoCF("emotes", "fetched global emotes", map[string]any{"count": len(list)})
}

func (u *Updater) refreshChannel(ctx context.Context, ch ChannelSource) {
	var all []CachedEmote

	bttv, err := FetchBTTVChannel(ctx, u.http, ch.ID)
	if err != nil {
		logger.WarnCF("emotes", "bttv channel fetch failed", map[string]any{"channel": ch.Name, "error": err.Error()})
	} else {
		all = append(all, bttv...)
	}

	ffz, err := FetchFFZChannel(ctx, u.http, ch.ID)
	if err != nil {
		logger.WarnCF("emotes", "ffz channel fetch failed", map[string]any{"channel": ch.Name, "error": err.Error()})
	} else {
		all = append(all, ffz...)
	}

	if len(all) == 0 {
		return
	}
	u.store.UpdateChannel(ch.Name, all)
	logger.InfoCF("emotes", "fetched channel emotes", map[string]any{"channel": ch.Name, "count": len(all)})
}
