package emotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const bttvAPIURL = "https://api.betterttv.net/3"

type bttvGlobalEntry struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

type bttvChannelResponse struct {
	ChannelEmotes []bttvGlobalEntry `json:"channelEmotes"`
	SharedEmotes  []bttvGlobalEntry `json:"sharedEmotes"`
}

func bttvEmote(id, code string) CachedEmote {
	return CachedEmote{
		Name:   code,
		ID:     id,
		URL:    fmt.Sprintf("https://cdn.betterttv.net/emote/%s/3x", id),
		Source: SourceBTTV,
	}
}

// FetchBTTVGlobal fetches BTTV's global emote list, mirroring
// bttv::updateGlobalEmotes's GET to /cached/emotes/global.
func FetchBTTVGlobal(ctx context.Context, client *http.Client) ([]CachedEmote, error) {
	var entries []bttvGlobalEntry
	if err := getJSON(ctx, client, bttvAPIURL+"/cached/emotes/global", &entries); err != nil {
		return nil, fmt.Errorf("bttv: global emotes: %w", err)
	}
	out := make([]CachedEmote, 0, len(entries))
	for _, e := range entries {
		out = append(out, bttvEmote(e.ID, e.Code))
	}
	return out, nil
}

// FetchBTTVChannel fetches a channel's BTTV emotes (both its own and any
// shared into it), mirroring bttv::updateChannelEmotes's GET to
// /cached/users/twitch/{channelId}. channelID is the backend's numeric
// user id, not its login name.
func FetchBTTVChannel(ctx context.Context, client *http.Client, channelID string) ([]CachedEmote, error) {
	var resp bttvChannelResponse
	if err := getJSON(ctx, client, bttvAPIURL+"/cached/users/twitch/"+channelID, &resp); err != nil {
		return nil, fmt.Errorf("bttv: channel emotes: %w", err)
	}
	out := make([]CachedEmote, 0, len(resp.ChannelEmotes)+len(resp.SharedEmotes))
	for _, e := range resp.ChannelEmotes {
		out = append(out, bttvEmote(e.ID, e.Code))
	}
	for _, e := range resp.SharedEmotes {
		out = append(out, bttvEmote(e.ID, e.Code))
	}
	return out, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
