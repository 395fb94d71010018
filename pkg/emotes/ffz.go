package emotes

import (
	"context"
	"fmt"
	"net/http"
)

const ffzAPIURL = "https://api.frankerfacez.com/v1"

type ffzEmoticon struct {
	ID   int               `json:"id"`
	Name string            `json:"name"`
	URLs map[string]string `json:"urls"`
}

type ffzSet struct {
	Emoticons []ffzEmoticon `json:"emoticons"`
}

type ffzRoomResponse struct {
	Sets map[string]ffzSet `json:"sets"`
}

func ffzEmote(e ffzEmoticon) CachedEmote {
	url := e.URLs["4"]
	if url == "" {
		url = e.URLs["2"]
	}
	if url == "" {
		url = e.URLs["1"]
	}
	return CachedEmote{
		Name:   e.Name,
		ID:     fmt.Sprintf("%d", e.ID),
		URL:    url,
		Source: SourceFFZ,
	}
}

// FetchFFZChannel fetches a channel's FrankerFaceZ room emoticons,
// mirroring ffz::updateGlobalEmotes's (per-channel, despite the name) GET
// to /room/id/{channelId}.
func FetchFFZChannel(ctx context.Context, client *http.Client, channelID string) ([]CachedEmote, error) {
	var resp ffzRoomResponse
	if err := getJSON(ctx, client, ffzAPIURL+"/room/id/"+channelID, &resp); err != nil {
		return nil, fmt.Errorf("ffz: channel emotes: %w", err)
	}
	var out []CachedEmote
	for _, set := range resp.Sets {
		for _, e := range set.Emoticons {
			out = append(out, ffzEmote(e))
		}
	}
	return out, nil
}
