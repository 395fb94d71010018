package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

const userAgent = "DiscordBot (https://github.com/zhiayang/ikura, 1.0)"

// restGet issues an authenticated GET against the Discord REST API,
// gated by the shared discordgo.RateLimiter bucket for the route, and
// decodes the JSON body into out.
func (c *Client) restGet(ctx context.Context, route string, out any) error {
	return c.restDo(ctx, http.MethodGet, route, nil, out)
}

// CreateMessage posts content to a channel (spec.md §4.8: "outbound
// channel messages are posted to the REST /channels/{id}/messages
// endpoint rather than the gateway").
func (c *Client) CreateMessage(ctx context.Context, channelID, content string) (*discordgo.Message, error) {
	body, err := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: content})
	if err != nil {
		return nil, err
	}
	var msg discordgo.Message
	route := fmt.Sprintf("/channels/%s/messages", channelID)
	if err := c.restDo(ctx, http.MethodPost, route, bytes.NewReader(body), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) restDo(ctx context.Context, method, route string, body io.Reader, out any) error {
	bucket := c.limit.LockBucket(route)

	req, err := http.NewRequestWithContext(ctx, method, APIBase+route, body)
	if err != nil {
		_ = bucket.Release(nil)
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.OAuthToken)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		_ = bucket.Release(nil)
		return err
	}
	defer resp.Body.Close()
	_ = bucket.Release(resp.Header)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord REST %s %s: status %d: %s", method, route, resp.StatusCode, string(data))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
