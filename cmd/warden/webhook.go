package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/wardenbot/warden/enforce"
	"github.com/wardenbot/warden/gate"
	"github.com/wardenbot/warden/offense"
)

func newWebhookClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	client := rc.StandardClient()
	client.Timeout = 15 * time.Second
	return client
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// WebhookReplier delivers interaction replies to the platform connector via
// an HTTP webhook.
type WebhookReplier struct {
	url    string
	client *http.Client
}

var _ gate.Replier = (*WebhookReplier)(nil)

func NewWebhookReplier(url string) *WebhookReplier {
	return &WebhookReplier{url: url, client: newWebhookClient()}
}

func (r *WebhookReplier) Reply(ctx context.Context, ev gate.InteractionEvent, text string) error {
	return postJSON(ctx, r.client, r.url, map[string]any{
		"type":       "interaction_reply",
		"actor_id":   ev.ActorID,
		"channel_id": ev.ChannelID,
		"command":    ev.CommandName,
		"text":       text,
	})
}

// WebhookEnforcer delivers sanction actions and enforcement notices to the
// platform connector. Implements both enforce.Sanctioner and
// enforce.Notifier.
type WebhookEnforcer struct {
	url    string
	client *http.Client
}

var (
	_ enforce.Sanctioner = (*WebhookEnforcer)(nil)
	_ enforce.Notifier   = (*WebhookEnforcer)(nil)
)

func NewWebhookEnforcer(url string) *WebhookEnforcer {
	return &WebhookEnforcer{url: url, client: newWebhookClient()}
}

func (w *WebhookEnforcer) ApplySanction(ctx context.Context, ev enforce.MessageEvent, ban *offense.BanRecord) error {
	return postJSON(ctx, w.client, w.url, map[string]any{
		"type":         "apply_sanction",
		"actor_id":     ban.ActorID,
		"community_id": ban.CommunityID,
		"reason":       ban.Reason,
		"expires_at":   ban.ExpiresAt,
	})
}

func (w *WebhookEnforcer) Warn(ctx context.Context, ev enforce.MessageEvent, count, max int) error {
	return postJSON(ctx, w.client, w.url, map[string]any{
		"type":         "warning",
		"actor_id":     ev.ActorID,
		"community_id": ev.CommunityID,
		"channel_id":   ev.ChannelID,
		"text":         fmt.Sprintf("warning %d of %d: further violations will get you removed", count, max),
	})
}

func (w *WebhookEnforcer) Sanctioned(ctx context.Context, ev enforce.MessageEvent, ban *offense.BanRecord) error {
	return postJSON(ctx, w.client, w.url, map[string]any{
		"type":         "sanction_notice",
		"actor_id":     ev.ActorID,
		"community_id": ev.CommunityID,
		"channel_id":   ev.ChannelID,
		"reason":       ban.Reason,
		"expires_at":   ban.ExpiresAt,
	})
}
