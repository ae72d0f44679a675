// Package push delivers the daily digest to a configured webhook. Delivery
// is best effort: every failure is reported as (false, reason) and never
// as an error, so a broken webhook cannot fail a completed cycle.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// slackTextLimit is the largest text Slack accepts on an incoming webhook.
const slackTextLimit = 39000

// slackWebhookPrefix identifies Slack incoming webhooks by URL shape.
const slackWebhookPrefix = "hooks.slack.com/services/"

// Payload is the generic digest body sent to non-Slack webhooks.
type Payload struct {
	Date                string `json:"date"`
	TodayNewSummary     string `json:"today_new_summary"`
	WorthReadingSummary string `json:"worth_reading_summary"`
}

// Pusher delivers one digest per call.
type Pusher interface {
	// Push sends the digest. ok reports delivery success; message carries
	// the failure reason or a short confirmation.
	Push(ctx context.Context, webhookURL, text string, payload Payload) (ok bool, message string)
}

// WebhookPusher posts digests over HTTP. Slack incoming webhooks get a
// plain {"text": ...} body; everything else gets the generic payload.
type WebhookPusher struct {
	client *http.Client
	logger zerolog.Logger
}

var _ Pusher = (*WebhookPusher)(nil)

// NewWebhookPusher creates a pusher with the given request timeout.
func NewWebhookPusher(timeout time.Duration, logger zerolog.Logger) *WebhookPusher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &WebhookPusher{
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "push").Logger(),
	}
}

// Push implements Pusher.
func (p *WebhookPusher) Push(ctx context.Context, webhookURL, text string, payload Payload) (bool, string) {
	if strings.TrimSpace(webhookURL) == "" {
		return false, "no webhook configured"
	}

	var body any
	if isSlackWebhook(webhookURL) {
		body = map[string]string{"text": truncate(text, slackTextLimit)}
	} else {
		body = payload
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Sprintf("marshal payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(raw))
	if err != nil {
		return false, fmt.Sprintf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn().Err(err).Msg("webhook delivery failed")
		return false, fmt.Sprintf("request failed: %v", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.logger.Warn().Int("status", resp.StatusCode).Msg("webhook rejected digest")
		return false, fmt.Sprintf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	p.logger.Info().Int("status", resp.StatusCode).Msg("digest delivered")
	return true, fmt.Sprintf("delivered (status %d)", resp.StatusCode)
}

// isSlackWebhook reports whether the URL is a Slack incoming webhook.
func isSlackWebhook(webhookURL string) bool {
	return strings.Contains(webhookURL, slackWebhookPrefix)
}

// truncate cuts s to at most limit bytes on a rune boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for len(cut) > 0 && !isValidUTF8Boundary(s, len(cut)) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

func isValidUTF8Boundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	// Continuation bytes have the form 10xxxxxx.
	return s[i]&0xC0 != 0x80
}
