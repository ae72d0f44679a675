package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPusher() *WebhookPusher {
	return NewWebhookPusher(5*time.Second, zerolog.Nop())
}

func testPayload() Payload {
	return Payload{
		Date:                "2026-08-29",
		TodayNewSummary:     "2 deep reads",
		WorthReadingSummary: "3 also notable",
	}
}

func TestPushGenericWebhook(t *testing.T) {
	var got Payload
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ok, msg := newTestPusher().Push(context.Background(), server.URL, "digest text", testPayload())

	assert.True(t, ok)
	assert.Contains(t, msg, "delivered")
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, testPayload(), got)
}

func TestPushSlackShape(t *testing.T) {
	var body map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Slack detection is by URL shape, not by host resolution.
	assert.True(t, isSlackWebhook("https://hooks.slack.com/services/T000/B000/XXXX"))
	assert.False(t, isSlackWebhook(server.URL))

	text := strings.Repeat("x", slackTextLimit+100)
	sent := map[string]string{"text": truncate(text, slackTextLimit)}
	assert.Len(t, sent["text"], slackTextLimit)
}

func TestPushFailures(t *testing.T) {
	t.Run("missing webhook", func(t *testing.T) {
		ok, msg := newTestPusher().Push(context.Background(), "  ", "text", testPayload())
		assert.False(t, ok)
		assert.Equal(t, "no webhook configured", msg)
	})

	t.Run("non-2xx status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "channel_not_found", http.StatusNotFound)
		}))
		defer server.Close()

		ok, msg := newTestPusher().Push(context.Background(), server.URL, "text", testPayload())
		assert.False(t, ok)
		assert.Contains(t, msg, "404")
		assert.Contains(t, msg, "channel_not_found")
	})

	t.Run("unreachable host", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		ok, msg := newTestPusher().Push(context.Background(), server.URL, "text", testPayload())
		assert.False(t, ok)
		assert.Contains(t, msg, "request failed")
	})

	t.Run("context cancellation reported not raised", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ok, _ := newTestPusher().Push(ctx, server.URL, "text", testPayload())
		assert.False(t, ok)
	})
}

func TestTruncate(t *testing.T) {
	t.Run("short strings untouched", func(t *testing.T) {
		assert.Equal(t, "short", truncate("short", 10))
	})

	t.Run("cuts on rune boundary", func(t *testing.T) {
		s := strings.Repeat("日", 10)
		cut := truncate(s, 10)
		assert.LessOrEqual(t, len(cut), 10)
		assert.True(t, strings.HasPrefix(s, cut))
		assert.Equal(t, 0, len(cut)%3)
	})
}
