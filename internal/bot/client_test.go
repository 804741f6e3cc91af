package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"scraperhub/internal/models"
)

// telegramServer fakes the Bot API surface the client touches: getMe,
// the send methods and the webhook methods. Endpoint() plugs into
// NewClientWithEndpoint.
type telegramServer struct {
	srv *httptest.Server

	mu         sync.Mutex
	messages   []sentMessage
	actions    int
	webhookURL string
	secret     string
}

type sentMessage struct {
	ChatID  string
	Text    string
	Caption string
}

func newTelegramServer(t *testing.T) *telegramServer {
	t.Helper()
	ts := &telegramServer{}

	reply := func(w http.ResponseWriter, result any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}

	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/bot")
		token, method, _ := strings.Cut(rest, "/")
		if token == "bad-token" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
			return
		}

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			r.ParseMultipartForm(32 << 20)
		} else {
			r.ParseForm()
		}

		ts.mu.Lock()
		defer ts.mu.Unlock()
		switch method {
		case "getMe":
			reply(w, map[string]any{"id": 42, "is_bot": true, "first_name": "Test", "username": "test_bot"})
		case "sendMessage":
			ts.messages = append(ts.messages, sentMessage{
				ChatID: r.FormValue("chat_id"),
				Text:   r.FormValue("text"),
			})
			reply(w, map[string]any{"message_id": len(ts.messages), "chat": map[string]any{"id": 1}})
		case "sendPhoto", "sendDocument":
			ts.messages = append(ts.messages, sentMessage{
				ChatID:  r.FormValue("chat_id"),
				Caption: r.FormValue("caption"),
			})
			reply(w, map[string]any{"message_id": len(ts.messages), "chat": map[string]any{"id": 1}})
		case "sendChatAction":
			ts.actions++
			reply(w, true)
		case "setWebhook":
			ts.webhookURL = r.FormValue("url")
			ts.secret = r.FormValue("secret_token")
			reply(w, true)
		case "deleteWebhook":
			ts.webhookURL = ""
			ts.secret = ""
			reply(w, true)
		case "getWebhookInfo":
			reply(w, map[string]any{"url": ts.webhookURL, "pending_update_count": 0})
		default:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"method not found"}`)
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *telegramServer) Endpoint() string {
	return ts.srv.URL + "/bot%s/%s"
}

func (ts *telegramServer) sent() []sentMessage {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]sentMessage, len(ts.messages))
	copy(out, ts.messages)
	return out
}

func (ts *telegramServer) secretToken() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.secret
}

func (ts *telegramServer) actionCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.actions
}

func testBotConfig(channel string) models.BotConfig {
	return models.BotConfig{
		BotID:                "test",
		BotToken:             "123:token",
		BotName:              "Test Bot",
		ChannelID:            channel,
		IsActive:             true,
		DefaultWaitTime:      1,
		DefaultTimeout:       30,
		SendToChannel:        channel != "",
		MaxRequestsPerMinute: 100,
	}
}

func TestClientTestConnection(t *testing.T) {
	ts := newTelegramServer(t)
	c := NewClientWithEndpoint(testBotConfig(""), ts.Endpoint(), zap.NewNop())

	username, err := c.TestConnection()
	if err != nil {
		t.Fatalf("connection test failed: %v", err)
	}
	if username != "test_bot" {
		t.Errorf("expected test_bot, got %s", username)
	}
}

func TestClientBadToken(t *testing.T) {
	ts := newTelegramServer(t)
	cfg := testBotConfig("")
	cfg.BotToken = "bad-token"
	c := NewClientWithEndpoint(cfg, ts.Endpoint(), zap.NewNop())

	if _, err := c.TestConnection(); err == nil {
		t.Fatal("expected error for rejected token")
	}
}

func TestClientSendMessageTruncates(t *testing.T) {
	ts := newTelegramServer(t)
	c := NewClientWithEndpoint(testBotConfig(""), ts.Endpoint(), zap.NewNop())

	long := strings.Repeat("x", maxMessageLength+500)
	if err := c.SendMessage(context.Background(), 10, long); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	msgs := ts.sent()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if len(msgs[0].Text) != maxMessageLength {
		t.Errorf("expected text cut to %d, got %d", maxMessageLength, len(msgs[0].Text))
	}
	if msgs[0].ChatID != "10" {
		t.Errorf("expected chat 10, got %s", msgs[0].ChatID)
	}
}

func TestClientSendPhotoTruncatesCaption(t *testing.T) {
	ts := newTelegramServer(t)
	c := NewClientWithEndpoint(testBotConfig(""), ts.Endpoint(), zap.NewNop())

	caption := strings.Repeat("c", maxCaptionLength+100)
	if err := c.SendPhoto(context.Background(), 10, "shot.png", []byte{1, 2, 3}, caption); err != nil {
		t.Fatalf("send photo failed: %v", err)
	}

	msgs := ts.sent()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if len(msgs[0].Caption) != maxCaptionLength {
		t.Errorf("expected caption cut to %d, got %d", maxCaptionLength, len(msgs[0].Caption))
	}
}

func TestClientSendDocumentTruncatesCaption(t *testing.T) {
	ts := newTelegramServer(t)
	c := NewClientWithEndpoint(testBotConfig(""), ts.Endpoint(), zap.NewNop())

	caption := strings.Repeat("d", maxCaptionLength+100)
	if err := c.SendDocument(context.Background(), 10, "report.txt", []byte("data"), caption); err != nil {
		t.Fatalf("send document failed: %v", err)
	}

	msgs := ts.sent()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if len(msgs[0].Caption) != maxCaptionLength {
		t.Errorf("expected caption cut to %d, got %d", maxCaptionLength, len(msgs[0].Caption))
	}
}

func TestClientSendChatAction(t *testing.T) {
	ts := newTelegramServer(t)
	c := NewClientWithEndpoint(testBotConfig(""), ts.Endpoint(), zap.NewNop())

	if err := c.SendChatAction(context.Background(), 10, ""); err != nil {
		t.Fatalf("send chat action failed: %v", err)
	}
	if got := ts.actionCount(); got != 1 {
		t.Errorf("expected 1 chat action, got %d", got)
	}
}

func TestClientSendToChannel(t *testing.T) {
	ts := newTelegramServer(t)

	c := NewClientWithEndpoint(testBotConfig("@mychannel"), ts.Endpoint(), zap.NewNop())
	if err := c.SendToChannel(context.Background(), "hello"); err != nil {
		t.Fatalf("send to channel failed: %v", err)
	}

	n := NewClientWithEndpoint(testBotConfig("-100200300"), ts.Endpoint(), zap.NewNop())
	if err := n.SendToChannel(context.Background(), "hello again"); err != nil {
		t.Fatalf("send to numeric channel failed: %v", err)
	}

	msgs := ts.sent()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ChatID != "@mychannel" {
		t.Errorf("expected @mychannel, got %s", msgs[0].ChatID)
	}
	if msgs[1].ChatID != "-100200300" {
		t.Errorf("expected -100200300, got %s", msgs[1].ChatID)
	}
}

func TestClientSendToChannelUnconfigured(t *testing.T) {
	ts := newTelegramServer(t)
	c := NewClientWithEndpoint(testBotConfig(""), ts.Endpoint(), zap.NewNop())

	if err := c.SendToChannel(context.Background(), "hello"); err == nil {
		t.Fatal("expected error without channel")
	}
}

func TestClientWebhookLifecycle(t *testing.T) {
	ts := newTelegramServer(t)
	cfg := testBotConfig("")
	cfg.WebhookSecret = "hook-secret"
	c := NewClientWithEndpoint(cfg, ts.Endpoint(), zap.NewNop())

	hookURL, err := c.SetWebhook("https://example.com/")
	if err != nil {
		t.Fatalf("set webhook failed: %v", err)
	}
	if hookURL != "https://example.com/api/v1/webhook/test" {
		t.Errorf("unexpected webhook url %s", hookURL)
	}
	if got := ts.secretToken(); got != "hook-secret" {
		t.Errorf("expected secret token to be sent, got %q", got)
	}

	info, err := c.WebhookInfo()
	if err != nil {
		t.Fatalf("webhook info failed: %v", err)
	}
	if info.URL != hookURL {
		t.Errorf("expected info url %s, got %s", hookURL, info.URL)
	}

	if err := c.DeleteWebhook(); err != nil {
		t.Fatalf("delete webhook failed: %v", err)
	}
	info, err = c.WebhookInfo()
	if err != nil {
		t.Fatalf("webhook info failed: %v", err)
	}
	if info.URL != "" {
		t.Errorf("expected cleared webhook, got %s", info.URL)
	}
}

func TestFormatScrapeResult(t *testing.T) {
	ok := models.PageResult{
		Success:    true,
		URL:        "https://example.com",
		Title:      "Example",
		HTMLLength: 1234,
		Data:       map[string]any{"b": "2", "a": "1"},
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	text := FormatScrapeResult(ok)
	if !strings.HasPrefix(text, "✅ Scrape Result") {
		t.Errorf("unexpected header in %q", text)
	}
	if !strings.Contains(text, "Title: Example") {
		t.Errorf("missing title in %q", text)
	}
	// data keys are emitted sorted
	if strings.Index(text, "a: 1") > strings.Index(text, "b: 2") {
		t.Errorf("data keys not sorted in %q", text)
	}

	failed := models.PageResult{
		Success: false,
		URL:     "https://example.com/down",
		Error:   "connection refused",
	}
	text = FormatScrapeResult(failed)
	if !strings.HasPrefix(text, "❌ Scrape Failed") {
		t.Errorf("unexpected header in %q", text)
	}
	if !strings.Contains(text, "Error: connection refused") {
		t.Errorf("missing error in %q", text)
	}
}

func TestWebhookURL(t *testing.T) {
	got := WebhookURL("https://api.example.com///", "bot-1")
	if got != "https://api.example.com/api/v1/webhook/bot-1" {
		t.Errorf("unexpected webhook url %s", got)
	}
}
