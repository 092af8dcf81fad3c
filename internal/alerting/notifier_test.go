package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
			t.Fatalf("path should end with /bottoken/sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", srv.URL, time.Second, testLogger())
	note := Notification{ChatID: "42", Text: "BTC fell below 50000", Kind: "price", Coin: "BTC"}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "42" {
		t.Fatalf("chat_id mismatch: %#v", received)
	}
	if received["text"] != note.Text {
		t.Fatalf("text mismatch: %#v", received)
	}
}

func TestTelegramNotifierOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), Notification{ChatID: "1", Text: "x"})
	if err == nil {
		t.Fatal("ok=false should fail")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("error should carry the API description: %v", err)
	}
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "bot was blocked by the user"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{ChatID: "1", Text: "x"}); err == nil {
		t.Fatal("403 should fail")
	}
}

func TestTelegramNotifierRequiresChat(t *testing.T) {
	notifier := NewTelegramNotifier("token", "http://127.0.0.1:0", time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Text: "x"}); err == nil {
		t.Fatal("missing chat id should fail before any request")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
