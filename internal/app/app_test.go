package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"coin-alarm-bot/internal/alarm"
	"coin-alarm-bot/internal/config"
)

func TestWriteAlarmTable(t *testing.T) {
	btc, err := alarm.NewPriceAlarm("btc", alarm.DirectionBelow, 50000, "USD", 0)
	if err != nil {
		t.Fatalf("build alarm: %v", err)
	}
	eth, err := alarm.NewPercentAlarm("eth", 5, 60, true)
	if err != nil {
		t.Fatalf("build alarm: %v", err)
	}

	var out bytes.Buffer
	err = writeAlarmTable(&out, map[string][]alarm.Alarm{
		"200":   {eth},
		"100":   {btc},
		"empty": nil,
	})
	if err != nil {
		t.Fatalf("writeAlarmTable: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", out.String())
	}
	if !strings.HasPrefix(lines[1], "100") || !strings.Contains(lines[1], "BTC") {
		t.Fatalf("rows should be sorted by user: %q", lines[1])
	}
	if !strings.Contains(lines[2], "percent") || !strings.Contains(lines[2], "true") {
		t.Fatalf("percent row mismatch: %q", lines[2])
	}
}

func TestWriteAlarmTableEmpty(t *testing.T) {
	var out bytes.Buffer
	if err := writeAlarmTable(&out, map[string][]alarm.Alarm{}); err != nil {
		t.Fatalf("writeAlarmTable: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no alarms found" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestSimulateAlertDelivers(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Telegram.BotToken = "token"
	cfg.Telegram.APIBase = srv.URL
	cfg.Telegram.RequestTimeout = time.Second

	a := NewApp(cfg, zerolog.Nop())
	if err := a.SimulateAlert(context.Background(), "42", "btc", 48000); err != nil {
		t.Fatalf("SimulateAlert: %v", err)
	}
	if received["chat_id"] != "42" {
		t.Fatalf("chat_id mismatch: %#v", received)
	}
	if !strings.Contains(received["text"], "BTC fell below") {
		t.Fatalf("unexpected text %q", received["text"])
	}
}

func TestSimulateAlertRequiresToken(t *testing.T) {
	a := NewApp(&config.Config{}, zerolog.Nop())
	if err := a.SimulateAlert(context.Background(), "42", "BTC", 1); err == nil {
		t.Fatal("expected an error without a bot token")
	}
}

func TestExportRequiresOutput(t *testing.T) {
	a := NewApp(&config.Config{}, zerolog.Nop())
	if err := a.Export(context.Background(), ExportOptions{Coin: "BTC", Limit: 10}); err == nil {
		t.Fatal("expected an error without --csv or --png")
	}
}
