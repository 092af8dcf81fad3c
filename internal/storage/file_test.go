package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"coin-alarm-bot/internal/alarm"
)

func sampleAlarms() []alarm.Alarm {
	return []alarm.Alarm{
		{Coin: "BTC", Type: alarm.KindPrice, Direction: alarm.DirectionBelow, Target: 50000, Currency: "USD", TriggerCount: 3},
		{Coin: "BTC", Type: alarm.KindPrice, Direction: alarm.DirectionPercent, Target: 5, Currency: "EUR", BasePrice: 61234.5},
		{Coin: "ETH", Type: alarm.KindPercent, Percent: 5, Period: 60, Repeat: true, Triggered: true},
		{Coin: "SOL", Type: alarm.KindIndicator, Indicator: alarm.IndicatorRSIOversold, Value: 30},
		{Coin: "ADA", Type: alarm.KindWatchlist, AlarmType: alarm.WatchVolatility, Direction: alarm.DirectionAbove, Target: 7.5, Currency: "USD", TriggerCount: 1},
	}
}

func assertAlarmsEqual(t *testing.T, want, got []alarm.Alarm) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("expected %d alarms, got %d: %#v", len(want), len(got), got)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("alarm %d mismatch:\nwant %#v\ngot  %#v", i, want[i], got[i])
		}
	}
}

func TestFileAlarmStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileAlarmStore(dir)
	if err != nil {
		t.Fatalf("NewFileAlarmStore: %v", err)
	}

	if err := store.SaveAll(ctx, "42", sampleAlarms()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if err := store.SaveAll(ctx, "7", sampleAlarms()[:1]); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	reopened, err := NewFileAlarmStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	all, err := reopened.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two users, got %d", len(all))
	}
	assertAlarmsEqual(t, sampleAlarms(), all["42"])

	one, err := reopened.Load(ctx, "7")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertAlarmsEqual(t, sampleAlarms()[:1], one)
}

func TestFileAlarmStoreMissingFileIsEmpty(t *testing.T) {
	store, err := NewFileAlarmStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileAlarmStore: %v", err)
	}
	all, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty store, got %#v", all)
	}
}

func TestFileAlarmStoreEmptyListRemovesUser(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileAlarmStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileAlarmStore: %v", err)
	}
	if err := store.SaveAll(ctx, "42", sampleAlarms()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if err := store.SaveAll(ctx, "42", nil); err != nil {
		t.Fatalf("SaveAll empty: %v", err)
	}
	all, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, ok := all["42"]; ok {
		t.Fatalf("user should be gone: %#v", all)
	}
}

func TestFileAlarmStoreLastWriterWins(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileAlarmStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileAlarmStore: %v", err)
	}
	if err := store.SaveAll(ctx, "42", sampleAlarms()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	stale, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	trimmed, err := alarm.RemoveAt(sampleAlarms(), 0)
	if err != nil {
		t.Fatalf("RemoveAt: %v", err)
	}
	if err := store.SaveAll(ctx, "42", trimmed); err != nil {
		t.Fatalf("SaveAll delete: %v", err)
	}

	if err := store.SaveAll(ctx, "42", stale["42"]); err != nil {
		t.Fatalf("SaveAll stale: %v", err)
	}

	got, err := store.Load(ctx, "42")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(sampleAlarms()) {
		t.Fatalf("stale writer should resurrect the deleted alarm, got %d alarms", len(got))
	}
}

func TestFileAlarmStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, alarmsFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := NewFileAlarmStore(dir)
	if err != nil {
		t.Fatalf("NewFileAlarmStore: %v", err)
	}
	if _, err := store.LoadAll(context.Background()); err == nil {
		t.Fatal("corrupt file should fail to load")
	}
}

func TestUserStoreProfiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	users, err := NewUserStore(dir)
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}

	err = users.Update(ctx, "42", func(p *Profile) error {
		p.Currency = "EUR"
		p.Watch("BTC")
		p.Watch("ETH")
		p.Buy("BTC", decimal.RequireFromString("0.5"), decimal.NewFromInt(60000))
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	reopened, err := NewUserStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	p, err := reopened.Get(ctx, "42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.DisplayCurrency() != "EUR" {
		t.Fatalf("currency not persisted: %#v", p)
	}
	if len(p.Watchlist) != 2 || p.Watchlist[0] != "BTC" {
		t.Fatalf("watchlist mismatch: %#v", p.Watchlist)
	}
	h := p.Portfolio["BTC"]
	if !h.Amount.Equal(decimal.RequireFromString("0.5")) || !h.CostUSD.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("holding mismatch: %#v", h)
	}

	boom := errors.New("boom")
	if err := reopened.Update(ctx, "42", func(p *Profile) error {
		p.Currency = "USD"
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	p, _ = reopened.Get(ctx, "42")
	if p.Currency != "EUR" {
		t.Fatal("failed update must not be persisted")
	}

	if err := reopened.Delete(ctx, "42"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	p, _ = reopened.Get(ctx, "42")
	if p.Currency != "" || len(p.Watchlist) != 0 {
		t.Fatalf("profile should be reset, got %#v", p)
	}
}

func TestProfileSell(t *testing.T) {
	var p Profile
	p.Buy("ETH", decimal.NewFromInt(4), decimal.NewFromInt(2000))

	if err := p.Sell("ETH", decimal.NewFromInt(5)); !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("overselling should fail, got %v", err)
	}
	if err := p.Sell("BTC", decimal.NewFromInt(1)); !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("selling an unheld coin should fail, got %v", err)
	}
	if err := p.Sell("ETH", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("Sell: %v", err)
	}
	h := p.Portfolio["ETH"]
	if !h.Amount.Equal(decimal.NewFromInt(3)) || !h.CostUSD.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("holding after partial sell: %#v", h)
	}
	if err := p.Sell("ETH", decimal.NewFromInt(3)); err != nil {
		t.Fatalf("Sell rest: %v", err)
	}
	if _, ok := p.Portfolio["ETH"]; ok {
		t.Fatal("empty holding should be removed")
	}
}

func TestProfileWatchlist(t *testing.T) {
	var p Profile
	if !p.Watch("BTC") || p.Watch("BTC") {
		t.Fatal("Watch should add once")
	}
	p.Buy("ETH", decimal.NewFromInt(1), decimal.NewFromInt(1))
	if coins := p.Coins(); len(coins) != 2 {
		t.Fatalf("Coins should merge watchlist and portfolio: %v", coins)
	}
	if !p.Unwatch("BTC") || p.Unwatch("BTC") {
		t.Fatal("Unwatch should remove once")
	}
}

func TestProfileFiatBudgetAndSavings(t *testing.T) {
	ctx := context.Background()
	users, err := NewUserStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}

	err = users.Update(ctx, "7", func(p *Profile) error {
		p.Deposit("USD", decimal.NewFromInt(1000))
		p.SetBudget(decimal.NewFromInt(500))
		if err := p.Pay("USD", decimal.NewFromInt(600)); err != nil {
			return err
		}
		p.Buy("BTC", decimal.RequireFromString("0.25"), decimal.NewFromInt(2400))
		p.SetSavingsGoal("BTC", decimal.NewFromInt(1))
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	p, err := users.Get(ctx, "7")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !p.Fiat["USD"].Equal(decimal.NewFromInt(400)) {
		t.Fatalf("fiat after purchase: %v", p.Fiat)
	}
	if !p.Budget.Spent.Equal(decimal.NewFromInt(600)) || !p.Budget.Exceeded() || !p.Budget.Remaining().IsZero() {
		t.Fatalf("budget mismatch: %#v", p.Budget)
	}
	held, pct := p.SavingsProgress("BTC")
	if !held.Equal(decimal.RequireFromString("0.25")) || !pct.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("savings progress: held %v pct %v", held, pct)
	}

	if err := p.Pay("USD", decimal.NewFromInt(401)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("paying more than the balance should fail, got %v", err)
	}
	if !p.Budget.Spent.Equal(decimal.NewFromInt(600)) {
		t.Fatal("a failed payment must not count against the budget")
	}
	if err := p.Withdraw("USD", decimal.NewFromInt(400)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if _, ok := p.Fiat["USD"]; ok {
		t.Fatal("an empty fiat balance should be removed")
	}

	p.SetSavingsGoal("BTC", decimal.Zero)
	if len(p.Savings) != 0 {
		t.Fatal("a zero target should remove the goal")
	}
}
