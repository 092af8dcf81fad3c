package bot

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePositive(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "50000", want: 50000},
		{in: "1,5", want: 1.5},
		{in: " 0.25 ", want: 0.25},
		{in: "0", wantErr: true},
		{in: "-3", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "NaN", wantErr: true},
		{in: "Inf", wantErr: true},
		{in: "-inf", wantErr: true},
		{in: "1e400", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parsePositive(tc.in, "value")
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %v, %v", tc.in, got, err)
		}
	}
}

func TestParsePeriod(t *testing.T) {
	if v, err := parsePeriod("60"); err != nil || v != 60 {
		t.Fatalf("60: got %d, %v", v, err)
	}
	for _, bad := range []string{"0", "1441", "1.5", "x"} {
		if _, err := parsePeriod(bad); err == nil {
			t.Fatalf("%q should be rejected", bad)
		}
	}
}

func TestParseRepeat(t *testing.T) {
	args := []string{"ETH", "5", "60", "repeat"}
	if r, err := parseRepeat(args, 3); err != nil || !r {
		t.Fatalf("repeat: got %v, %v", r, err)
	}
	if r, err := parseRepeat(args, 4); err != nil || r {
		t.Fatalf("missing flag: got %v, %v", r, err)
	}
	if _, err := parseRepeat([]string{"maybe"}, 0); err == nil {
		t.Fatal("unknown flag should fail")
	}
}

func TestParseCoinAndIndex(t *testing.T) {
	if c, err := parseCoin(" btc "); err != nil || c != "BTC" {
		t.Fatalf("coin: got %q, %v", c, err)
	}
	if _, err := parseCoin("BTC/USDT"); err == nil {
		t.Fatal("symbols with separators should be rejected")
	}
	if i, err := parseIndex("3"); err != nil || i != 2 {
		t.Fatalf("index: got %d, %v", i, err)
	}
	if _, err := parseIndex("0"); err == nil {
		t.Fatal("index 0 should be rejected")
	}
}

func TestParseAmount(t *testing.T) {
	d, err := parseAmount("0,001")
	if err != nil || !d.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("amount: got %v, %v", d, err)
	}
	if _, err := parseAmount("-1"); err == nil {
		t.Fatal("negative amount should fail")
	}
}

func TestParseNonNegative(t *testing.T) {
	if d, err := parseNonNegative("0", "budget"); err != nil || !d.IsZero() {
		t.Fatalf("zero: got %v, %v", d, err)
	}
	if d, err := parseNonNegative("250,5", "budget"); err != nil || !d.Equal(decimal.RequireFromString("250.5")) {
		t.Fatalf("250,5: got %v, %v", d, err)
	}
	for _, bad := range []string{"-1", "NaN", "lots"} {
		if _, err := parseNonNegative(bad, "budget"); err == nil {
			t.Fatalf("%q should be rejected", bad)
		}
	}
}
