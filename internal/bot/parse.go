package bot

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"coin-alarm-bot/internal/alarm"
	"coin-alarm-bot/internal/market"
)

// parsePositive accepts "1.5" and "1,5".
func parsePositive(raw, what string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a number, got %q", what, raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", what)
	}
	return v, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := parseDecimal(raw, "amount")
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be greater than zero")
	}
	return d, nil
}

// parseNonNegative allows zero, which clears budgets and savings goals.
func parseNonNegative(raw, what string) (decimal.Decimal, error) {
	d, err := parseDecimal(raw, what)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s cannot be negative", what)
	}
	return d, nil
}

func parseDecimal(raw, what string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a number, got %q", what, raw)
	}
	return d, nil
}

func parsePeriod(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("period must be whole minutes, got %q", raw)
	}
	if v <= 0 || v > alarm.MaxPercentPeriod {
		return 0, fmt.Errorf("period must be between 1 and %d minutes", alarm.MaxPercentPeriod)
	}
	return v, nil
}

// parseRepeat reads the optional trailing repeat flag.
func parseRepeat(args []string, at int) (bool, error) {
	if len(args) <= at {
		return false, nil
	}
	switch strings.ToLower(args[at]) {
	case "repeat", "yes", "true", "1":
		return true, nil
	case "once", "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected repeat or once, got %q", args[at])
	}
}

func parseCoin(raw string) (string, error) {
	coin := market.NormalizeCoin(raw)
	if coin == "" || len(coin) > 12 {
		return "", fmt.Errorf("invalid coin %q", raw)
	}
	for _, r := range coin {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("invalid coin %q", raw)
		}
	}
	return coin, nil
}

// parseIndex converts a 1-based list position to a 0-based index.
func parseIndex(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("alarm number must be 1 or greater, got %q", raw)
	}
	return n - 1, nil
}

func parseCurrency(raw string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case market.CurrencyUSD:
		return market.CurrencyUSD, nil
	case market.CurrencyEUR:
		return market.CurrencyEUR, nil
	default:
		return "", fmt.Errorf("currency must be USD or EUR")
	}
}
