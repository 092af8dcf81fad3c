package storage

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"coin-alarm-bot/internal/market"
)

var (
	// ErrInsufficientHoldings is returned when a sell exceeds the held amount.
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	// ErrInsufficientFunds is returned when a purchase or withdrawal exceeds the fiat balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Profile is everything the bot remembers about a user besides alarms.
type Profile struct {
	Currency  string             `json:"currency,omitempty"`
	Watchlist []string           `json:"watchlist,omitempty"`
	Portfolio map[string]Holding `json:"portfolio,omitempty"`
	// Fiat balances by currency code.
	Fiat map[string]decimal.Decimal `json:"fiat,omitempty"`
	// Savings maps a coin to the amount the user wants to hold.
	Savings map[string]decimal.Decimal `json:"savings,omitempty"`
	Budget  Budget                     `json:"budget,omitzero"`
}

// Budget caps simulated purchases. Both values are in the currency the user had
// selected when spending; Amount zero means no budget.
type Budget struct {
	Amount decimal.Decimal `json:"amount"`
	Spent  decimal.Decimal `json:"spent"`
}

// Exceeded reports whether spending went past a configured budget.
func (b Budget) Exceeded() bool {
	return b.Amount.IsPositive() && b.Spent.GreaterThan(b.Amount)
}

// Remaining is the unspent budget, never negative.
func (b Budget) Remaining() decimal.Decimal {
	if left := b.Amount.Sub(b.Spent); left.IsPositive() {
		return left
	}
	return decimal.Zero
}

// Holding is a simulated position. CostUSD is the purchase cost still attributed
// to the remaining amount.
type Holding struct {
	Amount  decimal.Decimal `json:"amount"`
	CostUSD decimal.Decimal `json:"cost_usd"`
}

// DisplayCurrency returns the user's currency, USD when unset.
func (p Profile) DisplayCurrency() string {
	return market.NormalizeCurrency(p.Currency)
}

// Watch adds coin to the watchlist and reports whether it was new.
func (p *Profile) Watch(coin string) bool {
	if slices.Contains(p.Watchlist, coin) {
		return false
	}
	p.Watchlist = append(p.Watchlist, coin)
	return true
}

// Unwatch removes coin and reports whether it was present.
func (p *Profile) Unwatch(coin string) bool {
	i := slices.Index(p.Watchlist, coin)
	if i < 0 {
		return false
	}
	p.Watchlist = slices.Delete(p.Watchlist, i, i+1)
	return true
}

// Buy adds amount of coin bought at priceUSD.
func (p *Profile) Buy(coin string, amount, priceUSD decimal.Decimal) {
	if p.Portfolio == nil {
		p.Portfolio = make(map[string]Holding)
	}
	h := p.Portfolio[coin]
	h.Amount = h.Amount.Add(amount)
	h.CostUSD = h.CostUSD.Add(amount.Mul(priceUSD))
	p.Portfolio[coin] = h
}

// Sell removes amount of coin, reducing the cost basis proportionally.
func (p *Profile) Sell(coin string, amount decimal.Decimal) error {
	h, ok := p.Portfolio[coin]
	if !ok || h.Amount.LessThan(amount) {
		return fmt.Errorf("%w: hold %s %s", ErrInsufficientHoldings, h.Amount.String(), coin)
	}
	if h.Amount.Equal(amount) {
		delete(p.Portfolio, coin)
		return nil
	}
	remaining := h.Amount.Sub(amount)
	h.CostUSD = h.CostUSD.Mul(remaining).Div(h.Amount).Round(8)
	h.Amount = remaining
	p.Portfolio[coin] = h
	return nil
}

// Deposit credits amount to the fiat balance of currency.
func (p *Profile) Deposit(currency string, amount decimal.Decimal) {
	if p.Fiat == nil {
		p.Fiat = make(map[string]decimal.Decimal)
	}
	p.Fiat[currency] = p.Fiat[currency].Add(amount)
}

// Withdraw debits amount from the fiat balance of currency.
func (p *Profile) Withdraw(currency string, amount decimal.Decimal) error {
	balance := p.Fiat[currency]
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: balance %s %s", ErrInsufficientFunds, balance.StringFixed(2), currency)
	}
	balance = balance.Sub(amount)
	if balance.IsZero() {
		delete(p.Fiat, currency)
	} else {
		p.Fiat[currency] = balance
	}
	return nil
}

// Pay withdraws cost for a purchase and books it against the budget.
func (p *Profile) Pay(currency string, cost decimal.Decimal) error {
	if err := p.Withdraw(currency, cost); err != nil {
		return err
	}
	p.Budget.Spent = p.Budget.Spent.Add(cost)
	return nil
}

// SetBudget replaces the budget amount and keeps what was already spent.
func (p *Profile) SetBudget(amount decimal.Decimal) {
	p.Budget.Amount = amount
}

// SetSavingsGoal sets the target holding for coin. A zero target removes the goal.
func (p *Profile) SetSavingsGoal(coin string, target decimal.Decimal) {
	if !target.IsPositive() {
		delete(p.Savings, coin)
		return
	}
	if p.Savings == nil {
		p.Savings = make(map[string]decimal.Decimal)
	}
	p.Savings[coin] = target
}

// SavingsProgress returns the held amount of coin and the percentage of its goal
// reached, capped at 100.
func (p Profile) SavingsProgress(coin string) (decimal.Decimal, decimal.Decimal) {
	held := p.Portfolio[coin].Amount
	target := p.Savings[coin]
	if !target.IsPositive() {
		return held, decimal.Zero
	}
	pct := held.Div(target).Mul(decimal.NewFromInt(100))
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		pct = decimal.NewFromInt(100)
	}
	return held, pct
}

// Coins returns the watched and held coins without duplicates.
func (p Profile) Coins() []string {
	out := slices.Clone(p.Watchlist)
	for coin := range p.Portfolio {
		if !slices.Contains(out, coin) {
			out = append(out, coin)
		}
	}
	return out
}
