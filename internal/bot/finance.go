package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"coin-alarm-bot/internal/storage"
)

// Fiat handles /fiat, /fiat deposit AMOUNT and /fiat withdraw AMOUNT in the
// user's currency.
func (h *Handlers) Fiat(c tele.Context) error {
	const usage = "/fiat deposit|withdraw AMOUNT"
	args := c.Args()

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	if len(args) == 0 {
		p, err := h.users.Get(ctx, userID)
		if err != nil {
			return h.storageFailure(c, userID, err)
		}
		if len(p.Fiat) == 0 {
			return c.Send("💵 No fiat balance. Deposit with " + usage)
		}
		var b strings.Builder
		b.WriteString("💵 Fiat balances")
		for _, cur := range sortedKeys(p.Fiat) {
			fmt.Fprintf(&b, "\n%s: %s", cur, p.Fiat[cur].StringFixed(2))
		}
		return c.Send(b.String())
	}
	if len(args) != 2 {
		return invalid(c, fmt.Errorf("expected an action and an amount"), usage)
	}
	action := strings.ToLower(args[0])
	if action != "deposit" && action != "withdraw" {
		return invalid(c, fmt.Errorf("action must be deposit or withdraw"), usage)
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return invalid(c, err, usage)
	}

	var currency string
	err = h.users.Update(ctx, userID, func(p *storage.Profile) error {
		currency = p.DisplayCurrency()
		if action == "withdraw" {
			return p.Withdraw(currency, amount)
		}
		p.Deposit(currency, amount)
		return nil
	})
	if errors.Is(err, storage.ErrInsufficientFunds) {
		return invalid(c, err, usage)
	}
	if err != nil {
		return h.storageFailure(c, userID, err)
	}
	verb := "Deposited"
	if action == "withdraw" {
		verb = "Withdrew"
	}
	return c.Send(fmt.Sprintf("✅ %s %s %s", verb, amount.StringFixed(2), currency))
}

// Savings handles /savings (progress) and /savings COIN TARGET|clear.
func (h *Handlers) Savings(c tele.Context) error {
	const usage = "/savings COIN TARGET|clear"
	args := c.Args()

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	if len(args) == 0 {
		p, err := h.users.Get(ctx, userID)
		if err != nil {
			return h.storageFailure(c, userID, err)
		}
		if len(p.Savings) == 0 {
			return c.Send("🎯 No savings goals. Set one with " + usage)
		}
		var b strings.Builder
		b.WriteString("🎯 Savings goals")
		writeSavings(&b, p)
		return c.Send(b.String())
	}
	if len(args) != 2 {
		return invalid(c, fmt.Errorf("expected a coin and a target"), usage)
	}
	coin, err := parseCoin(args[0])
	if err != nil {
		return invalid(c, err, usage)
	}
	target := decimal.Zero
	if !strings.EqualFold(args[1], "clear") {
		if target, err = parseAmount(args[1]); err != nil {
			return invalid(c, err, usage)
		}
	}

	if err := h.users.Update(ctx, userID, func(p *storage.Profile) error {
		p.SetSavingsGoal(coin, target)
		return nil
	}); err != nil {
		return h.storageFailure(c, userID, err)
	}
	if target.IsZero() {
		return c.Send("🎯 Savings goal for " + coin + " removed.")
	}
	return c.Send(fmt.Sprintf("🎯 Savings goal set: %s %s", target.String(), coin))
}

// Budget handles /budget and /budget AMOUNT. Setting a budget keeps what was
// already spent; zero disables it.
func (h *Handlers) Budget(c tele.Context) error {
	const usage = "/budget AMOUNT"
	args := c.Args()

	ctx, cancel := h.context()
	defer cancel()
	userID := senderID(c)

	if len(args) == 0 {
		p, err := h.users.Get(ctx, userID)
		if err != nil {
			return h.storageFailure(c, userID, err)
		}
		currency := p.DisplayCurrency()
		if !p.Budget.Amount.IsPositive() {
			return c.Send(fmt.Sprintf("💸 No budget set. Spent so far: %s %s\nSet one with %s", p.Budget.Spent.StringFixed(2), currency, usage))
		}
		return c.Send(fmt.Sprintf("💸 Budget: %s %s\nSpent: %s %s\nLeft: %s %s",
			p.Budget.Amount.StringFixed(2), currency,
			p.Budget.Spent.StringFixed(2), currency,
			p.Budget.Remaining().StringFixed(2), currency))
	}
	if len(args) != 1 {
		return invalid(c, fmt.Errorf("expected one amount"), usage)
	}
	amount, err := parseNonNegative(args[0], "budget")
	if err != nil {
		return invalid(c, err, usage)
	}

	var currency string
	if err := h.users.Update(ctx, userID, func(p *storage.Profile) error {
		currency = p.DisplayCurrency()
		p.SetBudget(amount)
		return nil
	}); err != nil {
		return h.storageFailure(c, userID, err)
	}
	return c.Send(fmt.Sprintf("✅ Budget set to %s %s", amount.StringFixed(2), currency))
}

func writeSavings(b *strings.Builder, p storage.Profile) {
	for _, coin := range sortedKeys(p.Savings) {
		held, pct := p.SavingsProgress(coin)
		fmt.Fprintf(b, "\n%s: %s / %s (%s%%)", coin, held.String(), p.Savings[coin].String(), pct.StringFixed(1))
	}
}
