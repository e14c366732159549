package bot

import (
	"context"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"

	"github.com/leadhub/crm/internal/models"
	svc "github.com/leadhub/crm/internal/services"
)

// Sender is the part of Client the dispatcher and reminders need.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyMarkup any) error
}

const helpText = "Commands:\n/balance - check your lead balance\n/leads - recent distributions"

type Dispatcher struct {
	c        Sender
	accounts *svc.Accounts
	ledger   *svc.Ledger
}

func NewDispatcher(c Sender, accounts *svc.Accounts, ledger *svc.Ledger) *Dispatcher {
	return &Dispatcher{c: c, accounts: accounts, ledger: ledger}
}

// Handle answers one webhook update. Only text messages are handled.
func (d *Dispatcher) Handle(ctx context.Context, u *Update) error {
	if u == nil || u.Message == nil || u.Message.Chat == nil {
		return nil
	}
	chat := u.Message.Chat.ID
	chatKey := strconv.FormatInt(chat, 10)
	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		return nil
	}

	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	// "/balance@lead_bot" in group chats
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		if len(fields) == 2 {
			return d.link(ctx, chat, fields[1])
		}
		acc, err := d.linked(ctx, chatKey)
		if err != nil {
			return err
		}
		if acc == nil {
			return d.c.SendMessage(ctx, chat, "Welcome! Link your account by sending /start &lt;token&gt; from your dashboard.", nil)
		}
		return d.c.SendMessage(ctx, chat,
			fmt.Sprintf("Welcome back, <b>%s</b>! Use /balance to check your leads.", html.EscapeString(acc.Username)), nil)

	case "/balance":
		acc, err := d.linked(ctx, chatKey)
		if err != nil {
			return err
		}
		if acc == nil {
			return d.c.SendMessage(ctx, chat, "Account not linked. Please use /start &lt;token&gt;.", nil)
		}
		return d.c.SendMessage(ctx, chat, fmt.Sprintf("Your balance: <b>%d</b> leads", acc.Balance), nil)

	case "/leads":
		acc, err := d.linked(ctx, chatKey)
		if err != nil {
			return err
		}
		if acc == nil {
			return d.c.SendMessage(ctx, chat, "Account not linked.", nil)
		}
		txs, err := d.ledger.ListTransactions(ctx, acc.ID, 5)
		if err != nil {
			return err
		}
		return d.c.SendMessage(ctx, chat, recentText(txs), nil)

	default:
		return d.c.SendMessage(ctx, chat, helpText, nil)
	}
}

func (d *Dispatcher) link(ctx context.Context, chat int64, token string) error {
	acc, err := d.accounts.LinkTelegram(ctx, token, strconv.FormatInt(chat, 10))
	switch {
	case err == nil:
		return d.c.SendMessage(ctx, chat,
			fmt.Sprintf("Account connected successfully! Hello, <b>%s</b>.", html.EscapeString(acc.Username)), nil)
	case svc.IsNotFound(err):
		return d.c.SendMessage(ctx, chat, "Invalid or expired token. Please generate a new one on the dashboard.", nil)
	case svc.IsConflict(err):
		return d.c.SendMessage(ctx, chat, "This chat is already linked to another account.", nil)
	default:
		log.Printf("[bot] link chat %d: %v", chat, err)
		return err
	}
}

// linked returns nil without error when the chat has no account.
func (d *Dispatcher) linked(ctx context.Context, chatKey string) (*models.Account, error) {
	acc, err := d.accounts.ByChatID(ctx, chatKey)
	if svc.IsNotFound(err) {
		return nil, nil
	}
	return acc, err
}

func recentText(txs []models.Transaction) string {
	if len(txs) == 0 {
		return "No recent lead distributions."
	}
	var b strings.Builder
	b.WriteString("Recent distributions:")
	for _, t := range txs {
		fmt.Fprintf(&b, "\n- %d (%s) to %s", t.Count, html.EscapeString(t.PackageType), html.EscapeString(t.Recipient))
	}
	return b.String()
}
