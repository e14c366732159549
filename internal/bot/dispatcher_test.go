package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svc "github.com/leadhub/crm/internal/services"
)

func textUpdate(chat int64, text string) *Update {
	return &Update{Message: &Message{Chat: &Chat{ID: chat}, From: &User{ID: chat}, Text: text}}
}

func TestDispatcher_LinkBalanceLeads(t *testing.T) {
	gdb := openTestDB(t)
	accounts := svc.NewAccounts(gdb, 100, nil)
	ledger := svc.NewLedger(gdb, nil)
	sender := &recordingSender{}
	d := NewDispatcher(sender, accounts, ledger)
	ctx := context.Background()

	acc, err := accounts.Register(ctx, "manager", "password1")
	require.NoError(t, err)
	token, err := accounts.IssueConnectToken(ctx, acc.ID)
	require.NoError(t, err)

	require.NoError(t, d.Handle(ctx, textUpdate(777, "/balance")))
	require.NoError(t, d.Handle(ctx, textUpdate(777, "/start bogus-token")))
	require.NoError(t, d.Handle(ctx, textUpdate(777, "/start "+token)))
	require.NoError(t, d.Handle(ctx, textUpdate(777, "/start")))

	_, err = ledger.Distribute(ctx, acc.ID, "@partner", "Warm", 7)
	require.NoError(t, err)

	require.NoError(t, d.Handle(ctx, textUpdate(777, "/balance")))
	require.NoError(t, d.Handle(ctx, textUpdate(777, "/leads@lead_bot")))
	require.NoError(t, d.Handle(ctx, textUpdate(777, "hello?")))

	msgs := sender.messages()
	require.Len(t, msgs, 7)
	assert.Contains(t, msgs[0].Text, "not linked")
	assert.Contains(t, msgs[1].Text, "Invalid or expired token")
	assert.Contains(t, msgs[2].Text, "connected successfully")
	assert.Contains(t, msgs[3].Text, "Welcome back")
	assert.Contains(t, msgs[4].Text, "<b>93</b>")
	assert.Contains(t, msgs[5].Text, "- 7 (Warm) to @partner")
	assert.Contains(t, msgs[6].Text, "/balance")
	for _, m := range msgs {
		assert.EqualValues(t, 777, m.ChatID)
	}
}

func TestDispatcher_IgnoresNonText(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, nil, nil)

	require.NoError(t, d.Handle(context.Background(), &Update{}))
	require.NoError(t, d.Handle(context.Background(), textUpdate(1, "   ")))
	assert.Empty(t, sender.messages())
}
