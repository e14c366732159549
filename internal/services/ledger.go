package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/leadhub/crm/internal/metrics"
	"github.com/leadhub/crm/internal/models"
)

const (
	defaultTxLimit = 50
	maxTxLimit     = 500
	notifyTimeout  = 15 * time.Second
)

// Notifier delivers a text message to a recipient. Delivery is best effort.
type Notifier interface {
	Deliver(ctx context.Context, recipient, text string) error
}

type DistributeResult struct {
	RemainingBalance int64 `json:"remaining_balance"`
	TransactionID    uint  `json:"transaction_id"`
}

// Ledger owns account balances and the distribution log.
type Ledger struct {
	db       *gorm.DB
	notifier Notifier
	now      func() time.Time

	// wg tracks in-flight notifications; tests wait on it.
	wg sync.WaitGroup
}

func NewLedger(gdb *gorm.DB, notifier Notifier) *Ledger {
	return &Ledger{db: gdb, notifier: notifier, now: utcNow}
}

func (l *Ledger) GetBalance(ctx context.Context, accountID uint) (int64, error) {
	return balanceOf(l.db.WithContext(ctx), accountID)
}

func balanceOf(q *gorm.DB, accountID uint) (int64, error) {
	var acc models.Account
	err := q.Select("id", "balance").First(&acc, accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, &NotFoundError{Entity: "account", ID: accountID}
	}
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Distribute debits count credits from the account and logs the transaction,
// atomically. The debit is a conditional decrement, so concurrent calls can
// never take the balance below zero. The recipient is notified after commit
// when it looks like a chat id; that outcome never affects the result.
func (l *Ledger) Distribute(ctx context.Context, accountID uint, recipient, packageType string, count int64) (*DistributeResult, error) {
	recipient = strings.TrimSpace(recipient)
	packageType = strings.TrimSpace(packageType)
	if count <= 0 {
		return nil, &InvalidArgumentError{Field: "count", Message: "must be positive"}
	}
	if recipient == "" {
		return nil, &InvalidArgumentError{Field: "recipient", Message: "is required"}
	}

	var res DistributeResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.Account{}).
			Where("id = ? AND balance >= ?", accountID, count).
			UpdateColumn("balance", gorm.Expr("balance - ?", count))
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			bal, err := balanceOf(tx, accountID)
			if err != nil {
				return err
			}
			return &InsufficientBalanceError{Balance: bal, Requested: count}
		}

		rec := &models.Transaction{
			AccountID:   accountID,
			Recipient:   recipient,
			PackageType: packageType,
			Count:       count,
			Timestamp:   l.now(),
		}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}

		bal, err := balanceOf(tx, accountID)
		if err != nil {
			return err
		}
		res = DistributeResult{RemainingBalance: bal, TransactionID: rec.ID}
		return nil
	})
	switch {
	case err == nil:
		metrics.RecordDistribution("ok", count)
	case IsInsufficientBalance(err):
		metrics.RecordDistribution("insufficient", count)
		return nil, err
	default:
		metrics.RecordDistribution("error", count)
		return nil, err
	}

	log.Printf("[ledger] account %d distributed %d %q leads to %s (tx %d, balance %d)",
		accountID, count, packageType, recipient, res.TransactionID, res.RemainingBalance)
	l.notify(recipient, packageType, count)
	return &res, nil
}

func (l *Ledger) notify(recipient, packageType string, count int64) {
	if l.notifier == nil || !IsChatID(recipient) {
		return
	}
	text := DistributionMessage(count, packageType)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := l.notifier.Deliver(ctx, recipient, text); err != nil {
			metrics.RecordNotifyFailure("ledger")
			log.Printf("[ledger] notify %s: %v", recipient, err)
		}
	}()
}

// DistributionMessage is the text sent to a recipient of a distribution.
func DistributionMessage(count int64, packageType string) string {
	return fmt.Sprintf("You have received %d leads of type %s!", count, packageType)
}

// ListTransactions returns the account's distributions, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, accountID uint, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultTxLimit
	}
	if limit > maxTxLimit {
		limit = maxTxLimit
	}
	var txs []models.Transaction
	err := l.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// Wait blocks until pending notifications have finished.
func (l *Ledger) Wait() { l.wg.Wait() }
