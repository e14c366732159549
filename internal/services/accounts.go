package services

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/leadhub/crm/internal/models"
)

const DefaultWelcomeBalance = 100

var reUsername = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// PasswordPolicy validates a candidate password; nil means acceptable.
type PasswordPolicy func(password string) error

// DefaultPasswordPolicy wants 8 to 72 bytes (the bcrypt limit) with a letter
// and a digit.
func DefaultPasswordPolicy(password string) error {
	if len(password) < 8 {
		return &InvalidArgumentError{Field: "password", Message: "must be at least 8 characters"}
	}
	if len(password) > 72 {
		return &InvalidArgumentError{Field: "password", Message: "must be at most 72 bytes"}
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return &InvalidArgumentError{Field: "password", Message: "must contain a letter and a digit"}
	}
	return nil
}

type Accounts struct {
	db             *gorm.DB
	policy         PasswordPolicy
	welcomeBalance int64
}

func NewAccounts(gdb *gorm.DB, welcomeBalance int64, policy PasswordPolicy) *Accounts {
	if policy == nil {
		policy = DefaultPasswordPolicy
	}
	if welcomeBalance < 0 {
		welcomeBalance = 0
	}
	return &Accounts{db: gdb, policy: policy, welcomeBalance: welcomeBalance}
}

// Register creates a manager account credited with the welcome balance.
func (a *Accounts) Register(ctx context.Context, username, password string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	if !reUsername.MatchString(username) {
		return nil, &InvalidArgumentError{Field: "username", Message: "must be 3-32 letters, digits or underscores"}
	}
	if err := a.policy(password); err != nil {
		return nil, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	acc := &models.Account{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleManager,
		Balance:      a.welcomeBalance,
	}
	if err := a.db.WithContext(ctx).Create(acc).Error; err != nil {
		if isUnique(err) {
			return nil, &ConflictError{Entity: "account", Field: "username", Value: username}
		}
		return nil, err
	}
	log.Printf("[accounts] registered %s (id %d)", acc.Username, acc.ID)
	return acc, nil
}

// Authenticate returns ErrInvalidCredentials for unknown users and wrong
// passwords alike.
func (a *Accounts) Authenticate(ctx context.Context, username, password string) (*models.Account, error) {
	var acc models.Account
	err := a.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &acc, nil
}

func (a *Accounts) Get(ctx context.Context, id uint) (*models.Account, error) {
	var acc models.Account
	err := a.db.WithContext(ctx).First(&acc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "account", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (a *Accounts) ByChatID(ctx context.Context, chatID string) (*models.Account, error) {
	var acc models.Account
	err := a.db.WithContext(ctx).Where("telegram_chat_id = ?", chatID).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "account", ID: "chat " + chatID}
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// EnsureAdmin reconciles the bootstrap admin on every start: it is created
// with the given balance when missing, re-hashed when the configured password
// changed, and always keeps the admin role.
func (a *Accounts) EnsureAdmin(ctx context.Context, username, password string, balance int64) (*models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, &InvalidArgumentError{Field: "admin", Message: "username and password are required"}
	}

	var acc models.Account
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("username = ?", username).First(&acc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			hash, err := hashPassword(password)
			if err != nil {
				return err
			}
			acc = models.Account{Username: username, PasswordHash: hash, Role: models.RoleAdmin, Balance: balance}
			if err := tx.Create(&acc).Error; err != nil {
				return err
			}
			log.Printf("[accounts] admin %s created", username)
			return nil
		}
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
			hash, err := hashPassword(password)
			if err != nil {
				return err
			}
			updates["password_hash"] = hash
			acc.PasswordHash = hash
		}
		if acc.Role != models.RoleAdmin {
			updates["role"] = models.RoleAdmin
			acc.Role = models.RoleAdmin
		}
		if len(updates) == 0 {
			return nil
		}
		log.Printf("[accounts] admin %s reconciled", username)
		return tx.Model(&models.Account{}).Where("id = ?", acc.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// IssueConnectToken replaces the account's one-time Telegram connect token.
func (a *Accounts) IssueConnectToken(ctx context.Context, accountID uint) (string, error) {
	token := uuid.NewString()
	res := a.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", accountID).
		Update("connect_token", token)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", &NotFoundError{Entity: "account", ID: accountID}
	}
	return token, nil
}

// LinkTelegram consumes a connect token and binds chatID to its account.
func (a *Accounts) LinkTelegram(ctx context.Context, token, chatID string) (*models.Account, error) {
	token, chatID = strings.TrimSpace(token), strings.TrimSpace(chatID)
	if token == "" {
		return nil, &NotFoundError{Entity: "connect token", ID: token}
	}
	if chatID == "" {
		return nil, &InvalidArgumentError{Field: "chat_id", Message: "is required"}
	}

	var acc models.Account
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("connect_token = ?", token).First(&acc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "connect token", ID: token}
			}
			return err
		}

		var other int64
		if err := tx.Model(&models.Account{}).
			Where("telegram_chat_id = ? AND id <> ?", chatID, acc.ID).
			Count(&other).Error; err != nil {
			return err
		}
		if other > 0 {
			return &ConflictError{Entity: "account", Field: "telegram_chat_id", Value: chatID}
		}

		acc.TelegramChatID = &chatID
		acc.ConnectToken = nil
		return tx.Model(&models.Account{}).Where("id = ?", acc.ID).
			Updates(map[string]any{"telegram_chat_id": chatID, "connect_token": nil}).Error
	})
	if err != nil {
		if isUnique(err) {
			return nil, &ConflictError{Entity: "account", Field: "telegram_chat_id", Value: chatID}
		}
		return nil, err
	}
	log.Printf("[accounts] %s linked telegram chat %s", acc.Username, chatID)
	return &acc, nil
}

func (a *Accounts) UnlinkTelegram(ctx context.Context, accountID uint) error {
	res := a.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", accountID).
		Updates(map[string]any{"telegram_chat_id": nil, "connect_token": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Entity: "account", ID: accountID}
	}
	return nil
}

func hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
