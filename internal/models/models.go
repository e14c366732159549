package models

import "time"

// Lead is a contact moving through the sales funnel.
type Lead struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TelegramID  *int64  `gorm:"uniqueIndex" json:"telegram_id"` // unique when present, archived or not
	Phone       *string `json:"phone"`
	FullName    *string `json:"full_name"`
	Username    *string `json:"username"`
	Bio         *string `gorm:"type:text" json:"bio"`
	Stage       string  `gorm:"not null;default:New;index" json:"stage"`
	ManagerName *string `json:"manager_name"`
	IsArchived  bool    `gorm:"not null;default:false" json:"is_archived"`

	NextContactDate *time.Time `gorm:"index" json:"next_contact_date"`
	BatchID         *uint      `gorm:"index" json:"batch_id"`

	Interactions []Interaction `gorm:"foreignKey:LeadID" json:"interactions,omitempty"`
}

// Interaction is one append-only entry of a lead's contact history.
type Interaction struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	LeadID        uint      `gorm:"not null" json:"lead_id"`
	Timestamp     time.Time `gorm:"not null" json:"timestamp"`
	ContactMethod string    `json:"contact_method"`
	Content       string    `gorm:"type:text" json:"content"`
}

// Batch groups the leads created by one import.
type Batch struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description *string   `json:"description"`
	FileName    *string   `json:"file_name"`
	ImportedAt  time.Time `gorm:"not null" json:"imported_at"`
	Count       int64     `gorm:"column:lead_count;not null;default:0" json:"count"` // committed leads only

	Leads []Lead `gorm:"foreignKey:BatchID" json:"-"`
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

// Account is a manager (or admin) login holding a lead balance.
type Account struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username     string `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         string `gorm:"not null;default:manager" json:"role"`
	Balance      int64  `gorm:"not null;default:0;check:balance >= 0" json:"balance"`

	TelegramChatID *string `gorm:"uniqueIndex" json:"telegram_chat_id"`
	ConnectToken   *string `gorm:"uniqueIndex" json:"-"` // one-time, cleared after use

	Transactions []Transaction `gorm:"foreignKey:AccountID" json:"-"`
}

// Transaction is the immutable record of one distribution.
type Transaction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AccountID   uint      `gorm:"not null;index" json:"account_id"`
	Recipient   string    `gorm:"not null" json:"recipient"`
	PackageType string    `json:"package_type"`
	Count       int64     `gorm:"not null" json:"count"`
	Timestamp   time.Time `gorm:"not null;index" json:"timestamp"`
}

func (Transaction) TableName() string { return "lead_transactions" }

// All lists every model, in dependency order, for migrations.
func All() []any {
	return []any{
		&Batch{},
		&Lead{},
		&Interaction{},
		&Account{},
		&Transaction{},
	}
}
