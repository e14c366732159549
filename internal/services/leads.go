package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leadhub/crm/internal/db"
	"github.com/leadhub/crm/internal/models"
)

const (
	defaultListLimit = 1000
	maxListLimit     = 5000
)

// LeadStore owns leads, their interaction log, and stage/archive transitions.
type LeadStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLeadStore(gdb *gorm.DB) *LeadStore {
	return &LeadStore{db: gdb, now: utcNow}
}

// Times are stored in UTC so that range filters compare consistently on SQLite.
func utcNow() time.Time { return time.Now().UTC() }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

type LeadInput struct {
	TelegramID      *int64     `json:"telegram_id"`
	Phone           *string    `json:"phone"`
	FullName        *string    `json:"full_name"`
	Username        *string    `json:"username"`
	Bio             *string    `json:"bio"`
	Stage           string     `json:"stage"`
	ManagerName     *string    `json:"manager_name"`
	NextContactDate *time.Time `json:"next_contact_date"`
	BatchID         *uint      `json:"batch_id"`
}

type InteractionInput struct {
	LeadID          uint       `json:"lead_id"`
	ContactMethod   string     `json:"contact_method"`
	Content         string     `json:"content"`
	NewStage        *string    `json:"new_stage"`
	NextContactDate *time.Time `json:"next_contact_date"`
}

// LeadFilter narrows List and Count. Search matches full name, phone or
// username as a case-insensitive substring.
type LeadFilter struct {
	Search          string
	Stage           string
	IncludeArchived bool
	Offset          int
	Limit           int
}

func (s *LeadStore) Create(ctx context.Context, in LeadInput) (*models.Lead, error) {
	lead := buildLead(in, s.now())
	if err := s.db.WithContext(ctx).Create(lead).Error; err != nil {
		return nil, leadWriteError(err, in)
	}
	return lead, nil
}

// CreateTx inserts inside a caller-owned transaction.
func (s *LeadStore) CreateTx(tx *gorm.DB, in LeadInput) (*models.Lead, error) {
	lead := buildLead(in, s.now())
	if err := tx.Create(lead).Error; err != nil {
		return nil, leadWriteError(err, in)
	}
	return lead, nil
}

func buildLead(in LeadInput, now time.Time) *models.Lead {
	stage := strings.TrimSpace(in.Stage)
	if stage == "" {
		stage = models.DefaultLeadStage
	}
	return &models.Lead{
		CreatedAt:       now,
		UpdatedAt:       now,
		TelegramID:      in.TelegramID,
		Phone:           in.Phone,
		FullName:        in.FullName,
		Username:        in.Username,
		Bio:             in.Bio,
		Stage:           stage,
		ManagerName:     in.ManagerName,
		NextContactDate: utcPtr(in.NextContactDate),
		BatchID:         in.BatchID,
	}
}

func isUnique(err error) bool { return db.IsUniqueViolation(err) }

func leadWriteError(err error, in LeadInput) error {
	if isUnique(err) {
		var v any
		if in.TelegramID != nil {
			v = *in.TelegramID
		}
		return &ConflictError{Entity: "lead", Field: "telegram_id", Value: v}
	}
	// batch_id is the only foreign key on leads
	if db.IsForeignKeyViolation(err) && in.BatchID != nil {
		return &NotFoundError{Entity: "batch", ID: *in.BatchID}
	}
	return err
}

// Get returns the lead with its interactions, newest first.
func (s *LeadStore) Get(ctx context.Context, id uint) (*models.Lead, error) {
	var lead models.Lead
	err := s.db.WithContext(ctx).
		Preload("Interactions", func(q *gorm.DB) *gorm.DB {
			return q.Order("timestamp desc, id desc")
		}).
		First(&lead, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "lead", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// RecordInteraction appends to the lead's log and applies the optional stage
// and next-contact changes in one transaction. This is the only funnel
// transition; any non-blank stage label is accepted.
func (s *LeadStore) RecordInteraction(ctx context.Context, in InteractionInput) (*models.Interaction, error) {
	now := s.now()
	it := &models.Interaction{
		LeadID:        in.LeadID,
		Timestamp:     now,
		ContactMethod: strings.TrimSpace(in.ContactMethod),
		Content:       in.Content,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lead models.Lead
		if err := tx.Select("id").First(&lead, in.LeadID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "lead", ID: in.LeadID}
			}
			return err
		}
		if err := tx.Create(it).Error; err != nil {
			return err
		}

		updates := map[string]any{"updated_at": now}
		if in.NewStage != nil && strings.TrimSpace(*in.NewStage) != "" {
			updates["stage"] = strings.TrimSpace(*in.NewStage)
		}
		if in.NextContactDate != nil {
			updates["next_contact_date"] = in.NextContactDate.UTC()
		}
		return tx.Model(&models.Lead{}).Where("id = ?", in.LeadID).UpdateColumns(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (s *LeadStore) Archive(ctx context.Context, id uint) error {
	return s.setArchived(ctx, id, true)
}

func (s *LeadStore) Restore(ctx context.Context, id uint) error {
	return s.setArchived(ctx, id, false)
}

func (s *LeadStore) setArchived(ctx context.Context, id uint, archived bool) error {
	res := s.db.WithContext(ctx).Model(&models.Lead{}).Where("id = ?", id).
		UpdateColumns(map[string]any{"is_archived": archived, "updated_at": s.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Entity: "lead", ID: id}
	}
	return nil
}

// Delete removes the lead permanently, interactions first.
func (s *LeadStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Lead{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return &NotFoundError{Entity: "lead", ID: id}
		}
		if err := tx.Where("lead_id = ?", id).Delete(&models.Interaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Lead{}, id).Error
	})
}

func (s *LeadStore) List(ctx context.Context, f LeadFilter) ([]models.Lead, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var leads []models.Lead
	err := s.filtered(ctx, f).
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&leads).Error
	return leads, err
}

func (s *LeadStore) Count(ctx context.Context, f LeadFilter) (int64, error) {
	var n int64
	err := s.filtered(ctx, f).Count(&n).Error
	return n, err
}

func (s *LeadStore) filtered(ctx context.Context, f LeadFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Lead{})
	if !f.IncludeArchived {
		q = q.Where("is_archived = ?", false)
	}
	if st := strings.TrimSpace(f.Stage); st != "" {
		q = q.Where("stage = ?", st)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		q = q.Where(searchClause(s.db.Dialector.Name(), term))
	}
	return q
}

var searchColumns = []string{"full_name", "phone", "username"}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchClause builds a case-insensitive substring match over searchColumns.
// SQLite only folds ASCII case, so for other scripts the term is also tried
// lowercased, uppercased and capitalised.
func searchClause(dialect, term string) clause.Expression {
	var exprs []clause.Expression
	if dialect == "postgres" {
		pat := "%" + likeEscaper.Replace(term) + "%"
		for _, col := range searchColumns {
			exprs = append(exprs, clause.Expr{SQL: col + ` ILIKE ? ESCAPE '\'`, Vars: []any{pat}})
		}
		return clause.Or(exprs...)
	}
	for _, v := range caseVariants(term) {
		pat := "%" + likeEscaper.Replace(v) + "%"
		for _, col := range searchColumns {
			exprs = append(exprs, clause.Expr{SQL: col + ` LIKE ? ESCAPE '\'`, Vars: []any{pat}})
		}
	}
	return clause.Or(exprs...)
}

func caseVariants(term string) []string {
	lower := strings.ToLower(term)
	out := []string{term}
	for _, v := range []string{lower, strings.ToUpper(term), capitalise(lower)} {
		dup := false
		for _, o := range out {
			if o == v {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

func capitalise(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// RenameStage relabels every lead in stage from, e.g. to migrate legacy labels.
func (s *LeadStore) RenameStage(ctx context.Context, from, to string) (int64, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" {
		return 0, &InvalidArgumentError{Field: "from", Message: "is required"}
	}
	if to == "" {
		return 0, &InvalidArgumentError{Field: "to", Message: "is required"}
	}
	res := s.db.WithContext(ctx).Model(&models.Lead{}).Where("stage = ?", from).
		UpdateColumns(map[string]any{"stage": to, "updated_at": s.now()})
	return res.RowsAffected, res.Error
}

// DueForContact returns non-archived leads whose next contact falls on the
// calendar day of day, in day's location.
func (s *LeadStore) DueForContact(ctx context.Context, day time.Time) ([]models.Lead, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var leads []models.Lead
	err := s.db.WithContext(ctx).
		Where("is_archived = ? AND next_contact_date >= ? AND next_contact_date < ?", false, start.UTC(), end.UTC()).
		Order("next_contact_date asc, id asc").
		Find(&leads).Error
	return leads, err
}
