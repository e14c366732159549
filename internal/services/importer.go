package services

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/leadhub/crm/internal/metrics"
	"github.com/leadhub/crm/internal/models"
	"github.com/leadhub/crm/internal/sheets"
)

const DefaultImportChunkSize = 100

// Spreadsheet headers accepted for each lead field, matched case-insensitively.
var (
	identityColumns = []string{"ID", "telegram_id"}
	phoneColumns    = []string{"Номер телефона", "phone"}
	nameColumns     = []string{"Полное имя", "full_name", "name"}
	usernameColumns = []string{"Юзернейм", "username"}
	bioColumns      = []string{"Описание профиля", "bio"}
	managerColumns  = []string{"Менеджер", "manager_name"}
)

type ImportOptions struct {
	BatchName   string
	Description string
	FileName    string
}

type ImportResult struct {
	BatchID       uint `json:"batch_id"`
	ImportedCount int  `json:"imported_count"`
	SkippedCount  int  `json:"skipped_count"`
}

// Importer turns row sources into batches of leads. Rows are committed in
// chunks; each chunk bumps the batch count in the same transaction, so the
// stored count never exceeds the committed leads.
type Importer struct {
	db        *gorm.DB
	leads     *LeadStore
	chunkSize int
	now       func() time.Time
}

func NewImporter(gdb *gorm.DB, leads *LeadStore, chunkSize int) *Importer {
	if chunkSize <= 0 {
		chunkSize = DefaultImportChunkSize
	}
	return &Importer{db: gdb, leads: leads, chunkSize: chunkSize, now: utcNow}
}

func (im *Importer) Import(ctx context.Context, src sheets.Source, opts ImportOptions) (*ImportResult, error) {
	now := im.now()
	batch := &models.Batch{
		Name:        batchName(opts, now),
		Description: nonBlank(opts.Description),
		FileName:    nonBlank(opts.FileName),
		ImportedAt:  now,
	}
	if err := im.db.WithContext(ctx).Create(batch).Error; err != nil {
		return nil, err
	}

	res := &ImportResult{BatchID: batch.ID}
	seen := make(map[int64]struct{})
	chunk := make([]LeadInput, 0, im.chunkSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		inserted, skipped, err := im.commitChunk(ctx, batch.ID, chunk)
		if err != nil {
			return err
		}
		res.ImportedCount += inserted
		res.SkippedCount += skipped
		chunk = chunk[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			im.finish(res)
			return res, err
		}
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			im.abandon(batch.ID, res)
			return res, &ImportError{Err: err}
		}

		in := leadFromRow(row)
		in.BatchID = &batch.ID
		if in.TelegramID != nil {
			if _, dup := seen[*in.TelegramID]; dup {
				res.SkippedCount++
				continue
			}
			seen[*in.TelegramID] = struct{}{}
		}
		chunk = append(chunk, in)

		if len(chunk) >= im.chunkSize {
			if err := flush(); err != nil {
				im.finish(res)
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		im.finish(res)
		return res, err
	}

	im.finish(res)
	log.Printf("[import] batch %d %q: %d imported, %d skipped", batch.ID, batch.Name, res.ImportedCount, res.SkippedCount)
	return res, nil
}

// commitChunk inserts rows whose identity is not taken yet. Each insert runs in
// a savepoint so that a concurrent import winning the race only skips the row.
func (im *Importer) commitChunk(ctx context.Context, batchID uint, rows []LeadInput) (inserted, skipped int, err error) {
	err = im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, skipped = 0, 0
		for _, in := range rows {
			if in.TelegramID != nil {
				var n int64
				if err := tx.Model(&models.Lead{}).Where("telegram_id = ?", *in.TelegramID).Count(&n).Error; err != nil {
					return err
				}
				if n > 0 {
					skipped++
					continue
				}
			}

			err := tx.Transaction(func(sp *gorm.DB) error {
				_, err := im.leads.CreateTx(sp, in)
				return err
			})
			if IsConflict(err) {
				skipped++
				continue
			}
			if err != nil {
				return err
			}
			inserted++
		}
		if inserted == 0 {
			return nil
		}
		return tx.Model(&models.Batch{}).Where("id = ?", batchID).
			UpdateColumn("lead_count", gorm.Expr("lead_count + ?", inserted)).Error
	})
	return inserted, skipped, err
}

func (im *Importer) finish(res *ImportResult) {
	metrics.RecordImport(res.ImportedCount, res.SkippedCount)
}

// abandon drops a batch that failed before any lead was committed.
func (im *Importer) abandon(batchID uint, res *ImportResult) {
	im.finish(res)
	if res.ImportedCount > 0 {
		return
	}
	if err := im.db.Delete(&models.Batch{}, batchID).Error; err != nil {
		log.Printf("[import] drop empty batch %d: %v", batchID, err)
		return
	}
	res.BatchID = 0
}

func leadFromRow(row sheets.Row) LeadInput {
	cells := make(map[string]any, len(row))
	for k, v := range row {
		cells[strings.ToLower(strings.TrimSpace(k))] = v
	}
	pick := func(names []string) any {
		for _, n := range names {
			if v, ok := cells[strings.ToLower(n)]; ok && v != nil {
				return v
			}
		}
		return nil
	}

	return LeadInput{
		TelegramID:  CoerceIdentity(pick(identityColumns)),
		Phone:       NormPhone(pick(phoneColumns)),
		FullName:    CellText(pick(nameColumns)),
		Username:    CellText(pick(usernameColumns)),
		Bio:         CellText(pick(bioColumns)),
		ManagerName: CellText(pick(managerColumns)),
		Stage:       models.DefaultLeadStage,
	}
}

func batchName(opts ImportOptions, now time.Time) string {
	if n := strings.TrimSpace(opts.BatchName); n != "" {
		return n
	}
	if n := strings.TrimSpace(opts.FileName); n != "" {
		return n
	}
	return "Import " + now.Format("2006-01-02 15:04")
}

func nonBlank(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (im *Importer) ListBatches(ctx context.Context) ([]models.Batch, error) {
	var batches []models.Batch
	err := im.db.WithContext(ctx).Order("imported_at desc, id desc").Find(&batches).Error
	return batches, err
}

func (im *Importer) GetBatch(ctx context.Context, id uint) (*models.Batch, error) {
	var b models.Batch
	err := im.db.WithContext(ctx).First(&b, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "batch", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBatch removes the batch. With deleteLeads its leads go too, after their
// interactions; otherwise the leads are detached. It returns the number of
// leads deleted or detached.
func (im *Importer) DeleteBatch(ctx context.Context, id uint, deleteLeads bool) (int64, error) {
	var affected int64
	err := im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Batch{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return &NotFoundError{Entity: "batch", ID: id}
		}

		if deleteLeads {
			leadIDs := tx.Model(&models.Lead{}).Select("id").Where("batch_id = ?", id)
			if err := tx.Where("lead_id IN (?)", leadIDs).Delete(&models.Interaction{}).Error; err != nil {
				return err
			}
			res := tx.Where("batch_id = ?", id).Delete(&models.Lead{})
			if res.Error != nil {
				return res.Error
			}
			affected = res.RowsAffected
		} else {
			res := tx.Model(&models.Lead{}).Where("batch_id = ?", id).
				UpdateColumns(map[string]any{"batch_id": nil, "updated_at": im.now()})
			if res.Error != nil {
				return res.Error
			}
			affected = res.RowsAffected
		}
		return tx.Delete(&models.Batch{}, id).Error
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[import] batch %d deleted (leads deleted=%t, affected=%d)", id, deleteLeads, affected)
	return affected, nil
}
