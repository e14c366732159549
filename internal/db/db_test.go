package db_test

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leadhub/crm/internal/db"
	"github.com/leadhub/crm/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"), db.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	return gdb
}

// TestWALMode verifies that the default SQLite DSN parameters enable WAL.
func TestWALMode(t *testing.T) {
	gdb := openTestDB(t)

	var mode string
	gdb.Raw("PRAGMA journal_mode").Scan(&mode)
	assert.Equal(t, "wal", mode)

	var fk int
	gdb.Raw("PRAGMA foreign_keys").Scan(&fk)
	assert.Equal(t, 1, fk)
}

// TestMigrate_CreatesIndexes checks the composite indexes gorm does not create itself.
func TestMigrate_CreatesIndexes(t *testing.T) {
	gdb := openTestDB(t)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)

	assert.True(t, indexNames(t, sqlDB, "leads")["idx_leads_archived_stage"])
	assert.True(t, indexNames(t, sqlDB, "interactions")["idx_interactions_lead_time"])
	assert.True(t, indexNames(t, sqlDB, "lead_transactions")["idx_tx_account_time"])
}

func TestMigrate_Idempotent(t *testing.T) {
	gdb := openTestDB(t)
	require.NoError(t, db.Migrate(gdb))
}

func TestBalanceCheckConstraint(t *testing.T) {
	gdb := openTestDB(t)
	acc := models.Account{Username: "neg", PasswordHash: "x", Role: models.RoleManager, Balance: 5}
	require.NoError(t, gdb.Create(&acc).Error)

	err := gdb.Model(&models.Account{}).Where("id = ?", acc.ID).
		UpdateColumn("balance", gorm.Expr("balance - ?", 10)).Error
	assert.Error(t, err, "balance must never go negative at the storage level either")
}

func TestIsUniqueViolation(t *testing.T) {
	gdb := openTestDB(t)
	tg := int64(42)
	require.NoError(t, gdb.Create(&models.Lead{TelegramID: &tg, Stage: models.StageNew}).Error)
	err := gdb.Create(&models.Lead{TelegramID: &tg, Stage: models.StageNew}).Error
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))

	assert.True(t, db.IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, db.IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, db.IsUniqueViolation(errors.New("connection refused")))
	assert.False(t, db.IsUniqueViolation(nil))
}

func TestIsForeignKeyViolation(t *testing.T) {
	gdb := openTestDB(t)
	batch := uint(999)
	err := gdb.Create(&models.Lead{BatchID: &batch, Stage: models.StageNew}).Error
	require.Error(t, err)
	assert.True(t, db.IsForeignKeyViolation(err))
	assert.False(t, db.IsUniqueViolation(err))

	assert.True(t, db.IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, db.IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, db.IsForeignKeyViolation(nil))
}

func indexNames(t *testing.T, sqlDB *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := sqlDB.Query("PRAGMA index_list(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var seq int
		var name string
		var unique bool
		var origin, partial string
		require.NoError(t, rows.Scan(&seq, &name, &unique, &origin, &partial))
		out[name] = true
	}
	return out
}
