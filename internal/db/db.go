package db

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leadhub/crm/internal/models"
)

const sqliteParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

var conn *gorm.DB

// Options tunes Open beyond the DSN.
type Options struct {
	LogLevel logger.LogLevel
}

// Init opens the process-wide connection and migrates the schema.
func Init(dsn string, opts Options) error {
	gdb, err := Open(dsn, opts)
	if err != nil {
		return err
	}
	conn = gdb
	log.Printf("database ready (%s)", dialectName(dsn))
	return nil
}

func Conn() *gorm.DB {
	return conn
}

// Open connects to Postgres when dsn is a postgres URL and to a SQLite file
// otherwise, then runs Migrate.
func Open(dsn string, opts Options) (*gorm.DB, error) {
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(opts.LogLevel),
		TranslateError: true,
	}

	var (
		gdb *gorm.DB
		err error
	)
	if isPostgres(dsn) {
		gdb, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	} else {
		gdb, err = gorm.Open(sqlite.Open(sqliteDSN(dsn)), cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite works best with a single writer; cap the pool accordingly.
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Migrate creates or updates every table plus the composite indexes that
// gorm does not derive from struct tags.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_leads_archived_stage ON leads(is_archived, stage)",
		"CREATE INDEX IF NOT EXISTS idx_interactions_lead_time ON interactions(lead_id, timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_tx_account_time ON lead_transactions(account_id, timestamp)",
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// IsForeignKeyViolation reports whether err came from a foreign key constraint.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "crm.db"
	}
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?" + sqliteParams
}

func dialectName(dsn string) string {
	if isPostgres(dsn) {
		return "postgres"
	}
	return "sqlite"
}
