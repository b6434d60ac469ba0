package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/notistore/internal/policy"
)

// Dialect names reported by gorm dialectors.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// Config contains database connection options.
type Config struct {
	Driver   string
	Path     string // SQLite database path when Driver == sqlite
	DSN      string // Optional DSN override
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open initialises a gorm.DB using the provided configuration.
func Open(cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DialectSQLite
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DialectSQLite, "sqlite3":
		db, err = openSQLite(cfg)
	case DialectPostgres, "postgresql", "pg":
		db, err = openPostgres(cfg)
	case DialectMySQL, "mariadb":
		db, err = openMySQL(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema, indexes and, on postgres, row-level security derived from rules.
func Migrate(db *gorm.DB, rules *policy.RuleSet) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if Dialect(db) == DialectPostgres {
		if err := ApplyRowLevelSecurity(db, rules); err != nil {
			return fmt.Errorf("row level security: %w", err)
		}
	}

	return nil
}

// Dialect returns the normalised dialect name of the connection.
func Dialect(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return ""
	}
	return db.Dialector.Name()
}

// SupportsRowLocking reports whether SELECT ... FOR UPDATE is available on the connection.
func SupportsRowLocking(db *gorm.DB) bool {
	switch Dialect(db) {
	case DialectPostgres, DialectMySQL:
		return true
	default:
		return false
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func configurePool(db *gorm.DB, cfg Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return nil
}
