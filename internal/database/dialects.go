package database

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	drivermysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const applicationName = "notistore"

// gormConfig is shared by every dialect. Timestamps are always written in UTC so that retention
// cutoffs compare consistently across drivers.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: utcNow,
	}
}

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), gormConfig())
}

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), gormConfig())
}

func requireCredentials(dialect string, cfg Config) error {
	if cfg.User == "" || cfg.Name == "" {
		return fmt.Errorf("%s configuration requires user and database name", dialect)
	}
	return nil
}

// buildPostgresDSN renders a keyword/value connection string. Sessions run in UTC and identify
// themselves as notistore unless the options say otherwise.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if err := requireCredentials(DialectPostgres, cfg); err != nil {
		return "", err
	}

	pairs := map[string]string{
		"host":             withDefault(cfg.Host, "localhost"),
		"port":             strconv.Itoa(withDefaultPort(cfg.Port, 5432)),
		"user":             cfg.User,
		"dbname":           cfg.Name,
		"sslmode":          "disable",
		"TimeZone":         "UTC",
		"application_name": applicationName,
	}
	if cfg.Password != "" {
		pairs["password"] = cfg.Password
	}
	for key, value := range cfg.Options {
		pairs[key] = value
	}

	leading := []string{"host", "port", "user", "dbname"}
	parts := make([]string, 0, len(pairs))
	for _, key := range leading {
		parts = append(parts, key+"="+quotePostgresValue(pairs[key]))
		delete(pairs, key)
	}
	for _, key := range sortedKeys(pairs) {
		parts = append(parts, key+"="+quotePostgresValue(pairs[key]))
	}
	return strings.Join(parts, " "), nil
}

// quotePostgresValue single-quotes values that are empty or contain spaces, quotes or backslashes.
func quotePostgresValue(value string) string {
	if value != "" && !strings.ContainsAny(value, " '\\") {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}

// buildMySQLDSN uses the driver's own formatter so credentials with reserved characters survive.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if err := requireCredentials(DialectMySQL, cfg); err != nil {
		return "", err
	}

	dc := drivermysql.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(withDefault(cfg.Host, "127.0.0.1"), strconv.Itoa(withDefaultPort(cfg.Port, 3306)))
	dc.DBName = cfg.Name
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": "utf8mb4"}
	for key, value := range cfg.Options {
		dc.Params[key] = value
	}

	dsn := dc.FormatDSN()
	if dsn == "" {
		return "", errors.New("mysql configuration produced an empty dsn")
	}
	return dsn, nil
}

func withDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func withDefaultPort(port, fallback int) int {
	if port <= 0 {
		return fallback
	}
	return port
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
