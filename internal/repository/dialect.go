package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/opensource-finance/pensionrules/internal/domain"
	_ "modernc.org/sqlite"
)

// memoryPath selects a private in-memory SQLite database, used by the CLI
// and tests.
const memoryPath = ":memory:"

// dialect captures what differs between the supported databases. Queries
// are written once with ? placeholders.
type dialect struct {
	driver   string
	dsn      func(domain.RepositoryConfig) (string, error)
	numbered bool // $1, $2 placeholders
}

var dialects = map[string]dialect{
	"sqlite":   {driver: "sqlite", dsn: sqliteDSN},
	"postgres": {driver: "postgres", dsn: postgresDSN, numbered: true},
}

// open connects with the configured dialect and verifies the connection.
func open(cfg domain.RepositoryConfig) (*sql.DB, dialect, error) {
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, dialect{}, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, d, err
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, d, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	// Each connection to :memory: would be its own database.
	if cfg.Driver == "sqlite" && cfg.SQLitePath == memoryPath {
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, d, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, d, nil
}

// sqliteDSN uses modernc.org/sqlite, so no CGO is required. File databases
// run in WAL mode; foreign keys are always on.
func sqliteDSN(cfg domain.RepositoryConfig) (string, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./pension.db"
	}

	pragmas := url.Values{}
	pragmas.Add("_pragma", "foreign_keys(ON)")
	if path == memoryPath {
		return "file::memory:?" + pragmas.Encode(), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}
	pragmas.Add("_pragma", "journal_mode(WAL)")
	pragmas.Add("_pragma", "synchronous(NORMAL)")
	pragmas.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + pragmas.Encode(), nil
}

// postgresDSN returns PostgresURL when set, otherwise a URL built from the
// individual settings so credentials are escaped.
func postgresDSN(cfg domain.RepositoryConfig) (string, error) {
	if cfg.PostgresURL != "" {
		return cfg.PostgresURL, nil
	}

	host := orDefault(cfg.PostgresHost, "localhost")
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + strconv.Itoa(port),
		Path:     "/" + orDefault(cfg.PostgresDB, "pension"),
		RawQuery: url.Values{"sslmode": {orDefault(cfg.PostgresSSLMode, "disable")}}.Encode(),
	}
	if cfg.PostgresUser != "" {
		u.User = url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword)
	}
	return u.String(), nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c != '?' {
			b.WriteRune(c)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
