package history

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/pressly/goose"

	// lib/pq registers the "postgres" driver
	_ "github.com/lib/pq"
	// modernc registers the "sqlite" driver
	_ "modernc.org/sqlite"

	_ "github.com/djzelenak/espa-worker/migrations"
	"github.com/djzelenak/espa-worker/util"
)

// Supported dialects, named the way goose names them
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// DB is a database handle that remembers its SQL dialect
type DB struct {
	*sql.DB
	Dialect string
}

// ConnectionProvider is a function that can provide a database connection.
type ConnectionProvider func(util.LogContext) (*DB, error)

// ErrNoDatabase is returned by EnvConnectionProvider when DATABASE_URL is unset
var ErrNoDatabase = errors.New("No database configured")

// Open connects to a postgres:// or sqlite:// URL. A bare file: URL is
// handed to sqlite as is.
func Open(ctx util.LogContext, rawURL string) (*DB, error) {
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return openPostgres(ctx, rawURL)
	case strings.HasPrefix(rawURL, "sqlite://"):
		return openSQLite(ctx, strings.TrimPrefix(rawURL, "sqlite://"))
	case strings.HasPrefix(rawURL, "file:"):
		return openSQLite(ctx, rawURL)
	}
	return nil, errors.Errorf("Unsupported database URL scheme in `%s`", rawURL)
}

func openPostgres(ctx util.LogContext, connStr string) (*DB, error) {
	// pq expects SSL to be enabled if not explicitly disabled
	dbURI, err := url.Parse(connStr)
	if err != nil {
		return nil, errors.Wrap(err, "Could not parse DATABASE_URL")
	}
	params := dbURI.Query()
	params.Set("sslmode", "disable")
	dbURI.RawQuery = params.Encode()

	redacted := *dbURI
	if redacted.User != nil {
		redacted.User = url.User(redacted.User.Username())
	}
	util.LogInfo(ctx, fmt.Sprintf("Creating database connection at: `%s`", redacted.String()))

	db, err := sql.Open("postgres", dbURI.String())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}
	return &DB{DB: db, Dialect: DialectPostgres}, nil
}

func openSQLite(ctx util.LogContext, path string) (*DB, error) {
	util.LogInfo(ctx, fmt.Sprintf("Opening sqlite database `%s`", path))
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	// One connection keeps in-memory databases shared and writes serialized
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}
	return &DB{DB: db, Dialect: DialectSQLite}, nil
}

// EnvConnectionProvider opens the database named by DATABASE_URL, falling
// back to the espa-postgres service bound in VCAP_SERVICES
func EnvConnectionProvider(ctx util.LogContext) (*DB, error) {
	dbURL := util.GetDatabaseURL()
	if dbURL == "" {
		vcapURL, err := util.GetVcapDatabaseURL()
		if err != nil {
			util.LogInfo(ctx, fmt.Sprintf("No database in VCAP_SERVICES: %v", err))
			return nil, ErrNoDatabase
		}
		dbURL = vcapURL
	}
	return Open(ctx, dbURL)
}

// Migrate brings the schema up to date
func Migrate(db *DB) error {
	if err := goose.SetDialect(db.Dialect); err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrap(goose.Up(db.DB, "."), "Could not migrate the history database")
}
