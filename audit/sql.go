package audit

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/DataDog/dd-trace-go/contrib/database/sql/parsedsn"

	"github.com/dselans/beampatch/patcherr"
)

// SQLDriver selects which DSN dialect NewSQLSink validates and connects with.
type SQLDriver string

const (
	MySQL    SQLDriver = "mysql"
	Postgres SQLDriver = "postgres"

	createTableMySQL = `CREATE TABLE IF NOT EXISTS patch_audit (
		id INT AUTO_INCREMENT PRIMARY KEY,
		filename VARCHAR(255) NOT NULL,
		succeeded BOOLEAN NOT NULL,
		message TEXT,
		applied_at DATETIME NOT NULL
	)`
	createTablePostgres = `CREATE TABLE IF NOT EXISTS patch_audit (
		id SERIAL PRIMARY KEY,
		filename VARCHAR(255) NOT NULL,
		succeeded BOOLEAN NOT NULL,
		message TEXT,
		applied_at TIMESTAMPTZ NOT NULL
	)`

	insertMySQL    = `INSERT INTO patch_audit (filename, succeeded, message, applied_at) VALUES (?, ?, ?, ?)`
	insertPostgres = `INSERT INTO patch_audit (filename, succeeded, message, applied_at) VALUES ($1, $2, $3, $4)`
)

// SQLSink records events into a patch_audit table over a sqlx connection.
// The DSN is validated with the same parser the upstream library's
// destination-config path uses, before a connection is ever attempted.
type SQLSink struct {
	db     *sqlx.DB
	driver SQLDriver
}

// NewSQLSink validates dsn for driver, connects, and ensures patch_audit
// exists.
func NewSQLSink(driver SQLDriver, dsn string) (*SQLSink, *patcherr.Error) {
	var driverName string

	switch driver {
	case MySQL:
		if _, err := parsedsn.MySQL(dsn); err != nil {
			return nil, patcherr.Wrap(patcherr.Custom, err, "validating mysql audit dsn")
		}
		driverName = "mysql"
	case Postgres:
		if _, err := parsedsn.Postgres(dsn); err != nil {
			return nil, patcherr.Wrap(patcherr.Custom, err, "validating postgres audit dsn")
		}
		driverName = "postgres"
	default:
		return nil, patcherr.New(patcherr.Custom, "unsupported audit sql driver: %s", driver)
	}

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.Io, err, "connecting to audit database")
	}

	createTable := createTableMySQL
	if driver == Postgres {
		createTable = createTablePostgres
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, patcherr.Wrap(patcherr.Io, err, "creating patch_audit table")
	}

	return &SQLSink{db: db, driver: driver}, nil
}

func (s *SQLSink) Record(e Event) error {
	query := insertMySQL
	if s.driver == Postgres {
		query = insertPostgres
	}

	if _, err := s.db.Exec(query, e.Filename, e.Succeeded, e.Message, e.AppliedAt); err != nil {
		return errors.Wrap(err, "inserting audit event")
	}
	return nil
}

func (s *SQLSink) Close() error {
	return s.db.Close()
}
