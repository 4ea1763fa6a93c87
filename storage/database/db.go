package database

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/offline"
	appfs "github.com/schoolhub/schoolhub/fs"
)

const (
	maxOpenConns    = 25
	connMaxLifetime = 5 * time.Minute

	// startup waits at most 30 pings, 100ms longer apart each time
	readyAttempts = 30
	readyDelay    = 100 * time.Millisecond
)

// URL returns the connection url of dbName. admin connects as the configured admin role, when there is one.
func URL(dbName string, admin bool, conf *core.Config) string {
	dbConf := conf.Database
	user := url.UserPassword(dbConf.User, dbConf.Password)
	if admin && dbConf.AdminUser != "" {
		user = url.UserPassword(dbConf.AdminUser, dbConf.AdminPassword)
	}

	q := url.Values{"timezone": {"utc"}, "sslmode": {"require"}}
	if dbConf.DisableTLS {
		q.Set("sslmode", "disable")
	}
	q.Set("application_name", conf.AppName)

	return (&url.URL{
		Scheme:   dbConf.Engine,
		User:     user,
		Host:     dbConf.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}).String()
}

// Open returns the pool of the application database. Nothing is dialed yet.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open(conf.Database.Engine, URL(conf.Database.Name, false, conf))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	return db, nil
}

// WaitReady pings db until it answers, giving up after readyAttempts or when ctx is done.
func WaitReady(ctx context.Context, db *sqlx.DB) error {
	err := offline.Retry(ctx, readyAttempts, readyDelay, func() error {
		return CheckErr(db.PingContext(ctx), "pinging database")
	})
	return errors.Wrap(err, "waiting for database")
}

// CreateIfNotExist creates the application role (as admin) and its database (as the application role).
func CreateIfNotExist(ctx context.Context, conf *core.Config) error {
	adminDB, err := sqlx.Open(conf.Database.Engine, URL("postgres", true, conf))
	if err != nil {
		return errors.Wrap(err, "opening admin connection")
	}
	defer func() { _ = adminDB.Close() }()

	if err = WaitReady(ctx, adminDB); err != nil {
		return err
	}
	if err = ensureRole(ctx, adminDB, conf.Database.User, conf.Database.Password); err != nil {
		return err
	}

	appDB, err := sqlx.Open(conf.Database.Engine, URL("postgres", false, conf))
	if err != nil {
		return errors.Wrap(err, "opening app connection")
	}
	defer func() { _ = appDB.Close() }()
	return ensureDatabase(ctx, appDB, conf.Database.Name)
}

func ensureRole(ctx context.Context, db *sqlx.DB, role, password string) error {
	if role == "" {
		return nil
	}
	var exists bool
	if err := db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", role); err != nil {
		return errors.Wrap(err, "looking up role")
	}
	if exists {
		return nil
	}
	// DDL takes no bind parameters
	q := "CREATE ROLE " + pq.QuoteIdentifier(role) + " LOGIN CREATEDB PASSWORD " + pq.QuoteLiteral(password)
	_, err := db.ExecContext(ctx, q)
	return errors.Wrapf(err, "creating role %s", role)
}

func ensureDatabase(ctx context.Context, db *sqlx.DB, name string) error {
	var exists bool
	if err := db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name); err != nil {
		return errors.Wrap(err, "looking up database")
	}
	if exists {
		return nil
	}
	_, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name))
	return errors.Wrapf(err, "creating database %s", name)
}

// Migrate applies the pending migrations embedded under fs/migrations.
func Migrate(db *sqlx.DB) error {
	return errors.Wrap(goose.RunFS("up", db.DB, appfs.FS, "migrations"), "migrating database")
}

// Transactor runs the repositories' statements against one pool.
type Transactor struct {
	db *sqlx.DB
}

var (
	_ core.Transactor = (*Transactor)(nil)
	_ core.Pinger     = (*Transactor)(nil)
)

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx commits when fn succeeds and rolls back otherwise.
func (t *Transactor) WithinTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return CheckErr(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return errors.Wrapf(err, "rolling back: %v", rbErr)
		}
		return err
	}
	return CheckErr(tx.Commit(), "committing transaction")
}

func (t *Transactor) Ping(ctx context.Context) error {
	return CheckErr(t.db.PingContext(ctx), "pinging database")
}
