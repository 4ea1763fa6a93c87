// Package sqlxrepos implements the core repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/storage/database"
)

const dateLayout = "2006-01-02"

type baseRepo struct {
	exec core.DBExecutor
}

func (repo baseRepo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return database.CheckErr(err, msg)
}

func validUUIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

// where accumulates AND'ed conditions written with "?" bindvars.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, "("+cond+")")
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// query expands the slice args of `in` conditions and rebinds q to postgres bindvars.
func (w *where) query(q string) (string, []interface{}, error) {
	q, args, err := sqlx.In(q, w.args...)
	if err != nil {
		return "", nil, errors.Wrap(err, "building query")
	}
	return sqlx.Rebind(sqlx.DOLLAR, q), args, nil
}

func orderClause(ordering []core.DBOrdering, prefix string, def ...string) string {
	list := make([]string, 0, len(ordering)+len(def))
	for _, ord := range ordering {
		list = append(list, prefix+ord.String())
	}
	list = append(list, def...)
	if len(list) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(list, ", ")
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func nullDate(date string) null.Time {
	t, err := time.Parse(dateLayout, date)
	return null.NewTime(t, err == nil)
}

func dateString(t null.Time) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(dateLayout)
}

func stamp(createdAt, updatedAt *time.Time) {
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt.IsZero() {
		*updatedAt = now
	}
}

func rowsAffected(res sql.Result, msg string) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	return int(n), nil
}
