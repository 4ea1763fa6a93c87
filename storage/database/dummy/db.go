// Package dummydb is an in-memory store implementing every repository, for tests and demos.
package dummydb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/class"
	"github.com/schoolhub/schoolhub/core/memory"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/student"
	"github.com/schoolhub/schoolhub/core/teacher"
	"github.com/schoolhub/schoolhub/core/user"
)

type (
	DB struct {
		sync.RWMutex
		txMu    sync.Mutex
		offline bool
		tables
	}

	tables struct {
		users       map[string]user.User
		schools     map[string]school.School
		classes     map[string]class.Class
		teachers    map[string]teacher.Teacher
		students    map[string]student.Student
		assignments map[string]class.Assignment
		memories    map[string]memory.Memory
	}
)

var (
	_ core.Transactor = (*DB)(nil)
	_ core.Pinger     = (*DB)(nil)
)

func Open() *DB {
	return &DB{
		tables: tables{
			users:       make(map[string]user.User),
			schools:     make(map[string]school.School),
			classes:     make(map[string]class.Class),
			teachers:    make(map[string]teacher.Teacher),
			students:    make(map[string]student.Student),
			assignments: make(map[string]class.Assignment),
			memories:    make(map[string]memory.Memory),
		},
	}
}

// SetOffline makes every call fail with core.ErrUnavailable until it is set back.
func (db *DB) SetOffline(offline bool) {
	db.Lock()
	defer db.Unlock()
	db.offline = offline
}

func (db *DB) Ping(context.Context) error {
	db.RLock()
	defer db.RUnlock()
	return db.available()
}

// available must be called with the lock held.
func (db *DB) available() error {
	if db.offline {
		return core.ErrUnavailable
	}
	return nil
}

// WithinTx restores the tables as they were when fn fails. Transactions are serialized.
func (db *DB) WithinTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.Lock()
	if err := db.available(); err != nil {
		db.Unlock()
		return err
	}
	snapshot := db.tables.clone()
	db.Unlock()

	if err := fn(nil); err != nil {
		db.Lock()
		db.tables = snapshot
		db.Unlock()
		return err
	}
	return nil
}

func (t tables) clone() tables {
	return tables{
		users:       cloneMap(t.users),
		schools:     cloneMap(t.schools),
		classes:     cloneMap(t.classes),
		teachers:    cloneMap(t.teachers),
		students:    cloneMap(t.students),
		assignments: cloneMap(t.assignments),
		memories:    cloneMap(t.memories),
	}
}

func cloneMap[T any](m map[string]T) map[string]T {
	res := make(map[string]T, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}

// values returns the map values in a stable order.
func values[T any](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	res := make([]T, 0, len(m))
	for _, k := range keys {
		res = append(res, m[k])
	}
	return res
}

// orderBy sorts items on ordering; field returns the value of a column.
func orderBy[T any](items []T, ordering []core.DBOrdering, field func(item T, column string) interface{}) {
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(field(items[i], ord.Field), field(items[j], ord.Field))
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compare(a, b interface{}) int {
	switch x := a.(type) {
	case string:
		return strings.Compare(strings.ToLower(x), strings.ToLower(b.(string)))
	case int:
		y := b.(int)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case time.Time:
		y := b.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
	case bool:
		y := b.(bool)
		switch {
		case !x && y:
			return -1
		case x && !y:
			return 1
		}
	}
	return 0
}
