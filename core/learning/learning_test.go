package learning

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/storage/local"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newStore(t *testing.T) (*Store, *local.Store, *time.Time) {
	ls, err := local.Open(local.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ls.Close() })

	now := time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)
	store := NewStore(ls, &nopLogger{})
	store.now = func() time.Time { return now }
	return store, ls, &now
}

func records(vals ...string) Records {
	recs := make(Records, len(vals))
	for i, v := range vals {
		recs[i] = json.RawMessage(v)
	}
	return recs
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store, ls, _ := newStore(t)

	snap, err := store.Load(ctx, "school_1")
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
	assert.NotNil(t, snap.Students)
	assert.NotNil(t, snap.ReflectionCards)

	// a separately stored timeline fills an empty one
	require.NoError(t, ls.SetJSON(ctx, core.KeyTimeline+":school_1", records(`{"id":1}`)))
	snap, err = store.Load(ctx, "school_1")
	require.NoError(t, err)
	assert.Len(t, snap.Timeline, 1)

	snap.Students = records(`{"id":"s1","name":"Emma"}`)
	saved, err := store.Save(ctx, "school_1", snap)
	require.NoError(t, err)
	require.NotNil(t, saved.LastSaved)

	exp, err := store.Export(ctx, "school_1")
	require.NoError(t, err)
	assert.Equal(t, ExportVersion, exp.Version)
	assert.Len(t, exp.Students, 1)

	data, err := json.Marshal(exp)
	require.NoError(t, err)
	var flat map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "2.0", flat["version"])
	assert.Contains(t, flat, "exportDate")
	assert.Contains(t, flat, "students")

	// scopes are isolated
	other, err := store.Load(ctx, "school_2")
	require.NoError(t, err)
	assert.True(t, other.IsEmpty())

	// re-import the export into another scope
	imported, err := store.Import(ctx, "school_2", data)
	require.NoError(t, err)
	assert.Len(t, imported.Students, 1)

	_, err = store.Import(ctx, "school_2", []byte(`[1,2]`))
	assert.Equal(t, ErrInvalidImport, err)
	_, err = store.Import(ctx, "school_2", []byte(`null`))
	assert.Equal(t, ErrInvalidImport, err)

	require.NoError(t, store.Clear(ctx, "school_1"))
	snap, err = store.Load(ctx, "school_1")
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())

	snap, err = store.Load(ctx, "school_2")
	require.NoError(t, err)
	assert.False(t, snap.IsEmpty())
}

func TestAutoSaver(t *testing.T) {
	ctx := context.Background()
	store, _, now := newStore(t)
	saver := NewAutoSaver(store, 30*time.Second, 5*time.Second)

	snap, err := saver.Get(ctx, "")
	require.NoError(t, err)
	snap.Tasks = records(`{"id":"t1"}`)
	saver.Update("", snap)

	// first tick saves
	require.NoError(t, saver.Tick(ctx))
	stored, err := store.Load(ctx, "")
	require.NoError(t, err)
	assert.Len(t, stored.Tasks, 1)

	// dirty again, but the last save is too recent
	snap.Tasks = records(`{"id":"t1"}`, `{"id":"t2"}`)
	saver.Update("", snap)
	*now = now.Add(4 * time.Second)
	require.NoError(t, saver.Tick(ctx))
	stored, _ = store.Load(ctx, "")
	assert.Len(t, stored.Tasks, 1)

	*now = now.Add(2 * time.Second)
	require.NoError(t, saver.Tick(ctx))
	stored, _ = store.Load(ctx, "")
	assert.Len(t, stored.Tasks, 2)

	saver.Pause()
	assert.True(t, saver.Paused())
	saver.Resume()
	assert.False(t, saver.Paused())

	// reload picks up changes made behind the working copy
	stored.Groups = records(`{"id":"g1"}`)
	_, err = store.Save(ctx, "", stored)
	require.NoError(t, err)
	reloaded, err := saver.ForceReload(ctx, "")
	require.NoError(t, err)
	assert.Len(t, reloaded.Groups, 1)

	require.True(t, saver.beginReload(""))
	_, err = saver.ForceReload(ctx, "")
	assert.Equal(t, ErrReloadInProgress, err)
	saver.endReload("")

	synced, err := saver.ManualSync(ctx, "")
	require.NoError(t, err)
	assert.Len(t, synced.Groups, 1)
	last, err := store.LastSync(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, now.Truncate(time.Second), last)
}

func TestAutoSaver_RunFlushesOnStop(t *testing.T) {
	store, _, _ := newStore(t)
	saver := NewAutoSaver(store, time.Hour, 5*time.Second)
	saver.Update("school_1", Snapshot{Milestones: records(`{"id":"m1"}`)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	saver.Run(ctx)

	stored, err := store.Load(context.Background(), "school_1")
	require.NoError(t, err)
	assert.Len(t, stored.Milestones, 1)
}

func TestStore_ImportKeepsUnknownKeys(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)

	data := []byte(`{"students":[{"id":"s1"}],"settings":{"theme":"dark"},"exportDate":"2024-01-19T08:00:00Z","version":"2.0"}`)
	imported, err := store.Import(ctx, "school_1", data)
	require.NoError(t, err)
	assert.Len(t, imported.Students, 1)
	assert.JSONEq(t, `{"theme":"dark"}`, string(imported.Extra["settings"]))
	assert.NotContains(t, imported.Extra, "exportDate")
	assert.NotContains(t, imported.Extra, "version")

	exp, err := store.Export(ctx, "school_1")
	require.NoError(t, err)
	out, err := json.Marshal(exp)
	require.NoError(t, err)

	var flat map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &flat))
	assert.JSONEq(t, `{"theme":"dark"}`, string(flat["settings"]))
	assert.JSONEq(t, `"2.0"`, string(flat["version"]))
	assert.Contains(t, flat, "students")

	var decoded Export
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, ExportVersion, decoded.Version)
	assert.True(t, exp.ExportDate.Equal(decoded.ExportDate))
	assert.Len(t, decoded.Extra, 1)

	// export then import again is lossless
	again, err := store.Import(ctx, "school_2", out)
	require.NoError(t, err)
	assert.Equal(t, imported.Extra, again.Extra)
	assert.Equal(t, imported.Students, again.Students)
}

func TestAutoSaver_ConcurrentGetUpdate(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)
	saver := NewAutoSaver(store, time.Hour, 0)
	_, err := saver.Get(ctx, "school_1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			saver.Update("school_1", Snapshot{Tasks: records(`{"id":` + strconv.Itoa(i) + `}`)})
		}(i)
		go func() {
			defer wg.Done()
			snap, err := saver.Get(ctx, "school_1")
			assert.NoError(t, err)
			assert.LessOrEqual(t, len(snap.Tasks), 1)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, saver.Tick(ctx))
		}()
	}
	wg.Wait()
}

func TestAutoSaver_ReloadIsPerScope(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)
	saver := NewAutoSaver(store, time.Hour, 0)

	require.True(t, saver.beginReload("school_2"))
	defer saver.endReload("school_2")

	_, err := saver.ForceReload(ctx, "school_1")
	assert.NoError(t, err)
	_, err = saver.Import(ctx, "school_1", []byte(`{"groups":[{"id":"g1"}]}`))
	assert.NoError(t, err)

	_, err = saver.Import(ctx, "school_2", []byte(`{}`))
	assert.Equal(t, ErrReloadInProgress, err)
}

func TestAutoSaver_ImportDropsStaleCopy(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)
	saver := NewAutoSaver(store, time.Hour, 0)

	// an unsaved edit is pending when the import arrives
	saver.Update("school_1", Snapshot{Tasks: records(`{"id":"stale"}`)})

	snap, err := saver.Import(ctx, "school_1", []byte(`{"tasks":[{"id":"t1"},{"id":"t2"}]}`))
	require.NoError(t, err)
	assert.Len(t, snap.Tasks, 2)

	require.NoError(t, saver.flush(ctx))
	stored, err := store.Load(ctx, "school_1")
	require.NoError(t, err)
	assert.Len(t, stored.Tasks, 2)

	current, err := saver.Get(ctx, "school_1")
	require.NoError(t, err)
	assert.Len(t, current.Tasks, 2)
}
