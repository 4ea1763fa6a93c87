package offline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/events"
	"github.com/schoolhub/schoolhub/storage/local"
)

type logRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (l *logRecorder) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *logRecorder) Debug(msg string, args ...interface{}) { l.record(msg) }
func (l *logRecorder) Info(msg string, args ...interface{})  { l.record(msg) }
func (l *logRecorder) Warn(msg string, args ...interface{})  { l.record(msg) }
func (l *logRecorder) Error(msg string, args ...interface{}) { l.record(msg) }
func (l *logRecorder) Fatal(msg string, args ...interface{}) { l.record(msg) }

func newStore(t *testing.T) *local.Store {
	store, err := local.Open(local.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type schoolPayload struct {
	Name string `json:"name"`
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	queue := NewQueue(store)

	now := time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)
	queue.now = func() time.Time { now = now.Add(-time.Minute); return now }

	first, err := queue.Enqueue(ctx, ActionCreateSchool, schoolPayload{Name: "A"})
	require.NoError(t, err)
	second, err := queue.Enqueue(ctx, ActionCreateSchool, schoolPayload{Name: "B"})
	require.NoError(t, err)

	items, err := queue.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID, "older timestamp first")
	assert.Equal(t, first.ID, items[1].ID)
	assert.JSONEq(t, `{"name":"B"}`, string(items[0].Data))

	// persisted in the local store
	var raw []Item
	found, err := store.GetJSON(ctx, core.KeyOfflineQueue, &raw)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, raw, 2)

	require.NoError(t, queue.Remove(ctx, first.ID))
	n, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, queue.Clear(ctx))
	_, found, err = store.Get(ctx, core.KeyOfflineQueue)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSyncer(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	queue := NewQueue(store)
	bus := events.NewBus()
	logger := &logRecorder{}
	syncer := NewSyncer(queue, store, bus, logger, 3)

	var completed []Result
	bus.On(events.SyncCompleted, func(p interface{}) { completed = append(completed, p.(Result)) })

	var created []string
	syncer.Handle(ActionCreateSchool, func(ctx context.Context, data json.RawMessage) error {
		var p schoolPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.Name == "bad" {
			return errors.New("constraint violation")
		}
		created = append(created, p.Name)
		return nil
	})

	_, err := queue.Enqueue(ctx, ActionCreateSchool, schoolPayload{Name: "good"})
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, ActionCreateSchool, schoolPayload{Name: "bad"})
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, "unknownAction", nil)
	require.NoError(t, err)

	res, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 0, res.Dropped)
	assert.Equal(t, 2, res.Pending)
	assert.Equal(t, []string{"good"}, created)

	last, err := syncer.LastSync(ctx)
	require.NoError(t, err)
	assert.False(t, last.IsZero())

	// the bad item is dropped on its third failure
	_, err = syncer.Sync(ctx)
	require.NoError(t, err)
	res, err = syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 1, res.Pending, "items without handler are kept")

	items, err := queue.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "unknownAction", items[0].Action)
	assert.Len(t, completed, 3)
}

func TestSyncer_Unavailable(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	queue := NewQueue(store)
	syncer := NewSyncer(queue, store, nil, &logRecorder{}, 3)

	calls := 0
	syncer.Handle(ActionCreateSchool, func(ctx context.Context, data json.RawMessage) error {
		calls++
		return errors.Wrap(core.ErrUnavailable, "inserting school")
	})
	for i := 0; i < 2; i++ {
		_, err := queue.Enqueue(ctx, ActionCreateSchool, schoolPayload{Name: "A"})
		require.NoError(t, err)
	}

	res, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "run stops at the first unavailable error")
	assert.Equal(t, 2, res.Pending)

	items, err := queue.Items(ctx)
	require.NoError(t, err)
	for _, item := range items {
		assert.Equal(t, 0, item.Attempts)
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return core.ErrUnavailable
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return core.ErrUnavailable
	})
	assert.True(t, core.IsUnavailable(err))
	assert.Equal(t, 3, calls)

	calls = 0
	errFatal := errors.New("fatal")
	err = Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return errFatal
	})
	assert.Equal(t, errFatal, err)
	assert.Equal(t, 1, calls)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = Retry(cctx, 3, time.Hour, func() error { return core.ErrUnavailable })
	assert.Equal(t, context.Canceled, err)
}

type pingerMock struct {
	err error
}

func (p *pingerMock) Ping(ctx context.Context) error { return p.err }

func TestMonitor(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	queue := NewQueue(store)
	logger := &logRecorder{}
	syncer := NewSyncer(queue, store, nil, logger, 3)

	synced := 0
	syncer.Handle(ActionCreateSchool, func(ctx context.Context, data json.RawMessage) error {
		synced++
		return nil
	})

	pinger := &pingerMock{}
	mon := NewMonitor(pinger, syncer, logger, time.Hour)
	assert.True(t, mon.Online())

	pinger.err = core.ErrUnavailable
	assert.False(t, mon.Check(ctx))
	assert.False(t, mon.Online())

	_, err := queue.Enqueue(ctx, ActionCreateSchool, schoolPayload{Name: "A"})
	require.NoError(t, err)

	pinger.err = nil
	assert.True(t, mon.Check(ctx))
	assert.True(t, mon.Online())
	assert.Equal(t, 1, synced)

	// empty queue, no sync
	assert.True(t, mon.Check(ctx))
	assert.Equal(t, 1, synced)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	mon.Run(cctx)
}

func TestMonitor_SyncsPendingWhileOnline(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	queue := NewQueue(store)
	logger := &logRecorder{}
	syncer := NewSyncer(queue, store, nil, logger, 3)

	synced := 0
	syncer.Handle(ActionCreateSchool, func(ctx context.Context, data json.RawMessage) error {
		synced++
		return nil
	})

	t.Run("pending at start", func(t *testing.T) {
		_, err := queue.Enqueue(ctx, ActionCreateSchool, schoolPayload{Name: "A"})
		require.NoError(t, err)

		mon := NewMonitor(&pingerMock{}, syncer, logger, time.Hour)
		assert.True(t, mon.Check(ctx))
		assert.Equal(t, 1, synced)
		n, err := queue.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("outage between two checks", func(t *testing.T) {
		synced = 0
		mon := NewMonitor(&pingerMock{}, syncer, logger, time.Hour)
		assert.True(t, mon.Check(ctx))

		// queued while the remote store was briefly down, never seen offline by the monitor
		_, err := queue.Enqueue(ctx, ActionCreateSchool, schoolPayload{Name: "B"})
		require.NoError(t, err)

		assert.True(t, mon.Check(ctx))
		assert.Equal(t, 1, synced)
	})
}
