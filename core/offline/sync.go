package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/events"
)

var ErrSyncInProgress = errors.New("sync already in progress")

// HandlerFunc replays the data of one queued item against the remote store.
type HandlerFunc func(ctx context.Context, data json.RawMessage) error

type Result struct {
	Synced  int       `json:"synced"`
	Failed  int       `json:"failed"`
	Dropped int       `json:"dropped"`
	Pending int       `json:"pending"`
	At      time.Time `json:"at"`
}

type Syncer struct {
	queue       *Queue
	store       core.LocalStore
	bus         *events.Bus
	logger      core.Logger
	maxAttempts int

	running  sync.Mutex
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewSyncer(queue *Queue, store core.LocalStore, bus *events.Bus, logger core.Logger, maxAttempts int) *Syncer {
	return &Syncer{
		queue:       queue,
		store:       store,
		bus:         bus,
		logger:      logger,
		maxAttempts: maxAttempts,
		handlers:    make(map[string]HandlerFunc),
	}
}

func (s *Syncer) Handle(action string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[action] = fn
}

func (s *Syncer) handler(action string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.handlers[action]
	return fn, ok
}

// Sync replays the queue in timestamp order. Items are removed on success; a failed item is
// retried on the next run and dropped once it failed maxAttempts times.
// The remote store going away mid-run stops the run without counting an attempt.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	if !s.running.TryLock() {
		return Result{}, ErrSyncInProgress
	}
	defer s.running.Unlock()

	items, err := s.queue.Items(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, item := range items {
		fn, ok := s.handler(item.Action)
		if !ok {
			s.logger.Warn(fmt.Sprintf("offline.Sync: no handler for %q", item.Action))
			res.Failed++
			continue
		}

		err := fn(ctx, item.Data)
		if err == nil {
			if err := s.queue.Remove(ctx, item.ID); err != nil {
				return res, err
			}
			res.Synced++
			continue
		}
		if core.IsUnavailable(err) {
			break
		}

		res.Failed++
		var dropped bool
		if uerr := s.queue.update(ctx, item.ID, func(it *Item) bool {
			it.Attempts++
			dropped = it.Attempts >= s.maxAttempts
			return !dropped
		}); uerr != nil {
			return res, uerr
		}
		if dropped {
			res.Dropped++
			s.logger.Error(fmt.Sprintf("offline.Sync: dropped %s %s after %d attempts", item.Action, item.ID, s.maxAttempts), err)
		} else {
			s.logger.Warn(fmt.Sprintf("offline.Sync: %s %s failed", item.Action, item.ID), err)
		}
	}

	res.At = time.Now().UTC()
	if res.Synced > 0 {
		if err := s.store.Set(ctx, core.KeyLastSyncTime, res.At.Format(time.RFC3339)); err != nil {
			s.logger.Error("offline.Sync: saving last sync time", err)
		}
	}
	if pending, err := s.queue.Len(ctx); err == nil {
		res.Pending = pending
	}
	if s.bus != nil {
		s.bus.Emit(events.SyncCompleted, res)
	}
	return res, nil
}

// LastSync returns the time of the last sync that replayed at least one item.
func (s *Syncer) LastSync(ctx context.Context) (time.Time, error) {
	val, found, err := s.store.Get(ctx, core.KeyLastSyncTime)
	if err != nil || !found {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, val)
}

// Retry calls fn up to attempts times while it fails with core.ErrUnavailable,
// waiting delay, then 2*delay, and so on between calls. Other errors are returned at once.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !core.IsUnavailable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay * time.Duration(i+1)):
		}
	}
	return err
}
