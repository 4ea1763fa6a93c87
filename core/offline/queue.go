// Package offline queues the writes made while the remote store is unreachable and replays them once it is back.
package offline

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
)

// Actions
const (
	ActionCreateSchool = "createSchool"
)

type Item struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Attempts  int             `json:"attempts"`
}

// Queue is persisted in the local store under core.KeyOfflineQueue.
type Queue struct {
	mu    sync.Mutex
	store core.LocalStore
	now   func() time.Time
}

func NewQueue(store core.LocalStore) *Queue {
	return &Queue{store: store, now: time.Now}
}

func (q *Queue) load(ctx context.Context) ([]Item, error) {
	items := make([]Item, 0)
	if _, err := q.store.GetJSON(ctx, core.KeyOfflineQueue, &items); err != nil {
		return nil, errors.Wrap(err, "loading offline queue")
	}
	return items, nil
}

func (q *Queue) save(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return errors.Wrap(q.store.Remove(ctx, core.KeyOfflineQueue), "clearing offline queue")
	}
	return errors.Wrap(q.store.SetJSON(ctx, core.KeyOfflineQueue, items), "saving offline queue")
}

func (q *Queue) Enqueue(ctx context.Context, action string, data interface{}) (Item, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Item{}, errors.Wrap(err, "encoding queue item")
	}
	item := Item{
		ID:        uuid.NewString(),
		Action:    action,
		Data:      raw,
		Timestamp: q.now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load(ctx)
	if err != nil {
		return Item{}, err
	}
	if err = q.save(ctx, append(items, item)); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Items returns the queued items, oldest first.
func (q *Queue) Items(ctx context.Context) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.Before(items[j].Timestamp) })
	return items, nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	items, err := q.Items(ctx)
	return len(items), err
}

// update applies fn to the item with the given id. fn returning false removes the item.
func (q *Queue) update(ctx context.Context, id string, fn func(*Item) bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load(ctx)
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, item := range items {
		if item.ID == id && !fn(&item) {
			continue
		}
		kept = append(kept, item)
	}
	return q.save(ctx, kept)
}

func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.update(ctx, id, func(*Item) bool { return false })
}

// Clear drops every item.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.save(ctx, nil)
}
