package learning

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var ErrReloadInProgress = errors.New("reload already in progress")

type working struct {
	snap     Snapshot
	dirty    bool
	lastSave time.Time
}

// AutoSaver keeps the working copies of the snapshots and saves the dirty ones periodically.
type AutoSaver struct {
	store    *Store
	interval time.Duration
	minGap   time.Duration

	mu        sync.Mutex
	copies    map[string]*working
	reloading map[string]bool // guarded by mu
	paused    int32
}

func NewAutoSaver(store *Store, interval, minGap time.Duration) *AutoSaver {
	return &AutoSaver{
		store:     store,
		interval:  interval,
		minGap:    minGap,
		copies:    make(map[string]*working),
		reloading: make(map[string]bool),
	}
}

// Get returns the working copy of scope, loading it on first use.
func (a *AutoSaver) Get(ctx context.Context, scope string) (Snapshot, error) {
	a.mu.Lock()
	w, ok := a.copies[scope]
	var snap Snapshot
	if ok {
		snap = w.snap
	}
	a.mu.Unlock()
	if ok {
		return snap, nil
	}

	snap, err := a.store.Load(ctx, scope)
	if err != nil {
		return Snapshot{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok := a.copies[scope]; ok { // loaded concurrently
		return w.snap, nil
	}
	a.copies[scope] = &working{snap: snap}
	return snap, nil
}

// Update replaces the working copy of scope. It is saved on the next tick.
func (a *AutoSaver) Update(scope string, snap Snapshot) {
	snap.normalize()
	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.copies[scope]
	if !ok {
		w = &working{}
		a.copies[scope] = w
	}
	w.snap = snap
	w.dirty = true
}

// Tick saves the dirty working copies whose last save is at least minGap old.
func (a *AutoSaver) Tick(ctx context.Context) error {
	now := a.store.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []string
	for scope, w := range a.copies {
		if !w.dirty || a.reloading[scope] || now.Sub(w.lastSave) < a.minGap {
			continue
		}
		snap, err := a.store.Save(ctx, scope, w.snap)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", scope, err))
			continue
		}
		w.snap, w.dirty, w.lastSave = snap, false, now
	}
	if len(errs) > 0 {
		return errors.Errorf("autosave failed: %v", errs)
	}
	return nil
}

func (a *AutoSaver) Pause()  { atomic.StoreInt32(&a.paused, 1) }
func (a *AutoSaver) Resume() { atomic.StoreInt32(&a.paused, 0) }

func (a *AutoSaver) Paused() bool {
	return atomic.LoadInt32(&a.paused) == 1
}

// Run ticks every interval until ctx is done, skipping the ticks while paused.
func (a *AutoSaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// final flush
			_ = a.flush(context.Background())
			return
		case <-ticker.C:
			if a.Paused() {
				continue
			}
			if err := a.Tick(ctx); err != nil {
				a.store.logger.Error("learning.AutoSaver", err)
			}
		}
	}
}

func (a *AutoSaver) flush(ctx context.Context) error {
	a.mu.Lock()
	for _, w := range a.copies {
		w.lastSave = time.Time{}
	}
	a.mu.Unlock()
	return a.Tick(ctx)
}

// ForceReload drops the working copy of scope and reloads it from the store.
// A reload of the same scope running concurrently makes it return ErrReloadInProgress.
func (a *AutoSaver) ForceReload(ctx context.Context, scope string) (Snapshot, error) {
	if !a.beginReload(scope) {
		return Snapshot{}, ErrReloadInProgress
	}
	defer a.endReload(scope)
	return a.reload(ctx, scope)
}

// Import replaces the data of scope with data. The working copy is dropped first
// so that no pending autosave writes over the imported snapshot.
func (a *AutoSaver) Import(ctx context.Context, scope string, data []byte) (Snapshot, error) {
	if !a.beginReload(scope) {
		return Snapshot{}, ErrReloadInProgress
	}
	defer a.endReload(scope)

	a.Forget(scope)
	if _, err := a.store.Import(ctx, scope, data); err != nil {
		return Snapshot{}, err
	}
	return a.reload(ctx, scope)
}

func (a *AutoSaver) beginReload(scope string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reloading[scope] {
		return false
	}
	a.reloading[scope] = true
	return true
}

func (a *AutoSaver) endReload(scope string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reloading, scope)
}

func (a *AutoSaver) reload(ctx context.Context, scope string) (Snapshot, error) {
	snap, err := a.store.Load(ctx, scope)
	if err != nil {
		return Snapshot{}, err
	}
	a.mu.Lock()
	a.copies[scope] = &working{snap: snap, lastSave: a.store.now()}
	a.mu.Unlock()
	return snap, nil
}

// ManualSync saves the working copy of scope at once, records the sync time and reloads.
func (a *AutoSaver) ManualSync(ctx context.Context, scope string) (Snapshot, error) {
	snap, err := a.Get(ctx, scope)
	if err != nil {
		return Snapshot{}, err
	}
	if _, err = a.store.Save(ctx, scope, snap); err != nil {
		return Snapshot{}, err
	}
	if err = a.store.setLastSync(ctx, scope, a.store.now()); err != nil {
		return Snapshot{}, errors.Wrap(err, "saving last sync time")
	}
	return a.ForceReload(ctx, scope)
}

// Forget drops the working copy of scope without saving it.
func (a *AutoSaver) Forget(scope string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.copies, scope)
}
