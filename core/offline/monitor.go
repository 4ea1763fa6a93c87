package offline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/schoolhub/schoolhub/core"
)

// Monitor tracks whether the remote store is reachable and syncs the queue when it comes back.
type Monitor struct {
	pinger   core.Pinger
	syncer   *Syncer
	logger   core.Logger
	interval time.Duration
	online   int32
}

func NewMonitor(pinger core.Pinger, syncer *Syncer, logger core.Logger, interval time.Duration) *Monitor {
	return &Monitor{pinger: pinger, syncer: syncer, logger: logger, interval: interval, online: 1}
}

func (m *Monitor) Online() bool {
	return atomic.LoadInt32(&m.online) == 1
}

// Check pings the remote store once and reports whether it is reachable.
// While online, pending queue items are synced, whether the connection just came back
// or the items were queued during an outage shorter than the check interval.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.pinger.Ping(ctx)
	online := err == nil

	var newState int32
	if online {
		newState = 1
	}
	prev := atomic.SwapInt32(&m.online, newState)
	if !online {
		if prev == 1 {
			m.logger.Warn("connection lost, offline mode enabled", err)
		}
		return false
	}

	if prev == 0 {
		m.logger.Info("connection restored, syncing offline changes")
	} else if n, err := m.syncer.queue.Len(ctx); err != nil {
		m.logger.Error("offline.Monitor: reading queue", err)
		return true
	} else if n == 0 {
		return true
	}
	if _, err := m.syncer.Sync(ctx); err != nil && err != ErrSyncInProgress {
		m.logger.Error("offline.Monitor: sync", err)
	}
	return true
}

// Run checks the remote store every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
