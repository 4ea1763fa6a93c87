package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/events"
)

// NotifyChannel is the channel the table triggers notify on.
const NotifyChannel = "table_changes"

type notification struct {
	Table  string                 `json:"table"`
	Type   string                 `json:"type"`
	Record map[string]interface{} `json:"record"`
}

// Listener turns the database change notifications into events.DataUpdated events.
type Listener struct {
	listener *pq.Listener
	bus      *events.Bus
	logger   core.Logger
}

func NewListener(conf *core.Config, bus *events.Bus, logger core.Logger) *Listener {
	l := &Listener{bus: bus, logger: logger}
	l.listener = pq.NewListener(URL(conf.Database.Name, false, conf), time.Second, time.Minute, l.report)
	return l
}

func (l *Listener) report(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
		l.logger.Warn("database.Listener: connection lost", err)
	case pq.ListenerEventReconnected:
		l.logger.Info("database.Listener: reconnected")
	}
}

// Run listens until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.listener.Listen(NotifyChannel); err != nil {
		return errors.Wrap(err, "listening to "+NotifyChannel)
	}
	defer func() { _ = l.listener.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-l.listener.Notify:
			// nil after a reconnection: notifications may have been missed
			if n == nil {
				l.bus.Emit(events.DataUpdated, events.DataChange{Table: "*", EventType: events.Update})
				continue
			}
			l.handle(n.Extra)
		case <-time.After(90 * time.Second):
			go func() { _ = l.listener.Ping() }()
		}
	}
}

func (l *Listener) handle(payload string) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		l.logger.Error("database.Listener: decoding notification", err)
		return
	}
	l.bus.Emit(events.DataUpdated, events.DataChange{Table: n.Table, EventType: n.Type, Record: n.Record})
}
