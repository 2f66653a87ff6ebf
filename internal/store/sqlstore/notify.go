package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/store"
	"github.com/lib/pq"
)

// maxNotifyPayload stays under PostgreSQL's 8000 byte NOTIFY limit
const maxNotifyPayload = 7900

// notify queues change events inside tx. PostgreSQL delivers them to every
// listener, this process included, only if tx commits.
func (s *Store) notify(ctx context.Context, q queryer, table string, typ store.EventType, rows []store.Row) error {
	if s.dialect != Postgres {
		return nil
	}
	for _, r := range rows {
		payload, err := encodeEvent(store.Event{Table: table, Type: typ, Record: r})
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, "SELECT pg_notify($1, $2)", notifyChannel, payload); err != nil {
			return fmt.Errorf("notify %s: %w", table, err)
		}
	}
	return nil
}

// encodeEvent serializes ev, shrinking the record to its keys when the
// payload would not fit in a notification
func encodeEvent(ev store.Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}
	if len(data) <= maxNotifyPayload {
		return string(data), nil
	}

	slim := store.Row{"id": ev.Record["id"]}
	for _, key := range []string{"board_id", "chain_id", "group_id"} {
		if v, ok := ev.Record[key]; ok {
			slim[key] = v
		}
	}
	ev.Record = slim
	data, err = json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}
	return string(data), nil
}

// publish fans committed changes out directly when there is no LISTEN/NOTIFY
func (s *Store) publish(table string, typ store.EventType, rows []store.Row) {
	if s.dialect == Postgres {
		return
	}
	for _, r := range rows {
		s.hub.Publish(store.Event{Table: table, Type: typ, Record: r})
	}
}

func (s *Store) listen() error {
	listener := pq.NewListener(s.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.log.Warn("Change listener error", logger.F("event", ev), logger.Err(err))
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", notifyChannel, err)
	}
	s.listener = listener
	go s.relay(listener.Notify)
	return nil
}

// relay feeds notifications into the hub until the listener closes
func (s *Store) relay(notifications <-chan *pq.Notification) {
	for n := range notifications {
		if n == nil {
			// connection was re-established; notifications may have been missed
			s.log.Info("Change listener reconnected")
			continue
		}
		var ev store.Event
		if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
			s.log.Warn("Dropping malformed change notification", logger.Err(err))
			continue
		}
		s.hub.Publish(ev)
	}
}
