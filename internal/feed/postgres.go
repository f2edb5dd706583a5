package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/partywise/backend/internal/db"
)

// NotifyChannel is the channel the notify triggers publish on. It is
// baked into the trigger functions, so listeners must use the same name.
const NotifyChannel = "partywise_changes"

// Listener is a Source backed by PostgreSQL LISTEN/NOTIFY. Database triggers
// send every row change on a single channel as a JSON envelope
// {"table": ..., "op": ..., "row": {...}}; the listener fans events out to
// matching subscriptions. Column filters are applied client-side because
// NOTIFY carries no predicate.
type Listener struct {
	pool    db.Pool
	channel string
	logger  *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]*listenerSub
}

type listenerSub struct {
	owner  *Listener
	id     int
	table  string
	filter Filter
	fn     func(RawEvent)
	once   sync.Once
}

// NewListener constructs a listener on the provided notification channel.
// Run must be started for events to flow.
func NewListener(pool db.Pool, channel string, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		pool:    pool,
		channel: channel,
		logger:  logger,
		subs:    make(map[int]*listenerSub),
	}
}

// Subscribe registers a callback for changes to table matching filter.
func (l *Listener) Subscribe(_ context.Context, table string, filter Filter, fn func(RawEvent)) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	sub := &listenerSub{owner: l, id: l.nextID, table: table, filter: filter, fn: fn}
	l.subs[sub.id] = sub
	return sub, nil
}

// Run holds a dedicated connection on LISTEN and dispatches notifications
// until the context is canceled or the connection fails. The listener does
// not reconnect on its own; the caller decides whether to run it again.
func (l *Listener) Run(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf(`LISTEN %q`, l.channel)); err != nil {
		return fmt.Errorf("listen on %s: %w", l.channel, err)
	}

	l.logger.Info("change feed attached", "channel", l.channel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.dispatch([]byte(notification.Payload))
	}
}

func (l *Listener) dispatch(payload []byte) {
	var evt RawEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		l.logger.Error("malformed feed payload", "error", err)
		return
	}

	l.mu.Lock()
	matched := make([]*listenerSub, 0, len(l.subs))
	for _, sub := range l.subs {
		if sub.table == evt.Table && sub.filter.matches(evt) {
			matched = append(matched, sub)
		}
	}
	l.mu.Unlock()

	for _, sub := range matched {
		sub.fn(evt)
	}
}

func (s *listenerSub) Unsubscribe() {
	s.once.Do(func() {
		s.owner.mu.Lock()
		delete(s.owner.subs, s.id)
		s.owner.mu.Unlock()
	})
}
