package feed

import (
	"context"
	"encoding/json"
	"fmt"
)

// Op identifies the row-level change carried by an event. Values match the
// TG_OP spelling used by the database triggers.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// RawEvent is one change notification as delivered by a source. Row holds
// the JSON encoding of the affected row; for deletes it is the old row.
type RawEvent struct {
	Table string          `json:"table"`
	Op    Op              `json:"op"`
	Row   json.RawMessage `json:"row"`
}

// Filter narrows a subscription to rows whose column equals the value.
// Storage-layer filters are single-column; a zero Filter matches all rows.
type Filter struct {
	Column string
	Value  string
}

// Source delivers row-level change notifications for subscribed tables.
type Source interface {
	Subscribe(ctx context.Context, table string, filter Filter, fn func(RawEvent)) (Subscription, error)
}

// Subscription is a handle used to detach a subscriber. Unsubscribe is
// idempotent. A delivery already dispatched may still land after it
// returns; consumers guard against that on their side.
type Subscription interface {
	Unsubscribe()
}

// matches reports whether the event row satisfies the filter. Rows that
// fail to decode never match a column filter.
func (f Filter) matches(evt RawEvent) bool {
	if f.Column == "" {
		return true
	}
	var row map[string]any
	if err := json.Unmarshal(evt.Row, &row); err != nil {
		return false
	}
	value, ok := row[f.Column]
	if !ok {
		return false
	}
	switch v := value.(type) {
	case string:
		return v == f.Value
	default:
		return fmt.Sprint(v) == f.Value
	}
}
