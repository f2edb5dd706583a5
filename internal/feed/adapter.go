package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/partywise/backend/internal/syncer"
)

// Typed bridges a raw feed subscription into a synchronizer subscribe func,
// decoding each row with decode. Rows that fail to decode are logged and
// dropped, except deletes, which fall back to the row's id field so the
// removal still applies.
func Typed[T syncer.Record](src Source, table string, filter Filter, decode func(json.RawMessage) (T, error), logger *slog.Logger) syncer.SubscribeFunc[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, apply func(syncer.Event[T])) (syncer.Subscription, error) {
		sub, err := src.Subscribe(ctx, table, filter, func(raw RawEvent) {
			evt := syncer.Event[T]{Kind: kindOf(raw.Op)}
			row, err := decode(raw.Row)
			if err != nil {
				if raw.Op != OpDelete {
					logger.Error("drop undecodable feed event", "table", table, "op", raw.Op, "error", err)
					return
				}
				id := rowID(raw.Row)
				if id == "" {
					logger.Error("drop delete event without id", "table", table)
					return
				}
				evt.ID = id
			} else {
				evt.Row = row
			}
			apply(evt)
		})
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
}

func kindOf(op Op) syncer.EventKind {
	switch op {
	case OpUpdate:
		return syncer.EventUpdate
	case OpDelete:
		return syncer.EventDelete
	default:
		return syncer.EventInsert
	}
}

func rowID(row json.RawMessage) string {
	var partial struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(row, &partial); err != nil {
		return ""
	}
	return partial.ID
}
