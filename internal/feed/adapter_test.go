package feed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/partywise/backend/internal/syncer"
)

type row struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (r row) RecordID() string { return r.ID }

func decodeRow(raw json.RawMessage) (row, error) {
	var r row
	if err := json.Unmarshal(raw, &r); err != nil {
		return row{}, err
	}
	if r.ID == "" {
		return row{}, errors.New("missing id")
	}
	return r, nil
}

func TestTypedDecodesEvents(t *testing.T) {
	src := NewMemory()

	var got []syncer.Event[row]
	subscribe := Typed(src, "parties", Filter{}, decodeRow, nil)
	sub, err := subscribe(context.Background(), func(evt syncer.Event[row]) { got = append(got, evt) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	src.Publish(RawEvent{Table: "parties", Op: OpInsert, Row: json.RawMessage(`{"id":"p1","name":"Housewarming"}`)})
	src.Publish(RawEvent{Table: "parties", Op: OpUpdate, Row: json.RawMessage(`{"id":"p1","name":"Moved"}`)})

	if len(got) != 2 {
		t.Fatalf("expected 2 events got %d", len(got))
	}
	if got[0].Kind != syncer.EventInsert || got[0].Row.Name != "Housewarming" {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[1].Kind != syncer.EventUpdate || got[1].Row.Name != "Moved" {
		t.Fatalf("unexpected second event: %+v", got[1])
	}
}

func TestTypedDropsUndecodableRows(t *testing.T) {
	src := NewMemory()

	var got []syncer.Event[row]
	subscribe := Typed(src, "parties", Filter{}, decodeRow, nil)
	sub, err := subscribe(context.Background(), func(evt syncer.Event[row]) { got = append(got, evt) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	src.Publish(RawEvent{Table: "parties", Op: OpInsert, Row: json.RawMessage(`{"name":"no id"}`)})
	if len(got) != 0 {
		t.Fatalf("expected undecodable insert dropped got %+v", got)
	}

	// A delete whose row fails the decoder still applies by id.
	src.Publish(RawEvent{Table: "parties", Op: OpDelete, Row: json.RawMessage(`{"id":"p1","name":123}`)})
	if len(got) != 1 || got[0].Kind != syncer.EventDelete || got[0].ID != "p1" {
		t.Fatalf("expected id-only delete got %+v", got)
	}

	// A delete without even an id has nothing to apply.
	src.Publish(RawEvent{Table: "parties", Op: OpDelete, Row: json.RawMessage(`{}`)})
	if len(got) != 1 {
		t.Fatalf("expected delete without id dropped got %+v", got)
	}
}
