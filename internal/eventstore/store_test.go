package eventstore

import (
	"bytes"
	stderrors "errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStoreAppendAndRetrieve(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	payload := []byte(`{"test": "data"}`)
	ev := &BaseEvent{
		EventRunID:    "run-1",
		EventType:     "TestEvent",
		EventPayload:  payload,
		EventMetadata: map[string]string{"key": "value"},
	}
	if err := store.Append(ctx, ev); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	events, err := store.GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	got := events[0]
	if got.RunID() != "run-1" {
		t.Errorf("expected run_id run-1, got %s", got.RunID())
	}
	if got.Type() != "TestEvent" {
		t.Errorf("expected event_type TestEvent, got %s", got.Type())
	}
	if !bytes.Equal(got.Payload(), payload) {
		t.Errorf("expected payload %s, got %s", payload, got.Payload())
	}
	if got.Metadata()["key"] != "value" {
		t.Errorf("expected metadata key=value, got %v", got.Metadata())
	}
	if got.Timestamp().IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestEventStoreGetRange(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	old := time.Now().Add(-48 * time.Hour)
	for _, ev := range []*BaseEvent{
		{EventRunID: "old", EventType: TypeRunQueued, EventTimestamp: old},
		{EventRunID: "new", EventType: TypeRunQueued, EventTimestamp: time.Now()},
	} {
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := store.GetRange(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(events) != 1 || events[0].RunID() != "new" {
		t.Fatalf("expected only the recent event, got %d", len(events))
	}
}

func TestEventStoreDeleteBeforeKeepsRunsWhole(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	old := time.Now().Add(-48 * time.Hour)
	for _, ev := range []*BaseEvent{
		{EventRunID: "finished", EventType: TypeRunQueued, EventTimestamp: old},
		{EventRunID: "finished", EventType: TypeRunFailed, EventTimestamp: old.Add(time.Minute)},
		// Started long ago but finished recently: kept entirely.
		{EventRunID: "recent", EventType: TypeRunQueued, EventTimestamp: old},
		{EventRunID: "recent", EventType: TypeRunSucceeded, EventTimestamp: time.Now()},
	} {
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	n, err := store.DeleteBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted events, got %d", n)
	}

	if evs, _ := store.GetByRunID(ctx, "finished"); len(evs) != 0 {
		t.Errorf("expected finished run to be removed, got %d events", len(evs))
	}
	if evs, _ := store.GetByRunID(ctx, "recent"); len(evs) != 2 {
		t.Errorf("expected recent run to keep 2 events, got %d", len(evs))
	}
}

func TestEventStoreClosedAppendIsClassified(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	_ = store.Close()

	err = store.Append(t.Context(), &BaseEvent{EventRunID: "x", EventType: "T"})
	if !stderrors.Is(err, ErrEventAppendFailed) {
		t.Fatalf("expected ErrEventAppendFailed, got %v", err)
	}
}
