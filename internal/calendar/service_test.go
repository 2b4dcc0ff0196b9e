package calendar

import (
	"context"
	"errors"
	"testing"
)

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	notes := &recordingNotifier{}
	svc := NewService(store, notes, discardLogger())

	created, err := svc.Create(ctx, "client-a", Event{Title: "Dentist", Date: "2026-10-21", StartTime: ptr("08:00")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := svc.Update(ctx, "client-a", created.ID, Patch{StartTime: ptr("09:00")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if *updated.StartTime != "09:00" || updated.Title != "Dentist" {
		t.Errorf("updated = %+v", updated)
	}

	list, err := svc.List(ctx, "client-a")
	if err != nil || len(list) != 1 || *list[0].StartTime != "09:00" {
		t.Fatalf("List = %+v, %v", list, err)
	}

	if _, err := svc.Delete(ctx, "client-a", created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, _ = svc.List(ctx, "client-a")
	if len(list) != 0 {
		t.Errorf("events after delete = %d", len(list))
	}

	want := []Change{ChangeCreated, ChangeUpdated, ChangeDeleted}
	if len(notes.got) != len(want) {
		t.Fatalf("notifications = %+v", notes.got)
	}
	for i, w := range want {
		if notes.got[i].change != w || notes.got[i].clientID != "client-a" || notes.got[i].eventID != created.ID {
			t.Errorf("notification %d = %+v", i, notes.got[i])
		}
	}
}

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	notes := &recordingNotifier{}
	svc := NewService(newMemStore(), notes, discardLogger())

	_, err := svc.Update(ctx, "client-a", "missing", Patch{Title: ptr("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update err = %v", err)
	}
	_, err = svc.Delete(ctx, "client-a", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete err = %v", err)
	}
	if len(notes.got) != 0 {
		t.Errorf("failed mutations notified: %+v", notes.got)
	}
}

func TestService_ClientIsolation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemStore(), nil, discardLogger())

	e, err := svc.Create(ctx, "client-a", Event{Title: "Private", Date: "2026-10-21"})
	if err != nil {
		t.Fatal(err)
	}
	if list, _ := svc.List(ctx, "client-b"); len(list) != 0 {
		t.Errorf("client-b sees %d events", len(list))
	}
	if _, err := svc.Delete(ctx, "client-b", e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("client-b deleted client-a's event: %v", err)
	}
}

func TestService_NotifierFailureIsNotFatal(t *testing.T) {
	svc := NewService(newMemStore(), &recordingNotifier{err: errBroker}, discardLogger())
	if _, err := svc.Create(context.Background(), "c", Event{Title: "x", Date: "2026-10-21"}); err != nil {
		t.Errorf("Create failed because of the notifier: %v", err)
	}
}

func TestService_RequiresClient(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil)
	if _, err := svc.List(context.Background(), ""); err == nil {
		t.Error("List without a client should fail")
	}
	if _, err := svc.Create(context.Background(), "", Event{Title: "x", Date: "2026-10-21"}); err == nil {
		t.Error("Create without a client should fail")
	}
}

func TestService_DuplicateID(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemStore(), nil, discardLogger())
	if _, err := svc.Create(ctx, "c", Event{ID: "same", Title: "x", Date: "2026-10-21"}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Create(ctx, "c", Event{ID: "same", Title: "y", Date: "2026-10-22"})
	if !errors.Is(err, ErrDuplicate) || !IsDomain(err) {
		t.Errorf("err = %v", err)
	}
}
