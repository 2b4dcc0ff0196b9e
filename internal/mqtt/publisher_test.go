package mqtt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	_ "modernc.org/sqlite"

	"github.com/khariha/ferris-wheel/internal/calendar"
	"github.com/khariha/ferris-wheel/internal/config"
	"github.com/khariha/ferris-wheel/internal/docstore"
)

type recorder struct {
	mu   sync.Mutex
	msgs []*paho.Publish
	err  error
}

func (r *recorder) send(_ context.Context, pb *paho.Publish) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, pb)
	return nil
}

func (r *recorder) published() []*paho.Publish {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*paho.Publish(nil), r.msgs...)
}

func testPublisher(t *testing.T) (*Publisher, *recorder) {
	t.Helper()
	p := New(config.MQTTConfig{
		Broker:      "mqtt://localhost:1883",
		TopicPrefix: "ferris-wheel",
		ClientID:    "ferris-wheel",
	}, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	rec := &recorder{}
	p.send = rec.send
	return p, rec
}

func TestNew_ClientID(t *testing.T) {
	cfg := config.MQTTConfig{ClientID: "ferris-wheel"}
	if got := New(cfg, "", nil).clientID; got != "ferris-wheel" {
		t.Errorf("clientID = %q, want %q", got, "ferris-wheel")
	}
	if got := New(cfg, "abc", nil).clientID; got != "ferris-wheel-abc" {
		t.Errorf("clientID = %q, want %q", got, "ferris-wheel-abc")
	}
}

func TestEventTopic(t *testing.T) {
	p, _ := testPublisher(t)

	got, err := p.EventTopic("client-1", calendar.ChangeCreated)
	if err != nil {
		t.Fatalf("EventTopic() error = %v", err)
	}
	if want := "ferris-wheel/clients/client-1/events/created"; got != want {
		t.Errorf("EventTopic() = %q, want %q", got, want)
	}

	for _, bad := range []string{"", "a/b", "a+", "#"} {
		if _, err := p.EventTopic(bad, calendar.ChangeCreated); err == nil {
			t.Errorf("EventTopic(%q) should fail", bad)
		}
	}
}

func TestEventChanged_Payload(t *testing.T) {
	p, rec := testPublisher(t)
	start := "10:00"
	e := calendar.Event{ID: "ev-1", Title: "Standup", Date: "2026-10-18", StartTime: &start}

	if err := p.EventChanged(context.Background(), "client-1", calendar.ChangeUpdated, e); err != nil {
		t.Fatalf("EventChanged() error = %v", err)
	}

	msgs := rec.published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	pb := msgs[0]
	if pb.Topic != "ferris-wheel/clients/client-1/events/updated" {
		t.Errorf("topic = %q", pb.Topic)
	}
	if pb.QoS != 1 || pb.Retain {
		t.Errorf("QoS = %d, Retain = %v, want 1, false", pb.QoS, pb.Retain)
	}

	var msg EventMessage
	if err := json.Unmarshal(pb.Payload, &msg); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if msg.ClientUUID != "client-1" || msg.Change != calendar.ChangeUpdated {
		t.Errorf("message = %+v", msg)
	}
	if msg.Event.ID != "ev-1" || msg.Event.Title != "Standup" {
		t.Errorf("event = %+v", msg.Event)
	}
	if !msg.At.Equal(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("at = %v", msg.At)
	}
	if !strings.Contains(string(pb.Payload), `"uuid":"ev-1"`) {
		t.Errorf("payload should use the event wire names: %s", pb.Payload)
	}
}

func TestEventChanged_NotStarted(t *testing.T) {
	p := New(config.MQTTConfig{TopicPrefix: "ferris-wheel"}, "", nil)
	err := p.EventChanged(context.Background(), "client-1", calendar.ChangeCreated, calendar.Event{ID: "x"})
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("error = %v, want ErrNotStarted", err)
	}
}

func TestEventChanged_SendError(t *testing.T) {
	p, rec := testPublisher(t)
	rec.err = errors.New("broker gone")

	err := p.EventChanged(context.Background(), "client-1", calendar.ChangeDeleted, calendar.Event{ID: "x"})
	if err == nil || !strings.Contains(err.Error(), "broker gone") {
		t.Errorf("error = %v, want wrapped send error", err)
	}
}

func TestStop_NotStarted(t *testing.T) {
	p := New(config.MQTTConfig{}, "", nil)
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestPublishAvailability(t *testing.T) {
	p, rec := testPublisher(t)
	p.publishAvailability(context.Background(), "online")

	msgs := rec.published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].Topic != "ferris-wheel/availability" || string(msgs[0].Payload) != "online" || !msgs[0].Retain {
		t.Errorf("availability message = %+v", msgs[0])
	}
}

func TestPublisher_NotifiesServiceMutations(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	store, err := docstore.NewSQLite(db)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}

	p, rec := testPublisher(t)
	svc := calendar.NewService(store, p, nil)

	e, err := svc.Create(ctx, "client-1", calendar.Event{Title: "Lunch", Date: "2026-10-20"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	title := "Late lunch"
	if _, err := svc.Update(ctx, "client-1", e.ID, calendar.Patch{Title: &title}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.Delete(ctx, "client-1", e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var topics []string
	for _, pb := range rec.published() {
		topics = append(topics, pb.Topic)
	}
	want := []string{
		"ferris-wheel/clients/client-1/events/created",
		"ferris-wheel/clients/client-1/events/updated",
		"ferris-wheel/clients/client-1/events/deleted",
	}
	if strings.Join(topics, ",") != strings.Join(want, ",") {
		t.Errorf("topics = %v, want %v", topics, want)
	}
}

func TestLoadOrCreateInstanceID_CreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	if len(strings.Split(id, "-")) != 5 {
		t.Errorf("id %q does not look like a UUID", id)
	}

	data, err := os.ReadFile(filepath.Join(dir, "instance_id"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != id {
		t.Errorf("file content = %q, want %q", got, id)
	}

	again, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if again != id {
		t.Errorf("second = %q, want %q (should be stable)", again, id)
	}
}

func TestLoadOrCreateInstanceID_ReplacesGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instance_id")
	if err := os.WriteFile(path, []byte("not-a-uuid\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	if id == "not-a-uuid" || len(strings.Split(id, "-")) != 5 {
		t.Errorf("id = %q, want a fresh UUID", id)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != id {
		t.Errorf("file not rewritten: %q", data)
	}
}

func TestAwaitConnection_NotStarted(t *testing.T) {
	p := New(config.MQTTConfig{}, "", nil)
	if err := p.AwaitConnection(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("AwaitConnection() = %v, want ErrNotStarted", err)
	}
}
