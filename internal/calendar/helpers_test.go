package calendar

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
)

func contains(s, sub string) bool { return strings.Contains(s, sub) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store keeping insertion order.
type memStore struct {
	mu      sync.Mutex
	events  map[string][]Event
	failAll error
}

func newMemStore() *memStore {
	return &memStore{events: make(map[string][]Event)}
}

func (m *memStore) List(_ context.Context, clientID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	return append([]Event{}, m.events[clientID]...), nil
}

func (m *memStore) Get(_ context.Context, clientID, id string) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events[clientID] {
		if e.ID == id {
			return e, nil
		}
	}
	return Event{}, &NotFoundError{ID: id}
}

func (m *memStore) Insert(_ context.Context, clientID string, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.events[clientID] {
		if cur.ID == e.ID {
			return ErrDuplicate
		}
	}
	m.events[clientID] = append(m.events[clientID], e)
	return nil
}

func (m *memStore) Update(_ context.Context, clientID string, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.events[clientID] {
		if cur.ID == e.ID {
			m.events[clientID][i] = e
			return nil
		}
	}
	return &NotFoundError{ID: e.ID}
}

func (m *memStore) Delete(_ context.Context, clientID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.events[clientID]
	for i, cur := range list {
		if cur.ID == id {
			m.events[clientID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return &NotFoundError{ID: id}
}

type notification struct {
	clientID string
	change   Change
	eventID  string
}

type recordingNotifier struct {
	got []notification
	err error
}

func (r *recordingNotifier) EventChanged(_ context.Context, clientID string, change Change, e Event) error {
	r.got = append(r.got, notification{clientID, change, e.ID})
	return r.err
}

var errBroker = errors.New("broker unreachable")
