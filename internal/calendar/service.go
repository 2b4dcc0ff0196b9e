package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Store persists events. Every operation is scoped by client; one
// client's events are invisible to another.
type Store interface {
	List(ctx context.Context, clientID string) ([]Event, error)
	Get(ctx context.Context, clientID, id string) (Event, error)
	// Insert fails with ErrDuplicate when the id is taken.
	Insert(ctx context.Context, clientID string, e Event) error
	// Update replaces the stored event with the same id. It fails with a
	// *NotFoundError when there is none.
	Update(ctx context.Context, clientID string, e Event) error
	Delete(ctx context.Context, clientID, id string) error
}

// Change is the kind of mutation a notification reports.
type Change string

const (
	ChangeCreated Change = "created"
	ChangeUpdated Change = "updated"
	ChangeDeleted Change = "deleted"
)

// Notifier is told about every successful mutation.
type Notifier interface {
	EventChanged(ctx context.Context, clientID string, change Change, e Event) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// EventChanged implements [Notifier].
func (NopNotifier) EventChanged(context.Context, string, Change, Event) error { return nil }

// Service applies the event rules on top of a Store.
type Service struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
}

// NewService returns a Service. A nil notifier disables notifications.
func NewService(store Store, notifier Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notifier: notifier, logger: logger.With("component", "calendar")}
}

// List returns every event of the client.
func (s *Service) List(ctx context.Context, clientID string) ([]Event, error) {
	if clientID == "" {
		return nil, errNoClient
	}
	events, err := s.store.List(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Create validates draft and stores it.
func (s *Service) Create(ctx context.Context, clientID string, draft Event) (Event, error) {
	if clientID == "" {
		return Event{}, errNoClient
	}
	e, err := NewEvent(draft)
	if err != nil {
		return Event{}, err
	}
	if err := s.store.Insert(ctx, clientID, e); err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	s.logger.Info("event created", "client_id", clientID, "event_id", e.ID, "date", e.Date)
	s.notify(ctx, clientID, ChangeCreated, e)
	return e, nil
}

// Update merges p into the stored event.
func (s *Service) Update(ctx context.Context, clientID, id string, p Patch) (Event, error) {
	if clientID == "" {
		return Event{}, errNoClient
	}
	cur, err := s.store.Get(ctx, clientID, id)
	if err != nil {
		return Event{}, fmt.Errorf("get event: %w", err)
	}
	next, err := p.Apply(cur)
	if err != nil {
		return Event{}, err
	}
	if err := s.store.Update(ctx, clientID, next); err != nil {
		return Event{}, fmt.Errorf("update event: %w", err)
	}
	s.logger.Info("event updated", "client_id", clientID, "event_id", id)
	s.notify(ctx, clientID, ChangeUpdated, next)
	return next, nil
}

// Delete removes the event and returns what was removed.
func (s *Service) Delete(ctx context.Context, clientID, id string) (Event, error) {
	if clientID == "" {
		return Event{}, errNoClient
	}
	cur, err := s.store.Get(ctx, clientID, id)
	if err != nil {
		return Event{}, fmt.Errorf("get event: %w", err)
	}
	if err := s.store.Delete(ctx, clientID, id); err != nil {
		return Event{}, fmt.Errorf("delete event: %w", err)
	}
	s.logger.Info("event deleted", "client_id", clientID, "event_id", id)
	s.notify(ctx, clientID, ChangeDeleted, cur)
	return cur, nil
}

func (s *Service) notify(ctx context.Context, clientID string, change Change, e Event) {
	if err := s.notifier.EventChanged(ctx, clientID, change, e); err != nil {
		s.logger.Warn("event notification failed",
			"client_id", clientID, "event_id", e.ID, "change", change, "error", err)
	}
}

var errNoClient = errors.New("no client id in context")

// IsDomain reports whether err is a rule violation the model can act on,
// as opposed to a storage failure.
func IsDomain(err error) bool {
	return errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicate)
}
