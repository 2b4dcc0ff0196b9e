// Package calendar manages per-client calendar events and the sub-agent
// that edits them on the user's behalf.
package calendar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// ErrInvalidEvent is returned when an event lacks a title or a date.
var ErrInvalidEvent = errors.New("event must have a title and a date")

// ErrInvalidField is returned for a date or time in the wrong format.
var ErrInvalidField = errors.New("invalid event field")

// ErrNotFound matches every [NotFoundError].
var ErrNotFound = errors.New("event not found")

// ErrDuplicate is returned when an event id is already taken for the client.
var ErrDuplicate = errors.New("event already exists")

// NotFoundError names the event that could not be found.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("event with UUID %s not found", e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Collaborator is a person attending an event.
type Collaborator struct {
	Name string `json:"name" bson:"name"`
}

// Reminder says when and how the client is reminded of an event.
type Reminder struct {
	TimeBefore string `json:"time_before" bson:"time_before"`
	Method     string `json:"method" bson:"method"`
}

// Event is one calendar entry. StartTime and EndTime are nil for all-day
// events.
type Event struct {
	ID            string         `json:"uuid" bson:"uuid"`
	Title         string         `json:"title" bson:"title"`
	Date          string         `json:"date" bson:"date"`
	StartTime     *string        `json:"start_time" bson:"start_time"`
	EndTime       *string        `json:"end_time" bson:"end_time"`
	Location      string         `json:"location" bson:"location"`
	Description   string         `json:"description" bson:"description"`
	Collaborators []Collaborator `json:"collaborators" bson:"collaborators"`
	Reminders     []Reminder     `json:"reminders" bson:"reminders"`
	AllDay        bool           `json:"all_day" bson:"all_day"`
}

// NewEvent completes a draft: it assigns a v4 id when none is given, fills
// the empty defaults, clears the times of an all-day event and validates
// the result.
func NewEvent(draft Event) (Event, error) {
	e := draft
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Collaborators == nil {
		e.Collaborators = []Collaborator{}
	}
	if e.Reminders == nil {
		e.Reminders = []Reminder{}
	}
	e.normalize()
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// normalize enforces the all-day invariant and treats blank times as
// absent.
func (e *Event) normalize() {
	e.Title = strings.TrimSpace(e.Title)
	e.Date = strings.TrimSpace(e.Date)
	if e.StartTime != nil && strings.TrimSpace(*e.StartTime) == "" {
		e.StartTime = nil
	}
	if e.EndTime != nil && strings.TrimSpace(*e.EndTime) == "" {
		e.EndTime = nil
	}
	if e.AllDay {
		e.StartTime = nil
		e.EndTime = nil
	}
	e.StartTime = canonicalTime(e.StartTime)
	e.EndTime = canonicalTime(e.EndTime)
}

// canonicalTime rewrites a parsable time as zero-padded HH:MM so times
// compare correctly as strings. Unparsable values are left for Validate.
func canonicalTime(s *string) *string {
	if s == nil {
		return nil
	}
	t, err := time.Parse(timeLayout, strings.TrimSpace(*s))
	if err != nil {
		return s
	}
	return ptr(t.Format(timeLayout))
}

// Validate checks the required fields and the date and time formats.
func (e Event) Validate() error {
	if e.Title == "" || e.Date == "" {
		return ErrInvalidEvent
	}
	if _, err := time.Parse(dateLayout, e.Date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidField, e.Date)
	}
	for _, f := range []struct {
		name string
		v    *string
	}{{"start_time", e.StartTime}, {"end_time", e.EndTime}} {
		if f.v == nil {
			continue
		}
		if _, err := time.Parse(timeLayout, *f.v); err != nil {
			return fmt.Errorf("%w: %s %q is not HH:MM", ErrInvalidField, f.name, *f.v)
		}
	}
	if e.StartTime != nil && e.EndTime != nil && *e.EndTime < *e.StartTime {
		return fmt.Errorf("%w: end_time %s is before start_time %s", ErrInvalidField, *e.EndTime, *e.StartTime)
	}
	return nil
}

// Patch holds the fields of an update. Nil fields are left unchanged.
// A time sent as an explicit null clears it, which a nil pointer cannot
// express, so ClearStartTime and ClearEndTime record it.
type Patch struct {
	Title         *string         `json:"title"`
	Date          *string         `json:"date"`
	StartTime     *string         `json:"start_time"`
	EndTime       *string         `json:"end_time"`
	Location      *string         `json:"location"`
	Description   *string         `json:"description"`
	Collaborators *[]Collaborator `json:"collaborators"`
	Reminders     *[]Reminder     `json:"reminders"`
	AllDay        *bool           `json:"all_day"`

	ClearStartTime bool `json:"-"`
	ClearEndTime   bool `json:"-"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply merges p into e and validates the result. The id never changes.
func (p Patch) Apply(e Event) (Event, error) {
	out := e
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Date != nil {
		out.Date = *p.Date
	}
	switch {
	case p.ClearStartTime:
		out.StartTime = nil
	case p.StartTime != nil:
		out.StartTime = ptr(*p.StartTime)
	}
	switch {
	case p.ClearEndTime:
		out.EndTime = nil
	case p.EndTime != nil:
		out.EndTime = ptr(*p.EndTime)
	}
	if p.Location != nil {
		out.Location = *p.Location
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Collaborators != nil {
		out.Collaborators = append([]Collaborator{}, (*p.Collaborators)...)
	}
	if p.Reminders != nil {
		out.Reminders = append([]Reminder{}, (*p.Reminders)...)
	}
	if p.AllDay != nil {
		out.AllDay = *p.AllDay
	}
	out.ID = e.ID
	out.normalize()
	if err := out.Validate(); err != nil {
		return Event{}, err
	}
	return out, nil
}

// EventFromArgs decodes a tool-argument object into a draft event.
func EventFromArgs(args map[string]any) (Event, error) {
	var e Event
	if err := remarshal(args, &e, false); err != nil {
		return Event{}, err
	}
	return e, nil
}

// PatchFromArgs decodes an updateFields object. Unknown keys, including
// any attempt to change the id, are rejected.
func PatchFromArgs(fields map[string]any) (Patch, error) {
	var p Patch
	if err := remarshal(fields, &p, true); err != nil {
		return Patch{}, err
	}
	if v, ok := fields["start_time"]; ok && v == nil {
		p.ClearStartTime = true
	}
	if v, ok := fields["end_time"]; ok && v == nil {
		p.ClearEndTime = true
	}
	return p, nil
}

func remarshal(in map[string]any, out any, strict bool) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	return nil
}

func ptr(s string) *string { return &s }

// Summary renders the event on one line for a system note.
func (e Event) Summary() string {
	names := make([]string, 0, len(e.Collaborators))
	for _, c := range e.Collaborators {
		names = append(names, c.Name)
	}
	return fmt.Sprintf("Event UUID: %s, Title: %s, Date: %s, Start Time: %s, End Time: %s, Location: %s, Description: %s, Collaborators: %s, All Day: %s.",
		e.ID, e.Title, e.Date,
		orNA(e.StartTime), orNA(e.EndTime),
		orNAString(e.Location), orNAString(e.Description),
		orNone(strings.Join(names, ", ")),
		yesNo(e.AllDay),
	)
}

// Details renders the event as a markdown list for confirmation notes.
func (e Event) Details() string {
	names := make([]string, 0, len(e.Collaborators))
	for _, c := range e.Collaborators {
		names = append(names, c.Name)
	}
	reminders := make([]string, 0, len(e.Reminders))
	for _, r := range e.Reminders {
		reminders = append(reminders, fmt.Sprintf("%s before via %s", r.TimeBefore, r.Method))
	}

	var sb strings.Builder
	sb.WriteString("**Event Details:**\n")
	fmt.Fprintf(&sb, "- **UUID**: %s\n", e.ID)
	fmt.Fprintf(&sb, "- **Title**: %s\n", e.Title)
	fmt.Fprintf(&sb, "- **Date**: %s\n", e.Date)
	fmt.Fprintf(&sb, "- **Start Time**: %s\n", orNA(e.StartTime))
	fmt.Fprintf(&sb, "- **End Time**: %s\n", orNA(e.EndTime))
	fmt.Fprintf(&sb, "- **Location**: %s\n", orNAString(e.Location))
	fmt.Fprintf(&sb, "- **Description**: %s\n", orNAString(e.Description))
	fmt.Fprintf(&sb, "- **Collaborators**: %s\n", orNone(strings.Join(names, ", ")))
	fmt.Fprintf(&sb, "- **Reminders**: %s\n", orNone(strings.Join(reminders, ", ")))
	fmt.Fprintf(&sb, "- **All Day Event**: %s", yesNo(e.AllDay))
	return sb.String()
}

func orNA(s *string) string {
	if s == nil {
		return "N/A"
	}
	return *s
}

func orNAString(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
