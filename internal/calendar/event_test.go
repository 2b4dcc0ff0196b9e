package calendar

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewEvent_Defaults(t *testing.T) {
	e, err := NewEvent(Event{Title: "Standup", Date: "2026-10-18"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		t.Errorf("id %q is not a uuid: %v", e.ID, err)
	}
	if e.Location != "" || e.Description != "" || e.AllDay {
		t.Errorf("defaults = %+v", e)
	}
	if e.Collaborators == nil || len(e.Collaborators) != 0 {
		t.Errorf("collaborators = %#v", e.Collaborators)
	}
	if e.Reminders == nil || len(e.Reminders) != 0 {
		t.Errorf("reminders = %#v", e.Reminders)
	}
}

func TestNewEvent_KeepsSuppliedID(t *testing.T) {
	e, err := NewEvent(Event{ID: "fixed", Title: "x", Date: "2026-10-18"})
	if err != nil {
		t.Fatal(err)
	}
	if e.ID != "fixed" {
		t.Errorf("id = %q", e.ID)
	}
}

func TestNewEvent_AllDayClearsTimes(t *testing.T) {
	e, err := NewEvent(Event{
		Title:     "Offsite",
		Date:      "2026-10-20",
		StartTime: ptr("09:00"),
		EndTime:   ptr("17:00"),
		AllDay:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if e.StartTime != nil || e.EndTime != nil {
		t.Errorf("all-day event kept times: %v, %v", e.StartTime, e.EndTime)
	}
}

func TestNewEvent_Validation(t *testing.T) {
	tests := []struct {
		name  string
		draft Event
		want  error
	}{
		{"missing title", Event{Date: "2026-10-18"}, ErrInvalidEvent},
		{"missing date", Event{Title: "x"}, ErrInvalidEvent},
		{"blank title", Event{Title: "  ", Date: "2026-10-18"}, ErrInvalidEvent},
		{"bad date", Event{Title: "x", Date: "18/10/2026"}, ErrInvalidField},
		{"bad time", Event{Title: "x", Date: "2026-10-18", StartTime: ptr("2pm")}, ErrInvalidField},
		{"end before start", Event{Title: "x", Date: "2026-10-18", StartTime: ptr("14:00"), EndTime: ptr("13:00")}, ErrInvalidField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvent(tt.draft)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if !IsDomain(err) {
				t.Error("validation failures are domain errors")
			}
		})
	}
	if ErrInvalidEvent.Error() != "event must have a title and a date" {
		t.Errorf("message = %q", ErrInvalidEvent)
	}
}

func TestNewEvent_CanonicalTimes(t *testing.T) {
	e, err := NewEvent(Event{Title: "x", Date: "2026-10-18", StartTime: ptr("9:30"), EndTime: ptr("10:00")})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if *e.StartTime != "09:30" {
		t.Errorf("start = %q", *e.StartTime)
	}
}

func TestPatch_Apply(t *testing.T) {
	base, err := NewEvent(Event{
		Title:         "Lunch",
		Date:          "2026-10-18",
		StartTime:     ptr("12:00"),
		EndTime:       ptr("13:00"),
		Location:      "Bistro",
		Collaborators: []Collaborator{{Name: "Ada"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("only supplied fields change", func(t *testing.T) {
		got, err := Patch{Location: ptr("Cafe")}.Apply(base)
		if err != nil {
			t.Fatal(err)
		}
		if got.Location != "Cafe" || got.Title != "Lunch" || *got.StartTime != "12:00" || len(got.Collaborators) != 1 {
			t.Errorf("got %+v", got)
		}
		if got.ID != base.ID {
			t.Error("id changed")
		}
	})

	t.Run("all day reapplied", func(t *testing.T) {
		allDay := true
		got, err := Patch{AllDay: &allDay}.Apply(base)
		if err != nil {
			t.Fatal(err)
		}
		if got.StartTime != nil || got.EndTime != nil {
			t.Errorf("times kept: %+v", got)
		}
	})

	t.Run("invalid result rejected", func(t *testing.T) {
		if _, err := (Patch{Title: ptr("")}).Apply(base); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("base untouched", func(t *testing.T) {
		names := []Collaborator{{Name: "Grace"}}
		if _, err := (Patch{Collaborators: &names}).Apply(base); err != nil {
			t.Fatal(err)
		}
		if base.Collaborators[0].Name != "Ada" {
			t.Error("Apply mutated its input")
		}
	})
}

func TestPatchFromArgs(t *testing.T) {
	p, err := PatchFromArgs(map[string]any{"title": "New", "all_day": true})
	if err != nil {
		t.Fatal(err)
	}
	if *p.Title != "New" || !*p.AllDay || p.Date != nil {
		t.Errorf("patch = %+v", p)
	}
	if p.Empty() {
		t.Error("patch should not be empty")
	}
	if !(Patch{}).Empty() {
		t.Error("zero patch should be empty")
	}

	if _, err := PatchFromArgs(map[string]any{"uuid": "other"}); !errors.Is(err, ErrInvalidField) {
		t.Errorf("changing the id should be rejected, err = %v", err)
	}
}

func TestPatchFromArgs_NullClears(t *testing.T) {
	p, err := PatchFromArgs(map[string]any{"start_time": nil, "title": "Renamed"})
	if err != nil {
		t.Fatal(err)
	}
	if !p.ClearStartTime || p.ClearEndTime || p.StartTime != nil {
		t.Errorf("patch = %+v", p)
	}
	if p.Empty() {
		t.Error("a clearing patch is not empty")
	}

	base := Event{ID: "e1", Title: "Call", Date: "2026-10-18", StartTime: ptr("10:00")}
	got, err := p.Apply(base)
	if err != nil {
		t.Fatal(err)
	}
	if got.StartTime != nil || got.Title != "Renamed" {
		t.Errorf("applied = %+v", got)
	}
}

func TestEventFromArgs(t *testing.T) {
	e, err := EventFromArgs(map[string]any{
		"clientUUID":    "ignored",
		"title":         "Meeting",
		"date":          "2026-10-18",
		"start_time":    "14:00",
		"collaborators": []any{map[string]any{"name": "Ada"}},
		"reminders":     []any{map[string]any{"time_before": "15m", "method": "popup"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if e.Title != "Meeting" || *e.StartTime != "14:00" || e.EndTime != nil {
		t.Errorf("event = %+v", e)
	}
	if e.Collaborators[0].Name != "Ada" || e.Reminders[0].TimeBefore != "15m" {
		t.Errorf("nested = %+v / %+v", e.Collaborators, e.Reminders)
	}

	if _, err := EventFromArgs(map[string]any{"all_day": "yes"}); !errors.Is(err, ErrInvalidField) {
		t.Errorf("err = %v", err)
	}
}

func TestNotFoundError(t *testing.T) {
	err := error(&NotFoundError{ID: "abc"})
	if err.Error() != "event with UUID abc not found" {
		t.Errorf("message = %q", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("should match ErrNotFound")
	}
}

func TestEvent_Rendering(t *testing.T) {
	e := Event{ID: "id-1", Title: "Tea", Date: "2026-10-18", AllDay: true}
	if got := e.Summary(); got != "Event UUID: id-1, Title: Tea, Date: 2026-10-18, Start Time: N/A, End Time: N/A, Location: N/A, Description: N/A, Collaborators: None, All Day: Yes." {
		t.Errorf("Summary = %q", got)
	}
	e.Reminders = []Reminder{{TimeBefore: "1h", Method: "email"}}
	if d := e.Details(); !contains(d, "- **Reminders**: 1h before via email") {
		t.Errorf("Details = %q", d)
	}
}
