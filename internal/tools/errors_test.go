package tools

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrToolUnavailable_Error(t *testing.T) {
	err := &ErrToolUnavailable{ToolName: "web_search"}
	want := `tool "web_search" is not available in this context`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrToolUnavailable_WrappedErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", &ErrToolUnavailable{ToolName: "web_search"})

	var target *ErrToolUnavailable
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to match wrapped *ErrToolUnavailable")
	}
	if target.ToolName != "web_search" {
		t.Errorf("ToolName = %q", target.ToolName)
	}
}

func TestArgumentError_Error(t *testing.T) {
	err := &ArgumentError{Tool: DeleteClientEvent, Problems: []string{"missing required field uuid", "extra"}}
	want := "invalid arguments for delete_client_event: missing required field uuid; extra"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDomainError(t *testing.T) {
	sentinel := errors.New("event with UUID x not found")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", sentinel, false},
		{"marked", DomainError(sentinel), true},
		{"marked then wrapped", fmt.Errorf("update: %w", DomainError(sentinel)), true},
		{"argument error", &ArgumentError{Tool: AddClientEvent}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDomainError(tt.err); got != tt.want {
				t.Errorf("IsDomainError = %v, want %v", got, tt.want)
			}
		})
	}

	if !errors.Is(DomainError(sentinel), sentinel) {
		t.Error("DomainError should unwrap to the original error")
	}
	if DomainError(nil) != nil {
		t.Error("DomainError(nil) should be nil")
	}
}
