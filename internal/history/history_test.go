package history

import (
	"testing"

	"github.com/khariha/ferris-wheel/internal/llm"
)

func TestUpsertTaggedSystemNote_ReplacesInPlace(t *testing.T) {
	h := New()
	h.AppendUser("what's on tomorrow?")

	if replaced := h.UpsertTaggedSystemNote("get_client_events", "first listing"); replaced {
		t.Error("first write should append, not replace")
	}
	h.AppendAssistant("checking")
	if replaced := h.UpsertTaggedSystemNote("get_client_events", "second listing"); !replaced {
		t.Error("second write should replace")
	}

	if got := h.Count("get_client_events"); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
	content, ok := h.Note("get_client_events")
	if !ok || content != "second listing" {
		t.Errorf("Note = %q, %v; want second listing", content, ok)
	}

	msgs := h.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	// The note keeps its original position.
	if msgs[1].Role != llm.RoleSystem || msgs[1].Content != "second listing" {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
}

func TestUpsertTaggedSystemNote_DistinctTags(t *testing.T) {
	h := New()
	h.UpsertTaggedSystemNote(TagTerminate, "call suspend_thread")
	h.UpsertTaggedSystemNote("try_to_remember", "do not recall again")
	h.UpsertTaggedSystemNote(TagTerminate, "call suspend_thread now")

	if h.Len() != 2 {
		t.Errorf("Len = %d, want 2", h.Len())
	}
	if h.Count(TagTerminate) != 1 || h.Count("try_to_remember") != 1 {
		t.Error("each tag should appear exactly once")
	}
}

func TestUpsertTaggedSystemNote_EmptyTagAppends(t *testing.T) {
	h := New()
	h.UpsertTaggedSystemNote("", "a")
	h.UpsertTaggedSystemNote("", "b")
	if h.Len() != 2 {
		t.Errorf("Len = %d, want 2", h.Len())
	}
}

func TestPrependSystem(t *testing.T) {
	h := New()
	h.AppendSystem("preamble")
	h.AppendUser("question")
	h.PrependSystem("###CONTEXT: I remember you like oat milk.")

	msgs := h.Messages()
	if msgs[0].Content != "###CONTEXT: I remember you like oat milk." {
		t.Errorf("first message = %q", msgs[0].Content)
	}
	if msgs[2].Role != llm.RoleUser {
		t.Errorf("user message moved to %q", msgs[2].Role)
	}
}

func TestConversation_StripsSystem(t *testing.T) {
	h := New()
	h.AppendSystem("preamble")
	h.AppendUser("hi")
	h.UpsertTaggedSystemNote("x", "note")
	h.AppendAssistant("hello")
	h.PrependSystem("context")

	conv := h.Conversation()
	if len(conv) != 2 {
		t.Fatalf("len = %d, want 2", len(conv))
	}
	for _, m := range conv {
		if m.Role == llm.RoleSystem {
			t.Errorf("system message leaked: %q", m.Content)
		}
	}
	if conv[0].Role != llm.RoleUser || conv[1].Role != llm.RoleAssistant {
		t.Errorf("order = %s, %s", conv[0].Role, conv[1].Role)
	}
}

func TestMessages_ReturnsCopy(t *testing.T) {
	h := New()
	h.AppendUser("original")
	msgs := h.Messages()
	msgs[0].Content = "mutated"

	if got := h.Messages()[0].Content; got != "original" {
		t.Errorf("history mutated through copy: %q", got)
	}
}
