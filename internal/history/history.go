// Package history holds the ordered message log of one orchestration run.
//
// Besides plain appends, the log supports tagged system notes: durable
// state flags the model must see exactly once in their latest form (for
// example "events were already fetched, do not fetch again"). Writing a
// note under a tag that already exists replaces the earlier note in place
// instead of appending a second copy, so repeated tool calls never grow
// the log with redundant instructions.
//
// A History is owned by a single run and is not safe for concurrent use.
package history

import "github.com/khariha/ferris-wheel/internal/llm"

// Tag identifies a system note. Tool notes use the tool name; engine
// notes use the constants below.
type Tag string

// TagTerminate marks the note that asks the model to call the terminate
// tool after it has produced a final answer.
const TagTerminate Tag = "terminate"

// Entry is one message plus its optional tag. Tags never reach the
// completion service.
type Entry struct {
	Message llm.Message
	Tag     Tag
}

// History is an ordered message log.
type History struct {
	entries []Entry
}

// New returns an empty history.
func New() *History {
	return &History{}
}

// AppendSystem appends an untagged system message.
func (h *History) AppendSystem(content string) {
	h.append(llm.RoleSystem, content, "")
}

// AppendUser appends a user message.
func (h *History) AppendUser(content string) {
	h.append(llm.RoleUser, content, "")
}

// AppendAssistant appends an assistant message.
func (h *History) AppendAssistant(content string) {
	h.append(llm.RoleAssistant, content, "")
}

func (h *History) append(role, content string, tag Tag) {
	h.entries = append(h.entries, Entry{
		Message: llm.Message{Role: role, Content: content},
		Tag:     tag,
	})
}

// PrependSystem inserts an untagged system message at the front of the
// log. Recalled context goes here.
func (h *History) PrependSystem(content string) {
	h.entries = append([]Entry{{Message: llm.Message{Role: llm.RoleSystem, Content: content}}}, h.entries...)
}

// UpsertTaggedSystemNote writes a system note under tag. If a note with
// the same tag exists, its content is replaced in place and replaced is
// true; otherwise the note is appended. An empty tag always appends.
func (h *History) UpsertTaggedSystemNote(tag Tag, content string) (replaced bool) {
	if tag != "" {
		for i := range h.entries {
			if h.entries[i].Tag == tag {
				h.entries[i].Message = llm.Message{Role: llm.RoleSystem, Content: content}
				return true
			}
		}
	}
	h.append(llm.RoleSystem, content, tag)
	return false
}

// Note returns the content of the note stored under tag.
func (h *History) Note(tag Tag) (string, bool) {
	for _, e := range h.entries {
		if e.Tag == tag {
			return e.Message.Content, true
		}
	}
	return "", false
}

// Count returns how many entries carry tag. After any sequence of
// upserts this is at most one.
func (h *History) Count(tag Tag) int {
	n := 0
	for _, e := range h.entries {
		if e.Tag == tag {
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Messages returns a copy of the log in wire form.
func (h *History) Messages() []llm.Message {
	out := make([]llm.Message, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Message
	}
	return out
}

// Conversation returns the user and assistant turns only. System notes
// are orchestration scaffolding and are never part of the durable record.
func (h *History) Conversation() []llm.Message {
	return WithoutSystem(h.Messages())
}

// WithoutSystem filters system-role messages out of msgs.
func WithoutSystem(msgs []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}
