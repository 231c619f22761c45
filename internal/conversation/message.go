package conversation

import (
	"time"

	"github.com/kalambet/buddy/internal/gateway"
)

// Roles a Message can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// timestampLayout matches JavaScript's Date.toISOString, which is how older
// history records were written.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Message is one entry of the conversation history. Messages are never
// modified after they are appended.
type Message struct {
	Content   string   `json:"content"`
	Role      string   `json:"role"`
	Sources   []string `json:"sources"`
	Timestamp string   `json:"timestamp"`
}

func newMessage(content, role string, sources []string, now time.Time) Message {
	if sources == nil {
		sources = []string{}
	}
	return Message{
		Content:   content,
		Role:      role,
		Sources:   sources,
		Timestamp: now.UTC().Format(timestampLayout),
	}
}

// Time parses the message timestamp. Unparsable timestamps yield the zero time.
func (m Message) Time() time.Time {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, m.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (m Message) entry() gateway.HistoryEntry {
	sources := m.Sources
	if sources == nil {
		sources = []string{}
	}
	return gateway.HistoryEntry{
		Content:   m.Content,
		Role:      m.Role,
		Sources:   sources,
		Timestamp: m.Timestamp,
	}
}
