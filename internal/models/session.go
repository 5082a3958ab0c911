package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// titleRunes is the number of leading runes of the first user message
// used to derive a session title.
const titleRunes = 30

// Session is a persistent chat session. Messages keep insertion order;
// the title is derived once from the first user message and never changes.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Timestamp time.Time `json:"timestamp"`
}

// DeriveTitle builds a session title from the first user message:
// the first 30 characters, with an ellipsis when truncated.
func DeriveTitle(firstUserText string) string {
	if utf8.RuneCountInString(firstUserText) <= titleRunes {
		return firstUserText
	}
	runes := []rune(firstUserText)
	return string(runes[:titleRunes]) + "..."
}

// EmergencyLocked reports whether any message in the session reached the
// emergency stage. The lock is a derived fact, recomputed from the
// message log rather than stored.
func (s Session) EmergencyLocked() bool {
	for _, m := range s.Messages {
		if m.Stage == StageEmergency {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.Messages = CloneMessages(s.Messages)
	return out
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// FirstUserText returns the content of the first user message, or "".
func (s Session) FirstUserText() string {
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}
