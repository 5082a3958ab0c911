package server

import (
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// maxHistoryMessages caps how much prior conversation is replayed to the
// model per session.
const maxHistoryMessages = 20

// exchange is one stored conversation message.
type exchange struct {
	role    llms.ChatMessageType
	content string
}

// History keeps per-session conversation context in memory. Sessions
// live for the lifetime of the server process.
type History struct {
	mu        sync.Mutex
	bySession map[string][]exchange
}

// NewHistory creates an empty history store.
func NewHistory() *History {
	return &History{bySession: make(map[string][]exchange)}
}

// Messages returns the stored exchanges for a session as model messages.
func (h *History) Messages(sessionID string) []llms.MessageContent {
	h.mu.Lock()
	defer h.mu.Unlock()

	stored := h.bySession[sessionID]
	out := make([]llms.MessageContent, 0, len(stored))
	for _, e := range stored {
		out = append(out, llms.TextParts(e.role, e.content))
	}
	return out
}

// Record appends a user/assistant exchange, trimming the oldest entries
// beyond the cap.
func (h *History) Record(sessionID, userText, assistantText string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := append(h.bySession[sessionID],
		exchange{role: llms.ChatMessageTypeHuman, content: userText},
		exchange{role: llms.ChatMessageTypeAI, content: assistantText},
	)
	if len(msgs) > maxHistoryMessages {
		msgs = msgs[len(msgs)-maxHistoryMessages:]
	}
	h.bySession[sessionID] = msgs
}
