// Package engine drives a single streaming conversation turn: it owns the
// ordered message log of the active session, applies stream events to the
// in-progress assistant message, and enforces the emergency lock.
package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/triage-go/internal/models"
	"github.com/raphaelgruber/triage-go/internal/stream"
)

// TurnState is the per-session turn lifecycle.
type TurnState int

const (
	StateIdle TurnState = iota
	StateAwaitingFirstDelta
	StateStreaming
	StateFinalized
)

// Conversation is the turn state machine for one active session.
// All methods are safe for use from the UI goroutine and the generation
// pump; only the engine mutates the message log.
type Conversation struct {
	mu        sync.Mutex
	sessionID string
	messages  []models.Message
	state     TurnState
	locked    bool   // sticky, never cleared within the session
	currentID string // id of the in-progress assistant message, "" when none
}

// NewConversation starts an empty conversation for a fresh session.
func NewConversation(sessionID string) *Conversation {
	return &Conversation{sessionID: sessionID}
}

// Restore rebuilds a conversation from a stored session. The emergency
// lock is recomputed from the message log.
func Restore(s models.Session) *Conversation {
	return &Conversation{
		sessionID: s.ID,
		messages:  models.CloneMessages(s.Messages),
		locked:    s.EmergencyLocked(),
	}
}

// BeginTurn appends the user message and an empty placeholder assistant
// message, and moves to AwaitingFirstDelta. It rejects with ErrBusy while
// a turn is in flight and with ErrEmergencyLocked once the session is
// locked. Returns the id of the placeholder assistant message.
func (c *Conversation) BeginTurn(userText string, image *models.Attachment) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.locked {
		return "", ErrEmergencyLocked
	}
	if c.state == StateAwaitingFirstDelta || c.state == StateStreaming {
		return "", ErrBusy
	}
	if strings.TrimSpace(userText) == "" {
		return "", ErrEmptyMessage
	}

	now := time.Now()
	c.messages = append(c.messages, models.Message{
		ID:        models.NewID(),
		Role:      models.RoleUser,
		Content:   userText,
		Image:     image,
		CreatedAt: now,
	})

	assistantID := models.NewID()
	c.messages = append(c.messages, models.Message{
		ID:        assistantID,
		Role:      models.RoleAssistant,
		CreatedAt: now,
	})

	c.currentID = assistantID
	c.state = StateAwaitingFirstDelta
	return assistantID, nil
}

// ApplyDelta appends text to the addressed message. Deltas addressed to
// anything other than the current in-progress message are discarded; this
// is what makes late chunks from a cancelled stream harmless.
func (c *Conversation) ApplyDelta(messageID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if messageID == "" || messageID != c.currentID {
		return
	}
	if i := c.current(); i >= 0 {
		c.messages[i].Content += text
		c.state = StateStreaming
	}
}

// ApplyMetadata sets urgency, stage and structured payload on the
// addressed message. Reaching the emergency stage sets the sticky lock.
// Re-applying identical metadata is a no-op by construction.
func (c *Conversation) ApplyMetadata(messageID string, meta stream.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if messageID == "" || messageID != c.currentID {
		return
	}
	if i := c.current(); i >= 0 {
		c.messages[i].Urgency = meta.Urgency
		c.messages[i].Stage = meta.Stage
		c.messages[i].Data = meta.Data
	}
	if meta.Stage == models.StageEmergency {
		c.locked = true
	}
}

// FailTurn replaces the in-progress message content with a failure notice
// and forces urgency High. Used for transport failures only.
func (c *Conversation) FailTurn(notice string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.current(); i >= 0 {
		c.messages[i].Content = notice
		c.messages[i].Urgency = models.UrgencyHigh
	}
}

// Finalize freezes the turn. A turn with zero deltas and no metadata
// finalizes with an empty assistant message, which is valid. Only a
// finalized session is eligible for durable upsert.
func (c *Conversation) Finalize() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateFinalized
	c.currentID = ""
}

// current returns the index of the in-progress assistant message, or -1.
// Caller must hold mu.
func (c *Conversation) current() int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == c.currentID {
			return i
		}
	}
	return -1
}

// SessionID returns the owning session id.
func (c *Conversation) SessionID() string {
	return c.sessionID
}

// State returns the current turn state.
func (c *Conversation) State() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight reports whether a turn is currently streaming.
func (c *Conversation) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAwaitingFirstDelta || c.state == StateStreaming
}

// EmergencyLocked reports the sticky emergency flag.
func (c *Conversation) EmergencyLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// Messages returns a deep snapshot of the message log.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CloneMessages(c.messages)
}

// Len returns the number of messages in the log.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
