// Package models defines data structures for triage chat sessions.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Urgency is the triage urgency level attached to an assistant message.
// The empty string means "not yet assessed".
type Urgency string

const (
	UrgencyLow      Urgency = "Low"
	UrgencyModerate Urgency = "Moderate"
	UrgencyHigh     Urgency = "High"
)

// Valid reports whether u is one of the three known urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyModerate, UrgencyHigh:
		return true
	}
	return false
}

// StageEmergency is the conversation stage that locks a session.
const StageEmergency = "emergency"

// PayloadHospitalList tags a structured payload carrying hospital records.
const PayloadHospitalList = "hospital_list"

// Hospital is one facility record in a hospital_list payload.
type Hospital struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	MapsQuery string `json:"maps_query"`
}

// Payload is tagged structured data attached to an assistant message.
type Payload struct {
	Type      string     `json:"type"`
	Hospitals []Hospital `json:"hospitals,omitempty"`
}

// Attachment is an image attached to a user message.
type Attachment struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

// Message is a single chat message within a session. A message is mutable
// only while it is the in-progress assistant message of an active turn.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Urgency   Urgency     `json:"urgency,omitempty"`
	Stage     string      `json:"stage,omitempty"`
	Image     *Attachment `json:"image,omitempty"`
	Data      *Payload    `json:"data,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Image != nil {
		img := *m.Image
		img.Data = append([]byte(nil), m.Image.Data...)
		out.Image = &img
	}
	if m.Data != nil {
		data := *m.Data
		data.Hospitals = append([]Hospital(nil), m.Data.Hospitals...)
		out.Data = &data
	}
	return out
}

// NewID returns a fresh opaque message/session identifier.
func NewID() string {
	return uuid.NewString()
}
