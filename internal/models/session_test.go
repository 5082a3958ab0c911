package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "short text kept as is",
			input: "mild headache",
			want:  "mild headache",
		},
		{
			name:  "exactly thirty runes kept as is",
			input: "123456789012345678901234567890",
			want:  "123456789012345678901234567890",
		},
		{
			name:  "long text truncated with ellipsis",
			input: "persistent cough with mild fever for three days",
			want:  "persistent cough with mild fev...",
		},
		{
			name:  "truncation counts runes not bytes",
			input: "Kopfschmerzen überall im Körper seit gestern Abend",
			want:  "Kopfschmerzen überall im Körpe...",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.input))
		})
	}
}

func TestSession_EmergencyLocked(t *testing.T) {
	s := Session{Messages: []Message{
		{Role: RoleUser, Content: "chest pain"},
		{Role: RoleAssistant, Content: "ok", Stage: "advice"},
	}}
	assert.False(t, s.EmergencyLocked())

	s.Messages = append(s.Messages, Message{Role: RoleAssistant, Stage: StageEmergency})
	assert.True(t, s.EmergencyLocked())
}

func TestSession_CloneIsDeep(t *testing.T) {
	img := &Attachment{Data: []byte{1, 2, 3}, MimeType: "image/png"}
	payload := &Payload{Type: PayloadHospitalList, Hospitals: []Hospital{{Name: "City General"}}}

	s := Session{
		ID:        "s1",
		Title:     "t",
		Timestamp: time.Now(),
		Messages: []Message{
			{ID: "m1", Role: RoleUser, Content: "hi", Image: img},
			{ID: "m2", Role: RoleAssistant, Content: "hello", Data: payload},
		},
	}

	c := s.Clone()
	c.Messages[0].Content = "mutated"
	c.Messages[0].Image.Data[0] = 99
	c.Messages[1].Data.Hospitals[0].Name = "Other"

	assert.Equal(t, "hi", s.Messages[0].Content)
	assert.Equal(t, byte(1), s.Messages[0].Image.Data[0])
	assert.Equal(t, "City General", s.Messages[1].Data.Hospitals[0].Name)
}

func TestSession_FirstUserText(t *testing.T) {
	s := Session{Messages: []Message{
		{Role: RoleAssistant, Content: "welcome"},
		{Role: RoleUser, Content: "  my symptoms  "},
		{Role: RoleUser, Content: "second"},
	}}
	assert.Equal(t, "my symptoms", s.FirstUserText())

	assert.Empty(t, Session{}.FirstUserText())
}

func TestUrgency_Valid(t *testing.T) {
	assert.True(t, UrgencyLow.Valid())
	assert.True(t, UrgencyModerate.Valid())
	assert.True(t, UrgencyHigh.Valid())
	assert.False(t, Urgency("Critical").Valid())
	assert.False(t, Urgency("").Valid())
}
