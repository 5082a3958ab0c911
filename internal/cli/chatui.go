package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/triage-go/internal/engine"
	"github.com/raphaelgruber/triage-go/internal/models"
	"github.com/raphaelgruber/triage-go/internal/voice"
)

// chatTheme holds the color scheme for the chat display.
type chatTheme struct {
	User      lipgloss.Color
	Assistant lipgloss.Color
	Low       lipgloss.Color
	Moderate  lipgloss.Color
	High      lipgloss.Color
	Hint      lipgloss.Color
	Banner    lipgloss.Color
}

var defaultChatTheme = chatTheme{
	User:      lipgloss.Color("#5FAFD7"), // light blue
	Assistant: lipgloss.Color("#00D787"), // green
	Low:       lipgloss.Color("#00D787"), // green
	Moderate:  lipgloss.Color("#FFAF00"), // amber
	High:      lipgloss.Color("#FF005F"), // red
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
	Banner:    lipgloss.Color("#FF005F"), // red
}

func (t chatTheme) userStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.User).Bold(true)
}

func (t chatTheme) assistantStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Assistant).Bold(true)
}

func (t chatTheme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t chatTheme) bannerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(t.Banner).Bold(true).Padding(0, 1)
}

func (t chatTheme) urgencyStyle(u models.Urgency) lipgloss.Style {
	switch u {
	case models.UrgencyHigh:
		return lipgloss.NewStyle().Foreground(t.High).Bold(true)
	case models.UrgencyModerate:
		return lipgloss.NewStyle().Foreground(t.Moderate).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(t.Low).Bold(true)
	}
}

// refreshMsg asks the UI to repaint after engine or voice state changed.
type refreshMsg struct{}

// voiceStartedMsg reports the outcome of acquiring the recognizer.
type voiceStartedMsg struct{ err error }

// chatModel is the bubbletea model for the triage chat.
type chatModel struct {
	ctx     context.Context
	conv    *engine.Conversation
	gen     *engine.Controller
	capture *voice.Controller

	mode         string
	pendingImage *models.Attachment
	input        textinput.Model
	theme        chatTheme
	status       string
	width        int
	height       int
	quitting     bool
}

func newChatModel(ctx context.Context, conv *engine.Conversation, gen *engine.Controller, capture *voice.Controller, mode string) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Describe your symptoms..."
	ti.Focus()

	return chatModel{
		ctx:     ctx,
		conv:    conv,
		gen:     gen,
		capture: capture,
		mode:    mode,
		input:   ti,
		theme:   defaultChatTheme,
		width:   80,
		height:  24,
	}
}

// Init returns the initial command.
func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "esc":
			if err := m.gen.Cancel(); err == nil {
				m.status = "Response stopped."
			}
			return m, nil

		case "ctrl+v":
			return m.toggleVoice()

		case "ctrl+n":
			return m.startNewSession()

		case "enter":
			return m.submit()
		}

	case refreshMsg:
		return m, nil

	case voiceStartedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Voice capture failed: %v", msg.err)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// toggleVoice starts capture when idle and otherwise stops it, draining
// the buffered transcripts into the input line.
func (m chatModel) toggleVoice() (tea.Model, tea.Cmd) {
	switch m.capture.Phase() {
	case voice.PhaseIdle, voice.PhaseError:
		m.status = ""
		return m, func() tea.Msg {
			return voiceStartedMsg{err: m.capture.Start(m.ctx)}
		}
	default:
		m.capture.Stop()
		m.appendToInput(m.capture.Drain())
		return m, nil
	}
}

// submit sends the composed input as a new turn, or runs a slash command.
func (m chatModel) submit() (tea.Model, tea.Cmd) {
	m.appendToInput(m.capture.Drain())
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	if strings.HasPrefix(text, "/") {
		m.input.SetValue("")
		return m.runCommand(text)
	}

	err := m.gen.Start(m.ctx, m.conv, text, m.pendingImage, m.mode)
	switch err {
	case nil:
		m.input.SetValue("")
		m.pendingImage = nil
		m.status = ""
	case engine.ErrBusy:
		m.status = "Please wait for the current response to finish."
	case engine.ErrEmergencyLocked:
		m.status = "This session is locked. Press ctrl+n to start a new session."
	default:
		m.status = fmt.Sprintf("Could not send: %v", err)
	}
	return m, nil
}

// runCommand executes a slash command.
func (m chatModel) runCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit":
		m.quitting = true
		return m, tea.Quit

	case "/new":
		return m.startNewSession()

	case "/mode":
		if len(fields) < 2 {
			m.status = "Usage: /mode <quick_triage|detailed_explanation|hospital_search>"
			return m, nil
		}
		m.mode = fields[1]
		m.status = fmt.Sprintf("Mode set to %s.", m.mode)
		return m, nil

	case "/image":
		if len(fields) < 2 {
			m.status = "Usage: /image <path>"
			return m, nil
		}
		att, err := loadImage(fields[1])
		if err != nil {
			m.status = fmt.Sprintf("Could not attach image: %v", err)
			return m, nil
		}
		m.pendingImage = att
		m.status = fmt.Sprintf("Image attached (%s). It is sent with your next message.", att.MimeType)
		return m, nil

	default:
		m.status = fmt.Sprintf("Unknown command: %s", fields[0])
		return m, nil
	}
}

// startNewSession swaps in a fresh conversation with a new id. This is
// the only way out of an emergency-locked session; the lock belongs to
// the old session and does not carry over. An in-flight generation is
// cancelled and still finalizes and persists against the old session.
func (m chatModel) startNewSession() (tea.Model, tea.Cmd) {
	if m.gen.InFlight() {
		_ = m.gen.Cancel()
	}
	m.conv = engine.NewConversation(models.NewID())
	m.pendingImage = nil
	m.status = "Started a new session."
	return m, nil
}

// appendToInput adds drained voice text to the input line.
func (m *chatModel) appendToInput(text string) {
	if text == "" {
		return
	}
	current := m.input.Value()
	if current == "" {
		m.input.SetValue(text)
	} else {
		m.input.SetValue(current + " " + text)
	}
	m.input.CursorEnd()
}

// View renders the chat display.
func (m chatModel) View() tea.View {
	v := tea.NewView(m.renderContent())
	v.AltScreen = true
	return v
}

func (m chatModel) renderContent() string {
	if m.quitting {
		return ""
	}

	header := m.theme.assistantStyle().Render("Triage") +
		m.theme.hintStyle().Render(fmt.Sprintf("  %s  session %.8s", m.mode, m.conv.SessionID()))

	body := m.renderMessages()

	var footer []string
	if m.conv.EmergencyLocked() {
		footer = append(footer,
			m.theme.bannerStyle().Render("EMERGENCY: call your local emergency number now"),
			m.theme.hintStyle().Render("This session is locked. Press ctrl+n to start a new session."),
		)
	} else {
		footer = append(footer, "> "+m.input.View())
	}

	if line := m.voiceLine(); line != "" {
		footer = append(footer, line)
	}
	if m.status != "" {
		footer = append(footer, m.theme.hintStyle().Render(m.status))
	}
	footer = append(footer, m.theme.hintStyle().Render("enter send · esc stop · ctrl+v voice · ctrl+n new · ctrl+c quit"))

	footerStr := strings.Join(footer, "\n")

	// Keep only the message lines that fit between header and footer.
	bodyLines := strings.Split(body, "\n")
	avail := m.height - 2 - strings.Count(footerStr, "\n") - 1
	if avail > 0 && len(bodyLines) > avail {
		bodyLines = bodyLines[len(bodyLines)-avail:]
	}

	return header + "\n\n" + strings.Join(bodyLines, "\n") + "\n" + footerStr
}

// renderMessages builds the transcript view.
func (m chatModel) renderMessages() string {
	wrap := lipgloss.NewStyle().Width(m.width)
	var b strings.Builder

	for _, msg := range m.conv.Messages() {
		switch msg.Role {
		case models.RoleUser:
			b.WriteString(m.theme.userStyle().Render("You"))
			if msg.Image != nil {
				b.WriteString(m.theme.hintStyle().Render("  [image]"))
			}
			b.WriteString("\n")
			b.WriteString(wrap.Render(msg.Content))

		case models.RoleAssistant:
			b.WriteString(m.theme.assistantStyle().Render("Triage"))
			if msg.Urgency != "" {
				badge := strings.ToUpper(string(msg.Urgency))
				b.WriteString("  " + m.theme.urgencyStyle(msg.Urgency).Render("["+badge+"]"))
			}
			b.WriteString("\n")

			content := msg.Content
			if content == "" && m.conv.InFlight() {
				content = m.theme.hintStyle().Render("...")
			}
			b.WriteString(wrap.Render(content))

			if msg.Data != nil && msg.Data.Type == models.PayloadHospitalList {
				b.WriteString("\n" + m.renderHospitals(msg.Data.Hospitals))
			}
		}
		b.WriteString("\n\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// renderHospitals formats a hospital recommendation list.
func (m chatModel) renderHospitals(hospitals []models.Hospital) string {
	var b strings.Builder
	for _, h := range hospitals {
		b.WriteString(fmt.Sprintf("  • %s (%s)\n", h.Name, h.Category))
		if h.MapsQuery != "" {
			b.WriteString(m.theme.hintStyle().Render("    maps: "+h.MapsQuery) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// voiceLine renders the capture status with a small energy meter.
func (m chatModel) voiceLine() string {
	switch m.capture.Phase() {
	case voice.PhaseRequesting:
		return m.theme.hintStyle().Render("mic: requesting...")
	case voice.PhaseListening:
		line := "mic: listening " + energyMeter(m.capture.Energy())
		if interim := m.capture.Interim(); interim != "" {
			line += m.theme.hintStyle().Render("  " + interim)
		}
		return line
	case voice.PhaseSilent:
		return "mic: " + m.theme.hintStyle().Render(voice.SilenceHint)
	case voice.PhaseError:
		if err := m.capture.Err(); err != nil {
			return m.theme.hintStyle().Render(fmt.Sprintf("mic: error: %v", err))
		}
		return m.theme.hintStyle().Render("mic: error")
	default:
		return ""
	}
}

// energyMeter renders a 10-cell bar for a 0..255 level.
func energyMeter(level int) string {
	const cells = 10
	filled := level * cells / 256
	return strings.Repeat("█", filled) + strings.Repeat("░", cells-filled)
}

// loadImage reads an image file into an attachment.
func loadImage(path string) (*models.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	mime := "image/jpeg"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		mime = "image/png"
	case ".gif":
		mime = "image/gif"
	case ".webp":
		mime = "image/webp"
	}

	return &models.Attachment{Data: data, MimeType: mime}, nil
}

// runChatUI wires the engine and voice controllers into the program and
// runs it until the user quits.
func runChatUI(ctx context.Context, conv *engine.Conversation, gen *engine.Controller, capture *voice.Controller, mode string) error {
	model := newChatModel(ctx, conv, gen, capture, mode)
	p := tea.NewProgram(model)

	gen.SetNotify(func() { p.Send(refreshMsg{}) })
	capture.SetNotify(func() { p.Send(refreshMsg{}) })

	_, err := p.Run()

	// Teardown order matters: stop voice first, then let an in-flight
	// generation finalize and persist before returning.
	capture.Stop()
	if done := gen.Done(); done != nil {
		_ = gen.Cancel()
		<-done
	}

	if err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
