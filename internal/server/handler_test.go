package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/triage-go/internal/models"
	"github.com/raphaelgruber/triage-go/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeModel replays scripted chunks and records the messages it was
// asked to generate from.
type fakeModel struct {
	chunks []string
	err    error
	got    []llms.MessageContent
}

func (f *fakeModel) Stream(_ context.Context, messages []llms.MessageContent, fn func(chunk []byte) error) error {
	f.got = messages
	for _, c := range f.chunks {
		if err := fn([]byte(c)); err != nil {
			return err
		}
	}
	return f.err
}

func newTestHandler(model Generator) *Handler {
	return NewHandler(model, NewRateLimiter(100, time.Minute), nil, testLogger())
}

func postChat(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:52000"
	rec := httptest.NewRecorder()
	h.ChatStream(rec, req)
	return rec
}

// splitFrame separates the visible text from the metadata frame.
func splitFrame(t *testing.T, body string) (string, *stream.Metadata) {
	t.Helper()
	frame := "\n" + stream.Sentinel
	i := strings.Index(body, frame)
	if i < 0 {
		return body, nil
	}
	var meta stream.Metadata
	require.NoError(t, json.Unmarshal([]byte(body[i+len(frame):]), &meta))
	return body[:i], &meta
}

func TestChatStream_SuppressesTrailingJSON(t *testing.T) {
	model := &fakeModel{chunks: []string{
		"Rest and drink fluids. ",
		"See a doctor if it lasts.\n",
		`{"urgency": "Low", `,
		`"stage": "advice", "data": null}`,
	}}
	h := newTestHandler(model)

	rec := postChat(t, h, `{"message": "mild sore throat", "session_id": "s1", "mode": "quick_triage"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	text, meta := splitFrame(t, rec.Body.String())
	assert.Equal(t, "Rest and drink fluids. See a doctor if it lasts.\n", text)
	require.NotNil(t, meta)
	assert.Equal(t, models.UrgencyLow, meta.Urgency)
	assert.Equal(t, "advice", meta.Stage)
	assert.NotContains(t, text, "{", "raw JSON must never reach the client as text")
}

func TestChatStream_MalformedModelJSONFallsBack(t *testing.T) {
	model := &fakeModel{chunks: []string{"Some advice.\n", "{broken json"}}
	h := newTestHandler(model)

	rec := postChat(t, h, `{"message": "hi", "session_id": "s1", "mode": "quick_triage"}`)

	text, meta := splitFrame(t, rec.Body.String())
	assert.Equal(t, "Some advice.\n", text)
	require.NotNil(t, meta)
	assert.Equal(t, models.UrgencyModerate, meta.Urgency)
	assert.Equal(t, "triage", meta.Stage)
}

func TestChatStream_MissingJSONFallsBack(t *testing.T) {
	model := &fakeModel{chunks: []string{"Plain answer without the block."}}
	h := newTestHandler(model)

	rec := postChat(t, h, `{"message": "hi", "session_id": "s1", "mode": "quick_triage"}`)

	_, meta := splitFrame(t, rec.Body.String())
	require.NotNil(t, meta)
	assert.Equal(t, models.UrgencyModerate, meta.Urgency)
}

func TestChatStream_RejectsEmptyMessage(t *testing.T) {
	h := newTestHandler(&fakeModel{})

	rec := postChat(t, h, `{"message": "   ", "session_id": "s1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postChat(t, h, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatStream_RateLimited(t *testing.T) {
	model := &fakeModel{chunks: []string{"ok"}}
	h := NewHandler(model, NewRateLimiter(1, time.Minute), nil, testLogger())

	first := postChat(t, h, `{"message": "hi", "session_id": "s1"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := postChat(t, h, `{"message": "again", "session_id": "s1"}`)
	require.Equal(t, http.StatusOK, second.Code)

	text, meta := splitFrame(t, second.Body.String())
	assert.Equal(t, rateLimitNotice, text)
	require.NotNil(t, meta)
	assert.Equal(t, models.UrgencyLow, meta.Urgency)
}

func TestChatStream_HistoryReplayedToModel(t *testing.T) {
	model := &fakeModel{chunks: []string{"Answer one."}}
	h := newTestHandler(model)

	postChat(t, h, `{"message": "first question", "session_id": "s1", "mode": "quick_triage"}`)
	postChat(t, h, `{"message": "second question", "session_id": "s1", "mode": "quick_triage"}`)

	// system + prior user/assistant exchange + current user message
	require.Len(t, model.got, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.got[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.got[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.got[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.got[3].Role)
}

func TestChatStream_SessionsDoNotShareHistory(t *testing.T) {
	model := &fakeModel{chunks: []string{"Answer."}}
	h := newTestHandler(model)

	postChat(t, h, `{"message": "question in s1", "session_id": "s1", "mode": "quick_triage"}`)
	postChat(t, h, `{"message": "question in s2", "session_id": "s2", "mode": "quick_triage"}`)

	// Fresh session: system + current user message only.
	assert.Len(t, model.got, 2)
}

func TestChatStream_GenerationFailureBeforeOutput(t *testing.T) {
	model := &fakeModel{err: assert.AnError}
	h := newTestHandler(model)

	rec := postChat(t, h, `{"message": "hi", "session_id": "s1"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&fakeModel{})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestParseModelMetadata_TrailingCommentary(t *testing.T) {
	meta := parseModelMetadata(`{"urgency": "High", "stage": "emergency", "data": null} Stay safe!`)
	assert.Equal(t, models.UrgencyHigh, meta.Urgency)
	assert.Equal(t, "emergency", meta.Stage)
}

func TestParseModelMetadata_InvalidUrgencyNormalized(t *testing.T) {
	meta := parseModelMetadata(`{"urgency": "CRITICAL", "stage": "advice", "data": null}`)
	assert.Equal(t, models.UrgencyModerate, meta.Urgency)
	assert.Equal(t, "advice", meta.Stage)
}
