package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/triage-go/internal/metrics"
	"github.com/raphaelgruber/triage-go/internal/models"
	"github.com/raphaelgruber/triage-go/internal/stream"
	"github.com/raphaelgruber/triage-go/internal/transport"
)

// rateLimitNotice is streamed instead of a model answer when a client
// exceeds the request limit.
const rateLimitNotice = "You're sending messages too quickly. Please wait a moment before trying again."

// Generator streams a model response chunk by chunk. *Model satisfies
// this.
type Generator interface {
	Stream(ctx context.Context, messages []llms.MessageContent, fn func(chunk []byte) error) error
}

// Handler serves the chat endpoints.
type Handler struct {
	model     Generator
	limiter   *RateLimiter
	history   *History
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewHandler creates the chat handler.
func NewHandler(model Generator, limiter *RateLimiter, collector *metrics.Collector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		model:     model,
		limiter:   limiter,
		history:   NewHistory(),
		collector: collector,
		logger:    logger,
	}
}

// Health reports server liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ChatStream handles one streaming chat turn: plain text chunks followed
// by the in-band metadata frame.
func (h *Handler) ChatStream(w http.ResponseWriter, r *http.Request) {
	var req transport.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	if !h.limiter.Allow(clientKey(r)) {
		h.logger.Warn("rate limit exceeded", "client", clientKey(r), "session", req.SessionID)
		_, _ = w.Write([]byte(rateLimitNotice))
		writeMetadata(w, stream.Metadata{Urgency: models.UrgencyLow, Stage: "triage"})
		flusher.Flush()
		return
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt(req.Mode)),
	}
	messages = append(messages, h.history.Messages(req.SessionID)...)
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: userParts(req),
	})

	start := time.Now()
	var chunks, bytes int64
	var visible strings.Builder    // answer text forwarded to the client
	var suppressed strings.Builder // model output held back from the first brace on
	inJSON := false

	err := h.model.Stream(r.Context(), messages, func(chunk []byte) error {
		chunks++
		bytes += int64(len(chunk))

		s := string(chunk)
		if inJSON {
			suppressed.WriteString(s)
			return nil
		}

		// The trailing machine-readable block must never reach the
		// client as text, so forwarding stops at the first brace.
		if i := strings.IndexByte(s, '{'); i >= 0 {
			inJSON = true
			if i > 0 {
				visible.WriteString(s[:i])
				if _, err := w.Write([]byte(s[:i])); err != nil {
					return err
				}
			}
			suppressed.WriteString(s[i:])
			flusher.Flush()
			return nil
		}

		visible.WriteString(s)
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	if err != nil {
		if visible.Len() == 0 && !inJSON {
			h.logger.Error("generation failed", "session", req.SessionID, "error", err)
			writeError(w, http.StatusBadGateway, "generation failed")
			return
		}
		h.logger.Error("generation failed mid-stream", "session", req.SessionID, "error", err)
	}

	writeMetadata(w, parseModelMetadata(suppressed.String()))
	flusher.Flush()

	h.history.Record(req.SessionID, req.Message, strings.TrimSpace(visible.String()))
	if h.collector != nil {
		h.collector.RecordStream(metrics.OpLLMStream, time.Since(start), chunks, bytes)
	}
}

// userParts builds the content parts for the current user message,
// attaching the image when one was sent.
func userParts(req transport.ChatRequest) []llms.ContentPart {
	parts := []llms.ContentPart{llms.TextPart(req.Message)}
	if req.Image != nil && req.MimeType != nil {
		if data, err := base64.StdEncoding.DecodeString(*req.Image); err == nil {
			parts = append(parts, llms.BinaryPart(*req.MimeType, data))
		}
	}
	return parts
}

// parseModelMetadata decodes the suppressed trailing JSON block. A block
// that fails to parse degrades to a neutral moderate-urgency result.
func parseModelMetadata(raw string) stream.Metadata {
	fallback := stream.Metadata{Urgency: models.UrgencyModerate, Stage: "triage"}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var meta stream.Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		// Models sometimes trail the object with commentary; retry on
		// the outermost braces.
		first := strings.IndexByte(raw, '{')
		last := strings.LastIndexByte(raw, '}')
		if first < 0 || last <= first {
			return fallback
		}
		if err := json.Unmarshal([]byte(raw[first:last+1]), &meta); err != nil {
			return fallback
		}
	}

	if !meta.Urgency.Valid() {
		meta.Urgency = models.UrgencyModerate
	}
	if meta.Stage == "" {
		meta.Stage = "triage"
	}
	return meta
}

// writeMetadata emits the in-band metadata frame.
func writeMetadata(w http.ResponseWriter, meta stream.Metadata) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("\n" + stream.Sentinel + string(payload)))
}

// clientKey identifies a client for rate limiting by its remote host.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeError sends a JSON error response.
func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
