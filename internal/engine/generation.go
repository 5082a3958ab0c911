package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/triage-go/internal/metrics"
	"github.com/raphaelgruber/triage-go/internal/models"
	"github.com/raphaelgruber/triage-go/internal/store"
	"github.com/raphaelgruber/triage-go/internal/stream"
	"github.com/raphaelgruber/triage-go/internal/transport"
)

// TransportFailureNotice replaces the assistant message when the stream
// fails for transport reasons. The wording is fixed.
const TransportFailureNotice = "I'm having trouble connecting to the server. Please check your connection."

// Streamer opens the single outbound stream for one turn.
// *transport.Client satisfies this.
type Streamer interface {
	Stream(ctx context.Context, req transport.ChatRequest) (io.ReadCloser, error)
}

// Controller owns at most one in-flight generation. A second Start while
// one is live is rejected with ErrBusy, never queued.
type Controller struct {
	streamer  Streamer
	store     *store.Store
	collector *metrics.Collector
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// notify is invoked after every state change the UI should repaint
	// for. May be nil.
	notify func()
}

// NewController creates a generation controller. store may be nil to skip
// persistence; collector may be nil to disable metrics.
func NewController(streamer Streamer, st *store.Store, collector *metrics.Collector, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		streamer:  streamer,
		store:     st,
		collector: collector,
		logger:    logger,
	}
}

// SetNotify registers a repaint callback. Must be set before Start.
func (g *Controller) SetNotify(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notify = fn
}

// Start begins a generation turn: appends the user message, opens the
// stream and pumps events into the conversation until the stream ends.
// Returns once the turn is accepted; the pump runs in the background.
func (g *Controller) Start(ctx context.Context, conv *Conversation, userText string, image *models.Attachment, mode string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		return ErrBusy
	}

	assistantID, err := conv.BeginTurn(userText, image)
	if err != nil {
		return err
	}

	req := transport.ChatRequest{
		Message:   userText,
		SessionID: conv.SessionID(),
		Mode:      mode,
	}
	if image != nil {
		encoded := base64.StdEncoding.EncodeToString(image.Data)
		req.Image = &encoded
		req.MimeType = &image.MimeType
	}

	genCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})

	go g.pump(genCtx, conv, assistantID, req, g.done)
	return nil
}

// Cancel aborts the in-flight generation. The partial response is kept
// and the turn finalizes cleanly; no failure notice is shown.
func (g *Controller) Cancel() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel == nil {
		return ErrNoGeneration
	}
	g.cancel()
	return nil
}

// InFlight reports whether a generation is live.
func (g *Controller) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancel != nil
}

// Done returns a channel closed when the current pump exits, or nil when
// nothing is in flight.
func (g *Controller) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

// pump drives one stream to completion and finalizes the turn on every
// exit path.
func (g *Controller) pump(ctx context.Context, conv *Conversation, assistantID string, req transport.ChatRequest, done chan struct{}) {
	start := time.Now()
	var deltas, bytes int64

	defer func() {
		conv.Finalize()
		g.persist(conv)

		g.mu.Lock()
		if g.cancel != nil {
			g.cancel()
			g.cancel = nil
			g.done = nil
		}
		notify := g.notify
		g.mu.Unlock()

		if g.collector != nil {
			g.collector.RecordStream(metrics.OpGeneration, time.Since(start), deltas, bytes)
		}
		if notify != nil {
			notify()
		}
		close(done)
	}()

	body, err := g.streamer.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			g.logger.Info("generation cancelled before stream opened", "session", conv.SessionID())
			return
		}
		g.logger.Error("stream open failed", "session", conv.SessionID(), "error", err)
		conv.FailTurn(TransportFailureNotice)
		g.emit()
		return
	}
	defer body.Close()

	dec := stream.NewDecoder(body)
	for {
		ev, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			// A cancelled context surfaces as a read error on the body.
			if ctx.Err() != nil {
				g.logger.Info("generation cancelled", "session", conv.SessionID(), "deltas", deltas)
				return
			}
			g.logger.Error("stream failed mid-flight", "session", conv.SessionID(), "error", err)
			conv.FailTurn(TransportFailureNotice)
			g.emit()
			return
		}

		switch ev.Type {
		case stream.EventTextDelta:
			deltas++
			bytes += int64(len(ev.Text))
			conv.ApplyDelta(assistantID, ev.Text)
		case stream.EventFinalMetadata:
			conv.ApplyMetadata(assistantID, ev.Meta)
		}
		g.emit()
	}
}

// emit invokes the repaint callback if one is registered.
func (g *Controller) emit() {
	g.mu.Lock()
	notify := g.notify
	g.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// persist upserts the finalized session snapshot. A session with no
// messages is never persisted.
func (g *Controller) persist(conv *Conversation) {
	if g.store == nil || conv.Len() == 0 {
		return
	}

	msgs := conv.Messages()
	sess := models.Session{
		ID:        conv.SessionID(),
		Messages:  msgs,
		Timestamp: time.Now(),
	}
	sess.Title = models.DeriveTitle(sess.FirstUserText())

	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()

	if err := g.store.Upsert(ctx, sess); err != nil {
		g.logger.Error("session upsert failed", "session", sess.ID, "error", err)
	}
}
