package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Speech gateway message types.
const (
	gwTranscript = "transcript"
	gwEnergy     = "energy"
	gwError      = "error"
	gwEnd        = "end"
)

// gatewayMessage is one JSON frame from the speech gateway.
type gatewayMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Final   bool   `json:"final,omitempty"`
	Level   int    `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
}

// Gateway is a speech-to-text client over a WebSocket gateway that
// streams transcripts and microphone energy levels. It implements both
// Recognizer and LevelSampler.
type Gateway struct {
	endpoint string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	level  int
}

// NewGateway creates a gateway client. If endpoint is empty, uses the
// TRIAGE_SPEECH_GATEWAY_URL env var; returns nil when no gateway is
// configured, which callers treat as voice being unavailable.
func NewGateway(endpoint string) *Gateway {
	if endpoint == "" {
		endpoint = os.Getenv("TRIAGE_SPEECH_GATEWAY_URL")
	}
	if endpoint == "" {
		return nil
	}
	return &Gateway{endpoint: endpoint}
}

// Start connects to the gateway and begins streaming results. The
// returned channel closes when the gateway ends the stream or the
// connection drops.
func (g *Gateway) Start(ctx context.Context) (<-chan Result, error) {
	wsEndpoint := g.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	g.mu.Lock()
	g.conn = conn
	g.closed = false
	g.mu.Unlock()

	results := make(chan Result, 16)

	// Close the connection when the capture context ends so the read
	// loop unblocks.
	readerDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			g.closeConn()
		case <-readerDone:
		}
	}()

	go func() {
		defer close(readerDone)
		defer close(results)
		defer g.closeConn()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				g.mu.Lock()
				wasClosed := g.closed
				g.mu.Unlock()
				if !wasClosed && ctx.Err() == nil {
					results <- Result{Err: fmt.Errorf("gateway read: %w", err)}
				}
				return
			}

			var msg gatewayMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				// Skip unparseable frames.
				continue
			}

			switch msg.Type {
			case gwTranscript:
				results <- Result{Transcript: msg.Text, Final: msg.Final}
			case gwEnergy:
				g.mu.Lock()
				g.level = msg.Level
				g.mu.Unlock()
			case gwError:
				results <- Result{Err: fmt.Errorf("gateway: %s", msg.Message)}
				return
			case gwEnd:
				return
			}
		}
	}()

	return results, nil
}

// Stop closes the gateway connection.
func (g *Gateway) Stop() {
	g.closeConn()
}

// Level returns the last reported microphone energy, 0..255.
func (g *Gateway) Level() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

func (g *Gateway) closeConn() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil && !g.closed {
		g.closed = true
		g.conn.Close()
	}
}
