package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/triage-go/internal/engine"
	"github.com/raphaelgruber/triage-go/internal/models"
	"github.com/raphaelgruber/triage-go/internal/store"
	"github.com/raphaelgruber/triage-go/internal/transport"
	"github.com/raphaelgruber/triage-go/internal/voice"
)

var (
	chatSessionID string
	chatMode      string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive triage chat",
	Long: `Start an interactive triage chat session.

While chatting:
  enter        send the message
  esc          stop the current response
  ctrl+v       toggle voice capture (requires a speech gateway)
  ctrl+n       start a new session (also unlocks after an emergency)
  ctrl+c       quit
  /new         start a new session
  /mode <m>    switch mode (quick_triage, detailed_explanation, hospital_search)
  /image <p>   attach an image file to the next message

Examples:
  triage chat
  triage chat --mode hospital_search
  triage chat --session 2f1c...`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "resume an existing session by id or unique prefix")
	chatCmd.Flags().StringVarP(&chatMode, "mode", "m", "", "triage mode")
}

func runChat(cmd *cobra.Command, args []string) error {
	if err := requireTTY(); err != nil {
		return err
	}

	ctx := context.Background()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	var conv *engine.Conversation
	if chatSessionID != "" {
		id, err := resolveSessionID(st, chatSessionID)
		if err != nil {
			return err
		}
		sess, ok := st.Get(id)
		if !ok {
			return fmt.Errorf("unknown session: %s", chatSessionID)
		}
		conv = engine.Restore(sess)
	} else {
		conv = engine.NewConversation(models.NewID())
	}

	mode := cfg.Mode
	if chatMode != "" {
		mode = chatMode
	}

	client := transport.New(cfg.ServerURL)
	gen := engine.NewController(client, st, collector, logger)

	// The gateway doubles as recognizer and level sampler; both are nil
	// when no gateway is configured and the mic key reports unsupported.
	var rec voice.Recognizer
	var sampler voice.LevelSampler
	if gw := voice.NewGateway(cfg.SpeechGatewayURL); gw != nil {
		rec = gw
		sampler = gw
	}
	capture := voice.NewController(rec, sampler, voice.Options{}, collector, logger)

	return runChatUI(ctx, conv, gen, capture, mode)
}

// openStore builds the session store, persistent when SurrealDB is
// configured and in-memory otherwise.
func openStore(ctx context.Context) (*store.Store, error) {
	var backend store.Backend
	if cfg.SurrealDBURL != "" {
		sb, err := store.NewSurrealBackend(ctx, store.SurrealConfig{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		backend = sb
	} else {
		backend = store.NewMemoryBackend()
	}

	st := store.New(backend, collector, logger)
	if err := st.Load(ctx); err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}
	return st, nil
}
