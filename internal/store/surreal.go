package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/raphaelgruber/triage-go/internal/models"
)

func init() {
	// Force HTTP/1.1 for WSS connections to prevent HTTP/2 ALPN negotiation.
	// WebSocket upgrade requires HTTP/1.1 semantics which fail under HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// SurrealConfig holds SurrealDB connection configuration.
type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// schemaSQL initializes the session table.
const schemaSQL = `
    DEFINE TABLE IF NOT EXISTS session SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON session TYPE string;
    DEFINE FIELD IF NOT EXISTS messages ON session TYPE array<object> FLEXIBLE;
    -- Note: Must REMOVE then DEFINE to ensure FLEXIBLE is set (IF NOT EXISTS won't update existing field)
    REMOVE FIELD IF EXISTS messages.* ON session;
    DEFINE FIELD messages.* ON session TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS timestamp ON session TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS session_timestamp ON session FIELDS timestamp;
`

// sessionRecord is the wire shape of a session row.
type sessionRecord struct {
	ID        surrealmodels.RecordID `json:"id"`
	Title     string                 `json:"title"`
	Messages  []models.Message       `json:"messages"`
	Timestamp time.Time              `json:"timestamp"`
}

// SurrealBackend persists sessions in SurrealDB over an auto-reconnecting
// WebSocket connection.
type SurrealBackend struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	logger logger.Logger
}

// NewSurrealBackend connects, authenticates and initializes the schema.
func NewSurrealBackend(ctx context.Context, cfg SurrealConfig, log *slog.Logger) (*SurrealBackend, error) {
	var sdkLogger logger.Logger
	if log != nil {
		sdkLogger = logger.New(log.Handler())
	} else {
		sdkLogger = logger.New(slog.Default().Handler())
	}

	// surrealcbor handles SurrealDB custom CBOR tags
	codec := surrealcbor.New()

	// gorillaws requires ws:// or wss:// URL without /rpc suffix (it adds /rpc internally)
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			ws := gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			})
			return ws, nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	if cfg.AuthLevel == "database" {
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Namespace: cfg.Namespace,
			Database:  cfg.Database,
			Username:  cfg.Username,
			Password:  cfg.Password,
		})
	} else {
		// Default to root auth
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	if _, err := surrealdb.Query[any](ctx, db, schemaSQL, nil); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("init schema: %w", err)
	}

	sdkLogger.Info("SurrealDB connection established")
	return &SurrealBackend{conn: conn, db: db, logger: sdkLogger}, nil
}

// Save upserts the session row.
func (b *SurrealBackend) Save(ctx context.Context, s models.Session) error {
	_, err := surrealdb.Query[any](ctx, b.db, `
		UPSERT type::record("session", $id) SET
			title = $title,
			messages = $messages,
			timestamp = $timestamp
	`, map[string]any{
		"id":        s.ID,
		"title":     s.Title,
		"messages":  s.Messages,
		"timestamp": s.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadAll returns all sessions, newest first.
func (b *SurrealBackend) LoadAll(ctx context.Context) ([]models.Session, error) {
	results, err := surrealdb.Query[[]sessionRecord](ctx, b.db, `
		SELECT * FROM session ORDER BY timestamp DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Session{}, nil
	}

	records := (*results)[0].Result
	out := make([]models.Session, 0, len(records))
	for _, r := range records {
		id, err := recordIDString(r.ID)
		if err != nil {
			return nil, fmt.Errorf("load sessions: %w", err)
		}
		out = append(out, models.Session{
			ID:        id,
			Title:     r.Title,
			Messages:  r.Messages,
			Timestamp: r.Timestamp,
		})
	}
	return out, nil
}

// Delete removes a session row.
func (b *SurrealBackend) Delete(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, b.db, `
		DELETE type::record("session", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (b *SurrealBackend) Close(ctx context.Context) error {
	b.logger.Info("closing SurrealDB connection")
	return b.conn.Close(ctx)
}

// recordIDString safely extracts the string ID from a SurrealDB RecordID.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}
