// Package store manages the session history: an ordered in-memory index
// with optional write-through persistence.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/triage-go/internal/metrics"
	"github.com/raphaelgruber/triage-go/internal/models"
)

// Backend persists session records. LoadAll returns sessions ordered by
// timestamp descending; runtime ordering after that is owned by the Store.
type Backend interface {
	Save(ctx context.Context, s models.Session) error
	LoadAll(ctx context.Context) ([]models.Session, error)
	Delete(ctx context.Context, id string) error
	Close(ctx context.Context) error
}

// Summary is a list entry for the session history view.
type Summary struct {
	ID        string
	Title     string
	Timestamp time.Time
	Messages  int
	Emergency bool
}

// Store holds all known sessions. Updating an existing session keeps its
// position in the list; a new session is inserted at the front.
type Store struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]models.Session
	backend Backend

	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates a store. backend may be nil for purely in-memory use;
// collector may be nil to disable metrics.
func New(backend Backend, collector *metrics.Collector, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		byID:      make(map[string]models.Session),
		backend:   backend,
		collector: collector,
		logger:    logger,
	}
}

// Load populates the index from the backend. Ordering follows the
// backend's timestamp-descending result. No-op without a backend.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	sessions, err := s.backend.LoadAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.byID = make(map[string]models.Session, len(sessions))
	for _, sess := range sessions {
		s.order = append(s.order, sess.ID)
		s.byID[sess.ID] = sess.Clone()
	}

	s.logger.Info("session history loaded", "count", len(sessions))
	return nil
}

// Upsert stores a session snapshot. An unknown id is inserted at the
// front of the list; a known id is updated in place. The snapshot is
// written through to the backend when one is configured.
func (s *Store) Upsert(ctx context.Context, sess models.Session) error {
	start := time.Now()

	s.mu.Lock()
	if _, ok := s.byID[sess.ID]; !ok {
		s.order = append([]string{sess.ID}, s.order...)
	}
	s.byID[sess.ID] = sess.Clone()
	s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.Save(ctx, sess); err != nil {
			return err
		}
	}

	if s.collector != nil {
		s.collector.RecordTiming(metrics.OpStoreUpsert, time.Since(start))
	}
	return nil
}

// List returns session summaries in display order.
func (s *Store) List() []Summary {
	start := time.Now()

	s.mu.RLock()
	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		sess := s.byID[id]
		out = append(out, Summary{
			ID:        sess.ID,
			Title:     sess.Title,
			Timestamp: sess.Timestamp,
			Messages:  len(sess.Messages),
			Emergency: sess.EmergencyLocked(),
		})
	}
	s.mu.RUnlock()

	if s.collector != nil {
		s.collector.RecordTiming(metrics.OpStoreList, time.Since(start))
	}
	return out
}

// Get returns a deep snapshot of a session, so later stream deltas
// cannot mutate what a caller already loaded.
func (s *Store) Get(id string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.byID[id]
	if !ok {
		return models.Session{}, false
	}
	return sess.Clone(), true
}

// Delete removes a session from the index and the backend.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.byID[id]; ok {
		delete(s.byID, id)
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if s.backend != nil {
		return s.backend.Delete(ctx, id)
	}
	return nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Close releases the backend connection, if any.
func (s *Store) Close(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close(ctx)
}
