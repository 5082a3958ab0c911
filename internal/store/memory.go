package store

import (
	"context"
	"sort"
	"sync"

	"github.com/raphaelgruber/triage-go/internal/models"
)

// MemoryBackend keeps sessions in process memory. Used when no database
// is configured and in tests.
type MemoryBackend struct {
	mu   sync.RWMutex
	byID map[string]models.Session
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{byID: make(map[string]models.Session)}
}

// Save stores a deep copy of the session.
func (b *MemoryBackend) Save(_ context.Context, s models.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byID[s.ID] = s.Clone()
	return nil
}

// LoadAll returns all sessions ordered by timestamp descending.
func (b *MemoryBackend) LoadAll(_ context.Context) ([]models.Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Session, 0, len(b.byID))
	for _, s := range b.byID {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byID, id)
	return nil
}

// Close is a no-op.
func (b *MemoryBackend) Close(_ context.Context) error {
	return nil
}
