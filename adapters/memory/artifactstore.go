package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hoaworks/metergate/domain/artifact"
	"github.com/hoaworks/metergate/ports"
)

// ArtifactStore is an in-memory implementation of ports.ArtifactStore.
type ArtifactStore struct {
	mu        sync.RWMutex
	artifacts map[string]artifact.Artifact // by ID
}

// NewArtifactStore creates a new in-memory artifact store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{artifacts: make(map[string]artifact.Artifact)}
}

// Create stores a new artifact.
func (s *ArtifactStore) Create(ctx context.Context, a artifact.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[a.ID]; exists {
		return ports.ErrDuplicate
	}
	s.artifacts[a.ID] = a
	return nil
}

// Get retrieves an artifact by ID.
func (s *ArtifactStore) Get(ctx context.Context, id string) (artifact.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[id]
	if !ok {
		return artifact.Artifact{}, ports.ErrNotFound
	}
	return a, nil
}

// UpdateStatus moves an artifact along its lifecycle, rejecting
// transitions the domain does not allow.
func (s *ArtifactStore) UpdateStatus(ctx context.Context, id string, status artifact.Status, resultURL string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return ports.ErrNotFound
	}
	if !artifact.CanTransition(a.Status, status) {
		return ports.ErrVersionConflict
	}

	a.Status = status
	if resultURL != "" {
		a.ResultURL = resultURL
	}
	a.UpdatedAt = at
	s.artifacts[id] = a
	return nil
}

// ListByAccount returns artifacts for an account, newest first.
func (s *ArtifactStore) ListByAccount(ctx context.Context, accountKey string, limit int) ([]artifact.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []artifact.Artifact
	for _, a := range s.artifacts {
		if a.AccountKey == accountKey {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Ensure interface compliance.
var _ ports.ArtifactStore = (*ArtifactStore)(nil)
