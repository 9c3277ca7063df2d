package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/statestack/pkg/domain"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.AgentID]domain.StackSnapshot
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.AgentID]domain.StackSnapshot),
	}
}

// Publish stores a copy of the snapshot.
func (s *Store) Publish(ctx context.Context, snap domain.StackSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snap.AgentID] = clone(snap)
	return nil
}

// Get returns a copy so callers cannot mutate the stored snapshot.
func (s *Store) Get(ctx context.Context, agent domain.AgentID) (domain.StackSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[agent]
	if !ok {
		return domain.StackSnapshot{}, domain.ErrSnapshotNotFound
	}
	return clone(snap), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, agent domain.AgentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, agent)
	return nil
}

// List returns the published agents in lexical order.
func (s *Store) List(ctx context.Context) ([]domain.AgentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]domain.AgentID, 0, len(s.data))
	for id := range s.data {
		agents = append(agents, id)
	}
	slices.Sort(agents)
	return agents, nil
}

func clone(snap domain.StackSnapshot) domain.StackSnapshot {
	out := snap
	out.Entries = make([]domain.InstanceSnapshot, len(snap.Entries))
	for i, e := range snap.Entries {
		e.Tags = slices.Clone(e.Tags)
		out.Entries[i] = e
	}
	return out
}
