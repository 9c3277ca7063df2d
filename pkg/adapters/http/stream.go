package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/statestack/internal/logging"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/ports"
)

var _ ports.SnapshotPublisher = (*StreamManager)(nil)

// StreamManager fans published snapshots out to SSE subscribers.
type StreamManager struct {
	logger      *slog.Logger
	mu          sync.RWMutex
	subscribers map[domain.AgentID]map[chan<- string]struct{}
}

// NewStreamManager creates an empty manager. A nil logger discards.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		logger:      logger,
		subscribers: make(map[domain.AgentID]map[chan<- string]struct{}),
	}
}

// Subscribe registers a buffered channel for agent. The returned func unsubscribes and
// closes it.
func (sm *StreamManager) Subscribe(agent domain.AgentID) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[agent]; !ok {
		sm.subscribers[agent] = make(map[chan<- string]struct{})
	}
	sm.subscribers[agent][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[agent]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, agent)
			}
		}
	}
}

// Subscribers returns the number of open streams for agent.
func (sm *StreamManager) Subscribers(agent domain.AgentID) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[agent])
}

func (sm *StreamManager) Broadcast(agent domain.AgentID, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[agent] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "agent", string(agent))
		}
	}
}

// Publish implements ports.SnapshotPublisher.
func (sm *StreamManager) Publish(_ context.Context, snap domain.StackSnapshot) error {
	if sm.Subscribers(snap.AgentID) == 0 {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	sm.Broadcast(snap.AgentID, string(data))
	return nil
}
