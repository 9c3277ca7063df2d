package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/statestack/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "statestack:snapshot:"

// Store implements ports.SnapshotStore using Redis, so debug overlays running in other
// processes can follow live stacks.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration of published snapshots. A world that stops publishing
// lets its agents disappear from readers after ttl.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client returns the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(agent domain.AgentID) string {
	return s.prefix + string(agent)
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Publish writes the snapshot as JSON and indexes the agent.
func (s *Store) Publish(ctx context.Context, snap domain.StackSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := s.client.Pipeline()

	pipe.Set(ctx, s.key(snap.AgentID), data, s.ttl)

	// Score = expiry. Without a TTL the entry never expires from the index.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: string(snap.AgentID),
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Get reads the latest snapshot of agent.
func (s *Store) Get(ctx context.Context, agent domain.AgentID) (domain.StackSnapshot, error) {
	val, err := s.client.Get(ctx, s.key(agent)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.StackSnapshot{}, domain.ErrSnapshotNotFound
		}
		return domain.StackSnapshot{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var snap domain.StackSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return domain.StackSnapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Delete removes the agent's snapshot.
func (s *Store) Delete(ctx context.Context, agent domain.AgentID) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.key(agent))
	pipe.ZRem(ctx, s.indexKey(), string(agent))

	_, err := pipe.Exec(ctx)
	return err
}

// List returns the indexed agents, pruning expired entries first.
func (s *Store) List(ctx context.Context) ([]domain.AgentID, error) {
	now := float64(time.Now().Unix())

	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired snapshots: %w", err)
	}

	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	agents := make([]domain.AgentID, len(members))
	for i, m := range members {
		agents[i] = domain.AgentID(m)
	}
	return agents, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
