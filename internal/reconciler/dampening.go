package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/redis/go-redis/v9"
)

// DampeningStore holds per-entity cooldown/circuit-breaker state. The
// in-process map is the default; RedisDampeningStore is the opt-in backend
// for multi-process reconciler deployments.
type DampeningStore interface {
	Get(ctx context.Context, entityID string) (model.DampeningState, bool, error)
	Put(ctx context.Context, state model.DampeningState) error
}

// MapDampeningStore is the default single-process implementation.
type MapDampeningStore struct {
	mu    sync.RWMutex
	state map[string]model.DampeningState
}

// NewMapDampeningStore returns an empty in-process store.
func NewMapDampeningStore() *MapDampeningStore {
	return &MapDampeningStore{state: make(map[string]model.DampeningState)}
}

func (m *MapDampeningStore) Get(_ context.Context, entityID string) (model.DampeningState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.state[entityID]
	return s, ok, nil
}

func (m *MapDampeningStore) Put(_ context.Context, state model.DampeningState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[state.EntityID] = state
	return nil
}

// RedisDampeningStore shares dampening state across reconciler processes via
// a Redis hash per entity, so a circuit breaker tripped by one process is
// honored by all of them.
type RedisDampeningStore struct {
	client *redis.Client
	prefix string
}

// NewRedisDampeningStore wraps an existing Redis client.
func NewRedisDampeningStore(client *redis.Client) *RedisDampeningStore {
	return &RedisDampeningStore{client: client, prefix: "gap:dampening:"}
}

func (r *RedisDampeningStore) key(entityID string) string {
	return r.prefix + entityID
}

func (r *RedisDampeningStore) Get(ctx context.Context, entityID string) (model.DampeningState, bool, error) {
	raw, err := r.client.Get(ctx, r.key(entityID)).Bytes()
	if err == redis.Nil {
		return model.DampeningState{}, false, nil
	}
	if err != nil {
		return model.DampeningState{}, false, fmt.Errorf("reconciler: redis get dampening state: %w", err)
	}
	var s model.DampeningState
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.DampeningState{}, false, fmt.Errorf("reconciler: decode dampening state: %w", err)
	}
	return s, true, nil
}

func (r *RedisDampeningStore) Put(ctx context.Context, state model.DampeningState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("reconciler: encode dampening state: %w", err)
	}
	if err := r.client.Set(ctx, r.key(state.EntityID), raw, 0).Err(); err != nil {
		return fmt.Errorf("reconciler: redis set dampening state: %w", err)
	}
	return nil
}

// IsDampened reports whether the entity should be skipped this tick: inside
// its cooldown window, or permanently circuit-broken.
func IsDampened(state model.DampeningState, now time.Time) bool {
	if state.CircuitBroken {
		return true
	}
	return now.Before(state.CooldownUntil)
}

// ApplyOutcome updates dampening state after one CGA cycle, per §5: cooldown
// always resets, consecutive_failures tracks escalations, and the circuit
// trips permanently once the threshold is reached.
func ApplyOutcome(state model.DampeningState, entityID string, escalated bool, now time.Time, cooldown time.Duration, circuitBreakerThreshold int) model.DampeningState {
	state.EntityID = entityID
	state.LastInterventionAt = now
	state.CooldownUntil = now.Add(cooldown)
	if escalated {
		state.ConsecutiveFailures++
	} else {
		state.ConsecutiveFailures = 0
	}
	if state.ConsecutiveFailures >= circuitBreakerThreshold {
		state.CircuitBroken = true
	}
	return state
}
